// Package random generates random strings over an alphabet.
package random

import (
	"crypto/rand"
	"errors"
	"io"
	"math/big"
)

// Source draws from an entropy reader.
type Source struct {
	r io.Reader
}

// New creates a source over r. A nil reader means crypto/rand.
func New(r io.Reader) *Source {
	if r == nil {
		r = rand.Reader
	}
	return &Source{r: r}
}

// Bytes returns n random bytes.
func (s *Source) Bytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(s.r, b); err != nil {
		return nil, err
	}
	return b, nil
}

// String returns n characters drawn uniformly from alphabet.
func (s *Source) String(n int, alphabet string) (string, error) {
	if alphabet == "" {
		return "", errors.New("random: empty alphabet")
	}
	max := big.NewInt(int64(len(alphabet)))
	buf := make([]byte, n)
	for i := range buf {
		k, err := rand.Int(s.r, max)
		if err != nil {
			return "", err
		}
		buf[i] = alphabet[k.Int64()]
	}
	return string(buf), nil
}

// Fake is a deterministic entropy reader that repeats a byte pattern.
type Fake struct {
	pattern []byte
	pos     int
}

// NewFake creates a fake reader. An empty pattern yields zero bytes.
func NewFake(pattern ...byte) *Fake {
	if len(pattern) == 0 {
		pattern = []byte{0}
	}
	return &Fake{pattern: pattern}
}

// Read fills p with the pattern, continuing where the last call stopped.
func (f *Fake) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = f.pattern[f.pos%len(f.pattern)]
		f.pos++
	}
	return len(p), nil
}
