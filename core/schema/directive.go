package schema

import (
	"fmt"
	"strings"
)

// DefaultPrefix introduces a directive inside a metadata block.
const DefaultPrefix = `@Api\`

// DirectiveKind enumerates the recognized directives.
type DirectiveKind int

const (
	DirectiveUnknown DirectiveKind = iota
	DirectiveTable
	DirectiveColumn
	DirectiveValidate
	DirectiveGroup
	DirectiveContextual
)

var directiveNames = map[string]DirectiveKind{
	"table":      DirectiveTable,
	"column":     DirectiveColumn,
	"validate":   DirectiveValidate,
	"oneingroup": DirectiveGroup,
	"contextual": DirectiveContextual,
}

func (k DirectiveKind) String() string {
	switch k {
	case DirectiveTable:
		return "Table"
	case DirectiveColumn:
		return "Column"
	case DirectiveValidate:
		return "Validate"
	case DirectiveGroup:
		return "OneInGroup"
	case DirectiveContextual:
		return "Contextual"
	default:
		return "Unknown"
	}
}

// Arg is one directive argument. Key is empty for a positional value.
type Arg struct {
	Key   string
	Value string
}

// Directive is one scanned metadata instruction.
type Directive struct {
	Kind DirectiveKind

	// Name is the directive name as written.
	Name string

	Args []Arg

	// Offset is the byte offset of the prefix within the metadata block.
	Offset int
}

// Arg returns the value of a keyed argument.
func (d Directive) Arg(key string) (string, bool) {
	for _, a := range d.Args {
		if strings.EqualFold(a.Key, key) {
			return a.Value, true
		}
	}
	return "", false
}

// Positional returns the positional argument, if any.
func (d Directive) Positional() (string, bool) {
	for _, a := range d.Args {
		if a.Key == "" {
			return a.Value, true
		}
	}
	return "", false
}

// SchemaParseError reports a malformed directive or an inconsistent declaration.
type SchemaParseError struct {
	Entity    string
	Field     string
	Directive string
	Offset    int
	Reason    string
}

func (e *SchemaParseError) Error() string {
	var b strings.Builder
	b.WriteString("schema parse error")
	if e.Entity != "" {
		fmt.Fprintf(&b, ": entity %q", e.Entity)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, " field %q", e.Field)
	}
	if e.Directive != "" {
		fmt.Fprintf(&b, " directive %s at offset %d", e.Directive, e.Offset)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	return b.String()
}

// ScanDirectives extracts every prefixed directive from a metadata block.
//
// Text outside directives is ignored. A prefix not followed by a name is
// ignored as well, and so is an unrecognized name with no argument list. A
// recognized name not followed by a balanced argument list is an error.
func ScanDirectives(meta, prefix string) ([]Directive, error) {
	if prefix == "" {
		prefix = DefaultPrefix
	}

	var out []Directive
	pos := 0
	for {
		i := strings.Index(meta[pos:], prefix)
		if i < 0 {
			return out, nil
		}
		start := pos + i
		s := &scanner{src: meta, pos: start + len(prefix)}

		name := s.ident()
		if name == "" {
			pos = s.pos
			continue
		}

		d := Directive{Kind: directiveNames[strings.ToLower(name)], Name: name, Offset: start}
		fail := func(reason string) error {
			return &SchemaParseError{Directive: name, Offset: start, Reason: reason}
		}

		s.skipSpace()
		if s.peek() != '(' {
			if d.Kind == DirectiveUnknown {
				pos = s.pos
				continue
			}
			return nil, fail("expected '(' after directive name")
		}
		s.pos++

		args, reason := s.args()
		if reason != "" {
			return nil, fail(reason)
		}
		d.Args = args
		out = append(out, d)
		pos = s.pos
	}
}

type scanner struct {
	src string
	pos int
}

func (s *scanner) eof() bool { return s.pos >= len(s.src) }

func (s *scanner) peek() byte {
	if s.eof() {
		return 0
	}
	return s.src[s.pos]
}

func (s *scanner) skipSpace() {
	for !s.eof() {
		switch s.src[s.pos] {
		case ' ', '\t', '\n', '\r':
			s.pos++
		default:
			return
		}
	}
}

func isIdentByte(c byte, first bool) bool {
	switch {
	case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		return true
	case c >= '0' && c <= '9':
		return !first
	}
	return false
}

func (s *scanner) ident() string {
	start := s.pos
	for !s.eof() && isIdentByte(s.src[s.pos], s.pos == start) {
		s.pos++
	}
	return s.src[start:s.pos]
}

// quoted reads a quoted string starting at the opening quote.
// Backslash escapes the quote characters and itself; any other
// backslash is kept as written.
func (s *scanner) quoted() (string, bool) {
	q := s.src[s.pos]
	s.pos++
	var b strings.Builder
	for !s.eof() {
		c := s.src[s.pos]
		switch {
		case c == '\\' && s.pos+1 < len(s.src):
			n := s.src[s.pos+1]
			if n == '"' || n == '\'' || n == '\\' {
				b.WriteByte(n)
				s.pos += 2
				continue
			}
			b.WriteByte(c)
			s.pos++
		case c == q:
			s.pos++
			return b.String(), true
		default:
			b.WriteByte(c)
			s.pos++
		}
	}
	return "", false
}

// bare reads an unquoted value up to a separator.
func (s *scanner) bare() string {
	start := s.pos
	for !s.eof() {
		switch s.src[s.pos] {
		case ',', ')', '(', ' ', '\t', '\n', '\r', '"', '\'':
			return s.src[start:s.pos]
		}
		s.pos++
	}
	return s.src[start:s.pos]
}

// value reads a quoted or bare value. The reason is non-empty on failure.
func (s *scanner) value() (string, string) {
	switch s.peek() {
	case '"', '\'':
		v, ok := s.quoted()
		if !ok {
			return "", "unterminated quoted string"
		}
		return v, ""
	case 0:
		return "", "unbalanced parentheses"
	}
	v := s.bare()
	if v == "" {
		return "", fmt.Sprintf("unexpected %q in argument list", s.peek())
	}
	return v, ""
}

// args reads the argument list after the opening parenthesis, consuming
// the closing one.
func (s *scanner) args() ([]Arg, string) {
	var args []Arg
	for {
		s.skipSpace()
		if s.eof() {
			return nil, "unbalanced parentheses"
		}
		if s.peek() == ')' && len(args) == 0 {
			s.pos++
			return nil, ""
		}

		var arg Arg
		switch c := s.peek(); {
		case c == '"' || c == '\'':
			v, reason := s.value()
			if reason != "" {
				return nil, reason
			}
			arg.Value = v
		case isIdentByte(c, true):
			mark := s.pos
			key := s.ident()
			s.skipSpace()
			if s.peek() != '=' {
				// bare positional such as Table(user)
				s.pos = mark
				v, reason := s.value()
				if reason != "" {
					return nil, reason
				}
				arg.Value = v
				break
			}
			s.pos++
			s.skipSpace()
			v, reason := s.value()
			if reason != "" {
				return nil, reason
			}
			arg = Arg{Key: key, Value: v}
		default:
			return nil, fmt.Sprintf("unexpected %q in argument list", c)
		}
		args = append(args, arg)

		s.skipSpace()
		switch s.peek() {
		case ',':
			s.pos++
		case ')':
			s.pos++
			if err := checkPositional(args); err != "" {
				return nil, err
			}
			return args, ""
		case 0:
			return nil, "unbalanced parentheses"
		default:
			return nil, fmt.Sprintf("unexpected %q after argument", s.peek())
		}
	}
}

func checkPositional(args []Arg) string {
	if len(args) < 2 {
		return ""
	}
	for _, a := range args {
		if a.Key == "" {
			return "a positional argument must be the only argument"
		}
	}
	return ""
}
