// Package tty provides an interactive line-oriented shell. Each line is
// split into arguments and handed to an executor, typically a command tree.
package tty

import (
	"bufio"
	"context"
	"fmt"
	"io"
	goruntime "runtime"
	"strings"
	"time"
)

// Executor runs one parsed command line.
type Executor func(ctx context.Context, args []string) error

// Channel implements the TTY channel for interactive terminal sessions.
type Channel struct {
	exec      Executor
	in        io.Reader
	out       io.Writer
	prompt    string
	running   bool
	showStats bool // Show execution stats after each command
	help      string
}

// Option configures a Channel.
type Option func(*Channel)

// WithPrompt sets the prompt. An empty prompt disables it, which suits
// piped input.
func WithPrompt(prompt string) Option {
	return func(c *Channel) { c.prompt = prompt }
}

// WithStats enables execution stats after each command.
func WithStats(enabled bool) Option {
	return func(c *Channel) { c.showStats = enabled }
}

// WithHelp sets the text printed by the help command.
func WithHelp(help string) Option {
	return func(c *Channel) { c.help = help }
}

// New creates a new TTY channel reading from in and writing to out.
func New(exec Executor, in io.Reader, out io.Writer, opts ...Option) *Channel {
	c := &Channel{
		exec:   exec,
		in:     in,
		out:    out,
		prompt: "entityapi> ",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// captureStats captures current memory stats.
func captureStats() goruntime.MemStats {
	var m goruntime.MemStats
	goruntime.ReadMemStats(&m)
	return m
}

// formatBytes formats bytes as human readable.
func formatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}

// printStats prints execution statistics.
func (c *Channel) printStats(duration time.Duration, before, after goruntime.MemStats) {
	memUsed := int64(after.Alloc) - int64(before.Alloc)
	if memUsed < 0 {
		memUsed = 0 // GC happened
	}
	gcRuns := after.NumGC - before.NumGC

	fmt.Fprintf(c.out, "\033[90m") // dim gray
	fmt.Fprintf(c.out, "  ⏱ %v", duration.Round(time.Microsecond))
	fmt.Fprintf(c.out, "  📦 %s", formatBytes(uint64(memUsed)))
	if gcRuns > 0 {
		fmt.Fprintf(c.out, "  ♻ %d GC", gcRuns)
	}
	fmt.Fprintf(c.out, "\033[0m\n") // reset
}

// Name returns the channel name.
func (c *Channel) Name() string {
	return "tty"
}

// Stop ends the loop after the current line.
func (c *Channel) Stop() {
	c.running = false
}

// Run reads lines until EOF, quit or context cancellation. Command errors
// are printed and do not end the session.
func (c *Channel) Run(ctx context.Context) error {
	c.running = true
	scanner := bufio.NewScanner(c.in)

	if c.prompt != "" {
		fmt.Fprintln(c.out, "entityapi interactive shell")
		fmt.Fprintln(c.out, "Type 'help' for available commands, 'quit' to exit")
		fmt.Fprintln(c.out)
	}

	for c.running {
		if err := ctx.Err(); err != nil {
			return err
		}
		fmt.Fprint(c.out, c.prompt)
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Capture stats before execution
		before := captureStats()
		start := time.Now()

		err := c.execute(ctx, line)

		// Capture stats after execution
		duration := time.Since(start)
		after := captureStats()

		if err != nil {
			fmt.Fprintf(c.out, "Error: %v\n", err)
		}

		if c.showStats && c.running {
			c.printStats(duration, before, after)
		}
	}

	return scanner.Err()
}

// execute parses and executes a command line.
func (c *Channel) execute(ctx context.Context, line string) error {
	parts := ParseArgs(line)
	if len(parts) == 0 {
		return nil
	}

	switch parts[0] {
	case "quit", "exit", "q":
		c.running = false
		if c.prompt != "" {
			fmt.Fprintln(c.out, "Goodbye!")
		}
		return nil

	case "help", "h", "?":
		if c.help != "" && len(parts) == 1 {
			fmt.Fprintln(c.out, c.help)
			return nil
		}

	case "stats":
		c.showStats = !c.showStats
		if c.showStats {
			fmt.Fprintln(c.out, "Stats display enabled")
		} else {
			fmt.Fprintln(c.out, "Stats display disabled")
		}
		return nil
	}

	return c.exec(ctx, parts)
}

// ParseArgs parses a command line respecting quoted strings.
func ParseArgs(line string) []string {
	var args []string
	var current strings.Builder
	inQuote := false
	quoteChar := rune(0)

	for _, r := range line {
		switch {
		case r == '"' || r == '\'':
			if inQuote && r == quoteChar {
				inQuote = false
				quoteChar = 0
			} else if !inQuote {
				inQuote = true
				quoteChar = r
			} else {
				current.WriteRune(r)
			}
		case r == ' ' || r == '\t':
			if inQuote {
				current.WriteRune(r)
			} else if current.Len() > 0 {
				args = append(args, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(r)
		}
	}

	if current.Len() > 0 {
		args = append(args, current.String())
	}

	return args
}

// KeyValue is one parsed "key=value" argument.
type KeyValue struct {
	Key   string
	Value string
}

// ParseKeyValues parses "key=value" arguments in the order given. Arguments
// without '=' or with an empty key are returned as errors.
func ParseKeyValues(args []string) ([]KeyValue, error) {
	pairs := make([]KeyValue, 0, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("expected key=value, got %q", arg)
		}
		pairs = append(pairs, KeyValue{Key: strings.TrimSpace(key), Value: value})
	}
	return pairs, nil
}
