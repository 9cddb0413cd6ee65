package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/artpar/entityapi/bootstrap"
	"github.com/artpar/entityapi/config"
	"github.com/artpar/entityapi/core/formatter"
)

// errReported marks an error that was already written to stderr.
var errReported = errors.New("error reported")

// globalFlags are the persistent flags of the root command.
type globalFlags struct {
	config      string
	db          string
	logLevel    string
	format      string
	metricsFile string
}

// session carries state shared by every command of one process. The shell
// reuses one session across lines.
type session struct {
	flags  globalFlags
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	cfg *config.Config
	app *bootstrap.App

	// appOptions configure bootstrap.New (tests lower the hash cost).
	appOptions bootstrap.Options

	inShell bool
}

func newSession(in io.Reader, out, errOut io.Writer) *session {
	return &session{
		flags:  globalFlags{config: "entityapi.yaml", format: "table"},
		in:     in,
		out:    out,
		errOut: errOut,
	}
}

// loadConfig loads configuration and applies flag overrides.
func (s *session) loadConfig() (*config.Config, error) {
	if s.cfg != nil {
		return s.cfg, nil
	}

	cfg, err := config.LoadWithFallback(s.flags.config)
	if err != nil {
		return nil, err
	}
	if s.flags.db != "" {
		cfg.Database.DSN = s.flags.db
	}
	if s.flags.logLevel != "" {
		cfg.Logging.Level = s.flags.logLevel
	}
	if s.flags.metricsFile != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Textfile = s.flags.metricsFile
	}

	s.cfg = cfg
	return cfg, nil
}

// open returns the wired app, creating it on first use.
func (s *session) open(ctx context.Context) (*bootstrap.App, error) {
	if s.app != nil {
		return s.app, nil
	}

	cfg, err := s.loadConfig()
	if err != nil {
		return nil, err
	}

	opts := s.appOptions
	if opts.LogOutput == nil {
		opts.LogOutput = s.errOut
	}
	app, err := bootstrap.New(ctx, cfg, opts)
	if err != nil {
		return nil, err
	}
	s.app = app
	return app, nil
}

func (s *session) close() error {
	if s.app == nil {
		return nil
	}
	err := s.app.Close()
	s.app = nil
	return err
}

func (s *session) formatter() (formatter.Formatter, error) {
	f, ok := formatter.Get(s.flags.format)
	if !ok {
		return nil, fmt.Errorf("unknown output format %q (available: %v)", s.flags.format, formatter.List())
	}
	return f, nil
}

// report writes err through the selected formatter and returns errReported.
func (s *session) report(err error) error {
	f, ferr := s.formatter()
	if ferr != nil {
		f = formatter.Default()
	}
	f.FormatError(s.errOut, err)
	return errReported
}

func newRootCmd(s *session) *cobra.Command {
	root := &cobra.Command{
		Use:   "entityapi",
		Short: "Schema-driven CRUD runtime for declared entity types",
		Long: `entityapi loads entity declarations annotated with @Api\ directives,
validates bound values against them and dispatches create, get, update
and remove calls to the entity's storage hooks.

Examples:
  entityapi create user --set mail=jane@example.com --set name=Jane
  entityapi get user --context mail=jane@example.com
  entityapi update user --context mail=jane@example.com --set lastName=Doe
  entityapi remove user --context mobile=5551234567
  entityapi schema user -o yaml
  entityapi validate schemas/*.yaml
  entityapi shell`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(s.in)
	root.SetOut(s.out)
	root.SetErr(s.errOut)

	pf := root.PersistentFlags()
	pf.StringVarP(&s.flags.config, "config", "c", s.flags.config, "config file path")
	pf.StringVar(&s.flags.db, "db", s.flags.db, "database path (overrides database.dsn)")
	pf.StringVar(&s.flags.logLevel, "log-level", s.flags.logLevel, "log level: debug, info, warn, error")
	pf.StringVarP(&s.flags.format, "format", "o", s.flags.format, "output format: table, json, yaml")
	pf.StringVar(&s.flags.metricsFile, "metrics-file", s.flags.metricsFile, "write metrics to this file on exit")

	for _, cmd := range newVerbCmds(s) {
		root.AddCommand(cmd)
	}
	root.AddCommand(newSchemaCmd(s))
	root.AddCommand(newValidateCmd(s))
	root.AddCommand(newVersionCmd(s))
	if !s.inShell {
		root.AddCommand(newShellCmd(s))
	}
	return root
}

// Execute runs the CLI and returns the process exit code.
func Execute(args []string, in io.Reader, out, errOut io.Writer) int {
	s := newSession(in, out, errOut)
	code := execute(context.Background(), s, args)
	if err := s.close(); err != nil {
		fmt.Fprintln(errOut, "Error:", err)
		return 1
	}
	return code
}

func execute(ctx context.Context, s *session, args []string) int {
	root := newRootCmd(s)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintln(s.errOut, "Error:", err)
		}
		return 1
	}
	return 0
}
