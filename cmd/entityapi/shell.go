package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/artpar/entityapi/config"
	"github.com/artpar/entityapi/core/channel/tty"
)

const shellHelp = `Commands:
  create <entity> --set k=v ...             Create a record
  get <entity> --context k=v ...            Fetch a record
  update <entity> --context k=v --set k=v   Update a record
  remove <entity> --context k=v             Remove a record
  schema [entity]                           Show parsed schemas
  validate [files...]                       Check declaration files
  stats                                     Toggle execution stats
  help                                      Show this help
  quit                                      Exit shell

Flags such as -o json apply to the current line only.`

func newShellCmd(s *session) *cobra.Command {
	var stats bool

	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Start interactive shell",
		Long: `Start an interactive shell over one open database.

Each line is a regular entityapi command without the program name.
When the config file exists it is watched, and logging changes apply
without a restart (also on SIGHUP).

Examples:
  entityapi shell
  echo "get user --context mail=jane@example.com" | entityapi shell`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := s.open(ctx)
			if err != nil {
				return err
			}

			if _, err := os.Stat(s.flags.config); err == nil {
				holder, err := config.NewHolder(s.flags.config, app.Logger)
				if err != nil {
					return err
				}
				holder.OnReload(app.RecordConfigReload)
				holder.OnChange(func(cfg *config.Config) {
					app.ApplyConfig(cfg)
				})
				if err := holder.WatchFile(); err != nil {
					app.Logger.Warn().Err(err).Msg("config file watch unavailable")
				}
				holder.WatchSignals()
				defer holder.Stop()
			}

			base := s.flags
			opts := []tty.Option{tty.WithStats(stats), tty.WithHelp(shellHelp)}
			if !isTerminal(s.in) {
				opts = append(opts, tty.WithPrompt(""))
			}

			ch := tty.New(func(ctx context.Context, args []string) error {
				s.flags = base
				s.inShell = true
				defer func() { s.inShell = false }()

				if args[0] == "shell" {
					return errors.New("already in a shell")
				}
				root := newRootCmd(s)
				root.SetArgs(args)
				err := root.ExecuteContext(ctx)
				if errors.Is(err, errReported) {
					return nil
				}
				return err
			}, s.in, cmd.OutOrStdout(), opts...)

			err = ch.Run(ctx)
			s.flags = base
			if errors.Is(err, context.Canceled) {
				fmt.Fprintln(cmd.OutOrStdout())
				return nil
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&stats, "stats", false, "print execution stats after each command")
	return cmd
}

func isTerminal(in any) bool {
	f, ok := in.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
