package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/artpar/entityapi/core/channel/tty"
	"github.com/artpar/entityapi/core/formatter"
	"github.com/artpar/entityapi/core/runtime"
)

var verbHelp = map[runtime.Verb]struct {
	short   string
	example string
}{
	runtime.VerbCreate: {
		short:   "Create a record",
		example: "  entityapi create user --set mail=jane@example.com --set name=Jane",
	},
	runtime.VerbGet: {
		short:   "Fetch a record located by context values",
		example: "  entityapi get user --context mail=jane@example.com",
	},
	runtime.VerbUpdate: {
		short:   "Update a record located by context values",
		example: "  entityapi update user --context mail=jane@example.com --set lastName=Doe",
	},
	runtime.VerbRemove: {
		short:   "Remove a record located by context values",
		example: "  entityapi remove user --context mail=jane@example.com",
	},
}

func newVerbCmds(s *session) []*cobra.Command {
	verbs := []runtime.Verb{runtime.VerbCreate, runtime.VerbGet, runtime.VerbUpdate, runtime.VerbRemove}
	cmds := make([]*cobra.Command, len(verbs))
	for i, v := range verbs {
		cmds[i] = newVerbCmd(s, v)
	}
	return cmds
}

func newVerbCmd(s *session, verb runtime.Verb) *cobra.Command {
	var (
		sets     []string
		contexts []string
		columns  []string
	)

	help := verbHelp[verb]
	cmd := &cobra.Command{
		Use:     string(verb) + " <entity>",
		Short:   help.short,
		Example: help.example,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := tty.ParseKeyValues(sets)
			if err != nil {
				return fmt.Errorf("--set: %w", err)
			}
			ctxValues, err := tty.ParseKeyValues(contexts)
			if err != nil {
				return fmt.Errorf("--context: %w", err)
			}

			f, err := s.formatter()
			if err != nil {
				return err
			}
			app, err := s.open(cmd.Context())
			if err != nil {
				return err
			}

			in, err := app.Runtime.Load(args[0])
			if err != nil {
				return s.report(err)
			}
			// Flag order decides which value wins when keys resolve to one field.
			for _, kv := range values {
				in.Set(kv.Key, kv.Value)
			}
			for _, kv := range ctxValues {
				in.Context(kv.Key, kv.Value)
			}

			var rec runtime.Record
			switch verb {
			case runtime.VerbCreate:
				rec, err = in.Create(cmd.Context())
			case runtime.VerbGet:
				rec, err = in.Get(cmd.Context())
			case runtime.VerbUpdate:
				rec, err = in.Update(cmd.Context())
			case runtime.VerbRemove:
				var removed bool
				removed, err = in.Remove(cmd.Context())
				rec = runtime.Record{"removed": removed}
			}
			if err != nil {
				return s.report(err)
			}

			return f.FormatRecord(cmd.OutOrStdout(), in.Schema(), rec, formatOptions(columns))
		},
	}

	cmd.Flags().StringArrayVar(&sets, "set", nil, "primary value as key=value (repeatable)")
	cmd.Flags().StringArrayVar(&contexts, "context", nil, "context value as key=value (repeatable)")
	cmd.Flags().StringSliceVar(&columns, "columns", nil, "keys to show (default: all)")
	return cmd
}

func formatOptions(columns []string) formatter.FormatOptions {
	return formatter.FormatOptions{Columns: columns}
}
