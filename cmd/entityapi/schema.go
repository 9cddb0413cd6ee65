package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/artpar/entityapi/core/formatter"
)

func newSchemaCmd(s *session) *cobra.Command {
	var noHeader bool

	cmd := &cobra.Command{
		Use:   "schema [entity]",
		Short: "Show parsed entity schemas",
		Long: `Show the parsed schema of an entity type: its tables, fields,
storage aliases, validator rules and groups. Without an argument the
registered entity types are listed.

Examples:
  entityapi schema
  entityapi schema user
  entityapi schema user -o json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := s.formatter()
			if err != nil {
				return err
			}
			app, err := s.open(cmd.Context())
			if err != nil {
				return err
			}

			if len(args) == 0 {
				for _, name := range app.Runtime.Entities() {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				for _, ent := range app.Extra {
					fmt.Fprintf(cmd.OutOrStdout(), "%s (declaration only)\n", ent.Name())
				}
				return nil
			}

			ent, err := app.Runtime.Schema(args[0])
			if err != nil {
				if extra, ok := app.Registry.Get(args[0]); ok {
					ent, err = extra, nil
				}
			}
			if err != nil {
				return s.report(err)
			}
			return f.FormatSchema(cmd.OutOrStdout(), ent, formatter.FormatOptions{NoHeader: noHeader})
		},
	}

	cmd.Flags().BoolVar(&noHeader, "no-header", false, "omit the table header")
	return cmd
}
