package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/artpar/entityapi/config"
	"github.com/artpar/entityapi/core/schema"
	"github.com/artpar/entityapi/core/validation"
)

func newValidateCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [files...]",
		Short: "Validate configuration and entity declarations",
		Long: `Validate entity declaration files without touching the database.

Each file is parsed with the configured directive prefix and strictness,
and every validator function it names must be registered. Without
arguments the configuration is checked, together with the files under
schema.dir when it is set.

Examples:
  entityapi validate
  entityapi validate schemas/tag.yaml schemas/order.yaml
  entityapi validate --config /etc/entityapi/entityapi.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()

			cfg, err := s.loadConfig()
			if err != nil {
				fmt.Fprintf(w, "  %s Config valid\n", crossMark)
				return err
			}

			files := args
			if len(files) == 0 {
				fmt.Fprintf(w, "  %s Config valid\n", checkMark)
				fmt.Fprintf(w, "  %s Database: %s (%s)\n", checkMark, cfg.Database.DSN, cfg.Database.Driver)
				fmt.Fprintf(w, "  %s Directive prefix: %s\n", checkMark, cfg.Schema.Prefix)

				if cfg.Schema.Dir == "" {
					fmt.Fprintln(w)
					fmt.Fprintln(w, "Configuration is valid.")
					return nil
				}
				files, err = declarationFiles(cfg.Schema.Dir)
				if err != nil {
					fmt.Fprintf(w, "  %s Schema dir: %s\n", crossMark, cfg.Schema.Dir)
					return err
				}
				fmt.Fprintf(w, "  %s Schema dir: %s (%d files)\n", checkMark, cfg.Schema.Dir, len(files))
			}

			failed := validateFiles(w, cfg, files)
			fmt.Fprintln(w)
			if failed > 0 {
				return fmt.Errorf("%d of %d declarations invalid", failed, len(files))
			}
			fmt.Fprintln(w, "All declarations are valid.")
			return nil
		},
	}
}

// validateFiles reports each file and returns the number that failed.
func validateFiles(w io.Writer, cfg *config.Config, files []string) int {
	functions := validation.NewFunctions()
	validation.RegisterBuiltins(functions)

	failed := 0
	for _, file := range files {
		if err := validateFile(cfg, functions, file); err != nil {
			fmt.Fprintf(w, "  %s %s\n", crossMark, file)
			fmt.Fprintf(w, "      %v\n", err)
			failed++
			continue
		}
		fmt.Fprintf(w, "  %s %s\n", checkMark, file)
	}
	return failed
}

func validateFile(cfg *config.Config, functions *validation.Functions, file string) error {
	decl, err := schema.ParseDeclarationFile(file)
	if err != nil {
		return err
	}
	ent, err := schema.Parse(decl, cfg.SchemaOptions())
	if err != nil {
		return err
	}
	if missing := functions.Missing(ent.Functions()); len(missing) > 0 {
		return fmt.Errorf("%s: unknown validator functions: %s", ent.Name(), strings.Join(missing, ", "))
	}
	return nil
}

func declarationFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".yaml", ".yml":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

const (
	checkMark = "\033[32m✓\033[0m"
	crossMark = "\033[31m✗\033[0m"
)
