package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/fieldsync/internal/store"
)

// TablesResult is the JSON payload of the tables command.
type TablesResult struct {
	Roots  []store.Root `json:"roots"`
	Tables []string     `json:"tables"`
}

// NewTablesCommand creates the tables command.
func NewTablesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List synchronized roots and their tables",
		Long: `List every name that has been synchronized, with its shape and pass
count, followed by every data table in the database.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTables(rootOpts, cmd)
		},
	}
}

func runTables(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	sess, err := openSession(opts, cmd)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to open database", err)
	}
	defer sess.Close()
	ctx := cmd.Context()

	roots, err := sess.store.Roots(ctx)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeStore, "failed to list roots", err)
	}
	tables, err := sess.store.Tables(ctx)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeStore, "failed to list tables", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(TablesResult{Roots: roots, Tables: tables})
	}

	fmt.Fprintf(formatter.Writer, "Roots (%d):\n", len(roots))
	for _, r := range roots {
		fmt.Fprintf(formatter.Writer, "  %s: %s, %d pass(es)\n", r.Name, r.Shape, r.Passes)
		formatter.VerboseLog("  %s last pass %s", r.Name, r.LastPass)
	}
	fmt.Fprintf(formatter.Writer, "Tables (%d):\n", len(tables))
	for _, t := range tables {
		fmt.Fprintf(formatter.Writer, "  %s\n", t)
	}
	return nil
}
