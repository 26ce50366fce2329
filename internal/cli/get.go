package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/fieldsync/internal/engine"
)

// Entry is one key of a document as reported by get.
type Entry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
	Time  int64  `json:"time"`
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <name>",
		Short: "Print the document stored under a name",
		Long: `Materialize the document stored under <name> without syncing anything.

Example:
  fieldsync get --db ./data.db mymessage
  fieldsync get --db ./data.db mymessage --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(rootOpts, args[0], cmd)
		},
	}
}

func runGet(opts *RootOptions, name string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	sess, err := openSession(opts, cmd)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to open database", err)
	}
	defer sess.Close()

	doc, found, err := engine.GetRemote[Document](cmd.Context(), sess.engine, name)
	if err != nil {
		return formatter.Fail(ExitFailure, syncErrorCode(err), "failed to load document", err)
	}
	if !found {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("nothing stored under %q", name), nil)
	}

	entries := make([]Entry, 0, doc.Len())
	for _, k := range doc.Keys() {
		leaf, _ := doc.Get(k)
		entries = append(entries, Entry{Key: k, Value: leaf.Get(), Time: leaf.Time()})
	}

	if formatter.Format == "json" {
		return formatter.Success(entries)
	}
	for _, e := range entries {
		fmt.Fprintf(formatter.Writer, "%s=%s\n", e.Key, e.Value)
		formatter.VerboseLog("  %s written at %d", e.Key, e.Time)
	}
	return nil
}
