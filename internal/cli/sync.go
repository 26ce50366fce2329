package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/fieldsync/internal/atom"
	"github.com/roach88/fieldsync/internal/engine"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	File string // YAML mapping of key: value
}

// SyncResult is the JSON payload of a successful sync.
type SyncResult struct {
	Name       string `json:"name"`
	Pushed     int    `json:"pushed"`
	Pulled     int    `json:"pulled"`
	Unchanged  int    `json:"unchanged"`
	Discovered int    `json:"discovered"`
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync <name> [key=value ...]",
		Short: "Write values and reconcile them with the store",
		Long: `Load the document stored under <name>, apply the given assignments with
a fresh timestamp, and sync it back. Each key is merged on its own: a key
written more recently by another writer keeps the other writer's value.

Keys cannot be deleted; a key removed locally reappears on the next sync.

Example:
  fieldsync sync --db ./data.db mymessage Hello=29 Goodbye=73
  fieldsync sync --db ./data.db mymessage --file updates.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(opts, args[0], args[1:], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "YAML file of key: value assignments")

	return cmd
}

func runSync(opts *SyncOptions, name string, assignments []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	updates, err := parseAssignments(assignments)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeArgs, "invalid assignment", err)
	}
	if opts.File != "" {
		fromFile, err := loadAssignments(opts.File)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeArgs, "invalid assignments file", err)
		}
		// Command-line assignments win over the file.
		for k, v := range updates {
			fromFile[k] = v
		}
		updates = fromFile
	}

	sess, err := openSession(opts.RootOptions, cmd)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to open database", err)
	}
	defer sess.Close()
	ctx := cmd.Context()

	doc, found, err := engine.GetRemote[Document](ctx, sess.engine, name)
	if err != nil {
		return formatter.Fail(ExitFailure, syncErrorCode(err), "failed to load document", err)
	}
	if !found {
		doc = &Document{}
		formatter.VerboseLog("No document stored under %s, creating it", name)
	}

	for _, k := range slices.Sorted(maps.Keys(updates)) {
		v := updates[k]
		if leaf, ok := doc.Get(k); ok {
			leaf.SetAt(v, opts.stamp())
		} else {
			doc.Insert(k, atom.NewTimedAt(v, opts.stamp()))
		}
		formatter.VerboseLog("Set %s=%s", k, v)
	}

	stats, err := sess.engine.SyncRemote(ctx, name, doc)
	if err != nil {
		return formatter.Fail(ExitFailure, syncErrorCode(err), "sync failed", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(SyncResult{
			Name:       name,
			Pushed:     stats.Pushed,
			Pulled:     stats.Pulled,
			Unchanged:  stats.Unchanged,
			Discovered: stats.Discovered,
		})
	}
	fmt.Fprintf(formatter.Writer, "✓ Synced %s: %s\n", name, stats)
	return nil
}

// parseAssignments parses key=value arguments. The value may contain '='.
func parseAssignments(args []string) (map[string]string, error) {
	out := make(map[string]string, len(args))
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("%q: expected key=value", arg)
		}
		out[k] = v
	}
	return out, nil
}

// loadAssignments reads a flat YAML mapping of string keys to scalar values.
func loadAssignments(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	out := make(map[string]string)
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	if err := decoder.Decode(&out); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return out, nil
}
