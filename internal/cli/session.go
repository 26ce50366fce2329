package cli

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/fieldsync/internal/atom"
	"github.com/roach88/fieldsync/internal/engine"
	"github.com/roach88/fieldsync/internal/store"
)

// Document is the value type the CLI reads and writes: a collection of
// time-ordered strings keyed by name.
type Document = atom.OrderedMap[string, atom.Timed[string], *atom.Timed[string]]

// session is an open store and engine for one command invocation.
type session struct {
	store  *store.Store
	engine *engine.Engine
	logger *slog.Logger
}

// newLogger writes diagnostics to w in the configured format.
func newLogger(opts *RootOptions, w io.Writer) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: opts.Config.SlogLevel()}
	if opts.Config.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

func openSession(opts *RootOptions, cmd *cobra.Command) (*session, error) {
	logger := newLogger(opts, cmd.ErrOrStderr())

	logger.Debug("opening database", "path", opts.Config.Database)
	st, err := store.Open(opts.Config.Database,
		store.WithLogger(logger),
		store.WithTableCacheSize(opts.Config.TableCacheSize),
	)
	if err != nil {
		return nil, err
	}

	eng, err := engine.New(st, engine.WithLogger(logger))
	if err != nil {
		st.Close()
		return nil, err
	}
	return &session{store: st, engine: eng, logger: logger}, nil
}

func (s *session) Close() {
	if err := s.store.Close(); err != nil {
		s.logger.Error("error closing database", "error", err)
	}
}

// stamp returns the next timestamp for a local write.
func (o *RootOptions) stamp() int64 {
	if o.Clock != nil {
		return o.Clock.Now()
	}
	return atom.DefaultClock.Now()
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}
}
