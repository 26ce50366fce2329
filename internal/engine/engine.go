package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/fieldsync/internal/atom"
	"github.com/roach88/fieldsync/internal/store"
)

// Engine reconciles synchronizable values against a Store.
//
// Thread-safety model:
//   - SyncRemote/GetRemote: safe from any goroutine; passes are serialized
//     by the store's exclusive transaction
//   - The value passed to SyncRemote must not be touched by other
//     goroutines until the call returns
type Engine struct {
	store   *store.Store
	logger  *slog.Logger
	metrics *Metrics
	reg     prometheus.Registerer
}

// Option allows configuration of engine parameters.
type Option func(*Engine)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithRegisterer registers the engine's Prometheus collectors with reg.
// Without it the collectors are kept but not exported.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(e *Engine) {
		e.reg = reg
	}
}

// New creates an Engine over s.
func New(s *store.Store, opts ...Option) (*Engine, error) {
	e := &Engine{
		store:  s,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	m, err := NewMetrics(e.reg)
	if err != nil {
		return nil, err
	}
	e.metrics = m
	return e, nil
}

// Metrics returns the engine's collectors.
func (e *Engine) Metrics() *Metrics {
	return e.metrics
}

// validateRoot checks the root name and the value's shape before any SQL runs.
func validateRoot(name string, shape atom.Shape) error {
	if !atom.ValidName(name) || strings.HasPrefix(name, "fieldsync_") || strings.HasPrefix(name, "sqlite_") {
		return &atom.SyncError{Code: atom.ErrCodeShapeMismatch, Message: fmt.Sprintf("invalid root name %q", name)}
	}
	if err := atom.ValidateShape(shape); err != nil {
		return &atom.SyncError{Code: atom.ErrCodeShapeMismatch, Message: "invalid shape", Err: err}
	}
	if err := checkColumnNames(shape); err != nil {
		return &atom.SyncError{Code: atom.ErrCodeShapeMismatch, Message: "invalid shape", Err: err}
	}
	return nil
}

// checkColumnNames rejects group leaf fields whose columns would collide
// with the reserved index column or another field's metric column.
func checkColumnNames(shape atom.Shape) error {
	switch sh := shape.(type) {
	case atom.GroupShape:
		cols := map[string]string{store.IndexColumn: "index"}
		for _, name := range sh.LeafFields() {
			for _, c := range []string{name, metricPrefix + name} {
				if owner, ok := cols[c]; ok {
					return fmt.Errorf("field %q: column %q collides with %s", name, c, owner)
				}
				cols[c] = fmt.Sprintf("field %q", name)
			}
		}
		for _, f := range sh.Fields {
			if err := checkColumnNames(f.Shape); err != nil {
				return err
			}
		}
	case atom.CollectionShape:
		return checkColumnNames(sh.Elem)
	}
	return nil
}

// shapeKind returns the variant name a shape string starts with.
func shapeKind(s string) string {
	if i := strings.IndexAny(s, "{["); i >= 0 {
		return s[:i]
	}
	return s
}

// checkRoot returns the registry row for name and fails if name was
// previously synchronized with a different kind of shape.
func checkRoot(ctx context.Context, tx *store.Tx, name string, shape atom.Shape) (store.Root, bool, error) {
	root, ok, err := store.LookupRoot(ctx, tx, name)
	if err != nil {
		return store.Root{}, false, atom.NewStoreError("lookup root", err)
	}
	if !ok {
		return store.Root{}, false, nil
	}
	if shapeKind(root.Shape) != shapeKind(shape.String()) {
		return root, true, &atom.SyncError{
			Code:    atom.ErrCodeShapeMismatch,
			Message: fmt.Sprintf("root %q is stored as %s, value is %s", name, shapeKind(root.Shape), shapeKind(shape.String())),
		}
	}
	return root, true, nil
}

// asSyncError classifies failures raised outside the recursion, such as a
// transaction that could not begin or commit, as store errors.
func asSyncError(err error) error {
	if err == nil {
		return nil
	}
	var se *atom.SyncError
	if errors.As(err, &se) {
		return err
	}
	return atom.NewStoreError("transaction", err)
}

// SyncRemote merges v with the store under name, pushing locally newer
// leaves and pulling stored ones in a single exclusive transaction. On error
// nothing from this pass is committed.
//
// Leaves pulled before a failure remain applied to v; they carry the last
// committed store state, so the next pass treats them as converged.
func (e *Engine) SyncRemote(ctx context.Context, name string, v atom.Synchronizable) (Stats, error) {
	shape := v.Shape()
	if err := validateRoot(name, shape); err != nil {
		e.metrics.observe(Stats{}, err)
		return Stats{}, err
	}

	stats, err := store.Transact(ctx, e.store, func(tx *store.Tx) (Stats, error) {
		logger := e.logger.With("name", name, "pass", tx.ID)
		logger.Info("sync pass starting")

		root, registered, err := checkRoot(ctx, tx, name, shape)
		if err != nil {
			return Stats{}, err
		}

		sv, err := v.StateVector()
		if err != nil {
			return Stats{}, locate(err, name, RootIndex)
		}

		p := newPass(ctx, tx, logger)
		if err := p.sync(name, RootIndex, sv); err != nil {
			return Stats{}, err
		}
		// A converged pass leaves the store byte-identical, registry included.
		if registered && root.Shape == shape.String() && p.stats.Converged() {
			return p.stats, nil
		}
		if err := tx.RecordPass(ctx, name, shape.String()); err != nil {
			return Stats{}, atom.NewStoreError("record pass", err)
		}
		return p.stats, nil
	})

	err = asSyncError(err)
	e.metrics.observe(stats, err)
	if err != nil {
		e.logger.Error("sync pass failed", "name", name, "error", err)
		return Stats{}, err
	}
	e.logger.Info("sync pass committed", "name", name,
		"pushed", stats.Pushed, "pulled", stats.Pulled,
		"unchanged", stats.Unchanged, "discovered", stats.Discovered)
	return stats, nil
}

// Materialize reads the snapshot stored under name for shape. Returns
// false if name has never been synchronized.
func (e *Engine) Materialize(ctx context.Context, name string, shape atom.Shape) (atom.RawAtomic, bool, error) {
	if err := validateRoot(name, shape); err != nil {
		return nil, false, err
	}

	type result struct {
		raw   atom.RawAtomic
		found bool
	}
	res, err := store.Transact(ctx, e.store, func(tx *store.Tx) (result, error) {
		_, found, err := checkRoot(ctx, tx, name, shape)
		if err != nil || !found {
			return result{}, err
		}
		p := newPass(ctx, tx, e.logger.With("name", name, "pass", tx.ID))
		raw, err := p.materialize(name, RootIndex, shape)
		if err != nil {
			return result{}, err
		}
		return result{raw: raw, found: true}, nil
	})
	if err != nil {
		return nil, false, asSyncError(err)
	}
	return res.raw, res.found, nil
}

// GetRemote loads the value stored under name without a live instance.
// Returns (nil, false, nil) if name has never been synchronized.
func GetRemote[T any, PT atom.Ptr[T]](ctx context.Context, e *Engine, name string) (PT, bool, error) {
	raw, found, err := e.Materialize(ctx, name, atom.ShapeOf[T, PT]())
	if err != nil || !found {
		return nil, false, err
	}
	v, err := atom.FromSnapshot[T, PT](raw)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}
