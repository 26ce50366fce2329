package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/fieldsync/internal/atom"
	"github.com/roach88/fieldsync/internal/store"
)

// RootIndex is the index of the root value and of every child that is not
// itself keyed (group fields, nested collections).
const RootIndex = "0"

const (
	payloadColumn = "payload"
	metricColumn  = "metric"
	childColumn   = "child"
	metricPrefix  = "metric_"
)

// pass carries the transaction and bookkeeping of one sync or materialize
// call down the recursion. It is never shared between passes.
type pass struct {
	ctx    context.Context
	tx     *store.Tx
	logger *slog.Logger
	stats  Stats

	// columns caches table_info lookups made while materializing.
	columns map[string]map[string]bool
}

func newPass(ctx context.Context, tx *store.Tx, logger *slog.Logger) *pass {
	return &pass{ctx: ctx, tx: tx, logger: logger, columns: make(map[string]map[string]bool)}
}

// ensure creates or extends table and drops its cached column set.
func (p *pass) ensure(table string, cols []store.Column) error {
	delete(p.columns, table)
	return p.tx.EnsureTable(p.ctx, table, cols)
}

// childPath returns the table path of a non-leaf group field. Groups at
// RootIndex use path.field; keyed groups (collection elements) include
// their index so sibling elements never share a sub-table.
func childPath(path, index, field string) string {
	if index == RootIndex {
		return path + "." + field
	}
	return path + "." + index + "." + field
}

// nestedPath returns the table path of a nested collection element.
func nestedPath(path, index string) string {
	return path + "." + index
}

func leafColumns() []store.Column {
	return []store.Column{store.Text(payloadColumn), store.Blob(metricColumn)}
}

func groupColumns(leaves []string) []store.Column {
	cols := make([]store.Column, 0, 2*len(leaves))
	for _, name := range leaves {
		cols = append(cols, store.Text(name), store.Blob(metricPrefix+name))
	}
	return cols
}

// elemColumns returns the columns of the table holding collection elements of shape elem.
func elemColumns(elem atom.Shape) []store.Column {
	switch sh := elem.(type) {
	case atom.LeafShape:
		return leafColumns()
	case atom.GroupShape:
		return groupColumns(sh.LeafFields())
	case atom.CollectionShape:
		return []store.Column{store.Text(childColumn)}
	default:
		return nil
	}
}

// locate tags err with the position it was raised at. Errors that are not
// already SyncErrors come from the store.
func locate(err error, path, index string) error {
	var se *atom.SyncError
	if errors.As(err, &se) {
		return se.At(path, index)
	}
	return atom.NewStoreError("store", err).At(path, index)
}

// sync merges sv against the store at (path, index).
func (p *pass) sync(path, index string, sv atom.StateVector) error {
	switch v := sv.(type) {
	case *atom.LeafVector:
		return p.syncLeaf(path, index, v)
	case atom.GroupVector:
		return p.syncGroup(path, index, v)
	case atom.CollectionVector:
		return p.syncCollection(path, v)
	default:
		return &atom.SyncError{Code: atom.ErrCodeShapeMismatch, Message: fmt.Sprintf("unsupported state vector %T", sv), Path: path, Index: index}
	}
}

func (p *pass) syncLeaf(path, index string, lv *atom.LeafVector) error {
	if err := p.ensure(path, leafColumns()); err != nil {
		return locate(err, path, index)
	}

	var payload sql.NullString
	var metric []byte
	err := p.tx.QueryRowContext(p.ctx,
		fmt.Sprintf(`SELECT %s, %s FROM %s WHERE %s = ?`,
			store.QuoteIdent(payloadColumn), store.QuoteIdent(metricColumn),
			store.QuoteIdent(path), store.QuoteIdent(store.IndexColumn)),
		index,
	).Scan(&payload, &metric)
	if errors.Is(err, sql.ErrNoRows) {
		metric = nil
	} else if err != nil {
		return locate(fmt.Errorf("read leaf: %w", err), path, index)
	}

	ord, err := lv.Metric.Merge(metric)
	if err != nil {
		return locate(err, path, index)
	}
	p.logger.Debug("leaf merged", "path", path, "index", index, "outcome", ord)

	switch ord {
	case atom.Greater:
		data, err := lv.Accessor.Read()
		if err != nil {
			return locate(err, path, index)
		}
		m, err := lv.Metric.Marshal()
		if err != nil {
			return locate(err, path, index)
		}
		_, err = p.tx.ExecContext(p.ctx, upsertSQL(path, []string{payloadColumn, metricColumn}), index, string(data), m)
		if err != nil {
			return locate(fmt.Errorf("upsert leaf: %w", err), path, index)
		}
		p.stats.Pushed++
	case atom.Less:
		if !payload.Valid {
			return locate(errors.New("stored metric without payload"), path, index)
		}
		if err := lv.Accessor.Write([]byte(payload.String)); err != nil {
			return locate(err, path, index)
		}
		p.stats.Pulled++
	default:
		p.stats.Unchanged++
	}
	return nil
}

type leafField struct {
	name   string
	vector *atom.LeafVector
}

func (p *pass) syncGroup(path, index string, gv atom.GroupVector) error {
	var leaves []leafField
	var others []atom.NamedVector
	for _, f := range gv.Fields {
		if lv, ok := f.Vector.(*atom.LeafVector); ok {
			leaves = append(leaves, leafField{name: f.Name, vector: lv})
		} else {
			others = append(others, f)
		}
	}
	names := make([]string, len(leaves))
	for i, l := range leaves {
		names[i] = l.name
	}

	if err := p.ensure(path, groupColumns(names)); err != nil {
		return locate(err, path, index)
	}

	// One row lookup for all leaf fields.
	selectCols := []string{store.QuoteIdent(store.IndexColumn)}
	for _, name := range names {
		selectCols = append(selectCols, store.QuoteIdent(name), store.QuoteIdent(metricPrefix+name))
	}
	payloads := make([]sql.NullString, len(leaves))
	metrics := make([][]byte, len(leaves))
	var rowIndex string
	dest := []any{&rowIndex}
	for i := range leaves {
		dest = append(dest, &payloads[i], &metrics[i])
	}
	err := p.tx.QueryRowContext(p.ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE %s = ?`,
			strings.Join(selectCols, ", "), store.QuoteIdent(path), store.QuoteIdent(store.IndexColumn)),
		index,
	).Scan(dest...)
	rowExists := true
	if errors.Is(err, sql.ErrNoRows) {
		rowExists = false
		for i := range metrics {
			metrics[i] = nil
		}
	} else if err != nil {
		return locate(fmt.Errorf("read group: %w", err), path, index)
	}

	// Each field resolves independently; only Greater fields are written.
	var pushCols []string
	var pushArgs []any
	for i, l := range leaves {
		ord, err := l.vector.Metric.Merge(metrics[i])
		if err != nil {
			return locate(err, path, index)
		}
		p.logger.Debug("leaf merged", "path", path, "index", index, "field", l.name, "outcome", ord)

		switch ord {
		case atom.Greater:
			data, err := l.vector.Accessor.Read()
			if err != nil {
				return locate(err, path, index)
			}
			m, err := l.vector.Metric.Marshal()
			if err != nil {
				return locate(err, path, index)
			}
			pushCols = append(pushCols, l.name, metricPrefix+l.name)
			pushArgs = append(pushArgs, string(data), m)
			p.stats.Pushed++
		case atom.Less:
			if !payloads[i].Valid {
				return locate(fmt.Errorf("field %q: stored metric without payload", l.name), path, index)
			}
			if err := l.vector.Accessor.Write([]byte(payloads[i].String)); err != nil {
				return locate(err, path, index)
			}
			p.stats.Pulled++
		default:
			p.stats.Unchanged++
		}
	}

	switch {
	case len(pushCols) > 0:
		args := append([]any{index}, pushArgs...)
		if _, err := p.tx.ExecContext(p.ctx, upsertSQL(path, pushCols), args...); err != nil {
			return locate(fmt.Errorf("upsert group: %w", err), path, index)
		}
	case !rowExists:
		// Keep a row per key so collection discovery sees groups without leaf fields.
		if _, err := p.tx.ExecContext(p.ctx, upsertSQL(path, nil), index); err != nil {
			return locate(fmt.Errorf("insert group row: %w", err), path, index)
		}
	}

	for _, f := range others {
		if err := p.sync(childPath(path, index, f.Name), RootIndex, f.Vector); err != nil {
			return err
		}
	}
	return nil
}

func (p *pass) syncCollection(path string, cv atom.CollectionVector) error {
	elem := cv.Adapter.ElemShape()
	if err := p.ensure(path, elemColumns(elem)); err != nil {
		return locate(err, path, "")
	}

	entries, err := cv.Adapter.StateVectors()
	if err != nil {
		return locate(err, path, "")
	}
	local := make(map[string]bool, len(entries))
	for _, e := range entries {
		local[e.Index] = true
	}

	if _, nested := elem.(atom.CollectionShape); nested {
		return p.syncNested(path, cv.Adapter, elem, entries, local)
	}

	for _, e := range entries {
		if err := p.sync(path, e.Index, e.Vector); err != nil {
			return err
		}
	}

	stored, err := p.storedIndexes(path)
	if err != nil {
		return locate(err, path, "")
	}
	for _, index := range stored {
		if local[index] {
			continue
		}
		raw, err := p.materialize(path, index, elem)
		if err != nil {
			return err
		}
		if err := cv.Adapter.InsertSnapshot(index, raw); err != nil {
			return locate(err, path, index)
		}
		p.stats.Discovered++
		p.logger.Info("key discovered", "path", path, "index", index)
	}
	return nil
}

// syncNested handles collections of collections. The table at path maps
// each index to the table of its child collection.
func (p *pass) syncNested(path string, adapter atom.CollectionAdapter, elem atom.Shape, entries []atom.IndexedVector, local map[string]bool) error {
	children, err := p.storedChildren(path)
	if err != nil {
		return locate(err, path, "")
	}

	for _, e := range entries {
		child := nestedPath(path, e.Index)
		if _, ok := children[e.Index]; !ok {
			if _, err := p.tx.ExecContext(p.ctx, upsertSQL(path, []string{childColumn}), e.Index, child); err != nil {
				return locate(fmt.Errorf("insert child: %w", err), path, e.Index)
			}
		}
		if err := p.sync(child, RootIndex, e.Vector); err != nil {
			return err
		}
	}

	for _, index := range sortedKeys(children) {
		if local[index] {
			continue
		}
		raw, err := p.materialize(children[index], RootIndex, elem)
		if err != nil {
			return err
		}
		if err := adapter.InsertSnapshot(index, raw); err != nil {
			return locate(err, path, index)
		}
		p.stats.Discovered++
		p.logger.Info("key discovered", "path", path, "index", index)
	}
	return nil
}

// upsertSQL returns an insert-or-update-by-index statement for cols.
// Arguments are the index followed by one value per column. With no
// columns the statement only ensures the row exists.
func upsertSQL(table string, cols []string) string {
	quoted := []string{store.QuoteIdent(store.IndexColumn)}
	marks := []string{"?"}
	sets := make([]string, 0, len(cols))
	for _, c := range cols {
		q := store.QuoteIdent(c)
		quoted = append(quoted, q)
		marks = append(marks, "?")
		sets = append(sets, fmt.Sprintf("%s = excluded.%s", q, q))
	}
	action := "DO NOTHING"
	if len(sets) > 0 {
		action = "DO UPDATE SET " + strings.Join(sets, ", ")
	}
	return fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(%s) %s`,
		store.QuoteIdent(table), strings.Join(quoted, ", "), strings.Join(marks, ", "),
		store.QuoteIdent(store.IndexColumn), action)
}
