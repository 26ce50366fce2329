package engine

import (
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/fieldsync/internal/atom"
	"github.com/roach88/fieldsync/internal/store"
)

// tableColumns returns the columns of table, or an empty set if the table
// does not exist. Materializing never creates tables.
func (p *pass) tableColumns(table string) (map[string]bool, error) {
	if cols, ok := p.columns[table]; ok {
		return cols, nil
	}
	cols, err := store.TableColumns(p.ctx, p.tx, table)
	if err != nil {
		return nil, err
	}
	p.columns[table] = cols
	return cols, nil
}

// materialize reconstructs the snapshot stored at (path, index) for shape,
// without any live value. Missing tables, rows or columns read as empty.
func (p *pass) materialize(path, index string, shape atom.Shape) (atom.RawAtomic, error) {
	switch sh := shape.(type) {
	case atom.LeafShape:
		return p.materializeLeaf(path, index)
	case atom.GroupShape:
		return p.materializeGroup(path, index, sh)
	case atom.CollectionShape:
		return p.materializeCollection(path, sh)
	default:
		return nil, &atom.SyncError{Code: atom.ErrCodeShapeMismatch, Message: fmt.Sprintf("unsupported shape %T", shape), Path: path, Index: index}
	}
}

func (p *pass) materializeLeaf(path, index string) (atom.RawAtomic, error) {
	cols, err := p.tableColumns(path)
	if err != nil {
		return nil, locate(err, path, index)
	}
	if !cols[payloadColumn] || !cols[metricColumn] {
		return atom.RawLeaf{}, nil
	}

	var payload sql.NullString
	var metric []byte
	err = p.tx.QueryRowContext(p.ctx,
		fmt.Sprintf(`SELECT %s, %s FROM %s WHERE %s = ?`,
			store.QuoteIdent(payloadColumn), store.QuoteIdent(metricColumn),
			store.QuoteIdent(path), store.QuoteIdent(store.IndexColumn)),
		index,
	).Scan(&payload, &metric)
	if errors.Is(err, sql.ErrNoRows) {
		return atom.RawLeaf{}, nil
	}
	if err != nil {
		return nil, locate(fmt.Errorf("read leaf: %w", err), path, index)
	}
	return rawLeaf(payload, metric), nil
}

func rawLeaf(payload sql.NullString, metric []byte) atom.RawLeaf {
	if !payload.Valid {
		return atom.RawLeaf{}
	}
	return atom.RawLeaf{Metric: metric, Payload: []byte(payload.String)}
}

func (p *pass) materializeGroup(path, index string, gs atom.GroupShape) (atom.RawAtomic, error) {
	raw := make(atom.RawGroup, len(gs.Fields))

	cols, err := p.tableColumns(path)
	if err != nil {
		return nil, locate(err, path, index)
	}
	var present []string
	for _, name := range gs.LeafFields() {
		if cols[name] && cols[metricPrefix+name] {
			present = append(present, name)
		} else {
			raw[name] = atom.RawLeaf{}
		}
	}

	if len(present) > 0 {
		selectCols := make([]string, 0, 2*len(present))
		for _, name := range present {
			selectCols = append(selectCols, store.QuoteIdent(name), store.QuoteIdent(metricPrefix+name))
		}
		payloads := make([]sql.NullString, len(present))
		metrics := make([][]byte, len(present))
		dest := make([]any, 0, 2*len(present))
		for i := range present {
			dest = append(dest, &payloads[i], &metrics[i])
		}
		err := p.tx.QueryRowContext(p.ctx,
			fmt.Sprintf(`SELECT %s FROM %s WHERE %s = ?`,
				strings.Join(selectCols, ", "), store.QuoteIdent(path), store.QuoteIdent(store.IndexColumn)),
			index,
		).Scan(dest...)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			for _, name := range present {
				raw[name] = atom.RawLeaf{}
			}
		case err != nil:
			return nil, locate(fmt.Errorf("read group: %w", err), path, index)
		default:
			for i, name := range present {
				raw[name] = rawLeaf(payloads[i], metrics[i])
			}
		}
	}

	for _, f := range gs.Fields {
		if _, ok := f.Shape.(atom.LeafShape); ok {
			continue
		}
		child, err := p.materialize(childPath(path, index, f.Name), RootIndex, f.Shape)
		if err != nil {
			return nil, err
		}
		raw[f.Name] = child
	}
	return raw, nil
}

func (p *pass) materializeCollection(path string, cs atom.CollectionShape) (atom.RawAtomic, error) {
	raw := make(atom.RawCollection)

	if _, nested := cs.Elem.(atom.CollectionShape); nested {
		children, err := p.storedChildren(path)
		if err != nil {
			return nil, locate(err, path, "")
		}
		for _, index := range sortedKeys(children) {
			child, err := p.materialize(children[index], RootIndex, cs.Elem)
			if err != nil {
				return nil, err
			}
			raw[index] = child
		}
		return raw, nil
	}

	indexes, err := p.storedIndexes(path)
	if err != nil {
		return nil, locate(err, path, "")
	}
	for _, index := range indexes {
		child, err := p.materialize(path, index, cs.Elem)
		if err != nil {
			return nil, err
		}
		raw[index] = child
	}
	return raw, nil
}

// storedIndexes returns every index at path, ordered. A missing table has none.
func (p *pass) storedIndexes(path string) ([]string, error) {
	cols, err := p.tableColumns(path)
	if err != nil {
		return nil, err
	}
	if !cols[store.IndexColumn] {
		return nil, nil
	}

	rows, err := p.tx.QueryContext(p.ctx, fmt.Sprintf(`SELECT %s FROM %s ORDER BY %s COLLATE BINARY ASC`,
		store.QuoteIdent(store.IndexColumn), store.QuoteIdent(path), store.QuoteIdent(store.IndexColumn)))
	if err != nil {
		return nil, fmt.Errorf("query indexes: %w", err)
	}
	defer rows.Close()

	var indexes []string
	for rows.Next() {
		var index string
		if err := rows.Scan(&index); err != nil {
			return nil, fmt.Errorf("scan index: %w", err)
		}
		indexes = append(indexes, index)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate indexes: %w", err)
	}
	return indexes, nil
}

// storedChildren returns index -> child table for a nested collection at path.
func (p *pass) storedChildren(path string) (map[string]string, error) {
	children := make(map[string]string)
	cols, err := p.tableColumns(path)
	if err != nil {
		return nil, err
	}
	if !cols[childColumn] {
		return children, nil
	}

	rows, err := p.tx.QueryContext(p.ctx, fmt.Sprintf(`SELECT %s, %s FROM %s`,
		store.QuoteIdent(store.IndexColumn), store.QuoteIdent(childColumn), store.QuoteIdent(path)))
	if err != nil {
		return nil, fmt.Errorf("query children: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var index string
		var child sql.NullString
		if err := rows.Scan(&index, &child); err != nil {
			return nil, fmt.Errorf("scan child: %w", err)
		}
		if !child.Valid {
			child.String = nestedPath(path, index)
		}
		children[index] = child.String
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate children: %w", err)
	}
	return children, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
