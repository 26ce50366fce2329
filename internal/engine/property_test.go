package engine

import (
	"context"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/roach88/fieldsync/internal/atom"
	"github.com/roach88/fieldsync/internal/store"
	"github.com/roach88/fieldsync/internal/testutil"
)

// cell is one write by one writer.
type cell struct {
	Key   string
	Value int
	Time  int64
}

func genCell() gopter.Gen {
	return gopter.CombineGens(
		gen.OneConstOf("a", "b", "c", "d"),
		gen.IntRange(0, 9),
		gen.Int64Range(1, 20),
	).Map(func(vals []any) cell {
		return cell{Key: vals[0].(string), Value: vals[1].(int), Time: vals[2].(int64)}
	})
}

func counters(cells []cell) *testutil.Counters {
	var c testutil.Counters
	for _, x := range cells {
		c.Insert(x.Key, atom.NewTimedAt(x.Value, x.Time))
	}
	return &c
}

// syncAll runs the writers in order, then once more each so every writer
// has seen every other, and returns the stored snapshot.
func syncAll(writers []*testutil.Counters) (atom.RawAtomic, []atom.RawAtomic, bool) {
	ctx := context.Background()
	s, err := store.OpenMemory()
	if err != nil {
		return nil, nil, false
	}
	defer s.Close()
	e, err := New(s, WithLogger(quietLogger()))
	if err != nil {
		return nil, nil, false
	}

	for round := 0; round < 2; round++ {
		for _, w := range writers {
			if _, err := e.SyncRemote(ctx, "cells", w); err != nil {
				return nil, nil, false
			}
		}
	}
	stored, _, err := e.Materialize(ctx, "cells", atom.ShapeOf[testutil.Counters]())
	if err != nil {
		return nil, nil, false
	}
	locals := make([]atom.RawAtomic, len(writers))
	for i, w := range writers {
		if locals[i], err = w.Snapshot(); err != nil {
			return nil, nil, false
		}
	}
	return stored, locals, true
}

func TestProperty_SyncOrderDoesNotMatter(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("two writers converge to the same state in either order", prop.ForAll(
		func(a, b []cell) bool {
			ab, abLocals, ok := syncAll([]*testutil.Counters{counters(a), counters(b)})
			if !ok {
				return false
			}
			ba, baLocals, ok := syncAll([]*testutil.Counters{counters(b), counters(a)})
			if !ok {
				return false
			}
			if !reflect.DeepEqual(ab, ba) {
				return false
			}
			for _, local := range append(abLocals, baLocals...) {
				if !reflect.DeepEqual(local, ab) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(genCell()),
		gen.SliceOf(genCell()),
	))

	properties.TestingRun(t)
}
