package atom

import (
	"cmp"
	"slices"
)

// OrderedMap is a keyed collection of synchronizable values. Keys are
// unique and kept in comparison order; order carries no meaning for sync.
//
// The zero value is an empty map ready to use.
//
//	var notes atom.OrderedMap[string, atom.Timed[string], *atom.Timed[string]]
//	notes.Insert("hello", atom.NewTimed("world"))
type OrderedMap[K Key, V any, PV Ptr[V]] struct {
	entries map[K]PV
}

// Insert stores v under k, replacing any previous value.
func (m *OrderedMap[K, V, PV]) Insert(k K, v V) {
	if m.entries == nil {
		m.entries = make(map[K]PV)
	}
	m.entries[k] = PV(&v)
}

// Get returns a pointer to the live value under k.
func (m *OrderedMap[K, V, PV]) Get(k K) (PV, bool) {
	v, ok := m.entries[k]
	return v, ok
}

// Remove drops k from the map and reports whether it was present.
//
// Removal is local only: the stored row is kept, so the key is discovered
// and re-inserted by the next sync.
func (m *OrderedMap[K, V, PV]) Remove(k K) bool {
	if _, ok := m.entries[k]; !ok {
		return false
	}
	delete(m.entries, k)
	return true
}

// Len returns the number of keys.
func (m *OrderedMap[K, V, PV]) Len() int {
	return len(m.entries)
}

// Keys returns all keys in ascending order.
func (m *OrderedMap[K, V, PV]) Keys() []K {
	keys := make([]K, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// ElemShape implements CollectionAdapter.
func (m *OrderedMap[K, V, PV]) ElemShape() Shape {
	return ShapeOf[V, PV]()
}

// StateVectors implements CollectionAdapter. Entries are ordered by index string.
func (m *OrderedMap[K, V, PV]) StateVectors() ([]IndexedVector, error) {
	out := make([]IndexedVector, 0, len(m.entries))
	for k, v := range m.entries {
		index, err := EncodeKey(k)
		if err != nil {
			return nil, err
		}
		sv, err := v.StateVector()
		if err != nil {
			return nil, err
		}
		out = append(out, IndexedVector{Index: index, Vector: sv})
	}
	slices.SortFunc(out, func(a, b IndexedVector) int {
		return cmp.Compare(a.Index, b.Index)
	})
	return out, nil
}

// InsertSnapshot implements CollectionAdapter.
func (m *OrderedMap[K, V, PV]) InsertSnapshot(index string, raw RawAtomic) error {
	k, err := DecodeKey[K](index)
	if err != nil {
		return err
	}
	v, err := FromSnapshot[V, PV](raw)
	if err != nil {
		return err
	}
	if m.entries == nil {
		m.entries = make(map[K]PV)
	}
	m.entries[k] = v
	return nil
}

// StateVector implements Synchronizable.
func (m *OrderedMap[K, V, PV]) StateVector() (StateVector, error) {
	return CollectionVector{Adapter: m}, nil
}

// Snapshot implements Synchronizable.
func (m *OrderedMap[K, V, PV]) Snapshot() (RawAtomic, error) {
	raw := make(RawCollection, len(m.entries))
	for k, v := range m.entries {
		index, err := EncodeKey(k)
		if err != nil {
			return nil, err
		}
		child, err := v.Snapshot()
		if err != nil {
			return nil, err
		}
		raw[index] = child
	}
	return raw, nil
}

// Restore implements Synchronizable.
func (m *OrderedMap[K, V, PV]) Restore(raw RawAtomic) error {
	c, ok := raw.(RawCollection)
	if !ok {
		return NewShapeMismatchError("collection", raw)
	}
	m.entries = make(map[K]PV, len(c))
	for _, index := range c.SortedKeys() {
		if err := m.InsertSnapshot(index, c[index]); err != nil {
			return err
		}
	}
	return nil
}

// Shape implements Synchronizable.
func (m *OrderedMap[K, V, PV]) Shape() Shape {
	return Collection(ShapeOf[V, PV]())
}
