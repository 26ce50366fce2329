package atom

import (
	"slices"
)

// Accessor reads and writes a leaf's serialized payload.
type Accessor interface {
	Read() ([]byte, error)
	Write(payload []byte) error
}

// StateVector is a sealed interface for the transient view over a live
// value used during one sync pass. It borrows the value: merging through a
// LeafVector mutates the leaf in place.
type StateVector interface {
	stateVector()
}

// LeafVector exposes a leaf's metric and payload accessor.
type LeafVector struct {
	Metric   Metric
	Accessor Accessor
}

func (*LeafVector) stateVector() {}

// NamedVector is one named child of a GroupVector.
type NamedVector struct {
	Name   string
	Vector StateVector
}

// GroupVector holds the state vectors of a group's fields in declaration order.
type GroupVector struct {
	Fields []NamedVector
}

func (GroupVector) stateVector() {}

// Lookup returns the vector for the named field.
func (g GroupVector) Lookup(name string) (StateVector, bool) {
	for _, f := range g.Fields {
		if f.Name == name {
			return f.Vector, true
		}
	}
	return nil, false
}

// CollectionVector wraps a collection adapter.
type CollectionVector struct {
	Adapter CollectionAdapter
}

func (CollectionVector) stateVector() {}

// IndexedVector is the state vector of one collection element.
type IndexedVector struct {
	Index  string
	Vector StateVector
}

// CollectionAdapter bridges a keyed collection into the collection case of
// StateVector.
type CollectionAdapter interface {
	// ElemShape returns the shape of the element type.
	ElemShape() Shape

	// StateVectors returns one entry per currently held key, ordered by index.
	StateVectors() ([]IndexedVector, error)

	// InsertSnapshot decodes index into a key and raw into a value and
	// inserts both into the live collection.
	InsertSnapshot(index string, raw RawAtomic) error
}

// RawAtomic is a sealed interface for the detached, serializable copy of a
// value. Only RawLeaf, RawGroup and RawCollection implement it.
type RawAtomic interface {
	rawAtomic()
}

// RawLeaf is a leaf's serialized metric and payload.
// A nil Payload means the store holds no value for the leaf.
type RawLeaf struct {
	Metric  []byte
	Payload []byte
}

func (RawLeaf) rawAtomic() {}

// RawGroup maps field names to snapshots.
type RawGroup map[string]RawAtomic

func (RawGroup) rawAtomic() {}

// SortedKeys returns field names in byte order.
func (g RawGroup) SortedKeys() []string {
	return sortedKeys(g)
}

// RawCollection maps encoded keys (index strings) to snapshots.
type RawCollection map[string]RawAtomic

func (RawCollection) rawAtomic() {}

// SortedKeys returns index strings in byte order.
func (c RawCollection) SortedKeys() []string {
	return sortedKeys(c)
}

func sortedKeys(m map[string]RawAtomic) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Synchronizable is implemented by every leaf and composite value the
// engine can synchronize.
type Synchronizable interface {
	// StateVector returns the view used for one merge pass. Leaves close out
	// pending mutations before exposing their metric.
	StateVector() (StateVector, error)

	// Snapshot returns a detached copy of the whole value.
	Snapshot() (RawAtomic, error)

	// Restore replaces the receiver with the value described by raw.
	// Returns a shape mismatch error if raw has the wrong variant.
	Restore(raw RawAtomic) error

	// Shape returns the static shape. It must not depend on the receiver's state.
	Shape() Shape
}

// Ptr constrains PT to be a pointer to T implementing Synchronizable.
type Ptr[T any] interface {
	*T
	Synchronizable
}

// ShapeOf returns the static shape of T without an instance.
func ShapeOf[T any, PT Ptr[T]]() Shape {
	var v T
	return PT(&v).Shape()
}

// FromSnapshot builds a new T from a snapshot.
func FromSnapshot[T any, PT Ptr[T]](raw RawAtomic) (PT, error) {
	p := PT(new(T))
	if err := p.Restore(raw); err != nil {
		return nil, err
	}
	return p, nil
}
