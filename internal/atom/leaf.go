package atom

import (
	"encoding/json"
)

func encodePayload[T any](v T) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, NewSerializationError("encode payload", err)
	}
	return data, nil
}

func decodePayload[T any](data []byte) (T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return v, NewSerializationError("decode payload", err)
	}
	return v, nil
}

// Immutable is a leaf whose content must never change once persisted.
//
// Value is exported so callers can read it directly. Writing to it after
// construction is a logic error: the next sync reports a fatal invariant
// violation instead of overwriting the stored value.
type Immutable[T any] struct {
	Value T

	hash   Hash
	sealed bool
}

// NewImmutable wraps v and computes its content hash.
func NewImmutable[T any](v T) (Immutable[T], error) {
	payload, err := encodePayload(v)
	if err != nil {
		return Immutable[T]{}, err
	}
	return Immutable[T]{Value: v, hash: ContentHash(payload), sealed: true}, nil
}

// Hash returns the content hash computed at construction.
func (i *Immutable[T]) Hash() Hash {
	return i.hash
}

// StateVector implements Synchronizable.
func (i *Immutable[T]) StateVector() (StateVector, error) {
	payload, err := encodePayload(i.Value)
	if err != nil {
		return nil, err
	}
	h := ContentHash(payload)
	if i.sealed && h != i.hash {
		return nil, NewImmutableMismatchError(h[:], i.hash[:])
	}
	return &LeafVector{Metric: NewImmutableMetric(h), Accessor: immutableAccessor[T]{i}}, nil
}

// Snapshot implements Synchronizable.
func (i *Immutable[T]) Snapshot() (RawAtomic, error) {
	payload, err := encodePayload(i.Value)
	if err != nil {
		return nil, err
	}
	metric, err := NewImmutableMetric(ContentHash(payload)).Marshal()
	if err != nil {
		return nil, err
	}
	return RawLeaf{Metric: metric, Payload: payload}, nil
}

// Restore implements Synchronizable.
func (i *Immutable[T]) Restore(raw RawAtomic) error {
	leaf, ok := raw.(RawLeaf)
	if !ok {
		return NewShapeMismatchError("leaf", raw)
	}
	if leaf.Payload == nil {
		*i = Immutable[T]{}
		return nil
	}
	return immutableAccessor[T]{i}.Write(leaf.Payload)
}

// Shape implements Synchronizable.
func (*Immutable[T]) Shape() Shape {
	return Leaf()
}

type immutableAccessor[T any] struct {
	leaf *Immutable[T]
}

func (a immutableAccessor[T]) Read() ([]byte, error) {
	return encodePayload(a.leaf.Value)
}

func (a immutableAccessor[T]) Write(payload []byte) error {
	v, err := decodePayload[T](payload)
	if err != nil {
		return err
	}
	a.leaf.Value = v
	a.leaf.hash = ContentHash(payload)
	a.leaf.sealed = true
	return nil
}

// Timed is a last-writer-wins leaf ordered by (logical time, content hash).
//
// Set stamps a timestamp immediately but defers hashing: the hash is
// recomputed when the leaf is next read for merging, and the logical time
// only advances if the content actually changed. Rapid successive writes
// therefore cost one hash per sync.
type Timed[T any] struct {
	value   T
	time    int64
	hash    Hash
	pending int64
}

// NewTimed returns a leaf holding v, stamped with DefaultClock.
func NewTimed[T any](v T) Timed[T] {
	return NewTimedAt(v, DefaultClock.Now())
}

// NewTimedAt returns a leaf holding v, stamped with ts.
func NewTimedAt[T any](v T, ts int64) Timed[T] {
	return Timed[T]{value: v, pending: ts}
}

// Get returns the current value.
func (t *Timed[T]) Get() T {
	return t.value
}

// Set replaces the value and stamps it with DefaultClock.
func (t *Timed[T]) Set(v T) {
	t.SetAt(v, DefaultClock.Now())
}

// SetAt replaces the value and stamps it with ts.
func (t *Timed[T]) SetAt(v T, ts int64) {
	t.value = v
	t.pending = ts
}

// Time returns the logical time of the last closed write.
func (t *Timed[T]) Time() int64 {
	return t.time
}

// Hash returns the content hash of the last closed write.
func (t *Timed[T]) Hash() Hash {
	return t.hash
}

// close folds a pending write into the metric.
func (t *Timed[T]) close() error {
	if t.pending == 0 {
		return nil
	}
	payload, err := encodePayload(t.value)
	if err != nil {
		return err
	}
	if h := ContentHash(payload); h != t.hash {
		t.time = t.pending
		t.hash = h
	}
	t.pending = 0
	return nil
}

// StateVector implements Synchronizable.
func (t *Timed[T]) StateVector() (StateVector, error) {
	if err := t.close(); err != nil {
		return nil, err
	}
	metric := &TimedMetric{time: &t.time, hash: &t.hash}
	return &LeafVector{
		Metric:   metric,
		Accessor: timedAccessor[T]{leaf: t, metric: metric},
	}, nil
}

// Snapshot implements Synchronizable.
func (t *Timed[T]) Snapshot() (RawAtomic, error) {
	if err := t.close(); err != nil {
		return nil, err
	}
	payload, err := encodePayload(t.value)
	if err != nil {
		return nil, err
	}
	metric, err := encodeTimedStamp(t.time, t.hash)
	if err != nil {
		return nil, err
	}
	return RawLeaf{Metric: metric, Payload: payload}, nil
}

// Restore implements Synchronizable.
func (t *Timed[T]) Restore(raw RawAtomic) error {
	leaf, ok := raw.(RawLeaf)
	if !ok {
		return NewShapeMismatchError("leaf", raw)
	}
	*t = Timed[T]{}
	if leaf.Payload == nil {
		return nil
	}
	v, err := decodePayload[T](leaf.Payload)
	if err != nil {
		return err
	}
	t.value = v
	if leaf.Metric == nil {
		t.hash = ContentHash(leaf.Payload)
		return nil
	}
	stamp, err := decodeTimedStamp(leaf.Metric)
	if err != nil {
		return err
	}
	t.time = stamp.Time
	copy(t.hash[:], stamp.Hash)
	return nil
}

// Shape implements Synchronizable.
func (*Timed[T]) Shape() Shape {
	return Leaf()
}

type timedAccessor[T any] struct {
	leaf   *Timed[T]
	metric *TimedMetric
}

func (a timedAccessor[T]) Read() ([]byte, error) {
	return encodePayload(a.leaf.value)
}

// Write installs a pulled payload together with the stamp that won the
// preceding Merge. No timestamp is taken. If the payload does not decode,
// the leaf keeps both its value and its metric.
func (a timedAccessor[T]) Write(payload []byte) error {
	v, err := decodePayload[T](payload)
	if err != nil {
		return err
	}
	a.leaf.value = v
	a.leaf.pending = 0
	if won := a.metric.won; won != nil {
		a.leaf.time = won.Time
		copy(a.leaf.hash[:], won.Hash)
		a.metric.won = nil
	} else {
		a.leaf.hash = ContentHash(payload)
	}
	return nil
}
