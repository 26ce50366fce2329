package atom

import (
	"bytes"
	"cmp"
	"encoding/hex"
	"fmt"

	"github.com/minio/blake2b-simd"
	"github.com/vmihailenco/msgpack/v5"
)

// Ordering is the result of comparing a local metric with a stored one.
type Ordering int

const (
	// Less means the stored side is newer; its payload is pulled.
	Less Ordering = -1
	// Equal means both sides agree; nothing is written.
	Equal Ordering = 0
	// Greater means the local side is newer; its payload is pushed.
	Greater Ordering = 1
)

func (o Ordering) String() string {
	switch o {
	case Less:
		return "less"
	case Equal:
		return "equal"
	case Greater:
		return "greater"
	default:
		return "invalid"
	}
}

// Metric is per-leaf comparable state, distinct from the leaf's payload,
// used to decide which side of a sync is newer.
type Metric interface {
	// Merge compares against the serialized metric of the stored peer.
	// A nil remote means no stored state and yields Greater.
	// Merge leaves the owning leaf untouched; when the stored side wins,
	// its state is installed only by a successful Accessor.Write.
	Merge(remote []byte) (Ordering, error)

	// Marshal returns a stable encoding of the metric state.
	Marshal() ([]byte, error)
}

// Hash is a BLAKE2b-256 content hash.
type Hash [32]byte

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// domainPayload separates payload hashes from any other use of the hash function.
const domainPayload = "fieldsync/payload/v1"

// ContentHash computes the content hash of a serialized payload.
// Format: BLAKE2b-256(domain + 0x00 + payload)
func ContentHash(payload []byte) Hash {
	h := blake2b.New256()
	h.Write([]byte(domainPayload))
	h.Write([]byte{0x00})
	h.Write(payload)
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

type immutableStamp struct {
	Hash []byte `msgpack:"h"`
}

// ImmutableMetric compares content hashes only. Any disagreement with the
// stored hash is a fatal invariant violation.
type ImmutableMetric struct {
	hash Hash
}

// NewImmutableMetric returns a metric for the given content hash.
func NewImmutableMetric(h Hash) *ImmutableMetric {
	return &ImmutableMetric{hash: h}
}

// Merge implements Metric.
func (m *ImmutableMetric) Merge(remote []byte) (Ordering, error) {
	if remote == nil {
		return Greater, nil
	}
	var stamp immutableStamp
	if err := msgpack.Unmarshal(remote, &stamp); err != nil {
		return Equal, NewSerializationError("decode immutable metric", err)
	}
	if !bytes.Equal(m.hash[:], stamp.Hash) {
		return Equal, NewImmutableMismatchError(m.hash[:], stamp.Hash)
	}
	return Equal, nil
}

// Marshal implements Metric.
func (m *ImmutableMetric) Marshal() ([]byte, error) {
	data, err := msgpack.Marshal(immutableStamp{Hash: m.hash[:]})
	if err != nil {
		return nil, NewSerializationError("encode immutable metric", err)
	}
	return data, nil
}

type timedStamp struct {
	Time int64  `msgpack:"t"`
	Hash []byte `msgpack:"h"`
}

// TimedMetric orders by (logical time, content hash), lexicographically.
// It reads the owning leaf's metric through pointers. A stored stamp that
// wins a merge is held in won until the leaf's accessor writes the pulled
// payload.
type TimedMetric struct {
	time *int64
	hash *Hash
	won  *timedStamp
}

// Merge implements Metric.
func (m *TimedMetric) Merge(remote []byte) (Ordering, error) {
	m.won = nil
	if remote == nil {
		return Greater, nil
	}
	stamp, err := decodeTimedStamp(remote)
	if err != nil {
		return Equal, err
	}
	ord := compareTimed(*m.time, m.hash[:], stamp.Time, stamp.Hash)
	if ord == Less {
		m.won = &stamp
	}
	return ord, nil
}

// Marshal implements Metric.
func (m *TimedMetric) Marshal() ([]byte, error) {
	return encodeTimedStamp(*m.time, *m.hash)
}

func compareTimed(lt int64, lh []byte, rt int64, rh []byte) Ordering {
	if c := cmp.Compare(lt, rt); c != 0 {
		return Ordering(c)
	}
	return Ordering(bytes.Compare(lh, rh))
}

func encodeTimedStamp(t int64, h Hash) ([]byte, error) {
	data, err := msgpack.Marshal(timedStamp{Time: t, Hash: h[:]})
	if err != nil {
		return nil, NewSerializationError("encode timed metric", err)
	}
	return data, nil
}

func decodeTimedStamp(data []byte) (timedStamp, error) {
	var stamp timedStamp
	if err := msgpack.Unmarshal(data, &stamp); err != nil {
		return timedStamp{}, NewSerializationError("decode timed metric", err)
	}
	if len(stamp.Hash) != len(Hash{}) {
		return timedStamp{}, NewSerializationError("decode timed metric", fmt.Errorf("hash length %d, want %d", len(stamp.Hash), len(Hash{})))
	}
	return stamp, nil
}
