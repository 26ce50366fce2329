package atom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func leafVector(t *testing.T, s Synchronizable) *LeafVector {
	t.Helper()
	sv, err := s.StateVector()
	require.NoError(t, err)
	lv, ok := sv.(*LeafVector)
	require.True(t, ok, "expected *LeafVector, got %T", sv)
	return lv
}

func TestTimed_NewDefersClose(t *testing.T) {
	v := NewTimedAt(29, 10)
	assert.Equal(t, int64(0), v.Time(), "metric is not closed until read")

	leafVector(t, &v)
	assert.Equal(t, int64(10), v.Time())
	assert.Equal(t, ContentHash([]byte("29")), v.Hash())
}

func TestTimed_SetSameContentKeepsTime(t *testing.T) {
	v := NewTimedAt(29, 10)
	leafVector(t, &v)
	h := v.Hash()

	v.SetAt(29, 20)
	leafVector(t, &v)

	assert.Equal(t, int64(10), v.Time(), "unchanged content must not advance time")
	assert.Equal(t, h, v.Hash())
}

func TestTimed_SetCollapsesRapidWrites(t *testing.T) {
	v := NewTimedAt(1, 10)
	leafVector(t, &v)

	v.SetAt(2, 20)
	v.SetAt(3, 30)
	v.SetAt(4, 40)
	leafVector(t, &v)

	assert.Equal(t, int64(40), v.Time())
	assert.Equal(t, ContentHash([]byte("4")), v.Hash())
	assert.Equal(t, 4, v.Get())
}

func TestTimed_SetUsesDefaultClock(t *testing.T) {
	v := NewTimed("a")
	leafVector(t, &v)
	before := v.Time()

	v.Set("b")
	leafVector(t, &v)
	assert.Greater(t, v.Time(), before)
}

func TestTimedMetric_AbsentRemoteIsGreater(t *testing.T) {
	v := NewTimedAt("a", 10)
	lv := leafVector(t, &v)

	ord, err := lv.Metric.Merge(nil)
	require.NoError(t, err)
	assert.Equal(t, Greater, ord)
}

func TestTimedMetric_EqualToItself(t *testing.T) {
	v := NewTimedAt("a", 10)
	lv := leafVector(t, &v)

	own, err := lv.Metric.Marshal()
	require.NoError(t, err)

	ord, err := lv.Metric.Merge(own)
	require.NoError(t, err)
	assert.Equal(t, Equal, ord)
}

func TestTimedMetric_RemoteNewerIsAdopted(t *testing.T) {
	v := NewTimedAt("a", 10)
	lv := leafVector(t, &v)

	remoteHash := ContentHash([]byte(`"b"`))
	remote, err := encodeTimedStamp(20, remoteHash)
	require.NoError(t, err)

	ord, err := lv.Metric.Merge(remote)
	require.NoError(t, err)
	assert.Equal(t, Less, ord)
	assert.Equal(t, int64(10), v.Time(), "merge alone does not touch the leaf")

	require.NoError(t, lv.Accessor.Write([]byte(`"b"`)))
	assert.Equal(t, "b", v.Get())
	assert.Equal(t, int64(20), v.Time())
	assert.Equal(t, remoteHash, v.Hash())

	// The pulled write is already closed: reading again changes nothing.
	leafVector(t, &v)
	assert.Equal(t, int64(20), v.Time())
}

func TestTimedMetric_RemoteOlderIsGreater(t *testing.T) {
	v := NewTimedAt("a", 30)
	lv := leafVector(t, &v)

	remote, err := encodeTimedStamp(20, ContentHash([]byte(`"b"`)))
	require.NoError(t, err)

	ord, err := lv.Metric.Merge(remote)
	require.NoError(t, err)
	assert.Equal(t, Greater, ord)
	assert.Equal(t, int64(30), v.Time(), "local metric untouched")
}

func TestTimedMetric_TieBrokenByHash(t *testing.T) {
	a := NewTimedAt("a", 10)
	b := NewTimedAt("b", 10)
	la := leafVector(t, &a)
	lb := leafVector(t, &b)

	ma, err := la.Metric.Marshal()
	require.NoError(t, err)
	mb, err := lb.Metric.Marshal()
	require.NoError(t, err)

	// Compare before either side adopts the other.
	ha, hb := a.Hash(), b.Hash()
	want := compareTimed(10, ha[:], 10, hb[:])
	require.NotEqual(t, Equal, want)

	ordA, err := la.Metric.Merge(mb)
	require.NoError(t, err)
	ordB, err := lb.Metric.Merge(ma)
	require.NoError(t, err)

	assert.Equal(t, want, ordA)
	assert.Equal(t, -want, ordB, "orderings must be antisymmetric")

	// The loser pulls the winner's payload.
	if ordA == Less {
		require.NoError(t, la.Accessor.Write([]byte(`"b"`)))
	} else {
		require.NoError(t, lb.Accessor.Write([]byte(`"a"`)))
	}
	assert.Equal(t, a.Hash(), b.Hash(), "both sides converge on the winner")
	assert.Equal(t, a.Get(), b.Get())
}

func TestTimedMetric_FailedWriteKeepsLocalState(t *testing.T) {
	v := NewTimedAt(3, 2)
	lv := leafVector(t, &v)
	hash := v.Hash()

	remote, err := encodeTimedStamp(5, ContentHash([]byte("7")))
	require.NoError(t, err)
	ord, err := lv.Metric.Merge(remote)
	require.NoError(t, err)
	require.Equal(t, Less, ord)

	err = lv.Accessor.Write([]byte("notjson"))
	require.Error(t, err)
	assert.True(t, IsSerializationError(err))
	assert.Equal(t, 3, v.Get())
	assert.Equal(t, int64(2), v.Time())
	assert.Equal(t, hash, v.Hash())

	// The stored side still wins on the next merge.
	ord, err = leafVector(t, &v).Metric.Merge(remote)
	require.NoError(t, err)
	assert.Equal(t, Less, ord)
}

func TestTimedMetric_MalformedRemote(t *testing.T) {
	v := NewTimedAt("a", 10)
	lv := leafVector(t, &v)

	_, err := lv.Metric.Merge([]byte{0xc1})
	require.Error(t, err)
	assert.True(t, IsSerializationError(err))

	short, err := encodeTimedStamp(1, Hash{})
	require.NoError(t, err)
	_, err = lv.Metric.Merge(short[:len(short)-1])
	assert.True(t, IsSerializationError(err))
}

func TestTimed_SnapshotRestore(t *testing.T) {
	v := NewTimedAt(map[string]int{"x": 1}, 42)
	raw, err := v.Snapshot()
	require.NoError(t, err)

	var got Timed[map[string]int]
	require.NoError(t, got.Restore(raw))

	assert.Equal(t, v.Get(), got.Get())
	assert.Equal(t, v.Time(), got.Time())
	assert.Equal(t, v.Hash(), got.Hash())
}

func TestTimed_RestoreEmptyLeaf(t *testing.T) {
	v := NewTimedAt("keep", 5)
	require.NoError(t, v.Restore(RawLeaf{}))
	assert.Equal(t, "", v.Get())
	assert.Equal(t, int64(0), v.Time())
}

func TestTimed_RestoreShapeMismatch(t *testing.T) {
	var v Timed[int]
	err := v.Restore(RawGroup{})
	require.Error(t, err)
	assert.True(t, IsShapeMismatch(err))
}

func TestTimed_RestoreBadPayload(t *testing.T) {
	var v Timed[int]
	err := v.Restore(RawLeaf{Payload: []byte(`"not a number"`)})
	require.Error(t, err)
	assert.True(t, IsSerializationError(err))
}

func TestImmutable_EqualAgainstOwnMetric(t *testing.T) {
	id, err := NewImmutable("abc")
	require.NoError(t, err)
	lv := leafVector(t, &id)

	stored, err := lv.Metric.Marshal()
	require.NoError(t, err)

	ord, err := lv.Metric.Merge(stored)
	require.NoError(t, err)
	assert.Equal(t, Equal, ord)

	ord, err = lv.Metric.Merge(nil)
	require.NoError(t, err)
	assert.Equal(t, Greater, ord)
}

func TestImmutable_StoredMismatchIsFatal(t *testing.T) {
	other, err := NewImmutable("xyz")
	require.NoError(t, err)
	stored, err := leafVector(t, &other).Metric.Marshal()
	require.NoError(t, err)

	id, err := NewImmutable("abc")
	require.NoError(t, err)
	_, err = leafVector(t, &id).Metric.Merge(stored)
	require.Error(t, err)
	assert.True(t, IsFatal(err))
}

func TestImmutable_LocalMutationIsFatal(t *testing.T) {
	id, err := NewImmutable("abc")
	require.NoError(t, err)
	assert.Equal(t, ContentHash([]byte(`"abc"`)), id.Hash())

	id.Value = "changed"
	_, err = id.StateVector()
	require.Error(t, err)
	assert.True(t, IsFatal(err))
}

func TestImmutable_ZeroValueIsUsable(t *testing.T) {
	var id Immutable[string]
	lv := leafVector(t, &id)
	stored, err := lv.Metric.Marshal()
	require.NoError(t, err)

	id.Value = "late"
	_, err = leafVector(t, &id).Metric.Merge(stored)
	assert.True(t, IsFatal(err), "mutating a persisted zero value is still caught by the stored hash")
}

func TestImmutable_SnapshotRestore(t *testing.T) {
	id, err := NewImmutable(7)
	require.NoError(t, err)
	raw, err := id.Snapshot()
	require.NoError(t, err)

	var got Immutable[int]
	require.NoError(t, got.Restore(raw))
	assert.Equal(t, 7, got.Value)
	assert.Equal(t, id.Hash(), got.Hash())

	got.Value = 8
	_, err = got.StateVector()
	assert.True(t, IsFatal(err), "restored values are sealed")
}
