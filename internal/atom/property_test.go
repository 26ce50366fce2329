package atom

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestProperty_TimedMergeConverges(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("both sides agree on the winner", prop.ForAll(
		func(ta, tb int64, va, vb string) bool {
			a := NewTimedAt(va, ta)
			b := NewTimedAt(vb, tb)
			sa, err := a.StateVector()
			if err != nil {
				return false
			}
			sb, err := b.StateVector()
			if err != nil {
				return false
			}
			la, lb := sa.(*LeafVector), sb.(*LeafVector)

			pa, err := la.Accessor.Read()
			if err != nil {
				return false
			}
			pb, err := lb.Accessor.Read()
			if err != nil {
				return false
			}

			ma, err := la.Metric.Marshal()
			if err != nil {
				return false
			}
			mb, err := lb.Metric.Marshal()
			if err != nil {
				return false
			}
			ordA, err := la.Metric.Merge(mb)
			if err != nil {
				return false
			}
			ordB, err := lb.Metric.Merge(ma)
			if err != nil {
				return false
			}
			if ordA == Less && la.Accessor.Write(pb) != nil {
				return false
			}
			if ordB == Less && lb.Accessor.Write(pa) != nil {
				return false
			}
			return ordA == -ordB && a.Time() == b.Time() && a.Hash() == b.Hash() && a.Get() == b.Get()
		},
		gen.Int64Range(1, 1000),
		gen.Int64Range(1, 1000),
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

func TestProperty_KeyRoundTrip(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("string keys decode to themselves", prop.ForAll(
		func(k string) bool {
			index, err := EncodeKey(k)
			if err != nil {
				return false
			}
			got, err := DecodeKey[string](index)
			return err == nil && got == k && index != "0"
		},
		gen.AlphaString(),
	))

	properties.Property("int keys decode to themselves", prop.ForAll(
		func(k int64) bool {
			index, err := EncodeKey(k)
			if err != nil {
				return false
			}
			got, err := DecodeKey[int64](index)
			return err == nil && got == k
		},
		gen.Int64(),
	))

	properties.TestingRun(t)
}

func TestProperty_OrderedMapSnapshotRoundTrip(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("restore(snapshot(m)) has the same entries", prop.ForAll(
		func(keys []string, ts int64) bool {
			var m OrderedMap[string, Timed[int], *Timed[int]]
			for i, k := range keys {
				m.Insert(k, NewTimedAt(i, ts))
			}
			raw, err := m.Snapshot()
			if err != nil {
				return false
			}
			var got OrderedMap[string, Timed[int], *Timed[int]]
			if err := got.Restore(raw); err != nil {
				return false
			}
			if got.Len() != m.Len() {
				return false
			}
			for _, k := range m.Keys() {
				want, _ := m.Get(k)
				have, ok := got.Get(k)
				if !ok || have.Get() != want.Get() || have.Time() != want.Time() || have.Hash() != want.Hash() {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.AlphaString()),
		gen.Int64Range(1, 1<<40),
	))

	properties.TestingRun(t)
}
