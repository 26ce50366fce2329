package testutil

import (
	"github.com/roach88/fieldsync/internal/atom"
)

// Flags is a collection of time-ordered booleans keyed by name.
type Flags = atom.OrderedMap[string, atom.Timed[bool], *atom.Timed[bool]]

// Counters is a collection of time-ordered integers keyed by name.
type Counters = atom.OrderedMap[string, atom.Timed[int], *atom.Timed[int]]

// Matrix is a collection of collections: row -> column -> cell.
type Matrix = atom.OrderedMap[int, Counters, *Counters]

// Address is a group with two leaf fields.
type Address struct {
	City atom.Timed[string]
	Zip  atom.Timed[string]
}

func (a *Address) members() []atom.Member {
	return []atom.Member{
		atom.M("city", &a.City),
		atom.M("zip", &a.Zip),
	}
}

func (a *Address) StateVector() (atom.StateVector, error) { return atom.GroupStateVector(a.members()...) }
func (a *Address) Snapshot() (atom.RawAtomic, error)      { return atom.GroupSnapshot(a.members()...) }
func (a *Address) Restore(raw atom.RawAtomic) error       { return atom.RestoreGroup(raw, a.members()...) }
func (a *Address) Shape() atom.Shape                      { return atom.GroupShapeOf(a.members()...) }

// Profile exercises every shape: leaves of both metric kinds, a nested
// group and a collection.
type Profile struct {
	ID      atom.Immutable[string]
	Name    atom.Timed[string]
	Age     atom.Timed[int]
	Address Address
	Flags   Flags
}

func (p *Profile) members() []atom.Member {
	return []atom.Member{
		atom.M("id", &p.ID),
		atom.M("name", &p.Name),
		atom.M("age", &p.Age),
		atom.M("address", &p.Address),
		atom.M("flags", &p.Flags),
	}
}

func (p *Profile) StateVector() (atom.StateVector, error) { return atom.GroupStateVector(p.members()...) }
func (p *Profile) Snapshot() (atom.RawAtomic, error)      { return atom.GroupSnapshot(p.members()...) }
func (p *Profile) Restore(raw atom.RawAtomic) error       { return atom.RestoreGroup(raw, p.members()...) }
func (p *Profile) Shape() atom.Shape                      { return atom.GroupShapeOf(p.members()...) }

// People is a collection of groups, each with its own sub-collection.
type People = atom.OrderedMap[string, Profile, *Profile]

// NewProfile returns a profile stamped from clock.
func NewProfile(clock *DeterministicClock, id, name string, age int) Profile {
	immutableID, err := atom.NewImmutable(id)
	if err != nil {
		panic(err)
	}
	p := Profile{
		ID:   immutableID,
		Name: atom.NewTimedAt(name, clock.Next()),
		Age:  atom.NewTimedAt(age, clock.Next()),
	}
	p.Address.City = atom.NewTimedAt("", clock.Next())
	p.Address.Zip = atom.NewTimedAt("", clock.Next())
	return p
}
