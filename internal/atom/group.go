package atom

// Member names one field of a hand-written group type.
//
// A group type lists its fields once and derives all four Synchronizable
// methods from that list:
//
//	func (p *Profile) members() []atom.Member {
//		return []atom.Member{atom.M("name", &p.Name), atom.M("tags", &p.Tags)}
//	}
//	func (p *Profile) Shape() atom.Shape { return atom.GroupShapeOf(p.members()...) }
type Member struct {
	Name  string
	Value Synchronizable
}

// M is a shorthand for Member construction.
func M(name string, v Synchronizable) Member {
	return Member{Name: name, Value: v}
}

// GroupShapeOf returns the group shape described by members.
func GroupShapeOf(members ...Member) Shape {
	fields := make([]FieldShape, len(members))
	for i, m := range members {
		fields[i] = Field(m.Name, m.Value.Shape())
	}
	return GroupShape{Fields: fields}
}

// GroupStateVector collects the state vectors of members.
func GroupStateVector(members ...Member) (StateVector, error) {
	fields := make([]NamedVector, len(members))
	for i, m := range members {
		sv, err := m.Value.StateVector()
		if err != nil {
			return nil, err
		}
		fields[i] = NamedVector{Name: m.Name, Vector: sv}
	}
	return GroupVector{Fields: fields}, nil
}

// GroupSnapshot collects the snapshots of members.
func GroupSnapshot(members ...Member) (RawAtomic, error) {
	raw := make(RawGroup, len(members))
	for _, m := range members {
		child, err := m.Value.Snapshot()
		if err != nil {
			return nil, err
		}
		raw[m.Name] = child
	}
	return raw, nil
}

// RestoreGroup restores each member from its entry in raw. Members absent
// from raw keep their zero value.
func RestoreGroup(raw RawAtomic, members ...Member) error {
	g, ok := raw.(RawGroup)
	if !ok {
		return NewShapeMismatchError("group", raw)
	}
	for _, m := range members {
		child, ok := g[m.Name]
		if !ok {
			continue
		}
		if err := m.Value.Restore(child); err != nil {
			return err
		}
	}
	return nil
}
