package atom

import (
	"fmt"
	"regexp"
	"strings"
)

// Shape is a sealed interface describing the static structure of a
// synchronizable type. Only LeafShape, GroupShape and CollectionShape
// implement it.
//
// A Shape is computed once per type and never mutated. The store adapter
// derives table layout from it without inspecting values.
type Shape interface {
	shape()
	String() string
}

// LeafShape is a single value carrying its own merge metric.
type LeafShape struct{}

func (LeafShape) shape() {}

func (LeafShape) String() string { return "leaf" }

// FieldShape is one named child of a GroupShape.
type FieldShape struct {
	Name  string
	Shape Shape
}

// GroupShape is a fixed, statically known set of named children.
// Field order is declaration order.
type GroupShape struct {
	Fields []FieldShape
}

func (GroupShape) shape() {}

func (g GroupShape) String() string {
	parts := make([]string, len(g.Fields))
	for i, f := range g.Fields {
		parts[i] = f.Name + ":" + f.Shape.String()
	}
	return "group{" + strings.Join(parts, ",") + "}"
}

// LeafFields returns the names of fields whose shape is a leaf, in declaration order.
func (g GroupShape) LeafFields() []string {
	var names []string
	for _, f := range g.Fields {
		if _, ok := f.Shape.(LeafShape); ok {
			names = append(names, f.Name)
		}
	}
	return names
}

// CollectionShape is a homogeneous, dynamically keyed set of children.
type CollectionShape struct {
	Elem Shape
}

func (CollectionShape) shape() {}

func (c CollectionShape) String() string {
	return "collection[" + c.Elem.String() + "]"
}

// Leaf returns the leaf shape.
func Leaf() Shape {
	return LeafShape{}
}

// Field is a shorthand for FieldShape construction.
// Example: Group(Field("name", Leaf()), Field("tags", Collection(Leaf())))
func Field(name string, s Shape) FieldShape {
	return FieldShape{Name: name, Shape: s}
}

// Group returns a group shape with the given fields.
func Group(fields ...FieldShape) Shape {
	return GroupShape{Fields: fields}
}

// Collection returns a collection shape with the given element shape.
func Collection(elem Shape) Shape {
	return CollectionShape{Elem: elem}
}

var namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidName reports whether name can be embedded in a table or column identifier.
func ValidName(name string) bool {
	return namePattern.MatchString(name)
}

// ValidateShape checks that every group field has a usable, unique name.
func ValidateShape(s Shape) error {
	switch sh := s.(type) {
	case LeafShape:
		return nil
	case GroupShape:
		seen := make(map[string]bool, len(sh.Fields))
		for _, f := range sh.Fields {
			if !ValidName(f.Name) {
				return fmt.Errorf("invalid field name %q", f.Name)
			}
			if seen[f.Name] {
				return fmt.Errorf("duplicate field name %q", f.Name)
			}
			seen[f.Name] = true
			if f.Shape == nil {
				return fmt.Errorf("field %q has no shape", f.Name)
			}
			if err := ValidateShape(f.Shape); err != nil {
				return fmt.Errorf("field %q: %w", f.Name, err)
			}
		}
		return nil
	case CollectionShape:
		if sh.Elem == nil {
			return fmt.Errorf("collection has no element shape")
		}
		return ValidateShape(sh.Elem)
	default:
		return fmt.Errorf("unsupported shape %T", s)
	}
}
