package schema

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownField indicates a lookup for a field name absent from the set.
var ErrUnknownField = errors.New("schema: unknown field name")

// FieldDefinition declares one dynamic field for an (organization,
// entity-kind) pair. The engine treats the whole definition set as an
// immutable snapshot per render cycle; administrators mutate it through the
// configuration surface, never through this package.
type FieldDefinition struct {
	Name         string    `json:"name"`
	Label        string    `json:"label"`
	Type         FieldType `json:"type"`
	Required     bool      `json:"required"`
	Choices      []string  `json:"choices,omitempty"`
	DefaultValue any       `json:"default_value,omitempty"`
	// ColumnHeader overrides the table column header when it differs from
	// Label; spreadsheet header matching registers it as a candidate too.
	ColumnHeader string `json:"column_header,omitempty"`
}

// Validate checks the structural invariants of a single definition.
func (d FieldDefinition) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("field name must not be empty")
	}
	if strings.TrimSpace(d.Label) == "" {
		return fmt.Errorf("field %s: label must not be empty", d.Name)
	}
	spec, ok := Spec(d.Type)
	if !ok {
		return fmt.Errorf("field %s: unknown type %q", d.Name, d.Type)
	}
	if spec.Choices && len(d.Choices) == 0 {
		return fmt.Errorf("field %s: type %s requires a non-empty choice list", d.Name, d.Type)
	}
	return nil
}

// Spec returns the taxonomy contract for the definition's type.
func (d FieldDefinition) Spec() TypeSpec {
	return MustSpec(d.Type)
}

// Set is an ordered, name-indexed snapshot of field definitions for one
// entity-kind. A Set is read-only after construction.
type Set struct {
	ordered []FieldDefinition
	byName  map[string]int
}

// NewSet builds a Set, validating each definition and the per-kind name
// uniqueness invariant.
func NewSet(defs []FieldDefinition) (Set, error) {
	set := Set{
		ordered: make([]FieldDefinition, 0, len(defs)),
		byName:  make(map[string]int, len(defs)),
	}
	for _, def := range defs {
		if err := def.Validate(); err != nil {
			return Set{}, err
		}
		if _, exists := set.byName[def.Name]; exists {
			return Set{}, fmt.Errorf("duplicate field name %s", def.Name)
		}
		set.byName[def.Name] = len(set.ordered)
		set.ordered = append(set.ordered, def)
	}
	return set, nil
}

// MustSet builds a Set and panics on invalid definitions; intended for tests
// and fixtures.
func MustSet(defs []FieldDefinition) Set {
	set, err := NewSet(defs)
	if err != nil {
		panic(err)
	}
	return set
}

// Len reports the number of definitions in the set.
func (s Set) Len() int { return len(s.ordered) }

// Lookup returns the definition with the given name.
func (s Set) Lookup(name string) (FieldDefinition, bool) {
	idx, ok := s.byName[name]
	if !ok {
		return FieldDefinition{}, false
	}
	return s.ordered[idx], true
}

// Ordered returns the definitions in declaration order. The slice is a copy.
func (s Set) Ordered() []FieldDefinition {
	out := make([]FieldDefinition, len(s.ordered))
	copy(out, s.ordered)
	return out
}

// Names returns the field names in declaration order.
func (s Set) Names() []string {
	out := make([]string, len(s.ordered))
	for i, def := range s.ordered {
		out[i] = def.Name
	}
	return out
}

// FieldOrder is an optional explicit ordering of field names for an
// entity-kind. It is stored independently of the definitions, so it must be
// reconciled against the current set every time it is read.
type FieldOrder []string

// Reconcile drops names no longer present in the set and appends definitions
// missing from the order in declaration order. The result always covers the
// set exactly once.
func (o FieldOrder) Reconcile(set Set) []string {
	seen := make(map[string]bool, set.Len())
	out := make([]string, 0, set.Len())
	for _, name := range o {
		if _, ok := set.Lookup(name); !ok || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	for _, name := range set.Names() {
		if !seen[name] {
			out = append(out, name)
		}
	}
	return out
}

// Apply returns the set's definitions arranged by the reconciled order.
func (o FieldOrder) Apply(set Set) []FieldDefinition {
	names := o.Reconcile(set)
	out := make([]FieldDefinition, 0, len(names))
	for _, name := range names {
		if def, ok := set.Lookup(name); ok {
			out = append(out, def)
		}
	}
	return out
}
