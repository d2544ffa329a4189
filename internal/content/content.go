// Package content defines the identity model shared by every migration stage:
// content types, references to source items and hierarchical locations.
package content

import (
	"fmt"
	"strings"
)

// Type identifies a migratable content type.
type Type string

const (
	TypeUser       Type = "users"
	TypeGroup      Type = "groups"
	TypeProject    Type = "projects"
	TypeDataSource Type = "datasources"
	TypeWorkbook   Type = "workbooks"
)

// dependencies lists, per content type, the types whose destination objects
// must exist before it can be published.
var dependencies = map[Type][]Type{
	TypeUser:       nil,
	TypeGroup:      nil,
	TypeProject:    {TypeUser, TypeGroup},
	TypeDataSource: {TypeProject},
	TypeWorkbook:   {TypeProject, TypeDataSource},
}

// DefaultOrder returns the canonical migration order.
func DefaultOrder() []Type {
	return []Type{TypeUser, TypeGroup, TypeProject, TypeDataSource, TypeWorkbook}
}

// Known reports whether t is a supported content type.
func Known(t Type) bool {
	_, ok := dependencies[t]
	return ok
}

// DependsOn returns the content types t depends on.
func DependsOn(t Type) []Type {
	return append([]Type(nil), dependencies[t]...)
}

// ParseType normalizes a user supplied content type name.
func ParseType(raw string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(raw)))
	switch t {
	case "user":
		t = TypeUser
	case "group":
		t = TypeGroup
	case "project":
		t = TypeProject
	case "datasource", "data_source", "data_sources", "data-sources":
		t = TypeDataSource
	case "workbook":
		t = TypeWorkbook
	}
	if !Known(t) {
		return "", fmt.Errorf("unknown content type %q", raw)
	}
	return t, nil
}

// ValidateOrder checks that every type in order appears after the types it
// depends on, when those are part of the same order. Types absent from the
// order are assumed to exist at the destination already.
func ValidateOrder(order []Type) error {
	pos := make(map[Type]int, len(order))
	for i, t := range order {
		if !Known(t) {
			return fmt.Errorf("unknown content type %q", t)
		}
		if _, dup := pos[t]; dup {
			return fmt.Errorf("content type %q listed more than once", t)
		}
		pos[t] = i
	}
	for i, t := range order {
		for _, dep := range dependencies[t] {
			if j, ok := pos[dep]; ok && j > i {
				return fmt.Errorf("content type %q must be migrated after %q", t, dep)
			}
		}
	}
	return nil
}

// Reference is the stable identity of a source content item.
// Equality and lookup are by ID.
type Reference struct {
	ID       string   `json:"id" yaml:"id"`
	Name     string   `json:"name" yaml:"name"`
	Location Location `json:"location" yaml:"location"`
}

// Same reports whether r and other identify the same item.
func (r Reference) Same(other Reference) bool { return r.ID == other.ID }

func (r Reference) String() string {
	if r.Location.IsZero() {
		return fmt.Sprintf("%s (%s)", r.Name, r.ID)
	}
	return fmt.Sprintf("%s (%s)", r.Location, r.ID)
}

// Item is one migratable unit pulled from a source.
type Item struct {
	Reference  Reference         `json:"reference" yaml:"reference"`
	Owner      string            `json:"owner,omitempty" yaml:"owner,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty"`
	// Definition holds an embedded document (e.g. a workbook XML definition).
	Definition []byte `json:"definition,omitempty" yaml:"definition,omitempty"`
}

// Clone returns a deep copy so transformers can mutate freely.
func (it Item) Clone() Item {
	out := it
	if it.Attributes != nil {
		out.Attributes = make(map[string]string, len(it.Attributes))
		for k, v := range it.Attributes {
			out.Attributes[k] = v
		}
	}
	if it.Definition != nil {
		out.Definition = append([]byte(nil), it.Definition...)
	}
	return out
}
