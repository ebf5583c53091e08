// Package schema defines the closed dynamic field type taxonomy and the
// tenant-declared field definitions built on top of it. Every downstream
// surface (form validation, table columns, bulk editing, spreadsheet import)
// derives its behaviour from the per-type contracts registered here, so
// adding a type means adding one registry row, never touching consumers.
package schema

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FieldType identifies one member of the closed dynamic field taxonomy.
type FieldType string

// Supported field type identifiers. The values are stable wire tags shared
// with organization configuration payloads.
const (
	// TypeText is a free-form single-line string field.
	TypeText FieldType = "TEXT"
	// TypeEmail is a string field rendered and imported as an email address.
	TypeEmail FieldType = "EMAIL"
	// TypePhone is a string field holding a phone number.
	TypePhone FieldType = "PHONE"
	// TypeAddress is a string field holding a postal address.
	TypeAddress FieldType = "ADDRESS"
	// TypeLink is a string field holding a URL.
	TypeLink FieldType = "LINK"
	// TypeNumber is a numeric field accepting any finite value.
	TypeNumber FieldType = "NUMBER"
	// TypeMoney is a numeric field with a floor of zero.
	TypeMoney FieldType = "MONEY"
	// TypeDate is a calendar date stored as an ISO 8601 string.
	TypeDate FieldType = "DATE"
	// TypeTime is a wall-clock time stored as an HH:MM string.
	TypeTime FieldType = "TIME"
	// TypeSelect is a single choice from a declared option list.
	TypeSelect FieldType = "SELECT"
	// TypeMultiSelect is an ordered multi-choice from a declared option list.
	TypeMultiSelect FieldType = "MULTI_SELECT"
	// TypeCheckbox is a boolean field.
	TypeCheckbox FieldType = "CHECKBOX"
	// TypeImage is an uploaded image referenced by URL.
	TypeImage FieldType = "IMAGE"
	// TypeFile is an uploaded document referenced by URL.
	TypeFile FieldType = "FILE"
)

// ValueShape describes the canonical in-memory shape of a field value.
type ValueShape string

const (
	// ShapeString indicates the canonical value is a string.
	ShapeString ValueShape = "string"
	// ShapeNumber indicates the canonical value is a float64 (or raw string
	// when coercion could not parse it; validation reports it).
	ShapeNumber ValueShape = "number"
	// ShapeBool indicates the canonical value is a bool.
	ShapeBool ValueShape = "bool"
	// ShapeList indicates the canonical value is a []string.
	ShapeList ValueShape = "list"
)

// TypeSpec fixes the three per-type contracts every other component relies
// on: the empty-value predicate, the raw-input coercion, and the
// required-value rule. Coercion never fails; an unparsable input is carried
// through verbatim so validation can attribute the problem to the field.
type TypeSpec struct {
	Type    FieldType
	Shape   ValueShape
	Choices bool // requires a non-empty choice list on the definition
	Upload  bool // value is produced by the asset upload flow

	// IsEmpty reports whether the value counts as "no value" for this type.
	IsEmpty func(value any) bool
	// Coerce converts a raw external representation (form control value,
	// spreadsheet cell) into the canonical in-memory value.
	Coerce func(raw any) any
	// CheckRequired validates an already-coerced value against the type's
	// required rule. The message omits the field label; callers prepend it.
	CheckRequired func(value any) error
}

var typeRegistry = map[FieldType]TypeSpec{
	TypeText:        stringSpec(TypeText),
	TypeEmail:       stringSpec(TypeEmail),
	TypePhone:       stringSpec(TypePhone),
	TypeAddress:     stringSpec(TypeAddress),
	TypeLink:        stringSpec(TypeLink),
	TypeDate:        stringSpec(TypeDate),
	TypeTime:        stringSpec(TypeTime),
	TypeNumber:      numberSpec(TypeNumber, nil),
	TypeMoney:       numberSpec(TypeMoney, floorPtr(0)),
	TypeSelect:      selectSpec(),
	TypeMultiSelect: multiSelectSpec(),
	TypeCheckbox:    checkboxSpec(),
	TypeImage:       uploadSpec(TypeImage),
	TypeFile:        uploadSpec(TypeFile),
}

// KnownTypes returns the registered field types in stable declaration order.
func KnownTypes() []FieldType {
	return []FieldType{
		TypeText, TypeEmail, TypePhone, TypeAddress, TypeLink,
		TypeNumber, TypeMoney, TypeDate, TypeTime,
		TypeSelect, TypeMultiSelect, TypeCheckbox, TypeImage, TypeFile,
	}
}

// IsKnownType reports whether the provided type tag is registered.
func IsKnownType(t FieldType) bool {
	_, ok := typeRegistry[t]
	return ok
}

// Spec returns the taxonomy contract for the given type.
func Spec(t FieldType) (TypeSpec, bool) {
	spec, ok := typeRegistry[t]
	return spec, ok
}

// MustSpec returns the taxonomy contract for a type known to be registered.
// It panics on unknown types and is intended for registry-driven callers
// that have already validated the definition.
func MustSpec(t FieldType) TypeSpec {
	spec, ok := typeRegistry[t]
	if !ok {
		panic(fmt.Errorf("schema: unknown field type %s", t))
	}
	return spec
}

func floorPtr(v float64) *float64 { return &v }

func stringSpec(t FieldType) TypeSpec {
	return TypeSpec{
		Type:          t,
		Shape:         ShapeString,
		IsEmpty:       stringEmpty,
		Coerce:        coerceString,
		CheckRequired: requireNonEmptyString,
	}
}

func uploadSpec(t FieldType) TypeSpec {
	spec := stringSpec(t)
	spec.Upload = true
	return spec
}

func numberSpec(t FieldType, floor *float64) TypeSpec {
	return TypeSpec{
		Type:    t,
		Shape:   ShapeNumber,
		IsEmpty: numberEmpty,
		Coerce:  coerceNumber,
		CheckRequired: func(value any) error {
			n, ok := asFloat(value)
			if !ok || math.IsNaN(n) || math.IsInf(n, 0) {
				return fmt.Errorf("must be a number")
			}
			if floor != nil && n < *floor {
				return fmt.Errorf("must be at least %s", strconv.FormatFloat(*floor, 'f', -1, 64))
			}
			return nil
		},
	}
}

func selectSpec() TypeSpec {
	spec := stringSpec(TypeSelect)
	spec.Choices = true
	return spec
}

func multiSelectSpec() TypeSpec {
	return TypeSpec{
		Type:    TypeMultiSelect,
		Shape:   ShapeList,
		Choices: true,
		IsEmpty: func(value any) bool {
			return len(asStringList(value)) == 0
		},
		Coerce: func(raw any) any {
			return asStringList(raw)
		},
		CheckRequired: func(value any) error {
			if len(asStringList(value)) == 0 {
				return fmt.Errorf("requires at least one selection")
			}
			return nil
		},
	}
}

func checkboxSpec() TypeSpec {
	return TypeSpec{
		Type:  TypeCheckbox,
		Shape: ShapeBool,
		IsEmpty: func(value any) bool {
			b, _ := value.(bool)
			return !b
		},
		Coerce: coerceBool,
		CheckRequired: func(value any) error {
			if b, _ := value.(bool); !b {
				return fmt.Errorf("must be checked")
			}
			return nil
		},
	}
}

func stringEmpty(value any) bool {
	if value == nil {
		return true
	}
	s, ok := value.(string)
	if !ok {
		return false
	}
	return strings.TrimSpace(s) == ""
}

func numberEmpty(value any) bool {
	if value == nil {
		return true
	}
	if s, ok := value.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

func coerceString(raw any) any {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

// coerceNumber parses numeric strings and keeps the raw string when parsing
// fails; validation reports the problem with the field label attached.
func coerceNumber(raw any) any {
	switch v := raw.(type) {
	case nil:
		return nil
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return nil
		}
		if n, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return n
		}
		return v
	default:
		if n, ok := asFloat(v); ok {
			return n
		}
		return v
	}
}

func coerceBool(raw any) any {
	switch v := raw.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "1", "v", "x":
			return true
		default:
			return false
		}
	default:
		return false
	}
}

func requireNonEmptyString(value any) error {
	if stringEmpty(value) {
		return fmt.Errorf("is required")
	}
	return nil
}

func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint64:
		return float64(v), true
	default:
		return 0, false
	}
}

// asStringList treats a scalar string as a one-element list so spreadsheet
// cells and single-select form controls feed multi-selects without special
// casing at call sites. Blank entries are dropped.
func asStringList(value any) []string {
	appendNonBlank := func(dst []string, s string) []string {
		if strings.TrimSpace(s) == "" {
			return dst
		}
		return append(dst, s)
	}
	switch v := value.(type) {
	case nil:
		return nil
	case []string:
		var out []string
		for _, s := range v {
			out = appendNonBlank(out, s)
		}
		return out
	case []any:
		var out []string
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = appendNonBlank(out, s)
			} else if item != nil {
				out = appendNonBlank(out, fmt.Sprintf("%v", item))
			}
		}
		return out
	case string:
		return appendNonBlank(nil, v)
	default:
		return appendNonBlank(nil, fmt.Sprintf("%v", v))
	}
}
