// Package engine implements the dynamic field schema engine: validation
// schema generation, record projection, spreadsheet header matching and
// import, bulk update fan-out, and the asset upload state machine. Every
// entry point is a pure function of (definitions, values, entity kind) plus
// explicit collaborator interfaces, so the package carries no ambient state.
package engine

import (
	"fmt"
	"strings"

	"rostercore/pkg/schema"
)

// FieldError reports one failing field. Message is phrased against the
// field's human label, never its internal name.
type FieldError struct {
	Name    string `json:"name"`
	Label   string `json:"label"`
	Message string `json:"message"`
}

func (e FieldError) Error() string { return e.Message }

// ValidationError aggregates every failing field of one validation pass.
// Validation is field-scoped and recoverable; it blocks submission but is
// never treated as a system error.
type ValidationError struct {
	Fields []FieldError
}

func (e ValidationError) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Message
	}
	return strings.Join(msgs, "; ")
}

// ByName returns the error recorded for a field, if any.
func (e ValidationError) ByName(name string) (FieldError, bool) {
	for _, f := range e.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldError{}, false
}

// Validator validates a values object against a definition snapshot. Fields
// are validated independently, all failures collected, and values coerced
// per the taxonomy. An empty snapshot accepts any input unchanged.
type Validator struct {
	set schema.Set
}

// NewValidator builds a validator from the definition snapshot.
func NewValidator(set schema.Set) Validator {
	return Validator{set: set}
}

// Validate coerces and validates the values keyed by unprefixed field name.
// On success it returns the coerced values; on failure a ValidationError
// listing every offending field. Keys without a matching definition pass
// through untouched.
func (v Validator) Validate(values map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(values))
	for key, value := range values {
		out[key] = value
	}
	var failures []FieldError
	for _, def := range v.set.Ordered() {
		raw, present := values[def.Name]
		spec := def.Spec()
		coerced := spec.Coerce(raw)
		if present {
			out[def.Name] = coerced
		}
		if def.Required {
			if err := spec.CheckRequired(coerced); err != nil {
				failures = append(failures, FieldError{
					Name:    def.Name,
					Label:   def.Label,
					Message: fmt.Sprintf("%s %s", def.Label, err.Error()),
				})
			}
			continue
		}
		// Optional fields accept emptiness; a non-empty value still has to
		// satisfy the type rule so an unparsable number surfaces here
		// instead of crashing a later coercion.
		if present && !spec.IsEmpty(coerced) {
			if err := spec.CheckRequired(coerced); err != nil {
				failures = append(failures, FieldError{
					Name:    def.Name,
					Label:   def.Label,
					Message: fmt.Sprintf("%s %s", def.Label, err.Error()),
				})
			}
		}
	}
	if len(failures) > 0 {
		return nil, ValidationError{Fields: failures}
	}
	return out, nil
}
