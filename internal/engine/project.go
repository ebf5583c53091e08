package engine

import (
	"sort"
	"strings"
	"time"

	"rostercore/pkg/domain"
	"rostercore/pkg/schema"
)

// DynamicAccessorPrefix is the path prefix form and table layers use to
// address dynamic fields inside a flat values object.
const DynamicAccessorPrefix = "dynamicFields."

// displayDateLayout is the dd/mm/yyyy format shown in form controls and
// spreadsheet cells; isoDateLayout is the canonical stored representation.
const (
	displayDateLayout = "02/01/2006"
	isoDateLayout     = "2006-01-02"
)

// DynamicFieldName strips the accessor prefix from a values-object key,
// reporting false for non-dynamic keys and malformed accessor paths (empty
// name or nested segments).
func DynamicFieldName(key string) (string, bool) {
	if !strings.HasPrefix(key, DynamicAccessorPrefix) {
		return "", false
	}
	name := strings.TrimPrefix(key, DynamicAccessorPrefix)
	if name == "" || strings.Contains(name, ".") {
		return "", false
	}
	return name, true
}

// SubmissionPayload is the wire-facing split of a submitted values object.
// DynamicFields is nil when no dynamic accessor appeared in the source, so
// serializers omit the sub-object entirely instead of sending an empty one.
type SubmissionPayload struct {
	Core          map[string]any
	DynamicFields map[string]any
}

// Projector converts between UI-facing values objects and wire-facing
// payloads for one (definition snapshot, entity kind) pair.
type Projector struct {
	set          schema.Set
	kind         domain.EntityKind
	coreDateKeys map[string]struct{}
}

// NewProjector builds a projector. coreDateKeys names the date-typed core
// attributes that need display-to-ISO conversion on submit and the inverse
// when seeding a form.
func NewProjector(set schema.Set, kind domain.EntityKind, coreDateKeys ...string) Projector {
	keys := make(map[string]struct{}, len(coreDateKeys))
	for _, key := range coreDateKeys {
		keys[key] = struct{}{}
	}
	return Projector{set: set, kind: kind, coreDateKeys: keys}
}

// Kind returns the entity kind the projector serves.
func (p Projector) Kind() domain.EntityKind { return p.kind }

// Submit splits a flat values object into core attributes and the dynamic
// fields sub-object, applying per-type coercion and the empty-value policy:
// an optional field holding an empty value projects as nil (explicit clear)
// so the server can tell "cleared" from "leave unchanged" (key omitted);
// list-shaped values are always included, even empty, because an empty
// selection is a meaningful state. Accessors whose stripped name has no
// matching definition pass through opaquely for forward compatibility.
func (p Projector) Submit(values map[string]any) SubmissionPayload {
	payload := SubmissionPayload{Core: make(map[string]any, len(values))}
	for key, value := range values {
		if strings.HasPrefix(key, DynamicAccessorPrefix) {
			name, ok := DynamicFieldName(key)
			if !ok {
				// Malformed accessor paths are excluded, not errors.
				continue
			}
			if payload.DynamicFields == nil {
				payload.DynamicFields = make(map[string]any)
			}
			payload.DynamicFields[name] = p.projectDynamic(name, value)
			continue
		}
		if _, isDate := p.coreDateKeys[key]; isDate {
			payload.Core[key] = toISODate(value)
			continue
		}
		payload.Core[key] = value
	}
	return payload
}

func (p Projector) projectDynamic(name string, value any) any {
	def, ok := p.set.Lookup(name)
	if !ok {
		// Field removed from the schema after data was written; carry the
		// value through untouched.
		return value
	}
	spec := def.Spec()
	coerced := spec.Coerce(value)
	if spec.Shape == schema.ShapeList {
		list, _ := coerced.([]string)
		if list == nil {
			return []string{}
		}
		return list
	}
	if def.Type == schema.TypeDate {
		if spec.IsEmpty(coerced) {
			if def.Required {
				return coerced
			}
			return nil
		}
		return toISODate(coerced)
	}
	if !def.Required && spec.IsEmpty(coerced) {
		return nil
	}
	return coerced
}

// Seed is the inverse of Submit: given a persisted record's core attributes
// and physical dynamic bag, it produces the values object a form should be
// initialized with. Stored dynamic values win over declared defaults; dates
// convert from ISO back to display format.
func (p Projector) Seed(core map[string]any, physicalBag map[string]any) map[string]any {
	values := make(map[string]any, len(core)+p.set.Len())
	for key, value := range core {
		if _, isDate := p.coreDateKeys[key]; isDate {
			values[key] = toDisplayDate(value)
			continue
		}
		values[key] = value
	}
	bag := physicalBag
	if p.kind.SharesContactRecord() {
		bag = domain.DenamespaceDynamicFields(physicalBag, p.kind)
	}
	for _, def := range p.set.Ordered() {
		value, ok := bag[def.Name]
		if !ok {
			if def.DefaultValue == nil {
				continue
			}
			value = def.DefaultValue
		}
		if def.Type == schema.TypeDate {
			value = toDisplayDate(value)
		}
		values[DynamicAccessorPrefix+def.Name] = value
	}
	return values
}

// DriftKeys reports physical bag keys that carry this kind's prefix but no
// longer match a declared field. Exact-key lookup is canonical; drift is
// flagged to the caller instead of being silently repaired by prefix
// scanning.
func (p Projector) DriftKeys(physicalBag map[string]any) []string {
	if !p.kind.SharesContactRecord() {
		return nil
	}
	var drifted []string
	for name := range domain.DenamespaceDynamicFields(physicalBag, p.kind) {
		if _, ok := p.set.Lookup(name); !ok {
			drifted = append(drifted, p.kind.Prefix()+name)
		}
	}
	sort.Strings(drifted)
	return drifted
}

// toISODate parses a display-format or already-ISO date string into the
// canonical ISO form. Unparsable values pass through verbatim; validation
// owns the user-facing message.
func toISODate(value any) any {
	s, ok := value.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return value
	}
	s = strings.TrimSpace(s)
	if t, err := time.Parse(isoDateLayout, s); err == nil {
		return t.Format(isoDateLayout)
	}
	if t, err := time.Parse(displayDateLayout, s); err == nil {
		return t.Format(isoDateLayout)
	}
	return s
}

// toDisplayDate converts a canonical ISO date string to display format.
func toDisplayDate(value any) any {
	s, ok := value.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return value
	}
	s = strings.TrimSpace(s)
	if t, err := time.Parse(isoDateLayout, s); err == nil {
		return t.Format(displayDateLayout)
	}
	return s
}
