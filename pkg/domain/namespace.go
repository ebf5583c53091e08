package domain

import "strings"

// NamespaceSeparator joins an entity-kind prefix to a dynamic field name in
// the physical bag. The prefix scheme is a typed constant per kind so a new
// kind cannot silently collide with an existing one.
const NamespaceSeparator = "__"

// Prefix returns the stable namespacing prefix for the kind, including the
// separator. Prefix values are never reused across kinds within an
// organization.
func (k EntityKind) Prefix() string {
	return string(k) + NamespaceSeparator
}

// NamespaceDynamicFields writes every key of bag under the kind's prefix. An
// empty or absent bag yields nil, never an empty map, so namespacing an
// absent value cannot manufacture a spurious sub-object on the wire.
func NamespaceDynamicFields(bag map[string]any, kind EntityKind) map[string]any {
	if len(bag) == 0 {
		return nil
	}
	prefix := kind.Prefix()
	out := make(map[string]any, len(bag))
	for name, value := range bag {
		out[prefix+name] = value
	}
	return out
}

// DenamespaceDynamicFields selects the keys of the physical bag owned by the
// requested kind and strips the prefix. Keys without a matching prefix,
// including those owned by another kind sharing the record, are dropped
// silently; an absent bag yields an empty mapping, never a panic.
func DenamespaceDynamicFields(bag map[string]any, kind EntityKind) map[string]any {
	out := make(map[string]any, len(bag))
	prefix := kind.Prefix()
	for key, value := range bag {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		name := strings.TrimPrefix(key, prefix)
		if name == "" {
			continue
		}
		out[name] = value
	}
	return out
}

// MergeNamespaced overlays a namespaced update onto an existing physical bag.
// Keys holding nil are explicit clears and remove the stored value; other
// kinds' keys in the existing bag are untouched.
func MergeNamespaced(existing, update map[string]any) map[string]any {
	if len(existing) == 0 && len(update) == 0 {
		return nil
	}
	out := make(map[string]any, len(existing)+len(update))
	for key, value := range existing {
		out[key] = value
	}
	for key, value := range update {
		if value == nil {
			delete(out, key)
			continue
		}
		out[key] = value
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
