package engine

import (
	"strings"

	"rostercore/pkg/schema"
)

// HeaderMatcher maps free-text spreadsheet column headers to internal field
// keys. Candidates are the field label, the field name, and the table column
// header when it differs; both sides are normalized (trim, lowercase) before
// comparison and the first registration wins on collision.
type HeaderMatcher struct {
	byCandidate map[string]string
}

// NewHeaderMatcher builds a matcher from the definition snapshot. extra maps
// additional candidate header strings (core attribute labels, legacy
// spellings) to field keys and is registered after the definitions, so
// definition candidates win collisions.
func NewHeaderMatcher(set schema.Set, extra map[string]string) HeaderMatcher {
	m := HeaderMatcher{byCandidate: make(map[string]string, set.Len()*3+len(extra))}
	for _, def := range set.Ordered() {
		m.register(def.Label, def.Name)
		m.register(def.Name, def.Name)
		if def.ColumnHeader != "" {
			m.register(def.ColumnHeader, def.Name)
		}
	}
	for candidate, key := range extra {
		m.register(candidate, key)
	}
	return m
}

func (m HeaderMatcher) register(candidate, key string) {
	normalized := normalizeHeader(candidate)
	if normalized == "" {
		return
	}
	if _, exists := m.byCandidate[normalized]; exists {
		return
	}
	m.byCandidate[normalized] = key
}

// Match resolves a single header cell to a field key.
func (m HeaderMatcher) Match(header string) (string, bool) {
	key, ok := m.byCandidate[normalizeHeader(header)]
	return key, ok
}

// MatchRow resolves a raw header row to a column-index-to-key map, built
// once per import. Headers with no normalized match are omitted; their
// columns are ignored, not errors.
func (m HeaderMatcher) MatchRow(headers []string) map[int]string {
	out := make(map[int]string, len(headers))
	for i, header := range headers {
		if key, ok := m.Match(header); ok {
			out[i] = key
		}
	}
	return out
}

func normalizeHeader(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
