package schema

// ColumnMeta is the single discriminated description of how a dynamic field
// renders and edits as a table column. It is constructed once per definition
// from the taxonomy registry so the table, bulk editor, and exporter all see
// the same contract instead of hand-assembled per-call-site bags.
type ColumnMeta struct {
	Key      string     `json:"key"`
	Header   string     `json:"header"`
	Type     FieldType  `json:"type"`
	Shape    ValueShape `json:"shape"`
	Required bool       `json:"required"`
	Options  []string   `json:"options,omitempty"`
	Multiple bool       `json:"multiple,omitempty"`
	Upload   bool       `json:"upload,omitempty"`
}

// Column derives the table column metadata for a definition.
func Column(def FieldDefinition) ColumnMeta {
	spec := def.Spec()
	header := def.ColumnHeader
	if header == "" {
		header = def.Label
	}
	meta := ColumnMeta{
		Key:      def.Name,
		Header:   header,
		Type:     def.Type,
		Shape:    spec.Shape,
		Required: def.Required,
		Upload:   spec.Upload,
	}
	if spec.Choices {
		meta.Options = append([]string(nil), def.Choices...)
		meta.Multiple = spec.Shape == ShapeList
	}
	return meta
}

// Columns derives column metadata for every definition, honoring the
// reconciled explicit order when one is supplied.
func Columns(set Set, order FieldOrder) []ColumnMeta {
	defs := order.Apply(set)
	out := make([]ColumnMeta, len(defs))
	for i, def := range defs {
		out[i] = Column(def)
	}
	return out
}
