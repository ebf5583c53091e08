package schema

import (
	"strings"
	"testing"
)

func sampleDefs() []FieldDefinition {
	return []FieldDefinition{
		{Name: "shirtSize", Label: "Shirt Size", Type: TypeSelect, Choices: []string{"S", "M", "L"}},
		{Name: "allergies", Label: "Allergies", Type: TypeMultiSelect, Choices: []string{"nuts", "dairy"}},
		{Name: "nickname", Label: "Nickname", Type: TypeText},
		{Name: "fee", Label: "Fee", Type: TypeMoney, Required: true},
	}
}

func TestDefinitionValidate(t *testing.T) {
	cases := []struct {
		name    string
		def     FieldDefinition
		wantErr string
	}{
		{"valid text", FieldDefinition{Name: "a", Label: "A", Type: TypeText}, ""},
		{"missing name", FieldDefinition{Label: "A", Type: TypeText}, "name must not be empty"},
		{"missing label", FieldDefinition{Name: "a", Type: TypeText}, "label must not be empty"},
		{"unknown type", FieldDefinition{Name: "a", Label: "A", Type: "RATING"}, "unknown type"},
		{"select without choices", FieldDefinition{Name: "a", Label: "A", Type: TypeSelect}, "non-empty choice list"},
		{"multi-select without choices", FieldDefinition{Name: "a", Label: "A", Type: TypeMultiSelect}, "non-empty choice list"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.def.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error = %v, want containing %q", err, tc.wantErr)
			}
		})
	}
}

func TestNewSetRejectsDuplicateNames(t *testing.T) {
	defs := append(sampleDefs(), FieldDefinition{Name: "nickname", Label: "Nick", Type: TypeText})
	if _, err := NewSet(defs); err == nil || !strings.Contains(err.Error(), "duplicate field name") {
		t.Fatalf("error = %v, want duplicate field name", err)
	}
}

func TestSetLookupAndOrder(t *testing.T) {
	set := MustSet(sampleDefs())
	if set.Len() != 4 {
		t.Fatalf("Len = %d, want 4", set.Len())
	}
	def, ok := set.Lookup("fee")
	if !ok || def.Type != TypeMoney {
		t.Fatalf("Lookup(fee) = %+v, %v", def, ok)
	}
	if _, ok := set.Lookup("missing"); ok {
		t.Fatalf("Lookup(missing) should fail")
	}
	names := set.Names()
	want := []string{"shirtSize", "allergies", "nickname", "fee"}
	for i, name := range want {
		if names[i] != name {
			t.Fatalf("Names[%d] = %q, want %q", i, names[i], name)
		}
	}
}

func TestFieldOrderReconcile(t *testing.T) {
	set := MustSet(sampleDefs())
	cases := []struct {
		name  string
		order FieldOrder
		want  []string
	}{
		{"empty order falls back to declaration", nil, []string{"shirtSize", "allergies", "nickname", "fee"}},
		{"stale names dropped new appended", FieldOrder{"fee", "retired", "nickname"}, []string{"fee", "nickname", "shirtSize", "allergies"}},
		{"duplicates collapsed", FieldOrder{"fee", "fee", "shirtSize"}, []string{"fee", "shirtSize", "allergies", "nickname"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.order.Reconcile(set)
			if len(got) != len(tc.want) {
				t.Fatalf("Reconcile = %v, want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("Reconcile[%d] = %q, want %q", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestColumns(t *testing.T) {
	set := MustSet([]FieldDefinition{
		{Name: "photo", Label: "Photo", Type: TypeImage},
		{Name: "size", Label: "Size", Type: TypeSelect, Choices: []string{"S", "M"}, ColumnHeader: "Shirt"},
		{Name: "tags", Label: "Tags", Type: TypeMultiSelect, Choices: []string{"a", "b"}, Required: true},
	})
	cols := Columns(set, FieldOrder{"tags"})
	if len(cols) != 3 {
		t.Fatalf("Columns len = %d, want 3", len(cols))
	}
	if cols[0].Key != "tags" || !cols[0].Multiple || !cols[0].Required {
		t.Fatalf("ordered first column = %+v", cols[0])
	}
	if cols[1].Key != "photo" || !cols[1].Upload {
		t.Fatalf("photo column = %+v", cols[1])
	}
	if cols[2].Header != "Shirt" {
		t.Fatalf("column header override not applied: %+v", cols[2])
	}
	if cols[2].Multiple {
		t.Fatalf("single select must not be multiple")
	}
	if len(cols[2].Options) != 2 {
		t.Fatalf("select options = %v", cols[2].Options)
	}
}
