package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"rostercore/pkg/schema"
)

func importerSet(t *testing.T) schema.Set {
	t.Helper()
	return schema.MustSet([]schema.FieldDefinition{
		{Name: "shirtSize", Label: "Shirt Size", Type: schema.TypeSelect, Choices: []string{"S", "M", "L"}},
		{Name: "fee", Label: "Fee", Type: schema.TypeMoney},
		{Name: "allergies", Label: "Allergies", Type: schema.TypeMultiSelect, Choices: []string{"nuts", "dairy"}},
	})
}

var importerExtras = map[string]string{"first name": "first_name"}

func TestReadRowsMatchesAndCoerces(t *testing.T) {
	imp := NewImporter(importerSet(t), importerExtras)
	sheet := "First Name,Shirt Size,Fee,Mystery,Allergies\n" +
		"Noa,M,120,ignored,nuts\n" +
		",,,,\n" +
		"Dan,L,,x,\n"
	rows, err := imp.ReadRows(strings.NewReader(sheet))
	if err != nil {
		t.Fatalf("ReadRows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2 (empty row skipped)", len(rows))
	}
	if rows[0]["first_name"] != "Noa" || rows[0]["shirtSize"] != "M" {
		t.Fatalf("row 0 = %v", rows[0])
	}
	if rows[0]["fee"] != 120.0 {
		t.Fatalf("fee cell not coerced: %v (%T)", rows[0]["fee"], rows[0]["fee"])
	}
	list, _ := rows[0]["allergies"].([]string)
	if len(list) != 1 || list[0] != "nuts" {
		t.Fatalf("allergies cell = %v", rows[0]["allergies"])
	}
	if _, ok := rows[0]["Mystery"]; ok {
		t.Fatalf("unmatched column leaked: %v", rows[0])
	}
	if _, ok := rows[1]["fee"]; ok {
		t.Fatalf("blank cell should be absent, got %v", rows[1])
	}
}

func TestReadRowsFileLevelErrors(t *testing.T) {
	imp := NewImporter(importerSet(t), importerExtras)
	cases := []struct {
		name  string
		sheet string
		want  error
	}{
		{"empty sheet", "", ErrEmptySheet},
		{"no matching headers", "Foo,Bar\n1,2\n", ErrNoMatchingHeaders},
		{"no data rows", "Shirt Size,Fee\n,\n,\n", ErrNoDataRows},
		{"headers only", "Shirt Size,Fee\n", ErrNoDataRows},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := imp.ReadRows(strings.NewReader(tc.sheet))
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestRunAggregatesRowFailures(t *testing.T) {
	imp := NewImporter(importerSet(t), importerExtras)
	sheet := "First Name,Shirt Size\n" +
		"A,S\nB,M\nC,L\nD,S\n"
	var (
		mu    sync.Mutex
		calls int
	)
	summary, err := imp.Run(context.Background(), strings.NewReader(sheet), func(_ context.Context, row map[string]any) error {
		mu.Lock()
		calls++
		mu.Unlock()
		if row["first_name"] == "B" || row["first_name"] == "D" {
			return errors.New("boom")
		}
		return nil
	})
	if calls != 4 {
		t.Fatalf("create calls = %d, want 4 (failures must not stop the fan-out)", calls)
	}
	if summary.Created != 2 || summary.Failed != 2 {
		t.Fatalf("summary = %+v", summary)
	}
	if len(summary.Failures) != 2 {
		t.Fatalf("failures = %v", summary.Failures)
	}
	if err == nil || !strings.Contains(err.Error(), "2 of 4 rows failed") {
		t.Fatalf("err = %v", err)
	}
}

func TestRunSuccess(t *testing.T) {
	imp := NewImporter(importerSet(t), importerExtras)
	sheet := "Shirt Size\nS\nM\n"
	summary, err := imp.Run(context.Background(), strings.NewReader(sheet), func(context.Context, map[string]any) error {
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Created != 2 || summary.Failed != 0 {
		t.Fatalf("summary = %+v", summary)
	}
}

func TestRunCapsReportedFailures(t *testing.T) {
	imp := NewImporter(importerSet(t), importerExtras)
	var sb strings.Builder
	sb.WriteString("Shirt Size\n")
	for i := 0; i < 10; i++ {
		sb.WriteString("S\n")
	}
	summary, err := imp.Run(context.Background(), strings.NewReader(sb.String()), func(context.Context, map[string]any) error {
		return errors.New("boom")
	})
	if err == nil {
		t.Fatalf("expected aggregate error")
	}
	if summary.Failed != 10 {
		t.Fatalf("failed = %d, want 10", summary.Failed)
	}
	if len(summary.Failures) != maxReportedFailures {
		t.Fatalf("reported failures = %d, want %d", len(summary.Failures), maxReportedFailures)
	}
}
