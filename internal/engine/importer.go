package engine

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"rostercore/pkg/schema"
)

// File-level import failures, terminal for the attempt and reported once.
// They are distinct from parse-level unreadability, which callers receive as
// a wrapped read error.
var (
	// ErrEmptySheet indicates the sheet had no rows at all.
	ErrEmptySheet = errors.New("import: empty sheet")
	// ErrNoMatchingHeaders indicates no header cell matched any field.
	ErrNoMatchingHeaders = errors.New("import: no matching headers")
	// ErrNoDataRows indicates every body row was empty after matching.
	ErrNoDataRows = errors.New("import: no data rows")
)

// maxReportedFailures caps the per-row failure messages carried in a
// summary; the full failure count is always reported.
const maxReportedFailures = 5

// ImportSummary aggregates the outcome of an import fan-out. Creation calls
// are independent; partial failure leaves successful rows in place.
type ImportSummary struct {
	Created  int      `json:"created"`
	Failed   int      `json:"failed"`
	Failures []string `json:"failures,omitempty"`
}

// RowCreator persists one imported row. Implementations receive values keyed
// by matched internal field key only; unmatched spreadsheet columns never
// reach them.
type RowCreator func(ctx context.Context, row map[string]any) error

// Importer turns a spreadsheet stream into per-row create calls driven by
// the definition snapshot's header candidates and coercion rules.
type Importer struct {
	set     schema.Set
	matcher HeaderMatcher
}

// NewImporter builds an importer for the definition snapshot. extra maps
// additional header candidates (core attribute labels) to field keys.
func NewImporter(set schema.Set, extra map[string]string) Importer {
	return Importer{set: set, matcher: NewHeaderMatcher(set, extra)}
}

// ReadRows parses the sheet and projects its body rows through the header
// map. The first row is headers; body cells are string-coerced per the
// matched field's taxonomy row.
func (imp Importer) ReadRows(r io.Reader) ([]map[string]any, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read sheet: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrEmptySheet
	}
	columns := imp.matcher.MatchRow(records[0])
	if len(columns) == 0 {
		return nil, ErrNoMatchingHeaders
	}
	var rows []map[string]any
	for _, record := range records[1:] {
		row := make(map[string]any, len(columns))
		empty := true
		for i, key := range columns {
			if i >= len(record) {
				continue
			}
			cell := record[i]
			if strings.TrimSpace(cell) == "" {
				continue
			}
			empty = false
			row[key] = imp.coerceCell(key, cell)
		}
		if !empty {
			rows = append(rows, row)
		}
	}
	if len(rows) == 0 {
		return nil, ErrNoDataRows
	}
	return rows, nil
}

func (imp Importer) coerceCell(key, cell string) any {
	def, ok := imp.set.Lookup(key)
	if !ok {
		// Core attribute column; the projector handles any date conversion.
		return cell
	}
	return def.Spec().Coerce(cell)
}

// Run reads the sheet and fans out one create call per row. Row-level
// failures are aggregated into the summary; rows already created are not
// rolled back. File-level failures return before any create call is issued.
func (imp Importer) Run(ctx context.Context, r io.Reader, create RowCreator) (ImportSummary, error) {
	rows, err := imp.ReadRows(r)
	if err != nil {
		return ImportSummary{}, err
	}
	var (
		mu      sync.Mutex
		summary ImportSummary
	)
	g, ctx := errgroup.WithContext(ctx)
	for i, row := range rows {
		i, row := i, row
		g.Go(func() error {
			err := create(ctx, row)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.Failed++
				if len(summary.Failures) < maxReportedFailures {
					summary.Failures = append(summary.Failures, fmt.Sprintf("row %d: %v", i+2, err))
				}
				return nil
			}
			summary.Created++
			return nil
		})
	}
	_ = g.Wait()
	if summary.Failed > 0 {
		return summary, fmt.Errorf("import: %d of %d rows failed", summary.Failed, summary.Created+summary.Failed)
	}
	return summary, nil
}
