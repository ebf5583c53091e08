package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// RecordUpdater applies a single patch to one record. Implementations issue
// one independent call per id; the dispatcher never wraps them in a
// transaction.
type RecordUpdater interface {
	Update(ctx context.Context, id string, patch map[string]any) error
}

// BulkSummary aggregates the outcome of a bulk fan-out.
type BulkSummary struct {
	Updated  int      `json:"updated"`
	Failed   int      `json:"failed"`
	Failures []string `json:"failures,omitempty"`
}

// BulkDispatcher fans a single field/value change out to N selected records.
type BulkDispatcher struct {
	projector Projector
	updater   RecordUpdater
	relations map[string]struct{}
}

// NewBulkDispatcher builds a dispatcher routing patches through the given
// projector and updater. relationKeys names the core attributes declared as
// array-valued relationship lists.
func NewBulkDispatcher(projector Projector, updater RecordUpdater, relationKeys ...string) BulkDispatcher {
	relations := make(map[string]struct{}, len(relationKeys))
	for _, key := range relationKeys {
		relations[key] = struct{}{}
	}
	return BulkDispatcher{projector: projector, updater: updater, relations: relations}
}

// Patch builds the per-record patch for a field key and new value. Dynamic
// accessor keys route through the projector; array-valued fields normalize
// scalars to one-element lists and drop blank entries; everything else
// passes through unchanged.
func (d BulkDispatcher) Patch(key string, value any) map[string]any {
	if strings.HasPrefix(key, DynamicAccessorPrefix) {
		payload := d.projector.Submit(map[string]any{key: value})
		if payload.DynamicFields == nil {
			return map[string]any{}
		}
		return map[string]any{"dynamicFields": payload.DynamicFields}
	}
	if _, isRelation := d.relations[key]; isRelation {
		return map[string]any{key: normalizeIDList(value)}
	}
	return map[string]any{key: value}
}

// Dispatch issues one independent update per target id. There is no enforced
// ordering or concurrency cap and no rollback: if any call fails, the whole
// operation reports failure with an aggregated message while the calls that
// succeeded keep their effect. Callers refresh state afterwards either way.
func (d BulkDispatcher) Dispatch(ctx context.Context, key string, value any, ids []string) (BulkSummary, error) {
	patch := d.Patch(key, value)
	var (
		mu      sync.Mutex
		summary BulkSummary
	)
	g, ctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			err := d.updater.Update(ctx, id, patch)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.Failed++
				if len(summary.Failures) < maxReportedFailures {
					summary.Failures = append(summary.Failures, fmt.Sprintf("%s: %v", id, err))
				}
				return nil
			}
			summary.Updated++
			return nil
		})
	}
	_ = g.Wait()
	if summary.Failed > 0 {
		return summary, fmt.Errorf("bulk update: %d of %d records failed", summary.Failed, len(ids))
	}
	return summary, nil
}

// normalizeIDList coerces a relationship value to a clean id list: scalars
// become one-element lists and blank ids are dropped. An empty result stays
// an empty list because "no relations" is a meaningful state, not unset.
func normalizeIDList(value any) []string {
	list := make([]string, 0, 4)
	appendID := func(s string) {
		if strings.TrimSpace(s) != "" {
			list = append(list, s)
		}
	}
	switch v := value.(type) {
	case nil:
	case []string:
		for _, s := range v {
			appendID(s)
		}
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				appendID(s)
			}
		}
	case string:
		appendID(v)
	}
	return list
}
