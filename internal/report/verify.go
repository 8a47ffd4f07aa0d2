package report

import (
	"context"
	"fmt"

	"github.com/osteele/liquid"

	"github.com/ignite/channel-warehouse/internal/domain"
)

// SampleSize is how many rows per mart table the verification shows.
const SampleSize = 3

// VerifyStore reads the finished warehouse.
type VerifyStore interface {
	Counts(ctx context.Context) (domain.WarehouseCounts, error)
	OrphanFacts(ctx context.Context) (int64, error)
	CategoryBreakdown(ctx context.Context) ([]domain.CategoryCount, error)
	SampleChannels(ctx context.Context, limit int) ([]domain.ChannelDimension, error)
	SampleDates(ctx context.Context, limit int) ([]domain.DateDimension, error)
	SampleFacts(ctx context.Context, limit int) ([]domain.FactRecord, error)
}

// Verification is a snapshot of warehouse health.
type Verification struct {
	Counts     domain.WarehouseCounts    `json:"counts"`
	Orphans    int64                     `json:"orphans"`
	Categories []domain.CategoryCount    `json:"categories"`
	Channels   []domain.ChannelDimension `json:"channels"`
	Dates      []domain.DateDimension    `json:"dates"`
	Facts      []domain.FactRecord       `json:"facts"`
}

// OK reports whether every fact row resolves to both dimensions.
func (v *Verification) OK() bool { return v.Orphans == 0 }

// Verify collects counts, the orphan check, the category breakdown and a
// few sample rows per mart table.
func Verify(ctx context.Context, store VerifyStore) (*Verification, error) {
	v := &Verification{}
	var err error

	if v.Counts, err = store.Counts(ctx); err != nil {
		return nil, fmt.Errorf("verify counts: %w", err)
	}
	if v.Orphans, err = store.OrphanFacts(ctx); err != nil {
		return nil, fmt.Errorf("verify orphans: %w", err)
	}
	if v.Categories, err = store.CategoryBreakdown(ctx); err != nil {
		return nil, fmt.Errorf("verify categories: %w", err)
	}
	if v.Channels, err = store.SampleChannels(ctx, SampleSize); err != nil {
		return nil, fmt.Errorf("sample channels: %w", err)
	}
	if v.Dates, err = store.SampleDates(ctx, SampleSize); err != nil {
		return nil, fmt.Errorf("sample dates: %w", err)
	}
	if v.Facts, err = store.SampleFacts(ctx, SampleSize); err != nil {
		return nil, fmt.Errorf("sample facts: %w", err)
	}
	return v, nil
}

// RenderVerify renders v with the verification template.
func (r *Renderer) RenderVerify(v *Verification) (string, error) {
	return r.render(r.verify, liquid.Bindings(toMap(v)))
}
