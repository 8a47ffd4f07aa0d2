// Package warehouse reshapes raw records into the star schema: the channel
// and date dimensions, then the fact table that references them.
package warehouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/channel-warehouse/internal/domain"
	"github.com/ignite/channel-warehouse/internal/pkg/logger"
	"github.com/ignite/channel-warehouse/internal/staging"
)

// Store is the warehouse persistence the builder needs.
type Store interface {
	ListRaw(ctx context.Context) ([]domain.RawRecord, error)
	UpsertChannels(ctx context.Context, channels []domain.ChannelDimension) (inserted, updated int, err error)
	InsertDates(ctx context.Context, dates []domain.DateDimension) (int, error)
	ChannelKeys(ctx context.Context) (map[string]int64, error)
	DateKeys(ctx context.Context) (map[int]bool, error)
	InsertFacts(ctx context.Context, facts []domain.FactRecord) (int, error)
	EnsureFactIndexes(ctx context.Context) error
}

// Result counts what one build did.
type Result struct {
	RawRows          int `json:"raw_rows"`
	Staged           int `json:"staged"`
	Filtered         int `json:"filtered"`
	DuplicateRaw     int `json:"duplicate_raw"`
	ChannelsInserted int `json:"channels_inserted"`
	ChannelsUpdated  int `json:"channels_updated"`
	DatesInserted    int `json:"dates_inserted"`
	FactsInserted    int `json:"facts_inserted"`
	FactsSkipped     int `json:"facts_skipped"`
	Unresolved       int `json:"unresolved"`
}

// Builder runs the dimension and fact load.
type Builder struct {
	store Store
	now   func() time.Time
}

// NewBuilder creates a builder over store.
func NewBuilder(store Store) *Builder {
	return &Builder{store: store, now: time.Now}
}

// WithClock overrides the clock that decides "today" for the date dimension.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build recomputes staging from the raw rows, upserts both dimensions, then
// inserts new facts and ensures the fact indexes. Every step is idempotent,
// so an interrupted build is repaired by the next one. Store errors abort
// the build; unresolved rows are dropped and counted.
func (b *Builder) Build(ctx context.Context) (*Result, error) {
	raw, err := b.store.ListRaw(ctx)
	if err != nil {
		return nil, fmt.Errorf("read raw: %w", err)
	}
	staged := staging.Stage(raw)
	res := &Result{
		RawRows:      len(raw),
		Staged:       len(staged.Records),
		Filtered:     staged.Filtered,
		DuplicateRaw: staged.Duplicates,
	}

	channels := BuildChannels(staged.Records)
	res.ChannelsInserted, res.ChannelsUpdated, err = b.store.UpsertChannels(ctx, channels)
	if err != nil {
		return nil, fmt.Errorf("upsert channels: %w", err)
	}

	dates := BuildDates(staged.Records, b.now())
	if res.DatesInserted, err = b.store.InsertDates(ctx, dates); err != nil {
		return nil, fmt.Errorf("insert dates: %w", err)
	}

	// Keys are read back after the dimension writes so facts always resolve
	// against committed rows.
	channelKeys, err := b.store.ChannelKeys(ctx)
	if err != nil {
		return nil, err
	}
	dateKeys, err := b.store.DateKeys(ctx)
	if err != nil {
		return nil, err
	}

	facts, unresolved := BuildFacts(staged.Records, channelKeys, dateKeys)
	for _, u := range unresolved {
		logger.Warn("warehouse: dropping unresolved fact row",
			"channel", u.ChannelName, "message_id", u.SourceRecordID, "date_key", u.DateKey, "error", u.Err)
	}
	res.Unresolved = len(unresolved)

	if res.FactsInserted, err = b.store.InsertFacts(ctx, facts); err != nil {
		return nil, fmt.Errorf("insert facts: %w", err)
	}
	res.FactsSkipped = len(facts) - res.FactsInserted

	if err := b.store.EnsureFactIndexes(ctx); err != nil {
		return nil, err
	}

	logger.Info("warehouse: build complete",
		"staged", res.Staged, "filtered", res.Filtered,
		"channels_inserted", res.ChannelsInserted, "channels_updated", res.ChannelsUpdated,
		"dates_inserted", res.DatesInserted, "facts_inserted", res.FactsInserted,
		"facts_skipped", res.FactsSkipped, "unresolved", res.Unresolved)
	return res, nil
}
