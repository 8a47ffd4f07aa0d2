// Package memory is an in-process warehouse used for dry runs and tests.
// It follows the same insert, upsert and conflict rules as the Postgres
// repositories.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ignite/channel-warehouse/internal/domain"
	"github.com/ignite/channel-warehouse/internal/staging"
)

type rawKey struct {
	channel string
	id      int64
}

// Store holds every warehouse table in memory.
type Store struct {
	mu sync.RWMutex

	raw       []domain.RawRecord
	rawIndex  map[rawKey]struct{}
	nextRawID int64

	channels       map[string]*domain.ChannelDimension
	nextChannelKey int64
	dates          map[int]domain.DateDimension
	facts          map[string]domain.FactRecord
	indexes        bool

	// FailInsertRaw, when set, is returned by InsertRaw without writing.
	FailInsertRaw error
}

// New creates an empty store.
func New() *Store {
	return &Store{
		rawIndex: make(map[rawKey]struct{}),
		channels: make(map[string]*domain.ChannelDimension),
		dates:    make(map[int]domain.DateDimension),
		facts:    make(map[string]domain.FactRecord),
	}
}

// Exists reports whether a raw row with this natural key is stored.
func (s *Store) Exists(_ context.Context, channel string, sourceRecordID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.rawIndex[rawKey{channel: channel, id: sourceRecordID}]
	return ok, nil
}

// InsertRaw appends the whole batch or nothing.
func (s *Store) InsertRaw(_ context.Context, records []domain.RawRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailInsertRaw != nil {
		return 0, s.FailInsertRaw
	}

	now := time.Now().UTC()
	for _, rec := range records {
		s.nextRawID++
		rec.ID = s.nextRawID
		rec.LoadedAt = now
		if rec.CapturedAt != nil {
			t := rec.CapturedAt.UTC()
			rec.CapturedAt = &t
		}
		s.raw = append(s.raw, rec)
		s.rawIndex[rawKey{channel: rec.ChannelName, id: rec.SourceRecordID}] = struct{}{}
	}
	return len(records), nil
}

// ListRaw returns the raw rows in load order.
func (s *Store) ListRaw(_ context.Context) ([]domain.RawRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.RawRecord, len(s.raw))
	copy(out, s.raw)
	return out, nil
}

// UpsertChannels inserts new channels and rewrites known ones in place,
// keeping their surrogate keys.
func (s *Store) UpsertChannels(_ context.Context, channels []domain.ChannelDimension) (inserted, updated int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ch := range channels {
		if existing, ok := s.channels[ch.ChannelName]; ok {
			ch.ChannelKey = existing.ChannelKey
			*existing = ch
			updated++
			continue
		}
		s.nextChannelKey++
		ch.ChannelKey = s.nextChannelKey
		c := ch
		s.channels[ch.ChannelName] = &c
		inserted++
	}
	return inserted, updated, nil
}

// InsertDates stores dates not already present and reports how many were new.
func (s *Store) InsertDates(_ context.Context, dates []domain.DateDimension) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, d := range dates {
		if _, ok := s.dates[d.DateKey]; ok {
			continue
		}
		s.dates[d.DateKey] = d
		inserted++
	}
	return inserted, nil
}

// ChannelKeys maps channel names to surrogate keys.
func (s *Store) ChannelKeys(_ context.Context) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make(map[string]int64, len(s.channels))
	for name, ch := range s.channels {
		keys[name] = ch.ChannelKey
	}
	return keys, nil
}

// DateKeys returns the set of stored date keys.
func (s *Store) DateKeys(_ context.Context) (map[int]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make(map[int]bool, len(s.dates))
	for k := range s.dates {
		keys[k] = true
	}
	return keys, nil
}

// InsertFacts stores facts whose record key is not yet present.
func (s *Store) InsertFacts(_ context.Context, facts []domain.FactRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, f := range facts {
		if _, ok := s.facts[f.RecordKey]; ok {
			continue
		}
		s.facts[f.RecordKey] = f
		inserted++
	}
	return inserted, nil
}

// EnsureFactIndexes records that the fact indexes exist.
func (s *Store) EnsureFactIndexes(_ context.Context) error {
	s.mu.Lock()
	s.indexes = true
	s.mu.Unlock()
	return nil
}

// HasFactIndexes reports whether EnsureFactIndexes has run.
func (s *Store) HasFactIndexes() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexes
}

// Counts returns row counts per layer. Staging is derived from the raw rows.
func (s *Store) Counts(_ context.Context) (domain.WarehouseCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.WarehouseCounts{
		Raw:      int64(len(s.raw)),
		Staging:  int64(len(staging.Stage(s.raw).Records)),
		Channels: int64(len(s.channels)),
		Dates:    int64(len(s.dates)),
		Facts:    int64(len(s.facts)),
	}, nil
}

// OrphanFacts counts facts whose channel or date key has no dimension row.
func (s *Store) OrphanFacts(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byKey := make(map[int64]bool, len(s.channels))
	for _, ch := range s.channels {
		byKey[ch.ChannelKey] = true
	}
	var n int64
	for _, f := range s.facts {
		if _, ok := s.dates[f.DateKey]; !ok || !byKey[f.ChannelKey] {
			n++
		}
	}
	return n, nil
}

// CategoryBreakdown returns channel and fact counts per category, ordered by
// category.
func (s *Store) CategoryBreakdown(_ context.Context) ([]domain.CategoryCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byCategory := make(map[domain.ChannelCategory]*domain.CategoryCount)
	categoryOf := make(map[int64]domain.ChannelCategory, len(s.channels))
	for _, ch := range s.channels {
		cc, ok := byCategory[ch.Category]
		if !ok {
			cc = &domain.CategoryCount{Category: ch.Category}
			byCategory[ch.Category] = cc
		}
		cc.Channels++
		categoryOf[ch.ChannelKey] = ch.Category
	}
	for _, f := range s.facts {
		if cat, ok := categoryOf[f.ChannelKey]; ok {
			byCategory[cat].Records++
		}
	}

	out := make([]domain.CategoryCount, 0, len(byCategory))
	for _, cc := range byCategory {
		out = append(out, *cc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, nil
}

// SampleChannels returns up to limit channels ordered by key.
func (s *Store) SampleChannels(_ context.Context, limit int) ([]domain.ChannelDimension, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ChannelDimension, 0, len(s.channels))
	for _, ch := range s.channels {
		out = append(out, *ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChannelKey < out[j].ChannelKey })
	return head(out, limit), nil
}

// SampleDates returns up to limit dates ordered by key.
func (s *Store) SampleDates(_ context.Context, limit int) ([]domain.DateDimension, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.DateDimension, 0, len(s.dates))
	for _, d := range s.dates {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DateKey < out[j].DateKey })
	return head(out, limit), nil
}

// SampleFacts returns up to limit facts, newest capture first.
func (s *Store) SampleFacts(_ context.Context, limit int) ([]domain.FactRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.FactRecord, 0, len(s.facts))
	for _, f := range s.facts {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CapturedAt.Equal(out[j].CapturedAt) {
			return out[i].CapturedAt.After(out[j].CapturedAt)
		}
		return out[i].RecordKey < out[j].RecordKey
	})
	return head(out, limit), nil
}

// Channel returns a copy of the named channel row.
func (s *Store) Channel(name string) (domain.ChannelDimension, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.channels[name]
	if !ok {
		return domain.ChannelDimension{}, false
	}
	return *ch, true
}

// Facts returns every fact row ordered by record key.
func (s *Store) Facts() []domain.FactRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.FactRecord, 0, len(s.facts))
	for _, f := range s.facts {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordKey < out[j].RecordKey })
	return out
}

func head[T any](s []T, n int) []T {
	if n >= 0 && len(s) > n {
		return s[:n]
	}
	return s
}
