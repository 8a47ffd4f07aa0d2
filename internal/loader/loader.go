// Package loader appends raw batch files to the raw store.
package loader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/channel-warehouse/internal/domain"
	"github.com/ignite/channel-warehouse/internal/pkg/logger"
)

// RawWriter appends records atomically.
type RawWriter interface {
	InsertRaw(ctx context.Context, records []domain.RawRecord) (int, error)
}

// BatchSource lists and reads stored batches.
type BatchSource interface {
	Batches(ctx context.Context) ([]string, error)
	ReadBatch(ctx context.Context, key string) ([]byte, error)
}

// Loader inserts batches; it never updates or deletes raw rows.
type Loader struct {
	store RawWriter
}

// New creates a loader over store.
func New(store RawWriter) *Loader {
	return &Loader{store: store}
}

// LoadBatch parses one payload and inserts its records. A malformed payload
// returns a *domain.MalformedBatchError and inserts nothing.
func (l *Loader) LoadBatch(ctx context.Context, payload []byte, provenance string) (int, error) {
	records, err := ParseBatch(payload, provenance)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		logger.Info("loader: empty batch", "batch", provenance)
		return 0, nil
	}
	n, err := l.store.InsertRaw(ctx, records)
	if err != nil {
		return 0, fmt.Errorf("load batch %s: %w", provenance, err)
	}
	return n, nil
}

// BatchError records a batch that was skipped.
type BatchError struct {
	Key string
	Err error
}

// LakeResult summarizes a lake load.
type LakeResult struct {
	Batches  int          `json:"batches"`
	Inserted int          `json:"inserted"`
	Skipped  []BatchError `json:"-"`
}

// LoadAll loads every batch from src in key order, using each key as the
// provenance. Unreadable or malformed batches are skipped and reported;
// a raw store failure stops the load.
func (l *Loader) LoadAll(ctx context.Context, src BatchSource) (*LakeResult, error) {
	keys, err := src.Batches(ctx)
	if err != nil {
		return nil, err
	}

	res := &LakeResult{}
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		payload, err := src.ReadBatch(ctx, key)
		if err != nil {
			logger.Error("loader: skipping unreadable batch", "batch", key, "error", err)
			res.Skipped = append(res.Skipped, BatchError{Key: key, Err: err})
			continue
		}

		n, err := l.LoadBatch(ctx, payload, key)
		if errors.Is(err, domain.ErrMalformedBatch) {
			logger.Error("loader: skipping malformed batch", "batch", key, "error", err)
			res.Skipped = append(res.Skipped, BatchError{Key: key, Err: err})
			continue
		}
		if err != nil {
			return res, err
		}

		res.Batches++
		res.Inserted += n
		logger.Info("loader: batch loaded", "batch", key, "records", n)
	}
	return res, nil
}

// SampleBatch is the bootstrap batch written into an empty lake: three
// records across two channels on one day.
func SampleBatch(day time.Time) []domain.RawRecord {
	at := func(h, m int) *time.Time {
		y, mo, d := day.UTC().Date()
		t := time.Date(y, mo, d, h, m, 0, 0, time.UTC)
		return &t
	}
	return []domain.RawRecord{
		{SourceRecordID: 101, ChannelName: "CheMed123", CapturedAt: at(10, 30),
			Text: "Medical products available: Paracetamol, Ibuprofen", ViewCount: 150, ForwardCount: 5,
			HasAttachment: true, AttachmentPath: domain.AttachmentKey("CheMed123", 101)},
		{SourceRecordID: 102, ChannelName: "CheMed123", CapturedAt: at(11, 45),
			Text: "New shipment of antibiotics arriving tomorrow", ViewCount: 89, ForwardCount: 3},
		{SourceRecordID: 201, ChannelName: "lobelia4cosmetics", CapturedAt: at(9, 15),
			Text: "Skincare products 50% off this week", ViewCount: 200, ForwardCount: 12,
			HasAttachment: true, AttachmentPath: domain.AttachmentKey("lobelia4cosmetics", 201)},
	}
}

// SampleWriter stores a named batch in the lake.
type SampleWriter interface {
	WriteNamed(ctx context.Context, name string, payload []byte) (string, error)
}

// WriteSample writes the bootstrap batch and returns its key.
func WriteSample(ctx context.Context, w SampleWriter, day time.Time) (string, error) {
	payload, err := EncodeBatch(SampleBatch(day))
	if err != nil {
		return "", err
	}
	return w.WriteNamed(ctx, "sample/sample_messages.json", payload)
}
