// Package collector pulls recent messages for each configured channel and
// appends the ones not seen before to the raw store.
package collector

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ignite/channel-warehouse/internal/domain"
	"github.com/ignite/channel-warehouse/internal/loader"
	"github.com/ignite/channel-warehouse/internal/pkg/logger"
	"github.com/ignite/channel-warehouse/internal/source"
)

const provenancePrefix = "collector:"

// PolitenessInterval is the pause a worker takes between two channels.
const PolitenessInterval = 2 * time.Second

// Store is the raw store as the collector sees it.
type Store interface {
	Exists(ctx context.Context, channel string, sourceRecordID int64) (bool, error)
	InsertRaw(ctx context.Context, records []domain.RawRecord) (int, error)
}

// AttachmentStore persists attachment bytes under their deterministic key.
type AttachmentStore interface {
	AttachmentExists(ctx context.Context, channel string, sourceRecordID int64) (bool, error)
	AttachmentLocation(channel string, sourceRecordID int64) string
	SaveAttachment(ctx context.Context, channel string, sourceRecordID int64, data []byte) (string, error)
}

// Archive keeps a copy of each collected batch in the data lake. Every run
// writes its own object, so earlier batches of the same day survive.
type Archive interface {
	WriteRunBatch(ctx context.Context, channel, runID string, day time.Time, payload []byte) (string, error)
}

// Options tune a collection run.
type Options struct {
	Limit       int
	Concurrency int
}

// ChannelResult is the outcome for one channel.
type ChannelResult struct {
	Channel     string `json:"channel"`
	Seen        int    `json:"seen"`
	Skipped     int    `json:"skipped"`
	Inserted    int    `json:"inserted"`
	Attachments int    `json:"attachments"`
	Archive     string `json:"archive,omitempty"`
	Err         error  `json:"-"`
}

// Result summarizes a run.
type Result struct {
	Provenance  string          `json:"provenance"`
	Channels    []ChannelResult `json:"channels"`
	Inserted    int             `json:"inserted"`
	Skipped     int             `json:"skipped"`
	Attachments int             `json:"attachments"`
	Failed      int             `json:"failed"`
}

// Collector runs collection over a source.
type Collector struct {
	src         source.Source
	store       Store
	attachments AttachmentStore
	lake        Archive
	opts        Options

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	pace  time.Duration
}

// New creates a collector. Attachments are only downloaded once an
// attachment store is set with WithAttachments.
func New(src source.Source, store Store, opts Options) *Collector {
	if opts.Limit <= 0 {
		opts.Limit = 100
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Collector{
		src:   src,
		store: store,
		opts:  opts,
		now:   time.Now,
		sleep: sleepContext,
		pace:  PolitenessInterval,
	}
}

// WithAttachments enables attachment downloads into a.
func (c *Collector) WithAttachments(a AttachmentStore) *Collector {
	c.attachments = a
	return c
}

// WithLake archives every non-empty channel batch into l.
func (c *Collector) WithLake(l Archive) *Collector {
	c.lake = l
	return c
}

// Run collects every channel. Source failures are confined to their
// channel; a raw store failure stops the run.
func (c *Collector) Run(ctx context.Context, channels []string) (*Result, error) {
	res := &Result{
		Provenance: provenancePrefix + uuid.New().String(),
		Channels:   make([]ChannelResult, len(channels)),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Concurrency)
	for i, raw := range channels {
		g.Go(func() error {
			cr, err := c.CollectChannel(gctx, raw, res.Provenance)
			res.Channels[i] = cr
			if err != nil {
				return err
			}
			if i < len(channels)-1 {
				return c.sleep(gctx, c.pace)
			}
			return nil
		})
	}
	err := g.Wait()

	for _, cr := range res.Channels {
		res.Inserted += cr.Inserted
		res.Skipped += cr.Skipped
		res.Attachments += cr.Attachments
		if cr.Err != nil {
			res.Failed++
		}
	}
	logger.Info("collector: run finished",
		"provenance", res.Provenance, "channels", len(channels),
		"inserted", res.Inserted, "skipped", res.Skipped,
		"attachments", res.Attachments, "failed", res.Failed)
	return res, err
}

// CollectChannel collects one channel. A throttled channel is retried once
// after the requested wait. The returned error is non-nil only for raw
// store failures; source failures are reported in ChannelResult.Err.
func (c *Collector) CollectChannel(ctx context.Context, channel, provenance string) (ChannelResult, error) {
	name, err := domain.NormalizeChannel(channel)
	if err != nil {
		logger.Warn("collector: invalid channel name, skipping", "channel", channel, "error", err)
		return ChannelResult{Channel: channel, Err: err}, nil
	}
	cr, err := c.collectOnce(ctx, name, provenance)

	var rl *domain.RateLimitError
	if errors.As(err, &rl) {
		logger.Warn("collector: rate limited, waiting before retry",
			"channel", name, "wait", rl.Wait.String())
		if serr := c.sleep(ctx, rl.Wait); serr != nil {
			cr.Err = serr
			return cr, nil
		}
		cr, err = c.collectOnce(ctx, name, provenance)
	}

	var se *storeError
	switch {
	case err == nil:
		logger.Info("collector: channel collected",
			"channel", name, "seen", cr.Seen, "skipped", cr.Skipped,
			"inserted", cr.Inserted, "attachments", cr.Attachments)
	case errors.As(err, &se):
		logger.Error("collector: raw store failed", "channel", name, "provenance", provenance, "error", se.err)
		cr.Err = se.err
		return cr, se.err
	case errors.Is(err, domain.ErrSourceUnavailable):
		logger.Warn("collector: channel unavailable, skipping", "channel", name, "error", err)
		cr.Err = err
	default:
		logger.Error("collector: channel failed", "channel", name, "error", err)
		cr.Err = err
	}
	return cr, nil
}

// storeError marks failures of the raw store, which end the run.
type storeError struct{ err error }

func (e *storeError) Error() string { return e.err.Error() }
func (e *storeError) Unwrap() error { return e.err }

func (c *Collector) collectOnce(ctx context.Context, channel, provenance string) (ChannelResult, error) {
	cr := ChannelResult{Channel: channel}

	if err := c.src.Resolve(ctx, channel); err != nil {
		return cr, err
	}

	var (
		records []domain.RawRecord
		urls    = make(map[int64]string)
		seen    = make(map[int64]bool)
	)
	for msg, err := range c.src.Messages(ctx, channel, c.opts.Limit) {
		if err != nil {
			return cr, err
		}
		cr.Seen++
		if seen[msg.ID] {
			cr.Skipped++
			continue
		}
		seen[msg.ID] = true

		exists, err := c.store.Exists(ctx, channel, msg.ID)
		if err != nil {
			return cr, &storeError{err: fmt.Errorf("check %s/%d: %w", channel, msg.ID, err)}
		}
		if exists {
			cr.Skipped++
			continue
		}

		records = append(records, toRawRecord(channel, msg, provenance))
		if msg.AttachmentURL != "" {
			urls[msg.ID] = msg.AttachmentURL
		}
	}

	if len(records) == 0 {
		return cr, nil
	}

	if c.attachments != nil {
		for i := range records {
			if c.saveAttachment(ctx, &records[i], urls[records[i].SourceRecordID]) {
				cr.Attachments++
			}
		}
	}

	n, err := c.store.InsertRaw(ctx, records)
	if err != nil {
		return cr, &storeError{err: fmt.Errorf("insert %s batch: %w", channel, err)}
	}
	cr.Inserted = n

	if c.lake != nil {
		cr.Archive = c.archive(ctx, channel, provenance, records)
	}
	return cr, nil
}

// saveAttachment stores the attachment of rec and records its path. A
// failure leaves the record without a path.
func (c *Collector) saveAttachment(ctx context.Context, rec *domain.RawRecord, url string) bool {
	if !rec.HasAttachment || url == "" {
		return false
	}

	exists, err := c.attachments.AttachmentExists(ctx, rec.ChannelName, rec.SourceRecordID)
	if err == nil && exists {
		rec.AttachmentPath = c.attachments.AttachmentLocation(rec.ChannelName, rec.SourceRecordID)
		return false
	}

	data, err := c.src.FetchAttachment(ctx, source.Message{ID: rec.SourceRecordID, Channel: rec.ChannelName, AttachmentURL: url})
	if err != nil {
		logger.Warn("collector: attachment download failed",
			"channel", rec.ChannelName, "message_id", rec.SourceRecordID, "error", err)
		return false
	}
	key, err := c.attachments.SaveAttachment(ctx, rec.ChannelName, rec.SourceRecordID, data)
	if err != nil {
		logger.Warn("collector: attachment save failed",
			"channel", rec.ChannelName, "message_id", rec.SourceRecordID, "error", err)
		return false
	}
	rec.AttachmentPath = key
	return true
}

func (c *Collector) archive(ctx context.Context, channel, provenance string, records []domain.RawRecord) string {
	runID := strings.TrimPrefix(provenance, provenancePrefix)
	payload, err := loader.EncodeBatch(records)
	if err == nil {
		var key string
		if key, err = c.lake.WriteRunBatch(ctx, channel, runID, c.now(), payload); err == nil {
			return key
		}
	}
	logger.Warn("collector: lake archive failed", "channel", channel, "error", err)
	return ""
}

func toRawRecord(channel string, msg source.Message, provenance string) domain.RawRecord {
	rec := domain.RawRecord{
		SourceRecordID: msg.ID,
		ChannelName:    channel,
		Text:           msg.Text,
		ViewCount:      msg.Views,
		ForwardCount:   msg.Forwards,
		HasAttachment:  msg.HasAttachment,
		Provenance:     provenance,
	}
	if !msg.PostedAt.IsZero() {
		t := msg.PostedAt.UTC()
		rec.CapturedAt = &t
	}
	return rec
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
