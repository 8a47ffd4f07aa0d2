// Package staging projects raw records into cleaned staging records.
// The projection is recomputed from the raw rows on every call and never
// cached, so it always reflects the latest raw contents.
package staging

import (
	"time"
	"unicode/utf8"

	"github.com/ignite/channel-warehouse/internal/domain"
)

type naturalKey struct {
	id      int64
	channel string
}

// Result is the outcome of one projection.
type Result struct {
	Records []domain.StagingRecord
	// Filtered counts raw rows dropped for missing text or timestamp.
	Filtered int
	// Duplicates counts raw rows shadowed by an earlier row with the same
	// (source_record_id, channel_name).
	Duplicates int
}

// Stage filters and normalizes raw rows. Rows are expected in load order
// (loaded_at, id); for duplicate natural keys the first row wins. The output
// preserves input order.
func Stage(raw []domain.RawRecord) Result {
	var res Result
	seen := make(map[naturalKey]struct{}, len(raw))

	for _, r := range raw {
		if r.Text == "" || r.CapturedAt == nil {
			res.Filtered++
			continue
		}
		key := naturalKey{id: r.SourceRecordID, channel: r.ChannelName}
		if _, dup := seen[key]; dup {
			res.Duplicates++
			continue
		}
		seen[key] = struct{}{}
		res.Records = append(res.Records, Project(r))
	}
	return res
}

// Project normalizes a single raw row. The caller has already checked that
// the row has text and a timestamp.
func Project(r domain.RawRecord) domain.StagingRecord {
	captured := r.CapturedAt.UTC()
	return domain.StagingRecord{
		SourceRecordID: r.SourceRecordID,
		ChannelName:    r.ChannelName,
		CapturedAt:     captured,
		CalendarDate:   CalendarDate(captured),
		Text:           r.Text,
		TextLength:     utf8.RuneCountInString(r.Text),
		ViewCount:      nonNegative(r.ViewCount),
		ForwardCount:   nonNegative(r.ForwardCount),
		// A stored path outranks the source flag
		HasAttachment: r.AttachmentPath != "" || r.HasAttachment,
	}
}

// CalendarDate truncates t to its UTC calendar day.
func CalendarDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func nonNegative(n int64) int64 {
	if n < 0 {
		return 0
	}
	return n
}
