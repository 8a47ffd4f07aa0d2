package warehouse

import (
	"fmt"

	"github.com/ignite/channel-warehouse/internal/domain"
)

// RecordKey is the fact idempotency key: "{source_record_id}-{channel_key}".
func RecordKey(sourceRecordID, channelKey int64) string {
	return fmt.Sprintf("%d-%d", sourceRecordID, channelKey)
}

// Unresolved is a staging row dropped from the fact load.
type Unresolved struct {
	ChannelName    string
	SourceRecordID int64
	DateKey        int
	Err            error
}

// BuildFacts resolves each staging row against the dimension keys. Rows
// whose channel or date is missing are returned separately, never as facts.
func BuildFacts(records []domain.StagingRecord, channelKeys map[string]int64, dateKeys map[int]bool) ([]domain.FactRecord, []Unresolved) {
	facts := make([]domain.FactRecord, 0, len(records))
	var unresolved []Unresolved

	for _, r := range records {
		dateKey := DateKey(r.CalendarDate)
		channelKey, ok := channelKeys[r.ChannelName]
		if !ok {
			unresolved = append(unresolved, Unresolved{
				ChannelName: r.ChannelName, SourceRecordID: r.SourceRecordID, DateKey: dateKey,
				Err: fmt.Errorf("%w: channel %q", domain.ErrUnresolvedKey, r.ChannelName),
			})
			continue
		}
		if !dateKeys[dateKey] {
			unresolved = append(unresolved, Unresolved{
				ChannelName: r.ChannelName, SourceRecordID: r.SourceRecordID, DateKey: dateKey,
				Err: fmt.Errorf("%w: date %d", domain.ErrUnresolvedKey, dateKey),
			})
			continue
		}

		facts = append(facts, domain.FactRecord{
			RecordKey:      RecordKey(r.SourceRecordID, channelKey),
			SourceRecordID: r.SourceRecordID,
			ChannelKey:     channelKey,
			DateKey:        dateKey,
			Text:           r.Text,
			TextLength:     r.TextLength,
			ViewCount:      r.ViewCount,
			ForwardCount:   r.ForwardCount,
			HasAttachment:  r.HasAttachment,
			CapturedAt:     r.CapturedAt,
		})
	}
	return facts, unresolved
}
