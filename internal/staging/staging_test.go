package staging

import (
	"testing"
	"time"

	"github.com/ignite/channel-warehouse/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ts(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &t
}

func TestStage_FiltersMissingTextAndTimestamp(t *testing.T) {
	raw := []domain.RawRecord{
		{SourceRecordID: 1, ChannelName: "demo", Text: "hello", CapturedAt: ts("2026-01-18T10:00:00Z")},
		{SourceRecordID: 2, ChannelName: "demo", Text: "", CapturedAt: ts("2026-01-18T10:00:00Z")},
		{SourceRecordID: 3, ChannelName: "demo", Text: "no date"},
	}

	res := Stage(raw)
	require.Len(t, res.Records, 1)
	assert.Equal(t, int64(1), res.Records[0].SourceRecordID)
	assert.Equal(t, 2, res.Filtered)
	assert.Equal(t, 0, res.Duplicates)
}

func TestStage_AttachmentNormalization(t *testing.T) {
	tests := []struct {
		name string
		flag bool
		path string
		want bool
	}{
		{"neither", false, "", false},
		{"flag only", true, "", true},
		{"path wins over flag", false, "demo/1.jpg", true},
		{"both", true, "demo/1.jpg", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := domain.RawRecord{Text: "x", CapturedAt: ts("2026-01-18T10:00:00Z"), HasAttachment: tt.flag, AttachmentPath: tt.path}
			assert.Equal(t, tt.want, Project(r).HasAttachment)
		})
	}
}

func TestStage_DerivedFields(t *testing.T) {
	r := domain.RawRecord{
		SourceRecordID: 9,
		ChannelName:    "demo",
		Text:           "Paracetamol 500мг",
		CapturedAt:     ts("2026-01-18T23:30:00-02:00"),
		ViewCount:      -4,
		ForwardCount:   3,
	}

	s := Project(r)
	assert.Equal(t, 17, s.TextLength)
	assert.Equal(t, time.Date(2026, 1, 19, 0, 0, 0, 0, time.UTC), s.CalendarDate)
	assert.Equal(t, time.UTC, s.CapturedAt.Location())
	assert.Equal(t, int64(0), s.ViewCount)
	assert.Equal(t, int64(3), s.ForwardCount)
}

func TestStage_DedupKeepsEarliestLoaded(t *testing.T) {
	raw := []domain.RawRecord{
		{ID: 1, SourceRecordID: 5, ChannelName: "demo", Text: "first", ViewCount: 10, CapturedAt: ts("2026-01-18T10:00:00Z")},
		{ID: 2, SourceRecordID: 5, ChannelName: "other", Text: "other channel", CapturedAt: ts("2026-01-18T10:00:00Z")},
		{ID: 3, SourceRecordID: 5, ChannelName: "demo", Text: "second", ViewCount: 99, CapturedAt: ts("2026-01-18T10:00:00Z")},
	}

	res := Stage(raw)
	require.Len(t, res.Records, 2)
	assert.Equal(t, "first", res.Records[0].Text)
	assert.Equal(t, "other", res.Records[1].ChannelName)
	assert.Equal(t, 1, res.Duplicates)
}

func TestStage_Deterministic(t *testing.T) {
	raw := []domain.RawRecord{
		{SourceRecordID: 1, ChannelName: "a", Text: "x", CapturedAt: ts("2026-01-18T10:00:00Z")},
		{SourceRecordID: 2, ChannelName: "b", Text: "y", CapturedAt: ts("2026-01-17T10:00:00Z")},
	}
	assert.Equal(t, Stage(raw), Stage(raw))
}
