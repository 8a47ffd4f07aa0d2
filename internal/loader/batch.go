package loader

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/ignite/channel-warehouse/internal/domain"
	"github.com/ignite/channel-warehouse/internal/pkg/logger"
)

// BatchRecord is one element of the raw batch file format.
type BatchRecord struct {
	MessageID   int64  `json:"message_id"`
	ChannelName string `json:"channel_name"`
	MessageDate string `json:"message_date"`
	MessageText string `json:"message_text"`
	Views       int64  `json:"views"`
	Forwards    int64  `json:"forwards"`
	HasMedia    bool   `json:"has_media"`
	ImagePath   string `json:"image_path,omitempty"`
}

// defaultChannel names records that arrive without a channel.
const defaultChannel = "unknown"

// timestampLayouts are tried in order before the general-purpose parser.
// Layouts without a zone are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// dateTimeFirst matches inputs that open with a year-first date and a clock
// time. Only those are handed to the general-purpose parser, which would
// otherwise read "12:30" or "01/02/2026" as some date.
var dateTimeFirst = regexp.MustCompile(`^\d{4}[-/.]\d{1,2}[-/.]\d{1,2}[T ]+\d{1,2}:\d{2}`)

// ParseTimestamp parses a batch timestamp. ok is false when nothing matches
// or the result has no four-digit year.
func ParseTimestamp(s string) (t time.Time, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return checkYear(parsed.UTC())
		}
	}
	if !dateTimeFirst.MatchString(s) {
		return time.Time{}, false
	}
	if parsed, err := dateparse.ParseIn(s, time.UTC); err == nil {
		return checkYear(parsed.UTC())
	}
	return time.Time{}, false
}

// checkYear keeps date keys at eight digits.
func checkYear(t time.Time) (time.Time, bool) {
	if y := t.Year(); y < 1000 || y > 9999 {
		return time.Time{}, false
	}
	return t, true
}

// EncodeBatch renders raw records in the batch file format.
func EncodeBatch(records []domain.RawRecord) ([]byte, error) {
	out := make([]BatchRecord, 0, len(records))
	for _, r := range records {
		br := BatchRecord{
			MessageID:   r.SourceRecordID,
			ChannelName: r.ChannelName,
			MessageText: r.Text,
			Views:       r.ViewCount,
			Forwards:    r.ForwardCount,
			HasMedia:    r.HasAttachment,
			ImagePath:   r.AttachmentPath,
		}
		if r.CapturedAt != nil {
			br.MessageDate = r.CapturedAt.UTC().Format(time.RFC3339)
		}
		out = append(out, br)
	}
	return json.MarshalIndent(out, "", "  ")
}

// ParseBatch decodes a batch payload into raw records tagged with
// provenance. Field values are coerced leniently; only a payload that is not
// a JSON array fails, with a *domain.MalformedBatchError. Elements that are
// not objects are skipped.
func ParseBatch(payload []byte, provenance string) ([]domain.RawRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var items []json.RawMessage
	if err := dec.Decode(&items); err != nil {
		return nil, &domain.MalformedBatchError{Provenance: provenance, Err: err}
	}

	records := make([]domain.RawRecord, 0, len(items))
	for i, item := range items {
		var fields map[string]interface{}
		itemDec := json.NewDecoder(bytes.NewReader(item))
		itemDec.UseNumber()
		if err := itemDec.Decode(&fields); err != nil || fields == nil {
			logger.Warn("loader: skipping non-object batch element", "batch", provenance, "index", i)
			continue
		}

		rec := domain.RawRecord{
			SourceRecordID: asInt(fields["message_id"]),
			ChannelName:    asString(fields["channel_name"]),
			Text:           asString(fields["message_text"]),
			ViewCount:      asInt(fields["views"]),
			ForwardCount:   asInt(fields["forwards"]),
			HasAttachment:  asBool(fields["has_media"]),
			AttachmentPath: asString(fields["image_path"]),
			Provenance:     provenance,
		}
		if rec.ChannelName == "" {
			rec.ChannelName = defaultChannel
		}
		if raw := asString(fields["message_date"]); raw != "" {
			if t, ok := ParseTimestamp(raw); ok {
				rec.CapturedAt = &t
			} else {
				logger.Warn("loader: unparseable message_date, storing null",
					"batch", provenance, "message_id", rec.SourceRecordID, "value", raw)
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

func asString(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprintf("%v", x)
	}
}

func asInt(v interface{}) int64 {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n
		}
		if f, err := x.Float64(); err == nil {
			return int64(f)
		}
	case string:
		s := strings.TrimSpace(x)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int64(f)
		}
	case bool:
		if x {
			return 1
		}
	}
	return 0
}

func asBool(v interface{}) bool {
	switch x := v.(type) {
	case bool:
		return x
	case json.Number:
		f, err := x.Float64()
		return err == nil && f != 0
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(x))
		return err == nil && b
	}
	return false
}
