package domain

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// RawRecord is one collected message exactly as it was captured. Rows are
// append-only: the same (SourceRecordID, ChannelName) pair may appear more
// than once across collection runs.
type RawRecord struct {
	ID             int64      `json:"id" db:"id"`
	SourceRecordID int64      `json:"message_id" db:"message_id"`
	ChannelName    string     `json:"channel_name" db:"channel_name"`
	CapturedAt     *time.Time `json:"message_date" db:"message_date"`
	Text           string     `json:"message_text" db:"message_text"`
	ViewCount      int64      `json:"views" db:"views"`
	ForwardCount   int64      `json:"forwards" db:"forwards"`
	HasAttachment  bool       `json:"has_media" db:"has_media"`
	AttachmentPath string     `json:"image_path,omitempty" db:"image_path"`
	Provenance     string     `json:"source_file" db:"source_file"`
	LoadedAt       time.Time  `json:"loaded_at" db:"loaded_at"`
}

// StagingRecord is the cleaned projection of a RawRecord. It only exists for
// rows with text and a timestamp.
type StagingRecord struct {
	SourceRecordID int64     `json:"message_id"`
	ChannelName    string    `json:"channel_name"`
	CapturedAt     time.Time `json:"message_date"`
	CalendarDate   time.Time `json:"message_date_date"`
	Text           string    `json:"message_text"`
	TextLength     int       `json:"message_length"`
	ViewCount      int64     `json:"views"`
	ForwardCount   int64     `json:"forwards"`
	HasAttachment  bool      `json:"has_image"`
}

// AttachmentKey is the storage-relative location of a record's attachment.
// It depends only on the channel and the source record id, so it can be
// recomputed at any time without a lookup.
func AttachmentKey(channelName string, sourceRecordID int64) string {
	return path.Join(channelName, fmt.Sprintf("%d.jpg", sourceRecordID))
}

// NormalizeChannel strips the leading marker and link prefixes users paste
// in place of a bare channel name ("@name", "https://t.me/name", "t.me/s/name").
// The result names attachment directories, so empty names and names holding
// path separators or ".." are rejected with ErrInvalidChannel.
func NormalizeChannel(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	for _, prefix := range []string{"https://", "http://"} {
		name = strings.TrimPrefix(name, prefix)
	}
	for _, prefix := range []string{"www.", "t.me/s/", "t.me/", "telegram.me/s/", "telegram.me/"} {
		name = strings.TrimPrefix(name, prefix)
	}
	name = strings.TrimPrefix(name, "@")
	name = strings.Trim(name, "/")
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidChannel, raw)
	}
	return name, nil
}
