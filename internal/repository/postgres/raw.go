package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/channel-warehouse/internal/domain"
)

// RawRepo is the append-only raw.telegram_messages table.
type RawRepo struct{ db *sql.DB }

// NewRawRepo creates a Postgres-backed raw store.
func NewRawRepo(db *sql.DB) *RawRepo { return &RawRepo{db: db} }

// Exists reports whether any raw row already carries this natural key.
func (r *RawRepo) Exists(ctx context.Context, channel string, sourceRecordID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM raw.telegram_messages WHERE channel_name = $1 AND message_id = $2)`,
		channel, sourceRecordID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("raw exists: %w", err)
	}
	return exists, nil
}

// InsertRaw appends records in a single transaction: either every row of
// the batch is committed or none is.
func (r *RawRepo) InsertRaw(ctx context.Context, records []domain.RawRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	inserted := 0
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO raw.telegram_messages (
				message_id, channel_name, message_date, message_text,
				views, forwards, has_media, image_path, source_file
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`)
		if err != nil {
			return fmt.Errorf("prepare raw insert: %w", err)
		}
		defer stmt.Close()

		for _, rec := range records {
			var capturedAt sql.NullTime
			if rec.CapturedAt != nil {
				capturedAt = sql.NullTime{Time: rec.CapturedAt.UTC(), Valid: true}
			}
			_, err := stmt.ExecContext(ctx,
				rec.SourceRecordID, rec.ChannelName, capturedAt, rec.Text,
				rec.ViewCount, rec.ForwardCount, rec.HasAttachment,
				nullIfEmpty(rec.AttachmentPath), rec.Provenance,
			)
			if err != nil {
				return fmt.Errorf("insert raw %s/%d: %w", rec.ChannelName, rec.SourceRecordID, err)
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// ListRaw returns every raw row in load order.
func (r *RawRepo) ListRaw(ctx context.Context) ([]domain.RawRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, message_id, channel_name, message_date, message_text,
		       views, forwards, has_media, image_path, source_file, loaded_at
		FROM raw.telegram_messages
		ORDER BY loaded_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list raw: %w", err)
	}
	defer rows.Close()

	var out []domain.RawRecord
	for rows.Next() {
		var (
			rec        domain.RawRecord
			capturedAt sql.NullTime
			text       sql.NullString
			imagePath  sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.SourceRecordID, &rec.ChannelName, &capturedAt, &text,
			&rec.ViewCount, &rec.ForwardCount, &rec.HasAttachment, &imagePath, &rec.Provenance, &rec.LoadedAt); err != nil {
			return nil, fmt.Errorf("scan raw: %w", err)
		}
		if capturedAt.Valid {
			t := capturedAt.Time.UTC()
			rec.CapturedAt = &t
		}
		rec.Text = text.String
		rec.AttachmentPath = imagePath.String
		out = append(out, rec)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
