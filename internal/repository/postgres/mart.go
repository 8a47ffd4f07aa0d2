package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/channel-warehouse/internal/domain"
)

// MartRepo writes and reads the marts namespace.
type MartRepo struct{ db *sql.DB }

// NewMartRepo creates a Postgres-backed mart store.
func NewMartRepo(db *sql.DB) *MartRepo { return &MartRepo{db: db} }

// UpsertChannels inserts unseen channels and refreshes the aggregates of
// known ones. channel_key is never touched on conflict.
func (r *MartRepo) UpsertChannels(ctx context.Context, channels []domain.ChannelDimension) (inserted, updated int, err error) {
	err = withTx(ctx, r.db, func(tx *sql.Tx) error {
		for _, ch := range channels {
			var (
				key   int64
				isNew bool
			)
			err := tx.QueryRowContext(ctx, `
				INSERT INTO marts.dim_channels (
					channel_name, channel_type, first_post_date, last_post_date,
					total_posts, avg_views, avg_forwards, total_images
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				ON CONFLICT (channel_name) DO UPDATE SET
					channel_type    = EXCLUDED.channel_type,
					first_post_date = EXCLUDED.first_post_date,
					last_post_date  = EXCLUDED.last_post_date,
					total_posts     = EXCLUDED.total_posts,
					avg_views       = EXCLUDED.avg_views,
					avg_forwards    = EXCLUDED.avg_forwards,
					total_images    = EXCLUDED.total_images,
					loaded_at       = NOW()
				RETURNING channel_key, (xmax = 0) AS inserted
			`, ch.ChannelName, string(ch.Category), ch.FirstSeenAt, ch.LastSeenAt,
				ch.TotalRecords, ch.AvgViews, ch.AvgForwards, ch.TotalWithAttachment,
			).Scan(&key, &isNew)
			if err != nil {
				return fmt.Errorf("upsert channel %s: %w", ch.ChannelName, err)
			}
			if isNew {
				inserted++
			} else {
				updated++
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return inserted, updated, nil
}

// InsertDates inserts calendar rows that do not exist yet.
func (r *MartRepo) InsertDates(ctx context.Context, dates []domain.DateDimension) (int, error) {
	inserted := 0
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		for _, d := range dates {
			res, err := tx.ExecContext(ctx, `
				INSERT INTO marts.dim_dates (
					date_key, full_date, day_of_week, day_name, week_of_year,
					month, month_name, quarter, year, is_weekend
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
				ON CONFLICT (date_key) DO NOTHING
			`, d.DateKey, d.FullDate, d.DayOfWeek, d.DayName, d.WeekOfYear,
				d.Month, d.MonthName, d.Quarter, d.Year, d.IsWeekend)
			if err != nil {
				return fmt.Errorf("insert date %d: %w", d.DateKey, err)
			}
			n, _ := res.RowsAffected()
			inserted += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// ChannelKeys maps every channel_name to its surrogate key.
func (r *MartRepo) ChannelKeys(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT channel_name, channel_key FROM marts.dim_channels`)
	if err != nil {
		return nil, fmt.Errorf("channel keys: %w", err)
	}
	defer rows.Close()

	keys := make(map[string]int64)
	for rows.Next() {
		var (
			name string
			key  int64
		)
		if err := rows.Scan(&name, &key); err != nil {
			return nil, err
		}
		keys[name] = key
	}
	return keys, rows.Err()
}

// DateKeys returns the set of date_key values present.
func (r *MartRepo) DateKeys(ctx context.Context) (map[int]bool, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT date_key FROM marts.dim_dates`)
	if err != nil {
		return nil, fmt.Errorf("date keys: %w", err)
	}
	defer rows.Close()

	keys := make(map[int]bool)
	for rows.Next() {
		var key int
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys[key] = true
	}
	return keys, rows.Err()
}

// InsertFacts inserts fact rows whose message_key is new. Existing rows are
// left as they are.
func (r *MartRepo) InsertFacts(ctx context.Context, facts []domain.FactRecord) (int, error) {
	if len(facts) == 0 {
		return 0, nil
	}

	inserted := 0
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO marts.fct_messages (
				message_key, message_id, channel_key, date_key,
				message_text, message_length, view_count, forward_count,
				has_image, message_date
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (message_key) DO NOTHING
		`)
		if err != nil {
			return fmt.Errorf("prepare fact insert: %w", err)
		}
		defer stmt.Close()

		for _, f := range facts {
			res, err := stmt.ExecContext(ctx,
				f.RecordKey, f.SourceRecordID, f.ChannelKey, f.DateKey,
				f.Text, f.TextLength, f.ViewCount, f.ForwardCount,
				f.HasAttachment, f.CapturedAt,
			)
			if err != nil {
				return fmt.Errorf("insert fact %s: %w", f.RecordKey, err)
			}
			n, _ := res.RowsAffected()
			inserted += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// EnsureFactIndexes creates the read-path indexes on the fact table.
func (r *MartRepo) EnsureFactIndexes(ctx context.Context) error {
	for _, stmt := range []string{
		`CREATE INDEX IF NOT EXISTS idx_fct_channel ON marts.fct_messages (channel_key)`,
		`CREATE INDEX IF NOT EXISTS idx_fct_date ON marts.fct_messages (date_key)`,
		`CREATE INDEX IF NOT EXISTS idx_fct_image ON marts.fct_messages (has_image)`,
	} {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create fact index: %w", err)
		}
	}
	return nil
}
