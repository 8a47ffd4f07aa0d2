package postgres

import (
	"context"
	"fmt"

	"github.com/ignite/channel-warehouse/internal/domain"
)

// Counts returns the row count of every warehouse table.
func (r *MartRepo) Counts(ctx context.Context) (domain.WarehouseCounts, error) {
	var c domain.WarehouseCounts
	err := r.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM raw.telegram_messages),
			(SELECT COUNT(*) FROM staging.stg_telegram_messages),
			(SELECT COUNT(*) FROM marts.dim_channels),
			(SELECT COUNT(*) FROM marts.dim_dates),
			(SELECT COUNT(*) FROM marts.fct_messages)
	`).Scan(&c.Raw, &c.Staging, &c.Channels, &c.Dates, &c.Facts)
	if err != nil {
		return c, fmt.Errorf("warehouse counts: %w", err)
	}
	return c, nil
}

// OrphanFacts counts fact rows whose channel or date key has no dimension row.
func (r *MartRepo) OrphanFacts(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM marts.fct_messages f
		LEFT JOIN marts.dim_channels c ON c.channel_key = f.channel_key
		LEFT JOIN marts.dim_dates d ON d.date_key = f.date_key
		WHERE c.channel_key IS NULL OR d.date_key IS NULL
	`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("orphan facts: %w", err)
	}
	return n, nil
}

// CategoryBreakdown counts channels and fact rows per channel category.
func (r *MartRepo) CategoryBreakdown(ctx context.Context) ([]domain.CategoryCount, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.channel_type, COUNT(DISTINCT c.channel_key), COUNT(f.message_key)
		FROM marts.dim_channels c
		LEFT JOIN marts.fct_messages f ON f.channel_key = c.channel_key
		GROUP BY c.channel_type
		ORDER BY c.channel_type
	`)
	if err != nil {
		return nil, fmt.Errorf("category breakdown: %w", err)
	}
	defer rows.Close()

	var out []domain.CategoryCount
	for rows.Next() {
		var (
			cc       domain.CategoryCount
			category string
		)
		if err := rows.Scan(&category, &cc.Channels, &cc.Records); err != nil {
			return nil, err
		}
		cc.Category = domain.ChannelCategory(category)
		out = append(out, cc)
	}
	return out, rows.Err()
}

// SampleChannels returns up to limit channel rows by key.
func (r *MartRepo) SampleChannels(ctx context.Context, limit int) ([]domain.ChannelDimension, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT channel_key, channel_name, channel_type, first_post_date, last_post_date,
		       total_posts, avg_views, avg_forwards, total_images
		FROM marts.dim_channels
		ORDER BY channel_key
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("sample channels: %w", err)
	}
	defer rows.Close()

	var out []domain.ChannelDimension
	for rows.Next() {
		var (
			ch       domain.ChannelDimension
			category string
		)
		if err := rows.Scan(&ch.ChannelKey, &ch.ChannelName, &category, &ch.FirstSeenAt, &ch.LastSeenAt,
			&ch.TotalRecords, &ch.AvgViews, &ch.AvgForwards, &ch.TotalWithAttachment); err != nil {
			return nil, err
		}
		ch.Category = domain.ChannelCategory(category)
		out = append(out, ch)
	}
	return out, rows.Err()
}

// SampleDates returns up to limit date rows by key.
func (r *MartRepo) SampleDates(ctx context.Context, limit int) ([]domain.DateDimension, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT date_key, full_date, day_of_week, day_name, week_of_year,
		       month, month_name, quarter, year, is_weekend
		FROM marts.dim_dates
		ORDER BY date_key
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("sample dates: %w", err)
	}
	defer rows.Close()

	var out []domain.DateDimension
	for rows.Next() {
		var d domain.DateDimension
		if err := rows.Scan(&d.DateKey, &d.FullDate, &d.DayOfWeek, &d.DayName, &d.WeekOfYear,
			&d.Month, &d.MonthName, &d.Quarter, &d.Year, &d.IsWeekend); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// SampleFacts returns up to limit fact rows, most recent first.
func (r *MartRepo) SampleFacts(ctx context.Context, limit int) ([]domain.FactRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT message_key, message_id, channel_key, date_key, message_text,
		       message_length, view_count, forward_count, has_image, message_date
		FROM marts.fct_messages
		ORDER BY message_date DESC, message_key
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("sample facts: %w", err)
	}
	defer rows.Close()

	var out []domain.FactRecord
	for rows.Next() {
		var f domain.FactRecord
		if err := rows.Scan(&f.RecordKey, &f.SourceRecordID, &f.ChannelKey, &f.DateKey, &f.Text,
			&f.TextLength, &f.ViewCount, &f.ForwardCount, &f.HasAttachment, &f.CapturedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
