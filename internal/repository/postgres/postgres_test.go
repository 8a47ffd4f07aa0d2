package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/channel-warehouse/internal/domain"
)

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock, func() { db.Close() }
}

func at(s string) *time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return &t
}

func TestConnect_RetriesUntilPingSucceeds(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	mock.ExpectPing()

	require.NoError(t, Connect(context.Background(), db, 5, time.Millisecond))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConnect_ExhaustedIsStorageUnavailable(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	for i := 0; i < 3; i++ {
		mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	}

	err = Connect(context.Background(), db, 3, time.Millisecond)
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrations_OrderedAndEmbedded(t *testing.T) {
	migrations, err := Migrations()
	require.NoError(t, err)
	require.Len(t, migrations, 3)
	assert.Equal(t, "001_raw_messages.sql", migrations[0].Name)
	assert.Contains(t, migrations[1].SQL, "staging.stg_telegram_messages")
	assert.Contains(t, migrations[2].SQL, "marts.fct_messages")
}

// The staging view must project counts the same way staging.Project does.
func TestMigrations_StagingViewClampsCounts(t *testing.T) {
	migrations, err := Migrations()
	require.NoError(t, err)
	view := migrations[1].SQL
	assert.Contains(t, view, "GREATEST(COALESCE(views, 0), 0)")
	assert.Contains(t, view, "GREATEST(COALESCE(forwards, 0), 0)")
}

func TestMigrate_OneTransactionPerFile(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	for _, pattern := range []string{"CREATE TABLE IF NOT EXISTS raw", "CREATE OR REPLACE VIEW", "CREATE SCHEMA IF NOT EXISTS marts"} {
		mock.ExpectBegin()
		mock.ExpectExec(pattern).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()
	}

	n, err := Migrate(context.Background(), db)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_StopsOnFailure(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec("CREATE SCHEMA IF NOT EXISTS raw").WillReturnError(errors.New("permission denied"))
	mock.ExpectRollback()

	n, err := Migrate(context.Background(), db)
	assert.Error(t, err)
	assert.Equal(t, 0, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRawRepo_Exists(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM raw.telegram_messages`).
		WithArgs("CheMed123", int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := NewRawRepo(db).Exists(context.Background(), "CheMed123", 42)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRawRepo_InsertRawCommitsBatch(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	records := []domain.RawRecord{
		{SourceRecordID: 1, ChannelName: "demo", CapturedAt: at("2026-01-18T10:00:00Z"), Text: "a", ViewCount: 10, Provenance: "collector:x"},
		{SourceRecordID: 2, ChannelName: "demo", Text: "b", AttachmentPath: "data/demo/2.jpg", HasAttachment: true, Provenance: "collector:x"},
	}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO raw.telegram_messages")
	prep.ExpectExec().
		WithArgs(int64(1), "demo", sqlmock.AnyArg(), "a", int64(10), int64(0), false, nil, "collector:x").
		WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().
		WithArgs(int64(2), "demo", nil, "b", int64(0), int64(0), true, "data/demo/2.jpg", "collector:x").
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	n, err := NewRawRepo(db).InsertRaw(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRawRepo_InsertRawRollsBackOnError(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO raw.telegram_messages")
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	n, err := NewRawRepo(db).InsertRaw(context.Background(), []domain.RawRecord{
		{SourceRecordID: 1, ChannelName: "demo"},
		{SourceRecordID: 2, ChannelName: "demo"},
	})
	assert.Error(t, err)
	assert.Equal(t, 0, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRawRepo_InsertRawEmpty(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	n, err := NewRawRepo(db).InsertRaw(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRawRepo_ListRawHandlesNulls(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	loaded := time.Date(2026, 1, 18, 12, 0, 0, 0, time.UTC)
	captured := time.Date(2026, 1, 18, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT id, message_id, channel_name").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "message_id", "channel_name", "message_date", "message_text",
			"views", "forwards", "has_media", "image_path", "source_file", "loaded_at",
		}).
			AddRow(1, 10, "demo", captured, "hello", 5, 1, false, nil, "lake/a.json", loaded).
			AddRow(2, 11, "demo", nil, nil, 0, 0, true, "demo/11.jpg", "lake/a.json", loaded))

	recs, err := NewRawRepo(db).ListRaw(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.NotNil(t, recs[0].CapturedAt)
	assert.True(t, captured.Equal(*recs[0].CapturedAt))
	assert.Equal(t, "hello", recs[0].Text)
	assert.Nil(t, recs[1].CapturedAt)
	assert.Equal(t, "", recs[1].Text)
	assert.Equal(t, "demo/11.jpg", recs[1].AttachmentPath)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMartRepo_UpsertChannels(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	first := time.Date(2026, 1, 17, 9, 0, 0, 0, time.UTC)
	last := time.Date(2026, 1, 18, 9, 0, 0, 0, time.UTC)
	channels := []domain.ChannelDimension{
		{ChannelName: "tikvahpharma", Category: domain.CategoryPharmaceutical, FirstSeenAt: first, LastSeenAt: last, TotalRecords: 2, AvgViews: 15.5},
		{ChannelName: "CheMed123", Category: domain.CategoryMedical, FirstSeenAt: first, LastSeenAt: first, TotalRecords: 1},
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO marts.dim_channels .* ON CONFLICT \(channel_name\) DO UPDATE`).
		WithArgs("tikvahpharma", "Pharmaceutical", first, last, int64(2), 15.5, float64(0), int64(0)).
		WillReturnRows(sqlmock.NewRows([]string{"channel_key", "inserted"}).AddRow(1, true))
	mock.ExpectQuery(`INSERT INTO marts.dim_channels`).
		WithArgs("CheMed123", "Medical", first, first, int64(1), float64(0), float64(0), int64(0)).
		WillReturnRows(sqlmock.NewRows([]string{"channel_key", "inserted"}).AddRow(2, false))
	mock.ExpectCommit()

	ins, upd, err := NewMartRepo(db).UpsertChannels(context.Background(), channels)
	require.NoError(t, err)
	assert.Equal(t, 1, ins)
	assert.Equal(t, 1, upd)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMartRepo_InsertDatesCountsOnlyNewRows(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	dates := []domain.DateDimension{
		{DateKey: 20260117, FullDate: time.Date(2026, 1, 17, 0, 0, 0, 0, time.UTC), DayName: "Saturday"},
		{DateKey: 20260118, FullDate: time.Date(2026, 1, 18, 0, 0, 0, 0, time.UTC), DayName: "Sunday"},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO marts.dim_dates .* ON CONFLICT \(date_key\) DO NOTHING`).
		WithArgs(20260117, sqlmock.AnyArg(), 0, "Saturday", 0, 0, "", 0, 0, false).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO marts.dim_dates`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	n, err := NewMartRepo(db).InsertDates(context.Background(), dates)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMartRepo_InsertFactsSkipsExisting(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	facts := []domain.FactRecord{
		{RecordKey: "1-1", SourceRecordID: 1, ChannelKey: 1, DateKey: 20260118},
		{RecordKey: "2-1", SourceRecordID: 2, ChannelKey: 1, DateKey: 20260118},
	}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(`INSERT INTO marts.fct_messages .* ON CONFLICT \(message_key\) DO NOTHING`)
	prep.ExpectExec().WithArgs("1-1", int64(1), int64(1), 20260118, "", 0, int64(0), int64(0), false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WithArgs("2-1", int64(2), int64(1), 20260118, "", 0, int64(0), int64(0), false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	n, err := NewMartRepo(db).InsertFacts(context.Background(), facts)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMartRepo_Keys(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery("SELECT channel_name, channel_key FROM marts.dim_channels").
		WillReturnRows(sqlmock.NewRows([]string{"channel_name", "channel_key"}).AddRow("demo", 3).AddRow("other", 4))
	mock.ExpectQuery("SELECT date_key FROM marts.dim_dates").
		WillReturnRows(sqlmock.NewRows([]string{"date_key"}).AddRow(20260118))

	repo := NewMartRepo(db)
	ch, err := repo.ChannelKeys(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"demo": 3, "other": 4}, ch)

	dates, err := repo.DateKeys(context.Background())
	require.NoError(t, err)
	assert.True(t, dates[20260118])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMartRepo_EnsureFactIndexes(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	for _, name := range []string{"idx_fct_channel", "idx_fct_date", "idx_fct_image"} {
		mock.ExpectExec("CREATE INDEX IF NOT EXISTS " + name).WillReturnResult(sqlmock.NewResult(0, 0))
	}

	require.NoError(t, NewMartRepo(db).EnsureFactIndexes(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMartRepo_VerifyQueries(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM raw.telegram_messages`).
		WillReturnRows(sqlmock.NewRows([]string{"raw", "stg", "ch", "dt", "f"}).AddRow(4, 3, 2, 3, 3))
	mock.ExpectQuery(`LEFT JOIN marts.dim_channels`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`GROUP BY c.channel_type`).
		WillReturnRows(sqlmock.NewRows([]string{"channel_type", "channels", "records"}).
			AddRow("Medical", 1, 1).AddRow("Pharmaceutical", 1, 2))

	repo := NewMartRepo(db)
	ctx := context.Background()

	counts, err := repo.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.WarehouseCounts{Raw: 4, Staging: 3, Channels: 2, Dates: 3, Facts: 3}, counts)

	orphans, err := repo.OrphanFacts(ctx)
	require.NoError(t, err)
	assert.Zero(t, orphans)

	breakdown, err := repo.CategoryBreakdown(ctx)
	require.NoError(t, err)
	require.Len(t, breakdown, 2)
	assert.Equal(t, domain.CategoryPharmaceutical, breakdown[1].Category)
	assert.Equal(t, int64(2), breakdown[1].Records)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMartRepo_SampleChannels(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	now := time.Date(2026, 1, 18, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("FROM marts.dim_channels").WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{
			"channel_key", "channel_name", "channel_type", "first_post_date", "last_post_date",
			"total_posts", "avg_views", "avg_forwards", "total_images",
		}).AddRow(1, "demo", "Medical", now, now, 3, "20.00", "1.50", 1))

	out, err := NewMartRepo(db).SampleChannels(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 20.0, out[0].AvgViews)
	assert.Equal(t, domain.CategoryMedical, out[0].Category)
	assert.NoError(t, mock.ExpectationsWereMet())
}
