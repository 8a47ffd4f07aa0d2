package distlock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return mr, redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestRedisLock_ExclusiveUntilReleased(t *testing.T) {
	mr, client := setupRedis(t)
	ctx := context.Background()

	first := NewRedisLock(client, "run", time.Minute)
	second := NewRedisLock(client, "run", time.Minute)

	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists("lock:run"))

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	// A non-owner release leaves the lock in place
	require.NoError(t, second.Release(ctx))
	assert.True(t, mr.Exists("lock:run"))

	require.NoError(t, first.Release(ctx))
	assert.False(t, mr.Exists("lock:run"))

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLock_Extend(t *testing.T) {
	mr, client := setupRedis(t)
	ctx := context.Background()

	l := NewRedisLock(client, "run", time.Second)
	ok, err := l.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, l.Extend(ctx, time.Minute))
	assert.Equal(t, time.Minute, mr.TTL("lock:run"))

	mr.FastForward(2 * time.Minute)
	assert.Error(t, l.Extend(ctx, time.Minute))
}

func TestWithLock_RejectsConcurrentRun(t *testing.T) {
	mr, client := setupRedis(t)
	ctx := context.Background()

	holder := NewRedisLock(client, "run", time.Minute)
	ok, err := holder.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	ran := false
	err = WithLock(ctx, NewRedisLock(client, "run", time.Minute), time.Minute, func(context.Context) error {
		ran = true
		return nil
	})
	assert.ErrorIs(t, err, ErrLockHeld)
	assert.False(t, ran)
	assert.True(t, mr.Exists("lock:run"))
}

func TestWithLock_ReleasesAfterError(t *testing.T) {
	mr, client := setupRedis(t)
	boom := errors.New("boom")

	err := WithLock(context.Background(), NewRedisLock(client, "run", time.Minute), time.Minute, func(context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("lock:run"))
}

func TestPGAdvisoryLock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	l := NewPGAdvisoryLock(db, "channel-warehouse:run")

	mock.ExpectQuery(`SELECT pg_try_advisory_lock\(\$1\)`).
		WithArgs(l.lockID).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))
	mock.ExpectExec(`SELECT pg_advisory_unlock\(\$1\)`).
		WithArgs(l.lockID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := l.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, l.Release(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGAdvisoryLock_NotAcquired(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT pg_try_advisory_lock`).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(false))

	l := NewPGAdvisoryLock(db, "channel-warehouse:run")
	ok, err := l.Acquire(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, l.Release(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewLock_PicksBackend(t *testing.T) {
	_, client := setupRedis(t)
	assert.IsType(t, &RedisLock{}, NewLock(client, nil, "k", time.Minute))
	assert.IsType(t, &PGAdvisoryLock{}, NewLock(nil, nil, "k", time.Minute))
}
