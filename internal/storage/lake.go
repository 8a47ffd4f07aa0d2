package storage

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"
)

const lakeTable = "telegram_messages"

// Lake archives raw JSON batches as
// {prefix}/telegram_messages/{YYYY-MM-DD}/{channel}.json.
type Lake struct {
	backend Backend
	prefix  string
}

// NewLake creates a lake rooted at prefix inside backend.
func NewLake(backend Backend, prefix string) *Lake {
	return &Lake{backend: backend, prefix: strings.Trim(prefix, "/")}
}

// BatchKey returns the object key for one channel's batch on day.
func (l *Lake) BatchKey(channel string, day time.Time) string {
	return path.Join(l.prefix, lakeTable, day.UTC().Format("2006-01-02"), channel+".json")
}

// WriteBatch stores a channel's JSON batch and returns its key. A second
// write for the same channel and day replaces the first.
func (l *Lake) WriteBatch(ctx context.Context, channel string, day time.Time, payload []byte) (string, error) {
	return l.put(ctx, l.BatchKey(channel, day), payload)
}

// RunBatchKey is the object key for the batch one collection run produced
// for a channel on day. Runs never share a key.
func (l *Lake) RunBatchKey(channel, runID string, day time.Time) string {
	return path.Join(l.prefix, lakeTable, day.UTC().Format("2006-01-02"), channel+"-"+runID+".json")
}

// WriteRunBatch stores one collection run's batch for a channel and returns
// its key.
func (l *Lake) WriteRunBatch(ctx context.Context, channel, runID string, day time.Time, payload []byte) (string, error) {
	return l.put(ctx, l.RunBatchKey(channel, runID, day), payload)
}

// WriteNamed stores a batch under {prefix}/telegram_messages/{name}.
func (l *Lake) WriteNamed(ctx context.Context, name string, payload []byte) (string, error) {
	return l.put(ctx, path.Join(l.prefix, lakeTable, name), payload)
}

func (l *Lake) put(ctx context.Context, key string, payload []byte) (string, error) {
	if err := l.backend.Put(ctx, key, payload, "application/json"); err != nil {
		return "", fmt.Errorf("write lake batch %s: %w", key, err)
	}
	return key, nil
}

// Batches lists every *.json batch key in lexical order.
func (l *Lake) Batches(ctx context.Context) ([]string, error) {
	all, err := l.backend.List(ctx, path.Join(l.prefix, lakeTable))
	if err != nil {
		return nil, fmt.Errorf("list lake batches: %w", err)
	}
	keys := make([]string, 0, len(all))
	for _, k := range all {
		if strings.HasSuffix(k, ".json") {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// ReadBatch returns the payload stored at key.
func (l *Lake) ReadBatch(ctx context.Context, key string) ([]byte, error) {
	return l.backend.Get(ctx, key)
}
