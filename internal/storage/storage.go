// Package storage persists attachment files and raw lake batches on either
// the local filesystem or S3.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ignite/channel-warehouse/internal/config"
	"github.com/ignite/channel-warehouse/internal/domain"
	"github.com/ignite/channel-warehouse/internal/pkg/logger"
)

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = errors.New("object not found")

// Backend is a flat key/value object store. Keys use forward slashes.
type Backend interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]string, error)
	// Location renders key as a path or URL for the raw store.
	Location(key string) string
}

// Storage saves collected attachments under {channel}/{id}.jpg.
type Storage struct {
	config  config.StorageConfig
	backend Backend
}

// New creates a Storage instance for the configured backend type.
func New(ctx context.Context, cfg config.StorageConfig) (*Storage, error) {
	var backend Backend

	switch cfg.Type {
	case "aws":
		awsStorage, err := NewAWSStorage(ctx, cfg.S3Bucket, cfg.S3Prefix, cfg.AWSRegion, cfg.GetAWSProfile())
		if err != nil {
			return nil, fmt.Errorf("initializing AWS storage: %w", err)
		}
		backend = awsStorage
	case "local", "":
		local, err := NewLocalStorage(cfg.LocalPath)
		if err != nil {
			return nil, err
		}
		backend = local
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}

	return NewWithBackend(cfg, backend), nil
}

// NewWithBackend wires an already constructed backend.
func NewWithBackend(cfg config.StorageConfig, backend Backend) *Storage {
	return &Storage{config: cfg, backend: backend}
}

// Backend exposes the underlying object store, shared with the lake.
func (s *Storage) Backend() Backend { return s.backend }

// AttachmentExists reports whether the attachment for a record is stored.
func (s *Storage) AttachmentExists(ctx context.Context, channel string, sourceRecordID int64) (bool, error) {
	return s.backend.Exists(ctx, domain.AttachmentKey(channel, sourceRecordID))
}

// AttachmentLocation is where the attachment for a record lives, whether or
// not it has been stored yet.
func (s *Storage) AttachmentLocation(channel string, sourceRecordID int64) string {
	return s.backend.Location(domain.AttachmentKey(channel, sourceRecordID))
}

// SaveAttachment stores an attachment and returns its location. Images are
// re-encoded as bounded-width JPEG when normalization is enabled; a payload
// that does not decode is stored as received.
func (s *Storage) SaveAttachment(ctx context.Context, channel string, sourceRecordID int64, data []byte) (string, error) {
	key := domain.AttachmentKey(channel, sourceRecordID)
	if s.config.NormalizeImage {
		normalized, err := NormalizeJPEG(data, s.config.MaxImageWidth, s.config.JPEGQuality)
		if err != nil {
			logger.Warn("storage: keeping attachment bytes as received", "key", key, "error", err)
		} else {
			data = normalized
		}
	}
	if err := s.backend.Put(ctx, key, data, "image/jpeg"); err != nil {
		return "", fmt.Errorf("save attachment %s: %w", key, err)
	}
	return s.backend.Location(key), nil
}

// LocalStorage keeps objects as files below a base directory.
type LocalStorage struct {
	base string
}

// NewLocalStorage ensures the base directory exists.
func NewLocalStorage(base string) (*LocalStorage, error) {
	if err := os.MkdirAll(base, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	return &LocalStorage{base: base}, nil
}

func (l *LocalStorage) path(key string) string {
	return filepath.Join(l.base, filepath.FromSlash(key))
}

// Put writes the object through a temp file so readers never see a partial file.
func (l *LocalStorage) Put(_ context.Context, key string, data []byte, _ string) error {
	p := l.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return err
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, p)
}

func (l *LocalStorage) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(l.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return data, err
}

func (l *LocalStorage) Exists(_ context.Context, key string) (bool, error) {
	_, err := os.Stat(l.path(key))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// List returns the keys under prefix in lexical order.
func (l *LocalStorage) List(_ context.Context, prefix string) ([]string, error) {
	root := l.path(prefix)
	var keys []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() || strings.HasSuffix(p, ".tmp") {
			return nil
		}
		rel, err := filepath.Rel(l.base, p)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

func (l *LocalStorage) Location(key string) string {
	return l.path(key)
}
