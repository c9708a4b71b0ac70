package gcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/yungbote/ielts-tutor-backend/internal/platform/logger"
)

// ErrObjectNotFound is returned by Get for keys that do not exist.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStore is the slice of GCS the snapshot sink needs.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

type bucketStore struct {
	log    *logger.Logger
	client *storage.Client
	bucket string
	prefix string
}

func NewBucketStore(ctx context.Context, log *logger.Logger, cfg StorageConfig) (ObjectStore, error) {
	if err := ValidateStorageConfig(cfg); err != nil {
		return nil, fmt.Errorf("validate object storage config: %w", err)
	}
	client, err := newStorageClientForMode(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("storage client: %w", err)
	}
	storeLog := log.With("service", "BucketStore", "bucket", cfg.Bucket, "mode", string(cfg.Mode))
	if cfg.CompatibilityFallback {
		storeLog.Warn("OBJECT_STORAGE_MODE unset; using emulator because STORAGE_EMULATOR_HOST is set")
	}
	return &bucketStore{log: storeLog, client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func newStorageClientForMode(ctx context.Context, cfg StorageConfig) (*storage.Client, error) {
	switch cfg.Mode {
	case ObjectStorageModeGCS:
		return storage.NewClient(ctx, ResolveCredentials(cfg.Credentials).Options(option.WithScopes(storage.ScopeReadWrite))...)
	case ObjectStorageModeGCSEmulator:
		_ = os.Setenv("STORAGE_EMULATOR_HOST", cfg.EmulatorHost)
		return storage.NewClient(ctx, option.WithoutAuthentication())
	default:
		return nil, &ObjectStorageConfigError{Code: ObjectStorageConfigErrorInvalidMode, Mode: string(cfg.Mode)}
	}
}

// ObjectKey joins the configured prefix and key.
func ObjectKey(prefix, key string) string {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if prefix == "" {
		return key
	}
	return path.Join(prefix, key)
}

func (s *bucketStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	name := ObjectKey(s.prefix, key)
	w := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	if contentType == "" {
		contentType = "application/json"
	}
	w.ContentType = contentType
	w.CacheControl = "no-cache"
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	s.log.Debug("Object written", "key", name, "bytes", len(data))
	return nil
}

func (s *bucketStore) Get(ctx context.Context, key string) ([]byte, error) {
	name := ObjectKey(s.prefix, key)
	r, err := s.client.Bucket(s.bucket).Object(name).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

// List returns keys relative to the store prefix.
func (s *bucketStore) List(ctx context.Context, prefix string) ([]string, error) {
	full := ObjectKey(s.prefix, prefix)
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: full})
	var keys []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", full, err)
		}
		rel := attrs.Name
		if s.prefix != "" {
			rel = strings.TrimPrefix(rel, s.prefix+"/")
		}
		keys = append(keys, rel)
	}
	return keys, nil
}

func (s *bucketStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
