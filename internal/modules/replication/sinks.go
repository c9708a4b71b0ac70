package replication

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/yungbote/ielts-tutor-backend/internal/data/repos"
	pkgerrors "github.com/yungbote/ielts-tutor-backend/internal/pkg/errors"
	"github.com/yungbote/ielts-tutor-backend/internal/platform/gcp"
)

var ErrNoSnapshot = pkgerrors.NotFound("no snapshot for this user")

// Source reads back what a Sink wrote. Read returns ErrNoSnapshot when the user was never
// replicated.
type Source interface {
	Read(ctx context.Context, userID string) ([]byte, error)
	List(ctx context.Context) ([]string, error)
}

// DBSink upserts one user_snapshot row per user.
type DBSink struct {
	Repo repos.UserSnapshotRepo
}

func (DBSink) Name() string { return "db" }

func (s DBSink) Write(ctx context.Context, userID string, payload []byte, syncedAt time.Time) error {
	return s.Repo.Upsert(ctx, nil, userID, payload, syncedAt)
}

func (s DBSink) Read(ctx context.Context, userID string) ([]byte, error) {
	row, err := s.Repo.Get(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, ErrNoSnapshot
	}
	return row.Payload, nil
}

func (s DBSink) List(ctx context.Context) ([]string, error) {
	return s.Repo.ListUserIDs(ctx, nil)
}

// GCSSink writes <userId>.json under the bucket store's prefix.
type GCSSink struct {
	Store gcp.ObjectStore
}

func (GCSSink) Name() string { return "gcs" }

func (s GCSSink) Write(ctx context.Context, userID string, payload []byte, _ time.Time) error {
	return s.Store.Put(ctx, SnapshotObjectKey(userID), payload, "application/json")
}

func (s GCSSink) Read(ctx context.Context, userID string) ([]byte, error) {
	b, err := s.Store.Get(ctx, SnapshotObjectKey(userID))
	if errors.Is(err, gcp.ErrObjectNotFound) {
		return nil, ErrNoSnapshot
	}
	return b, err
}

// List skips objects under the prefix that are not snapshots.
func (s GCSSink) List(ctx context.Context) ([]string, error) {
	keys, err := s.Store.List(ctx, "")
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		id, ok := strings.CutSuffix(k, snapshotObjectSuffix)
		if !ok || id == "" || strings.Contains(id, "/") {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

const snapshotObjectSuffix = ".json"

func SnapshotObjectKey(userID string) string { return userID + snapshotObjectSuffix }

type NopSink struct{}

func (NopSink) Name() string { return "none" }

func (NopSink) Write(context.Context, string, []byte, time.Time) error { return nil }

func (NopSink) Read(context.Context, string) ([]byte, error) { return nil, ErrNoSnapshot }

func (NopSink) List(context.Context) ([]string, error) { return nil, nil }
