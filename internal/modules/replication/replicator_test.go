package replication

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yungbote/ielts-tutor-backend/internal/data/localstore"
	"github.com/yungbote/ielts-tutor-backend/internal/data/repos"
	"github.com/yungbote/ielts-tutor-backend/internal/data/repos/testutil"
	types "github.com/yungbote/ielts-tutor-backend/internal/domain"
	"github.com/yungbote/ielts-tutor-backend/internal/platform/gcp"
	"github.com/yungbote/ielts-tutor-backend/internal/platform/logger"
)

type recordingSink struct {
	mu     sync.Mutex
	writes map[string][]byte
	err    error
	wrote  chan string
}

func newRecordingSink() *recordingSink {
	return &recordingSink{writes: map[string][]byte{}, wrote: make(chan string, 16)}
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Write(_ context.Context, userID string, payload []byte, _ time.Time) error {
	s.mu.Lock()
	if s.err == nil {
		s.writes[userID] = payload
	}
	err := s.err
	s.mu.Unlock()
	s.wrote <- userID
	return err
}

func seedUser(t *testing.T, store localstore.Store) {
	t.Helper()
	ctx := context.Background()
	users := map[string]types.CredentialRecord{
		"linh": {User: types.User{ID: "linh", Name: "Linh", JoinedAt: 1}},
	}
	if err := store.Set(ctx, localstore.UsersKey(), users); err != nil {
		t.Fatalf("seed users: %v", err)
	}
	if err := store.Set(ctx, localstore.VocabKey("linh"), []types.VocabItem{{ID: "vocab_1", Word: "ubiquitous"}}); err != nil {
		t.Fatalf("seed vocab: %v", err)
	}
	if err := store.Set(ctx, localstore.NotesKey("linh"), types.GlobalNotes{Text: "practise part 2", SavedAt: 5}); err != nil {
		t.Fatalf("seed notes: %v", err)
	}
}

func TestBuildSnapshot(t *testing.T) {
	store := localstore.NewMemoryStore()
	seedUser(t, store)

	snap, err := BuildSnapshot(context.Background(), store, "linh")
	if err != nil {
		t.Fatalf("BuildSnapshot: %v", err)
	}
	if snap.User.Name != "Linh" || len(snap.Vocab) != 1 || snap.GlobalNotes.Text != "practise part 2" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.LessonNotes == nil || len(snap.LessonNotes) != 0 {
		t.Fatalf("lesson notes should be an empty list, got %#v", snap.LessonNotes)
	}

	unknown, err := BuildSnapshot(context.Background(), store, "ghost")
	if err != nil {
		t.Fatalf("BuildSnapshot unknown: %v", err)
	}
	if unknown.User.ID != "ghost" {
		t.Fatalf("unknown user should still carry its id, got %+v", unknown.User)
	}
}

func TestReplicatorWorkerWritesSnapshot(t *testing.T) {
	store := localstore.NewMemoryStore()
	seedUser(t, store)
	sink := newRecordingSink()
	r := NewReplicator(logger.NewNop(), store, sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)
	defer r.Stop()

	r.Enqueue("linh")
	select {
	case got := <-sink.wrote:
		if got != "linh" {
			t.Fatalf("wrote for %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for sync")
	}

	sink.mu.Lock()
	payload := sink.writes["linh"]
	sink.mu.Unlock()
	var decoded types.SnapshotPayload
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if decoded.User.ID != "linh" || decoded.Vocab[0].Word != "ubiquitous" {
		t.Fatalf("unexpected payload: %+v", decoded)
	}
}

func TestEnqueueNeverBlocks(t *testing.T) {
	r := NewReplicator(logger.NewNop(), localstore.NewMemoryStore(), nil, WithQueueSize(1))

	done := make(chan struct{})
	go func() {
		r.Enqueue("a")
		r.Enqueue("a")
		r.Enqueue("b")
		r.Enqueue("c")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Enqueue blocked on a full queue")
	}
	if len(r.queue) != 1 {
		t.Fatalf("queue length: want=1 got=%d", len(r.queue))
	}
	r.mu.Lock()
	pending := len(r.pending)
	r.mu.Unlock()
	if pending != 1 {
		t.Fatalf("dropped requests must not stay pending, got %d", pending)
	}
}

func TestSyncUserSinkError(t *testing.T) {
	store := localstore.NewMemoryStore()
	seedUser(t, store)
	sink := newRecordingSink()
	sink.err = errors.New("bucket offline")
	r := NewReplicator(logger.NewNop(), store, sink)

	if err := r.SyncUser(context.Background(), "linh"); err == nil {
		t.Fatalf("expected sink error to surface from SyncUser")
	}
}

func TestFlushDrainsQueueWithoutWorker(t *testing.T) {
	store := localstore.NewMemoryStore()
	seedUser(t, store)
	sink := newRecordingSink()
	r := NewReplicator(logger.NewNop(), store, sink)

	r.Enqueue("linh")
	r.Enqueue("linh")
	r.Flush(context.Background())

	if len(sink.wrote) != 1 {
		t.Fatalf("writes: want=1 got=%d", len(sink.wrote))
	}
	if len(r.queue) != 0 {
		t.Fatalf("queue should be empty after Flush, got %d", len(r.queue))
	}
	r.Enqueue("linh")
	if len(r.queue) != 1 {
		t.Fatalf("flushed user should be enqueueable again")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	r := NewReplicator(logger.NewNop(), localstore.NewMemoryStore(), nil)
	r.Stop()
	r.Start(context.Background())
	r.Start(context.Background())
	r.Stop()
	r.Stop()
}

func TestDBSinkUpserts(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	store := localstore.NewGormStore(db, log)
	seedUser(t, store)
	repo := repos.NewUserSnapshotRepo(db, log)

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := base
	r := NewReplicator(log, store, DBSink{Repo: repo}, WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	if err := r.SyncUser(ctx, "linh"); err != nil {
		t.Fatalf("SyncUser: %v", err)
	}
	clock = base.Add(time.Hour)
	if err := r.SyncUser(ctx, "linh"); err != nil {
		t.Fatalf("SyncUser again: %v", err)
	}

	row, err := repo.Get(ctx, nil, "linh")
	if err != nil || row == nil {
		t.Fatalf("Get: row=%v err=%v", row, err)
	}
	if !row.SyncedAt.Equal(clock) {
		t.Fatalf("synced_at: want=%v got=%v", clock, row.SyncedAt)
	}
}

type memObjects struct {
	objects map[string][]byte
}

func (m *memObjects) Put(_ context.Context, key string, data []byte, _ string) error {
	m.objects[key] = data
	return nil
}

func (m *memObjects) Get(_ context.Context, key string) ([]byte, error) {
	b, ok := m.objects[key]
	if !ok {
		return nil, gcp.ErrObjectNotFound
	}
	return b, nil
}

func (m *memObjects) List(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (m *memObjects) Close() error { return nil }

func TestGCSSinkKeysByUser(t *testing.T) {
	objects := &memObjects{objects: map[string][]byte{}}
	sink := GCSSink{Store: objects}
	if err := sink.Write(context.Background(), "linh", []byte(`{}`), time.Now()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := objects.Get(context.Background(), "linh.json"); err != nil {
		t.Fatalf("expected linh.json, got %v", err)
	}
}
