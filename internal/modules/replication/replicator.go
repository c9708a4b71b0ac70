package replication

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/yungbote/ielts-tutor-backend/internal/data/localstore"
	types "github.com/yungbote/ielts-tutor-backend/internal/domain"
	"github.com/yungbote/ielts-tutor-backend/internal/observability"
	"github.com/yungbote/ielts-tutor-backend/internal/platform/logger"
)

const (
	DefaultQueueSize = 128
	syncTimeout      = 15 * time.Second
)

// Sink stores a user's snapshot somewhere outside the local store.
type Sink interface {
	Name() string
	Write(ctx context.Context, userID string, payload []byte, syncedAt time.Time) error
}

// Replicator copies user snapshots to a Sink in the background. Enqueue never blocks.
type Replicator struct {
	log   *logger.Logger
	store localstore.Store
	sink  Sink
	now   func() time.Time

	queue chan string

	mu      sync.Mutex
	pending map[string]bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type Option func(*Replicator)

func WithQueueSize(n int) Option {
	return func(r *Replicator) {
		if n > 0 {
			r.queue = make(chan string, n)
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Replicator) {
		if now != nil {
			r.now = now
		}
	}
}

func NewReplicator(baseLog *logger.Logger, store localstore.Store, sink Sink, opts ...Option) *Replicator {
	if sink == nil {
		sink = NopSink{}
	}
	r := &Replicator{
		log:     baseLog.With("component", "Replicator", "sink", sink.Name()),
		store:   store,
		sink:    sink,
		now:     time.Now,
		queue:   make(chan string, DefaultQueueSize),
		pending: map[string]bool{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Enqueue schedules a sync for userID. Requests for a user already waiting in the queue
// collapse into one; a full queue drops the request.
func (r *Replicator) Enqueue(userID string) {
	if r == nil || userID == "" {
		return
	}
	r.mu.Lock()
	if r.pending[userID] {
		r.mu.Unlock()
		return
	}
	r.pending[userID] = true
	r.mu.Unlock()

	select {
	case r.queue <- userID:
	default:
		r.mu.Lock()
		delete(r.pending, userID)
		r.mu.Unlock()
		r.log.Warn("Replication queue full; dropping sync", "user_id", userID)
		observability.Current().IncReplication(r.sink.Name(), "dropped")
	}
}

// Start launches the worker. Calling it twice is a no-op.
func (r *Replicator) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.wg.Add(1)
	go r.runLoop(ctx)
	r.log.Info("Replication worker started")
}

// Stop ends the worker after it finishes the sync in progress.
func (r *Replicator) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	r.wg.Wait()
	r.log.Info("Replication worker stopped")
}

// Flush syncs every queued user on the caller's goroutine. Call it after Stop on shutdown
// or from one-shot tools that never start the worker.
func (r *Replicator) Flush(ctx context.Context) {
	for {
		select {
		case userID := <-r.queue:
			r.mu.Lock()
			delete(r.pending, userID)
			r.mu.Unlock()
			r.syncSafely(ctx, userID)
		default:
			return
		}
	}
}

func (r *Replicator) runLoop(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case userID := <-r.queue:
			r.mu.Lock()
			delete(r.pending, userID)
			r.mu.Unlock()
			r.syncSafely(ctx, userID)
		}
	}
}

func (r *Replicator) syncSafely(ctx context.Context, userID string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("Replication panic", "user_id", userID, "panic", rec)
		}
	}()
	syncCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), syncTimeout)
	defer cancel()
	if err := r.SyncUser(syncCtx, userID); err != nil {
		r.log.Warn("Snapshot sync failed", "user_id", userID, "error", err)
	}
}

// SyncUser builds and writes the snapshot for userID synchronously.
func (r *Replicator) SyncUser(ctx context.Context, userID string) error {
	payload, err := BuildSnapshot(ctx, r.store, userID)
	if err != nil {
		observability.Current().IncReplication(r.sink.Name(), "error")
		return err
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := r.sink.Write(ctx, userID, b, r.now()); err != nil {
		observability.Current().IncReplication(r.sink.Name(), "error")
		return fmt.Errorf("write snapshot: %w", err)
	}
	observability.Current().IncReplication(r.sink.Name(), "ok")
	return nil
}

// BuildSnapshot gathers everything the local store holds for one user.
func BuildSnapshot(ctx context.Context, store localstore.Store, userID string) (types.SnapshotPayload, error) {
	out := types.SnapshotPayload{Vocab: []types.VocabItem{}, LessonNotes: []types.LessonNote{}}

	users := map[string]types.CredentialRecord{}
	if _, err := store.Get(ctx, localstore.UsersKey(), &users); err != nil {
		return out, fmt.Errorf("load users: %w", err)
	}
	if rec, ok := users[userID]; ok {
		out.User = rec.User
	} else {
		out.User = types.User{ID: userID, Name: userID}
	}
	if _, err := store.Get(ctx, localstore.VocabKey(userID), &out.Vocab); err != nil {
		return out, fmt.Errorf("load vocab: %w", err)
	}
	if _, err := store.Get(ctx, localstore.NotesKey(userID), &out.GlobalNotes); err != nil {
		return out, fmt.Errorf("load notes: %w", err)
	}
	if _, err := store.Get(ctx, localstore.LessonNotesKey(userID), &out.LessonNotes); err != nil {
		return out, fmt.Errorf("load lesson notes: %w", err)
	}
	return out, nil
}
