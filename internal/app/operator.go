package app

import (
	"context"
	"fmt"

	datadb "github.com/yungbote/ielts-tutor-backend/internal/data/db"
	"github.com/yungbote/ielts-tutor-backend/internal/data/localstore"
	types "github.com/yungbote/ielts-tutor-backend/internal/domain"
	"github.com/yungbote/ielts-tutor-backend/internal/modules/identity"
	"github.com/yungbote/ielts-tutor-backend/internal/modules/notes"
	"github.com/yungbote/ielts-tutor-backend/internal/modules/replication"
	"github.com/yungbote/ielts-tutor-backend/internal/modules/vocab"
	"github.com/yungbote/ielts-tutor-backend/internal/platform/logger"
)

// Operator is the offline slice of the app used by ieltsctl: the same store and snapshot sink
// as the server, without HTTP or AI clients. Changes are replicated when Close runs.
type Operator struct {
	Identity *identity.Service
	Vocab    vocab.Service
	Notes    notes.Service

	log        *logger.Logger
	db         *datadb.Service
	store      localstore.Store
	snapshots  replication.Source
	replicator *replication.Replicator
	closeSink  func() error
}

func NewOperator(ctx context.Context, log *logger.Logger, cfg Config) (*Operator, error) {
	dbsvc, store, err := OpenStore(log, cfg)
	if err != nil {
		return nil, err
	}
	reposet := wireRepos(dbsvc.DB(), log)
	sink, closeSink, err := resolveSnapshotSink(ctx, log, cfg, reposet.Snapshots)
	if err != nil {
		_ = dbsvc.Close()
		return nil, err
	}
	src, ok := sink.(replication.Source)
	if !ok {
		_ = closeSink()
		_ = dbsvc.Close()
		return nil, fmt.Errorf("snapshot sink %s cannot be read back", sink.Name())
	}
	repl := replication.NewReplicator(log, store, sink)
	return &Operator{
		Identity: identity.NewService(log, store, repl, identity.Config{
			JWTSecret:     cfg.JWTSecretKey,
			TokenTTL:      cfg.AccessTokenTTL,
			AdminPassword: cfg.AdminPassword,
		}),
		// Offline tools never call the model; imports and exports only touch the store.
		Vocab:      vocab.NewService(log, store, nil, repl),
		Notes:      notes.NewService(log, store, nil, repl),
		log:        log,
		db:         dbsvc,
		store:      store,
		snapshots:  src,
		replicator: repl,
		closeSink:  closeSink,
	}, nil
}

// Snapshots lists the users with a replicated snapshot in the configured sink.
func (o *Operator) Snapshots(ctx context.Context) ([]string, error) {
	return o.snapshots.List(ctx)
}

// RestoreSnapshot rewrites a learner's vocabulary and notes from the sink.
func (o *Operator) RestoreSnapshot(ctx context.Context, userID string) (types.SnapshotPayload, error) {
	snap, err := replication.Restore(ctx, o.store, o.snapshots, userID)
	if err != nil {
		return snap, err
	}
	o.log.Info("Snapshot restored", "user_id", userID, "words", len(snap.Vocab), "lesson_notes", len(snap.LessonNotes))
	return snap, nil
}

func (o *Operator) Close(ctx context.Context) {
	if o == nil {
		return
	}
	o.replicator.Flush(ctx)
	if o.closeSink != nil {
		_ = o.closeSink()
	}
	_ = o.db.Close()
	o.log.Sync()
}
