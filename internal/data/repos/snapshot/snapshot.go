package snapshot

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/ielts-tutor-backend/internal/domain"
	"github.com/yungbote/ielts-tutor-backend/internal/platform/logger"
)

type UserSnapshotRepo interface {
	Upsert(ctx context.Context, tx *gorm.DB, userID string, payload []byte, syncedAt time.Time) error
	Get(ctx context.Context, tx *gorm.DB, userID string) (*types.UserSnapshot, error)
	ListUserIDs(ctx context.Context, tx *gorm.DB) ([]string, error)
}

type userSnapshotRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserSnapshotRepo(db *gorm.DB, baseLog *logger.Logger) UserSnapshotRepo {
	repoLog := baseLog.With("repo", "UserSnapshotRepo")
	return &userSnapshotRepo{db: db, log: repoLog}
}

func (r *userSnapshotRepo) Upsert(ctx context.Context, tx *gorm.DB, userID string, payload []byte, syncedAt time.Time) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	row := types.UserSnapshot{UserID: userID, Payload: payload, SyncedAt: syncedAt.UTC()}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"payload", "synced_at"}),
		}).
		Create(&row).Error
}

// Get returns nil, nil when the user was never replicated.
func (r *userSnapshotRepo) Get(ctx context.Context, tx *gorm.DB, userID string) (*types.UserSnapshot, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var row types.UserSnapshot
	err := transaction.WithContext(ctx).Where("user_id = ?", userID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *userSnapshotRepo) ListUserIDs(ctx context.Context, tx *gorm.DB) ([]string, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var ids []string
	if err := transaction.WithContext(ctx).Model(&types.UserSnapshot{}).Order("user_id").Pluck("user_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
