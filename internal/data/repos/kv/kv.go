package kv

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/ielts-tutor-backend/internal/domain"
	"github.com/yungbote/ielts-tutor-backend/internal/platform/logger"
)

type KVRepo interface {
	Get(ctx context.Context, tx *gorm.DB, key string) (*types.KVEntry, error)
	Upsert(ctx context.Context, tx *gorm.DB, key string, value []byte) error
	Delete(ctx context.Context, tx *gorm.DB, key string) error
	KeysWithPrefix(ctx context.Context, tx *gorm.DB, prefix string) ([]string, error)
}

type kvRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewKVRepo(db *gorm.DB, baseLog *logger.Logger) KVRepo {
	repoLog := baseLog.With("repo", "KVRepo")
	return &kvRepo{db: db, log: repoLog}
}

// Get returns nil, nil when the key is absent.
func (r *kvRepo) Get(ctx context.Context, tx *gorm.DB, key string) (*types.KVEntry, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var entry types.KVEntry
	err := transaction.WithContext(ctx).Where("key = ?", key).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *kvRepo) Upsert(ctx context.Context, tx *gorm.DB, key string, value []byte) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	entry := types.KVEntry{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&entry).Error
}

func (r *kvRepo) Delete(ctx context.Context, tx *gorm.DB, key string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Where("key = ?", key).Delete(&types.KVEntry{}).Error
}

func (r *kvRepo) KeysWithPrefix(ctx context.Context, tx *gorm.DB, prefix string) ([]string, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var keys []string
	q := transaction.WithContext(ctx).Model(&types.KVEntry{})
	if prefix != "" {
		q = q.Where("key LIKE ? ESCAPE '\\'", escapeLike(prefix)+"%")
	}
	if err := q.Order("key ASC").Pluck("key", &keys).Error; err != nil {
		return nil, err
	}
	return keys, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
