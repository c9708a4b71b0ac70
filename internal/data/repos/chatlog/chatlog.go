package chatlog

import (
	"context"

	"gorm.io/gorm"

	types "github.com/yungbote/ielts-tutor-backend/internal/domain"
	"github.com/yungbote/ielts-tutor-backend/internal/platform/logger"
)

type ChatLogRepo interface {
	Create(ctx context.Context, tx *gorm.DB, logs []*types.ChatLog) ([]*types.ChatLog, error)
	ListByUser(ctx context.Context, tx *gorm.DB, userID string, limit int) ([]*types.ChatLog, error)
	CountByUsers(ctx context.Context, tx *gorm.DB, userIDs []string) (map[string]int64, error)
}

type chatLogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChatLogRepo(db *gorm.DB, baseLog *logger.Logger) ChatLogRepo {
	repoLog := baseLog.With("repo", "ChatLogRepo")
	return &chatLogRepo{db: db, log: repoLog}
}

func (r *chatLogRepo) Create(ctx context.Context, tx *gorm.DB, logs []*types.ChatLog) ([]*types.ChatLog, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(logs) == 0 {
		return []*types.ChatLog{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}

// ListByUser returns the newest entries first. limit <= 0 means no limit.
func (r *chatLogRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID string, limit int) ([]*types.ChatLog, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.ChatLog
	q := transaction.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *chatLogRepo) CountByUsers(ctx context.Context, tx *gorm.DB, userIDs []string) (map[string]int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	out := make(map[string]int64, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	var rows []struct {
		UserID string
		Count  int64
	}
	if err := transaction.WithContext(ctx).
		Model(&types.ChatLog{}).
		Select("user_id, COUNT(*) AS count").
		Where("user_id IN ?", userIDs).
		Group("user_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.UserID] = row.Count
	}
	return out, nil
}
