package replication

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/ielts-tutor-backend/internal/data/repos"
	types "github.com/yungbote/ielts-tutor-backend/internal/domain"
	"github.com/yungbote/ielts-tutor-backend/internal/platform/logger"
)

// ChatLogger records completed exchanges for the admin view. Failures are logged only.
type ChatLogger struct {
	log  *logger.Logger
	repo repos.ChatLogRepo
	now  func() time.Time
}

func NewChatLogger(baseLog *logger.Logger, repo repos.ChatLogRepo) *ChatLogger {
	return &ChatLogger{log: baseLog.With("component", "ChatLogger"), repo: repo, now: time.Now}
}

func (l *ChatLogger) LogTurn(ctx context.Context, userID, userMessage, reply string) error {
	if l == nil || l.repo == nil || strings.TrimSpace(userID) == "" {
		return nil
	}
	row := &types.ChatLog{
		ID:          uuid.New(),
		UserID:      userID,
		UserMessage: userMessage,
		ModelReply:  reply,
		CreatedAt:   l.now().UTC(),
	}
	if _, err := l.repo.Create(ctx, nil, []*types.ChatLog{row}); err != nil {
		l.log.Warn("Chat log write failed", "user_id", userID, "error", err)
	}
	return nil
}
