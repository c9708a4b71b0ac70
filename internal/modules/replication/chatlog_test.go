package replication

import (
	"context"
	"errors"
	"testing"

	"gorm.io/gorm"

	"github.com/yungbote/ielts-tutor-backend/internal/data/repos"
	"github.com/yungbote/ielts-tutor-backend/internal/data/repos/testutil"
	types "github.com/yungbote/ielts-tutor-backend/internal/domain"
	"github.com/yungbote/ielts-tutor-backend/internal/platform/logger"
)

func TestChatLoggerWritesRow(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	repo := repos.NewChatLogRepo(db, log)
	l := NewChatLogger(log, repo)
	ctx := context.Background()

	if err := l.LogTurn(ctx, "linh", "Describe your hometown", "Sure! Where are you from?"); err != nil {
		t.Fatalf("LogTurn: %v", err)
	}
	rows, err := repo.ListByUser(ctx, nil, "linh", 0)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(rows) != 1 || rows[0].ModelReply != "Sure! Where are you from?" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

type failingChatRepo struct{ calls int }

func (f *failingChatRepo) Create(context.Context, *gorm.DB, []*types.ChatLog) ([]*types.ChatLog, error) {
	f.calls++
	return nil, errors.New("db down")
}

func (f *failingChatRepo) ListByUser(context.Context, *gorm.DB, string, int) ([]*types.ChatLog, error) {
	return nil, nil
}

func (f *failingChatRepo) CountByUsers(context.Context, *gorm.DB, []string) (map[string]int64, error) {
	return nil, nil
}

func TestChatLoggerSwallowsErrors(t *testing.T) {
	repo := &failingChatRepo{}
	l := NewChatLogger(logger.NewNop(), repo)
	if err := l.LogTurn(context.Background(), "linh", "hi", "hello"); err != nil {
		t.Fatalf("LogTurn should swallow repo errors, got %v", err)
	}
	if repo.calls != 1 {
		t.Fatalf("expected one write attempt, got %d", repo.calls)
	}
	if err := l.LogTurn(context.Background(), " ", "hi", "hello"); err != nil || repo.calls != 1 {
		t.Fatalf("blank user should be skipped")
	}
}
