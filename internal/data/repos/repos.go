package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/ielts-tutor-backend/internal/data/repos/chatlog"
	"github.com/yungbote/ielts-tutor-backend/internal/data/repos/kv"
	"github.com/yungbote/ielts-tutor-backend/internal/data/repos/snapshot"
	"github.com/yungbote/ielts-tutor-backend/internal/platform/logger"
)

type KVRepo = kv.KVRepo
type ChatLogRepo = chatlog.ChatLogRepo
type UserSnapshotRepo = snapshot.UserSnapshotRepo

func NewKVRepo(db *gorm.DB, log *logger.Logger) KVRepo { return kv.NewKVRepo(db, log) }

func NewChatLogRepo(db *gorm.DB, log *logger.Logger) ChatLogRepo {
	return chatlog.NewChatLogRepo(db, log)
}

func NewUserSnapshotRepo(db *gorm.DB, log *logger.Logger) UserSnapshotRepo {
	return snapshot.NewUserSnapshotRepo(db, log)
}
