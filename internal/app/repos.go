package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/ielts-tutor-backend/internal/data/localstore"
	"github.com/yungbote/ielts-tutor-backend/internal/data/repos"
	"github.com/yungbote/ielts-tutor-backend/internal/platform/logger"
)

type Repos struct {
	Store     localstore.Store
	ChatLog   repos.ChatLogRepo
	Snapshots repos.UserSnapshotRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Store:     localstore.NewGormStore(db, log),
		ChatLog:   repos.NewChatLogRepo(db, log),
		Snapshots: repos.NewUserSnapshotRepo(db, log),
	}
}
