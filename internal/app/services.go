package app

import (
	"github.com/yungbote/ielts-tutor-backend/internal/modules/admin"
	"github.com/yungbote/ielts-tutor-backend/internal/modules/aigateway"
	"github.com/yungbote/ielts-tutor-backend/internal/modules/conversation"
	"github.com/yungbote/ielts-tutor-backend/internal/modules/identity"
	"github.com/yungbote/ielts-tutor-backend/internal/modules/notes"
	"github.com/yungbote/ielts-tutor-backend/internal/modules/replication"
	"github.com/yungbote/ielts-tutor-backend/internal/modules/vocab"
	"github.com/yungbote/ielts-tutor-backend/internal/platform/logger"
	"github.com/yungbote/ielts-tutor-backend/internal/realtime"
)

type Services struct {
	Gateway       aigateway.Service
	Replicator    *replication.Replicator
	ChatLogger    *replication.ChatLogger
	Identity      *identity.Service
	Vocab         vocab.Service
	Notes         notes.Service
	Admin         *admin.Service
	Conversations *conversation.Registry
	VoiceSessions *realtime.VoiceSessions
}

func wireServices(log *logger.Logger, cfg Config, r Repos, c Clients, emitter realtime.EventSink) Services {
	log.Info("Wiring services...")

	var replOpts []replication.Option
	if cfg.ReplicationQueue > 0 {
		replOpts = append(replOpts, replication.WithQueueSize(cfg.ReplicationQueue))
	}
	repl := replication.NewReplicator(log, r.Store, c.SnapshotSink, replOpts...)

	gateway := aigateway.NewService(log, c.Invoker, c.Cache, c.TTS, aigateway.Config{Model: cfg.AIModel})
	ids := identity.NewService(log, r.Store, repl, identity.Config{
		JWTSecret:     cfg.JWTSecretKey,
		TokenTTL:      cfg.AccessTokenTTL,
		AdminPassword: cfg.AdminPassword,
	})

	voice := realtime.NewVoiceSessions(log, emitter, gateway)

	return Services{
		Gateway:       gateway,
		Replicator:    repl,
		ChatLogger:    replication.NewChatLogger(log, r.ChatLog),
		Identity:      ids,
		Vocab:         vocab.NewService(log, r.Store, gateway, repl),
		Notes:         notes.NewService(log, r.Store, gateway, repl),
		Admin:         admin.NewService(log, ids, r.Store, r.ChatLog),
		Conversations: conversation.NewRegistry(log, cfg.Voice, conversation.WithOnEvict(voice.Forget)),
		VoiceSessions: voice,
	}
}

// conversationDeps binds the browser bridge, the gateway and the chat log to a new session.
func (s Services) conversationDeps(sessionID string) conversation.Deps {
	deps := s.VoiceSessions.Deps(sessionID)
	deps.Responder = s.Gateway
	deps.TurnLogger = s.ChatLogger
	return deps
}
