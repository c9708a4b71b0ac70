package app

import (
	apphttp "github.com/yungbote/ielts-tutor-backend/internal/http"
	httpH "github.com/yungbote/ielts-tutor-backend/internal/http/handlers"
	httpMW "github.com/yungbote/ielts-tutor-backend/internal/http/middleware"
	"github.com/yungbote/ielts-tutor-backend/internal/platform/logger"
	"github.com/yungbote/ielts-tutor-backend/internal/realtime"
)

type Middleware struct {
	Auth *httpMW.AuthMiddleware
}

type Handlers struct {
	Health       *httpH.HealthHandler
	Gateway      *httpH.GatewayHandler
	Auth         *httpH.AuthHandler
	Vocab        *httpH.VocabHandler
	Notes        *httpH.NotesHandler
	Conversation *httpH.ConversationHandler
	Admin        *httpH.AdminHandler
}

func wireHandlers(log *logger.Logger, services Services, clients Clients, hub *realtime.SSEHub, probes ...httpH.HealthProbe) Handlers {
	log.Info("Wiring handlers...")
	deps := httpH.ConversationHandlerDeps{
		Log:      log,
		Registry: services.Conversations,
		Sessions: services.VoiceSessions,
		Hub:      hub,
		Build:    services.conversationDeps,
	}
	if clients.Speech != nil {
		deps.Speech = clients.Speech
	}
	return Handlers{
		Health:       httpH.NewHealthHandler(probes...),
		Gateway:      httpH.NewGatewayHandler(log, services.Gateway),
		Auth:         httpH.NewAuthHandler(services.Identity),
		Vocab:        httpH.NewVocabHandler(log, services.Vocab),
		Notes:        httpH.NewNotesHandler(log, services.Notes),
		Conversation: httpH.NewConversationHandlerWithDeps(deps),
		Admin:        httpH.NewAdminHandler(services.Admin),
	}
}

func wireMiddleware(log *logger.Logger, services Services) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{
		Auth: httpMW.NewAuthMiddleware(log, services.Identity),
	}
}

func routerConfig(log *logger.Logger, cfg Config, handlers Handlers, middleware Middleware) apphttp.RouterConfig {
	return apphttp.RouterConfig{
		Log:                 log,
		ServiceName:         cfg.ServiceName,
		CORSOrigin:          cfg.FrontendURL,
		AuthMiddleware:      middleware.Auth,
		GatewayHandler:      handlers.Gateway,
		AuthHandler:         handlers.Auth,
		VocabHandler:        handlers.Vocab,
		NotesHandler:        handlers.Notes,
		ConversationHandler: handlers.Conversation,
		AdminHandler:        handlers.Admin,
		HealthHandler:       handlers.Health,
	}
}
