package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/ielts-tutor-backend/internal/http/handlers"
	httpMW "github.com/yungbote/ielts-tutor-backend/internal/http/middleware"
	"github.com/yungbote/ielts-tutor-backend/internal/observability"
	"github.com/yungbote/ielts-tutor-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	ServiceName string
	CORSOrigin  string

	AuthMiddleware *httpMW.AuthMiddleware

	GatewayHandler      *httpH.GatewayHandler
	AuthHandler         *httpH.AuthHandler
	VocabHandler        *httpH.VocabHandler
	NotesHandler        *httpH.NotesHandler
	ConversationHandler *httpH.ConversationHandler
	AdminHandler        *httpH.AdminHandler
	HealthHandler       *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	log := cfg.Log
	if log == nil {
		log = logger.NewNop()
	}
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "ielts-tutor-api"
	}

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(serviceName))
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(log))
	r.Use(httpMW.Metrics(observability.Current()))
	r.Use(httpMW.CORS(cfg.CORSOrigin))

	// Preflight without an Origin never reaches the CORS middleware's short circuit.
	r.NoMethod(func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusOK)
			return
		}
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method not allowed"})
	})

	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")

	// Gateway (public)
	if h := cfg.GatewayHandler; h != nil {
		api.POST("/analyze-vocabulary", h.AnalyzeVocabulary)
		api.POST("/generate-example", h.GenerateExample)
		api.POST("/chat", h.Chat)
		api.POST("/generate-quiz", h.GenerateQuiz)
		api.POST("/text-to-speech", h.TextToSpeech)
		api.GET("/quiz/topics", h.QuizTopics)
	}

	// Auth (public)
	if h := cfg.AuthHandler; h != nil {
		api.POST("/login", h.Login)
	}

	protected := api.Group("")
	if cfg.AuthMiddleware != nil {
		protected.Use(cfg.AuthMiddleware.RequireAuth())
	}

	if h := cfg.AuthHandler; h != nil {
		protected.GET("/me", h.Me)
		protected.POST("/reset-password", h.ResetPassword)
	}

	if h := cfg.VocabHandler; h != nil {
		protected.GET("/vocab", h.List)
		protected.POST("/vocab", h.Add)
		protected.GET("/vocab/export", h.Export)
		protected.POST("/vocab/import", h.Import)
		protected.GET("/vocab/flashcards", h.Flashcards)
		protected.GET("/vocab/practice", h.Practice)
		protected.DELETE("/vocab/:id", h.Delete)
		protected.PATCH("/vocab/:id", h.Update)
		protected.POST("/vocab/:id/regenerate-example", h.RegenerateExample)
	}

	if h := cfg.NotesHandler; h != nil {
		protected.GET("/lessons", h.List)
		protected.POST("/lessons", h.Create)
		protected.GET("/lessons/deadlines", h.Deadlines)
		protected.POST("/lessons/summary", h.Summarize)
		protected.PATCH("/lessons/:id", h.Update)
		protected.DELETE("/lessons/:id", h.Delete)
		protected.POST("/lessons/:id/tasks", h.AddTask)
		protected.POST("/lessons/:id/tasks/:taskId/toggle", h.ToggleTask)
		protected.DELETE("/lessons/:id/tasks/:taskId", h.DeleteTask)
		protected.GET("/notes", h.GetGlobal)
		protected.PUT("/notes", h.SaveGlobal)
	}

	if h := cfg.ConversationHandler; h != nil {
		protected.POST("/conversations", h.Open)
		protected.GET("/conversations/:id", h.Get)
		protected.DELETE("/conversations/:id", h.Close)
		protected.POST("/conversations/:id/messages", h.SendMessage)
		protected.POST("/conversations/:id/mode", h.SetMode)
		protected.POST("/conversations/:id/listen", h.Listen)
		protected.POST("/conversations/:id/stop", h.Stop)
		protected.POST("/conversations/:id/events", h.CaptureEvent)
		protected.POST("/conversations/:id/playback", h.PlaybackDone)
		protected.POST("/conversations/:id/audio", h.UploadAudio)
		protected.GET("/conversations/:id/stream", h.Stream)
	}

	admin := protected.Group("/admin")
	if cfg.AuthMiddleware != nil {
		admin.Use(cfg.AuthMiddleware.RequireAdmin())
	}
	if h := cfg.AuthHandler; h != nil {
		admin.POST("/users/:id/password", h.AdminResetPassword)
	}
	if h := cfg.AdminHandler; h != nil {
		admin.GET("/users", h.ListUsers)
		admin.GET("/users/:id", h.GetUser)
		admin.DELETE("/users/:id", h.DeleteUser)
		admin.DELETE("/users/:id/vocab/:itemId", h.DeleteVocabItem)
		admin.DELETE("/users/:id/lessons/:lessonId", h.DeleteLesson)
	}

	return r
}
