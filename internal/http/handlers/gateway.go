package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	types "github.com/yungbote/ielts-tutor-backend/internal/domain"
	"github.com/yungbote/ielts-tutor-backend/internal/http/response"
	"github.com/yungbote/ielts-tutor-backend/internal/modules/aigateway"
	pkgerrors "github.com/yungbote/ielts-tutor-backend/internal/pkg/errors"
	"github.com/yungbote/ielts-tutor-backend/internal/platform/logger"
	"github.com/yungbote/ielts-tutor-backend/internal/platform/tts"
)

const (
	msgAnalyzeFailed  = "Failed to analyze vocabulary"
	msgExampleFailed  = "Failed to generate example"
	msgChatFailed     = "Failed to chat"
	msgQuizFailed     = "Failed to generate quiz"
	msgSpeechFallback = "Text-to-speech unavailable, use browser speech"
	msgSpeechFailed   = "Failed to generate speech"
)

// GatewayHandler exposes the AI gateway with the flat {"error": "..."} contract.
type GatewayHandler struct {
	log *logger.Logger
	ai  aigateway.Service
}

func NewGatewayHandler(log *logger.Logger, ai aigateway.Service) *GatewayHandler {
	return &GatewayHandler{log: log.With("handler", "GatewayHandler"), ai: ai}
}

func (h *GatewayHandler) fail(c *gin.Context, op string, err error, fallbackMsg string) {
	if errors.Is(err, pkgerrors.ErrInvalidArgument) {
		response.RespondGatewayError(c, http.StatusBadRequest, err.Error())
		return
	}
	h.log.Error("Gateway call failed", "operation", op, "error", err)
	response.RespondGatewayError(c, http.StatusInternalServerError, fallbackMsg)
}

type wordRequest struct {
	Word string `json:"word"`
}

// POST /api/analyze-vocabulary
func (h *GatewayHandler) AnalyzeVocabulary(c *gin.Context) {
	var req wordRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Word) == "" {
		response.RespondGatewayError(c, http.StatusBadRequest, "Word is required")
		return
	}
	res, err := h.ai.AnalyzeWord(c.Request.Context(), req.Word)
	if err != nil {
		h.fail(c, "analyze", err, msgAnalyzeFailed)
		return
	}
	response.RespondOK(c, res)
}

// POST /api/generate-example
func (h *GatewayHandler) GenerateExample(c *gin.Context) {
	var req wordRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Word) == "" {
		response.RespondGatewayError(c, http.StatusBadRequest, "Word is required")
		return
	}
	example, err := h.ai.GenerateExample(c.Request.Context(), req.Word)
	if err != nil {
		h.fail(c, "example", err, msgExampleFailed)
		return
	}
	response.RespondOK(c, gin.H{"example": example})
}

type chatRequest struct {
	History []types.ChatTurn `json:"history"`
	Message string           `json:"message"`
	Mode    string           `json:"mode"`
}

// POST /api/chat
func (h *GatewayHandler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		response.RespondGatewayError(c, http.StatusBadRequest, "Message is required")
		return
	}
	variant := aigateway.VariantText
	if strings.EqualFold(req.Mode, string(aigateway.VariantSpeaking)) {
		variant = aigateway.VariantSpeaking
	}
	text, err := h.ai.ChatTurn(c.Request.Context(), req.History, req.Message, variant)
	if err != nil {
		h.fail(c, "chat", err, msgChatFailed)
		return
	}
	response.RespondOK(c, gin.H{"text": text})
}

// POST /api/generate-quiz
func (h *GatewayHandler) GenerateQuiz(c *gin.Context) {
	var req struct {
		Topic string `json:"topic"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Topic) == "" {
		response.RespondGatewayError(c, http.StatusBadRequest, "Topic is required")
		return
	}
	questions, err := h.ai.GenerateQuiz(c.Request.Context(), req.Topic)
	if err != nil {
		h.fail(c, "quiz", err, msgQuizFailed)
		return
	}
	response.RespondOK(c, gin.H{"questions": questions})
}

// GET /api/quiz/topics
func (h *GatewayHandler) QuizTopics(c *gin.Context) {
	response.RespondOK(c, gin.H{"topics": h.ai.QuizTopics()})
}

// POST /api/text-to-speech answers with raw audio. A refused or unconfigured provider
// answers 401 so the client switches to browser speech.
func (h *GatewayHandler) TextToSpeech(c *gin.Context) {
	var req tts.Request
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		response.RespondGatewayError(c, http.StatusBadRequest, "Text is required")
		return
	}
	audio, err := h.ai.TextToSpeech(c.Request.Context(), req)
	switch {
	case err == nil:
	case errors.Is(err, tts.ErrFallbackRequired), errors.Is(err, tts.ErrNotConfigured):
		h.log.Warn("TTS refused; client fallback", "error", err)
		c.JSON(http.StatusUnauthorized, response.GatewayError{Error: msgSpeechFallback, Fallback: true})
		return
	default:
		h.fail(c, "tts", err, msgSpeechFailed)
		return
	}
	contentType := audio.ContentType
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, contentType, audio.Data)
}
