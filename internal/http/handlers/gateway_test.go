package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	types "github.com/yungbote/ielts-tutor-backend/internal/domain"
	"github.com/yungbote/ielts-tutor-backend/internal/modules/aigateway"
	pkgerrors "github.com/yungbote/ielts-tutor-backend/internal/pkg/errors"
	"github.com/yungbote/ielts-tutor-backend/internal/platform/logger"
	"github.com/yungbote/ielts-tutor-backend/internal/platform/tts"
)

type stubGateway struct {
	analyzeErr error
	chatReply  string
	variant    aigateway.Variant
	audio      tts.Audio
	ttsErr     error
}

func (s *stubGateway) AnalyzeWord(_ context.Context, word string) (aigateway.AnalyzeResult, error) {
	if s.analyzeErr != nil {
		return aigateway.AnalyzeResult{}, s.analyzeErr
	}
	return aigateway.AnalyzeResult{WordAnalysis: types.WordAnalysis{Word: word}}, nil
}

func (s *stubGateway) GenerateExample(context.Context, string) (string, error) {
	return "An example.", nil
}

func (s *stubGateway) ChatTurn(_ context.Context, _ []types.ChatTurn, _ string, v aigateway.Variant) (string, error) {
	s.variant = v
	return s.chatReply, nil
}

func (s *stubGateway) GenerateQuiz(context.Context, string) ([]types.QuizQuestion, error) {
	return nil, nil
}

func (s *stubGateway) TextToSpeech(context.Context, tts.Request) (tts.Audio, error) {
	return s.audio, s.ttsErr
}

func (s *stubGateway) QuizTopics() []string { return []string{"Environment"} }

func init() { gin.SetMode(gin.TestMode) }

func gatewayRouter(ai aigateway.Service) *gin.Engine {
	h := NewGatewayHandler(logger.NewNop(), ai)
	r := gin.New()
	r.POST("/api/analyze-vocabulary", h.AnalyzeVocabulary)
	r.POST("/api/chat", h.Chat)
	r.POST("/api/generate-quiz", h.GenerateQuiz)
	r.POST("/api/text-to-speech", h.TextToSpeech)
	return r
}

func postJSON(r http.Handler, path string, body any) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
	return out
}

func TestGatewayMissingInput(t *testing.T) {
	r := gatewayRouter(&stubGateway{})
	cases := []struct {
		path string
		body any
		want string
	}{
		{"/api/analyze-vocabulary", map[string]string{"word": "  "}, "Word is required"},
		{"/api/chat", map[string]string{}, "Message is required"},
		{"/api/generate-quiz", map[string]string{"topic": ""}, "Topic is required"},
		{"/api/text-to-speech", map[string]string{}, "Text is required"},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			w := postJSON(r, tc.path, tc.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Code)
			}
			if got := decodeError(t, w)["error"]; got != tc.want {
				t.Fatalf("error = %v, want %q", got, tc.want)
			}
		})
	}
}

func TestGatewayUpstreamFailureHidesCause(t *testing.T) {
	r := gatewayRouter(&stubGateway{analyzeErr: errors.Join(pkgerrors.ErrUpstream, errors.New("secret detail"))})
	w := postJSON(r, "/api/analyze-vocabulary", map[string]string{"word": "ubiquitous"})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if got := decodeError(t, w)["error"]; got != msgAnalyzeFailed {
		t.Fatalf("error = %v", got)
	}
}

func TestGatewayChatSpeakingMode(t *testing.T) {
	ai := &stubGateway{chatReply: "Hello there."}
	w := postJSON(gatewayRouter(ai), "/api/chat", map[string]string{"message": "hi", "mode": "speaking"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	if ai.variant != aigateway.VariantSpeaking {
		t.Fatalf("variant = %q", ai.variant)
	}
	if got := decodeError(t, w)["text"]; got != "Hello there." {
		t.Fatalf("text = %v", got)
	}
}

func TestTextToSpeech(t *testing.T) {
	t.Run("audio", func(t *testing.T) {
		ai := &stubGateway{audio: tts.Audio{Data: []byte{1, 2, 3}, ContentType: "audio/mpeg"}}
		w := postJSON(gatewayRouter(ai), "/api/text-to-speech", map[string]string{"text": "hello"})
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		if ct := w.Header().Get("Content-Type"); ct != "audio/mpeg" {
			t.Fatalf("content type = %q", ct)
		}
		if !bytes.Equal(w.Body.Bytes(), []byte{1, 2, 3}) {
			t.Fatalf("body = %v", w.Body.Bytes())
		}
	})
	for name, err := range map[string]error{"refused": tts.ErrFallbackRequired, "unconfigured": tts.ErrNotConfigured} {
		t.Run(name, func(t *testing.T) {
			w := postJSON(gatewayRouter(&stubGateway{ttsErr: err}), "/api/text-to-speech", map[string]string{"text": "hello"})
			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", w.Code)
			}
			if fb := decodeError(t, w)["fallback"]; fb != true {
				t.Fatalf("fallback = %v", fb)
			}
		})
	}
}
