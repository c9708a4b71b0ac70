package aiengine

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	EngineGemini = "gemini"
	EngineOpenAI = "openai"
	EngineMock   = "mock"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role Role
	Text string
}

// Schema asks the engine for JSON output matching a JSON Schema document.
type Schema struct {
	Name   string
	Schema map[string]any
}

type Request struct {
	Model      string
	System     string
	Messages   []Message
	JSONSchema *Schema
}

// Engine performs one generation with one API key. Retries and key rotation live in Invoker.
type Engine interface {
	Name() string
	Generate(ctx context.Context, apiKey string, req Request) (string, error)
}

// HTTPError is returned by engines for non-2xx upstream responses.
type HTTPError struct {
	Engine     string
	StatusCode int
	Status     string
	Message    string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return ""
	}
	msg := strings.TrimSpace(e.Message)
	if e.Status != "" {
		return fmt.Sprintf("%s http %d %s: %s", e.Engine, e.StatusCode, e.Status, msg)
	}
	return fmt.Sprintf("%s http %d: %s", e.Engine, e.StatusCode, msg)
}

func (e *HTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

func lastUserText(msgs []Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleUser {
			return msgs[i].Text
		}
	}
	return ""
}

// New selects an engine by name. Unknown names are an error rather than a silent mock.
func New(name, baseURL string, timeout time.Duration) (Engine, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", EngineGemini:
		return NewGeminiEngine(baseURL, timeout), nil
	case EngineOpenAI:
		return NewOpenAIEngine(baseURL, timeout), nil
	case EngineMock:
		return NewMockEngine(), nil
	default:
		return nil, fmt.Errorf("unknown AI engine %q", name)
	}
}
