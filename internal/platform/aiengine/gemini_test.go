package aiengine

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/yungbote/ielts-tutor-backend/internal/pkg/httpx"
)

func TestGeminiEngineGenerate(t *testing.T) {
	var gotPath, gotKey string
	var gotBody geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":" Hello "},{"text":"there"}]}}]}`)
	}))
	defer srv.Close()

	e := NewGeminiEngine(srv.URL, 5*time.Second)
	out, err := e.Generate(context.Background(), "key-1", Request{
		Model:  "gemini-2.5-flash",
		System: "be nice",
		Messages: []Message{
			{Role: RoleUser, Text: "hi"},
			{Role: RoleAssistant, Text: "hello"},
			{Role: RoleUser, Text: "again"},
		},
		JSONSchema: &Schema{Name: "x", Schema: map[string]any{"type": "object"}},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "Hello there" {
		t.Fatalf("unexpected output %q", out)
	}
	if gotPath != "/v1beta/models/gemini-2.5-flash:generateContent" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotKey != "key-1" {
		t.Fatalf("api key header not sent")
	}
	if len(gotBody.Contents) != 3 || gotBody.Contents[1].Role != "model" {
		t.Fatalf("unexpected contents %+v", gotBody.Contents)
	}
	if gotBody.SystemInstruction == nil || gotBody.SystemInstruction.Parts[0].Text != "be nice" {
		t.Fatalf("system instruction missing")
	}
	if gotBody.GenerationConfig == nil || gotBody.GenerationConfig.ResponseMimeType != "application/json" {
		t.Fatalf("structured output config missing")
	}
}

func TestGeminiEngineQuotaError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"code":429,"message":"Resource has been exhausted","status":"RESOURCE_EXHAUSTED"}}`)
	}))
	defer srv.Close()

	e := NewGeminiEngine(srv.URL, 5*time.Second)
	_, err := e.Generate(context.Background(), "k", Request{Model: "m", Messages: []Message{{Role: RoleUser, Text: "x"}}})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !httpx.QuotaExhausted(err) {
		t.Fatalf("expected quota classification for %v", err)
	}
	if !strings.Contains(err.Error(), "RESOURCE_EXHAUSTED") {
		t.Fatalf("expected upstream status in message, got %q", err.Error())
	}
}

func TestNewEngine(t *testing.T) {
	for _, name := range []string{"", "gemini", "openai", "MOCK"} {
		if _, err := New(name, "", 0); err != nil {
			t.Fatalf("New(%q): %v", name, err)
		}
	}
	if _, err := New("bard", "", 0); err == nil {
		t.Fatalf("expected error for unknown engine")
	}
}
