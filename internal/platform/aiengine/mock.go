package aiengine

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// MockEngine answers without network access. Structured requests get a value shaped by the
// schema; plain requests get a short echo. Respond overrides both.
type MockEngine struct {
	Respond func(ctx context.Context, apiKey string, req Request) (string, error)
}

func NewMockEngine() *MockEngine { return &MockEngine{} }

func (m *MockEngine) Name() string { return EngineMock }

func (m *MockEngine) Generate(ctx context.Context, apiKey string, req Request) (string, error) {
	if m.Respond != nil {
		return m.Respond(ctx, apiKey, req)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	subject := promptSubject(lastUserText(req.Messages))
	if req.JSONSchema != nil {
		b, err := json.Marshal(sampleFromSchema(req.JSONSchema.Schema, "", subject))
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	return fmt.Sprintf("This is a practice answer about %s.", subject), nil
}

var quotedRe = regexp.MustCompile(`"([^"]+)"`)

func promptSubject(prompt string) string {
	if m := quotedRe.FindStringSubmatch(prompt); len(m) == 2 {
		return strings.TrimSpace(m[1])
	}
	prompt = strings.TrimSpace(prompt)
	if len(prompt) > 60 {
		prompt = prompt[:60]
	}
	if prompt == "" {
		return "English"
	}
	return prompt
}

func sampleFromSchema(schema map[string]any, field, subject string) any {
	t, _ := schema["type"].(string)
	switch t {
	case "object":
		out := map[string]any{}
		props, _ := schema["properties"].(map[string]any)
		for name, p := range props {
			pm, _ := p.(map[string]any)
			out[name] = sampleFromSchema(pm, name, subject)
		}
		return out
	case "array":
		items, _ := schema["items"].(map[string]any)
		n := 4
		if v, ok := schema["minItems"].(float64); ok && v > 0 {
			n = int(v)
		}
		out := make([]any, 0, n)
		for i := 0; i < n; i++ {
			out = append(out, sampleFromSchema(items, fmt.Sprintf("%s %d", field, i+1), subject))
		}
		return out
	case "integer", "number":
		return 0
	case "boolean":
		return false
	default:
		if field == "word" {
			return subject
		}
		return fmt.Sprintf("%s (%s)", field, subject)
	}
}
