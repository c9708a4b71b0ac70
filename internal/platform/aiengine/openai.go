package aiengine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
)

type openAIEngine struct {
	baseURL string
	timeout time.Duration

	mu      sync.Mutex
	clients map[string]*openai.Client
}

// NewOpenAIEngine serves any OpenAI-compatible Responses endpoint. SDK retries are disabled
// because Invoker owns retry and rotation.
func NewOpenAIEngine(baseURL string, timeout time.Duration) Engine {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &openAIEngine{
		baseURL: strings.TrimSpace(baseURL),
		timeout: timeout,
		clients: map[string]*openai.Client{},
	}
}

func (e *openAIEngine) Name() string { return EngineOpenAI }

func (e *openAIEngine) client(apiKey string) *openai.Client {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.clients[apiKey]; ok {
		return c
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(e.timeout),
	}
	if e.baseURL != "" {
		opts = append(opts, option.WithBaseURL(e.baseURL))
	}
	c := openai.NewClient(opts...)
	e.clients[apiKey] = &c
	return &c
}

func buildOpenAIParams(req Request) responses.ResponseNewParams {
	items := make([]responses.ResponseInputItemUnionParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := responses.EasyInputMessageRoleUser
		if m.Role == RoleAssistant {
			role = responses.EasyInputMessageRoleAssistant
		}
		items = append(items, responses.ResponseInputItemParamOfMessage(m.Text, role))
	}
	params := responses.ResponseNewParams{
		Model: req.Model,
		Input: responses.ResponseNewParamsInputUnion{OfInputItemList: items},
	}
	if s := strings.TrimSpace(req.System); s != "" {
		params.Instructions = openai.String(s)
	}
	if req.JSONSchema != nil {
		params.Text = responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
					Name:   req.JSONSchema.Name,
					Schema: req.JSONSchema.Schema,
					Strict: openai.Bool(true),
					Type:   "json_schema",
				},
			},
		}
	}
	return params
}

func (e *openAIEngine) Generate(ctx context.Context, apiKey string, req Request) (string, error) {
	if strings.TrimSpace(req.Model) == "" {
		return "", fmt.Errorf("openai: model is empty")
	}
	resp, err := e.client(apiKey).Responses.New(ctx, buildOpenAIParams(req))
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", &HTTPError{Engine: EngineOpenAI, StatusCode: apiErr.StatusCode, Message: apiErr.Error()}
		}
		return "", err
	}
	text := strings.TrimSpace(resp.OutputText())
	if text == "" {
		return "", fmt.Errorf("openai returned empty output")
	}
	return text, nil
}
