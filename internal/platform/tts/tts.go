package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yungbote/ielts-tutor-backend/internal/observability"
	"github.com/yungbote/ielts-tutor-backend/internal/pkg/httpx"
	"github.com/yungbote/ielts-tutor-backend/internal/platform/logger"
)

const (
	DefaultVoiceID = "21m00Tcm4TlvDq8ikWAM"
	DefaultModelID = "eleven_multilingual_v2"
	defaultBaseURL = "https://api.elevenlabs.io"
)

// ErrFallbackRequired means the provider refused service (auth, abuse detection, quota).
// Callers should switch to browser speech synthesis.
var ErrFallbackRequired = errors.New("speech synthesis unavailable, use fallback")

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = errors.New("text-to-speech is not configured")

type Request struct {
	Text            string   `json:"text"`
	VoiceID         string   `json:"voiceId,omitempty"`
	ModelID         string   `json:"modelId,omitempty"`
	Stability       *float64 `json:"stability,omitempty"`
	SimilarityBoost *float64 `json:"similarityBoost,omitempty"`
	Style           *float64 `json:"style,omitempty"`
	UseSpeakerBoost *bool    `json:"useSpeakerBoost,omitempty"`
}

type Audio struct {
	Data        []byte
	ContentType string
}

type Client interface {
	Synthesize(ctx context.Context, req Request) (Audio, error)
}

type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("elevenlabs http %d: %s", e.StatusCode, e.Body)
}

func (e *HTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

type synthesizeBody struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type client struct {
	log        *logger.Logger
	apiKey     string
	baseURL    string
	httpClient *http.Client
	maxRetries int
}

func New(log *logger.Logger, apiKey, baseURL string, timeout time.Duration) Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &client{
		log:        log.With("client", "ElevenLabs"),
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: 2,
	}
}

// normalize fills provider defaults for omitted fields.
func normalize(req Request) synthesizeBody {
	f := func(p *float64, def float64) float64 {
		if p == nil {
			return def
		}
		return *p
	}
	boost := true
	if req.UseSpeakerBoost != nil {
		boost = *req.UseSpeakerBoost
	}
	model := strings.TrimSpace(req.ModelID)
	if model == "" {
		model = DefaultModelID
	}
	return synthesizeBody{
		Text:    req.Text,
		ModelID: model,
		VoiceSettings: voiceSettings{
			Stability:       f(req.Stability, 0.5),
			SimilarityBoost: f(req.SimilarityBoost, 0.75),
			Style:           f(req.Style, 0),
			UseSpeakerBoost: boost,
		},
	}
}

func (c *client) Synthesize(ctx context.Context, req Request) (Audio, error) {
	if strings.TrimSpace(req.Text) == "" {
		return Audio{}, fmt.Errorf("text is required")
	}
	if c.apiKey == "" {
		return Audio{}, ErrNotConfigured
	}
	voice := strings.TrimSpace(req.VoiceID)
	if voice == "" {
		voice = DefaultVoiceID
	}
	payload, err := json.Marshal(normalize(req))
	if err != nil {
		return Audio{}, err
	}
	endpoint := c.baseURL + "/v1/text-to-speech/" + url.PathEscape(voice)

	backoff := httpx.Backoff{Base: 500 * time.Millisecond, Cap: 5 * time.Second}
	for attempt := 0; ; attempt++ {
		audio, resp, err := c.doOnce(ctx, endpoint, payload)
		if err == nil {
			observability.Current().IncTTS("ok")
			return audio, nil
		}
		var herr *HTTPError
		if errors.As(err, &herr) && (herr.StatusCode == http.StatusUnauthorized || herr.StatusCode == http.StatusPaymentRequired) {
			observability.Current().IncTTS("fallback")
			c.log.Warn("ElevenLabs refused request, fallback required", "status", herr.StatusCode)
			return Audio{}, fmt.Errorf("%w: %w", ErrFallbackRequired, err)
		}
		if !httpx.Retryable(err) || attempt >= c.maxRetries || ctx.Err() != nil {
			observability.Current().IncTTS("error")
			return Audio{}, err
		}
		wait := backoff.Delay(attempt, resp)
		c.log.Warn("ElevenLabs request retrying", "attempt", attempt+1, "sleep", wait.String(), "error", err.Error())
		if err := httpx.Sleep(ctx, wait); err != nil {
			return Audio{}, err
		}
	}
}

func (c *client) doOnce(ctx context.Context, endpoint string, payload []byte) (Audio, *http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return Audio{}, nil, err
	}
	httpReq.Header.Set("xi-api-key", c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/mpeg")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Audio{}, nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return Audio{}, resp, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Audio{}, resp, &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "audio/mpeg"
	}
	return Audio{Data: raw, ContentType: ct}, resp, nil
}
