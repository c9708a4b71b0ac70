package gcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/yungbote/ielts-tutor-backend/internal/pkg/httpx"
	"github.com/yungbote/ielts-tutor-backend/internal/platform/ctxutil"
	"github.com/yungbote/ielts-tutor-backend/internal/platform/logger"
)

// Speech transcribes short learner utterances.
type Speech interface {
	TranscribeAudioBytes(ctx context.Context, audio []byte, mimeType string, cfg SpeechConfig) (*SpeechResult, error)
	Close() error
}

type SpeechConfig struct {
	LanguageCode               string
	Model                      string
	EnableAutomaticPunctuation bool
	SampleRateHertz            int
	Encoding                   speechpb.RecognitionConfig_AudioEncoding
}

// DefaultSpeechConfig suits browser MediaRecorder clips of spoken English.
func DefaultSpeechConfig() SpeechConfig {
	return SpeechConfig{LanguageCode: "en-US", Model: "latest_short", EnableAutomaticPunctuation: true}
}

type SpeechResult struct {
	Provider    string  `json:"provider"`
	PrimaryText string  `json:"primary_text"`
	Confidence  float64 `json:"confidence,omitempty"`
}

type recognizeFunc func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error)

type speechService struct {
	log        *logger.Logger
	client     *speech.Client
	recognize  recognizeFunc
	maxRetries int
	sleep      func(ctx context.Context, d time.Duration) error
}

func NewSpeech(ctx context.Context, log *logger.Logger, credentials string) (Speech, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	creds := ResolveCredentials(credentials)
	c, err := speech.NewClient(ctx, creds.Options()...)
	if err != nil {
		return nil, fmt.Errorf("speech client (%s credentials): %w", creds.Source, err)
	}
	s := newSpeechService(log, func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
		return c.Recognize(ctx, req)
	})
	s.client = c
	return s, nil
}

func newSpeechService(log *logger.Logger, recognize recognizeFunc) *speechService {
	return &speechService{
		log:        log.With("service", "gcp.Speech"),
		recognize:  recognize,
		maxRetries: 4,
		sleep:      httpx.Sleep,
	}
}

func (s *speechService) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *speechService) TranscribeAudioBytes(ctx context.Context, audio []byte, mimeType string, cfg SpeechConfig) (*SpeechResult, error) {
	ctx = ctxutil.Default(ctx)
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	if len(audio) == 0 {
		return &SpeechResult{Provider: "gcp_speech"}, nil
	}
	req := &speechpb.RecognizeRequest{
		Config: buildSpeechRecognitionConfig(mimeType, cfg),
		Audio:  &speechpb.RecognitionAudio{AudioSource: &speechpb.RecognitionAudio_Content{Content: audio}},
	}
	resp, err := s.retry(ctx, func() (*speechpb.RecognizeResponse, error) {
		return s.recognize(ctx, req)
	})
	if err != nil {
		return nil, fmt.Errorf("speech recognize: %w", err)
	}
	return parseSpeechResponse("gcp_speech", resp), nil
}

func (s *speechService) retry(ctx context.Context, fn func() (*speechpb.RecognizeResponse, error)) (*speechpb.RecognizeResponse, error) {
	var lastErr error
	backoff := 500 * time.Millisecond
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		resp, err := fn()
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !isRetryableSpeechError(err) || attempt == s.maxRetries {
			break
		}
		s.log.Warn("Speech call failed; retrying", "attempt", attempt+1, "backoff", backoff.String(), "error", err)
		if serr := s.sleep(ctx, backoff); serr != nil {
			return nil, serr
		}
		backoff *= 2
	}
	return nil, lastErr
}

func isRetryableSpeechError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded, codes.Internal:
		return true
	default:
		return false
	}
}

func buildSpeechRecognitionConfig(mimeType string, cfg SpeechConfig) *speechpb.RecognitionConfig {
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = "en-US"
	}
	enc := cfg.Encoding
	if enc == speechpb.RecognitionConfig_ENCODING_UNSPECIFIED {
		enc = inferSpeechEncoding(mimeType)
	}
	rate := cfg.SampleRateHertz
	if rate <= 0 && (enc == speechpb.RecognitionConfig_WEBM_OPUS || enc == speechpb.RecognitionConfig_OGG_OPUS) {
		rate = 48000
	}
	return &speechpb.RecognitionConfig{
		LanguageCode:               cfg.LanguageCode,
		Model:                      cfg.Model,
		EnableAutomaticPunctuation: cfg.EnableAutomaticPunctuation,
		Encoding:                   enc,
		SampleRateHertz:            int32(max(rate, 0)),
	}
}

func inferSpeechEncoding(mimeType string) speechpb.RecognitionConfig_AudioEncoding {
	m := strings.ToLower(strings.TrimSpace(mimeType))
	switch {
	case strings.Contains(m, "webm"):
		return speechpb.RecognitionConfig_WEBM_OPUS
	case strings.Contains(m, "ogg"), strings.Contains(m, "opus"):
		return speechpb.RecognitionConfig_OGG_OPUS
	case strings.Contains(m, "wav"):
		return speechpb.RecognitionConfig_LINEAR16
	case strings.Contains(m, "flac"):
		return speechpb.RecognitionConfig_FLAC
	case strings.Contains(m, "mp3"), strings.Contains(m, "mpeg"):
		return speechpb.RecognitionConfig_MP3
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
	}
}

// parseSpeechResponse joins the top alternative of each result and averages their confidence.
func parseSpeechResponse(provider string, resp *speechpb.RecognizeResponse) *SpeechResult {
	out := &SpeechResult{Provider: provider}
	if resp == nil {
		return out
	}
	var full strings.Builder
	var confSum float64
	var confN int
	for _, r := range resp.GetResults() {
		alts := r.GetAlternatives()
		if len(alts) == 0 || alts[0] == nil {
			continue
		}
		text := strings.TrimSpace(alts[0].GetTranscript())
		if text == "" {
			continue
		}
		if full.Len() > 0 {
			full.WriteString(" ")
		}
		full.WriteString(text)
		if c := alts[0].GetConfidence(); c > 0 {
			confSum += float64(c)
			confN++
		}
	}
	out.PrimaryText = full.String()
	if confN > 0 {
		out.Confidence = confSum / float64(confN)
	}
	return out
}
