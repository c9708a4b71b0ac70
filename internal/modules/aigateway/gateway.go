package aigateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	types "github.com/yungbote/ielts-tutor-backend/internal/domain"
	"github.com/yungbote/ielts-tutor-backend/internal/observability"
	pkgerrors "github.com/yungbote/ielts-tutor-backend/internal/pkg/errors"
	"github.com/yungbote/ielts-tutor-backend/internal/platform/aiengine"
	"github.com/yungbote/ielts-tutor-backend/internal/platform/cache"
	"github.com/yungbote/ielts-tutor-backend/internal/platform/logger"
	"github.com/yungbote/ielts-tutor-backend/internal/platform/tts"
)

const (
	DefaultModel  = "gemini-2.5-flash"
	VocabCacheTTL = 7 * 24 * time.Hour
	QuizSize      = 5
)

type Variant string

const (
	VariantText     Variant = "text"
	VariantSpeaking Variant = "speaking"
)

// Generator is satisfied by *aiengine.Invoker.
type Generator interface {
	Generate(ctx context.Context, req aiengine.Request) (string, error)
	EngineName() string
}

type AnalyzeResult struct {
	types.WordAnalysis
	FromCache bool   `json:"fromCache"`
	CacheType string `json:"cacheType"`
}

type Service interface {
	AnalyzeWord(ctx context.Context, word string) (AnalyzeResult, error)
	GenerateExample(ctx context.Context, word string) (string, error)
	ChatTurn(ctx context.Context, history []types.ChatTurn, message string, variant Variant) (string, error)
	GenerateQuiz(ctx context.Context, topic string) ([]types.QuizQuestion, error)
	TextToSpeech(ctx context.Context, req tts.Request) (tts.Audio, error)
	QuizTopics() []string
}

type Config struct {
	Model string
}

type service struct {
	log   *logger.Logger
	gen   Generator
	cache cache.Cache
	tts   tts.Client
	model string

	analysisSchema map[string]any
	quizSchema     map[string]any
}

// quizEnvelope wraps the question list because strict structured output needs an object root.
type quizEnvelope struct {
	Questions []types.QuizQuestion `json:"questions" jsonschema:"required,description=Exactly 5 questions"`
}

func NewService(log *logger.Logger, gen Generator, c cache.Cache, ttsClient tts.Client, cfg Config) Service {
	if c == nil {
		c = cache.NewNop()
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	return &service{
		log:            log.With("service", "AIGateway"),
		gen:            gen,
		cache:          c,
		tts:            ttsClient,
		model:          model,
		analysisSchema: aiengine.GenerateSchema[types.WordAnalysis](),
		quizSchema:     aiengine.GenerateSchema[quizEnvelope](),
	}
}

func VocabCacheKey(word string) string {
	return "vocab:" + strings.ToLower(strings.TrimSpace(word))
}

func (s *service) QuizTopics() []string {
	out := make([]string, len(types.QuizTopics))
	copy(out, types.QuizTopics)
	return out
}

func (s *service) generate(ctx context.Context, op string, req aiengine.Request) (string, error) {
	ctx, span := observability.StartSpan(ctx, "aigateway."+op)
	defer span.End()

	req.Model = s.model
	start := time.Now()
	out, err := s.gen.Generate(ctx, req)
	status := "ok"
	if err != nil {
		status = "error"
		if errors.Is(err, pkgerrors.ErrCredentialsExhausted) {
			status = "exhausted"
		}
		span.RecordError(err)
	}
	observability.Current().ObserveAIRequest(s.gen.EngineName(), op, status, time.Since(start))
	if err != nil {
		s.log.Warn("AI request failed", "operation", op, "error", err)
		return "", err
	}
	return out, nil
}

func (s *service) AnalyzeWord(ctx context.Context, word string) (AnalyzeResult, error) {
	word = strings.TrimSpace(word)
	if word == "" {
		return AnalyzeResult{}, pkgerrors.Invalid("Word is required")
	}

	key := VocabCacheKey(word)
	var cached types.WordAnalysis
	hit, err := s.cache.GetJSON(ctx, key, &cached)
	if err != nil {
		s.log.Warn("vocab cache get failed", "key", key, "error", err)
		hit = false
	}
	observability.Current().ObserveVocabCache(hit)
	if hit {
		return AnalyzeResult{WordAnalysis: cached, FromCache: true, CacheType: s.cache.Kind()}, nil
	}

	out, err := s.generate(ctx, "analyze", aiengine.Request{
		System:     vocabTutorSystem,
		Messages:   []aiengine.Message{{Role: aiengine.RoleUser, Text: analyzePrompt(word)}},
		JSONSchema: &aiengine.Schema{Name: "word_analysis", Schema: s.analysisSchema},
	})
	if err != nil {
		return AnalyzeResult{}, err
	}

	var analysis types.WordAnalysis
	if err := aiengine.DecodeJSON(out, &analysis); err != nil {
		return AnalyzeResult{}, fmt.Errorf("%w: %w", pkgerrors.ErrUpstream, err)
	}
	if strings.TrimSpace(analysis.Word) == "" {
		analysis.Word = word
	}

	if err := s.cache.SetJSON(ctx, key, analysis, VocabCacheTTL); err != nil {
		s.log.Warn("vocab cache set failed", "key", key, "error", err)
	}
	return AnalyzeResult{WordAnalysis: analysis, FromCache: false, CacheType: "none"}, nil
}

func (s *service) GenerateExample(ctx context.Context, word string) (string, error) {
	word = strings.TrimSpace(word)
	if word == "" {
		return "", pkgerrors.Invalid("Word is required")
	}
	out, err := s.generate(ctx, "example", aiengine.Request{
		System:   vocabTutorSystem,
		Messages: []aiengine.Message{{Role: aiengine.RoleUser, Text: examplePrompt(word)}},
	})
	if err != nil {
		return "", err
	}
	sentence := strings.Trim(strings.TrimSpace(out), "\"")
	if sentence == "" {
		return "", fmt.Errorf("%w: empty example", pkgerrors.ErrUpstream)
	}
	return sentence, nil
}

func (s *service) ChatTurn(ctx context.Context, history []types.ChatTurn, message string, variant Variant) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", pkgerrors.Invalid("Message is required")
	}
	system := textTutorSystem
	if variant == VariantSpeaking {
		system = speakingTutorSystem
	}

	msgs := make([]aiengine.Message, 0, len(history)+1)
	for _, turn := range history {
		text := turnText(turn)
		if text == "" {
			continue
		}
		role := aiengine.RoleUser
		if turn.Role == "model" || turn.Role == string(types.RoleAssistant) {
			role = aiengine.RoleAssistant
		}
		msgs = append(msgs, aiengine.Message{Role: role, Text: text})
	}
	msgs = append(msgs, aiengine.Message{Role: aiengine.RoleUser, Text: message})

	out, err := s.generate(ctx, "chat", aiengine.Request{System: system, Messages: msgs})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func turnText(t types.ChatTurn) string {
	parts := make([]string, 0, len(t.Parts))
	for _, p := range t.Parts {
		if s := strings.TrimSpace(p.Text); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}

func (s *service) GenerateQuiz(ctx context.Context, topic string) ([]types.QuizQuestion, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, pkgerrors.Invalid("Topic is required")
	}
	out, err := s.generate(ctx, "quiz", aiengine.Request{
		System:     vocabTutorSystem,
		Messages:   []aiengine.Message{{Role: aiengine.RoleUser, Text: quizPrompt(topic)}},
		JSONSchema: &aiengine.Schema{Name: "quiz", Schema: s.quizSchema},
	})
	if err != nil {
		return nil, err
	}

	var env quizEnvelope
	if err := aiengine.DecodeJSON(out, &env); err != nil || len(env.Questions) == 0 {
		var list []types.QuizQuestion
		if lerr := aiengine.DecodeJSON(out, &list); lerr != nil {
			return nil, fmt.Errorf("%w: decode quiz: %w", pkgerrors.ErrUpstream, lerr)
		}
		env.Questions = list
	}

	questions := ValidateQuiz(env.Questions)
	if len(questions) == 0 {
		return nil, fmt.Errorf("%w: quiz contained no valid questions", pkgerrors.ErrUpstream)
	}
	return questions, nil
}

// ValidateQuiz keeps well-formed questions (4 options, answer index in range), caps the
// list at QuizSize and renumbers ids from 1.
func ValidateQuiz(in []types.QuizQuestion) []types.QuizQuestion {
	out := make([]types.QuizQuestion, 0, QuizSize)
	for _, q := range in {
		if len(out) == QuizSize {
			break
		}
		if strings.TrimSpace(q.Question) == "" || len(q.Options) != 4 {
			continue
		}
		if q.CorrectAnswerIndex < 0 || q.CorrectAnswerIndex >= len(q.Options) {
			continue
		}
		q.ID = len(out) + 1
		out = append(out, q)
	}
	return out
}

func (s *service) TextToSpeech(ctx context.Context, req tts.Request) (tts.Audio, error) {
	if strings.TrimSpace(req.Text) == "" {
		return tts.Audio{}, pkgerrors.Invalid("Text is required")
	}
	if s.tts == nil {
		return tts.Audio{}, tts.ErrNotConfigured
	}
	return s.tts.Synthesize(ctx, req)
}
