package vocab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/ielts-tutor-backend/internal/data/localstore"
	types "github.com/yungbote/ielts-tutor-backend/internal/domain"
	"github.com/yungbote/ielts-tutor-backend/internal/modules/aigateway"
	pkgerrors "github.com/yungbote/ielts-tutor-backend/internal/pkg/errors"
	"github.com/yungbote/ielts-tutor-backend/internal/platform/logger"
)

const (
	SnapshotVersion        = 1
	defaultLookupLimit     = 4
	minPracticeVocabulary  = 4
	defaultPracticeSamples = 10
)

// Gateway is the subset of the AI gateway used for lookups.
type Gateway interface {
	AnalyzeWord(ctx context.Context, word string) (aigateway.AnalyzeResult, error)
	GenerateExample(ctx context.Context, word string) (string, error)
}

// Replicator receives a user id after every committed write.
type Replicator interface {
	Enqueue(userID string)
}

type FailedWord struct {
	Word  string `json:"word"`
	Error string `json:"error"`
}

type AddResult struct {
	Added  []types.VocabItem `json:"added"`
	Failed []FailedWord      `json:"failed"`
}

type ImportResult struct {
	Added int `json:"added"`
	Total int `json:"total"`
}

type Service interface {
	List(ctx context.Context, userID string) ([]types.VocabItem, error)
	AddWords(ctx context.Context, userID, raw string) (AddResult, error)
	DeleteWord(ctx context.Context, userID, id string) error
	RegenerateExample(ctx context.Context, userID, id string) (types.VocabItem, error)
	UpdateNote(ctx context.Context, userID, id, note string) (types.VocabItem, error)
	SetMastered(ctx context.Context, userID, id string, mastered bool) (types.VocabItem, error)
	ExportAll(ctx context.Context, userID string) (types.VocabSnapshot, error)
	ImportAll(ctx context.Context, userID string, snap types.VocabSnapshot, mode types.ImportMode) (ImportResult, error)
	Flashcards(ctx context.Context, userID string, onlyUnmastered bool) ([]types.VocabItem, error)
	PracticeQuestions(ctx context.Context, userID string, n int, rng *rand.Rand) ([]types.QuizQuestion, error)
}

type Option func(*service)

func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

func WithLookupLimit(n int) Option {
	return func(s *service) {
		if n > 0 {
			s.lookupLimit = n
		}
	}
}

type service struct {
	log         *logger.Logger
	store       localstore.Store
	gw          Gateway
	repl        Replicator
	locks       *localstore.KeyedMutex
	now         func() time.Time
	lookupLimit int
}

func NewService(log *logger.Logger, store localstore.Store, gw Gateway, repl Replicator, opts ...Option) Service {
	s := &service{
		log:         log.With("service", "VocabService"),
		store:       store,
		gw:          gw,
		repl:        repl,
		locks:       localstore.NewKeyedMutex(),
		now:         time.Now,
		lookupLimit: defaultLookupLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) newID() string {
	return fmt.Sprintf("vocab_%d_%s", s.now().UnixMilli(), strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func (s *service) load(ctx context.Context, userID string) ([]types.VocabItem, error) {
	var items []types.VocabItem
	if _, err := s.store.Get(ctx, localstore.VocabKey(userID), &items); err != nil {
		return nil, err
	}
	if items == nil {
		items = []types.VocabItem{}
	}
	return items, nil
}

// save commits locally and then hands the user to the replicator.
func (s *service) save(ctx context.Context, userID string, items []types.VocabItem) error {
	if err := s.store.Set(ctx, localstore.VocabKey(userID), items); err != nil {
		return err
	}
	if s.repl != nil {
		s.repl.Enqueue(userID)
	}
	return nil
}

// mutate runs fn under the per-user lock with the current list.
func (s *service) mutate(ctx context.Context, userID string, fn func([]types.VocabItem) ([]types.VocabItem, error)) error {
	unlock := s.locks.Lock(userID)
	defer unlock()
	items, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	next, err := fn(items)
	if err != nil {
		return err
	}
	return s.save(ctx, userID, next)
}

func (s *service) List(ctx context.Context, userID string) ([]types.VocabItem, error) {
	return s.load(ctx, userID)
}

// SplitWords splits comma separated input, trimming, dropping blanks and keeping only the
// first spelling of words that repeat case-insensitively.
func SplitWords(raw string) []string {
	out := []string{}
	seen := map[string]bool{}
	for _, w := range strings.Split(raw, ",") {
		w = strings.TrimSpace(w)
		key := strings.ToLower(w)
		if w == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, w)
	}
	return out
}

const lookupFailedMessage = "Could not look up this word. Please try again."

// lookupFailure is what the learner sees for a failed word; upstream detail stays in the log.
func lookupFailure(err error) string {
	if errors.Is(err, pkgerrors.ErrInvalidArgument) {
		return err.Error()
	}
	return lookupFailedMessage
}

func (s *service) AddWords(ctx context.Context, userID, raw string) (AddResult, error) {
	words := SplitWords(raw)
	if len(words) == 0 {
		return AddResult{}, pkgerrors.Invalid("Word is required")
	}
	if s.gw == nil {
		return AddResult{}, errNoGateway
	}

	type outcome struct {
		item *types.VocabItem
		err  error
	}
	outcomes := make([]outcome, len(words))

	// Every goroutine returns nil so one failed lookup never cancels the others.
	var g errgroup.Group
	g.SetLimit(s.lookupLimit)
	for i, w := range words {
		g.Go(func() error {
			res, err := s.gw.AnalyzeWord(ctx, w)
			if err != nil {
				outcomes[i] = outcome{err: err}
				return nil
			}
			item := itemFromAnalysis(res.WordAnalysis)
			item.ID = s.newID()
			item.CreatedAt = s.now().UnixMilli()
			outcomes[i] = outcome{item: &item}
			return nil
		})
	}
	_ = g.Wait()

	result := AddResult{Added: []types.VocabItem{}, Failed: []FailedWord{}}
	for i, o := range outcomes {
		if o.err != nil {
			s.log.Warn("word lookup failed", "word", words[i], "error", o.err)
			result.Failed = append(result.Failed, FailedWord{Word: words[i], Error: lookupFailure(o.err)})
			continue
		}
		result.Added = append(result.Added, *o.item)
	}
	if len(result.Added) == 0 {
		return result, nil
	}

	err := s.mutate(ctx, userID, func(items []types.VocabItem) ([]types.VocabItem, error) {
		next := make([]types.VocabItem, 0, len(result.Added)+len(items))
		next = append(next, result.Added...)
		return append(next, items...), nil
	})
	if err != nil {
		return AddResult{}, err
	}
	return result, nil
}

func itemFromAnalysis(a types.WordAnalysis) types.VocabItem {
	return types.VocabItem{
		Word:         a.Word,
		IPA:          a.IPA,
		Type:         a.Type,
		ShortMeaning: a.ShortMeaning,
		MeaningVI:    a.MeaningVI,
		MeaningEN:    a.MeaningEN,
		Example:      a.Example,
		Synonyms:     a.Synonyms,
		Antonyms:     a.Antonyms,
	}
}

func indexOf(items []types.VocabItem, id string) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}

var (
	errWordNotFound = pkgerrors.NotFound("word not found")
	errNoGateway    = pkgerrors.Unsupported("word lookups need the AI gateway")
)

func (s *service) DeleteWord(ctx context.Context, userID, id string) error {
	return s.mutate(ctx, userID, func(items []types.VocabItem) ([]types.VocabItem, error) {
		i := indexOf(items, id)
		if i < 0 {
			return nil, errWordNotFound
		}
		return append(items[:i], items[i+1:]...), nil
	})
}

func (s *service) update(ctx context.Context, userID, id string, fn func(*types.VocabItem)) (types.VocabItem, error) {
	var updated types.VocabItem
	err := s.mutate(ctx, userID, func(items []types.VocabItem) ([]types.VocabItem, error) {
		i := indexOf(items, id)
		if i < 0 {
			return nil, errWordNotFound
		}
		fn(&items[i])
		updated = items[i]
		return items, nil
	})
	return updated, err
}

// RegenerateExample leaves the item untouched when generation fails.
func (s *service) RegenerateExample(ctx context.Context, userID, id string) (types.VocabItem, error) {
	if s.gw == nil {
		return types.VocabItem{}, errNoGateway
	}
	items, err := s.load(ctx, userID)
	if err != nil {
		return types.VocabItem{}, err
	}
	i := indexOf(items, id)
	if i < 0 {
		return types.VocabItem{}, errWordNotFound
	}
	example, err := s.gw.GenerateExample(ctx, items[i].Word)
	if err != nil {
		return types.VocabItem{}, err
	}
	return s.update(ctx, userID, id, func(it *types.VocabItem) { it.Example = example })
}

func (s *service) UpdateNote(ctx context.Context, userID, id, note string) (types.VocabItem, error) {
	return s.update(ctx, userID, id, func(it *types.VocabItem) { it.Note = note })
}

func (s *service) SetMastered(ctx context.Context, userID, id string, mastered bool) (types.VocabItem, error) {
	return s.update(ctx, userID, id, func(it *types.VocabItem) { it.Mastered = mastered })
}

func (s *service) ExportAll(ctx context.Context, userID string) (types.VocabSnapshot, error) {
	items, err := s.load(ctx, userID)
	if err != nil {
		return types.VocabSnapshot{}, err
	}
	return types.VocabSnapshot{Version: SnapshotVersion, ExportedAt: s.now().UnixMilli(), Items: items}, nil
}

// ParseSnapshot accepts the versioned document or a bare item array.
func ParseSnapshot(raw []byte) (types.VocabSnapshot, error) {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		var items []types.VocabItem
		if err := json.Unmarshal([]byte(trimmed), &items); err != nil {
			return types.VocabSnapshot{}, pkgerrors.Invalid("snapshot is not valid JSON")
		}
		return types.VocabSnapshot{Version: SnapshotVersion, Items: items}, nil
	}
	var snap types.VocabSnapshot
	if err := json.Unmarshal([]byte(trimmed), &snap); err != nil {
		return types.VocabSnapshot{}, pkgerrors.Invalid("snapshot is not valid JSON")
	}
	return snap, nil
}

func wordKey(w string) string { return strings.ToLower(strings.TrimSpace(w)) }

func (s *service) ImportAll(ctx context.Context, userID string, snap types.VocabSnapshot, mode types.ImportMode) (ImportResult, error) {
	if mode != types.ImportOverwrite && mode != types.ImportMerge {
		return ImportResult{}, pkgerrors.Invalid("mode must be overwrite or merge")
	}
	incoming := make([]types.VocabItem, 0, len(snap.Items))
	for i, it := range snap.Items {
		if strings.TrimSpace(it.Word) == "" || strings.TrimSpace(it.MeaningEN) == "" {
			return ImportResult{}, pkgerrors.Invalid(fmt.Sprintf("item %d: word and meaning_en are required", i))
		}
		if strings.TrimSpace(it.ID) == "" {
			it.ID = s.newID()
		}
		if it.CreatedAt == 0 {
			it.CreatedAt = s.now().UnixMilli()
		}
		incoming = append(incoming, it)
	}

	var res ImportResult
	err := s.mutate(ctx, userID, func(items []types.VocabItem) ([]types.VocabItem, error) {
		if mode == types.ImportOverwrite {
			res = ImportResult{Added: len(incoming), Total: len(incoming)}
			return incoming, nil
		}
		seen := make(map[string]bool, len(items))
		for _, it := range items {
			seen[wordKey(it.Word)] = true
		}
		fresh := make([]types.VocabItem, 0, len(incoming))
		for _, it := range incoming {
			k := wordKey(it.Word)
			if seen[k] {
				continue
			}
			seen[k] = true
			fresh = append(fresh, it)
		}
		res = ImportResult{Added: len(fresh), Total: len(fresh) + len(items)}
		return append(fresh, items...), nil
	})
	if err != nil {
		return ImportResult{}, err
	}
	return res, nil
}

func (s *service) Flashcards(ctx context.Context, userID string, onlyUnmastered bool) ([]types.VocabItem, error) {
	items, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !onlyUnmastered {
		return items, nil
	}
	out := make([]types.VocabItem, 0, len(items))
	for _, it := range items {
		if !it.Mastered {
			out = append(out, it)
		}
	}
	return out, nil
}

var (
	defaultRngMu sync.Mutex
	defaultRng   = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// PracticeQuestions builds meaning-to-word multiple choice questions from the user's list.
func (s *service) PracticeQuestions(ctx context.Context, userID string, n int, rng *rand.Rand) ([]types.QuizQuestion, error) {
	items, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	pool := make([]types.VocabItem, 0, len(items))
	for _, it := range items {
		if strings.TrimSpace(it.MeaningEN) != "" && strings.TrimSpace(it.Word) != "" {
			pool = append(pool, it)
		}
	}
	if len(pool) < minPracticeVocabulary {
		return nil, pkgerrors.Invalid(fmt.Sprintf("at least %d words are needed for practice", minPracticeVocabulary))
	}
	if n <= 0 {
		n = defaultPracticeSamples
	}
	if n > len(pool) {
		n = len(pool)
	}
	if rng == nil {
		defaultRngMu.Lock()
		rng = rand.New(rand.NewSource(defaultRng.Int63()))
		defaultRngMu.Unlock()
	}

	order := rng.Perm(len(pool))
	out := make([]types.QuizQuestion, 0, n)
	for qi := 0; qi < n; qi++ {
		target := pool[order[qi]]
		options := []string{target.Word}
		for _, j := range rng.Perm(len(pool)) {
			if len(options) == 4 {
				break
			}
			cand := pool[j].Word
			if wordKey(cand) == wordKey(target.Word) || containsFold(options, cand) {
				continue
			}
			options = append(options, cand)
		}
		if len(options) < 4 {
			continue
		}
		rng.Shuffle(len(options), func(a, b int) { options[a], options[b] = options[b], options[a] })
		correct := 0
		for i, o := range options {
			if o == target.Word {
				correct = i
			}
		}
		out = append(out, types.QuizQuestion{
			ID:                 len(out) + 1,
			Question:           fmt.Sprintf("Which word means: %s", target.MeaningEN),
			Options:            options,
			CorrectAnswerIndex: correct,
			Explanation:        explain(target),
		})
	}
	return out, nil
}

func containsFold(list []string, w string) bool {
	for _, x := range list {
		if wordKey(x) == wordKey(w) {
			return true
		}
	}
	return false
}

func explain(it types.VocabItem) string {
	var b strings.Builder
	b.WriteString(it.Word)
	if it.Type != "" {
		b.WriteString(" (" + it.Type + ")")
	}
	if it.ShortMeaning != "" {
		b.WriteString(": " + it.ShortMeaning)
	}
	return b.String()
}
