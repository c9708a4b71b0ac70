package notes

import (
	"context"
	"fmt"
	"html"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/ielts-tutor-backend/internal/data/localstore"
	types "github.com/yungbote/ielts-tutor-backend/internal/domain"
	"github.com/yungbote/ielts-tutor-backend/internal/modules/aigateway"
	pkgerrors "github.com/yungbote/ielts-tutor-backend/internal/pkg/errors"
	"github.com/yungbote/ielts-tutor-backend/internal/platform/logger"
)

const (
	UntitledLesson  = "Untitled lesson"
	DeadlineWindow  = 72 * time.Hour
	MaxDeadlines    = 5
	deadlineLayout  = "2006-01-02 15:04"
	summaryFallback = "The tutor returned no summary."
)

// Responder is the chat operation used for summaries.
type Responder interface {
	ChatTurn(ctx context.Context, history []types.ChatTurn, message string, variant aigateway.Variant) (string, error)
}

type Replicator interface {
	Enqueue(userID string)
}

type Service interface {
	List(ctx context.Context, userID string) ([]types.LessonNote, error)
	CreateLesson(ctx context.Context, userID, title string) (types.LessonNote, error)
	RenameLesson(ctx context.Context, userID, lessonID, title string) (types.LessonNote, error)
	DeleteLesson(ctx context.Context, userID, lessonID string) error
	UpdateBody(ctx context.Context, userID, lessonID, body string) (types.LessonNote, error)
	AddTask(ctx context.Context, userID, lessonID, text string, deadline *time.Time) (types.LessonNote, error)
	ToggleTask(ctx context.Context, userID, lessonID, taskID string) (types.LessonNote, error)
	DeleteTask(ctx context.Context, userID, lessonID, taskID string) (types.LessonNote, error)
	UpcomingDeadlines(ctx context.Context, userID string, now time.Time) ([]types.Deadline, error)
	GetGlobalNotes(ctx context.Context, userID string) (types.GlobalNotes, error)
	SaveGlobalNotes(ctx context.Context, userID, text string) (types.GlobalNotes, error)
	Summarize(ctx context.Context, userID, lessonID string) (string, error)
}

type Option func(*service)

func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

type service struct {
	log   *logger.Logger
	store localstore.Store
	ai    Responder
	repl  Replicator
	locks *localstore.KeyedMutex
	now   func() time.Time
}

func NewService(log *logger.Logger, store localstore.Store, ai Responder, repl Replicator, opts ...Option) Service {
	s := &service{
		log:   log.With("service", "NotesService"),
		store: store,
		ai:    ai,
		repl:  repl,
		locks: localstore.NewKeyedMutex(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var (
	errLessonNotFound = pkgerrors.NotFound("lesson not found")
	errTaskNotFound   = pkgerrors.NotFound("task not found")
)

func randSuffix(n int) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:n]
}

func (s *service) load(ctx context.Context, userID string) ([]types.LessonNote, error) {
	var lessons []types.LessonNote
	if _, err := s.store.Get(ctx, localstore.LessonNotesKey(userID), &lessons); err != nil {
		return nil, err
	}
	if lessons == nil {
		lessons = []types.LessonNote{}
	}
	for i := range lessons {
		if lessons[i].Tasks == nil {
			lessons[i].Tasks = []types.Task{}
		}
	}
	return lessons, nil
}

// commit writes locally first; remote sync is queued and never awaited.
func (s *service) commit(ctx context.Context, userID string, lessons []types.LessonNote) error {
	if err := s.store.Set(ctx, localstore.LessonNotesKey(userID), lessons); err != nil {
		return err
	}
	if s.repl != nil {
		s.repl.Enqueue(userID)
	}
	return nil
}

func (s *service) mutate(ctx context.Context, userID string, fn func([]types.LessonNote) ([]types.LessonNote, error)) error {
	unlock := s.locks.Lock(userID)
	defer unlock()
	lessons, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	next, err := fn(lessons)
	if err != nil {
		return err
	}
	return s.commit(ctx, userID, next)
}

// updateLesson applies fn to one lesson and stamps updatedAt.
func (s *service) updateLesson(ctx context.Context, userID, lessonID string, fn func(*types.LessonNote) error) (types.LessonNote, error) {
	var out types.LessonNote
	err := s.mutate(ctx, userID, func(lessons []types.LessonNote) ([]types.LessonNote, error) {
		i := lessonIndex(lessons, lessonID)
		if i < 0 {
			return nil, errLessonNotFound
		}
		if err := fn(&lessons[i]); err != nil {
			return nil, err
		}
		lessons[i].UpdatedAt = s.now().UnixMilli()
		out = lessons[i]
		return lessons, nil
	})
	return out, err
}

func lessonIndex(lessons []types.LessonNote, id string) int {
	for i := range lessons {
		if lessons[i].ID == id {
			return i
		}
	}
	return -1
}

func taskIndex(tasks []types.Task, id string) int {
	for i := range tasks {
		if tasks[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *service) List(ctx context.Context, userID string) ([]types.LessonNote, error) {
	return s.load(ctx, userID)
}

func (s *service) CreateLesson(ctx context.Context, userID, title string) (types.LessonNote, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = UntitledLesson
	}
	now := s.now().UnixMilli()
	lesson := types.LessonNote{
		ID:        fmt.Sprintf("lesson_%d_%s", now, randSuffix(5)),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
		Tasks:     []types.Task{},
	}
	err := s.mutate(ctx, userID, func(lessons []types.LessonNote) ([]types.LessonNote, error) {
		return append([]types.LessonNote{lesson}, lessons...), nil
	})
	if err != nil {
		return types.LessonNote{}, err
	}
	return lesson, nil
}

func (s *service) RenameLesson(ctx context.Context, userID, lessonID, title string) (types.LessonNote, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return types.LessonNote{}, pkgerrors.Invalid("Title is required")
	}
	return s.updateLesson(ctx, userID, lessonID, func(l *types.LessonNote) error {
		l.Title = title
		return nil
	})
}

func (s *service) DeleteLesson(ctx context.Context, userID, lessonID string) error {
	return s.mutate(ctx, userID, func(lessons []types.LessonNote) ([]types.LessonNote, error) {
		i := lessonIndex(lessons, lessonID)
		if i < 0 {
			return nil, errLessonNotFound
		}
		return append(lessons[:i], lessons[i+1:]...), nil
	})
}

func (s *service) UpdateBody(ctx context.Context, userID, lessonID, body string) (types.LessonNote, error) {
	return s.updateLesson(ctx, userID, lessonID, func(l *types.LessonNote) error {
		l.Body = body
		return nil
	})
}

func (s *service) AddTask(ctx context.Context, userID, lessonID, text string, deadline *time.Time) (types.LessonNote, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return types.LessonNote{}, pkgerrors.Invalid("Task text is required")
	}
	task := types.Task{
		ID:   fmt.Sprintf("task_%d_%s", s.now().UnixMilli(), randSuffix(4)),
		Text: text,
	}
	if deadline != nil && !deadline.IsZero() {
		ms := deadline.UnixMilli()
		task.Deadline = &ms
	}
	return s.updateLesson(ctx, userID, lessonID, func(l *types.LessonNote) error {
		l.Tasks = append(l.Tasks, task)
		return nil
	})
}

func (s *service) ToggleTask(ctx context.Context, userID, lessonID, taskID string) (types.LessonNote, error) {
	return s.updateLesson(ctx, userID, lessonID, func(l *types.LessonNote) error {
		i := taskIndex(l.Tasks, taskID)
		if i < 0 {
			return errTaskNotFound
		}
		l.Tasks[i].Done = !l.Tasks[i].Done
		return nil
	})
}

func (s *service) DeleteTask(ctx context.Context, userID, lessonID, taskID string) (types.LessonNote, error) {
	return s.updateLesson(ctx, userID, lessonID, func(l *types.LessonNote) error {
		i := taskIndex(l.Tasks, taskID)
		if i < 0 {
			return errTaskNotFound
		}
		l.Tasks = append(l.Tasks[:i], l.Tasks[i+1:]...)
		return nil
	})
}

func (s *service) UpcomingDeadlines(ctx context.Context, userID string, now time.Time) ([]types.Deadline, error) {
	lessons, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return Upcoming(lessons, now), nil
}

// Upcoming lists undone tasks due within [now, now+72h], soonest first, at most five.
func Upcoming(lessons []types.LessonNote, now time.Time) []types.Deadline {
	from := now.UnixMilli()
	to := now.Add(DeadlineWindow).UnixMilli()
	out := []types.Deadline{}
	for _, l := range lessons {
		for _, t := range l.Tasks {
			if t.Done || t.Deadline == nil {
				continue
			}
			if d := *t.Deadline; d >= from && d <= to {
				out = append(out, types.Deadline{
					LessonID:    l.ID,
					LessonTitle: l.Title,
					TaskID:      t.ID,
					Text:        t.Text,
					Deadline:    d,
				})
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Deadline < out[j].Deadline })
	if len(out) > MaxDeadlines {
		out = out[:MaxDeadlines]
	}
	return out
}

func (s *service) GetGlobalNotes(ctx context.Context, userID string) (types.GlobalNotes, error) {
	var notes types.GlobalNotes
	if _, err := s.store.Get(ctx, localstore.NotesKey(userID), &notes); err != nil {
		return types.GlobalNotes{}, err
	}
	return notes, nil
}

func (s *service) SaveGlobalNotes(ctx context.Context, userID, text string) (types.GlobalNotes, error) {
	unlock := s.locks.Lock("global:" + userID)
	defer unlock()
	notes := types.GlobalNotes{Text: text, SavedAt: s.now().UnixMilli()}
	if err := s.store.Set(ctx, localstore.NotesKey(userID), notes); err != nil {
		return types.GlobalNotes{}, err
	}
	if s.repl != nil {
		s.repl.Enqueue(userID)
	}
	return notes, nil
}

// Summarize asks the tutor to summarize one lesson, or the whole notebook when lessonID is empty.
func (s *service) Summarize(ctx context.Context, userID, lessonID string) (string, error) {
	lessons, err := s.load(ctx, userID)
	if err != nil {
		return "", err
	}
	source := lessons
	if lessonID != "" {
		i := lessonIndex(lessons, lessonID)
		if i < 0 {
			return "", errLessonNotFound
		}
		source = lessons[i : i+1]
	}
	if len(source) == 0 {
		return "", pkgerrors.Invalid("There are no notes to summarize")
	}
	what := "my IELTS lesson notebook"
	if lessonID != "" {
		what = "my notes for one IELTS lesson"
	}
	msg := fmt.Sprintf("Here is %s:\n\n%s\n\n"+
		"Please answer very briefly (3-4 sentences at most, no bullets, no * or ** characters):\n"+
		"1) Summarize the main content.\n"+
		"2) Give 2-3 next practice suggestions that fit my IELTS level, written as sentences separated by periods.",
		what, PlainText(source))
	if s.ai == nil {
		return "", pkgerrors.Unsupported("summaries need the AI gateway")
	}
	reply, err := s.ai.ChatTurn(ctx, nil, msg, aigateway.VariantText)
	if err != nil {
		s.log.Warn("lesson summary failed", "user_id", userID, "error", err)
		return "", err
	}
	if strings.TrimSpace(reply) == "" {
		return summaryFallback, nil
	}
	return reply, nil
}

var (
	htmlTag       = regexp.MustCompile(`<[^>]+>`)
	spaceNewlines = regexp.MustCompile(`\s+\n`)
)

// StripHTML removes tags from an editor body and decodes entities; non-breaking spaces
// become plain spaces.
func StripHTML(body string) string {
	if body == "" {
		return ""
	}
	out := html.UnescapeString(htmlTag.ReplaceAllString(body, ""))
	out = strings.ReplaceAll(out, "\u00a0", " ")
	return strings.TrimSpace(spaceNewlines.ReplaceAllString(out, "\n"))
}

// PlainText renders lessons as numbered blocks with checkbox task lines.
func PlainText(lessons []types.LessonNote) string {
	blocks := make([]string, 0, len(lessons))
	for i, l := range lessons {
		var b strings.Builder
		fmt.Fprintf(&b, "%d. %s\n", i+1, l.Title)
		if body := StripHTML(l.Body); body != "" {
			b.WriteString(body)
			b.WriteString("\n")
		}
		lines := make([]string, 0, len(l.Tasks))
		for _, t := range l.Tasks {
			mark := " "
			if t.Done {
				mark = "x"
			}
			line := fmt.Sprintf("- [%s] %s", mark, t.Text)
			if t.Deadline != nil {
				line += fmt.Sprintf(" (deadline: %s)", time.UnixMilli(*t.Deadline).UTC().Format(deadlineLayout))
			}
			lines = append(lines, line)
		}
		b.WriteString(strings.Join(lines, "\n"))
		blocks = append(blocks, b.String())
	}
	return strings.Join(blocks, "\n\n")
}
