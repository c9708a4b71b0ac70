package notes

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yungbote/ielts-tutor-backend/internal/data/localstore"
	types "github.com/yungbote/ielts-tutor-backend/internal/domain"
	"github.com/yungbote/ielts-tutor-backend/internal/modules/aigateway"
	pkgerrors "github.com/yungbote/ielts-tutor-backend/internal/pkg/errors"
	"github.com/yungbote/ielts-tutor-backend/internal/platform/logger"
)

type fakeResponder struct {
	reply   string
	err     error
	message string
	history []types.ChatTurn
}

func (f *fakeResponder) ChatTurn(_ context.Context, history []types.ChatTurn, message string, _ aigateway.Variant) (string, error) {
	f.history = history
	f.message = message
	return f.reply, f.err
}

type recordingReplicator struct {
	mu sync.Mutex
	n  int
}

func (r *recordingReplicator) Enqueue(string) {
	r.mu.Lock()
	r.n++
	r.mu.Unlock()
}

type failingStore struct{ localstore.Store }

func (failingStore) Set(context.Context, string, any) error { return errors.New("disk full") }

var baseTime = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func newTestService(ai Responder) (Service, *recordingReplicator, *time.Time) {
	now := baseTime
	repl := &recordingReplicator{}
	svc := NewService(logger.NewNop(), localstore.NewMemoryStore(), ai, repl, WithClock(func() time.Time { return now }))
	return svc, repl, &now
}

func TestCreateLessonPrependsAndDefaultsTitle(t *testing.T) {
	svc, repl, _ := newTestService(&fakeResponder{})
	ctx := context.Background()

	first, err := svc.CreateLesson(ctx, "linh", "Speaking Part 2")
	if err != nil {
		t.Fatalf("CreateLesson: %v", err)
	}
	second, _ := svc.CreateLesson(ctx, "linh", "   ")
	if second.Title != UntitledLesson {
		t.Fatalf("blank title should default, got %q", second.Title)
	}
	if !strings.HasPrefix(first.ID, "lesson_") || first.ID == second.ID {
		t.Fatalf("unexpected ids %q %q", first.ID, second.ID)
	}
	lessons, _ := svc.List(ctx, "linh")
	if len(lessons) != 2 || lessons[0].ID != second.ID {
		t.Fatalf("new lessons should be prepended: %+v", lessons)
	}
	if repl.n != 2 {
		t.Fatalf("expected 2 replication requests, got %d", repl.n)
	}
}

func TestTaskLifecycleStampsUpdatedAt(t *testing.T) {
	svc, _, now := newTestService(&fakeResponder{})
	ctx := context.Background()
	lesson, _ := svc.CreateLesson(ctx, "linh", "Writing Task 2")

	*now = now.Add(time.Minute)
	deadline := baseTime.Add(24 * time.Hour)
	lesson, err := svc.AddTask(ctx, "linh", lesson.ID, " Write an essay ", &deadline)
	if err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	if len(lesson.Tasks) != 1 || lesson.Tasks[0].Text != "Write an essay" || *lesson.Tasks[0].Deadline != deadline.UnixMilli() {
		t.Fatalf("unexpected task %+v", lesson.Tasks)
	}
	if lesson.UpdatedAt != now.UnixMilli() || lesson.UpdatedAt == lesson.CreatedAt {
		t.Fatalf("updatedAt not stamped: %+v", lesson)
	}
	taskID := lesson.Tasks[0].ID

	lesson, _ = svc.ToggleTask(ctx, "linh", lesson.ID, taskID)
	if !lesson.Tasks[0].Done {
		t.Fatalf("toggle should mark done")
	}
	lesson, _ = svc.ToggleTask(ctx, "linh", lesson.ID, taskID)
	if lesson.Tasks[0].Done {
		t.Fatalf("second toggle should mark undone")
	}

	if _, err := svc.ToggleTask(ctx, "linh", lesson.ID, "missing"); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	lesson, _ = svc.DeleteTask(ctx, "linh", lesson.ID, taskID)
	if len(lesson.Tasks) != 0 {
		t.Fatalf("task not deleted")
	}
	if _, err := svc.AddTask(ctx, "linh", lesson.ID, "  ", nil); !errors.Is(err, pkgerrors.ErrInvalidArgument) {
		t.Fatalf("blank task should be invalid, got %v", err)
	}
}

func TestRenameUpdateBodyDelete(t *testing.T) {
	svc, _, _ := newTestService(&fakeResponder{})
	ctx := context.Background()
	lesson, _ := svc.CreateLesson(ctx, "linh", "Old")

	if _, err := svc.RenameLesson(ctx, "linh", lesson.ID, ""); !errors.Is(err, pkgerrors.ErrInvalidArgument) {
		t.Fatalf("blank rename should be invalid, got %v", err)
	}
	renamed, _ := svc.RenameLesson(ctx, "linh", lesson.ID, "New")
	if renamed.Title != "New" {
		t.Fatalf("rename failed: %+v", renamed)
	}
	withBody, _ := svc.UpdateBody(ctx, "linh", lesson.ID, "<p>hello</p>")
	if withBody.Body != "<p>hello</p>" {
		t.Fatalf("body not saved")
	}
	if err := svc.DeleteLesson(ctx, "linh", lesson.ID); err != nil {
		t.Fatalf("DeleteLesson: %v", err)
	}
	if err := svc.DeleteLesson(ctx, "linh", lesson.ID); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func ms(d time.Duration) *int64 {
	v := baseTime.Add(d).UnixMilli()
	return &v
}

func TestUpcoming(t *testing.T) {
	lessons := []types.LessonNote{
		{ID: "l1", Title: "One", Tasks: []types.Task{
			{ID: "past", Text: "past", Deadline: ms(-time.Minute)},
			{ID: "t48", Text: "48h", Deadline: ms(48 * time.Hour)},
			{ID: "done", Text: "done", Done: true, Deadline: ms(time.Hour)},
			{ID: "none", Text: "no deadline"},
			{ID: "edge", Text: "edge", Deadline: ms(DeadlineWindow)},
		}},
		{ID: "l2", Title: "Two", Tasks: []types.Task{
			{ID: "t1", Text: "1h", Deadline: ms(time.Hour)},
			{ID: "late", Text: "too late", Deadline: ms(DeadlineWindow + time.Millisecond)},
			{ID: "t2", Text: "2h", Deadline: ms(2 * time.Hour)},
			{ID: "t3", Text: "3h", Deadline: ms(3 * time.Hour)},
			{ID: "t0", Text: "now", Deadline: ms(0)},
		}},
	}

	got := Upcoming(lessons, baseTime)
	want := []string{"t0", "t1", "t2", "t3", "t48"}
	if len(got) != len(want) {
		t.Fatalf("expected %d deadlines, got %+v", len(want), got)
	}
	for i, id := range want {
		if got[i].TaskID != id {
			t.Fatalf("position %d: want %s got %s", i, id, got[i].TaskID)
		}
	}
	if got[1].LessonID != "l2" || got[1].LessonTitle != "Two" {
		t.Fatalf("deadline should carry lesson info: %+v", got[1])
	}

	if got := Upcoming(nil, baseTime); len(got) != 0 {
		t.Fatalf("expected empty list, got %+v", got)
	}
}

func TestUpcomingDeadlinesIncludesWindowEdge(t *testing.T) {
	svc, _, _ := newTestService(&fakeResponder{})
	ctx := context.Background()
	lesson, _ := svc.CreateLesson(ctx, "linh", "L")
	edge := baseTime.Add(DeadlineWindow)
	_, _ = svc.AddTask(ctx, "linh", lesson.ID, "edge", &edge)

	got, err := svc.UpcomingDeadlines(ctx, "linh", baseTime)
	if err != nil || len(got) != 1 || got[0].Text != "edge" {
		t.Fatalf("UpcomingDeadlines: got=%+v err=%v", got, err)
	}
}

func TestGlobalNotes(t *testing.T) {
	svc, repl, _ := newTestService(&fakeResponder{})
	ctx := context.Background()

	empty, err := svc.GetGlobalNotes(ctx, "linh")
	if err != nil || empty.Text != "" {
		t.Fatalf("expected empty notes, got %+v err=%v", empty, err)
	}
	saved, _ := svc.SaveGlobalNotes(ctx, "linh", "remember linking words")
	if saved.SavedAt != baseTime.UnixMilli() {
		t.Fatalf("savedAt not stamped: %+v", saved)
	}
	got, _ := svc.GetGlobalNotes(ctx, "linh")
	if got != saved {
		t.Fatalf("round trip mismatch: %+v vs %+v", got, saved)
	}
	if repl.n != 1 {
		t.Fatalf("expected replication after save")
	}
}

func TestLocalFailureSkipsReplication(t *testing.T) {
	repl := &recordingReplicator{}
	svc := NewService(logger.NewNop(), failingStore{localstore.NewMemoryStore()}, &fakeResponder{}, repl)
	if _, err := svc.CreateLesson(context.Background(), "linh", "x"); err == nil {
		t.Fatalf("expected local write error")
	}
	if repl.n != 0 {
		t.Fatalf("replication must not run when the local commit fails")
	}
}

func TestSummarize(t *testing.T) {
	ai := &fakeResponder{reply: "Good work."}
	svc, _, _ := newTestService(ai)
	ctx := context.Background()

	if _, err := svc.Summarize(ctx, "linh", ""); !errors.Is(err, pkgerrors.ErrInvalidArgument) {
		t.Fatalf("empty notebook should be invalid, got %v", err)
	}

	lesson, _ := svc.CreateLesson(ctx, "linh", "Speaking")
	_, _ = svc.UpdateBody(ctx, "linh", lesson.ID, "<p>Use <b>idioms</b></p>")
	_, _ = svc.AddTask(ctx, "linh", lesson.ID, "Record answer", nil)

	got, err := svc.Summarize(ctx, "linh", lesson.ID)
	if err != nil || got != "Good work." {
		t.Fatalf("Summarize: got=%q err=%v", got, err)
	}
	if len(ai.history) != 0 {
		t.Fatalf("summary should be sent without history")
	}
	for _, want := range []string{"1. Speaking", "Use idioms", "- [ ] Record answer", "one IELTS lesson"} {
		if !strings.Contains(ai.message, want) {
			t.Fatalf("message missing %q:\n%s", want, ai.message)
		}
	}

	ai.reply = "  "
	if got, _ := svc.Summarize(ctx, "linh", ""); got != summaryFallback {
		t.Fatalf("expected fallback text, got %q", got)
	}

	ai.err = errors.New("upstream")
	if _, err := svc.Summarize(ctx, "linh", lesson.ID); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := svc.Summarize(ctx, "linh", "missing"); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStripHTML(t *testing.T) {
	cases := map[string]string{
		"":                                 "",
		"<p>a</p>":                         "a",
		"<div>x  \n<br/>y</div>  ":         "x\ny",
		"plain":                            "plain",
		"<p>Tom&nbsp;&amp;&nbsp;Jerry</p>": "Tom & Jerry",
		"&lt;b&gt; is bold":                "<b> is bold",
	}
	for in, want := range cases {
		if got := StripHTML(in); got != want {
			t.Fatalf("StripHTML(%q) = %q, want %q", in, got, want)
		}
	}
}
