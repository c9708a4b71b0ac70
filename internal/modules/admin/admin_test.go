package admin

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/yungbote/ielts-tutor-backend/internal/data/localstore"
	"github.com/yungbote/ielts-tutor-backend/internal/data/repos"
	"github.com/yungbote/ielts-tutor-backend/internal/data/repos/testutil"
	types "github.com/yungbote/ielts-tutor-backend/internal/domain"
	"github.com/yungbote/ielts-tutor-backend/internal/modules/identity"
	pkgerrors "github.com/yungbote/ielts-tutor-backend/internal/pkg/errors"
)

type fixture struct {
	svc   *Service
	store localstore.Store
	chats repos.ChatLogRepo
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	store := localstore.NewGormStore(db, log)
	chats := repos.NewChatLogRepo(db, log)

	clock := time.UnixMilli(1_700_000_000_000)
	ids := identity.NewService(log, store, nil, identity.Config{JWTSecret: "s", BcryptCost: bcrypt.MinCost},
		identity.WithClock(func() time.Time { return clock }))
	ctx := context.Background()
	for _, name := range []string{"Linh", "Minh", "Anh"} {
		clock = clock.Add(time.Minute)
		if _, err := ids.Login(ctx, name, "pw"); err != nil {
			t.Fatalf("Login %s: %v", name, err)
		}
	}
	return &fixture{svc: NewService(log, ids, store, chats), store: store, chats: chats}
}

func TestListUsersCountsAndOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.store.Set(ctx, localstore.VocabKey("linh"), []types.VocabItem{{ID: "v1"}, {ID: "v2"}}); err != nil {
		t.Fatalf("seed vocab: %v", err)
	}
	if err := f.store.Set(ctx, localstore.LessonNotesKey("minh"), []types.LessonNote{{ID: "l1"}}); err != nil {
		t.Fatalf("seed lessons: %v", err)
	}
	if _, err := f.chats.Create(ctx, nil, []*types.ChatLog{
		{ID: uuid.New(), UserID: "linh", UserMessage: "hi", ModelReply: "hello", CreatedAt: time.Now()},
	}); err != nil {
		t.Fatalf("seed chats: %v", err)
	}

	list, err := f.svc.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 users, got %d", len(list))
	}
	order := []string{list[0].UserID, list[1].UserID, list[2].UserID}
	if order[0] != "anh" || order[1] != "minh" || order[2] != "linh" {
		t.Fatalf("expected most recent login first, got %v", order)
	}
	byID := map[string]UserSummary{}
	for _, u := range list {
		byID[u.UserID] = u
	}
	if byID["linh"].VocabCount != 2 || byID["linh"].ChatCount != 1 {
		t.Fatalf("linh counts: %+v", byID["linh"])
	}
	if byID["minh"].LessonCount != 1 || byID["minh"].ChatCount != 0 {
		t.Fatalf("minh counts: %+v", byID["minh"])
	}
}

func TestGetUserDetail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	if _, err := f.chats.Create(ctx, nil, []*types.ChatLog{
		{ID: uuid.New(), UserID: "linh", UserMessage: "first", ModelReply: "r1", CreatedAt: base},
		{ID: uuid.New(), UserID: "linh", UserMessage: "second", ModelReply: "r2", CreatedAt: base.Add(time.Minute)},
	}); err != nil {
		t.Fatalf("seed chats: %v", err)
	}

	d, err := f.svc.GetUserDetail(ctx, "linh")
	if err != nil {
		t.Fatalf("GetUserDetail: %v", err)
	}
	if d.Name != "Linh" || d.GlobalNotes != nil || len(d.Vocab) != 0 {
		t.Fatalf("unexpected detail: %+v", d)
	}
	if len(d.ChatHistory) != 4 {
		t.Fatalf("expected 4 chat entries, got %d", len(d.ChatHistory))
	}
	if d.ChatHistory[0].Text != "first" || d.ChatHistory[1].Role != "assistant" || d.ChatHistory[3].Text != "r2" {
		t.Fatalf("chat history should be oldest first: %+v", d.ChatHistory)
	}

	if _, err := f.svc.GetUserDetail(ctx, "ghost"); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("unknown user: expected not found, got %v", err)
	}
}

func TestDeletesAreNotSupported(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ops := map[string]func() error{
		"user":   func() error { return f.svc.DeleteUser(ctx, "linh") },
		"vocab":  func() error { return f.svc.DeleteVocabItem(ctx, "linh", "v1") },
		"lesson": func() error { return f.svc.DeleteLesson(ctx, "linh", "l1") },
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			err := op()
			if !errors.Is(err, pkgerrors.ErrNotSupported) {
				t.Fatalf("expected ErrNotSupported, got %v", err)
			}
			if err.Error() != "not yet supported" {
				t.Fatalf("message: got %q", err.Error())
			}
		})
	}
}
