package admin

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/yungbote/ielts-tutor-backend/internal/data/localstore"
	types "github.com/yungbote/ielts-tutor-backend/internal/domain"
	"github.com/yungbote/ielts-tutor-backend/internal/modules/identity"
	pkgerrors "github.com/yungbote/ielts-tutor-backend/internal/pkg/errors"
	"github.com/yungbote/ielts-tutor-backend/internal/platform/logger"
)

const (
	countConcurrency = 8
	chatHistoryLimit = 200
)

type Directory interface {
	ListUsers(ctx context.Context) ([]identity.Account, error)
	Lookup(ctx context.Context, id string) (identity.Account, error)
}

type ChatLogReader interface {
	ListByUser(ctx context.Context, tx *gorm.DB, userID string, limit int) ([]*types.ChatLog, error)
	CountByUsers(ctx context.Context, tx *gorm.DB, userIDs []string) (map[string]int64, error)
}

type UserSummary struct {
	UserID      string `json:"userId"`
	Name        string `json:"name"`
	JoinedAt    int64  `json:"joinedAt"`
	LastLoginAt int64  `json:"lastLoginAt,omitempty"`
	VocabCount  int    `json:"vocabCount"`
	LessonCount int    `json:"lessonCount"`
	ChatCount   int64  `json:"chatCount"`
}

type ChatEntry struct {
	Role      string `json:"role"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

type UserDetail struct {
	UserID      string             `json:"userId"`
	Name        string             `json:"name"`
	JoinedAt    int64              `json:"joinedAt"`
	LastLoginAt int64              `json:"lastLoginAt,omitempty"`
	Vocab       []types.VocabItem  `json:"vocab"`
	GlobalNotes *types.GlobalNotes `json:"globalNotes"`
	LessonNotes []types.LessonNote `json:"lessonNotes"`
	ChatHistory []ChatEntry        `json:"chatHistory"`
}

// Service is the read-only aggregation behind the admin dashboard.
type Service struct {
	log   *logger.Logger
	users Directory
	store localstore.Store
	chats ChatLogReader
}

func NewService(baseLog *logger.Logger, users Directory, store localstore.Store, chats ChatLogReader) *Service {
	return &Service{
		log:   baseLog.With("service", "AdminService"),
		users: users,
		store: store,
		chats: chats,
	}
}

// ListUsers summarizes every learner, most recently active first.
func (s *Service) ListUsers(ctx context.Context) ([]UserSummary, error) {
	accounts, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	out := make([]UserSummary, len(accounts))
	ids := make([]string, len(accounts))
	for i, a := range accounts {
		ids[i] = a.User.ID
		out[i] = UserSummary{UserID: a.User.ID, Name: a.User.Name, JoinedAt: a.User.JoinedAt, LastLoginAt: a.LastLoginAt}
	}

	var chatCounts map[string]int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(countConcurrency)
	g.Go(func() error {
		if s.chats == nil {
			return nil
		}
		counts, err := s.chats.CountByUsers(gctx, nil, ids)
		if err != nil {
			s.log.Warn("Chat counts unavailable", "error", err)
			return nil
		}
		chatCounts = counts
		return nil
	})
	for i := range out {
		g.Go(func() error {
			var vocab []types.VocabItem
			if _, err := s.store.Get(gctx, localstore.VocabKey(out[i].UserID), &vocab); err != nil {
				return fmt.Errorf("vocab for %s: %w", out[i].UserID, err)
			}
			var lessons []types.LessonNote
			if _, err := s.store.Get(gctx, localstore.LessonNotesKey(out[i].UserID), &lessons); err != nil {
				return fmt.Errorf("lessons for %s: %w", out[i].UserID, err)
			}
			out[i].VocabCount = len(vocab)
			out[i].LessonCount = len(lessons)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i := range out {
		out[i].ChatCount = chatCounts[out[i].UserID]
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].LastLoginAt > out[j].LastLoginAt })
	return out, nil
}

// GetUserDetail returns everything stored for one learner.
func (s *Service) GetUserDetail(ctx context.Context, userID string) (UserDetail, error) {
	acct, err := s.users.Lookup(ctx, userID)
	if err != nil {
		return UserDetail{}, err
	}
	d := UserDetail{
		UserID:      acct.User.ID,
		Name:        acct.User.Name,
		JoinedAt:    acct.User.JoinedAt,
		LastLoginAt: acct.LastLoginAt,
		Vocab:       []types.VocabItem{},
		LessonNotes: []types.LessonNote{},
		ChatHistory: []ChatEntry{},
	}
	if _, err := s.store.Get(ctx, localstore.VocabKey(userID), &d.Vocab); err != nil {
		return UserDetail{}, fmt.Errorf("load vocab: %w", err)
	}
	if _, err := s.store.Get(ctx, localstore.LessonNotesKey(userID), &d.LessonNotes); err != nil {
		return UserDetail{}, fmt.Errorf("load lesson notes: %w", err)
	}
	var notes types.GlobalNotes
	found, err := s.store.Get(ctx, localstore.NotesKey(userID), &notes)
	if err != nil {
		return UserDetail{}, fmt.Errorf("load notes: %w", err)
	}
	if found {
		d.GlobalNotes = &notes
	}
	if s.chats != nil {
		rows, err := s.chats.ListByUser(ctx, nil, userID, chatHistoryLimit)
		if err != nil {
			s.log.Warn("Chat history unavailable", "user_id", userID, "error", err)
		} else {
			d.ChatHistory = flattenChats(rows)
		}
	}
	return d, nil
}

// flattenChats turns newest-first log rows into an oldest-first transcript.
func flattenChats(rows []*types.ChatLog) []ChatEntry {
	out := make([]ChatEntry, 0, len(rows)*2)
	for i := len(rows) - 1; i >= 0; i-- {
		r := rows[i]
		ts := r.CreatedAt.UnixMilli()
		out = append(out,
			ChatEntry{Role: string(types.RoleUser), Text: r.UserMessage, Timestamp: ts},
			ChatEntry{Role: string(types.RoleAssistant), Text: r.ModelReply, Timestamp: ts},
		)
	}
	return out
}

func (s *Service) DeleteUser(_ context.Context, userID string) error {
	s.log.Info("Admin delete user requested", "user_id", userID)
	return pkgerrors.Unsupported("not yet supported")
}

func (s *Service) DeleteVocabItem(_ context.Context, userID, itemID string) error {
	s.log.Info("Admin delete vocab requested", "user_id", userID, "item_id", itemID)
	return pkgerrors.Unsupported("not yet supported")
}

func (s *Service) DeleteLesson(_ context.Context, userID, lessonID string) error {
	s.log.Info("Admin delete lesson requested", "user_id", userID, "lesson_id", lessonID)
	return pkgerrors.Unsupported("not yet supported")
}
