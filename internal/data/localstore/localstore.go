package localstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gorm.io/gorm"

	datadb "github.com/yungbote/ielts-tutor-backend/internal/data/db"
	"github.com/yungbote/ielts-tutor-backend/internal/data/repos"
	"github.com/yungbote/ielts-tutor-backend/internal/platform/logger"
)

const (
	usersKey             = "ielts_users_v1"
	vocabKeyPrefix       = "ielts_vocab_"
	notesKeyPrefix       = "ielts_notes_"
	lessonNotesKeyPrefix = "ielts_lesson_notes_"
)

func UsersKey() string { return usersKey }
func VocabKey(userID string) string { return vocabKeyPrefix + userID }
func NotesKey(userID string) string { return notesKeyPrefix + userID }
func LessonNotesKey(userID string) string { return lessonNotesKeyPrefix + userID }

// PerUserPrefixes lists the prefixes of keys that belong to a single user.
func PerUserPrefixes() []string {
	return []string{vocabKeyPrefix, notesKeyPrefix, lessonNotesKeyPrefix}
}

// Store is a namespaced JSON key/value store.
type Store interface {
	// Get decodes the value at key into dst. found is false when the key is absent.
	Get(ctx context.Context, key string, dst any) (found bool, err error)
	Set(ctx context.Context, key string, v any) error
	Remove(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
}

type gormStore struct {
	repo repos.KVRepo
	log  *logger.Logger
}

func NewGormStore(db *gorm.DB, baseLog *logger.Logger) Store {
	return &gormStore{
		repo: repos.NewKVRepo(db, baseLog),
		log:  baseLog.With("component", "LocalStore"),
	}
}

func (s *gormStore) Get(ctx context.Context, key string, dst any) (bool, error) {
	entry, err := s.repo.Get(ctx, nil, key)
	if err != nil && datadb.IsRetryable(err) {
		s.log.Warn("kv get retry", "key", key, "error", err)
		entry, err = s.repo.Get(ctx, nil, key)
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	if entry == nil || len(entry.Value) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(entry.Value, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (s *gormStore) Set(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	err = s.repo.Upsert(ctx, nil, key, b)
	if err != nil && datadb.IsRetryable(err) {
		s.log.Warn("kv upsert retry", "key", key, "error", err)
		err = s.repo.Upsert(ctx, nil, key, b)
	}
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *gormStore) Remove(ctx context.Context, key string) error {
	if err := s.repo.Delete(ctx, nil, key); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

func (s *gormStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	return s.repo.KeysWithPrefix(ctx, nil, prefix)
}

type memoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore keeps values in process. Values are still JSON round-tripped so callers
// never share memory with the store.
func NewMemoryStore() Store {
	return &memoryStore{data: map[string][]byte{}}
}

func (m *memoryStore) Get(_ context.Context, key string, dst any) (bool, error) {
	m.mu.RLock()
	b, ok := m.data[key]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (m *memoryStore) Set(_ context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	m.mu.Lock()
	m.data[key] = b
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.data))
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}
