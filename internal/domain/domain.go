package domain

import (
	"github.com/yungbote/ielts-tutor-backend/internal/domain/chat"
	"github.com/yungbote/ielts-tutor-backend/internal/domain/lesson"
	"github.com/yungbote/ielts-tutor-backend/internal/domain/quiz"
	"github.com/yungbote/ielts-tutor-backend/internal/domain/store"
	"github.com/yungbote/ielts-tutor-backend/internal/domain/user"
	"github.com/yungbote/ielts-tutor-backend/internal/domain/vocab"
)

type (
	User             = user.User
	CredentialRecord = user.CredentialRecord

	WordAnalysis  = vocab.WordAnalysis
	VocabItem     = vocab.VocabItem
	VocabSnapshot = vocab.Snapshot
	ImportMode    = vocab.ImportMode

	LessonNote  = lesson.LessonNote
	Task        = lesson.Task
	GlobalNotes = lesson.GlobalNotes
	Deadline    = lesson.Deadline

	QuizQuestion = quiz.QuizQuestion

	ChatRole    = chat.Role
	MessageKind = chat.Kind
	ChatMessage = chat.ChatMessage
	ChatTurn    = chat.Turn
	ChatPart    = chat.Part
	ChatLog     = chat.ChatLog

	KVEntry      = store.KVEntry
	UserSnapshot = store.UserSnapshot
)

const (
	ImportOverwrite = vocab.ImportOverwrite
	ImportMerge     = vocab.ImportMerge

	RoleUser      = chat.RoleUser
	RoleAssistant = chat.RoleAssistant
	RoleSystem    = chat.RoleSystem

	KindWelcome = chat.KindWelcome
	KindPrompt  = chat.KindPrompt
	KindNotice  = chat.KindNotice
)

// QuizTopics are the topics offered by the quiz screen.
var QuizTopics = quiz.Topics

// SnapshotPayload is what replication writes for one user.
type SnapshotPayload struct {
	User        User         `json:"user"`
	Vocab       []VocabItem  `json:"vocab"`
	GlobalNotes GlobalNotes  `json:"globalNotes"`
	LessonNotes []LessonNote `json:"lessonNotes"`
}

// AutoMigrateModels lists every gorm-managed table.
func AutoMigrateModels() []any {
	return []any{&KVEntry{}, &UserSnapshot{}, &ChatLog{}}
}
