package chat

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	// RoleSystem marks controller notices. They are shown but never sent upstream.
	RoleSystem Role = "system"
)

// Kind tags scripted lines so they can be kept out of the model history.
type Kind string

const (
	KindWelcome Kind = "welcome"
	KindPrompt  Kind = "prompt"
	KindNotice  Kind = "notice"
)

// ChatMessage is immutable once appended to a transcript.
type ChatMessage struct {
	ID        string `json:"id"`
	Role      Role   `json:"role"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
	Kind      Kind   `json:"kind,omitempty"`
}

// Turn is one history entry in the upstream chat format.
type Turn struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

type Part struct {
	Text string `json:"text"`
}

// ChatLog records one completed exchange for the admin view.
type ChatLog struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      string    `gorm:"column:user_id;not null;index" json:"userId"`
	UserMessage string    `gorm:"column:user_message;type:text;not null" json:"userMessage"`
	ModelReply  string    `gorm:"column:model_reply;type:text;not null" json:"modelReply"`
	CreatedAt   time.Time `gorm:"not null;index" json:"timestamp"`
}

func (ChatLog) TableName() string { return "chat_log" }
