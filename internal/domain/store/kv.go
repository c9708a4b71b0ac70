package store

import (
	"time"

	"gorm.io/datatypes"
)

// KVEntry backs the local store adapter: one JSON document per namespaced key.
type KVEntry struct {
	Key       string         `gorm:"column:key;primaryKey" json:"key"`
	Value     datatypes.JSON `gorm:"column:value;not null" json:"value"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
}

func (KVEntry) TableName() string { return "kv_entry" }

// UserSnapshot is the replicated copy of one user's data.
type UserSnapshot struct {
	UserID   string         `gorm:"column:user_id;primaryKey" json:"userId"`
	Payload  datatypes.JSON `gorm:"column:payload;not null" json:"payload"`
	SyncedAt time.Time      `gorm:"column:synced_at;not null" json:"syncedAt"`
}

func (UserSnapshot) TableName() string { return "user_snapshot" }
