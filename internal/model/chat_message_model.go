package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type MessageSource struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

type ChatMessage struct {
	Id                    uuid.UUID                          `gorm:"type:uuid;primaryKey"`
	SessionId             uuid.UUID                          `gorm:"type:uuid;not null;index"`
	Role                  string                             `gorm:"type:text;not null"`
	Content               string                             `gorm:"type:text;not null"`
	ThinkingProcess       *string                            `gorm:"type:text"`
	Sources               datatypes.JSONSlice[MessageSource] `gorm:"type:jsonb"`
	SuggestedReplies      datatypes.JSONSlice[string]        `gorm:"type:jsonb"`
	GeneratedWithThinking bool                               `gorm:"not null;default:false"`
	GeneratedWithSearch   bool                               `gorm:"not null;default:false"`
	CreatedAt             time.Time                          `gorm:"autoCreateTime"`

	Session *ChatSession `gorm:"foreignKey:SessionId;references:Id;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

func (ChatMessage) TableName() string {
	return "messages"
}

func (m *ChatMessage) BeforeCreate(tx *gorm.DB) error {
	if m.Id == uuid.Nil {
		m.Id = uuid.New()
	}
	return nil
}

// Columns added after the first schema version. Inserts degrade by omitting them.
const (
	ColumnSuggestedReplies = "suggested_replies"
	ColumnThinkingProcess  = "thinking_process"
)
