package entity

import (
	"time"

	"github.com/google/uuid"
)

type ChatRole string

const (
	ChatRoleUser  ChatRole = "user"
	ChatRoleModel ChatRole = "model"
)

// ChatMessage is one entry of a conversation timeline. Id is generated locally at
// append time and is never reassigned.
type ChatMessage struct {
	Id                    string
	ChatSessionId         uuid.UUID
	Role                  ChatRole
	Content               string
	ThinkingProcess       *string
	Sources               []Source
	SuggestedReplies      []string
	GeneratedWithThinking bool
	GeneratedWithSearch   bool
	IsLoading             bool
	IsError               bool
	CreatedAt             time.Time
}

// IsPlaceholder reports whether the message is an in-progress model reply.
func (m *ChatMessage) IsPlaceholder() bool {
	return m.Role == ChatRoleModel && m.IsLoading
}

// Clone returns a deep copy so callers can hand messages out of a locked section.
func (m *ChatMessage) Clone() *ChatMessage {
	if m == nil {
		return nil
	}
	c := *m
	if m.ThinkingProcess != nil {
		tp := *m.ThinkingProcess
		c.ThinkingProcess = &tp
	}
	if m.Sources != nil {
		c.Sources = append([]Source(nil), m.Sources...)
	}
	if m.SuggestedReplies != nil {
		c.SuggestedReplies = append([]string(nil), m.SuggestedReplies...)
	}
	return &c
}
