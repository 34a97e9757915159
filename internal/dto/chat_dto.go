package dto

import (
	"time"

	"github.com/google/uuid"
)

type SourceDTO struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

type MessageResponse struct {
	Id                    string      `json:"id"`
	Role                  string      `json:"role"`
	Content               string      `json:"content"`
	ThinkingProcess       *string     `json:"thinking_process"`
	Sources               []SourceDTO `json:"sources"`
	SuggestedReplies      []string    `json:"suggested_replies,omitempty"`
	GeneratedWithThinking bool        `json:"generated_with_thinking"`
	GeneratedWithSearch   bool        `json:"generated_with_search"`
	IsLoading             bool        `json:"is_loading,omitempty"`
	IsError               bool        `json:"is_error,omitempty"`
	CreatedAt             time.Time   `json:"created_at"`
}

type SessionResponse struct {
	Id        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

type SessionGroupResponse struct {
	Label    string             `json:"label"`
	Sessions []*SessionResponse `json:"sessions"`
}

type ListSessionsRequest struct {
	Query    string `query:"q" validate:"max=200"`
	Grouping string `query:"grouping" validate:"omitempty,oneof=relative monthly"`
}

// TimelineResponse is the live view: the active session, its messages and the
// follow-up replies offered under the last answer.
type TimelineResponse struct {
	SessionId          *uuid.UUID         `json:"session_id"`
	Phase              string             `json:"phase"`
	HistoryLoaded      bool               `json:"history_loaded"`
	Messages           []*MessageResponse `json:"messages"`
	PendingSuggestions []string           `json:"pending_suggestions"`
}

type SendMessageRequest struct {
	Text     string `json:"text" validate:"required,max=32000"`
	Thinking *bool  `json:"thinking,omitempty"`
	Search   *bool  `json:"search,omitempty"`
	Model    string `json:"model,omitempty" validate:"max=100"`
}

type RegenerateRequest struct {
	Thinking *bool  `json:"thinking,omitempty"`
	Search   *bool  `json:"search,omitempty"`
	Model    string `json:"model,omitempty" validate:"max=100"`
}

type TurnResponse struct {
	SessionId        uuid.UUID        `json:"session_id"`
	SessionTitle     string           `json:"title,omitempty"`
	Sent             *MessageResponse `json:"sent,omitempty"`
	Reply            *MessageResponse `json:"reply"`
	SuggestedReplies []string         `json:"suggested_replies"`
}

type TranslateResponse struct {
	MessageId string `json:"message_id"`
	Target    string `json:"target"`
	Text      string `json:"text"`
}

// SpeechResponse carries raw audio bytes, base64 encoded by encoding/json.
type SpeechResponse struct {
	MessageId string `json:"message_id"`
	MimeType  string `json:"mime_type"`
	Audio     []byte `json:"audio"`
}

type SummaryResponse struct {
	Summary string `json:"summary"`
}
