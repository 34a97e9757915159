package mapper

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"ai-chat-be/internal/entity"
	"ai-chat-be/internal/model"
	"ai-chat-be/pkg/chat/message"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ChatMapper struct{}

func NewChatMapper() *ChatMapper {
	return &ChatMapper{}
}

// Session Mappers

func (m *ChatMapper) ChatSessionToEntity(s *model.ChatSession) *entity.ChatSession {
	if s == nil {
		return nil
	}
	return &entity.ChatSession{
		Id:        s.Id,
		AppId:     s.AppId,
		ClientId:  s.ClientId,
		Title:     s.Title,
		CreatedAt: s.CreatedAt,
	}
}

func (m *ChatMapper) ChatSessionToModel(s *entity.ChatSession) *model.ChatSession {
	if s == nil {
		return nil
	}
	return &model.ChatSession{
		Id:        s.Id,
		AppId:     s.AppId,
		ClientId:  s.ClientId,
		Title:     s.Title,
		CreatedAt: s.CreatedAt,
	}
}

func (m *ChatMapper) ChatSessionsToEntities(models []*model.ChatSession) []*entity.ChatSession {
	out := make([]*entity.ChatSession, len(models))
	for i, s := range models {
		out[i] = m.ChatSessionToEntity(s)
	}
	return out
}

// Message Mappers

func (m *ChatMapper) ChatMessageToEntity(msg *model.ChatMessage) *entity.ChatMessage {
	if msg == nil {
		return nil
	}
	var sources []entity.Source
	for _, s := range msg.Sources {
		sources = append(sources, entity.Source{URI: s.URI, Title: s.Title})
	}
	return &entity.ChatMessage{
		Id:                    msg.Id.String(),
		ChatSessionId:         msg.SessionId,
		Role:                  entity.ChatRole(msg.Role),
		Content:               msg.Content,
		ThinkingProcess:       msg.ThinkingProcess,
		Sources:               sources,
		SuggestedReplies:      []string(msg.SuggestedReplies),
		GeneratedWithThinking: msg.GeneratedWithThinking,
		GeneratedWithSearch:   msg.GeneratedWithSearch,
		CreatedAt:             msg.CreatedAt,
	}
}

// ChatMessageToModel leaves Id zero for locally generated fallback ids so the store assigns one.
func (m *ChatMapper) ChatMessageToModel(msg *entity.ChatMessage) *model.ChatMessage {
	if msg == nil {
		return nil
	}
	var id uuid.UUID
	if message.IsStoreID(msg.Id) {
		id = uuid.MustParse(msg.Id)
	}
	sources := make(datatypes.JSONSlice[model.MessageSource], 0, len(msg.Sources))
	for _, s := range msg.Sources {
		sources = append(sources, model.MessageSource{URI: s.URI, Title: s.Title})
	}
	replies := datatypes.JSONSlice[string]{}
	if msg.SuggestedReplies != nil {
		replies = datatypes.JSONSlice[string](msg.SuggestedReplies)
	}
	return &model.ChatMessage{
		Id:                    id,
		SessionId:             msg.ChatSessionId,
		Role:                  string(msg.Role),
		Content:               msg.Content,
		ThinkingProcess:       msg.ThinkingProcess,
		Sources:               sources,
		SuggestedReplies:      replies,
		GeneratedWithThinking: msg.GeneratedWithThinking,
		GeneratedWithSearch:   msg.GeneratedWithSearch,
		CreatedAt:             msg.CreatedAt,
	}
}

func (m *ChatMapper) ChatMessagesToEntities(models []*model.ChatMessage) []*entity.ChatMessage {
	out := make([]*entity.ChatMessage, len(models))
	for i, msg := range models {
		out[i] = m.ChatMessageToEntity(msg)
	}
	return out
}

// ChatMessageToRow renders the message as a snake_case column map.
func (m *ChatMapper) ChatMessageToRow(msg *entity.ChatMessage) map[string]interface{} {
	row := map[string]interface{}{
		"id":                      msg.Id,
		"session_id":              msg.ChatSessionId.String(),
		"role":                    string(msg.Role),
		"content":                 msg.Content,
		"generated_with_thinking": msg.GeneratedWithThinking,
		"generated_with_search":   msg.GeneratedWithSearch,
		"created_at":              msg.CreatedAt,
	}
	if msg.ThinkingProcess != nil {
		row["thinking_process"] = *msg.ThinkingProcess
	}
	if sources, err := json.Marshal(msg.Sources); err == nil {
		row["sources"] = string(sources)
	}
	if msg.SuggestedReplies != nil {
		if replies, err := json.Marshal(msg.SuggestedReplies); err == nil {
			row["suggested_replies"] = string(replies)
		}
	}
	return row
}

// ChatMessageFromRow decodes a column map. Each field may appear under its camelCase
// or snake_case name; the first non-nil one wins. Malformed rows are an error.
func (m *ChatMapper) ChatMessageFromRow(row map[string]interface{}) (*entity.ChatMessage, error) {
	rawID := pick(row, "id")
	if rawID == nil {
		return nil, fmt.Errorf("message row has no id")
	}
	id, err := asString(rawID)
	if err != nil {
		return nil, fmt.Errorf("message id: %w", err)
	}

	msg := &entity.ChatMessage{Id: id}

	if v := pick(row, "sessionId", "session_id"); v != nil {
		s, err := asString(v)
		if err != nil {
			return nil, fmt.Errorf("session id: %w", err)
		}
		if msg.ChatSessionId, err = uuid.Parse(s); err != nil {
			return nil, fmt.Errorf("session id: %w", err)
		}
	}

	role, err := asString(pick(row, "role"))
	if err != nil {
		return nil, fmt.Errorf("role: %w", err)
	}
	switch entity.ChatRole(role) {
	case entity.ChatRoleUser, entity.ChatRoleModel:
		msg.Role = entity.ChatRole(role)
	default:
		return nil, fmt.Errorf("unknown role %q", role)
	}

	if v := pick(row, "content"); v != nil {
		if msg.Content, err = asString(v); err != nil {
			return nil, fmt.Errorf("content: %w", err)
		}
	}

	if v := pick(row, "thinkingProcess", "thinking_process"); v != nil {
		tp, err := asString(v)
		if err != nil {
			return nil, fmt.Errorf("thinking process: %w", err)
		}
		if strings.TrimSpace(tp) != "" {
			msg.ThinkingProcess = &tp
		}
	}

	if v := pick(row, "sources"); v != nil {
		var sources []entity.Source
		if err := decodeJSON(v, &sources); err != nil {
			return nil, fmt.Errorf("sources: %w", err)
		}
		for _, s := range sources {
			if s.URI != "" && s.Title != "" {
				msg.Sources = append(msg.Sources, s)
			}
		}
	}

	if v := pick(row, "suggestedReplies", "suggested_replies"); v != nil {
		var replies []string
		if err := decodeJSON(v, &replies); err != nil {
			return nil, fmt.Errorf("suggested replies: %w", err)
		}
		msg.SuggestedReplies = replies
	}

	msg.GeneratedWithThinking = asBool(pick(row, "generatedWithThinking", "generated_with_thinking"))
	msg.GeneratedWithSearch = asBool(pick(row, "generatedWithSearch", "generated_with_search"))

	if v := pick(row, "createdAt", "created_at"); v != nil {
		if msg.CreatedAt, err = asTime(v); err != nil {
			return nil, fmt.Errorf("created at: %w", err)
		}
	}

	return msg, nil
}

func pick(row map[string]interface{}, keys ...string) interface{} {
	for _, k := range keys {
		if v := deref(row[k]); v != nil {
			return v
		}
	}
	return nil
}

// deref unwraps the pointers some drivers return from map scans (sqlite yields *interface{}).
func deref(v interface{}) interface{} {
	for v != nil {
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Pointer {
			return v
		}
		if rv.IsNil() {
			return nil
		}
		v = rv.Elem().Interface()
	}
	return nil
}

func asString(v interface{}) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case []byte:
		return string(t), nil
	case uuid.UUID:
		return t.String(), nil
	case [16]byte:
		return uuid.UUID(t).String(), nil
	case nil:
		return "", fmt.Errorf("missing value")
	default:
		return "", fmt.Errorf("unexpected type %T", v)
	}
}

func asBool(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case int64:
		return t != 0
	case int:
		return t != 0
	case string:
		return t == "true" || t == "t" || t == "1"
	case []byte:
		s := string(t)
		return s == "true" || s == "t" || s == "1"
	default:
		return false
	}
}

func asTime(v interface{}) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05.999999999"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, nil
			}
		}
		return time.Time{}, fmt.Errorf("unparseable time %q", t)
	case []byte:
		return asTime(string(t))
	default:
		return time.Time{}, fmt.Errorf("unexpected type %T", v)
	}
}

// decodeJSON accepts jsonb delivered as text, bytes or an already decoded value.
func decodeJSON(v interface{}, out interface{}) error {
	var raw []byte
	switch t := v.(type) {
	case string:
		raw = []byte(t)
	case []byte:
		raw = t
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return err
		}
		raw = b
	}
	if len(strings.TrimSpace(string(raw))) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, out)
}
