package mapper

import (
	"ai-chat-be/internal/dto"
	"ai-chat-be/internal/entity"
)

// Response Mappers

func (m *ChatMapper) ChatMessageToResponse(msg *entity.ChatMessage) *dto.MessageResponse {
	if msg == nil {
		return nil
	}
	sources := make([]dto.SourceDTO, 0, len(msg.Sources))
	for _, s := range msg.Sources {
		sources = append(sources, dto.SourceDTO{URI: s.URI, Title: s.Title})
	}
	return &dto.MessageResponse{
		Id:                    msg.Id,
		Role:                  string(msg.Role),
		Content:               msg.Content,
		ThinkingProcess:       msg.ThinkingProcess,
		Sources:               sources,
		SuggestedReplies:      msg.SuggestedReplies,
		GeneratedWithThinking: msg.GeneratedWithThinking,
		GeneratedWithSearch:   msg.GeneratedWithSearch,
		IsLoading:             msg.IsLoading,
		IsError:               msg.IsError,
		CreatedAt:             msg.CreatedAt,
	}
}

func (m *ChatMapper) ChatMessagesToResponses(msgs []*entity.ChatMessage) []*dto.MessageResponse {
	out := make([]*dto.MessageResponse, len(msgs))
	for i, msg := range msgs {
		out[i] = m.ChatMessageToResponse(msg)
	}
	return out
}

func (m *ChatMapper) ChatSessionToResponse(s *entity.ChatSession) *dto.SessionResponse {
	if s == nil {
		return nil
	}
	return &dto.SessionResponse{
		Id:        s.Id,
		Title:     s.Title,
		CreatedAt: s.CreatedAt,
	}
}
