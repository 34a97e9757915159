package contract

import (
	"context"

	"ai-chat-be/internal/entity"
	"ai-chat-be/internal/repository/specification"

	"github.com/google/uuid"
)

type ChatMessageRepository interface {
	// Create inserts the message and writes the store id back into msg.Id.
	// Ids that are not store-shaped are replaced by a store-assigned one.
	Create(ctx context.Context, msg *entity.ChatMessage) error
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.ChatMessage, error)
	// FindAllRawBySessionId returns rows as column maps in created order, for callers that
	// must cope with rows written under older column names.
	FindAllRawBySessionId(ctx context.Context, sessionId uuid.UUID) ([]map[string]interface{}, error)
	UpdateSuggestedReplies(ctx context.Context, id uuid.UUID, replies []string) error
	DeleteByIds(ctx context.Context, sessionId uuid.UUID, ids []uuid.UUID) error
	DeleteBySessionId(ctx context.Context, sessionId uuid.UUID) error
}
