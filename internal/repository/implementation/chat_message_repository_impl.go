package implementation

import (
	"context"
	"strings"

	"ai-chat-be/internal/entity"
	"ai-chat-be/internal/mapper"
	"ai-chat-be/internal/model"
	"ai-chat-be/internal/repository/contract"
	"ai-chat-be/internal/repository/scope"
	"ai-chat-be/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// optionalColumns may be missing on stores created from an older schema.
var optionalColumns = []string{model.ColumnSuggestedReplies, model.ColumnThinkingProcess}

type ChatMessageRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.ChatMapper
}

func NewChatMessageRepository(db *gorm.DB) contract.ChatMessageRepository {
	return &ChatMessageRepositoryImpl{
		db:     db,
		mapper: mapper.NewChatMapper(),
	}
}

// Create retries without an optional column when the store rejects it.
func (r *ChatMessageRepositoryImpl) Create(ctx context.Context, msg *entity.ChatMessage) error {
	m := r.mapper.ChatMessageToModel(msg)

	var omitted []string
	for {
		err := r.db.WithContext(ctx).Omit(omitted...).Create(m).Error
		if err == nil {
			break
		}
		col := offendingColumn(err, omitted)
		if col == "" {
			return err
		}
		omitted = append(omitted, col)
	}

	msg.Id = m.Id.String()
	msg.CreatedAt = m.CreatedAt
	return nil
}

func offendingColumn(err error, omitted []string) string {
	text := err.Error()
	for _, col := range optionalColumns {
		if !strings.Contains(text, col) {
			continue
		}
		already := false
		for _, o := range omitted {
			if o == col {
				already = true
			}
		}
		if !already {
			return col
		}
	}
	return ""
}

func (r *ChatMessageRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.ChatMessage, error) {
	var models []*model.ChatMessage
	query := applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return r.mapper.ChatMessagesToEntities(models), nil
}

func (r *ChatMessageRepositoryImpl) FindAllRawBySessionId(ctx context.Context, sessionId uuid.UUID) ([]map[string]interface{}, error) {
	var rows []map[string]interface{}
	err := r.db.WithContext(ctx).
		Table(model.ChatMessage{}.TableName()).
		Where("session_id = ?", sessionId).
		Scopes(scope.OrderByCreatedAsc).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *ChatMessageRepositoryImpl) UpdateSuggestedReplies(ctx context.Context, id uuid.UUID, replies []string) error {
	return r.db.WithContext(ctx).
		Model(&model.ChatMessage{}).
		Where("id = ?", id).
		Update(model.ColumnSuggestedReplies, datatypes.JSONSlice[string](replies)).Error
}

func (r *ChatMessageRepositoryImpl) DeleteByIds(ctx context.Context, sessionId uuid.UUID, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	query := applySpecifications(r.db.WithContext(ctx),
		specification.BySessionID{SessionID: sessionId},
		specification.ByIDs{IDs: ids},
	)
	return query.Delete(&model.ChatMessage{}).Error
}

func (r *ChatMessageRepositoryImpl) DeleteBySessionId(ctx context.Context, sessionId uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("session_id = ?", sessionId).
		Delete(&model.ChatMessage{}).Error
}
