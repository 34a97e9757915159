package memory

import (
	"context"
	"time"

	"ai-chat-be/internal/entity"
	"ai-chat-be/internal/mapper"
	"ai-chat-be/internal/repository/contract"
	"ai-chat-be/internal/repository/specification"
	"ai-chat-be/pkg/chat/message"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

type ChatMessageRepository struct {
	store  *Store
	mapper *mapper.ChatMapper
}

func NewChatMessageRepository(store *Store) contract.ChatMessageRepository {
	return &ChatMessageRepository{store: store, mapper: mapper.NewChatMapper()}
}

func (r *ChatMessageRepository) Create(ctx context.Context, msg *entity.ChatMessage) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if !message.IsStoreID(msg.Id) {
		msg.Id = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = r.store.now()
	}
	stored := msg.Clone()
	stored.IsLoading = false
	stored.IsError = false
	r.store.messages.Set(msg.Id, record[*entity.ChatMessage]{
		seq:   r.store.nextSeq(),
		value: stored,
	}, cache.NoExpiration)
	return nil
}

func (r *ChatMessageRepository) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.ChatMessage, error) {
	q, err := buildQuery(specs)
	if err != nil {
		return nil, err
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var recs []record[*entity.ChatMessage]
	for key, item := range r.store.messages.Items() {
		rec := item.Object.(record[*entity.ChatMessage])
		if q.ids != nil && !q.ids[key] {
			continue
		}
		if q.sessionID != "" && rec.value.ChatSessionId.String() != q.sessionID {
			continue
		}
		recs = append(recs, record[*entity.ChatMessage]{seq: rec.seq, value: rec.value.Clone()})
	}
	return sortRecords(recs, func(m *entity.ChatMessage) time.Time { return m.CreatedAt }, q), nil
}

func (r *ChatMessageRepository) FindAllRawBySessionId(ctx context.Context, sessionId uuid.UUID) ([]map[string]interface{}, error) {
	msgs, err := r.FindAll(ctx, specification.BySessionID{SessionID: sessionId})
	if err != nil {
		return nil, err
	}
	rows := make([]map[string]interface{}, len(msgs))
	for i, m := range msgs {
		rows[i] = r.mapper.ChatMessageToRow(m)
	}
	return rows, nil
}

func (r *ChatMessageRepository) UpdateSuggestedReplies(ctx context.Context, id uuid.UUID, replies []string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	item, ok := r.store.messages.Get(id.String())
	if !ok {
		return nil
	}
	rec := item.(record[*entity.ChatMessage])
	updated := rec.value.Clone()
	updated.SuggestedReplies = append([]string{}, replies...)
	r.store.messages.Set(id.String(), record[*entity.ChatMessage]{seq: rec.seq, value: updated}, cache.NoExpiration)
	return nil
}

func (r *ChatMessageRepository) DeleteByIds(ctx context.Context, sessionId uuid.UUID, ids []uuid.UUID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, id := range ids {
		item, ok := r.store.messages.Get(id.String())
		if !ok {
			continue
		}
		if item.(record[*entity.ChatMessage]).value.ChatSessionId == sessionId {
			r.store.messages.Delete(id.String())
		}
	}
	return nil
}

func (r *ChatMessageRepository) DeleteBySessionId(ctx context.Context, sessionId uuid.UUID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for key, item := range r.store.messages.Items() {
		if item.Object.(record[*entity.ChatMessage]).value.ChatSessionId == sessionId {
			r.store.messages.Delete(key)
		}
	}
	return nil
}
