package memory

import (
	"context"
	"strings"
	"time"

	"ai-chat-be/internal/entity"
	"ai-chat-be/internal/repository/contract"
	"ai-chat-be/internal/repository/specification"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

type ChatSessionRepository struct {
	store *Store
}

func NewChatSessionRepository(store *Store) contract.ChatSessionRepository {
	return &ChatSessionRepository{store: store}
}

func (r *ChatSessionRepository) Create(ctx context.Context, session *entity.ChatSession) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if session.Id == uuid.Nil {
		session.Id = uuid.New()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = r.store.now()
	}
	r.store.sessions.Set(session.Id.String(), record[*entity.ChatSession]{
		seq:   r.store.nextSeq(),
		value: cloneSession(session),
	}, cache.NoExpiration)
	return nil
}

func (r *ChatSessionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.sessions.Delete(id.String())
	return nil
}

func (r *ChatSessionRepository) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.ChatSession, error) {
	all, err := r.FindAll(ctx, specs...)
	if err != nil || len(all) == 0 {
		return nil, err
	}
	return all[0], nil
}

func (r *ChatSessionRepository) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.ChatSession, error) {
	q, err := buildQuery(specs)
	if err != nil {
		return nil, err
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var recs []record[*entity.ChatSession]
	for key, item := range r.store.sessions.Items() {
		rec := item.Object.(record[*entity.ChatSession])
		s := rec.value
		if q.ids != nil && !q.ids[key] {
			continue
		}
		if q.appID != nil && (s.AppId != *q.appID || s.ClientId != *q.clientID) {
			continue
		}
		if q.title != "" && !strings.Contains(strings.ToLower(s.Title), q.title) {
			continue
		}
		recs = append(recs, record[*entity.ChatSession]{seq: rec.seq, value: cloneSession(s)})
	}
	return sortRecords(recs, func(s *entity.ChatSession) time.Time { return s.CreatedAt }, q), nil
}
