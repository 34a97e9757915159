// Package session keeps the in-memory list of chat sessions in sync with the store.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"ai-chat-be/internal/entity"
	"ai-chat-be/internal/repository/specification"
	"ai-chat-be/internal/repository/unitofwork"

	"github.com/google/uuid"
)

const (
	titleMaxRunes = 50
	DefaultTitle  = "New chat"
)

var ErrSessionNotFound = errors.New("session not found")

type Registry struct {
	mu       sync.RWMutex
	sessions []*entity.ChatSession
	factory  unitofwork.RepositoryFactory
	appId    string
	clientId string
	now      func() time.Time
}

func NewRegistry(factory unitofwork.RepositoryFactory, appId, clientId string) *Registry {
	return &Registry{
		factory:  factory,
		appId:    appId,
		clientId: clientId,
		now:      time.Now,
	}
}

// TitleFrom derives a session title from the first message.
func TitleFrom(firstMessage string) string {
	trimmed := strings.TrimSpace(firstMessage)
	if trimmed == "" {
		return DefaultTitle
	}
	runes := []rune(trimmed)
	if len(runes) > titleMaxRunes {
		runes = runes[:titleMaxRunes]
	}
	return string(runes)
}

// Refresh reloads the list from the store, newest first.
func (r *Registry) Refresh(ctx context.Context) error {
	uow := r.factory.NewUnitOfWork(ctx)
	sessions, err := uow.ChatSessionRepository().FindAll(ctx,
		specification.ByScope{AppID: r.appId, ClientID: r.clientId},
		specification.OrderBy{Field: "created_at", Desc: true},
	)
	if err != nil {
		return fmt.Errorf("load sessions: %w", err)
	}

	r.mu.Lock()
	r.sessions = sessions
	r.mu.Unlock()
	return nil
}

// Create stores a new session and puts it at the front of the list.
func (r *Registry) Create(ctx context.Context, firstMessage string) (*entity.ChatSession, error) {
	s := &entity.ChatSession{
		AppId:    r.appId,
		ClientId: r.clientId,
		Title:    TitleFrom(firstMessage),
	}
	uow := r.factory.NewUnitOfWork(ctx)
	if err := uow.ChatSessionRepository().Create(ctx, s); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = r.now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	next := make([]*entity.ChatSession, 0, len(r.sessions)+1)
	next = append(next, s)
	for _, existing := range r.sessions {
		if existing.Id != s.Id {
			next = append(next, existing)
		}
	}
	r.sessions = next

	c := *s
	return &c, nil
}

// Delete removes the session's messages and then the session row in one transaction.
func (r *Registry) Delete(ctx context.Context, id uuid.UUID) (err error) {
	uow := r.factory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = uow.Rollback()
		}
	}()

	if err = uow.ChatMessageRepository().DeleteBySessionId(ctx, id); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	if err = uow.ChatSessionRepository().Delete(ctx, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if err = uow.Commit(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range r.sessions {
		if s.Id == id {
			r.sessions = append(r.sessions[:i:i], r.sessions[i+1:]...)
			break
		}
	}
	return nil
}

func (r *Registry) Contains(id uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		if s.Id == id {
			return true
		}
	}
	return false
}

// List returns copies of the sessions, newest first.
func (r *Registry) List() []*entity.ChatSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*entity.ChatSession, len(r.sessions))
	for i, s := range r.sessions {
		c := *s
		out[i] = &c
	}
	return out
}

func (r *Registry) ListGrouped(now time.Time, query string, mode GroupingMode) []Group {
	return GroupSessions(r.List(), now, query, mode)
}
