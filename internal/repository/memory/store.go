// Package memory provides go-cache backed repositories for local runs and tests.
// They understand the subset of specifications the chat flow uses.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"ai-chat-be/internal/entity"
	"ai-chat-be/internal/repository/contract"
	"ai-chat-be/internal/repository/specification"
	"ai-chat-be/internal/repository/unitofwork"

	"github.com/patrickmn/go-cache"
)

var ErrUnsupportedSpecification = errors.New("memory store: unsupported specification")

type record[T any] struct {
	seq   uint64
	value T
}

// Store is the shared backing state of the memory repositories.
type Store struct {
	mu       sync.Mutex
	seq      uint64
	sessions *cache.Cache
	messages *cache.Cache
	now      func() time.Time
}

func NewStore() *Store {
	return &Store{
		sessions: cache.New(cache.NoExpiration, 0),
		messages: cache.New(cache.NoExpiration, 0),
		now:      time.Now,
	}
}

func (s *Store) nextSeq() uint64 {
	s.seq++
	return s.seq
}

// Factory implements unitofwork.RepositoryFactory over the store.
type Factory struct {
	store *Store
}

func NewRepositoryFactory(store *Store) unitofwork.RepositoryFactory {
	return &Factory{store: store}
}

func (f *Factory) NewUnitOfWork(ctx context.Context) unitofwork.UnitOfWork {
	return &unitOfWork{store: f.store}
}

// unitOfWork has no rollback journal. Writes are applied immediately.
type unitOfWork struct {
	store  *Store
	active bool
}

func (u *unitOfWork) Begin(ctx context.Context) error {
	if u.active {
		return fmt.Errorf("transaction already started")
	}
	u.active = true
	return nil
}

func (u *unitOfWork) Commit() error {
	if !u.active {
		return fmt.Errorf("no transaction to commit")
	}
	u.active = false
	return nil
}

func (u *unitOfWork) Rollback() error {
	if !u.active {
		return fmt.Errorf("no transaction to rollback")
	}
	u.active = false
	return nil
}

func (u *unitOfWork) ChatSessionRepository() contract.ChatSessionRepository {
	return NewChatSessionRepository(u.store)
}

func (u *unitOfWork) ChatMessageRepository() contract.ChatMessageRepository {
	return NewChatMessageRepository(u.store)
}

// query is the in-memory reading of a specification list.
type query struct {
	ids       map[string]bool
	sessionID string
	appID     *string
	clientID  *string
	title     string
	orderDesc bool
}

func buildQuery(specs []specification.Specification) (*query, error) {
	q := &query{}
	for _, spec := range specs {
		switch s := spec.(type) {
		case specification.ByID:
			q.ids = map[string]bool{s.ID.String(): true}
		case specification.ByIDs:
			q.ids = make(map[string]bool, len(s.IDs))
			for _, id := range s.IDs {
				q.ids[id.String()] = true
			}
		case specification.BySessionID:
			q.sessionID = s.SessionID.String()
		case specification.ByScope:
			app, client := s.AppID, s.ClientID
			q.appID, q.clientID = &app, &client
		case specification.TitleContains:
			q.title = strings.ToLower(s.Query)
		case specification.OrderBy:
			if s.Field != "created_at" {
				return nil, fmt.Errorf("%w: order by %s", ErrUnsupportedSpecification, s.Field)
			}
			q.orderDesc = s.Desc
		default:
			return nil, fmt.Errorf("%w: %T", ErrUnsupportedSpecification, spec)
		}
	}
	return q, nil
}

func sortRecords[T any](recs []record[T], createdAt func(T) time.Time, q *query) []T {
	sort.SliceStable(recs, func(i, j int) bool {
		a, b := createdAt(recs[i].value), createdAt(recs[j].value)
		if a.Equal(b) {
			if q.orderDesc {
				return recs[i].seq > recs[j].seq
			}
			return recs[i].seq < recs[j].seq
		}
		if q.orderDesc {
			return a.After(b)
		}
		return a.Before(b)
	})
	out := make([]T, len(recs))
	for i, r := range recs {
		out[i] = r.value
	}
	return out
}

func cloneSession(s *entity.ChatSession) *entity.ChatSession {
	c := *s
	return &c
}
