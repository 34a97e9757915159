// Package reconcile writes the optimistic timeline to the durable store in the
// background. Writes for one session run strictly in the order they were scheduled.
package reconcile

import (
	"context"
	"errors"
	"sync"
	"time"

	"ai-chat-be/internal/entity"
	"ai-chat-be/internal/pkg/logger"
	"ai-chat-be/internal/repository/unitofwork"
	"ai-chat-be/pkg/chat/message"

	"github.com/google/uuid"
)

var (
	ErrClosed         = errors.New("reconciler closed")
	ErrSessionDeleted = errors.New("session is being deleted")

	errDeleteIncomplete = errors.New("session delete did not complete")
)

const defaultTaskTimeout = 30 * time.Second

type task struct {
	name string
	run  func(ctx context.Context) error
}

type queue struct {
	tasks   []task
	running bool
}

type Reconciler struct {
	factory     unitofwork.RepositoryFactory
	logger      logger.ILogger
	taskTimeout time.Duration

	mu       sync.Mutex
	queues   map[uuid.UUID]*queue
	storeIDs map[uuid.UUID]map[string]uuid.UUID // session -> local message id -> id the store assigned
	deleting map[uuid.UUID]bool
	idle     *sync.Cond
	closed   bool
	pending  int
}

func NewReconciler(factory unitofwork.RepositoryFactory, log logger.ILogger) *Reconciler {
	r := &Reconciler{
		factory:     factory,
		logger:      log,
		taskTimeout: defaultTaskTimeout,
		queues:      make(map[uuid.UUID]*queue),
		storeIDs:    make(map[uuid.UUID]map[string]uuid.UUID),
		deleting:    make(map[uuid.UUID]bool),
	}
	r.idle = sync.NewCond(&r.mu)
	return r
}

// enqueue appends tasks to the session queue and starts a worker if none is running.
func (r *Reconciler) enqueue(sessionID uuid.UUID, tasks ...task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if r.deleting[sessionID] {
		return ErrSessionDeleted
	}
	r.push(sessionID, tasks...)
	return nil
}

// push requires r.mu.
func (r *Reconciler) push(sessionID uuid.UUID, tasks ...task) {
	q, ok := r.queues[sessionID]
	if !ok {
		q = &queue{}
		r.queues[sessionID] = q
	}
	q.tasks = append(q.tasks, tasks...)
	r.pending += len(tasks)

	if !q.running {
		q.running = true
		go r.work(sessionID, q)
	}
}

func (r *Reconciler) work(sessionID uuid.UUID, q *queue) {
	for {
		r.mu.Lock()
		if len(q.tasks) == 0 {
			q.running = false
			delete(r.queues, sessionID)
			r.mu.Unlock()
			return
		}
		t := q.tasks[0]
		q.tasks = q.tasks[1:]
		r.mu.Unlock()

		r.execute(sessionID, t)

		r.mu.Lock()
		r.pending--
		if r.pending == 0 {
			r.idle.Broadcast()
		}
		r.mu.Unlock()
	}
}

func (r *Reconciler) execute(sessionID uuid.UUID, t task) {
	ctx, cancel := context.WithTimeout(context.Background(), r.taskTimeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("RECONCILE", "Persistence task panicked", map[string]interface{}{
				"task": t.name, "session_id": sessionID.String(), "panic": rec,
			})
		}
	}()

	if err := t.run(ctx); err != nil {
		r.logger.Error("RECONCILE", "Persistence task failed", map[string]interface{}{
			"task": t.name, "session_id": sessionID.String(), "error": err.Error(),
		})
	}
}

// resolve maps a timeline id to the id the store knows it by.
func (r *Reconciler) resolve(sessionID uuid.UUID, id string) (uuid.UUID, bool) {
	if message.IsStoreID(id) {
		return uuid.MustParse(id), true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	sid, ok := r.storeIDs[sessionID][id]
	return sid, ok
}

func (r *Reconciler) remember(sessionID uuid.UUID, localID string, storeID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids, ok := r.storeIDs[sessionID]
	if !ok {
		ids = make(map[string]uuid.UUID)
		r.storeIDs[sessionID] = ids
	}
	ids[localID] = storeID
}

func (r *Reconciler) forget(sessionID uuid.UUID, localIDs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := r.storeIDs[sessionID]
	for _, id := range localIDs {
		delete(ids, id)
	}
	if len(ids) == 0 {
		delete(r.storeIDs, sessionID)
	}
}


func (r *Reconciler) insertTask(sessionID uuid.UUID, msg *entity.ChatMessage) task {
	snapshot := msg.Clone()
	snapshot.ChatSessionId = sessionID
	localID := snapshot.Id
	return task{
		name: "insert_" + string(snapshot.Role),
		run: func(ctx context.Context) error {
			uow := r.factory.NewUnitOfWork(ctx)
			if err := uow.ChatMessageRepository().Create(ctx, snapshot); err != nil {
				return err
			}
			if localID != snapshot.Id {
				if sid, err := uuid.Parse(snapshot.Id); err == nil {
					r.remember(sessionID, localID, sid)
				}
			}
			return nil
		},
	}
}

// ScheduleTurn queues the user message and then the model message as two
// independent writes. A failure of one does not affect the other.
func (r *Reconciler) ScheduleTurn(sessionID uuid.UUID, user, model *entity.ChatMessage) error {
	return r.enqueue(sessionID, r.insertTask(sessionID, user), r.insertTask(sessionID, model))
}

func (r *Reconciler) ScheduleModel(sessionID uuid.UUID, model *entity.ChatMessage) error {
	return r.enqueue(sessionID, r.insertTask(sessionID, model))
}

// ScheduleDelete removes messages by timeline id. Ids that neither have the store's
// shape nor map to a stored row are skipped and never reach the store.
func (r *Reconciler) ScheduleDelete(sessionID uuid.UUID, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	wanted := append([]string(nil), ids...)
	return r.enqueue(sessionID, task{
		name: "delete_messages",
		run: func(ctx context.Context) error {
			var targets []uuid.UUID
			for _, id := range wanted {
				if sid, ok := r.resolve(sessionID, id); ok {
					targets = append(targets, sid)
				}
			}
			if len(targets) == 0 {
				return nil
			}
			uow := r.factory.NewUnitOfWork(ctx)
			if err := uow.ChatMessageRepository().DeleteByIds(ctx, sessionID, targets); err != nil {
				return err
			}
			r.forget(sessionID, wanted)
			return nil
		},
	})
}

// ScheduleSuggestions attaches suggested replies to an already scheduled model message.
func (r *Reconciler) ScheduleSuggestions(sessionID uuid.UUID, messageID string, replies []string) error {
	values := append([]string{}, replies...)
	return r.enqueue(sessionID, task{
		name: "update_suggestions",
		run: func(ctx context.Context) error {
			sid, ok := r.resolve(sessionID, messageID)
			if !ok {
				r.logger.Debug("RECONCILE", "No stored row for message, skipping suggestions", map[string]interface{}{"message_id": messageID})
				return nil
			}
			uow := r.factory.NewUnitOfWork(ctx)
			return uow.ChatMessageRepository().UpdateSuggestedReplies(ctx, sid, values)
		},
	})
}

// DeleteSession runs remove behind every write already queued for the session and
// waits for it. Writes scheduled for the session meanwhile are refused with
// ErrSessionDeleted. On success the session's id mappings are dropped.
func (r *Reconciler) DeleteSession(ctx context.Context, sessionID uuid.UUID, remove func(ctx context.Context) error) error {
	result := make(chan error, 1)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	if r.deleting[sessionID] {
		r.mu.Unlock()
		return ErrSessionDeleted
	}
	r.deleting[sessionID] = true
	r.push(sessionID, task{
		name: "delete_session",
		run: func(context.Context) (err error) {
			err = errDeleteIncomplete
			defer func() {
				r.mu.Lock()
				delete(r.deleting, sessionID)
				if err == nil {
					delete(r.storeIDs, sessionID)
				}
				r.mu.Unlock()
				result <- err
			}()
			err = remove(ctx)
			return err
		},
	})
	r.mu.Unlock()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Drain blocks until every queued task has run or ctx is done.
func (r *Reconciler) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.mu.Lock()
		for r.pending > 0 {
			r.idle.Wait()
		}
		r.mu.Unlock()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting work and drains what is queued.
func (r *Reconciler) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return r.Drain(ctx)
}
