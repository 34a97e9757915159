package service

import (
	"context"
	"sync"

	"ai-chat-be/internal/pkg/logger"
	"ai-chat-be/pkg/events"
)

const notifierBuffer = 256

// notifier hands events to a publisher on its own goroutine so callers holding
// the view lock never wait on a broker. Events are dropped when the buffer is full.
type notifier struct {
	publisher events.Publisher
	logger    logger.ILogger

	mu     sync.RWMutex
	closed bool
	queue  chan events.Event
	done   chan struct{}
}

func newNotifier(publisher events.Publisher, log logger.ILogger) *notifier {
	n := &notifier{
		publisher: publisher,
		logger:    log,
		queue:     make(chan events.Event, notifierBuffer),
		done:      make(chan struct{}),
	}
	go n.run()
	return n
}

func (n *notifier) run() {
	defer close(n.done)
	for event := range n.queue {
		if n.publisher == nil {
			continue
		}
		if err := n.publisher.Publish(context.Background(), event); err != nil {
			n.logger.Warn("EVENTS", "Failed to publish event", map[string]interface{}{
				"type":  event.EventType(),
				"error": err.Error(),
			})
		}
	}
}

func (n *notifier) emit(event events.Event) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return
	}
	select {
	case n.queue <- event:
	default:
		n.logger.Debug("EVENTS", "Event buffer full, dropping event", map[string]interface{}{"type": event.EventType()})
	}
}

// close flushes queued events, giving up when ctx is done.
func (n *notifier) close(ctx context.Context) {
	n.mu.Lock()
	if !n.closed {
		n.closed = true
		close(n.queue)
	}
	n.mu.Unlock()

	select {
	case <-n.done:
	case <-ctx.Done():
	}
}
