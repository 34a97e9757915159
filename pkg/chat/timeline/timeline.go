// Package timeline holds the ordered message log of the live session.
//
// A Timeline is not safe for concurrent use. The orchestrator owns it and only
// touches it while holding its own lock.
package timeline

import (
	"errors"
	"time"

	"ai-chat-be/internal/entity"
)

var ErrPlaceholderExists = errors.New("timeline already has a pending model reply")

type ChangeKind string

const (
	ChangeAppend   ChangeKind = "append"
	ChangeMutate   ChangeKind = "mutate"
	ChangeReplace  ChangeKind = "replace"
	ChangeTruncate ChangeKind = "truncate"
	ChangeRemove   ChangeKind = "remove"
	ChangeClear    ChangeKind = "clear"
)

// Change is emitted after every mutation. Views use it as a scroll-to-bottom intent.
type Change struct {
	Kind      ChangeKind
	MessageId string
	Length    int
}

type Observer func(Change)

// Patch is a partial update applied to a pending model reply. Nil fields are untouched.
type Patch struct {
	Content               *string
	ThinkingProcess       *string
	Sources               []entity.Source
	SetSources            bool
	SuggestedReplies      []string
	GeneratedWithThinking *bool
	GeneratedWithSearch   *bool
	IsLoading             *bool
	IsError               *bool
}

type Timeline struct {
	messages []*entity.ChatMessage
	observer Observer
	now      func() time.Time
}

type Option func(*Timeline)

func WithObserver(o Observer) Option {
	return func(t *Timeline) { t.observer = o }
}

func WithClock(now func() time.Time) Option {
	return func(t *Timeline) { t.now = now }
}

func New(opts ...Option) *Timeline {
	t := &Timeline{now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Timeline) notify(kind ChangeKind, id string) {
	if t.observer != nil {
		t.observer(Change{Kind: kind, MessageId: id, Length: len(t.messages)})
	}
}

// AppendOptimistic adds msg at the end. CreatedAt is assigned when zero and bumped
// so timestamps never go backwards.
func (t *Timeline) AppendOptimistic(msg *entity.ChatMessage) error {
	if msg.IsPlaceholder() && t.Placeholder() != nil {
		return ErrPlaceholderExists
	}
	m := msg.Clone()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = t.now()
	}
	if n := len(t.messages); n > 0 {
		last := t.messages[n-1].CreatedAt
		if !m.CreatedAt.After(last) {
			m.CreatedAt = last.Add(time.Microsecond)
		}
	}
	msg.CreatedAt = m.CreatedAt
	t.messages = append(t.messages, m)
	t.notify(ChangeAppend, m.Id)
	return nil
}

// MutatePlaceholder applies p to the message with the given id. It returns false
// when the id is not in the timeline, which happens after a session switch.
func (t *Timeline) MutatePlaceholder(id string, p Patch) bool {
	m := t.find(id)
	if m == nil {
		return false
	}
	if p.Content != nil {
		m.Content = *p.Content
	}
	if p.ThinkingProcess != nil {
		tp := *p.ThinkingProcess
		m.ThinkingProcess = &tp
	}
	if p.SetSources {
		m.Sources = append([]entity.Source(nil), p.Sources...)
	}
	if p.SuggestedReplies != nil {
		m.SuggestedReplies = append([]string(nil), p.SuggestedReplies...)
	}
	if p.GeneratedWithThinking != nil {
		m.GeneratedWithThinking = *p.GeneratedWithThinking
	}
	if p.GeneratedWithSearch != nil {
		m.GeneratedWithSearch = *p.GeneratedWithSearch
	}
	if p.IsLoading != nil {
		m.IsLoading = *p.IsLoading
	}
	if p.IsError != nil {
		m.IsError = *p.IsError
	}
	t.notify(ChangeMutate, id)
	return true
}

func (t *Timeline) ReplaceAll(msgs []*entity.ChatMessage) {
	t.messages = make([]*entity.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		t.messages = append(t.messages, m.Clone())
	}
	t.notify(ChangeReplace, "")
}

// TruncateAfter keeps messages[0..index] and returns the dropped tail.
func (t *Timeline) TruncateAfter(index int) []*entity.ChatMessage {
	if index < -1 || index >= len(t.messages)-1 {
		return nil
	}
	dropped := t.messages[index+1:]
	t.messages = append([]*entity.ChatMessage(nil), t.messages[:index+1]...)
	t.notify(ChangeTruncate, "")
	return dropped
}

func (t *Timeline) Remove(id string) bool {
	for i, m := range t.messages {
		if m.Id == id {
			t.messages = append(t.messages[:i:i], t.messages[i+1:]...)
			t.notify(ChangeRemove, id)
			return true
		}
	}
	return false
}

func (t *Timeline) Clear() {
	t.messages = nil
	t.notify(ChangeClear, "")
}

func (t *Timeline) Len() int {
	return len(t.messages)
}

// Messages returns deep copies in timeline order.
func (t *Timeline) Messages() []*entity.ChatMessage {
	out := make([]*entity.ChatMessage, len(t.messages))
	for i, m := range t.messages {
		out[i] = m.Clone()
	}
	return out
}

func (t *Timeline) Get(id string) *entity.ChatMessage {
	return t.find(id).Clone()
}

// LastIndexOf returns the index of the newest message with the role, or -1.
func (t *Timeline) LastIndexOf(role entity.ChatRole) int {
	for i := len(t.messages) - 1; i >= 0; i-- {
		if t.messages[i].Role == role {
			return i
		}
	}
	return -1
}

func (t *Timeline) Placeholder() *entity.ChatMessage {
	for _, m := range t.messages {
		if m.IsPlaceholder() {
			return m.Clone()
		}
	}
	return nil
}

func (t *Timeline) find(id string) *entity.ChatMessage {
	for _, m := range t.messages {
		if m.Id == id {
			return m
		}
	}
	return nil
}
