package service

import (
	"context"
	"errors"
	"iter"
	"sync"
	"testing"
	"time"

	"ai-chat-be/internal/config"
	"ai-chat-be/internal/constant"
	"ai-chat-be/internal/dto"
	"ai-chat-be/internal/entity"
	"ai-chat-be/internal/pkg/logger"
	"ai-chat-be/internal/repository/contract"
	"ai-chat-be/internal/repository/memory"
	"ai-chat-be/internal/repository/specification"
	"ai-chat-be/internal/repository/unitofwork"
	"ai-chat-be/pkg/chat/reconcile"
	"ai-chat-be/pkg/chat/session"
	"ai-chat-be/pkg/events"
	"ai-chat-be/pkg/llm"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type script struct {
	fragments []*llm.Fragment
	err       error
}

// fakeProvider replays one script per stream and answers non-streamed calls through generate.
type fakeProvider struct {
	mu        sync.Mutex
	scripts   []script
	gate      chan struct{}
	histories [][]llm.Message
	generate  func(history []llm.Message, opts llm.Options) (string, error)
	calls     int
	audio     *llm.Audio
}

func (f *fakeProvider) GenerateStream(ctx context.Context, history []llm.Message, opts ...llm.Option) iter.Seq2[*llm.Fragment, error] {
	f.mu.Lock()
	s := script{fragments: []*llm.Fragment{{Text: "ok"}}}
	if len(f.scripts) > 0 {
		s, f.scripts = f.scripts[0], f.scripts[1:]
	}
	f.histories = append(f.histories, append([]llm.Message(nil), history...))
	gate := f.gate
	f.mu.Unlock()

	return func(yield func(*llm.Fragment, error) bool) {
		if gate != nil {
			select {
			case <-gate:
			case <-ctx.Done():
				yield(nil, ctx.Err())
				return
			}
		}
		for _, frag := range s.fragments {
			if !yield(frag, nil) {
				return
			}
		}
		if s.err != nil {
			yield(nil, s.err)
		}
	}
}

func (f *fakeProvider) Generate(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	f.mu.Lock()
	f.calls++
	gen := f.generate
	f.mu.Unlock()
	o := llm.ApplyOptions(llm.Options{}, opts...)
	if gen == nil {
		if o.ResponseSchema != nil {
			return `{"replies":[]}`, nil
		}
		return "", errors.New("no generator configured")
	}
	return gen(history, o)
}

func (f *fakeProvider) Speak(ctx context.Context, text string, opts ...llm.Option) (*llm.Audio, error) {
	if f.audio == nil {
		return nil, errors.New("speech unavailable")
	}
	return f.audio, nil
}

func (f *fakeProvider) lastHistory() []llm.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.histories[len(f.histories)-1]
}

type recordingPublisher struct {
	mu    sync.Mutex
	types []string
}

func (p *recordingPublisher) Publish(ctx context.Context, event events.Event) error {
	p.mu.Lock()
	p.types = append(p.types, event.EventType())
	p.mu.Unlock()
	return nil
}

func (p *recordingPublisher) seen() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.types...)
}

type harness struct {
	svc        IChatService
	factory    unitofwork.RepositoryFactory
	reconciler *reconcile.Reconciler
	registry   *session.Registry
	publisher  *recordingPublisher
}

// storeHooks slows or breaks message storage so tests can observe in-between states.
type storeHooks struct {
	mu          sync.Mutex
	createDelay time.Duration
	loadErrs    int           // loads left to fail
	loadGate    chan struct{} // loads block until closed
}

func (h *storeHooks) failLoads(n int) {
	h.mu.Lock()
	h.loadErrs = n
	h.mu.Unlock()
}

func (h *storeHooks) holdLoads() chan struct{} {
	gate := make(chan struct{})
	h.mu.Lock()
	h.loadGate = gate
	h.mu.Unlock()
	return gate
}

type hookedMessages struct {
	contract.ChatMessageRepository
	hooks *storeHooks
}

func (m *hookedMessages) Create(ctx context.Context, msg *entity.ChatMessage) error {
	time.Sleep(m.hooks.createDelay)
	return m.ChatMessageRepository.Create(ctx, msg)
}

func (m *hookedMessages) FindAllRawBySessionId(ctx context.Context, sessionId uuid.UUID) ([]map[string]interface{}, error) {
	m.hooks.mu.Lock()
	fail := m.hooks.loadErrs > 0
	if fail {
		m.hooks.loadErrs--
	}
	gate := m.hooks.loadGate
	m.hooks.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if fail {
		return nil, errors.New("store unavailable")
	}
	return m.ChatMessageRepository.FindAllRawBySessionId(ctx, sessionId)
}

type hookedUoW struct {
	unitofwork.UnitOfWork
	hooks *storeHooks
}

func (u *hookedUoW) ChatMessageRepository() contract.ChatMessageRepository {
	return &hookedMessages{ChatMessageRepository: u.UnitOfWork.ChatMessageRepository(), hooks: u.hooks}
}

type hookedFactory struct {
	inner unitofwork.RepositoryFactory
	hooks *storeHooks
}

func (f *hookedFactory) NewUnitOfWork(ctx context.Context) unitofwork.UnitOfWork {
	return &hookedUoW{UnitOfWork: f.inner.NewUnitOfWork(ctx), hooks: f.hooks}
}

func newHarness(t *testing.T, provider *fakeProvider) *harness {
	t.Helper()
	return newHookedHarness(t, provider, &storeHooks{})
}

func newHookedHarness(t *testing.T, provider *fakeProvider, hooks *storeHooks) *harness {
	t.Helper()
	factory := &hookedFactory{inner: memory.NewRepositoryFactory(memory.NewStore()), hooks: hooks}
	log := logger.NewNopLogger()
	registry := session.NewRegistry(factory, "app", "client")
	rec := reconcile.NewReconciler(factory, log)
	pub := &recordingPublisher{}
	cfg := config.AIConfig{
		ChatModel:         "chat-model",
		SuggestionModel:   "suggest-model",
		TranslationModel:  "translate-model",
		SpeechModel:       "tts-model",
		SpeechVoice:       "Kore",
		StreamIdleTimeout: 2 * time.Second,
	}
	svc := NewChatService(cfg, factory, provider, registry, rec, memory.NewTranslationCache(time.Minute), pub, log)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = svc.Close(ctx)
	})
	return &harness{svc: svc, factory: factory, reconciler: rec, registry: registry, publisher: pub}
}

func (h *harness) stored(t *testing.T, sessionId uuid.UUID) []*entity.ChatMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.reconciler.Drain(ctx))
	msgs, err := h.factory.NewUnitOfWork(ctx).ChatMessageRepository().FindAll(ctx, specification.BySessionID{SessionID: sessionId})
	require.NoError(t, err)
	return msgs
}

func suggestions(replies string) func([]llm.Message, llm.Options) (string, error) {
	return func(history []llm.Message, o llm.Options) (string, error) {
		if o.ResponseSchema != nil {
			return replies, nil
		}
		return "", errors.New("unexpected call")
	}
}

func TestSendMessageFromDraftStreamsAndPersists(t *testing.T) {
	provider := &fakeProvider{
		scripts:  []script{{fragments: []*llm.Fragment{{Text: "Hi"}, {Text: " there"}, {Text: "!"}}}},
		generate: suggestions(`{"replies":["Thanks", "  ", "Tell me more"]}`),
	}
	h := newHarness(t, provider)
	ctx := context.Background()

	resp, err := h.svc.SendMessage(ctx, &dto.SendMessageRequest{Text: "  Hello  "})
	require.NoError(t, err)

	assert.Equal(t, "Hello", resp.SessionTitle)
	assert.Equal(t, "Hello", resp.Sent.Content)
	assert.Equal(t, "Hi there!", resp.Reply.Content)
	assert.False(t, resp.Reply.IsLoading)
	assert.Equal(t, []string{"Thanks", "Tell me more"}, resp.SuggestedReplies)

	assert.Equal(t, []llm.Message{{Role: llm.RoleUser, Content: "Hello"}}, provider.lastHistory())

	snap := h.svc.Snapshot(ctx)
	require.NotNil(t, snap.SessionId)
	assert.Equal(t, resp.SessionId, *snap.SessionId)
	assert.Equal(t, string(PhaseIdle), snap.Phase)
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, "user", snap.Messages[0].Role)
	assert.Equal(t, "Hi there!", snap.Messages[1].Content)
	assert.Equal(t, []string{"Thanks", "Tell me more"}, snap.PendingSuggestions)
	assert.True(t, snap.Messages[1].CreatedAt.After(snap.Messages[0].CreatedAt))

	stored := h.stored(t, resp.SessionId)
	require.Len(t, stored, 2)
	assert.Equal(t, entity.ChatRoleUser, stored[0].Role)
	assert.Equal(t, "Hi there!", stored[1].Content)
	assert.Equal(t, []string{"Thanks", "Tell me more"}, stored[1].SuggestedReplies)

	require.Len(t, h.registry.List(), 1)
}

func TestSendMessageRejectsBlankText(t *testing.T) {
	h := newHarness(t, &fakeProvider{})
	_, err := h.svc.SendMessage(context.Background(), &dto.SendMessageRequest{Text: " \n "})
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Empty(t, h.registry.List())
}

func TestSendMessageCarriesSettledHistory(t *testing.T) {
	provider := &fakeProvider{scripts: []script{
		{fragments: []*llm.Fragment{{Text: "first answer"}}},
		{fragments: []*llm.Fragment{{Text: "second answer"}}},
	}}
	h := newHarness(t, provider)
	ctx := context.Background()

	_, err := h.svc.SendMessage(ctx, &dto.SendMessageRequest{Text: "one"})
	require.NoError(t, err)
	_, err = h.svc.SendMessage(ctx, &dto.SendMessageRequest{Text: "two"})
	require.NoError(t, err)

	assert.Equal(t, []llm.Message{
		{Role: llm.RoleUser, Content: "one"},
		{Role: llm.RoleModel, Content: "first answer"},
		{Role: llm.RoleUser, Content: "two"},
	}, provider.lastHistory())
	assert.Len(t, h.registry.List(), 1)
}

func TestStreamFailureLeavesApology(t *testing.T) {
	provider := &fakeProvider{scripts: []script{
		{fragments: []*llm.Fragment{{Text: "partial"}}, err: errors.New("connection reset")},
	}}
	h := newHarness(t, provider)
	ctx := context.Background()

	_, err := h.svc.SendMessage(ctx, &dto.SendMessageRequest{Text: "Hello"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTurnFailed)

	snap := h.svc.Snapshot(ctx)
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, "Hello", snap.Messages[0].Content)
	assert.True(t, snap.Messages[1].IsError)
	assert.False(t, snap.Messages[1].IsLoading)
	assert.Equal(t, constant.TurnFailedMessage, snap.Messages[1].Content)
	assert.Equal(t, string(PhaseIdle), snap.Phase)

	assert.Empty(t, h.stored(t, *snap.SessionId))

	// The error notice is not sent back to the model.
	provider.scripts = []script{{fragments: []*llm.Fragment{{Text: "recovered"}}}}
	_, err = h.svc.SendMessage(ctx, &dto.SendMessageRequest{Text: "again"})
	require.NoError(t, err)
	assert.Equal(t, []llm.Message{
		{Role: llm.RoleUser, Content: "Hello"},
		{Role: llm.RoleUser, Content: "again"},
	}, provider.lastHistory())
}

func TestSuggestionFailureDoesNotFailTurn(t *testing.T) {
	provider := &fakeProvider{
		generate: func([]llm.Message, llm.Options) (string, error) { return "", errors.New("quota") },
	}
	h := newHarness(t, provider)

	resp, err := h.svc.SendMessage(context.Background(), &dto.SendMessageRequest{Text: "Hello"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Reply.Content)
	assert.Empty(t, resp.SuggestedReplies)
	assert.Empty(t, h.svc.Snapshot(context.Background()).PendingSuggestions)
}

func TestBusySessionRejectsSecondTurn(t *testing.T) {
	provider := &fakeProvider{gate: make(chan struct{})}
	h := newHarness(t, provider)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := h.svc.SendMessage(ctx, &dto.SendMessageRequest{Text: "first"})
		done <- err
	}()

	require.Eventually(t, func() bool {
		snap := h.svc.Snapshot(ctx)
		return snap.Phase == string(PhaseStreaming) && len(snap.Messages) == 2
	}, time.Second, 5*time.Millisecond)

	snap := h.svc.Snapshot(ctx)
	assert.True(t, snap.Messages[1].IsLoading)

	_, err := h.svc.SendMessage(ctx, &dto.SendMessageRequest{Text: "second"})
	assert.ErrorIs(t, err, ErrTurnInProgress)
	_, err = h.svc.Regenerate(ctx, &dto.RegenerateRequest{})
	assert.ErrorIs(t, err, ErrTurnInProgress)
	assert.ErrorIs(t, h.svc.DeleteSession(ctx, *snap.SessionId), ErrTurnInProgress)

	close(provider.gate)
	require.NoError(t, <-done)
	assert.Len(t, h.svc.Snapshot(ctx).Messages, 2)
}

func TestRegenerateReplacesTrailingReply(t *testing.T) {
	provider := &fakeProvider{scripts: []script{
		{fragments: []*llm.Fragment{{Text: "answer one"}}},
		{fragments: []*llm.Fragment{{Text: "answer two"}}},
		{fragments: []*llm.Fragment{{Text: "answer two, again"}}},
	}}
	h := newHarness(t, provider)
	ctx := context.Background()

	_, err := h.svc.SendMessage(ctx, &dto.SendMessageRequest{Text: "q1"})
	require.NoError(t, err)
	_, err = h.svc.SendMessage(ctx, &dto.SendMessageRequest{Text: "q2"})
	require.NoError(t, err)

	resp, err := h.svc.Regenerate(ctx, &dto.RegenerateRequest{})
	require.NoError(t, err)
	assert.Equal(t, "answer two, again", resp.Reply.Content)

	assert.Equal(t, []llm.Message{
		{Role: llm.RoleUser, Content: "q1"},
		{Role: llm.RoleModel, Content: "answer one"},
		{Role: llm.RoleUser, Content: "q2"},
	}, provider.lastHistory())

	snap := h.svc.Snapshot(ctx)
	// last user index is 2, so the timeline ends at index 3.
	require.Len(t, snap.Messages, 4)
	assert.Equal(t, "answer two, again", snap.Messages[3].Content)

	stored := h.stored(t, resp.SessionId)
	require.Len(t, stored, 4)
	contents := make([]string, len(stored))
	for i, m := range stored {
		contents[i] = m.Content
	}
	assert.Equal(t, []string{"q1", "answer one", "q2", "answer two, again"}, contents)
}

func TestRegenerateFailureKeepsTruncation(t *testing.T) {
	provider := &fakeProvider{scripts: []script{
		{fragments: []*llm.Fragment{{Text: "answer"}}},
		{err: errors.New("boom")},
	}}
	h := newHarness(t, provider)
	ctx := context.Background()

	_, err := h.svc.SendMessage(ctx, &dto.SendMessageRequest{Text: "q"})
	require.NoError(t, err)
	_, err = h.svc.Regenerate(ctx, &dto.RegenerateRequest{})
	require.ErrorIs(t, err, ErrTurnFailed)

	snap := h.svc.Snapshot(ctx)
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, constant.RegenerateFailedMessage, snap.Messages[1].Content)
	assert.True(t, snap.Messages[1].IsError)

	stored := h.stored(t, *snap.SessionId)
	require.Len(t, stored, 1)
	assert.Equal(t, "q", stored[0].Content)
}

func TestRegeneratePreconditions(t *testing.T) {
	h := newHarness(t, &fakeProvider{})
	ctx := context.Background()

	_, err := h.svc.Regenerate(ctx, &dto.RegenerateRequest{})
	assert.ErrorIs(t, err, ErrNoActiveSession)

	created, err := h.registry.Create(ctx, "empty")
	require.NoError(t, err)
	_, err = h.svc.SelectSession(ctx, created.Id)
	require.NoError(t, err)

	_, err = h.svc.Regenerate(ctx, &dto.RegenerateRequest{})
	assert.ErrorIs(t, err, ErrNothingToRegenerate)
}

func TestSelectSessionLoadsHistoryOnce(t *testing.T) {
	provider := &fakeProvider{
		scripts:  []script{{fragments: []*llm.Fragment{{Text: "Hi there!"}}}},
		generate: suggestions(`{"replies":["Thanks"]}`),
	}
	h := newHarness(t, provider)
	ctx := context.Background()

	resp, err := h.svc.SendMessage(ctx, &dto.SendMessageRequest{Text: "Hello"})
	require.NoError(t, err)
	h.stored(t, resp.SessionId)

	draft := h.svc.NewChat(ctx)
	assert.Nil(t, draft.SessionId)
	assert.Empty(t, draft.Messages)

	snap, err := h.svc.SelectSession(ctx, resp.SessionId)
	require.NoError(t, err)
	assert.True(t, snap.HistoryLoaded)
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, "Hello", snap.Messages[0].Content)
	assert.Equal(t, "Hi there!", snap.Messages[1].Content)
	assert.Equal(t, []string{"Thanks"}, snap.PendingSuggestions)

	// Selecting the active session again keeps the view as is.
	again, err := h.svc.SelectSession(ctx, resp.SessionId)
	require.NoError(t, err)
	assert.Equal(t, snap.Messages, again.Messages)
	require.NoError(t, h.svc.LoadHistory(ctx))
	assert.Len(t, h.svc.Snapshot(ctx).Messages, 2)
}

func TestSelectUnknownSession(t *testing.T) {
	h := newHarness(t, &fakeProvider{})
	_, err := h.svc.SelectSession(context.Background(), uuid.New())
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestDeleteActiveSessionResetsView(t *testing.T) {
	h := newHarness(t, &fakeProvider{})
	ctx := context.Background()

	resp, err := h.svc.SendMessage(ctx, &dto.SendMessageRequest{Text: "Hello"})
	require.NoError(t, err)
	h.stored(t, resp.SessionId)

	require.NoError(t, h.svc.DeleteSession(ctx, resp.SessionId))

	snap := h.svc.Snapshot(ctx)
	assert.Nil(t, snap.SessionId)
	assert.Empty(t, snap.Messages)
	assert.Empty(t, h.registry.List())
	assert.Empty(t, h.stored(t, resp.SessionId))

	assert.ErrorIs(t, h.svc.DeleteSession(ctx, resp.SessionId), session.ErrSessionNotFound)
}

func TestDeleteSessionRemovesWritesStillQueued(t *testing.T) {
	h := newHookedHarness(t, &fakeProvider{}, &storeHooks{createDelay: 50 * time.Millisecond})
	ctx := context.Background()

	resp, err := h.svc.SendMessage(ctx, &dto.SendMessageRequest{Text: "Hello"})
	require.NoError(t, err)

	// No drain: both inserts are still queued when the delete arrives.
	require.NoError(t, h.svc.DeleteSession(ctx, resp.SessionId))

	assert.Empty(t, h.stored(t, resp.SessionId))
	assert.Empty(t, h.registry.List())
	assert.Equal(t, string(PhaseIdle), h.svc.Snapshot(ctx).Phase)
}

func TestFailedHistoryLoadCanBeRetried(t *testing.T) {
	hooks := &storeHooks{}
	h := newHookedHarness(t, &fakeProvider{}, hooks)
	ctx := context.Background()

	resp, err := h.svc.SendMessage(ctx, &dto.SendMessageRequest{Text: "Hello"})
	require.NoError(t, err)
	h.stored(t, resp.SessionId)
	h.svc.NewChat(ctx)

	hooks.failLoads(1)
	_, err = h.svc.SelectSession(ctx, resp.SessionId)
	require.Error(t, err)

	snap := h.svc.Snapshot(ctx)
	require.NotNil(t, snap.SessionId)
	assert.Equal(t, resp.SessionId, *snap.SessionId)
	assert.False(t, snap.HistoryLoaded)
	assert.Empty(t, snap.Messages)
	assert.Equal(t, string(PhaseIdle), snap.Phase)

	require.NoError(t, h.svc.LoadHistory(ctx))
	snap = h.svc.Snapshot(ctx)
	assert.True(t, snap.HistoryLoaded)
	assert.Len(t, snap.Messages, 2)
}

func TestTurnWaitsForHistoryLoad(t *testing.T) {
	provider := &fakeProvider{}
	hooks := &storeHooks{}
	h := newHookedHarness(t, provider, hooks)
	ctx := context.Background()

	resp, err := h.svc.SendMessage(ctx, &dto.SendMessageRequest{Text: "Hello"})
	require.NoError(t, err)
	h.stored(t, resp.SessionId)
	h.svc.NewChat(ctx)

	gate := hooks.holdLoads()
	selected := make(chan error, 1)
	go func() {
		_, err := h.svc.SelectSession(ctx, resp.SessionId)
		selected <- err
	}()

	require.Eventually(t, func() bool {
		return h.svc.Snapshot(ctx).Phase == string(PhaseLoading)
	}, time.Second, 5*time.Millisecond)

	_, err = h.svc.SendMessage(ctx, &dto.SendMessageRequest{Text: "Again"})
	assert.ErrorIs(t, err, ErrHistoryLoading)
	assert.ErrorIs(t, h.svc.DeleteSession(ctx, resp.SessionId), ErrHistoryLoading)

	close(gate)
	require.NoError(t, <-selected)

	_, err = h.svc.SendMessage(ctx, &dto.SendMessageRequest{Text: "Again"})
	require.NoError(t, err)
	history := provider.lastHistory()
	require.Len(t, history, 3)
	assert.Equal(t, "Hello", history[0].Content)
	assert.Equal(t, "ok", history[1].Content)
	assert.Equal(t, "Again", history[2].Content)
}

func TestListSessionsGroupsAndFilters(t *testing.T) {
	h := newHarness(t, &fakeProvider{})
	ctx := context.Background()

	_, err := h.registry.Create(ctx, "Go generics question")
	require.NoError(t, err)
	_, err = h.registry.Create(ctx, "Recipe ideas")
	require.NoError(t, err)

	groups := h.svc.ListSessions(ctx, &dto.ListSessionsRequest{})
	require.Len(t, groups, 1)
	assert.Equal(t, session.LabelToday, groups[0].Label)
	require.Len(t, groups[0].Sessions, 2)
	assert.Equal(t, "Recipe ideas", groups[0].Sessions[0].Title)

	filtered := h.svc.ListSessions(ctx, &dto.ListSessionsRequest{Query: "GENERICS"})
	require.Len(t, filtered, 1)
	require.Len(t, filtered[0].Sessions, 1)
	assert.Equal(t, "Go generics question", filtered[0].Sessions[0].Title)

	require.NoError(t, h.svc.RefreshSessions(ctx))
	assert.Len(t, h.registry.List(), 2)
}

func TestTranslatePicksTargetAndCaches(t *testing.T) {
	var targets []string
	provider := &fakeProvider{
		scripts: []script{{fragments: []*llm.Fragment{{Text: "你好，世界"}}}},
		generate: func(history []llm.Message, o llm.Options) (string, error) {
			if o.ResponseSchema != nil {
				return `{"replies":[]}`, nil
			}
			targets = append(targets, o.SystemInstruction)
			return "Hello, world", nil
		},
	}
	h := newHarness(t, provider)
	ctx := context.Background()

	resp, err := h.svc.SendMessage(ctx, &dto.SendMessageRequest{Text: "say hi"})
	require.NoError(t, err)

	first, err := h.svc.Translate(ctx, resp.Reply.Id)
	require.NoError(t, err)
	assert.Equal(t, constant.TranslationTargetEN, first.Target)
	assert.Equal(t, "Hello, world", first.Text)

	second, err := h.svc.Translate(ctx, resp.Reply.Id)
	require.NoError(t, err)
	assert.Equal(t, "Hello, world", second.Text)
	require.Len(t, targets, 1)
	assert.Contains(t, targets[0], "English")

	_, err = h.svc.Translate(ctx, "missing")
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestTranslationTarget(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"hello", constant.TranslationTargetZH},
		{"こんにちは", constant.TranslationTargetZH},
		{"mixed 中文 text", constant.TranslationTargetEN},
		{"", constant.TranslationTargetZH},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TranslationTarget(tt.text), tt.text)
	}
}

func TestTranslateFailureYieldsNotice(t *testing.T) {
	provider := &fakeProvider{}
	h := newHarness(t, provider)
	ctx := context.Background()

	resp, err := h.svc.SendMessage(ctx, &dto.SendMessageRequest{Text: "hello"})
	require.NoError(t, err)

	out, err := h.svc.Translate(ctx, resp.Sent.Id)
	require.NoError(t, err)
	assert.Equal(t, constant.TranslationFailedText, out.Text)
}

func TestSummarize(t *testing.T) {
	h := newHarness(t, &fakeProvider{})
	ctx := context.Background()

	_, err := h.svc.Summarize(ctx)
	assert.ErrorIs(t, err, ErrNothingToSummarize)

	provider := &fakeProvider{
		generate: func(history []llm.Message, o llm.Options) (string, error) {
			if o.ResponseSchema != nil {
				return `{"replies":[]}`, nil
			}
			last := history[len(history)-1]
			if last.Content != constant.SummaryPrompt {
				return "", errors.New("summary prompt missing")
			}
			return "preamble [ANSWER]\n- greeted\n[/ANSWER]", nil
		},
	}
	h = newHarness(t, provider)
	_, err = h.svc.SendMessage(ctx, &dto.SendMessageRequest{Text: "hello"})
	require.NoError(t, err)

	out, err := h.svc.Summarize(ctx)
	require.NoError(t, err)
	assert.Equal(t, "- greeted", out.Summary)

	provider.mu.Lock()
	provider.generate = func([]llm.Message, llm.Options) (string, error) { return "", errors.New("down") }
	provider.mu.Unlock()
	out, err = h.svc.Summarize(ctx)
	require.NoError(t, err)
	assert.Equal(t, constant.SummaryFailedText, out.Summary)
}

func TestSpeak(t *testing.T) {
	provider := &fakeProvider{audio: &llm.Audio{Data: []byte{1, 2, 3}, MIMEType: "audio/L16;codec=pcm;rate=24000"}}
	h := newHarness(t, provider)
	ctx := context.Background()

	resp, err := h.svc.SendMessage(ctx, &dto.SendMessageRequest{Text: "hello"})
	require.NoError(t, err)

	speech, err := h.svc.Speak(ctx, resp.Reply.Id)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, speech.Audio)

	provider.audio = &llm.Audio{Data: []byte("{}"), MIMEType: "application/json"}
	_, err = h.svc.Speak(ctx, resp.Reply.Id)
	assert.ErrorIs(t, err, ErrInvalidAudio)
}

func TestTurnPublishesEvents(t *testing.T) {
	h := newHarness(t, &fakeProvider{})
	ctx := context.Background()

	_, err := h.svc.SendMessage(ctx, &dto.SendMessageRequest{Text: "hello"})
	require.NoError(t, err)

	closeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, h.svc.Close(closeCtx))

	seen := h.publisher.seen()
	assert.Contains(t, seen, events.SessionCreated)
	assert.Contains(t, seen, events.TurnStarted)
	assert.Contains(t, seen, events.TimelineChanged)
	assert.Contains(t, seen, events.TurnCompleted)
}
