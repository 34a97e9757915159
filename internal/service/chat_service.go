package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"ai-chat-be/internal/config"
	"ai-chat-be/internal/constant"
	"ai-chat-be/internal/dto"
	"ai-chat-be/internal/entity"
	"ai-chat-be/internal/mapper"
	"ai-chat-be/internal/pkg/logger"
	"ai-chat-be/internal/repository/memory"
	"ai-chat-be/internal/repository/unitofwork"
	"ai-chat-be/pkg/chat/ingest"
	"ai-chat-be/pkg/chat/message"
	"ai-chat-be/pkg/chat/reconcile"
	"ai-chat-be/pkg/chat/session"
	"ai-chat-be/pkg/chat/suggest"
	"ai-chat-be/pkg/chat/timeline"
	"ai-chat-be/pkg/events"
	"ai-chat-be/pkg/llm"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseStreaming    Phase = "streaming"
	PhaseRegenerating Phase = "regenerating"
	PhaseLoading      Phase = "loading"
	PhaseDeleting     Phase = "deleting"
)

var (
	ErrEmptyMessage        = errors.New("message is empty")
	ErrTurnInProgress      = errors.New("a reply is already being generated for this session")
	ErrHistoryLoading      = errors.New("session history is still loading")
	ErrSessionDeleting     = errors.New("session is being deleted")
	ErrTurnFailed          = errors.New("reply generation failed")
	ErrNothingToRegenerate = errors.New("no user message to regenerate from")
	ErrNoActiveSession     = errors.New("no active session")
	ErrMessageNotFound     = errors.New("message not found")
	ErrNothingToSummarize  = errors.New("conversation is empty")
	ErrInvalidAudio        = errors.New("speech response is not audio")
)

var (
	cjkPattern    = regexp.MustCompile(`[\x{4e00}-\x{9fa5}]`)
	answerPattern = regexp.MustCompile(`(?s)\[ANSWER\](.*?)\[/ANSWER\]`)
)

// IChatService is the conversation orchestrator for one logical client.
type IChatService interface {
	SendMessage(ctx context.Context, request *dto.SendMessageRequest) (*dto.TurnResponse, error)
	Regenerate(ctx context.Context, request *dto.RegenerateRequest) (*dto.TurnResponse, error)
	SelectSession(ctx context.Context, sessionId uuid.UUID) (*dto.TimelineResponse, error)
	NewChat(ctx context.Context) *dto.TimelineResponse
	LoadHistory(ctx context.Context) error
	DeleteSession(ctx context.Context, sessionId uuid.UUID) error
	ListSessions(ctx context.Context, request *dto.ListSessionsRequest) []*dto.SessionGroupResponse
	RefreshSessions(ctx context.Context) error
	Snapshot(ctx context.Context) *dto.TimelineResponse
	Translate(ctx context.Context, messageId string) (*dto.TranslateResponse, error)
	Speak(ctx context.Context, messageId string) (*dto.SpeechResponse, error)
	Summarize(ctx context.Context) (*dto.SummaryResponse, error)
	Close(ctx context.Context) error
}

type chatService struct {
	cfg          config.AIConfig
	uowFactory   unitofwork.RepositoryFactory
	provider     llm.LLMProvider
	registry     *session.Registry
	engine       *ingest.Engine
	suggester    *suggest.Fetcher
	reconciler   *reconcile.Reconciler
	translations *memory.TranslationCache
	ids          *message.Generator
	mapper       *mapper.ChatMapper
	notifier     *notifier
	logger       logger.ILogger
	tracer       trace.Tracer
	now          func() time.Time

	// mu guards the view state below. It is never held across I/O.
	mu                 sync.Mutex
	active             uuid.UUID // uuid.Nil is the draft view
	timeline           *timeline.Timeline
	pendingSuggestions []string
	historyLoaded      bool
	phases             map[uuid.UUID]Phase
}

func NewChatService(
	cfg config.AIConfig,
	uowFactory unitofwork.RepositoryFactory,
	provider llm.LLMProvider,
	registry *session.Registry,
	reconciler *reconcile.Reconciler,
	translations *memory.TranslationCache,
	publisher events.Publisher,
	log logger.ILogger,
) IChatService {
	cs := &chatService{
		cfg:          cfg,
		uowFactory:   uowFactory,
		provider:     provider,
		registry:     registry,
		engine:       ingest.NewEngine(provider, cfg.StreamIdleTimeout),
		suggester:    suggest.NewFetcher(provider, cfg.SuggestionModel, log),
		reconciler:   reconciler,
		translations: translations,
		ids:          message.NewGenerator(),
		mapper:       mapper.NewChatMapper(),
		notifier:     newNotifier(publisher, log),
		logger:       log,
		tracer:       otel.Tracer("ai-chat-be/chat"),
		now:          time.Now,
		phases:       make(map[uuid.UUID]Phase),
	}
	cs.timeline = timeline.New(timeline.WithObserver(cs.onTimelineChange))
	return cs
}

// onTimelineChange runs with mu held.
func (cs *chatService) onTimelineChange(change timeline.Change) {
	data := map[string]interface{}{
		"kind":   string(change.Kind),
		"length": change.Length,
	}
	if change.MessageId != "" {
		data["message_id"] = change.MessageId
	}
	if cs.active != uuid.Nil {
		data["session_id"] = cs.active.String()
	}
	cs.notifier.emit(events.New(events.TimelineChanged, data))
}

// occupied returns why the session cannot start another operation, or nil.
func (cs *chatService) occupied(sessionId uuid.UUID) error {
	switch cs.phases[sessionId] {
	case "", PhaseIdle:
		return nil
	case PhaseLoading:
		return ErrHistoryLoading
	case PhaseDeleting:
		return ErrSessionDeleting
	default:
		return ErrTurnInProgress
	}
}

func (cs *chatService) releasePhase(sessionId uuid.UUID) {
	cs.mu.Lock()
	delete(cs.phases, sessionId)
	cs.mu.Unlock()
}

// conversation converts the settled part of the timeline into model history.
// Error notices and pending replies are never sent back to the model.
func conversation(msgs []*entity.ChatMessage) []llm.Message {
	history := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.IsError || m.IsLoading {
			continue
		}
		history = append(history, llm.Message{Role: string(m.Role), Content: m.Content})
	}
	return history
}

func (cs *chatService) turnOptions(thinking, search *bool, model string) ingest.Options {
	opts := ingest.Options{
		Model:             cs.cfg.ChatModel,
		ThinkingEnabled:   cs.cfg.DefaultThinking,
		SearchEnabled:     cs.cfg.DefaultSearch,
		SystemInstruction: constant.ChatSystemInstruction,
	}
	if thinking != nil {
		opts.ThinkingEnabled = *thinking
	}
	if search != nil {
		opts.SearchEnabled = *search
	}
	if model != "" {
		opts.Model = model
	}
	return opts
}

func (cs *chatService) newPlaceholder(sessionId uuid.UUID, opts ingest.Options) *entity.ChatMessage {
	return &entity.ChatMessage{
		Id:                    cs.ids.New(message.PrefixModel),
		ChatSessionId:         sessionId,
		Role:                  entity.ChatRoleModel,
		GeneratedWithThinking: opts.ThinkingEnabled,
		GeneratedWithSearch:   opts.SearchEnabled,
		IsLoading:             true,
	}
}

type turn struct {
	sessionId   uuid.UUID
	phase       Phase
	history     []llm.Message
	placeholder *entity.ChatMessage
	opts        ingest.Options
	failureText string
}

// stream runs one generation into the placeholder and returns the settled reply.
// On failure the placeholder is replaced by an error notice.
func (cs *chatService) stream(ctx context.Context, t turn) (*entity.ChatMessage, error) {
	ctx, span := cs.tracer.Start(ctx, "chat."+string(t.phase), trace.WithAttributes(
		attribute.String("chat.session_id", t.sessionId.String()),
		attribute.String("chat.model", t.opts.Model),
		attribute.Bool("chat.thinking", t.opts.ThinkingEnabled),
		attribute.Bool("chat.search", t.opts.SearchEnabled),
		attribute.Int("chat.history_length", len(t.history)),
	))
	defer span.End()

	cs.notifier.emit(events.New(events.TurnStarted, map[string]interface{}{
		"session_id": t.sessionId.String(),
		"message_id": t.placeholder.Id,
		"phase":      string(t.phase),
	}))

	placeholderId := t.placeholder.Id
	result, err := cs.engine.Run(ctx, t.history, t.opts, func(content string) {
		cs.mu.Lock()
		cs.timeline.MutatePlaceholder(placeholderId, timeline.Patch{Content: &content})
		cs.mu.Unlock()
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		cs.logger.Error("CHAT", "Reply generation failed", map[string]interface{}{
			"session_id": t.sessionId.String(),
			"phase":      string(t.phase),
			"error":      err.Error(),
		})
		cs.failTurn(t)
		cs.notifier.emit(events.New(events.TurnFailed, map[string]interface{}{
			"session_id": t.sessionId.String(),
			"error":      err.Error(),
		}))
		return nil, fmt.Errorf("%w: %w", ErrTurnFailed, err)
	}
	span.SetAttributes(attribute.Int("chat.fragments", result.Fragments))

	reply := t.placeholder.Clone()
	reply.Content = result.Content
	reply.ThinkingProcess = result.ThinkingProcess
	reply.Sources = result.Sources
	reply.GeneratedWithThinking = result.GeneratedWithThinking
	reply.GeneratedWithSearch = result.GeneratedWithSearch
	reply.IsLoading = false

	loading := false
	patch := timeline.Patch{
		Content:               &reply.Content,
		Sources:               reply.Sources,
		SetSources:            true,
		GeneratedWithThinking: &reply.GeneratedWithThinking,
		GeneratedWithSearch:   &reply.GeneratedWithSearch,
		IsLoading:             &loading,
	}
	if reply.ThinkingProcess != nil {
		patch.ThinkingProcess = reply.ThinkingProcess
	}

	cs.mu.Lock()
	if current := cs.timeline.Get(placeholderId); current != nil {
		reply.CreatedAt = current.CreatedAt
	}
	cs.timeline.MutatePlaceholder(placeholderId, patch)
	cs.mu.Unlock()

	cs.notifier.emit(events.New(events.TurnCompleted, map[string]interface{}{
		"session_id": t.sessionId.String(),
		"message_id": reply.Id,
	}))
	return reply, nil
}

func (cs *chatService) failTurn(t turn) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	// A missing placeholder means the view moved to another session.
	if !cs.timeline.Remove(t.placeholder.Id) {
		return
	}
	notice := &entity.ChatMessage{
		Id:            cs.ids.New(message.PrefixError),
		ChatSessionId: t.sessionId,
		Role:          entity.ChatRoleModel,
		Content:       t.failureText,
		IsError:       true,
	}
	if err := cs.timeline.AppendOptimistic(notice); err != nil {
		cs.logger.Warn("CHAT", "Could not append failure notice", map[string]interface{}{"error": err.Error()})
	}
}

// suggestFor fetches follow-up replies for the settled reply and attaches them.
func (cs *chatService) suggestFor(ctx context.Context, sessionId uuid.UUID, history []llm.Message, reply *entity.ChatMessage) []string {
	full := append(append([]llm.Message(nil), history...), llm.Message{Role: llm.RoleModel, Content: reply.Content})
	replies := cs.suggester.Fetch(ctx, full)

	cs.mu.Lock()
	if len(replies) > 0 {
		cs.timeline.MutatePlaceholder(reply.Id, timeline.Patch{SuggestedReplies: replies})
	}
	if cs.active == sessionId {
		cs.pendingSuggestions = replies
	}
	cs.mu.Unlock()

	if len(replies) == 0 {
		return replies
	}
	reply.SuggestedReplies = replies
	if err := cs.reconciler.ScheduleSuggestions(sessionId, reply.Id, replies); err != nil {
		cs.logger.Error("CHAT", "Failed to schedule suggested replies", map[string]interface{}{"error": err.Error()})
	}
	cs.notifier.emit(events.New(events.SuggestionsReady, map[string]interface{}{
		"session_id": sessionId.String(),
		"message_id": reply.Id,
		"replies":    replies,
	}))
	return replies
}

// SendMessage appends the user's text, streams the reply and persists both.
// From the draft view a session is created first, titled after the text.
func (cs *chatService) SendMessage(ctx context.Context, request *dto.SendMessageRequest) (*dto.TurnResponse, error) {
	text := strings.TrimSpace(request.Text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	cs.mu.Lock()
	sessionId := cs.active
	if err := cs.occupied(sessionId); err != nil {
		cs.mu.Unlock()
		return nil, err
	}
	cs.phases[sessionId] = PhaseStreaming
	cs.mu.Unlock()

	var title string
	if sessionId == uuid.Nil {
		created, err := cs.registry.Create(ctx, text)
		if err != nil {
			cs.releasePhase(uuid.Nil)
			return nil, err
		}
		sessionId, title = created.Id, created.Title

		cs.mu.Lock()
		delete(cs.phases, uuid.Nil)
		cs.phases[sessionId] = PhaseStreaming
		if cs.active == uuid.Nil {
			cs.active = sessionId
			cs.historyLoaded = true
		}
		cs.mu.Unlock()

		cs.notifier.emit(events.New(events.SessionCreated, map[string]interface{}{
			"session_id": sessionId.String(),
			"title":      title,
		}))
	}
	defer cs.releasePhase(sessionId)

	opts := cs.turnOptions(request.Thinking, request.Search, request.Model)
	user := &entity.ChatMessage{
		Id:            cs.ids.New(message.PrefixUser),
		ChatSessionId: sessionId,
		Role:          entity.ChatRoleUser,
		Content:       text,
	}
	placeholder := cs.newPlaceholder(sessionId, opts)

	cs.mu.Lock()
	var history []llm.Message
	if cs.active == sessionId {
		history = conversation(cs.timeline.Messages())
		cs.pendingSuggestions = nil
		_ = cs.timeline.AppendOptimistic(user)
		if err := cs.timeline.AppendOptimistic(placeholder); err != nil {
			cs.mu.Unlock()
			return nil, fmt.Errorf("%w: %w", ErrTurnInProgress, err)
		}
	}
	cs.mu.Unlock()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = cs.now()
	}
	history = append(history, llm.Message{Role: llm.RoleUser, Content: text})

	reply, err := cs.stream(ctx, turn{
		sessionId:   sessionId,
		phase:       PhaseStreaming,
		history:     history,
		placeholder: placeholder,
		opts:        opts,
		failureText: constant.TurnFailedMessage,
	})
	if err != nil {
		return nil, err
	}

	if err := cs.reconciler.ScheduleTurn(sessionId, user, reply); err != nil {
		cs.logger.Error("CHAT", "Failed to schedule turn persistence", map[string]interface{}{"error": err.Error()})
	}
	replies := cs.suggestFor(ctx, sessionId, history, reply)

	return &dto.TurnResponse{
		SessionId:        sessionId,
		SessionTitle:     title,
		Sent:             cs.mapper.ChatMessageToResponse(user),
		Reply:            cs.mapper.ChatMessageToResponse(reply),
		SuggestedReplies: replies,
	}, nil
}

// Regenerate drops everything after the last user message and streams a new reply.
func (cs *chatService) Regenerate(ctx context.Context, request *dto.RegenerateRequest) (*dto.TurnResponse, error) {
	opts := cs.turnOptions(request.Thinking, request.Search, request.Model)

	cs.mu.Lock()
	sessionId := cs.active
	if sessionId == uuid.Nil {
		cs.mu.Unlock()
		return nil, ErrNoActiveSession
	}
	if err := cs.occupied(sessionId); err != nil {
		cs.mu.Unlock()
		return nil, err
	}
	lastUser := cs.timeline.LastIndexOf(entity.ChatRoleUser)
	if lastUser < 0 {
		cs.mu.Unlock()
		return nil, ErrNothingToRegenerate
	}
	cs.phases[sessionId] = PhaseRegenerating
	history := conversation(cs.timeline.Messages()[:lastUser+1])
	dropped := cs.timeline.TruncateAfter(lastUser)
	placeholder := cs.newPlaceholder(sessionId, opts)
	_ = cs.timeline.AppendOptimistic(placeholder)
	cs.pendingSuggestions = nil
	cs.mu.Unlock()
	defer cs.releasePhase(sessionId)

	staleIds := make([]string, 0, len(dropped))
	for _, m := range dropped {
		staleIds = append(staleIds, m.Id)
	}
	if err := cs.reconciler.ScheduleDelete(sessionId, staleIds); err != nil {
		cs.logger.Error("CHAT", "Failed to schedule stale message removal", map[string]interface{}{"error": err.Error()})
	}

	reply, err := cs.stream(ctx, turn{
		sessionId:   sessionId,
		phase:       PhaseRegenerating,
		history:     history,
		placeholder: placeholder,
		opts:        opts,
		failureText: constant.RegenerateFailedMessage,
	})
	if err != nil {
		return nil, err
	}

	if err := cs.reconciler.ScheduleModel(sessionId, reply); err != nil {
		cs.logger.Error("CHAT", "Failed to schedule reply persistence", map[string]interface{}{"error": err.Error()})
	}
	replies := cs.suggestFor(ctx, sessionId, history, reply)

	return &dto.TurnResponse{
		SessionId:        sessionId,
		Reply:            cs.mapper.ChatMessageToResponse(reply),
		SuggestedReplies: replies,
	}, nil
}

// SelectSession switches the view. Selecting the active session is a no-op.
func (cs *chatService) SelectSession(ctx context.Context, sessionId uuid.UUID) (*dto.TimelineResponse, error) {
	cs.mu.Lock()
	same := cs.active == sessionId
	cs.mu.Unlock()
	if same {
		return cs.Snapshot(ctx), nil
	}
	if !cs.registry.Contains(sessionId) {
		return nil, session.ErrSessionNotFound
	}

	cs.mu.Lock()
	if cs.active != sessionId {
		cs.timeline.Clear()
		cs.historyLoaded = false
		cs.pendingSuggestions = nil
		cs.active = sessionId
	}
	cs.mu.Unlock()

	cs.notifier.emit(events.New(events.SessionSelected, map[string]interface{}{"session_id": sessionId.String()}))

	if err := cs.LoadHistory(ctx); err != nil {
		return nil, err
	}
	return cs.Snapshot(ctx), nil
}

// NewChat returns the view to the draft state without touching the store.
func (cs *chatService) NewChat(ctx context.Context) *dto.TimelineResponse {
	cs.mu.Lock()
	cs.active = uuid.Nil
	cs.timeline.Clear()
	cs.historyLoaded = false
	cs.pendingSuggestions = nil
	cs.mu.Unlock()
	return cs.Snapshot(ctx)
}

// LoadHistory fills an empty timeline from the store, at most once per selection.
func (cs *chatService) LoadHistory(ctx context.Context) error {
	cs.mu.Lock()
	sessionId := cs.active
	if sessionId == uuid.Nil || cs.historyLoaded || cs.timeline.Len() > 0 {
		cs.mu.Unlock()
		return nil
	}
	cs.historyLoaded = true
	// Turns are refused until the load settles so the model never sees a partial conversation.
	guarded := cs.occupied(sessionId) == nil
	if guarded {
		cs.phases[sessionId] = PhaseLoading
	}
	cs.mu.Unlock()
	if guarded {
		defer func() {
			cs.mu.Lock()
			if cs.phases[sessionId] == PhaseLoading {
				delete(cs.phases, sessionId)
			}
			cs.mu.Unlock()
		}()
	}

	uow := cs.uowFactory.NewUnitOfWork(ctx)
	rows, err := uow.ChatMessageRepository().FindAllRawBySessionId(ctx, sessionId)
	if err != nil {
		cs.logger.Error("CHAT", "Failed to load history", map[string]interface{}{
			"session_id": sessionId.String(),
			"error":      err.Error(),
		})
		cs.mu.Lock()
		if cs.active == sessionId && cs.timeline.Len() == 0 {
			cs.historyLoaded = false
		}
		cs.mu.Unlock()
		return fmt.Errorf("load history: %w", err)
	}

	msgs := make([]*entity.ChatMessage, 0, len(rows))
	for _, row := range rows {
		msg, err := cs.mapper.ChatMessageFromRow(row)
		if err != nil {
			cs.logger.Warn("CHAT", "Skipping malformed message row", map[string]interface{}{"error": err.Error()})
			continue
		}
		msg.ChatSessionId = sessionId
		msgs = append(msgs, msg)
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.active != sessionId || cs.timeline.Len() > 0 {
		return nil
	}
	cs.timeline.ReplaceAll(msgs)
	cs.pendingSuggestions = nil
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == entity.ChatRoleModel {
			cs.pendingSuggestions = append([]string(nil), msgs[i].SuggestedReplies...)
			break
		}
	}
	return nil
}

func (cs *chatService) DeleteSession(ctx context.Context, sessionId uuid.UUID) error {
	if !cs.registry.Contains(sessionId) {
		return session.ErrSessionNotFound
	}
	cs.mu.Lock()
	if err := cs.occupied(sessionId); err != nil {
		cs.mu.Unlock()
		return err
	}
	cs.phases[sessionId] = PhaseDeleting
	cs.mu.Unlock()
	defer cs.releasePhase(sessionId)

	// Queued writes for the session land first, then the cascade delete removes them.
	err := cs.reconciler.DeleteSession(ctx, sessionId, func(ctx context.Context) error {
		return cs.registry.Delete(ctx, sessionId)
	})
	if err != nil {
		return err
	}

	cs.mu.Lock()
	if cs.active == sessionId {
		cs.active = uuid.Nil
		cs.timeline.Clear()
		cs.historyLoaded = false
		cs.pendingSuggestions = nil
	}
	cs.mu.Unlock()

	cs.notifier.emit(events.New(events.SessionDeleted, map[string]interface{}{"session_id": sessionId.String()}))
	return nil
}

func (cs *chatService) ListSessions(ctx context.Context, request *dto.ListSessionsRequest) []*dto.SessionGroupResponse {
	mode := session.GroupingRelative
	if request.Grouping == string(session.GroupingMonthly) {
		mode = session.GroupingMonthly
	}
	groups := cs.registry.ListGrouped(cs.now(), request.Query, mode)

	out := make([]*dto.SessionGroupResponse, 0, len(groups))
	for _, g := range groups {
		group := &dto.SessionGroupResponse{Label: g.Label, Sessions: make([]*dto.SessionResponse, 0, len(g.Sessions))}
		for _, s := range g.Sessions {
			resp := cs.mapper.ChatSessionToResponse(s)
			resp.Title = session.DisplayTitle(s)
			group.Sessions = append(group.Sessions, resp)
		}
		out = append(out, group)
	}
	return out
}

func (cs *chatService) RefreshSessions(ctx context.Context) error {
	return cs.registry.Refresh(ctx)
}

func (cs *chatService) Snapshot(ctx context.Context) *dto.TimelineResponse {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	phase := PhaseIdle
	if p, ok := cs.phases[cs.active]; ok {
		phase = p
	}
	resp := &dto.TimelineResponse{
		Phase:              string(phase),
		HistoryLoaded:      cs.historyLoaded,
		Messages:           cs.mapper.ChatMessagesToResponses(cs.timeline.Messages()),
		PendingSuggestions: append([]string{}, cs.pendingSuggestions...),
	}
	if cs.active != uuid.Nil {
		id := cs.active
		resp.SessionId = &id
	}
	return resp
}

func (cs *chatService) findMessage(messageId string) (*entity.ChatMessage, error) {
	cs.mu.Lock()
	msg := cs.timeline.Get(messageId)
	cs.mu.Unlock()
	if msg == nil || msg.IsLoading {
		return nil, ErrMessageNotFound
	}
	return msg, nil
}

// TranslationTarget picks English for text containing CJK ideographs and Chinese otherwise.
func TranslationTarget(text string) string {
	if cjkPattern.MatchString(text) {
		return constant.TranslationTargetEN
	}
	return constant.TranslationTargetZH
}

// Translate never fails on the model side: a failed request yields a fixed notice.
func (cs *chatService) Translate(ctx context.Context, messageId string) (*dto.TranslateResponse, error) {
	msg, err := cs.findMessage(messageId)
	if err != nil {
		return nil, err
	}
	target := TranslationTarget(msg.Content)
	resp := &dto.TranslateResponse{MessageId: messageId, Target: target}

	if cached, ok := cs.translations.Get(messageId, target); ok {
		resp.Text = cached
		return resp, nil
	}

	opts := []llm.Option{
		llm.WithSystemInstruction(fmt.Sprintf(constant.TranslationSystemPrompt, target)),
		llm.WithTemperature(0),
	}
	if cs.cfg.TranslationModel != "" {
		opts = append(opts, llm.WithModel(cs.cfg.TranslationModel))
	}
	text, err := cs.provider.Generate(ctx, []llm.Message{{Role: llm.RoleUser, Content: msg.Content}}, opts...)
	if err != nil || strings.TrimSpace(text) == "" {
		details := map[string]interface{}{"message_id": messageId, "target": target}
		if err != nil {
			details["error"] = err.Error()
		}
		cs.logger.Warn("CHAT", "Translation failed", details)
		resp.Text = constant.TranslationFailedText
		return resp, nil
	}

	cs.translations.Save(messageId, target, text)
	resp.Text = text
	return resp, nil
}

func (cs *chatService) Speak(ctx context.Context, messageId string) (*dto.SpeechResponse, error) {
	msg, err := cs.findMessage(messageId)
	if err != nil {
		return nil, err
	}

	opts := []llm.Option{llm.WithVoice(cs.cfg.SpeechVoice)}
	if cs.cfg.SpeechModel != "" {
		opts = append(opts, llm.WithModel(cs.cfg.SpeechModel))
	}
	audio, err := cs.provider.Speak(ctx, msg.Content, opts...)
	if err != nil {
		return nil, fmt.Errorf("speech: %w", err)
	}
	if len(audio.Data) == 0 || !strings.HasPrefix(audio.MIMEType, "audio/") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAudio, audio.MIMEType)
	}
	return &dto.SpeechResponse{MessageId: messageId, MimeType: audio.MIMEType, Audio: audio.Data}, nil
}

// Summarize asks for a bullet summary of the conversation. A failed request yields a fixed notice.
func (cs *chatService) Summarize(ctx context.Context) (*dto.SummaryResponse, error) {
	cs.mu.Lock()
	history := conversation(cs.timeline.Messages())
	cs.mu.Unlock()
	if len(history) == 0 {
		return nil, ErrNothingToSummarize
	}
	history = append(history, llm.Message{Role: llm.RoleUser, Content: constant.SummaryPrompt})

	text, err := cs.provider.Generate(ctx, history, llm.WithModel(cs.cfg.ChatModel))
	if err != nil {
		cs.logger.Warn("CHAT", "Summary failed", map[string]interface{}{"error": err.Error()})
		return &dto.SummaryResponse{Summary: constant.SummaryFailedText}, nil
	}
	if m := answerPattern.FindStringSubmatch(text); m != nil && strings.TrimSpace(m[1]) != "" {
		text = strings.TrimSpace(m[1])
	}
	return &dto.SummaryResponse{Summary: text}, nil
}

// Close waits for queued persistence and stops event delivery.
func (cs *chatService) Close(ctx context.Context) error {
	err := cs.reconciler.Close(ctx)
	cs.notifier.close(ctx)
	return err
}
