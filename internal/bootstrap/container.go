package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log"

	"ai-chat-be/internal/config"
	"ai-chat-be/internal/controller"
	"ai-chat-be/internal/handler"
	"ai-chat-be/internal/pkg/logger"
	"ai-chat-be/internal/repository/memory"
	"ai-chat-be/internal/repository/unitofwork"
	"ai-chat-be/internal/service"
	"ai-chat-be/internal/websocket"
	"ai-chat-be/pkg/chat/reconcile"
	"ai-chat-be/pkg/chat/session"
	"ai-chat-be/pkg/database"
	"ai-chat-be/pkg/events"
	"ai-chat-be/pkg/llm/factory"

	pktNats "ai-chat-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/redis/go-redis/v9"
)

type Container struct {
	// Controllers
	ChatController    controller.IChatController
	ChatEventsHandler *handler.ChatEventsHandler

	ChatService  service.IChatService
	WebSocketHub *websocket.Hub
	Bus          *events.Bus
	Logger       logger.ILogger

	cfg  *config.Config
	nats *pktNats.Publisher
	rdb  *redis.Client
}

// OpenStore returns the repository factory selected by CHAT_STORE.
func OpenStore(cfg *config.Config) (unitofwork.RepositoryFactory, error) {
	switch cfg.App.Store {
	case "memory":
		return memory.NewRepositoryFactory(memory.NewStore()), nil
	case database.DriverPostgres, database.DriverSQLite:
		db, err := database.Open(cfg.App.Store, cfg.Database.Connection, !cfg.IsProduction())
		if err != nil {
			return nil, fmt.Errorf("unable to connect to GORM DB: %w", err)
		}
		return unitofwork.NewRepositoryFactory(db), nil
	default:
		return nil, fmt.Errorf("unsupported store %q", cfg.App.Store)
	}
}

func NewContainer(ctx context.Context, uowFactory unitofwork.RepositoryFactory, cfg *config.Config) (*Container, error) {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())

	llmProvider, err := factory.NewLLMProvider(ctx, cfg.Ai, cfg.Keys.GoogleGemini)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM provider: %w", err)
	}
	sysLogger.Info("Bootstrap", "LLM provider ready", map[string]interface{}{
		"backend": cfg.Ai.Backend,
		"model":   cfg.Ai.ChatModel,
	})

	// 2. Event Bus
	bus := events.NewBus(watermill.NewStdLogger(false, false))
	publishers := events.Fanout{bus}

	var natsPub *pktNats.Publisher
	if cfg.Events.NatsURL != "" {
		natsPub, err = pktNats.NewPublisher(cfg.Events.NatsURL, cfg.Events.NatsTopic)
		if err != nil {
			sysLogger.Warn("Bootstrap", "Failed to connect to NATS publisher", map[string]interface{}{"error": err.Error()})
		} else {
			publishers = append(publishers, natsPub)
		}
	}

	// Redis, only for cross-instance websocket fan-out
	var rdb *redis.Client
	if cfg.Events.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.Events.RedisURL)
		if err != nil {
			sysLogger.Warn("Bootstrap", "Failed to parse Redis URL, using direct Addr", map[string]interface{}{"error": err.Error()})
			opt = &redis.Options{Addr: cfg.Events.RedisURL}
		}
		rdb = redis.NewClient(opt)
		if err := rdb.Ping(ctx).Err(); err != nil {
			sysLogger.Warn("Bootstrap", "Failed to connect to Redis", map[string]interface{}{"error": err.Error()})
		}
	}
	wsHub := websocket.NewHub(rdb, sysLogger)

	// 3. Domain
	registry := session.NewRegistry(uowFactory, cfg.App.AppId, cfg.App.ClientId)
	if err := registry.Refresh(ctx); err != nil {
		sysLogger.Warn("Bootstrap", "Initial session list load failed", map[string]interface{}{"error": err.Error()})
	}
	reconciler := reconcile.NewReconciler(uowFactory, sysLogger)
	translations := memory.NewTranslationCache(cfg.Ai.TranslationTTL)

	chatService := service.NewChatService(
		cfg.Ai,
		uowFactory,
		llmProvider,
		registry,
		reconciler,
		translations,
		publishers,
		sysLogger,
	)

	// 4. Controllers
	return &Container{
		ChatController:    controller.NewChatController(chatService),
		ChatEventsHandler: handler.NewChatEventsHandler(wsHub, cfg.App.ClientId, sysLogger),
		ChatService:       chatService,
		WebSocketHub:      wsHub,
		Bus:               bus,
		Logger:            sysLogger,
		cfg:               cfg,
		nats:              natsPub,
		rdb:               rdb,
	}, nil
}

// Start runs the websocket hub and relays bus events to it until ctx is done.
func (c *Container) Start(ctx context.Context) error {
	stream, err := c.Bus.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe to event bus: %w", err)
	}
	go c.WebSocketHub.Run(ctx)
	go c.WebSocketHub.Relay(ctx, stream, c.cfg.App.ClientId)
	return nil
}

// Close drains pending persistence and releases connections.
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	if err := c.ChatService.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("chat service: %w", err))
	}
	if err := c.Bus.Close(); err != nil {
		errs = append(errs, fmt.Errorf("event bus: %w", err))
	}
	if c.nats != nil {
		c.nats.Close()
	}
	if c.rdb != nil {
		if err := c.rdb.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	if err := c.Logger.Sync(); err != nil {
		log.Printf("logger sync: %v", err)
	}
	return errors.Join(errs...)
}
