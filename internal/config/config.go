package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Keys     APIKeys
	Ai       AIConfig
	Events   EventsConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	CorsAllowedOrigins string
	// AppId and ClientId scope every session row. ClientId is an opaque token, not a credential.
	AppId    string
	ClientId string
	// Store selects the durable store: "postgres", "sqlite" or "memory".
	Store        string
	OtelEndpoint string
}

type DatabaseConfig struct {
	Connection string
}

type APIKeys struct {
	GoogleGemini string
}

type AIConfig struct {
	// Backend is "rest" (generative-language HTTP API), "genai" (SDK, API key)
	// or "vertex" (SDK, project credentials).
	Backend           string
	VertexProject     string
	VertexLocation    string
	BaseURL           string
	ChatModel         string
	SuggestionModel   string
	TranslationModel  string
	SpeechModel       string
	SpeechVoice       string
	DefaultThinking   bool
	DefaultSearch     bool
	StreamIdleTimeout time.Duration
	MaxRetries        int
	TranslationTTL    time.Duration
}

type EventsConfig struct {
	NatsURL   string
	NatsTopic string
	RedisURL  string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "chat.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			AppId:              getEnv("APP_ID", "default-app"),
			ClientId:           getEnv("CLIENT_ID", "local-client"),
			Store:              getEnv("CHAT_STORE", "postgres"),
			OtelEndpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Keys: APIKeys{
			GoogleGemini: getEnv("GOOGLE_GEMINI_API_KEY", ""),
		},
		Ai: AIConfig{
			Backend:           getEnv("LLM_BACKEND", "rest"),
			VertexProject:     getEnv("VERTEX_PROJECT", ""),
			VertexLocation:    getEnv("VERTEX_LOCATION", "us-central1"),
			BaseURL:           getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
			ChatModel:         getEnv("CHAT_MODEL", "gemini-2.5-flash"),
			SuggestionModel:   getEnv("SUGGESTION_MODEL", "gemini-2.5-flash"),
			TranslationModel:  getEnv("TRANSLATION_MODEL", "gemini-2.5-flash"),
			SpeechModel:       getEnv("SPEECH_MODEL", "gemini-2.5-flash-preview-tts"),
			SpeechVoice:       getEnv("SPEECH_VOICE", "Kore"),
			DefaultThinking:   getEnvAsBool("DEFAULT_THINKING", true),
			DefaultSearch:     getEnvAsBool("DEFAULT_SEARCH", false),
			StreamIdleTimeout: getEnvAsDuration("STREAM_IDLE_TIMEOUT", 60*time.Second),
			MaxRetries:        getEnvAsInt("LLM_MAX_RETRIES", 5),
			TranslationTTL:    getEnvAsDuration("TRANSLATION_CACHE_TTL", 24*time.Hour),
		},
		Events: EventsConfig{
			NatsURL:   getEnv("NATS_URL", ""),
			NatsTopic: getEnv("NATS_TOPIC", "chat"),
			RedisURL:  getEnv("REDIS_URL", ""),
		},
	}
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := strings.TrimSpace(getEnv(key, ""))
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}
