package factory

import (
	"context"
	"fmt"

	"ai-chat-be/internal/config"
	"ai-chat-be/pkg/llm"
	"ai-chat-be/pkg/llm/gemini"
	"ai-chat-be/pkg/llm/vertex"
)

func NewLLMProvider(ctx context.Context, cfg config.AIConfig, apiKey string) (llm.LLMProvider, error) {
	switch cfg.Backend {
	case "rest", "":
		p := gemini.NewGeminiProvider(cfg.BaseURL, apiKey, cfg.ChatModel)
		p.Voice = cfg.SpeechVoice
		if cfg.MaxRetries > 0 {
			p.MaxRetries = cfg.MaxRetries
		}
		return p, nil
	case "genai":
		return vertex.NewVertexProvider(ctx, vertex.ClientOptions{APIKey: apiKey}, cfg.ChatModel)
	case "vertex":
		return vertex.NewVertexProvider(ctx, vertex.ClientOptions{
			Project:  cfg.VertexProject,
			Location: cfg.VertexLocation,
		}, cfg.ChatModel)
	default:
		return nil, fmt.Errorf("unsupported LLM backend: %s", cfg.Backend)
	}
}
