// Package suggest asks the model for short one-click follow-up replies.
package suggest

import (
	"context"
	"encoding/json"
	"strings"

	"ai-chat-be/internal/pkg/logger"
	"ai-chat-be/pkg/llm"
)

const (
	MaxReplies = 3

	SystemPrompt = "Based on the *last* message in the conversation, generate 3 very short, concise, one-click replies for the user to send next. " +
		"The replies should be in the same language as the conversation. " +
		"Only output the JSON object."
)

// ReplySchema constrains the output to {"replies": [string, ...]} with at most three items.
func ReplySchema() *llm.Schema {
	maxItems := int64(MaxReplies)
	return &llm.Schema{
		Type: llm.TypeObject,
		Properties: map[string]*llm.Schema{
			"replies": {
				Type:     llm.TypeArray,
				Items:    &llm.Schema{Type: llm.TypeString},
				MaxItems: &maxItems,
			},
		},
		PropertyOrdering: []string{"replies"},
	}
}

type Fetcher struct {
	generator llm.TextGenerator
	model     string
	logger    logger.ILogger
}

func NewFetcher(generator llm.TextGenerator, model string, log logger.ILogger) *Fetcher {
	return &Fetcher{generator: generator, model: model, logger: log}
}

// Fetch never fails. Any error or malformed output yields an empty list.
func (f *Fetcher) Fetch(ctx context.Context, history []llm.Message) []string {
	if len(history) == 0 {
		return []string{}
	}

	opts := []llm.Option{
		llm.WithSystemInstruction(SystemPrompt),
		llm.WithResponseSchema(ReplySchema()),
	}
	if f.model != "" {
		opts = append(opts, llm.WithModel(f.model))
	}

	raw, err := f.generator.Generate(ctx, history, opts...)
	if err != nil {
		f.logger.Warn("SUGGEST", "Suggested replies request failed", map[string]interface{}{"error": err.Error()})
		return []string{}
	}

	replies, err := Parse(raw)
	if err != nil {
		f.logger.Warn("SUGGEST", "Malformed suggested replies", map[string]interface{}{"error": err.Error(), "raw": raw})
		return []string{}
	}
	return replies
}

// Parse decodes the structured reply, dropping blanks and capping at MaxReplies.
func Parse(raw string) ([]string, error) {
	var payload struct {
		Replies []string `json:"replies"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &payload); err != nil {
		return nil, err
	}

	out := make([]string, 0, MaxReplies)
	for _, r := range payload.Replies {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
		if len(out) == MaxReplies {
			break
		}
	}
	return out, nil
}
