package vertex

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"ai-chat-be/pkg/chat/grounding"
	"ai-chat-be/pkg/llm"

	"google.golang.org/genai"
)

// VertexProvider serves generation through the genai SDK, against either the Gemini
// API (API key) or Vertex AI (project and location).
type VertexProvider struct {
	client    *genai.Client
	modelName string
	voice     string
}

var _ llm.LLMProvider = &VertexProvider{}

type ClientOptions struct {
	APIKey   string
	Project  string
	Location string
}

func NewVertexProvider(ctx context.Context, opts ClientOptions, modelName string) (*VertexProvider, error) {
	cfg := &genai.ClientConfig{APIKey: opts.APIKey, Backend: genai.BackendGeminiAPI}
	if opts.Project != "" {
		cfg = &genai.ClientConfig{
			Project:  opts.Project,
			Location: opts.Location,
			Backend:  genai.BackendVertexAI,
		}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return &VertexProvider{client: client, modelName: modelName, voice: "Kore"}, nil
}

func toContents(history []llm.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history))
	for _, m := range history {
		role := genai.RoleUser
		if m.Role == llm.RoleModel {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	return contents
}

func toSchema(s *llm.Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:             genai.Type(s.Type),
		Items:            toSchema(s.Items),
		MaxItems:         s.MaxItems,
		PropertyOrdering: s.PropertyOrdering,
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for k, v := range s.Properties {
			out.Properties[k] = toSchema(v)
		}
	}
	return out
}

func (v *VertexProvider) config(options llm.Options) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if options.SystemInstruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(options.SystemInstruction, genai.RoleUser)
	}
	if options.Temperature != nil {
		temp := float32(*options.Temperature)
		cfg.Temperature = &temp
	}
	if options.Thinking {
		budget := int32(-1)
		cfg.ThinkingConfig = &genai.ThinkingConfig{IncludeThoughts: true, ThinkingBudget: &budget}
	}
	if options.Search {
		cfg.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}
	if options.ResponseSchema != nil {
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseSchema = toSchema(options.ResponseSchema)
	}
	return cfg
}

func (v *VertexProvider) model(options llm.Options) string {
	if options.Model != "" {
		return options.Model
	}
	return v.modelName
}

func (v *VertexProvider) GenerateStream(ctx context.Context, history []llm.Message, opts ...llm.Option) iter.Seq2[*llm.Fragment, error] {
	options := llm.ApplyOptions(llm.Options{}, opts...)
	stream := v.client.Models.GenerateContentStream(ctx, v.model(options), toContents(history), v.config(options))

	return func(yield func(*llm.Fragment, error) bool) {
		for resp, err := range stream {
			if err != nil {
				yield(nil, fmt.Errorf("genai stream: %w", err))
				return
			}
			if !yield(toFragment(resp), nil) {
				return
			}
		}
	}
}

func toFragment(resp *genai.GenerateContentResponse) *llm.Fragment {
	fragment := &llm.Fragment{}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return fragment
	}
	candidate := resp.Candidates[0]
	if candidate.Content != nil {
		var text, thought strings.Builder
		for _, part := range candidate.Content.Parts {
			if part == nil || part.Text == "" {
				continue
			}
			if part.Thought {
				thought.WriteString(part.Text)
			} else {
				text.WriteString(part.Text)
			}
		}
		fragment.Text = text.String()
		fragment.Thought = thought.String()
	}

	// The SDK only exposes the chunks shape.
	if meta := candidate.GroundingMetadata; meta != nil && meta.GroundingChunks != nil {
		payload := grounding.ChunksPayload{Chunks: make([]grounding.Chunk, 0, len(meta.GroundingChunks))}
		for _, c := range meta.GroundingChunks {
			var web *grounding.Web
			if c != nil && c.Web != nil {
				web = &grounding.Web{URI: c.Web.URI, Title: c.Web.Title}
			}
			payload.Chunks = append(payload.Chunks, grounding.Chunk{Web: web})
		}
		fragment.HasGrounding = true
		fragment.Sources = payload.Sources()
	}
	return fragment
}

func (v *VertexProvider) Generate(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	options := llm.ApplyOptions(llm.Options{}, opts...)
	res, err := v.client.Models.GenerateContent(ctx, v.model(options), toContents(history), v.config(options))
	if err != nil {
		return "", fmt.Errorf("genai generate content: %w", err)
	}
	text := toFragment(res).Text
	if text == "" {
		return "", llm.ErrEmptyResponse
	}
	return text, nil
}

func (v *VertexProvider) Speak(ctx context.Context, text string, opts ...llm.Option) (*llm.Audio, error) {
	options := llm.ApplyOptions(llm.Options{Voice: v.voice}, opts...)
	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: options.Voice},
			},
		},
	}
	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}
	res, err := v.client.Models.GenerateContent(ctx, v.model(options), contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("genai speech: %w", err)
	}
	for _, c := range res.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		for _, part := range c.Content.Parts {
			if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return &llm.Audio{Data: part.InlineData.Data, MIMEType: part.InlineData.MIMEType}, nil
			}
		}
	}
	return nil, llm.ErrEmptyResponse
}
