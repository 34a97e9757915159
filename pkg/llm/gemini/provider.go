package gemini

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"time"

	"ai-chat-be/pkg/chat/grounding"
	"ai-chat-be/pkg/llm"

	"github.com/cenkalti/backoff/v5"
)

const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiProvider talks to the generative-language REST API. Streaming uses the SSE
// variant of streamGenerateContent.
type GeminiProvider struct {
	BaseURL        string
	APIKey         string
	ModelName      string
	Voice          string
	Client         *http.Client
	MaxRetries     int
	InitialBackoff time.Duration
}

// Ensure GeminiProvider implements LLMProvider
var _ llm.LLMProvider = &GeminiProvider{}

func NewGeminiProvider(baseURL, apiKey, modelName string) *GeminiProvider {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &GeminiProvider{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		APIKey:    apiKey,
		ModelName: modelName,
		Voice:     "Kore",
		// No client timeout: streams are bounded by the caller's context.
		Client:         &http.Client{},
		MaxRetries:     5,
		InitialBackoff: time.Second,
	}
}

// --- Wire structs ---

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	Thought    bool              `json:"thought,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MIMEType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiTool struct {
	GoogleSearch *struct{} `json:"google_search,omitempty"`
}

type geminiThinkingConfig struct {
	ThinkingBudget  int  `json:"thinkingBudget"`
	IncludeThoughts bool `json:"includeThoughts"`
}

type geminiPrebuiltVoice struct {
	VoiceName string `json:"voiceName"`
}

type geminiVoiceConfig struct {
	PrebuiltVoiceConfig geminiPrebuiltVoice `json:"prebuiltVoiceConfig"`
}

type geminiSpeechConfig struct {
	VoiceConfig geminiVoiceConfig `json:"voiceConfig"`
}

type geminiGenerationConfig struct {
	Temperature        *float64              `json:"temperature,omitempty"`
	ThinkingConfig     *geminiThinkingConfig `json:"thinkingConfig,omitempty"`
	ResponseMIMEType   string                `json:"responseMimeType,omitempty"`
	ResponseSchema     *llm.Schema           `json:"responseSchema,omitempty"`
	ResponseModalities []string              `json:"responseModalities,omitempty"`
	SpeechConfig       *geminiSpeechConfig   `json:"speechConfig,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	Tools             []geminiTool            `json:"tools,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiCandidate struct {
	Content           *geminiContent  `json:"content"`
	FinishReason      string          `json:"finishReason"`
	GroundingMetadata json.RawMessage `json:"groundingMetadata"`
}

type geminiResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
	Error      *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Interface Implementation ---

func (g *GeminiProvider) buildRequest(history []llm.Message, options llm.Options) geminiRequest {
	req := geminiRequest{}
	for _, msg := range history {
		role := llm.RoleUser
		if msg.Role == llm.RoleModel || msg.Role == "assistant" {
			role = llm.RoleModel
		}
		req.Contents = append(req.Contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: msg.Content}},
		})
	}

	if options.SystemInstruction != "" {
		req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: options.SystemInstruction}}}
	}
	if options.Search {
		req.Tools = []geminiTool{{GoogleSearch: &struct{}{}}}
	}

	cfg := &geminiGenerationConfig{Temperature: options.Temperature}
	if options.Thinking {
		cfg.ThinkingConfig = &geminiThinkingConfig{ThinkingBudget: -1, IncludeThoughts: true}
	}
	if options.ResponseSchema != nil {
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseSchema = options.ResponseSchema
	}
	if cfg.Temperature != nil || cfg.ThinkingConfig != nil || cfg.ResponseSchema != nil {
		req.GenerationConfig = cfg
	}
	return req
}

func (g *GeminiProvider) modelURL(model, method string) string {
	if model == "" {
		model = g.ModelName
	}
	return fmt.Sprintf("%s/models/%s:%s", g.BaseURL, model, method)
}

// post retries on 429, 5xx and transport errors with exponential backoff.
func (g *GeminiProvider) post(ctx context.Context, url string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = g.InitialBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0

	// One initial attempt plus MaxRetries retries.
	tries := g.MaxRetries + 1
	if tries < 1 {
		tries = 1
	}

	operation := func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-goog-api-key", g.APIKey)

		resp, err := g.Client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			return nil, fmt.Errorf("gemini request failed: %w", err)
		}
		if resp.StatusCode == http.StatusOK {
			return resp, nil
		}

		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		apiErr := &llm.APIError{StatusCode: resp.StatusCode, Body: string(errBody)}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, apiErr
		}
		return nil, backoff.Permanent(apiErr)
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(tries)),
	)
}

func (g *GeminiProvider) GenerateStream(ctx context.Context, history []llm.Message, opts ...llm.Option) iter.Seq2[*llm.Fragment, error] {
	return func(yield func(*llm.Fragment, error) bool) {
		options := llm.ApplyOptions(llm.Options{}, opts...)
		url := g.modelURL(options.Model, "streamGenerateContent") + "?alt=sse"

		resp, err := g.post(ctx, url, g.buildRequest(history, options))
		if err != nil {
			yield(nil, err)
			return
		}
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "" {
				continue
			}

			var chunk geminiResponse
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				yield(nil, fmt.Errorf("decode stream chunk: %w", err))
				return
			}
			fragment, err := toFragment(&chunk)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(fragment, nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield(nil, fmt.Errorf("read stream: %w", err))
		}
	}
}

func toFragment(chunk *geminiResponse) (*llm.Fragment, error) {
	if chunk.Error != nil {
		return nil, &llm.APIError{StatusCode: chunk.Error.Code, Body: chunk.Error.Message}
	}
	fragment := &llm.Fragment{}
	if len(chunk.Candidates) == 0 {
		return fragment, nil
	}
	candidate := chunk.Candidates[0]
	if candidate.Content != nil {
		var text, thought strings.Builder
		for _, part := range candidate.Content.Parts {
			if part.Text == "" {
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

	payload, ok, err := grounding.Parse(candidate.GroundingMetadata)
	if err != nil {
		return nil, err
	}
	if ok {
		fragment.HasGrounding = true
		fragment.Sources = payload.Sources()
	}
	return fragment, nil
}

func (g *GeminiProvider) generate(ctx context.Context, payload geminiRequest, model string) (*geminiResponse, error) {
	resp, err := g.post(ctx, g.modelURL(model, "generateContent"), payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if out.Error != nil {
		return nil, &llm.APIError{StatusCode: out.Error.Code, Body: out.Error.Message}
	}
	if len(out.Candidates) == 0 || out.Candidates[0].Content == nil {
		return nil, llm.ErrEmptyResponse
	}
	return &out, nil
}

func (g *GeminiProvider) Generate(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	options := llm.ApplyOptions(llm.Options{}, opts...)
	out, err := g.generate(ctx, g.buildRequest(history, options), options.Model)
	if err != nil {
		return "", err
	}

	var text strings.Builder
	for _, part := range out.Candidates[0].Content.Parts {
		if !part.Thought {
			text.WriteString(part.Text)
		}
	}
	if text.Len() == 0 {
		return "", llm.ErrEmptyResponse
	}
	return text.String(), nil
}

func (g *GeminiProvider) Speak(ctx context.Context, text string, opts ...llm.Option) (*llm.Audio, error) {
	options := llm.ApplyOptions(llm.Options{Voice: g.Voice}, opts...)
	payload := geminiRequest{
		Contents: []geminiContent{{Role: llm.RoleUser, Parts: []geminiPart{{Text: text}}}},
		GenerationConfig: &geminiGenerationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &geminiSpeechConfig{
				VoiceConfig: geminiVoiceConfig{PrebuiltVoiceConfig: geminiPrebuiltVoice{VoiceName: options.Voice}},
			},
		},
	}

	out, err := g.generate(ctx, payload, options.Model)
	if err != nil {
		return nil, err
	}
	for _, part := range out.Candidates[0].Content.Parts {
		if part.InlineData != nil && len(part.InlineData.Data) > 0 {
			return &llm.Audio{Data: part.InlineData.Data, MIMEType: part.InlineData.MIMEType}, nil
		}
	}
	return nil, llm.ErrEmptyResponse
}
