package llm

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"ai-chat-be/internal/entity"
)

const (
	RoleUser  = "user"
	RoleModel = "model"
)

var ErrEmptyResponse = errors.New("model returned no content")

// Message represents a chat message in a provider-agnostic format
type Message struct {
	Role    string // "user" or "model"
	Content string
}

// Fragment is one streamed chunk of a reply.
type Fragment struct {
	Text    string
	Thought string
	// HasGrounding is set when the chunk carried citation metadata. Sources then
	// holds the filtered list, possibly empty.
	HasGrounding bool
	Sources      []entity.Source
}

// Audio is raw synthesized speech as returned by the API.
type Audio struct {
	Data     []byte
	MIMEType string
}

// Option allows for optional parameters like Model, Thinking, Search, etc.
type Option func(*Options)

type Options struct {
	Model             string // Override default model
	Temperature       *float64
	SystemInstruction string
	Thinking          bool
	Search            bool
	ResponseSchema    *Schema
	Voice             string
}

func WithModel(model string) Option {
	return func(o *Options) {
		o.Model = model
	}
}

func WithTemperature(temp float64) Option {
	return func(o *Options) {
		o.Temperature = &temp
	}
}

func WithSystemInstruction(text string) Option {
	return func(o *Options) {
		o.SystemInstruction = text
	}
}

// WithThinking asks for a dynamic thinking budget with thoughts included in the stream.
func WithThinking(enabled bool) Option {
	return func(o *Options) {
		o.Thinking = enabled
	}
}

// WithSearch enables the search grounding tool.
func WithSearch(enabled bool) Option {
	return func(o *Options) {
		o.Search = enabled
	}
}

// WithResponseSchema constrains the reply to JSON matching schema.
func WithResponseSchema(schema *Schema) Option {
	return func(o *Options) {
		o.ResponseSchema = schema
	}
}

func WithVoice(name string) Option {
	return func(o *Options) {
		o.Voice = name
	}
}

func ApplyOptions(defaults Options, options ...Option) Options {
	o := defaults
	for _, opt := range options {
		opt(&o)
	}
	return o
}

// StreamGenerator opens one streaming generation. The sequence is finite and can be
// ranged over once. Cancelling ctx aborts the underlying request.
type StreamGenerator interface {
	GenerateStream(ctx context.Context, history []Message, options ...Option) iter.Seq2[*Fragment, error]
}

// TextGenerator runs a single non-streamed request and returns the answer text.
// With WithResponseSchema the text is the JSON document.
type TextGenerator interface {
	Generate(ctx context.Context, history []Message, options ...Option) (string, error)
}

type SpeechSynthesizer interface {
	Speak(ctx context.Context, text string, options ...Option) (*Audio, error)
}

// LLMProvider defines the contract for any LLM backend
type LLMProvider interface {
	StreamGenerator
	TextGenerator
	SpeechSynthesizer
}

// APIError is a non-2xx answer from a generation endpoint.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("generation api returned status %d: %s", e.StatusCode, e.Body)
}
