// Package ingest consumes one streamed generation and folds it into a final reply.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"ai-chat-be/internal/entity"
	"ai-chat-be/pkg/llm"
)

var ErrStreamStalled = errors.New("stream stalled: no fragment within idle timeout")

type Options struct {
	Model             string
	ThinkingEnabled   bool
	SearchEnabled     bool
	SystemInstruction string
}

// Result is the folded outcome of a completed stream.
type Result struct {
	Content               string
	ThinkingProcess       *string
	Sources               []entity.Source
	GeneratedWithThinking bool
	GeneratedWithSearch   bool
	Fragments             int
}

type Engine struct {
	generator   llm.StreamGenerator
	idleTimeout time.Duration
}

// NewEngine builds an engine. idleTimeout <= 0 disables stall detection.
func NewEngine(generator llm.StreamGenerator, idleTimeout time.Duration) *Engine {
	return &Engine{generator: generator, idleTimeout: idleTimeout}
}

// Run streams one reply. onContent receives the accumulated answer after each
// fragment that added text, in arrival order, on the calling goroutine.
func (e *Engine) Run(ctx context.Context, history []llm.Message, opts Options, onContent func(string)) (*Result, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		stallMu sync.Mutex
		stalled bool
		timer   *time.Timer
	)
	if e.idleTimeout > 0 {
		timer = time.AfterFunc(e.idleTimeout, func() {
			stallMu.Lock()
			stalled = true
			stallMu.Unlock()
			cancel()
		})
		defer timer.Stop()
	}
	wasStalled := func() bool {
		stallMu.Lock()
		defer stallMu.Unlock()
		return stalled
	}

	genOpts := []llm.Option{
		llm.WithThinking(opts.ThinkingEnabled),
		llm.WithSearch(opts.SearchEnabled),
	}
	if opts.Model != "" {
		genOpts = append(genOpts, llm.WithModel(opts.Model))
	}
	if opts.SystemInstruction != "" {
		genOpts = append(genOpts, llm.WithSystemInstruction(opts.SystemInstruction))
	}

	var (
		answer  strings.Builder
		thought strings.Builder
		sources = []entity.Source{}
		count   int
	)

	for fragment, err := range e.generator.GenerateStream(streamCtx, history, genOpts...) {
		if err != nil {
			if wasStalled() {
				return nil, ErrStreamStalled
			}
			return nil, fmt.Errorf("stream: %w", err)
		}
		if timer != nil {
			timer.Reset(e.idleTimeout)
		}
		if fragment == nil {
			continue
		}
		count++

		if fragment.Text != "" {
			answer.WriteString(fragment.Text)
			if onContent != nil {
				onContent(answer.String())
			}
		}
		if fragment.Thought != "" {
			thought.WriteString(fragment.Thought)
		}
		if fragment.HasGrounding {
			sources = append([]entity.Source{}, fragment.Sources...)
		}
	}

	if wasStalled() {
		return nil, ErrStreamStalled
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &Result{
		Content:             answer.String(),
		Sources:             sources,
		GeneratedWithSearch: opts.SearchEnabled,
		Fragments:           count,
	}
	if tp := strings.TrimSpace(thought.String()); tp != "" {
		result.ThinkingProcess = &tp
		result.GeneratedWithThinking = true
	}
	return result, nil
}
