// Package grounding normalises citation metadata from generation responses.
//
// The API has shipped two shapes for the same field. A response carries either
// "groundingChunks" (current) or "groundingAttributions" (legacy). Parse picks the
// variant once and callers only ever see []entity.Source.
package grounding

import (
	"encoding/json"
	"fmt"

	"ai-chat-be/internal/entity"
)

type Web struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

type Chunk struct {
	Web *Web `json:"web,omitempty"`
}

type Attribution struct {
	Web *Web `json:"web,omitempty"`
}

// Payload is one of ChunksPayload or AttributionsPayload.
type Payload interface {
	Sources() []entity.Source
}

type ChunksPayload struct {
	Chunks []Chunk
}

type AttributionsPayload struct {
	Attributions []Attribution
}

func (p ChunksPayload) Sources() []entity.Source {
	webs := make([]*Web, len(p.Chunks))
	for i, c := range p.Chunks {
		webs[i] = c.Web
	}
	return filter(webs)
}

func (p AttributionsPayload) Sources() []entity.Source {
	webs := make([]*Web, len(p.Attributions))
	for i, a := range p.Attributions {
		webs[i] = a.Web
	}
	return filter(webs)
}

// filter keeps entries with both URI and title, in order. The result is never nil.
func filter(webs []*Web) []entity.Source {
	out := make([]entity.Source, 0, len(webs))
	for _, w := range webs {
		if w == nil || w.URI == "" || w.Title == "" {
			continue
		}
		out = append(out, entity.Source{URI: w.URI, Title: w.Title})
	}
	return out
}

type rawMetadata struct {
	GroundingChunks       json.RawMessage `json:"groundingChunks"`
	GroundingAttributions json.RawMessage `json:"groundingAttributions"`
}

// Parse resolves raw groundingMetadata JSON into a payload variant. It returns
// ok=false when neither field holds an array. Chunks win whenever they are an array,
// even an empty one.
func Parse(raw json.RawMessage) (Payload, bool, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, false, nil
	}
	var meta rawMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, false, fmt.Errorf("grounding metadata: %w", err)
	}

	if isArray(meta.GroundingChunks) {
		var chunks []Chunk
		if err := json.Unmarshal(meta.GroundingChunks, &chunks); err != nil {
			return nil, false, fmt.Errorf("grounding chunks: %w", err)
		}
		return ChunksPayload{Chunks: chunks}, true, nil
	}
	if isArray(meta.GroundingAttributions) {
		var attributions []Attribution
		if err := json.Unmarshal(meta.GroundingAttributions, &attributions); err != nil {
			return nil, false, fmt.Errorf("grounding attributions: %w", err)
		}
		return AttributionsPayload{Attributions: attributions}, true, nil
	}
	return nil, false, nil
}

func isArray(raw json.RawMessage) bool {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		case '[':
			return true
		default:
			return false
		}
	}
	return false
}
