package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"ai-chat-be/internal/entity"
	"ai-chat-be/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(url string) *GeminiProvider {
	p := NewGeminiProvider(url, "test-key", "gemini-test")
	p.InitialBackoff = time.Millisecond
	return p
}

func sse(events ...string) string {
	var b strings.Builder
	for _, e := range events {
		fmt.Fprintf(&b, "data: %s\r\n\r\n", e)
	}
	return b.String()
}

func TestGenerateStream(t *testing.T) {
	var captured geminiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-test:streamGenerateContent", r.URL.Path)
		assert.Equal(t, "sse", r.URL.Query().Get("alt"))
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))

		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, sse(
			`{"candidates":[{"content":{"parts":[{"text":"Let me think","thought":true}]}}]}`,
			`{"candidates":[{"content":{"parts":[{"text":"Hi"}]}}]}`,
			`{"candidates":[{"content":{"parts":[{"text":" there"}]},"groundingMetadata":{"groundingChunks":[{"web":{"uri":"https://a","title":"A"}},{"web":{"uri":"https://b"}}]}}]}`,
		))
	}))
	defer server.Close()

	p := newTestProvider(server.URL)
	history := []llm.Message{{Role: llm.RoleUser, Content: "Hello"}}

	var fragments []*llm.Fragment
	for f, err := range p.GenerateStream(context.Background(), history,
		llm.WithThinking(true), llm.WithSearch(true), llm.WithSystemInstruction("plain text")) {
		require.NoError(t, err)
		fragments = append(fragments, f)
	}

	require.Len(t, fragments, 3)
	assert.Equal(t, "Let me think", fragments[0].Thought)
	assert.Empty(t, fragments[0].Text)
	assert.Equal(t, "Hi", fragments[1].Text)
	assert.False(t, fragments[1].HasGrounding)
	assert.True(t, fragments[2].HasGrounding)
	assert.Equal(t, []entity.Source{{URI: "https://a", Title: "A"}}, fragments[2].Sources)

	require.NotNil(t, captured.GenerationConfig)
	require.NotNil(t, captured.GenerationConfig.ThinkingConfig)
	assert.Equal(t, -1, captured.GenerationConfig.ThinkingConfig.ThinkingBudget)
	assert.True(t, captured.GenerationConfig.ThinkingConfig.IncludeThoughts)
	require.Len(t, captured.Tools, 1)
	assert.NotNil(t, captured.Tools[0].GoogleSearch)
	require.NotNil(t, captured.SystemInstruction)
	assert.Equal(t, "plain text", captured.SystemInstruction.Parts[0].Text)
}

func TestGenerateStreamRetriesOnRateLimit(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = io.WriteString(w, sse(`{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`))
	}))
	defer server.Close()

	var text string
	for f, err := range newTestProvider(server.URL).GenerateStream(context.Background(), nil) {
		require.NoError(t, err)
		text += f.Text
	}
	assert.Equal(t, "ok", text)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestGenerateStreamStopsAfterMaxRetries(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	p := newTestProvider(server.URL)
	p.MaxRetries = 2

	var gotErr error
	for _, err := range p.GenerateStream(context.Background(), nil) {
		gotErr = err
	}
	var apiErr *llm.APIError
	require.ErrorAs(t, gotErr, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls), "one attempt plus two retries")
}

func TestGenerateStreamClientErrorIsPermanent(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad key", http.StatusForbidden)
	}))
	defer server.Close()

	var gotErr error
	for _, err := range newTestProvider(server.URL).GenerateStream(context.Background(), nil) {
		gotErr = err
	}
	var apiErr *llm.APIError
	require.ErrorAs(t, gotErr, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGenerateStreamMalformedChunk(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, sse(`{"candidates":[{"content":{"parts":[{"text":"a"}]}}]}`, `{not json`))
	}))
	defer server.Close()

	var errs []error
	for _, err := range newTestProvider(server.URL).GenerateStream(context.Background(), nil) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "decode stream chunk")
}

func TestGenerateWithSchema(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, ":generateContent"))
		var req geminiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotNil(t, req.GenerationConfig)
		assert.Equal(t, "application/json", req.GenerationConfig.ResponseMIMEType)
		assert.Equal(t, llm.TypeObject, req.GenerationConfig.ResponseSchema.Type)
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"{\"replies\":[\"a\"]}"}]}}]}`)
	}))
	defer server.Close()

	out, err := newTestProvider(server.URL).Generate(context.Background(),
		[]llm.Message{{Role: llm.RoleUser, Content: "x"}},
		llm.WithResponseSchema(&llm.Schema{Type: llm.TypeObject}))
	require.NoError(t, err)
	assert.Equal(t, `{"replies":["a"]}`, out)
}

func TestSpeak(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req geminiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"AUDIO"}, req.GenerationConfig.ResponseModalities)
		assert.Equal(t, "Kore", req.GenerationConfig.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName)
		// "AQID" is base64 for 0x01 0x02 0x03
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"inlineData":{"mimeType":"audio/L16;rate=24000","data":"AQID"}}]}}]}`)
	}))
	defer server.Close()

	audio, err := newTestProvider(server.URL).Speak(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, audio.Data)
	assert.Equal(t, "audio/L16;rate=24000", audio.MIMEType)
}
