package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sage "github.com/vheim/sage"
)

func chatServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestChat(t *testing.T) {
	var gotBody map[string]any
	srv := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, ":generateContent") {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatal(err)
		}
		w.Write([]byte(`{
			"candidates": [{"content": {"parts": [{"text": "Roll "}, {"text": "a d20."}], "role": "model"}}],
			"usageMetadata": {"promptTokenCount": 12, "candidatesTokenCount": 5}
		}`))
	})

	g := New("key", "gemini-2.5-flash", WithBaseURL(srv.URL))
	resp, err := g.Chat(context.Background(), sage.ChatRequest{Messages: []sage.ChatMessage{
		sage.SystemMessage("You answer rules questions."),
		sage.UserMessage("How do attacks work?"),
	}})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "Roll a d20." {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.Usage.InputTokens != 12 || resp.Usage.OutputTokens != 5 {
		t.Errorf("usage = %+v", resp.Usage)
	}

	if _, ok := gotBody["systemInstruction"]; !ok {
		t.Error("system message not lifted into systemInstruction")
	}
	contents := gotBody["contents"].([]any)
	if len(contents) != 1 {
		t.Fatalf("contents = %d entries, want 1 (system excluded)", len(contents))
	}
}

func TestChatHTTPError(t *testing.T) {
	srv := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": {"details": [
			{"@type": "type.googleapis.com/google.rpc.RetryInfo", "retryDelay": "7s"}
		]}}`))
	})

	g := New("key", "gemini-2.5-flash", WithBaseURL(srv.URL))
	_, err := g.Chat(context.Background(), sage.ChatRequest{Messages: []sage.ChatMessage{sage.UserMessage("q")}})

	var httpErr *sage.ErrHTTP
	if !errors.As(err, &httpErr) {
		t.Fatalf("err = %v, want ErrHTTP", err)
	}
	if httpErr.Status != http.StatusTooManyRequests {
		t.Errorf("status = %d", httpErr.Status)
	}
	if httpErr.RetryAfter != 7*time.Second {
		t.Errorf("retryAfter = %v, want 7s from RetryInfo detail", httpErr.RetryAfter)
	}
}

func TestChatStream(t *testing.T) {
	srv := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.RawQuery, "alt=sse") {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(`data: {"candidates": [{"content": {"parts": [{"text": "Saving "}]}}]}

data: {"candidates": [{"content": {"parts": [{"text": "throws."}]}}], "usageMetadata": {"promptTokenCount": 3, "candidatesTokenCount": 2}}

`))
	})

	g := New("key", "gemini-2.5-flash", WithBaseURL(srv.URL))
	ch := make(chan string, 8)
	resp, err := g.ChatStream(context.Background(), sage.ChatRequest{Messages: []sage.ChatMessage{sage.UserMessage("q")}}, ch)
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}

	var deltas []string
	for d := range ch {
		deltas = append(deltas, d)
	}
	if got := strings.Join(deltas, ""); got != "Saving throws." {
		t.Errorf("deltas = %q", got)
	}
	if resp.Content != "Saving throws." {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.Usage.OutputTokens != 2 {
		t.Errorf("usage = %+v", resp.Usage)
	}
}

func TestChatStreamReassemblesSplitJSON(t *testing.T) {
	// One JSON value spread across an SSE data line and a bare continuation.
	srv := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("data: {\"candidates\": [{\"content\": {\"parts\": [\n{\"text\": \"Whole.\"}]}}]}\n\n"))
	})

	g := New("key", "gemini-2.5-flash", WithBaseURL(srv.URL))
	ch := make(chan string, 8)
	resp, err := g.ChatStream(context.Background(), sage.ChatRequest{Messages: []sage.ChatMessage{sage.UserMessage("q")}}, ch)
	if err != nil {
		t.Fatal(err)
	}
	for range ch {
	}
	if resp.Content != "Whole." {
		t.Errorf("content = %q", resp.Content)
	}
}

func TestChatStreamClosesChannelOnError(t *testing.T) {
	srv := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	g := New("key", "gemini-2.5-flash", WithBaseURL(srv.URL))
	ch := make(chan string, 8)
	_, err := g.ChatStream(context.Background(), sage.ChatRequest{Messages: []sage.ChatMessage{sage.UserMessage("q")}}, ch)
	if err == nil {
		t.Fatal("want error")
	}
	if _, open := <-ch; open {
		t.Error("channel left open after error")
	}
}

func TestEmbed(t *testing.T) {
	var calls int
	srv := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		var body struct {
			OutputDimensionality int `json:"outputDimensionality"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if body.OutputDimensionality != 3 {
			t.Errorf("outputDimensionality = %d, want 3", body.OutputDimensionality)
		}
		w.Write([]byte(`{"embedding": {"values": [0.1, 0.2, 0.3]}}`))
	})

	e := NewEmbedding("key", "gemini-embedding-001", 3, WithEmbeddingBaseURL(srv.URL))
	vecs, err := e.Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want one per text", calls)
	}
	if len(vecs) != 2 || len(vecs[0]) != 3 {
		t.Fatalf("vecs = %v", vecs)
	}
	if vecs[0][1] != float32(0.2) {
		t.Errorf("vecs[0] = %v", vecs[0])
	}
	if e.Dimensions() != 3 {
		t.Errorf("Dimensions = %d", e.Dimensions())
	}
}

func TestEmbedHTTPError(t *testing.T) {
	srv := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	e := NewEmbedding("key", "gemini-embedding-001", 3, WithEmbeddingBaseURL(srv.URL))
	_, err := e.Embed(context.Background(), []string{"text"})

	var httpErr *sage.ErrHTTP
	if !errors.As(err, &httpErr) {
		t.Fatalf("err = %v, want ErrHTTP", err)
	}
	if httpErr.RetryAfter != 30*time.Second {
		t.Errorf("retryAfter = %v, want 30s from header", httpErr.RetryAfter)
	}
}

func TestIsCompleteJSON(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{`{"a": 1}`, true},
		{`{"a": {"b": [1, 2]}}`, true},
		{`{"a": 1`, false},
		{`{"a": "unclosed`, false},
		{`{"a": "brace } in string"}`, true},
		{`{"a": "escaped \" quote"}`, true},
		{``, false},
		{`   `, false},
	}
	for _, tc := range cases {
		if got := isCompleteJSON(tc.in); got != tc.want {
			t.Errorf("isCompleteJSON(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestMapRole(t *testing.T) {
	if mapRole("assistant") != "model" {
		t.Error("assistant should map to model")
	}
	if mapRole("user") != "user" {
		t.Error("user should pass through")
	}
}
