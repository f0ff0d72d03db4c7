package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nevindra/kertas"
)

// withTestServer swaps baseURL for a test server for the duration of fn.
func withTestServer(t *testing.T, handler http.HandlerFunc, fn func()) {
	t.Helper()
	srv := httptest.NewServer(handler)
	defer srv.Close()
	old := baseURL
	baseURL = srv.URL
	defer func() { baseURL = old }()
	fn()
}

func chatBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		t.Fatalf("read request body: %v", err)
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("unmarshal request body: %v", err)
	}
	return body
}

func textResponse(text string) string {
	return `{
		"candidates": [{"content": {"parts": [{"text": ` + mustJSON(text) + `}], "role": "model"}}],
		"usageMetadata": {"promptTokenCount": 10, "candidatesTokenCount": 5}
	}`
}

func mustJSON(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func TestChat_ParsesContentAndUsage(t *testing.T) {
	withTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, textResponse("hello"))
	}, func() {
		g := New("key", "gemini-2.5-flash")
		resp, err := g.Chat(context.Background(), &kertas.ChatRequest{
			Messages: []kertas.ChatMessage{kertas.UserMessage("hi")},
		})
		if err != nil {
			t.Fatalf("Chat: %v", err)
		}
		if resp.Content != "hello" {
			t.Errorf("Content = %q, want %q", resp.Content, "hello")
		}
		if resp.Usage.InputTokens != 10 || resp.Usage.OutputTokens != 5 {
			t.Errorf("Usage = %+v, want 10/5", resp.Usage)
		}
	})
}

func TestChat_SystemMessageBecomesSystemInstruction(t *testing.T) {
	var got map[string]any
	withTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		got = chatBody(t, r)
		io.WriteString(w, textResponse("ok"))
	}, func() {
		g := New("key", "gemini-2.5-flash")
		_, err := g.Chat(context.Background(), &kertas.ChatRequest{
			Messages: []kertas.ChatMessage{
				kertas.SystemMessage("you are a chunker"),
				kertas.UserMessage("split this"),
			},
		})
		if err != nil {
			t.Fatalf("Chat: %v", err)
		}
	})

	si, ok := got["systemInstruction"].(map[string]any)
	if !ok {
		t.Fatalf("systemInstruction missing: %v", got)
	}
	parts := si["parts"].([]any)
	if text := parts[0].(map[string]any)["text"]; text != "you are a chunker" {
		t.Errorf("systemInstruction text = %v", text)
	}

	contents := got["contents"].([]any)
	if len(contents) != 1 {
		t.Fatalf("contents = %d entries, want 1 (system message excluded)", len(contents))
	}
	if role := contents[0].(map[string]any)["role"]; role != "user" {
		t.Errorf("role = %v, want user", role)
	}
}

func TestChat_ImagePartsInlineData(t *testing.T) {
	var got map[string]any
	withTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		got = chatBody(t, r)
		io.WriteString(w, textResponse("ok"))
	}, func() {
		g := New("key", "gemini-2.5-flash")
		msg := kertas.ChatMessage{
			Role:    "user",
			Content: "recognize this page",
			Images:  []kertas.ImageData{{MimeType: "image/png", Base64: "aGVsbG8="}},
		}
		_, err := g.Chat(context.Background(), &kertas.ChatRequest{Messages: []kertas.ChatMessage{msg}})
		if err != nil {
			t.Fatalf("Chat: %v", err)
		}
	})

	contents := got["contents"].([]any)
	parts := contents[0].(map[string]any)["parts"].([]any)
	if len(parts) != 2 {
		t.Fatalf("parts = %d, want 2 (text + inlineData)", len(parts))
	}
	inline, ok := parts[1].(map[string]any)["inlineData"].(map[string]any)
	if !ok {
		t.Fatalf("second part is not inlineData: %v", parts[1])
	}
	if inline["mimeType"] != "image/png" || inline["data"] != "aGVsbG8=" {
		t.Errorf("inlineData = %v", inline)
	}
}

func TestChat_ResponseSchemaSetsGenerationConfig(t *testing.T) {
	var got map[string]any
	withTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		got = chatBody(t, r)
		io.WriteString(w, textResponse(`{"parent_chunks":[]}`))
	}, func() {
		g := New("key", "gemini-2.5-flash")
		schema := &kertas.ResponseSchema{
			Name:   "chunks",
			Schema: json.RawMessage(`{"type":"object","properties":{"parent_chunks":{"type":"array"}}}`),
		}
		_, err := g.Chat(context.Background(), &kertas.ChatRequest{
			Messages:       []kertas.ChatMessage{kertas.UserMessage("split")},
			ResponseSchema: schema,
		})
		if err != nil {
			t.Fatalf("Chat: %v", err)
		}
	})

	gc := got["generationConfig"].(map[string]any)
	if gc["responseMimeType"] != "application/json" {
		t.Errorf("responseMimeType = %v, want application/json", gc["responseMimeType"])
	}
	if _, ok := gc["responseSchema"].(map[string]any); !ok {
		t.Errorf("responseSchema missing from generationConfig: %v", gc)
	}
}

func TestChat_EmptyMessageGetsPlaceholderPart(t *testing.T) {
	var got map[string]any
	withTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		got = chatBody(t, r)
		io.WriteString(w, textResponse("ok"))
	}, func() {
		g := New("key", "gemini-2.5-flash")
		_, err := g.Chat(context.Background(), &kertas.ChatRequest{
			Messages: []kertas.ChatMessage{{Role: "user"}},
		})
		if err != nil {
			t.Fatalf("Chat: %v", err)
		}
	})

	contents := got["contents"].([]any)
	parts := contents[0].(map[string]any)["parts"].([]any)
	if len(parts) != 1 {
		t.Fatalf("parts = %d, want 1", len(parts))
	}
}

func TestChat_HTTPErrorWithRetryAfterHeader(t *testing.T) {
	withTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"error":{"message":"quota"}}`)
	}, func() {
		g := New("key", "gemini-2.5-flash")
		_, err := g.Chat(context.Background(), &kertas.ChatRequest{
			Messages: []kertas.ChatMessage{kertas.UserMessage("hi")},
		})
		var he *kertas.ErrHTTP
		if !errors.As(err, &he) {
			t.Fatalf("error = %v, want *ErrHTTP", err)
		}
		if he.Status != 429 {
			t.Errorf("Status = %d, want 429", he.Status)
		}
		if he.RetryAfter != 7*time.Second {
			t.Errorf("RetryAfter = %v, want 7s", he.RetryAfter)
		}
	})
}

func TestParseRetryInfo(t *testing.T) {
	body := `{"error":{"details":[
		{"@type":"type.googleapis.com/google.rpc.ErrorInfo","reason":"RATE_LIMIT_EXCEEDED"},
		{"@type":"type.googleapis.com/google.rpc.RetryInfo","retryDelay":"14s"}
	]}}`
	if d := parseRetryInfo(body); d != 14*time.Second {
		t.Errorf("parseRetryInfo = %v, want 14s", d)
	}
	if d := parseRetryInfo("not json"); d != 0 {
		t.Errorf("parseRetryInfo(garbage) = %v, want 0", d)
	}
	if d := parseRetryInfo(`{"error":{"details":[]}}`); d != 0 {
		t.Errorf("parseRetryInfo(no detail) = %v, want 0", d)
	}
}

func TestEmbed_RequestAndParse(t *testing.T) {
	var bodies []map[string]any
	withTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		bodies = append(bodies, chatBody(t, r))
		io.WriteString(w, `{"embedding":{"values":[0.1,0.2,0.3]}}`)
	}, func() {
		e := NewEmbedding("key", "gemini-embedding-001", 3)
		vecs, err := e.Embed(context.Background(), []string{"alpha", "beta"})
		if err != nil {
			t.Fatalf("Embed: %v", err)
		}
		if len(vecs) != 2 {
			t.Fatalf("vectors = %d, want 2", len(vecs))
		}
		if len(vecs[0]) != 3 || vecs[0][1] != 0.2 {
			t.Errorf("vector = %v", vecs[0])
		}
	})

	if len(bodies) != 2 {
		t.Fatalf("requests = %d, want 2 (one per text)", len(bodies))
	}
	if dims := bodies[0]["outputDimensionality"]; dims != float64(3) {
		t.Errorf("outputDimensionality = %v, want 3", dims)
	}
}

func TestEmbed_MissingValuesIsError(t *testing.T) {
	withTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{}`)
	}, func() {
		e := NewEmbedding("key", "gemini-embedding-001", 3)
		_, err := e.Embed(context.Background(), []string{"alpha"})
		var le *kertas.ErrLLM
		if !errors.As(err, &le) {
			t.Fatalf("error = %v, want *ErrLLM", err)
		}
	})
}

func TestMapRole(t *testing.T) {
	if got := mapRole("assistant"); got != "model" {
		t.Errorf("mapRole(assistant) = %q, want model", got)
	}
	if got := mapRole("user"); got != "user" {
		t.Errorf("mapRole(user) = %q, want user", got)
	}
}
