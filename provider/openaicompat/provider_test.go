package openaicompat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nevindra/kertas"
)

func TestBuildBody_PlainMessages(t *testing.T) {
	req := BuildBody([]kertas.ChatMessage{
		kertas.SystemMessage("be terse"),
		kertas.UserMessage("hi"),
	}, "gpt-4o-mini", nil)

	if req.Model != "gpt-4o-mini" {
		t.Errorf("Model = %q", req.Model)
	}
	if len(req.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(req.Messages))
	}
	if req.Messages[0].Role != "system" || req.Messages[0].Content != "be terse" {
		t.Errorf("system message = %+v", req.Messages[0])
	}
	if req.ResponseFormat != nil {
		t.Errorf("ResponseFormat should be nil without a schema")
	}
}

func TestBuildBody_ImagesBecomeDataURIBlocks(t *testing.T) {
	msg := kertas.ChatMessage{
		Role:    "user",
		Content: "what does this page say",
		Images:  []kertas.ImageData{{MimeType: "image/png", Base64: "aGVsbG8="}},
	}
	req := BuildBody([]kertas.ChatMessage{msg}, "gpt-4o", nil)

	blocks, ok := req.Messages[0].Content.([]ContentBlock)
	if !ok {
		t.Fatalf("content is %T, want []ContentBlock", req.Messages[0].Content)
	}
	if len(blocks) != 2 {
		t.Fatalf("blocks = %d, want 2", len(blocks))
	}
	if blocks[1].Type != "image_url" {
		t.Errorf("block type = %q", blocks[1].Type)
	}
	if !strings.HasPrefix(blocks[1].ImageURL.URL, "data:image/png;base64,") {
		t.Errorf("image URL = %q", blocks[1].ImageURL.URL)
	}
}

func TestBuildBody_SchemaSetsResponseFormat(t *testing.T) {
	schema := &kertas.ResponseSchema{
		Name:   "chunks",
		Schema: json.RawMessage(`{"type":"object"}`),
	}
	req := BuildBody([]kertas.ChatMessage{kertas.UserMessage("split")}, "gpt-4o", schema)

	if req.ResponseFormat == nil || req.ResponseFormat.Type != "json_schema" {
		t.Fatalf("ResponseFormat = %+v", req.ResponseFormat)
	}
	if req.ResponseFormat.JSONSchema.Name != "chunks" || !req.ResponseFormat.JSONSchema.Strict {
		t.Errorf("JSONSchema = %+v", req.ResponseFormat.JSONSchema)
	}
}

func TestBuildBody_Options(t *testing.T) {
	req := BuildBody(nil, "m", nil, WithTemperature(0.2), WithMaxTokens(100))
	if req.Temperature == nil || *req.Temperature != 0.2 {
		t.Errorf("Temperature = %v", req.Temperature)
	}
	if req.MaxTokens != 100 {
		t.Errorf("MaxTokens = %d", req.MaxTokens)
	}
}

func TestParseResponse(t *testing.T) {
	resp := ChatResponse{
		Choices: []Choice{{Message: &ChoiceMessage{Content: "out"}}},
		Usage:   &Usage{PromptTokens: 3, CompletionTokens: 4},
	}
	out, err := ParseResponse(resp)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if out.Content != "out" {
		t.Errorf("Content = %q", out.Content)
	}
	if out.Usage.InputTokens != 3 || out.Usage.OutputTokens != 4 {
		t.Errorf("Usage = %+v", out.Usage)
	}
}

func TestParseResponse_NoChoices(t *testing.T) {
	out, err := ParseResponse(ChatResponse{})
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if out.Content != "" {
		t.Errorf("Content = %q, want empty", out.Content)
	}
}

func TestChat_EndToEnd(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		io.WriteString(w, `{"choices":[{"message":{"content":"hello"}}],"usage":{"prompt_tokens":1,"completion_tokens":2}}`)
	}))
	defer srv.Close()

	p := NewProvider("sk-test", "gpt-4o-mini", srv.URL, WithName("openai"))
	resp, err := p.Chat(context.Background(), &kertas.ChatRequest{
		Messages: []kertas.ChatMessage{kertas.UserMessage("hi")},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "hello" {
		t.Errorf("Content = %q", resp.Content)
	}
	if auth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", auth)
	}
}

func TestChat_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusServiceUnavailable)
		io.WriteString(w, "overloaded")
	}))
	defer srv.Close()

	p := NewProvider("", "m", srv.URL)
	_, err := p.Chat(context.Background(), &kertas.ChatRequest{
		Messages: []kertas.ChatMessage{kertas.UserMessage("hi")},
	})
	var he *kertas.ErrHTTP
	if !errors.As(err, &he) {
		t.Fatalf("error = %v, want *ErrHTTP", err)
	}
	if he.Status != 503 || he.RetryAfter != 3*time.Second {
		t.Errorf("ErrHTTP = %+v", he)
	}
}
