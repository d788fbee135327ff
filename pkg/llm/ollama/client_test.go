package ollama

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"reasoner/pkg/config"
	"reasoner/pkg/llm"
)

func newTestServer(t *testing.T, status int, body string, gotReq *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if gotReq != nil {
			b, _ := io.ReadAll(r.Body)
			*gotReq = string(b)
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestStreamChat_NDJSON(t *testing.T) {
	body := strings.Join([]string{
		`{"model":"m","message":{"role":"assistant","content":"","thinking":"two and two"},"done":false}`,
		`{"model":"m","message":{"role":"assistant","content":"costs \$4"},"done":false}`,
		`{"model":"m","message":{"role":"assistant","content":""},"done":true,"done_reason":"stop","prompt_eval_count":5,"eval_count":2}`,
	}, "\n") + "\n"

	var req string
	srv := newTestServer(t, http.StatusOK, body, &req)

	c, err := NewOllamaClient("m", srv.URL, map[string]any{"temperature": 0.1})
	if err != nil {
		t.Fatalf("NewOllamaClient: %v", err)
	}
	ch, err := c.StreamChat(context.Background(), []llm.Message{llm.NewTextMessage(llm.RoleUser, "What is 2+2?")})
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}
	res, err := llm.Collect(context.Background(), ch)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if res.Text != "costs $4" {
		t.Fatalf("Text = %q", res.Text)
	}
	if res.Thought != "two and two" || res.FinishReason != "stop" || res.Usage.TotalTokens != 7 {
		t.Fatalf("result = %+v", res)
	}
	if !strings.Contains(req, `"What is 2+2?"`) || !strings.Contains(req, `"model":"m"`) {
		t.Fatalf("request body = %s", req)
	}
}

func TestStreamChat_ServerError(t *testing.T) {
	srv := newTestServer(t, http.StatusServiceUnavailable, `{"error":"server busy, please try again"}`, nil)
	c, _ := NewOllamaClient("m", srv.URL, nil)

	_, err := c.StreamChat(context.Background(), nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !c.IsTransientError(err) {
		t.Fatalf("expected transient, got %v", err)
	}
}

func TestIsTransientError(t *testing.T) {
	c := &OllamaClient{}
	if !c.IsTransientError(errors.New("dial tcp: connection refused")) {
		t.Error("connection refused should be transient")
	}
	if c.IsTransientError(errors.New("model not found")) {
		t.Error("model not found is permanent")
	}
}

func TestConvertMessages(t *testing.T) {
	c := &OllamaClient{}
	msgs := c.convertMessages([]llm.Message{{
		Role: llm.RoleUser,
		Content: []llm.ContentBlock{
			llm.NewTextBlock("describe "),
			llm.NewTextBlock("this"),
			llm.NewImageBlock([]byte{1, 2, 3}, "image/png"),
		},
	}})
	if len(msgs) != 1 || msgs[0].Content != "describe this" || len(msgs[0].Images) != 1 {
		t.Fatalf("msgs = %+v", msgs)
	}
}

func TestFactory_DefaultURL(t *testing.T) {
	sys := config.DefaultSystemConfig()
	clients, err := (&OllamaFactory{}).Create(llm.ProviderGroupConfig{Type: "ollama", Models: []string{"a", "b"}}, sys)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(clients) != 2 {
		t.Fatalf("got %d clients", len(clients))
	}
}
