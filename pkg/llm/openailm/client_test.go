package openailm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"reasoner/pkg/llm"
)

func sse(events ...string) string {
	var sb strings.Builder
	for _, e := range events {
		var head struct {
			Type string `json:"type"`
		}
		_ = json.UnmarshalFromString(e, &head)
		fmt.Fprintf(&sb, "event: %s\ndata: %s\n\n", head.Type, e)
	}
	return sb.String()
}

func newSSEServer(t *testing.T, status int, body string, gotBody *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/responses") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if gotBody != nil {
			b, _ := io.ReadAll(r.Body)
			*gotBody = string(b)
		}
		if status != http.StatusOK {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			io.WriteString(w, body)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestStreamChat_TextDeltas(t *testing.T) {
	body := sse(
		`{"type":"response.output_text.delta","sequence_number":1,"item_id":"msg_1","output_index":0,"content_index":0,"delta":"The answer ","logprobs":[]}`,
		`{"type":"response.output_text.delta","sequence_number":2,"item_id":"msg_1","output_index":0,"content_index":0,"delta":"is 4","logprobs":[]}`,
		`{"type":"response.completed","sequence_number":3,"response":{"id":"resp_1","object":"response","created_at":0,"model":"gpt-test","status":"completed","output":[],"usage":{"input_tokens":9,"output_tokens":3,"total_tokens":12,"input_tokens_details":{"cached_tokens":0},"output_tokens_details":{"reasoning_tokens":0}}}}`,
	)
	var req string
	srv := newSSEServer(t, http.StatusOK, body, &req)

	c, err := NewClient("openai", "sk-test", "gpt-test", srv.URL, map[string]any{"temperature": 0.2})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	ch, err := c.StreamChat(context.Background(), []llm.Message{llm.NewTextMessage(llm.RoleUser, "What is 2+2?")})
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}
	res, err := llm.Collect(context.Background(), ch)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if res.Text != "The answer is 4" || !res.IsText() {
		t.Fatalf("result = %+v", res)
	}
	if res.Usage == nil || res.Usage.TotalTokens != 12 || res.FinishReason != llm.StopReasonStop {
		t.Fatalf("result = %+v", res)
	}
	for _, want := range []string{`"model":"gpt-test"`, `"temperature":0.2`, `What is 2+2?`, `"stream":true`} {
		if !strings.Contains(req, want) {
			t.Fatalf("request missing %s: %s", want, req)
		}
	}
}

func TestStreamChat_FunctionCall(t *testing.T) {
	body := sse(
		`{"type":"response.output_item.added","sequence_number":1,"output_index":0,"item":{"type":"function_call","id":"fc_1","call_id":"call_1","name":"python","arguments":"","status":"in_progress"}}`,
		`{"type":"response.function_call_arguments.delta","sequence_number":2,"item_id":"fc_1","output_index":0,"delta":"{\"code\":"}`,
		`{"type":"response.function_call_arguments.delta","sequence_number":3,"item_id":"fc_1","output_index":0,"delta":"\"1+1\"}"}`,
		`{"type":"response.completed","sequence_number":4,"response":{"id":"resp_2","object":"response","created_at":0,"model":"gpt-test","status":"completed","output":[]}}`,
	)
	srv := newSSEServer(t, http.StatusOK, body, nil)
	c, _ := NewClient("openai", "sk-test", "gpt-test", srv.URL, nil)

	ch, err := c.StreamChat(context.Background(), nil)
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}
	res, err := llm.Collect(context.Background(), ch)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if res.IsText() || res.FinishReason != llm.StopReasonToolCall {
		t.Fatalf("result = %+v", res)
	}
	fc := res.FunctionCalls[0]
	if fc.Name != "python" || fc.Function.Arguments != `{"code":"1+1"}` {
		t.Fatalf("call = %+v", fc)
	}
}

func TestStreamChat_HTTPError(t *testing.T) {
	srv := newSSEServer(t, http.StatusServiceUnavailable, `{"error":{"message":"overloaded","type":"server_error"}}`, nil)
	c, _ := NewClient("openai", "sk-test", "gpt-test", srv.URL, nil)

	_, err := c.StreamChat(context.Background(), nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !c.IsTransientError(err) {
		t.Fatalf("503 should be transient: %v", err)
	}
}

func TestStreamChat_BadRequestIsPermanent(t *testing.T) {
	srv := newSSEServer(t, http.StatusBadRequest, `{"error":{"message":"bad model","type":"invalid_request_error"}}`, nil)
	c, _ := NewClient("openai", "sk-test", "nope", srv.URL, nil)

	_, err := c.StreamChat(context.Background(), nil)
	if err == nil || c.IsTransientError(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}
}

func TestIsTransientError_Network(t *testing.T) {
	c := &Client{}
	if !c.IsTransientError(errors.New("dial tcp 127.0.0.1:1: connection refused")) {
		t.Error("connection refused should be transient")
	}
	if c.IsTransientError(nil) {
		t.Error("nil is not transient")
	}
}

func TestLegacyThinking(t *testing.T) {
	if got := legacyThinking(`{"reasoning_content":"step 1"}`); got != "step 1" {
		t.Fatalf("got %q", got)
	}
	if got := legacyThinking(`{"type":"response.output_text.delta"}`); got != "" {
		t.Fatalf("got %q", got)
	}
}

func TestImageURL(t *testing.T) {
	block := llm.NewImageBlock([]byte("abc"), "image/png")
	if got := imageURL(block.Source); got != "data:image/png;base64,YWJj" {
		t.Fatalf("got %q", got)
	}
	if got := imageURL(llm.NewImageBlockFromURL("https://x/y.png", "image/png").Source); got != "https://x/y.png" {
		t.Fatalf("got %q", got)
	}
}
