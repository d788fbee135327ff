package ollama

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"reasoner/pkg/llm"

	jsoniter "github.com/json-iterator/go"
	"github.com/ollama/ollama/api"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// OllamaClient Ollama API client
type OllamaClient struct {
	client       *api.Client
	model        string
	options      map[string]any
	debugEnabled bool
}

// SetDebug implements llm.DebugSetter
func (o *OllamaClient) SetDebug(enabled bool) {
	o.debugEnabled = enabled
}

// NewOllamaClient creates an Ollama client for one model.
func NewOllamaClient(model string, baseURL string, options map[string]any) (*OllamaClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("ollama: empty base URL")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	// 本地模型載入可能很久，不設整體 timeout，由 ctx 控制
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	httpClient := &http.Client{
		Transport: &escapeFixingTransport{next: transport},
	}

	slog.Info("Ollama client initialized", "model", model, "base_url", baseURL)

	return &OllamaClient{
		client:  api.NewClient(u, httpClient),
		model:   model,
		options: options,
	}, nil
}

func (o *OllamaClient) Provider() string {
	return "ollama"
}

// StreamChat implements llm.LLMClient.StreamChat
func (o *OllamaClient) StreamChat(ctx context.Context, messages []llm.Message) (<-chan llm.StreamChunk, error) {
	apiMessages := o.convertMessages(messages)

	chunkCh := make(chan llm.StreamChunk, 100)
	startResultCh := make(chan error, 1)

	go func() {
		defer close(chunkCh)

		dump := llm.NewChunkDump(ctx, o.Provider(), o.debugEnabled)
		defer dump.Close()

		send := func(c llm.StreamChunk) error {
			select {
			case chunkCh <- c:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		stream := true
		req := &api.ChatRequest{
			Model:    o.model,
			Messages: apiMessages,
			Options:  o.options,
			Stream:   &stream,
		}

		started := false
		thoughts := 0
		chunkIdx := 0

		err := o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
			chunkIdx++
			dump.JSON(resp)

			if !started {
				started = true
				startResultCh <- nil
			}

			if resp.Message.Thinking != "" {
				thoughts++
				if err := send(llm.NewThinkingChunk(resp.Message.Thinking)); err != nil {
					return err
				}
			}
			if resp.Message.Content != "" {
				if err := send(llm.NewTextChunk(resp.Message.Content)); err != nil {
					return err
				}
			}
			if len(resp.Message.ToolCalls) > 0 {
				toolCalls := make([]llm.ToolCall, 0, len(resp.Message.ToolCalls))
				for _, tc := range resp.Message.ToolCalls {
					argsB, err := json.Marshal(tc.Function.Arguments)
					if err != nil {
						argsB = []byte("{}")
					}
					toolCalls = append(toolCalls, llm.ToolCall{
						ID:   tc.ID,
						Name: tc.Function.Name,
						Function: llm.FunctionCall{
							Name:      tc.Function.Name,
							Arguments: string(argsB),
						},
					})
				}
				if err := send(llm.StreamChunk{ToolCalls: toolCalls}); err != nil {
					return err
				}
			}

			if resp.Done {
				usage := &llm.LLMUsage{
					PromptTokens:     resp.PromptEvalCount,
					CompletionTokens: resp.EvalCount,
					TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
					ThoughtsTokens:   thoughts,
					StopReason:       resp.DoneReason,
				}
				if resp.DoneReason == llm.StopReasonLength {
					slog.WarnContext(ctx, "Response truncated due to length", "provider", "ollama")
				}
				llm.LogUsage(o.model, usage)
				return send(llm.NewFinalChunk(resp.DoneReason, usage))
			}
			return nil
		})

		if err != nil {
			slog.WarnContext(ctx, "Stream error", "provider", "ollama", "model", o.model, "chunks", chunkIdx, "error", err)
			if !started {
				startResultCh <- err
				return
			}
			if ctx.Err() == nil {
				send(llm.NewErrorChunk(fmt.Sprintf("Stream interrupted: %v", err), err, true))
			}
			return
		}
		if !started {
			startResultCh <- nil
		}
	}()

	select {
	case err := <-startResultCh:
		if err != nil {
			return nil, err
		}
		return chunkCh, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// convertMessages converts messages to Ollama API format
func (o *OllamaClient) convertMessages(messages []llm.Message) []api.Message {
	ollamaMsgs := make([]api.Message, 0, len(messages))

	for _, m := range messages {
		var text, thinking strings.Builder
		var images []api.ImageData

		for _, block := range m.Content {
			switch block.Type {
			case llm.BlockTypeText:
				text.WriteString(block.Text)
			case llm.BlockTypeThinking:
				thinking.WriteString(block.Text)
			case llm.BlockTypeImage:
				if block.Source == nil {
					continue
				}
				data, err := block.Source.Bytes()
				if err != nil {
					slog.Warn("Skipping unreadable image", "provider", "ollama", "error", err)
					continue
				}
				if len(data) > 0 {
					images = append(images, data)
				}
			}
		}

		msg := api.Message{
			Role:     m.Role,
			Content:  text.String(),
			Thinking: thinking.String(),
		}
		if len(images) > 0 {
			msg.Images = images
		}
		ollamaMsgs = append(ollamaMsgs, msg)
	}

	return ollamaMsgs
}

// IsTransientError implements the llm.LLMClient interface
func (o *OllamaClient) IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	errMsg := strings.ToLower(err.Error())

	// 連線失敗（服務重啟中）
	if strings.Contains(errMsg, "connection refused") || strings.Contains(errMsg, "connection reset") {
		return true
	}

	return strings.Contains(errMsg, "overloaded") || strings.Contains(errMsg, "server busy")
}

//----------------------------------------------------------------
// escapeFixingTransport - 修正模型輸出中不合法的 JSON 跳脫字元
//----------------------------------------------------------------

// escapeFixingTransport strips illegal escapes such as \$ from JSON bodies.
type escapeFixingTransport struct {
	next http.RoundTripper
}

func (t *escapeFixingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return resp, err
	}

	ct := resp.Header.Get("Content-Type")
	if strings.Contains(ct, "application/json") || strings.Contains(ct, "application/x-ndjson") {
		resp.Body = &escapeFixingBody{body: resp.Body}
	}
	return resp, nil
}

type escapeFixingBody struct {
	body io.ReadCloser
}

var illegalEscape = regexp.MustCompile(`\\([^\/\\bfnrtu"])`)

func (b *escapeFixingBody) Read(p []byte) (int, error) {
	n, err := b.body.Read(p)
	if n > 0 {
		fixed := illegalEscape.ReplaceAll(p[:n], []byte("$1"))
		if len(fixed) < n {
			// 只會移除反斜線，長度只減不增
			n = copy(p, fixed)
		}
	}
	return n, err
}

func (b *escapeFixingBody) Close() error {
	return b.body.Close()
}
