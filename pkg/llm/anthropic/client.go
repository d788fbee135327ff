package anthropic

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"reasoner/pkg/llm"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	providerName     = "anthropic"
	defaultMaxTokens = 4096
)

// Client streams from the Anthropic Messages API.
type Client struct {
	client       sdk.Client
	model        string
	debugEnabled bool
	options      map[string]any
}

// NewClient creates a Messages API client. baseURL may be empty.
func NewClient(apiKey, model, baseURL string, options map[string]any) (*Client, error) {
	if model == "" {
		return nil, fmt.Errorf("anthropic: empty model name")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// 重試交給 llm.FallbackClient
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Client{
		client:  sdk.NewClient(opts...),
		model:   model,
		options: options,
	}, nil
}

func (c *Client) SetDebug(enabled bool) {
	c.debugEnabled = enabled
}

func (c *Client) IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 500, 502, 503, 504, 529:
			return true
		}
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "overloaded") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "timeout")
}

func (c *Client) requestParams(messages []llm.Message) sdk.MessageNewParams {
	system, converted := convertMessages(messages)
	params := sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: defaultMaxTokens,
		Messages:  converted,
	}
	if len(system) > 0 {
		params.System = system
	}
	if maxTok, ok := c.options["max_tokens"].(float64); ok && maxTok > 0 {
		params.MaxTokens = int64(maxTok)
	}
	if t, ok := c.options["temperature"].(float64); ok {
		params.Temperature = sdk.Float(t)
	}
	if p, ok := c.options["top_p"].(float64); ok {
		params.TopP = sdk.Float(p)
	}
	if budget, ok := c.options["thinking_budget"].(float64); ok && budget >= 1024 {
		params.Thinking = sdk.ThinkingConfigParamOfEnabled(int64(budget))
	}
	return params
}

func (c *Client) StreamChat(ctx context.Context, messages []llm.Message) (<-chan llm.StreamChunk, error) {
	params := c.requestParams(messages)

	chunkCh := make(chan llm.StreamChunk, 100)
	startResultCh := make(chan error, 1)

	go func() {
		defer close(chunkCh)

		stream := c.client.Messages.NewStreaming(ctx, params)
		defer stream.Close()

		dump := llm.NewChunkDump(ctx, providerName, c.debugEnabled)
		defer dump.Close()

		send := func(chunk llm.StreamChunk) bool {
			select {
			case chunkCh <- chunk:
				return true
			case <-ctx.Done():
				return false
			}
		}

		started := false
		finishReason := ""
		usage := &llm.LLMUsage{}
		var thinkingLog strings.Builder
		toolCalls := make(map[int64]*llm.ToolCall)

		for stream.Next() {
			if !started {
				started = true
				startResultCh <- nil
			}

			event := stream.Current()
			if raw := event.RawJSON(); raw != "" {
				dump.Raw(raw)
			}

			var out *llm.StreamChunk
			switch variant := event.AsAny().(type) {
			case sdk.MessageStartEvent:
				usage.PromptTokens = int(variant.Message.Usage.InputTokens)
				usage.CachedTokens = int(variant.Message.Usage.CacheReadInputTokens)

			case sdk.ContentBlockStartEvent:
				if variant.ContentBlock.Type == "tool_use" {
					toolCalls[variant.Index] = &llm.ToolCall{
						ID:       variant.ContentBlock.ID,
						Name:     variant.ContentBlock.Name,
						Function: llm.FunctionCall{Name: variant.ContentBlock.Name},
					}
				}

			case sdk.ContentBlockDeltaEvent:
				switch delta := variant.Delta.AsAny().(type) {
				case sdk.TextDelta:
					chunk := llm.NewTextChunk(delta.Text)
					out = &chunk
				case sdk.ThinkingDelta:
					thinkingLog.WriteString(delta.Thinking)
					chunk := llm.NewThinkingChunk(delta.Thinking)
					out = &chunk
				case sdk.InputJSONDelta:
					if tc, ok := toolCalls[variant.Index]; ok {
						tc.Function.Arguments += delta.PartialJSON
					}
				}

			case sdk.MessageDeltaEvent:
				finishReason = normalizeStopReason(string(variant.Delta.StopReason))
				usage.CompletionTokens = int(variant.Usage.OutputTokens)
				if finishReason == llm.StopReasonLength {
					chunk := llm.NewErrorChunk("Response truncated: max_tokens reached", nil, false)
					out = &chunk
				}
			}

			if out != nil && !send(*out) {
				return
			}
		}

		if thinkingLog.Len() > 0 {
			slog.DebugContext(ctx, "Captured thinking", "provider", providerName, "content", thinkingLog.String())
		}

		if err := stream.Err(); err != nil {
			if !started {
				startResultCh <- err
				return
			}
			send(llm.NewErrorChunk(fmt.Sprintf("Stream error: %v", err), err, true))
			return
		}
		if !started {
			startResultCh <- nil
		}

		if calls := orderedCalls(toolCalls); len(calls) > 0 {
			if !send(llm.StreamChunk{ToolCalls: calls}) {
				return
			}
			finishReason = llm.StopReasonToolCall
		}
		if finishReason == "" {
			finishReason = llm.StopReasonStop
		}
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
		usage.StopReason = finishReason
		llm.LogUsage(c.model, usage)
		send(llm.NewFinalChunk(finishReason, usage))
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

func orderedCalls(m map[int64]*llm.ToolCall) []llm.ToolCall {
	if len(m) == 0 {
		return nil
	}
	idx := make([]int64, 0, len(m))
	for i := range m {
		idx = append(idx, i)
	}
	sort.Slice(idx, func(a, b int) bool { return idx[a] < idx[b] })
	calls := make([]llm.ToolCall, 0, len(idx))
	for _, i := range idx {
		calls = append(calls, *m[i])
	}
	return calls
}

func normalizeStopReason(reason string) string {
	switch reason {
	case "max_tokens":
		return llm.StopReasonLength
	case "tool_use":
		return llm.StopReasonToolCall
	default:
		return llm.StopReasonStop
	}
}

// convertMessages splits out system text and merges consecutive turns of
// the same role; the Messages API wants user/assistant alternation.
func convertMessages(messages []llm.Message) ([]sdk.TextBlockParam, []sdk.MessageParam) {
	var system []sdk.TextBlockParam
	var out []sdk.MessageParam

	for _, m := range messages {
		if m.Role == llm.RoleSystem {
			if text := m.GetTextContent(); text != "" {
				system = append(system, sdk.TextBlockParam{Text: text})
			}
			continue
		}

		role := sdk.MessageParamRoleUser
		if m.Role == llm.RoleAssistant {
			role = sdk.MessageParamRoleAssistant
		}

		blocks := convertBlocks(m.Content, role == sdk.MessageParamRoleUser)
		if len(blocks) == 0 {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content = append(out[n-1].Content, blocks...)
			continue
		}
		out = append(out, sdk.MessageParam{Role: role, Content: blocks})
	}
	return system, out
}

func convertBlocks(content []llm.ContentBlock, allowImages bool) []sdk.ContentBlockParamUnion {
	var blocks []sdk.ContentBlockParamUnion
	for _, b := range content {
		switch b.Type {
		case llm.BlockTypeText:
			if b.Text != "" {
				blocks = append(blocks, sdk.NewTextBlock(b.Text))
			}
		case llm.BlockTypeImage:
			if !allowImages || b.Source == nil {
				continue
			}
			if b.Source.Type == "url" {
				blocks = append(blocks, sdk.NewImageBlock(sdk.URLImageSourceParam{URL: b.Source.URL}))
				continue
			}
			data, err := b.Source.Bytes()
			if err != nil || len(data) == 0 {
				slog.Warn("Skipping unreadable image", "error", err)
				continue
			}
			blocks = append(blocks, sdk.NewImageBlockBase64(b.Source.MediaType, base64.StdEncoding.EncodeToString(data)))
		}
	}
	return blocks
}
