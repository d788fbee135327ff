package openailm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"reasoner/pkg/llm"

	jsoniter "github.com/json-iterator/go"
	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
	"github.com/openai/openai-go/v3/responses"
	"github.com/openai/openai-go/v3/shared"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Client is a wrapper around the official OpenAI Go SDK (Responses API)
type Client struct {
	client       *openai.Client
	provider     string
	model        string
	debugEnabled bool
	options      map[string]any
}

// NewClient creates a new OpenAI client
func NewClient(provider string, apiKey string, model string, baseURL string, options map[string]any) (*Client, error) {
	if model == "" {
		return nil, fmt.Errorf("%s: empty model name", provider)
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// 重試交給 llm.FallbackClient
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(opts...)

	return &Client{
		client:   &client,
		provider: provider,
		model:    model,
		options:  options,
	}, nil
}

func (c *Client) Provider() string {
	return c.provider
}

func (c *Client) SetDebug(enabled bool) {
	c.debugEnabled = enabled
}

func (c *Client) IsTransientError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 500, 502, 503, 504:
			return true
		}
		return false
	}

	msg := strings.ToLower(err.Error())

	// network-level issues
	if strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "timeout") {
		return true
	}

	return strings.Contains(msg, "overloaded")
}

// requestParams builds the Responses request and the per-call JSON overrides.
func (c *Client) requestParams(messages []llm.Message) (responses.ResponseNewParams, []option.RequestOption) {
	params := responses.ResponseNewParams{
		Model: c.model,
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: c.convertMessages(messages),
		},
	}

	var opts []option.RequestOption

	if effortStr, ok := c.options["thinking_effort"].(string); ok && effortStr != "" && effortStr != "off" {
		var effort shared.ReasoningEffort
		switch effortStr {
		case "low":
			effort = shared.ReasoningEffortLow
		case "high":
			effort = shared.ReasoningEffortHigh
		default:
			effort = shared.ReasoningEffortMedium
		}
		params.Reasoning = shared.ReasoningParam{Effort: effort}
	}
	if t, ok := c.options["temperature"].(float64); ok {
		opts = append(opts, option.WithJSONSet("temperature", t))
	}
	if p, ok := c.options["top_p"].(float64); ok {
		opts = append(opts, option.WithJSONSet("top_p", p))
	}
	if maxTok, ok := c.options["max_tokens"].(float64); ok {
		params.MaxOutputTokens = param.NewOpt(int64(maxTok))
	}
	return params, opts
}

func (c *Client) StreamChat(ctx context.Context, messages []llm.Message) (<-chan llm.StreamChunk, error) {
	params, opts := c.requestParams(messages)

	chunkCh := make(chan llm.StreamChunk, 100)
	startResultCh := make(chan error, 1)

	go func() {
		defer close(chunkCh)

		stream := c.client.Responses.NewStreaming(ctx, params, opts...)
		defer stream.Close()

		dump := llm.NewChunkDump(ctx, c.provider, c.debugEnabled)
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
		var usage *llm.LLMUsage
		var thinkingLog strings.Builder
		toolCalls := newToolCallSet()

		for stream.Next() {
			if !started {
				started = true
				startResultCh <- nil
			}

			event := stream.Current()
			raw := event.RawJSON()
			if raw != "" {
				dump.Raw(raw)
			}

			// 相容 DeepSeek 類 provider 把推理放在頂層欄位
			if thought := legacyThinking(raw); thought != "" {
				thinkingLog.WriteString(thought)
				if !send(llm.NewThinkingChunk(thought)) {
					return
				}
			}

			var out *llm.StreamChunk
			switch variant := event.AsAny().(type) {
			case responses.ResponseTextDeltaEvent:
				chunk := llm.NewTextChunk(variant.Delta)
				out = &chunk

			case responses.ResponseReasoningTextDeltaEvent:
				thinkingLog.WriteString(variant.Delta)
				chunk := llm.NewThinkingChunk(variant.Delta)
				out = &chunk

			case responses.ResponseReasoningSummaryTextDeltaEvent:
				thinkingLog.WriteString(variant.Delta)
				chunk := llm.NewThinkingChunk(variant.Delta)
				out = &chunk

			case responses.ResponseFunctionCallArgumentsDeltaEvent:
				toolCalls.get(variant.ItemID).Function.Arguments += variant.Delta

			case responses.ResponseFunctionCallArgumentsDoneEvent:
				toolCalls.get(variant.ItemID).setName(variant.Name)

			case responses.ResponseOutputItemAddedEvent:
				if variant.Item.Type == "function_call" {
					toolCalls.get(variant.Item.ID).setName(variant.Item.Name)
				}

			case responses.ResponseOutputItemDoneEvent:
				if variant.Item.Type == "function_call" {
					toolCalls.get(variant.Item.ID).setName(variant.Item.Name)
				}

			case responses.ResponseCompletedEvent:
				finishReason = llm.StopReasonStop
				if u := variant.Response.Usage; u.TotalTokens > 0 {
					usage = &llm.LLMUsage{
						PromptTokens:     int(u.InputTokens),
						CompletionTokens: int(u.OutputTokens),
						TotalTokens:      int(u.TotalTokens),
						ThoughtsTokens:   int(u.OutputTokensDetails.ReasoningTokens),
						CachedTokens:     int(u.InputTokensDetails.CachedTokens),
					}
				}

			case responses.ResponseIncompleteEvent:
				finishReason = llm.StopReasonLength
				chunk := llm.NewErrorChunk("Response incomplete: "+string(variant.Response.IncompleteDetails.Reason), nil, false)
				out = &chunk

			case responses.ResponseFailedEvent:
				chunk := llm.NewErrorChunk("API response failed: "+variant.Response.Error.Message, nil, true)
				out = &chunk

			case responses.ResponseErrorEvent:
				chunk := llm.NewErrorChunk(fmt.Sprintf("API error: %s", variant.Message), nil, true)
				out = &chunk
			}

			if out != nil && !send(*out) {
				return
			}
		}

		if thinkingLog.Len() > 0 {
			slog.DebugContext(ctx, "Captured thinking", "provider", c.provider, "content", thinkingLog.String())
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

		if calls := toolCalls.list(); len(calls) > 0 {
			if !send(llm.StreamChunk{ToolCalls: calls}) {
				return
			}
			finishReason = llm.StopReasonToolCall
		}
		if finishReason == "" {
			finishReason = llm.StopReasonStop
		}
		if usage != nil {
			usage.StopReason = finishReason
			llm.LogUsage(c.model, usage)
		}
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

// legacyThinking pulls reasoning text some compatible servers put at the top level.
func legacyThinking(raw string) string {
	if raw == "" {
		return ""
	}
	var rawChoice struct {
		Reasoning        string `json:"reasoning"`
		Thinking         string `json:"thinking"`
		ReasoningContent string `json:"reasoning_content"`
	}
	if json.UnmarshalFromString(raw, &rawChoice) != nil {
		return ""
	}
	switch {
	case rawChoice.Reasoning != "":
		return rawChoice.Reasoning
	case rawChoice.Thinking != "":
		return rawChoice.Thinking
	default:
		return rawChoice.ReasoningContent
	}
}

func (c *Client) convertMessages(messages []llm.Message) []responses.ResponseInputItemUnionParam {
	items := make([]responses.ResponseInputItemUnionParam, 0, len(messages))

	for _, m := range messages {
		switch m.Role {
		case llm.RoleSystem:
			items = append(items, responses.ResponseInputItemParamOfMessage(
				m.GetTextContent(),
				responses.EasyInputMessageRoleSystem,
			))
		case llm.RoleUser:
			if !m.HasImages() {
				items = append(items, responses.ResponseInputItemParamOfMessage(
					m.GetTextContent(),
					responses.EasyInputMessageRoleUser,
				))
				continue
			}
			var contentParts responses.ResponseInputMessageContentListParam
			for _, block := range m.Content {
				switch block.Type {
				case llm.BlockTypeText:
					contentParts = append(contentParts, responses.ResponseInputContentUnionParam{
						OfInputText: &responses.ResponseInputTextParam{Text: block.Text},
					})
				case llm.BlockTypeImage:
					if imgURL := imageURL(block.Source); imgURL != "" {
						contentParts = append(contentParts, responses.ResponseInputContentUnionParam{
							OfInputImage: &responses.ResponseInputImageParam{
								Detail:   responses.ResponseInputImageDetailAuto,
								ImageURL: param.NewOpt(imgURL),
							},
						})
					}
				}
			}
			items = append(items, responses.ResponseInputItemParamOfMessage(
				contentParts,
				responses.EasyInputMessageRoleUser,
			))
		case llm.RoleAssistant:
			if text := m.GetTextContent(); text != "" {
				items = append(items, responses.ResponseInputItemParamOfMessage(
					text,
					responses.EasyInputMessageRoleAssistant,
				))
			}
		}
	}

	return items
}

// imageURL renders an image source as a URL or a data: URI.
func imageURL(src *llm.ImageSource) string {
	if src == nil {
		return ""
	}
	if src.Type == "url" {
		return src.URL
	}
	data, err := src.Bytes()
	if err != nil || len(data) == 0 {
		if err != nil {
			slog.Warn("Skipping unreadable image", "error", err)
		}
		return ""
	}
	return fmt.Sprintf("data:%s;base64,%s", src.MediaType, base64.StdEncoding.EncodeToString(data))
}
