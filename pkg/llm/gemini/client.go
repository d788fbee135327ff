package gemini

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"reasoner/pkg/llm"

	jsoniter "github.com/json-iterator/go"
	"google.golang.org/genai"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// modelsAPI is the slice of genai.Models the client needs.
type modelsAPI interface {
	GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]
}

// GeminiClient Google Gemini API client
type GeminiClient struct {
	models       modelsAPI
	model        string
	useThought   bool
	temperature  *float32
	debugEnabled bool
}

// SetDebug implements llm.DebugSetter
func (g *GeminiClient) SetDebug(enabled bool) {
	g.debugEnabled = enabled
}

// NewGeminiClient creates a Gemini client with a single model and API key
func NewGeminiClient(apiKey string, model string, useThought bool, options map[string]any) (*GeminiClient, error) {
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	g := &GeminiClient{
		models:     client.Models,
		model:      model,
		useThought: useThought,
	}
	if t, ok := options["temperature"].(float64); ok {
		v := float32(t)
		g.temperature = &v
	}
	return g, nil
}

func (g *GeminiClient) Provider() string {
	return "gemini"
}

// formatModality formats ModalityTokenCount array for logging
func formatModality(details []*genai.ModalityTokenCount) string {
	if len(details) == 0 {
		return "0"
	}
	var res []string
	for _, d := range details {
		res = append(res, fmt.Sprintf("%v: %d", d.Modality, d.TokenCount))
	}
	return strings.Join(res, " | ")
}

// normalizeFinishReason maps Gemini finish reasons onto llm.StopReason*.
func normalizeFinishReason(r genai.FinishReason) string {
	switch r {
	case genai.FinishReasonMaxTokens:
		return llm.StopReasonLength
	default:
		return llm.StopReasonStop
	}
}

// StreamChat implements llm.LLMClient.StreamChat
func (g *GeminiClient) StreamChat(ctx context.Context, messages []llm.Message) (<-chan llm.StreamChunk, error) {
	apiMessages, systemInstruction := g.convertMessages(messages)

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: systemInstruction,
		Temperature:       g.temperature,
	}
	if g.useThought {
		cfg.ThinkingConfig = &genai.ThinkingConfig{IncludeThoughts: true}
	}

	chunkCh := make(chan llm.StreamChunk, 100)
	startResultCh := make(chan error, 1)

	slog.DebugContext(ctx, "Gemini streaming", "model", g.model)

	go func() {
		defer close(chunkCh)

		dump := llm.NewChunkDump(ctx, g.Provider(), g.debugEnabled)
		defer dump.Close()

		send := func(c llm.StreamChunk) bool {
			select {
			case chunkCh <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}

		started := false
		var lastUsage *llm.LLMUsage
		finish := ""

		for resp, err := range g.models.GenerateContentStream(ctx, g.model, apiMessages, cfg) {
			if resp != nil {
				dump.JSON(resp)
			}
			if err != nil {
				// SDK 可能同時回傳資料與錯誤
				if resp == nil {
					slog.WarnContext(ctx, "Gemini stream error", "model", g.model, "error", err)
					if !started {
						startResultCh <- err
						return
					}
					send(llm.NewErrorChunk(fmt.Sprintf("Stream interrupted: %v", err), err, true))
					return
				}
				slog.WarnContext(ctx, "Gemini stream error (with data)", "model", g.model, "error", err)
			}

			if !started {
				started = true
				startResultCh <- nil
			}

			if resp.UsageMetadata != nil {
				u := resp.UsageMetadata
				lastUsage = &llm.LLMUsage{
					PromptTokens:     int(u.PromptTokenCount),
					PromptDetail:     formatModality(u.PromptTokensDetails),
					CompletionTokens: int(u.CandidatesTokenCount),
					CompletionDetail: formatModality(u.CandidatesTokensDetails),
					TotalTokens:      int(u.TotalTokenCount),
					ThoughtsTokens:   int(u.ThoughtsTokenCount),
					CachedTokens:     int(u.CachedContentTokenCount),
				}
			}

			for _, candidate := range resp.Candidates {
				if candidate.FinishReason != "" {
					finish = normalizeFinishReason(candidate.FinishReason)
					if finish == llm.StopReasonLength {
						send(llm.NewErrorChunk("Response truncated due to max tokens limit.", nil, false))
					}
				}
				if candidate.Content == nil {
					continue
				}

				var blocks []llm.ContentBlock
				var toolCalls []llm.ToolCall
				for _, part := range candidate.Content.Parts {
					if part.Text != "" {
						if part.Thought {
							blocks = append(blocks, llm.NewThinkingBlock(part.Text))
						} else {
							blocks = append(blocks, llm.NewTextBlock(part.Text))
						}
					}
					if part.FunctionCall != nil {
						argsB, _ := json.Marshal(part.FunctionCall.Args)
						toolCalls = append(toolCalls, llm.ToolCall{
							ID:   part.FunctionCall.ID,
							Name: part.FunctionCall.Name,
							Function: llm.FunctionCall{
								Name:      part.FunctionCall.Name,
								Arguments: string(argsB),
							},
						})
					}
				}

				if len(blocks) > 0 || len(toolCalls) > 0 {
					if !send(llm.StreamChunk{ContentBlocks: blocks, ToolCalls: toolCalls}) {
						return
					}
				}
			}
		}

		if !started {
			// 空串流
			startResultCh <- nil
		}
		if lastUsage != nil {
			lastUsage.StopReason = finish
			llm.LogUsage(g.model, lastUsage)
		}
		send(llm.NewFinalChunk(finish, lastUsage))
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

// convertMessages converts message list to GenAI format
func (g *GeminiClient) convertMessages(messages []llm.Message) ([]*genai.Content, *genai.Content) {
	var genaiContents []*genai.Content
	var systemInstruction *genai.Content

	for _, msg := range messages {
		if msg.Role == llm.RoleSystem {
			var parts []*genai.Part
			for _, block := range msg.Content {
				if block.Type == llm.BlockTypeText && block.Text != "" {
					parts = append(parts, &genai.Part{Text: block.Text})
				}
			}
			if len(parts) > 0 {
				systemInstruction = &genai.Content{Parts: parts}
			}
			continue
		}

		role := genai.RoleUser
		if msg.Role == llm.RoleAssistant {
			role = genai.RoleModel
		}

		var parts []*genai.Part
		for _, block := range msg.Content {
			switch block.Type {
			case llm.BlockTypeText:
				if block.Text == "" {
					continue // 略過空文本
				}
				parts = append(parts, &genai.Part{Text: block.Text})

			case llm.BlockTypeImage:
				if block.Source == nil {
					continue
				}
				if block.Source.Type == "url" && block.Source.URL != "" {
					parts = append(parts, &genai.Part{
						FileData: &genai.FileData{FileURI: block.Source.URL, MIMEType: block.Source.MediaType},
					})
					continue
				}
				data, err := block.Source.Bytes()
				if err != nil {
					slog.Warn("Skipping unreadable image", "error", err)
					continue
				}
				if len(data) > 0 {
					parts = append(parts, &genai.Part{
						InlineData: &genai.Blob{MIMEType: block.Source.MediaType, Data: data},
					})
				}
			}
		}

		if len(parts) > 0 {
			genaiContents = append(genaiContents, &genai.Content{Role: role, Parts: parts})
		}
	}

	return genaiContents, systemInstruction
}

// IsTransientError implements the llm.LLMClient interface
func (g *GeminiClient) IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	errMsg := strings.ToLower(err.Error())

	// 503 Service Unavailable / Overloaded
	if strings.Contains(errMsg, "503") || strings.Contains(errMsg, "overloaded") {
		return true
	}

	// 429 Too Many Requests (Rate Limit)
	if strings.Contains(errMsg, "429") || strings.Contains(errMsg, "resource exhausted") {
		return true
	}

	// 500 Internal Error
	if strings.Contains(errMsg, "500") || strings.Contains(errMsg, "internal error") {
		return true
	}

	return false
}
