package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ChatCompletionClient performs one complete (non-incremental) inference
// over an ordered conversation. Cancelling ctx aborts the request.
type ChatCompletionClient interface {
	Create(ctx context.Context, messages []ChatMessage) (*CreateResult, error)
}

// CreateResult is the assembled outcome of a completion call. The content
// is either plain text or, when the model answered with function calls,
// the list of calls; IsText tells which.
type CreateResult struct {
	Text          string
	FunctionCalls []ToolCall
	Thought       string
	FinishReason  string
	Usage         *LLMUsage
}

// IsText reports whether the result content is plain text.
func (r *CreateResult) IsText() bool {
	return len(r.FunctionCalls) == 0
}

// StreamError is returned when a provider reports a fatal error chunk.
type StreamError struct {
	Message string
	Cause   error
}

func (e *StreamError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("llm stream: %s: %v", e.Message, e.Cause)
	}
	return "llm stream: " + e.Message
}

func (e *StreamError) Unwrap() error { return e.Cause }

// CompletionClient adapts a streaming LLMClient to ChatCompletionClient by
// draining its chunks. It owns the optional request timeout.
type CompletionClient struct {
	stream  LLMClient
	timeout time.Duration
}

// CompletionOption configures a CompletionClient.
type CompletionOption func(*CompletionClient)

// WithTimeout bounds every Create call. Zero disables the bound.
func WithTimeout(d time.Duration) CompletionOption {
	return func(c *CompletionClient) {
		c.timeout = d
	}
}

// NewCompletionClient wraps a streaming client.
func NewCompletionClient(stream LLMClient, opts ...CompletionOption) *CompletionClient {
	c := &CompletionClient{stream: stream}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ ChatCompletionClient = (*CompletionClient)(nil)

// Create streams the conversation through the underlying client and collects
// the chunks into a single result.
func (c *CompletionClient) Create(ctx context.Context, messages []ChatMessage) (*CreateResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	ch, err := c.stream.StreamChat(ctx, ToMessages(messages))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("llm request aborted: %w", ctxErr)
		}
		return nil, err
	}

	return Collect(ctx, ch)
}

// Collect drains a chunk stream into a CreateResult. It stops early when ctx
// is done or a fatal error chunk arrives.
func Collect(ctx context.Context, ch <-chan StreamChunk) (*CreateResult, error) {
	var text, thought strings.Builder
	result := &CreateResult{}

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("llm request aborted: %w", ctx.Err())
		case chunk, ok := <-ch:
			if !ok {
				// provider 可能在取消後直接關閉 channel
				if err := ctx.Err(); err != nil {
					return nil, fmt.Errorf("llm request aborted: %w", err)
				}
				result.Text = text.String()
				result.Thought = thought.String()
				if result.FinishReason == "" {
					result.FinishReason = StopReasonStop
				}
				if !result.IsText() {
					result.FinishReason = StopReasonToolCall
				}
				return result, nil
			}

			if chunk.Error != nil {
				if chunk.Error.Fatal {
					return nil, &StreamError{Message: chunk.Error.Message, Cause: chunk.Error.Cause}
				}
				slog.WarnContext(ctx, "LLM stream notice", "message", chunk.Error.Message)
			}

			for _, block := range chunk.ContentBlocks {
				switch block.Type {
				case BlockTypeText:
					text.WriteString(block.Text)
				case BlockTypeThinking:
					thought.WriteString(block.Text)
				}
			}
			result.FunctionCalls = append(result.FunctionCalls, chunk.ToolCalls...)

			if chunk.Usage != nil {
				result.Usage = chunk.Usage
			}
			if chunk.IsFinal && chunk.FinishReason != "" {
				result.FinishReason = chunk.FinishReason
			}
		}
	}
}
