package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// json 用於 package llm 內部的 JSON 處理，統一使用 json-iterator
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// LLMClient is a streaming provider. The returned channel is closed when the
// stream ends; when ctx is cancelled the provider aborts and closes it.
type LLMClient interface {
	StreamChat(ctx context.Context, messages []Message) (<-chan StreamChunk, error)

	// IsTransientError 判斷是否值得重試 (503, rate limit...)
	IsTransientError(err error) bool
}

// DebugSetter is implemented by clients that can dump raw stream chunks.
type DebugSetter interface {
	SetDebug(enabled bool)
}

// LLMUsage is the provider-independent token accounting of one call.
type LLMUsage struct {
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	ThoughtsTokens   int    `json:"thoughts_tokens,omitempty"`
	CachedTokens     int    `json:"cached_tokens,omitempty"`
	PromptDetail     string `json:"prompt_detail,omitempty"`
	CompletionDetail string `json:"completion_detail,omitempty"`
	StopReason       string `json:"stop_reason,omitempty"`
}

// Table renders the usage as a quoted markdown table.
func (u *LLMUsage) Table(model string) string {
	var sb strings.Builder
	row := func(item string, tokens any, detail string) {
		if detail == "" {
			detail = "-"
		}
		fmt.Fprintf(&sb, "> | %s | %v | %s |\n", item, tokens, detail)
	}

	fmt.Fprintf(&sb, "\n> ### 📊 Usage (%s)\n", model)
	sb.WriteString("> | Item | Tokens | Detail |\n> | :--- | :--- | :--- |\n")
	row("**Prompt**", u.PromptTokens, u.PromptDetail)
	row("**Response**", u.CompletionTokens, u.CompletionDetail)
	row("**Total**", fmt.Sprintf("**%d**", u.TotalTokens), "")
	if u.ThoughtsTokens > 0 {
		row("**Thoughts**", u.ThoughtsTokens, "")
	}
	if u.CachedTokens > 0 {
		row("**Cached**", u.CachedTokens, "")
	}
	if u.StopReason != "" {
		row("**Stop reason**", u.StopReason, "")
	}
	sb.WriteString("> ---")
	return sb.String()
}

// LogUsage logs the usage table at debug level.
func LogUsage(model string, usage *LLMUsage) {
	if usage == nil {
		return
	}
	slog.Debug(usage.Table(model))
}

//----------------------------------------------------------------
// FallbackClient
//----------------------------------------------------------------

// FallbackClient tries its clients in order. Each client gets up to
// MaxRetries attempts while its errors are transient, with a linear
// backoff of RetryDelay per attempt. Only opening the stream is retried;
// a stream that fails midway reports through its chunks.
type FallbackClient struct {
	Clients    []LLMClient
	MaxRetries int
	RetryDelay time.Duration
}

func (f *FallbackClient) StreamChat(ctx context.Context, messages []Message) (<-chan StreamChunk, error) {
	attempts := max(f.MaxRetries, 1)

	var lastErr error
	for i, client := range f.Clients {
		name := providerName(client, i)
		if i > 0 {
			slog.WarnContext(ctx, "Falling back to next provider", "provider", name)
		}

		for attempt := 1; attempt <= attempts; attempt++ {
			if attempt > 1 {
				slog.InfoContext(ctx, "Retrying provider", "provider", name, "attempt", attempt, "max", attempts)
				if err := sleepCtx(ctx, time.Duration(attempt-1)*f.RetryDelay); err != nil {
					return nil, err
				}
			}

			ch, err := client.StreamChat(ctx, messages)
			if err == nil {
				return ch, nil
			}
			lastErr = err

			// 呼叫端已取消時不再嘗試其他 provider
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if !client.IsTransientError(err) || attempt == attempts {
				slog.ErrorContext(ctx, "Provider failed", "provider", name, "error", err)
				break
			}
			slog.WarnContext(ctx, "Provider failed with transient error", "provider", name, "error", err)
		}
	}
	return nil, fmt.Errorf("all fallback providers failed: %w", lastErr)
}

// IsTransientError always reports false: by the time FallbackClient fails,
// every child has been exhausted.
func (f *FallbackClient) IsTransientError(error) bool {
	return false
}

// SetDebug forwards the debug switch to every child that supports it.
func (f *FallbackClient) SetDebug(enabled bool) {
	for _, c := range f.Clients {
		if d, ok := c.(DebugSetter); ok {
			d.SetDebug(enabled)
		}
	}
}

func providerName(c LLMClient, i int) string {
	if p, ok := c.(interface{ Provider() string }); ok {
		return p.Provider()
	}
	return fmt.Sprintf("#%d", i+1)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
