package agent

import (
	"context"
	"sync"

	"reasoner/pkg/llm"
)

// scriptedClient is a ChatCompletionClient returning canned results.
type scriptedClient struct {
	mu      sync.Mutex
	results []*llm.CreateResult
	err     error
	block   bool // wait for ctx instead of answering
	calls   [][]llm.ChatMessage
}

func (c *scriptedClient) Create(ctx context.Context, messages []llm.ChatMessage) (*llm.CreateResult, error) {
	c.mu.Lock()
	c.calls = append(c.calls, messages)
	c.mu.Unlock()

	if c.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if c.err != nil {
		return nil, c.err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.results) == 0 {
		return &llm.CreateResult{Text: "", FinishReason: llm.StopReasonStop}, nil
	}
	res := c.results[0]
	c.results = c.results[1:]
	return res, nil
}

func textResult(s string) *llm.CreateResult {
	return &llm.CreateResult{Text: s, FinishReason: llm.StopReasonStop}
}

// echoClient answers with the last line of the prompt it was given.
type echoClient struct {
	answer string
	prompt string
}

func (c *echoClient) Create(ctx context.Context, messages []llm.ChatMessage) (*llm.CreateResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.prompt = llm.ContentToString(messages[0].ToMessage().Content)
	return textResult(c.answer), nil
}
