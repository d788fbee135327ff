package llm

import (
	"context"
	"errors"
	"sync"
)

var errTransient = errors.New("503 service unavailable")

// scriptedClient replays canned chunks and records what it was asked.
type scriptedClient struct {
	mu       sync.Mutex
	chunks   []StreamChunk
	errs     []error // returned by successive StreamChat calls before succeeding
	calls    int
	received [][]Message
	block    bool // hold the channel open until ctx is done
	debug    bool
}

func (c *scriptedClient) StreamChat(ctx context.Context, messages []Message) (<-chan StreamChunk, error) {
	c.mu.Lock()
	c.calls++
	c.received = append(c.received, messages)
	if len(c.errs) > 0 {
		err := c.errs[0]
		c.errs = c.errs[1:]
		c.mu.Unlock()
		return nil, err
	}
	c.mu.Unlock()

	ch := make(chan StreamChunk)
	go func() {
		defer close(ch)
		for _, chunk := range c.chunks {
			select {
			case ch <- chunk:
			case <-ctx.Done():
				return
			}
		}
		if c.block {
			<-ctx.Done()
		}
	}()
	return ch, nil
}

func (c *scriptedClient) IsTransientError(err error) bool {
	return errors.Is(err, errTransient)
}

func (c *scriptedClient) SetDebug(enabled bool) { c.debug = enabled }
