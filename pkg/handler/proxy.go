package handler

import (
	"context"
	"sync"

	"reasoner/pkg/api"
	"reasoner/pkg/llm"
)

// channelProxy stands in for the human on the team bus and forwards what
// other agents say to the chat.
type channelProxy struct {
	handler *ChatHandler
	session api.SessionContext
	mu      sync.RWMutex
}

func (p *channelProxy) ID() string { return UserAgentID }

func (p *channelProxy) setSession(s api.SessionContext) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.session = s
}

func (p *channelProxy) currentSession() api.SessionContext {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.session
}

// OnMessage implements api.Agent
func (p *channelProxy) OnMessage(ctx context.Context, env api.Envelope) error {
	bm, ok := env.Message.(api.BroadcastMessage)
	if !ok {
		return nil
	}
	text := llm.ContentToString(bm.Content.Content)
	if text == "" {
		text = "(empty reply)"
	}
	p.handler.reply(p.currentSession(), text)
	return nil
}
