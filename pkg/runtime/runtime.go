package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"reasoner/pkg/api"
	"reasoner/pkg/llm"
	"reasoner/pkg/monitor"
)

var (
	// ErrUnknownAgent is returned by Send when no agent has the recipient ID.
	ErrUnknownAgent = errors.New("unknown agent")
	// ErrDuplicateAgent is returned by Register when the ID is taken.
	ErrDuplicateAgent = errors.New("agent already registered")
)

// Runtime 是團隊內的訊息匯流排：廣播給除了發送者以外的所有 agent
type Runtime struct {
	agents  map[string]api.Agent
	order   []string // 註冊順序，決定廣播順序
	monitor monitor.Monitor
	mu      sync.RWMutex
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithMonitor mirrors broadcast turns to m.
func WithMonitor(m monitor.Monitor) Option {
	return func(r *Runtime) {
		r.monitor = m
	}
}

// New creates an empty Runtime.
func New(opts ...Option) *Runtime {
	r := &Runtime{
		agents: make(map[string]api.Agent),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ api.Publisher = (*Runtime)(nil)

// Register adds an agent to the bus.
func (r *Runtime) Register(agent api.Agent) error {
	id := agent.ID()

	r.mu.Lock()
	if _, exists := r.agents[id]; exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateAgent, id)
	}
	r.agents[id] = agent
	r.order = append(r.order, id)
	r.mu.Unlock()

	if pa, ok := agent.(api.PublisherAware); ok {
		pa.SetPublisher(r)
	}
	slog.Debug("Agent registered", "agent", id)
	return nil
}

// Agents lists registered IDs in registration order.
func (r *Runtime) Agents() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Publish delivers msg to every agent except sender, one at a time.
// Delivery errors do not stop the fan-out; they are joined.
func (r *Runtime) Publish(ctx context.Context, sender string, msg any) error {
	r.mirror(sender, msg)

	var errs []error
	for _, agent := range r.snapshot() {
		if agent.ID() == sender {
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := agent.OnMessage(ctx, api.Envelope{Sender: sender, Message: msg}); err != nil {
			errs = append(errs, fmt.Errorf("deliver to %s: %w", agent.ID(), err))
		}
	}
	return errors.Join(errs...)
}

// Send delivers msg to a single agent.
func (r *Runtime) Send(ctx context.Context, recipient string, msg any) error {
	r.mu.RLock()
	agent, ok := r.agents[recipient]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAgent, recipient)
	}
	return agent.OnMessage(ctx, api.Envelope{Message: msg})
}

// snapshot 在鎖外投遞，agent 可以重入 Publish
func (r *Runtime) snapshot() []api.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]api.Agent, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.agents[id])
	}
	return out
}

func (r *Runtime) mirror(sender string, msg any) {
	if r.monitor == nil {
		return
	}
	bm, ok := msg.(api.BroadcastMessage)
	if !ok {
		return
	}
	r.monitor.OnMessage(monitor.MonitorMessage{
		Timestamp:   time.Now(),
		MessageType: monitor.MessageTypeAgent,
		Username:    sender,
		Content:     llm.ContentToString(bm.Content.Content),
	})
}
