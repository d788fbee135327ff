package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"reasoner/pkg/api"
	"reasoner/pkg/llm"
)

// Worker is a team member that keeps the shared conversation and speaks when
// asked. What it says is decided by its Replier.
type Worker struct {
	name      string
	replier   Replier
	history   *llm.ChatHistory
	publisher api.Publisher
	disabled  atomic.Bool
}

// NewWorker wraps replier. A nil history gets a fresh one.
func NewWorker(name string, replier Replier, history *llm.ChatHistory) *Worker {
	if history == nil {
		history = llm.NewChatHistory()
	}
	return &Worker{
		name:    name,
		replier: replier,
		history: history,
	}
}

var (
	_ api.Agent          = (*Worker)(nil)
	_ api.PublisherAware = (*Worker)(nil)
)

func (w *Worker) ID() string { return w.name }

// Description forwards to the Replier.
func (w *Worker) Description() string { return w.replier.Description() }

// History exposes the conversation this worker owns.
func (w *Worker) History() *llm.ChatHistory { return w.history }

// SetPublisher implements api.PublisherAware
func (w *Worker) SetPublisher(p api.Publisher) { w.publisher = p }

// OnMessage implements api.Agent
func (w *Worker) OnMessage(ctx context.Context, env api.Envelope) error {
	if w.disabled.Load() {
		slog.DebugContext(ctx, "Worker deactivated, dropping message", "worker", w.name, "type", fmt.Sprintf("%T", env.Message))
		return nil
	}

	switch msg := env.Message.(type) {
	case api.BroadcastMessage:
		w.history.Add(msg.Content)
		return nil

	case api.ResetMessage:
		w.history.Reset()
		return nil

	case api.RequestReplyMessage:
		return w.reply(ctx)

	case api.DeactivateMessage:
		w.disabled.Store(true)
		return nil

	default:
		slog.WarnContext(ctx, "Unexpected message", "worker", w.name, "type", fmt.Sprintf("%T", env.Message))
		return nil
	}
}

func (w *Worker) reply(ctx context.Context) error {
	isFinal, content, err := w.replier.GenerateReply(ctx, w.history.GetMessages())
	if err != nil {
		return fmt.Errorf("%s: %w", w.name, err)
	}

	w.history.Add(llm.NewAIText(content, w.name))

	if w.publisher == nil {
		return nil
	}
	return w.publisher.Publish(ctx, w.name, api.BroadcastMessage{
		Content:     llm.NewUserText(content, w.name),
		RequestHalt: isFinal,
	})
}
