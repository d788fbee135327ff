package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"reasoner/pkg/agent"
	"reasoner/pkg/api"
	"reasoner/pkg/config"
	"reasoner/pkg/llm"
	"reasoner/pkg/monitor"
	"reasoner/pkg/runtime"
	"reasoner/pkg/utils"
)

// UserAgentID is the bus identity of the human side of a conversation.
const UserAgentID = "user"

const inboxSize = 32

var errHandlerClosed = errors.New("handler closed")

// ChatHandler turns channel traffic into agent protocol messages. Every chat
// session gets its own team: a runtime with the reasoning worker and a proxy
// that relays the worker's broadcasts back to the channel.
type ChatHandler struct {
	replier   agent.Replier
	sessions  *llm.SessionManager
	responder api.MessageResponder
	monitor   monitor.Monitor
	agentName string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	teams map[string]*team
	mu    sync.Mutex
}

// Option configures a ChatHandler.
type Option func(*ChatHandler)

// WithAgentName sets the bus ID of the reasoning worker.
func WithAgentName(name string) Option {
	return func(h *ChatHandler) {
		if name != "" {
			h.agentName = name
		}
	}
}

// WithMonitor mirrors team traffic to m.
func WithMonitor(m monitor.Monitor) Option {
	return func(h *ChatHandler) {
		h.monitor = m
	}
}

// NewChatHandler creates a handler. The responder is injected later by the gateway.
func NewChatHandler(replier agent.Replier, sessions *llm.SessionManager, opts ...Option) *ChatHandler {
	ctx, cancel := context.WithCancel(context.Background())
	h := &ChatHandler{
		replier:   replier,
		sessions:  sessions,
		agentName: config.DefaultReasonerName,
		ctx:       ctx,
		cancel:    cancel,
		teams:     make(map[string]*team),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

var _ api.GatewayHandler = (*ChatHandler)(nil)

// SetResponder implements api.ResponderAware
func (h *ChatHandler) SetResponder(responder api.MessageResponder) {
	h.responder = responder
}

// OnMessage queues msg on its session's team. Messages of one session are
// handled one at a time in arrival order.
func (h *ChatHandler) OnMessage(msg *api.UnifiedMessage) {
	if msg.DebugID == "" {
		msg.DebugID = utils.NewRequestID()
	}
	t, err := h.team(msg.Session)
	if errors.Is(err, errHandlerClosed) {
		slog.Warn("Handler closed, dropping message", "session", msg.Session.Key())
		return
	}
	if err != nil {
		slog.Error("Failed to build team", "session", msg.Session.Key(), "error", err)
		h.reply(msg.Session, fmt.Sprintf("❌ Error: %v", err))
		return
	}

	select {
	case t.inbox <- msg:
	default:
		slog.Warn("Session inbox full", "session", msg.Session.Key())
		h.reply(msg.Session, "❌ Still working on earlier messages, please wait.")
	}
}

// Close cancels in-flight replies and waits for every team to stop.
func (h *ChatHandler) Close() {
	h.mu.Lock()
	h.cancel()
	h.mu.Unlock()
	h.wg.Wait()
}

//----------------------------------------------------------------
// team - 每個 session 一組 runtime
//----------------------------------------------------------------

type team struct {
	rt     *runtime.Runtime
	worker *agent.Worker
	proxy  *channelProxy
	inbox  chan *api.UnifiedMessage
}

func (h *ChatHandler) team(session api.SessionContext) (*team, error) {
	key := session.Key()

	h.mu.Lock()
	defer h.mu.Unlock()

	// Close 持有同一把鎖取消 ctx，wg.Add 不會晚於 Wait
	if h.ctx.Err() != nil {
		return nil, errHandlerClosed
	}
	if t, ok := h.teams[key]; ok {
		t.proxy.setSession(session)
		return t, nil
	}

	var rtOpts []runtime.Option
	if h.monitor != nil {
		rtOpts = append(rtOpts, runtime.WithMonitor(h.monitor))
	}
	rt := runtime.New(rtOpts...)

	proxy := &channelProxy{handler: h}
	proxy.setSession(session)
	worker := agent.NewWorker(h.agentName, h.replier, h.sessions.GetHistory(key))

	if err := rt.Register(proxy); err != nil {
		return nil, err
	}
	if err := rt.Register(worker); err != nil {
		return nil, err
	}

	t := &team{
		rt:     rt,
		worker: worker,
		proxy:  proxy,
		inbox:  make(chan *api.UnifiedMessage, inboxSize),
	}
	h.teams[key] = t

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.runTeam(t)
	}()

	slog.Info("Team created", "session", key, "agents", rt.Agents())
	return t, nil
}

func (h *ChatHandler) runTeam(t *team) {
	for {
		select {
		case <-h.ctx.Done():
			return
		case msg := <-t.inbox:
			h.process(t, msg)
		}
	}
}

func (h *ChatHandler) process(t *team, msg *api.UnifiedMessage) {
	start := time.Now()
	ctx := context.WithValue(h.ctx, llm.DebugDirContextKey, msg.DebugID)

	if strings.HasPrefix(msg.Content, "/") {
		h.handleSlashCommand(ctx, t, msg)
		return
	}

	userMsg, ok := buildUserMessage(ctx, msg)
	if !ok {
		slog.DebugContext(ctx, "Ignoring empty message", "session", msg.Session.Key())
		return
	}

	if err := t.rt.Publish(ctx, UserAgentID, api.BroadcastMessage{Content: userMsg}); err != nil {
		h.reportError(ctx, msg.Session, err)
		return
	}

	if h.responder != nil {
		if err := h.responder.SendSignal(msg.Session, api.SignalThinking); err != nil {
			slog.WarnContext(ctx, "Failed to send thinking signal", "error", err)
		}
	}

	if err := t.rt.Send(ctx, t.worker.ID(), api.RequestReplyMessage{}); err != nil {
		h.reportError(ctx, msg.Session, err)
		return
	}

	slog.InfoContext(ctx, "Reply finished", "session", msg.Session.Key(), "duration", time.Since(start).String())
}

// buildUserMessage converts text and attachments into one user turn.
func buildUserMessage(ctx context.Context, msg *api.UnifiedMessage) (llm.UserMessage, bool) {
	var blocks []llm.ContentBlock
	if text := strings.TrimSpace(msg.Content); text != "" {
		blocks = append(blocks, llm.NewTextBlock(msg.Content))
	}
	for _, file := range msg.Files {
		if file.Path != "" {
			blocks = append(blocks, llm.NewImageBlockFromFile(file.Path, file.MimeType))
			slog.InfoContext(ctx, "Attached file from disk", "name", file.Filename, "mime", file.MimeType, "path", file.Path)
			continue
		}
		if len(file.Data) > 0 {
			blocks = append(blocks, llm.NewImageBlock(file.Data, file.MimeType))
			slog.InfoContext(ctx, "Attached file inline", "name", file.Filename, "mime", file.MimeType, "bytes", len(file.Data))
		}
	}
	if len(blocks) == 0 {
		return llm.UserMessage{}, false
	}

	source := msg.Session.Username
	if source == "" {
		source = llm.HumanLabel
	}
	return llm.UserMessage{Content: blocks, Source: source}, true
}

func (h *ChatHandler) handleSlashCommand(ctx context.Context, t *team, msg *api.UnifiedMessage) {
	cmd := strings.Fields(msg.Content)[0]
	switch strings.ToLower(cmd) {
	case "/reset":
		if err := t.rt.Publish(ctx, UserAgentID, api.ResetMessage{}); err != nil {
			h.reportError(ctx, msg.Session, err)
			return
		}
		h.reply(msg.Session, "🧹 Conversation reset.")

	case "/history":
		transcript := t.worker.History().Transcript()
		if transcript == "" {
			h.reply(msg.Session, "📭 History is empty.")
			return
		}
		h.reply(msg.Session, strings.TrimRight(transcript, "\n"))

	default:
		h.reply(msg.Session, fmt.Sprintf("❌ Unknown command %s. Available: /reset, /history", cmd))
	}
}

func (h *ChatHandler) reportError(ctx context.Context, session api.SessionContext, err error) {
	if errors.Is(err, context.Canceled) && h.ctx.Err() != nil {
		slog.InfoContext(ctx, "Reply cancelled by shutdown", "session", session.Key())
		h.reply(session, "⏹️ Request cancelled.")
		return
	}
	slog.ErrorContext(ctx, "Reply failed", "session", session.Key(), "error", err)
	h.reply(session, fmt.Sprintf("❌ Error: %v", err))
}

func (h *ChatHandler) reply(session api.SessionContext, text string) {
	if h.responder == nil {
		slog.Warn("No responder set, dropping reply", "session", session.Key())
		return
	}
	if err := h.responder.SendReply(session, text); err != nil {
		slog.Error("Failed to send reply", "session", session.Key(), "error", err)
	}
}
