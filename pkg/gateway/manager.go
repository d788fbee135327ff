package gateway

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"reasoner/pkg/api"
	"reasoner/pkg/config"
	"reasoner/pkg/monitor"
)

// ErrChannelNotFound is returned when a reply targets an unregistered channel.
var ErrChannelNotFound = errors.New("channel not found")

// GatewayManager owns the running channels. Inbound traffic goes to the
// message handler; replies and signals come back through SendReply and
// SendSignal, which makes the manager the handler's api.MessageResponder.
type GatewayManager struct {
	channels map[string]api.Channel
	started  []string
	handler  api.MessageHandler
	monitor  monitor.Monitor
	system   *config.SystemConfig
	mu       sync.RWMutex
}

var (
	_ api.ChannelContext   = (*GatewayManager)(nil)
	_ api.MessageResponder = (*GatewayManager)(nil)
)

func NewGatewayManager() *GatewayManager {
	return &GatewayManager{
		channels: make(map[string]api.Channel),
	}
}

// WithSystemConfig 套用系統層級設定
func (g *GatewayManager) WithSystemConfig(cfg *config.SystemConfig) {
	g.system = cfg
}

func (g *GatewayManager) SetMessageHandler(h api.MessageHandler) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.handler = h
}

func (g *GatewayManager) SetMonitor(m monitor.Monitor) {
	g.monitor = m
}

// Register adds a channel. A later channel with the same ID replaces the earlier one.
func (g *GatewayManager) Register(c api.Channel) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, dup := g.channels[c.ID()]; dup {
		slog.Warn("Channel registered twice, keeping the newest", "channel", c.ID())
	}
	g.channels[c.ID()] = c
}

func (g *GatewayManager) GetChannel(id string) (api.Channel, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	c, ok := g.channels[id]
	return c, ok
}

// ChannelIDs lists registered channels in sorted order.
func (g *GatewayManager) ChannelIDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := make([]string, 0, len(g.channels))
	for id := range g.channels {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

//----------------------------------------------------------------
// Lifecycle
//----------------------------------------------------------------

// StartAll starts the channels in ID order. When one fails, the channels
// already running are stopped again before the error is returned.
func (g *GatewayManager) StartAll() error {
	for _, id := range g.ChannelIDs() {
		c, _ := g.GetChannel(id)
		slog.Info("Starting channel", "channel", id)
		if err := c.Start(g); err != nil {
			if stopErr := g.stopStarted(); stopErr != nil {
				slog.Warn("Rollback after failed start was incomplete", "error", stopErr)
			}
			return fmt.Errorf("start channel %s: %w", id, err)
		}
		g.mu.Lock()
		g.started = append(g.started, id)
		g.mu.Unlock()
	}
	return nil
}

// StopAll stops the running channels in reverse start order, then the monitor.
func (g *GatewayManager) StopAll() error {
	err := g.stopStarted()
	if g.monitor != nil {
		if mErr := g.monitor.Stop(); mErr != nil {
			err = errors.Join(err, fmt.Errorf("stop monitor: %w", mErr))
		}
	}
	if err != nil {
		slog.Error("Gateway stopped with errors", "error", err)
	}
	return err
}

func (g *GatewayManager) stopStarted() error {
	g.mu.Lock()
	started := g.started
	g.started = nil
	g.mu.Unlock()

	var errs []error
	for i := len(started) - 1; i >= 0; i-- {
		c, ok := g.GetChannel(started[i])
		if !ok {
			continue
		}
		slog.Info("Stopping channel", "channel", started[i])
		if err := c.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop channel %s: %w", started[i], err))
		}
	}
	return errors.Join(errs...)
}

//----------------------------------------------------------------
// Routing
//----------------------------------------------------------------

// SendReply delivers an agent reply to the session's channel.
func (g *GatewayManager) SendReply(session api.SessionContext, content string) error {
	slog.Debug("Reply", "channel", session.ChannelID, "chat", session.ChatID, "chars", len(content))
	g.mirror(monitor.MessageTypeAssistant, session, content)

	c, ok := g.GetChannel(session.ChannelID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrChannelNotFound, session.ChannelID)
	}
	return c.Send(session, content)
}

// SendSignal forwards a control signal (e.g. thinking). Channels without
// signal support ignore it.
func (g *GatewayManager) SendSignal(session api.SessionContext, signal string) error {
	c, ok := g.GetChannel(session.ChannelID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrChannelNotFound, session.ChannelID)
	}
	sc, ok := c.(api.SignalingChannel)
	if !ok {
		return nil
	}
	slog.Debug("Signal", "channel", session.ChannelID, "chat", session.ChatID, "signal", signal)
	return sc.SendSignal(session, signal)
}

// OnMessage implements api.ChannelContext.
func (g *GatewayManager) OnMessage(channelID string, msg *api.UnifiedMessage) {
	slog.Info("Received message",
		"channel", channelID, "chat", msg.Session.ChatID, "user", msg.Session.Username,
		"chars", len(msg.Content), "files", len(msg.Files))
	g.mirror(monitor.MessageTypeUser, msg.Session, msg.Content)

	g.mu.RLock()
	h := g.handler
	g.mu.RUnlock()
	if h == nil {
		slog.Warn("No message handler set, dropping message", "channel", channelID)
		return
	}
	h(msg)
}

func (g *GatewayManager) mirror(kind string, session api.SessionContext, content string) {
	if g.monitor == nil {
		return
	}
	g.monitor.OnMessage(monitor.MonitorMessage{
		Timestamp:   time.Now(),
		MessageType: kind,
		ChannelID:   session.ChannelID,
		Username:    session.Username,
		Content:     content,
	})
}
