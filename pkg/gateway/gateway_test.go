package gateway

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"reasoner/pkg/api"
	"reasoner/pkg/monitor"
)

type fakeChannel struct {
	id      string
	mu      sync.Mutex
	started bool
	stopped bool
	sent    []string
	signals []string
	ctx     api.ChannelContext
}

func (c *fakeChannel) ID() string { return c.id }

func (c *fakeChannel) Start(ctx api.ChannelContext) error {
	c.started = true
	c.ctx = ctx
	return nil
}

func (c *fakeChannel) Stop() error {
	c.stopped = true
	return nil
}

func (c *fakeChannel) Send(s api.SessionContext, msg string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

type signalChannel struct{ fakeChannel }

func (c *signalChannel) SendSignal(s api.SessionContext, sig string) error {
	c.signals = append(c.signals, sig)
	return nil
}

type recordingMonitor struct {
	started bool
	msgs    []monitor.MonitorMessage
}

func (m *recordingMonitor) Start() error { m.started = true; return nil }
func (m *recordingMonitor) Stop() error  { return nil }
func (m *recordingMonitor) OnMessage(msg monitor.MonitorMessage) {
	m.msgs = append(m.msgs, msg)
}

type echoHandler struct {
	responder api.MessageResponder
	got       []*api.UnifiedMessage
}

func (h *echoHandler) SetResponder(r api.MessageResponder) { h.responder = r }
func (h *echoHandler) OnMessage(msg *api.UnifiedMessage) {
	h.got = append(h.got, msg)
	_ = h.responder.SendReply(msg.Session, "echo: "+msg.Content)
}

func TestBuilder_WiresEverything(t *testing.T) {
	web := &signalChannel{fakeChannel{id: "web"}}
	tg := &fakeChannel{id: "telegram"}
	mon := &recordingMonitor{}
	h := &echoHandler{}

	gw, err := NewGatewayBuilder().
		WithMonitor(mon).
		WithChannel(web, tg).
		WithHandler(h).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !mon.started || !web.started || !tg.started {
		t.Fatal("components not started")
	}
	if h.responder != gw {
		t.Fatal("responder not injected")
	}

	session := api.SessionContext{ChannelID: "web", ChatID: "1", Username: "alice"}
	web.ctx.OnMessage("web", &api.UnifiedMessage{Session: session, Content: "hi"})

	if len(h.got) != 1 || len(web.sent) != 1 || web.sent[0] != "echo: hi" {
		t.Fatalf("handler=%d sent=%v", len(h.got), web.sent)
	}
	if len(mon.msgs) != 2 || mon.msgs[0].MessageType != monitor.MessageTypeUser || mon.msgs[1].MessageType != monitor.MessageTypeAssistant {
		t.Fatalf("monitor = %+v", mon.msgs)
	}

	gw.StopAll()
	if !web.stopped || !tg.stopped {
		t.Fatal("channels not stopped")
	}
}

func TestSendSignal(t *testing.T) {
	gw := NewGatewayManager()
	web := &signalChannel{fakeChannel{id: "web"}}
	tg := &fakeChannel{id: "telegram"}
	gw.Register(web)
	gw.Register(tg)

	if err := gw.SendSignal(api.SessionContext{ChannelID: "web"}, api.SignalThinking); err != nil {
		t.Fatal(err)
	}
	if len(web.signals) != 1 {
		t.Fatal("signal not delivered")
	}
	if err := gw.SendSignal(api.SessionContext{ChannelID: "telegram"}, api.SignalThinking); err != nil {
		t.Fatalf("unsupported signals are ignored: %v", err)
	}
}

func TestUnknownChannel(t *testing.T) {
	gw := NewGatewayManager()
	err := gw.SendReply(api.SessionContext{ChannelID: "irc"}, "x")
	if !errors.Is(err, ErrChannelNotFound) {
		t.Fatalf("expected ErrChannelNotFound, got %v", err)
	}
	if err := gw.SendSignal(api.SessionContext{ChannelID: "irc"}, "x"); !errors.Is(err, ErrChannelNotFound) {
		t.Fatalf("expected ErrChannelNotFound, got %v", err)
	}
}

func TestBuilder_ActsAsRegistrar(t *testing.T) {
	b := NewGatewayBuilder()
	b.Register(&fakeChannel{id: "web"})
	gw, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if _, ok := gw.GetChannel("web"); !ok {
		t.Fatal("registered channel missing")
	}
}

type failingChannel struct{ fakeChannel }

func (c *failingChannel) Start(api.ChannelContext) error { return errors.New("port in use") }

func TestStartAll_RollsBackOnFailure(t *testing.T) {
	ok := &fakeChannel{id: "a"}
	bad := &failingChannel{fakeChannel{id: "b"}}
	mon := &recordingMonitor{}

	_, err := NewGatewayBuilder().WithMonitor(mon).WithChannel(ok, bad).Build()
	if err == nil {
		t.Fatal("expected start failure")
	}
	if !ok.started || !ok.stopped {
		t.Fatalf("started channel not rolled back: started=%v stopped=%v", ok.started, ok.stopped)
	}
	if bad.stopped {
		t.Fatal("failed channel must not be stopped")
	}
}

func TestStopAll_JoinsErrors(t *testing.T) {
	gw := NewGatewayManager()
	gw.Register(&stopErrChannel{fakeChannel{id: "a"}})
	gw.Register(&stopErrChannel{fakeChannel{id: "b"}})
	if err := gw.StartAll(); err != nil {
		t.Fatal(err)
	}
	err := gw.StopAll()
	if err == nil || !strings.Contains(err.Error(), "stop channel a") || !strings.Contains(err.Error(), "stop channel b") {
		t.Fatalf("StopAll error = %v", err)
	}
	if err := gw.StopAll(); err != nil {
		t.Fatalf("second StopAll should be a no-op, got %v", err)
	}
}

type stopErrChannel struct{ fakeChannel }

func (c *stopErrChannel) Stop() error { return errors.New("boom") }
