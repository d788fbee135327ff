package gateway

import (
	"fmt"

	"reasoner/pkg/api"
	"reasoner/pkg/config"
	"reasoner/pkg/monitor"
)

// GatewayBuilder assembles a GatewayManager from pre-built parts. It also
// satisfies channels.Registrar, so config-loaded channels can be registered
// straight into it.
type GatewayBuilder struct {
	monitor  monitor.Monitor
	system   *config.SystemConfig
	handler  api.MessageProcessor
	channels []api.Channel
}

func NewGatewayBuilder() *GatewayBuilder {
	return &GatewayBuilder{}
}

// WithMonitor sets the monitor; Build starts it before any channel.
func (b *GatewayBuilder) WithMonitor(m monitor.Monitor) *GatewayBuilder {
	b.monitor = m
	return b
}

func (b *GatewayBuilder) WithSystemConfig(cfg *config.SystemConfig) *GatewayBuilder {
	b.system = cfg
	return b
}

func (b *GatewayBuilder) WithChannel(channels ...api.Channel) *GatewayBuilder {
	b.channels = append(b.channels, channels...)
	return b
}

// Register implements channels.Registrar.
func (b *GatewayBuilder) Register(c api.Channel) {
	b.channels = append(b.channels, c)
}

// WithHandler sets the inbound handler. A handler that is api.ResponderAware
// gets the manager injected as its responder.
func (b *GatewayBuilder) WithHandler(h api.MessageProcessor) *GatewayBuilder {
	b.handler = h
	return b
}

// Build wires everything and starts the monitor, then the channels. On a
// channel failure the monitor is stopped again.
func (b *GatewayBuilder) Build() (*GatewayManager, error) {
	gw := NewGatewayManager()
	if b.system != nil {
		gw.WithSystemConfig(b.system)
	}
	for _, c := range b.channels {
		gw.Register(c)
	}

	if b.handler != nil {
		if aware, ok := b.handler.(api.ResponderAware); ok {
			aware.SetResponder(gw)
		}
		gw.SetMessageHandler(b.handler.OnMessage)
	}

	if b.monitor != nil {
		if err := b.monitor.Start(); err != nil {
			return nil, fmt.Errorf("start monitor: %w", err)
		}
		gw.SetMonitor(b.monitor)
	}

	if err := gw.StartAll(); err != nil {
		if b.monitor != nil {
			_ = b.monitor.Stop()
		}
		return nil, err
	}
	return gw, nil
}
