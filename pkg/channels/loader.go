package channels

import (
	"log/slog"
	"sort"

	"reasoner/pkg/config"
	"reasoner/pkg/llm"

	jsoniter "github.com/json-iterator/go"
)

// Registrar receives built channels (gateway.GatewayBuilder, GatewayManager).
type Registrar interface {
	Register(c Channel)
}

// LoadFromConfig builds every configured channel with a known factory and
// registers it. Channels are created in name order. Unknown names and
// factory errors are logged and skipped. It returns the registered names.
func LoadFromConfig(gw Registrar, configs map[string]jsoniter.RawMessage, sessions *llm.SessionManager, system *config.SystemConfig) []string {
	names := make([]string, 0, len(configs))
	for name := range configs {
		names = append(names, name)
	}
	sort.Strings(names)

	var loaded []string
	for _, name := range names {
		factory, ok := GetChannelFactory(name)
		if !ok {
			slog.Warn("Unknown channel type", "name", name)
			continue
		}

		channel, err := factory.Create(configs[name], sessions, system)
		if err != nil {
			slog.Error("Failed to create channel", "name", name, "error", err)
			continue
		}
		if channel == nil {
			continue
		}

		gw.Register(channel)
		loaded = append(loaded, name)
		slog.Info("Channel registered", "name", name)
	}
	return loaded
}
