package web

import (
	"fmt"
	"os"

	"reasoner/pkg/channels"
	"reasoner/pkg/config"
	"reasoner/pkg/llm"

	jsoniter "github.com/json-iterator/go"
)

// DefaultPort is used when the web config leaves port empty.
const DefaultPort = 8080

// WebFactory 負責建立 Web Channel
type WebFactory struct{}

// Create implements channels.ChannelFactory
func (f *WebFactory) Create(rawConfig jsoniter.RawMessage, sessions *llm.SessionManager, system *config.SystemConfig) (channels.Channel, error) {
	cfg := WebConfig{Port: DefaultPort}
	if len(rawConfig) > 0 {
		if err := json.Unmarshal(rawConfig, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse web config: %w", err)
		}
	}
	cfg.JWTSecret = os.ExpandEnv(cfg.JWTSecret)
	return NewWebChannel(cfg, sessions), nil
}

func init() {
	channels.RegisterChannel(channelID, &WebFactory{})
}
