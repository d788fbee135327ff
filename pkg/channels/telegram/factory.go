package telegram

import (
	"fmt"
	"os"

	"reasoner/pkg/channels"
	"reasoner/pkg/config"
	"reasoner/pkg/llm"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// TelegramFactory 負責建立 Telegram Channel
type TelegramFactory struct{}

// Create implements channels.ChannelFactory
func (f *TelegramFactory) Create(rawConfig jsoniter.RawMessage, _ *llm.SessionManager, system *config.SystemConfig) (channels.Channel, error) {
	cfg, err := parseConfig(rawConfig)
	if err != nil {
		return nil, err
	}
	if system == nil {
		system = config.DefaultSystemConfig()
	}
	return NewTelegramChannel(cfg, system.TelegramMessageLimit, system.DownloadTimeoutMs)
}

func parseConfig(raw jsoniter.RawMessage) (TelegramConfig, error) {
	var cfg TelegramConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse telegram config: %w", err)
	}
	cfg.Token = os.ExpandEnv(cfg.Token)
	if cfg.Token == "" {
		return cfg, fmt.Errorf("missing telegram token")
	}
	return cfg, nil
}

func init() {
	channels.RegisterChannel(channelID, &TelegramFactory{})
}
