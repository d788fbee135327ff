package anthropic

import (
	"fmt"
	"log/slog"

	"reasoner/pkg/config"
	"reasoner/pkg/llm"
)

// AnthropicFactory handles creation of Anthropic Clients
type AnthropicFactory struct{}

// Create implements ProviderFactory
func (f *AnthropicFactory) Create(cfg llm.ProviderGroupConfig, sys *config.SystemConfig) ([]llm.LLMClient, error) {
	if len(cfg.APIKeys) == 0 {
		return nil, fmt.Errorf("anthropic: no api_keys configured")
	}

	var clients []llm.LLMClient
	for _, model := range cfg.Models {
		for _, key := range cfg.APIKeys {
			client, err := NewClient(key, model, cfg.BaseURL, cfg.Options)
			if err != nil {
				slog.Warn("Skipping anthropic client", "model", model, "error", err)
				continue
			}
			clients = append(clients, client)
		}
	}
	if len(clients) == 0 {
		return nil, fmt.Errorf("anthropic: no usable clients")
	}
	return clients, nil
}

func init() {
	llm.RegisterProvider(providerName, &AnthropicFactory{})
}
