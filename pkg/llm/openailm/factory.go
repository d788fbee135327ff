package openailm

import (
	"fmt"
	"log/slog"

	"reasoner/pkg/config"
	"reasoner/pkg/llm"
)

// OpenAIFactory handles creation of OpenAI Clients
type OpenAIFactory struct{}

// Create implements ProviderFactory
func (f *OpenAIFactory) Create(cfg llm.ProviderGroupConfig, sys *config.SystemConfig) ([]llm.LLMClient, error) {
	keys := cfg.APIKeys
	if len(keys) == 0 {
		// 本地 OpenAI 相容服務通常不需要 key
		keys = []string{""}
	}

	provider := cfg.Type
	if provider == "" {
		provider = "openai"
	}

	var clients []llm.LLMClient
	for _, model := range cfg.Models {
		for _, key := range keys {
			client, err := NewClient(provider, key, model, cfg.BaseURL, cfg.Options)
			if err != nil {
				slog.Error("Failed to create OpenAI client", "model", model, "error", err)
				continue
			}
			clients = append(clients, client)
		}
	}
	if len(clients) == 0 {
		return nil, fmt.Errorf("%s: no usable clients", provider)
	}
	return clients, nil
}

func init() {
	llm.RegisterProvider("openai", &OpenAIFactory{})
}
