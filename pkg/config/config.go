package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrMissingLLM is returned by Validate when no model provider is configured.
var ErrMissingLLM = errors.New("mandatory 'llm' configuration is missing or empty")

// Config defines the global application configuration structure.
// This structure maps directly to the config.json file and holds
// business-level settings like channel API keys and LLM provider choices.
type Config struct {
	// Channels contains a map of channel identifiers (e.g., "telegram", "web")
	// to their specific configuration payloads in raw JSON format.
	Channels map[string]jsoniter.RawMessage `json:"channels"`
	// LLM holds the provider group list in raw JSON; each provider package
	// decodes its own options.
	LLM jsoniter.RawMessage `json:"llm"`
	// Reasoner customizes the reasoning agent.
	Reasoner ReasonerConfig `json:"reasoner"`
}

// ReasonerConfig holds the agent identity settings.
type ReasonerConfig struct {
	// Name is the agent id on the message bus and the source label of its replies.
	Name string `json:"name"`
	// Description overrides the default capability description advertised
	// to other agents.
	Description string `json:"description"`
}

// DefaultReasonerName is used when reasoner.name is empty.
const DefaultReasonerName = "Reasoner"

// Validate ensures the configuration structure contains all mandatory fields.
// It acts as a primary guard before the system proceeds to initialization.
func (c *Config) Validate() error {
	if len(c.LLM) == 0 || strings.TrimSpace(string(c.LLM)) == "null" {
		return ErrMissingLLM
	}
	return nil
}

// ReasonerName returns the configured agent name or the default.
func (c *Config) ReasonerName() string {
	if name := strings.TrimSpace(c.Reasoner.Name); name != "" {
		return name
	}
	return DefaultReasonerName
}

// SystemConfig defines engine-level technical parameters.
// These settings are usually stored in system.json and control the
// reliability and technical behavior of the model clients and channels.
type SystemConfig struct {
	// MaxRetries is the number of times a provider is attempted on a
	// transient error before falling back to the next one.
	MaxRetries int `json:"max_retries"`
	// RetryDelayMs is the base delay (in milliseconds) between
	// consecutive retry attempts; it grows linearly with the attempt number.
	RetryDelayMs int `json:"retry_delay_ms"`
	// LLMTimeoutMs is the hard cutoff time (in milliseconds) for an
	// LLM request. Zero disables the cutoff.
	LLMTimeoutMs int `json:"llm_timeout_ms"`
	// OllamaDefaultURL is the fallback endpoint used when connecting
	// to a local Ollama instance if no specific URL is provided.
	OllamaDefaultURL string `json:"ollama_default_url"`
	// TelegramMessageLimit is the maximum character count for a single
	// Telegram message. Longer responses will be split into multiple chunks.
	TelegramMessageLimit int `json:"telegram_message_limit"`
	// DownloadTimeoutMs is the timeout (in milliseconds) applied when
	// fetching external media or files (e.g., from Telegram servers).
	DownloadTimeoutMs int `json:"download_timeout_ms"`
	// DebugChunks enables saving every raw LLM response chunk to the /debug
	// folder for inspection and troubleshooting purposes.
	DebugChunks bool `json:"debug_chunks"`
	// LogLevel sets the minimum severity for log output.
	// Accepted values: "debug", "info", "warn", "error". Default: "info".
	LogLevel string `json:"log_level"`
	// LogFile, when set, additionally writes logs to a size-rotated file.
	LogFile string `json:"log_file"`
	// ArchivePath is the BoltDB file that records every channel and agent
	// message. Empty disables the archive.
	ArchivePath string `json:"archive_path"`
	// AttachmentTTLHours is how long uploaded files are kept before the
	// periodic sweep removes them. Zero keeps them forever.
	AttachmentTTLHours int `json:"attachment_ttl_hours"`
}

// AttachmentTTL returns AttachmentTTLHours as a duration.
func (s *SystemConfig) AttachmentTTL() time.Duration {
	return time.Duration(s.AttachmentTTLHours) * time.Hour
}

// LLMTimeout returns LLMTimeoutMs as a duration.
func (s *SystemConfig) LLMTimeout() time.Duration {
	return time.Duration(s.LLMTimeoutMs) * time.Millisecond
}

// DefaultSystemConfig returns a SystemConfig pointer initialized with hardcoded
// safe default values. This is used as a fallback when the system.json file
// is missing or corrupt, ensuring the engine can always start.
func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		MaxRetries:           3,
		RetryDelayMs:         500,
		LLMTimeoutMs:         600000,
		OllamaDefaultURL:     "http://localhost:11434",
		TelegramMessageLimit: 4000,
		DownloadTimeoutMs:    10000,
		LogLevel:             "info",
		ArchivePath:          "data/archive.db",
		AttachmentTTLHours:   72,
	}
}

// Load reads and parses the application config at appPath and the system
// config at sysPath. The application config is mandatory; the system config
// falls back to defaults.
func Load(appPath, sysPath string) (*Config, *SystemConfig, error) {
	cfg, err := LoadAppConfig(appPath)
	if err != nil {
		return nil, nil, err
	}
	return cfg, LoadSystemConfig(sysPath), nil
}

// LoadAppConfig reads and validates config.json.
func LoadAppConfig(path string) (*Config, error) {
	appFile, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file '%s' not found. please create one", path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(appFile, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadSystemConfig attempts to load system settings, returns defaults if it fails
func LoadSystemConfig(path string) *SystemConfig {
	cfg := DefaultSystemConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		return cfg // File not found, use defaults
	}

	if err := json.Unmarshal(file, cfg); err != nil {
		return DefaultSystemConfig() // Parse failed, use defaults
	}

	return cfg
}
