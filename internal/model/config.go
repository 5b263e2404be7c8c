package model

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete claimvoice configuration
type Config struct {
	Audio        AudioConfig       `yaml:"audio" mapstructure:"audio"`
	Recognizer   RecognizerConfig  `yaml:"recognizer" mapstructure:"recognizer"`
	LLM          LLMConfig         `yaml:"llm" mapstructure:"llm"`
	Speech       SpeechConfig      `yaml:"speech" mapstructure:"speech"`
	Dialogue     DialogueConfig    `yaml:"dialogue" mapstructure:"dialogue"`
	Webhook      WebhookConfig     `yaml:"webhook" mapstructure:"webhook"`
	RateLimiting RateLimitConfig   `yaml:"rate_limiting" mapstructure:"rate_limiting"`
	Cache        CacheConfig       `yaml:"cache" mapstructure:"cache"`
	Concurrency  ConcurrencyConfig `yaml:"concurrency" mapstructure:"concurrency"`
	Logging      LoggingConfig     `yaml:"logging" mapstructure:"logging"`
	Metrics      MetricsConfig     `yaml:"metrics" mapstructure:"metrics"`
}

// AudioConfig controls microphone capture
type AudioConfig struct {
	Device          string `yaml:"device" mapstructure:"device"`           // "-" for stdin, *.wav, or raw PCM path
	SampleRate      int    `yaml:"sample_rate" mapstructure:"sample_rate"` // Hz
	BlockSize       int    `yaml:"block_size" mapstructure:"block_size"`   // frames per block
	Channels        int    `yaml:"channels" mapstructure:"channels"`
	MaxQueuedBlocks int    `yaml:"max_queued_blocks" mapstructure:"max_queued_blocks"` // 0 = unbounded
	Realtime        bool   `yaml:"realtime" mapstructure:"realtime"`                   // pace file input at capture speed
}

// RecognizerConfig configures the streaming speech recognizer
type RecognizerConfig struct {
	URL      string        `yaml:"url" mapstructure:"url"`
	APIKey   string        `yaml:"api_key,omitempty" mapstructure:"api_key"`
	Model    string        `yaml:"model" mapstructure:"model"`
	Language string        `yaml:"language" mapstructure:"language"`
	Timeout  time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// LLMConfig configures the understanding service
type LLMConfig struct {
	Provider  string `yaml:"provider" mapstructure:"provider"` // openai, anthropic, ollama
	Model     string `yaml:"model" mapstructure:"model"`
	APIKey    string `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL   string `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout   int    `yaml:"timeout" mapstructure:"timeout"` // seconds
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`

	HTTPProxy  string `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy string `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
}

// SpeechConfig configures voice synthesis and playback
type SpeechConfig struct {
	Provider string `yaml:"provider" mapstructure:"provider"` // elevenlabs, none
	APIKey   string `yaml:"api_key,omitempty" mapstructure:"api_key"`
	VoiceID  string `yaml:"voice_id" mapstructure:"voice_id"`
	Model    string `yaml:"model" mapstructure:"model"`
	URL      string `yaml:"url,omitempty" mapstructure:"url"`
	Output   string `yaml:"output" mapstructure:"output"` // file path for PCM output, "" discards
}

// DialogueConfig holds the turn orchestration policy
type DialogueConfig struct {
	// FrustrationThreshold triggers a specialist handoff when exceeded.
	// Product has not settled between 5.0 and 7.0.
	FrustrationThreshold float64       `yaml:"frustration_threshold" mapstructure:"frustration_threshold"`
	HistorySize          int           `yaml:"history_size" mapstructure:"history_size"`
	ContextLines         int           `yaml:"context_lines" mapstructure:"context_lines"`
	BusyPollInterval     time.Duration `yaml:"busy_poll_interval" mapstructure:"busy_poll_interval"`
	EventBuffer          int           `yaml:"event_buffer" mapstructure:"event_buffer"`
	CallTimeout          time.Duration `yaml:"call_timeout" mapstructure:"call_timeout"`
}

// WebhookConfig configures ticket delivery
type WebhookConfig struct {
	URL     string        `yaml:"url" mapstructure:"url"`
	Token   string        `yaml:"token,omitempty" mapstructure:"token"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// RateLimitConfig limits outbound requests per host
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size" mapstructure:"burst_size"`
}

// CacheConfig configures the synthesized-audio cache
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir       string        `yaml:"dir" mapstructure:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// ConcurrencyConfig controls replay parallelism
type ConcurrencyConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// LoggingConfig controls slog output
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // text, json
}

// MetricsConfig exposes prometheus metrics
type MetricsConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"` // "" disables the listener
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Audio: AudioConfig{
			Device:     "-",
			SampleRate: 16000,
			BlockSize:  8000,
			Channels:   1,
		},
		Recognizer: RecognizerConfig{
			URL:      "wss://api.cartesia.ai/stt/websocket",
			Model:    "ink-whisper",
			Language: "en",
			Timeout:  10 * time.Second,
		},
		LLM: LLMConfig{
			Provider:  "openai",
			Model:     "gpt-4o-mini",
			Timeout:   15,
			MaxTokens: 600,
		},
		Speech: SpeechConfig{
			Provider: "elevenlabs",
			VoiceID:  "2EiwWnXFnvU5JabPnv8n",
			Model:    "eleven_multilingual_v2",
		},
		Dialogue: DialogueConfig{
			FrustrationThreshold: 5.0,
			HistorySize:          20,
			ContextLines:         6,
			BusyPollInterval:     100 * time.Millisecond,
			EventBuffer:          64,
			CallTimeout:          30 * time.Minute,
		},
		Webhook: WebhookConfig{
			Timeout: 10 * time.Second,
		},
		RateLimiting: RateLimitConfig{
			RequestsPerSecond: 5,
			BurstSize:         5,
		},
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       defaultCacheDir(),
			MemoryTTL: time.Hour,
			DiskTTL:   7 * 24 * time.Hour,
		},
		Concurrency: ConcurrencyConfig{
			Workers: 4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func defaultCacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".claimvoice/cache"
	}
	return home + "/.claimvoice/cache"
}

// LoadConfig reads a YAML file on top of the defaults
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for values the call loop cannot run with
func (c *Config) Validate() error {
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate must be positive, got %d", c.Audio.SampleRate)
	}
	if c.Audio.BlockSize <= 0 {
		return fmt.Errorf("audio.block_size must be positive, got %d", c.Audio.BlockSize)
	}
	if c.Audio.Channels <= 0 {
		return fmt.Errorf("audio.channels must be positive, got %d", c.Audio.Channels)
	}
	if c.Audio.MaxQueuedBlocks < 0 {
		return fmt.Errorf("audio.max_queued_blocks must not be negative, got %d", c.Audio.MaxQueuedBlocks)
	}
	if c.Dialogue.FrustrationThreshold < 0 || c.Dialogue.FrustrationThreshold > 10 {
		return fmt.Errorf("dialogue.frustration_threshold must be within [0,10], got %v", c.Dialogue.FrustrationThreshold)
	}
	if c.Dialogue.ContextLines <= 0 {
		return fmt.Errorf("dialogue.context_lines must be positive, got %d", c.Dialogue.ContextLines)
	}
	if c.Dialogue.HistorySize < c.Dialogue.ContextLines {
		return fmt.Errorf("dialogue.history_size (%d) must hold at least context_lines (%d)", c.Dialogue.HistorySize, c.Dialogue.ContextLines)
	}
	if c.Concurrency.Workers <= 0 {
		return fmt.Errorf("concurrency.workers must be positive, got %d", c.Concurrency.Workers)
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	return nil
}
