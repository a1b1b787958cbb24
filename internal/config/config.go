package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the turn-taking engine service
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"8080"`

	// Deepgram streaming transcription configuration
	DeepgramAPIKey   string `envconfig:"DEEPGRAM_API_KEY" required:"true"`
	DeepgramModel    string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"`
	DeepgramLanguage string `envconfig:"DEEPGRAM_LANGUAGE" default:"en"`

	// LLM completion service configuration
	CompletionURL         string  `envconfig:"COMPLETION_URL" default:"https://api.cerebras.ai/v1/chat/completions"`
	CompletionAPIKey      string  `envconfig:"COMPLETION_API_KEY" required:"true"`
	CompletionModel       string  `envconfig:"COMPLETION_MODEL" default:"llama3.1-8b"`
	CompletionMaxTokens   int     `envconfig:"COMPLETION_MAX_TOKENS" default:"200"`
	CompletionTemperature float64 `envconfig:"COMPLETION_TEMPERATURE" default:"0.7"`

	// Avatar session service configuration
	AvatarAPIURL    string `envconfig:"AVATAR_API_URL" default:"http://localhost:9090"`
	AvatarAPIKey    string `envconfig:"AVATAR_API_KEY" default:""`
	AvatarEventsURL string `envconfig:"AVATAR_EVENTS_URL" default:"ws://localhost:9090/events"`

	// Voice activity detection configuration
	VADModelPath       string  `envconfig:"VAD_MODEL_PATH" default:"models/silero_vad.onnx"`
	UtteranceSilenceMs int     `envconfig:"VAD_UTTERANCE_SILENCE_MS" default:"600"`
	UtteranceThreshold float32 `envconfig:"VAD_UTTERANCE_THRESHOLD" default:"0.5"`
	InterruptSilenceMs int     `envconfig:"VAD_INTERRUPT_SILENCE_MS" default:"100"`
	InterruptThreshold float32 `envconfig:"VAD_INTERRUPT_THRESHOLD" default:"0.3"`

	// Session orchestration configuration
	SettleDelayMs int    `envconfig:"SESSION_SETTLE_DELAY_MS" default:"400"`
	HistoryWindow int    `envconfig:"SESSION_HISTORY_WINDOW" default:"6"`
	SystemPrompt  string `envconfig:"SESSION_SYSTEM_PROMPT" default:"You are a friendly, concise spoken tutor. Answer clearly in a few sentences."`

	// Audio processing configuration
	AudioBufferSize int `envconfig:"AUDIO_BUFFER_SIZE" default:"8192"` // Ring buffer size in bytes

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // seconds
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"` // milliseconds
	ReconnectMaxAttempts       int `envconfig:"RECONNECT_MAX_ATTEMPTS" default:"5"`
	ReconnectBackoff           int `envconfig:"RECONNECT_BACKOFF" default:"1000"` // milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"`
}

// Load reads configuration from environment variables.
// It first attempts to load from a .env file if one exists, then from environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load a .env file (useful for containerized deployments).
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.DeepgramAPIKey == "" {
		return nil, fmt.Errorf("DEEPGRAM_API_KEY is required")
	}
	if cfg.CompletionAPIKey == "" {
		return nil, fmt.Errorf("COMPLETION_API_KEY is required")
	}

	return &cfg, nil
}
