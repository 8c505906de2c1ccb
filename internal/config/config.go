package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Transport selects how the voice client reaches the realtime endpoint.
const (
	TransportWebRTC    = "webrtc"
	TransportWebSocket = "websocket"
	TransportMock      = "mock"
)

// Config contains all runtime settings for the broker and the voice client.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AzureEndpoint   string
	AzureAPIKey     string
	AzureDeployment string
	AzureAPIVersion string
	AzureRegion     string

	BrokerURL string
	Transport string

	Voice                string
	AssistantRole        string
	AssistantPersonality string
	AssistantWordLimit   int
	AssistantLanguage    string

	// RecordPath, when set, captures assistant audio to a WAV file.
	RecordPath string

	DatabaseURL string
}

// Load reads environment variables and applies safe defaults. The Azure
// credentials are validated by the caller that needs them; a client talking
// to a remote broker never sees the standing API key.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "parla"),
		AzureEndpoint:    envTrimmed("AZURE_OPENAI_ENDPOINT"),
		AzureAPIKey:      envTrimmed("AZURE_OPENAI_API_KEY"),
		AzureDeployment:  envOrDefault("AZURE_OPENAI_DEPLOYMENT_NAME", "gpt-realtime"),
		AzureAPIVersion:  envOrDefault("AZURE_OPENAI_API_VERSION", "2025-04-01-preview"),
		AzureRegion:      envOrDefault("AZURE_REGION", "eastus2"),
		BrokerURL:        envOrDefault("BROKER_URL", "http://localhost:8080"),
		Transport:        strings.ToLower(envOrDefault("REALTIME_TRANSPORT", TransportWebRTC)),
		Voice:            envOrDefault("VOICE", "alloy"),
		// Persona defaults mirror the broker's stock assistant.
		AssistantRole:        envOrDefault("ASSISTANT_ROLE", "a helpful voice assistant"),
		AssistantPersonality: envOrDefault("ASSISTANT_PERSONALITY", "friendly and concise"),
		AssistantWordLimit:   60,
		AssistantLanguage:    envOrDefault("ASSISTANT_LANGUAGE", ""),
		RecordPath:           envTrimmed("RECORD_PATH"),
		DatabaseURL:          envTrimmed("DATABASE_URL"),
		ShutdownTimeout:      15 * time.Second,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AssistantWordLimit, err = intFromEnv("ASSISTANT_WORD_LIMIT", cfg.AssistantWordLimit)
	if err != nil {
		return Config{}, err
	}

	switch cfg.Transport {
	case TransportWebRTC, TransportWebSocket, TransportMock:
	default:
		return Config{}, fmt.Errorf("REALTIME_TRANSPORT must be one of webrtc, websocket, mock")
	}
	if cfg.ShutdownTimeout < time.Second {
		return Config{}, fmt.Errorf("APP_SHUTDOWN_TIMEOUT must be at least 1s")
	}
	if cfg.AssistantWordLimit < 0 {
		return Config{}, fmt.Errorf("ASSISTANT_WORD_LIMIT must be >= 0")
	}

	return cfg, nil
}

// RequireAzure validates the settings the broker needs to mint ephemeral keys.
func (c Config) RequireAzure() error {
	if c.AzureEndpoint == "" {
		return fmt.Errorf("AZURE_OPENAI_ENDPOINT is required")
	}
	if c.AzureAPIKey == "" {
		return fmt.Errorf("AZURE_OPENAI_API_KEY is required")
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func envTrimmed(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}
