// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Supported LLM providers.
const (
	ProviderAzure  = "azure"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the REST API listens on (e.g. :8000).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr is the address the gRPC health server listens on.
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
	// AuthBypassLocal injects the dev tenant and user instead of validating tokens.
	// Must not be true when Env is production.
	AuthBypassLocal bool `mapstructure:"AUTH_BYPASS_LOCAL"`

	// JWTPublicKey is the identity provider's PEM public key (RSA or ECDSA) or a path to it.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTPrivateKey is only needed to issue local development tokens.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	JWTIssuer     string `mapstructure:"JWT_ISSUER"`
	JWTAudience   string `mapstructure:"JWT_AUDIENCE"`
	JWTAccessTTL  string `mapstructure:"JWT_ACCESS_TTL"`

	// RateLimitPerMinute is the default per-endpoint request budget.
	RateLimitPerMinute int `mapstructure:"RATE_LIMIT_PER_MINUTE"`
	// CORSOrigins is a comma-separated allow list.
	CORSOrigins string `mapstructure:"CORS_ORIGINS"`

	LLMProvider           string `mapstructure:"LLM_PROVIDER"`
	AzureOpenAIEndpoint   string `mapstructure:"AZURE_OPENAI_ENDPOINT"`
	AzureOpenAIAPIKey     string `mapstructure:"AZURE_OPENAI_API_KEY"`
	AzureOpenAIDeployment string `mapstructure:"AZURE_OPENAI_DEPLOYMENT"`
	AzureOpenAIAPIVersion string `mapstructure:"AZURE_OPENAI_API_VERSION"`
	OpenAIAPIKey          string `mapstructure:"OPENAI_API_KEY"`
	OpenAIModel           string `mapstructure:"OPENAI_MODEL"`
	GeminiAPIKey          string `mapstructure:"GEMINI_API_KEY"`
	GeminiModel           string `mapstructure:"GEMINI_MODEL"`
	// LLMTimeoutRaw bounds one completion, streaming included (e.g. "120s").
	LLMTimeoutRaw string `mapstructure:"LLM_TIMEOUT"`

	MaxUserMessageLength  int     `mapstructure:"MAX_USER_MESSAGE_LENGTH"`
	AIConfidenceThreshold float64 `mapstructure:"AI_CONFIDENCE_THRESHOLD"`

	OTelEndpoint    string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTelInsecure    bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	OTelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	// Telemetry (optional). When Kafka brokers are set, request telemetry and domain-event
	// notifications are produced to Kafka.
	TelemetryKafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	TelemetryKafkaTopic   string `mapstructure:"TELEMETRY_KAFKA_TOPIC"`

	// Worker-only: Loki URL for the telemetry worker to push logs (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`
	// KafkaGroupID is the consumer group ID for the telemetry worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8000")
	v.SetDefault("GRPC_ADDR", ":8081")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("AUTH_BYPASS_LOCAL", false)
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_ISSUER", "praxis-auth")
	v.SetDefault("JWT_AUDIENCE", "praxis-api")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("RATE_LIMIT_PER_MINUTE", 100)
	v.SetDefault("CORS_ORIGINS", "http://localhost:5173")
	v.SetDefault("LLM_PROVIDER", ProviderAzure)
	v.SetDefault("AZURE_OPENAI_ENDPOINT", "")
	v.SetDefault("AZURE_OPENAI_API_KEY", "")
	v.SetDefault("AZURE_OPENAI_DEPLOYMENT", "")
	v.SetDefault("AZURE_OPENAI_API_VERSION", "2024-02-15-preview")
	v.SetDefault("OPENAI_API_KEY", "")
	v.SetDefault("OPENAI_MODEL", "gpt-4o-mini")
	v.SetDefault("GEMINI_API_KEY", "")
	v.SetDefault("GEMINI_MODEL", "gemini-1.5-flash-latest")
	v.SetDefault("LLM_TIMEOUT", "120s")
	v.SetDefault("MAX_USER_MESSAGE_LENGTH", 8000)
	v.SetDefault("AI_CONFIDENCE_THRESHOLD", 0.85)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "praxis-pilot-api")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("TELEMETRY_KAFKA_TOPIC", "praxis-telemetry")
	v.SetDefault("KAFKA_GROUP_ID", "praxis-telemetry-worker")
	v.SetDefault("LOKI_URL", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.GRPCAddr == "" {
		return nil, errors.New("config: GRPC_ADDR must be set")
	}
	if cfg.AuthBypassLocal && cfg.Env == "production" {
		return nil, errors.New("config: AUTH_BYPASS_LOCAL must not be true when APP_ENV=production")
	}
	cfg.LLMProvider = strings.ToLower(strings.TrimSpace(cfg.LLMProvider))
	switch cfg.LLMProvider {
	case ProviderAzure, ProviderOpenAI, ProviderGemini:
	default:
		return nil, errors.New("config: LLM_PROVIDER must be azure, openai or gemini")
	}
	if cfg.RateLimitPerMinute <= 0 {
		return nil, errors.New("config: RATE_LIMIT_PER_MINUTE must be positive")
	}
	if cfg.MaxUserMessageLength <= 0 {
		return nil, errors.New("config: MAX_USER_MESSAGE_LENGTH must be positive")
	}
	if cfg.AIConfidenceThreshold < 0 || cfg.AIConfidenceThreshold > 1 {
		return nil, errors.New("config: AI_CONFIDENCE_THRESHOLD must be between 0 and 1")
	}

	return &cfg, nil
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTAccessTTL)
	if err != nil || d <= 0 {
		return 15 * time.Minute
	}
	return d
}

// LLMTimeout parses LLMTimeoutRaw. Returns 120s if unset or invalid.
func (c *Config) LLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLMTimeoutRaw)
	if err != nil || d <= 0 {
		return 120 * time.Second
	}
	return d
}

// LLMConfigured reports whether the selected provider has the credentials it needs.
func (c *Config) LLMConfigured() bool {
	switch c.LLMProvider {
	case ProviderAzure:
		return c.AzureOpenAIEndpoint != "" && c.AzureOpenAIAPIKey != "" && c.AzureOpenAIDeployment != ""
	case ProviderOpenAI:
		return c.OpenAIAPIKey != ""
	case ProviderGemini:
		return c.GeminiAPIKey != ""
	}
	return false
}

// TelemetryKafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if telemetry is enabled (non-empty list) and to create the producer.
func (c *Config) TelemetryKafkaBrokersList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.TelemetryKafkaBrokers)
}

// CORSOriginsList returns the allowed CORS origins.
func (c *Config) CORSOriginsList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.CORSOrigins)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
