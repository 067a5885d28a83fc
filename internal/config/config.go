package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config aggregates every setting of the backend.
type Config struct {
	Server  ServerConfig
	Log     LogConfig
	Auth    AuthConfig
	Chat    ChatConfig
	Storage StorageConfig
	AI      AIConfig
}

// Load reads configuration from the environment. Call godotenv.Load first to
// pick up a local .env file.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values env parsing accepts but the server cannot use.
func (c *Config) Validate() error {
	if _, err := c.Server.Addr(); err != nil {
		return err
	}
	switch c.Storage.Driver {
	case "", "memory", "redis", "sqlite":
	default:
		return fmt.Errorf("%w: unknown STORAGE_DRIVER %q", ErrInvalidConfig, c.Storage.Driver)
	}
	if c.Storage.Driver == "redis" && strings.TrimSpace(c.Storage.RedisURL) == "" {
		return fmt.Errorf("%w: REDIS_URL is required for the redis driver", ErrInvalidConfig)
	}
	if c.Chat.MaxMessageLength < 1 {
		return fmt.Errorf("%w: CHAT_MAX_MESSAGE_LENGTH must be positive", ErrInvalidConfig)
	}
	if c.Chat.SendBuffer < 1 {
		return fmt.Errorf("%w: CHAT_SEND_BUFFER must be positive", ErrInvalidConfig)
	}
	return nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Port        string   `env:"PORT" envDefault:"3000"`
	CORSOrigins []string `env:"CORS_ORIGIN" envSeparator:"," envDefault:"https://martialartscode.github.io,http://localhost:8000,http://127.0.0.1:8000"`
	Environment string   `env:"APP_ENV" envDefault:"development"`
}

// Addr turns PORT into a listen address.
func (c ServerConfig) Addr() (string, error) {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "3000"
	}

	if strings.Contains(port, ":") {
		// accept ":3000" or "127.0.0.1:3000" as given
		return port, nil
	}

	if strings.Contains(port, " ") {
		return "", fmt.Errorf("%w: invalid PORT value %q", ErrInvalidConfig, port)
	}

	return ":" + port, nil
}

// Development reports whether every browser origin is accepted.
func (c ServerConfig) Development() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "development")
}

// LogConfig selects the log handler.
type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"text"`
}

// AuthConfig configures staff tokens and logins.
type AuthConfig struct {
	JWTSecret string        `env:"JWT_SECRET"`
	JWTExpiry time.Duration `env:"JWT_EXPIRY" envDefault:"1h"`
	// StaffAccounts maps a lowercase email to its bcrypt hash. In a .env file
	// the value must be single quoted so the $ of the hashes is kept.
	StaffAccounts map[string]string `env:"STAFF_ACCOUNTS" envSeparator:"," envKeyValSeparator:":"`
}

// ChatConfig tunes the chat protocol and supplies the auto-response defaults
// used until staff save their own.
type ChatConfig struct {
	MaxMessageLength int           `env:"CHAT_MAX_MESSAGE_LENGTH" envDefault:"2000"`
	SendBuffer       int           `env:"CHAT_SEND_BUFFER" envDefault:"64"`
	SessionIdleTTL   time.Duration `env:"CHAT_SESSION_IDLE_TTL" envDefault:"0s"`
	SweepInterval    time.Duration `env:"CHAT_SWEEP_INTERVAL" envDefault:"10m"`

	AutoResponseEnabled bool    `env:"AUTO_RESPONSE_ENABLED" envDefault:"true"`
	AutoResponseMessage string  `env:"AUTO_RESPONSE_MESSAGE" envDefault:"Thanks! We'll respond shortly."`
	AutoResponseDelay   float64 `env:"AUTO_RESPONSE_DELAY_SECONDS" envDefault:"2"`
}

// StorageConfig picks the durable backend.
type StorageConfig struct {
	Driver      string `env:"STORAGE_DRIVER" envDefault:"memory"`
	RedisURL    string `env:"REDIS_URL"`
	RedisPrefix string `env:"REDIS_KEY_PREFIX" envDefault:"pta:chat:"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"chat.db"`
}

// AIConfig describes the Ark chat model used to draft auto-replies.
type AIConfig struct {
	APIKey      string   `env:"ARK_API_KEY"`
	AccessKey   string   `env:"ARK_ACCESS_KEY"`
	SecretKey   string   `env:"ARK_SECRET_KEY"`
	Model       string   `env:"Model"`
	BaseURL     string   `env:"ARK_BASE_URL" envDefault:"https://ark.cn-beijing.volces.com/api/v3"`
	Region      string   `env:"ARK_REGION" envDefault:"cn-beijing"`
	Temperature *float64 `env:"ARK_TEMPERATURE"`
	TopP        *float64 `env:"ARK_TOP_P"`
	MaxTokens   *int     `env:"ARK_MAX_TOKENS"`

	AutoReply    bool   `env:"AUTO_RESPONSE_AI" envDefault:"false"`
	SystemPrompt string `env:"AUTO_RESPONSE_AI_PROMPT"`
}

// Enabled reports whether the required credentials are present.
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel creates a model instance from the configuration.
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("%w: Ark credentials or model missing, set ARK_API_KEY + Model or an AK/SK pair", ErrInvalidConfig)
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}
