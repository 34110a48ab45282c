package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	apperrors "conduit/internal/pkg/errors"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	State    StateConfig    `mapstructure:"state"`
	Vault    VaultConfig    `mapstructure:"vault"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Webhooks WebhooksConfig `mapstructure:"webhooks"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port" validate:"gte=0,lte=65535"`
	PublicURL    string        `mapstructure:"public_url"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`

	// ProviderCacheTTL bounds how long provider settings are served from memory.
	ProviderCacheTTL time.Duration `mapstructure:"provider_cache_ttl"`
}

type DatabaseConfig struct {
	// Driver is either "sqlite3" or "postgres".
	Driver         string        `mapstructure:"driver" validate:"oneof=sqlite3 postgres"`
	URL            string        `mapstructure:"url" validate:"required"`
	MaxConnections int           `mapstructure:"max_connections"`
	MaxIdle        int           `mapstructure:"max_idle"`
	ConnMaxLife    time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate    bool          `mapstructure:"auto_migrate"`
}

type JWTConfig struct {
	Secret         string        `mapstructure:"secret" validate:"required"`
	Issuer         string        `mapstructure:"issuer"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

// StateConfig holds the signing secret for OAuth state tokens.
type StateConfig struct {
	Secret string        `mapstructure:"secret" validate:"required"`
	MaxAge time.Duration `mapstructure:"max_age"`
}

// VaultConfig holds the base64 encoded 32 byte key used to seal connection secrets.
type VaultConfig struct {
	Key    string `mapstructure:"key" validate:"required,base64"`
	Cipher string `mapstructure:"cipher" validate:"omitempty,oneof=aes-256-gcm chacha20-poly1305"`
}

type QueueConfig struct {
	MaxAttempts   int           `mapstructure:"max_attempts" validate:"gte=0"`
	Backoff       string        `mapstructure:"backoff" validate:"omitempty,oneof=fixed exponential"`
	BackoffBase   time.Duration `mapstructure:"backoff_base"`
	BackoffMax    time.Duration `mapstructure:"backoff_max"`
	BackoffJitter bool          `mapstructure:"backoff_jitter"`
}

type WorkerConfig struct {
	Concurrency  int           `mapstructure:"concurrency" validate:"gte=0"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	JobTimeout   time.Duration `mapstructure:"job_timeout"`
}

type WebhooksConfig struct {
	MaxBodyBytes    int64  `mapstructure:"max_body_bytes"`
	SignatureHeader string `mapstructure:"signature_header"`
	RatePerMinute   int    `mapstructure:"rate_per_minute" validate:"gte=0"`
}

type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	FilePath string `mapstructure:"file_path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.provider_cache_ttl", 30*time.Second)
	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.url", "file:conduit.db")
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.max_idle", 5)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("jwt.issuer", "conduit")
	v.SetDefault("jwt.access_token_ttl", 15*time.Minute)
	v.SetDefault("state.max_age", 10*time.Minute)
	v.SetDefault("vault.cipher", "aes-256-gcm")
	v.SetDefault("queue.max_attempts", 10)
	v.SetDefault("queue.backoff", "fixed")
	v.SetDefault("queue.backoff_base", 60*time.Second)
	v.SetDefault("queue.backoff_max", time.Hour)
	v.SetDefault("worker.concurrency", 2)
	v.SetDefault("worker.poll_interval", 5*time.Second)
	v.SetDefault("worker.job_timeout", 2*time.Minute)
	v.SetDefault("webhooks.max_body_bytes", 1<<20)
	v.SetDefault("webhooks.signature_header", "X-Webhook-Signature")
	v.SetDefault("webhooks.rate_per_minute", 600)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// Load reads the YAML file at path (optional) and overlays environment
// variables, e.g. VAULT_KEY overrides vault.key. A .env file in the working
// directory is loaded first when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	// AutomaticEnv only applies to keys viper already knows about.
	for _, key := range []string{"jwt.secret", "state.secret", "vault.key"} {
		_ = v.BindEnv(key)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate reports missing or malformed settings as ErrConfiguration.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrConfiguration, err)
	}
	return nil
}
