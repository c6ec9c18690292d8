package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const EnvPrefix = "SPOOL"

type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Auth      AuthConfig      `yaml:"auth" envconfig:"AUTH"`
	Database  DatabaseConfig  `yaml:"database" envconfig:"DB"`
	Invoices  InvoicesConfig  `yaml:"invoices" envconfig:"INVOICES"`
	Templates TemplatesConfig `yaml:"templates" envconfig:"TEMPLATES"`
	Spool     SpoolConfig     `yaml:"spool" envconfig:"SPOOL"`
	Queue     QueueConfig     `yaml:"queue" envconfig:"QUEUE"`
	Render    RenderConfig    `yaml:"render" envconfig:"RENDER"`
	Transport TransportConfig `yaml:"transport" envconfig:"TRANSPORT"`
	Webhook   WebhookConfig   `yaml:"webhook" envconfig:"WEBHOOK"`
	Metrics   MetricsConfig   `yaml:"metrics" envconfig:"METRICS"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOG"`
}

type ServerConfig struct {
	Enabled         bool          `yaml:"enabled" split_words:"true"`
	Port            int           `yaml:"port" split_words:"true"`
	ReadTimeout     time.Duration `yaml:"read_timeout" split_words:"true"`
	WriteTimeout    time.Duration `yaml:"write_timeout" split_words:"true"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" split_words:"true"`
}

// AuthConfig guards the HTTP API. An empty JWTSecret disables auth.
type AuthConfig struct {
	JWTSecret    string        `yaml:"jwt_secret" split_words:"true"`
	PasswordHash string        `yaml:"password_hash" split_words:"true"`
	TokenTTL     time.Duration `yaml:"token_ttl" split_words:"true"`
}

// DatabaseConfig points at the sqlite job journal.
type DatabaseConfig struct {
	Path          string `yaml:"path" split_words:"true"`
	RetentionDays int    `yaml:"retention_days" split_words:"true"`
}

type InvoicesConfig struct {
	Driver string `yaml:"driver" split_words:"true"`
	DSN    string `yaml:"dsn" split_words:"true"`
	Query  string `yaml:"query" split_words:"true"`
}

type TemplatesConfig struct {
	Dir string `yaml:"dir" split_words:"true"`
}

type SpoolConfig struct {
	Backend string       `yaml:"backend" split_words:"true"`
	Root    string       `yaml:"root" split_words:"true"`
	Device  DeviceConfig `yaml:"device" envconfig:"DEVICE"`
	S3      S3Config     `yaml:"s3" envconfig:"S3"`
}

type DeviceConfig struct {
	Address         string        `yaml:"address" split_words:"true"`
	Timeout         time.Duration `yaml:"timeout" split_words:"true"`
	BreakerFailures uint32        `yaml:"breaker_failures" split_words:"true"`
	BreakerTimeout  time.Duration `yaml:"breaker_timeout" split_words:"true"`
}

type S3Config struct {
	Bucket          string `yaml:"bucket" split_words:"true"`
	Prefix          string `yaml:"prefix" split_words:"true"`
	Region          string `yaml:"region" split_words:"true"`
	Endpoint        string `yaml:"endpoint" split_words:"true"`
	AccessKeyID     string `yaml:"access_key_id" split_words:"true"`
	SecretAccessKey string `yaml:"secret_access_key" split_words:"true"`
	UsePathStyle    bool   `yaml:"use_path_style" split_words:"true"`
}

type QueueConfig struct {
	MaxTries       int           `yaml:"max_tries" split_words:"true"`
	RetryDelay     time.Duration `yaml:"retry_delay" split_words:"true"`
	RecoverOnStart bool          `yaml:"recover_on_start" split_words:"true"`
}

type RenderConfig struct {
	Codepage    string `yaml:"codepage" split_words:"true"`
	LineSpacing int    `yaml:"line_spacing" split_words:"true"`
	Columns     int    `yaml:"columns" split_words:"true"`
	Barcode     string `yaml:"barcode" split_words:"true"`
}

type TransportConfig struct {
	Stdin bool        `yaml:"stdin" split_words:"true"`
	Redis RedisConfig `yaml:"redis" envconfig:"REDIS"`
	Kafka KafkaConfig `yaml:"kafka" envconfig:"KAFKA"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled" split_words:"true"`
	Addr     string `yaml:"addr" split_words:"true"`
	Password string `yaml:"password" split_words:"true"`
	DB       int    `yaml:"db" split_words:"true"`
	Key      string `yaml:"key" split_words:"true"`
}

type KafkaConfig struct {
	Enabled bool     `yaml:"enabled" split_words:"true"`
	Brokers []string `yaml:"brokers" split_words:"true"`
	Topic   string   `yaml:"topic" split_words:"true"`
	GroupID string   `yaml:"group_id" split_words:"true"`
}

type WebhookConfig struct {
	RetryCount  int               `yaml:"retry_count" split_words:"true"`
	RetryDelay  time.Duration     `yaml:"retry_delay" split_words:"true"`
	Timeout     time.Duration     `yaml:"timeout" split_words:"true"`
	WorkerCount int               `yaml:"worker_count" split_words:"true"`
	QueueSize   int               `yaml:"queue_size" split_words:"true"`
	Endpoints   []WebhookEndpoint `yaml:"endpoints" ignored:"true"`
}

type WebhookEndpoint struct {
	Name   string   `yaml:"name"`
	URL    string   `yaml:"url"`
	Secret string   `yaml:"secret"`
	Events []string `yaml:"events"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" split_words:"true"`
	Path    string `yaml:"path" split_words:"true"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" split_words:"true"`
	Format string `yaml:"format" split_words:"true"`
	Output string `yaml:"output" split_words:"true"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Enabled:         true,
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
		},
		Database: DatabaseConfig{
			Path:          "./data/printspool.db",
			RetentionDays: 30,
		},
		Invoices: InvoicesConfig{
			Driver: "sqlite3",
			DSN:    "./data/invoices.db",
		},
		Templates: TemplatesConfig{
			Dir: "./print_templates",
		},
		Spool: SpoolConfig{
			Backend: "file",
			Root:    "./spool",
			Device: DeviceConfig{
				Timeout:         10 * time.Second,
				BreakerFailures: 3,
				BreakerTimeout:  30 * time.Second,
			},
			S3: S3Config{
				Region: "us-east-1",
				Prefix: "spool",
			},
		},
		Queue: QueueConfig{
			MaxTries:       3,
			RecoverOnStart: true,
		},
		Render: RenderConfig{
			Codepage:    "iso-8859-1",
			LineSpacing: 10,
			Columns:     56,
			Barcode:     "code39",
		},
		Transport: TransportConfig{
			Redis: RedisConfig{
				Addr: "localhost:6379",
				Key:  "printspool:jobs",
			},
			Kafka: KafkaConfig{
				Topic:   "print-jobs",
				GroupID: "printspool",
			},
		},
		Webhook: WebhookConfig{
			RetryCount:  3,
			RetryDelay:  5 * time.Second,
			Timeout:     10 * time.Second,
			WorkerCount: 2,
			QueueSize:   100,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stderr",
		},
	}
}

// Load reads the YAML file at configPath on top of the defaults and then
// applies SPOOL_* environment overrides. A missing file is not an error.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields for which a SPOOL_* variable is set, e.g.
// SPOOL_SERVER_PORT or SPOOL_SPOOL_DEVICE_ADDRESS.
func (c *Config) ApplyEnv() error {
	if err := envconfig.Process(EnvPrefix, c); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Server.Enabled && (c.Server.Port < 1 || c.Server.Port > 65535) {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 {
		return fmt.Errorf("server timeouts must be non-negative")
	}

	if c.Auth.JWTSecret != "" && c.Auth.PasswordHash == "" {
		return fmt.Errorf("auth password hash is required when a jwt secret is set")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}

	if c.Database.RetentionDays < 0 {
		return fmt.Errorf("database retention days must be non-negative")
	}

	switch c.Invoices.Driver {
	case "sqlite3", "mysql", "postgres":
	default:
		return fmt.Errorf("invalid invoice driver: %s (valid: sqlite3, mysql, postgres)", c.Invoices.Driver)
	}

	switch c.Spool.Backend {
	case "file":
		if c.Spool.Root == "" {
			return fmt.Errorf("spool root is required for the file backend")
		}
	case "device":
		if c.Spool.Device.Address == "" {
			return fmt.Errorf("device address is required for the device backend")
		}
	case "s3":
		if c.Spool.S3.Bucket == "" {
			return fmt.Errorf("s3 bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("invalid spool backend: %s (valid: file, device, s3)", c.Spool.Backend)
	}

	if c.Queue.MaxTries < 1 {
		return fmt.Errorf("queue max tries must be at least 1")
	}

	if c.Queue.RetryDelay < 0 {
		return fmt.Errorf("retry delay must be non-negative")
	}

	if c.Render.LineSpacing < 0 || c.Render.LineSpacing > 255 {
		return fmt.Errorf("line spacing must be between 0 and 255")
	}

	if c.Render.Columns < 1 {
		return fmt.Errorf("render columns must be at least 1")
	}

	switch c.Render.Barcode {
	case "code39", "ean13":
	default:
		return fmt.Errorf("invalid barcode symbology: %s (valid: code39, ean13)", c.Render.Barcode)
	}

	if c.Transport.Kafka.Enabled && len(c.Transport.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers are required when the kafka transport is enabled")
	}

	for i, ep := range c.Webhook.Endpoints {
		if ep.URL == "" {
			return fmt.Errorf("webhook endpoint %d has no url", i)
		}
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	validFormats := map[string]bool{
		"json":    true,
		"console": true,
	}

	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (valid: json, console)", c.Logging.Format)
	}

	return nil
}
