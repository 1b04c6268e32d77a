// Package cloudvm_config loads the runtime configuration of the cloudvm service.
//
// Values are resolved in order: built-in defaults, an optional YAML file, then environment
// variables (a .env file in the working directory is loaded first when present).
package cloudvm_config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig          `yaml:"server"`
	Database DatabaseConfiguration `yaml:"database"`
	Auth     AuthConfig            `yaml:"auth"`
	Redis    RedisConfig           `yaml:"redis"`
	Cors     CorsConfig            `yaml:"cors"`
	Log      LogConfig             `yaml:"log"`
}

type ServerConfig struct {
	Host        string        `yaml:"host"`
	Port        int           `yaml:"port"`
	Backlog     int           `yaml:"backlog"`
	Workers     int           `yaml:"workers"`
	BufferSize  int           `yaml:"buffer_size"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

type AuthConfig struct {
	SigningKey string        `yaml:"signing_key"`
	TokenTTL   time.Duration `yaml:"token_ttl"`
}

// RedisConfig configures the read cache. An empty Addr keeps the cache in process.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

type CorsConfig struct {
	Origin  string `yaml:"origin"`
	Headers string `yaml:"headers"`
	Methods string `yaml:"methods"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        5001,
			Backlog:     128,
			Workers:     8,
			BufferSize:  8192,
			ReadTimeout: 10 * time.Second,
		},
		Database: DatabaseConfiguration{
			Port:     "5432",
			MaxConns: 10,
		},
		Auth: AuthConfig{
			TokenTTL: 7 * 24 * time.Hour,
		},
		Redis: RedisConfig{
			CacheTTL: time.Minute,
		},
		Cors: CorsConfig{
			Origin:  "*",
			Headers: "Content-Type, Authorization",
			Methods: "GET, POST, PUT, PATCH, DELETE, OPTIONS",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration. path may be empty, in which case only defaults and the
// environment are used.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	var errs []error
	str := func(key string, dst *string) {
		if val := os.Getenv(key); val != "" {
			*dst = val
		}
	}
	num := func(key string, dst *int) {
		if val := os.Getenv(key); val != "" {
			i, err := strconv.Atoi(val)
			if err != nil {
				errs = append(errs, FieldError{Field: key, Message: "must be an integer"})
				return
			}
			*dst = i
		}
	}
	dur := func(key string, dst *time.Duration) {
		if val := os.Getenv(key); val != "" {
			d, err := time.ParseDuration(val)
			if err != nil {
				errs = append(errs, FieldError{Field: key, Message: "must be a duration"})
				return
			}
			*dst = d
		}
	}

	str("CLOUDVM_HOST", &cfg.Server.Host)
	num("CLOUDVM_PORT", &cfg.Server.Port)
	num("CLOUDVM_BACKLOG", &cfg.Server.Backlog)
	num("CLOUDVM_WORKERS", &cfg.Server.Workers)
	num("CLOUDVM_BUFFER_SIZE", &cfg.Server.BufferSize)
	dur("CLOUDVM_READ_TIMEOUT", &cfg.Server.ReadTimeout)

	str("DATABASE_URL", &cfg.Database.Url)
	str("DATABASE_HOST", &cfg.Database.Host)
	str("DATABASE_PORT", &cfg.Database.Port)
	str("DATABASE_USERNAME", &cfg.Database.Username)
	str("DATABASE_PASSWORD", &cfg.Database.Password)
	str("DATABASE_DATABASE", &cfg.Database.Database)

	str("SIGNING_KEY", &cfg.Auth.SigningKey)
	dur("CLOUDVM_TOKEN_TTL", &cfg.Auth.TokenTTL)

	str("REDIS_ADDR", &cfg.Redis.Addr)
	str("REDIS_PASSWORD", &cfg.Redis.Password)
	num("REDIS_DB", &cfg.Redis.DB)
	dur("CLOUDVM_CACHE_TTL", &cfg.Redis.CacheTTL)

	str("CLOUDVM_CORS_ORIGIN", &cfg.Cors.Origin)

	str("CLOUDVM_LOG_LEVEL", &cfg.Log.Level)
	str("CLOUDVM_LOG_FORMAT", &cfg.Log.Format)

	return errors.Join(errs...)
}

// FieldError is a validation failure for one configuration field.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError collects every FieldError found by Validate.
type ValidationError struct {
	Errors []FieldError
}

func (e ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return "configuration validation failed: " + e.Errors[0].Error()
	}
	parts := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		parts[i] = err.Error()
	}
	return fmt.Sprintf("configuration validation failed with %d errors: %s", len(e.Errors), strings.Join(parts, "; "))
}

func (cfg *Config) Validate() error {
	var errs []FieldError
	invalid := func(field, message string) {
		errs = append(errs, FieldError{Field: field, Message: message})
	}

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		invalid("server.port", "must be between 0 and 65535")
	}
	if cfg.Server.Backlog < 1 {
		invalid("server.backlog", "must be positive")
	}
	if cfg.Server.Workers < 1 {
		invalid("server.workers", "must be positive")
	}
	if cfg.Server.BufferSize < 64 {
		invalid("server.buffer_size", "must be at least 64 bytes")
	}
	if cfg.Server.ReadTimeout < 0 {
		invalid("server.read_timeout", "must not be negative")
	}
	if cfg.Auth.TokenTTL <= 0 {
		invalid("auth.token_ttl", "must be positive")
	}
	if cfg.Database.MaxConns < 1 {
		invalid("database.max_conns", "must be positive")
	}
	if _, err := ParseLevel(cfg.Log.Level); err != nil {
		invalid("log.level", err.Error())
	}
	switch strings.ToLower(cfg.Log.Format) {
	case "text", "json":
	default:
		invalid("log.format", "must be text or json")
	}

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

// ValidateSecrets requires a signing key. Deployments backed by a real database must not issue
// tokens signed with the built-in development key.
func (cfg *Config) ValidateSecrets() error {
	if cfg.Auth.SigningKey == "" {
		return ValidationError{Errors: []FieldError{{Field: "auth.signing_key", Message: "must be set (SIGNING_KEY)"}}}
	}
	return nil
}
