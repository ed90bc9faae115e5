package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	envPrefix = "CATALOG_"

	defaultEnvFile       = ".env"
	defaultPort          = "8080"
	defaultReadTimeout   = 15 * time.Second
	defaultWriteTimeout  = 30 * time.Second
	defaultIdleTimeout   = 120 * time.Second
	defaultStorageDriver = "memory"
	defaultReviewsScope  = ScopeSession
	defaultFlashTTL      = 3 * time.Second
	defaultAssetsDir     = "public/assets"
	defaultEnvironment   = "local"
	defaultLogLevel      = "info"
)

// Review scopes.
const (
	// ScopeSession gives every visitor session its own review namespace.
	ScopeSession = "session"
	// ScopeShared stores reviews in a single namespace visible to everyone.
	ScopeShared = "shared"
)

var validDrivers = map[string]struct{}{
	"memory":   {},
	"sqlite":   {},
	"postgres": {},
	"redis":    {},
}

// Config captures all runtime configuration organised by concern.
type Config struct {
	Environment string
	LogLevel    string
	Server      ServerConfig
	Storage     StorageConfig
	Reviews     ReviewsConfig
	Catalog     CatalogConfig
	Session     SessionConfig
	Assets      AssetsConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// StorageConfig selects the key-value backend.
type StorageConfig struct {
	Driver string
	DSN    string
	Prefix string
}

// ReviewsConfig controls review visibility.
type ReviewsConfig struct {
	Scope string
}

// CatalogConfig points at an optional seed file replacing the built-in products.
type CatalogConfig struct {
	File string
}

// SessionConfig configures the visitor session cookie.
type SessionConfig struct {
	SigningKey string
	Secure     bool
	FlashTTL   time.Duration
}

// AssetsConfig locates static files.
type AssetsConfig struct {
	Dir string
}

// IsLocal reports whether the service runs on a developer machine.
func (c Config) IsLocal() bool {
	return c.Environment == defaultEnvironment || c.Environment == "dev" || c.Environment == "test"
}

// ValidationError is returned when configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises Load.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvFile overrides the dotenv file; an empty path disables it.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap supplies values taking precedence over the process environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv ignores the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// Load resolves configuration from explicit values, the process environment and the dotenv
// file, in that order of precedence.
func Load(_ context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		key = envPrefix + key
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if value, ok := dotEnvValues[key]; ok {
			return value, true
		}
		return "", false
	}

	environment := strings.ToLower(stringWithDefault(lookup, "ENVIRONMENT", defaultEnvironment))
	cfg := Config{
		Environment: environment,
		LogLevel:    strings.ToLower(stringWithDefault(lookup, "LOG_LEVEL", defaultLogLevel)),
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Storage: StorageConfig{
			Driver: strings.ToLower(stringWithDefault(lookup, "STORAGE_DRIVER", defaultStorageDriver)),
			DSN:    stringWithDefault(lookup, "STORAGE_DSN", ""),
			Prefix: stringWithDefault(lookup, "STORAGE_PREFIX", ""),
		},
		Reviews: ReviewsConfig{
			Scope: strings.ToLower(stringWithDefault(lookup, "REVIEWS_SCOPE", defaultReviewsScope)),
		},
		Catalog: CatalogConfig{
			File: stringWithDefault(lookup, "CATALOG_FILE", ""),
		},
		Session: SessionConfig{
			SigningKey: stringWithDefault(lookup, "SESSION_SIGNING_KEY", ""),
			Secure:     boolWithDefault(lookup, "SESSION_SECURE", environment != defaultEnvironment),
			FlashTTL:   durationWithDefault(lookup, "FLASH_TTL", defaultFlashTTL),
		},
		Assets: AssetsConfig{
			Dir: stringWithDefault(lookup, "ASSETS_DIR", defaultAssetsDir),
		},
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validateConfig(cfg Config) error {
	var invalid []string

	if cfg.Server.Port == "" {
		invalid = append(invalid, "Server.Port")
	}
	if _, ok := validDrivers[cfg.Storage.Driver]; !ok {
		invalid = append(invalid, "Storage.Driver")
	}
	if cfg.Storage.Driver == "postgres" && strings.TrimSpace(cfg.Storage.DSN) == "" {
		invalid = append(invalid, "Storage.DSN")
	}
	if cfg.Reviews.Scope != ScopeSession && cfg.Reviews.Scope != ScopeShared {
		invalid = append(invalid, "Reviews.Scope")
	}
	if cfg.Session.FlashTTL <= 0 {
		invalid = append(invalid, "Session.FlashTTL")
	}
	if !cfg.IsLocal() && strings.TrimSpace(cfg.Session.SigningKey) == "" {
		invalid = append(invalid, "Session.SigningKey")
	}

	if len(invalid) > 0 {
		return &ValidationError{fields: invalid}
	}
	return nil
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	values, err := godotenv.Read(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.ParseBool(strings.ToLower(value)); err == nil {
			return parsed
		}
		switch strings.ToLower(value) {
		case "yes", "on":
			return true
		case "no", "off":
			return false
		}
	}
	return fallback
}
