// Package config loads the NoteHub settings from a YAML file, a .env file and
// NOTEHUB_* environment variables, in increasing order of precedence.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/goliatone/go-notehub/cache"
	"github.com/goliatone/go-notehub/gateway"
	"github.com/goliatone/go-notehub/internal/logging"
	"github.com/goliatone/go-notehub/store"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "NOTEHUB_"

//go:embed notehub.sample.yaml
var sampleConfig string

// Sample returns a commented configuration file listing every setting.
func Sample() string {
	return sampleConfig
}

type Config struct {
	Server  ServerConfig   `yaml:"server"`
	Backend BackendConfig  `yaml:"backend"`
	Gateway gateway.Config `yaml:"gateway"`
	Query   QueryConfig    `yaml:"query"`
	Log     logging.Config `yaml:"log"`
}

type ServerConfig struct {
	// Addr is the listen address of the API and page server.
	Addr string `yaml:"addr"`
	// PublicURL is where clients reach the page routes.
	PublicURL string `yaml:"public_url"`
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type BackendConfig struct {
	Database store.Config `yaml:"database"`
	Cache    cache.Config `yaml:"cache"`
	// CacheEnabled puts the read cache in front of the notes repository.
	CacheEnabled bool `yaml:"cache_enabled"`
}

type QueryConfig struct {
	StaleTime time.Duration `yaml:"stale_time"`
}

// Default returns a configuration that runs everything in one process against
// an in-memory database.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			PublicURL:       "http://localhost:8080",
			ShutdownTimeout: 5 * time.Second,
		},
		Backend: BackendConfig{
			Database:     store.DefaultConfig(),
			Cache:        cache.DefaultConfig(),
			CacheEnabled: true,
		},
		Gateway: gateway.DefaultConfig(),
		Query:   QueryConfig{StaleTime: 60 * time.Second},
		Log:     logging.DefaultConfig(),
	}
}

func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Server),
		validation.Field(&c.Backend),
		validation.Field(&c.Gateway),
		validation.Field(&c.Query),
		validation.Field(&c.Log),
	)
}

func (c ServerConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Addr, validation.Required),
		validation.Field(&c.PublicURL, validation.Required),
		validation.Field(&c.ShutdownTimeout, validation.Min(time.Duration(0))),
	)
}

func (c BackendConfig) Validate() error {
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if c.CacheEnabled {
		if err := c.Cache.Validate(); err != nil {
			return fmt.Errorf("cache: %w", err)
		}
	}
	return nil
}

func (c QueryConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.StaleTime, validation.Min(time.Duration(0))),
	)
}

// Load builds the configuration. An empty path skips the YAML file; a missing
// .env file is ignored.
func Load(path string) (Config, error) {
	cfg := Default()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("config: load .env: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

type lookupFunc func(string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	env := envReader{lookup: lookup}

	env.string("SERVER_ADDR", &cfg.Server.Addr)
	env.string("PUBLIC_URL", &cfg.Server.PublicURL)
	env.duration("SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)

	env.string("DATABASE_DRIVER", &cfg.Backend.Database.Driver)
	env.string("DATABASE_DSN", &cfg.Backend.Database.DSN)
	env.bool("CACHE_ENABLED", &cfg.Backend.CacheEnabled)
	env.duration("CACHE_TTL", &cfg.Backend.Cache.TTL)

	env.string("API_URL", &cfg.Gateway.BaseURL)
	env.duration("API_TIMEOUT", &cfg.Gateway.Timeout)
	env.string("API_TOKEN", &cfg.Gateway.Token)

	env.duration("QUERY_STALE_TIME", &cfg.Query.StaleTime)

	env.string("LOG_LEVEL", &cfg.Log.Level)
	env.bool("LOG_DEVELOPMENT", &cfg.Log.Development)
	env.string("LOG_FILE", &cfg.Log.File)

	return errors.Join(env.errs...)
}

type envReader struct {
	lookup lookupFunc
	errs   []error
}

func (r *envReader) get(name string) (string, bool) {
	v, ok := r.lookup(EnvPrefix + name)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (r *envReader) string(name string, dst *string) {
	if v, ok := r.get(name); ok {
		*dst = v
	}
}

func (r *envReader) bool(name string, dst *bool) {
	v, ok := r.get(name)
	if !ok || v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("config: %s%s: %w", EnvPrefix, name, err))
		return
	}
	*dst = b
}

func (r *envReader) duration(name string, dst *time.Duration) {
	v, ok := r.get(name)
	if !ok || v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("config: %s%s: %w", EnvPrefix, name, err))
		return
	}
	*dst = d
}
