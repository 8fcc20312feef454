package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds all service settings, populated from environment variables.
// The env tag names the variable and is used in validation errors.
type Config struct {
	HTTPAddr        string        `env:"HTTP_ADDR" validate:"required"`
	LogLevel        string        `env:"LOG_LEVEL" validate:"oneof=debug info warn warning error"`
	LogFormat       string        `env:"LOG_FORMAT" validate:"oneof=json text"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" validate:"gt=0"`

	// Place directory.
	GeoNamesPath   string `env:"GEONAMES_PATH" validate:"required"`
	GeoNamesURL    string `env:"GEONAMES_URL" validate:"omitempty,url"`
	DirectoryDSN   string `env:"DIRECTORY_DSN" validate:"required"`
	FuzzyThreshold int    `env:"FUZZY_THRESHOLD" validate:"min=1,max=100"`

	// Open-Meteo transport.
	OpenMeteoBaseURL    string        `env:"OPENMETEO_BASE_URL" validate:"required,url"`
	OpenMeteoTimeout    time.Duration `env:"OPENMETEO_TIMEOUT" validate:"gt=0"`
	OpenMeteoRetries    int           `env:"OPENMETEO_RETRIES" validate:"min=0,max=10"`
	OpenMeteoBackoff    time.Duration `env:"OPENMETEO_BACKOFF" validate:"gt=0"`
	OpenMeteoMaxBackoff time.Duration `env:"OPENMETEO_MAX_BACKOFF" validate:"gtefield=OpenMeteoBackoff"`
	OpenMeteoRateLimit  float64       `env:"OPENMETEO_RATE_LIMIT" validate:"gte=0"`

	// Forecast cache.
	ForecastCacheTTL  time.Duration `env:"FORECAST_CACHE_TTL" validate:"gte=0"`
	ForecastCacheSize int           `env:"FORECAST_CACHE_SIZE" validate:"min=1"`

	// Report publishing.
	KafkaEnabled bool     `env:"KAFKA_ENABLED"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" validate:"required_if=KafkaEnabled true,dive,hostname_port"`
	KafkaTopic   string   `env:"KAFKA_TOPIC" validate:"required_if=KafkaEnabled true"`

	// Scheduled watch runs. WatchLocations is a semicolon-separated list of
	// ZIP codes and "Place,ST" pairs; empty disables the watcher.
	WatchLocations string        `env:"WATCH_LOCATIONS"`
	WatchInterval  time.Duration `env:"WATCH_INTERVAL" validate:"min=1m"`
}

// Load reads an optional .env file, then configuration from environment
// variables, applying defaults where unset.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds and validates a Config from the process environment only.
func FromEnv() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	p := &parser{}
	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        strings.ToLower(sharedcfg.EnvOrDefault("LOG_LEVEL", "info")),
		LogFormat:       strings.ToLower(sharedcfg.EnvOrDefault("LOG_FORMAT", "json")),
		ShutdownTimeout: shutdownTimeout,

		GeoNamesPath:   sharedcfg.EnvOrDefault("GEONAMES_PATH", "data/geonames/US.zip"),
		GeoNamesURL:    sharedcfg.EnvOrDefault("GEONAMES_URL", "https://download.geonames.org/export/zip/US.zip"),
		DirectoryDSN:   sharedcfg.EnvOrDefault("DIRECTORY_DSN", "file::memory:"),
		FuzzyThreshold: p.int("FUZZY_THRESHOLD", 70),

		OpenMeteoBaseURL:    sharedcfg.EnvOrDefault("OPENMETEO_BASE_URL", "https://api.open-meteo.com"),
		OpenMeteoTimeout:    p.duration("OPENMETEO_TIMEOUT", 10*time.Second),
		OpenMeteoRetries:    p.int("OPENMETEO_RETRIES", 5),
		OpenMeteoBackoff:    p.duration("OPENMETEO_BACKOFF", 200*time.Millisecond),
		OpenMeteoMaxBackoff: p.duration("OPENMETEO_MAX_BACKOFF", 5*time.Second),
		OpenMeteoRateLimit:  p.float("OPENMETEO_RATE_LIMIT", 5),

		ForecastCacheTTL:  p.duration("FORECAST_CACHE_TTL", time.Hour),
		ForecastCacheSize: p.int("FORECAST_CACHE_SIZE", 256),

		KafkaEnabled: p.bool("KAFKA_ENABLED", false),
		KafkaBrokers: sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "heat-forecasts"),

		WatchLocations: strings.TrimSpace(os.Getenv("WATCH_LOCATIONS")),
		WatchInterval:  p.duration("WATCH_INTERVAL", 15*time.Minute),
	}
	if p.err != nil {
		return nil, p.err
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("env")
	})

	err := v.Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	msgs := make([]string, len(verrs))
	for i, fe := range verrs {
		msgs[i] = fmt.Sprintf("%s failed %q (value %v)", fe.Field(), fe.ActualTag(), fe.Value())
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// parser reads typed env vars and keeps the first error.
type parser struct {
	err error
}

func (p *parser) lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (p *parser) fail(key, value string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
}

func (p *parser) int(key string, def int) int {
	s, ok := p.lookup(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		p.fail(key, s, err)
		return def
	}
	return n
}

func (p *parser) float(key string, def float64) float64 {
	s, ok := p.lookup(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		p.fail(key, s, err)
		return def
	}
	return f
}

func (p *parser) bool(key string, def bool) bool {
	s, ok := p.lookup(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		p.fail(key, s, err)
		return def
	}
	return b
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	s, ok := p.lookup(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		p.fail(key, s, err)
		return def
	}
	return d
}
