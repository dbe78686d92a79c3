package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/pilab-dev/shadow-oauth/credentials"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StoreMongoDB  = "mongodb"
	StorePostgres = "postgres"
	StoreBolt     = "bolt"
)

// Cache backends.
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// ServerConfig holds all configuration for the server.
// Tags use mapstructure for Viper unmarshalling.
type ServerConfig struct {
	HTTPPort        string `mapstructure:"HTTP_PORT"`
	LogLevel        string `mapstructure:"LOG_LEVEL"`
	LogPretty       bool   `mapstructure:"LOG_PRETTY"`
	OtelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	StoreBackend string `mapstructure:"STORE_BACKEND"`
	MongoURI     string `mapstructure:"MONGO_URI"`
	MongoDBName  string `mapstructure:"MONGO_DB_NAME"`
	PostgresDSN  string `mapstructure:"POSTGRES_DSN"`
	BoltPath     string `mapstructure:"BOLT_PATH"`

	CacheBackend  string        `mapstructure:"CACHE_BACKEND"`
	RedisAddr     string        `mapstructure:"REDIS_ADDR"`
	RedisPassword string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int           `mapstructure:"REDIS_DB"`
	CacheTTL      time.Duration `mapstructure:"CACHE_TTL"`

	// Lifetimes are ISO-8601 durations such as PT4H.
	TemporaryLifetime  string `mapstructure:"TEMPORARY_LIFETIME"`
	AuthorisedLifetime string `mapstructure:"AUTHORISED_LIFETIME"`
	TokenLifetime      string `mapstructure:"TOKEN_LIFETIME"`

	CleanInterval time.Duration `mapstructure:"CLEAN_INTERVAL"`
}

// Lifetimes holds the parsed credential lifetimes.
type Lifetimes struct {
	Temporary  time.Duration
	Authorised time.Duration
	Token      time.Duration
}

// LoadConfig reads configuration from a .env file, the config file,
// environment variables and defaults, in increasing order of precedence
// for the environment.
func LoadConfig() (*ServerConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()

	v.SetConfigName("oauth-server")
	v.SetConfigType("yaml")

	v.AddConfigPath("/etc/shadow-oauth/")
	v.AddConfigPath("$HOME/.shadow-oauth")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", false)
	v.SetDefault("OTEL_SERVICE_NAME", "shadow-oauth")
	v.SetDefault("STORE_BACKEND", StoreMemory)
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGO_DB_NAME", "shadow_oauth")
	v.SetDefault("POSTGRES_DSN", "postgres://localhost:5432/shadow_oauth?sslmode=disable")
	v.SetDefault("BOLT_PATH", "shadow-oauth.db")
	v.SetDefault("CACHE_BACKEND", CacheNone)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("CACHE_TTL", "5m")
	v.SetDefault("TEMPORARY_LIFETIME", credentials.DefaultLifetime)
	v.SetDefault("AUTHORISED_LIFETIME", credentials.DefaultLifetime)
	v.SetDefault("TOKEN_LIFETIME", credentials.DefaultLifetime)
	v.SetDefault("CLEAN_INTERVAL", "10m")
}

// Validate checks the backend selections and the lifetime syntax.
func (c *ServerConfig) Validate() error {
	switch c.StoreBackend {
	case StoreMemory, StoreMongoDB, StorePostgres, StoreBolt:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	switch c.CacheBackend {
	case CacheNone, CacheMemory, CacheRedis:
	default:
		return fmt.Errorf("unknown CACHE_BACKEND %q", c.CacheBackend)
	}

	_, err := c.Lifetimes()
	return err
}

// Lifetimes parses the configured credential lifetimes.
func (c *ServerConfig) Lifetimes() (Lifetimes, error) {
	var (
		l   Lifetimes
		err error
	)

	if l.Temporary, err = credentials.ParseLifetime(c.TemporaryLifetime); err != nil {
		return l, fmt.Errorf("TEMPORARY_LIFETIME: %w", err)
	}
	if l.Authorised, err = credentials.ParseLifetime(c.AuthorisedLifetime); err != nil {
		return l, fmt.Errorf("AUTHORISED_LIFETIME: %w", err)
	}
	if l.Token, err = credentials.ParseLifetime(c.TokenLifetime); err != nil {
		return l, fmt.Errorf("TOKEN_LIFETIME: %w", err)
	}

	return l, nil
}
