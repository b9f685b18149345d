// Package config loads runtime settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

const (
	DriverMySQL  = "mysql"
	DriverMemory = "memory"
)

// Config holds every setting the API reads at startup.
type Config struct {
	HTTPAddr string
	GinMode  string

	DB DBConfig

	JWTSecret string
	JWTTTL    time.Duration

	CORSAllowedOrigins []string

	LogLevel  string
	LogFormat string

	JaegerEndpoint    string
	TxConflictRetries int
}

type DBConfig struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

// LoadDotEnv copies a local .env file into the process environment.
// Callers treat the error as a warning: production relies on real environment variables.
func LoadDotEnv(filenames ...string) error {
	return godotenv.Load(filenames...)
}

// FromEnv builds the Config from the process environment.
func FromEnv() (*Config, error) {
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from an environment lookup function.
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	r := reader{lookup: lookup}

	cfg := &Config{
		HTTPAddr: r.str("HTTP_ADDR", ":8080"),
		GinMode:  r.str("GIN_MODE", "release"),
		DB: DBConfig{
			Driver:          strings.ToLower(r.str("DB_DRIVER", DriverMySQL)),
			DSN:             r.str("DB_DSN_PRIMARY", ""),
			MaxOpenConns:    r.int("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    r.int("DB_MAX_IDLE_CONNS", 25),
			ConnMaxLifetime: r.duration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			AutoMigrate:     r.bool("DB_AUTO_MIGRATE", true),
		},
		JWTSecret:          r.str("JWT_SECRET", ""),
		JWTTTL:             r.duration("JWT_TTL", 72*time.Hour),
		CORSAllowedOrigins: r.list("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
		LogLevel:           strings.ToLower(r.str("LOG_LEVEL", "info")),
		LogFormat:          strings.ToLower(r.str("LOG_FORMAT", "json")),
		JaegerEndpoint:     r.str("JAEGER_ENDPOINT", ""),
		TxConflictRetries:  r.int("TX_CONFLICT_RETRIES", 2),
	}
	if r.err != nil {
		return nil, r.err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field rules that a single parse cannot catch.
func (c *Config) Validate() error {
	switch c.DB.Driver {
	case DriverMySQL:
		if c.DB.DSN == "" {
			return errors.New("config: DB_DSN_PRIMARY is required when DB_DRIVER=mysql")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("config: unknown DB_DRIVER %q", c.DB.Driver)
	}
	if c.JWTSecret == "" {
		return errors.New("config: JWT_SECRET is required")
	}
	if c.JWTTTL <= 0 {
		return errors.New("config: JWT_TTL must be positive")
	}
	if c.DB.MaxOpenConns < 1 || c.DB.MaxIdleConns < 0 {
		return errors.New("config: invalid database pool size")
	}
	if len(c.CORSAllowedOrigins) == 0 {
		return errors.New("config: CORS_ALLOWED_ORIGINS must list at least one origin")
	}
	if c.TxConflictRetries < 0 {
		return errors.New("config: TX_CONFLICT_RETRIES must not be negative")
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		return fmt.Errorf("config: unknown LOG_FORMAT %q", c.LogFormat)
	}
	return nil
}

// reader remembers the first parse error so FromLookup can report it once.
type reader struct {
	lookup func(string) (string, bool)
	err    error
}

func (r *reader) raw(key string) (string, bool) {
	v, ok := r.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (r *reader) str(key, def string) string {
	if v, ok := r.raw(key); ok {
		return v
	}
	return def
}

func (r *reader) int(key string, def int) int {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, err)
		return def
	}
	return n
}

func (r *reader) bool(key string, def bool) bool {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(key, err)
		return def
	}
	return b
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(key, err)
		return def
	}
	return d
}

func (r *reader) list(key string, def []string) []string {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (r *reader) fail(key string, err error) {
	if r.err == nil {
		r.err = errors.Wrapf(err, "config: invalid %s", key)
	}
}
