// Package config loads runtime settings for the cache daemon, the MCP
// server and the command line client. Values come from defaults, an
// optional config file, DISKCACHE_* environment variables and flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/jjYBdx4IL/diskcache/internal/cache"
	"github.com/jjYBdx4IL/diskcache/internal/logger"
	web "github.com/jjYBdx4IL/diskcache/internal/web"
)

// Config holds every recognized setting.
type Config struct {
	Dir           string        `mapstructure:"dir"`
	Name          string        `mapstructure:"name"`
	Reinit        bool          `mapstructure:"reinit"`
	DefaultExpiry time.Duration `mapstructure:"default_expiry"`
	Socket        string        `mapstructure:"socket"`

	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	UserAgent    string        `mapstructure:"user_agent"`
	MaxBodySize  int           `mapstructure:"max_body_size"`
	BearerToken  string        `mapstructure:"bearer_token"`

	LogLevel      string `mapstructure:"log_level"`
	LogFile       string `mapstructure:"log_file"`
	LogMaxSize    int    `mapstructure:"log_max_size"`
	LogMaxBackups int    `mapstructure:"log_max_backups"`
	LogCompress   bool   `mapstructure:"log_compress"`
}

// FieldError names the offending setting.
type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// DefaultSocketPath returns the daemon socket location used when none is configured.
func DefaultSocketPath() string {
	home, _ := os.UserHomeDir()
	if home == "" {
		home = "."
	}
	return filepath.Join(home, ".cache", "diskcache", "cache.sock")
}

// Validate checks values that cannot be repaired with a default.
func (c *Config) Validate() error {
	if c.Name != "" {
		if err := cache.ValidateName(c.Name); err != nil {
			return FieldError{Field: "name", Reason: err.Error()}
		}
	}
	// cache.Open reads a zero expiry as "use the default", so zero cannot
	// be passed through as "expire immediately".
	if c.DefaultExpiry <= 0 {
		return FieldError{Field: "default_expiry", Reason: "must be positive"}
	}
	if c.FetchTimeout <= 0 {
		return FieldError{Field: "fetch_timeout", Reason: "must be positive"}
	}
	if c.MaxBodySize < 0 {
		return FieldError{Field: "max_body_size", Reason: "must not be negative"}
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return FieldError{Field: "log_level", Reason: err.Error()}
	}
	if c.Socket == "" {
		return FieldError{Field: "socket", Reason: "required"}
	}
	return nil
}

// CacheOptions converts the settings into cache.Options.
func (c *Config) CacheOptions(log logrus.FieldLogger) cache.Options {
	return cache.Options{
		Dir:           c.Dir,
		Name:          c.Name,
		Reinit:        c.Reinit,
		DefaultExpiry: c.DefaultExpiry,
		Logger:        log,
	}
}

// FetcherOptions converts the settings into web.Options. A non-empty
// bearer_token authorizes every download.
func (c *Config) FetcherOptions(log logrus.FieldLogger) web.Options {
	opts := web.Options{
		Timeout:     c.FetchTimeout,
		UserAgent:   c.UserAgent,
		MaxBodySize: c.MaxBodySize,
		Logger:      log,
	}
	if c.BearerToken != "" {
		opts.TokenSource = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: c.BearerToken})
	}
	return opts
}

// LoggerOptions converts the settings into logger.Options.
func (c *Config) LoggerOptions() logger.Options {
	return logger.Options{
		Path:       c.LogFile,
		Level:      c.LogLevel,
		MaxSizeMB:  c.LogMaxSize,
		MaxBackups: c.LogMaxBackups,
		Compress:   c.LogCompress,
	}
}

var errNoConfigFile = errors.New("config file not found")
