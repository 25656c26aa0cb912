package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jjYBdx4IL/diskcache/internal/cache"
)

const envPrefix = "DISKCACHE"

// Load reads the optional config file at path (toml, yaml or json by
// extension), applies environment overrides and flags, and validates the
// result. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("%w: %s", errNoConfigFile, path)
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Dir != "" {
		abs, err := filepath.Abs(cfg.Dir)
		if err != nil {
			return nil, fmt.Errorf("resolve dir: %w", err)
		}
		cfg.Dir = abs
	}
	return &cfg, nil
}

// RegisterFlags adds the shared flags to fs. Flag names use dashes; they
// bind to the config key with underscores.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("dir", "", "root storage directory")
	fs.String("name", cache.DefaultName, "cache instance name")
	fs.Bool("reinit", false, "wipe the cache instance before use")
	fs.Duration("default-expiry", cache.DefaultExpiry, "default entry expiry")
	fs.String("socket", "", "cache daemon socket path")
	fs.String("log-level", "info", "log level")
	fs.String("log-file", "", "log file path (stderr when empty)")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("dir", cache.DefaultDir())
	v.SetDefault("name", cache.DefaultName)
	v.SetDefault("reinit", false)
	v.SetDefault("default_expiry", cache.DefaultExpiry)
	v.SetDefault("socket", DefaultSocketPath())
	v.SetDefault("fetch_timeout", 20*time.Second)
	v.SetDefault("user_agent", "diskcache/0.1")
	v.SetDefault("max_body_size", 0)
	v.SetDefault("bearer_token", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")
	v.SetDefault("log_max_size", 100)
	v.SetDefault("log_max_backups", 10)
	v.SetDefault("log_compress", true)
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var bindErr error
	fs.VisitAll(func(f *pflag.Flag) {
		if bindErr != nil {
			return
		}
		key := strings.ReplaceAll(f.Name, "-", "_")
		if err := v.BindPFlag(key, f); err != nil {
			bindErr = fmt.Errorf("bind flag %s: %w", f.Name, err)
		}
	})
	return bindErr
}

// durationDecodeHook accepts Go duration strings ("90s", "24h") as well as
// plain numbers, which are taken as seconds.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(time.Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case time.Duration:
			return v, nil
		case string:
			v = strings.TrimSpace(v)
			if v == "" {
				return time.Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return parsed, nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return time.Duration(seconds * float64(time.Second)), nil
			}
			return nil, fmt.Errorf("invalid duration: %q", v)
		case int:
			return time.Duration(v) * time.Second, nil
		case int64:
			return time.Duration(v) * time.Second, nil
		case float64:
			return time.Duration(v * float64(time.Second)), nil
		default:
			return nil, fmt.Errorf("unsupported duration type %T", v)
		}
	}
}
