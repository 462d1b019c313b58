// Package config loads the server's runtime settings.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config keeps runtime settings for the server.
type Config struct {
	Port          string        `mapstructure:"port"`
	DBDriver      string        `mapstructure:"db_driver"`
	DBPath        string        `mapstructure:"db_path"`
	SecureCookie  bool          `mapstructure:"secure_cookie"`
	SessionTTL    time.Duration `mapstructure:"session_ttl"`
	SessionSweep  string        `mapstructure:"session_sweep"`
	AdminUser     string        `mapstructure:"admin_user"`
	AdminPassword string        `mapstructure:"admin_password"`
}

// Addr is the listen address.
func (c Config) Addr() string {
	return ":" + c.Port
}

var keys = []string{
	"port", "db_driver", "db_path", "secure_cookie", "session_ttl",
	"session_sweep", "admin_user", "admin_password",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("db_driver", "sqlite")
	v.SetDefault("db_path", "tasks.db")
	v.SetDefault("secure_cookie", false)
	v.SetDefault("session_ttl", time.Duration(0))
	v.SetDefault("session_sweep", "@every 1h")
	v.SetDefault("admin_user", "")
	v.SetDefault("admin_password", "")
}

// Load reads configuration from a .env file (if present), an optional YAML
// file named by CONFIG_FILE, and environment variables, in increasing priority.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only answers Get; bind keys so Unmarshal sees env values too.
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return Config{}, err
		}
	}

	if path := v.GetString("config_file"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate checks settings that have no usable default.
func (c Config) Validate() error {
	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", c.DBDriver)
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH is required")
	}
	if c.SessionTTL < 0 {
		return fmt.Errorf("SESSION_TTL must not be negative")
	}
	if (c.AdminUser == "") != (c.AdminPassword == "") {
		return fmt.Errorf("ADMIN_USER and ADMIN_PASSWORD must be set together")
	}
	return nil
}
