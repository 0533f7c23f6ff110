package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		Env      string `yaml:"env"` // development | production
		LogLevel string `yaml:"log_level"`
	} `yaml:"app"`

	HTTP struct {
		Address         string `yaml:"address"`
		RateLimitPerSec int    `yaml:"rate_limit_per_sec"`
		RateLimitBurst  int    `yaml:"rate_limit_burst"`
	} `yaml:"http"`

	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Redis struct {
		Address         string `yaml:"address"`
		Password        string `yaml:"password"`
		DB              int    `yaml:"db"`
		CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
	} `yaml:"redis"`

	Booking struct {
		Timezone     string `yaml:"timezone"`
		Open         string `yaml:"open"`  // "10:00"
		Close        string `yaml:"close"` // "22:00"
		MaxRangeDays int    `yaml:"max_range_days"`
	} `yaml:"booking"`

	Sweeper struct {
		Enabled         bool `yaml:"enabled"`
		IntervalMinutes int  `yaml:"interval_minutes"`
		RunOnStart      bool `yaml:"run_on_start"`
	} `yaml:"sweeper"`

	Backup struct {
		Enabled       bool   `yaml:"enabled"`
		IntervalHours int    `yaml:"interval_hours"`
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"backup"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
		GRPCHealthPort    int  `yaml:"grpc_health_port"`
	} `yaml:"monitoring"`

	Telegram struct {
		BotToken     string  `yaml:"bot_token"`
		AdminChatIDs []int64 `yaml:"admin_chat_ids"`
	} `yaml:"telegram"`

	Rooms struct {
		ConfigPath            string `yaml:"config_path"`
		ReloadIntervalSeconds int    `yaml:"reload_interval_seconds"`
	} `yaml:"rooms"`
}

// Load reads the YAML config at path. A .env file next to the working
// directory is loaded first so ${VAR} placeholders can refer to it.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if _, err = cfg.Location(); err != nil {
		return nil, err
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "development"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if c.HTTP.RateLimitPerSec <= 0 {
		c.HTTP.RateLimitPerSec = 5
	}
	if c.HTTP.RateLimitBurst <= 0 {
		c.HTTP.RateLimitBurst = 10
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/escaperoom.db"
	}
	if c.Booking.Open == "" {
		c.Booking.Open = "10:00"
	}
	if c.Booking.Close == "" {
		c.Booking.Close = "22:00"
	}
	if c.Booking.MaxRangeDays <= 0 {
		c.Booking.MaxRangeDays = 90
	}
	if c.Sweeper.IntervalMinutes <= 0 {
		c.Sweeper.IntervalMinutes = 60
	}
	if c.Backup.Path == "" {
		c.Backup.Path = "data/backups"
	}
	if c.Monitoring.HealthCheckPort == 0 {
		c.Monitoring.HealthCheckPort = 8090
	}
	if c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Rooms.ConfigPath == "" {
		c.Rooms.ConfigPath = "configs/rooms.yaml"
	}
}

// Location returns the timezone booking dates are interpreted in.
func (c *Config) Location() (*time.Location, error) {
	if c.Booking.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Booking.Timezone)
	if err != nil {
		return nil, fmt.Errorf("booking.timezone: %w", err)
	}
	return loc, nil
}

func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Sweeper.IntervalMinutes) * time.Minute
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Redis.CacheTTLSeconds) * time.Second
}

func (c *Config) BackupInterval() time.Duration {
	if c.Backup.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Backup.IntervalHours) * time.Hour
}

func (c *Config) RoomsReloadInterval() time.Duration {
	if c.Rooms.ReloadIntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Rooms.ReloadIntervalSeconds) * time.Second
}
