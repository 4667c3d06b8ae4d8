package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
	_ "time/tzdata" // timezone lookup without system zoneinfo

	"gopkg.in/yaml.v3"
)

type Config struct {
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		Debug    bool   `yaml:"debug"`
		Workers  int    `yaml:"workers"`
	} `yaml:"telegram"`

	Admins   []int64 `yaml:"admins"`
	Timezone string  `yaml:"timezone"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Calendar struct {
		Enabled              bool   `yaml:"enabled"`
		CalendarID           string `yaml:"calendar_id"`
		CredentialsFile      string `yaml:"credentials_file"`
		Workers              int    `yaml:"workers"`
		TimeoutSeconds       int    `yaml:"timeout_seconds"`
		EventDurationMinutes int    `yaml:"event_duration_minutes"`
	} `yaml:"calendar"`

	Extractor struct {
		AuthURL            string `yaml:"auth_url"`
		APIURL             string `yaml:"api_url"`
		AuthKey            string `yaml:"auth_key"`
		Scope              string `yaml:"scope"`
		Model              string `yaml:"model"`
		InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
		TimeoutSeconds     int    `yaml:"timeout_seconds"`
	} `yaml:"extractor"`

	Reminders struct {
		CheckIntervalSeconds int     `yaml:"check_interval_seconds"`
		WindowMinutes        int     `yaml:"window_minutes"`
		RatePerSecond        float64 `yaml:"rate_per_second"`
		Burst                int     `yaml:"burst"`
	} `yaml:"reminders"`

	Redis struct {
		Address         string `yaml:"address"`
		Password        string `yaml:"password"`
		DB              int    `yaml:"db"`
		StateTTLMinutes int    `yaml:"state_ttl_minutes"`
	} `yaml:"redis"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
		GRPCHealthPort    int  `yaml:"grpc_health_port"`
	} `yaml:"monitoring"`

	Backup struct {
		Enabled       bool   `yaml:"enabled"`
		IntervalHours int    `yaml:"interval_hours"`
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"backup"`

	Logging struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"logging"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML with ${ENV_VAR} placeholders expanded and applies defaults.
func Parse(data []byte) (*Config, error) {
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/salonbot.db"
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Europe/Moscow"
	}
	if cfg.Telegram.Workers <= 0 {
		cfg.Telegram.Workers = 8
	}
	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8090
	}
	if cfg.Monitoring.PrometheusEnabled && cfg.Monitoring.PrometheusPort == 0 {
		cfg.Monitoring.PrometheusPort = 9090
	}
	if cfg.Backup.Path == "" {
		cfg.Backup.Path = "data/backups"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Telegram.BotToken == "" || c.Telegram.BotToken == "YOUR_BOT_TOKEN_HERE" {
		return errors.New("telegram.bot_token is required")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	if c.Calendar.Enabled && c.Calendar.CalendarID == "" {
		return errors.New("calendar.calendar_id is required when calendar is enabled")
	}
	return nil
}

func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func (c *Config) CalendarTimeout() time.Duration {
	if c.Calendar.TimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.Calendar.TimeoutSeconds) * time.Second
}

func (c *Config) EventDuration() time.Duration {
	if c.Calendar.EventDurationMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(c.Calendar.EventDurationMinutes) * time.Minute
}

func (c *Config) CalendarWorkers() int64 {
	if c.Calendar.Workers <= 0 {
		return 4
	}
	return int64(c.Calendar.Workers)
}

func (c *Config) ExtractorTimeout() time.Duration {
	if c.Extractor.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Extractor.TimeoutSeconds) * time.Second
}

func (c *Config) ReminderInterval() time.Duration {
	if c.Reminders.CheckIntervalSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.Reminders.CheckIntervalSeconds) * time.Second
}

func (c *Config) ReminderWindow() time.Duration {
	if c.Reminders.WindowMinutes <= 0 {
		return 2 * time.Hour
	}
	return time.Duration(c.Reminders.WindowMinutes) * time.Minute
}

func (c *Config) StateTTL() time.Duration {
	if c.Redis.StateTTLMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.Redis.StateTTLMinutes) * time.Minute
}

func (c *Config) BackupInterval() time.Duration {
	if c.Backup.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Backup.IntervalHours) * time.Hour
}
