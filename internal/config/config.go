package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "meshtask.yaml"

type Config struct {
	Redis   Redis   `yaml:"redis"`
	Remote  Remote  `yaml:"remote"`
	Poll    Poll    `yaml:"poll"`
	Logging Logging `yaml:"logging"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type Remote struct {
	BaseURL       string        `yaml:"base_url"`
	Timeout       time.Duration `yaml:"timeout"`
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
}

type Poll struct {
	Interval     time.Duration `yaml:"interval"`
	HistoryLimit int           `yaml:"history_limit"`
}

type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
}

func Defaults() Config {
	return Config{
		Redis: Redis{
			Addr: "localhost:6379",
		},
		Remote: Remote{
			Timeout:       10 * time.Second,
			RetryAttempts: 3,
			RetryDelay:    250 * time.Millisecond,
		},
		Poll: Poll{
			Interval:     5 * time.Second,
			HistoryLimit: 50,
		},
		Logging: Logging{
			Level:   "info",
			Service: "meshtask",
		},
	}
}

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

func loadEnv(cfg *Config) {
	setString(&cfg.Redis.Addr, "MESHTASK_REDIS_ADDR")
	setString(&cfg.Redis.Password, "MESHTASK_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "MESHTASK_REDIS_DB")
	setString(&cfg.Remote.BaseURL, "MESHTASK_REMOTE_URL")
	setDuration(&cfg.Remote.Timeout, "MESHTASK_REMOTE_TIMEOUT")
	setInt(&cfg.Remote.RetryAttempts, "MESHTASK_RETRY_ATTEMPTS")
	setDuration(&cfg.Remote.RetryDelay, "MESHTASK_RETRY_DELAY")
	setDuration(&cfg.Poll.Interval, "MESHTASK_POLL_INTERVAL")
	setInt(&cfg.Poll.HistoryLimit, "MESHTASK_HISTORY_LIMIT")
	setString(&cfg.Logging.Level, "MESHTASK_LOG_LEVEL")
	setString(&cfg.Logging.Service, "MESHTASK_LOG_SERVICE")
}

func validate(cfg *Config) error {
	if cfg.Remote.BaseURL == "" {
		return errors.New("remote base_url is required")
	}
	if cfg.Remote.RetryAttempts < 1 {
		return errors.New("remote retry_attempts must be at least 1")
	}
	if cfg.Poll.Interval <= 0 {
		return errors.New("poll interval must be positive")
	}
	if cfg.Poll.HistoryLimit <= 0 {
		return errors.New("poll history_limit must be positive")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			*dst = i
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
