package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Cache     CacheConfig     `yaml:"cache"`
	Scraper   ScraperConfig   `yaml:"scraper"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Reports   ReportsConfig   `yaml:"reports"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
}

type DatabaseConfig struct {
	Driver       string `yaml:"driver"` // sqlite or postgres
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

type CacheConfig struct {
	Path          string        `yaml:"path"`
	TTL           time.Duration `yaml:"ttl"`
	MemoryEntries int           `yaml:"memory_entries"`
}

type ScraperConfig struct {
	BaseURL           string        `yaml:"base_url"`
	CityID            string        `yaml:"city_id"`
	TopSellers        int           `yaml:"top_sellers"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxRetries        int           `yaml:"max_retries"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	ParseAllPrices    bool          `yaml:"parse_all_prices"`
	MaxPages          int           `yaml:"max_pages"`
	PageSize          int           `yaml:"page_size"`
	Workers           int           `yaml:"workers"`
	UserAgent         string        `yaml:"user_agent"`
}

type SchedulerConfig struct {
	Enabled         bool          `yaml:"enabled"`
	PriceUpdate     time.Duration `yaml:"price_update_interval"`
	AggregationCron string        `yaml:"aggregation_cron"`
}

type ReportsConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxAgeDays int    `yaml:"max_age_days"`
	MaxBackups int    `yaml:"max_backups"`
	Compress   bool   `yaml:"compress"`
}

// Default returns the configuration used when no file overrides a value.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RequestTimeout:  45 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:       "sqlite",
			DSN:          "data/pricepos.db",
			MaxOpenConns: 1,
		},
		Cache: CacheConfig{
			Path:          "data/cache.json",
			TTL:           24 * time.Hour,
			MemoryEntries: 1000,
		},
		Scraper: ScraperConfig{
			BaseURL:           "https://kaspi.kz",
			CityID:            "750000000",
			TopSellers:        10,
			Timeout:           10 * time.Second,
			MaxRetries:        3,
			RequestsPerSecond: 2,
			Burst:             1,
			ParseAllPrices:    true,
			MaxPages:          50,
			PageSize:          64,
			Workers:           5,
			UserAgent:         "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/143.0.0.0 Safari/537.36",
		},
		Scheduler: SchedulerConfig{
			Enabled:         true,
			PriceUpdate:     24 * time.Hour,
			AggregationCron: "0 3 * * *",
		},
		Reports: ReportsConfig{
			S3: S3Config{
				Region:       "us-east-1",
				Bucket:       "pricepos-reports",
				Prefix:       "reports",
				UsePathStyle: true,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// Load reads the YAML file at path over the defaults, then applies .env and
// environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DATABASE_DRIVER"); v != "" {
		c.Database.Driver = strings.TrimSpace(v)
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		c.Database.DSN = strings.TrimSpace(v)
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		c.Server.Addr = strings.TrimSpace(v)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.TrimSpace(v)
	}
	if v := os.Getenv("REPORTS_S3_ACCESS_KEY"); v != "" {
		c.Reports.S3.AccessKeyID = strings.TrimSpace(v)
	}
	if v := os.Getenv("REPORTS_S3_SECRET_KEY"); v != "" {
		c.Reports.S3.SecretAccessKey = strings.TrimSpace(v)
	}
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got '%s'", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}

	if c.Scraper.BaseURL == "" {
		return fmt.Errorf("scraper.base_url is required")
	}
	if c.Scraper.TopSellers <= 0 {
		return fmt.Errorf("scraper.top_sellers must be greater than 0")
	}
	if c.Scraper.Timeout <= 0 {
		return fmt.Errorf("scraper.timeout must be greater than 0")
	}
	if c.Scraper.MaxRetries < 0 {
		return fmt.Errorf("scraper.max_retries must not be negative")
	}
	if c.Scraper.RequestsPerSecond <= 0 {
		return fmt.Errorf("scraper.requests_per_second must be greater than 0")
	}
	if c.Scraper.MaxPages <= 0 || c.Scraper.PageSize <= 0 {
		return fmt.Errorf("scraper.max_pages and scraper.page_size must be greater than 0")
	}
	if c.Scraper.Workers <= 0 {
		return fmt.Errorf("scraper.workers must be greater than 0")
	}

	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be greater than 0")
	}

	if c.Scheduler.Enabled {
		if c.Scheduler.PriceUpdate <= 0 {
			return fmt.Errorf("scheduler.price_update_interval must be greater than 0")
		}
		if _, err := cron.ParseStandard(c.Scheduler.AggregationCron); err != nil {
			return fmt.Errorf("scheduler.aggregation_cron '%s' is invalid: %w", c.Scheduler.AggregationCron, err)
		}
	}

	if c.Reports.S3.Enabled {
		if c.Reports.S3.Bucket == "" {
			return fmt.Errorf("reports.s3.bucket is required when S3 is enabled")
		}
		if c.Reports.S3.AccessKeyID == "" || c.Reports.S3.SecretAccessKey == "" {
			return fmt.Errorf("reports.s3.access_key_id and reports.s3.secret_access_key are required when S3 is enabled")
		}
	}

	return nil
}
