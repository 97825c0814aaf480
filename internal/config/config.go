package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/mcuadros/go-defaults"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const defaultConfigPath = "config.yaml"

// Config is the complete service configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server" toml:"server"`
	Logger      LoggerConfig      `yaml:"logger" toml:"logger"`
	Cache       CacheConfig       `yaml:"cache" toml:"cache"`
	RateLimiter RateLimiterConfig `yaml:"rate_limiter" toml:"rate_limiter"`
	Worker      WorkerConfig      `yaml:"worker" toml:"worker"`
	PDF         PDFConfig         `yaml:"pdf" toml:"pdf"`
	Compare     CompareConfig     `yaml:"compare" toml:"compare"`
	Scratch     ScratchConfig     `yaml:"scratch" toml:"scratch"`
}

type ServerConfig struct {
	Host        string `yaml:"host" toml:"host" default:"0.0.0.0"`
	Port        string `yaml:"port" toml:"port" default:":8000"`
	Prefork     bool   `yaml:"prefork" toml:"prefork"`
	BodyLimitMB int    `yaml:"body_limit_mb" toml:"body_limit_mb" default:"64"`
}

type LoggerConfig struct {
	File       string `yaml:"file" toml:"file"`
	Level      string `yaml:"level" toml:"level" default:"info"`
	MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_size_mb" default:"10"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups" default:"3"`
	MaxAgeDays int    `yaml:"max_age_days" toml:"max_age_days" default:"7"`
	Compress   bool   `yaml:"compress" toml:"compress"`
}

// CacheConfig controls the redis result cache. An empty RedisHost disables it.
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" toml:"enabled"`
	TTL       time.Duration `yaml:"ttl" toml:"ttl" default:"1m"`
	RedisHost string        `yaml:"redis_host" toml:"redis_host"`
	RedisDB   int           `yaml:"redis_db" toml:"redis_db" default:"1"`
	RateDB    int           `yaml:"rate_db" toml:"rate_db"`
}

type RateLimiterConfig struct {
	Enabled  bool          `yaml:"enabled" toml:"enabled"`
	Limit    int           `yaml:"limit" toml:"limit" default:"60"`
	Interval time.Duration `yaml:"interval" toml:"interval" default:"1m"`
}

// WorkerConfig sizes the execution pool. Size 0 means unbounded.
type WorkerConfig struct {
	Size int `yaml:"size" toml:"size"`
}

type PDFConfig struct {
	Backend        string `yaml:"backend" toml:"backend" default:"fitz"`
	DPI            int    `yaml:"dpi" toml:"dpi" default:"300"`
	PdfiumMinIdle  int    `yaml:"pdfium_min_idle" toml:"pdfium_min_idle" default:"1"`
	PdfiumMaxIdle  int    `yaml:"pdfium_max_idle" toml:"pdfium_max_idle" default:"1"`
	PdfiumMaxTotal int    `yaml:"pdfium_max_total" toml:"pdfium_max_total" default:"2"`
}

// CompareConfig tunes the comparison engine and the path input variant.
type CompareConfig struct {
	AllowPathInputs bool    `yaml:"allow_path_inputs" toml:"allow_path_inputs"`
	PathRoot        string  `yaml:"path_root" toml:"path_root"`
	MaxFeatures     int     `yaml:"max_features" toml:"max_features" default:"5000"`
	Ratio           float64 `yaml:"ratio" toml:"ratio" default:"0.75"`
	MinMatches      int     `yaml:"min_matches" toml:"min_matches" default:"10"`
	DiffThreshold   float64 `yaml:"diff_threshold" toml:"diff_threshold" default:"30"`
}

type ScratchConfig struct {
	Dir       string        `yaml:"dir" toml:"dir"`
	SweepCron string        `yaml:"sweep_cron" toml:"sweep_cron" default:"*/10 * * * *"`
	MaxAge    time.Duration `yaml:"max_age" toml:"max_age" default:"1h"`
}

// Default returns a Config populated only from struct tag defaults.
func Default() Config {
	var cfg Config
	defaults.SetDefaults(&cfg)
	return cfg
}

// Load reads the file named by CONFIG_PATH, falling back to config.yaml.
// A missing default file yields Default().
func Load() Config {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		if _, err := os.Stat(defaultConfigPath); err != nil {
			cfg := Default()
			mustValidate(cfg)
			return cfg
		}
		path = defaultConfigPath
	}
	return LoadFrom(path)
}

// LoadFrom parses a YAML or TOML file and panics on unreadable or invalid configuration.
func LoadFrom(path string) Config {
	raw, err := os.ReadFile(path)
	if err != nil {
		panic(fmt.Sprintf("config: read %s: %v", path, err))
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(raw, &cfg)
	default:
		err = yaml.Unmarshal(raw, &cfg)
	}
	if err != nil {
		panic(fmt.Sprintf("config: parse %s: %v", path, err))
	}

	defaults.SetDefaults(&cfg)
	mustValidate(cfg)
	return cfg
}

func mustValidate(cfg Config) {
	if err := cfg.Validate(); err != nil {
		panic("config: " + err.Error())
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Worker.Size < 0 {
		return fmt.Errorf("worker.size must be >= 0, got %d", c.Worker.Size)
	}
	switch c.PDF.Backend {
	case "fitz", "pdfium":
	default:
		return fmt.Errorf("pdf.backend must be fitz or pdfium, got %q", c.PDF.Backend)
	}
	if c.PDF.DPI <= 0 {
		return fmt.Errorf("pdf.dpi must be > 0, got %d", c.PDF.DPI)
	}
	if c.Compare.AllowPathInputs && c.Compare.PathRoot == "" {
		return fmt.Errorf("compare.path_root is required when allow_path_inputs is set")
	}
	if c.Compare.Ratio <= 0 || c.Compare.Ratio >= 1 {
		return fmt.Errorf("compare.ratio must be in (0,1), got %v", c.Compare.Ratio)
	}
	if c.RateLimiter.Enabled && (c.RateLimiter.Limit <= 0 || c.RateLimiter.Interval <= 0) {
		return fmt.Errorf("rate_limiter needs a positive limit and interval")
	}
	if c.Scratch.SweepCron != "" {
		if _, err := cron.ParseStandard(c.Scratch.SweepCron); err != nil {
			return fmt.Errorf("scratch.sweep_cron: %w", err)
		}
	}
	return nil
}
