package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	Port string

	// Auth
	APIKey string

	// Pathstore connection
	PathstoreURL    string
	PathstoreAPIKey string

	// Worker pool
	WorkerCount        int
	MaxQueueSize       int
	MaxConcurrentStore int

	// Upload limits
	MaxUploadBytes int64

	// Job state
	JobTTL time.Duration

	// Parsing
	CachePath   string
	StrictKinds bool
	RenderHTML  bool

	// Rate limiting, per API key
	RateLimitRPS   float64
	RateLimitBurst int

	// Number of parse samples kept for /api/stats/parse
	StatsWindow int
}

// fileConfig mirrors Config in the TOML file named by CONFIG_FILE.
// Durations are strings in time.ParseDuration form.
type fileConfig struct {
	Port               string  `toml:"port"`
	APIKey             string  `toml:"api_key"`
	PathstoreURL       string  `toml:"pathstore_url"`
	PathstoreAPIKey    string  `toml:"pathstore_api_key"`
	WorkerCount        int     `toml:"worker_count"`
	MaxQueueSize       int     `toml:"max_queue_size"`
	MaxConcurrentStore int     `toml:"max_concurrent_store"`
	MaxUploadBytes     int64   `toml:"max_upload_bytes"`
	JobTTL             string  `toml:"job_ttl"`
	CachePath          string  `toml:"cache_path"`
	StrictKinds        bool    `toml:"strict_kinds"`
	RenderHTML         bool    `toml:"render_html"`
	RateLimitRPS       float64 `toml:"rate_limit_rps"`
	RateLimitBurst     int     `toml:"rate_limit_burst"`
	StatsWindow        int     `toml:"stats_window"`
}

func defaults() Config {
	return Config{
		Port:               "8091",
		PathstoreURL:       "http://localhost:8080",
		WorkerCount:        4,
		MaxQueueSize:       100,
		MaxConcurrentStore: 10,
		MaxUploadBytes:     10485760, // 10MB
		JobTTL:             1 * time.Hour,
		RateLimitRPS:       20,
		RateLimitBurst:     40,
		StatsWindow:        1000,
	}
}

// Load builds the configuration from defaults, then the optional TOML file
// named by CONFIG_FILE, then environment variables.
func Load() (Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return Config{}, err
		}
	}

	cfg = Config{
		Port: envOr("PORT", cfg.Port),

		APIKey: envOr("API_KEY", cfg.APIKey),

		PathstoreURL:    envOr("PATHSTORE_URL", cfg.PathstoreURL),
		PathstoreAPIKey: envOr("PATHSTORE_API_KEY", cfg.PathstoreAPIKey),

		WorkerCount:        envInt("WORKER_COUNT", cfg.WorkerCount),
		MaxQueueSize:       envInt("MAX_QUEUE_SIZE", cfg.MaxQueueSize),
		MaxConcurrentStore: envInt("MAX_CONCURRENT_STORE", cfg.MaxConcurrentStore),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", cfg.MaxUploadBytes),

		JobTTL: envDuration("JOB_TTL", cfg.JobTTL),

		CachePath:   envOr("CACHE_PATH", cfg.CachePath),
		StrictKinds: envBool("STRICT_KINDS", cfg.StrictKinds),
		RenderHTML:  envBool("RENDER_HTML", cfg.RenderHTML),

		RateLimitRPS:   envFloat("RATE_LIMIT_RPS", cfg.RateLimitRPS),
		RateLimitBurst: envInt("RATE_LIMIT_BURST", cfg.RateLimitBurst),

		StatsWindow: envInt("STATS_WINDOW", cfg.StatsWindow),
	}

	d := defaults()
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = d.WorkerCount
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = d.MaxQueueSize
	}
	if cfg.MaxConcurrentStore <= 0 {
		cfg.MaxConcurrentStore = d.MaxConcurrentStore
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = d.MaxUploadBytes
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = d.JobTTL
	}
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = d.RateLimitRPS
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = d.RateLimitBurst
	}
	if cfg.StatsWindow <= 0 {
		cfg.StatsWindow = d.StatsWindow
	}

	return cfg, nil
}

func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var f fileConfig
	if err := toml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(&c.Port, f.Port)
	setString(&c.APIKey, f.APIKey)
	setString(&c.PathstoreURL, f.PathstoreURL)
	setString(&c.PathstoreAPIKey, f.PathstoreAPIKey)
	setString(&c.CachePath, f.CachePath)
	if f.WorkerCount > 0 {
		c.WorkerCount = f.WorkerCount
	}
	if f.MaxQueueSize > 0 {
		c.MaxQueueSize = f.MaxQueueSize
	}
	if f.MaxConcurrentStore > 0 {
		c.MaxConcurrentStore = f.MaxConcurrentStore
	}
	if f.MaxUploadBytes > 0 {
		c.MaxUploadBytes = f.MaxUploadBytes
	}
	if f.JobTTL != "" {
		d, err := time.ParseDuration(f.JobTTL)
		if err != nil {
			return fmt.Errorf("config file job_ttl: %w", err)
		}
		c.JobTTL = d
	}
	if f.RateLimitRPS > 0 {
		c.RateLimitRPS = f.RateLimitRPS
	}
	if f.RateLimitBurst > 0 {
		c.RateLimitBurst = f.RateLimitBurst
	}
	if f.StatsWindow > 0 {
		c.StatsWindow = f.StatsWindow
	}
	c.StrictKinds = c.StrictKinds || f.StrictKinds
	c.RenderHTML = c.RenderHTML || f.RenderHTML
	return nil
}

func (c Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("API_KEY is required")
	}
	if c.PathstoreAPIKey == "" {
		return fmt.Errorf("PATHSTORE_API_KEY is required")
	}
	return nil
}

// Project is the per-repository CLI configuration read from .annodoc.toml.
type Project struct {
	Include []string `toml:"include"`
	Exclude []string `toml:"exclude"`
	Workers int      `toml:"workers"`
	Strict  bool     `toml:"strict"`
	HTML    bool     `toml:"html"`
	Cache   string   `toml:"cache"`
}

// ProjectFile is the file name LoadProject looks for.
const ProjectFile = ".annodoc.toml"

// LoadProject reads a project file. A missing file yields the zero Project.
func LoadProject(path string) (Project, error) {
	var p Project
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return p, fmt.Errorf("read project file: %w", err)
	}
	if err := toml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parse project file %s: %w", path, err)
	}
	return p, nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
