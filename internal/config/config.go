package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	BackendMemory     = "memory"
	BackendPostgres   = "postgres"
	BackendClickHouse = "clickhouse"
)

// Config holds all configuration for the ivt-audit application.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Store      StoreConfig      `yaml:"store"`
	Database   DatabaseConfig   `yaml:"database"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Redis      RedisConfig      `yaml:"redis"`
	Log        LogConfig        `yaml:"log"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Geo        GeoConfig        `yaml:"geo"`
	Analysis   AnalysisConfig   `yaml:"analysis"`
	ROI        ROIConfig        `yaml:"roi"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	Env             string        `yaml:"env"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StoreConfig selects where events are read from.
type StoreConfig struct {
	Backend string `yaml:"backend"`
	Table   string `yaml:"table"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// ClickHouseConfig configures the ClickHouse event store.
type ClickHouseConfig struct {
	Addrs       []string      `yaml:"addrs"`
	Database    string        `yaml:"database"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// RedisConfig configures the report cache. An empty Addr disables it.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// GeoConfig configures ASN lookups for events imported without one.
type GeoConfig struct {
	Enabled      bool   `yaml:"enabled"`
	DatabasePath string `yaml:"database_path"`
}

// AnalysisConfig holds report sizing.
type AnalysisConfig struct {
	TopN            int `yaml:"top_n"`
	TopASN          int `yaml:"top_asn"`
	TopTimezones    int `yaml:"top_timezones"`
	TopThreatTypes  int `yaml:"top_threat_types"`
	TopASNChart     int `yaml:"top_asn_chart"`
	ImportBatchSize int `yaml:"import_batch_size"`
}

// ROIConfig holds defaults for the cost calculator.
type ROIConfig struct {
	TrialDays   int     `yaml:"trial_days"`
	GoogleCPC   float64 `yaml:"google_cpc"`
	BingCPC     float64 `yaml:"bing_cpc"`
	MonthlyCost float64 `yaml:"monthly_cost"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			Env:             "development",
			ShutdownTimeout: 30 * time.Second,
		},
		Store: StoreConfig{
			Backend: BackendMemory,
			Table:   "ivt_events",
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "ivt",
			Password: "ivt_secret",
			DBName:   "ivt",
			SSLMode:  "disable",
			MaxConns: 10,
			MinConns: 1,
		},
		ClickHouse: ClickHouseConfig{
			Addrs:       []string{"localhost:9000"},
			Database:    "default",
			Username:    "default",
			DialTimeout: 10 * time.Second,
		},
		Redis: RedisConfig{
			CacheTTL: 15 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Path:      "/metrics",
			Namespace: "ivt",
		},
		Geo: GeoConfig{
			DatabasePath: "/app/data/GeoLite2-ASN.mmdb",
		},
		Analysis: AnalysisConfig{
			TopN:            10,
			TopASN:          30,
			TopTimezones:    20,
			TopThreatTypes:  8,
			TopASNChart:     10,
			ImportBatchSize: 5000,
		},
		ROI: ROIConfig{
			TrialDays: 31,
		},
	}
}

// Load builds the configuration from, in increasing precedence: built-in
// defaults, the YAML file named by IVT_CONFIG_FILE, a .env file in the
// working directory and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Defaults()
	if path := getEnv("IVT_CONFIG_FILE", ""); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Addr = getEnv("IVT_HTTP_ADDR", cfg.Server.Addr)
	cfg.Server.Env = getEnv("IVT_ENV", cfg.Server.Env)
	cfg.Server.ShutdownTimeout = getDurationEnv("IVT_SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)

	cfg.Store.Backend = strings.ToLower(getEnv("IVT_STORE_BACKEND", cfg.Store.Backend))
	cfg.Store.Table = getEnv("IVT_STORE_TABLE", cfg.Store.Table)

	cfg.Database.Host = getEnv("IVT_DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getIntEnv("IVT_DB_PORT", cfg.Database.Port)
	cfg.Database.User = getEnv("IVT_DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnv("IVT_DB_PASSWORD", cfg.Database.Password)
	cfg.Database.DBName = getEnv("IVT_DB_NAME", cfg.Database.DBName)
	cfg.Database.SSLMode = getEnv("IVT_DB_SSLMODE", cfg.Database.SSLMode)
	cfg.Database.MaxConns = getIntEnv("IVT_DB_MAX_CONNS", cfg.Database.MaxConns)
	cfg.Database.MinConns = getIntEnv("IVT_DB_MIN_CONNS", cfg.Database.MinConns)

	cfg.ClickHouse.Addrs = getSliceEnv("IVT_CLICKHOUSE_ADDRS", cfg.ClickHouse.Addrs)
	cfg.ClickHouse.Database = getEnv("IVT_CLICKHOUSE_DATABASE", cfg.ClickHouse.Database)
	cfg.ClickHouse.Username = getEnv("IVT_CLICKHOUSE_USER", cfg.ClickHouse.Username)
	cfg.ClickHouse.Password = getEnv("IVT_CLICKHOUSE_PASSWORD", cfg.ClickHouse.Password)
	cfg.ClickHouse.DialTimeout = getDurationEnv("IVT_CLICKHOUSE_DIAL_TIMEOUT", cfg.ClickHouse.DialTimeout)

	cfg.Redis.Addr = getEnv("IVT_REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("IVT_REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getIntEnv("IVT_REDIS_DB", cfg.Redis.DB)
	cfg.Redis.CacheTTL = getDurationEnv("IVT_REDIS_CACHE_TTL", cfg.Redis.CacheTTL)

	cfg.Log.Level = getEnv("IVT_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("IVT_LOG_FORMAT", cfg.Log.Format)

	cfg.Metrics.Enabled = getBoolEnv("IVT_METRICS_ENABLED", cfg.Metrics.Enabled)
	cfg.Metrics.Path = getEnv("IVT_METRICS_PATH", cfg.Metrics.Path)
	cfg.Metrics.Namespace = getEnv("IVT_METRICS_NAMESPACE", cfg.Metrics.Namespace)

	cfg.Geo.Enabled = getBoolEnv("IVT_GEO_ENABLED", cfg.Geo.Enabled)
	cfg.Geo.DatabasePath = getEnv("IVT_GEO_DB_PATH", cfg.Geo.DatabasePath)

	cfg.Analysis.TopN = getIntEnv("IVT_TOP_N", cfg.Analysis.TopN)
	cfg.Analysis.TopASN = getIntEnv("IVT_TOP_ASN", cfg.Analysis.TopASN)
	cfg.Analysis.TopTimezones = getIntEnv("IVT_TOP_TIMEZONES", cfg.Analysis.TopTimezones)
	cfg.Analysis.TopThreatTypes = getIntEnv("IVT_TOP_THREAT_TYPES", cfg.Analysis.TopThreatTypes)
	cfg.Analysis.TopASNChart = getIntEnv("IVT_TOP_ASN_CHART", cfg.Analysis.TopASNChart)
	cfg.Analysis.ImportBatchSize = getIntEnv("IVT_IMPORT_BATCH_SIZE", cfg.Analysis.ImportBatchSize)

	cfg.ROI.TrialDays = getIntEnv("IVT_TRIAL_DAYS", cfg.ROI.TrialDays)
	cfg.ROI.GoogleCPC = getFloatEnv("IVT_GOOGLE_CPC", cfg.ROI.GoogleCPC)
	cfg.ROI.BingCPC = getFloatEnv("IVT_BING_CPC", cfg.ROI.BingCPC)
	cfg.ROI.MonthlyCost = getFloatEnv("IVT_MONTHLY_COST", cfg.ROI.MonthlyCost)
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory, BackendPostgres, BackendClickHouse:
	default:
		return fmt.Errorf("IVT_STORE_BACKEND %q is not one of memory, postgres, clickhouse", c.Store.Backend)
	}
	if c.Store.Table == "" {
		return fmt.Errorf("IVT_STORE_TABLE must not be empty")
	}
	if c.Store.Backend == BackendClickHouse && len(c.ClickHouse.Addrs) == 0 {
		return fmt.Errorf("IVT_CLICKHOUSE_ADDRS is required for the clickhouse backend")
	}
	if c.ROI.TrialDays <= 0 {
		return fmt.Errorf("IVT_TRIAL_DAYS must be positive, got %d", c.ROI.TrialDays)
	}
	if c.Geo.Enabled && c.Geo.DatabasePath == "" {
		return fmt.Errorf("IVT_GEO_DB_PATH is required when geo lookups are enabled")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// Helper functions for reading environment variables

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getIntEnv(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getFloatEnv(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getSliceEnv(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				result = append(result, p)
			}
		}
		return result
	}
	return def
}
