package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"
	_ "time/tzdata" // resolve calendar.timezone on hosts without zoneinfo

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"kline/internal/calendar"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the kline tools.
type Config struct {
	Storage  Storage  `yaml:"storage"`
	Server   Server   `yaml:"server"`
	Logging  Logging  `yaml:"logging"`
	Calendar Calendar `yaml:"calendar"`
	Chart    Chart    `yaml:"chart"`
	Remote   Remote   `yaml:"remote"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Server holds network listener configuration. A non-empty Token is required
// as a bearer token on every API request.
type Server struct {
	Host  string `yaml:"host"`
	Port  int    `yaml:"port"`
	Token string `yaml:"token"`
}

// Addr returns host:port for http.Server.
func (s Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Calendar configures the session zone and the cache refresh schedule.
// RefreshCrons use the six-field (with seconds) cron syntax.
type Calendar struct {
	Timezone     string   `yaml:"timezone"`
	RefreshCrons []string `yaml:"refresh_crons"`
}

// Chart controls how charts are built from stored bars.
type Chart struct {
	SourceMinutes int `yaml:"source_minutes"` // window size of stored minute bars
	DefaultLimit  int `yaml:"default_limit"`
	MaxLimit      int `yaml:"max_limit"`
	Workers       int `yaml:"workers"` // concurrent session loads
}

// Remote points the CLI at a running chart server.
type Remote struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// DefaultPath is the config file used when KLINE_CONFIG is unset.
const DefaultPath = "config/kline.yaml"

// Path returns the config file location from KLINE_CONFIG or DefaultPath.
func Path() string {
	if v := os.Getenv("KLINE_CONFIG"); v != "" {
		return v
	}
	return DefaultPath
}

// Load reads the YAML configuration file at the given path, loads .env,
// applies environment variable overrides and fills defaults. A missing file
// is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}

	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	if v := os.Getenv("KLINE_TZ"); v != "" {
		cfg.Calendar.Timezone = v
	}

	if v := os.Getenv("KLINE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("KLINE_SERVER_TOKEN"); v != "" {
		cfg.Server.Token = v
	}

	if v := os.Getenv("KLINE_REMOTE_URL"); v != "" {
		cfg.Remote.BaseURL = v
	}

	if v := os.Getenv("KLINE_TOKEN"); v != "" {
		cfg.Remote.Token = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "data"
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = "data/kline.db"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8090
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Calendar.Timezone == "" {
		cfg.Calendar.Timezone = "Asia/Shanghai"
	}
	if len(cfg.Calendar.RefreshCrons) == 0 {
		// Just after the open and just after the close.
		cfg.Calendar.RefreshCrons = []string{"5 30 9 * * 1-5", "5 0 15 * * 1-5"}
	}
	if cfg.Chart.SourceMinutes == 0 {
		cfg.Chart.SourceMinutes = 1
	}
	if cfg.Chart.DefaultLimit == 0 {
		cfg.Chart.DefaultLimit = 240
	}
	if cfg.Chart.MaxLimit == 0 {
		cfg.Chart.MaxLimit = 2000
	}
	if cfg.Chart.Workers == 0 {
		cfg.Chart.Workers = 8
	}
	if cfg.Remote.Timeout == 0 {
		cfg.Remote.Timeout = 10 * time.Second
	}
}

// Validate checks that the loaded values are usable.
func (c *Config) Validate() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q must be one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format %q must be json or text", c.Logging.Format)
	}
	if _, err := time.LoadLocation(c.Calendar.Timezone); err != nil {
		return fmt.Errorf("calendar.timezone: %w", err)
	}
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	for _, spec := range c.Calendar.RefreshCrons {
		if _, err := parser.Parse(spec); err != nil {
			return fmt.Errorf("calendar.refresh_crons %q: %w", spec, err)
		}
	}
	if c.Chart.SourceMinutes < 1 {
		return fmt.Errorf("chart.source_minutes must be positive")
	}
	if calendar.SessionLength%(time.Duration(c.Chart.SourceMinutes)*time.Minute) != 0 {
		return fmt.Errorf("chart.source_minutes %d does not divide the session", c.Chart.SourceMinutes)
	}
	if c.Chart.DefaultLimit < 1 || c.Chart.MaxLimit < c.Chart.DefaultLimit {
		return fmt.Errorf("chart.default_limit must be positive and at most chart.max_limit")
	}
	if c.Chart.Workers < 1 {
		return fmt.Errorf("chart.workers must be positive")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	return nil
}
