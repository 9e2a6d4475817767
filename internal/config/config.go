package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for milkcast.
type Config struct {
	Storage  Storage  `yaml:"storage"`
	Upstream Upstream `yaml:"upstream"`
	Server   Server   `yaml:"server"`
	Logging  Logging  `yaml:"logging"`
	Pipeline Pipeline `yaml:"pipeline"`
	Drift    Drift    `yaml:"drift"`
	Notify   Notify   `yaml:"notify"`
}

// Storage selects the datalake backend and the ledger database.
type Storage struct {
	Source     string `yaml:"source"` // local | gcs
	DataDir    string `yaml:"data_dir"`
	Bucket     string `yaml:"bucket"`
	Prefix     string `yaml:"prefix"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Upstream configures access to the SNIIM report server.
type Upstream struct {
	BaseURL         string        `yaml:"base_url"`
	Timeout         time.Duration `yaml:"timeout"`
	RateLimitPerMin int           `yaml:"rate_limit_per_min"`
}

// Server holds network listener configuration.
type Server struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	GRPCPort int    `yaml:"grpc_port"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Pipeline tunes the daily and monthly runs.
type Pipeline struct {
	Retries      int           `yaml:"retries"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
	LookbackDays int           `yaml:"lookback_days"`
	GroupCols    []string      `yaml:"group_cols"`
	RidgeLambda  float64       `yaml:"ridge_lambda"`
}

// Drift holds the drift windows and thresholds.
type Drift struct {
	CurrentDays    int     `yaml:"current_days"`
	ReferenceDays  int     `yaml:"reference_days"`
	Bins           int     `yaml:"bins"`
	PSIThreshold   float64 `yaml:"psi_threshold"`
	TVDThreshold   float64 `yaml:"tvd_threshold"`
	ShareThreshold float64 `yaml:"share_threshold"`
}

// Notify configures the Telegram notifier. Without a token and chat id
// messages only go to the log.
type Notify struct {
	TelegramAPI string `yaml:"telegram_api"`
	BotToken    string `yaml:"bot_token"`
	ChatID      string `yaml:"chat_id"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// DefaultPath is the config file used when $MILKCAST_CONFIG is unset.
const DefaultPath = "config/milkcast.yaml"

// Path returns $MILKCAST_CONFIG or DefaultPath.
func Path() string {
	if p := os.Getenv("MILKCAST_CONFIG"); p != "" {
		return p
	}
	return DefaultPath
}

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies environment variable overrides and fills defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
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
	if v := os.Getenv("STORAGE_SOURCE"); v != "" {
		cfg.Storage.Source = v
	}
	if v := os.Getenv("GCS_BUCKET"); v != "" {
		cfg.Storage.Bucket = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("SNIIM_BASE_URL"); v != "" {
		cfg.Upstream.BaseURL = v
	}

	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Notify.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Notify.ChatID = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Storage.Source == "" {
		cfg.Storage.Source = "local"
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "data"
	}
	if cfg.Upstream.Timeout <= 0 {
		cfg.Upstream.Timeout = 60 * time.Second
	}
	if cfg.Upstream.RateLimitPerMin <= 0 {
		cfg.Upstream.RateLimitPerMin = 30
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}
