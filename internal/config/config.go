package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"MarketVault/internal/logging"
	"MarketVault/internal/model"
	"MarketVault/internal/planner"
	"MarketVault/internal/store"
	"MarketVault/internal/syncer"
)

// Duration is a time.Duration written as "10s" or "1m30s" in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(v)
	return nil
}

// MarketConfig overrides a market's session. Cutoff is local wall-clock "HH:MM".
type MarketConfig struct {
	Timezone string `yaml:"timezone"`
	Cutoff   string `yaml:"cutoff"`
}

// Config holds all application configuration.
type Config struct {
	Store struct {
		Root             string `yaml:"root"`
		MaxRetentionDays int    `yaml:"max_retention_days"`
	} `yaml:"store"`
	Sync struct {
		BatchSize            int       `yaml:"batch_size"`
		MaxConcurrency       int       `yaml:"max_concurrency"`
		InterBatchPause      *Duration `yaml:"inter_batch_pause"`
		FetchTimeout         Duration  `yaml:"fetch_timeout"`
		LookbackDays         int       `yaml:"lookback_days"`
		MaxRetries           int       `yaml:"max_retries"`
		RetryInitialInterval Duration  `yaml:"retry_initial_interval"`
	} `yaml:"sync"`
	Markets  map[string]MarketConfig `yaml:"markets"`
	Universe struct {
		File    string   `yaml:"file"`
		Symbols []string `yaml:"symbols"`
	} `yaml:"universe"`
	DataSource struct {
		BaseURL string `yaml:"base_url"`
		APIKey  string `yaml:"api_key"`
	} `yaml:"data_source"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Schedule struct {
		SyncCron string `yaml:"sync_cron"`
	} `yaml:"schedule"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Log   logging.Config `yaml:"log"`
	Proxy string         `yaml:"proxy"`
}

var dotenvOnce sync.Once

// loadDotenv reads .env (or $ENV_FILE) into the environment once per process.
// Variables already set win unless DOTENV_OVERLOAD=1.
func loadDotenv() {
	dotenvOnce.Do(func() {
		if os.Getenv("NO_DOTENV") == "1" {
			return
		}
		path := ".env"
		if v := os.Getenv("ENV_FILE"); v != "" {
			path = v
		}
		if os.Getenv("DOTENV_OVERLOAD") == "1" {
			_ = godotenv.Overload(path)
		} else {
			_ = godotenv.Load(path)
		}
	})
}

// Load reads config from a YAML file, then applies environment variable overrides
// and defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	loadDotenv()
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("MARKETVAULT_STORE_ROOT"); v != "" {
		c.Store.Root = v
	}
	if v := os.Getenv("VSTRADER_BASE_URL"); v != "" {
		c.DataSource.BaseURL = v
	}
	if v := os.Getenv("VSTRADER_API_KEY"); v != "" {
		c.DataSource.APIKey = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		c.Telegram.ChatID = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		c.Proxy = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.Database.SQLitePath = v
	}
	if v := os.Getenv("CRON_SYNC"); v != "" {
		c.Schedule.SyncCron = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

func (c *Config) applyDefaults() {
	if c.Store.Root == "" {
		c.Store.Root = "data/bars"
	}
	if c.Store.MaxRetentionDays == 0 {
		c.Store.MaxRetentionDays = store.MaxRetentionDays
	}
	if c.Sync.BatchSize == 0 {
		c.Sync.BatchSize = syncer.DefaultBatchSize
	}
	if c.Sync.MaxConcurrency == 0 {
		c.Sync.MaxConcurrency = syncer.DefaultMaxConcurrency
	}
	if c.Sync.InterBatchPause == nil {
		d := Duration(syncer.DefaultInterBatchPause)
		c.Sync.InterBatchPause = &d
	}
	if c.Sync.FetchTimeout == 0 {
		c.Sync.FetchTimeout = Duration(syncer.DefaultFetchTimeout)
	}
	if c.Sync.LookbackDays == 0 {
		c.Sync.LookbackDays = 500
	}
	if c.Sync.RetryInitialInterval == 0 {
		c.Sync.RetryInitialInterval = Duration(syncer.DefaultRetryInterval)
	}
	if c.Schedule.SyncCron == "" {
		c.Schedule.SyncCron = "0 0 22 * * 1-5"
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/marketvault.db"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stdout"
	}
	if c.Log.FilePath == "" {
		c.Log.FilePath = "logs/marketvault.log"
	}
	if c.Log.MaxSize == 0 {
		c.Log.MaxSize = 100
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = 10
	}
	if c.Log.MaxAge == 0 {
		c.Log.MaxAge = 30
	}
}

// Validate checks value ranges and the consistency of optional sections.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Store.Root) == "" {
		return fmt.Errorf("store.root is required")
	}
	if n := c.Store.MaxRetentionDays; n < store.MinRetentionDays || n > store.MaxRetentionDays {
		return fmt.Errorf("store.max_retention_days must be within [%d, %d], got %d",
			store.MinRetentionDays, store.MaxRetentionDays, n)
	}
	if c.Sync.BatchSize <= 0 {
		return fmt.Errorf("sync.batch_size must be positive")
	}
	if c.Sync.MaxConcurrency <= 0 {
		return fmt.Errorf("sync.max_concurrency must be positive")
	}
	if c.Sync.InterBatchPause != nil && *c.Sync.InterBatchPause < 0 {
		return fmt.Errorf("sync.inter_batch_pause must not be negative")
	}
	if c.Sync.FetchTimeout <= 0 {
		return fmt.Errorf("sync.fetch_timeout must be positive")
	}
	if c.Sync.LookbackDays <= 0 {
		return fmt.Errorf("sync.lookback_days must be positive")
	}
	if c.Sync.MaxRetries < 0 {
		return fmt.Errorf("sync.max_retries must not be negative")
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id must be set together")
	}
	if _, err := c.Sessions(); err != nil {
		return err
	}
	return nil
}

// TelegramEnabled reports whether run summaries should be delivered.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}

// SyncOptions converts the sync section into syncer options.
func (c *Config) SyncOptions() syncer.Options {
	opts := syncer.Options{
		BatchSize:            c.Sync.BatchSize,
		MaxConcurrency:       c.Sync.MaxConcurrency,
		FetchTimeout:         time.Duration(c.Sync.FetchTimeout),
		Lookback:             time.Duration(c.Sync.LookbackDays) * 24 * time.Hour,
		MaxRetries:           c.Sync.MaxRetries,
		RetryInitialInterval: time.Duration(c.Sync.RetryInitialInterval),
	}
	if c.Sync.InterBatchPause != nil {
		opts.InterBatchPause = time.Duration(*c.Sync.InterBatchPause)
	}
	return opts
}

// Sessions returns the default market sessions overlaid with the markets section.
func (c *Config) Sessions() (map[model.Market]planner.Session, error) {
	sessions := planner.DefaultSessions()
	for name, mc := range c.Markets {
		market, err := model.ParseMarket(name)
		if err != nil {
			return nil, fmt.Errorf("markets.%s: %w", name, err)
		}
		sess := sessions[market]
		if mc.Timezone != "" {
			loc, err := time.LoadLocation(mc.Timezone)
			if err != nil {
				return nil, fmt.Errorf("markets.%s.timezone: %w", name, err)
			}
			sess.Location = loc
		}
		if mc.Cutoff != "" {
			cutoff, err := parseClock(mc.Cutoff)
			if err != nil {
				return nil, fmt.Errorf("markets.%s.cutoff: %w", name, err)
			}
			sess.Cutoff = cutoff
		}
		sessions[market] = sess
	}
	return sessions, nil
}

// parseClock turns "HH:MM" into an offset from midnight.
func parseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("want HH:MM, got %q", s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}
