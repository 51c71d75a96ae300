// Package config provides configuration loading and validation for
// contractwatch. Values come from defaults, an optional YAML file, and
// environment variable overrides, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete contractwatch configuration.
type Config struct {
	Analysis   AnalysisConfig   `yaml:"analysis"`
	LegalWatch LegalWatchConfig `yaml:"legal_watch"`
	Sources    SourcesConfig    `yaml:"sources"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Tracker    TrackerConfig    `yaml:"tracker"`
	Expiration ExpirationConfig `yaml:"expiration"`
	Retry      RetryConfig      `yaml:"retry"`
	Scan       ScanConfig       `yaml:"scan"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// AnalysisConfig configures the contract analysis model.
type AnalysisConfig struct {
	// Provider is the LLM provider used for contract analysis.
	Provider string `yaml:"provider"`
	// Model is the model identifier sent to the provider.
	Model string `yaml:"model"`
	// APIKey authenticates against the provider.
	APIKey string `yaml:"api_key" env:"ANTHROPIC_API_KEY"`
	// BaseURL overrides the provider endpoint (for proxies and tests).
	BaseURL string `yaml:"base_url"`
	// SystemPromptPath optionally points to a system prompt file.
	SystemPromptPath string `yaml:"system_prompt_path"`
	// RiskThreshold is the 0-100 risk score at or above which an alert
	// is sent.
	RiskThreshold int `yaml:"risk_threshold" env:"RISK_THRESHOLD_ALERT"`
	// MaxTokens limits response length. 0 uses the provider default.
	MaxTokens int `yaml:"max_tokens"`
	// Timeout is the per-request HTTP timeout (e.g. "120s").
	Timeout string `yaml:"timeout"`
}

// GetTimeout returns the analysis request timeout as a duration.
func (c *AnalysisConfig) GetTimeout() time.Duration {
	return parseDuration(c.Timeout, 120*time.Second)
}

// LegalWatchConfig configures the periodic regulatory watch.
type LegalWatchConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key" env:"OPENAI_API_KEY"`
	BaseURL  string `yaml:"base_url"`
	// Schedule is a cron expression for the watch run (default daily 08:00).
	Schedule string `yaml:"schedule"`
	// Jurisdiction names the legal system being monitored.
	Jurisdiction string `yaml:"jurisdiction"`
	// BusinessProfile describes the company so findings can be scored for
	// relevance.
	BusinessProfile string `yaml:"business_profile"`
	// Topics are the monitored legal areas.
	Topics []string `yaml:"topics"`
	// WebSearch enables search-result enrichment of the watch prompt.
	WebSearch bool `yaml:"web_search"`
}

// SourcesConfig selects where candidate documents come from. At least one
// source must be configured.
type SourcesConfig struct {
	Drive DriveConfig `yaml:"drive"`
	Local LocalConfig `yaml:"local"`
}

// DriveConfig configures the Google Drive source.
type DriveConfig struct {
	// FolderIDs are the watched Drive folder identifiers.
	FolderIDs []string `yaml:"folder_ids" env:"GOOGLE_DRIVE_FOLDER_IDS" envSeparator:","`
	// CredentialsFile is the service account credentials path.
	CredentialsFile string `yaml:"credentials_file" env:"GOOGLE_APPLICATION_CREDENTIALS"`
}

// Enabled reports whether the Drive source is configured.
func (c *DriveConfig) Enabled() bool {
	return len(c.FolderIDs) > 0
}

// LocalConfig configures the local inbox source.
type LocalConfig struct {
	// Dir is the watched inbox directory. Empty disables the source.
	Dir string `yaml:"dir" env:"CONTRACTWATCH_INBOX"`
	// Patterns are doublestar globs for candidate files.
	Patterns []string `yaml:"patterns"`
	// Watch triggers a scan on file creation in daemon mode.
	Watch bool `yaml:"watch"`
	// DebounceDelay is how long to wait for more changes before scanning.
	DebounceDelay string `yaml:"debounce_delay"`
}

// Enabled reports whether the local source is configured.
func (c *LocalConfig) Enabled() bool {
	return c.Dir != ""
}

// GetDebounceDelay returns the watch debounce delay as a duration.
func (c *LocalConfig) GetDebounceDelay() time.Duration {
	return parseDuration(c.DebounceDelay, 2*time.Second)
}

// TelegramConfig configures the alert channel.
type TelegramConfig struct {
	Token  string `yaml:"token" env:"TELEGRAM_TOKEN"`
	ChatID string `yaml:"chat_id" env:"TELEGRAM_CHAT_ID"`
	// BaseURL overrides the Bot API endpoint (for tests).
	BaseURL string `yaml:"base_url"`
	// Timeout is the per-send HTTP timeout.
	Timeout string `yaml:"timeout"`
}

// GetTimeout returns the send timeout as a duration.
func (c *TelegramConfig) GetTimeout() time.Duration {
	return parseDuration(c.Timeout, 30*time.Second)
}

// TrackerConfig configures the processed-file store.
type TrackerConfig struct {
	// Path is the primary state file.
	Path string `yaml:"path" env:"CONTRACTWATCH_STATE"`
	// BackupPath overrides the derived backup location.
	BackupPath string `yaml:"backup_path"`
	// FlushEvery batches durable writes (1 = flush on every mark).
	FlushEvery int `yaml:"flush_every"`
}

// ExpirationConfig configures contract-expiration tracking.
type ExpirationConfig struct {
	// Path is the expirations file, kept beside the processed-file state.
	Path string `yaml:"path" env:"CONTRACTWATCH_EXPIRATIONS"`
	// Schedule is a cron expression for the daily expiry check.
	Schedule string `yaml:"schedule"`
	// UpcomingDays is the report window for the expirations command.
	UpcomingDays int `yaml:"upcoming_days"`
	// CriticalDays is the window inside which the daemon alerts.
	CriticalDays int `yaml:"critical_days"`
}

// RetryConfig configures the outbound-call retry policy.
type RetryConfig struct {
	MaxAttempts       int     `yaml:"max_attempts"`
	BackoffBase       string  `yaml:"backoff_base"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`
	MaxBackoff        string  `yaml:"max_backoff"`
	Jitter            float64 `yaml:"jitter"`
}

// GetBackoffBase returns the initial backoff as a duration.
func (c *RetryConfig) GetBackoffBase() time.Duration {
	return parseDuration(c.BackoffBase, time.Second)
}

// GetMaxBackoff returns the backoff ceiling as a duration.
func (c *RetryConfig) GetMaxBackoff() time.Duration {
	return parseDuration(c.MaxBackoff, 60*time.Second)
}

// ScanConfig configures the scan cycle cadence.
type ScanConfig struct {
	// Interval is the poll cadence in daemon mode (e.g. "30m").
	Interval string `yaml:"interval" env:"CONTRACTWATCH_SCAN_INTERVAL"`
}

// GetInterval returns the scan interval as a duration.
func (c *ScanConfig) GetInterval() time.Duration {
	return parseDuration(c.Interval, 30*time.Minute)
}

// MetricsConfig configures the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Analysis: AnalysisConfig{
			Provider:      "anthropic",
			Model:         "claude-sonnet-4-20250514",
			RiskThreshold: 60,
			MaxTokens:     4096,
			Timeout:       "120s",
		},
		LegalWatch: LegalWatchConfig{
			Enabled:      true,
			Provider:     "openai",
			Model:        "gpt-4o-mini",
			Schedule:     "0 8 * * *",
			Jurisdiction: "Vietnam",
			Topics: []string{
				"AI & Technology Regulation",
				"Labor Law",
				"Cybersecurity Law",
				"Enterprise Law",
				"Investment Law",
				"Tax & Finance",
				"Data Protection & Privacy",
			},
			WebSearch: false,
		},
		Sources: SourcesConfig{
			Local: LocalConfig{
				Patterns:      []string{"*.pdf", "*.docx", "*.txt"},
				Watch:         true,
				DebounceDelay: "2s",
			},
		},
		Telegram: TelegramConfig{
			Timeout: "30s",
		},
		Tracker: TrackerConfig{
			Path:       "state/processed.json",
			FlushEvery: 1,
		},
		Expiration: ExpirationConfig{
			Path:         "state/expirations.json",
			Schedule:     "0 9 * * *",
			UpcomingDays: 30,
			CriticalDays: 7,
		},
		Retry: RetryConfig{
			MaxAttempts:       5,
			BackoffBase:       "1s",
			BackoffMultiplier: 2.0,
			MaxBackoff:        "60s",
			Jitter:            0.25,
		},
		Scan: ScanConfig{
			Interval: "30m",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    ":9090",
		},
	}
}

// Validate checks that the configuration can support startup. A process with
// missing credentials or no configured source must refuse to start rather
// than run partially configured.
func (c *Config) Validate() error {
	if c.Analysis.Provider == "" || c.Analysis.Model == "" {
		return fmt.Errorf("analysis.provider and analysis.model are required")
	}
	if c.Analysis.APIKey == "" {
		return fmt.Errorf("analysis API key is required (set ANTHROPIC_API_KEY)")
	}
	if c.Analysis.RiskThreshold < 0 || c.Analysis.RiskThreshold > 100 {
		return fmt.Errorf("analysis.risk_threshold must be between 0 and 100, got %d", c.Analysis.RiskThreshold)
	}
	if c.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required (set TELEGRAM_TOKEN)")
	}
	if c.Telegram.ChatID == "" {
		return fmt.Errorf("telegram chat ID is required (set TELEGRAM_CHAT_ID)")
	}
	if !c.Sources.Drive.Enabled() && !c.Sources.Local.Enabled() {
		return fmt.Errorf("at least one document source is required (sources.drive.folder_ids or sources.local.dir)")
	}
	if c.Sources.Drive.Enabled() && c.Sources.Drive.CredentialsFile == "" {
		return fmt.Errorf("drive credentials file is required (set GOOGLE_APPLICATION_CREDENTIALS)")
	}
	if c.LegalWatch.Enabled && c.LegalWatch.APIKey == "" {
		return fmt.Errorf("legal watch API key is required (set OPENAI_API_KEY or disable legal_watch)")
	}
	if c.Tracker.Path == "" {
		return fmt.Errorf("tracker.path is required")
	}
	if c.Expiration.Path == "" {
		return fmt.Errorf("expiration.path is required")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file over the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile writes the configuration to a YAML file.
func (c *Config) SaveToFile(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// parseDuration parses a duration string, falling back to def when the
// value is empty or malformed.
func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
