package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Analysis.APIKey = "sk-ant-test"
	cfg.LegalWatch.APIKey = "sk-test"
	cfg.Telegram.Token = "123:abc"
	cfg.Telegram.ChatID = "-100"
	cfg.Sources.Local.Dir = "/tmp/inbox"
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "anthropic", cfg.Analysis.Provider)
	assert.Equal(t, 60, cfg.Analysis.RiskThreshold)
	assert.Equal(t, "openai", cfg.LegalWatch.Provider)
	assert.Equal(t, 30*time.Minute, cfg.Scan.GetInterval())
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Retry.GetBackoffBase())
	assert.Equal(t, 60*time.Second, cfg.Retry.GetMaxBackoff())
	assert.Equal(t, 1, cfg.Tracker.FlushEvery)
	assert.Equal(t, "state/expirations.json", cfg.Expiration.Path)
	assert.Equal(t, "0 9 * * *", cfg.Expiration.Schedule)
	assert.Equal(t, 30, cfg.Expiration.UpcomingDays)
	assert.Equal(t, 7, cfg.Expiration.CriticalDays)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing analysis key", func(c *Config) { c.Analysis.APIKey = "" }, "ANTHROPIC_API_KEY"},
		{"missing telegram token", func(c *Config) { c.Telegram.Token = "" }, "telegram token"},
		{"missing chat id", func(c *Config) { c.Telegram.ChatID = "" }, "chat ID"},
		{"no sources", func(c *Config) { c.Sources.Local.Dir = "" }, "document source"},
		{"drive without credentials", func(c *Config) {
			c.Sources.Drive.FolderIDs = []string{"folder-1"}
			c.Sources.Drive.CredentialsFile = ""
		}, "credentials"},
		{"threshold out of range", func(c *Config) { c.Analysis.RiskThreshold = 150 }, "risk_threshold"},
		{"legal watch without key", func(c *Config) { c.LegalWatch.APIKey = "" }, "OPENAI_API_KEY"},
		{"legal watch disabled needs no key", func(c *Config) {
			c.LegalWatch.APIKey = ""
			c.LegalWatch.Enabled = false
		}, ""},
		{"zero retry attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }, "max_attempts"},
		{"missing expirations path", func(c *Config) { c.Expiration.Path = "" }, "expiration.path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "contractwatch.yaml")

	yaml := `
analysis:
  risk_threshold: 75
  model: claude-opus-4
scan:
  interval: 10m
sources:
  local:
    dir: /data/contracts
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	// File values override defaults.
	assert.Equal(t, 75, cfg.Analysis.RiskThreshold)
	assert.Equal(t, "claude-opus-4", cfg.Analysis.Model)
	assert.Equal(t, 10*time.Minute, cfg.Scan.GetInterval())
	assert.Equal(t, "/data/contracts", cfg.Sources.Local.Dir)

	// Untouched values keep defaults.
	assert.Equal(t, "anthropic", cfg.Analysis.Provider)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
}

func TestLoadFromFile_Malformed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("analysis: ["), 0o644))

	_, err := LoadFromFile(path)
	assert.Error(t, err)
}

func TestLoader_EnvOverrides(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-env")
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("TELEGRAM_TOKEN", "env-token")
	t.Setenv("TELEGRAM_CHAT_ID", "-200")
	t.Setenv("CONTRACTWATCH_INBOX", "/env/inbox")
	t.Setenv("RISK_THRESHOLD_ALERT", "80")
	t.Setenv("GOOGLE_DRIVE_FOLDER_IDS", "folder-a,folder-b")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "/etc/creds.json")

	cfg, err := NewLoader(nil).Load("")
	require.NoError(t, err)

	assert.Equal(t, "sk-ant-env", cfg.Analysis.APIKey)
	assert.Equal(t, "env-token", cfg.Telegram.Token)
	assert.Equal(t, 80, cfg.Analysis.RiskThreshold)
	assert.Equal(t, "/env/inbox", cfg.Sources.Local.Dir)
	assert.Equal(t, []string{"folder-a", "folder-b"}, cfg.Sources.Drive.FolderIDs)
}

func TestLoader_ExplicitMissingFileFails(t *testing.T) {
	_, err := NewLoader(nil).Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoader_InvalidConfigFails(t *testing.T) {
	// No credentials in environment or file: startup must refuse.
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("TELEGRAM_TOKEN", "")
	t.Setenv("TELEGRAM_CHAT_ID", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("CONTRACTWATCH_INBOX", "")
	t.Setenv("GOOGLE_DRIVE_FOLDER_IDS", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	_, err := NewLoader(nil).Load("")
	assert.Error(t, err)
}

func TestParseDuration_Fallbacks(t *testing.T) {
	assert.Equal(t, time.Minute, parseDuration("", time.Minute))
	assert.Equal(t, time.Minute, parseDuration("bogus", time.Minute))
	assert.Equal(t, 90*time.Second, parseDuration("90s", time.Minute))
}
