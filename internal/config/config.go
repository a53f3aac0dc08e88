// Package config loads service configuration from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
	_ "time/tzdata" // containers often ship without zoneinfo

	"gopkg.in/yaml.v3"

	"github.com/polycle/member/internal/retry"
)

const (
	// AppDir is the directory name under XDG_CONFIG_HOME.
	AppDir = "member"
	// ConfigFile is the config file name.
	ConfigFile = "config.yml"
	// SessionDBFile is the default session database name.
	SessionDBFile = "sessions.db"
)

// Config is the full service configuration.
type Config struct {
	ListenAddr    string        `yaml:"listen_addr"`
	BaseURL       string        `yaml:"base_url"`
	Timezone      string        `yaml:"timezone"`
	SessionDB     string        `yaml:"session_db"`
	SessionSecret string        `yaml:"session_secret"`
	SessionTTL    time.Duration `yaml:"session_ttl"`

	Sheets      SheetsConfig `yaml:"sheets"`
	Retry       RetryConfig  `yaml:"retry"`
	Slack       SlackConfig  `yaml:"slack"`
	GoogleOAuth OAuthClient  `yaml:"google_oauth"`
	SlackOAuth  OAuthClient  `yaml:"slack_oauth"`
}

// SheetsConfig points at the backing spreadsheet.
type SheetsConfig struct {
	SpreadsheetID     string `yaml:"spreadsheet_id"`
	CredentialsFile   string `yaml:"credentials_file"` // service account JSON
	RequestsPerMinute int    `yaml:"requests_per_minute"`
}

// RetryConfig controls exponential backoff around spreadsheet calls.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	Factor      float64       `yaml:"factor"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// Policy converts the settings into a retry policy.
func (r RetryConfig) Policy() retry.Policy {
	return retry.Policy{
		MaxAttempts: r.MaxAttempts,
		BaseDelay:   r.BaseDelay,
		Factor:      r.Factor,
		MaxDelay:    r.MaxDelay,
	}
}

// SlackConfig configures DR mirroring.
type SlackConfig struct {
	BotToken        string `yaml:"bot_token"`
	DRChannel       string `yaml:"dr_channel"`
	DisableFallback bool   `yaml:"disable_fallback"`
}

// OAuthClient holds OAuth client credentials for one provider.
type OAuthClient struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// Enabled reports whether both halves of the client credentials are set.
func (o OAuthClient) Enabled() bool {
	return o.ClientID != "" && o.ClientSecret != ""
}

// Defaults.
const (
	DefaultListenAddr        = ":8080"
	DefaultBaseURL           = "http://localhost:8080"
	DefaultTimezone          = "UTC"
	DefaultSessionTTL        = 7 * 24 * time.Hour
	DefaultRequestsPerMinute = 60
	DefaultMaxAttempts       = 4
	DefaultBaseDelay         = 500 * time.Millisecond
	DefaultFactor            = 2.0
	DefaultMaxDelay          = 8 * time.Second
)

// Errors.
var (
	ErrMissingSpreadsheet = errors.New("sheets.spreadsheet_id is not set (MEMBER_SPREADSHEET_ID)")
	ErrMissingCredentials = errors.New("sheets.credentials_file is not set (GOOGLE_APPLICATION_CREDENTIALS)")
	ErrMissingSecret      = errors.New("session_secret is not set (MEMBER_SESSION_SECRET)")
)

// Path returns the default config file path.
// Respects XDG_CONFIG_HOME, defaults to ~/.config/member/config.yml.
func Path() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, AppDir, ConfigFile)
}

// Load reads the config file at path (or the default path when empty),
// applies environment overrides and fills defaults.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = Path()
	}

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config: %w", err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.ListenAddr, "MEMBER_LISTEN_ADDR")
	setString(&c.BaseURL, "MEMBER_BASE_URL")
	setString(&c.Timezone, "MEMBER_TIMEZONE")
	setString(&c.SessionDB, "MEMBER_SESSION_DB")
	setString(&c.SessionSecret, "MEMBER_SESSION_SECRET")
	setString(&c.Sheets.SpreadsheetID, "MEMBER_SPREADSHEET_ID")
	setString(&c.Sheets.CredentialsFile, "GOOGLE_APPLICATION_CREDENTIALS")
	setString(&c.Slack.BotToken, "SLACK_BOT_TOKEN")
	setString(&c.Slack.DRChannel, "SLACK_DR_CHANNEL")
	setString(&c.GoogleOAuth.ClientID, "GOOGLE_OAUTH_CLIENT_ID")
	setString(&c.GoogleOAuth.ClientSecret, "GOOGLE_OAUTH_CLIENT_SECRET")
	setString(&c.SlackOAuth.ClientID, "SLACK_OAUTH_CLIENT_ID")
	setString(&c.SlackOAuth.ClientSecret, "SLACK_OAUTH_CLIENT_SECRET")

	if v := os.Getenv("SLACK_DISABLE_FALLBACK"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parsing SLACK_DISABLE_FALLBACK: %w", err)
		}
		c.Slack.DisableFallback = b
	}
	return nil
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timezone == "" {
		c.Timezone = DefaultTimezone
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = DefaultSessionTTL
	}
	if c.SessionDB == "" {
		c.SessionDB = defaultSessionDB()
	}
	c.SessionDB = ExpandPath(c.SessionDB)
	c.Sheets.CredentialsFile = ExpandPath(c.Sheets.CredentialsFile)
	if c.Sheets.RequestsPerMinute <= 0 {
		c.Sheets.RequestsPerMinute = DefaultRequestsPerMinute
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = DefaultMaxAttempts
	}
	if c.Retry.BaseDelay <= 0 {
		c.Retry.BaseDelay = DefaultBaseDelay
	}
	if c.Retry.Factor < 1 {
		c.Retry.Factor = DefaultFactor
	}
	if c.Retry.MaxDelay <= 0 {
		c.Retry.MaxDelay = DefaultMaxDelay
	}
}

// defaultSessionDB returns ~/.local/share/member/sessions.db, respecting XDG_DATA_HOME.
func defaultSessionDB() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return SessionDBFile
		}
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, AppDir, SessionDBFile)
}

// Location resolves the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// ValidateSheets checks the settings needed to reach the spreadsheet.
func (c *Config) ValidateSheets() error {
	if c.Sheets.SpreadsheetID == "" {
		return ErrMissingSpreadsheet
	}
	if c.Sheets.CredentialsFile == "" {
		return ErrMissingCredentials
	}
	return nil
}

// ValidateServer checks everything `member serve` needs.
// When memory is true the spreadsheet settings are not required.
func (c *Config) ValidateServer(memory bool) error {
	if !memory {
		if err := c.ValidateSheets(); err != nil {
			return err
		}
	}
	if c.SessionSecret == "" {
		return ErrMissingSecret
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	c.SessionSecret = redact(c.SessionSecret)
	c.Slack.BotToken = redact(c.Slack.BotToken)
	c.GoogleOAuth.ClientSecret = redact(c.GoogleOAuth.ClientSecret)
	c.SlackOAuth.ClientSecret = redact(c.SlackOAuth.ClientSecret)
	return c
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}

// ExpandPath expands ~ to the user's home directory.
// Returns the original path unchanged if it doesn't start with ~.
func ExpandPath(path string) string {
	if len(path) == 0 || path[0] != '~' {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path // Return original if we can't get home directory
	}

	return filepath.Join(home, path[1:])
}
