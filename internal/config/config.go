// Package config loads leadsync settings.
//
// Settings come from, in increasing precedence: built-in defaults, an
// optional YAML file (leadsync.yaml in the working directory, or the path
// given with --config), and environment variables. A .env file in the
// working directory is loaded into the environment first.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all leadsync settings.
type Config struct {
	DB        DBConfig        `mapstructure:"db"`
	Directory DirectoryConfig `mapstructure:"directory"`
	Sheets    SheetsConfig    `mapstructure:"sheets"`
	CRM       CRMConfig       `mapstructure:"crm"`
	Tickets   TicketsConfig   `mapstructure:"tickets"`
	Log       LogConfig       `mapstructure:"log"`
	Daemon    DaemonConfig    `mapstructure:"daemon"`
}

// DBConfig locates the local SQLite store.
type DBConfig struct {
	Path string `mapstructure:"path"`
}

// DirectoryConfig locates the master directory sheet.
type DirectoryConfig struct {
	Link string `mapstructure:"link"`
}

// SheetsConfig selects and tunes the spreadsheet backend.
type SheetsConfig struct {
	Backend         string        `mapstructure:"backend"` // google or xlsx
	CredentialsFile string        `mapstructure:"credentials_file"`
	Root            string        `mapstructure:"root"` // base directory for xlsx links
	Cooldown        time.Duration `mapstructure:"cooldown"`
	MaxOpenRetries  int           `mapstructure:"max_open_retries"`

	// CredentialsJSON is assembled from the split service-account variables
	// when no credentials file is configured.
	CredentialsJSON []byte `mapstructure:"-"`
}

// CRMConfig configures the CRM API client and ingestion.
type CRMConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	RedirectURI  string        `mapstructure:"redirect_uri"`
	PageLimit    int           `mapstructure:"page_limit"`
	Attempts     int           `mapstructure:"attempts"`
	Backoff      time.Duration `mapstructure:"backoff"`
}

// TicketsConfig configures follow-up ticket filing.
type TicketsConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // console or json
	File   string `mapstructure:"file"`
}

// DaemonConfig configures the periodic runner.
type DaemonConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// Backend names.
const (
	BackendGoogle = "google"
	BackendXLSX   = "xlsx"
)

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		DB: DBConfig{Path: "leadsync.db"},
		Sheets: SheetsConfig{
			Backend:  BackendGoogle,
			Cooldown: 100 * time.Second,
		},
		CRM: CRMConfig{
			BaseURL:     "https://services.leadconnectorhq.com",
			RedirectURI: "http://localhost:3000/oauth/callback",
			PageLimit:   100,
			Attempts:    3,
			Backoff:     5 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Daemon: DaemonConfig{Interval: time.Hour},
	}
}

// envBindings maps config keys to the environment variables that set them.
var envBindings = map[string][]string{
	"db.path":                 {"LEADSYNC_DB"},
	"directory.link":          {"LEADSYNC_DIRECTORY", "MDS_SHEET_ID"},
	"sheets.backend":          {"LEADSYNC_SHEETS_BACKEND"},
	"sheets.credentials_file": {"LEADSYNC_CREDENTIALS_FILE", "GOOGLE_APPLICATION_CREDENTIALS"},
	"sheets.root":             {"LEADSYNC_SHEETS_ROOT"},
	"sheets.cooldown":         {"LEADSYNC_COOLDOWN"},
	"sheets.max_open_retries": {"LEADSYNC_MAX_OPEN_RETRIES"},
	"crm.base_url":            {"LEADSYNC_CRM_BASE_URL", "BASE_URL"},
	"crm.client_id":           {"LEADSYNC_CRM_CLIENT_ID", "CLIENT_ID"},
	"crm.client_secret":       {"LEADSYNC_CRM_CLIENT_SECRET", "CLIENT_SECRET"},
	"crm.redirect_uri":        {"LEADSYNC_CRM_REDIRECT_URI"},
	"crm.page_limit":          {"LEADSYNC_CRM_PAGE_LIMIT"},
	"crm.attempts":            {"LEADSYNC_CRM_ATTEMPTS"},
	"crm.backoff":             {"LEADSYNC_CRM_BACKOFF"},
	"tickets.webhook_url":     {"LEADSYNC_TICKET_WEBHOOK"},
	"log.level":               {"LEADSYNC_LOG_LEVEL"},
	"log.format":              {"LEADSYNC_LOG_FORMAT"},
	"log.file":                {"LEADSYNC_LOG_FILE"},
	"daemon.interval":         {"LEADSYNC_INTERVAL"},
}

// serviceAccountFields are the split service-account variables, read verbatim.
var serviceAccountFields = []string{
	"type",
	"project_id",
	"private_key_id",
	"private_key",
	"client_email",
	"client_id",
	"auth_uri",
	"token_uri",
	"auth_provider_x509_cert_url",
	"client_x509_cert_url",
	"universe_domain",
}

// Load reads configuration. path may be empty to search for leadsync.yaml.
func Load(path string) (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v, DefaultConfig())
	for key, envs := range envBindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("leadsync")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if cfg.Sheets.CredentialsFile == "" {
		creds, err := serviceAccountFromEnv()
		if err != nil {
			return nil, err
		}
		cfg.Sheets.CredentialsJSON = creds
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("db.path", d.DB.Path)
	v.SetDefault("directory.link", d.Directory.Link)
	v.SetDefault("sheets.backend", d.Sheets.Backend)
	v.SetDefault("sheets.credentials_file", d.Sheets.CredentialsFile)
	v.SetDefault("sheets.root", d.Sheets.Root)
	v.SetDefault("sheets.cooldown", d.Sheets.Cooldown)
	v.SetDefault("sheets.max_open_retries", d.Sheets.MaxOpenRetries)
	v.SetDefault("crm.base_url", d.CRM.BaseURL)
	v.SetDefault("crm.client_id", d.CRM.ClientID)
	v.SetDefault("crm.client_secret", d.CRM.ClientSecret)
	v.SetDefault("crm.redirect_uri", d.CRM.RedirectURI)
	v.SetDefault("crm.page_limit", d.CRM.PageLimit)
	v.SetDefault("crm.attempts", d.CRM.Attempts)
	v.SetDefault("crm.backoff", d.CRM.Backoff)
	v.SetDefault("tickets.webhook_url", d.Tickets.WebhookURL)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("daemon.interval", d.Daemon.Interval)
}

// serviceAccountFromEnv builds service-account JSON from the split variables.
// Returns nil when private_key is not set.
func serviceAccountFromEnv() ([]byte, error) {
	if os.Getenv("private_key") == "" {
		return nil, nil
	}
	fields := make(map[string]string, len(serviceAccountFields))
	for _, name := range serviceAccountFields {
		if val := os.Getenv(name); val != "" {
			fields[name] = val
		}
	}
	// Keys pasted into env files usually carry escaped newlines.
	fields["private_key"] = strings.ReplaceAll(fields["private_key"], `\n`, "\n")

	b, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to encode service account credentials: %w", err)
	}
	return b, nil
}

// GoogleCredentials returns the service-account JSON for the Sheets backend.
func (c *Config) GoogleCredentials() ([]byte, error) {
	if c.Sheets.CredentialsFile != "" {
		b, err := os.ReadFile(c.Sheets.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read credentials file: %w", err)
		}
		return b, nil
	}
	if len(c.Sheets.CredentialsJSON) > 0 {
		return c.Sheets.CredentialsJSON, nil
	}
	return nil, fmt.Errorf("no Google credentials: set sheets.credentials_file or the service-account variables")
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.DB.Path == "" {
		return fmt.Errorf("db.path is required")
	}
	switch c.Sheets.Backend {
	case BackendGoogle, BackendXLSX:
	default:
		return fmt.Errorf("sheets.backend must be %q or %q, got %q", BackendGoogle, BackendXLSX, c.Sheets.Backend)
	}
	if c.Sheets.Cooldown <= 0 {
		return fmt.Errorf("sheets.cooldown must be positive")
	}
	if c.Sheets.MaxOpenRetries < 0 {
		return fmt.Errorf("sheets.max_open_retries cannot be negative")
	}
	if c.CRM.PageLimit <= 0 {
		return fmt.Errorf("crm.page_limit must be positive")
	}
	if c.CRM.Attempts < 1 {
		return fmt.Errorf("crm.attempts must be at least 1")
	}
	if c.CRM.Backoff < 0 {
		return fmt.Errorf("crm.backoff cannot be negative")
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}
	if c.Daemon.Interval <= 0 {
		return fmt.Errorf("daemon.interval must be positive")
	}
	return nil
}
