package core

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Credential source backends.
const (
	SourceSheets   = "sheets"
	SourcePostgres = "postgres"
)

// defaultSessionKey is only acceptable outside production.
const defaultSessionKey = "change-this-session-key"

// Config holds runtime settings for the API process and portalctl.
// It is resolved once at startup and passed by value afterwards.
type Config struct {
	Port           string        `yaml:"port"`             // HTTP listen port (e.g., "3000")
	Env            string        `yaml:"env"`              // development / production
	LogLevel       string        `yaml:"log_level"`        // zap level name
	LogDir         string        `yaml:"log_dir"`          // Directory to write application logs
	SessionKey     string        `yaml:"session_key"`      // Cookie signing key
	CookieSecure   bool          `yaml:"cookie_secure"`    // Whether to set Secure flag on session cookie
	CookieSameSite string        `yaml:"cookie_samesite"`  // SameSite policy: Strict/Lax/None
	SessionTTL     time.Duration `yaml:"session_ttl"`      // lifetime of the login session
	AllowedOrigins []string      `yaml:"allowed_origins"`  // empty means any origin ("*")

	CredentialSource string        `yaml:"credential_source"` // "sheets" or "postgres"
	SheetsAPIKey     string        `yaml:"sheets_api_key"`
	SheetID          string        `yaml:"sheet_id"`
	SheetRange       string        `yaml:"sheet_range"`
	SheetsBaseURL    string        `yaml:"sheets_base_url"`
	FetchTimeout     time.Duration `yaml:"fetch_timeout"`
	DatabaseURL      string        `yaml:"database_url"`
	CredentialsTable string        `yaml:"credentials_table"`

	AuditRedisURL   string `yaml:"audit_redis_url"` // empty disables the audit trail
	AuditListKey    string `yaml:"audit_list_key"`
	AuditMaxEntries int64  `yaml:"audit_max_entries"`
}

// Load resolves Config from defaults, an optional YAML file and the environment.
// An empty configFile falls back to the CONFIG_FILE environment variable.
func Load(configFile string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	bindEnv(v)

	if configFile == "" {
		configFile = v.GetString("config_file")
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	var origins []string
	for _, o := range v.GetStringSlice("allowed_origins") {
		origins = append(origins, parseCSV(o)...)
	}

	return Config{
		Port:           v.GetString("port"),
		Env:            v.GetString("env"),
		LogLevel:       v.GetString("log_level"),
		LogDir:         v.GetString("log_dir"),
		SessionKey:     v.GetString("session_key"),
		CookieSecure:   v.GetBool("cookie_secure"),
		CookieSameSite: v.GetString("cookie_samesite"),
		SessionTTL:     v.GetDuration("session_ttl"),
		AllowedOrigins: origins,

		CredentialSource: strings.ToLower(strings.TrimSpace(v.GetString("credential_source"))),
		SheetsAPIKey:     v.GetString("sheets_api_key"),
		SheetID:          v.GetString("sheet_id"),
		SheetRange:       v.GetString("sheet_range"),
		SheetsBaseURL:    v.GetString("sheets_base_url"),
		FetchTimeout:     v.GetDuration("fetch_timeout"),
		DatabaseURL:      v.GetString("database_url"),
		CredentialsTable: v.GetString("credentials_table"),

		AuditRedisURL:   v.GetString("audit_redis_url"),
		AuditListKey:    v.GetString("audit_list_key"),
		AuditMaxEntries: v.GetInt64("audit_max_entries"),
	}, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "3000")
	v.SetDefault("env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_dir", "./logs")
	v.SetDefault("session_key", defaultSessionKey)
	v.SetDefault("cookie_secure", false)
	v.SetDefault("cookie_samesite", "Lax")
	v.SetDefault("session_ttl", "24h")

	v.SetDefault("credential_source", SourceSheets)
	v.SetDefault("sheet_range", "Sheet1!A:C")
	v.SetDefault("sheets_base_url", DefaultSheetsBaseURL)
	v.SetDefault("fetch_timeout", "5s")
	v.SetDefault("credentials_table", "portal_users")

	v.SetDefault("audit_list_key", "portal:login_audit")
	v.SetDefault("audit_max_entries", 1000)
}

func bindEnv(v *viper.Viper) {
	for key, env := range map[string]string{
		"config_file":       "CONFIG_FILE",
		"port":              "PORT",
		"env":               "APP_ENV",
		"log_level":         "LOG_LEVEL",
		"log_dir":           "LOG_DIR",
		"session_key":       "SESSION_KEY",
		"cookie_secure":     "COOKIE_SECURE",
		"cookie_samesite":   "COOKIE_SAMESITE",
		"session_ttl":       "SESSION_TTL",
		"allowed_origins":   "ALLOWED_ORIGINS",
		"credential_source": "CREDENTIAL_SOURCE",
		"sheets_api_key":    "GOOGLE_SHEETS_API_KEY",
		"sheet_id":          "GOOGLE_SHEET_ID",
		"sheet_range":       "SHEET_RANGE",
		"sheets_base_url":   "SHEETS_BASE_URL",
		"fetch_timeout":     "FETCH_TIMEOUT",
		"database_url":      "DATABASE_URL",
		"credentials_table": "CREDENTIALS_TABLE",
		"audit_redis_url":   "AUDIT_REDIS_URL",
		"audit_list_key":    "AUDIT_LIST_KEY",
		"audit_max_entries": "AUDIT_MAX_ENTRIES",
	} {
		_ = v.BindEnv(key, env)
	}
}

// Validate reports every missing or malformed setting at once so the process
// can refuse to start instead of failing on each request.
func (c Config) Validate() error {
	var problems []string
	switch c.CredentialSource {
	case SourceSheets:
		if c.SheetsAPIKey == "" {
			problems = append(problems, "GOOGLE_SHEETS_API_KEY is required")
		}
		if c.SheetID == "" {
			problems = append(problems, "GOOGLE_SHEET_ID is required")
		}
		if c.SheetRange == "" {
			problems = append(problems, "SHEET_RANGE is required")
		}
	case SourcePostgres:
		if c.DatabaseURL == "" {
			problems = append(problems, "DATABASE_URL is required")
		}
		if c.CredentialsTable == "" {
			problems = append(problems, "CREDENTIALS_TABLE is required")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown CREDENTIAL_SOURCE %q", c.CredentialSource))
	}
	switch {
	case c.SessionKey == "":
		problems = append(problems, "SESSION_KEY is required")
	case c.IsProduction() && c.SessionKey == defaultSessionKey:
		problems = append(problems, "SESSION_KEY must be changed from the default in production")
	}
	if c.SessionTTL <= 0 {
		problems = append(problems, "SESSION_TTL must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// IsProduction reports whether production logging and cookie defaults apply.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// SourceSettings returns the fetch parameters the validator hands to its GridSource.
func (c Config) SourceSettings() SourceSettings {
	if c.CredentialSource == SourcePostgres {
		return SourceSettings{Backend: SourcePostgres, SheetID: c.CredentialsTable, Timeout: c.FetchTimeout}
	}
	return SourceSettings{
		Backend: SourceSheets,
		SheetID: c.SheetID,
		Range:   c.SheetRange,
		APIKey:  c.SheetsAPIKey,
		Timeout: c.FetchTimeout,
	}
}

// Redacted returns a copy safe to print: secrets are masked and the database
// password is stripped.
func (c Config) Redacted() Config {
	out := c
	out.SheetsAPIKey = mask(c.SheetsAPIKey)
	out.SessionKey = mask(c.SessionKey)
	if u, err := url.Parse(c.DatabaseURL); err == nil && c.DatabaseURL != "" {
		out.DatabaseURL = u.Redacted()
	}
	if u, err := url.Parse(c.AuditRedisURL); err == nil && c.AuditRedisURL != "" {
		out.AuditRedisURL = u.Redacted()
	}
	return out
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "****"
}

// parseCSV splits comma-separated list and trims spaces; empty entries are skipped.
func parseCSV(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}
