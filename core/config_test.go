package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, SourceSheets, cfg.CredentialSource)
	assert.Equal(t, "Sheet1!A:C", cfg.SheetRange)
	assert.Equal(t, DefaultSheetsBaseURL, cfg.SheetsBaseURL)
	assert.Equal(t, 5*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.Empty(t, cfg.AllowedOrigins)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("GOOGLE_SHEETS_API_KEY", "api-key")
	t.Setenv("GOOGLE_SHEET_ID", "sheet-id")
	t.Setenv("SHEET_RANGE", "Users!A:D")
	t.Setenv("FETCH_TIMEOUT", "2s")
	t.Setenv("ALLOWED_ORIGINS", "https://portal.example.com, https://hr.example.com")
	t.Setenv("COOKIE_SECURE", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, SourceSettings{
		Backend: SourceSheets,
		SheetID: "sheet-id",
		Range:   "Users!A:D",
		APIKey:  "api-key",
		Timeout: 2 * time.Second,
	}, cfg.SourceSettings())
	assert.Equal(t, []string{"https://portal.example.com", "https://hr.example.com"}, cfg.AllowedOrigins)
	assert.True(t, cfg.CookieSecure)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
credential_source: postgres
database_url: postgres://portal:pw@db:5432/hr
credentials_table: hr.portal_users
allowed_origins:
  - https://a.example.com
  - https://b.example.com
`), 0o600))
	t.Setenv("PORT", "8081")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "8081", cfg.Port, "env overrides file")
	assert.Equal(t, SourcePostgres, cfg.CredentialSource)
	assert.Equal(t, SourceSettings{Backend: SourcePostgres, SheetID: "hr.portal_users", Timeout: 5 * time.Second}, cfg.SourceSettings())
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.AllowedOrigins)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidateFailsFast(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.SheetsAPIKey = ""
	cfg.SheetID = ""

	err = cfg.Validate()
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "GOOGLE_SHEETS_API_KEY")
	assert.Contains(t, err.Error(), "GOOGLE_SHEET_ID")

	cfg.CredentialSource = "excel"
	assert.ErrorContains(t, cfg.Validate(), `unknown CREDENTIAL_SOURCE "excel"`)
}

func TestRedacted(t *testing.T) {
	cfg := Config{
		SheetsAPIKey:  "api-key",
		SessionKey:    "session",
		DatabaseURL:   "postgres://portal:hunter2@db:5432/hr",
		AuditRedisURL: "redis://:pw@cache:6379/0",
	}
	r := cfg.Redacted()
	assert.Equal(t, "****", r.SheetsAPIKey)
	assert.Equal(t, "****", r.SessionKey)
	assert.NotContains(t, r.DatabaseURL, "hunter2")
	assert.NotContains(t, r.AuditRedisURL, ":pw@")
	assert.Equal(t, "api-key", cfg.SheetsAPIKey, "receiver untouched")
}

func TestValidateRejectsDefaultSessionKeyInProduction(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("GOOGLE_SHEETS_API_KEY", "api-key")
	t.Setenv("GOOGLE_SHEET_ID", "sheet-id")
	t.Setenv("SESSION_KEY", "")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, defaultSessionKey, cfg.SessionKey)
	assert.NoError(t, cfg.Validate(), "default key is fine in development")

	cfg.Env = "production"
	err = cfg.Validate()
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "SESSION_KEY must be changed")

	cfg.SessionKey = "a-long-random-production-key"
	assert.NoError(t, cfg.Validate())

	cfg.SessionKey = ""
	assert.ErrorContains(t, cfg.Validate(), "SESSION_KEY is required")
}
