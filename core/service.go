package core

import (
	"context"
	"strings"
	"time"
)

// loginTimeLayout matches JavaScript's Date.toISOString.
const loginTimeLayout = "2006-01-02T15:04:05.000Z07:00"

const defaultFetchTimeout = 5 * time.Second

// SourceSettings identifies which cells the validator reads from its GridSource.
type SourceSettings struct {
	Backend string
	SheetID string        // spreadsheet id, or table name for the postgres backend
	Range   string
	APIKey  string
	Timeout time.Duration // bound on a single fetch; defaults to defaultFetchTimeout
}

func (s SourceSettings) complete() bool {
	if s.Backend == SourcePostgres {
		return s.SheetID != ""
	}
	return s.SheetID != "" && s.Range != "" && s.APIKey != ""
}

// LoginValidator checks a credential pair against a freshly fetched grid.
// It holds no per-request state and is safe for concurrent use.
type LoginValidator struct {
	source   GridSource
	settings SourceSettings
	now      func() time.Time
}

func NewLoginValidator(source GridSource, settings SourceSettings) *LoginValidator {
	return &LoginValidator{source: source, settings: settings, now: time.Now}
}

// WithClock returns a copy of v that stamps loginTime using now.
func (v *LoginValidator) WithClock(now func() time.Time) *LoginValidator {
	cp := *v
	cp.now = now
	return &cp
}

// Validate runs one login check. Failures are *LoginError values.
func (v *LoginValidator) Validate(ctx context.Context, req LoginRequest) (User, error) {
	if strings.TrimSpace(req.Username) == "" || strings.TrimSpace(req.Password) == "" {
		return User{}, &LoginError{Kind: KindBadRequest, Err: ErrMissingCredentials}
	}

	grid, err := v.fetch(ctx)
	if err != nil {
		return User{}, err
	}

	cols, err := ResolveColumns(grid[0])
	if err != nil {
		return User{}, &LoginError{Kind: KindSchemaError, Err: err}
	}

	if _, ok := FindMatch(grid, cols, req.Username, req.Password); !ok {
		return User{}, &LoginError{Kind: KindInvalidCredentials, Err: ErrInvalidCredentials}
	}

	return User{
		Username:  req.Username,
		LoginTime: v.now().UTC().Format(loginTimeLayout),
	}, nil
}

// GridSummary describes the credential grid without exposing its contents.
type GridSummary struct {
	Headers  []string    `yaml:"headers"`
	Columns  ColumnIndex `yaml:"columns"`
	DataRows int         `yaml:"data_rows"`
}

// Inspect fetches the grid and resolves its columns, for schema checks.
func (v *LoginValidator) Inspect(ctx context.Context) (GridSummary, error) {
	grid, err := v.fetch(ctx)
	if err != nil {
		return GridSummary{}, err
	}
	summary := GridSummary{Headers: grid[0], DataRows: len(grid) - 1}
	cols, err := ResolveColumns(grid[0])
	summary.Columns = cols
	if err != nil {
		return summary, &LoginError{Kind: KindSchemaError, Err: err}
	}
	return summary, nil
}

// fetch returns a grid with at least a header row.
func (v *LoginValidator) fetch(ctx context.Context) (CredentialGrid, error) {
	if v.source == nil || !v.settings.complete() {
		return nil, &LoginError{Kind: KindConfigError, Err: ErrSourceNotConfigured}
	}
	timeout := v.settings.Timeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	grid, err := v.source.Fetch(ctx, v.settings.SheetID, v.settings.Range, v.settings.APIKey)
	if err != nil {
		return nil, &LoginError{Kind: KindUpstreamUnavailable, Err: err}
	}
	if len(grid) == 0 {
		return nil, &LoginError{
			Kind: KindUpstreamUnavailable,
			Err:  &FetchError{Reason: ReasonEmptyDataset, Err: ErrEmptyDataset},
		}
	}
	return grid, nil
}
