package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource records calls and serves a fixed grid.
type fakeSource struct {
	mu    sync.Mutex
	grid  CredentialGrid
	err   error
	calls int
	args  [3]string
	block bool
}

func (f *fakeSource) Fetch(ctx context.Context, sheetID, cellRange, apiKey string) (CredentialGrid, error) {
	f.mu.Lock()
	f.calls++
	f.args = [3]string{sheetID, cellRange, apiKey}
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return nil, &FetchError{Reason: ReasonTransport, Err: ctx.Err()}
	}
	return f.grid, f.err
}

func (f *fakeSource) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

var testSettings = SourceSettings{Backend: SourceSheets, SheetID: "sheet-1", Range: "Sheet1!A:C", APIKey: "key-1"}

var fixedNow = time.Date(2025, 3, 4, 5, 6, 7, 890_000_000, time.FixedZone("JST", 9*3600))

func newTestValidator(src GridSource) *LoginValidator {
	return NewLoginValidator(src, testSettings).WithClock(func() time.Time { return fixedNow })
}

func employeeGrid() CredentialGrid {
	return CredentialGrid{
		{"Employee", "Login Name", "Password"},
		{"Alice", "alice1", "secret"},
	}
}

func TestValidateSuccess(t *testing.T) {
	src := &fakeSource{grid: employeeGrid()}
	user, err := newTestValidator(src).Validate(context.Background(), LoginRequest{Username: "alice1", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, User{Username: "alice1", LoginTime: "2025-03-03T20:06:07.890Z"}, user)
	assert.Equal(t, [3]string{"sheet-1", "Sheet1!A:C", "key-1"}, src.args)
	assert.Equal(t, 1, src.Calls())
}

func TestValidateWrongPassword(t *testing.T) {
	src := &fakeSource{grid: employeeGrid()}
	_, err := newTestValidator(src).Validate(context.Background(), LoginRequest{Username: "alice1", Password: "wrong"})
	require.Error(t, err)
	assert.Equal(t, KindInvalidCredentials, KindOf(err))
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestValidateBadRequestMakesNoFetch(t *testing.T) {
	for _, req := range []LoginRequest{
		{},
		{Username: "alice1"},
		{Password: "secret"},
		{Username: "   ", Password: "secret"},
		{Username: "alice1", Password: "\t"},
	} {
		src := &fakeSource{grid: employeeGrid()}
		_, err := newTestValidator(src).Validate(context.Background(), req)
		assert.Equal(t, KindBadRequest, KindOf(err), "request %+v", req)
		assert.Zero(t, src.Calls(), "request %+v", req)
	}
}

func TestValidateConfigError(t *testing.T) {
	for name, settings := range map[string]SourceSettings{
		"no sheet id": {Backend: SourceSheets, Range: "A:C", APIKey: "k"},
		"no range":    {Backend: SourceSheets, SheetID: "s", APIKey: "k"},
		"no api key":  {Backend: SourceSheets, SheetID: "s", Range: "A:C"},
		"no table":    {Backend: SourcePostgres},
	} {
		t.Run(name, func(t *testing.T) {
			src := &fakeSource{grid: employeeGrid()}
			_, err := NewLoginValidator(src, settings).Validate(context.Background(), LoginRequest{Username: "alice1", Password: "secret"})
			assert.Equal(t, KindConfigError, KindOf(err))
			assert.Zero(t, src.Calls())
		})
	}

	_, err := NewLoginValidator(nil, testSettings).Validate(context.Background(), LoginRequest{Username: "a", Password: "b"})
	assert.Equal(t, KindConfigError, KindOf(err))
}

func TestValidatePostgresSettingsNeedOnlyTable(t *testing.T) {
	src := &fakeSource{grid: employeeGrid()}
	v := NewLoginValidator(src, SourceSettings{Backend: SourcePostgres, SheetID: "portal_users"})
	_, err := v.Validate(context.Background(), LoginRequest{Username: "alice1", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "portal_users", src.args[0])
}

func TestValidateUpstreamUnavailable(t *testing.T) {
	src := &fakeSource{err: &FetchError{Reason: "status 403", Err: errors.New("sheets api: PERMISSION_DENIED")}}
	_, err := newTestValidator(src).Validate(context.Background(), LoginRequest{Username: "alice1", Password: "secret"})
	assert.Equal(t, KindUpstreamUnavailable, KindOf(err))
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "status 403", fe.Reason)
	assert.NotErrorIs(t, err, ErrEmptyDataset)
}

func TestValidateEmptyDatasetNeverSucceeds(t *testing.T) {
	for name, src := range map[string]*fakeSource{
		"adapter reports empty": {err: &FetchError{Reason: ReasonEmptyDataset, Err: ErrEmptyDataset}},
		"adapter returns nil":   {grid: nil},
		"adapter returns empty": {grid: CredentialGrid{}},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := newTestValidator(src).Validate(context.Background(), LoginRequest{Username: "alice1", Password: "secret"})
			assert.Equal(t, KindUpstreamUnavailable, KindOf(err))
			assert.ErrorIs(t, err, ErrEmptyDataset)
		})
	}
}

func TestValidateSchemaError(t *testing.T) {
	src := &fakeSource{grid: CredentialGrid{
		{"Name", "Password"},
		{"alice1", "secret"},
	}}
	_, err := newTestValidator(src).Validate(context.Background(), LoginRequest{Username: "alice1", Password: "secret"})
	assert.Equal(t, KindSchemaError, KindOf(err))
	assert.ErrorIs(t, err, ErrColumnsNotFound)
}

func TestValidateCaseInsensitiveHeaders(t *testing.T) {
	for _, headers := range [][]string{{"LOGIN NAME", "PASSWORD"}, {"login name", "password"}} {
		src := &fakeSource{grid: CredentialGrid{headers, {"alice1", "secret"}}}
		_, err := newTestValidator(src).Validate(context.Background(), LoginRequest{Username: "alice1", Password: "secret"})
		assert.NoError(t, err, "headers %q", headers)
	}
}

func TestValidateDuplicateUsernameFirstWins(t *testing.T) {
	src := &fakeSource{grid: CredentialGrid{
		{"Login Name", "Password"},
		{"alice", "secret1"},
		{"alice", "secret2"},
	}}
	v := newTestValidator(src)

	_, err := v.Validate(context.Background(), LoginRequest{Username: "alice", Password: "secret2"})
	assert.Equal(t, KindInvalidCredentials, KindOf(err))

	_, err = v.Validate(context.Background(), LoginRequest{Username: "alice", Password: "secret1"})
	assert.NoError(t, err)
}

func TestValidateIdempotent(t *testing.T) {
	src := &fakeSource{grid: employeeGrid()}
	v := newTestValidator(src)
	for _, req := range []LoginRequest{
		{Username: "alice1", Password: "secret"},
		{Username: "alice1", Password: "nope"},
	} {
		u1, err1 := v.Validate(context.Background(), req)
		u2, err2 := v.Validate(context.Background(), req)
		assert.Equal(t, u1, u2)
		assert.Equal(t, KindOf(err1), KindOf(err2))
	}
	assert.Equal(t, 4, src.Calls(), "grid is fetched on every call")
}

func TestValidateFetchTimeout(t *testing.T) {
	src := &fakeSource{block: true}
	settings := testSettings
	settings.Timeout = 20 * time.Millisecond
	start := time.Now()
	_, err := NewLoginValidator(src, settings).Validate(context.Background(), LoginRequest{Username: "alice1", Password: "secret"})
	assert.Equal(t, KindUpstreamUnavailable, KindOf(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestValidateConcurrent(t *testing.T) {
	src := &fakeSource{grid: employeeGrid()}
	v := newTestValidator(src)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pw := "secret"
			want := KindSuccess
			if i%2 == 1 {
				pw, want = "wrong", KindInvalidCredentials
			}
			_, err := v.Validate(context.Background(), LoginRequest{Username: "alice1", Password: pw})
			assert.Equal(t, want, KindOf(err))
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 16, src.Calls())
}

func TestInspect(t *testing.T) {
	src := &fakeSource{grid: employeeGrid()}
	summary, err := newTestValidator(src).Inspect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ColumnIndex{LoginName: 1, Password: 2}, summary.Columns)
	assert.Equal(t, 1, summary.DataRows)

	src = &fakeSource{grid: CredentialGrid{{"Name", "Password"}}}
	summary, err = newTestValidator(src).Inspect(context.Background())
	assert.Equal(t, KindSchemaError, KindOf(err))
	assert.Equal(t, -1, summary.Columns.LoginName)
	assert.Equal(t, 1, summary.Columns.Password)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindSuccess, KindOf(nil))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	wrapped := errors.Join(errors.New("ctx"), &LoginError{Kind: KindSchemaError, Err: ErrColumnsNotFound})
	assert.Equal(t, KindSchemaError, KindOf(wrapped))
}
