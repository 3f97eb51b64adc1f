package core

import (
	"context"
	"errors"
)

// ErrorKind classifies a failed login for logs and metrics.
type ErrorKind string

const (
	KindBadRequest          ErrorKind = "BadRequest"
	KindConfigError         ErrorKind = "ConfigError"
	KindUpstreamUnavailable ErrorKind = "UpstreamUnavailable"
	KindSchemaError         ErrorKind = "SchemaError"
	KindInvalidCredentials  ErrorKind = "InvalidCredentials"

	// KindSuccess labels a successful verdict; it never appears on a LoginError.
	KindSuccess ErrorKind = "Success"
	// KindInternal labels failures outside the taxonomy above.
	KindInternal ErrorKind = "Internal"
)

// LoginRequest is the inbound credential pair.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// User is the minimal record returned on a successful login.
type User struct {
	Username  string `json:"username" yaml:"username"`
	LoginTime string `json:"loginTime" yaml:"login_time"`
}

var (
	// ErrMissingCredentials is returned when username or password is blank.
	ErrMissingCredentials = errors.New("username and password are required")
	// ErrInvalidCredentials is returned when no row matches the pair.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrSourceNotConfigured is returned when sheet id, range or key is missing.
	ErrSourceNotConfigured = errors.New("credential source not configured")
	// ErrColumnsNotFound is returned when the header row lacks login name or password.
	ErrColumnsNotFound = errors.New("required columns not found")
	// ErrEmptyDataset is returned when the source has no rows at all.
	ErrEmptyDataset = errors.New("no rows returned")
	// ErrInvalidConfig is returned when startup settings are missing or malformed.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// LoginError is the failure side of a verdict.
type LoginError struct {
	Kind ErrorKind
	Err  error
}

func (e *LoginError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *LoginError) Unwrap() error { return e.Err }

// KindOf returns the verdict label for err: KindSuccess for nil, the LoginError
// kind when there is one, KindInternal otherwise.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindSuccess
	}
	var le *LoginError
	if errors.As(err, &le) {
		return le.Kind
	}
	return KindInternal
}

// LoginService defines login validation behaviour.
type LoginService interface {
	Validate(ctx context.Context, req LoginRequest) (User, error)
}
