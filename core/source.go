package core

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// NewGridSource builds the credential backend selected by cfg.CredentialSource.
// The returned close func releases backend resources and is never nil on success.
func NewGridSource(ctx context.Context, cfg Config, logger *zap.Logger) (GridSource, func(), error) {
	switch cfg.CredentialSource {
	case SourcePostgres:
		pool, err := ConnectCredentialStore(ctx, cfg.DatabaseURL, cfg.FetchTimeout)
		if err != nil {
			return nil, nil, fmt.Errorf("connect credential database: %w", err)
		}
		logger.Info("credential source ready",
			zap.String("backend", SourcePostgres),
			zap.String("table", cfg.CredentialsTable))
		return NewPgGridSource(pool), pool.Close, nil
	case SourceSheets, "":
		logger.Info("credential source ready",
			zap.String("backend", SourceSheets),
			zap.String("base_url", cfg.SheetsBaseURL),
			zap.String("range", cfg.SheetRange),
			zap.Duration("timeout", cfg.FetchTimeout))
		return NewHTTPSheetsClient(cfg.SheetsBaseURL, cfg.FetchTimeout), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown credential source %q", ErrInvalidConfig, cfg.CredentialSource)
	}
}
