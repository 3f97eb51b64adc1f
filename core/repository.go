package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgGridSource serves a credential grid from a Postgres table: the column
// names become the header row and every row is stringified.
type PgGridSource struct {
	db *pgxpool.Pool
}

func NewPgGridSource(db *pgxpool.Pool) *PgGridSource {
	return &PgGridSource{db: db}
}

// Fetch reads the whole table named by table ("name" or "schema.name").
// cellRange and apiKey are ignored. Rows come back in heap order.
func (s *PgGridSource) Fetch(ctx context.Context, table, _, _ string) (CredentialGrid, error) {
	ident, err := tableIdentifier(table)
	if err != nil {
		return nil, &FetchError{Reason: ReasonInvalidArgument, Err: err}
	}

	rows, err := s.db.Query(ctx, "SELECT * FROM "+ident.Sanitize())
	if err != nil {
		return nil, &FetchError{Reason: ReasonQuery, Err: err}
	}
	defer rows.Close()

	grid := CredentialGrid{headerRow(rows.FieldDescriptions())}
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, &FetchError{Reason: ReasonQuery, Err: err}
		}
		grid = append(grid, stringifyRow(vals))
	}
	if err := rows.Err(); err != nil {
		return nil, &FetchError{Reason: ReasonQuery, Err: err}
	}
	return grid, nil
}

func tableIdentifier(table string) (pgx.Identifier, error) {
	table = strings.TrimSpace(table)
	if table == "" {
		return nil, ErrSourceNotConfigured
	}
	parts := strings.Split(table, ".")
	if len(parts) > 2 {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("invalid table name %q", table)
		}
	}
	return pgx.Identifier(parts), nil
}

func headerRow(fields []pgconn.FieldDescription) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.Name
	}
	return out
}

func stringifyRow(vals []any) []string {
	out := make([]string, len(vals))
	for i, v := range vals {
		switch t := v.(type) {
		case nil:
			out[i] = ""
		case string:
			out[i] = t
		case []byte:
			out[i] = string(t)
		default:
			out[i] = fmt.Sprint(t)
		}
	}
	return out
}
