package pg

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrParseConfig          = errors.New("pg: failed to parse connection config")
	ErrConnectionFailed     = errors.New("pg: failed to open db connection")
	ErrHealthcheckFailed    = errors.New("pg: healthcheck failed")
	ErrMigrationFailed      = errors.New("pg: failed to apply migrations")
	ErrMigrationPathMissing = errors.New("pg: migrations path not provided")
)

// IsNotFound detects pgx.ErrNoRows for consistent not-found handling.
func IsNotFound(err error) bool {
	return err != nil && errors.Is(err, pgx.ErrNoRows)
}

// IsDuplicateKey detects unique constraint violations (SQLSTATE 23505).
func IsDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
