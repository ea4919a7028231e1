package postgresql

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/united-manufacturing-hub/shift-ledger/pkg/datamodel"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
	pgConnectionClass     = "08"
)

// IsRetryable reports whether a read failed before reaching the server, or lost its connection
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, pgConnectionClass)
	}
	return pgconn.SafeToRetry(err)
}

// translate maps the errors with a domain meaning to their kind. Everything else is returned unchanged.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return datamodel.NewNotFoundError("row", "")
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return datamodel.NewConflictError("%s", pgErr.Message)
		case pgForeignKeyViolation, pgCheckViolation:
			return datamodel.NewValidationError("%s", pgErr.Message)
		}
	}
	return err
}
