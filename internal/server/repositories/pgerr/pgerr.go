// Package pgerr maps PostgreSQL driver errors onto the sentinel errors of
// internal/common.
package pgerr

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/survivalcodex/codex/internal/common"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
	invalidTextRepr     = "22P02"
	checkViolation      = "23514"
)

// Map wraps err with the matching sentinel. Errors that carry no meaning
// for callers are wrapped as "db error".
func Map(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return common.ErrorNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation:
			return fmt.Errorf("%w: %s", common.ErrorAlreadyExists, pgErr.ConstraintName)
		case foreignKeyViolation:
			return fmt.Errorf("%w: %s", common.ErrorNotFound, pgErr.ConstraintName)
		case invalidTextRepr, checkViolation:
			return fmt.Errorf("%w: %s", common.ErrorValidation, pgErr.Message)
		}
	}
	return fmt.Errorf("db error: %w", err)
}
