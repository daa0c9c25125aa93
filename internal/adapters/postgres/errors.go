package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/okian/zen/internal/domain/model"
)

var (
	ErrConflict   = errors.New("conflicting row")
	ErrConstraint = errors.New("constraint violated")
)

// mapError converts pgx errors to model and package sentinels. Context errors
// pass through wrapped.
func mapError(err error, entity, id string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s %s: %w", entity, id, err)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", entity, id, model.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%s %s: %w: %w", entity, id, ErrConflict, err)
		case "23503", "23514": // foreign_key_violation, check_violation
			return fmt.Errorf("%s %s: %w: %w", entity, id, ErrConstraint, err)
		}
	}
	return fmt.Errorf("%s %s: %w", entity, id, err)
}
