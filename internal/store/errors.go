package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// ConstraintError is a write rejected by a schema constraint
// (SQLSTATE class 23). The enclosing transaction has been rolled back.
type ConstraintError struct {
	Op         string
	Table      string
	Constraint string
	Code       string
	Err        *pgconn.PgError
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("%s: constraint %s on %s violated (%s): %s", e.Op, e.Constraint, e.Table, e.Code, e.Err.Message)
}

func (e *ConstraintError) Unwrap() error {
	return e.Err
}

// IsConstraint reports whether err is a schema constraint violation.
func IsConstraint(err error) bool {
	var ce *ConstraintError
	return errors.As(err, &ce)
}

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "23") {
		return &ConstraintError{
			Op:         op,
			Table:      pgErr.TableName,
			Constraint: pgErr.ConstraintName,
			Code:       pgErr.Code,
			Err:        pgErr,
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
