package store

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a write violates a unique or primary key
// constraint.
var ErrDuplicate = errors.New("duplicate key")

// ErrReferenced is returned when a write violates a foreign key constraint,
// either by pointing at a missing row or by deleting a row still in use.
var ErrReferenced = errors.New("foreign key violation")

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// ConstraintError carries the name of the violated constraint alongside one
// of the sentinel errors above.
type ConstraintError struct {
	Constraint string
	Err        error
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("%v (%s)", e.Err, e.Constraint)
}

func (e *ConstraintError) Unwrap() error {
	return e.Err
}

// Constraint returns the violated constraint name carried by err, if any.
func Constraint(err error) string {
	var ce *ConstraintError
	if errors.As(err, &ce) {
		return ce.Constraint
	}
	return ""
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation:
			return &ConstraintError{Constraint: pqErr.Constraint, Err: ErrDuplicate}
		case pqForeignKeyViolation:
			return &ConstraintError{Constraint: pqErr.Constraint, Err: ErrReferenced}
		}
	}
	return err
}
