package persistence

import (
	"database/sql"
	"errors"
	"fmt"
)

// Common persistence errors
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
)

// wrapErr maps sql.ErrNoRows to ErrNotFound and adds the operation name.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}
