package http

import (
	"errors"
	"strconv"

	"crm_server/adapter/out/persistence"
	"crm_server/pkg/apperr"

	"github.com/gofiber/fiber/v2"
)

// ParseIDParam reads a positive int64 path parameter.
func ParseIDParam(c *fiber.Ctx, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.InvalidInput(name, "must be a positive integer")
	}
	return id, nil
}

// lookupError maps a repository read failure onto an AppError.
func lookupError(resource string, err error) error {
	if errors.Is(err, persistence.ErrNotFound) {
		return apperr.NotFound(resource).WithError(err)
	}
	if apperr.IsAppError(err) {
		return err
	}
	return apperr.DatabaseError("load "+resource, err)
}
