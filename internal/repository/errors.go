package repository

import (
	"errors"

	"tenant-service/internal/model"
)

func isDomainError(err error) bool {
	return errors.Is(err, model.ErrConflict) ||
		errors.Is(err, model.ErrNotFound) ||
		errors.Is(err, model.ErrValidation)
}
