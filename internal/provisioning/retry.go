package provisioning

import (
	"context"
	"fmt"

	"tenant-service/internal/model"
)

// Allocate runs attempt once per candidate until one succeeds. Only errors for
// which retryable returns true move on to the next candidate; any other error
// is returned as is. Running out of candidates yields ErrProvisioningConflict.
func Allocate[T any](
	ctx context.Context,
	candidates []string,
	attempt func(ctx context.Context, candidate string) (T, error),
	retryable func(error) bool,
) (T, error) {
	var zero T
	var lastErr error

	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := attempt(ctx, candidate)
		if err == nil {
			return result, nil
		}
		if !retryable(err) {
			return zero, err
		}
		lastErr = err
	}

	if lastErr == nil {
		return zero, model.ErrProvisioningConflict
	}
	return zero, fmt.Errorf("%w after %d candidates: %v", model.ErrProvisioningConflict, len(candidates), lastErr)
}
