package engine

import (
	"errors"
	"fmt"

	"github.com/voxflow/voxflow/pkg/models"
)

// ErrExecutionNotFound indicates no live execution exists for the call.
var ErrExecutionNotFound = errors.New("execution not found")

// LimitError reports that a visit was refused by a safety limit. The caller
// must end the execution with the carried reason.
type LimitError struct {
	CallID string
	Reason models.EndReason
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("execution %s exceeded safety limit: %s", e.CallID, e.Reason)
}

// IsLimitExceeded checks if an error is a safety limit refusal and returns
// the end reason to apply.
func IsLimitExceeded(err error) (models.EndReason, bool) {
	var limitErr *LimitError
	if errors.As(err, &limitErr) {
		return limitErr.Reason, true
	}

	return "", false
}

// IsExecutionNotFound checks if an error indicates a missing live execution.
func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}
