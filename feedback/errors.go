package feedback

import (
	"errors"
	"fmt"
)

// GenerationError indicates the model produced unusable feedback
// output. Advisory only: callers log it and move on, execution is
// never blocked or reverted because of it.
type GenerationError struct {
	// Operation names the feedback operation that failed.
	Operation string

	// Reason describes the failure.
	Reason string
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("feedback generation failed (%s): %s", e.Operation, e.Reason)
}

// IsGenerationError reports whether err is a GenerationError.
func IsGenerationError(err error) bool {
	var ge *GenerationError
	return errors.As(err, &ge)
}
