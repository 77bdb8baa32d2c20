package parser

import (
	"errors"
	"fmt"
)

// ParseError indicates the model output could not be turned into a
// valid command. It is terminal: the parser never re-prompts.
type ParseError struct {
	// Reason describes what was wrong with the output.
	Reason string

	// RawOutput is the model output that failed, kept for logging.
	RawOutput string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error: %s", e.Reason)
}

// IsParseError reports whether err is a ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}
