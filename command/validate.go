package command

import (
	"errors"
	"fmt"
)

// ErrInvalidCommand is the sentinel for schema and required-parameter
// failures. Errors returned by Validate and ValidateStrict wrap it.
var ErrInvalidCommand = errors.New("invalid command")

// Validate performs the coarse pre-dispatch check: known type, recognized
// action, and all required parameters present and non-nil. It is applied
// by the execution router independently of the parser's stricter layer.
func Validate(cmd *Command) error {
	if cmd == nil {
		return fmt.Errorf("%w: nil command", ErrInvalidCommand)
	}
	if !cmd.Type.IsValid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidCommand, cmd.Type)
	}
	if cmd.Action == "" {
		return fmt.Errorf("%w: action is required", ErrInvalidCommand)
	}

	required, ok := RequiredParams(cmd.Type, cmd.Action)
	if !ok {
		return fmt.Errorf("%w: unrecognized action %q for type %q", ErrInvalidCommand, cmd.Action, cmd.Type)
	}

	for _, name := range required {
		value, present := cmd.Parameters[name]
		if !present || value == nil {
			return fmt.Errorf("%w: missing required parameter %q for %s.%s", ErrInvalidCommand, name, cmd.Type, cmd.Action)
		}
	}
	return nil
}

// IsValid is the boolean form of Validate.
func IsValid(cmd *Command) bool {
	return Validate(cmd) == nil
}

// ValidateStrict layers per-field value checks on top of Validate. The
// parser applies it when decoding model output, so a command that reaches
// dispatch has passed both layers independently.
func ValidateStrict(cmd *Command) error {
	if err := Validate(cmd); err != nil {
		return err
	}

	if cmd.Tier != 0 && (cmd.Tier < 1 || cmd.Tier > 3) {
		return fmt.Errorf("%w: tier must be 1-3, got %d", ErrInvalidCommand, cmd.Tier)
	}

	checks := fieldChecks[cmd.Type]
	for name, value := range cmd.Parameters {
		check, ok := checks[name]
		if !ok {
			continue // open mapping: unknown parameters pass the field layer
		}
		if err := check(value); err != nil {
			return fmt.Errorf("%w: parameter %q: %v", ErrInvalidCommand, name, err)
		}
	}
	return nil
}
