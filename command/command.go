// Package command defines the typed command model for the pipeline.
// A Command is the structured form of a merchant's natural-language
// instruction: a closed domain type, a type-scoped action, and an open
// parameter map checked against per-action requirement tables.
package command

// Type identifies the command domain. The set is closed: anything the
// parser produces outside it is rejected before dispatch.
type Type string

const (
	TypeProduct  Type = "product"
	TypeOrder    Type = "order"
	TypeCustomer Type = "customer"
	TypeTheme    Type = "theme"
	TypeCode     Type = "code"
	TypeStore    Type = "store"
)

// IsValid reports whether t is a known command type.
func (t Type) IsValid() bool {
	switch t {
	case TypeProduct, TypeOrder, TypeCustomer, TypeTheme, TypeCode, TypeStore:
		return true
	}
	return false
}

// String returns the string representation of the type.
func (t Type) String() string {
	return string(t)
}

// ParseType converts a string to a Type, returning empty for unknown values.
func ParseType(s string) Type {
	t := Type(s)
	if t.IsValid() {
		return t
	}
	return ""
}

// Types lists all valid command types in stable order.
func Types() []Type {
	return []Type{TypeProduct, TypeOrder, TypeCustomer, TypeTheme, TypeCode, TypeStore}
}

// Command is the structured representation of a user instruction, ready
// for dispatch. It is a value object owned by a single pipeline
// invocation; the core never persists it.
type Command struct {
	// Type is the command domain.
	Type Type `json:"type"`

	// Action is the operation to perform; its meaning is scoped by Type.
	Action string `json:"action"`

	// Parameters holds action-specific arguments. Required keys depend
	// on (Type, Action).
	Parameters map[string]any `json:"parameters"`

	// Tier is the subscription tier (1-3) of the issuing tenant at
	// creation time. Attached for audit and model selection, immutable
	// after creation.
	Tier int `json:"tier,omitempty"`
}

// Result is the outcome of executing a command, produced once per
// top-level execution inclusive of internal retries.
type Result struct {
	// Success reports whether the command completed.
	Success bool `json:"success"`

	// Details carries handler output on success.
	Details map[string]any `json:"details,omitempty"`

	// Error holds the terminal error message on failure.
	Error string `json:"error,omitempty"`

	// APICalls counts execution attempts, successful or not.
	APICalls int `json:"api_calls"`
}

// Validation is the outcome of parsing and validating one instruction.
// Parse and schema failures are reported through typed errors rather
// than collected here, so a Validation only exists for commands that
// passed both layers.
type Validation struct {
	Valid                bool   `json:"valid"`
	RequiresConfirmation bool   `json:"requires_confirmation"`
	Message              string `json:"message,omitempty"`
}
