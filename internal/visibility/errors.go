package visibility

import "fmt"

// InvalidRelationshipError reports a relationship context the resolver does
// not know. It always indicates a caller bug.
type InvalidRelationshipError struct {
	Value string
}

func (e *InvalidRelationshipError) Error() string {
	return fmt.Sprintf("invalid relationship %q", e.Value)
}

// WindowArithmeticError reports a stored date or range that cannot be turned
// into a window.
type WindowArithmeticError struct {
	Field string
	Value string
	Err   error
}

func (e *WindowArithmeticError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("window arithmetic: %s=%q: %v", e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("window arithmetic: %s=%q", e.Field, e.Value)
}

func (e *WindowArithmeticError) Unwrap() error {
	return e.Err
}
