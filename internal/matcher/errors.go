// Package matcher finds SDK API signatures in a corpus and produces per-SDK match evidence.
package matcher

import "fmt"

// PatternError represents a pattern that could not be compiled. The pattern is
// treated as not found and matching continues.
type PatternError struct {
	SDK     string
	Pattern string
	Message string
	Cause   error
}

func (e *PatternError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("pattern %s/%s: %s: %v", e.SDK, e.Pattern, e.Message, e.Cause)
	}
	return fmt.Sprintf("pattern %s/%s: %s", e.SDK, e.Pattern, e.Message)
}

func (e *PatternError) Unwrap() error {
	return e.Cause
}
