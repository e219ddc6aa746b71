// Package corpus builds the normalized, searchable text view of a decompiled application tree.
package corpus

import "fmt"

// IOError represents an unreadable file or directory. File-level IOErrors are
// recorded on the corpus and do not abort a build.
type IOError struct {
	Path    string
	Message string
	Cause   error
}

func (e *IOError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("io error: %s: %s: %v", e.Path, e.Message, e.Cause)
	}
	return fmt.Sprintf("io error: %s: %s", e.Path, e.Message)
}

func (e *IOError) Unwrap() error {
	return e.Cause
}

// PatternError represents a signature that cannot be searched, such as an invalid regex
type PatternError struct {
	Pattern string
	Message string
	Cause   error
}

func (e *PatternError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("pattern error: %s: %s: %v", e.Pattern, e.Message, e.Cause)
	}
	return fmt.Sprintf("pattern error: %s: %s", e.Pattern, e.Message)
}

func (e *PatternError) Unwrap() error {
	return e.Cause
}
