// Package rules loads and validates the PICO MetaDB rule database.
package rules

import (
	"fmt"
	"strings"
)

// FieldError locates a single problem in the rule database document
type FieldError struct {
	Field   string
	Message string
}

// SchemaError represents a rule database that cannot be used. It is always fatal.
type SchemaError struct {
	Source  string
	Message string
	Fields  []FieldError
	Cause   error
}

func (e *SchemaError) Error() string {
	var sb strings.Builder
	sb.WriteString("rule database")
	if e.Source != "" {
		sb.WriteString(" ")
		sb.WriteString(e.Source)
	}
	sb.WriteString(": ")
	sb.WriteString(e.Message)
	if e.Cause != nil {
		sb.WriteString(fmt.Sprintf(": %v", e.Cause))
	}
	for i, f := range e.Fields {
		sb.WriteString(fmt.Sprintf("\n  %d. %s: %s", i+1, f.Field, f.Message))
	}
	return sb.String()
}

func (e *SchemaError) Unwrap() error {
	return e.Cause
}

// HasField reports whether any field error is located at or below path.
func (e *SchemaError) HasField(path string) bool {
	for _, f := range e.Fields {
		if f.Field == path || strings.HasPrefix(f.Field, path+".") {
			return true
		}
	}
	return false
}
