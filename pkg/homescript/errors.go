// Package homescript implements the HomeScript language: static validation
// and interpretation of line-oriented automation scripts.
package homescript

import "fmt"

// Error is the canonical interpreter failure. Line is the 1-based physical
// line that triggered the failure (0 when unknown). Code carries the HTTP
// status requested by a BREAK statement; 0 otherwise.
type Error struct {
	Message string
	Line    int
	Code    int
}

func (e *Error) Error() string { return e.Message }

func errAt(line int, format string, args ...any) *Error {
	return &Error{Message: fmt.Sprintf(format, args...), Line: line}
}

// Diagnostic is one static-validation finding.
type Diagnostic struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}
