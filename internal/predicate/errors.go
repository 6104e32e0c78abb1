package predicate

import "fmt"

// ParseError is returned for lexically invalid or grammatically malformed
// predicate input. The parser never panics.
type ParseError struct {
	Input   string
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unable to parse query %q: %s", e.Input, e.Message)
}

// UnrecognizedInputError is returned when the parser produces a complete AST
// but trailing characters remain unconsumed.
type UnrecognizedInputError struct {
	Input string
	Rest  string
}

func (e *UnrecognizedInputError) Error() string {
	return fmt.Sprintf("unable to parse query %q: unrecognized input %q", e.Input, e.Rest)
}
