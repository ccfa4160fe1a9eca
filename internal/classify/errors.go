package classify

import (
	"errors"
	"fmt"
)

// ErrUnknownTopic is returned when a topic matches none of the five
// message shapes. The caller counts and drops the message.
var ErrUnknownTopic = errors.New("classify: topic matches no known shape")

// ParseError reports a payload that did not conform to its category's
// expected format (typically malformed JSON). The offending message is
// dropped by the caller; the pipeline continues.
type ParseError struct {
	Topic    string
	Category Category
	Err      error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("classify: %s payload on %q: %v", e.Category, e.Topic, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ParseError) Unwrap() error { return e.Err }
