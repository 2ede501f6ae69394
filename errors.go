package marvin

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced as hard failures to the caller. Recoverable
// conditions (unknown tool, tool execution failure, iteration budget) are
// absorbed into the conversation transcript instead.
var (
	// ErrRemoteUnavailable indicates a transport-level failure reaching the
	// provider endpoint. Transient; callers may retry, e.g. via WithBackoff.
	ErrRemoteUnavailable = errors.New("remote endpoint unavailable")

	// ErrResponseParse indicates the provider returned a payload that could
	// not be decoded. Fatal to the call.
	ErrResponseParse = errors.New("malformed provider response")
)

// MissingVariableError is returned by Sequence.Render when a placeholder has
// neither a fragment-local default nor a caller-supplied value.
type MissingVariableError struct {
	Name     string // Placeholder name
	Fragment int    // Index of the offending fragment within the sequence
}

func (e *MissingVariableError) Error() string {
	return fmt.Sprintf("missing variable %q in fragment %d", e.Name, e.Fragment)
}
