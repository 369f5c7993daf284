package synchronizer

import (
	"errors"
	"fmt"
)

// ProtocolError reports a client message the server rejected.
//
// The server answers the client with an error message and keeps going;
// a ProtocolError never stops the relay.
type ProtocolError struct {
	// Code identifies the error category.
	Code ProtocolErrorCode

	// Message is a human-readable description.
	Message string

	// Client identifies the sender of the rejected message.
	Client string
}

// ProtocolErrorCode categorizes protocol errors.
type ProtocolErrorCode string

const (
	// ErrCodeMalformedMessage indicates the text is not a valid message.
	ErrCodeMalformedMessage ProtocolErrorCode = "MALFORMED_MESSAGE"

	// ErrCodeUnknownType indicates a message type clients may not send.
	ErrCodeUnknownType ProtocolErrorCode = "UNKNOWN_TYPE"

	// ErrCodeUnknownBase indicates a commit based on a revision the server
	// does not have.
	ErrCodeUnknownBase ProtocolErrorCode = "UNKNOWN_BASE"
)

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	if e.Client != "" {
		return fmt.Sprintf("%s: %s (client=%s)", e.Code, e.Message, e.Client)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsProtocolError returns true if err is a ProtocolError.
// Uses errors.As to handle wrapped errors.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// ProtocolErrorCodeOf returns the code of a ProtocolError in err's chain,
// or "" if there is none.
func ProtocolErrorCodeOf(err error) ProtocolErrorCode {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}
