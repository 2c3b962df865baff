package backend

import (
	"errors"
	"fmt"
	"strings"
)

// GenericFailureMessage is shown when no better explanation is available.
const GenericFailureMessage = "Something went wrong generating a response. Please try again."

// NetworkError means the request never reached the backend or no response
// came back.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("backend unreachable: %v", e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

// BackendError is a non-success response. Detail is the server-supplied
// explanation, empty when the body did not carry one.
type BackendError struct {
	Status int
	Detail string
}

func (e *BackendError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("backend returned status %d", e.Status)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.Status, e.Detail)
}

// MalformedResponseError is a success status with a body of the wrong shape.
type MalformedResponseError struct {
	Reason string
}

func (e *MalformedResponseError) Error() string {
	return "malformed backend response: " + e.Reason
}

// UserMessage turns any error from the client into text fit for the chat:
// the server's detail verbatim when present, otherwise the generic message.
func UserMessage(err error) string {
	var be *BackendError
	if errors.As(err, &be) && strings.TrimSpace(be.Detail) != "" {
		return be.Detail
	}
	return GenericFailureMessage
}
