package client

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthentication means the server rejected the credentials or the
	// session. The server never says which.
	ErrAuthentication = errors.New("authentication failed")

	// ErrStoreClosed is returned by transitions on a torn-down Store.
	ErrStoreClosed = errors.New("auth store closed")
)

// ValidationError is a 400 from the server.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NetworkError is a transport failure. It says nothing about whether the
// session is still valid.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ServerError is any other non-success response.
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// Messages shown as State.SessionError.
const (
	MsgInvalidCredentials = "Invalid username/email or password"
	MsgUnreachable        = "Unable to reach server"
	MsgServer             = "Something went wrong, please try again"
	MsgSessionExpired     = "Your session has expired"
)

// userMessage turns a transition error into text fit for SessionError.
func userMessage(err error) string {
	var verr *ValidationError
	var nerr *NetworkError
	switch {
	case errors.Is(err, ErrAuthentication):
		return MsgInvalidCredentials
	case errors.As(err, &verr):
		return verr.Message
	case errors.As(err, &nerr):
		return MsgUnreachable
	default:
		return MsgServer
	}
}
