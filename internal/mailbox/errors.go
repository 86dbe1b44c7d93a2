package mailbox

import "errors"

// ErrNotConnected is returned when an operation that requires a live
// session is called on a disconnected client. This is a programming
// contract violation and should not surface in normal operation.
var ErrNotConnected = errors.New("not connected to mailbox server")

// ConnectionError wraps a failure to establish a mailbox session.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return "mailbox connection failed: " + e.Err.Error()
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}
