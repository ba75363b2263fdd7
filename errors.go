package stdiorpc

import (
	"github.com/cockroachdb/errors"
)

var (
	// ErrProcessLaunch is returned when the peer executable cannot be found or started.
	ErrProcessLaunch = errors.New("[STDIORPC] process launch failed")

	// ErrChannelClosed is returned when the peer closed its output with nothing pending.
	ErrChannelClosed = errors.New("[STDIORPC] channel closed")

	// ErrMalformedResponse marks a response line that is not a valid reply.
	ErrMalformedResponse = errors.New("[STDIORPC] malformed response")

	// ErrReadTimeout is returned when no line arrived before the read deadline,
	// or when ctx ended while a send waited on the limiter.
	ErrReadTimeout = errors.New("[STDIORPC] read timeout")

	// ErrSessionClosed is returned by operations on a closed session.
	ErrSessionClosed = errors.New("[STDIORPC] session closed")

	// ErrTooFrequent is returned when the outbound limiter could not admit a message
	// before the ctx deadline.
	ErrTooFrequent = errors.New("[STDIORPC] too frequently, try again later")

	// ErrNotInitialized is returned by CallTool before a successful Handshake.
	ErrNotInitialized = errors.New("[STDIORPC] session not initialized")
)

// MalformedResponseError carries the raw line that failed to decode or validate.
type MalformedResponseError struct {
	Raw    []byte
	Reason string
	Err    error
}

func (e *MalformedResponseError) Error() string {
	msg := "malformed response: " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg + " (raw: " + string(e.Raw) + ")"
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

func newMalformed(raw []byte, reason string, cause error) error {
	return errors.Mark(&MalformedResponseError{Raw: raw, Reason: reason, Err: cause}, ErrMalformedResponse)
}
