package email

import (
	"errors"
	"fmt"
)

// Kind classifies a mailbox or relay failure.
type Kind string

const (
	KindConnection     Kind = "ConnectionError"
	KindAuthentication Kind = "AuthenticationError"
	KindNotFound       Kind = "NotFoundError"
	KindDecode         Kind = "DecodeError"
	KindSubmission     Kind = "SubmissionError"
)

// Sentinels for errors.Is. An *Error matches the sentinel of its Kind.
var (
	ErrConnection     = errors.New("connection error")
	ErrAuthentication = errors.New("authentication error")
	ErrNotFound       = errors.New("message not found")
	ErrDecode         = errors.New("decode error")
	ErrSubmission     = errors.New("submission error")
)

var kindSentinels = map[Kind]error{
	KindConnection:     ErrConnection,
	KindAuthentication: ErrAuthentication,
	KindNotFound:       ErrNotFound,
	KindDecode:         ErrDecode,
	KindSubmission:     ErrSubmission,
}

// Error is a classified failure of a single protocol operation.
type Error struct {
	Kind Kind
	// Op names the failing operation, e.g. "POP3 RETR 3" or "SMTP AUTH".
	Op  string
	Err error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e.Kind.
func (e *Error) Is(target error) bool {
	s, ok := kindSentinels[e.Kind]
	return ok && s == target
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if
// there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
