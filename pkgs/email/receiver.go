package email

import (
	"bytes"
	"context"
)

// Gateway opens authenticated sessions against one mailbox store. POP3,
// IMAP and mbox stores implement it so orchestration code never switches
// on the protocol.
type Gateway interface {
	// Open dials and authenticates. Failures are *Error values of kind
	// KindConnection or KindAuthentication.
	Open(ctx context.Context) (Session, error)
}

// Session is one live, authenticated connection. Ordinals are 1-based
// positions in the listing taken when the session was opened; they stay
// valid for the whole session and are renumbered by the store only after
// Close commits pending deletions.
type Session interface {
	// Count returns the number of messages visible in this session.
	Count() (int, error)

	// Fetch returns the raw lines of the message at ordinal.
	Fetch(ordinal int) (RawMessage, error)

	// MarkDeleted stages the message at ordinal for removal.
	MarkDeleted(ordinal int) error

	// Close releases the connection and commits staged deletions.
	Close() error

	// Abort releases the connection without committing. Stores that apply
	// flags eagerly (IMAP) keep them; nothing is rolled back.
	Abort() error
}

// RawMessage is the line sequence of one fetched message, without line
// terminators.
type RawMessage [][]byte

var crlf = []byte("\r\n")

// Bytes rejoins the lines with CRLF, reconstructing the transfer syntax.
func (r RawMessage) Bytes() []byte {
	return bytes.Join(r, crlf)
}

// SplitLines turns a CRLF (or bare LF) terminated payload back into a
// RawMessage. A trailing terminator does not produce an empty last line.
func SplitLines(b []byte) RawMessage {
	if len(b) == 0 {
		return RawMessage{}
	}
	b = bytes.TrimSuffix(b, []byte("\n"))
	b = bytes.TrimSuffix(b, []byte("\r"))
	lines := bytes.Split(b, []byte("\n"))
	out := make(RawMessage, len(lines))
	for i, l := range lines {
		out[i] = bytes.TrimSuffix(l, []byte("\r"))
	}
	return out
}

// checkOrdinal validates ordinal against a session of count messages.
func checkOrdinal(op string, ordinal, count int) error {
	if ordinal < 1 || ordinal > count {
		return newError(KindNotFound, op, ErrNotFound)
	}
	return nil
}
