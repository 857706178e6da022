package email

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/emersion/go-mbox"
	gomessage "github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
)

// MboxGateway serves a local mbox file as a maildrop. One session holds
// the file at a time, the way a POP3 server locks the maildrop.
type MboxGateway struct {
	path   string
	lock   chan struct{}
	logger *slog.Logger
}

// NewMboxGateway creates a gateway for the mbox file at path. A missing
// file is an empty mailbox.
func NewMboxGateway(path string, logger *slog.Logger) *MboxGateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &MboxGateway{
		path:   path,
		lock:   make(chan struct{}, 1),
		logger: logger,
	}
}

// Open waits for the maildrop lock and loads every message.
func (g *MboxGateway) Open(ctx context.Context) (Session, error) {
	op := "mbox open " + g.path
	select {
	case g.lock <- struct{}{}:
	case <-ctx.Done():
		return nil, newError(KindConnection, op, ctx.Err())
	}

	msgs, err := readMbox(g.path)
	if err != nil {
		<-g.lock
		return nil, newError(KindConnection, op, err)
	}

	g.logger.Debug("mbox session opened", "path", g.path, "count", len(msgs))
	return &mboxSession{
		gateway: g,
		msgs:    msgs,
		deleted: map[int]bool{},
	}, nil
}

func readMbox(path string) ([][]byte, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var msgs [][]byte
	mr := mbox.NewReader(f)
	for {
		r, err := mr.NextMessage()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading mbox message: %w", err)
		}
		b, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("reading mbox message: %w", err)
		}
		msgs = append(msgs, b)
	}
	return msgs, nil
}

type mboxSession struct {
	gateway *MboxGateway
	msgs    [][]byte
	deleted map[int]bool
	closed  bool
}

func (s *mboxSession) Count() (int, error) {
	return len(s.msgs), nil
}

func (s *mboxSession) Fetch(ordinal int) (RawMessage, error) {
	if err := checkOrdinal(fmt.Sprintf("mbox fetch %d", ordinal), ordinal, len(s.msgs)); err != nil {
		return nil, err
	}
	return SplitLines(s.msgs[ordinal-1]), nil
}

func (s *mboxSession) MarkDeleted(ordinal int) error {
	if err := checkOrdinal(fmt.Sprintf("mbox delete %d", ordinal), ordinal, len(s.msgs)); err != nil {
		return err
	}
	s.deleted[ordinal] = true
	return nil
}

// Close rewrites the file without the deleted messages and releases the
// lock. The file is replaced atomically through a temporary sibling.
func (s *mboxSession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	defer func() { <-s.gateway.lock }()

	if len(s.deleted) == 0 {
		return nil
	}
	if err := s.rewrite(); err != nil {
		return newError(KindConnection, "mbox rewrite "+s.gateway.path, err)
	}
	s.gateway.logger.Info("mbox deletions committed", "path", s.gateway.path, "count", len(s.deleted))
	return nil
}

// Abort releases the lock and leaves the file untouched.
func (s *mboxSession) Abort() error {
	if s.closed {
		return nil
	}
	s.closed = true
	<-s.gateway.lock
	return nil
}

func (s *mboxSession) rewrite() error {
	path := s.gateway.path
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := mbox.NewWriter(tmp)
	for i, msg := range s.msgs {
		if s.deleted[i+1] {
			continue
		}
		from, date := envelopeOf(msg)
		mw, err := w.CreateMessage(from, date)
		if err != nil {
			tmp.Close()
			return fmt.Errorf("creating message: %w", err)
		}
		// The reader terminates the last line with CRLF and the writer
		// appends its own separator, so the CRLF is dropped to keep the
		// message bytes stable across rewrites.
		if _, err := mw.Write(bytes.TrimSuffix(msg, crlf)); err != nil {
			tmp.Close()
			return fmt.Errorf("writing message: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		tmp.Close()
		return fmt.Errorf("closing mbox writer: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// envelopeOf derives the From_ line sender and date from the message
// headers.
func envelopeOf(msg []byte) (string, time.Time) {
	from, date := "MAILER-DAEMON", time.Now()

	entity, err := gomessage.Read(bytes.NewReader(msg))
	if err != nil && !tolerable(err) {
		return from, date
	}
	h := mail.Header{Header: entity.Header}
	if addrs, err := h.AddressList("From"); err == nil && len(addrs) > 0 {
		from = addrs[0].Address
	}
	if t, err := h.Date(); err == nil && !t.IsZero() {
		date = t
	}
	return from, date
}
