package email

import (
	"context"
	"fmt"
	"log/slog"
)

// Mailbox runs retrieval and deletion batches against a Gateway. Every
// call uses its own session.
type Mailbox struct {
	gateway Gateway
	logger  *slog.Logger
}

// NewMailbox creates a Mailbox over gateway.
func NewMailbox(gateway Gateway, logger *slog.Logger) *Mailbox {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mailbox{gateway: gateway, logger: logger}
}

// Retrieve fetches and normalizes the messages at ordinals, in the order
// given. An empty list means every message, ascending. Duplicates are
// fetched again. The first failure fails the whole batch.
func (m *Mailbox) Retrieve(ctx context.Context, ordinals []int) ([]*Record, error) {
	var records []*Record
	err := m.withSession(ctx, func(s Session) error {
		if len(ordinals) == 0 {
			count, err := s.Count()
			if err != nil {
				return err
			}
			ordinals = make([]int, count)
			for i := range ordinals {
				ordinals[i] = i + 1
			}
		}

		records = make([]*Record, 0, len(ordinals))
		for _, n := range ordinals {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("retrieve message %d: %w", n, err)
			}
			raw, err := s.Fetch(n)
			if err != nil {
				return err
			}
			rec, err := Normalize(raw, n, ProjectCombined)
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.logger.Debug("messages retrieved", "count", len(records))
	return records, nil
}

// Delete marks the messages at ordinals and commits when the session
// closes. On a failure the session is aborted: POP3 and mbox commit
// nothing, IMAP keeps the \Deleted flags already stored.
func (m *Mailbox) Delete(ctx context.Context, ordinals []int) error {
	err := m.withSession(ctx, func(s Session) error {
		for _, n := range ordinals {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("delete message %d: %w", n, err)
			}
			if err := s.MarkDeleted(n); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	m.logger.Info("messages deleted", "ordinals", ordinals)
	return nil
}

// withSession opens a session, runs fn and closes the session, or aborts
// it when fn fails.
func (m *Mailbox) withSession(ctx context.Context, fn func(Session) error) error {
	s, err := m.gateway.Open(ctx)
	if err != nil {
		return err
	}
	if err := fn(s); err != nil {
		if abortErr := s.Abort(); abortErr != nil {
			m.logger.Warn("session abort failed", "error", abortErr)
		}
		return err
	}
	return s.Close()
}
