package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

// IMAPConfig holds IMAP configuration
type IMAPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	SSL      bool
	StartTLS bool
	// Mailbox is the folder exposed as the maildrop, default "INBOX".
	Mailbox   string
	TLSConfig *tls.Config
}

// IMAPGateway exposes one IMAP folder with POP3-like semantics: ordinals
// are sequence numbers, MarkDeleted sets \Deleted and Close expunges.
type IMAPGateway struct {
	config IMAPConfig
	logger *slog.Logger
}

// NewIMAPGateway creates a new IMAP gateway
func NewIMAPGateway(config IMAPConfig, logger *slog.Logger) *IMAPGateway {
	if config.Mailbox == "" {
		config.Mailbox = "INBOX"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IMAPGateway{config: config, logger: logger}
}

// Open establishes a connection, logs in and selects the mailbox.
func (g *IMAPGateway) Open(ctx context.Context) (Session, error) {
	addr := net.JoinHostPort(g.config.Host, strconv.Itoa(g.config.Port))
	if err := ctx.Err(); err != nil {
		return nil, newError(KindConnection, "IMAP connect "+addr, err)
	}

	opts := &imapclient.Options{TLSConfig: g.config.TLSConfig}

	var client *imapclient.Client
	var err error
	if g.config.SSL {
		client, err = imapclient.DialTLS(addr, opts)
	} else if g.config.StartTLS {
		client, err = imapclient.DialStartTLS(addr, opts)
	} else {
		client, err = imapclient.DialInsecure(addr, opts)
	}
	if err != nil {
		return nil, newError(KindConnection, "IMAP connect "+addr, err)
	}

	if err := client.Login(g.config.Username, g.config.Password).Wait(); err != nil {
		client.Close()
		var imapErr *imap.Error
		if errors.As(err, &imapErr) {
			return nil, newError(KindAuthentication, "IMAP LOGIN", err)
		}
		return nil, newError(KindConnection, "IMAP LOGIN", err)
	}

	data, err := client.Select(g.config.Mailbox, nil).Wait()
	if err != nil {
		client.Close()
		return nil, newError(KindConnection, "IMAP SELECT "+g.config.Mailbox, err)
	}

	g.logger.Debug("imap session opened", "addr", addr, "mailbox", g.config.Mailbox, "count", data.NumMessages)
	return &imapSession{
		client:  client,
		addr:    addr,
		count:   int(data.NumMessages),
		deleted: map[int]bool{},
		logger:  g.logger,
	}, nil
}

type imapSession struct {
	client  *imapclient.Client
	addr    string
	count   int
	deleted map[int]bool
	closed  bool
	logger  *slog.Logger
}

func (s *imapSession) Count() (int, error) {
	return s.count, nil
}

func (s *imapSession) Fetch(ordinal int) (RawMessage, error) {
	op := fmt.Sprintf("IMAP FETCH %d", ordinal)
	if err := checkOrdinal(op, ordinal, s.count); err != nil {
		return nil, err
	}

	bodySection := &imap.FetchItemBodySection{
		Peek: true, // don't mark as read
	}
	msgs, err := s.client.Fetch(imap.SeqSetNum(uint32(ordinal)), &imap.FetchOptions{
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}).Collect()
	if err != nil {
		return nil, classifyIMAP(op, err)
	}
	if len(msgs) == 0 {
		return nil, newError(KindNotFound, op, ErrNotFound)
	}

	raw := msgs[0].FindBodySection(bodySection)
	if raw == nil {
		return nil, newError(KindNotFound, op, fmt.Errorf("%w: empty body section", ErrNotFound))
	}
	return SplitLines(raw), nil
}

func (s *imapSession) MarkDeleted(ordinal int) error {
	op := fmt.Sprintf("IMAP STORE %d", ordinal)
	if err := checkOrdinal(op, ordinal, s.count); err != nil {
		return err
	}
	err := s.client.Store(imap.SeqSetNum(uint32(ordinal)), &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagDeleted},
	}, nil).Close()
	if err != nil {
		return classifyIMAP(op, err)
	}
	s.deleted[ordinal] = true
	return nil
}

// Close expunges messages flagged in this session, then logs out.
func (s *imapSession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	defer s.client.Close()

	if len(s.deleted) > 0 {
		if _, err := s.client.Expunge().Collect(); err != nil {
			return newError(KindConnection, "IMAP EXPUNGE", err)
		}
		s.logger.Info("imap deletions committed", "addr", s.addr, "count", len(s.deleted))
	}
	if err := s.client.Logout().Wait(); err != nil {
		return newError(KindConnection, "IMAP LOGOUT", err)
	}
	return nil
}

// Abort clears the \Deleted flags set in this session and logs out
// without EXPUNGE, so a later session cannot expunge them.
func (s *imapSession) Abort() error {
	if s.closed {
		return nil
	}
	s.closed = true
	defer s.client.Close()

	var unflagErr error
	if len(s.deleted) > 0 {
		nums := make([]uint32, 0, len(s.deleted))
		for ordinal := range s.deleted {
			nums = append(nums, uint32(ordinal))
		}
		unflagErr = s.client.Store(imap.SeqSetNum(nums...), &imap.StoreFlags{
			Op:     imap.StoreFlagsDel,
			Silent: true,
			Flags:  []imap.Flag{imap.FlagDeleted},
		}, nil).Close()
	}
	if err := s.client.Logout().Wait(); err != nil {
		return newError(KindConnection, "IMAP LOGOUT", err)
	}
	if unflagErr != nil {
		return newError(KindConnection, "IMAP STORE -FLAGS", unflagErr)
	}
	return nil
}

func classifyIMAP(op string, err error) error {
	var imapErr *imap.Error
	if errors.As(err, &imapErr) {
		return newError(KindNotFound, op, fmt.Errorf("%w: %v", ErrNotFound, err))
	}
	return newError(KindConnection, op, err)
}
