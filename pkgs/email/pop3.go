package email

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/knadh/go-pop3"
)

// POP3Config holds POP3 configuration
type POP3Config struct {
	Host     string
	Port     int
	Username string
	Password string
	// SSL enables implicit TLS (POP3S).
	SSL         bool
	DialTimeout time.Duration
	// TLSConfig overrides the TLS settings used when SSL is set.
	TLSConfig *tls.Config
}

// Addr returns host:port.
func (c POP3Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// pop3Connection is the subset of *pop3.Conn the gateway drives.
type pop3Connection interface {
	Auth(user, password string) error
	Stat() (int, int, error)
	RetrRaw(msgID int) (*bytes.Buffer, error)
	Dele(msgID ...int) error
	Rset() error
	Quit() error
}

type pop3ConnFactory func(POP3Config) (pop3Connection, error)

// POP3Gateway opens sessions against a POP3 maildrop. Ordinals are POP3
// message numbers; DELE is only applied by the server on QUIT.
type POP3Gateway struct {
	config  POP3Config
	newConn pop3ConnFactory
	logger  *slog.Logger
}

// POP3Option customizes a POP3Gateway.
type POP3Option func(*POP3Gateway)

// WithPOP3Logger overrides the logger used for session diagnostics.
func WithPOP3Logger(logger *slog.Logger) POP3Option {
	return func(g *POP3Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

func withPOP3ConnFactory(factory pop3ConnFactory) POP3Option {
	return func(g *POP3Gateway) {
		g.newConn = factory
	}
}

// NewPOP3Gateway creates a new POP3 gateway
func NewPOP3Gateway(config POP3Config, opts ...POP3Option) *POP3Gateway {
	if config.DialTimeout <= 0 {
		config.DialTimeout = 10 * time.Second
	}
	g := &POP3Gateway{
		config:  config,
		newConn: dialPOP3,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Open dials, authenticates and snapshots the message count with STAT.
func (g *POP3Gateway) Open(ctx context.Context) (Session, error) {
	addr := g.config.Addr()
	if err := ctx.Err(); err != nil {
		return nil, newError(KindConnection, "POP3 connect "+addr, err)
	}

	conn, err := g.newConn(g.config)
	if err != nil {
		return nil, newError(KindConnection, "POP3 connect "+addr, err)
	}

	if err := conn.Auth(g.config.Username, g.config.Password); err != nil {
		_ = conn.Quit()
		if isNetworkError(err) {
			return nil, newError(KindConnection, "POP3 AUTH", err)
		}
		return nil, newError(KindAuthentication, "POP3 AUTH", err)
	}

	count, _, err := conn.Stat()
	if err != nil {
		_ = conn.Quit()
		return nil, newError(KindConnection, "POP3 STAT", err)
	}

	g.logger.Debug("pop3 session opened", "addr", addr, "count", count)
	return &pop3Session{
		conn:    conn,
		addr:    addr,
		count:   count,
		deleted: map[int]bool{},
		logger:  g.logger,
	}, nil
}

func dialPOP3(cfg POP3Config) (pop3Connection, error) {
	dialer := &pop3Dialer{config: cfg}
	client := pop3.New(pop3.Opt{
		Host:        cfg.Host,
		Port:        cfg.Port,
		DialTimeout: cfg.DialTimeout,
		Dialer:      dialer,
	})
	conn, err := client.NewConn()
	if err != nil {
		if dialer.conn != nil {
			dialer.conn.Close()
		}
		return nil, err
	}
	return &pop3Conn{Conn: conn, raw: dialer.conn}, nil
}

// pop3Dialer establishes the transport itself, TLS included, so that
// pop3Conn can read multiline responses off the same connection.
type pop3Dialer struct {
	config POP3Config
	conn   net.Conn
}

func (d *pop3Dialer) Dial(network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: d.config.DialTimeout}
	var conn net.Conn
	var err error
	if d.config.SSL {
		tlsCfg := d.config.TLSConfig
		if tlsCfg == nil {
			tlsCfg = &tls.Config{ServerName: d.config.Host}
		}
		conn, err = tls.DialWithDialer(dialer, network, addr, tlsCfg)
	} else {
		conn, err = dialer.Dial(network, addr)
	}
	if err != nil {
		return nil, err
	}
	d.conn = conn
	return conn, nil
}

// pop3Conn is a *pop3.Conn whose RETR reads the response directly.
// The library's line reader keeps dot-stuffing and splits lines longer
// than its buffer, both of which alter message bytes.
type pop3Conn struct {
	*pop3.Conn
	raw net.Conn
}

// RetrRaw returns message msgID with dot-stuffing removed. POP3 is
// strictly request/response, so the library reader holds no buffered
// bytes between commands.
func (c *pop3Conn) RetrRaw(msgID int) (*bytes.Buffer, error) {
	if err := c.Send(fmt.Sprintf("RETR %d", msgID)); err != nil {
		return nil, err
	}
	r := bufio.NewReader(c.raw)
	status, err := readPOP3Line(r)
	if err != nil {
		return nil, err
	}
	switch {
	case bytes.HasPrefix(status, []byte("+OK")):
	case bytes.HasPrefix(status, []byte("-ERR")):
		return nil, errors.New(string(bytes.TrimSpace(status[len("-ERR"):])))
	default:
		return nil, fmt.Errorf("unexpected RETR response %q", status)
	}
	return readPOP3Multiline(r)
}

// Quit closes the connection even when the server rejects QUIT.
func (c *pop3Conn) Quit() error {
	if err := c.Conn.Quit(); err != nil {
		c.raw.Close()
		return err
	}
	return nil
}

// readPOP3Line reads one CRLF terminated line of any length.
func readPOP3Line(r *bufio.Reader) ([]byte, error) {
	line, err := r.ReadBytes('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	line = bytes.TrimSuffix(line, []byte("\n"))
	return bytes.TrimSuffix(line, []byte("\r")), nil
}

// readPOP3Multiline reads lines until the "." terminator, removing the
// leading dot of byte-stuffed lines.
func readPOP3Multiline(r *bufio.Reader) (*bytes.Buffer, error) {
	buf := &bytes.Buffer{}
	for {
		line, err := readPOP3Line(r)
		if err != nil {
			return nil, err
		}
		if bytes.Equal(line, []byte(".")) {
			return buf, nil
		}
		if bytes.HasPrefix(line, []byte("..")) {
			line = line[1:]
		}
		buf.Write(line)
		buf.WriteString("\r\n")
	}
}

type pop3Session struct {
	conn    pop3Connection
	addr    string
	count   int
	deleted map[int]bool
	closed  bool
	logger  *slog.Logger
}

func (s *pop3Session) Count() (int, error) {
	return s.count, nil
}

func (s *pop3Session) Fetch(ordinal int) (RawMessage, error) {
	op := fmt.Sprintf("POP3 RETR %d", ordinal)
	if err := checkOrdinal(op, ordinal, s.count); err != nil {
		return nil, err
	}
	buf, err := s.conn.RetrRaw(ordinal)
	if err != nil {
		return nil, classifyPOP3(op, err)
	}
	return SplitLines(buf.Bytes()), nil
}

func (s *pop3Session) MarkDeleted(ordinal int) error {
	op := fmt.Sprintf("POP3 DELE %d", ordinal)
	if err := checkOrdinal(op, ordinal, s.count); err != nil {
		return err
	}
	if err := s.conn.Dele(ordinal); err != nil {
		return classifyPOP3(op, err)
	}
	s.deleted[ordinal] = true
	return nil
}

// Close sends QUIT, which makes the server apply staged DELEs.
func (s *pop3Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.conn.Quit(); err != nil {
		return newError(KindConnection, "POP3 QUIT", err)
	}
	if len(s.deleted) > 0 {
		s.logger.Info("pop3 deletions committed", "addr", s.addr, "count", len(s.deleted))
	}
	return nil
}

// Abort unmarks staged DELEs with RSET before QUIT, so nothing is
// committed.
func (s *pop3Session) Abort() error {
	if s.closed {
		return nil
	}
	s.closed = true
	var rsetErr error
	if len(s.deleted) > 0 {
		rsetErr = s.conn.Rset()
	}
	if err := s.conn.Quit(); err != nil {
		return newError(KindConnection, "POP3 QUIT", err)
	}
	if rsetErr != nil {
		return newError(KindConnection, "POP3 RSET", rsetErr)
	}
	return nil
}

// classifyPOP3 maps transport failures to KindConnection and server -ERR
// replies to RETR/DELE to KindNotFound.
func classifyPOP3(op string, err error) error {
	if isNetworkError(err) {
		return newError(KindConnection, op, err)
	}
	return newError(KindNotFound, op, fmt.Errorf("%w: %v", ErrNotFound, err))
}

func isNetworkError(err error) bool {
	var netErr net.Error
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) || errors.As(err, &netErr)
}
