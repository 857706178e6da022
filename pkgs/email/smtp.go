package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

// SMTPConfig holds SMTP configuration
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	// SSL dials implicit TLS. Otherwise the relay dials plaintext and
	// upgrades with STARTTLS when StartTLS is set.
	SSL       bool
	StartTLS  bool
	TLSConfig *tls.Config
	// LocalName is sent with EHLO, default "localhost".
	LocalName string
}

// Addr returns host:port.
func (c SMTPConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Content types accepted by the send tools.
const (
	ContentTypeText = "text/plain"
	ContentTypeHTML = "text/html"
)

// OutboundMessage is a single-part message to submit.
type OutboundMessage struct {
	From        string
	To          []string
	ContentType string
	Subject     string
	Body        string
}

func (m OutboundMessage) validate() error {
	if strings.TrimSpace(m.From) == "" {
		return errors.New("empty from address")
	}
	if len(m.To) == 0 {
		return errors.New("no recipients")
	}
	fields := append([]string{m.From, m.ContentType, m.Subject}, m.To...)
	for _, f := range fields {
		if strings.ContainsAny(f, "\r\n") {
			return fmt.Errorf("header field %q contains a line break", f)
		}
	}
	return nil
}

// Bytes renders the header block, a blank line and the body with CRLF
// line endings.
func (m OutboundMessage) Bytes() []byte {
	contentType := m.ContentType
	if contentType == "" {
		contentType = ContentTypeText
	}

	var b strings.Builder
	b.WriteString("From: " + m.From + "\r\n")
	b.WriteString("To: " + strings.Join(m.To, ", ") + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-type: " + contentType + "\r\n")
	b.WriteString("Subject: " + m.Subject + "\r\n")
	b.WriteString("\r\n")
	b.WriteString(m.Body)
	return []byte(b.String())
}

// SendResult describes the outcome of one submission. A zero Kind means
// the relay accepted the message.
type SendResult struct {
	Kind Kind
	Err  error
}

// OK reports whether the message was accepted.
func (r SendResult) OK() bool { return r.Err == nil }

func (r SendResult) String() string {
	if r.Err == nil {
		return "Email sent successfully"
	}
	return fmt.Sprintf("Failed to send email: %s: %v", r.Kind, r.Err)
}

// Relay submits messages through an SMTP relay, one connection per
// message.
type Relay struct {
	config SMTPConfig
	logger *slog.Logger
}

// NewRelay creates a new relay
func NewRelay(config SMTPConfig, logger *slog.Logger) *Relay {
	if config.LocalName == "" {
		config.LocalName = "localhost"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{config: config, logger: logger}
}

// Send submits msg. It never returns an error; failures are reported in
// the result.
func (r *Relay) Send(ctx context.Context, msg OutboundMessage) SendResult {
	if err := msg.validate(); err != nil {
		return r.fail(newError(KindSubmission, "SMTP validate", err))
	}
	if err := ctx.Err(); err != nil {
		return r.fail(newError(KindConnection, "SMTP connect "+r.config.Addr(), err))
	}
	if err := r.submit(msg); err != nil {
		return r.fail(err)
	}
	r.logger.Info("email sent", "from", msg.From, "to", msg.To, "content_type", msg.ContentType)
	return SendResult{}
}

func (r *Relay) fail(err *Error) SendResult {
	r.logger.Warn("email send failed", "kind", err.Kind, "error", err)
	return SendResult{Kind: err.Kind, Err: err}
}

func (r *Relay) submit(msg OutboundMessage) *Error {
	addr := r.config.Addr()
	tlsCfg := r.config.TLSConfig
	if tlsCfg == nil {
		tlsCfg = &tls.Config{ServerName: r.config.Host}
	}

	var dialFn func(addr string, tlsConfig *tls.Config) (*smtp.Client, error)
	switch {
	case r.config.SSL:
		dialFn = smtp.DialTLS
	case r.config.StartTLS:
		dialFn = smtp.DialStartTLS
	default:
		dialFn = func(addr string, _ *tls.Config) (*smtp.Client, error) {
			return smtp.Dial(addr)
		}
	}

	client, err := dialFn(addr, tlsCfg)
	if err != nil {
		return newError(KindConnection, "SMTP connect "+addr, err)
	}
	defer client.Close()

	// STARTTLS resets the greeting, so EHLO goes out again over TLS.
	if err := client.Hello(r.config.LocalName); err != nil {
		return newError(KindConnection, "SMTP EHLO", err)
	}

	if r.config.Password != "" {
		auth := sasl.NewPlainClient("", r.config.Username, r.config.Password)
		if err := client.Auth(auth); err != nil {
			return newError(KindAuthentication, "SMTP AUTH", err)
		}
	}

	if err := client.SendMail(msg.From, msg.To, bytes.NewReader(msg.Bytes())); err != nil {
		return newError(KindSubmission, "SMTP send", err)
	}
	if err := client.Quit(); err != nil {
		return newError(KindSubmission, "SMTP QUIT", err)
	}
	return nil
}
