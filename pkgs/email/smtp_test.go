package email

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
)

// ---------------------------------------------------------------------------
// SMTP mock server
// ---------------------------------------------------------------------------

type smtpTestMessage struct {
	From string
	To   []string
	Data []byte
	TLS  bool
}

type smtpTestBackend struct {
	mu       sync.Mutex
	messages []*smtpTestMessage
}

func (be *smtpTestBackend) NewSession(c *gosmtp.Conn) (gosmtp.Session, error) {
	return &smtpTestSession{backend: be, conn: c}, nil
}

func (be *smtpTestBackend) Messages() []*smtpTestMessage {
	be.mu.Lock()
	defer be.mu.Unlock()
	return append([]*smtpTestMessage(nil), be.messages...)
}

type smtpTestSession struct {
	backend *smtpTestBackend
	conn    *gosmtp.Conn
	msg     *smtpTestMessage
}

func (s *smtpTestSession) AuthMechanisms() []string { return []string{"PLAIN"} }

func (s *smtpTestSession) Auth(mech string) (sasl.Server, error) {
	return sasl.NewPlainServer(func(_, username, password string) error {
		if username != "testuser" || password != "testpass" {
			return errors.New("invalid credentials")
		}
		return nil
	}), nil
}

func (s *smtpTestSession) Mail(from string, _ *gosmtp.MailOptions) error {
	_, secure := s.conn.TLSConnectionState()
	s.msg = &smtpTestMessage{From: from, TLS: secure}
	return nil
}

func (s *smtpTestSession) Rcpt(to string, _ *gosmtp.RcptOptions) error {
	s.msg.To = append(s.msg.To, to)
	return nil
}

func (s *smtpTestSession) Data(r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.msg.Data = b
	s.backend.mu.Lock()
	s.backend.messages = append(s.backend.messages, s.msg)
	s.backend.mu.Unlock()
	return nil
}

func (s *smtpTestSession) Reset()        { s.msg = nil }
func (s *smtpTestSession) Logout() error { return nil }

// Ensure interface conformance
var _ gosmtp.AuthSession = (*smtpTestSession)(nil)

// newTestSMTPServer starts a mock SMTP server offering STARTTLS, or
// implicit TLS when implicitTLS is set. Returns the backend (to inspect
// received mail) and the listen address.
func newTestSMTPServer(t *testing.T, implicitTLS bool) (*smtpTestBackend, string) {
	t.Helper()

	tlsConfig := serverTLS()
	be := &smtpTestBackend{}
	srv := gosmtp.NewServer(be)
	srv.Domain = "localhost"
	srv.AllowInsecureAuth = true
	srv.TLSConfig = tlsConfig

	var ln net.Listener
	var err error
	if implicitTLS {
		ln, err = tls.Listen("tcp", "127.0.0.1:0", tlsConfig)
	} else {
		ln, err = net.Listen("tcp", "127.0.0.1:0")
	}
	if err != nil {
		t.Fatal(err)
	}

	go srv.Serve(ln)
	t.Cleanup(func() { srv.Close() })

	return be, ln.Addr().String()
}

func newTestRelay(t *testing.T, addr string, user, pass string, implicitTLS bool) *Relay {
	t.Helper()
	host, port := splitHostPort(t, addr)
	return NewRelay(SMTPConfig{
		Host:      host,
		Port:      port,
		Username:  user,
		Password:  pass,
		SSL:       implicitTLS,
		StartTLS:  !implicitTLS,
		TLSConfig: clientTLS(),
	}, nil)
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestOutboundMessageBytes(t *testing.T) {
	msg := OutboundMessage{
		From:        "a@x.com",
		To:          []string{"b@x.com", "c@x.com"},
		ContentType: ContentTypeText,
		Subject:     "Hi",
		Body:        "Hello",
	}

	want := "From: a@x.com\r\n" +
		"To: b@x.com, c@x.com\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-type: text/plain\r\n" +
		"Subject: Hi\r\n" +
		"\r\n" +
		"Hello"
	if got := string(msg.Bytes()); got != want {
		t.Errorf("unexpected message:\n%q\nwant:\n%q", got, want)
	}
}

func TestSMTPSend_PlainText(t *testing.T) {
	be, addr := newTestSMTPServer(t, false)
	relay := newTestRelay(t, addr, "testuser", "testpass", false)

	result := relay.Send(context.Background(), OutboundMessage{
		From:        "a@x.com",
		To:          []string{"b@x.com", "c@x.com"},
		ContentType: ContentTypeText,
		Subject:     "Hi",
		Body:        "Hello",
	})
	if !result.OK() {
		t.Fatalf("Send() failed: %s", result)
	}
	if result.String() != "Email sent successfully" {
		t.Errorf("unexpected result: %q", result)
	}

	msgs := be.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].From != "a@x.com" {
		t.Errorf("unexpected From: %s", msgs[0].From)
	}
	if !msgs[0].TLS {
		t.Error("message was not submitted over STARTTLS")
	}
	if strings.Join(msgs[0].To, ",") != "b@x.com,c@x.com" {
		t.Errorf("unexpected To: %v", msgs[0].To)
	}
	data := string(msgs[0].Data)
	if !strings.Contains(data, "To: b@x.com, c@x.com\r\n") {
		t.Errorf("To header not found in message data: %q", data)
	}
	if !strings.Contains(data, "Content-type: text/plain\r\n") {
		t.Errorf("content type not found in message data: %q", data)
	}
	_, body, _ := strings.Cut(data, "\r\n\r\n")
	if strings.TrimRight(body, "\r\n") != "Hello" {
		t.Errorf("unexpected body: %q", body)
	}
}

func TestSMTPSend_HTMLBody(t *testing.T) {
	be, addr := newTestSMTPServer(t, false)
	relay := newTestRelay(t, addr, "testuser", "testpass", false)

	result := relay.Send(context.Background(), OutboundMessage{
		From:        "sender@example.com",
		To:          []string{"rcpt@example.com"},
		ContentType: ContentTypeHTML,
		Subject:     "HTML Test",
		Body:        "<h1>Hello</h1>",
	})
	if !result.OK() {
		t.Fatalf("Send() failed: %s", result)
	}

	msgs := be.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	data := string(msgs[0].Data)
	if !strings.Contains(data, "Content-type: text/html") {
		t.Error("text/html content type not found in message data")
	}
	if !strings.Contains(data, "<h1>Hello</h1>") {
		t.Error("HTML body not found in message data")
	}
}

func TestSMTPSend_ImplicitTLS(t *testing.T) {
	be, addr := newTestSMTPServer(t, true)
	relay := newTestRelay(t, addr, "testuser", "testpass", true)

	result := relay.Send(context.Background(), OutboundMessage{
		From:    "sender@example.com",
		To:      []string{"rcpt@example.com"},
		Subject: "TLS",
		Body:    "over tls",
	})
	if !result.OK() {
		t.Fatalf("Send() failed: %s", result)
	}
	if len(be.Messages()) != 1 {
		t.Fatalf("expected 1 message, got %d", len(be.Messages()))
	}
}

func TestSMTPSend_BadAuth(t *testing.T) {
	be, addr := newTestSMTPServer(t, false)
	relay := newTestRelay(t, addr, "testuser", "wrongpass", false)

	result := relay.Send(context.Background(), OutboundMessage{
		From:    "sender@example.com",
		To:      []string{"rcpt@example.com"},
		Subject: "Should Fail",
		Body:    "body",
	})
	if result.OK() {
		t.Fatal("expected auth error")
	}
	if result.Kind != KindAuthentication {
		t.Errorf("expected %s, got %s", KindAuthentication, result.Kind)
	}
	if !strings.HasPrefix(result.String(), "Failed to send email: AuthenticationError: ") {
		t.Errorf("unexpected result: %q", result)
	}
	if len(be.Messages()) != 0 {
		t.Error("message delivered despite failed auth")
	}
}

func TestSMTPSend_ConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	relay := newTestRelay(t, addr, "testuser", "testpass", false)
	result := relay.Send(context.Background(), OutboundMessage{
		From: "sender@example.com",
		To:   []string{"rcpt@example.com"},
	})
	if result.Kind != KindConnection {
		t.Fatalf("expected %s, got %s (%s)", KindConnection, result.Kind, result)
	}
	if !errors.Is(result.Err, ErrConnection) {
		t.Errorf("expected ErrConnection, got %v", result.Err)
	}
}

func TestSMTPSend_InvalidMessage(t *testing.T) {
	be, addr := newTestSMTPServer(t, false)
	relay := newTestRelay(t, addr, "testuser", "testpass", false)

	tests := []struct {
		name string
		msg  OutboundMessage
	}{
		{"empty from", OutboundMessage{To: []string{"rcpt@example.com"}}},
		{"no recipients", OutboundMessage{From: "sender@example.com"}},
		{"header injection", OutboundMessage{
			From:    "sender@example.com",
			To:      []string{"rcpt@example.com"},
			Subject: "hi\r\nBcc: victim@example.com",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := relay.Send(context.Background(), tt.msg)
			if result.Kind != KindSubmission {
				t.Errorf("expected %s, got %s (%s)", KindSubmission, result.Kind, result)
			}
		})
	}
	if len(be.Messages()) != 0 {
		t.Errorf("invalid messages were delivered: %d", len(be.Messages()))
	}
}

func TestSMTPSend_CancelledContext(t *testing.T) {
	be, addr := newTestSMTPServer(t, false)
	relay := newTestRelay(t, addr, "testuser", "testpass", false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := relay.Send(ctx, OutboundMessage{
		From: "sender@example.com",
		To:   []string{"rcpt@example.com"},
	})
	if result.Kind != KindConnection {
		t.Errorf("expected %s, got %s", KindConnection, result.Kind)
	}
	if len(be.Messages()) != 0 {
		t.Error("message delivered after cancellation")
	}
}
