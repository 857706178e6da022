package config

import (
	"fmt"
	"log/slog"

	"github.com/emx-mail/mcp-email/pkgs/email"
)

// NewGateway builds the gateway for the configured mailbox store.
func (c *Config) NewGateway(logger *slog.Logger) (email.Gateway, error) {
	if err := c.ValidateStore(); err != nil {
		return nil, err
	}
	switch c.Store {
	case StoreIMAP:
		return email.NewIMAPGateway(email.IMAPConfig{
			Host:     c.IMAP.Host,
			Port:     c.IMAP.Port,
			Username: c.IMAP.Username,
			Password: c.IMAP.Password,
			SSL:      c.IMAP.SSL,
			StartTLS: c.IMAP.StartTLS,
			Mailbox:  c.IMAPMailbox,
		}, logger), nil
	case StoreMbox:
		return email.NewMboxGateway(c.MboxPath, logger), nil
	case StorePOP3:
		return email.NewPOP3Gateway(email.POP3Config{
			Host:        c.POP3.Host,
			Port:        c.POP3.Port,
			Username:    c.POP3.Username,
			Password:    c.POP3.Password,
			SSL:         c.POP3.SSL,
			DialTimeout: c.DialTimeout,
		}, email.WithPOP3Logger(logger)), nil
	}
	return nil, fmt.Errorf("unknown %s: %q", EnvStore, c.Store)
}

// NewMailbox builds a Mailbox over the configured store.
func (c *Config) NewMailbox(logger *slog.Logger) (*email.Mailbox, error) {
	gw, err := c.NewGateway(logger)
	if err != nil {
		return nil, err
	}
	return email.NewMailbox(gw, logger), nil
}

// NewRelay builds the outbound relay.
func (c *Config) NewRelay(logger *slog.Logger) (*email.Relay, error) {
	if err := c.ValidateRelay(); err != nil {
		return nil, err
	}
	return email.NewRelay(email.SMTPConfig{
		Host:     c.SMTP.Host,
		Port:     c.SMTP.Port,
		Username: c.SMTP.Username,
		Password: c.SMTP.Password,
		SSL:      c.SMTP.SSL,
		StartTLS: c.SMTP.StartTLS,
	}, logger), nil
}
