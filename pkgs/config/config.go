package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// Environment variables read by Load.
const (
	EnvUser        = "EMAIL_USER"
	EnvPass        = "EMAIL_PASS"
	EnvStore       = "MAIL_STORE"
	EnvPOP3Server  = "POP3_SERVER"
	EnvPOP3Port    = "POP3_PORT"
	EnvPOP3TLS     = "POP3_TLS"
	EnvIMAPServer  = "IMAP_SERVER"
	EnvIMAPPort    = "IMAP_PORT"
	EnvIMAPTLS     = "IMAP_TLS"
	EnvIMAPMailbox = "IMAP_MAILBOX"
	EnvSMTPServer  = "SMTP_SERVER"
	EnvSMTPPort    = "SMTP_PORT"
	EnvSMTPSSL     = "SMTP_SSL"
	EnvMboxPath    = "MBOX_PATH"
	EnvDialTimeout = "EMAIL_DIAL_TIMEOUT"
	EnvLogLevel    = "LOG_LEVEL"
)

// Default ports.
const (
	DefaultPOP3Port = 995
	DefaultIMAPPort = 993
	DefaultSMTPPort = 587
)

// Mailbox stores selectable with MAIL_STORE.
const (
	StorePOP3 = "pop3"
	StoreIMAP = "imap"
	StoreMbox = "mbox"
)

// ProtocolSettings holds connection settings common to IMAP, POP3 and SMTP.
type ProtocolSettings struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password,omitempty"`

	// SSL enables implicit TLS (connect directly over TLS).
	SSL bool `json:"ssl"`
	// StartTLS enables a TLS upgrade after connecting in plaintext.
	StartTLS bool `json:"starttls"`
}

// Config holds the application configuration
type Config struct {
	// Store is one of StorePOP3, StoreIMAP or StoreMbox.
	Store string `json:"store"`

	POP3 ProtocolSettings `json:"pop3"`
	IMAP ProtocolSettings `json:"imap"`
	SMTP ProtocolSettings `json:"smtp"`

	// IMAPMailbox is the folder served by the IMAP store.
	IMAPMailbox string `json:"imap_mailbox,omitempty"`
	MboxPath    string `json:"mbox_path,omitempty"`

	DialTimeout time.Duration `json:"dial_timeout"`
	LogLevel    string        `json:"log_level"`
}

// Options controls Load.
type Options struct {
	// EnvFile is a dotenv file loaded before reading the environment. When
	// empty, ".env" in the working directory is loaded if it exists.
	EnvFile string
}

// Load reads the configuration from the process environment. Variables
// already set in the environment take precedence over the dotenv file.
// Unset or malformed ports, booleans and durations resolve to defaults.
func Load(opts Options) (*Config, error) {
	if err := loadEnvFile(opts.EnvFile); err != nil {
		return nil, err
	}

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault(EnvStore, StorePOP3)
	v.SetDefault(EnvPOP3TLS, true)
	v.SetDefault(EnvIMAPTLS, true)
	v.SetDefault(EnvIMAPMailbox, "INBOX")
	v.SetDefault(EnvSMTPSSL, false)
	v.SetDefault(EnvDialTimeout, "10s")
	v.SetDefault(EnvLogLevel, "info")

	user := v.GetString(EnvUser)
	pass := v.GetString(EnvPass)
	smtpSSL := parseBool(v.Get(EnvSMTPSSL), false)

	cfg := &Config{
		Store: strings.ToLower(strings.TrimSpace(v.GetString(EnvStore))),
		POP3: ProtocolSettings{
			Host:     v.GetString(EnvPOP3Server),
			Port:     ParsePort(v.GetString(EnvPOP3Port), DefaultPOP3Port),
			Username: user,
			Password: pass,
			SSL:      parseBool(v.Get(EnvPOP3TLS), true),
		},
		IMAP: ProtocolSettings{
			Host:     v.GetString(EnvIMAPServer),
			Port:     ParsePort(v.GetString(EnvIMAPPort), DefaultIMAPPort),
			Username: user,
			Password: pass,
			SSL:      parseBool(v.Get(EnvIMAPTLS), true),
		},
		SMTP: ProtocolSettings{
			Host:     v.GetString(EnvSMTPServer),
			Port:     ParsePort(v.GetString(EnvSMTPPort), DefaultSMTPPort),
			Username: user,
			Password: pass,
			SSL:      smtpSSL,
			StartTLS: !smtpSSL,
		},
		IMAPMailbox: v.GetString(EnvIMAPMailbox),
		MboxPath:    v.GetString(EnvMboxPath),
		DialTimeout: parseDuration(v.Get(EnvDialTimeout), 10*time.Second),
		LogLevel:    strings.ToLower(strings.TrimSpace(v.GetString(EnvLogLevel))),
	}
	return cfg, nil
}

func loadEnvFile(path string) error {
	if path == "" {
		err := godotenv.Load()
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// ParsePort parses a TCP port. Empty, non-numeric or out of range values
// yield def.
func ParsePort(raw string, def int) int {
	port, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || port < 1 || port > 65535 {
		return def
	}
	return port
}

func parseBool(raw any, def bool) bool {
	if s, ok := raw.(string); ok && strings.TrimSpace(s) == "" {
		return def
	}
	b, err := cast.ToBoolE(raw)
	if err != nil {
		return def
	}
	return b
}

// parseDuration reads a Go duration. A bare integer counts seconds.
func parseDuration(raw any, def time.Duration) time.Duration {
	if n, err := cast.ToIntE(raw); err == nil {
		if n <= 0 {
			return def
		}
		return time.Duration(n) * time.Second
	}
	d, err := cast.ToDurationE(raw)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// ValidateStore checks that the selected mailbox store is usable.
func (c *Config) ValidateStore() error {
	switch c.Store {
	case StorePOP3:
		if c.POP3.Host == "" {
			return fmt.Errorf("%s is required for store %q", EnvPOP3Server, c.Store)
		}
	case StoreIMAP:
		if c.IMAP.Host == "" {
			return fmt.Errorf("%s is required for store %q", EnvIMAPServer, c.Store)
		}
	case StoreMbox:
		if c.MboxPath == "" {
			return fmt.Errorf("%s is required for store %q", EnvMboxPath, c.Store)
		}
	default:
		return fmt.Errorf("unknown %s: %q", EnvStore, c.Store)
	}
	return nil
}

// ValidateRelay checks that the outbound relay is configured.
func (c *Config) ValidateRelay() error {
	if c.SMTP.Host == "" {
		return fmt.Errorf("%s is required", EnvSMTPServer)
	}
	return nil
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
