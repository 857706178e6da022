package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var allKeys = []string{
	EnvUser, EnvPass, EnvStore,
	EnvPOP3Server, EnvPOP3Port, EnvPOP3TLS,
	EnvIMAPServer, EnvIMAPPort, EnvIMAPTLS, EnvIMAPMailbox,
	EnvSMTPServer, EnvSMTPPort, EnvSMTPSSL,
	EnvMboxPath, EnvDialTimeout, EnvLogLevel,
}

// clearEnv unsets every key Load reads for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range allKeys {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	t.Chdir(t.TempDir())
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(Options{})
	require.NoError(t, err)

	require.Equal(t, StorePOP3, cfg.Store)
	require.Equal(t, DefaultPOP3Port, cfg.POP3.Port)
	require.Equal(t, DefaultSMTPPort, cfg.SMTP.Port)
	require.Equal(t, DefaultIMAPPort, cfg.IMAP.Port)
	require.True(t, cfg.POP3.SSL)
	require.False(t, cfg.SMTP.SSL)
	require.True(t, cfg.SMTP.StartTLS)
	require.Equal(t, "INBOX", cfg.IMAPMailbox)
	require.Equal(t, 10*time.Second, cfg.DialTimeout)
	require.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}

func TestLoad_FromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvUser, "agent@example.com")
	t.Setenv(EnvPass, "secret")
	t.Setenv(EnvPOP3Server, "pop.example.com")
	t.Setenv(EnvPOP3Port, "1995")
	t.Setenv(EnvSMTPServer, "smtp.example.com")
	t.Setenv(EnvSMTPPort, "465")
	t.Setenv(EnvSMTPSSL, "true")
	t.Setenv(EnvDialTimeout, "3s")
	t.Setenv(EnvLogLevel, "DEBUG")

	cfg, err := Load(Options{})
	require.NoError(t, err)

	require.Equal(t, "pop.example.com", cfg.POP3.Host)
	require.Equal(t, 1995, cfg.POP3.Port)
	require.Equal(t, "agent@example.com", cfg.POP3.Username)
	require.Equal(t, "secret", cfg.SMTP.Password)
	require.Equal(t, 465, cfg.SMTP.Port)
	require.True(t, cfg.SMTP.SSL)
	require.False(t, cfg.SMTP.StartTLS)
	require.Equal(t, 3*time.Second, cfg.DialTimeout)
	require.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	require.NoError(t, cfg.ValidateStore())
	require.NoError(t, cfg.ValidateRelay())
}

func TestLoad_MalformedValuesFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvPOP3Port, "pop")
	t.Setenv(EnvSMTPPort, "70000")
	t.Setenv(EnvPOP3TLS, "maybe")
	t.Setenv(EnvDialTimeout, "soon")

	cfg, err := Load(Options{})
	require.NoError(t, err)

	require.Equal(t, 995, cfg.POP3.Port)
	require.Equal(t, 587, cfg.SMTP.Port)
	require.True(t, cfg.POP3.SSL)
	require.Equal(t, 10*time.Second, cfg.DialTimeout)
}

func TestLoad_EnvFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "mail.env")
	require.NoError(t, os.WriteFile(path, []byte(
		"POP3_SERVER=file.example.com\nSMTP_SERVER=relay.example.com\n"), 0o600))
	t.Setenv(EnvSMTPServer, "env.example.com")

	cfg, err := Load(Options{EnvFile: path})
	require.NoError(t, err)

	require.Equal(t, "file.example.com", cfg.POP3.Host)
	require.Equal(t, "env.example.com", cfg.SMTP.Host, "real environment wins over the file")
}

func TestLoad_MissingEnvFile(t *testing.T) {
	clearEnv(t)

	_, err := Load(Options{EnvFile: filepath.Join(t.TempDir(), "absent.env")})
	require.Error(t, err)
}

func TestParsePort(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{"", 995},
		{"110", 110},
		{" 995 ", 995},
		{"abc", 995},
		{"0", 995},
		{"-1", 995},
		{"65535", 65535},
		{"65536", 995},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, ParsePort(tt.raw, 995), "ParsePort(%q)", tt.raw)
	}
}

func TestValidateStore(t *testing.T) {
	require.Error(t, (&Config{Store: StorePOP3}).ValidateStore())
	require.Error(t, (&Config{Store: StoreIMAP}).ValidateStore())
	require.Error(t, (&Config{Store: StoreMbox}).ValidateStore())
	require.Error(t, (&Config{Store: "maildir"}).ValidateStore())
	require.NoError(t, (&Config{Store: StoreMbox, MboxPath: "/tmp/inbox"}).ValidateStore())
	require.Error(t, (&Config{}).ValidateRelay())
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		raw  any
		want time.Duration
	}{
		{"10", 10 * time.Second},
		{"3s", 3 * time.Second},
		{"250ms", 250 * time.Millisecond},
		{"", 10 * time.Second},
		{"0", 10 * time.Second},
		{"-5", 10 * time.Second},
		{"soon", 10 * time.Second},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, parseDuration(tt.raw, 10*time.Second), "parseDuration(%q)", tt.raw)
	}
}
