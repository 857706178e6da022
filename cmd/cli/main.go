package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/emx-mail/mcp-email/pkgs/mcp"
	flag "github.com/spf13/pflag"
)

// app holds global options parsed from the command line
type app struct {
	envFile string
	verbose bool
}

func main() {
	a := &app{}

	// Global flags
	flag.StringVar(&a.envFile, "env-file", "", "Dotenv file to load before reading the environment")
	flag.BoolVarP(&a.verbose, "verbose", "v", false, "Verbose output")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Usage = printUsage
	flag.Parse()

	if *showVersion {
		fmt.Printf("emx-mail CLI %s\n", mcp.Version)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	cmd := args[0]
	cmdArgs := args[1:]

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "poll":
		opts := parseListFlags(cmdArgs)
		if err := a.handleList(ctx, opts); err != nil {
			fatal("poll: %v", err)
		}
	case "get":
		opts := parseFetchFlags(cmdArgs)
		if err := a.handleFetch(ctx, opts); err != nil {
			fatal("get: %v", err)
		}
	case "delete":
		opts := parseDeleteFlags(cmdArgs)
		if err := a.handleDelete(ctx, opts); err != nil {
			fatal("delete: %v", err)
		}
	case "send":
		opts := parseSendFlags(cmdArgs)
		if err := a.handleSend(ctx, opts); err != nil {
			fatal("send: %v", err)
		}
	case "help":
		printUsage()
		os.Exit(0)
	default:
		fatal("unknown command '%s'", cmd)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `emx-mail CLI %s - Command-line mailbox client

Usage:
  emx-mail [global options] <command> [command options]

Commands:
  poll       Print every message in the mailbox
  get        Print messages by id
  delete     Delete messages by id
  send       Send an email

Global Options:
  --env-file <path>  Dotenv file to load (default: .env when present)
  -v, --verbose      Verbose output
  --version          Show version information

Configuration:
  EMAIL_USER, EMAIL_PASS        Credentials shared by every protocol
  MAIL_STORE                    pop3 (default), imap or mbox
  POP3_SERVER, POP3_PORT, POP3_TLS
  IMAP_SERVER, IMAP_PORT, IMAP_TLS, IMAP_MAILBOX
  SMTP_SERVER, SMTP_PORT, SMTP_SSL
  MBOX_PATH                     Mailbox file for the mbox store

Poll Options:
  --headers-only     Omit message bodies
  --compact          Print one record per line

Get Options:
  --id <ids>         Message ids (comma-separated, 1-based)
  --headers-only     Omit message bodies
  --compact          Print one record per line

Delete Options:
  --id <ids>         Message ids (comma-separated, 1-based)

Send Options:
  --from <email>         Sender address (default: EMAIL_USER)
  --to <emails>          Recipients (comma-separated)
  --subject <text>       Email subject
  --text <text>          Plain text body
  --html <html>          HTML body
  --text-file <path>     Plain text body from file ("-" for stdin)
  --html-file <path>     HTML body from file ("-" for stdin)
  --dry-run              Print the message without sending

Examples:
  emx-mail poll --headers-only
  emx-mail get --id 2,1
  emx-mail delete --id 3
  emx-mail send --to user@example.com --subject "Hello" --text "Hi there"
`, mcp.Version)
}
