package main

import (
	"context"
	"fmt"

	"github.com/emx-mail/mcp-email/pkgs/email"
	flag "github.com/spf13/pflag"
)

type sendFlags struct {
	from, to, subject, text, html string
	textFile, htmlFile            string
	dryRun                        bool
}

func parseSendFlags(args []string) sendFlags {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	var f sendFlags
	fs.StringVar(&f.from, "from", "", "Sender address (default: EMAIL_USER)")
	fs.StringVar(&f.to, "to", "", "Recipients (comma-separated)")
	fs.StringVar(&f.subject, "subject", "", "Email subject")
	fs.StringVar(&f.text, "text", "", "Plain text body")
	fs.StringVar(&f.html, "html", "", "HTML body")
	fs.StringVar(&f.textFile, "text-file", "", "Plain text body from file (\"-\" for stdin)")
	fs.StringVar(&f.htmlFile, "html-file", "", "HTML body from file (\"-\" for stdin)")
	fs.BoolVar(&f.dryRun, "dry-run", false, "Print the message without sending")
	if err := fs.Parse(args); err != nil {
		fatal("send: %v", err)
	}
	return f
}

// buildMessage resolves the body sources of f. File sources take
// precedence over inline bodies; text and HTML are mutually exclusive.
func buildMessage(f sendFlags) (email.OutboundMessage, error) {
	msg := email.OutboundMessage{
		From:    f.from,
		To:      parseAddressList(f.to),
		Subject: f.subject,
	}
	if len(msg.To) == 0 {
		return msg, fmt.Errorf("--to is required")
	}

	textBody := f.text
	if f.textFile != "" {
		body, err := readBodySource(f.textFile)
		if err != nil {
			return msg, fmt.Errorf("--text-file: %w", err)
		}
		textBody = body
	}
	htmlBody := f.html
	if f.htmlFile != "" {
		body, err := readBodySource(f.htmlFile)
		if err != nil {
			return msg, fmt.Errorf("--html-file: %w", err)
		}
		htmlBody = body
	}

	switch {
	case textBody != "" && htmlBody != "":
		return msg, fmt.Errorf("a text body and an HTML body cannot be combined")
	case htmlBody != "":
		msg.ContentType = email.ContentTypeHTML
		msg.Body = htmlBody
	case textBody != "":
		msg.ContentType = email.ContentTypeText
		msg.Body = textBody
	default:
		return msg, fmt.Errorf("--text, --text-file, --html, or --html-file is required")
	}
	return msg, nil
}

func (a *app) handleSend(ctx context.Context, f sendFlags) error {
	cfg, logger := a.loadConfig()
	if f.from == "" {
		f.from = cfg.SMTP.Username
	}
	msg, err := buildMessage(f)
	if err != nil {
		return err
	}

	if f.dryRun {
		fmt.Print(string(msg.Bytes()))
		fmt.Println()
		fmt.Println("Dry-run mode: email was NOT sent")
		return nil
	}

	relay, err := cfg.NewRelay(logger)
	if err != nil {
		return err
	}
	result := relay.Send(ctx, msg)
	if !result.OK() {
		return fmt.Errorf("%s: %w", result.Kind, result.Err)
	}
	fmt.Println(result.String())
	return nil
}
