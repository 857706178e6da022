package main

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/emx-mail/mcp-email/pkgs/email"
	flag "github.com/spf13/pflag"
)

type listFlags struct {
	headersOnly bool
	compact     bool
}

func parseListFlags(args []string) listFlags {
	fs := flag.NewFlagSet("poll", flag.ExitOnError)
	var f listFlags
	fs.BoolVar(&f.headersOnly, "headers-only", false, "Omit message bodies")
	fs.BoolVar(&f.compact, "compact", false, "Print one record per line")
	if err := fs.Parse(args); err != nil {
		fatal("poll: %v", err)
	}
	return f
}

func (a *app) handleList(ctx context.Context, f listFlags) error {
	return a.printRecords(ctx, nil, f.headersOnly, f.compact)
}

// printRecords retrieves ids (all messages when empty) and writes them to
// stdout as a JSON array.
func (a *app) printRecords(ctx context.Context, ids []int, headersOnly, compact bool) error {
	cfg, logger := a.loadConfig()
	mailbox, err := cfg.NewMailbox(logger)
	if err != nil {
		return err
	}

	records, err := mailbox.Retrieve(ctx, ids)
	if err != nil {
		return err
	}
	if headersOnly {
		for _, r := range records {
			r.Projection = email.ProjectHeaders
		}
	}
	return writeRecords(os.Stdout, records, compact)
}

func writeRecords(w io.Writer, records []*email.Record, compact bool) error {
	if records == nil {
		records = []*email.Record{}
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if !compact {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(records)
}
