package main

import (
	"context"
	"fmt"

	flag "github.com/spf13/pflag"
)

type fetchFlags struct {
	ids         string
	headersOnly bool
	compact     bool
}

func parseFetchFlags(args []string) fetchFlags {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	var f fetchFlags
	fs.StringVar(&f.ids, "id", "", "Message ids (comma-separated, 1-based)")
	fs.BoolVar(&f.headersOnly, "headers-only", false, "Omit message bodies")
	fs.BoolVar(&f.compact, "compact", false, "Print one record per line")
	if err := fs.Parse(args); err != nil {
		fatal("get: %v", err)
	}
	return f
}

func (a *app) handleFetch(ctx context.Context, f fetchFlags) error {
	if f.ids == "" {
		return fmt.Errorf("--id is required")
	}
	ids, err := parseIDList(f.ids)
	if err != nil {
		return err
	}
	return a.printRecords(ctx, ids, f.headersOnly, f.compact)
}
