package main

import (
	"context"
	"fmt"

	flag "github.com/spf13/pflag"
)

type deleteFlags struct {
	ids string
}

func parseDeleteFlags(args []string) deleteFlags {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	var f deleteFlags
	fs.StringVar(&f.ids, "id", "", "Message ids to delete (comma-separated, 1-based)")
	if err := fs.Parse(args); err != nil {
		fatal("delete: %v", err)
	}
	return f
}

func (a *app) handleDelete(ctx context.Context, f deleteFlags) error {
	if f.ids == "" {
		return fmt.Errorf("--id is required")
	}
	ids, err := parseIDList(f.ids)
	if err != nil {
		return err
	}

	cfg, logger := a.loadConfig()
	mailbox, err := cfg.NewMailbox(logger)
	if err != nil {
		return err
	}
	if err := mailbox.Delete(ctx, ids); err != nil {
		return err
	}
	fmt.Printf("Deleted %d message(s); ids of later messages have shifted\n", len(ids))
	return nil
}
