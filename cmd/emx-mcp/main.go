// Command emx-mcp serves the mailbox and relay tools over MCP.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/emx-mail/mcp-email/pkgs/config"
	"github.com/emx-mail/mcp-email/pkgs/mcp"
	flag "github.com/spf13/pflag"
)

func main() {
	profileName := flag.String("profile", mcp.ProfileFull.Name, "Tool profile: full or send")
	transport := flag.String("transport", mcp.TransportStdio, "Transport: stdio, http or sse")
	addr := flag.String("addr", "127.0.0.1:8080", "Listen address of the http and sse transports")
	envFile := flag.String("env-file", "", "Dotenv file to load before reading the environment")
	logLevel := flag.String("log-level", "", "Log level override: debug, info, warn or error")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("emx-mcp %s\n", mcp.Version)
		return
	}

	if err := run(*profileName, *transport, *addr, *envFile, *logLevel); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(profileName, transport, addr, envFile, logLevel string) error {
	cfg, err := config.Load(config.Options{EnvFile: envFile})
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	// stdout carries the stdio transport.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	profile, err := mcp.LookupProfile(profileName)
	if err != nil {
		return err
	}

	opts := &mcp.ServerOptions{Profile: profile, Logger: logger}
	if profile.NeedsMailbox() {
		mailbox, err := cfg.NewMailbox(logger)
		if err != nil {
			return err
		}
		opts.Mailbox = mailbox
	}
	if profile.NeedsRelay() {
		relay, err := cfg.NewRelay(logger)
		if err != nil {
			return err
		}
		opts.Relay = relay
	}

	server, err := mcp.NewServer(opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return server.Run(ctx, transport, addr)
}
