package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pinchtab/authbridge/internal/config"
	"github.com/pinchtab/authbridge/internal/protocol"
)

var version = "dev"

func main() {
	cfg := config.Load()

	if len(os.Args) > 1 && (os.Args[1] == "--version" || os.Args[1] == "-v") {
		fmt.Printf("authbridge %s\n", version)
		os.Exit(0)
	}

	if len(os.Args) > 1 && os.Args[1] == "config" {
		config.HandleConfigCommand(cfg)
		os.Exit(0)
	}

	if err := os.MkdirAll(cfg.StateDir, 0755); err != nil {
		slog.Error("cannot create state dir", "err", err)
		os.Exit(1)
	}

	// stdout carries protocol lines only; slog's default handler writes to
	// stderr, which is where all diagnostics belong.
	out := protocol.NewWriter(os.Stdout)
	d := protocol.NewDispatcher(protocol.NewBackend(cfg), out)

	setupSignalHandler()

	slog.Info("authbridge started", "version", version,
		"profile", cfg.ProfileDir, "headless", cfg.Headless, "timeout", cfg.LoginTimeout)

	os.Exit(d.Run(os.Stdin))
}

// The host supervises us through stdin; closing it is the graceful shutdown
// path and the dispatcher handles it. Signals are the fallback when the
// host dies without closing the pipe.
func setupSignalHandler() {
	go func() {
		sig := make(chan os.Signal, 2)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		slog.Info("signal received, exiting")
		_ = os.Stdin.Close()
		<-sig
		slog.Warn("force shutdown requested")
		os.Exit(130)
	}()
}
