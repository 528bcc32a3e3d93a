package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"paper_ledger/internal/app"
	"paper_ledger/internal/server"
	"paper_ledger/internal/service"

	"github.com/google/subcommands"

	_ "net/http/pprof" // For pprof profiling
)

type serveCmd struct {
	pprof string
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "runs the ledger HTTP and WebSocket server" }
func (*serveCmd) Usage() string {
	return `serve [-pprof addr]

Recovers the ledger from its journal and serves the JSON API until interrupted.
`
}
func (c *serveCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.pprof, "pprof", "localhost:6060", "pprof listen address, empty to disable")
}

func (c *serveCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	// 1. System Bootstrapping
	bootstrap := app.NewBootstrap(*configPath)
	if err := bootstrap.Initialize(); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		return subcommands.ExitFailure
	}
	defer bootstrap.Close()
	cfg := bootstrap.Config

	// 2. Pprof Server (for performance profiling)
	if c.pprof != "" {
		go func() {
			// Localhost only for security
			slog.Info("🕵️ Pprof server started", slog.String("addr", c.pprof))
			if err := http.ListenAndServe(c.pprof, nil); err != nil {
				slog.Error("Pprof server failed", slog.Any("error", err))
			}
		}()
	}

	// 3. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Recover Ledger & start Sequencer
	hub := server.NewHub(cfg.Server.StreamBufferSize, bootstrap.Metrics)
	seq, err := bootstrap.BuildSequencer(ctx, hub.Broadcast)
	if err != nil {
		slog.Error("❌ Ledger recovery failed", slog.Any("error", err))
		return subcommands.ExitFailure
	}

	seqDone := make(chan struct{})
	go func() {
		defer close(seqDone)
		seq.Run(ctx)
	}()
	slog.InfoContext(ctx, "✅ Sequencer started", slog.Uint64("last_seq", seq.LastSeq()))

	if err := bootstrap.SeedInitialDeposit(ctx); err != nil {
		slog.Error("❌ Initial deposit failed", slog.Any("error", err))
		return subcommands.ExitFailure
	}

	// 5. HTTP Server
	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      server.NewServer(service.NewLedgerService(seq), hub, bootstrap.Metrics),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
	}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", slog.Any("error", err))
			stop()
		}
	}()

	slog.InfoContext(ctx, "✨ Paper Ledger fully operational. Press Ctrl+C to exit.",
		slog.String("addr", cfg.Server.Addr))

	// Wait for shutdown signal
	<-ctx.Done()

	slog.Info("👋 Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown failed", slog.Any("error", err))
	}
	<-seqDone

	return subcommands.ExitSuccess
}
