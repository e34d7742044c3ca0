package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/danielhkuo/univote/cliparse"
	"github.com/danielhkuo/univote/db"
	"github.com/danielhkuo/univote/ledger"
	"github.com/danielhkuo/univote/middleware"
	"github.com/danielhkuo/univote/pending"
	"github.com/danielhkuo/univote/reconcile"
	"github.com/danielhkuo/univote/router"
	"github.com/danielhkuo/univote/store"
)

const shutdownTimeout = 15 * time.Second

func main() {
	var err error

	// Parse configuration
	cfg, err := cliparse.ParseFlags(os.Args[1:])
	if err != nil {
		slog.Error("Error parsing flags", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to the mirror database
	dbConn, err := db.Open(ctx, cfg.DatabaseType, cfg.DatabaseURL)
	if err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer dbConn.Close()

	if err := db.CreateSchema(dbConn); err != nil {
		slog.Error("schema creation failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database schema ready", "type", cfg.DatabaseType)

	// Connect to the ledger
	client, err := ledger.Dial(ctx, cfg.Ledger())
	if err != nil {
		slog.Error("ledger connection failed", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	registry := pending.New()

	// Start reconciliation
	rec := reconcile.New(client, store.New(dbConn), registry, cfg.SyncWorkers)
	sched, err := reconcile.NewScheduler(rec, cfg.SyncSchedule)
	if err != nil {
		slog.Error("invalid sync schedule", "error", err)
		os.Exit(1)
	}
	sched.Start(ctx)

	mux := router.NewRouter(dbConn, client, registry, cfg)

	server := http.Server{
		Handler: middleware.CORS(mux),
		Addr:    ":" + strconv.Itoa(cfg.Port),
	}

	// signal.Notify requires the channel to be buffered
	ctrlc := make(chan os.Signal, 1)
	signal.Notify(ctrlc, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctrlc
		shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		defer done()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Warn("server shutdown", "error", err)
		}
		if err := sched.Stop(shutdownCtx); err != nil {
			slog.Warn("reconciler did not stop in time", "error", err)
		}
		cancel()
	}()

	slog.Info("Listening", "port", cfg.Port, "contract", cfg.ContractAddress)
	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		slog.Error("Server closed", "error", err)
		return
	}
	// Wait for the reconciler to stop
	<-ctx.Done()
	slog.Info("Server closed", "error", err)
}
