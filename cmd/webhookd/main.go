package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/confluencr/webhookd/pkg/api"
	"github.com/confluencr/webhookd/pkg/clock"
	"github.com/confluencr/webhookd/pkg/config"
	"github.com/confluencr/webhookd/pkg/database"
	"github.com/confluencr/webhookd/pkg/ingest"
	"github.com/confluencr/webhookd/pkg/observability"
	"github.com/confluencr/webhookd/pkg/processor"
	"github.com/confluencr/webhookd/pkg/repository"
	"github.com/confluencr/webhookd/pkg/runtime"
	"github.com/confluencr/webhookd/pkg/store"
)

const drainTimeout = 30 * time.Second

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		return runServer(stderr)
	}

	switch args[1] {
	case "server", "serve":
		return runServer(stderr)
	case "health":
		return runHealthCmd(stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "webhookd - idempotent transaction-webhook processor")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "  webhookd <command>")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "COMMANDS:")
	fmt.Fprintln(w, "  server   Run the HTTP server (default)")
	fmt.Fprintln(w, "  health   Check server health (HTTP)")
	fmt.Fprintln(w, "  help     Show this help")
}

func runServer(stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}

	log := slog.New(slog.NewJSONHandler(stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(log)

	ctx := context.Background()

	obs, err := observability.New(ctx, &observability.Config{
		ServiceName:    "webhookd",
		ServiceVersion: "1.0.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.OTelEnabled,
		BatchTimeout:   5 * time.Second,
	})
	if err != nil {
		log.Error("observability init failed", "error", err)
		return 1
	}

	var (
		db *sql.DB
		st store.Store
	)
	if cfg.LiteMode() {
		log.Info("DATABASE_URL not set, running in lite mode", "data_dir", cfg.DataDir)
		db, err = database.OpenSQLite(ctx, cfg.DataDir)
		if err != nil {
			log.Error("sqlite open failed", "error", err)
			return 1
		}
		st = store.NewSQLiteStore(db)
	} else {
		db, err = database.OpenPostgres(ctx, cfg.DatabaseURL, cfg.DBTimezone)
		if err != nil {
			log.Error("postgres connect failed", "error", err)
			return 1
		}
		log.Info("postgres connected", "timezone", cfg.DBTimezone)
		st = store.NewPostgresStore(db)
	}
	defer db.Close()

	if cfg.DBAutoCreate {
		if err := st.Init(ctx); err != nil {
			log.Error("schema bootstrap failed", "error", err)
			return 1
		}
		log.Info("schema ready")
	}

	rt := runtime.New(log)
	repo := repository.New(st)
	clk := clock.System{}

	svc := ingest.NewService(repo, ingest.ServiceConfig{
		StaleTimeout:     cfg.StaleTimeout,
		OperationTimeout: cfg.OperationTimeout,
	}, clk, log)

	proc := processor.New(repo, rt, obs, processor.Config{
		Delay:            cfg.ProcessingDelay,
		OperationTimeout: cfg.OperationTimeout,
	}, clk, log)

	srv := api.NewServer(api.ServerOptions{
		Ingest:           svc,
		Processor:        proc,
		Repository:       repo,
		Observability:    obs,
		Clock:            clk,
		Logger:           log,
		OperationTimeout: cfg.OperationTimeout,
	})

	var limiter *api.GlobalRateLimiter
	if cfg.RateLimitRPS > 0 {
		limiter = api.NewGlobalRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Handler(limiter),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", httpServer.Addr,
			"processing_delay", cfg.ProcessingDelay,
			"stale_timeout", cfg.StaleTimeout)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		log.Error("http server failed", "error", err)
		return 1
	}

	// Stop order: refuse new tasks first so in-flight rows get
	// interrupted, then stop accepting HTTP, then wait for tasks, then
	// release storage and telemetry.
	rt.SignalShutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown incomplete", "error", err)
	}
	if err := rt.Drain(shutdownCtx); err != nil {
		log.Warn("task drain incomplete", "error", err)
	}
	if err := obs.Shutdown(shutdownCtx); err != nil {
		log.Warn("telemetry shutdown incomplete", "error", err)
	}
	log.Info("stopped")
	return 0
}

func runHealthCmd(out, errOut io.Writer) int {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	resp, err := http.Get("http://localhost:" + port + "/")
	if err != nil {
		fmt.Fprintf(errOut, "Health check failed: %v\n", err)
		return 1
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(errOut, "Health check failed: status %d\n", resp.StatusCode)
		return 1
	}

	fmt.Fprintln(out, "OK")
	return 0
}
