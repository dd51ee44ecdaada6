// Command caseruntime runs the Case Runtime Core: the HTTP API, the run
// engine worker pool, the cron-driven scheduler, and the Postgres
// NOTIFY-backed event bus, all sharing one store.Client.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/foiacase/caseruntime/pkg/api"
	"github.com/foiacase/caseruntime/pkg/classifier"
	"github.com/foiacase/caseruntime/pkg/config"
	"github.com/foiacase/caseruntime/pkg/events"
	"github.com/foiacase/caseruntime/pkg/executor"
	"github.com/foiacase/caseruntime/pkg/masking"
	"github.com/foiacase/caseruntime/pkg/pipeline"
	"github.com/foiacase/caseruntime/pkg/runengine"
	"github.com/foiacase/caseruntime/pkg/runtime"
	"github.com/foiacase/caseruntime/pkg/scheduler"
	"github.com/foiacase/caseruntime/pkg/store"
)

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("warning: could not load %s: %v, continuing with existing environment", envPath, err)
	}

	podID := getEnv("POD_ID", "caseruntime-0")
	httpAddr := getEnv("HTTP_ADDR", ":8080")
	policyPath := getEnv("POLICY_CONFIG", filepath.Join(*configDir, "policy.yaml"))
	gin.SetMode(getEnv("GIN_MODE", "release"))

	cfg, err := config.Load(podID, httpAddr, policyPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	stats := cfg.Stats()
	slog.Info("configuration loaded",
		"pod_id", podID,
		"auto_allowlist_size", stats.AutoAllowlistSize,
		"forbidden_phrase_sets", stats.ForbiddenPhraseSets,
		"followup_cadence", stats.FollowupCadence,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := store.NewClient(ctx, &cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			slog.Error("error closing database client", "error", err)
		}
	}()
	slog.Info("connected to database and applied migrations")

	publisher := events.NewPublisher(client.DB())
	connManager := events.NewConnectionManager(
		events.NewStoreCatchupAdapter(client),
		5*time.Second,
	)
	listener := events.NewNotifyListener(cfg.Database.DSN(), connManager)
	connManager.SetListener(listener)
	if err := listener.Start(ctx); err != nil {
		log.Fatalf("failed to start notify listener: %v", err)
	}
	defer listener.Stop(context.Background())

	masker := masking.NewService(masking.Config{
		Enabled:      true,
		PatternGroup: "requester_pii",
	})

	transitioner := runtime.NewTransitioner(client, publisher)

	channels := buildExecutionChannels(client, cfg)

	pipelineExecutor := pipeline.NewExecutor(
		client,
		transitioner,
		cfg.Policy,
		classifier.NewStubClassifier(),
		classifier.NewStubDrafter(),
		channels,
		masker,
	)

	workerPool := runengine.NewWorkerPool(podID, client, cfg.RunEngine, transitioner, pipelineExecutor, publisher)
	if err := workerPool.Start(ctx); err != nil {
		log.Fatalf("failed to start run engine worker pool: %v", err)
	}
	defer workerPool.Stop()

	dispatcher := runengine.NewDispatcher(client, cfg.RunEngine.LockTTL)

	sched := scheduler.New(client, dispatcher, cfg.Scheduler)
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	server := api.NewServer().
		SetStore(client).
		SetDispatcher(dispatcher).
		SetWorkerPool(workerPool).
		SetScheduler(sched).
		SetConnManager(connManager).
		SetMasker(masker)
	if err := server.ValidateWiring(); err != nil {
		log.Fatalf("api server wiring incomplete: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", httpAddr)
		if err := server.Start(httpAddr); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		slog.Error("http server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("error during http server shutdown", "error", err)
	}
}

// buildExecutionChannels wires the email and portal send channels, each
// wrapped retry-outside-rate-limit so a retried attempt still respects
// the hourly outbound cap.
func buildExecutionChannels(client *store.Client, cfg *config.Config) []pipeline.Channel {
	email := executor.NewEmailChannel(cfg.Executor.SMTP)
	portal := executor.NewPortalChannel(cfg.Executor.Portal)

	return []pipeline.Channel{
		executor.NewRetryingChannel(executor.NewRateLimitedChannel(email, client, cfg.Executor), client, cfg.Executor),
		executor.NewRetryingChannel(executor.NewRateLimitedChannel(portal, client, cfg.Executor), client, cfg.Executor),
	}
}
