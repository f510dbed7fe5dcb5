// Package main wires together the run-controller service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/newsrun-controller/internal/api"
	githubci "github.com/JakeFAU/newsrun-controller/internal/ci/github"
	"github.com/JakeFAU/newsrun-controller/internal/clock/system"
	"github.com/JakeFAU/newsrun-controller/internal/config"
	"github.com/JakeFAU/newsrun-controller/internal/controller"
	"github.com/JakeFAU/newsrun-controller/internal/guard"
	"github.com/JakeFAU/newsrun-controller/internal/id/uuid"
	"github.com/JakeFAU/newsrun-controller/internal/logging"
	"github.com/JakeFAU/newsrun-controller/internal/metrics"
	notifymemory "github.com/JakeFAU/newsrun-controller/internal/notify/memory"
	notifypubsub "github.com/JakeFAU/newsrun-controller/internal/notify/pubsub"
	"github.com/JakeFAU/newsrun-controller/internal/pipeline"
	resultsmemory "github.com/JakeFAU/newsrun-controller/internal/results/memory"
	resultspg "github.com/JakeFAU/newsrun-controller/internal/results/postgres"
	statefile "github.com/JakeFAU/newsrun-controller/internal/runstate/file"
	stategcs "github.com/JakeFAU/newsrun-controller/internal/runstate/gcs"
	statememory "github.com/JakeFAU/newsrun-controller/internal/runstate/memory"
	"github.com/JakeFAU/newsrun-controller/internal/watcher"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.NewGlobal(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("service failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	stateStore, err := buildStateStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	resultStore, cleanupResults, err := buildResultStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanupResults()
	publisher, cleanupNotify, err := buildPublisher(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanupNotify()

	ci, err := githubci.New(githubci.Config{
		Owner:    cfg.CI.Owner,
		Repo:     cfg.CI.Repo,
		Workflow: cfg.CI.Workflow,
		Ref:      cfg.CI.Ref,
		Token:    cfg.CI.Token,
		APIBase:  cfg.CI.APIBase,
	})
	if err != nil {
		return fmt.Errorf("init ci client: %w", err)
	}

	clock := system.New()
	g := guard.New(stateStore, clock, guard.Config{
		Cooldown: cfg.Cooldown(),
		StateKey: cfg.Guard.StateKey,
	}, logger.Named("guard"))
	w := watcher.New(ci, g, resultStore, publisher, clock, watcher.Config{
		InitialDelay: cfg.Watcher.InitialDelay,
		PollInterval: cfg.Watcher.PollInterval,
		MaxAttempts:  cfg.Watcher.MaxAttempts,
		SettleDelay:  cfg.Watcher.SettleDelay,
		ResultLimit:  cfg.Watcher.ResultLimit,
	}, logger.Named("watcher"))

	ctrl := controller.New(ctx, g, w, ci, resultStore, ci, uuid.NewUUIDGenerator(), logger.Named("controller"))
	defer ctrl.Close()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.NewServer(ctrl, cfg, logger.Named("api")).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("run-controller listening", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	logger.Info("run-controller stopped")
	return nil
}

func buildStateStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (pipeline.StateStore, error) {
	switch cfg.RunState.Provider {
	case "memory":
		logger.Info("using in-memory run state; records will not survive restarts")
		return statememory.NewStore(), nil
	case "file":
		logger.Info("using file run state", zap.String("dir", cfg.RunState.File.BaseDir))
		store, err := statefile.New(statefile.Config{BaseDir: cfg.RunState.File.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("init file state store: %w", err)
		}
		return store, nil
	case "gcs":
		logger.Info("using GCS run state", zap.String("bucket", cfg.RunState.GCS.Bucket))
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		store, err := stategcs.New(client, stategcs.Config{
			Bucket: cfg.RunState.GCS.Bucket,
			Prefix: cfg.RunState.GCS.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("init gcs state store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown runstate provider: %s", cfg.RunState.Provider)
	}
}

func buildResultStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (pipeline.ResultStore, func(), error) {
	switch cfg.Results.Provider {
	case "memory":
		logger.Info("using in-memory result store")
		return resultsmemory.NewStore(), func() {}, nil
	case "postgres":
		logger.Info("connecting to PostgreSQL for article results")
		store, err := resultspg.New(ctx, resultspg.Config{
			DSN:      cfg.Results.Postgres.DSN,
			Table:    cfg.Results.Postgres.Table,
			MaxConns: int32(cfg.Results.Postgres.MaxOpenConns),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("init postgres result store: %w", err)
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown results provider: %s", cfg.Results.Provider)
	}
}

func buildPublisher(ctx context.Context, cfg config.Config, logger *zap.Logger) (pipeline.Publisher, func(), error) {
	switch cfg.Notify.Provider {
	case "memory":
		logger.Info("using in-memory notification publisher")
		return notifymemory.New(), func() {}, nil
	case "pubsub":
		logger.Info("connecting to GCP Pub/Sub", zap.String("topic", cfg.Notify.GCP.TopicID))
		pub, err := notifypubsub.NewFromIDs(ctx, cfg.Notify.GCP.ProjectID, cfg.Notify.GCP.TopicID)
		if err != nil {
			return nil, nil, fmt.Errorf("init pubsub publisher: %w", err)
		}
		return pub, pub.Stop, nil
	default:
		return nil, nil, fmt.Errorf("unknown notify provider: %s", cfg.Notify.Provider)
	}
}
