package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/LukasIV/github-commit-collector/internal/api"
	"github.com/LukasIV/github-commit-collector/internal/collector"
	"github.com/LukasIV/github-commit-collector/internal/config"
	"github.com/LukasIV/github-commit-collector/internal/content"
	"github.com/LukasIV/github-commit-collector/internal/github"
	"github.com/LukasIV/github-commit-collector/internal/mapper"
	"github.com/LukasIV/github-commit-collector/internal/models"
	"github.com/LukasIV/github-commit-collector/internal/objectstore"
	"github.com/LukasIV/github-commit-collector/internal/storage"
)

func main() {
	serve := flag.Bool("serve", false, "run the HTTP control plane instead of a one-shot collection")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	if err := godotenv.Load(); err != nil {
		logger.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := buildStore(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize object store")
	}

	backendOpts := []storage.Option{storage.WithLowConfidenceMerge(cfg.AuthorMergeLowConfidence)}
	backend := storage.NewBackend(store, logger, backendOpts...)

	client := github.NewClient(cfg.GitHubToken, logger,
		github.WithRetryConfig(cfg.MaxRetries, time.Second, time.Minute),
		github.WithWaitCeiling(cfg.RateLimitWaitCeiling),
	)

	orchestrator := collector.NewOrchestrator(
		client, backend, mapper.New(logger), content.NewResolver(cfg.InlineContentMaxBytes), logger,
		collector.WithMaxCommits(cfg.MaxCommitsPerRepo),
		collector.WithContentFetching(cfg.FetchFileContent),
		collector.WithCommitRetries(cfg.MaxRetries, 2*time.Second),
	)
	runner := collector.NewRunner(orchestrator, cfg.BatchConcurrency, logger)

	if *serve {
		runServer(ctx, cfg, runner, logger)
		return
	}

	report := runner.Run(ctx, cfg.Repositories)
	printReport(report, logger)
	os.Exit(report.Outcome.ExitCode())
}

func buildStore(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (objectstore.Store, error) {
	if cfg.UseObjectStore() {
		return objectstore.NewMinioStore(ctx, objectstore.MinioConfig{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			UseSSL:    cfg.S3UseSSL,
		}, logger)
	}
	return objectstore.NewLocalStore(cfg.OutputDir)
}

func runServer(ctx context.Context, cfg *config.Config, runner *collector.Runner, logger *logrus.Logger) {
	handler := api.NewHandler(runner, cfg.Repositories, logger)
	router := api.NewRouter(handler)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.WithField("port", cfg.Port).Info("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("HTTP server failed")
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Forced shutdown")
	}
}

func printReport(report *models.BatchReport, logger *logrus.Logger) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		logger.WithError(err).Error("Failed to render batch report")
		return
	}
	fmt.Println(string(data))
}
