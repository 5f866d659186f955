package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"meeting-insights-go/internal/api"
	"meeting-insights-go/internal/audio"
	"meeting-insights-go/internal/config"
	"meeting-insights-go/internal/executor"
	"meeting-insights-go/internal/inbox"
	"meeting-insights-go/internal/inflight"
	"meeting-insights-go/internal/lifecycle"
	"meeting-insights-go/internal/logger"
	"meeting-insights-go/internal/nlp"
	"meeting-insights-go/internal/notify"
	"meeting-insights-go/internal/pipeline"
	"meeting-insights-go/internal/store"
	"meeting-insights-go/internal/summarizer"
	"meeting-insights-go/internal/tracing"
	"meeting-insights-go/internal/transcription"
)

const serviceName = "meeting-insights-go"

func main() {
	_ = godotenv.Load() // loads .env

	log := logger.New()
	log.WithField("service", serviceName).Info("starting service")

	cfg, err := config.Load(envOr("CONFIG_PATH", "config.yaml"))
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, serviceName)
	if err != nil {
		log.WithError(err).Fatal("failed to init tracing")
	}

	boot := log.Component("bootstrap")
	st, err := openStore(ctx, cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("failed to open record store")
	}
	boot.WithField("driver", cfg.Database.Driver).Info("record store ready")

	artifacts, err := openArtifacts(ctx, cfg.Storage)
	if err != nil {
		log.WithError(err).Fatal("failed to open permanent storage")
	}
	boot.WithField("backend", cfg.Storage.Backend).Info("permanent storage ready")

	retry := store.RetryPolicy{MaxAttempts: cfg.Persistence.MaxAttempts, BaseDelay: cfg.Persistence.BaseDelay}
	manager, err := lifecycle.NewManager(cfg.Storage.TempDir, cfg.Storage.ProcessedDir, artifacts, st, retry, log.Entry)
	if err != nil {
		log.WithError(err).Fatal("failed to prepare storage directories")
	}

	runner := executor.New()
	timeouts := cfg.Pipeline.Timeouts

	var transcriber transcription.Adapter
	switch cfg.Transcription.Backend {
	case "http":
		transcriber = transcription.NewHTTPAdapter(cfg.Transcription.URL, cfg.Transcription.PollInterval, cfg.Transcription.MaxPolls, timeouts.Transcription, log.Entry)
	default:
		transcriber = transcription.NewScriptAdapter(cfg.Transcription.Command, runner, timeouts.Transcription, log.Entry)
	}

	sc := cfg.Summarizer
	router, err := summarizer.NewRouter(
		summarizer.NewGeminiProvider(sc.Gemini.APIKey, sc.Gemini.Model, timeouts.Summarization, log.Entry),
		summarizer.NewGatewayProvider(sc.Gateway.URL, sc.Gateway.APIKey, sc.Gateway.Model, timeouts.Summarization, log.Entry),
		sc.Provider, sc.Fallback, log.Entry,
	)
	if err != nil {
		log.WithError(err).Fatal("failed to build summarizer")
	}

	sinks := notify.Multi{notify.NewLogSink(log.Entry)}
	if cfg.Notify.WebhookURL != "" {
		sinks = append(sinks, notify.NewWebhookSink(cfg.Notify.WebhookURL, cfg.Notify.Timeout))
	}

	orch, err := pipeline.NewOrchestrator(pipeline.Deps{
		Store:       st,
		Lifecycle:   manager,
		Audio:       audio.NewScriptAdapter(cfg.Audio.Command, runner, timeouts.Audio, log.Entry),
		Transcriber: transcriber,
		Linguistic:  nlp.NewScriptAdapter(cfg.NLP.Command, runner, timeouts.NLP, log.Entry),
		Summarizer:  router,
		Notifier:    sinks,
		InFlight:    inflight.New(cfg.Pipeline.DedupeEntries, cfg.Pipeline.DedupeTTL),
	}, pipeline.Options{
		MaxConcurrent:        cfg.Pipeline.MaxConcurrent,
		Retry:                retry,
		DefaultRetentionDays: cfg.Retention.DefaultDays,
		NotifyTimeout:        cfg.Pipeline.NotifyTimeout,
	}, log.Entry)
	if err != nil {
		log.WithError(err).Fatal("failed to build pipeline")
	}

	sweeper := lifecycle.NewSweeper(st, manager, cfg.Retention.SweepInterval, cfg.Retention.BatchSize, log.Entry)
	go sweeper.Run(ctx)

	ingestor := inbox.NewIngestor(manager, orch, log.Entry)
	if cfg.Inbox.Dir != "" {
		w, err := inbox.NewWatcher(cfg.Inbox.Dir, cfg.Inbox.OwnerID, cfg.Inbox.Category, ingestor, cfg.Inbox.Settle, log.Entry)
		if err != nil {
			log.WithError(err).Fatal("failed to watch inbox")
		}
		defer w.Close()
		go func() {
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("inbox watcher stopped")
			}
		}()
		boot.WithField("dir", cfg.Inbox.Dir).Info("watching inbox")
	}

	server := api.NewServer(api.Deps{
		Store:     st,
		Submitter: orch,
		Manager:   manager,
		Providers: router,
		Sweeper:   sweeper,
		Ingestor:  ingestor,
		ImportDir: cfg.Inbox.Dir,
	}, log)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      server.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	go func() {
		log.WithField("addr", cfg.Server.Addr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server terminated")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown incomplete")
	}
	// in-flight meetings run to a terminal state before the store closes
	orch.Wait()
	if err := st.Close(); err != nil {
		log.WithError(err).Warn("record store close failed")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.WithError(err).Warn("tracing flush failed")
	}
	log.Info("stopped")
}

func openStore(ctx context.Context, cfg config.DatabaseConfig) (store.Store, error) {
	if cfg.Driver == "postgres" {
		return store.NewPostgresStore(ctx, cfg.DSN)
	}
	return store.NewMemoryStore(), nil
}

func openArtifacts(ctx context.Context, cfg config.StorageConfig) (lifecycle.ArtifactStore, error) {
	if cfg.Backend == "minio" {
		return lifecycle.NewMinIOStore(ctx, lifecycle.MinIOOptions{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			Bucket:    cfg.MinIO.Bucket,
			UseSSL:    cfg.MinIO.UseSSL,
		})
	}
	return lifecycle.NewFSStore(cfg.PermanentDir)
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
