package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voithru/webnovel-prompt-lab-sub000/internal/config"
	"github.com/voithru/webnovel-prompt-lab-sub000/internal/diff"
	"github.com/voithru/webnovel-prompt-lab-sub000/internal/docs"
	"github.com/voithru/webnovel-prompt-lab-sub000/internal/eventbus"
	"github.com/voithru/webnovel-prompt-lab-sub000/internal/pushnotification"
	pushsubrepo "github.com/voithru/webnovel-prompt-lab-sub000/internal/pushsubscription/repositoryimpl"
	"github.com/voithru/webnovel-prompt-lab-sub000/internal/stage"
	"github.com/voithru/webnovel-prompt-lab-sub000/internal/submission"
	"github.com/voithru/webnovel-prompt-lab-sub000/internal/task"
	"github.com/voithru/webnovel-prompt-lab-sub000/internal/translate"
	"github.com/voithru/webnovel-prompt-lab-sub000/internal/workflow"
	"github.com/voithru/webnovel-prompt-lab-sub000/pkg/clog"
	"github.com/voithru/webnovel-prompt-lab-sub000/pkg/storage"

	server "github.com/voithru/webnovel-prompt-lab-sub000/internal"
)

func main() {
	env, err := config.LoadEnv()
	if err != nil {
		slog.Error("failed to load env", "error", err)
		os.Exit(1)
	}

	// Setup logger
	level := env.SlogLevel()
	var handler slog.Handler
	if env.Env == "local" {
		handler = clog.NewHTTPTextHandler(os.Stderr, clog.WithLevel(level))
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(clog.NewAttributesHandler(handler)))

	// Setup storage
	var store storage.Storage
	var localStore *storage.LocalStorage
	switch env.StorageEnv.Type {
	case "s3":
		store, err = storage.NewS3Storage(context.Background(), env.StorageEnv.S3Bucket, env.StorageEnv.S3Prefix, env.StorageEnv.S3Region)
		if err != nil {
			slog.Error("failed to create S3 storage", "error", err)
			os.Exit(1)
		}
	default:
		localStore, err = storage.NewLocalStorage(env.StorageEnv.BaseDir)
		if err != nil {
			slog.Error("failed to create local storage", "error", err)
			os.Exit(1)
		}
		store = localStore
	}

	// Setup event bus
	bus := eventbus.New()

	// Setup task catalog and document client
	catalog, err := docs.LoadCatalog(env.DocsEnv.CatalogPath)
	if err != nil {
		slog.Error("failed to load task catalog", "error", err)
		os.Exit(1)
	}
	slog.Info("task catalog loaded", "tasks", catalog.Len())
	docsClient := docs.NewClient(env.DocsEnv.BaseURL, env.DocsEnv.APIKey)

	// Setup workflow state
	stateStore := workflow.NewStateStore(store)
	taskStore := task.NewStore(store)
	guard := stage.NewBackupGuard(stateStore)
	registry := stage.NewRegistry(stateStore, taskStore, guard)

	// Setup translation
	generator := translate.NewClaudeGenerator(env.TranslateEnv.WorkDir, env.TranslateEnv.MaxTurns)
	translateService := translate.NewService(generator, registry, bus)

	// Setup submission pipeline
	collector := submission.NewCollector(env.CollectorEnv.EndpointURL, env.CollectorEnv.APIKey)
	pipeline := submission.NewPipeline(stateStore, taskStore, catalog, collector, bus)

	// Setup push notification
	vapidEnv := config.VAPIDEnvFromEnv(env)
	pushSubRepo := pushsubrepo.NewYAMLRepository(store)
	pushSender := pushnotification.NewSender(vapidEnv, pushSubRepo)
	pushNotificationServer := pushnotification.NewServer(vapidEnv, pushSubRepo, pushSender)
	pushDispatcher := pushnotification.NewDispatcher(bus, pushSender)

	srv := server.NewServer(
		env,
		task.NewServer(taskStore, stateStore),
		stage.NewServer(registry, catalog, docsClient),
		submission.NewServer(pipeline, registry),
		diff.NewServer(),
		translate.NewServer(translateService, registry, catalog, docsClient),
		pushNotificationServer,
	)

	// Graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	go pushDispatcher.Start(ctx)

	// The queue watcher redelivers queued submissions; it only applies to
	// local storage, where the queue lives on the watched filesystem.
	if localStore != nil {
		watcher := submission.NewWatcher(pipeline, localStore.BaseDir())
		go func() {
			if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
				slog.Error("queue watcher stopped", "error", err)
			}
		}()
	}

	go func() {
		if err := srv.ListenAndServe(ctx); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down server")

	// Flush any active stage so no in-memory draft is lost on shutdown.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := registry.FlushActive(shutdownCtx); err != nil {
		slog.Error("final flush error", "error", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}
