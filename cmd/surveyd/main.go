// surveyd serves the conversational survey over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"

	"github.com/tbxark/surveyagent/agent"
	"github.com/tbxark/surveyagent/config"
	"github.com/tbxark/surveyagent/dialogue"
	"github.com/tbxark/surveyagent/httpapi"
	"github.com/tbxark/surveyagent/session"
	"github.com/tbxark/surveyagent/store"
)

func main() {
	confPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*confPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	recordStore, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	catalog, err := store.LoadCatalog(ctx, recordStore, cfg.LoadTimeout.Std(), logger)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		BaseURL: cfg.BaseURL,
	})
	if err != nil {
		return fmt.Errorf("create chat model: %w", err)
	}

	events := agent.NewEventLogger(logger, cfg.LogLatency, cfg.LogFailures)
	machine, err := agent.NewModelMachine(catalog, cm, cfg.ToolExtraction,
		[]dialogue.GeneratorOption{dialogue.WithDialogueLang(cfg.Language)},
		agent.WithEventLogger(events),
		agent.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("create state machine: %w", err)
	}

	persister := session.NewPersister(recordStore, session.PersisterOptions{
		QueueSize: cfg.PersistQueueSize,
		Timeout:   cfg.PersistTimeout.Std(),
		Events:    events,
		Logger:    logger,
	})
	defer persister.Close()
	go func() {
		for perr := range persister.Errors() {
			logger.Debug("Persistence failure observed", "error", perr.Err)
		}
	}()

	registry, err := session.NewRegistry(machine, persister, session.Options{
		TurnTimeout:       cfg.TurnTimeout.Std(),
		MaxInternalErrors: cfg.MaxInternalErrors,
		MaxHistory:        cfg.MaxHistory,
		HistoryTolerance:  cfg.HistoryTolerance,
	}, session.WithEvents(events), session.WithRegistryLogger(logger))
	if err != nil {
		return fmt.Errorf("create registry: %w", err)
	}

	sweeper, err := session.NewSweeper(registry, cfg.SweepInterval.Std(), cfg.SessionTimeout.Std(), logger)
	if err != nil {
		return err
	}
	sweeper.Start()
	defer func() {
		if err := sweeper.Stop(); err != nil {
			logger.Error("Failed to stop sweeper", "error", err)
		}
	}()

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      httpapi.NewHandler(registry, cfg.SessionTimeout.Std(), logger).Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.TurnTimeout.Std() + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server listening", "addr", srv.Addr, "fields", catalog.Schema.Len())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}
	stop()
	logger.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	// Sessions still open at shutdown are saved like expired ones.
	report := registry.Sweep(shutdownCtx, time.Nanosecond)
	logger.Info("Server stopped", "sessions_saved", len(report.Expired))
	return nil
}

func openStore(cfg *config.Config) (store.RecordStore, func(), error) {
	switch cfg.Store.Driver {
	case "csv":
		s, err := store.NewCSVStore(cfg.Store.Path, cfg.KeyField)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	case "sqlite":
		s, err := store.NewSQLiteStore(cfg.Store.Path, cfg.KeyField)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {
			if err := s.Close(); err != nil {
				slog.Error("Failed to close store", "error", err)
			}
		}, nil
	default:
		return store.NewMemoryStore(store.FallbackSchema(), store.DefaultContext), func() {}, nil
	}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
