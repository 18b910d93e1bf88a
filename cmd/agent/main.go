package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"selector-agent/internal/action"
	"selector-agent/internal/browser"
	"selector-agent/internal/config"
	"selector-agent/internal/engine"
	"selector-agent/internal/llm"
	"selector-agent/internal/logging"
	"selector-agent/internal/recovery"
	"selector-agent/internal/selector"
	"selector-agent/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logging:", err)
		os.Exit(1)
	}
	defer log.Sync()

	// run owns the browser lifetime; exiting through it instead of
	// log.Fatal keeps the deferred Close on every failure path.
	if err := run(cfg, log); err != nil {
		log.Error("run failed", zap.Error(err))
		log.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	drv, err := browser.NewController(browser.Options{Headless: cfg.Headless}, log)
	if err != nil {
		return fmt.Errorf("starting browser: %w", err)
	}
	defer drv.Close()

	opts := llm.Options{
		APIKey:      cfg.ModelAPIKey,
		Timeout:     cfg.ModelTimeout,
		MaxTokens:   cfg.ModelMaxTokens,
		Temperature: cfg.ModelTemperature,
	}
	clients := make([]llm.Chatter, 0, len(cfg.ModelEndpoints))
	for i, endpoint := range cfg.ModelEndpoints {
		name := cfg.ModelNames[len(cfg.ModelNames)-1]
		if i < len(cfg.ModelNames) {
			name = cfg.ModelNames[i]
		}
		clients = append(clients, llm.NewClient(endpoint, name, opts))
	}

	eng := engine.New(engine.Deps{
		Driver: drv,
		Classifier: selector.NewClassifier(clients, log,
			cfg.ClassifyBatchSize, cfg.ConcurrentPerModel, cfg.InterBatchDelay),
		Resolver:   selector.NewResolver(clients[0], log, cfg.ResolveBatchSize),
		Store:      selector.NewStore(cfg.CacheDir, log),
		Executor:   action.NewExecutor(drv, log, cfg.StrictPostConditions),
		Recovery:   recovery.NewController(drv, clients[0], log),
		Log:        log,
		MaxRetries: cfg.MaxRetries,
	})

	srv := server.New(eng, drv, cfg.ServerAddr, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
	case sig := <-stop:
		log.Info("shutting down", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Warn("shutdown error", zap.Error(err))
		}
	}
	return nil
}
