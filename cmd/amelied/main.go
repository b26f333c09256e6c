package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/nunotfc/amelie/internal/config"
	"github.com/nunotfc/amelie/internal/convconfig"
	"github.com/nunotfc/amelie/internal/daemon"
	"github.com/nunotfc/amelie/internal/dedup"
	"github.com/nunotfc/amelie/internal/dispatch"
	"github.com/nunotfc/amelie/internal/ledger"
	"github.com/nunotfc/amelie/internal/logging"
	"github.com/nunotfc/amelie/internal/notifications"
	"github.com/nunotfc/amelie/internal/pipeline"
	"github.com/nunotfc/amelie/internal/services/inference"
	"github.com/nunotfc/amelie/internal/services/transport"
)

func main() {
	configPath := flag.String("config", "", "configuration file path")
	flag.Parse()

	if err := run(*configPath); err != nil {
		log.Fatal(err)
	}
}

func run(configPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	pidPath := filepath.Join(cfg.Paths.DataDir, "amelied.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := ledger.Open(cfg)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer store.Close()

	settings, err := convconfig.Open(cfg)
	if err != nil {
		return fmt.Errorf("open conversation settings: %w", err)
	}
	defer settings.Close()

	backend, err := inference.NewClient(inference.Config{
		APIKey:         cfg.Inference.APIKey,
		BaseURL:        cfg.Inference.BaseURL,
		Model:          cfg.Inference.Model,
		TimeoutSeconds: cfg.Inference.TimeoutSeconds,
		CacheSize:      cfg.Inference.CacheSize,
	})
	if err != nil {
		return fmt.Errorf("init inference client: %w", err)
	}

	sender := transport.NewClient(transport.Config{
		BaseURL:        cfg.Transport.BaseURL,
		APIToken:       cfg.Transport.APIToken,
		TimeoutSeconds: cfg.Transport.TimeoutSeconds,
	})

	notifier := notifications.NewService(cfg)
	brk := daemon.NewBreaker(cfg, logger, notifier)
	seen := dedup.New(time.Duration(cfg.Dedup.WindowSeconds) * time.Second)
	dispatcher := dispatch.New(store, sender, logger, cfg.Outbox.MaxDeliveryAttempts)

	manager, err := pipeline.NewManager(cfg, pipeline.Deps{
		Store:      store,
		Settings:   settings,
		Inference:  backend,
		Dispatcher: dispatcher,
		Sender:     sender,
		Breaker:    brk,
		Dedup:      seen,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("init pipeline: %w", err)
	}

	d, err := daemon.New(cfg, daemon.Deps{
		Store:      store,
		Manager:    manager,
		Dispatcher: dispatcher,
		Notifier:   notifier,
		Dedup:      seen,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("amelie daemon shutting down")
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
