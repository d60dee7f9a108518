package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pksynth/knowledge-synthesizer/internal/config"
	"github.com/pksynth/knowledge-synthesizer/internal/logger"
	"github.com/pksynth/knowledge-synthesizer/internal/watcher"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	log = log.With("component", "file-watcher")

	ledger, err := watcher.NewLedger(cfg.Watcher.LedgerPath)
	if err != nil {
		log.Fatal("failed to open ledger", "path", cfg.Watcher.LedgerPath, "error", err)
	}
	defer ledger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if counts, err := ledger.Counts(ctx); err == nil {
		log.Info("ledger opened", "processed", counts[watcher.StatusProcessed], "failed", counts[watcher.StatusFailed])
	}

	proc := watcher.NewProcessor(watcher.ProcessorOptions{
		BackendURL:    cfg.Watcher.BackendURL,
		ProcessedPath: cfg.Watcher.ProcessedPath,
		Timeout:       cfg.Watcher.ForwardTimeout,
	}, ledger, log)

	w, err := watcher.New(watcher.Options{
		Dir:           cfg.Watcher.WatchPath,
		Debounce:      cfg.Watcher.Debounce,
		SweepExisting: cfg.Watcher.SweepExisting,
	}, proc.Process, log)
	if err != nil {
		log.Fatal("failed to start watcher", "dir", cfg.Watcher.WatchPath, "error", err)
	}
	defer w.Close()

	log.Info("forwarding new files", "backend", cfg.Watcher.BackendURL, "processed_dir", cfg.Watcher.ProcessedPath)
	if err := w.Run(ctx); err != nil {
		log.Error("watcher stopped", "error", err)
	}
	log.Info("watcher exited")
}
