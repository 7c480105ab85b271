package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/snapper"
	"github.com/vietddude/snapper/internal/config"
	"github.com/vietddude/snapper/snapshot"
	"github.com/vietddude/snapper/storage/file"
	"github.com/vietddude/snapper/storage/memory"
	"github.com/vietddude/snapper/storage/postgres"
	redisstore "github.com/vietddude/snapper/storage/redis"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	items := flag.Int("items", 100, "Number of demo items to process")
	workDelay := flag.Duration("work-delay", 50*time.Millisecond, "Simulated per-item work duration")
	isDebug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	// Load .env if present
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// Fall back to default logger for config load errors
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	slogLevel := slog.LevelInfo
	if *isDebug || cfg.Logging.Level == "debug" {
		slogLevel = slog.LevelDebug
	}

	stylelog.InitDefault(
		&tint.Options{
			Level:      slogLevel,
			TimeFormat: time.RFC3339,
		})
	slog.Info("Logger initialized", "level", slogLevel.String())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, *items, *workDelay); err != nil {
		slog.Error("Run failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.AppConfig, items int, workDelay time.Duration) error {
	store, cleanup, err := buildStorage(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer cleanup()

	fn := func(ctx context.Context, item int) (string, error) {
		// Simulated expensive per-item work.
		select {
		case <-time.After(workDelay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
		sum := sha256.Sum256(fmt.Appendf(nil, "item-%d", item))
		return hex.EncodeToString(sum[:]), nil
	}

	s, err := snapper.New(store, fn, snapper.Config{
		BatchSize:              cfg.Batch.Size,
		MaxWait:                time.Duration(cfg.Batch.MaxWait),
		SkipErrors:             cfg.Policy.SkipErrors,
		MaxConsecutiveFailures: cfg.Policy.MaxConsecutiveFailures,
	})
	if err != nil {
		return err
	}
	defer s.Close()

	inputs := make([]int, items)
	for i := range inputs {
		inputs[i] = i
	}

	started := time.Now()
	if err := s.Start(ctx, slices.Values(inputs)); err != nil {
		return err
	}
	slog.Info("Processing complete", "items", items, "elapsed", time.Since(started))

	results, err := s.Load(ctx, slices.Values(inputs))
	if err != nil {
		return err
	}
	slog.Info("Loaded results", "count", len(results))

	metrics, err := s.LoadMetrics(ctx)
	if err != nil {
		return err
	}
	fmt.Println(snapshot.BuildReport(metrics).Markdown())
	return nil
}

func buildStorage(
	ctx context.Context,
	cfg config.StorageConfig,
) (snapshot.Storage[int, string], func(), error) {
	noop := func() {}

	switch cfg.Backend {
	case "file":
		store, err := file.New[int, string](cfg.Path)
		if err != nil {
			return nil, noop, err
		}
		return store, noop, nil
	case "memory":
		slog.Warn("Memory backend selected: progress will not survive restarts")
		return memory.New[int, string](), noop, nil
	case "postgres":
		store, err := postgres.New[int, string](ctx, cfg.Postgres)
		if err != nil {
			return nil, noop, err
		}
		return store, func() { _ = store.Close() }, nil
	case "redis":
		store, err := redisstore.New[int, string](cfg.Redis)
		if err != nil {
			return nil, noop, err
		}
		return store, func() { _ = store.Close() }, nil
	default:
		return nil, noop, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
