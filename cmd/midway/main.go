package main

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/midway-labs/midway/internal/compiler"
	"github.com/midway-labs/midway/internal/config"
	"github.com/midway-labs/midway/internal/middleware"
	"github.com/midway-labs/midway/internal/pattern"
	"github.com/midway-labs/midway/internal/server"
	"github.com/midway-labs/midway/internal/storage"
	memstore "github.com/midway-labs/midway/internal/storage/memory"
	sqlstore "github.com/midway-labs/midway/internal/storage/sqlite"
	"github.com/midway-labs/midway/internal/telemetry"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(cfg.Telemetry.Service, logger)
		if err != nil {
			log.Fatalf("Failed to initialize tracer: %v", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
			}
		}()
	}

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to open pattern store: %v", err)
	}

	comp := compiler.New(compiler.Config{
		MaxCacheEntries:   cfg.Compiler.MaxCacheEntries,
		MemoryCeilingMB:   cfg.Compiler.MemoryCeilingMB,
		ReclaimMinEntries: cfg.Compiler.ReclaimMinEntries,
		Pattern: pattern.Config{
			LearnThreshold: cfg.Compiler.LearnThreshold,
			LearnMinLen:    cfg.Compiler.LearnMinLen,
			LearnMaxLen:    cfg.Compiler.LearnMaxLen,
		},
	}, logger)

	if store != nil {
		if err := restorePatterns(comp, store); err != nil {
			logger.Warn("pattern restore failed", slog.String("error", err.Error()))
		}
	}
	if cfg.Compiler.WarmUp {
		comp.WarmUp()
	}

	srv := server.New(cfg.Server.Port, logger, comp)
	registerRoutes(srv, logger)

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	logger.Info("midway started",
		slog.Int("port", cfg.Server.Port),
		slog.String("storage", cfg.Storage.Type),
		slog.Bool("telemetry", cfg.Telemetry.Enabled),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
	}

	if store != nil {
		if err := persistPatterns(shutdownCtx, comp, store); err != nil {
			logger.Error("pattern persist failed", slog.String("error", err.Error()))
		}
		store.Close()
	}

	logger.Info("midway shutdown complete")
}

func openStore(cfg *config.Config) (storage.PatternStore, error) {
	switch cfg.Storage.Type {
	case "sqlite":
		return sqlstore.New(cfg.Storage.SQLite.Path)
	case "memory":
		return memstore.New(), nil
	default:
		return nil, nil
	}
}

func restorePatterns(comp *compiler.Compiler, store storage.PatternStore) error {
	ctx := context.Background()
	learned, err := store.LoadLearned(ctx)
	if err != nil {
		return err
	}
	usage, err := store.LoadUsage(ctx)
	if err != nil {
		return err
	}
	comp.ImportPatterns(learned, usage)
	return nil
}

func persistPatterns(ctx context.Context, comp *compiler.Compiler, store storage.PatternStore) error {
	learned, usage := comp.ExportPatterns()
	if err := store.SaveLearned(ctx, learned); err != nil {
		return err
	}
	return store.SaveUsage(ctx, usage)
}

// registerRoutes wires the stock route groups. Real deployments replace
// this with their own groups; these exist so the binary serves traffic
// out of the box.
func registerRoutes(srv *server.Server, logger *slog.Logger) {
	acceptAny := func(token string) bool { return true }

	api := srv.RouteGroup("/api/v1", []middleware.Unit{
		middleware.CORS(),
		middleware.AuthBearer(acceptAny),
		middleware.ValidateJSON(),
	})
	api.Post("/echo", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.Copy(w, r.Body)
	})

	public := srv.RouteGroup("/public", []middleware.Unit{
		middleware.CORS(),
		middleware.CacheControl(5 * time.Minute),
		middleware.AccessLog(logger),
	})
	public.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})
}
