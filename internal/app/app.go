package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/youngacademy/platform/internal/config"
	"github.com/youngacademy/platform/internal/db"
	"github.com/youngacademy/platform/internal/handlers"
	"github.com/youngacademy/platform/internal/httpserver"
	"github.com/youngacademy/platform/internal/logging"
	"github.com/youngacademy/platform/internal/middleware"
)

// Run bootstraps the Young Academy service. The first argument selects the
// command: serve, migrate or seed.
func Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("expected command: serve, migrate, or seed")
	}

	switch args[0] {
	case "serve":
		return serve(ctx)
	case "migrate":
		return runMigrations(ctx, args[1:])
	case "seed":
		return runSeed(ctx, args[1:])
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: true,
		Level:     parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)
	ctx = logging.WithLogger(ctx, logger)

	var pool db.Pool
	if cfg.DatabaseURL != "" {
		pgPool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pgPool.Close()
		pool = pgPool
	} else {
		logger.Warn("no database configured, using in-memory stores")
	}

	deps, err := buildDependencies(ctx, pool, cfg)
	if err != nil {
		return err
	}
	defer deps.close()

	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()
	for _, w := range deps.workers {
		go func() {
			if err := w.run(workerCtx); err != nil {
				logger.Error("background worker stopped", "worker", w.name, "error", err)
			}
		}()
	}

	mux := http.NewServeMux()
	handlers.RegisterRoutes(mux, deps.handlers)

	handler := middleware.RequestLogger(logger)(middleware.RequireAPIKey(cfg.APIKey)(mux))

	srv := httpserver.New(cfg.AppPort, handler)
	srv.OnShutdown(deps.registry.Close)

	logger.Info("starting http server", "port", cfg.AppPort, "project", cfg.ProjectID)

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- srv.Start()
	}()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server")
	case sig := <-signalCh:
		logger.Info("received signal, shutting down", "signal", sig.String())
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	return httpserver.Stop(srv)
}

func parseLevel(name string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func runMigrations(ctx context.Context, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	command := "up"
	if len(args) > 0 {
		command = args[0]
	}

	migrationDir, err := absPath(cfg.MigrationDir)
	if err != nil {
		return err
	}
	migrations, err := db.LoadMigrations(migrationDir)
	if err != nil {
		return err
	}

	pool, err := connectForMaintenance(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	switch command {
	case "status":
		states, err := db.MigrationStatus(ctx, conn, migrations)
		if err != nil {
			return err
		}
		for _, state := range states {
			mark := " "
			if state.Applied {
				mark = "x"
			}
			fmt.Printf("[%s] %s\n", mark, state.Name)
		}
		return nil
	case "up", "":
		applied, err := db.Migrate(ctx, conn, migrations)
		for _, name := range applied {
			fmt.Printf("applied migration %s\n", name)
		}
		if err != nil {
			return err
		}
		if len(applied) == 0 {
			fmt.Println("no migrations to apply")
		}
		return nil
	case "down":
		return errors.New("down migrations are not supported")
	default:
		return fmt.Errorf("unknown migrate command %q", command)
	}
}

func runSeed(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("expected seed name (e.g. dev)")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	seedDir, err := absPath(cfg.SeedDir)
	if err != nil {
		return err
	}

	seedName := args[0]
	if !strings.HasSuffix(seedName, ".sql") {
		seedName = fmt.Sprintf("%s_seed.sql", seedName)
	}

	contents, err := os.ReadFile(filepath.Join(seedDir, seedName))
	if err != nil {
		return fmt.Errorf("read seed %s: %w", seedName, err)
	}

	pool, err := connectForMaintenance(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, string(contents)); err != nil {
		return fmt.Errorf("apply seed %s: %w", seedName, err)
	}

	fmt.Printf("applied seed %s\n", seedName)
	return nil
}

func absPath(dir string) (string, error) {
	if filepath.IsAbs(dir) {
		return dir, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("determine working directory: %w", err)
	}
	return filepath.Join(wd, dir), nil
}

func connectForMaintenance(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("YA_DATABASE_URL is required for migrate and seed")
	}
	return db.Connect(ctx, cfg.DatabaseURL)
}
