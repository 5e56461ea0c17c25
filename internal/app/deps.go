package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/youngacademy/platform/internal/admin"
	"github.com/youngacademy/platform/internal/auth"
	"github.com/youngacademy/platform/internal/config"
	"github.com/youngacademy/platform/internal/db"
	"github.com/youngacademy/platform/internal/docstore"
	"github.com/youngacademy/platform/internal/handlers"
	"github.com/youngacademy/platform/internal/logging"
	"github.com/youngacademy/platform/internal/middleware"
	"github.com/youngacademy/platform/internal/portal"
	"github.com/youngacademy/platform/internal/repositories"
	"github.com/youngacademy/platform/internal/storage"
	"github.com/youngacademy/platform/internal/videos"
)

const (
	sessionPruneInterval = time.Hour
	rateLimiterTTL       = 10 * time.Minute
)

// worker is a background loop that runs until its context ends.
type worker struct {
	name string
	run  func(ctx context.Context) error
}

// dependencies is everything serve needs besides the HTTP server itself.
type dependencies struct {
	handlers handlers.Dependencies
	registry *portal.Registry
	workers  []worker
	close    func()
}

// backend is the storage the service runs on: Postgres when a pool is given,
// in-process maps otherwise.
type backend struct {
	documents docstore.Store
	accounts  auth.Directory
	sessions  auth.SessionStore
	workers   []worker
	close     func()
}

func newBackend(pool db.Pool, cfg config.Config) backend {
	if pool == nil {
		documents := docstore.NewMemoryStore()
		sessions := auth.NewMemorySessionStore()
		return backend{
			documents: documents,
			accounts:  auth.NewMemoryDirectory(),
			sessions:  sessions,
			workers: []worker{{name: "session pruner", run: func(ctx context.Context) error {
				return every(ctx, sessionPruneInterval, func(ctx context.Context) error {
					if n := sessions.Prune(time.Now()); n > 0 {
						logging.FromContext(ctx).Info("pruned expired sessions", slog.Int("count", n))
					}
					return nil
				})
			}}},
			close: documents.Close,
		}
	}

	var opts []repositories.PostgresDocumentStoreOption
	if cfg.DatabaseNotify {
		opts = append(opts, repositories.WithChangeNotifications())
	}
	documents := repositories.NewPostgresDocumentStore(pool, opts...)
	sessions := repositories.NewPostgresSessionStore(pool)

	b := backend{
		documents: documents,
		accounts:  repositories.NewPostgresAccountDirectory(pool),
		sessions:  sessions,
		close:     documents.Close,
	}
	b.workers = append(b.workers, worker{name: "session pruner", run: func(ctx context.Context) error {
		return every(ctx, sessionPruneInterval, func(ctx context.Context) error {
			n, err := sessions.Prune(ctx, time.Now())
			if err != nil {
				return err
			}
			if n > 0 {
				logging.FromContext(ctx).Info("pruned expired sessions", slog.Int64("count", n))
			}
			return nil
		})
	}})
	if cfg.DatabaseNotify {
		b.workers = append(b.workers, worker{name: "change listener", run: documents.Listen})
	}
	return b
}

// buildDependencies wires together concrete implementations used by the HTTP handlers.
func buildDependencies(ctx context.Context, pool db.Pool, cfg config.Config) (dependencies, error) {
	store := newBackend(pool, cfg)

	tokens := auth.NewManager([]byte(cfg.TokenSecret), cfg.AccessTTL, cfg.RefreshTTL, store.sessions)
	service := auth.NewService(store.accounts, tokens)

	ytDlp := videos.NewYTDLPProvider(cfg.YTDLPPath, cfg.YTDLPTimeout)
	metadataProvider := videos.NewCachingProvider(ytDlp, cfg.MetadataCacheTTL)

	var thumbnails admin.ThumbnailStore
	if cfg.ObjectStore.Enabled() {
		s3Store, err := storage.NewS3Storage(ctx, cfg.ObjectStore)
		if err != nil {
			store.close()
			return dependencies{}, fmt.Errorf("configure thumbnail storage: %w", err)
		}
		thumbnails = s3Store
	}

	registry := portal.NewRegistry(portal.Deps{
		Store:          store.documents,
		Auth:           service,
		BootstrapEmail: cfg.BootstrapAdminEmail,
		Thumbnails:     thumbnails,
		Metadata:       metadataProvider,
	}, cfg.InstanceIdleTTL, portal.WithCapacity(cfg.MaxInstances))

	limiter := middleware.NewIPRateLimiter(cfg.AuthRateLimit, cfg.AuthRateWindow, cfg.AuthRateLimit, rateLimiterTTL)

	workers := append([]worker{{name: "instance sweeper", run: func(ctx context.Context) error {
		registry.Run(ctx)
		return nil
	}}}, store.workers...)

	return dependencies{
		handlers: handlers.Dependencies{
			Instances:     registry,
			Tokens:        service,
			AuthLimiter:   limiter,
			SecureCookies: cfg.SecureCookies,
		},
		registry: registry,
		workers:  workers,
		close: func() {
			registry.Close()
			store.close()
		},
	}, nil
}

// every calls fn at each interval until ctx ends. Errors are logged and the loop
// continues.
func every(ctx context.Context, interval time.Duration, fn func(context.Context) error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := fn(ctx); err != nil {
				logging.FromContext(ctx).Warn("periodic task failed", slog.Any("error", err))
			}
		}
	}
}
