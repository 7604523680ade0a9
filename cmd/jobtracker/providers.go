package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"jobtracker/internal/api"
	"jobtracker/internal/auth"
	"jobtracker/internal/backend"
	"jobtracker/internal/cache"
	rediscache "jobtracker/internal/cache/redis"
	"jobtracker/internal/config"
	"jobtracker/internal/database"
	"jobtracker/internal/database/migrations"
	"jobtracker/internal/database/schema"
	"jobtracker/internal/events"
	"jobtracker/internal/profile"
	chstore "jobtracker/internal/repository/clickhouse"
	"jobtracker/internal/repository/sqlite"
	"jobtracker/internal/telemetry"
)

// changeFeed is carried by both feed bindings: writers notify through it and
// job stores subscribe to it.
type changeFeed interface {
	backend.ChangeFeed
	backend.Notifier
}

// dataStore is a data store binding that also holds accounts.
type dataStore interface {
	backend.DataStore
	auth.UserStore
}

func appOptions() fx.Option {
	return fx.Options(
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.Named("fx")}
		}),
		fx.Provide(
			config.LoadConfig,
			newLogger,
			newChangeFeed,
			newDataStore,
			newCache,
			newProfiles,
			newAuth,
			newClient,
			newAPI,
			newHTTPServer,
		),
		fx.Invoke(
			registerTelemetry,
			func(*http.Server) {},
		),
	)
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func registerTelemetry(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) {
	var shutdown telemetry.Shutdown
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			var err error
			shutdown, err = telemetry.Setup(ctx, telemetry.Options{
				ServiceName:  cfg.ServiceName,
				CollectorURL: cfg.OTELCollectorURL,
			}, logger)
			return err
		},
		OnStop: func(ctx context.Context) error {
			if shutdown == nil {
				return nil
			}
			return shutdown(ctx)
		},
	})
}

func newChangeFeed(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (changeFeed, error) {
	if cfg.ChangeFeed != config.FeedNATS {
		logger.Info("Using in-process change feed")
		return events.NewLocal(), nil
	}

	conn, err := events.Connect(events.ConnOptions{
		URL:     cfg.NATSURL,
		Name:    cfg.ServiceName,
		Timeout: cfg.NATSConnTimeout,
	})
	if err != nil {
		return nil, err
	}
	feed := events.NewFeed(logger, conn)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			feed.Close()
			return nil
		},
	})
	logger.Info("Using NATS change feed", zap.String("url", cfg.NATSURL))
	return feed, nil
}

func newDataStore(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger, feed changeFeed) (dataStore, error) {
	if cfg.DataStore == config.StoreClickHouse {
		return newClickHouseStore(lc, cfg, logger, feed)
	}

	if cfg.SQLitePath != sqlite.MemoryPath {
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}
	store, err := sqlite.Open(cfg.SQLitePath, sqlite.WithLogger(logger), sqlite.WithNotifier(feed))
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return store.Close() },
	})
	logger.Info("Using SQLite data store", zap.String("path", cfg.SQLitePath))
	return store, nil
}

func newClickHouseStore(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger, feed changeFeed) (dataStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.New(ctx, database.Options{
		DSN:             cfg.ClickHouseDSN,
		MaxOpenConns:    cfg.ClickHouseMaxOpenConns,
		MaxIdleConns:    cfg.ClickHouseMaxIdleConns,
		ConnMaxLifetime: cfg.ClickHouseConnMaxLife,
		Username:        cfg.ClickHouseUsername,
		Password:        cfg.ClickHousePassword,
		Database:        cfg.ClickHouseDatabase,
	}, logger)
	if err != nil {
		return nil, err
	}

	n, err := schema.NewMigrator(db.Conn(), logger).Up(ctx, migrations.All())
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	if n > 0 {
		logger.Info("Applied migrations", zap.Int("count", n))
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return db.Close() },
	})
	return chstore.New(db.Conn(), logger, chstore.WithNotifier(feed)), nil
}

func newCache(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (cache.Cache, error) {
	opts := cache.DefaultOptions()
	opts.DefaultTTL = cfg.CacheTTL
	opts.RedisAddr = cfg.RedisAddr
	opts.RedisPassword = cfg.RedisPassword
	opts.RedisDB = cfg.RedisDB

	var c cache.Cache
	if cfg.RedisAddr == "" {
		logger.Info("Using in-memory cache")
		c = cache.NewMemory(opts)
	} else {
		rc := rediscache.New(opts)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rc.Ping(ctx); err != nil {
			_ = rc.Close()
			return nil, fmt.Errorf("connect to redis %s: %w", cfg.RedisAddr, err)
		}
		logger.Info("Using Redis cache", zap.String("addr", cfg.RedisAddr))
		c = rc
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return c.Close() },
	})
	return c, nil
}

func newProfiles(cfg *config.Config, data dataStore, c cache.Cache, logger *zap.Logger) *profile.Service {
	return profile.NewService(data, c, cfg.CacheTTL, logger)
}

func newAuth(cfg *config.Config, data dataStore, profiles *profile.Service, c cache.Cache, logger *zap.Logger) *auth.Service {
	return auth.New(data, profiles, c, logger, auth.WithSessionTTL(cfg.SessionTTL))
}

func newClient(a *auth.Service, data dataStore, feed changeFeed) (*backend.Client, error) {
	return backend.NewClient(a, data, feed)
}

func newAPI(lc fx.Lifecycle, client *backend.Client, profiles *profile.Service, logger *zap.Logger) *api.Server {
	server := api.New(client, profiles, logger)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			server.Close()
			return nil
		},
	})
	return server
}

func newHTTPServer(lc fx.Lifecycle, cfg *config.Config, server *api.Server, logger *zap.Logger) *http.Server {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", srv.Addr, err)
			}
			logger.Info("HTTP server listening", zap.String("addr", ln.Addr().String()))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("HTTP server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
	return srv
}
