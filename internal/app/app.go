// Package app initializes and holds the long-lived services for a crawl
// run, acting as a dependency injection container.
package app

import (
	"context"
	"fmt"

	pubsubv2 "cloud.google.com/go/pubsub/v2"
	"go.uber.org/zap"

	"github.com/trendlens/tiktok-crawler/internal/anomaly"
	"github.com/trendlens/tiktok-crawler/internal/browser"
	"github.com/trendlens/tiktok-crawler/internal/clock/system"
	"github.com/trendlens/tiktok-crawler/internal/config"
	"github.com/trendlens/tiktok-crawler/internal/crawl"
	"github.com/trendlens/tiktok-crawler/internal/id/uuid"
	"github.com/trendlens/tiktok-crawler/internal/logging"
	"github.com/trendlens/tiktok-crawler/internal/metrics"
	"github.com/trendlens/tiktok-crawler/internal/nav"
	"github.com/trendlens/tiktok-crawler/internal/ops"
	pubmemory "github.com/trendlens/tiktok-crawler/internal/publisher/memory"
	"github.com/trendlens/tiktok-crawler/internal/publisher/pubsub"
	repomemory "github.com/trendlens/tiktok-crawler/internal/repo/memory"
	"github.com/trendlens/tiktok-crawler/internal/repo/postgres"
	"github.com/trendlens/tiktok-crawler/internal/scheduler"
	"github.com/trendlens/tiktok-crawler/internal/session"
	storagelocal "github.com/trendlens/tiktok-crawler/internal/storage/local"
	storagememory "github.com/trendlens/tiktok-crawler/internal/storage/memory"
)

// App holds the shared services: logger, repository, blob store, publisher
// and the ops listener. It is built once at startup and torn down by Close.
type App struct {
	Config    config.Config
	Logger    *zap.Logger
	Repo      crawl.Repository
	Blobs     crawl.BlobStore
	Publisher crawl.Publisher
	Clock     crawl.Clock
	IDs       crawl.IDGenerator

	opsServer    *ops.Server
	pubsubClient *pubsubv2.Client
	closeRepo    func()
}

// New builds the App from configuration, failing fast when any critical
// service cannot be initialized.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, err
	}
	metrics.Init()

	a := &App{
		Config: cfg,
		Logger: logger,
		Clock:  system.New(),
		IDs:    uuid.New(),
	}

	switch cfg.Database.Driver {
	case "postgres":
		logger.Info("connecting to postgres")
		repo, err := postgres.New(ctx, postgres.Config{
			DSN:             cfg.Database.DSN,
			MaxConns:        cfg.Database.MaxConns,
			MinConns:        cfg.Database.MinConns,
			MaxConnLifetime: cfg.Database.MaxConnLifetime(),
		})
		if err != nil {
			return nil, fmt.Errorf("initialize postgres repository: %w", err)
		}
		a.Repo = repo
		a.closeRepo = repo.Close
	case "memory":
		logger.Info("using in-memory repository; nothing will be persisted")
		a.Repo = repomemory.New()
	default:
		return nil, fmt.Errorf("unknown database driver: %s", cfg.Database.Driver)
	}

	switch cfg.Storage.Driver {
	case "local":
		store, err := storagelocal.New(storagelocal.Config{BaseDir: cfg.Storage.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("initialize snapshot store: %w", err)
		}
		a.Blobs = store
	case "memory":
		a.Blobs = storagememory.New()
	case "none":
		logger.Info("anomaly snapshots disabled")
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", cfg.Storage.Driver)
	}

	if cfg.PubSub.Enabled {
		logger.Info("connecting to pub/sub", zap.String("topic", cfg.PubSub.TopicName))
		client, err := pubsubv2.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("initialize pubsub client: %w", err)
		}
		a.pubsubClient = client
		a.Publisher = pubsub.New(client.Publisher(cfg.PubSub.TopicName))
	} else {
		a.Publisher = pubmemory.New()
	}

	if cfg.Ops.Enabled {
		a.opsServer = ops.New(cfg.Ops.Port, logger)
		a.opsServer.Start()
	}

	return a, nil
}

// RunnerFactory builds the per-identity session runner: a fresh Chrome
// through the identity's proxy, the login ritual, and a session bound to
// that browser's navigation machine.
func (a *App) RunnerFactory() scheduler.RunnerFactory {
	cfg := a.Config
	detector := anomaly.New(cfg.Anomaly.ChallengeKeywords, cfg.Anomaly.RemovedKeywords)

	return func(ctx context.Context, identity crawl.CrawlerIdentity) (scheduler.Runner, func(), error) {
		driver, err := browser.New(browser.Config{
			Headless:      cfg.Browser.Headless,
			UserAgent:     cfg.Browser.UserAgent,
			Proxy:         identity.Proxy,
			LoginURL:      cfg.Browser.LoginURL,
			ActionTimeout: cfg.Browser.ActionTimeout(),
			LoginTimeout:  cfg.Browser.LoginTimeout(),
			NavQPS:        cfg.Browser.NavQPS,
			ThinkMin:      cfg.Browser.ThinkMin(),
			ThinkMax:      cfg.Browser.ThinkMax(),
		}, a.Logger)
		if err != nil {
			return nil, nil, fmt.Errorf("launch browser: %w", err)
		}

		if !cfg.Browser.SkipLogin {
			if err := driver.Login(ctx, identity.Username, identity.Password); err != nil {
				driver.Close()
				return nil, nil, err
			}
		}

		machine := nav.New(driver, cfg.Browser.BaseURL, cfg.Browser.NavTimeout(), a.Logger)
		s := session.New(machine, detector, a.Repo, a.Blobs, a.Clock, a.IDs, a.Logger, session.Config{
			Mode:       session.Mode(cfg.Crawl.Mode),
			MaxVideos:  cfg.Crawl.MaxVideos,
			MaxScrolls: cfg.Crawl.MaxScrolls,
		})
		return s, driver.Close, nil
	}
}

// Scheduler assembles the run scheduler over the app's services.
func (a *App) Scheduler() *scheduler.Scheduler {
	return scheduler.New(a.Repo, a.RunnerFactory(), a.Publisher, a.Config.Crawl.Topic, a.Clock, a.Logger)
}

// Close gracefully shuts down all services in the container.
func (a *App) Close(ctx context.Context) {
	a.Logger.Info("shutting down services")
	if a.opsServer != nil {
		if err := a.opsServer.Shutdown(ctx); err != nil {
			a.Logger.Warn("ops server shutdown", zap.Error(err))
		}
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.Logger.Warn("pubsub client close", zap.Error(err))
		}
	}
	if a.closeRepo != nil {
		a.closeRepo()
	}
	_ = a.Logger.Sync()
}
