// Package app assembles the learning core from configuration: storage
// driver, locks, content, rewards ladder, event sinks and the HTTP API.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/robfig/cron/v3"

	"github.com/p-n-ai/pai-learn/internal/analytics"
	"github.com/p-n-ai/pai-learn/internal/api"
	"github.com/p-n-ai/pai-learn/internal/assessment"
	"github.com/p-n-ai/pai-learn/internal/content"
	"github.com/p-n-ai/pai-learn/internal/enrollment"
	"github.com/p-n-ai/pai-learn/internal/events"
	"github.com/p-n-ai/pai-learn/internal/platform/cache"
	"github.com/p-n-ai/pai-learn/internal/platform/config"
	"github.com/p-n-ai/pai-learn/internal/platform/database"
	"github.com/p-n-ai/pai-learn/internal/platform/lock"
	"github.com/p-n-ai/pai-learn/internal/platform/txn"
	"github.com/p-n-ai/pai-learn/internal/progress"
	"github.com/p-n-ai/pai-learn/internal/rewards"
)

// App is a fully wired learning core.
type App struct {
	cfg        *config.Config
	db         *database.DB
	cache      *cache.Cache
	hub        *events.Hub
	reconciler *progress.Reconciler
	handler    http.Handler
}

type stores struct {
	enrollments enrollment.Store
	progress    progress.Store
	attempts    assessment.Store
	accounts    rewards.Store
	events      events.Logger
	history     api.History
	tx          txn.Runner
}

// New connects backing services and wires every component. Call Close when
// done.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	catalog, err := content.Load(cfg.Content.Path)
	if err != nil {
		return nil, fmt.Errorf("loading content: %w", err)
	}

	ladder := rewards.DefaultLadder()
	if cfg.Rewards.BadgesPath != "" {
		ladder, err = rewards.LoadLadder(cfg.Rewards.BadgesPath)
		if err != nil {
			return nil, fmt.Errorf("loading badge ladder: %w", err)
		}
	}

	a := &App{cfg: cfg, hub: events.NewHub()}

	st, err := a.openStores(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	var locker lock.Locker = lock.NewMemoryLocker()
	if cfg.Cache.Enabled {
		a.cache, err = cache.New(ctx, cfg.Cache)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connecting cache: %w", err)
		}
		locker = lock.NewRedisLocker(a.cache.Client)
	}

	sink := events.Multi{st.events, a.hub}

	ledger := enrollment.NewLedger(st.enrollments, st.progress, catalog, locker,
		enrollment.WithEvents(sink),
		enrollment.WithTx(st.tx),
	)
	tracker := progress.NewTracker(st.progress, catalog, ledger, progress.WithEvents(sink))
	rw := rewards.NewService(st.accounts, ladder, rewards.WithEvents(sink))
	engine := assessment.NewEngine(st.attempts, catalog, rw, locker,
		assessment.WithEvents(sink),
		assessment.WithTx(st.tx),
	)
	reports := analytics.NewAggregator(catalog, ledger, tracker, rw,
		analytics.WithRecentEnrollments(cfg.Analytics.RecentEnrollments),
		analytics.WithRecentlyViewed(cfg.Analytics.RecentlyViewed),
	)
	a.reconciler = progress.NewReconciler(ledger)

	checks := map[string]api.Check{}
	if a.db != nil {
		checks["database"] = a.db.HealthCheck
	}
	if a.cache != nil {
		checks["cache"] = a.cache.HealthCheck
	}

	a.handler = api.NewServer(api.Deps{
		Ledger:   ledger,
		Tracker:  tracker,
		Assessor: engine,
		Rewards:  rw,
		Reports:  reports,
		Events:   a.hub,
		History:  st.history,
		Auth:     api.NewAuthenticator(cfg.Auth.JWTSecret),
		Checks:   checks,
	}).Handler()

	return a, nil
}

func (a *App) openStores(ctx context.Context) (stores, error) {
	if a.cfg.Storage.Driver == config.DriverMemory {
		history := events.NewMemoryLogger()
		return stores{
			enrollments: enrollment.NewMemoryStore(),
			progress:    progress.NewMemoryStore(),
			attempts:    assessment.NewMemoryStore(),
			accounts:    rewards.NewMemoryStore(),
			events:      history,
			history:     history,
			tx:          txn.Memory{},
		}, nil
	}

	db, err := database.New(ctx, a.cfg.Database)
	if err != nil {
		return stores{}, fmt.Errorf("connecting database: %w", err)
	}
	a.db = db

	if a.cfg.Database.Migrate {
		if err := database.Migrate(ctx, db.Pool); err != nil {
			return stores{}, fmt.Errorf("migrating database: %w", err)
		}
	}

	st := stores{tx: txn.NewPostgres(db.Pool)}
	if st.enrollments, err = enrollment.NewPostgresStore(db.Pool); err != nil {
		return stores{}, err
	}
	if st.progress, err = progress.NewPostgresStore(db.Pool); err != nil {
		return stores{}, err
	}
	if st.attempts, err = assessment.NewPostgresStore(db.Pool); err != nil {
		return stores{}, err
	}
	if st.accounts, err = rewards.NewPostgresStore(db.Pool); err != nil {
		return stores{}, err
	}
	history := events.NewPostgresLogger(db.Pool)
	st.events = history
	st.history = history
	return st, nil
}

// Handler is the HTTP entry point.
func (a *App) Handler() http.Handler {
	return a.handler
}

// StartReconciler schedules the progress reconciler. It returns nil when
// no schedule is configured.
func (a *App) StartReconciler() (*cron.Cron, error) {
	if a.cfg.Reconcile.Schedule == "" {
		return nil, nil
	}
	c, err := a.reconciler.Schedule(a.cfg.Reconcile.Schedule)
	if err != nil {
		return nil, fmt.Errorf("scheduling reconciler: %w", err)
	}
	slog.Info("reconciler scheduled", "schedule", a.cfg.Reconcile.Schedule)
	return c, nil
}

// Close ends live event streams and releases backing connections.
func (a *App) Close() {
	a.hub.Close()
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			slog.Warn("closing cache", "error", err)
		}
	}
	if a.db != nil {
		a.db.Close()
	}
}
