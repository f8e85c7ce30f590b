package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/p-n-ai/pai-planner/internal/api"
	"github.com/p-n-ai/pai-planner/internal/curriculum"
	"github.com/p-n-ai/pai-planner/internal/notify"
	"github.com/p-n-ai/pai-planner/internal/planner"
	"github.com/p-n-ai/pai-planner/internal/platform/cache"
	"github.com/p-n-ai/pai-planner/internal/platform/config"
	"github.com/p-n-ai/pai-planner/internal/platform/database"
	"github.com/p-n-ai/pai-planner/internal/platform/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger, logCloser := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	defer logCloser.Close()
	slog.SetDefault(logger)

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      a.handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr, "store", cfg.Store, "cache", cfg.Cache.Enabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

// app holds the wired components and the resources to release on exit.
type app struct {
	handler http.Handler
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}
	fail := func(err error) (*app, error) {
		a.Close()
		return nil, err
	}

	if _, err := os.Stat(cfg.CurriculumPath); err != nil {
		return fail(fmt.Errorf("curriculum path: %w", err))
	}
	loader, err := curriculum.NewLoader(cfg.CurriculumPath)
	if err != nil {
		return fail(err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	hub := notify.NewHub()
	events := planner.MultiEventLogger{hub}
	var checks []api.Check

	var store planner.Store
	switch cfg.Store {
	case "postgres":
		db, err := database.New(ctx, cfg.Database.URL, database.PoolConfig{
			MaxConns: cfg.Database.MaxConns,
			MinConns: cfg.Database.MinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("connecting to database: %w", err))
		}
		a.closers = append(a.closers, db.Close)

		if cfg.Database.Migrate {
			if err := db.Migrate(ctx); err != nil {
				return fail(fmt.Errorf("migrating database: %w", err))
			}
		}

		pg, err := planner.NewPostgresStore(db.Pool)
		if err != nil {
			return fail(err)
		}
		store = pg
		events = append(events, planner.NewPostgresEventLogger(db.Pool))
		slog.Info("using postgres store")
	default:
		store = planner.NewMemoryStore()
		slog.Info("using in-memory store")
	}
	checks = append(checks, api.Check{Name: "store", Func: store.HealthCheck})

	var planCache planner.PlanCache = planner.NopPlanCache{}
	if cfg.Cache.Enabled {
		c, err := cache.New(ctx, cfg.Cache.URL, cfg.Cache.Prefix)
		if err != nil {
			return fail(fmt.Errorf("connecting to cache: %w", err))
		}
		a.closers = append(a.closers, func() {
			if err := c.Close(); err != nil {
				slog.Warn("closing cache", "error", err)
			}
		})
		planCache = planner.NewRedisPlanCache(c, time.Duration(cfg.Planner.CacheTTL)*time.Second)
		checks = append(checks, api.Check{Name: "cache", Func: c.HealthCheck})
	}

	studyDays, err := planner.ParseWeekdays(cfg.Planner.StudyDays)
	if err != nil {
		return fail(fmt.Errorf("LEARN_PLANNER_STUDY_DAYS: %w", err))
	}

	svc, err := planner.New(planner.Config{
		Store:              store,
		Events:             events,
		Cache:              planCache,
		Metrics:            planner.NewMetrics(registry),
		DefaultStudyDays:   studyDays,
		DefaultHoursPerDay: cfg.Planner.HoursPerDay,
	})
	if err != nil {
		return fail(err)
	}
	if err := svc.SyncCurriculum(ctx, loader.Courses(), loader.AllTopics()); err != nil {
		return fail(err)
	}

	a.handler = api.New(api.Config{
		Planner:          svc,
		Hub:              hub,
		Checks:           checks,
		Registry:         registry,
		CommitsPerMinute: cfg.RateLimit.CommitsPerMinute,
	}).Handler()
	return a, nil
}
