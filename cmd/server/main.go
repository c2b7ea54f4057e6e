package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Clark-Hu/teacher-ratings/internal/cache"
	"github.com/Clark-Hu/teacher-ratings/internal/config"
	httpserver "github.com/Clark-Hu/teacher-ratings/internal/http"
	"github.com/Clark-Hu/teacher-ratings/internal/logging"
	"github.com/Clark-Hu/teacher-ratings/internal/repository"
	"github.com/Clark-Hu/teacher-ratings/internal/scheduler"
	"github.com/Clark-Hu/teacher-ratings/internal/service"
	"github.com/Clark-Hu/teacher-ratings/internal/store"
	"github.com/Clark-Hu/teacher-ratings/internal/userdir"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config error: %v", err)
	}

	logger := logging.New(cfg.LogLevel, cfg.Environment).WithField("app", "teacher-ratings")

	dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	st, err := store.New(dbCtx, cfg.DBURL, store.Options{
		MaxConns:               int32(cfg.DBMaxConns),
		MinConns:               int32(cfg.DBMinConns),
		MaxConnIdleTime:        time.Duration(cfg.DBMaxIdleSecs) * time.Second,
		MaxConnLifetime:        time.Duration(cfg.DBMaxLifeSecs) * time.Second,
		ConnTimeout:            time.Duration(cfg.DBConnTimeoutSecs) * time.Second,
		StatementCacheCapacity: cfg.DBStatementCache,
		Logger:                 logger,
	})
	if err != nil {
		logger.Fatalf("connect database: %v", err)
	}
	defer st.Close()

	if cfg.MigrationsDir != "" {
		if err := store.ApplyMigrations(dbCtx, st.Pool(), cfg.MigrationsDir); err != nil {
			logger.Fatalf("apply migrations: %v", err)
		}
		logger.WithField("dir", cfg.MigrationsDir).Info("migrations applied")
	}

	health := healthChecks{st}

	var teacherCache service.TeacherCache
	if cfg.RedisAddr != "" {
		rc, err := cache.NewRedis(ctx, cache.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      time.Duration(cfg.CacheTTLSecs) * time.Second,
		})
		if err != nil {
			logger.Fatalf("connect redis: %v", err)
		}
		defer rc.Close()
		teacherCache = rc
		health = append(health, rc)
		logger.WithField("addr", cfg.RedisAddr).Info("teacher cache enabled")
	}

	var directory userdir.Client
	if cfg.UserDirURL != "" {
		dc, err := userdir.NewHTTPClient(cfg.UserDirURL, cfg.UserDirAPIKey, time.Duration(cfg.UserDirTimeoutSecs)*time.Second, logger)
		if err != nil {
			logger.Fatalf("init user directory client: %v", err)
		}
		directory = dc
	}

	stores, tx := service.FromRepository(repository.New(st))
	teachers := service.NewTeacherService(stores.Teachers, stores.Ratings, teacherCache, logger)
	ratings := service.NewRatingService(stores, tx, teacherCache, directory, logger)
	server := httpserver.New(cfg, health, teachers, ratings, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	if cfg.ReconcileCron != "" {
		reconciler := scheduler.NewReconcileScheduler(ratings, cfg.ReconcileCron, logger)
		if err := reconciler.Start(); err != nil {
			logger.Fatalf("start reconciler: %v", err)
		}
		g.Go(func() error {
			<-gctx.Done()
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer stopCancel()
			reconciler.Stop(stopCtx)
			return nil
		})
	}

	logger.WithField("port", cfg.Port).Info("server starting")
	if err := g.Wait(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Error("server error")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("graceful shutdown error")
	}
	logger.Info("server stopped")
}

type healthChecks []httpserver.HealthChecker

func (h healthChecks) HealthCheck(ctx context.Context) error {
	for _, check := range h {
		if err := check.HealthCheck(ctx); err != nil {
			return err
		}
	}
	return nil
}
