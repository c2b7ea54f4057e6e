// Command reconcile recomputes every teacher's cached average rating once and
// exits. It is the manual counterpart of the scheduled reconciler.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Clark-Hu/teacher-ratings/internal/cache"
	"github.com/Clark-Hu/teacher-ratings/internal/config"
	"github.com/Clark-Hu/teacher-ratings/internal/logging"
	"github.com/Clark-Hu/teacher-ratings/internal/repository"
	"github.com/Clark-Hu/teacher-ratings/internal/scheduler"
	"github.com/Clark-Hu/teacher-ratings/internal/service"
	"github.com/Clark-Hu/teacher-ratings/internal/store"
)

func main() {
	timeout := flag.Duration("timeout", 5*time.Minute, "abort the run after this long")
	flag.Parse()

	if err := run(*timeout); err != nil {
		logrus.WithError(err).Error("reconcile failed")
		os.Exit(1)
	}
}

func run(timeout time.Duration) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger := logging.New(cfg.LogLevel, cfg.Environment).WithField("app", "teacher-ratings-reconcile")

	st, err := store.New(ctx, cfg.DBURL, store.Options{
		MaxConns:    2,
		ConnTimeout: time.Duration(cfg.DBConnTimeoutSecs) * time.Second,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer st.Close()

	var teacherCache service.TeacherCache
	if cfg.RedisAddr != "" {
		rc, err := cache.NewRedis(ctx, cache.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      time.Duration(cfg.CacheTTLSecs) * time.Second,
		})
		if err != nil {
			logger.WithError(err).Warn("redis unavailable; cached teachers expire by TTL")
		} else {
			defer rc.Close()
			teacherCache = rc
		}
	}

	stores, tx := service.FromRepository(repository.New(st))
	ratings := service.NewRatingService(stores, tx, teacherCache, nil, logger)

	report, err := scheduler.NewReconcileScheduler(ratings, "", logger).RunOnce(ctx)
	if err != nil {
		return err
	}
	if report.Repaired > 0 {
		logger.WithField("repaired", report.Repaired).Warn("averages were out of date")
	}
	return nil
}
