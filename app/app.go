// Package app assembles the services shared by the HTTP server and the CLI commands.
package app

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/cppla/slimcircle/alignment"
	"github.com/cppla/slimcircle/calljobs"
	"github.com/cppla/slimcircle/config"
	"github.com/cppla/slimcircle/notifications"
	"github.com/cppla/slimcircle/observability"
	"github.com/cppla/slimcircle/utils"
)

// App holds the wired services.
type App struct {
	Config        config.AppConfig
	DB            *gorm.DB
	Engine        *alignment.Engine
	Scheduler     *calljobs.Scheduler
	Jobs          *calljobs.GormJobStore
	Notifications *notifications.Store
	Metrics       *observability.Metrics
	Registry      *prometheus.Registry
	Cache         *utils.RedisCache
}

// New builds every service over db. A nil redis client disables the squad cache and the sweep lock.
func New(cfg config.AppConfig, db *gorm.DB, rc *redis.Client) (*App, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)

	a := &App{
		Config:        cfg,
		DB:            db,
		Jobs:          calljobs.NewGormJobStore(db),
		Notifications: notifications.NewStore(db),
		Metrics:       metrics,
		Registry:      reg,
		Cache:         utils.NewRedisCache(rc),
	}

	store := alignment.NewGormStore(db)
	behaviors, err := alignment.Behaviors(cfg.AlignmentBehaviors, store)
	if err != nil {
		return nil, fmt.Errorf("alignment behaviors: %w", err)
	}
	engineOpts := alignment.Options{
		Location: utils.LoadLocation(cfg.AlignmentTimezone),
		Logger:   utils.Logger,
		Metrics:  metrics,
	}
	if rc != nil {
		engineOpts.Cache = a.Cache
	}
	a.Engine, err = alignment.NewEngine(store, behaviors, engineOpts)
	if err != nil {
		return nil, err
	}

	schedOpts := calljobs.Options{
		BatchSize:   cfg.CallJobsBatchSize,
		MaxAttempts: cfg.CallJobsMaxAttempts,
		BaseURL:     cfg.AppBaseURL,
		Logger:      utils.Logger,
		Metrics:     metrics,
	}
	if rc != nil {
		schedOpts.Locker = a.Cache
	}
	var mailer calljobs.Mailer
	if m := utils.NewMailer(cfg); m.Configured() {
		mailer = m
	}
	a.Scheduler, err = calljobs.NewScheduler(a.Jobs, calljobs.NewGormSubjects(db), a.Notifications, mailer, schedOpts)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// NewRunner registers the in-process sweep on the configured cron schedule.
func (a *App) NewRunner() (*calljobs.Runner, error) {
	return calljobs.NewRunner(a.Scheduler, a.Config.CallJobsSweepCron)
}

// Close waits for background cache invalidations started by the engine.
func (a *App) Close() {
	a.Engine.Wait()
}
