// Package app wires configuration into the stores, clients and services
// shared by the API server and the scheduler.
package app

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/segyhp/rental-billing/internal/cache"
	"github.com/segyhp/rental-billing/internal/config"
	"github.com/segyhp/rental-billing/internal/gateway"
	"github.com/segyhp/rental-billing/internal/metrics"
	"github.com/segyhp/rental-billing/internal/notify"
	"github.com/segyhp/rental-billing/internal/repository"
	"github.com/segyhp/rental-billing/internal/service"
)

type App struct {
	Config *config.Config
	Logger *zap.Logger

	DB    *sqlx.DB      // nil with the memory store
	Redis *redis.Client // nil when REDIS_URL and REDIS_HOST are empty

	Store    repository.Store
	Metrics  *metrics.Recorder
	Locker   cache.Locker
	Failures cache.FailureTracker

	Settings   *service.SettingsProvider
	Initiator  *service.PaymentInitiator
	Reconciler *service.Reconciler
	Jobs       *service.BillingJobs
	Leases     *service.LeaseService
	Invoices   *service.InvoiceService

	closers []func() error
}

// New builds every dependency from cfg. Callers must Close the result.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	a := &App{
		Config:  cfg,
		Logger:  log,
		Metrics: metrics.New(),
	}

	if err := a.initStore(); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initRedis(ctx); err != nil {
		a.Close()
		return nil, err
	}
	dispatcher, err := a.initDispatcher()
	if err != nil {
		a.Close()
		return nil, err
	}

	var settingsCache cache.SettingsCache = cache.NewMemorySettingsCache()
	if a.Redis != nil {
		settingsCache = cache.NewRedisSettingsCache(a.Redis, cfg.Redis.KeyPrefix, log)
	}

	gw := gateway.NewClient(gateway.Config{
		BaseURL:   cfg.Gateway.BaseURL,
		APIKey:    cfg.Gateway.APIKey,
		SiteID:    cfg.Gateway.SiteID,
		NotifyURL: cfg.Gateway.NotifyURL,
		ReturnURL: cfg.Gateway.ReturnURL,
		Timeout:   cfg.Gateway.Timeout,
	}, gateway.WithObserver(a.Metrics.GatewayRequest))

	a.Settings = service.NewSettingsProvider(a.Store, settingsCache, service.DefaultSettings(cfg), cfg.GetSettingsCacheTTL(), log)
	a.Initiator = service.NewPaymentInitiator(a.Store, gw, a.Settings, a.Metrics, log, cfg.Gateway.Provider)
	a.Reconciler = service.NewReconciler(a.Store, gw, dispatcher, cfg.Gateway.SecretKey, a.Metrics, log)
	a.Jobs = service.NewBillingJobs(a.Store, a.Reconciler, a.Settings, a.Failures, dispatcher, a.Metrics, log, service.JobsConfig{
		Location:          cfg.GetLocation(),
		MaxEntityFailures: cfg.Scheduler.MaxEntityFailures,
		StaleAfter:        cfg.Scheduler.StaleAfter,
		BatchSize:         cfg.Scheduler.BatchSize,
	})
	a.Leases = service.NewLeaseService(a.Store, a.Settings, dispatcher, cfg.GetLocation(), log)
	a.Invoices = service.NewInvoiceService(a.Store, a.Settings, dispatcher, cfg.GetLocation(), log)

	return a, nil
}

func (a *App) initStore() error {
	if a.Config.Storage.Driver == config.StorageMemory {
		a.Logger.Warn("using in-memory storage, data is lost on restart")
		a.Store = repository.NewMemoryStore()
		return nil
	}

	db, err := sqlx.Connect("postgres", a.Config.Database.DSN())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	db.SetMaxOpenConns(a.Config.Database.MaxOpenConns)
	db.SetMaxIdleConns(a.Config.Database.MaxIdleConns)
	db.SetConnMaxLifetime(a.Config.Database.ConnMaxLifetime)

	a.DB = db
	a.Store = repository.NewStore(db)
	a.closers = append(a.closers, db.Close)
	return nil
}

// initRedis falls back to process-local locks and failure counters when no
// Redis is configured. That is only safe with a single scheduler replica.
func (a *App) initRedis(ctx context.Context) error {
	cfg := a.Config.Redis
	if cfg.URL == "" && cfg.Host == "" {
		a.Logger.Warn("redis not configured, using process-local locks")
		a.Locker = cache.NewMemoryLocker()
		a.Failures = cache.NewMemoryFailureTracker()
		return nil
	}

	client, err := cache.NewRedisClient(ctx, cfg)
	if err != nil {
		return err
	}
	a.Redis = client
	a.Locker = cache.NewRedisLocker(client, cfg.KeyPrefix)
	a.Failures = cache.NewRedisFailureTracker(client, cfg.KeyPrefix, a.Config.Scheduler.FailureWindow)
	a.closers = append(a.closers, client.Close)
	return nil
}

func (a *App) initDispatcher() (notify.Dispatcher, error) {
	logDispatcher := notify.NewLogDispatcher(a.Logger)

	switch a.Config.Notify.Driver {
	case config.NotifyRabbitMQ:
		publisher, err := notify.NewRabbitPublisher(a.Config.Notify.RabbitMQURL, a.Config.Notify.Queue)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
		}
		a.closers = append(a.closers, publisher.Close)
		return notify.Multi{logDispatcher, publisher}, nil

	case config.NotifyKafka:
		publisher := notify.NewKafkaPublisher(a.Config.Notify.KafkaBroker, a.Config.Notify.KafkaTopic)
		a.closers = append(a.closers, publisher.Close)
		return notify.Multi{logDispatcher, publisher}, nil

	default:
		return logDispatcher, nil
	}
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.Warn("error during shutdown", zap.Error(err))
		}
	}
	a.closers = nil
}
