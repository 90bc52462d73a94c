package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v9"
	"github.com/sirupsen/logrus"

	"household_scheduler/internal/app"
	"household_scheduler/internal/domain/bill"
	"household_scheduler/internal/domain/push"
	"household_scheduler/internal/domain/reminder"
	"household_scheduler/internal/infra/config"
	idb "household_scheduler/internal/infra/database"
	"household_scheduler/internal/infra/httpapi"
	"household_scheduler/internal/infra/lock"
	"household_scheduler/internal/infra/logger"
	"household_scheduler/internal/infra/memory"
	"household_scheduler/internal/infra/scheduler"
	"household_scheduler/internal/infra/telegram"
	"household_scheduler/internal/infra/webpush"
)

// runtime holds the wired components shared by the serve and scan commands.
type runtime struct {
	cfg    *config.AppConfig
	logger *logrus.Entry

	db    *sql.DB
	redis *redis.Client

	reminderRepo reminder.Repository
	billRepo     bill.Repository
	subRepo      push.Repository

	dispatcher *app.NotificationDispatcher
	scheduler  *scheduler.ScanScheduler
}

func buildRuntime(ctx context.Context, cfg *config.AppConfig, migrate bool) (*runtime, error) {
	if !cfg.PushEnabled() {
		return nil, errors.New("VAPID_PUBLIC_KEY and VAPID_PRIVATE_KEY are required; generate them with `scheduler vapid-keys`")
	}

	rt := &runtime{cfg: cfg, logger: logger.Base()}
	log := logger.Component("main")

	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		db, err := idb.NewPostgresConnection(ctx, cfg.DatabaseURL, poolConfig(cfg))
		if err != nil {
			return nil, fmt.Errorf("could not connect to database: %w", err)
		}
		rt.db = db
		log.Info("Database connection established successfully.")
		if migrate {
			if err := idb.Migrate(ctx, db, logger.Component("migrate")); err != nil {
				rt.Close()
				return nil, err
			}
		}
		rt.reminderRepo = idb.NewPostgresReminderRepository(db)
		rt.billRepo = idb.NewPostgresBillRepository(db)
		rt.subRepo = idb.NewPostgresSubscriptionRepository(db)
	case config.StoreDriverMemory:
		store := memory.NewStore()
		rt.reminderRepo = store.Reminders()
		rt.billRepo = store.Bills()
		rt.subRepo = store.Subscriptions()
		log.Warn("Using in-memory store; data is lost on exit.")
	}

	transport := webpush.NewTransport(webpush.Config{
		VAPIDPublicKey:  cfg.VAPIDPublicKey,
		VAPIDPrivateKey: cfg.VAPIDPrivateKey,
		Subscriber:      cfg.VAPIDSubject,
		TTL:             cfg.PushTTLSeconds,
	}, nil)
	rt.dispatcher = app.NewNotificationDispatcher(rt.subRepo, transport, rt.logger, cfg.DeliveryTimeout, cfg.MaxConcurrentDeliveries)
	scanner := app.NewDueItemScanner(rt.reminderRepo, rt.dispatcher, rt.logger, cfg.MaxConcurrentDeliveries)

	var opts []scheduler.Option
	if cfg.RedisURL != "" {
		client, err := lock.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.redis = client
		opts = append(opts, scheduler.WithLease(lock.NewRedisLease(client, cfg.ScanLeaseKey, cfg.ScanLeaseTTL, rt.logger)))
		log.WithField("key", cfg.ScanLeaseKey).Info("Scan lease enabled.")
	}
	if cfg.AlertsEnabled() {
		bot, err := telegram.NewBot(cfg.TelegramToken)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("could not create Telegram bot: %w", err)
		}
		opts = append(opts, scheduler.WithAlerter(telegram.NewTelebotAdapter(bot, cfg.AdminTelegramID)))
		log.Info("Telegram scan alerts enabled.")
	}
	rt.scheduler = scheduler.NewScanScheduler(scanner, rt.logger, cfg.CronSpecScan, cfg.ScanTimeout, opts...)

	return rt, nil
}

func poolConfig(cfg *config.AppConfig) idb.PoolConfig {
	return idb.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	}
}

func (rt *runtime) httpDeps() httpapi.Deps {
	return httpapi.Deps{
		Bills:         app.NewBillLifecycleManager(rt.billRepo, rt.reminderRepo, rt.logger),
		BillRepo:      rt.billRepo,
		Reminders:     app.NewReminderService(rt.reminderRepo, rt.logger),
		Dispatcher:    rt.dispatcher,
		Subscriptions: rt.subRepo,
		Logger:        rt.logger,
	}
}

func (rt *runtime) Close() {
	if rt.redis != nil {
		rt.redis.Close()
	}
	if rt.db != nil {
		rt.db.Close()
	}
}
