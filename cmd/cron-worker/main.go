package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/magneticlabs/credits-backend/internal/credits"
	"github.com/magneticlabs/credits-backend/internal/crm"
	"github.com/magneticlabs/credits-backend/internal/cron"
	"github.com/magneticlabs/credits-backend/internal/entitlement"
	"github.com/magneticlabs/credits-backend/internal/ledger"
	"github.com/magneticlabs/credits-backend/internal/plans"
	"github.com/magneticlabs/credits-backend/internal/renewal"
	"github.com/magneticlabs/credits-backend/internal/users"
	"github.com/magneticlabs/credits-backend/pkg/config"
	"github.com/magneticlabs/credits-backend/pkg/db"
	"github.com/magneticlabs/credits-backend/pkg/logger"
	"github.com/magneticlabs/credits-backend/pkg/metrics"
	"github.com/magneticlabs/credits-backend/pkg/migrate"
	"github.com/magneticlabs/credits-backend/pkg/redis"
)

const lockKeyFormat = "magnetic:cron-worker:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	gormDB := dbClient.DB()
	usersRepo := users.NewRepository(gormDB)
	balanceRepo := credits.NewBalanceRepository(gormDB)
	subscriptionRepo := credits.NewSubscriptionRepository(gormDB)
	ledgerRepo := ledger.NewRepository(gormDB)
	planRepo := plans.NewRepository(gormDB)
	packageRepo := plans.NewPackageRepository(gormDB)

	renewalService, err := renewal.NewService(renewal.ServiceParams{
		Tx:            dbClient,
		Balances:      balanceRepo,
		Subscriptions: subscriptionRepo,
		Users:         usersRepo,
		Plans:         planRepo,
		Ledger:        ledgerRepo,
		Logger:        logg,
		BatchSize:     cfg.Cron.RenewalBatch,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create renewal service", err)
		os.Exit(1)
	}

	renewalJob, err := cron.NewRenewalJob(logg, renewalService)
	if err != nil {
		logg.Error(context.Background(), "failed to create renewal job", err)
		os.Exit(1)
	}
	jobs := []cron.Job{renewalJob}

	if cfg.CRM.BaseURL != "" {
		plansService, err := plans.NewService(planRepo, packageRepo)
		if err != nil {
			logg.Error(context.Background(), "failed to create plans service", err)
			os.Exit(1)
		}
		transitioner, err := entitlement.NewTransitioner(entitlement.TransitionerParams{
			Users:    usersRepo,
			Plans:    planRepo,
			Balances: balanceRepo,
			Ledger:   ledgerRepo,
		})
		if err != nil {
			logg.Error(context.Background(), "failed to create plan transitioner", err)
			os.Exit(1)
		}
		crmClient, err := crm.NewClient(cfg.CRM)
		if err != nil {
			logg.Error(context.Background(), "failed to create crm client", err)
			os.Exit(1)
		}
		reconcileService, err := entitlement.NewReconcileService(entitlement.ReconcileServiceParams{
			Tx:         dbClient,
			Users:      usersRepo,
			Tags:       crmClient,
			Plans:      plansService,
			Transition: transitioner,
			Logger:     logg,
			BatchSize:  cfg.Cron.ReconcileBatch,
		})
		if err != nil {
			logg.Error(context.Background(), "failed to create reconcile service", err)
			os.Exit(1)
		}
		reconcileJob, err := cron.NewReconcileJob(logg, reconcileService)
		if err != nil {
			logg.Error(context.Background(), "failed to create reconcile job", err)
			os.Exit(1)
		}
		jobs = append(jobs, reconcileJob)
	} else {
		logg.Warn(context.Background(), "crm base url not set, skipping reconcile job")
	}

	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(jobs...),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
