package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/magneticlabs/credits-backend/api/routes"
	"github.com/magneticlabs/credits-backend/internal/chat"
	"github.com/magneticlabs/credits-backend/internal/credits"
	"github.com/magneticlabs/credits-backend/internal/crm"
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

const webhookDedupTTL = 24 * time.Hour

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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
	agentRepo := credits.NewAgentRepository(gormDB)
	chatRepo := chat.NewRepository(gormDB)
	ledgerRepo := ledger.NewRepository(gormDB)
	planRepo := plans.NewRepository(gormDB)
	packageRepo := plans.NewPackageRepository(gormDB)
	eventRepo := entitlement.NewEventRepository(gormDB)

	plansService, err := plans.NewService(planRepo, packageRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create plans service", err)
		os.Exit(1)
	}

	ledgerService, err := ledger.NewService(ledgerRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}

	consumptionMetrics := metrics.NewConsumptionMetrics(prometheus.DefaultRegisterer)
	creditsService, err := credits.NewService(credits.ServiceParams{
		Tx:            dbClient,
		Balances:      balanceRepo,
		Ledger:        ledgerRepo,
		Agents:        agentRepo,
		Chat:          chatRepo,
		Users:         usersRepo,
		Plans:         planRepo,
		Subscriptions: subscriptionRepo,
		Metrics:       consumptionMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create credits service", err)
		os.Exit(1)
	}

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

	webhookGuard, err := entitlement.NewIdempotencyGuard(redisClient, webhookDedupTTL, "webhook:"+entitlement.ProviderHotmart)
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook idempotency guard", err)
		os.Exit(1)
	}

	webhookService, err := entitlement.NewWebhookService(entitlement.WebhookServiceParams{
		Tx:            dbClient,
		Events:        eventRepo,
		Users:         usersRepo,
		Catalog:       plansService,
		Transition:    transitioner,
		Balances:      balanceRepo,
		Subscriptions: subscriptionRepo,
		Ledger:        ledgerRepo,
		Guard:         webhookGuard,
		Logger:        logg,
		Config:        cfg.Webhook,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	var reconcileService *entitlement.ReconcileService
	if cfg.CRM.BaseURL != "" {
		crmClient, err := crm.NewClient(cfg.CRM)
		if err != nil {
			logg.Error(context.Background(), "failed to create crm client", err)
			os.Exit(1)
		}
		reconcileService, err = entitlement.NewReconcileService(entitlement.ReconcileServiceParams{
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
	} else {
		logg.Warn(context.Background(), "crm base url not set, reconcile endpoint disabled")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			plansService,
			creditsService,
			ledgerService,
			renewalService,
			reconcileService,
			webhookService,
			prometheus.DefaultGatherer,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
