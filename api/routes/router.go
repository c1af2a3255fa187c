package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/magneticlabs/credits-backend/api/controllers"
	webhookcontrollers "github.com/magneticlabs/credits-backend/api/controllers/webhooks"
	"github.com/magneticlabs/credits-backend/api/middleware"
	"github.com/magneticlabs/credits-backend/internal/credits"
	"github.com/magneticlabs/credits-backend/internal/entitlement"
	"github.com/magneticlabs/credits-backend/internal/ledger"
	"github.com/magneticlabs/credits-backend/internal/plans"
	"github.com/magneticlabs/credits-backend/internal/renewal"
	"github.com/magneticlabs/credits-backend/pkg/config"
	"github.com/magneticlabs/credits-backend/pkg/db"
	"github.com/magneticlabs/credits-backend/pkg/logger"
	"github.com/magneticlabs/credits-backend/pkg/redis"
)

const adminTokenHeader = "X-Admin-Token"

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	plansService plans.Service,
	creditsService credits.Service,
	ledgerService ledger.Service,
	renewalService renewal.Service,
	reconcileService *entitlement.ReconcileService,
	webhookService *entitlement.WebhookService,
	gatherer prometheus.Gatherer,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/hotmart", webhookcontrollers.HotmartWebhook(webhookService, logg))
	})

	r.Get("/api/v1/plans", controllers.PlansList(plansService, logg))

	r.Route("/api/v1/credits", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Post("/consume", controllers.CreditsConsume(creditsService, logg))
		r.Get("/balance", controllers.CreditsBalance(creditsService, logg))
		r.Get("/transactions", controllers.CreditsTransactions(ledgerService, logg))
	})

	// reconcileService is nil when no CRM is configured.
	reconcileHandler := controllers.ReconcileRun(nil, logg)
	if reconcileService != nil {
		reconcileHandler = controllers.ReconcileRun(reconcileService, logg)
	}

	r.Route("/api/v1/internal", func(r chi.Router) {
		r.With(middleware.OptionalBearer(cfg.Internal.RenewalToken, logg)).
			Post("/renewals/run", controllers.RenewalsRun(renewalService, logg))
		r.With(middleware.SharedSecret(middleware.ReconcileSecretHeader, cfg.Internal.ReconcileSecret, logg)).
			Post("/reconcile/run", reconcileHandler)
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.SharedSecret(adminTokenHeader, cfg.Internal.AdminToken, logg))

		r.Route("/plans", func(r chi.Router) {
			r.Get("/", controllers.AdminPlansList(plansService, logg))
			r.Post("/", controllers.AdminPlansCreate(plansService, logg))
			r.Put("/{planId}", controllers.AdminPlansUpdate(plansService, logg))
			r.Delete("/{planId}", controllers.AdminPlansDeactivate(plansService, logg))
		})

		r.Route("/packages", func(r chi.Router) {
			r.Get("/", controllers.AdminPackagesList(plansService, logg))
			r.Post("/", controllers.AdminPackagesCreate(plansService, logg))
			r.Put("/{packageId}", controllers.AdminPackagesUpdate(plansService, logg))
		})

		r.Post("/users/{userId}/credits/adjust", controllers.AdminCreditsAdjust(creditsService, logg))
		r.Get("/users/{userId}/credits/audit", controllers.AdminCreditsAudit(creditsService, logg))
	})

	return r
}
