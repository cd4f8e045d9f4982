package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/carbridge-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/carbridge-backend/api/controllers/webhooks"
	"github.com/angelmondragon/carbridge-backend/api/middleware"
	"github.com/angelmondragon/carbridge-backend/internal/auth"
	"github.com/angelmondragon/carbridge-backend/internal/escrow"
	"github.com/angelmondragon/carbridge-backend/internal/journey"
	"github.com/angelmondragon/carbridge-backend/internal/listings"
	"github.com/angelmondragon/carbridge-backend/internal/tracking"
	"github.com/angelmondragon/carbridge-backend/internal/transactions"
	"github.com/angelmondragon/carbridge-backend/pkg/auth/session"
	"github.com/angelmondragon/carbridge-backend/pkg/config"
	"github.com/angelmondragon/carbridge-backend/pkg/db"
	"github.com/angelmondragon/carbridge-backend/pkg/enums"
	"github.com/angelmondragon/carbridge-backend/pkg/logger"
	"github.com/angelmondragon/carbridge-backend/pkg/redis"
)

// Deps carries everything the HTTP surface needs. Nil services answer 500.
type Deps struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       db.Pinger
	Redis    *redis.Client
	Sessions session.AccessSessionChecker
	Metrics  prometheus.Gatherer

	Auth         auth.Service
	Listings     listings.Service
	Transactions transactions.Service
	Escrow       escrow.Service
	Tracking     tracking.Service
	Pipeline     journey.Service
	DeadLetters  controllers.DeadLetterService

	StripeWebhook      webhookcontrollers.StripeWebhookService
	StripeSecret       webhookcontrollers.SigningSecretProvider
	StripeWebhookGuard webhookcontrollers.WebhookGuard
}

func NewRouter(d Deps) http.Handler {
	cfg, logg := d.Config, d.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.PublicURL),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg,
			controllers.ReadinessCheck{Name: "db", Check: d.DB.Ping},
			controllers.ReadinessCheck{Name: "redis", Check: d.Redis.Ping},
		))
	})
	if d.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Metrics, promhttp.HandlerOpts{}))
	}

	r.Post("/api/webhooks/stripe", webhookcontrollers.StripeWebhook(d.StripeWebhook, d.StripeSecret, d.StripeWebhookGuard, logg))

	r.Route("/api/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(loginPolicy, d.Redis, logg)).Post("/login", controllers.AuthLogin(d.Auth, cfg.Auth, logg))
		r.Post("/logout", controllers.AuthLogout(d.Auth, cfg.JWT, cfg.Auth, logg))
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, cfg.Auth, d.Sessions, logg))
		r.Use(middleware.Idempotency(d.Redis, logg))

		r.Get("/api/listings/{listingId}", controllers.GetListing(d.Listings, logg))
		r.With(middleware.RequireRole(logg, enums.RoleDealer)).
			Post("/api/dealer/listings", controllers.DealerCreateListing(d.Listings, logg))

		r.Route("/api/transactions", func(r chi.Router) {
			r.With(middleware.RequireRole(logg, enums.RoleBuyer)).
				Post("/", controllers.CreateTransaction(d.Transactions, logg))
			r.Get("/", controllers.ListTransactions(d.Transactions, logg))
			r.With(middleware.RequireAdmin(logg)).
				Post("/{transactionId}/refund", controllers.RefundTransaction(d.Transactions, logg))
		})

		r.Route("/api/escrow", func(r chi.Router) {
			r.With(middleware.RequireRole(logg, enums.RoleBuyer)).
				Post("/create", controllers.CreateEscrow(d.Escrow, logg))
			r.Get("/{escrowId}", controllers.GetEscrow(d.Escrow, logg))
			r.Get("/{escrowId}/tracking", controllers.GetTracking(d.Tracking, logg))
			r.Get("/{escrowId}/tracking/stream", controllers.StreamTracking(d.Tracking, logg))
		})

		r.Route("/api/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdmin(logg))

			r.Route("/listings", func(r chi.Router) {
				r.Get("/", controllers.AdminListListings(d.Listings, logg))
				r.Patch("/{listingId}/approve", controllers.AdminApproveListing(d.Listings, logg))
				r.Patch("/{listingId}/reject", controllers.AdminRejectListing(d.Listings, logg))
			})

			r.Route("/escrow/{escrowId}", func(r chi.Router) {
				r.Post("/release", controllers.AdminReleaseEscrow(d.Escrow, logg))
				r.Patch("/tracking/{stage}", controllers.AdminUpdateTrackingStage(d.Tracking, logg))
			})

			r.Route("/pipeline", func(r chi.Router) {
				r.Get("/", controllers.AdminPipeline(d.Pipeline, logg))
				r.Post("/deals/{journeyId}/transition", controllers.AdminTransitionDeal(d.Pipeline, logg))
				r.Post("/deals/{journeyId}/tasks", controllers.AdminCreateTask(d.Pipeline, logg))
				r.Patch("/tasks/{taskId}/complete", controllers.AdminCompleteTask(d.Pipeline, logg))
			})

			r.Route("/outbox/dead-letters", func(r chi.Router) {
				r.Get("/", controllers.AdminListDeadLetters(d.DeadLetters, logg))
				r.Post("/{eventId}/replay", controllers.AdminReplayDeadLetter(d.DeadLetters, logg))
			})
		})
	})

	return r
}
