package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/carbridge-backend/api/routes"
	"github.com/angelmondragon/carbridge-backend/internal/audit"
	"github.com/angelmondragon/carbridge-backend/internal/auth"
	"github.com/angelmondragon/carbridge-backend/internal/bootstrap"
	"github.com/angelmondragon/carbridge-backend/internal/escrow"
	"github.com/angelmondragon/carbridge-backend/internal/journey"
	"github.com/angelmondragon/carbridge-backend/internal/listings"
	"github.com/angelmondragon/carbridge-backend/internal/tracking"
	"github.com/angelmondragon/carbridge-backend/internal/transactions"
	"github.com/angelmondragon/carbridge-backend/internal/users"
	stripewebhook "github.com/angelmondragon/carbridge-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/carbridge-backend/pkg/auth/session"
	"github.com/angelmondragon/carbridge-backend/pkg/idempotency"
	"github.com/angelmondragon/carbridge-backend/pkg/logger"
	"github.com/angelmondragon/carbridge-backend/pkg/metrics"
	"github.com/angelmondragon/carbridge-backend/pkg/outbox"
	"github.com/angelmondragon/carbridge-backend/pkg/stripe"
)

const (
	stripeEventTTL  = 7 * 24 * time.Hour
	shutdownTimeout = 20 * time.Second
)

func main() {
	proc := bootstrap.Start("api")
	cfg, logg := proc.Config, proc.Log
	ctx := context.Background()

	dbClient := proc.Database(ctx)
	redisClient := proc.Redis(ctx)

	stripeClient, err := stripe.NewClient(ctx, cfg.Stripe, logg)
	proc.Must(err, "stripe.bootstrap_failed")
	payments, err := stripe.NewPayments(stripeClient)
	proc.Must(err, "stripe.payments_init_failed")

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	proc.Must(err, "session.init_failed")

	registry := prometheus.NewRegistry()
	domainMetrics := metrics.NewDomainMetrics(registry)

	gdb := dbClient.DB()
	outboxRepo := outbox.NewRepository(gdb)
	outboxService := outbox.NewService(outboxRepo, logg)
	deadLetters, err := outbox.NewDeadLetters(dbClient, outboxRepo, outbox.NewDLQRepository(gdb), logg)
	proc.Must(err, "outbox.dead_letters_init_failed")
	auditWriter := audit.NewWriter()
	listingRepo := listings.NewRepository(gdb)
	escrowRepo := escrow.NewRepository(gdb)
	transactionRepo := transactions.NewRepository(gdb)
	journeyRepo := journey.NewRepository(gdb)

	recorder, err := journey.NewRecorder(journeyRepo, outboxService, domainMetrics)
	proc.Must(err, "journey.recorder_init_failed")

	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:       users.NewRepository(gdb),
		SessionManager: sessionManager,
		JWTConfig:      cfg.JWT,
		Password:       cfg.Password,
	})
	proc.Must(err, "auth.init_failed")

	listingService, err := listings.NewService(listings.ServiceParams{
		Repo:    listingRepo,
		Tx:      dbClient,
		Outbox:  outboxService,
		Audit:   auditWriter,
		Metrics: domainMetrics,
	})
	proc.Must(err, "listings.init_failed")

	transactionService, err := transactions.NewService(transactions.ServiceParams{
		Repo:     transactionRepo,
		Listings: listingRepo,
		Escrows:  escrowRepo,
		Tx:       dbClient,
		Outbox:   outboxService,
		Audit:    auditWriter,
		Journey:  recorder,
		Refunder: payments,
		Metrics:  domainMetrics,
		Logger:   logg,
	})
	proc.Must(err, "transactions.init_failed")

	linker, err := transactions.NewEscrowLinker(transactionRepo)
	proc.Must(err, "transactions.linker_init_failed")
	escrowService, err := escrow.NewService(escrow.ServiceParams{
		Repo:     escrowRepo,
		Listings: listingRepo,
		Tx:       dbClient,
		Outbox:   outboxService,
		Audit:    auditWriter,
		Journey:  recorder,
		Payments: payments,
		Linker:   linker,
		Logger:   logg,
	})
	proc.Must(err, "escrow.init_failed")

	trackingService, err := tracking.NewService(tracking.ServiceParams{
		Escrows: escrowRepo,
		Tx:      dbClient,
		Outbox:  outboxService,
		Audit:   auditWriter,
		Journey: recorder,
		Broker:  redisClient,
		Metrics: domainMetrics,
		Logger:  logg,
	})
	proc.Must(err, "tracking.init_failed")

	pipelineService, err := journey.NewService(journeyRepo, dbClient, recorder, auditWriter)
	proc.Must(err, "journey.pipeline_init_failed")

	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Payments: transactionService,
		Logger:   logg,
	})
	proc.Must(err, "stripe.webhook_init_failed")
	webhookGuard, err := idempotency.NewMarker(redisClient, "stripe-webhook", stripeEventTTL)
	proc.Must(err, "stripe.webhook_guard_init_failed")

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	server := &http.Server{
		Addr:              ":" + port,
		ReadHeaderTimeout: 10 * time.Second,
		Handler: routes.NewRouter(routes.Deps{
			Config:             cfg,
			Logger:             logg,
			DB:                 dbClient,
			Redis:              redisClient,
			Sessions:           sessionManager,
			Metrics:            registry,
			Auth:               authService,
			Listings:           listingService,
			Transactions:       transactionService,
			Escrow:             escrowService,
			Tracking:           trackingService,
			Pipeline:           pipelineService,
			DeadLetters:        deadLetters,
			StripeWebhook:      webhookService,
			StripeSecret:       stripeClient,
			StripeWebhookGuard: webhookGuard,
		}),
	}

	proc.Run(map[string]any{
		"addr":       server.Addr,
		"stripe_env": stripeClient.Environment(),
	}, func(ctx context.Context) error {
		return serve(ctx, server, logg)
	})
}

// serve runs server until ctx is canceled, then drains in-flight requests.
func serve(ctx context.Context, server *http.Server, logg *logger.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(shutdownCtx, "api.shutdown_failed", err)
		return err
	}
	return <-errCh
}
