package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/carbridge-backend/internal/audit"
	"github.com/angelmondragon/carbridge-backend/internal/bootstrap"
	"github.com/angelmondragon/carbridge-backend/internal/cron"
	"github.com/angelmondragon/carbridge-backend/internal/escrow"
	"github.com/angelmondragon/carbridge-backend/internal/journey"
	"github.com/angelmondragon/carbridge-backend/internal/listings"
	"github.com/angelmondragon/carbridge-backend/internal/notifications"
	"github.com/angelmondragon/carbridge-backend/internal/transactions"
	"github.com/angelmondragon/carbridge-backend/pkg/db"
	"github.com/angelmondragon/carbridge-backend/pkg/logger"
	"github.com/angelmondragon/carbridge-backend/pkg/metrics"
	"github.com/angelmondragon/carbridge-backend/pkg/outbox"
	"github.com/angelmondragon/carbridge-backend/pkg/stripe"
)

const (
	escrowExpiryEvery     = 15 * time.Minute
	retentionEvery        = 24 * time.Hour
	outboxRetentionDays   = 30
	outboxMinAttempts     = 1
	deliveryRetentionDays = 90
)

func main() {
	proc := bootstrap.Start("cron-worker")
	cfg, logg := proc.Config, proc.Log
	ctx := context.Background()

	dbClient := proc.Database(ctx)
	redisClient := proc.Redis(ctx)

	stripeClient, err := stripe.NewClient(ctx, cfg.Stripe, logg)
	proc.Must(err, "stripe.bootstrap_failed")
	payments, err := stripe.NewPayments(stripeClient)
	proc.Must(err, "stripe.payments_init_failed")

	domainMetrics := metrics.NewDomainMetrics(prometheus.DefaultRegisterer)
	transactionService, err := newTransactionService(dbClient, payments, domainMetrics, logg)
	proc.Must(err, "transactions.init_failed")

	gdb := dbClient.DB()
	expiryJob, err := cron.NewEscrowExpiryJob(cron.EscrowExpiryJobParams{
		Logger:       logg,
		Escrows:      escrow.NewRepository(gdb),
		Intents:      payments,
		Transactions: transactionService,
		FundingTTL:   cfg.Escrow.FundingTTL,
	})
	proc.Must(err, "cron.escrow_expiry_init_failed")
	retentionJob, err := cron.NewRetentionJob(cron.RetentionJobParams{
		Logger:                logg,
		DB:                    dbClient,
		Outbox:                outbox.NewRepository(gdb),
		Deliveries:            notifications.NewRepository(gdb),
		OutboxRetentionDays:   outboxRetentionDays,
		OutboxMinAttempts:     outboxMinAttempts,
		DeliveryRetentionDays: deliveryRetentionDays,
	})
	proc.Must(err, "cron.retention_init_failed")

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron"), 0)
	proc.Must(err, "cron.lock_init_failed")

	jobs := cron.NewRegistry()
	jobs.Register(expiryJob, escrowExpiryEvery)
	jobs.Register(retentionJob, retentionEvery)
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: jobs,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
	})
	proc.Must(err, "cron.init_failed")

	proc.Run(nil, service.Run)
}

// newTransactionService builds the transactions service the expiry job uses
// to close out canceled escrows.
func newTransactionService(dbClient *db.Client, payments *stripe.Payments, domainMetrics *metrics.DomainMetrics, logg *logger.Logger) (transactions.Service, error) {
	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	recorder, err := journey.NewRecorder(journey.NewRepository(dbClient.DB()), outboxService, domainMetrics)
	if err != nil {
		return nil, err
	}
	return transactions.NewService(transactions.ServiceParams{
		Repo:     transactions.NewRepository(dbClient.DB()),
		Listings: listings.NewRepository(dbClient.DB()),
		Escrows:  escrow.NewRepository(dbClient.DB()),
		Tx:       dbClient,
		Outbox:   outboxService,
		Audit:    audit.NewWriter(),
		Journey:  recorder,
		Refunder: payments,
		Metrics:  domainMetrics,
		Logger:   logg,
	})
}
