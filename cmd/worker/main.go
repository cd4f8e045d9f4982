package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/carbridge-backend/internal/bootstrap"
	"github.com/angelmondragon/carbridge-backend/internal/notifications"
	"github.com/angelmondragon/carbridge-backend/internal/warehouse"
	"github.com/angelmondragon/carbridge-backend/pkg/bigquery"
	"github.com/angelmondragon/carbridge-backend/pkg/email"
	"github.com/angelmondragon/carbridge-backend/pkg/idempotency"
	"github.com/angelmondragon/carbridge-backend/pkg/metrics"
	"github.com/angelmondragon/carbridge-backend/pkg/pubsub"
)

func main() {
	proc := bootstrap.Start("worker")
	cfg, logg := proc.Config, proc.Log
	ctx := context.Background()

	dbClient := proc.Database(ctx)
	redisClient := proc.Redis(ctx)

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	proc.Must(err, "pubsub.bootstrap_failed")
	proc.OnClose("pubsub", pubsubClient.Close)

	bigqueryClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
	proc.Must(err, "bigquery.bootstrap_failed")
	proc.OnClose("bigquery", bigqueryClient.Close)

	emailClient, err := email.NewClient(ctx, cfg.Resend, logg)
	proc.Must(err, "resend.bootstrap_failed")

	// both consumers share one redis-backed dedupe manager, keyed per consumer
	processed, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	proc.Must(err, "idempotency.init_failed")

	gdb := dbClient.DB()
	dispatcher, err := notifications.NewDispatcher(notifications.DispatcherParams{
		Sender:     emailClient,
		Deliveries: notifications.NewRepository(gdb),
		Directory:  notifications.NewDirectory(gdb),
		Metrics:    metrics.NewDomainMetrics(prometheus.DefaultRegisterer),
		Logger:     logg,
	})
	proc.Must(err, "notifications.dispatcher_init_failed")
	consumer, err := notifications.NewConsumer(dispatcher, pubsubClient.NotificationSubscription(), processed, logg)
	proc.Must(err, "notifications.consumer_init_failed")

	rows, err := warehouse.NewWriter(bigqueryClient, warehouse.Config{
		Table:       bigqueryClient.JourneyEventsTable(),
		BatchSize:   cfg.BigQuery.BatchSize,
		MaxAttempts: cfg.BigQuery.MaxAttempts,
	})
	proc.Must(err, "warehouse.writer_init_failed")
	exporter, err := warehouse.NewExporter(pubsubClient.JourneySubscription(), rows, processed, logg)
	proc.Must(err, "warehouse.exporter_init_failed")

	service, err := NewService(ServiceParams{
		Logger:               logg,
		DB:                   dbClient,
		Redis:                redisClient,
		PubSub:               pubsubClient,
		BigQuery:             bigqueryClient,
		NotificationConsumer: consumer,
		JourneyExporter:      exporter,
	})
	proc.Must(err, "worker.init_failed")

	proc.Run(nil, service.Run)
}
