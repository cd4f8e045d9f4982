package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/carbridge-backend/internal/bootstrap"
	"github.com/angelmondragon/carbridge-backend/pkg/metrics"
	"github.com/angelmondragon/carbridge-backend/pkg/outbox"
	"github.com/angelmondragon/carbridge-backend/pkg/outbox/registry"
	"github.com/angelmondragon/carbridge-backend/pkg/pubsub"
)

func main() {
	proc := bootstrap.Start("outbox-publisher")
	cfg := proc.Config
	ctx := context.Background()

	dbClient := proc.Database(ctx)
	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, proc.Log)
	proc.Must(err, "pubsub.bootstrap_failed")
	proc.OnClose("pubsub", pubsubClient.Close)

	events, err := registry.NewEventRegistry(cfg.PubSub)
	proc.Must(err, "outbox.registry_failed")

	gdb := dbClient.DB()
	service, err := NewService(ServiceParams{
		Config:        cfg,
		Logger:        proc.Log,
		DB:            dbClient,
		PubSub:        pubsubClient,
		Repository:    outbox.NewRepository(gdb),
		DLQRepository: outbox.NewDLQRepository(gdb),
		Registry:      events,
		Metrics:       metrics.NewDomainMetrics(prometheus.DefaultRegisterer),
	})
	proc.Must(err, "outbox.publisher_init_failed")

	proc.Run(map[string]any{
		"notification_topic": cfg.PubSub.NotificationTopic,
		"journey_topic":      cfg.PubSub.JourneyTopic,
	}, service.Run)
}
