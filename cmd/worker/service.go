package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/carbridge-backend/pkg/logger"
)

type pinger interface {
	Ping(context.Context) error
}

type runner interface {
	Run(ctx context.Context) error
}

type ServiceParams struct {
	Logger               *logger.Logger
	DB                   pinger
	Redis                pinger
	PubSub               pinger
	BigQuery             pinger
	NotificationConsumer runner
	JourneyExporter      runner
}

// Service runs the notification consumer and the warehouse exporter side by
// side. The first one to fail stops the worker.
type Service struct {
	logg      *logger.Logger
	deps      map[string]pinger
	consumers map[string]runner
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	deps := map[string]pinger{
		"database": params.DB,
		"redis":    params.Redis,
		"pubsub":   params.PubSub,
		"bigquery": params.BigQuery,
	}
	for name, dep := range deps {
		if dep == nil {
			return nil, fmt.Errorf("%s client is required", name)
		}
	}
	if params.NotificationConsumer == nil {
		return nil, errors.New("notification consumer is required")
	}
	if params.JourneyExporter == nil {
		return nil, errors.New("journey exporter is required")
	}

	return &Service{
		logg: params.Logger,
		deps: deps,
		consumers: map[string]runner{
			"notifications": params.NotificationConsumer,
			"warehouse":     params.JourneyExporter,
		},
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	for name, dep := range s.deps {
		if err := dep.Ping(ctx); err != nil {
			s.logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
	}
	s.logg.Info(ctx, "all worker dependencies are ready")
	return nil
}

func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type exit struct {
		name string
		err  error
	}
	exits := make(chan exit, len(s.consumers))
	for name, consumer := range s.consumers {
		go func(name string, consumer runner) {
			exits <- exit{name: name, err: consumer.Run(runCtx)}
		}(name, consumer)
	}

	first := <-exits
	cancel()
	for i := 1; i < len(s.consumers); i++ {
		<-exits
	}

	if ctx.Err() != nil {
		s.logg.Info(ctx, "worker context canceled")
		return ctx.Err()
	}
	if first.err == nil || errors.Is(first.err, context.Canceled) {
		return fmt.Errorf("%s consumer exited", first.name)
	}
	s.logg.Error(s.logg.WithField(ctx, "consumer", first.name), "consumer stopped unexpectedly", first.err)
	return first.err
}
