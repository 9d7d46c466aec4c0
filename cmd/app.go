package main

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/loryanstrant/unifi-documenter/internal/aggregator"
	"github.com/loryanstrant/unifi-documenter/internal/artifact"
	"github.com/loryanstrant/unifi-documenter/internal/callback"
	"github.com/loryanstrant/unifi-documenter/internal/config"
	"github.com/loryanstrant/unifi-documenter/internal/controller"
	"github.com/loryanstrant/unifi-documenter/internal/metrics"
	"github.com/loryanstrant/unifi-documenter/internal/orchestrator"
	"github.com/loryanstrant/unifi-documenter/internal/publisher"
	"github.com/loryanstrant/unifi-documenter/internal/render"
)

// app holds the components shared by the run and serve commands.
type app struct {
	cfg          *config.Config
	logger       *zap.SugaredLogger
	metrics      *metrics.Metrics
	factory      controller.Factory
	orchestrator *orchestrator.Orchestrator
	publisher    *publisher.Publisher
}

// newApp wires the documentation pipeline. nextRun may be nil when no
// schedule applies.
func newApp(cfg *config.Config, logger *zap.SugaredLogger, nextRun func(time.Time) time.Time) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	format, err := render.ParseFormat(cfg.Output.Format)
	if err != nil {
		return nil, err
	}
	renderer, err := render.New(format)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.New(),
		factory: controller.NewFactory(controller.OptionsFromConfig(cfg.HTTP)),
	}

	opts := []orchestrator.Option{orchestrator.WithMetrics(a.metrics)}
	if nextRun != nil {
		opts = append(opts, orchestrator.WithNextRun(nextRun))
	}

	if cfg.RabbitMQ.URL != "" {
		pub, err := publisher.New(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize publisher: %w", err)
		}
		a.publisher = pub
		opts = append(opts, orchestrator.WithNotifiers(pub))
	}
	if cfg.Notifications.WebhookURL != "" {
		reporter := callback.NewReporter(cfg.Notifications.WebhookURL, cfg.Notifications.APIKey, logger)
		opts = append(opts, orchestrator.WithNotifiers(reporter))
	}

	store := artifact.NewStore(cfg.Output.Dir, cfg.Output.Prefix,
		artifact.WithKeepBackups(cfg.Output.KeepBackups),
	)
	agg := aggregator.New(cfg.HTTP.Concurrency, a.metrics, logger)

	a.orchestrator = orchestrator.New(cfg.Controllers, a.factory, agg, store, renderer, logger, opts...)

	logger.Infow("Configuration loaded",
		"timezone", cfg.Timezone,
		"schedule_time", cfg.ScheduleTime,
		"output_dir", cfg.Output.Dir,
		"output_format", cfg.Output.Format,
		"controllers", len(cfg.Controllers),
		"events", a.publisher != nil,
		"webhook", cfg.Notifications.WebhookURL != "",
	)
	return a, nil
}

func (a *app) Close() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warnw("Failed to close publisher", "error", err)
		}
	}
}
