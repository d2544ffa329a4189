package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	promcollect "github.com/prometheus/client_golang/prometheus/collectors"

	"git.home.luguber.info/inful/contentmigrator/internal/config"
	"git.home.luguber.info/inful/contentmigrator/internal/content"
	"git.home.luguber.info/inful/contentmigrator/internal/endpoint/filestore"
	"git.home.luguber.info/inful/contentmigrator/internal/eventstore"
	"git.home.luguber.info/inful/contentmigrator/internal/extensions"
	"git.home.luguber.info/inful/contentmigrator/internal/hooks"
	"git.home.luguber.info/inful/contentmigrator/internal/logfields"
	"git.home.luguber.info/inful/contentmigrator/internal/manifest"
	"git.home.luguber.info/inful/contentmigrator/internal/metrics"
	"git.home.luguber.info/inful/contentmigrator/internal/notify"
	"git.home.luguber.info/inful/contentmigrator/internal/pipeline"
)

// environment holds everything one or more runs share: the manifest and its
// store, the plan, the event bus and the metrics registry.
type environment struct {
	logger   *slog.Logger
	store    manifest.Store
	manifest *manifest.Manifest
	plan     *pipeline.Plan
	bus      *pipeline.Bus
	dlq      *pipeline.DeadLetterQueue
	events   *eventstore.SQLiteStore
	nats     *notify.NATSClient
	notifier *notify.Notifier
	registry *prom.Registry
	recorder *metrics.PrometheusRecorder
}

func openEnvironment(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *environment, err error) {
	env := &environment{logger: logger, dlq: pipeline.NewDeadLetterQueue()}
	defer func() {
		if err != nil {
			env.Close()
		}
	}()

	if env.store, err = manifest.OpenStore(cfg.Manifest.Handle); err != nil {
		return nil, err
	}
	if env.manifest, err = manifest.LoadOrNew(ctx, env.store); err != nil {
		return nil, err
	}

	builder := pipeline.NewPlanBuilder().
		FromConfig(cfg).
		WithEndpoints(filestore.NewSource(cfg.Source.Root), filestore.NewDestination(cfg.Destination.Root))
	reg := builder.Registry()
	if err = extensions.Register(reg, cfg, logger); err != nil {
		return nil, err
	}
	if err = hooks.Register(reg, hooks.PointInitializeMigration, hooks.AllTypes,
		extensions.CheckCapability(filestore.CapabilityDefinitions)); err != nil {
		return nil, err
	}
	if err = hooks.Register(reg, hooks.PointActionCompleted, content.TypeWorkbook,
		extensions.VerifyCapability(filestore.CapabilityDefinitions)); err != nil {
		return nil, err
	}

	if cfg.Notifications != nil && cfg.Notifications.NATSURL != "" {
		if env.nats, err = notify.Connect(cfg.Notifications); err != nil {
			return nil, err
		}
		env.notifier = notify.New(env.nats, cfg.Notifications.Subject)
		if err = env.notifier.Register(reg); err != nil {
			return nil, err
		}
	}

	if env.plan, err = builder.Build(); err != nil {
		return nil, err
	}

	busOpts := []pipeline.BusOption{pipeline.WithBusLogger(logger), pipeline.WithDeadLetterQueue(env.dlq)}
	if cfg.Events.Database != "" {
		if env.events, err = eventstore.NewSQLiteStore(cfg.Events.Database); err != nil {
			return nil, err
		}
		busOpts = append(busOpts, pipeline.WithEventStore(env.events))
	}
	env.bus = pipeline.NewBus(busOpts...)
	if env.notifier != nil {
		env.notifier.Subscribe(env.bus)
	}

	env.registry = prom.NewRegistry()
	env.registry.MustRegister(promcollect.NewGoCollector(), promcollect.NewProcessCollector(promcollect.ProcessCollectorOpts{}))
	env.recorder = metrics.NewPrometheusRecorder(env.registry)
	return env, nil
}

// Run executes one migration against the shared manifest.
func (e *environment) Run(ctx context.Context) pipeline.RunResult {
	res := pipeline.RunMigration(ctx, e.plan, e.manifest,
		pipeline.WithStore(e.store),
		pipeline.WithBus(e.bus),
		pipeline.WithRecorder(e.recorder),
		pipeline.WithLogger(e.logger))
	if n := len(e.dlq.ForRun(res.RunID)); n > 0 {
		e.logger.Warn("Some run events could not be delivered", logfields.RunID(res.RunID), logfields.Count(n))
	}
	return res
}

// Close releases stores and connections.
func (e *environment) Close() {
	var errs []error
	if e.nats != nil {
		errs = append(errs, e.nats.Close())
	}
	if e.events != nil {
		errs = append(errs, e.events.Close())
	}
	if e.store != nil {
		errs = append(errs, e.store.Close())
	}
	if err := errors.Join(errs...); err != nil {
		e.logger.Warn("Failed to close resources", logfields.Error(err))
	}
}

func describe(res pipeline.RunResult) string {
	return fmt.Sprintf("run %s %s (%d actions, %s)", res.RunID, res.Status, len(res.Actions), res.Duration.Round(time.Millisecond))
}
