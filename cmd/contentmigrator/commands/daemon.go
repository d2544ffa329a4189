package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"git.home.luguber.info/inful/contentmigrator/internal/config"
	"git.home.luguber.info/inful/contentmigrator/internal/daemon"
	"git.home.luguber.info/inful/contentmigrator/internal/logfields"
	"git.home.luguber.info/inful/contentmigrator/internal/metrics"
	"git.home.luguber.info/inful/contentmigrator/internal/pipeline"
)

// DaemonCmd implements the 'daemon' command.
type DaemonCmd struct {
	Listen string `short:"l" help:"Override metrics.listen_addr"`
}

func (d *DaemonCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(g, root)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if d.Listen != "" {
		cfg.Metrics.ListenAddr = d.Listen
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return RunDaemon(ctx, cfg, g.Logger)
}

// RunDaemon serves migrations until ctx is cancelled.
func RunDaemon(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	env, err := openEnvironment(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer env.Close()

	opts := daemon.Options{
		Cron:           cfg.Daemon.Cron,
		ListenAddr:     cfg.Metrics.ListenAddr,
		MetricsHandler: metrics.HTTPHandler(env.registry),
	}
	if cfg.Daemon.Interval != "" {
		if opts.Interval, err = time.ParseDuration(cfg.Daemon.Interval); err != nil {
			return fmt.Errorf("daemon.interval: %w", err)
		}
	}
	if cfg.Daemon.WatchSource {
		opts.WatchPath = cfg.Source.Root
	}

	d := daemon.New(func(ctx context.Context, reason string) pipeline.RunResult {
		res := env.Run(ctx)
		logger.Info("Daemon run completed", logfields.RunID(res.RunID), slog.String("summary", describe(res)), slog.String("reason", reason))
		return res
	}, opts)

	slog.Info("Daemon started, waiting for shutdown signal...")
	if err := d.Run(ctx); err != nil {
		return fmt.Errorf("daemon error: %w", err)
	}
	slog.Info("Daemon stopped successfully")
	return nil
}
