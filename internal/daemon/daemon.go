// Package daemon runs migrations continuously: on a schedule, when the source
// export changes, and once at startup. Runs never overlap; triggers that
// arrive during a run collapse into a single follow-up run. Every run resumes
// from the manifest, so already migrated items are left alone.
package daemon

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"git.home.luguber.info/inful/contentmigrator/internal/logfields"
	"git.home.luguber.info/inful/contentmigrator/internal/pipeline"
)

// Trigger reasons.
const (
	ReasonStartup      = "startup"
	ReasonSchedule     = "schedule"
	ReasonSourceChange = "source-change"
	ReasonManual       = "manual"
)

// RunFunc performs one migration run.
type RunFunc func(ctx context.Context, reason string) pipeline.RunResult

// Options configure a Daemon.
type Options struct {
	// Interval between scheduled runs; ignored when Cron is set.
	Interval time.Duration
	Cron     string

	// WatchPath enables source watching when non-empty.
	WatchPath string
	Debounce  time.Duration

	// ListenAddr enables the HTTP endpoint when non-empty.
	ListenAddr     string
	MetricsHandler http.Handler
}

// Status is a snapshot of the daemon's run history.
type Status struct {
	Running      bool               `json:"running"`
	Runs         int                `json:"runs"`
	Pending      bool               `json:"pending"`
	LastReason   string             `json:"last_reason,omitempty"`
	LastRunID    string             `json:"last_run_id,omitempty"`
	LastStatus   pipeline.RunStatus `json:"last_status,omitempty"`
	LastExitCode int                `json:"last_exit_code"`
	LastStarted  time.Time          `json:"last_started,omitempty"`
	LastDuration time.Duration      `json:"last_duration_ns"`
}

// Daemon drives repeated migration runs.
type Daemon struct {
	run  RunFunc
	opts Options

	triggers chan string

	mu     sync.RWMutex
	status Status
}

// New creates a daemon.
func New(run RunFunc, opts Options) *Daemon {
	return &Daemon{
		run:      run,
		opts:     opts,
		triggers: make(chan string, 1),
	}
}

// Trigger requests a run. While a run is in progress at most one request is
// kept; further requests are dropped.
func (d *Daemon) Trigger(reason string) {
	select {
	case d.triggers <- reason:
		d.mu.Lock()
		d.status.Pending = true
		d.mu.Unlock()
	default:
		slog.Debug("Run already pending", slog.String("reason", reason))
	}
}

// Status returns the current status.
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.status
}

// Run starts the scheduler, watcher and HTTP endpoint, performs a startup run
// and then serves triggers until ctx is done.
func (d *Daemon) Run(ctx context.Context) error {
	stop, err := d.start(ctx)
	if err != nil {
		return err
	}
	defer stop()

	d.Trigger(ReasonStartup)
	for {
		select {
		case <-ctx.Done():
			slog.Info("Daemon stopping")
			return nil
		case reason := <-d.triggers:
			d.execute(ctx, reason)
		}
	}
}

func (d *Daemon) start(ctx context.Context) (func(), error) {
	var stops []func()
	stopAll := func() {
		for i := len(stops) - 1; i >= 0; i-- {
			stops[i]()
		}
	}

	if d.opts.Cron != "" || d.opts.Interval > 0 {
		s, err := NewScheduler()
		if err != nil {
			return nil, err
		}
		fire := func() { d.Trigger(ReasonSchedule) }
		if d.opts.Cron != "" {
			_, err = s.ScheduleCron("migration", d.opts.Cron, fire)
		} else {
			_, err = s.ScheduleEvery("migration", d.opts.Interval, fire)
		}
		if err != nil {
			_ = s.Stop(ctx)
			return nil, err
		}
		s.Start(ctx)
		stops = append(stops, func() {
			if err := s.Stop(context.Background()); err != nil {
				slog.Warn("Scheduler shutdown failed", logfields.Error(err))
			}
		})
	}

	if d.opts.WatchPath != "" {
		w, err := NewSourceWatcher(d.opts.WatchPath, d.opts.Debounce, func() { d.Trigger(ReasonSourceChange) })
		if err != nil {
			stopAll()
			return nil, err
		}
		if err := w.Start(ctx); err != nil {
			_ = w.Stop()
			stopAll()
			return nil, err
		}
		stops = append(stops, func() { _ = w.Stop() })
	}

	if d.opts.ListenAddr != "" {
		srv := &http.Server{
			Addr:              d.opts.ListenAddr,
			Handler:           d.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			slog.Info("HTTP endpoint listening", slog.String("addr", d.opts.ListenAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("HTTP endpoint failed", logfields.Error(err))
			}
		}()
		stops = append(stops, func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		})
	}

	return stopAll, nil
}

func (d *Daemon) execute(ctx context.Context, reason string) {
	started := time.Now()
	d.mu.Lock()
	d.status.Running = true
	d.status.Pending = len(d.triggers) > 0
	d.mu.Unlock()

	slog.Info("Starting migration run", slog.String("reason", reason))
	res := d.run(ctx, reason)

	d.mu.Lock()
	d.status.Running = false
	d.status.Runs++
	d.status.LastReason = reason
	d.status.LastRunID = res.RunID
	d.status.LastStatus = res.Status
	d.status.LastExitCode = res.ExitCode()
	d.status.LastStarted = started
	d.status.LastDuration = time.Since(started)
	d.mu.Unlock()

	slog.Info("Migration run finished",
		logfields.RunID(res.RunID),
		logfields.Status(string(res.Status)),
		slog.String("reason", reason),
		logfields.DurationMS(float64(time.Since(started).Milliseconds())))
}
