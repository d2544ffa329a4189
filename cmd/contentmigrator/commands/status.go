package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"git.home.luguber.info/inful/contentmigrator/internal/config"
	"git.home.luguber.info/inful/contentmigrator/internal/eventstore"
	"git.home.luguber.info/inful/contentmigrator/internal/manifest"
)

// StatusCmd implements the 'status' command.
type StatusCmd struct {
	History int  `short:"n" default:"5" help:"Number of recent runs to show (requires events.database)"`
	Errors  bool `short:"e" help:"List failed and cancelled items with their errors"`
}

func (s *StatusCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(g, root)
	if err != nil {
		return err
	}
	return RunStatus(context.Background(), cfg, s.History, s.Errors, os.Stdout)
}

// RunStatus prints the manifest's progress and, when an event database is
// configured, the most recent runs.
func RunStatus(ctx context.Context, cfg *config.Config, history int, withErrors bool, out io.Writer) error {
	store, err := manifest.OpenStore(cfg.Manifest.Handle)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	m, err := manifest.LoadOrNew(ctx, store)
	if err != nil {
		return err
	}
	printManifest(out, m, withErrors)

	if cfg.Events.Database == "" || history <= 0 {
		return nil
	}
	es, err := eventstore.NewSQLiteStore(cfg.Events.Database)
	if err != nil {
		return err
	}
	defer func() { _ = es.Close() }()

	proj := eventstore.NewRunHistoryProjection(es, history)
	if err := proj.Rebuild(ctx); err != nil {
		return err
	}
	printHistory(out, proj.GetHistory())
	return nil
}

func printManifest(out io.Writer, m *manifest.Manifest, withErrors bool) {
	_, _ = fmt.Fprintf(out, "manifest %s (last run %s, updated %s)\n", m.ID(), orDash(m.RunID()), m.UpdatedAt().Format(time.RFC3339))
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "TYPE\tTOTAL\tMIGRATED\tSKIPPED\tFAILED\tCANCELLED\tPENDING")
	for _, s := range m.Summarize() {
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%d\n", s.ContentType, s.Total,
			s.Counts[manifest.StatusMigrated], s.Counts[manifest.StatusSkipped], s.Counts[manifest.StatusFailed],
			s.Counts[manifest.StatusCancelled], s.Counts[manifest.StatusPending])
	}
	_ = tw.Flush()

	for _, rec := range m.Errors() {
		_, _ = fmt.Fprintf(out, "error: %s\n", rec.Error())
	}
	if !withErrors {
		return
	}
	for _, ct := range m.ContentTypes() {
		for _, snap := range m.Snapshots(ct) {
			if snap.Status != manifest.StatusFailed && snap.Status != manifest.StatusCancelled {
				continue
			}
			_, _ = fmt.Fprintf(out, "%s %s %s\n", ct, snap.Status, snap.Source)
			for _, rec := range snap.Errors {
				_, _ = fmt.Fprintf(out, "  %s\n", rec.Error())
			}
		}
	}
}

func printHistory(out io.Writer, runs []*eventstore.RunSummary) {
	if len(runs) == 0 {
		return
	}
	_, _ = fmt.Fprintln(out, "\nrecent runs:")
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "RUN\tSTATUS\tEXIT\tSTARTED\tDURATION\tACTIONS")
	for _, r := range runs {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%d\n", r.RunID, r.Status, r.ExitCode,
			r.StartedAt.Format(time.RFC3339), r.Duration.Round(time.Millisecond), len(r.Actions))
	}
	_ = tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
