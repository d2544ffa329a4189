package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"git.home.luguber.info/inful/contentmigrator/internal/config"
	"git.home.luguber.info/inful/contentmigrator/internal/manifest"
	"git.home.luguber.info/inful/contentmigrator/internal/pipeline"
)

// MigrateCmd implements the 'migrate' command.
type MigrateCmd struct {
	Types          []string `short:"t" sep:"," help:"Content types to migrate, in order (default: all)"`
	ForceRemigrate bool     `help:"Publish items again even if a previous run migrated them"`
	FailurePolicy  string   `help:"Override migration.failure_policy (halt, continue)"`
}

func (m *MigrateCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(g, root)
	if err != nil {
		return err
	}
	m.apply(cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	res, err := RunMigrate(ctx, cfg, g.Logger, os.Stdout)
	if err != nil {
		return err
	}
	if code := res.ExitCode(); code != pipeline.ExitSuccess {
		return &ExitError{Code: code}
	}
	return nil
}

func (m *MigrateCmd) apply(cfg *config.Config) {
	if len(m.Types) > 0 {
		cfg.Migration.ContentTypes = m.Types
	}
	if m.ForceRemigrate {
		cfg.Migration.ForceRemigrate = true
	}
	if m.FailurePolicy != "" {
		cfg.Migration.FailurePolicy = config.FailurePolicy(m.FailurePolicy)
	}
}

// RunMigrate performs a single run and prints its summary to out.
func RunMigrate(ctx context.Context, cfg *config.Config, logger *slog.Logger, out io.Writer) (pipeline.RunResult, error) {
	env, err := openEnvironment(ctx, cfg, logger)
	if err != nil {
		return pipeline.RunResult{}, err
	}
	defer env.Close()

	res := env.Run(ctx)
	printRunResult(out, res)
	return res, nil
}

func printRunResult(out io.Writer, res pipeline.RunResult) {
	_, _ = fmt.Fprintln(out, describe(res))
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "TYPE\tSTATUS\tMIGRATED\tSKIPPED\tFAILED\tCANCELLED\tALREADY MIGRATED")
	for _, a := range res.Actions {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%d\n", a.Type, a.Status,
			a.Counts[manifest.StatusMigrated], a.Counts[manifest.StatusSkipped],
			a.Counts[manifest.StatusFailed], a.Counts[manifest.StatusCancelled], a.AlreadyMigrated)
	}
	_ = tw.Flush()
	for _, err := range res.Errors {
		_, _ = fmt.Fprintf(out, "error: %v\n", err)
	}
}
