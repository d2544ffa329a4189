package extensions

import (
	"log/slog"

	"git.home.luguber.info/inful/contentmigrator/internal/config"
	"git.home.luguber.info/inful/contentmigrator/internal/content"
	"git.home.luguber.info/inful/contentmigrator/internal/hooks"
	"git.home.luguber.info/inful/contentmigrator/internal/migration"
)

// Register wires every hook enabled in cfg into r. Preflight and batch logging
// are always registered.
func Register(r *hooks.Registry, cfg *config.Config, logger *slog.Logger) error {
	if err := hooks.Register(r, hooks.PointInitializeMigration, hooks.AllTypes, Preflight()); err != nil {
		return err
	}

	for ct, ids := range cfg.Filters.SkipIDsByType() {
		if err := hooks.Register(r, hooks.PointFilter, ct, SkipIDs(ids...)); err != nil {
			return err
		}
	}
	if n := len(cfg.Filters.ExcludeLocations); n > 0 {
		prefixes := make([]content.Location, 0, n)
		for _, raw := range cfg.Filters.ExcludeLocations {
			prefixes = append(prefixes, content.ParseLocation(raw))
		}
		if err := hooks.Register(r, hooks.PointFilter, hooks.AllTypes, ExcludeLocations(prefixes...)); err != nil {
			return err
		}
	}

	if cfg.Mappings.NormalizeNames {
		if err := hooks.Register(r, hooks.PointMapping, hooks.AllTypes, NormalizeNames()); err != nil {
			return err
		}
	}
	if n := len(cfg.Mappings.Prefixes); n > 0 {
		rules := make([]PrefixRule, 0, n)
		for _, p := range cfg.Mappings.Prefixes {
			rules = append(rules, PrefixRule{From: content.ParseLocation(p.From), To: content.ParseLocation(p.To)})
		}
		if err := hooks.Register(r, hooks.PointMapping, hooks.AllTypes, PrefixMapping(rules...)); err != nil {
			return err
		}
	}

	if n := len(cfg.Transforms.AttributeRewrites); n > 0 {
		rules := make([]AttributeRewrite, 0, n)
		for _, a := range cfg.Transforms.AttributeRewrites {
			rules = append(rules, AttributeRewrite(a))
		}
		if err := hooks.Register(r, hooks.PointTransform, content.TypeWorkbook, DefinitionRewriter(rules...)); err != nil {
			return err
		}
		if err := hooks.Register(r, hooks.PointTransform, content.TypeDataSource, DefinitionRewriter(rules...)); err != nil {
			return err
		}
	}

	return hooks.Register[migration.BatchCompletion](r, hooks.PointBatchCompleted, hooks.AllTypes, LogBatch(logger))
}
