// Package extensions provides the built-in hooks that can be enabled from
// configuration: skip-list and location filters, prefix and name-normalizing
// mappings, XML definition rewriting, endpoint preflight, capability
// verification and batch logging.
package extensions

import (
	"context"

	"git.home.luguber.info/inful/contentmigrator/internal/content"
	"git.home.luguber.info/inful/contentmigrator/internal/hooks"
	"git.home.luguber.info/inful/contentmigrator/internal/migration"
)

// SkipIDs drops items whose source ID is listed.
func SkipIDs(ids ...string) hooks.Hook[migration.FilterSet] {
	skip := make(map[string]bool, len(ids))
	for _, id := range ids {
		skip[id] = true
	}
	return hooks.HookFunc[migration.FilterSet](func(_ context.Context, in migration.FilterSet) (*migration.FilterSet, error) {
		if len(skip) == 0 {
			return nil, nil
		}
		out := in.Without(skip)
		return &out, nil
	})
}

// ExcludeLocations drops items located at or below any of the prefixes.
func ExcludeLocations(prefixes ...content.Location) hooks.Hook[migration.FilterSet] {
	return hooks.HookFunc[migration.FilterSet](func(_ context.Context, in migration.FilterSet) (*migration.FilterSet, error) {
		if len(prefixes) == 0 {
			return nil, nil
		}
		out := in.Keep(func(it content.Item) bool {
			for _, p := range prefixes {
				if it.Reference.Location.HasPrefix(p) {
					return false
				}
			}
			return true
		})
		return &out, nil
	})
}
