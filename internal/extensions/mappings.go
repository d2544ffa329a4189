package extensions

import (
	"context"
	"strings"

	"golang.org/x/text/unicode/norm"

	"git.home.luguber.info/inful/contentmigrator/internal/content"
	"git.home.luguber.info/inful/contentmigrator/internal/hooks"
	"git.home.luguber.info/inful/contentmigrator/internal/migration"
)

// PrefixRule moves destinations below From to the same relative path below To.
type PrefixRule struct {
	From content.Location
	To   content.Location
}

// PrefixMapping applies the first rule whose From is a prefix of the current
// destination. The longest matching rule wins when several match.
func PrefixMapping(rules ...PrefixRule) hooks.Hook[migration.MigrationItem] {
	return hooks.HookFunc[migration.MigrationItem](func(_ context.Context, in migration.MigrationItem) (*migration.MigrationItem, error) {
		best := -1
		for i, r := range rules {
			if !in.Destination.HasPrefix(r.From) {
				continue
			}
			if best < 0 || len(r.From.Segments()) > len(rules[best].From.Segments()) {
				best = i
			}
		}
		if best < 0 {
			return nil, nil
		}
		moved, _ := in.Destination.ReplacePrefix(rules[best].From, rules[best].To)
		in.Destination = moved
		return &in, nil
	})
}

// NormalizeNames rewrites every destination segment to Unicode NFC with
// collapsed whitespace, so names that differ only in composition or spacing
// land on the same destination path.
func NormalizeNames() hooks.Hook[migration.MigrationItem] {
	return hooks.Sync(func(in migration.MigrationItem) (migration.MigrationItem, error) {
		segs := in.Destination.Segments()
		for i, s := range segs {
			segs[i] = strings.Join(strings.Fields(norm.NFC.String(s)), " ")
		}
		in.Destination = content.NewLocation(segs...)
		return in, nil
	})
}
