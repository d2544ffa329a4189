package extensions

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/contentmigrator/internal/config"
	"git.home.luguber.info/inful/contentmigrator/internal/content"
	"git.home.luguber.info/inful/contentmigrator/internal/hooks"
	"git.home.luguber.info/inful/contentmigrator/internal/manifest"
	"git.home.luguber.info/inful/contentmigrator/internal/migration"
	"git.home.luguber.info/inful/contentmigrator/internal/testendpoint"
)

func newRun(ep *testendpoint.Endpoint) *migration.RunState {
	return migration.NewRunState("run-1", ep, ep, manifest.New())
}

func ids(items []content.Item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Reference.ID)
	}
	return out
}

func TestSkipIDs(t *testing.T) {
	in := migration.FilterSet{Type: content.TypeUser, Items: testendpoint.Items("u", 3)}

	out, err := SkipIDs("u-1").Execute(context.Background(), in)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, []string{"u-0", "u-2"}, ids(out.Items))

	out, err = SkipIDs().Execute(context.Background(), in)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestExcludeLocations(t *testing.T) {
	items := []content.Item{
		testendpoint.Item("w1", "Sales", "Archive"),
		testendpoint.Item("w2", "Sales", "Live"),
		testendpoint.Item("w3", "Old", "Archive", "2019"),
	}
	in := migration.FilterSet{Type: content.TypeWorkbook, Items: items}

	out, err := ExcludeLocations(content.ParseLocation("Archive")).Execute(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, []string{"w2"}, ids(out.Items))
}

func TestPrefixMappingLongestMatch(t *testing.T) {
	hook := PrefixMapping(
		PrefixRule{From: content.ParseLocation("Finance"), To: content.ParseLocation("Shared/Finance")},
		PrefixRule{From: content.ParseLocation("Finance/Reports"), To: content.ParseLocation("Reporting")},
	)
	in := migration.MigrationItem{Destination: content.ParseLocation("Finance/Reports/Q1")}

	out, err := hook.Execute(context.Background(), in)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, "Reporting/Q1", out.Destination.String())

	out, err = hook.Execute(context.Background(), migration.MigrationItem{Destination: content.ParseLocation("HR/Q1")})
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestNormalizeNames(t *testing.T) {
	in := migration.MigrationItem{Destination: content.NewLocation("Sales", "Cafe\u0301   Reports")}

	out, err := NormalizeNames().Execute(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "Sales/Caf\u00e9 Reports", out.Destination.String())
}

func TestDefinitionRewriter(t *testing.T) {
	def := `<workbook><datasources><connection server="old.example.com/db" name="x"/></datasources></workbook>`
	hook := DefinitionRewriter(AttributeRewrite{Element: "connection", Attribute: "server", From: "old.example.com", To: "new.example.com"})

	in := migration.TransformItem{Item: content.Item{Definition: []byte(def)}}
	out, err := hook.Execute(context.Background(), in)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Contains(t, string(out.Item.Definition), `server="new.example.com/db"`)
	assert.Contains(t, string(out.Item.Definition), `name="x"`)
	assert.Equal(t, def, string(in.Item.Definition), "input must not be mutated")

	t.Run("no match leaves item unchanged", func(t *testing.T) {
		other := migration.TransformItem{Item: content.Item{Definition: []byte(`<workbook/>`)}}
		out, err := hook.Execute(context.Background(), other)
		require.NoError(t, err)
		assert.Nil(t, out)
	})

	t.Run("malformed definition fails", func(t *testing.T) {
		bad := migration.TransformItem{Item: content.Item{Definition: []byte(`<workbook><connection`)}}
		_, err := hook.Execute(context.Background(), bad)
		require.Error(t, err)
	})
}

func TestPreflight(t *testing.T) {
	ep := testendpoint.New()
	_, err := Preflight().Execute(context.Background(), newRun(ep))
	require.NoError(t, err)

	ep.FailPreflight(errors.New("unreachable"))
	_, err = Preflight().Execute(context.Background(), newRun(ep))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreachable")
}

func TestCapabilityCheckAndVerify(t *testing.T) {
	ep := testendpoint.New()
	run := newRun(ep)

	_, err := CheckCapability("subscriptions").Execute(context.Background(), run)
	require.NoError(t, err)
	available, checked := run.Capability("subscriptions")
	assert.True(t, checked)
	assert.False(t, available)

	in := migration.ActionCompletion{Run: run, Result: migration.ActionResult{Type: content.TypeWorkbook, Status: migration.ActionSuccess}}
	out, err := VerifyCapability("subscriptions").Execute(context.Background(), in)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, migration.ActionFailed, out.Result.Status)
	require.Len(t, out.Result.Errors, 1)
	assert.ErrorIs(t, out.Result.Errors[0], ErrCapabilityMissing)

	ep.SetCapability("subscriptions", true)
	_, err = CheckCapability("subscriptions").Execute(context.Background(), run)
	require.NoError(t, err)
	out, err = VerifyCapability("subscriptions").Execute(context.Background(), in)
	require.NoError(t, err)
	assert.Nil(t, out)

	out, err = VerifyCapability("unchecked").Execute(context.Background(), in)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestRegisterFromConfig(t *testing.T) {
	cfg := &config.Config{
		Filters: config.FiltersConfig{
			SkipIDs:          map[string][]string{"users": {"u-1"}, "workbooks": {"w-1"}},
			ExcludeLocations: []string{"Archive"},
		},
		Mappings: config.MappingsConfig{
			Prefixes:       []config.PrefixMapping{{From: "Old", To: "New"}},
			NormalizeNames: true,
		},
		Transforms: config.TransformsConfig{
			AttributeRewrites: []config.AttributeRewrite{{Element: "connection", Attribute: "server", From: "a", To: "b"}},
		},
	}
	r := hooks.NewRegistry()
	require.NoError(t, Register(r, cfg, nil))

	assert.Equal(t, 1, r.Count(hooks.PointInitializeMigration))
	assert.Equal(t, 3, r.Count(hooks.PointFilter))
	assert.Equal(t, 2, r.Count(hooks.PointMapping))
	assert.Equal(t, 2, r.Count(hooks.PointTransform))
	assert.Equal(t, 1, r.Count(hooks.PointBatchCompleted))

	assert.Len(t, hooks.Resolve[migration.FilterSet](r, hooks.PointFilter, content.TypeUser), 2)
	assert.Len(t, hooks.Resolve[migration.FilterSet](r, hooks.PointFilter, content.TypeGroup), 1)
	assert.Len(t, hooks.Resolve[migration.TransformItem](r, hooks.PointTransform, content.TypeUser), 0)
}
