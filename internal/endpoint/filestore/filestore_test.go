package filestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/contentmigrator/internal/content"
	merrors "git.home.luguber.info/inful/contentmigrator/internal/errors"
	"git.home.luguber.info/inful/contentmigrator/internal/migration"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func exportTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "users", "a.yaml"), "id: u1\nname: alice\nowner: admin\n")
	writeFile(t, filepath.Join(root, "users", "b.yaml"), "id: u2\nname: bob\n---\nid: u3\nname: carol\nlocation: Staff/carol\n")
	writeFile(t, filepath.Join(root, "users", "notes.txt"), "ignored")
	writeFile(t, filepath.Join(root, "workbooks", "sales.yml"),
		"id: w1\nname: Sales\nlocation: Finance/Sales\ndefinition: <workbook/>\nattributes:\n  tag: q1\n")
	return root
}

func TestSourceListItemsPaging(t *testing.T) {
	src := NewSource(exportTree(t))
	ctx := context.Background()

	first, err := src.ListItems(ctx, content.TypeUser, migration.Page{Size: 2})
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	assert.True(t, first.HasMore)
	assert.Equal(t, "u1", first.Items[0].Reference.ID)
	assert.Equal(t, "admin", first.Items[0].Owner)
	assert.Equal(t, "alice", first.Items[0].Reference.Location.String())

	second, err := src.ListItems(ctx, content.TypeUser, migration.Page{Token: first.Next, Size: 2})
	require.NoError(t, err)
	require.Len(t, second.Items, 1)
	assert.False(t, second.HasMore)
	assert.Equal(t, "Staff/carol", second.Items[0].Reference.Location.String())
}

func TestSourceDocumentFields(t *testing.T) {
	src := NewSource(exportTree(t))
	page, err := src.ListItems(context.Background(), content.TypeWorkbook, migration.Page{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	it := page.Items[0]
	assert.Equal(t, "<workbook/>", string(it.Definition))
	assert.Equal(t, "q1", it.Attributes["tag"])
	assert.Equal(t, "Finance/Sales", it.Reference.Location.String())
}

func TestSourceMissingTypeAndBadInput(t *testing.T) {
	root := exportTree(t)
	src := NewSource(root)

	page, err := src.ListItems(context.Background(), content.TypeGroup, migration.Page{})
	require.NoError(t, err)
	assert.Empty(t, page.Items)

	_, err = src.ListItems(context.Background(), content.TypeUser, migration.Page{Token: "x"})
	require.Error(t, err)

	writeFile(t, filepath.Join(root, "projects", "p.yaml"), "name: no-id\n")
	_, err = src.ListItems(context.Background(), content.TypeProject, migration.Page{})
	require.Error(t, err)
}

func TestDestinationPublish(t *testing.T) {
	dst := NewDestination(t.TempDir())
	ctx := context.Background()
	item := content.Item{
		Reference:  content.Reference{ID: "w1", Name: "Sales", Location: content.ParseLocation("Finance/Sales")},
		Definition: []byte("<workbook/>"),
	}

	res, err := dst.Publish(ctx, migration.PublishRequest{Type: content.TypeWorkbook, Item: item, Location: content.ParseLocation("Shared/Sales")})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.NotEmpty(t, res.DestinationID)

	rec, err := dst.Get(content.TypeWorkbook, res.DestinationID)
	require.NoError(t, err)
	assert.Equal(t, "w1", rec.SourceID)
	assert.Equal(t, "Shared/Sales", rec.Location.String())
	assert.Equal(t, "<workbook/>", rec.Definition)

	again, err := dst.Publish(ctx, migration.PublishRequest{
		Type: content.TypeWorkbook, Item: item, Location: content.ParseLocation("Shared/Sales"),
		PreviousDestinationID: res.DestinationID,
	})
	require.NoError(t, err)
	assert.Equal(t, res.DestinationID, again.DestinationID)
}

func TestDestinationRejectsUnnamed(t *testing.T) {
	dst := NewDestination(t.TempDir())
	res, err := dst.Publish(context.Background(), migration.PublishRequest{
		Type: content.TypeUser, Item: content.Item{Reference: content.Reference{ID: "u9"}},
	})
	require.NoError(t, err)
	assert.False(t, res.Success)
	require.Len(t, res.Errors, 1)
	assert.True(t, merrors.IsCategory(res.Errors[0], merrors.CategoryPublish))
}

func TestPreflightAndCapabilities(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, NewSource(root).Preflight(context.Background()))
	require.Error(t, NewSource(filepath.Join(root, "missing")).Preflight(context.Background()))

	dst := NewDestination(filepath.Join(root, "out"))
	require.NoError(t, dst.Preflight(context.Background()))

	ok, err := dst.HasCapability(context.Background(), CapabilityDefinitions)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = dst.HasCapability(context.Background(), "subscriptions")
	assert.False(t, ok)
}
