package manifest

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/contentmigrator/internal/content"
	merrors "git.home.luguber.info/inful/contentmigrator/internal/errors"
)

var fixedTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func buildManifest(t *testing.T, types ...content.Type) *Manifest {
	t.Helper()
	m := New()
	for _, ct := range types {
		ok, _ := m.GetOrCreate(ct, ref(string(ct)+"-ok"))
		require.NoError(t, ok.SetMappedLocation(content.NewLocation("dest", string(ct))))
		require.NoError(t, ok.MarkMigrated("dst-"+string(ct)))

		bad, _ := m.GetOrCreate(ct, ref(string(ct)+"-bad"))
		require.NoError(t, bad.MarkFailed(ErrorRecord{
			Category: "publish",
			Severity: "error",
			Message:  "rejected",
			Context:  map[string]string{"source_id": string(ct) + "-bad"},
			Time:     fixedTime,
		}))

		skipped, _ := m.GetOrCreate(ct, ref(string(ct)+"-skip"))
		require.NoError(t, skipped.MarkSkipped())

		m.GetOrCreate(ct, ref(string(ct)+"-pending"))
	}
	return m
}

func TestRoundTrip(t *testing.T) {
	cases := map[string][]content.Type{
		"empty": nil,
		"one":   {content.TypeUser},
		"many":  {content.TypeUser, content.TypeProject, content.TypeWorkbook},

		"separator in names": {content.TypeProject},
	}
	for name, types := range cases {
		t.Run(name, func(t *testing.T) {
			m := buildManifest(t, types...)
			if name == "separator in names" {
				w, _ := m.GetOrCreate(content.TypeWorkbook, content.Reference{
					ID:       "w-slash",
					Name:     "Q1/Q2 Report",
					Location: content.NewLocation(`Back\slash`, "Q1/Q2 Report"),
				})
				require.NoError(t, w.SetMappedLocation(content.NewLocation("Finance", "Q1/Q2 Report")))
				require.NoError(t, w.MarkMigrated("dst-w-slash"))
			}
			m.AddError(ErrorRecord{Category: "enumeration", Severity: "fatal", Message: "listing failed", Time: fixedTime})

			var buf bytes.Buffer
			require.NoError(t, Encode(&buf, m))
			got, err := Decode(&buf)
			require.NoError(t, err)

			assert.Equal(t, m.ID(), got.ID())
			assert.Equal(t, m.Snapshots(""), got.Snapshots(""))
			assert.Equal(t, m.Errors(), got.Errors())
			assert.Equal(t, m.ContentTypes(), got.ContentTypes())
		})
	}
}

func TestLocationsSurviveEncoding(t *testing.T) {
	m := New()
	src := content.Reference{ID: "w1", Name: "Q1/Q2 Report", Location: content.NewLocation("Q1/Q2 Report")}
	e, _ := m.GetOrCreate(content.TypeWorkbook, src)
	mapped := content.NewLocation("Finance", "Q1/Q2 Report")
	require.NoError(t, e.SetMappedLocation(mapped))
	require.NoError(t, e.MarkMigrated("d1"))

	data, err := Marshal(m)
	require.NoError(t, err)
	got, err := Unmarshal(data)
	require.NoError(t, err)

	s := got.Snapshots(content.TypeWorkbook)[0]
	assert.Equal(t, []string{"Finance", "Q1/Q2 Report"}, s.MappedLocation.Segments())
	assert.Equal(t, []string{"Q1/Q2 Report"}, s.Source.Location.Segments())
}

func TestRecordFromErrorRoundTrips(t *testing.T) {
	m := New()
	e, _ := m.GetOrCreate(content.TypeDataSource, ref("ds"))
	rec := RecordFromError(merrors.PublishFailed("ds", assert.AnError))
	require.NoError(t, e.MarkFailed(rec))

	data, err := Marshal(m)
	require.NoError(t, err)
	got, err := Unmarshal(data)
	require.NoError(t, err)

	s := got.Snapshots(content.TypeDataSource)[0]
	require.Len(t, s.Errors, 1)
	assert.Equal(t, "publish", s.Errors[0].Category)
	assert.Equal(t, "ds", s.Errors[0].Context["source_id"])
	assert.True(t, rec.Time.Equal(s.Errors[0].Time))
}

func TestVersionGuard(t *testing.T) {
	cases := []struct {
		version string
		ok      bool
	}{
		{"1.0", true},
		{"1.7", true},
		{"2.0", false},
		{"0.9", false},
		{"", false},
		{"one.two", false},
	}
	for _, tc := range cases {
		t.Run(tc.version, func(t *testing.T) {
			doc := []byte(`{"schema_version":"` + tc.version + `","id":"x","entries":[{"content_type":"users","source":{"id":"u1"},"status":"migrated"}]}`)
			m, err := Unmarshal(doc)
			if tc.ok {
				require.NoError(t, err)
				assert.Equal(t, 1, m.Len())
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrUnsupportedVersion)
			assert.True(t, merrors.IsCategory(err, merrors.CategoryManifest))
			assert.Nil(t, m)
		})
	}
}

func TestUnmarshalRejectsCorruptEntries(t *testing.T) {
	_, err := Unmarshal([]byte(`{"schema_version":"1.0","entries":[{"content_type":"users","source":{"id":"u"},"status":"bogus"}]}`))
	assert.Error(t, err)
	_, err = Unmarshal([]byte(`{"schema_version":"1.0","entries":[
		{"content_type":"users","source":{"id":"u"},"status":"pending"},
		{"content_type":"users","source":{"id":"u"},"status":"pending"}]}`))
	assert.Error(t, err)
}

func TestStores(t *testing.T) {
	dir := t.TempDir()
	handles := []string{
		"file:" + filepath.Join(dir, "nested", "manifest.json"),
		"sqlite:" + filepath.Join(dir, "manifests.db") + "#prod",
	}
	for _, h := range handles {
		t.Run(h[:4], func(t *testing.T) {
			ctx := context.Background()
			s, err := OpenStore(h)
			require.NoError(t, err)
			defer func() { _ = s.Close() }()

			_, err = s.Load(ctx)
			assert.ErrorIs(t, err, ErrNotFound)
			fresh, err := LoadOrNew(ctx, s)
			require.NoError(t, err)
			assert.Zero(t, fresh.Len())

			m := buildManifest(t, content.TypeUser, content.TypeGroup)
			require.NoError(t, s.Save(ctx, m))
			e, _ := m.Entry(content.TypeUser, "users-pending")
			require.NoError(t, e.MarkCancelled())
			require.NoError(t, s.Save(ctx, m))

			got, err := s.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, m.Snapshots(""), got.Snapshots(""))
		})
	}
}

func TestOpenStoreRejectsBadHandles(t *testing.T) {
	for _, h := range []string{"", "manifest.json", "s3:bucket/key", "file:"} {
		_, err := OpenStore(h)
		assert.Error(t, err, h)
	}
}
