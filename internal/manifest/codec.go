package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	merrors "git.home.luguber.info/inful/contentmigrator/internal/errors"
)

// SchemaVersion is written into every encoded manifest. Readers accept any
// minor version of the same major.
const SchemaVersion = "1.0"

// ErrUnsupportedVersion is returned when decoding a manifest written with an
// incompatible schema.
var ErrUnsupportedVersion = errors.New("unsupported manifest schema version")

type document struct {
	SchemaVersion string          `json:"schema_version"`
	ID            string          `json:"id"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Entries       []EntrySnapshot `json:"entries"`
	Errors        []ErrorRecord   `json:"errors,omitempty"`
}

// versionProbe reads only the version so incompatible documents are rejected
// before their body is interpreted.
type versionProbe struct {
	SchemaVersion string `json:"schema_version"`
}

// Marshal encodes m as indented JSON.
func Marshal(m *Manifest) ([]byte, error) {
	m.mu.RLock()
	doc := document{
		SchemaVersion: SchemaVersion,
		ID:            m.id,
		CreatedAt:     m.createdAt,
		UpdatedAt:     time.Now().UTC(),
		Entries:       make([]EntrySnapshot, 0, len(m.order)),
		Errors:        append([]ErrorRecord(nil), m.errors...),
	}
	entries := append([]*Entry(nil), m.order...)
	m.mu.RUnlock()

	for _, e := range entries {
		doc.Entries = append(doc.Entries, e.Snapshot())
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	return data, nil
}

// Unmarshal decodes a manifest, validating its schema version first.
func Unmarshal(data []byte) (*Manifest, error) {
	var probe versionProbe
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("unmarshal manifest: %w", err)
	}
	if err := checkVersion(probe.SchemaVersion); err != nil {
		return nil, err
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal manifest: %w", err)
	}

	m := &Manifest{
		id:        doc.ID,
		createdAt: doc.CreatedAt,
		updated:   doc.UpdatedAt,
		index:     make(map[Key]*Entry, len(doc.Entries)),
		order:     make([]*Entry, 0, len(doc.Entries)),
		errors:    doc.Errors,
	}
	for i, s := range doc.Entries {
		if s.ContentType == "" || s.Source.ID == "" {
			return nil, fmt.Errorf("unmarshal manifest: entry %d has no content type or source id", i)
		}
		if !s.Status.valid() {
			return nil, fmt.Errorf("unmarshal manifest: entry %s/%s has unknown status %q", s.ContentType, s.Source.ID, s.Status)
		}
		key := Key{ContentType: s.ContentType, SourceID: s.Source.ID}
		if _, dup := m.index[key]; dup {
			return nil, fmt.Errorf("unmarshal manifest: duplicate entry %s", key)
		}
		e := fromSnapshot(s)
		m.index[key] = e
		m.order = append(m.order, e)
	}
	return m, nil
}

// Encode writes m to w.
func Encode(w io.Writer, m *Manifest) error {
	data, err := Marshal(m)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// Decode reads a manifest from r.
func Decode(r io.Reader) (*Manifest, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return Unmarshal(data)
}

func fromSnapshot(s EntrySnapshot) *Entry {
	e := &Entry{
		contentType:   s.ContentType,
		source:        s.Source,
		status:        s.Status,
		destinationID: s.DestinationID,
	}
	if s.MappedLocation != nil {
		e.mapped = *s.MappedLocation
		e.mappedSet = true
	}
	if len(s.Errors) > 0 {
		e.errors = append([]ErrorRecord(nil), s.Errors...)
	}
	return e
}

func checkVersion(found string) error {
	major, _, ok := parseVersion(found)
	supported, _, _ := parseVersion(SchemaVersion)
	if !ok || major != supported {
		return fmt.Errorf("%w: %w", ErrUnsupportedVersion, merrors.UnsupportedManifestVersion(found, SchemaVersion))
	}
	return nil
}

func parseVersion(v string) (major, minor int, ok bool) {
	majorStr, minorStr, found := strings.Cut(v, ".")
	if !found {
		return 0, 0, false
	}
	major, err := strconv.Atoi(majorStr)
	if err != nil || major < 0 {
		return 0, 0, false
	}
	minor, err = strconv.Atoi(minorStr)
	if err != nil || minor < 0 {
		return 0, 0, false
	}
	return major, minor, true
}
