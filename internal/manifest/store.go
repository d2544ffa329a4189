package manifest

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	merrors "git.home.luguber.info/inful/contentmigrator/internal/errors"
)

// ErrNotFound is returned by Load when nothing has been saved yet.
var ErrNotFound = errors.New("manifest not found")

// Store persists manifests under a single opaque handle.
type Store interface {
	Save(ctx context.Context, m *Manifest) error
	Load(ctx context.Context) (*Manifest, error)
	Close() error
}

// OpenStore opens the store named by handle:
//
//	file:<path>           JSON document on disk
//	sqlite:<db>#<key>     row <key> in an SQLite database (key defaults to "default")
func OpenStore(handle string) (Store, error) {
	scheme, rest, ok := strings.Cut(handle, ":")
	if !ok || rest == "" {
		return nil, merrors.ValidationFailed("manifest.handle", fmt.Sprintf("invalid handle %q", handle))
	}
	switch scheme {
	case "file":
		return NewFileStore(rest), nil
	case "sqlite":
		db, key, _ := strings.Cut(rest, "#")
		return NewSQLiteStore(db, key)
	default:
		return nil, merrors.ValidationFailed("manifest.handle", fmt.Sprintf("unknown scheme %q", scheme))
	}
}

// LoadOrNew loads the stored manifest or returns a new one when none exists.
func LoadOrNew(ctx context.Context, s Store) (*Manifest, error) {
	m, err := s.Load(ctx)
	if errors.Is(err, ErrNotFound) {
		return New(), nil
	}
	return m, err
}

// FileStore keeps the manifest as a JSON file, replaced atomically on save.
type FileStore struct {
	path string
}

// NewFileStore returns a store writing to path.
func NewFileStore(path string) *FileStore { return &FileStore{path: path} }

// Path returns the file location.
func (s *FileStore) Path() string { return s.path }

// Save writes the manifest to a temporary file and renames it into place.
func (s *FileStore) Save(_ context.Context, m *Manifest) error {
	data, err := Marshal(m)
	if err != nil {
		return merrors.StoreFailed("save", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return merrors.StoreFailed("save", err)
	}
	tmp, err := os.CreateTemp(dir, ".manifest-*.json")
	if err != nil {
		return merrors.StoreFailed("save", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return merrors.StoreFailed("save", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return merrors.StoreFailed("save", err)
	}
	if err := tmp.Close(); err != nil {
		return merrors.StoreFailed("save", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return merrors.StoreFailed("save", err)
	}
	return nil
}

// Load reads the manifest file.
func (s *FileStore) Load(_ context.Context) (*Manifest, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, merrors.StoreFailed("load", err)
	}
	return Decode(bytes.NewReader(data))
}

// Close is a no-op.
func (s *FileStore) Close() error { return nil }

// SQLiteStore keeps manifests as rows keyed by name.
type SQLiteStore struct {
	db  *sql.DB
	key string
}

// NewSQLiteStore opens (and initializes) the database at dbPath. Use
// ":memory:" for a private in-memory database.
func NewSQLiteStore(dbPath, key string) (*SQLiteStore, error) {
	if key == "" {
		key = "default"
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, merrors.StoreFailed("open", err)
	}
	// a single connection keeps ":memory:" databases coherent
	db.SetMaxOpenConns(1)

	const schema = `
	CREATE TABLE IF NOT EXISTS manifests (
		name TEXT PRIMARY KEY,
		schema_version TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		document BLOB NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, merrors.StoreFailed("initialize", err)
	}
	return &SQLiteStore{db: db, key: key}, nil
}

// Save upserts the manifest document.
func (s *SQLiteStore) Save(ctx context.Context, m *Manifest) error {
	data, err := Marshal(m)
	if err != nil {
		return merrors.StoreFailed("save", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO manifests (name, schema_version, updated_at, document) VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			schema_version = excluded.schema_version,
			updated_at = excluded.updated_at,
			document = excluded.document`,
		s.key, SchemaVersion, time.Now().Unix(), data)
	if err != nil {
		return merrors.StoreFailed("save", err)
	}
	return nil
}

// Load reads the manifest document.
func (s *SQLiteStore) Load(ctx context.Context) (*Manifest, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT document FROM manifests WHERE name = ?", s.key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, merrors.StoreFailed("load", err)
	}
	return Unmarshal(data)
}

// Close releases the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }
