// Package filestore implements a directory-backed migration endpoint.
//
// A source root holds one directory per content type with YAML documents:
//
//	export/
//	  users/
//	    alice.yaml
//	  workbooks/
//	    sales.yaml   (one or more documents separated by ---)
//
// A destination root receives one JSON record per published item under
// <root>/<type>/<destination-id>.json.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/contentmigrator/internal/content"
	"git.home.luguber.info/inful/contentmigrator/internal/migration"
)

// document is the YAML shape of one exported item.
type document struct {
	ID         string            `yaml:"id"`
	Name       string            `yaml:"name"`
	Location   string            `yaml:"location,omitempty"`
	Owner      string            `yaml:"owner,omitempty"`
	Attributes map[string]string `yaml:"attributes,omitempty"`
	Definition string            `yaml:"definition,omitempty"`
}

func (d document) item() content.Item {
	loc := content.ParseLocation(d.Location)
	if d.Location == "" {
		loc = content.NewLocation(d.Name)
	}
	it := content.Item{
		Reference:  content.Reference{ID: d.ID, Name: d.Name, Location: loc},
		Owner:      d.Owner,
		Attributes: d.Attributes,
	}
	if d.Definition != "" {
		it.Definition = []byte(d.Definition)
	}
	return it
}

// Source reads items from an export tree.
type Source struct {
	root string
}

// NewSource returns a source rooted at root.
func NewSource(root string) *Source {
	return &Source{root: root}
}

// Root returns the export directory.
func (s *Source) Root() string { return s.root }

// ListItems implements migration.Source. The page token is the offset of the
// next item in file-name order. A missing type directory lists nothing.
func (s *Source) ListItems(ctx context.Context, ct content.Type, page migration.Page) (migration.ItemPage, error) {
	offset := 0
	if page.Token != "" {
		n, err := strconv.Atoi(page.Token)
		if err != nil || n < 0 {
			return migration.ItemPage{}, fmt.Errorf("invalid page token %q", page.Token)
		}
		offset = n
	}

	items, err := s.readAll(ctx, ct)
	if err != nil {
		return migration.ItemPage{}, err
	}
	if offset >= len(items) {
		return migration.ItemPage{}, nil
	}

	end := len(items)
	if page.Size > 0 && offset+page.Size < end {
		end = offset + page.Size
	}
	out := migration.ItemPage{Items: items[offset:end]}
	if end < len(items) {
		out.HasMore = true
		out.Next = strconv.Itoa(end)
	}
	return out, nil
}

func (s *Source) readAll(ctx context.Context, ct content.Type) ([]content.Item, error) {
	dir := filepath.Join(s.root, string(ct))
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ext := strings.ToLower(filepath.Ext(e.Name())); ext == ".yaml" || ext == ".yml" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var items []content.Item
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		docs, err := readDocuments(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		for _, d := range docs {
			items = append(items, d.item())
		}
	}
	return items, nil
}

func readDocuments(path string) ([]document, error) {
	// #nosec G304 - path is built from the configured export root
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	var out []document
	dec := yaml.NewDecoder(f)
	for {
		var d document
		err := dec.Decode(&d)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if d.ID == "" {
			return nil, fmt.Errorf("parse %s: document %d has no id", path, len(out)+1)
		}
		out = append(out, d)
	}
	return out, nil
}

// Preflight implements migration.Preflighter.
func (s *Source) Preflight(context.Context) error {
	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("source root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source root %s is not a directory", s.root)
	}
	return nil
}
