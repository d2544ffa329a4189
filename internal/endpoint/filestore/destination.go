package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/contentmigrator/internal/content"
	merrors "git.home.luguber.info/inful/contentmigrator/internal/errors"
	"git.home.luguber.info/inful/contentmigrator/internal/migration"
)

// Capabilities reported by Destination.
const (
	CapabilityDefinitions = "definitions"
	CapabilityOwnership   = "ownership"
)

// Record is the JSON document written for a published item.
type Record struct {
	DestinationID string            `json:"destination_id"`
	Type          content.Type      `json:"type"`
	SourceID      string            `json:"source_id"`
	Name          string            `json:"name"`
	Location      content.Location  `json:"location"`
	Owner         string            `json:"owner,omitempty"`
	Attributes    map[string]string `json:"attributes,omitempty"`
	Definition    string            `json:"definition,omitempty"`
	PublishedAt   time.Time         `json:"published_at"`
}

// Destination writes published items below a root directory.
type Destination struct {
	root string
}

// NewDestination returns a destination rooted at root.
func NewDestination(root string) *Destination {
	return &Destination{root: root}
}

// Publish implements migration.Destination. Items without a name are
// rejected. A forced remigration overwrites the previous record.
func (d *Destination) Publish(ctx context.Context, req migration.PublishRequest) (migration.PublishResult, error) {
	if err := ctx.Err(); err != nil {
		return migration.PublishResult{}, err
	}
	src := req.Item.Reference
	if src.Name == "" {
		return migration.PublishResult{
			Errors: []error{merrors.PublishRejected(src.ID, "item has no name")},
		}, nil
	}

	id := req.PreviousDestinationID
	if id == "" {
		id = uuid.NewString()
	}
	rec := Record{
		DestinationID: id,
		Type:          req.Type,
		SourceID:      src.ID,
		Name:          src.Name,
		Location:      req.Location,
		Owner:         req.Item.Owner,
		Attributes:    req.Item.Attributes,
		Definition:    string(req.Item.Definition),
		PublishedAt:   time.Now().UTC(),
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return migration.PublishResult{}, fmt.Errorf("encode record: %w", err)
	}

	dir := filepath.Join(d.root, string(req.Type))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return migration.PublishResult{}, fmt.Errorf("create directory %s: %w", dir, err)
	}
	if err := writeAtomic(filepath.Join(dir, id+".json"), data); err != nil {
		return migration.PublishResult{}, err
	}
	return migration.PublishResult{Success: true, DestinationID: id}, nil
}

// Get reads a published record.
func (d *Destination) Get(ct content.Type, id string) (Record, error) {
	var rec Record
	// #nosec G304 - path is built from the configured destination root
	data, err := os.ReadFile(filepath.Join(d.root, string(ct), id+".json"))
	if err != nil {
		return rec, err
	}
	err = json.Unmarshal(data, &rec)
	return rec, err
}

// Preflight implements migration.Preflighter: the root must be creatable and
// writable.
func (d *Destination) Preflight(context.Context) error {
	if err := os.MkdirAll(d.root, 0o750); err != nil {
		return fmt.Errorf("destination root: %w", err)
	}
	probe, err := os.CreateTemp(d.root, ".preflight-*")
	if err != nil {
		return fmt.Errorf("destination root not writable: %w", err)
	}
	name := probe.Name()
	_ = probe.Close()
	return os.Remove(name)
}

// HasCapability implements migration.CapabilityChecker.
func (d *Destination) HasCapability(_ context.Context, name string) (bool, error) {
	switch name {
	case CapabilityDefinitions, CapabilityOwnership:
		return true, nil
	default:
		return false, nil
	}
}

func writeAtomic(path string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".publish-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()
	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
