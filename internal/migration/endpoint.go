// Package migration implements the per-content-type Content Action: it
// enumerates items from a Source, runs the filter, mapping and transform hook
// chains, publishes to a Destination in bounded-parallel batches and records
// every outcome in the manifest.
package migration

import (
	"context"

	"git.home.luguber.info/inful/contentmigrator/internal/content"
)

// Page addresses one page of a source listing. An empty Token is the first page.
type Page struct {
	Token string
	Size  int
}

// ItemPage is one page of listed items.
type ItemPage struct {
	Items   []content.Item
	Next    string
	HasMore bool
}

// Source lists content from the server being migrated from.
type Source interface {
	ListItems(ctx context.Context, ct content.Type, page Page) (ItemPage, error)
}

// PublishRequest carries one transformed item to the destination.
type PublishRequest struct {
	Type     content.Type
	Item     content.Item
	Location content.Location
	// PreviousDestinationID is set when a previously migrated item is forced
	// through again.
	PreviousDestinationID string
}

// PublishResult is the destination's answer to a publish call. A transport
// failure is reported as the call's error; a rejection is Success == false.
type PublishResult struct {
	Success       bool
	DestinationID string
	Errors        []error
}

// Destination publishes content to the server being migrated to.
type Destination interface {
	Publish(ctx context.Context, req PublishRequest) (PublishResult, error)
}

// Preflighter is implemented by endpoints that can verify connectivity and
// permissions before a run.
type Preflighter interface {
	Preflight(ctx context.Context) error
}

// CapabilityChecker is implemented by endpoints that can report optional
// server capabilities.
type CapabilityChecker interface {
	HasCapability(ctx context.Context, name string) (bool, error)
}
