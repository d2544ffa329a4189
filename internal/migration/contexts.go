package migration

import (
	"git.home.luguber.info/inful/contentmigrator/internal/content"
)

// FilterSet is the context of the filter chain: every enumerated item of one
// content type. Filters may drop items; items they add are ignored.
type FilterSet struct {
	Type  content.Type
	Run   *RunState
	Items []content.Item
}

// Without returns a copy of s minus the items whose ID is in ids.
func (s FilterSet) Without(ids map[string]bool) FilterSet {
	out := FilterSet{Type: s.Type, Run: s.Run, Items: make([]content.Item, 0, len(s.Items))}
	for _, it := range s.Items {
		if !ids[it.Reference.ID] {
			out.Items = append(out.Items, it)
		}
	}
	return out
}

// Keep returns a copy of s with only the items pred accepts.
func (s FilterSet) Keep(pred func(content.Item) bool) FilterSet {
	out := FilterSet{Type: s.Type, Run: s.Run, Items: make([]content.Item, 0, len(s.Items))}
	for _, it := range s.Items {
		if pred(it) {
			out.Items = append(out.Items, it)
		}
	}
	return out
}

// MigrationItem is the context of the mapping chain. Each mapping hook sees
// the destination chosen by the previous one.
type MigrationItem struct {
	Type        content.Type
	Run         *RunState
	Source      content.Item
	Destination content.Location
}

// TransformItem is the context of the transform chain. Item is a private copy
// that hooks may rewrite.
type TransformItem struct {
	Type        content.Type
	Run         *RunState
	Item        content.Item
	Destination content.Location
}

// PublishedItem is the context of per-item post-publish hooks.
type PublishedItem struct {
	Type          content.Type
	Run           *RunState
	Source        content.Reference
	Location      content.Location
	DestinationID string
}

// PublishedBatch is the context of bulk post-publish hooks.
type PublishedBatch struct {
	Type  content.Type
	Run   *RunState
	Batch int
	Items []PublishedItem
}

// BatchCompletion is the context of batch-completed hooks.
type BatchCompletion struct {
	Run    *RunState
	Result BatchResult
}

// ActionCompletion is the context of action-completed hooks. Hooks may return
// an amended Result.
type ActionCompletion struct {
	Run    *RunState
	Result ActionResult
}

// WithError attaches a hook failure to the amended result.
func (c ActionCompletion) WithError(err error) ActionCompletion {
	c.Result = c.Result.withError(err)
	return c
}
