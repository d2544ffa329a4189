// Package testendpoint provides an in-memory Source and Destination with
// failure injection for exercising migrations in tests.
package testendpoint

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"git.home.luguber.info/inful/contentmigrator/internal/content"
	merrors "git.home.luguber.info/inful/contentmigrator/internal/errors"
	"git.home.luguber.info/inful/contentmigrator/internal/migration"
)

// Endpoint is an in-memory source and destination.
type Endpoint struct {
	mu sync.Mutex

	items        map[content.Type][]content.Item
	listErr      map[content.Type]error
	listFlaky    map[content.Type]int
	failPublish  map[string]error
	rejectReason map[string]string
	flakyPublish map[string]int
	capabilities map[string]bool
	preflightErr error
	onPublish    func(ctx context.Context, req migration.PublishRequest)
	publishDelay time.Duration

	inFlight    int
	maxInFlight int

	published map[content.Type][]migration.PublishRequest
	attempts  map[string]int
	calls     []string
	seq       int
}

// New returns an empty endpoint.
func New() *Endpoint {
	return &Endpoint{
		items:        make(map[content.Type][]content.Item),
		listErr:      make(map[content.Type]error),
		listFlaky:    make(map[content.Type]int),
		failPublish:  make(map[string]error),
		rejectReason: make(map[string]string),
		flakyPublish: make(map[string]int),
		capabilities: make(map[string]bool),
		published:    make(map[content.Type][]migration.PublishRequest),
		attempts:     make(map[string]int),
	}
}

// Item builds a test item located at location/.../name.
func Item(id, name string, location ...string) content.Item {
	return content.Item{
		Reference: content.Reference{
			ID:       id,
			Name:     name,
			Location: content.NewLocation(append(location, name)...),
		},
		Attributes: map[string]string{},
	}
}

// Items builds n items with IDs prefix-0..prefix-(n-1).
func Items(prefix string, n int, location ...string) []content.Item {
	out := make([]content.Item, n)
	for i := range out {
		id := fmt.Sprintf("%s-%d", prefix, i)
		out[i] = Item(id, id, location...)
	}
	return out
}

// Add registers source items of ct.
func (e *Endpoint) Add(ct content.Type, items ...content.Item) *Endpoint {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.items[ct] = append(e.items[ct], items...)
	return e
}

// FailList makes listing ct fail permanently.
func (e *Endpoint) FailList(ct content.Type, err error) *Endpoint {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listErr[ct] = err
	return e
}

// FlakyList makes the first n listings of ct fail with a retryable error.
func (e *Endpoint) FlakyList(ct content.Type, n int) *Endpoint {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listFlaky[ct] = n
	return e
}

// FailPublish makes publishing sourceID return err.
func (e *Endpoint) FailPublish(sourceID string, err error) *Endpoint {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failPublish[sourceID] = err
	return e
}

// RejectPublish makes publishing sourceID return a non-success result.
func (e *Endpoint) RejectPublish(sourceID, reason string) *Endpoint {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rejectReason[sourceID] = reason
	return e
}

// FlakyPublish makes the first n publishes of sourceID fail with a retryable error.
func (e *Endpoint) FlakyPublish(sourceID string, n int) *Endpoint {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.flakyPublish[sourceID] = n
	return e
}

// SetCapability declares an optional destination capability.
func (e *Endpoint) SetCapability(name string, available bool) *Endpoint {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.capabilities[name] = available
	return e
}

// FailPreflight makes Preflight return err.
func (e *Endpoint) FailPreflight(err error) *Endpoint {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.preflightErr = err
	return e
}

// OnPublish installs a callback invoked at the start of every publish.
func (e *Endpoint) OnPublish(fn func(ctx context.Context, req migration.PublishRequest)) *Endpoint {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onPublish = fn
	return e
}

// SlowPublish holds every publish for d before it completes.
func (e *Endpoint) SlowPublish(d time.Duration) *Endpoint {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.publishDelay = d
	return e
}

// MaxInFlight is the highest number of publishes observed running at once.
func (e *Endpoint) MaxInFlight() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.maxInFlight
}

// ListItems pages through the registered items. The page token is the offset.
func (e *Endpoint) ListItems(ctx context.Context, ct content.Type, page migration.Page) (migration.ItemPage, error) {
	if err := ctx.Err(); err != nil {
		return migration.ItemPage{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, "list:"+string(ct))

	if err := e.listErr[ct]; err != nil {
		return migration.ItemPage{}, err
	}
	if e.listFlaky[ct] > 0 {
		e.listFlaky[ct]--
		return migration.ItemPage{}, merrors.WrapRetryable(fmt.Errorf("listing unavailable"), merrors.CategoryEnumeration, merrors.SeverityError, "transient listing failure")
	}

	offset := 0
	if page.Token != "" {
		n, err := strconv.Atoi(page.Token)
		if err != nil {
			return migration.ItemPage{}, fmt.Errorf("bad page token %q", page.Token)
		}
		offset = n
	}
	size := page.Size
	if size <= 0 {
		size = len(e.items[ct])
	}
	all := e.items[ct]
	if offset > len(all) {
		offset = len(all)
	}
	end := min(offset+size, len(all))
	out := migration.ItemPage{Items: make([]content.Item, 0, end-offset)}
	for _, it := range all[offset:end] {
		out.Items = append(out.Items, it.Clone())
	}
	if end < len(all) {
		out.HasMore = true
		out.Next = strconv.Itoa(end)
	}
	return out, nil
}

// Publish records req and returns a destination ID unless a failure was injected.
func (e *Endpoint) Publish(ctx context.Context, req migration.PublishRequest) (migration.PublishResult, error) {
	e.mu.Lock()
	hook, delay := e.onPublish, e.publishDelay
	e.inFlight++
	e.maxInFlight = max(e.maxInFlight, e.inFlight)
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.inFlight--
		e.mu.Unlock()
	}()

	if hook != nil {
		hook(ctx, req)
	}
	if delay > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(delay):
		}
	}
	if err := ctx.Err(); err != nil {
		return migration.PublishResult{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	id := req.Item.Reference.ID
	e.attempts[id]++
	e.calls = append(e.calls, "publish:"+string(req.Type)+"/"+id)

	if err := e.failPublish[id]; err != nil {
		return migration.PublishResult{}, err
	}
	if e.flakyPublish[id] > 0 {
		e.flakyPublish[id]--
		return migration.PublishResult{}, merrors.WrapRetryable(fmt.Errorf("destination busy"), merrors.CategoryPublish, merrors.SeverityError, "transient publish failure")
	}
	if reason, ok := e.rejectReason[id]; ok {
		return migration.PublishResult{Errors: []error{fmt.Errorf("%s", reason)}}, nil
	}

	e.seq++
	e.published[req.Type] = append(e.published[req.Type], req)
	destID := req.PreviousDestinationID
	if destID == "" {
		destID = fmt.Sprintf("dst-%d", e.seq)
	}
	return migration.PublishResult{Success: true, DestinationID: destID}, nil
}

// Preflight implements migration.Preflighter.
func (e *Endpoint) Preflight(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.preflightErr
}

// HasCapability implements migration.CapabilityChecker.
func (e *Endpoint) HasCapability(_ context.Context, name string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.capabilities[name], nil
}

// Published returns the successful publish requests for ct.
func (e *Endpoint) Published(ct content.Type) []migration.PublishRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]migration.PublishRequest(nil), e.published[ct]...)
}

// PublishedIDs returns the source IDs published for ct.
func (e *Endpoint) PublishedIDs(ct content.Type) []string {
	var ids []string
	for _, r := range e.Published(ct) {
		ids = append(ids, r.Item.Reference.ID)
	}
	return ids
}

// Attempts returns how many times sourceID was sent to Publish.
func (e *Endpoint) Attempts(sourceID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.attempts[sourceID]
}

// Calls returns the ordered list/publish call log.
func (e *Endpoint) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}
