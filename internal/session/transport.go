package session

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/edugate-dev/edugate/internal/authapi"
	"github.com/edugate-dev/edugate/internal/credstore"
)

// Refresher exchanges a refresh credential for a new credential pair.
type Refresher interface {
	Refresh(ctx context.Context, refreshCredential string) (authapi.Credentials, error)
}

// Option configures a Transport.
type Option func(*Transport)

// WithBase sets the transport that performs the actual HTTP exchanges.
// If not provided, http.DefaultTransport is used.
func WithBase(base http.RoundTripper) Option {
	return func(t *Transport) {
		if base != nil {
			t.base = base
		}
	}
}

// WithExemptions sets the routes excluded from the refresh protocol.
func WithExemptions(exempt *Exemptions) Option {
	return func(t *Transport) {
		t.exempt = exempt
	}
}

// Transport authenticates outgoing requests and coordinates credential
// refresh on authentication failure. It implements http.RoundTripper and is
// safe for concurrent use.
//
// At most one refresh exchange is in flight at any time. Requests that fail
// with 401 while a refresh is running are suspended and replayed, in
// failure order, once it settles; their callers only observe the final
// outcome.
type Transport struct {
	base      http.RoundTripper
	store     credstore.Store
	refresher Refresher
	exempt    *Exemptions

	// Coordinator state. The check-and-set from idle to refreshing and the
	// enqueue-vs-start decision must be atomic under concurrent failures,
	// otherwise two refresh exchanges can race.
	mu         sync.Mutex
	refreshing bool
	waiters    []*waiter

	// handlerMu also serializes handler invocation, so the handler never
	// runs concurrently with itself.
	handlerMu     sync.Mutex
	onSessionLoss func()
}

// Compile-time check to ensure Transport implements http.RoundTripper
var _ http.RoundTripper = (*Transport)(nil)

// New creates a Transport backed by the given credential store and refresher.
func New(store credstore.Store, refresher Refresher, opts ...Option) (*Transport, error) {
	if store == nil {
		return nil, fmt.Errorf("missing credential store")
	}
	if refresher == nil {
		return nil, fmt.Errorf("missing refresher")
	}

	t := &Transport{
		base:      http.DefaultTransport,
		store:     store,
		refresher: refresher,
	}
	for _, opt := range opts {
		opt(t)
	}

	return t, nil
}

// SetSessionLossHandler registers the callback fired when the session ends
// (rejected refresh, failed refresh exchange, or missing refresh
// credential). It replaces any previously registered handler; at most one
// handler is active at a time. The handler is fired once per session-ending
// event, regardless of how many requests that event fails.
func (t *Transport) SetSessionLossHandler(handler func()) {
	t.handlerMu.Lock()
	t.onSessionLoss = handler
	t.handlerMu.Unlock()
}

// RoundTrip dispatches one logical request through the authentication
// envelope. Transport-level errors and non-401 statuses pass through
// untouched; a 401 on a non-exempt route enters the refresh protocol.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	pending, err := newPendingRequest(req)
	if err != nil {
		return nil, fmt.Errorf("buffering request body: %w", err)
	}

	resp, err := t.dispatch(pending)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	if t.exempt.Match(req.URL) {
		// Auth exchanges are excluded from the refresh protocol; refreshing
		// on their failures would recurse.
		return resp, nil
	}

	return t.recover(pending, resp)
}

// dispatch performs one attempt of the logical request with the currently
// stored access credential. An absent credential is a valid state: the
// request goes out unauthenticated.
func (t *Transport) dispatch(p *pendingRequest) (*http.Response, error) {
	access, err := t.store.GetAccess(p.req.Context())
	if err != nil {
		return nil, fmt.Errorf("reading access credential: %w", err)
	}
	return t.base.RoundTrip(p.prepare(access))
}
