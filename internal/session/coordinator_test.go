package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/edugate-dev/edugate/internal/authapi"
)

// expiringBase simulates a backend whose old access credential has expired:
// requests carrying anything other than the valid credential get 401, and
// unauthenticated requests are let through so post-logout behavior can be
// observed. Dispatches are counted per logical request id.
type expiringBase struct {
	valid string

	mu         sync.Mutex
	dispatches map[string]int
	replayed   []string // paths of dispatches carrying the valid credential
}

func newExpiringBase(valid string) *expiringBase {
	return &expiringBase{valid: valid, dispatches: make(map[string]int)}
}

func (b *expiringBase) RoundTrip(r *http.Request) (*http.Response, error) {
	if err := r.Context().Err(); err != nil {
		return nil, err
	}

	auth := r.Header.Get("Authorization")
	ok := auth == "" || auth == "Bearer "+b.valid

	b.mu.Lock()
	b.dispatches[r.Header.Get(headerRequestID)]++
	if ok && auth != "" {
		b.replayed = append(b.replayed, r.URL.Path)
	}
	b.mu.Unlock()

	if !ok {
		return textResponse(http.StatusUnauthorized), nil
	}
	return textResponse(http.StatusOK), nil
}

func (b *expiringBase) maxDispatches() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	most := 0
	for _, n := range b.dispatches {
		if n > most {
			most = n
		}
	}
	return most
}

func (b *expiringBase) replayOrder() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.replayed...)
}

func TestConcurrentFailuresRefreshOnce(t *testing.T) {
	const concurrency = 4

	store := seededStore(t, "A1", "R1")
	refresher := &stubRefresher{
		gate:  make(chan struct{}),
		creds: authapi.Credentials{Access: "A2", Refresh: "R1"},
	}
	base := newExpiringBase("A2")
	tr := newTestTransport(t, store, refresher, base)

	var wg sync.WaitGroup
	statuses := make([]int, concurrency)
	errs := make([]error, concurrency)
	for i := range concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := mustGet(t, tr, fmt.Sprintf("https://api.test/v1/feed/%d", i))
			if err != nil {
				errs[i] = err
				return
			}
			defer resp.Body.Close()
			statuses[i] = resp.StatusCode
		}()
	}

	// One request triggers the refresh and blocks in it; the rest suspend.
	waitForWaiters(t, tr, concurrency-1)
	close(refresher.gate)
	wg.Wait()

	for i := range concurrency {
		if errs[i] != nil {
			t.Fatalf("request %d: %v", i, errs[i])
		}
		if statuses[i] != http.StatusOK {
			t.Errorf("request %d: status = %d, want 200", i, statuses[i])
		}
	}
	if n := refresher.calls.Load(); n != 1 {
		t.Errorf("refresh calls = %d, want 1", n)
	}
	if got := refresher.seen[0]; got != "R1" {
		t.Errorf("refresh credential sent = %q, want R1", got)
	}
	if access, _ := store.GetAccess(context.Background()); access != "A2" {
		t.Errorf("stored access credential = %q, want A2", access)
	}
	if n := base.maxDispatches(); n > 2 {
		t.Errorf("a logical request was dispatched %d times, want at most 2", n)
	}
}

func TestSuspendedRequestsReplayInFailureOrder(t *testing.T) {
	store := seededStore(t, "A1", "R1")
	refresher := &stubRefresher{
		gate:  make(chan struct{}),
		creds: authapi.Credentials{Access: "A2"},
	}
	base := newExpiringBase("A2")
	tr := newTestTransport(t, store, refresher, base)

	var wg sync.WaitGroup
	launch := func(path string) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := mustGet(t, tr, "https://api.test"+path)
			if err != nil {
				t.Errorf("%s: %v", path, err)
				return
			}
			resp.Body.Close()
		}()
	}

	launch("/v1/trigger")
	waitFor(t, "refresh to start", func() bool { return refresher.calls.Load() == 1 })

	// Queue three more in a known order.
	launch("/v1/first")
	waitForWaiters(t, tr, 1)
	launch("/v1/second")
	waitForWaiters(t, tr, 2)
	launch("/v1/third")
	waitForWaiters(t, tr, 3)

	close(refresher.gate)
	wg.Wait()

	want := []string{"/v1/first", "/v1/second", "/v1/third", "/v1/trigger"}
	got := base.replayOrder()
	if len(got) != len(want) {
		t.Fatalf("replays = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("replays = %v, want %v", got, want)
		}
	}
}

func TestFailedRefreshFailsBatchAndNotifiesOnce(t *testing.T) {
	const queued = 5

	store := seededStore(t, "A1", "R1")
	refresher := &stubRefresher{
		gate: make(chan struct{}),
		err:  &authapi.RefreshRejectedError{StatusCode: http.StatusUnauthorized},
	}
	base := newExpiringBase("A2")
	tr := newTestTransport(t, store, refresher, base)

	var notified atomic.Int64
	tr.SetSessionLossHandler(func() { notified.Add(1) })

	var wg sync.WaitGroup
	errs := make([]error, queued+1)
	launch := func(i int, path string) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := mustGet(t, tr, "https://api.test"+path)
			if err == nil {
				resp.Body.Close()
			}
			errs[i] = err
		}()
	}

	launch(0, "/v1/trigger")
	waitFor(t, "refresh to start", func() bool { return refresher.calls.Load() == 1 })
	for i := 1; i <= queued; i++ {
		launch(i, fmt.Sprintf("/v1/queued/%d", i))
		waitForWaiters(t, tr, i)
	}

	close(refresher.gate)
	wg.Wait()

	for i, err := range errs {
		if !errors.Is(err, ErrSessionEnded) {
			t.Errorf("request %d: err = %v, want session ended", i, err)
		}
		var rejected *authapi.RefreshRejectedError
		if !errors.As(err, &rejected) {
			t.Errorf("request %d: err = %v, want to carry the refresh rejection", i, err)
		}
	}
	if n := notified.Load(); n != 1 {
		t.Errorf("session-loss notifications = %d, want 1", n)
	}
	if n := refresher.calls.Load(); n != 1 {
		t.Errorf("refresh calls = %d, want 1", n)
	}

	ctx := context.Background()
	if access, _ := store.GetAccess(ctx); access != "" {
		t.Errorf("access credential = %q, want cleared", access)
	}
	if refresh, _ := store.GetRefresh(ctx); refresh != "" {
		t.Errorf("refresh credential = %q, want cleared", refresh)
	}

	// A later unrelated request goes out unauthenticated and succeeds.
	resp, err := mustGet(t, tr, "https://api.test/v1/public")
	if err != nil {
		t.Fatalf("post-logout request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("post-logout status = %d, want 200", resp.StatusCode)
	}
}

func TestMissingRefreshCredentialEndsSession(t *testing.T) {
	store := seededStore(t, "A1", "")
	refresher := &stubRefresher{}
	base := newExpiringBase("A2")
	tr := newTestTransport(t, store, refresher, base)

	var notified atomic.Int64
	tr.SetSessionLossHandler(func() { notified.Add(1) })

	_, err := mustGet(t, tr, "https://api.test/v1/tasks")
	if !errors.Is(err, ErrSessionEnded) {
		t.Fatalf("err = %v, want session ended", err)
	}
	if n := refresher.calls.Load(); n != 0 {
		t.Errorf("refresh calls = %d, want 0", n)
	}
	if n := notified.Load(); n != 1 {
		t.Errorf("session-loss notifications = %d, want 1", n)
	}
	if access, _ := store.GetAccess(context.Background()); access != "" {
		t.Errorf("access credential = %q, want cleared", access)
	}
}

func TestSecondRejectionIsFinal(t *testing.T) {
	store := seededStore(t, "A1", "R1")
	// The backend rejects the refreshed credential too.
	refresher := &stubRefresher{creds: authapi.Credentials{Access: "A2"}}
	base := newExpiringBase("A3")
	tr := newTestTransport(t, store, refresher, base)

	resp, err := mustGet(t, tr, "https://api.test/v1/tasks")
	if err != nil {
		t.Fatalf("RoundTrip: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want final 401", resp.StatusCode)
	}
	if n := refresher.calls.Load(); n != 1 {
		t.Errorf("refresh calls = %d, want 1", n)
	}
	if n := base.maxDispatches(); n != 2 {
		t.Errorf("dispatches = %d, want exactly 2", n)
	}
}

func TestCancelledWaiterIsSettled(t *testing.T) {
	store := seededStore(t, "A1", "R1")
	refresher := &stubRefresher{
		gate:  make(chan struct{}),
		creds: authapi.Credentials{Access: "A2"},
	}
	base := newExpiringBase("A2")
	tr := newTestTransport(t, store, refresher, base)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		resp, err := mustGet(t, tr, "https://api.test/v1/trigger")
		if err != nil {
			t.Errorf("trigger: %v", err)
			return
		}
		resp.Body.Close()
	}()
	waitFor(t, "refresh to start", func() bool { return refresher.calls.Load() == 1 })

	ctx, cancel := context.WithCancel(context.Background())
	waiterErr := make(chan error, 1)
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, "https://api.test/v1/waiter", nil)
	go func() {
		_, err := tr.RoundTrip(req)
		waiterErr <- err
	}()
	waitForWaiters(t, tr, 1)

	// The caller gives up while suspended; its replay must still settle.
	cancel()
	close(refresher.gate)
	wg.Wait()

	if err := <-waiterErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("waiter err = %v, want context.Canceled", err)
	}
}

func TestRequestBodySurvivesReplay(t *testing.T) {
	const payload = `{"title":"hand in essay"}`

	var bodies []string
	var mu sync.Mutex
	base := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, err
		}
		mu.Lock()
		bodies = append(bodies, string(body))
		mu.Unlock()

		if r.Header.Get("Authorization") != "Bearer A2" {
			return textResponse(http.StatusUnauthorized), nil
		}
		return textResponse(http.StatusOK), nil
	})

	store := seededStore(t, "A1", "R1")
	refresher := &stubRefresher{creds: authapi.Credentials{Access: "A2"}}
	tr := newTestTransport(t, store, refresher, base)

	req, _ := http.NewRequest(http.MethodPost, "https://api.test/v1/tasks", strings.NewReader(payload))
	resp, err := tr.RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if len(bodies) != 2 {
		t.Fatalf("dispatches = %d, want 2", len(bodies))
	}
	for i, body := range bodies {
		if body != payload {
			t.Errorf("dispatch %d body = %q, want %q", i, body, payload)
		}
	}
}

func TestRotatedRefreshCredentialIsPersisted(t *testing.T) {
	store := seededStore(t, "A1", "R1")
	refresher := &stubRefresher{creds: authapi.Credentials{Access: "A2", Refresh: "R2"}}
	base := newExpiringBase("A2")
	tr := newTestTransport(t, store, refresher, base)

	resp, err := mustGet(t, tr, "https://api.test/v1/tasks")
	if err != nil {
		t.Fatalf("RoundTrip: %v", err)
	}
	resp.Body.Close()

	if refresh, _ := store.GetRefresh(context.Background()); refresh != "R2" {
		t.Errorf("refresh credential = %q, want rotated to R2", refresh)
	}
}
