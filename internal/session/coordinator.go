package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/edugate-dev/edugate/internal/authapi"
)

// waiter is a request suspended behind the in-flight refresh. The settling
// goroutine replays it (or fails it) and delivers the outcome; the waiter's
// own goroutine stays blocked until then.
type waiter struct {
	pending *pendingRequest
	outcome chan dispatchOutcome
}

type dispatchOutcome struct {
	resp *http.Response
	err  error
}

// recover runs the refresh protocol for a request whose dispatch came back
// 401 on a non-exempt route. It either suspends behind an in-flight
// refresh, starts the one refresh itself, or ends the session when no
// refresh credential is stored.
func (t *Transport) recover(p *pendingRequest, failed *http.Response) (*http.Response, error) {
	if p.retried {
		// A 401 on the post-refresh dispatch is final.
		return failed, nil
	}

	ctx := p.req.Context()

	refreshCredential, err := t.store.GetRefresh(ctx)
	if err != nil {
		discardBody(failed)
		return nil, fmt.Errorf("reading refresh credential: %w", err)
	}

	if refreshCredential == "" {
		// Nothing to repair the session with.
		discardBody(failed)
		sessionErr := &SessionEndedError{Cause: errors.New("no refresh credential stored")}
		t.endSession(context.WithoutCancel(ctx), sessionErr)
		return nil, sessionErr
	}

	t.mu.Lock()
	if t.refreshing {
		// A refresh is already in flight: suspend behind it instead of
		// starting a second one.
		w := &waiter{pending: p, outcome: make(chan dispatchOutcome, 1)}
		t.waiters = append(t.waiters, w)
		t.mu.Unlock()
		discardBody(failed)

		out := <-w.outcome
		return out.resp, out.err
	}
	t.refreshing = true
	p.retried = true
	t.mu.Unlock()
	discardBody(failed)

	slog.DebugContext(ctx, "access credential rejected, refreshing", "request_id", p.id)

	// The refresh serves every caller queued behind it, so it must not die
	// with the triggering caller's context. The refresher carries its own
	// timeout.
	refreshCtx := context.WithoutCancel(ctx)

	creds, err := t.refresher.Refresh(refreshCtx, refreshCredential)
	if err != nil {
		sessionErr := &SessionEndedError{Cause: err}
		t.settleFailure(refreshCtx, sessionErr)
		return nil, sessionErr
	}

	t.settleSuccess(refreshCtx, refreshCredential, creds)

	// Replay the triggering request with the refreshed credential. A second
	// 401 is final and is returned as-is; no further refresh is attempted
	// for this request.
	return t.dispatch(p)
}

// settleSuccess persists the refreshed credentials, returns the coordinator
// to idle, and replays the suspended requests in the order they queued.
// Each is replayed exactly once; replay outcomes, including a second 401,
// are final.
func (t *Transport) settleSuccess(ctx context.Context, previousRefresh string, creds authapi.Credentials) {
	if err := t.store.SetAccess(ctx, creds.Access); err != nil {
		slog.ErrorContext(ctx, "failed to persist access credential", "error", err)
	}
	// Retain the previous refresh credential unless the backend rotated it.
	if creds.Refresh != "" && creds.Refresh != previousRefresh {
		if err := t.store.SetRefresh(ctx, creds.Refresh); err != nil {
			slog.ErrorContext(ctx, "failed to persist refresh credential", "error", err)
		}
	}

	waiters := t.takeWaiters()
	if len(waiters) > 0 {
		slog.DebugContext(ctx, "refresh settled, replaying suspended requests", "count", len(waiters))
	}
	for _, w := range waiters {
		w.pending.retried = true
		resp, err := t.dispatch(w.pending)
		w.outcome <- dispatchOutcome{resp: resp, err: err}
	}
}

// settleFailure returns the coordinator to idle, fails every suspended
// request with the session-ending error, and ends the session. The
// session-loss handler fires once for the whole batch, not once per
// request.
func (t *Transport) settleFailure(ctx context.Context, sessionErr *SessionEndedError) {
	for _, w := range t.takeWaiters() {
		w.outcome <- dispatchOutcome{err: sessionErr}
	}
	t.endSession(ctx, sessionErr)
}

// takeWaiters empties the wait queue and returns the coordinator to idle.
// Requests failing from here on belong to the next refresh cycle.
func (t *Transport) takeWaiters() []*waiter {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.refreshing = false
	waiters := t.waiters
	t.waiters = nil
	return waiters
}

// endSession clears both credentials and fires the registered session-loss
// handler. Clearing is idempotent: a later unrelated request simply goes
// out unauthenticated.
func (t *Transport) endSession(ctx context.Context, cause error) {
	if err := t.store.ClearAll(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to clear credentials", "error", err)
	}
	slog.WarnContext(ctx, "session ended", "error", cause)

	t.handlerMu.Lock()
	if t.onSessionLoss != nil {
		t.onSessionLoss()
	}
	t.handlerMu.Unlock()
}

// discardBody releases a response that will not be returned to the caller,
// draining it so the underlying connection can be reused.
func discardBody(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}
