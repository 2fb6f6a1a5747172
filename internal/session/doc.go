// Package session implements the authenticated-request envelope around the
// platform API: every outgoing request gets the current access credential
// attached, authentication failures trigger an at-most-one-concurrent
// credential refresh, and requests failing while a refresh is in flight are
// queued and transparently replayed once it settles.
//
// Transport implements http.RoundTripper, so the envelope is invisible to
// call sites:
//
//	tr, err := session.New(store, refresher,
//		session.WithExemptions(session.NewExemptions("/auth/login", "/auth/refresh")),
//	)
//	client := &http.Client{Transport: tr}
//
// When the refresh credential is missing or the backend rejects it, the
// session is over: both credentials are cleared, every affected request
// fails with an error matching ErrSessionEnded, and the registered
// session-loss handler fires exactly once for the whole batch.
package session
