// Package authapi implements the platform's authentication exchanges:
// credential refresh, login, and registration.
//
// The platform deviates from standard OAuth2 in one critical way: the token
// refresh endpoint takes a JSON-encoded request body instead of the
// form-encoding the protocol prescribes. Refresher keeps the oauth2 token
// machinery and rewrites the refresh request on the wire.
//
// Refresh failures are classified so callers can tell a rejected refresh
// credential (session is over) apart from a transport problem:
//
//	creds, err := refresher.Refresh(ctx, refreshToken)
//	var rejected *authapi.RefreshRejectedError
//	if errors.As(err, &rejected) {
//		// backend refused the refresh credential
//	}
package authapi
