package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
)

// Credentials is the token pair returned by the platform's auth exchanges.
// Refresh carries the previous refresh credential when the backend did not
// rotate it.
type Credentials struct {
	Access  string
	Refresh string
}

// RefreshRejectedError indicates the backend explicitly refused the refresh
// credential (invalid or expired). The session cannot be repaired by
// retrying.
type RefreshRejectedError struct {
	StatusCode int
	Detail     string
}

func (e *RefreshRejectedError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("refresh credential rejected (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("refresh credential rejected (status %d): %s", e.StatusCode, e.Detail)
}

// RefresherOption configures a Refresher.
type RefresherOption func(*refresherConfig)

// refresherConfig holds configuration for NewRefresher.
type refresherConfig struct {
	baseTransport http.RoundTripper
	timeout       time.Duration
}

// WithTransport sets a custom base transport for refresh requests.
// If not provided, http.DefaultTransport is used.
func WithTransport(transport http.RoundTripper) RefresherOption {
	return func(c *refresherConfig) {
		c.baseTransport = transport
	}
}

// WithTimeout bounds the refresh HTTP exchange. A hung refresh call would
// otherwise suspend every request queued behind it indefinitely.
func WithTimeout(timeout time.Duration) RefresherOption {
	return func(c *refresherConfig) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// DefaultRefreshTimeout bounds the refresh exchange when no timeout is configured.
const DefaultRefreshTimeout = 30 * time.Second

// Refresher exchanges a refresh credential for a new credential pair
// against a fixed backend route.
type Refresher struct {
	conf   *oauth2.Config
	client *http.Client
}

// NewRefresher creates a Refresher for the given token endpoint URL.
func NewRefresher(tokenURL string, opts ...RefresherOption) *Refresher {
	cfg := &refresherConfig{
		baseTransport: http.DefaultTransport,
		timeout:       DefaultRefreshTimeout,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &Refresher{
		conf: &oauth2.Config{
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		client: &http.Client{
			Timeout: cfg.timeout,
			Transport: &jsonExchangeTransport{
				base: cfg.baseTransport,
			},
		},
	}
}

// Refresh exchanges the refresh credential for a new credential pair.
// When the backend omits a rotated refresh credential, the returned pair
// carries the previous one.
func (r *Refresher) Refresh(ctx context.Context, refreshCredential string) (Credentials, error) {
	if refreshCredential == "" {
		return Credentials{}, errors.New("missing refresh credential")
	}

	// The oauth2 package injects custom HTTP clients via context. The JSON
	// rewrite and the exchange timeout both live on this client.
	ctx = context.WithValue(ctx, oauth2.HTTPClient, r.client)

	token, err := r.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshCredential}).Token()
	if err != nil {
		var retrieve *oauth2.RetrieveError
		if errors.As(err, &retrieve) && retrieve.Response != nil && isRejectedStatus(retrieve.Response.StatusCode) {
			return Credentials{}, &RefreshRejectedError{
				StatusCode: retrieve.Response.StatusCode,
				Detail:     retrieve.ErrorDescription,
			}
		}
		return Credentials{}, fmt.Errorf("refresh exchange: %w", err)
	}

	return Credentials{
		Access:  token.AccessToken,
		Refresh: token.RefreshToken,
	}, nil
}

// isRejectedStatus reports whether a token endpoint status means the refresh
// credential itself was refused, as opposed to a backend malfunction.
func isRejectedStatus(status int) bool {
	switch status {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return true
	default:
		return false
	}
}

// jsonExchangeTransport converts oauth2's form-encoded token requests to the
// JSON format the platform's token endpoint requires.
// It only ever receives token endpoint requests.
type jsonExchangeTransport struct {
	base http.RoundTripper
}

// Compile-time check that jsonExchangeTransport implements http.RoundTripper.
var _ http.RoundTripper = (*jsonExchangeTransport)(nil)

// RoundTrip rewrites the request body from form-encoding to JSON.
func (t *jsonExchangeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// The body is consumed entirely and replaced; the original is never
	// forwarded to the next RoundTripper.
	defer func() { _ = req.Body.Close() }()
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("reading request body: %w", err)
	}

	formData, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("parsing form data: %w", err)
	}

	jsonData := make(map[string]string, len(formData))
	for key, values := range formData {
		jsonData[key] = values[0] // OAuth2 defines single-value parameters
	}

	jsonBody, err := json.Marshal(jsonData)
	if err != nil {
		return nil, fmt.Errorf("marshaling JSON request: %w", err)
	}

	newReq := req.Clone(req.Context())
	newReq.Body = io.NopCloser(bytes.NewReader(jsonBody))
	newReq.ContentLength = int64(len(jsonBody))
	newReq.Header.Set("Content-Type", "application/json")

	return t.base.RoundTrip(newReq)
}
