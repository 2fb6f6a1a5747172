package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/edugate-dev/edugate/internal/authapi"
	"github.com/edugate-dev/edugate/internal/credstore"
	"github.com/edugate-dev/edugate/internal/session"
)

// App wires the credential store, the auth exchanges, and the authenticated
// transport into a ready-to-use HTTP client for the platform API.
type App struct {
	cfg       *Config
	store     credstore.Store
	transport *session.Transport
	client    *http.Client

	// authClient performs the exempt auth exchanges (login, registration).
	// They need no bearer credential and must not recurse into the
	// authenticated transport.
	authClient *http.Client

	loginURL    string
	registerURL string
}

// New creates an App from validated configuration.
func New(cfg *Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := cfg.Credentials.NewStore()
	if err != nil {
		return nil, fmt.Errorf("failed to create credential store: %w", err)
	}

	loginURL, err := url.JoinPath(cfg.API.BaseURL, cfg.API.LoginPath)
	if err != nil {
		return nil, fmt.Errorf("building login URL: %w", err)
	}
	registerURL, err := url.JoinPath(cfg.API.BaseURL, cfg.API.RegisterPath)
	if err != nil {
		return nil, fmt.Errorf("building register URL: %w", err)
	}
	refreshURL, err := url.JoinPath(cfg.API.BaseURL, cfg.API.RefreshPath)
	if err != nil {
		return nil, fmt.Errorf("building refresh URL: %w", err)
	}

	refresher := authapi.NewRefresher(refreshURL, authapi.WithTimeout(cfg.API.Timeout))

	transport, err := session.New(store, refresher,
		session.WithExemptions(session.NewExemptions(
			cfg.API.LoginPath,
			cfg.API.RegisterPath,
			cfg.API.RefreshPath,
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	return &App{
		cfg:         cfg,
		store:       store,
		transport:   transport,
		client:      &http.Client{Transport: transport},
		authClient:  &http.Client{Timeout: cfg.API.Timeout},
		loginURL:    loginURL,
		registerURL: registerURL,
	}, nil
}

// Client returns the HTTP client whose requests carry the authentication
// envelope. Call sites are unaware that a request they issue may be
// internally suspended and replayed.
func (a *App) Client() *http.Client {
	return a.client
}

// SetSessionLossHandler registers the callback fired once per session-ending
// event, replacing any previously registered handler.
func (a *App) SetSessionLossHandler(handler func()) {
	a.transport.SetSessionLossHandler(handler)
}

// ResolveURL joins an API path onto the configured base URL.
func (a *App) ResolveURL(path string) (string, error) {
	return url.JoinPath(a.cfg.API.BaseURL, path)
}

// Login exchanges the username and password for a credential pair and
// persists it.
func (a *App) Login(ctx context.Context, username, password string) error {
	creds, err := authapi.Login(ctx, a.authClient, a.loginURL, username, password)
	if err != nil {
		return err
	}
	return a.storeCredentials(ctx, creds)
}

// Register creates an account and persists the initial credential pair.
func (a *App) Register(ctx context.Context, params authapi.RegisterParams) error {
	creds, err := authapi.Register(ctx, a.authClient, a.registerURL, params)
	if err != nil {
		return err
	}
	return a.storeCredentials(ctx, creds)
}

// Logout clears the stored credential pair.
func (a *App) Logout(ctx context.Context) error {
	return a.store.ClearAll(ctx)
}

// CredentialStatus reports whether an access and a refresh credential are
// currently stored, without exposing their values.
func (a *App) CredentialStatus(ctx context.Context) (hasAccess, hasRefresh bool, err error) {
	access, err := a.store.GetAccess(ctx)
	if err != nil {
		return false, false, err
	}
	refresh, err := a.store.GetRefresh(ctx)
	if err != nil {
		return false, false, err
	}
	return access != "", refresh != "", nil
}

// Close releases the credential store if it holds resources (e.g. the bolt
// backend keeps a database file open).
func (a *App) Close() error {
	if closer, ok := a.store.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func (a *App) storeCredentials(ctx context.Context, creds authapi.Credentials) error {
	if err := a.store.SetAccess(ctx, creds.Access); err != nil {
		return fmt.Errorf("persisting access credential: %w", err)
	}
	if creds.Refresh != "" {
		if err := a.store.SetRefresh(ctx, creds.Refresh); err != nil {
			return fmt.Errorf("persisting refresh credential: %w", err)
		}
	}
	return nil
}
