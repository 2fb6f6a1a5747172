package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/tidwall/gjson"
)

// maxAuthResponseBytes bounds how much of an auth response is read.
const maxAuthResponseBytes = 1 << 20

// RegisterParams carries the fields of a registration exchange.
type RegisterParams struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login exchanges a username and password for a credential pair.
// The client should be a plain HTTP client: the login route is exempt from
// the refresh protocol and needs no bearer credential.
func Login(ctx context.Context, client *http.Client, loginURL, username, password string) (Credentials, error) {
	payload := map[string]string{
		"username": username,
		"password": password,
	}
	return credentialExchange(ctx, client, loginURL, payload)
}

// Register creates an account and returns the initial credential pair.
func Register(ctx context.Context, client *http.Client, registerURL string, params RegisterParams) (Credentials, error) {
	payload := map[string]string{
		"username": params.Username,
		"email":    params.Email,
		"password": params.Password,
	}
	return credentialExchange(ctx, client, registerURL, payload)
}

func credentialExchange(ctx context.Context, client *http.Client, endpoint string, payload map[string]string) (Credentials, error) {
	if client == nil {
		client = http.DefaultClient
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Credentials{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Credentials{}, fmt.Errorf("building auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return Credentials{}, fmt.Errorf("auth exchange: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxAuthResponseBytes))
	if err != nil {
		return Credentials{}, fmt.Errorf("reading auth response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		if message := gjson.GetBytes(respBody, "message"); message.Exists() {
			return Credentials{}, fmt.Errorf("auth exchange failed (status %d): %s", resp.StatusCode, message.String())
		}
		return Credentials{}, fmt.Errorf("auth exchange failed (status %d)", resp.StatusCode)
	}

	access := gjson.GetBytes(respBody, "access_token")
	if !access.Exists() || access.String() == "" {
		return Credentials{}, fmt.Errorf("auth response missing access_token")
	}

	return Credentials{
		Access:  access.String(),
		Refresh: gjson.GetBytes(respBody, "refresh_token").String(),
	}, nil
}
