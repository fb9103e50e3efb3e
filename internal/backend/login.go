package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wireapp/wire-apps-go-sdk/internal/config"
)

// tokenRefreshMargin re-runs login shortly before the backend's ~14
// minute token expiry (spec §6).
const tokenRefreshMargin = 1 * time.Minute

// ensureToken returns a valid bearer token, refreshing it
// transparently via whichever login mode produced the current one.
func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	token := c.accessToken
	expiry := c.tokenExpiry
	mode := c.cfg.LoginMode
	c.mu.Unlock()

	if mode == config.LoginModeBearer {
		if c.cfg.APIToken == "" {
			return "", fmt.Errorf("backend: no api_token configured for bearer login mode")
		}
		return c.cfg.APIToken, nil
	}

	if token != "" && time.Now().Before(expiry.Add(-tokenRefreshMargin)) {
		return token, nil
	}

	return c.loginDemo(ctx)
}

// loginDemo performs the cookie-exchange /login + /access flow used
// by the demo backend deployment mode.
func (c *Client) loginDemo(ctx context.Context) (string, error) {
	loginBody, err := json.Marshal(map[string]string{
		"email":    c.cfg.Email,
		"password": c.cfg.Password,
	})
	if err != nil {
		return "", fmt.Errorf("backend: encode login body: %w", err)
	}

	resp, err := c.do(ctx, "POST", "/login", loginBody, requestOpts{noAuth: true})
	if err != nil {
		return "", fmt.Errorf("backend: login: %w", err)
	}
	var cookie string
	for _, ck := range resp.Cookies() {
		if ck.Name == "zuid" {
			cookie = ck.Value
		}
	}
	_ = resp.Body.Close()

	accessResp, err := c.do(ctx, "POST", fmt.Sprintf("/access?client_id=%s", c.cfg.UserID), nil,
		requestOpts{noAuth: true})
	if err != nil {
		return "", fmt.Errorf("backend: access token exchange: %w", err)
	}

	var parsed struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := readJSON(accessResp, &parsed); err != nil {
		return "", fmt.Errorf("backend: decode access token response: %w", err)
	}

	c.mu.Lock()
	c.accessToken = parsed.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(parsed.ExpiresIn) * time.Second)
	c.cookie = cookie
	c.mu.Unlock()

	return parsed.AccessToken, nil
}
