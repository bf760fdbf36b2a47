package captcha

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-checkout/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
)

const responseBodyReadLimit int64 = 1024

// Verifier checks a reCAPTCHA response token.
type Verifier interface {
	Verify(ctx context.Context, token, remoteIP string) (bool, error)
}

// Client calls the reCAPTCHA siteverify endpoint.
type Client struct {
	httpClient *http.Client
	verifyURL  string
	secret     string
}

// Option configures optional client behavior.
type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient builds a verifier. Without a secret every token is accepted so
// local environments can check out without a site key.
func NewClient(cfg config.CaptchaConfig, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := &Client{
		httpClient: &http.Client{Timeout: timeout},
		verifyURL:  strings.TrimSpace(cfg.VerifyURL),
		secret:     strings.TrimSpace(cfg.Secret),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client
}

// Verify reports whether token is a valid solved challenge. Transport and
// upstream failures are returned as dependency errors.
func (c *Client) Verify(ctx context.Context, token, remoteIP string) (bool, error) {
	if c == nil || c.secret == "" {
		return true, nil
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return false, nil
	}

	form := url.Values{}
	form.Set("secret", c.secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build captcha request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute captcha request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "captcha request failed")
	}

	var apiResp struct {
		Success    bool     `json:"success"`
		ErrorCodes []string `json:"error-codes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode captcha response")
	}
	return apiResp.Success, nil
}
