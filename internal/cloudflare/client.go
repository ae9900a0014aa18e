package cloudflare

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/uamguard/uamguard/internal/config"
)

// LevelUnderAttack is the zone security level that enables Cloudflare's
// "I'm Under Attack" interstitial for all visitors.
const LevelUnderAttack = "under_attack"

const defaultBaseURL = "https://api.cloudflare.com/client/v4"

// Error taxonomy for toggle attempts. The control loop retries transient and
// rate-limited failures with backoff; unauthorized is fatal to the process
// because a daemon that cannot talk to the API silently fails to protect.
var (
	ErrUnauthorized = errors.New("cloudflare: credentials rejected")
	ErrTransient    = errors.New("cloudflare: transient API failure")
)

// RateLimitedError reports an HTTP 429 from the API, carrying the
// Retry-After hint when the response included one.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("cloudflare: rate limited, retry after %s", e.RetryAfter)
	}
	return "cloudflare: rate limited"
}

// Client toggles a zone's security level through the Cloudflare v4 API.
// It is safe for concurrent use, though the control loop only ever issues
// one call at a time.
type Client struct {
	baseURL     string
	zoneID      string
	token       string
	normalLevel string
	http        *http.Client
}

// New builds a Client from the Cloudflare section of the config.
// normalLevel is the security level restored when protection is lifted.
func New(cfg config.CloudflareConfig, normalLevel string) (*Client, error) {
	token := cfg.Token()
	if token == "" {
		return nil, fmt.Errorf("cloudflare: no API token — is %s set?", cfg.APITokenEnv)
	}

	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}

	return &Client{
		baseURL:     base,
		zoneID:      cfg.ZoneID,
		token:       token,
		normalLevel: normalLevel,
		http:        &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Enable switches the zone to under_attack.
func (c *Client) Enable(ctx context.Context) error {
	return c.setLevel(ctx, LevelUnderAttack)
}

// Disable restores the configured normal security level.
func (c *Client) Disable(ctx context.Context) error {
	return c.setLevel(ctx, c.normalLevel)
}

// Current returns the zone's present security level. Used at startup to
// reconcile durable state with what Cloudflare actually has, and by the
// status command.
func (c *Client) Current(ctx context.Context) (string, error) {
	env, err := c.do(ctx, http.MethodGet, nil)
	if err != nil {
		return "", err
	}
	return env.Result.Value, nil
}

func (c *Client) setLevel(ctx context.Context, level string) error {
	body, _ := json.Marshal(map[string]string{"value": level})
	if _, err := c.do(ctx, http.MethodPatch, body); err != nil {
		return err
	}
	slog.Info("cloudflare: security level set", "zone", c.zoneID, "level", level)
	return nil
}

// envelope is the Cloudflare v4 response wrapper.
type envelope struct {
	Success bool `json:"success"`
	Errors  []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
	Result struct {
		ID    string `json:"id"`
		Value string `json:"value"`
	} `json:"result"`
}

func (c *Client) do(ctx context.Context, method string, body []byte) (*envelope, error) {
	url := fmt.Sprintf("%s/zones/%s/settings/security_level", c.baseURL, c.zoneID)

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return nil, fmt.Errorf("cloudflare: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransient, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp); err != nil {
		return nil, err
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: decode response: %w", ErrTransient, err)
	}
	if !env.Success {
		// An unrecognized API-level failure; treated as transient so the
		// retry loop gets a chance before the tick gives up.
		msg := "unspecified API error"
		if len(env.Errors) > 0 {
			msg = fmt.Sprintf("code %d: %s", env.Errors[0].Code, env.Errors[0].Message)
		}
		return nil, fmt.Errorf("%w: %s", ErrTransient, msg)
	}

	return &env, nil
}

// classifyStatus maps HTTP status codes onto the error taxonomy.
func classifyStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d", ErrUnauthorized, resp.StatusCode)

	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitedError{RetryAfter: retryAfter(resp)}

	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: HTTP %d", ErrTransient, resp.StatusCode)

	case resp.StatusCode >= 400:
		// Other client errors carry an API envelope worth surfacing; let the
		// body decode path report them. Treated as transient.
		return fmt.Errorf("%w: HTTP %d", ErrTransient, resp.StatusCode)
	}
	return nil
}

// retryAfter parses the Retry-After header, seconds form only.
func retryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
