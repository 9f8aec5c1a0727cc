package paas

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// tokenSkew renews the platform token this long before it expires.
const tokenSkew = 2 * time.Minute

// Client forwards audit entries to the platform log API. Forwarding is best
// effort and never blocks trade processing for long.
type Client struct {
	BaseURL string
	APIKey  string
	Agent   string
	HTTP    *http.Client

	mu        sync.RWMutex
	token     string
	expiresAt time.Time
}

// CreateLogRequest is one platform log entry.
type CreateLogRequest struct {
	Agent      string         `json:"agent"`
	Action     string         `json:"action"`
	Level      string         `json:"level"`
	Details    map[string]any `json:"details"`
	SessionKey string         `json:"session_key,omitempty"`
	Metadata   map[string]any `json:"metadata"`
}

// Enabled reports whether the client has enough configuration to log in.
func (c *Client) Enabled() bool {
	return c != nil && strings.TrimSpace(c.BaseURL) != "" && strings.TrimSpace(c.APIKey) != ""
}

// Login exchanges the API key for a bearer token.
func (c *Client) Login(ctx context.Context) error {
	if c == nil || strings.TrimSpace(c.BaseURL) == "" {
		return errors.New("paas base url is empty")
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return errors.New("paas api key is empty")
	}
	var out struct {
		Token     string `json:"token"`
		ExpiresAt string `json:"expires_at"`
	}
	body := map[string]string{"api_key": strings.TrimSpace(c.APIKey)}
	if err := c.post(ctx, "/api/v1/auth/login", "", body, &out); err != nil {
		return fmt.Errorf("paas login: %w", err)
	}
	exp, _ := time.Parse(time.RFC3339, strings.TrimSpace(out.ExpiresAt))

	c.mu.Lock()
	c.token = strings.TrimSpace(out.Token)
	c.expiresAt = exp
	c.mu.Unlock()
	return nil
}

// CreateLog writes one entry, logging in first when the token is missing or
// about to expire.
func (c *Client) CreateLog(ctx context.Context, req CreateLogRequest) error {
	tok, err := c.bearer(ctx)
	if err != nil {
		return err
	}
	if err := c.post(ctx, "/api/v1/logs", tok, req, nil); err != nil {
		return fmt.Errorf("paas create log: %w", err)
	}
	return nil
}

// Forward sends one audit entry with a short timeout detached from ctx, so a
// cancelled request still gets its entry recorded.
func (c *Client) Forward(ctx context.Context, action, level string, details map[string]any) error {
	if !c.Enabled() {
		return nil
	}
	ctx2, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	return c.CreateLog(ctx2, CreateLogRequest{
		Agent:    c.agent(),
		Action:   action,
		Level:    level,
		Details:  details,
		Metadata: map[string]any{},
	})
}

func (c *Client) bearer(ctx context.Context) (string, error) {
	c.mu.RLock()
	tok, exp := c.token, c.expiresAt
	c.mu.RUnlock()
	if tok != "" && (exp.IsZero() || time.Until(exp) > tokenSkew) {
		return tok, nil
	}
	if err := c.Login(ctx); err != nil {
		return "", err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token, nil
}

func (c *Client) post(ctx context.Context, path, token string, in, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	base := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func (c *Client) agent() string {
	if a := strings.TrimSpace(c.Agent); a != "" {
		return a
	}
	return "zkpay-orchestrator"
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return &http.Client{Timeout: 10 * time.Second}
}
