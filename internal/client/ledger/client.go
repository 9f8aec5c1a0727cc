package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"zkpay/internal/models"
)

const maxBodyBytes = 1 << 20

type Client struct {
	host       string
	httpClient *http.Client
	// proofClient carries the long timeout used for proof generation.
	proofClient *http.Client
	limiter     *rate.Limiter
}

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ledger API error (%d): %s", e.Status, e.Body)
}

func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

type Options struct {
	Timeout      time.Duration
	ProofTimeout time.Duration
	RatePerSec   float64
	Burst        int
}

func NewClient(host string, opts Options) *Client {
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.ProofTimeout <= 0 {
		opts.ProofTimeout = 10 * time.Minute
	}
	c := &Client{
		host:        host,
		httpClient:  &http.Client{Timeout: opts.Timeout},
		proofClient: &http.Client{Timeout: opts.ProofTimeout},
	}
	if opts.RatePerSec > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSec), burst)
	}
	return c
}

func (c *Client) CreateTrades(ctx context.Context, req CreateTradesRequest) ([]CreatedTrade, error) {
	if len(req.Fills) == 0 {
		return nil, fmt.Errorf("fills are required")
	}
	var out createTradesResponse
	if err := c.postJSON(ctx, c.httpClient, "/api/trades/create", req, &out); err != nil {
		return nil, err
	}
	return out.Trades, nil
}

func (c *Client) GetTrade(ctx context.Context, tradeID string) (*models.Trade, error) {
	if tradeID == "" {
		return nil, fmt.Errorf("trade_id is required")
	}
	body, err := c.do(ctx, c.httpClient, http.MethodGet, tradePath(tradeID, ""), nil, "")
	if err != nil {
		return nil, err
	}
	var t models.Trade
	if err := json.Unmarshal(body, &t); err != nil {
		return nil, fmt.Errorf("decode trade: %w", err)
	}
	if t.TradeID == "" {
		t.TradeID = tradeID
	}
	return &t, nil
}

func (c *Client) UploadReceipt(ctx context.Context, tradeID, filename string, data []byte) (UploadResult, error) {
	if tradeID == "" {
		return UploadResult{}, fmt.Errorf("trade_id is required")
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return UploadResult{}, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return UploadResult{}, fmt.Errorf("failed to write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return UploadResult{}, err
	}
	body, err := c.do(ctx, c.httpClient, http.MethodPost, tradePath(tradeID, "upload"), &buf, mw.FormDataContentType())
	if err != nil {
		return UploadResult{}, err
	}
	var out UploadResult
	if err := json.Unmarshal(body, &out); err != nil {
		return UploadResult{}, fmt.Errorf("decode upload result: %w", err)
	}
	return out, nil
}

func (c *Client) ValidateReceipt(ctx context.Context, tradeID string) (ValidationResult, error) {
	var out ValidationResult
	err := c.postJSON(ctx, c.httpClient, tradePath(tradeID, "validate"), struct{}{}, &out)
	return out, err
}

func (c *Client) GenerateProof(ctx context.Context, tradeID string) (ProofResult, error) {
	var out ProofResult
	err := c.postJSON(ctx, c.proofClient, tradePath(tradeID, "prove"), struct{}{}, &out)
	return out, err
}

func (c *Client) SubmitProof(ctx context.Context, tradeID string) (SubmitResult, error) {
	var out SubmitResult
	err := c.postJSON(ctx, c.httpClient, tradePath(tradeID, "submit"), struct{}{}, &out)
	return out, err
}

func (c *Client) postJSON(ctx context.Context, hc *http.Client, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	body, err := c.do(ctx, hc, http.MethodPost, path, bytes.NewReader(payload), "application/json")
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, hc *http.Client, method, path string, body io.Reader, contentType string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.host+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	return b, nil
}

func tradePath(tradeID, action string) string {
	p := "/api/trades/" + url.PathEscape(tradeID)
	if action != "" {
		p += "/" + action
	}
	return p
}
