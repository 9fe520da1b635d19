// Package plutus adapts the external Plutus REST API: the market catalog and
// the transaction payload builder.
package plutus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"plutusbot/bot/session"
	"plutusbot/observability"
)

const defaultTimeout = 10 * time.Second

// Config controls how the Client reaches the Plutus API.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client implements the market catalog and payload builder over HTTP. Requests
// carry a bounded timeout and are retried once on transient transport or 5xx
// failures; application-level 4xx responses are never retried.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
	metrics *observability.ClientMetrics
}

// ClientOption customises the client.
type ClientOption func(*Client)

// WithLogger configures the client logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// WithMetrics overrides the default metrics registry.
func WithMetrics(m *observability.ClientMetrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// WithHTTPClient substitutes the underlying HTTP client, used by tests.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) { c.http = httpClient }
}

// NewClient constructs a Plutus API client.
func NewClient(cfg Config, opts ...ClientOption) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("plutus: base url required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger:  slog.Default(),
		metrics: observability.Client(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type marketRecord struct {
	ID          string  `json:"id"`
	CoinAddress string  `json:"coinAddress"`
	SupplyAPR   float64 `json:"supplyApr"`
	BorrowAPR   float64 `json:"borrowApr"`
	Price       float64 `json:"price"`
	Name        string  `json:"name,omitempty"`
	Symbol      string  `json:"symbol,omitempty"`
}

// FetchMarkets retrieves the catalog of tradable markets.
func (c *Client) FetchMarkets(ctx context.Context) ([]session.Market, error) {
	start := time.Now()
	body, err := c.do(ctx, http.MethodGet, "/api/markets", nil)
	if err != nil {
		c.metrics.RecordRequest("markets", "error", time.Since(start))
		return nil, fmt.Errorf("plutus: fetch markets: %w", err)
	}
	var records []marketRecord
	if err := json.Unmarshal(body, &records); err != nil {
		c.metrics.RecordRequest("markets", "error", time.Since(start))
		return nil, fmt.Errorf("plutus: decode markets: %w", err)
	}
	markets := make([]session.Market, 0, len(records))
	for _, rec := range records {
		if strings.TrimSpace(rec.ID) == "" {
			continue
		}
		markets = append(markets, session.Market{
			ID:          rec.ID,
			CoinAddress: rec.CoinAddress,
			SupplyAPR:   rec.SupplyAPR,
			BorrowAPR:   rec.BorrowAPR,
			Price:       rec.Price,
			Name:        rec.Name,
			Symbol:      rec.Symbol,
		})
	}
	c.metrics.RecordRequest("markets", "ok", time.Since(start))
	return markets, nil
}

type payloadRequest struct {
	Type          string  `json:"type"`
	CoinAddress   string  `json:"coinAddress"`
	Market        string  `json:"market"`
	Amount        float64 `json:"amount"`
	WalletAddress string  `json:"walletAddress,omitempty"`
}

type payloadResponse struct {
	Payload json.RawMessage `json:"payload"`
}

// BuildPayload requests a chain-specific transaction payload for the action.
// The returned payload is tagged with the inputs used to build it so the engine
// can reject a stale payload at confirmation time.
func (c *Client) BuildPayload(ctx context.Context, action session.Action, market session.Market, amount float64, wallet string) (*session.Payload, error) {
	req := payloadRequest{
		Type:          string(action),
		CoinAddress:   market.CoinAddress,
		Market:        market.ID,
		Amount:        amount,
		WalletAddress: wallet,
	}
	encoded, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("plutus: encode payload request: %w", err)
	}
	start := time.Now()
	body, err := c.do(ctx, http.MethodPost, "/api/transaction/payload", encoded)
	if err != nil {
		c.metrics.RecordRequest("payload", "error", time.Since(start))
		return nil, fmt.Errorf("plutus: build %s payload: %w", action, err)
	}
	var resp payloadResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		c.metrics.RecordRequest("payload", "error", time.Since(start))
		return nil, fmt.Errorf("plutus: decode payload: %w", err)
	}
	if len(resp.Payload) == 0 {
		c.metrics.RecordRequest("payload", "error", time.Since(start))
		return nil, fmt.Errorf("plutus: empty payload for %s", action)
	}
	c.metrics.RecordRequest("payload", "ok", time.Since(start))
	return &session.Payload{
		ID:            uuid.NewString(),
		Action:        action,
		MarketID:      market.ID,
		CoinAddress:   market.CoinAddress,
		Amount:        amount,
		WalletAddress: wallet,
		Body:          resp.Payload,
	}, nil
}

// statusError distinguishes HTTP-level failures so the retry policy can skip
// application errors.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	if e.body != "" {
		return fmt.Sprintf("status %d: %s", e.status, e.body)
	}
	return fmt.Sprintf("status %d", e.status)
}

func (e *statusError) transient() bool { return e.status >= 500 }

// do issues the request, retrying once on transient failure.
func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			c.logger.Warn("retrying plutus request", "method", method, "path", path, "error", lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(250 * time.Millisecond):
			}
		}
		respBody, err := c.once(ctx, method, path, body)
		if err == nil {
			return respBody, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, err
		}
		var st *statusError
		if errors.As(err, &st) && !st.transient() {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) once(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Client", "plutusbot")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &statusError{status: resp.StatusCode, body: strings.TrimSpace(string(respBody))}
	}
	return respBody, nil
}
