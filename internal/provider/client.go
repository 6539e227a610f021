// Package provider talks to the market/indicator backend: REST for indicator
// bundles, a websocket stream for live prices, and an optional remote
// validation endpoint.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"tradedesk/internal/market"
)

// Client is the REST client for the indicator backend
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates an indicator backend client.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// GetIndicators fetches the indicator bundle for one symbol and timeframe.
func (c *Client) GetIndicators(ctx context.Context, symbol, timeframe string, limit int) (*market.IndicatorBundle, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("timeframe", timeframe)
	params.Set("limit", strconv.Itoa(limit))

	endpoint := fmt.Sprintf("%s/api/v1/indicators?%s", c.baseURL, params.Encode())

	var bundle market.IndicatorBundle
	if err := c.getJSON(ctx, endpoint, &bundle); err != nil {
		return nil, fmt.Errorf("error fetching indicators for %s %s: %w", symbol, timeframe, err)
	}

	bundle.Symbol = symbol
	bundle.Timeframe = timeframe
	if bundle.FetchedAt.IsZero() {
		bundle.FetchedAt = time.Now()
	}
	return &bundle, nil
}

// GetLastPrice fetches the last traded price for a symbol.
func (c *Client) GetLastPrice(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	endpoint := fmt.Sprintf("%s/api/v1/price?%s", c.baseURL, params.Encode())

	var payload struct {
		Symbol string  `json:"symbol"`
		Price  float64 `json:"price"`
	}
	if err := c.getJSON(ctx, endpoint, &payload); err != nil {
		return 0, fmt.Errorf("error fetching price for %s: %w", symbol, err)
	}
	return payload.Price, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, dest interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("provider returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("error parsing response: %w", err)
	}
	return nil
}
