// Package binance is a read-only market data client covering the two
// endpoints the correlation engine needs: hourly klines and the spot
// ticker price.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"crypto-signal-ranker/internal/correlation"
)

const DefaultBaseURL = "https://api.binance.com"

// Client talks to the Binance spot REST API. Public market data only, no
// signing.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client against baseURL; empty means production
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// HourlyCloses fetches up to hours hourly candles and returns their
// close-time points, oldest first
func (c *Client) HourlyCloses(ctx context.Context, symbol string, hours int) ([]correlation.PricePoint, error) {
	if hours > 1000 {
		hours = 1000 // single-request API limit
	}
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", "1h")
	params.Set("limit", strconv.Itoa(hours))

	endpoint := fmt.Sprintf("%s/api/v3/klines?%s", c.baseURL, params.Encode())
	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var rawKlines [][]interface{}
	if err := json.Unmarshal(body, &rawKlines); err != nil {
		return nil, fmt.Errorf("parsing klines: %w", err)
	}

	points := make([]correlation.PricePoint, 0, len(rawKlines))
	for _, raw := range rawKlines {
		if len(raw) < 5 {
			continue
		}
		openTime, ok := raw[0].(float64)
		if !ok {
			continue
		}
		points = append(points, correlation.PricePoint{
			Time:  time.UnixMilli(int64(openTime)).UTC(),
			Close: parseFloat(raw[4]),
		})
	}
	return points, nil
}

// BTCPrice fetches the current BTCUSDT spot price
func (c *Client) BTCPrice(ctx context.Context) (float64, error) {
	endpoint := fmt.Sprintf("%s/api/v3/ticker/price?symbol=BTCUSDT", c.baseURL)
	body, err := c.get(ctx, endpoint)
	if err != nil {
		return 0, err
	}

	var ticker struct {
		Price float64 `json:"price,string"`
	}
	if err := json.Unmarshal(body, &ticker); err != nil {
		return 0, fmt.Errorf("parsing ticker: %w", err)
	}
	return ticker.Price, nil
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error: %s", string(body))
	}
	return body, nil
}

func parseFloat(v interface{}) float64 {
	switch val := v.(type) {
	case string:
		f, _ := strconv.ParseFloat(val, 64)
		return f
	case float64:
		return val
	}
	return 0
}
