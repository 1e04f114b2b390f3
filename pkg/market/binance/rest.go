package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const (
	mainnetREST = "https://api.binance.com"
	testnetREST = "https://testnet.binance.vision"

	// MaxKlinesPerRequest is the largest limit /api/v3/klines accepts.
	MaxKlinesPerRequest = 1000
)

// Client wraps public REST market data on Binance spot. Requests are paced
// by a token bucket so warm-up of many pairs stays under the weight limit.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Testnet    bool

	limiter *rate.Limiter
	now     func() time.Time
}

// NewClient builds a REST client; use testnet to switch base URLs.
func NewClient(testnet bool) *Client {
	base := mainnetREST
	if testnet {
		base = testnetREST
	}
	return &Client{
		BaseURL:    base,
		Testnet:    testnet,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(10), 20),
		now:        time.Now,
	}
}

// SetRateLimit changes the request pacing.
func (c *Client) SetRateLimit(perSecond float64, burst int) {
	c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
}

// Ping checks connectivity.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, "/api/v3/ping", nil)
	return err
}

// ServerTime fetches Binance server time (milliseconds).
func (c *Client) ServerTime(ctx context.Context) (int64, error) {
	body, err := c.do(ctx, "/api/v3/time", nil)
	if err != nil {
		return 0, err
	}
	var resp struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, err
	}
	return resp.ServerTime, nil
}

// GetKlines fetches historical klines, oldest first.
// Set startTime/endTime to 0 to use default behavior (most recent klines).
func (c *Client) GetKlines(ctx context.Context, symbol, interval string, limit int, startTime, endTime int64) ([]Kline, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	if limit > 0 {
		if limit > MaxKlinesPerRequest {
			limit = MaxKlinesPerRequest
		}
		params.Set("limit", strconv.Itoa(limit))
	}
	if startTime > 0 {
		params.Set("startTime", strconv.FormatInt(startTime, 10))
	}
	if endTime > 0 {
		params.Set("endTime", strconv.FormatInt(endTime, 10))
	}

	body, err := c.do(ctx, "/api/v3/klines", params)
	if err != nil {
		return nil, err
	}

	var raw [][]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode klines: %w", err)
	}

	nowMs := c.now().UnixMilli()
	klines := make([]Kline, 0, len(raw))
	for _, item := range raw {
		// Binance returns 12 fields per kline
		if len(item) < 11 {
			continue
		}
		k := Kline{
			Symbol:              symbol,
			Interval:            interval,
			OpenTime:            toInt64(item[0]),
			Open:                toFloat(item[1]),
			High:                toFloat(item[2]),
			Low:                 toFloat(item[3]),
			Close:               toFloat(item[4]),
			Volume:              toFloat(item[5]),
			CloseTime:           toInt64(item[6]),
			QuoteVolume:         toFloat(item[7]),
			NumberOfTrades:      toInt(item[8]),
			TakerBuyBaseVolume:  toFloat(item[9]),
			TakerBuyQuoteVolume: toFloat(item[10]),
		}
		k.Closed = k.CloseTime < nowMs
		klines = append(klines, k)
	}
	return klines, nil
}

func (c *Client) do(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	u := c.BaseURL + path
	if params != nil {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)
	if res.StatusCode >= 300 {
		return nil, fmt.Errorf("binance %s status %d: %s", path, res.StatusCode, string(body))
	}
	return body, nil
}

func toFloat(v any) float64 {
	switch t := v.(type) {
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	case json.Number:
		f, _ := t.Float64()
		return f
	case float64:
		return t
	default:
		return 0
	}
}

func toInt64(v any) int64 {
	switch t := v.(type) {
	case float64:
		return int64(t)
	case int64:
		return t
	case json.Number:
		i, _ := t.Int64()
		return i
	default:
		return 0
	}
}

func toInt(v any) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case int:
		return t
	case json.Number:
		i, _ := t.Int64()
		return int(i)
	default:
		return 0
	}
}
