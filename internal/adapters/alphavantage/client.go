package alphavantage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/selivandex/stock-signal/internal/adapters/config"
	"github.com/selivandex/stock-signal/pkg/models"
)

const alphaVantageAPIURL = "https://www.alphavantage.co/query"

// Client fetches daily volume and history from Alpha Vantage
type Client struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

// NewClient creates new Alpha Vantage client
func NewClient(cfg *config.ProviderConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = alphaVantageAPIURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 12 * time.Second
	}
	return &Client{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
	}
}

type globalQuoteResponse struct {
	Quote map[string]string `json:"Global Quote"`
	Note  string            `json:"Note"`
	Info  string            `json:"Information"`
}

// Volume returns the latest session volume from GLOBAL_QUOTE
func (c *Client) Volume(ctx context.Context, symbol string) (float64, error) {
	var resp globalQuoteResponse
	if err := c.get(ctx, url.Values{"function": {"GLOBAL_QUOTE"}, "symbol": {symbol}}, &resp); err != nil {
		return 0, err
	}
	if msg := resp.limitMessage(); msg != "" {
		return 0, &models.UpstreamError{Service: "alphavantage", Err: fmt.Errorf("%s", msg)}
	}

	raw, ok := resp.Quote["06. volume"]
	if !ok {
		return 0, fmt.Errorf("no volume for %s", symbol)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse volume %q: %w", raw, err)
	}
	return v, nil
}

func (r *globalQuoteResponse) limitMessage() string {
	if r.Note != "" {
		return r.Note
	}
	return r.Info
}

type dailyResponse struct {
	Series map[string]map[string]string `json:"Time Series (Daily)"`
	Note   string                       `json:"Note"`
	Info   string                       `json:"Information"`
	Error  string                       `json:"Error Message"`
}

// DailyBars returns up to the last days bars, oldest first
func (c *Client) DailyBars(ctx context.Context, symbol string, days int) ([]models.PriceBar, error) {
	params := url.Values{"function": {"TIME_SERIES_DAILY"}, "symbol": {symbol}}
	if days > 100 {
		params.Set("outputsize", "full")
	}

	var resp dailyResponse
	if err := c.get(ctx, params, &resp); err != nil {
		return nil, err
	}
	switch {
	case resp.Error != "":
		return nil, &models.UpstreamError{Service: "alphavantage", Err: fmt.Errorf("%s", resp.Error)}
	case resp.Note != "":
		return nil, &models.UpstreamError{Service: "alphavantage", Err: fmt.Errorf("%s", resp.Note)}
	case resp.Info != "" && len(resp.Series) == 0:
		return nil, &models.UpstreamError{Service: "alphavantage", Err: fmt.Errorf("%s", resp.Info)}
	}

	bars := make([]models.PriceBar, 0, len(resp.Series))
	for day, fields := range resp.Series {
		date, err := time.Parse("2006-01-02", day)
		if err != nil {
			return nil, fmt.Errorf("failed to parse date %q: %w", day, err)
		}
		bar := models.PriceBar{Ticker: symbol, Date: date}
		for key, dst := range map[string]*float64{
			"1. open":   &bar.Open,
			"2. high":   &bar.High,
			"3. low":    &bar.Low,
			"4. close":  &bar.Close,
			"5. volume": &bar.Volume,
		} {
			v, err := strconv.ParseFloat(fields[key], 64)
			if err != nil {
				return nil, fmt.Errorf("failed to parse %s on %s: %w", key, day, err)
			}
			*dst = v
		}
		bars = append(bars, bar)
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	if days > 0 && len(bars) > days {
		bars = bars[len(bars)-days:]
	}
	return bars, nil
}

func (c *Client) get(ctx context.Context, params url.Values, out interface{}) error {
	params.Set("apikey", c.apiKey)
	endpoint := c.baseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &models.UpstreamError{Service: "alphavantage", Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &models.UpstreamError{Service: "alphavantage", Err: fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
