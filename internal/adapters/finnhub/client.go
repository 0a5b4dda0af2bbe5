package finnhub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/selivandex/stock-signal/internal/adapters/config"
	"github.com/selivandex/stock-signal/pkg/models"
)

const finnhubAPIURL = "https://finnhub.io/api/v1"

// Client fetches live quotes and company news from Finnhub
type Client struct {
	client  *http.Client
	baseURL string
	apiKey  string
	now     func() time.Time
}

// NewClient creates new Finnhub client
func NewClient(cfg *config.ProviderConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = finnhubAPIURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		now:     time.Now,
	}
}

type quoteResponse struct {
	Current       decimal.Decimal `json:"c"`
	High          decimal.Decimal `json:"h"`
	Low           decimal.Decimal `json:"l"`
	Open          decimal.Decimal `json:"o"`
	PreviousClose decimal.Decimal `json:"pc"`
	Timestamp     int64           `json:"t"`
}

// Quote returns the current OHLC snapshot. Finnhub quotes carry no volume.
func (c *Client) Quote(ctx context.Context, symbol string) (*models.Quote, error) {
	var q quoteResponse
	if err := c.get(ctx, "/quote", url.Values{"symbol": {symbol}}, &q); err != nil {
		return nil, err
	}
	if q.Current.IsZero() && q.Open.IsZero() {
		return nil, fmt.Errorf("no quote for %s", symbol)
	}

	ts := c.now().UTC()
	if q.Timestamp > 0 {
		ts = time.Unix(q.Timestamp, 0).UTC()
	}

	return &models.Quote{
		Timestamp:     ts,
		Symbol:        symbol,
		Open:          q.Open,
		High:          q.High,
		Low:           q.Low,
		Current:       q.Current,
		PreviousClose: q.PreviousClose,
	}, nil
}

type newsItem struct {
	Datetime int64  `json:"datetime"`
	Headline string `json:"headline"`
	Summary  string `json:"summary"`
	Source   string `json:"source"`
	URL      string `json:"url"`
}

// CompanyNews returns articles published in [from, to]. Finnhub filters by
// day, so items outside the exact window are dropped here.
func (c *Client) CompanyNews(ctx context.Context, symbol string, from, to time.Time) ([]models.NewsArticle, error) {
	params := url.Values{
		"symbol": {symbol},
		"from":   {from.UTC().Format("2006-01-02")},
		"to":     {to.UTC().Format("2006-01-02")},
	}

	var items []newsItem
	if err := c.get(ctx, "/company-news", params, &items); err != nil {
		return nil, err
	}

	articles := make([]models.NewsArticle, 0, len(items))
	for _, item := range items {
		if item.Datetime == 0 {
			continue
		}
		published := time.Unix(item.Datetime, 0).UTC()
		if published.Before(from) || published.After(to) {
			continue
		}
		articles = append(articles, models.NewsArticle{
			PublishedAt: published,
			Ticker:      symbol,
			Headline:    item.Headline,
			Summary:     item.Summary,
			Source:      item.Source,
			URL:         item.URL,
		})
	}

	return articles, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	params.Set("token", c.apiKey)
	endpoint := c.baseURL + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &models.UpstreamError{Service: "finnhub", Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &models.UpstreamError{Service: "finnhub", Err: fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
