// Package yahoo provides a client for the Yahoo Finance chart API
package yahoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/bobmcallan/vire-analyzer/internal/common"
	"github.com/bobmcallan/vire-analyzer/internal/interfaces"
	"github.com/bobmcallan/vire-analyzer/internal/models"
)

const (
	DefaultBaseURL   = "https://query1.finance.yahoo.com"
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 5 // requests per second

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
)

// Client implements interfaces.MarketDataProvider against the v8 chart endpoint
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *common.Logger
	limiter    *rate.Limiter
	now        func() time.Time
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the rate limit
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		if requestsPerSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
		}
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithClock overrides the clock that decides which splits postdate a request
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		c.now = now
	}
}

// NewClient creates a new Yahoo Finance client
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:  common.NewSilentLogger(),
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError represents an API error
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Ticker     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Yahoo API error: %s %s (status: %d, ticker: %s)", e.Code, e.Message, e.StatusCode, e.Ticker)
}

// Unwrap classifies the error so callers can match the sentinel errors.
func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound || e.Code == "Not Found" {
		return models.ErrSymbolNotFound
	}
	return models.ErrProviderUnavailable
}

// chartResponse is the raw v8 chart payload. Closes are nullable on halted days.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Currency string `json:"currency"`
				Symbol   string `json:"symbol"`
			} `json:"meta"`
			Timestamp []int64 `json:"timestamp"`
			Events    struct {
				Splits map[string]splitEvent `json:"splits"`
			} `json:"events"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *chartError `json:"error"`
	} `json:"chart"`
}

type chartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type splitEvent struct {
	Date        int64   `json:"date"`
	Numerator   float64 `json:"numerator"`
	Denominator float64 `json:"denominator"`
	SplitRatio  string  `json:"splitRatio"`
}

// Name identifies the provider
func (c *Client) Name() string { return "yahoo" }

// chart performs a rate-limited chart request for ticker
func (c *Client) chart(ctx context.Context, ticker string, params url.Values) (*chartResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	params.Set("interval", "1d")
	reqURL := fmt.Sprintf("%s/v8/finance/chart/%s?%s", c.baseURL, url.PathEscape(ticker), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().Str("ticker", ticker).Str("query", params.Encode()).Msg("Yahoo chart request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w: %w", models.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w: %w", models.ErrProviderUnavailable, err)
	}

	var out chartResponse
	decodeErr := json.Unmarshal(body, &out)

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(body), Ticker: ticker}
		if decodeErr == nil && out.Chart.Error != nil {
			apiErr.Code = out.Chart.Error.Code
			apiErr.Message = out.Chart.Error.Description
		}
		return nil, apiErr
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("failed to decode response: %w: %w", models.ErrProviderUnavailable, decodeErr)
	}
	if out.Chart.Error != nil {
		return nil, &APIError{StatusCode: resp.StatusCode, Code: out.Chart.Error.Code, Message: out.Chart.Error.Description, Ticker: ticker}
	}
	if len(out.Chart.Result) == 0 {
		return nil, fmt.Errorf("no results returned for %s: %w", ticker, models.ErrSymbolNotFound)
	}

	return &out, nil
}

// parseCloses converts the first chart result into day-truncated bars,
// skipping null and non-positive closes. Yahoo reports closes adjusted for
// every split up to today; they are scaled back up by each split in splits
// dated after the bar so callers receive the price actually traded on the day.
func parseCloses(resp *chartResponse, splits []models.SplitEvent) ([]models.PriceBar, error) {
	result := resp.Chart.Result[0]
	if len(result.Timestamp) == 0 {
		return nil, nil
	}
	if len(result.Indicators.Quote) == 0 {
		return nil, fmt.Errorf("no close prices returned")
	}
	closes := result.Indicators.Quote[0].Close
	if len(closes) != len(result.Timestamp) {
		return nil, fmt.Errorf("mismatched data lengths: %d timestamps, %d closes", len(result.Timestamp), len(closes))
	}

	bars := make([]models.PriceBar, 0, len(closes))
	for i, ts := range result.Timestamp {
		if closes[i] == nil || *closes[i] <= 0 {
			continue
		}
		day := models.Day(time.Unix(ts, 0).UTC())
		px := *closes[i]
		for _, sp := range splits {
			if day.Before(sp.Date) {
				px *= sp.Ratio
			}
		}
		bars = append(bars, models.PriceBar{Date: day, Close: px})
	}
	return bars, nil
}

// parseSplits extracts split events from the first chart result, ascending by date.
func parseSplits(resp *chartResponse, ticker string) []models.SplitEvent {
	raw := resp.Chart.Result[0].Events.Splits
	events := make([]models.SplitEvent, 0, len(raw))
	for _, s := range raw {
		if s.Numerator <= 0 || s.Denominator <= 0 {
			continue
		}
		events = append(events, models.SplitEvent{
			Symbol: ticker,
			Date:   models.Day(time.Unix(s.Date, 0).UTC()),
			Ratio:  s.Numerator / s.Denominator,
		})
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Date.Before(events[j].Date) })
	return events
}

// GetDailyCloses retrieves unadjusted daily closes in [from, to). When the
// window ends before today the splits after it are looked up as well, since
// Yahoo has already divided the window's closes by them.
func (c *Client) GetDailyCloses(ctx context.Context, ticker string, from, to time.Time) ([]models.PriceBar, error) {
	params := url.Values{}
	params.Set("period1", strconv.FormatInt(models.Day(from).Unix(), 10))
	params.Set("period2", strconv.FormatInt(models.Day(to).Unix(), 10))
	params.Set("events", "split")

	resp, err := c.chart(ctx, ticker, params)
	if err != nil {
		return nil, err
	}
	splits := parseSplits(resp, ticker)

	end := models.Day(to)
	if today := models.Day(c.now()); end.Before(today) {
		later, err := c.GetSplits(ctx, ticker, end, today.AddDate(0, 0, 1))
		if err != nil {
			return nil, fmt.Errorf("failed to load splits after %s: %w", end.Format("2006-01-02"), err)
		}
		for _, sp := range later {
			if !sp.Date.Before(end) {
				splits = append(splits, sp)
			}
		}
	}

	return parseCloses(resp, splits)
}

// GetRecentCloses retrieves the last five trading days of closes
func (c *Client) GetRecentCloses(ctx context.Context, ticker string) ([]models.PriceBar, error) {
	params := url.Values{}
	params.Set("range", "5d")
	params.Set("events", "split")

	resp, err := c.chart(ctx, ticker, params)
	if err != nil {
		return nil, err
	}
	return parseCloses(resp, parseSplits(resp, ticker))
}

// GetSplits retrieves split events in [from, to). Ratios are numerator over
// denominator, so a 2-for-1 split is 2.
func (c *Client) GetSplits(ctx context.Context, ticker string, from, to time.Time) ([]models.SplitEvent, error) {
	params := url.Values{}
	params.Set("period1", strconv.FormatInt(models.Day(from).Unix(), 10))
	params.Set("period2", strconv.FormatInt(models.Day(to).Unix(), 10))
	params.Set("events", "split")

	resp, err := c.chart(ctx, ticker, params)
	if err != nil {
		if errors.Is(err, models.ErrSymbolNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return parseSplits(resp, ticker), nil
}

// Ensure Client implements MarketDataProvider
var _ interfaces.MarketDataProvider = (*Client)(nil)
