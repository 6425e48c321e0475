// Package eodhd provides a client for the EODHD API
package eodhd

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
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/bobmcallan/vire-analyzer/internal/common"
	"github.com/bobmcallan/vire-analyzer/internal/interfaces"
	"github.com/bobmcallan/vire-analyzer/internal/models"
)

// flexFloat64 handles JSON values that may be either a number or a string.
type flexFloat64 float64

func (f *flexFloat64) UnmarshalJSON(data []byte) error {
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		*f = flexFloat64(num)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == "" || s == "N/A" {
			*f = 0
			return nil
		}
		num, err := strconv.ParseFloat(s, 64)
		if err != nil {
			*f = 0
			return nil
		}
		*f = flexFloat64(num)
		return nil
	}
	if string(data) == "null" {
		*f = 0
		return nil
	}
	return fmt.Errorf("cannot unmarshal %s into float64", string(data))
}

const (
	DefaultBaseURL   = "https://eodhd.com/api"
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 10 // requests per second

	recentWindow = 7 * 24 * time.Hour
)

// Client implements interfaces.MarketDataProvider against EODHD
type Client struct {
	baseURL    string
	apiKey     string
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

// WithClock overrides the clock used for trailing-window requests
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		c.now = now
	}
}

// NewClient creates a new EODHD client
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
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
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("EODHD API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// Unwrap classifies the error so callers can match the sentinel errors.
func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return models.ErrSymbolNotFound
	}
	return models.ErrProviderUnavailable
}

// get performs a rate-limited GET request
func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("api_token", c.apiKey)
	params.Set("fmt", "json")

	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	c.logger.Debug().Str("url", c.baseURL+path).Msg("EODHD API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w: %w", models.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Endpoint:   path,
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w: %w", models.ErrProviderUnavailable, err)
	}

	return nil
}

// Ticker maps a listing key to EODHD's exchange-qualified form.
// "SGDUSD=X" becomes "SGDUSD.FOREX", "D05.SI" becomes "D05.SG", and a bare
// symbol is assumed to be a US listing.
func Ticker(key string) string {
	if models.IsFXPairTicker(key) {
		return strings.TrimSuffix(key, "=X") + ".FOREX"
	}
	if i := strings.LastIndex(key, "."); i > 0 {
		exchange := key[i+1:]
		if mapped, ok := exchangeCodes[strings.ToUpper(exchange)]; ok {
			exchange = mapped
		}
		return key[:i] + "." + exchange
	}
	return key + ".US"
}

// exchangeCodes maps Yahoo listing suffixes to EODHD exchange codes where they differ.
var exchangeCodes = map[string]string{
	"SI": "SG",
	"NS": "NSE",
	"BO": "BSE",
	"AX": "AU",
	"L":  "LSE",
	"T":  "TSE",
}

type eodBarResponse struct {
	Date          string      `json:"date"`
	Open          flexFloat64 `json:"open"`
	High          flexFloat64 `json:"high"`
	Low           flexFloat64 `json:"low"`
	Close         flexFloat64 `json:"close"`
	AdjustedClose flexFloat64 `json:"adjusted_close"`
	Volume        flexFloat64 `json:"volume"`
}

// Name identifies the provider
func (c *Client) Name() string { return "eodhd" }

// GetDailyCloses retrieves unadjusted daily closes in [from, to)
func (c *Client) GetDailyCloses(ctx context.Context, ticker string, from, to time.Time) ([]models.PriceBar, error) {
	params := url.Values{}
	params.Set("period", "d")
	params.Set("order", "a")
	params.Set("from", models.Day(from).Format("2006-01-02"))
	// EODHD treats "to" as inclusive
	params.Set("to", models.Day(to).AddDate(0, 0, -1).Format("2006-01-02"))

	var bars []eodBarResponse
	if err := c.get(ctx, "/eod/"+Ticker(ticker), params, &bars); err != nil {
		return nil, err
	}

	out := make([]models.PriceBar, 0, len(bars))
	for _, b := range bars {
		date, err := time.Parse("2006-01-02", b.Date)
		if err != nil || b.Close <= 0 {
			continue
		}
		out = append(out, models.PriceBar{Date: date, Close: float64(b.Close)})
	}
	return out, nil
}

// GetRecentCloses retrieves the trailing week of closes
func (c *Client) GetRecentCloses(ctx context.Context, ticker string) ([]models.PriceBar, error) {
	now := c.now()
	return c.GetDailyCloses(ctx, ticker, now.Add(-recentWindow), now.AddDate(0, 0, 1))
}

type splitResponse struct {
	Date  string `json:"date"`
	Split string `json:"split"`
}

// GetSplits retrieves split events in [from, to). EODHD reports ratios as
// "new/old", e.g. "2.000000/1.000000" for a 2-for-1 split.
func (c *Client) GetSplits(ctx context.Context, ticker string, from, to time.Time) ([]models.SplitEvent, error) {
	if models.IsFXPairTicker(ticker) {
		return nil, nil
	}

	params := url.Values{}
	params.Set("from", models.Day(from).Format("2006-01-02"))
	params.Set("to", models.Day(to).AddDate(0, 0, -1).Format("2006-01-02"))

	var raw []splitResponse
	if err := c.get(ctx, "/splits/"+Ticker(ticker), params, &raw); err != nil {
		if errors.Is(err, models.ErrSymbolNotFound) {
			return nil, nil
		}
		return nil, err
	}

	events := make([]models.SplitEvent, 0, len(raw))
	for _, s := range raw {
		date, err := time.Parse("2006-01-02", s.Date)
		if err != nil {
			c.logger.Warn().Str("ticker", ticker).Str("date", s.Date).Msg("Skipping split with invalid date")
			continue
		}
		ratio, err := parseSplitRatio(s.Split)
		if err != nil {
			c.logger.Warn().Str("ticker", ticker).Str("split", s.Split).Err(err).Msg("Skipping split with invalid ratio")
			continue
		}
		events = append(events, models.SplitEvent{Symbol: ticker, Date: date, Ratio: ratio})
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Date.Before(events[j].Date) })

	return events, nil
}

// parseSplitRatio parses "a/b" into a/b.
func parseSplitRatio(s string) (float64, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid split format %q", s)
	}
	num, err := decimal.NewFromString(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, fmt.Errorf("invalid numerator in split %q: %w", s, err)
	}
	den, err := decimal.NewFromString(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, fmt.Errorf("invalid denominator in split %q: %w", s, err)
	}
	if !num.IsPositive() || !den.IsPositive() {
		return 0, fmt.Errorf("non-positive split %q", s)
	}
	ratio, _ := num.Div(den).Float64()
	return ratio, nil
}

// Ensure Client implements MarketDataProvider
var _ interfaces.MarketDataProvider = (*Client)(nil)
