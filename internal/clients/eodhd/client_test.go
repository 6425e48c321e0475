package eodhd

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bobmcallan/vire-analyzer/internal/models"
)

func TestTicker(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"AAPL", "AAPL.US"},
		{"D05.SI", "D05.SG"},
		{"SGDUSD=X", "SGDUSD.FOREX"},
		{"BHP.AU", "BHP.AU"},
		{"RELIANCE.NS", "RELIANCE.NSE"},
	}
	for _, tt := range tests {
		if got := Ticker(tt.in); got != tt.want {
			t.Errorf("Ticker(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestGetDailyCloses_StringFields(t *testing.T) {
	mockResp := `[
		{"date": "2024-01-02", "open": "35.00", "high": "35.50", "low": "34.90", "close": "35.10", "adjusted_close": "34.00", "volume": "1000"},
		{"date": "2024-01-03", "open": 35.2, "high": 35.8, "low": 35.0, "close": 0, "adjusted_close": 0, "volume": 0},
		{"date": "2024-01-04", "open": 35.2, "high": 35.8, "low": 35.0, "close": 35.6, "adjusted_close": 34.5, "volume": 900}
	]`

	var gotPath, gotFrom, gotTo, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotFrom = r.URL.Query().Get("from")
		gotTo = r.URL.Query().Get("to")
		gotKey = r.URL.Query().Get("api_token")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(mockResp))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	bars, err := client.GetDailyCloses(context.Background(), "D05.SI",
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("GetDailyCloses failed: %v", err)
	}

	if gotPath != "/eod/D05.SG" {
		t.Errorf("path = %q, want /eod/D05.SG", gotPath)
	}
	if gotFrom != "2024-01-01" || gotTo != "2024-01-04" {
		t.Errorf("window = %s..%s, want 2024-01-01..2024-01-04", gotFrom, gotTo)
	}
	if gotKey != "test-key" {
		t.Errorf("api_token = %q, want test-key", gotKey)
	}

	if len(bars) != 2 {
		t.Fatalf("expected 2 bars (zero close dropped), got %d", len(bars))
	}
	if bars[0].Close != 35.10 {
		t.Errorf("first close = %.2f, want 35.10 (unadjusted)", bars[0].Close)
	}
}

func TestGetSplits_ParsesRatio(t *testing.T) {
	mockResp := `[
		{"date": "2020-08-31", "split": "4.000000/1.000000"},
		{"date": "2014-06-09", "split": "7.000000/1.000000"},
		{"date": "bad", "split": "2/1"},
		{"date": "2010-01-04", "split": "abc"}
	]`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/splits/AAPL.US" {
			t.Errorf("path = %q, want /splits/AAPL.US", r.URL.Path)
		}
		w.Write([]byte(mockResp))
	}))
	defer srv.Close()

	client := NewClient("k", WithBaseURL(srv.URL))
	events, err := client.GetSplits(context.Background(), "AAPL",
		time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("GetSplits failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 valid splits, got %d", len(events))
	}
	if events[0].Ratio != 7 || events[1].Ratio != 4 {
		t.Errorf("ratios = %v, %v; want 7 then 4", events[0].Ratio, events[1].Ratio)
	}
}

func TestGetSplits_ForexSkipsRequest(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	client := NewClient("k", WithBaseURL(srv.URL))
	events, err := client.GetSplits(context.Background(), "SGDUSD=X", time.Now().AddDate(-1, 0, 0), time.Now())
	if err != nil || len(events) != 0 {
		t.Errorf("expected no splits and no error, got %v, %v", events, err)
	}
	if called {
		t.Error("forex tickers should not request splits")
	}
}

func TestGet_ErrorClassification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/eod/MISSING.US" {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte("Ticker Not Found."))
			return
		}
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte("limit exceeded"))
	}))
	defer srv.Close()

	client := NewClient("k", WithBaseURL(srv.URL))
	from, to := time.Now().AddDate(0, -1, 0), time.Now()

	_, err := client.GetDailyCloses(context.Background(), "MISSING", from, to)
	if !errors.Is(err, models.ErrSymbolNotFound) {
		t.Errorf("404 error = %v, want ErrSymbolNotFound", err)
	}

	_, err = client.GetDailyCloses(context.Background(), "AAPL", from, to)
	if !errors.Is(err, models.ErrProviderUnavailable) {
		t.Errorf("402 error = %v, want ErrProviderUnavailable", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusPaymentRequired {
		t.Errorf("expected APIError with status 402, got %v", err)
	}
}

func TestGetRecentCloses_UsesClock(t *testing.T) {
	var gotFrom, gotTo string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotFrom = r.URL.Query().Get("from")
		gotTo = r.URL.Query().Get("to")
		w.Write([]byte(`[{"date":"2024-03-08","close":12.5}]`))
	}))
	defer srv.Close()

	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	client := NewClient("k", WithBaseURL(srv.URL), WithClock(func() time.Time { return now }))
	bars, err := client.GetRecentCloses(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("GetRecentCloses failed: %v", err)
	}
	if gotFrom != "2024-03-03" || gotTo != "2024-03-10" {
		t.Errorf("window = %s..%s, want 2024-03-03..2024-03-10", gotFrom, gotTo)
	}
	if len(bars) != 1 || bars[0].Close != 12.5 {
		t.Errorf("bars = %+v, want one bar at 12.5", bars)
	}
}
