package yahoo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/vire-analyzer/internal/models"
)

// 2024-01-02, 2024-01-03 and 2024-01-04 at 14:30 UTC
const closesResp = `{
	"chart": {
		"result": [{
			"meta": {"currency": "SGD", "symbol": "D05.SI"},
			"timestamp": [1704205800, 1704292200, 1704378600],
			"indicators": {"quote": [{"close": [35.1, null, 35.6]}]}
		}],
		"error": null
	}
}`

func TestGetDailyCloses_SkipsNullCloses(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if gotPath == "" {
			gotPath = r.URL.Path
			gotQuery = r.URL.RawQuery
		}
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(closesResp))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	bars, err := client.GetDailyCloses(context.Background(), "D05.SI",
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, "/v8/finance/chart/D05.SI", gotPath)
	assert.Contains(t, gotQuery, "interval=1d")
	assert.Contains(t, gotQuery, "period1=1704067200")

	require.Len(t, bars, 2)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), bars[0].Date)
	assert.Equal(t, 35.1, bars[0].Close)
	assert.Equal(t, time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC), bars[1].Date)
}

func TestGetRecentCloses_UsesRange(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(closesResp))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	bars, err := client.GetRecentCloses(context.Background(), "D05.SI")
	require.NoError(t, err)
	assert.Contains(t, gotQuery, "range=5d")
	assert.Len(t, bars, 2)
}

func TestGetSplits_ParsesRatios(t *testing.T) {
	resp := `{
		"chart": {
			"result": [{
				"meta": {"symbol": "AAPL"},
				"timestamp": [1598880600],
				"events": {"splits": {
					"1598880600": {"date": 1598880600, "numerator": 4, "denominator": 1, "splitRatio": "4:1"},
					"1402061400": {"date": 1402061400, "numerator": 7, "denominator": 1, "splitRatio": "7:1"}
				}},
				"indicators": {"quote": [{"close": [129.04]}]}
			}],
			"error": null
		}
	}`
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(resp))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	events, err := client.GetSplits(context.Background(), "AAPL",
		time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Contains(t, gotQuery, "events=split")

	require.Len(t, events, 2)
	assert.Equal(t, 7.0, events[0].Ratio)
	assert.Equal(t, time.Date(2014, 6, 6, 0, 0, 0, 0, time.UTC), events[0].Date)
	assert.Equal(t, 4.0, events[1].Ratio)
	assert.Equal(t, time.Date(2020, 8, 31, 0, 0, 0, 0, time.UTC), events[1].Date)
}

func TestGetSplits_NotFoundIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	events, err := client.GetSplits(context.Background(), "NOPE", time.Now().AddDate(-1, 0, 0), time.Now())
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestGetDailyCloses_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"not found", http.StatusNotFound, `{"chart":{"result":null,"error":{"code":"Not Found","description":"delisted"}}}`, models.ErrSymbolNotFound},
		{"rate limited", http.StatusTooManyRequests, `Too Many Requests`, models.ErrProviderUnavailable},
		{"server error", http.StatusInternalServerError, `{}`, models.ErrProviderUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewClient(WithBaseURL(srv.URL))
			_, err := client.GetDailyCloses(context.Background(), "X", time.Now().AddDate(0, -1, 0), time.Now())
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "error %v should match %v", err, tt.want)

			var apiErr *APIError
			assert.True(t, errors.As(err, &apiErr))
		})
	}
}

func TestGetDailyCloses_UndoesSplitAdjustment(t *testing.T) {
	// 2-for-1 split effective 2024-01-03; Yahoo reports earlier closes halved
	resp := `{
		"chart": {
			"result": [{
				"meta": {"symbol": "ABC"},
				"timestamp": [1704205800, 1704292200],
				"events": {"splits": {"1704292200": {"date": 1704292200, "numerator": 2, "denominator": 1}}},
				"indicators": {"quote": [{"close": [50.0, 51.0]}]}
			}],
			"error": null
		}
	}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "split", r.URL.Query().Get("events"))
		w.Write([]byte(resp))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	bars, err := client.GetDailyCloses(context.Background(), "ABC",
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, 100.0, bars[0].Close, "pre-split close is restored to the traded price")
	assert.Equal(t, 51.0, bars[1].Close)
}

func TestGetDailyCloses_UndoesSplitsAfterWindow(t *testing.T) {
	// 2020-06-01 and 2020-06-02; Yahoo has already divided these by the
	// 4-for-1 split of 2020-08-31, which lies outside the requested window
	windowResp := `{
		"chart": {
			"result": [{
				"meta": {"symbol": "AAPL"},
				"timestamp": [1591018200, 1591104600],
				"indicators": {"quote": [{"close": [100.0, 101.0]}]}
			}],
			"error": null
		}
	}`
	laterResp := `{
		"chart": {
			"result": [{
				"meta": {"symbol": "AAPL"},
				"timestamp": [1598880600],
				"events": {"splits": {"1598880600": {"date": 1598880600, "numerator": 4, "denominator": 1}}},
				"indicators": {"quote": [{"close": [129.04]}]}
			}],
			"error": null
		}
	}`

	from := time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2020, 7, 1, 0, 0, 0, 0, time.UTC)
	today := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	var periods []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		periods = append(periods, q.Get("period1")+"-"+q.Get("period2"))
		if q.Get("period1") == strconv.FormatInt(from.Unix(), 10) {
			w.Write([]byte(windowResp))
			return
		}
		w.Write([]byte(laterResp))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL), WithClock(func() time.Time { return today }))
	bars, err := client.GetDailyCloses(context.Background(), "AAPL", from, to)
	require.NoError(t, err)

	require.Len(t, periods, 2)
	assert.Equal(t, strconv.FormatInt(to.Unix(), 10)+"-"+strconv.FormatInt(today.AddDate(0, 0, 1).Unix(), 10), periods[1])

	require.Len(t, bars, 2)
	assert.Equal(t, 400.0, bars[0].Close)
	assert.Equal(t, 404.0, bars[1].Close)
}

func TestGetDailyCloses_WindowEndingTodaySingleRequest(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(closesResp))
	}))
	defer srv.Close()

	today := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	client := NewClient(WithBaseURL(srv.URL), WithClock(func() time.Time { return today }))
	bars, err := client.GetDailyCloses(context.Background(), "D05.SI", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), today)
	require.NoError(t, err)
	assert.Len(t, bars, 2)
	assert.Equal(t, 1, calls)
}

func TestGetDailyCloses_LaterSplitLookupFailure(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Write([]byte(closesResp))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL), WithClock(func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }))
	_, err := client.GetDailyCloses(context.Background(), "D05.SI",
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrProviderUnavailable))
}
