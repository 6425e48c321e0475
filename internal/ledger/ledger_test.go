package ledger

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/vire-analyzer/internal/common"
	"github.com/bobmcallan/vire-analyzer/internal/models"
)

const activityExport = `Trades,Header,DataDiscriminator,Asset Category,Currency,Symbol,Date/Time,Quantity,T. Price,C. Price,Proceeds,Comm/Fee
Trades,Data,Order,Stocks,USD,AAPL,"2023-06-01, 10:15:00",-4,150,151,600,-1
Trades,Data,Order,Stocks,USD,AAPL,"2023-01-03, 09:30:00","1,000",100.5,101,"-100,500",-1.25
Trades,SubTotal,,Stocks,USD,AAPL,,996,,,,-2.25
Trades,Data,Order,Stocks,SGD,D05,"2023-02-01, 09:00:00",100,30,30,-3000,-2
Trades,Data,Order,Stocks,SGD,BAD,not-a-date,100,30,30,-3000,-2
Trades,Data,Order,Stocks,SGD,BAD,"2023-02-01, 09:00:00",abc,30,30,-3000,-2
Trades,Data,Order,Stocks,USD,EXTRA,"2023-02-01, 09:00:00",1,1,1,1,0,surplus
`

func TestParse_KeepsDataRows(t *testing.T) {
	trades, skipped, err := Parse(strings.NewReader(activityExport), "export.csv")
	require.NoError(t, err)
	assert.Equal(t, 3, skipped)
	require.Len(t, trades, 3)

	// File order preserved by Parse
	assert.Equal(t, "AAPL", trades[0].Symbol)
	assert.Equal(t, -4.0, trades[0].Quantity)
	assert.Equal(t, 1.0, trades[0].Fee)
	assert.InDelta(t, 599.0, trades[0].LocalCashflow, 1e-9)

	assert.Equal(t, 1000.0, trades[1].Quantity)
	assert.Equal(t, 100.5, trades[1].UnitPrice)
	assert.Equal(t, 1.25, trades[1].Fee)
	assert.Equal(t, time.Date(2023, 1, 3, 9, 30, 0, 0, time.UTC), trades[1].Date)
	assert.Equal(t, "export.csv", trades[1].SourceFile)

	assert.Equal(t, "D05", trades[2].Symbol)
	assert.Equal(t, "SGD", trades[2].Currency)
}

func TestParse_MissingFeeColumnDefaultsToZero(t *testing.T) {
	in := "Symbol,Currency,Date/Time,Quantity,T. Price\nABC,usd,2024-01-02,5,10\n"
	trades, skipped, err := Parse(strings.NewReader(in), "plain.csv")
	require.NoError(t, err)
	assert.Zero(t, skipped)
	require.Len(t, trades, 1)
	assert.Equal(t, "USD", trades[0].Currency)
	assert.Equal(t, 0.0, trades[0].Fee)
	assert.Equal(t, -50.0, trades[0].LocalCashflow)
}

func TestParse_MissingRequiredColumn(t *testing.T) {
	_, _, err := Parse(strings.NewReader("Symbol,Currency\nABC,USD\n"), "bad.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Date/Time")
}

func TestParse_Empty(t *testing.T) {
	trades, _, err := Parse(strings.NewReader(""), "empty.csv")
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestLoadFiles_ConsolidatesAndSorts(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.csv"), []byte(activityExport), 0o644))
	second := "Header,Symbol,Currency,Date/Time,Quantity,T. Price,Comm/Fee\nData,MSFT,USD,2022-12-15,2,250,0\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.csv"), []byte(second), 0o644))

	loader := NewLoader(dir, common.NewSilentLogger())
	trades, err := loader.LoadFiles([]string{"a.csv", "missing.csv", "b.csv"})
	require.NoError(t, err)
	require.Len(t, trades, 4)

	for i := 1; i < len(trades); i++ {
		assert.False(t, trades[i].Date.Before(trades[i-1].Date))
	}
	assert.Equal(t, "MSFT", trades[0].Symbol)
	assert.Equal(t, "b.csv", trades[0].SourceFile)
	assert.Equal(t, "AAPL", trades[3].Symbol)
}

func TestLoadFiles_NoData(t *testing.T) {
	loader := NewLoader(t.TempDir(), common.NewSilentLogger())
	_, err := loader.LoadFiles([]string{"missing.csv"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrNoTradeData))
}

func TestHoldings_FirstAppearanceOrder(t *testing.T) {
	trades := []models.Trade{
		{Symbol: "D05", Currency: "SGD"},
		{Symbol: "AAPL", Currency: "USD"},
		{Symbol: "D05", Currency: "SGD"},
		{Symbol: "INFY", Currency: "INR"},
	}
	assert.Equal(t, []models.Holding{
		{Symbol: "D05", Currency: "SGD"},
		{Symbol: "AAPL", Currency: "USD"},
		{Symbol: "INFY", Currency: "INR"},
	}, Holdings(trades))
}
