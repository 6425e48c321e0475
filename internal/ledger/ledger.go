// Package ledger reads broker trade activity exports into normalised trades
package ledger

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bobmcallan/vire-analyzer/internal/common"
	"github.com/bobmcallan/vire-analyzer/internal/models"
)

// Column names in the broker activity export
const (
	colHeader   = "Header"
	colSymbol   = "Symbol"
	colCurrency = "Currency"
	colDateTime = "Date/Time"
	colQuantity = "Quantity"
	colPrice    = "T. Price"
	colFee      = "Comm/Fee"

	dataRow = "Data"
)

var dateLayouts = []string{
	"2006-01-02, 15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Loader reads trade files from a data directory
type Loader struct {
	dir    string
	logger *common.Logger
}

// NewLoader creates a ledger loader rooted at dir. An empty dir resolves
// file names as given.
func NewLoader(dir string, logger *common.Logger) *Loader {
	return &Loader{dir: dir, logger: logger}
}

// LoadFiles reads and consolidates every file into one ledger sorted by trade
// date. Missing files are skipped. Returns models.ErrNoTradeData when no file
// yields a trade.
func (l *Loader) LoadFiles(files []string) ([]models.Trade, error) {
	var trades []models.Trade
	for _, name := range files {
		path := name
		if l.dir != "" && !filepath.IsAbs(name) {
			path = filepath.Join(l.dir, name)
		}

		f, err := os.Open(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				l.logger.Warn().Str("file", path).Msg("Trade file not found, skipping")
				continue
			}
			return nil, fmt.Errorf("failed to open trade file %s: %w", path, err)
		}

		parsed, skipped, err := Parse(f, name)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read trade file %s: %w", path, err)
		}

		l.logger.Info().Str("file", path).Int("trades", len(parsed)).Int("skipped", skipped).Msg("Trade file loaded")
		trades = append(trades, parsed...)
	}

	if len(trades) == 0 {
		return nil, fmt.Errorf("%w: no trades in %d file(s)", models.ErrNoTradeData, len(files))
	}

	sort.SliceStable(trades, func(i, j int) bool { return trades[i].Date.Before(trades[j].Date) })
	return trades, nil
}

// Parse reads one activity export. Only "Data" rows are kept; rows with
// malformed quoting, extra fields or unparseable numbers are counted as
// skipped. Fees are stored as non-negative magnitudes.
func Parse(r io.Reader, source string) ([]models.Trade, int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, 0, nil
		}
		return nil, 0, err
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, required := range []string{colSymbol, colCurrency, colDateTime, colQuantity, colPrice} {
		if _, ok := cols[required]; !ok {
			return nil, 0, fmt.Errorf("missing column %q", required)
		}
	}

	field := func(record []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var trades []models.Trade
	skipped := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				skipped++
				continue
			}
			return nil, skipped, err
		}
		if len(record) > len(header) {
			skipped++
			continue
		}
		if _, ok := cols[colHeader]; ok && field(record, colHeader) != dataRow {
			continue
		}

		trade, ok := parseTrade(record, field)
		if !ok {
			skipped++
			continue
		}
		trade.SourceFile = source
		trades = append(trades, trade)
	}

	return trades, skipped, nil
}

func parseTrade(record []string, field func([]string, string) string) (models.Trade, bool) {
	symbol := field(record, colSymbol)
	if symbol == "" {
		return models.Trade{}, false
	}

	date, ok := parseDate(field(record, colDateTime))
	if !ok {
		return models.Trade{}, false
	}
	qty, ok := parseNumber(field(record, colQuantity))
	if !ok {
		return models.Trade{}, false
	}
	price, ok := parseNumber(field(record, colPrice))
	if !ok {
		return models.Trade{}, false
	}
	fee := decimal.Zero
	if raw := field(record, colFee); raw != "" {
		if fee, ok = parseNumber(raw); !ok {
			return models.Trade{}, false
		}
	}

	t := models.Trade{
		Symbol:    symbol,
		Currency:  strings.ToUpper(field(record, colCurrency)),
		Date:      date,
		Quantity:  qty.InexactFloat64(),
		UnitPrice: price.InexactFloat64(),
		Fee:       fee.Abs().InexactFloat64(),
	}
	t.LocalCashflow = t.ComputeLocalCashflow()
	return t, true
}

// parseNumber accepts thousands separators.
func parseNumber(s string) (decimal.Decimal, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Holdings returns the unique (symbol, currency) pairs in first-appearance order.
func Holdings(trades []models.Trade) []models.Holding {
	seen := make(map[models.Holding]bool)
	var out []models.Holding
	for _, t := range trades {
		h := models.Holding{Symbol: t.Symbol, Currency: t.Currency}
		if seen[h] {
			continue
		}
		seen[h] = true
		out = append(out, h)
	}
	return out
}
