package common

import (
	"fmt"
	"math"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// FormatMoney formats an amount in the currency's conventional display form,
// e.g. "$1,234.56". Unknown currency codes fall back to "1234.56 XYZ".
func FormatMoney(v float64, currency string) string {
	code := strings.ToUpper(currency)
	cur := money.GetCurrency(code)
	if cur == nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Sprintf("%.2f %s", v, code)
	}
	minor := decimal.NewFromFloat(v).Shift(int32(cur.Fraction)).Round(0).IntPart()
	return money.New(minor, code).Display()
}

// FormatSignedMoney formats money with a +/- prefix
func FormatSignedMoney(v float64, currency string) string {
	if v >= 0 {
		return "+" + FormatMoney(v, currency)
	}
	return FormatMoney(v, currency)
}

// FormatSignedPct formats a percentage with +/- prefix
func FormatSignedPct(v float64) string {
	if v >= 0 {
		return fmt.Sprintf("+%.2f%%", v)
	}
	return fmt.Sprintf("%.2f%%", v)
}
