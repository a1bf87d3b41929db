package shared

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// AmountEpsilon is the tolerance used when comparing currency totals.
const AmountEpsilon = 0.01

var amountPrinter = message.NewPrinter(language.English)

// FormatAmount renders a currency amount with digit grouping for user-facing
// messages, e.g. 119000 -> "119,000".
func FormatAmount(v float64) string {
	return amountPrinter.Sprintf("%.2f", v)
}

// FormatQuantity renders a stock quantity without trailing decimals when the
// value is whole.
func FormatQuantity(v float64) string {
	if v == float64(int64(v)) {
		return amountPrinter.Sprintf("%d", int64(v))
	}
	return amountPrinter.Sprintf("%.3f", v)
}
