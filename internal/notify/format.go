package notify

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// amountPrinter renders money with grouping separators ("12,500.00") in all
// user-facing messages.
var amountPrinter = message.NewPrinter(language.English)

// FormatAmount renders a monetary amount with two decimals, or the given
// placeholder when the amount is not set yet.
func FormatAmount(amount *float64, placeholder string) string {
	if amount == nil {
		return placeholder
	}
	return amountPrinter.Sprintf("%.2f", *amount)
}
