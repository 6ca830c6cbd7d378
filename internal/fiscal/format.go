package fiscal

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var copPrinter = message.NewPrinter(language.MustParse("es-CO"))

// FormatCOP renders a peso amount with Colombian digit grouping, e.g. "$ 11.900.000".
func FormatCOP(amount decimal.Decimal) string {
	return copPrinter.Sprintf("$ %d", amount.Round(0).IntPart())
}

// FormatCOPFloat is FormatCOP for amounts stored as float64.
func FormatCOPFloat(amount float64) string {
	return FormatCOP(decimal.NewFromFloat(amount))
}
