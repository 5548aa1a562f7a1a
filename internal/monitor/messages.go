package monitor

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// fixed formats a float with a fixed number of decimal places, without the
// exponent forms %g can produce in alert text.
func fixed(v float64, places int32) string {
	return decimal.NewFromFloat(v).StringFixed(places)
}

// signedPercent renders +1.23% / -1.23% for change values.
func signedPercent(v float64, places int32) string {
	s := fixed(v, places)
	if v > 0 {
		s = "+" + s
	}
	return s + "%"
}

func messageTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05 UTC")
}

func joinLines(lines []string) string {
	return strings.Join(lines, "\n")
}
