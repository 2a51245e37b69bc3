package utils

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const explorerTxURL = "https://solscan.io/tx/"

// FormatNumber renders v with thousands separators and the given decimals
func FormatNumber(v float64, decimals int) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "n/a"
	}

	s := strconv.FormatFloat(math.Abs(v), 'f', decimals, 64)
	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	if v < 0 && s != strconv.FormatFloat(0, 'f', decimals, 64) {
		b.WriteByte('-')
	}
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if frac != "" {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return b.String()
}

// FormatUSD formats a dollar amount, e.g. $1,234.56
func FormatUSD(v float64) string {
	s := FormatNumber(v, 2)
	if strings.HasPrefix(s, "-") {
		return "-$" + s[1:]
	}
	return "$" + s
}

// FormatPrice formats a token price. Sub-cent prices keep significant digits.
func FormatPrice(v float64) string {
	if v > 0 && v < 0.01 {
		return "$" + strconv.FormatFloat(v, 'g', 4, 64)
	}
	return FormatUSD(v)
}

// TruncateAddress shortens an address for display, e.g. 7xKX...gAsU
func TruncateAddress(address string) string {
	if len(address) <= 12 {
		return address
	}
	return address[:4] + "..." + address[len(address)-4:]
}

// TxURL returns the explorer link for a transaction signature
func TxURL(signature string) string {
	return explorerTxURL + signature
}

// FormatTime formats a timestamp for history listings
func FormatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04 UTC")
}

// FormatDuration formats an elapsed duration compactly
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%.0fm", d.Minutes())
	}
	return fmt.Sprintf("%.1fh", d.Hours())
}
