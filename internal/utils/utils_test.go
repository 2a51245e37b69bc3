package utils

import (
	"math"
	"testing"
	"time"
)

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		name     string
		v        float64
		decimals int
		want     string
	}{
		{"zero", 0, 2, "0.00"},
		{"small", 999, 0, "999"},
		{"thousands", 1234.5, 2, "1,234.50"},
		{"millions", 1500000, 0, "1,500,000"},
		{"negative", -245000, 0, "-245,000"},
		{"negative rounds to zero", -0.001, 2, "0.00"},
		{"nan", math.NaN(), 2, "n/a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatNumber(tt.v, tt.decimals); got != tt.want {
				t.Errorf("FormatNumber(%v, %d) = %q, want %q", tt.v, tt.decimals, got, tt.want)
			}
		})
	}
}

func TestFormatUSD(t *testing.T) {
	if got := FormatUSD(310000); got != "$310,000.00" {
		t.Errorf("FormatUSD(310000) = %q", got)
	}
	if got := FormatUSD(-12.5); got != "-$12.50" {
		t.Errorf("FormatUSD(-12.5) = %q", got)
	}
}

func TestFormatPrice(t *testing.T) {
	if got := FormatPrice(0.00012345); got != "$0.0001234" && got != "$0.0001235" {
		t.Errorf("FormatPrice(0.00012345) = %q", got)
	}
	if got := FormatPrice(1.5); got != "$1.50" {
		t.Errorf("FormatPrice(1.5) = %q", got)
	}
}

func TestTruncateAddress(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"short", "short"},
		{"7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU", "7xKX...gAsU"},
	}
	for _, tt := range tests {
		if got := TruncateAddress(tt.in); got != tt.want {
			t.Errorf("TruncateAddress(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTxURL(t *testing.T) {
	if got := TxURL("abc"); got != "https://solscan.io/tx/abc" {
		t.Errorf("TxURL() = %q", got)
	}
}

func TestFormatTime(t *testing.T) {
	ts := time.Date(2024, 3, 9, 14, 5, 0, 0, time.FixedZone("X", 3600))
	if got := FormatTime(ts); got != "2024-03-09 13:05 UTC" {
		t.Errorf("FormatTime() = %q", got)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{30 * time.Second, "30s"},
		{5 * time.Minute, "5m"},
		{90 * time.Minute, "1.5h"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.d); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
