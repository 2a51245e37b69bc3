package trader

import (
	"math"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// TokenAddressLength is the length of an address accepted as a token identifier.
const TokenAddressLength = 44

// ValidationError is a rejected user input. Message is shown to the user
// as-is and the session stays where it was.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

var (
	errNotANumber  = &ValidationError{Field: "amount", Message: "Please enter a valid number (e.g., 0.1 or 1.5)."}
	errNotPositive = &ValidationError{Field: "amount", Message: "Amount must be greater than 0."}
	errBadTarget   = &ValidationError{Field: "target", Message: "Please enter a valid positive market cap (e.g., 250000 or 245k)."}
)

var (
	thousand = decimal.NewFromInt(1_000)
	million  = decimal.NewFromInt(1_000_000)
)

// IsTokenAddress reports whether s is a 44 character base58 public key.
func IsTokenAddress(s string) bool {
	if len(s) != TokenAddressLength {
		return false
	}
	_, err := solana.PublicKeyFromBase58(s)
	return err == nil
}

// ParseAmount parses a spend amount in SOL. It must be strictly positive.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, errNotANumber
	}
	if !d.IsPositive() {
		return decimal.Zero, errNotPositive
	}
	return d, nil
}

// ParseTarget parses a target valuation in USD. Accepts an optional leading
// "$", thousands commas and a k (thousand) or m (million) suffix, e.g.
// "250000", "245k", "$1.5M".
func ParseTarget(s string) (float64, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")

	multiplier := decimal.NewFromInt(1)
	switch {
	case strings.HasSuffix(s, "k"):
		multiplier = thousand
		s = strings.TrimSuffix(s, "k")
	case strings.HasSuffix(s, "m"):
		multiplier = million
		s = strings.TrimSuffix(s, "m")
	}

	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errBadTarget
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, errBadTarget
	}

	d = d.Mul(multiplier)
	if !d.IsPositive() {
		return 0, errBadTarget
	}

	// Exponent input can fall outside float64 range
	f := d.InexactFloat64()
	if f <= 0 || math.IsInf(f, 0) {
		return 0, errBadTarget
	}
	return f, nil
}
