package trader

import (
	"github.com/shopspring/decimal"

	"github.com/capwatch/internal/types"
)

var (
	hundred        = decimal.NewFromInt(100)
	lamportsPerSOL = decimal.NewFromInt(types.LamportsPerSOL)
)

// QuoteFee sizes the service fee for a liquidation.
//
// Proceeds are estimated as quantity × price; the fee is feePercent of that,
// converted to SOL at solUSD and rounded half up to whole lamports. An
// unknown quantity or a missing rate yields a zero quote.
func QuoteFee(quantity *float64, priceUSD float64, feePercent decimal.Decimal, solUSD float64) types.FeeQuote {
	quote := types.FeeQuote{
		ProceedsUSD: decimal.Zero,
		FeeUSD:      decimal.Zero,
		FeeSOL:      decimal.Zero,
	}
	if quantity == nil || *quantity <= 0 || priceUSD <= 0 || !feePercent.IsPositive() {
		return quote
	}

	quote.ProceedsUSD = decimal.NewFromFloat(*quantity).Mul(decimal.NewFromFloat(priceUSD))
	quote.FeeUSD = quote.ProceedsUSD.Mul(feePercent).Div(hundred)

	if solUSD <= 0 {
		return quote
	}

	quote.FeeSOL = quote.FeeUSD.Div(decimal.NewFromFloat(solUSD))
	lamports := quote.FeeSOL.Mul(lamportsPerSOL).Round(0)
	if lamports.IsPositive() {
		quote.Lamports = uint64(lamports.IntPart())
	}
	return quote
}
