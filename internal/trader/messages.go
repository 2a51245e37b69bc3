package trader

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/capwatch/internal/storage"
	"github.com/capwatch/internal/utils"
)

const (
	msgCreatingWallet    = "⏳ Creating your wallet, this can take a moment..."
	msgWalletFailed      = "❌ Error creating wallet. Please try again later."
	msgNoWallet          = "❌ Wallet not set up. Please use /start to create your wallet."
	msgWalletBroken      = "❌ Wallet not set up correctly. Please use /start to create your wallet."
	msgNoHistory         = "No trade history found."
	msgNoMonitoring      = "No active monitoring session."
	msgStatusUnavailable = "Error retrieving current market data."
	msgUsageHint         = "💡 Send me a Solana token address (44 characters) to start a trade. Type /help for instructions."
	msgInvalidAddress    = "⚠️ That doesn't look like a valid Solana address. Please try again."
	msgAskAmount         = "How much SOL do you want to spend on this trade?"
	msgAskTarget         = "At what market cap (in USD) should I sell the tokens?\nFor example: \"250000\" or \"245k\""
	msgBusyMonitoring    = "⏳ Your trade is being monitored. Use /status to check on it or /cancel to stop."
	msgNothingToConfirm  = "No pending trade to confirm."
	msgExecutingBuy      = "🔄 Executing buy order..."
	msgCancelled         = "Trade cancelled. Send a new token address to start again."
	msgStorageError      = "❌ Something went wrong reading your account. Please try again."
	msgFeeFailed         = "⚠️ The service fee transfer did not go through. Your sale is not affected."
)

func esc(s string) string {
	return html.EscapeString(s)
}

func mcap(v float64) string {
	return "$" + utils.FormatNumber(v, 0)
}

// tokenName prefers the ticker and falls back to a shortened mint
func tokenName(symbol, mint string) string {
	if symbol != "" {
		return symbol
	}
	return utils.TruncateAddress(mint)
}

func txLink(sig string) string {
	return fmt.Sprintf(`<a href="%s">View on Solscan</a>`, utils.TxURL(sig))
}

func msgWelcome(address string) string {
	return fmt.Sprintf(`🚀 <b>Welcome to Market Cap Trader Bot!</b>

A new wallet has been created for you.

<b>Wallet Address:</b>
<code>%s</code>

Fund your wallet using the above address.
Send me a valid Solana token address to start a new trade.
Type /help for further instructions.`, esc(address))
}

const msgWelcomeBack = "🚀 <b>Welcome back!</b> Send me a valid Solana token address to start a new trade.\nType /help for instructions."

func msgHelp(tipAddress string) string {
	return fmt.Sprintf(`🤖 <b>Market Cap Trader Bot Help</b>

<b>Commands:</b>
• /start - Initialize your profile. A wallet and API key will be created for you.
• /help - Show this help message.
• /myaddy - Get your wallet (public) address so you can fund it.
• /mypkey - Get your wallet's private key.
• /tradehistory - Show your recent trades.
• /stats - Show a summary of your trades.
• /status - Check the trade being monitored (refreshes current market cap).
• /cancel - Cancel the current trade.
• /confirm - Execute a buy order with the entered trade details.

<b>Workflow:</b>
1. Send /start. A wallet and API key will be created for you.
2. Fund your wallet using the address from /myaddy.
3. Send a valid Solana token address (44 characters) to begin a trade.
4. Provide the SOL amount you wish to spend.
5. Enter the target market cap (e.g. "250000" or "245k") at which you want to sell.
6. Confirm with /confirm to execute the trade.
7. The bot watches the market cap every few seconds and sells automatically when your target is reached.
8. Love the bot? Send a tip (SOL) to:
<code>%s</code>`, esc(tipAddress))
}

func msgAddress(address string) string {
	return fmt.Sprintf("<b>Your wallet address is:</b>\n<code>%s</code>", esc(address))
}

func msgSecret(secret string, ttl time.Duration) string {
	text := fmt.Sprintf("<b>Your wallet private key is:</b>\n<code>%s</code>", esc(secret))
	if ttl > 0 {
		text += fmt.Sprintf("\n\n<i>This message will be deleted in %s.</i>", utils.FormatDuration(ttl))
	}
	return text
}

func msgTokenDetected(symbol string, valuation float64) string {
	if symbol == "" {
		symbol = "Unknown"
	}
	return fmt.Sprintf("✅ Token detected!\n\n<b>Symbol:</b> %s\n<b>Current Market Cap:</b> %s\n\n%s",
		esc(symbol), mcap(valuation), msgAskAmount)
}

func msgSummary(name string, spend decimal.Decimal, target float64) string {
	return fmt.Sprintf(`📋 <b>Trade Details:</b>
<b>Token:</b> %s
<b>Buy Amount:</b> %s SOL
<b>Sell Target:</b> %s market cap

Type /confirm to proceed or /cancel to abort.`, esc(name), spend.String(), mcap(target))
}

func msgBuyFailed(err error) string {
	return fmt.Sprintf("❌ Error executing trade: %s", esc(err.Error()))
}

func msgBuyExecuted(name string, quantity *float64, buyTx string, target float64) string {
	amount := "unknown"
	if quantity != nil {
		amount = utils.FormatNumber(*quantity, 2)
	}
	return fmt.Sprintf(`✅ Buy order executed!
<b>Token:</b> %s
<b>Amount:</b> ~%s tokens
<b>TX:</b> %s

Now monitoring market cap. I'll sell when it reaches %s.`, esc(name), amount, txLink(buyTx), mcap(target))
}

func msgRecordFailed(buyTx string) string {
	return fmt.Sprintf(`⚠️ Your buy went through but the trade could not be saved, so monitoring did not start.
<b>TX:</b> %s

Please sell manually or contact support.`, txLink(buyTx))
}

func msgTargetReached(current, target float64) string {
	return fmt.Sprintf("🎯 Target market cap reached!\n<b>Current:</b> %s\n<b>Target:</b> %s\n\nExecuting sell order...",
		mcap(current), mcap(target))
}

func msgMonitoringError(err error) string {
	return fmt.Sprintf("⚠️ Monitoring error: %s", esc(err.Error()))
}

func msgSellFailed(err error) string {
	return fmt.Sprintf("❌ Error executing sell order: %s\n\nMonitoring has stopped. Your tokens are still in your wallet.", esc(err.Error()))
}

func msgSellExecuted(sellTx string) string {
	return fmt.Sprintf("✅ Sell order executed!\n<b>TX:</b> %s\n\nTrade completed successfully!", txLink(sellTx))
}

// statusView is a monitoring snapshot for /status
type statusView struct {
	name      string
	spend     decimal.Decimal
	target    float64
	valuation *float64
	price     *float64
	balance   *float64
	checkedAt time.Time
	since     time.Time
}

func msgStatus(v statusView) string {
	var b strings.Builder
	b.WriteString("📊 <b>Current Monitoring:</b>\n")
	fmt.Fprintf(&b, "<b>Token:</b> %s\n", esc(v.name))

	switch {
	case v.balance == nil:
		b.WriteString("<b>Balance:</b> Unknown\n")
	case v.price != nil:
		fmt.Fprintf(&b, "<b>Balance:</b> %s (%s)\n", utils.FormatNumber(*v.balance, 2), utils.FormatUSD(*v.balance * *v.price))
	default:
		fmt.Fprintf(&b, "<b>Balance:</b> %s\n", utils.FormatNumber(*v.balance, 2))
	}

	fmt.Fprintf(&b, "<b>Bought:</b> %s SOL\n", v.spend.String())
	fmt.Fprintf(&b, "<b>Target Market Cap:</b> %s\n", mcap(v.target))

	if v.valuation != nil {
		fmt.Fprintf(&b, "<b>Current Market Cap:</b> %s", mcap(*v.valuation))
		if !v.checkedAt.IsZero() {
			fmt.Fprintf(&b, " <i>(%s ago)</i>", utils.FormatDuration(time.Since(v.checkedAt)))
		}
		b.WriteString("\n")
	} else {
		b.WriteString("<b>Current Market Cap:</b> Unknown\n")
	}
	if v.price != nil {
		fmt.Fprintf(&b, "<b>Price:</b> %s\n", utils.FormatPrice(*v.price))
	}

	if !v.since.IsZero() {
		fmt.Fprintf(&b, "<b>Monitoring since:</b> %s\n", utils.FormatTime(v.since))
	}
	b.WriteString("<b>Status:</b> Actively monitoring...")
	return b.String()
}

func msgHistory(trades []*storage.Trade) string {
	var b strings.Builder
	b.WriteString("<b>Your recent trades:</b>")
	for _, t := range trades {
		fmt.Fprintf(&b, "\n\n<b>Token:</b> %s", esc(tokenName(t.TokenSymbol, t.TokenAddress)))
		fmt.Fprintf(&b, "\n<b>Buy Amount:</b> %s SOL", t.SpendAmount.String())
		fmt.Fprintf(&b, "\n<b>Target Market Cap:</b> %s", mcap(t.TargetValuation))
		if t.FinalValuation != nil {
			fmt.Fprintf(&b, "\n<b>Final Market Cap:</b> %s", mcap(*t.FinalValuation))
		}
		fmt.Fprintf(&b, "\n<b>Status:</b> %s", t.Status)
		fmt.Fprintf(&b, "\n<b>Date:</b> %s", utils.FormatTime(t.CreatedAt))
	}
	return b.String()
}

func msgStats(s *storage.TradeStats) string {
	return fmt.Sprintf(`📈 <b>Your Trades</b>

<b>Total:</b> %d
<b>Completed:</b> %d
<b>Pending:</b> %d
<b>Failed:</b> %d
<b>SOL spent on completed trades:</b> %s`,
		s.TotalCount, s.CompletedCount, s.PendingCount, s.FailedCount, s.CompletedSpend.String())
}
