package service

import (
	"fmt"
	"math"
	"strings"

	"golang-stockbot/internal/model"
)

const quoteTimeLayout = "2006-01-02 15:04 UTC"

// FormatStockQuote renders q as a Telegram message crediting provider.
func FormatStockQuote(q *model.StockQuote, provider string) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%s %s Stock Quote\n\n", trendEmoji(q.Change), q.Symbol))
	sb.WriteString(fmt.Sprintf("Price: $%.2f (%s, %s)\n", q.Price, signedDollars(q.Change), signedPercent(q.ChangePercent)))
	sb.WriteString(fmt.Sprintf("Open: $%.2f\n", q.Open))
	sb.WriteString(fmt.Sprintf("High: $%.2f\n", q.High))
	sb.WriteString(fmt.Sprintf("Low: $%.2f\n", q.Low))
	sb.WriteString(fmt.Sprintf("Volume: %s\n", formatVolume(q.Volume)))
	sb.WriteString(fmt.Sprintf("Market Cap: %s\n\n", formatMarketCap(q.MarketCap)))
	sb.WriteString(fmt.Sprintf("Last Updated: %s\n", q.Timestamp.UTC().Format(quoteTimeLayout)))
	sb.WriteString("Data provided by " + provider)

	return sb.String()
}

func trendEmoji(change float64) string {
	switch {
	case change > 0:
		return "📈"
	case change < 0:
		return "📉"
	default:
		return "➡️"
	}
}

// signedDollars puts the sign ahead of the currency: +$2.35, -$1.50.
func signedDollars(v float64) string {
	if v < 0 {
		return fmt.Sprintf("-$%.2f", math.Abs(v))
	}
	return fmt.Sprintf("+$%.2f", v)
}

func signedPercent(v float64) string {
	if v < 0 {
		return fmt.Sprintf("%.2f%%", v)
	}
	return fmt.Sprintf("+%.2f%%", v)
}

func formatVolume(volume uint64) string {
	v := float64(volume)
	switch {
	case v >= 1_000_000:
		return fmt.Sprintf("%.1fM", v/1_000_000)
	case v >= 1_000:
		return fmt.Sprintf("%.1fK", v/1_000)
	default:
		return fmt.Sprintf("%.0f", v)
	}
}

func formatMarketCap(marketCap *uint64) string {
	if marketCap == nil {
		return "N/A"
	}
	v := float64(*marketCap)
	switch {
	case v >= 1_000_000_000_000:
		return fmt.Sprintf("$%.1fT", v/1_000_000_000_000)
	case v >= 1_000_000_000:
		return fmt.Sprintf("$%.1fB", v/1_000_000_000)
	case v >= 1_000_000:
		return fmt.Sprintf("$%.1fM", v/1_000_000)
	default:
		return fmt.Sprintf("$%.0f", v)
	}
}

var symbolSuggestions = map[string]string{
	"APPL": "\n💡 Did you mean AAPL (Apple Inc.)?",
	"GOOG": "\n💡 Try GOOGL (Alphabet Inc.)",
	"MSFT": "\n💡 Already correct symbol",
}

// FormatStockError turns a provider or service error into a user message.
// symbol may be empty when the request carried none.
func FormatStockError(err error, symbol string) string {
	kind, ok := model.StockErrorKindOf(err)
	if !ok {
		return "🔧 Service temporarily unavailable\nPlease try again later."
	}

	switch kind {
	case model.StockErrInvalidSymbol, model.StockErrSymbolNotFound:
		sym := strings.ToUpper(strings.TrimSpace(symbol))
		if sym == "" {
			return "❌ Invalid stock symbol\nPlease provide a valid stock symbol."
		}
		suggestion, found := symbolSuggestions[sym]
		if !found {
			suggestion = "\n💡 Make sure you're using the correct ticker symbol"
		}
		return fmt.Sprintf("❌ Stock symbol not found: %q\nPlease check the symbol and try again.%s", sym, suggestion)
	case model.StockErrRateLimitExceeded:
		return "⚠️ Rate limit exceeded\nPlease wait a moment before trying again."
	case model.StockErrNetwork:
		return "🌐 Network error\nPlease check your connection and try again."
	case model.StockErrInvalidAPIKey:
		return "🔑 API configuration error\nPlease contact the administrator."
	case model.StockErrConfig:
		return "⚙️ Configuration error\nPlease contact the administrator."
	default:
		return "🔧 Service temporarily unavailable\nPlease try again later."
	}
}

func newsPlaceholder(symbol, provider string) string {
	return fmt.Sprintf("📰 %s News\n\n"+
		"🚧 News feature coming soon!\n"+
		"Market data is provided by %s.\n\n"+
		"For now, try these alternatives:\n"+
		"• Check financial news websites\n"+
		"• Use the /price command for current stock data", symbol, provider)
}

// FormatDailyUpdate is the scheduled message for a group. Symbols that
// could not be quoted are listed at the end.
func FormatDailyUpdate(groupName string, quotes []model.StockQuote, missing []string) string {
	var sb strings.Builder

	title := "Daily Stock Update"
	if groupName != "" {
		title += " for " + groupName
	}
	sb.WriteString("🗓 " + title + "\n")

	for _, q := range quotes {
		sb.WriteString(fmt.Sprintf("\n%s %s $%.2f (%s, %s)", trendEmoji(q.Change), q.Symbol, q.Price, signedDollars(q.Change), signedPercent(q.ChangePercent)))
	}
	if len(missing) > 0 {
		sb.WriteString("\n\n⚠️ No data for: " + strings.Join(missing, ", "))
	}
	return sb.String()
}

