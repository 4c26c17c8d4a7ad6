package exchange

import "strings"

var krakenAliases = map[string]string{
	"BTC":  "XBT",
	"DOGE": "XDG",
}

// OANDAInstrument maps "EUR/USD" to "EUR_USD".
func OANDAInstrument(pair string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(pair), "/", "_"))
}

// KrakenPair maps "BTC/USD" to "XBTUSD".
func KrakenPair(pair string) string {
	parts := strings.Split(strings.ToUpper(strings.TrimSpace(pair)), "/")
	for i, p := range parts {
		if alias, ok := krakenAliases[p]; ok {
			parts[i] = alias
		}
	}
	return strings.Join(parts, "")
}

// AlpacaSymbol maps "AAPL/USD" or "aapl" to "AAPL".
func AlpacaSymbol(pair string) string {
	pair = strings.ToUpper(strings.TrimSpace(pair))
	if i := strings.Index(pair, "/"); i >= 0 {
		return pair[:i]
	}
	return pair
}

// timeframeMinutes understands OANDA-style granularities (M5, H1, D).
func timeframeMinutes(tf string) int {
	switch strings.ToUpper(tf) {
	case "M1":
		return 1
	case "M15":
		return 15
	case "M30":
		return 30
	case "H1":
		return 60
	case "H4":
		return 240
	case "D":
		return 1440
	default:
		return 5
	}
}
