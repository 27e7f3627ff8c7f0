package portfolio

import (
	"strings"

	"github.com/AxelFooley/trackfolio/internal/domain"
)

// cryptoSymbols is the explicit list of ticker symbols treated as
// cryptocurrency when no crypto identifier namespace is present.
var cryptoSymbols = map[string]bool{
	"BTC": true, "ETH": true, "SOL": true, "ADA": true, "XRP": true,
	"DOGE": true, "DOT": true, "LTC": true, "BCH": true, "LINK": true,
	"AVAX": true, "MATIC": true, "ATOM": true, "UNI": true, "XLM": true,
}

// exchangeSuffixes are listed-exchange ticker suffixes; their presence
// marks a conventional listed security rather than a crypto pair.
var exchangeSuffixes = []string{".DE", ".PA", ".MI", ".AS", ".L", ".SW", ".BR", ".MC"}

// ClassifyAssetClass resolves the asset class for a holding. Resolution is
// best-effort string heuristics, applied once at classification time and
// stored on the position:
//  1. the crypto identifier namespace ("CRYPTO:...")
//  2. the explicit crypto symbol list, including "-EUR"/"-USD" pair forms
//  3. an "ETF" substring in ticker or description
//  4. default: stock
func ClassifyAssetClass(identifier, ticker, description string) domain.AssetClass {
	identifier = strings.ToUpper(strings.TrimSpace(identifier))
	ticker = strings.ToUpper(strings.TrimSpace(ticker))

	if strings.HasPrefix(identifier, domain.CryptoIdentifierPrefix) {
		return domain.AssetClassCrypto
	}

	base := ticker
	for _, quote := range []string{"-EUR", "-USD", "-GBP"} {
		base = strings.TrimSuffix(base, quote)
	}
	if cryptoSymbols[base] {
		return domain.AssetClassCrypto
	}

	for _, suffix := range exchangeSuffixes {
		if strings.HasSuffix(ticker, suffix) {
			if containsETF(ticker, description) {
				return domain.AssetClassETF
			}
			return domain.AssetClassStock
		}
	}

	if containsETF(ticker, description) {
		return domain.AssetClassETF
	}

	return domain.AssetClassStock
}

func containsETF(ticker, description string) bool {
	return strings.Contains(ticker, "ETF") ||
		strings.Contains(strings.ToUpper(description), "ETF")
}
