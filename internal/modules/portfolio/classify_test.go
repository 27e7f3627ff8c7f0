package portfolio

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/AxelFooley/trackfolio/internal/domain"
)

func TestClassifyAssetClass(t *testing.T) {
	tests := []struct {
		name        string
		identifier  string
		ticker      string
		description string
		want        domain.AssetClass
	}{
		{"crypto namespace", "CRYPTO:BTC", "BTC-EUR", "", domain.AssetClassCrypto},
		{"crypto pair ticker", "BTC-EUR", "BTC-EUR", "", domain.AssetClassCrypto},
		{"crypto bare symbol", "ETH", "eth", "", domain.AssetClassCrypto},
		{"etf by description", "IE00B4L5Y983", "SWDA.MI", "iShares Core MSCI World ETF", domain.AssetClassETF},
		{"etf by ticker", "IE00B4L5Y983", "VWCE-ETF", "", domain.AssetClassETF},
		{"listed stock", "DE0007164600", "SAP.DE", "SAP SE", domain.AssetClassStock},
		{"plain stock", "US0378331005", "AAPL", "Apple Inc", domain.AssetClassStock},
		{"stock named like crypto company", "US00000COIN1", "COIN", "Coinbase Global", domain.AssetClassStock},
		{"default on empty", "", "", "", domain.AssetClassStock},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyAssetClass(tt.identifier, tt.ticker, tt.description)
			assert.Equal(t, tt.want, got)
		})
	}
}
