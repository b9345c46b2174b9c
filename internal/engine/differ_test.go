package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/coinwatch/internal/domain"
)

func snapshot(quantities map[string]float64) domain.BalanceSnapshot {
	return domain.BalanceSnapshot{
		AsOf:       time.Now(),
		Quantities: quantities,
	}
}

func quotesFor(prices map[string]float64) map[string]domain.PriceQuote {
	quotes := make(map[string]domain.PriceQuote, len(prices))
	for asset, price := range prices {
		instID := domain.InstrumentID(asset, "USDT")
		quotes[instID] = domain.PriceQuote{InstID: instID, LastPrice: price}
	}
	return quotes
}

func TestDiffer_Diff_NoChanges(t *testing.T) {
	differ := NewDiffer("USDT", 1.0)

	balances := map[string]float64{"BTC": 0.5, "ETH": 10}
	deltas := differ.Diff(
		snapshot(balances),
		snapshot(balances),
		quotesFor(map[string]float64{"BTC": 50000, "ETH": 3000}),
	)

	assert.Empty(t, deltas)
}

func TestDiffer_Diff_DetectsBuyAndSell(t *testing.T) {
	differ := NewDiffer("USDT", 1.0)

	deltas := differ.Diff(
		snapshot(map[string]float64{"BTC": 0.5, "ETH": 10}),
		snapshot(map[string]float64{"BTC": 0.6, "ETH": 4}),
		quotesFor(map[string]float64{"BTC": 50000, "ETH": 3000}),
	)

	assert.Len(t, deltas, 2)

	byAsset := make(map[string]Delta)
	for _, d := range deltas {
		byAsset[d.Asset] = d
	}

	assert.InDelta(t, 0.1, byAsset["BTC"].Amount, 1e-9)
	assert.InDelta(t, 0.6, byAsset["BTC"].Held, 1e-9)
	assert.Equal(t, 50000.0, byAsset["BTC"].Price)

	assert.InDelta(t, -6.0, byAsset["ETH"].Amount, 1e-9)
	assert.InDelta(t, 4.0, byAsset["ETH"].Held, 1e-9)
}

func TestDiffer_Diff_AssetDisappearsFromSnapshot(t *testing.T) {
	// A fully sold asset is absent from the new snapshot; its delta is the
	// whole previous quantity, held is zero.
	differ := NewDiffer("USDT", 1.0)

	deltas := differ.Diff(
		snapshot(map[string]float64{"SOL": 100}),
		snapshot(map[string]float64{}),
		quotesFor(map[string]float64{"SOL": 150}),
	)

	assert.Len(t, deltas, 1)
	assert.Equal(t, "SOL", deltas[0].Asset)
	assert.InDelta(t, -100.0, deltas[0].Amount, 1e-9)
	assert.Equal(t, 0.0, deltas[0].Held)
}

func TestDiffer_Diff_FiltersDust(t *testing.T) {
	tests := []struct {
		name      string
		prev      float64
		curr      float64
		price     float64
		wantDelta bool
	}{
		{"below threshold", 1.0, 1.0000001, 3000, false},
		{"exactly at threshold boundary", 1.0, 1.0, 3000, false},
		{"staking reward dust", 100, 100.004, 150, false},
		{"just above threshold", 1.0, 1.001, 3000, true},
		{"large trade", 1.0, 2.0, 3000, true},
	}

	differ := NewDiffer("USDT", 1.0)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deltas := differ.Diff(
				snapshot(map[string]float64{"ETH": tt.prev}),
				snapshot(map[string]float64{"ETH": tt.curr}),
				quotesFor(map[string]float64{"ETH": tt.price}),
			)

			if tt.wantDelta {
				assert.Len(t, deltas, 1)
			} else {
				assert.Empty(t, deltas)
			}
		})
	}
}

func TestDiffer_Diff_SkipsQuoteCurrency(t *testing.T) {
	differ := NewDiffer("USDT", 1.0)

	deltas := differ.Diff(
		snapshot(map[string]float64{"USDT": 10000}),
		snapshot(map[string]float64{"USDT": 5000}),
		map[string]domain.PriceQuote{
			"USDT-USDT": {InstID: "USDT-USDT", LastPrice: 1},
		},
	)

	assert.Empty(t, deltas)
}

func TestDiffer_Diff_SkipsAssetWithoutQuote(t *testing.T) {
	differ := NewDiffer("USDT", 1.0)

	deltas := differ.Diff(
		snapshot(map[string]float64{"OBSCURE": 0}),
		snapshot(map[string]float64{"OBSCURE": 500, "BTC": 1}),
		quotesFor(map[string]float64{"BTC": 50000}),
	)

	// Only the quoted asset yields a delta; the unquoted one is dropped.
	require.Len(t, deltas, 1)
	assert.Equal(t, "BTC", deltas[0].Asset)
	assert.InDelta(t, 1.0, deltas[0].Amount, 1e-9)
}
