package engine

import (
	"github.com/aristath/coinwatch/internal/domain"
)

// Delta is one significant per-asset quantity change between two snapshots
type Delta struct {
	Asset  string
	Amount float64 // signed quantity change
	Price  float64 // last price this cycle
	Held   float64 // authoritative post-trade quantity from the new snapshot
}

// Differ compares successive balance snapshots and filters out noise
type Differ struct {
	quoteCurrency string
	dustThreshold float64 // min notional |delta * price| treated as a trade
}

// NewDiffer creates a new balance differ
func NewDiffer(quoteCurrency string, dustThreshold float64) *Differ {
	return &Differ{
		quoteCurrency: quoteCurrency,
		dustThreshold: dustThreshold,
	}
}

// Diff returns the significant quantity changes between the previous accepted
// snapshot and the new one. The settlement currency is never a delta. An
// asset with no quote this cycle is skipped entirely; once the baseline
// advances past it the signal is gone.
func (d *Differ) Diff(prev, curr domain.BalanceSnapshot, quotes map[string]domain.PriceQuote) []Delta {
	seen := make(map[string]struct{}, len(prev.Quantities)+len(curr.Quantities))
	for asset := range prev.Quantities {
		seen[asset] = struct{}{}
	}
	for asset := range curr.Quantities {
		seen[asset] = struct{}{}
	}

	var deltas []Delta
	for asset := range seen {
		if asset == d.quoteCurrency {
			continue
		}

		quote, ok := quotes[domain.InstrumentID(asset, d.quoteCurrency)]
		if !ok || quote.LastPrice <= 0 {
			continue
		}

		amount := curr.Quantities[asset] - prev.Quantities[asset]
		if abs(amount)*quote.LastPrice < d.dustThreshold {
			continue
		}

		deltas = append(deltas, Delta{
			Asset:  asset,
			Amount: amount,
			Price:  quote.LastPrice,
			Held:   curr.Quantities[asset],
		})
	}

	return deltas
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
