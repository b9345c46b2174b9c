package alerts

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/coinwatch/internal/database"
	"github.com/aristath/coinwatch/internal/domain"
)

type stubSource struct {
	balances map[string]float64
	quotes   map[string]domain.PriceQuote
}

func (s *stubSource) FetchBalances(ctx context.Context) (domain.BalanceSnapshot, error) {
	return domain.BalanceSnapshot{AsOf: time.Now(), Quantities: s.balances}, nil
}

func (s *stubSource) FetchQuotes(ctx context.Context) (map[string]domain.PriceQuote, error) {
	return s.quotes, nil
}

type stubAlerter struct {
	messages []string
}

func (a *stubAlerter) Alert(ctx context.Context, text string) error {
	a.messages = append(a.messages, text)
	return nil
}

func newTestMonitor(t *testing.T, source *stubSource, alerter Alerter, overrides map[string]float64) (*Monitor, *MarkRepository) {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })

	marks := NewMarkRepository(db.Conn(), zerolog.Nop())
	monitor := NewMonitor(MonitorConfig{
		Source:          source,
		Marks:           marks,
		Alerter:         alerter,
		QuoteCurrency:   "USDT",
		GlobalThreshold: 5.0,
		Overrides:       overrides,
		Log:             zerolog.Nop(),
	})

	return monitor, marks
}

func TestMonitor_Run_FirstRunOnlySetsMarks(t *testing.T) {
	source := &stubSource{
		balances: map[string]float64{"BTC": 1, "USDT": 1000},
		quotes: map[string]domain.PriceQuote{
			"BTC-USDT": {InstID: "BTC-USDT", LastPrice: 50000},
		},
	}
	alerter := &stubAlerter{}
	monitor, marks := newTestMonitor(t, source, alerter, nil)

	require.NoError(t, monitor.Run())
	assert.Empty(t, alerter.messages)

	mark, err := marks.Get("BTC")
	require.NoError(t, err)
	assert.Equal(t, 50000.0, mark)

	total, err := marks.Get(totalKey)
	require.NoError(t, err)
	assert.Equal(t, 51000.0, total)
}

func TestMonitor_Run_SmallMoveStaysSilent(t *testing.T) {
	source := &stubSource{
		balances: map[string]float64{"BTC": 1},
		quotes: map[string]domain.PriceQuote{
			"BTC-USDT": {InstID: "BTC-USDT", LastPrice: 50000},
		},
	}
	alerter := &stubAlerter{}
	monitor, marks := newTestMonitor(t, source, alerter, nil)

	require.NoError(t, monitor.Run())

	// 2% up, below the 5% threshold
	source.quotes["BTC-USDT"] = domain.PriceQuote{InstID: "BTC-USDT", LastPrice: 51000}
	require.NoError(t, monitor.Run())

	assert.Empty(t, alerter.messages)

	// Mark stays where it was so drift accumulates
	mark, err := marks.Get("BTC")
	require.NoError(t, err)
	assert.Equal(t, 50000.0, mark)
}

func TestMonitor_Run_FiresAndResetsMark(t *testing.T) {
	source := &stubSource{
		balances: map[string]float64{"BTC": 1},
		quotes: map[string]domain.PriceQuote{
			"BTC-USDT": {InstID: "BTC-USDT", LastPrice: 50000},
		},
	}
	alerter := &stubAlerter{}
	monitor, marks := newTestMonitor(t, source, alerter, nil)

	require.NoError(t, monitor.Run())

	// 10% drop fires both the asset and the portfolio alert
	source.quotes["BTC-USDT"] = domain.PriceQuote{InstID: "BTC-USDT", LastPrice: 45000}
	require.NoError(t, monitor.Run())

	require.Len(t, alerter.messages, 2)

	var assetAlert string
	for _, msg := range alerter.messages {
		if strings.HasPrefix(msg, "BTC") {
			assetAlert = msg
		}
	}
	assert.Contains(t, assetAlert, "-10.00%")

	// Mark resets to the fired price; re-running stays silent.
	mark, err := marks.Get("BTC")
	require.NoError(t, err)
	assert.Equal(t, 45000.0, mark)

	require.NoError(t, monitor.Run())
	assert.Len(t, alerter.messages, 2)
}

func TestMonitor_Run_PerAssetOverride(t *testing.T) {
	source := &stubSource{
		balances: map[string]float64{"DOGE": 10000},
		quotes: map[string]domain.PriceQuote{
			"DOGE-USDT": {InstID: "DOGE-USDT", LastPrice: 0.10},
		},
	}
	alerter := &stubAlerter{}
	monitor, _ := newTestMonitor(t, source, alerter, map[string]float64{"DOGE": 20.0})

	require.NoError(t, monitor.Run())

	// 10% move: over the 5% global threshold but under the 20% override.
	// Only the portfolio-level alert fires.
	source.quotes["DOGE-USDT"] = domain.PriceQuote{InstID: "DOGE-USDT", LastPrice: 0.11}
	require.NoError(t, monitor.Run())

	require.Len(t, alerter.messages, 1)
	assert.Contains(t, alerter.messages[0], "Portfolio")
}
