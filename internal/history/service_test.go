package history

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

func TestService_RecordSample_LabelsByBucket(t *testing.T) {
	source := &stubSource{
		balances: map[string]float64{"BTC": 0.5, "USDT": 5000},
		quotes: map[string]domain.PriceQuote{
			"BTC-USDT": {InstID: "BTC-USDT", LastPrice: 50000},
		},
	}
	repo := newTestRepository(t)
	svc := NewService(source, repo, "USDT", zerolog.Nop())
	svc.now = func() time.Time { return time.Date(2026, 5, 1, 14, 30, 0, 0, time.UTC) }

	require.NoError(t, svc.RecordSample(context.Background(), BucketHourly))
	require.NoError(t, svc.RecordSample(context.Background(), BucketDaily))

	hourly, err := repo.GetAll(BucketHourly)
	require.NoError(t, err)
	require.Len(t, hourly, 1)
	assert.Equal(t, "2026-05-01T14", hourly[0].Label)
	assert.InDelta(t, 30000.0, hourly[0].TotalValue, 1e-9)

	daily, err := repo.GetAll(BucketDaily)
	require.NoError(t, err)
	require.Len(t, daily, 1)
	assert.Equal(t, "2026-05-01", daily[0].Label)
}

func TestService_Performance_EmptyBucket(t *testing.T) {
	svc := NewService(&stubSource{}, newTestRepository(t), "USDT", zerolog.Nop())

	perf, err := svc.Performance(BucketDaily)
	require.NoError(t, err)
	require.NotNil(t, perf)
	assert.Equal(t, 0, perf.Samples)
	assert.Equal(t, 0.0, perf.PnL)
}

func TestService_Performance_ComputesSummary(t *testing.T) {
	repo := newTestRepository(t)
	svc := NewService(&stubSource{}, repo, "USDT", zerolog.Nop())

	values := []float64{10000, 11000, 9900, 10450}
	for i, v := range values {
		label := time.Date(2026, 5, 1+i, 0, 0, 0, 0, time.UTC).Format("2006-01-02")
		require.NoError(t, repo.Record(BucketDaily, label, v))
	}

	perf, err := svc.Performance(BucketDaily)
	require.NoError(t, err)
	require.NotNil(t, perf)

	assert.Equal(t, 4, perf.Samples)
	assert.Equal(t, 10000.0, perf.StartValue)
	assert.Equal(t, 10450.0, perf.EndValue)
	assert.InDelta(t, 450.0, perf.PnL, 1e-9)
	assert.InDelta(t, 4.5, perf.PnLPercent, 1e-9)

	assert.InDelta(t, 10.0, perf.BestChangePct, 1e-9)   // 10000 -> 11000
	assert.InDelta(t, -10.0, perf.WorstChangePct, 1e-9) // 11000 -> 9900

	// Peak 11000, trough 9900
	assert.InDelta(t, 0.1, perf.MaxDrawdown, 1e-9)

	// Too few samples for a 14-period RSI
	assert.Nil(t, perf.RSI)

	assert.Greater(t, perf.Volatility, 0.0)
}

func TestService_Performance_VolatilityOnlyForDailyBucket(t *testing.T) {
	repo := newTestRepository(t)
	svc := NewService(&stubSource{}, repo, "USDT", zerolog.Nop())

	require.NoError(t, repo.Record(BucketHourly, "2026-05-01T10", 10000))
	require.NoError(t, repo.Record(BucketHourly, "2026-05-01T11", 10500))

	perf, err := svc.Performance(BucketHourly)
	require.NoError(t, err)
	require.NotNil(t, perf)
	assert.Equal(t, 0.0, perf.Volatility)
}
