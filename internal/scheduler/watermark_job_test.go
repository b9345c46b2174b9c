package scheduler

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/coinwatch/internal/database"
	"github.com/aristath/coinwatch/internal/domain"
	"github.com/aristath/coinwatch/internal/ledger"
)

type stubSource struct {
	quotes map[string]domain.PriceQuote
}

func (s *stubSource) FetchBalances(ctx context.Context) (domain.BalanceSnapshot, error) {
	return domain.BalanceSnapshot{AsOf: time.Now()}, nil
}

func (s *stubSource) FetchQuotes(ctx context.Context) (map[string]domain.PriceQuote, error) {
	return s.quotes, nil
}

func TestWatermarkJob_Run_WidensRange(t *testing.T) {
	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })

	positions := ledger.NewPositionRepository(db.Conn(), zerolog.Nop())
	require.NoError(t, positions.Upsert(domain.Position{
		Asset:             "SOL",
		TotalAmountBought: 100,
		TotalCost:         13000,
		AvgBuyPrice:       130,
		OpenDate:          time.Now(),
		HighestPrice:      140,
		LowestPrice:       120,
	}))

	source := &stubSource{
		quotes: map[string]domain.PriceQuote{
			"SOL-USDT": {InstID: "SOL-USDT", LastPrice: 160},
		},
	}

	job := NewWatermarkJob(source, positions, "USDT", zerolog.Nop())
	require.NoError(t, job.Run())

	pos, err := positions.GetByAsset("SOL")
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.Equal(t, 160.0, pos.HighestPrice)
	assert.Equal(t, 120.0, pos.LowestPrice)
}

func TestWatermarkJob_Run_NoPositionsSkipsFetch(t *testing.T) {
	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })

	positions := ledger.NewPositionRepository(db.Conn(), zerolog.Nop())

	// Source with no quotes at all never gets asked
	job := NewWatermarkJob(&stubSource{}, positions, "USDT", zerolog.Nop())
	assert.NoError(t, job.Run())
}
