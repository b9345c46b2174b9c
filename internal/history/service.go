package history

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/coinwatch/internal/domain"
	"github.com/aristath/coinwatch/internal/engine"
	"github.com/aristath/coinwatch/pkg/formulas"
)

// Performance summarizes a bucket's value history
type Performance struct {
	Bucket         Bucket   `json:"bucket"`
	Samples        int      `json:"samples"`
	StartValue     float64  `json:"start_value"`
	EndValue       float64  `json:"end_value"`
	PnL            float64  `json:"pnl"`
	PnLPercent     float64  `json:"pnl_pct"`
	BestChangePct  float64  `json:"best_change_pct"`  // best sample-to-sample move
	WorstChangePct float64  `json:"worst_change_pct"` // worst sample-to-sample move
	Volatility     float64  `json:"volatility"`       // annualized, daily bucket only
	RSI            *float64 `json:"rsi,omitempty"`    // 14-period RSI over the value series
	MaxDrawdown    float64  `json:"max_drawdown"`
}

// Service records portfolio value samples and computes performance over them
type Service struct {
	source        engine.SnapshotSource
	repo          *Repository
	quoteCurrency string
	log           zerolog.Logger
	now           func() time.Time
}

// NewService creates a new history service
func NewService(source engine.SnapshotSource, repo *Repository, quoteCurrency string, log zerolog.Logger) *Service {
	return &Service{
		source:        source,
		repo:          repo,
		quoteCurrency: quoteCurrency,
		log:           log.With().Str("service", "history").Logger(),
		now:           time.Now,
	}
}

// RecordSample fetches the current portfolio value and records it in the
// given bucket under the current hour/day label
func (s *Service) RecordSample(ctx context.Context, bucket Bucket) error {
	snapshot, err := s.source.FetchBalances(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch balances: %w", err)
	}
	quotes, err := s.source.FetchQuotes(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch quotes: %w", err)
	}

	total := domain.PortfolioValue(snapshot, quotes, s.quoteCurrency)

	var label string
	switch bucket {
	case BucketHourly:
		label = s.now().UTC().Format("2006-01-02T15")
	case BucketDaily:
		label = s.now().UTC().Format("2006-01-02")
	default:
		return fmt.Errorf("unknown bucket %q", bucket)
	}

	return s.repo.Record(bucket, label, total)
}

// Performance computes summary stats over a bucket's stored samples
func (s *Service) Performance(bucket Bucket) (*Performance, error) {
	samples, err := s.repo.GetAll(bucket)
	if err != nil {
		return nil, err
	}

	perf := &Performance{Bucket: bucket, Samples: len(samples)}
	if len(samples) == 0 {
		return perf, nil
	}

	values := make([]float64, len(samples))
	for i, sample := range samples {
		values[i] = sample.TotalValue
	}

	perf.StartValue = values[0]
	perf.EndValue = values[len(values)-1]
	perf.PnL = perf.EndValue - perf.StartValue
	if perf.StartValue > 0 {
		perf.PnLPercent = perf.PnL / perf.StartValue * 100
	}

	returns := formulas.CalculateReturns(values)
	for _, ret := range returns {
		pct := ret * 100
		if pct > perf.BestChangePct {
			perf.BestChangePct = pct
		}
		if pct < perf.WorstChangePct {
			perf.WorstChangePct = pct
		}
	}

	if bucket == BucketDaily {
		perf.Volatility = formulas.AnnualizedVolatility(returns)
	}
	perf.RSI = formulas.CalculateRSI(values, 14)
	if dd := formulas.CalculateDrawdown(values); dd != nil {
		perf.MaxDrawdown = dd.MaxDrawdown
	}

	return perf, nil
}

// RecorderJob adapts the service to the scheduler's Job interface for one
// bucket
type RecorderJob struct {
	service *Service
	bucket  Bucket
}

// NewRecorderJob creates a sampling job for a bucket
func NewRecorderJob(service *Service, bucket Bucket) *RecorderJob {
	return &RecorderJob{service: service, bucket: bucket}
}

// Name returns the job name
func (j *RecorderJob) Name() string {
	return "history_" + string(j.bucket)
}

// Run records one sample
func (j *RecorderJob) Run() error {
	return j.service.RecordSample(context.Background(), j.bucket)
}
