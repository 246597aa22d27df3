package funnel

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"hermannm.dev/devlog/log"
	"hermannm.dev/wrap"
	"loanmetrics/config"
	"loanmetrics/db"
)

// Aggregator answers one metrics request by fanning the full query catalog out against
// the store, gathering whatever partial results arrive within budget, and deriving
// secondary metrics from the primaries that are present.
type Aggregator struct {
	store  db.MetricsStore
	config config.Metrics
}

func NewAggregator(store db.MetricsStore, config config.Metrics) Aggregator {
	return Aggregator{store: store, config: config}
}

// GatheredMetrics is the outcome of one aggregation run. Every metric is independently
// present or unknown. BatchError is only set when the whole batch failed before fan-out
// (store unreachable) or the request deadline expired — then every metric is unknown.
type GatheredMetrics struct {
	Stages          []Stage
	StageCounts     []PartialResult[int64]
	SettledVolume   PartialResult[decimal.Decimal]
	CollectedVolume PartialResult[decimal.Decimal]
	Merchants       PartialResult[[]MerchantRow]
	MonthlyRevenue  PartialResult[[]RevenueEntry]

	Derived DerivedMetrics

	BatchError error
}

// DerivedMetrics are computed from gathered primary values only; an unknown input makes
// the affected derivation unknown, never zero. The per-stage slices are parallel to
// GatheredMetrics.Stages, with index 0 unknown (the first stage has no previous stage).
type DerivedMetrics struct {
	ConversionPcts []PartialResult[float64]
	DropOffCounts  []PartialResult[int64]
	DropOffPcts    []PartialResult[float64]

	CompletionRatePct PartialResult[float64]
	LargestDropOff    PartialResult[DropOffPair]
	Top3MerchantShare PartialResult[int64]
	FundingGap        PartialResult[decimal.Decimal]
}

// GatherMetrics runs the full catalog for the given date range. It always returns a
// well-formed result, never an error: failures degrade to unknown metrics.
func (aggregator Aggregator) GatherMetrics(
	ctx context.Context,
	dateRange DateRange,
) GatheredMetrics {
	requestID := uuid.NewString()
	startTime := time.Now()

	log.Info(
		"gathering dashboard metrics",
		slog.String("requestId", requestID),
		slog.String("dateRange", dateRange.String()),
	)

	// The deadline covers the whole request, so a pile-up of slow queries still leaves
	// time to respond before the host environment kills the connection.
	ctx, cancel := context.WithTimeout(ctx, aggregator.config.RequestDeadline)
	defer cancel()

	session, err := aggregator.store.AcquireSession(ctx)
	if err != nil {
		return aggregator.degraded(wrap.Error(err, "failed to reach metrics store"), requestID)
	}
	defer session.Release()

	catalog := BuildCatalog(dateRange, aggregator.config.ExcludeTestRecords)
	metrics := aggregator.fanOut(session, catalog)

	// If the request deadline expired, the gathered results are whatever happened to
	// finish first — report the batch failure rather than a misleading subset.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return aggregator.degraded(
			wrap.Error(ctxErr, "metrics request exceeded its deadline"), requestID,
		)
	}

	metrics.deriveSecondaryMetrics()

	log.Info(
		"dashboard metrics gathered",
		slog.String("requestId", requestID),
		slog.Duration("duration", time.Since(startTime)),
	)
	return metrics
}

// fanOut launches every catalog query concurrently, each under its own timeout, and
// waits for all of them. A slow or failed query only affects its own slot — the central
// invariant of this component.
func (aggregator Aggregator) fanOut(session db.Session, catalog Catalog) GatheredMetrics {
	stages := OrderedStages()
	metrics := GatheredMetrics{
		Stages:      stages,
		StageCounts: make([]PartialResult[int64], len(stages)),
	}

	ctx := session.Context()

	var waitGroup sync.WaitGroup
	waitGroup.Add(len(catalog.StageCounts) + 4)

	for i, stageCount := range catalog.StageCounts {
		i, query := i, stageCount.Query
		go func() {
			defer waitGroup.Done()
			metrics.StageCounts[i] = RunBounded(
				ctx,
				aggregator.timeoutFor(query.Tier),
				query.ID,
				func(ctx context.Context) (int64, error) {
					return session.Count(ctx, query)
				},
			)
		}()
	}

	go func() {
		defer waitGroup.Done()
		query := catalog.SettledVolume
		metrics.SettledVolume = RunBounded(
			ctx,
			aggregator.timeoutFor(query.Tier),
			query.ID,
			func(ctx context.Context) (decimal.Decimal, error) {
				return session.Scalar(ctx, query)
			},
		)
	}()

	go func() {
		defer waitGroup.Done()
		query := catalog.CollectedVolume
		metrics.CollectedVolume = RunBounded(
			ctx,
			aggregator.timeoutFor(query.Tier),
			query.ID,
			func(ctx context.Context) (decimal.Decimal, error) {
				return session.Scalar(ctx, query)
			},
		)
	}()

	go func() {
		defer waitGroup.Done()
		query := catalog.MerchantBreakdown
		metrics.Merchants = RunBounded(
			ctx,
			aggregator.timeoutFor(query.Tier),
			query.ID,
			func(ctx context.Context) ([]MerchantRow, error) {
				rows, err := session.Rows(ctx, query)
				if err != nil {
					return nil, err
				}
				return parseMerchantRows(rows)
			},
		)
	}()

	go func() {
		defer waitGroup.Done()
		query := catalog.MonthlyRevenue
		metrics.MonthlyRevenue = RunBounded(
			ctx,
			aggregator.timeoutFor(query.Tier),
			query.ID,
			func(ctx context.Context) ([]RevenueEntry, error) {
				rows, err := session.Rows(ctx, query)
				if err != nil {
					return nil, err
				}
				return parseRevenueEntries(rows)
			},
		)
	}()

	waitGroup.Wait()
	return metrics
}

func (aggregator Aggregator) timeoutFor(tier db.TimeoutTier) time.Duration {
	switch tier {
	case db.TierShort:
		return aggregator.config.BreakdownTimeout
	default:
		return aggregator.config.QueryTimeout
	}
}

// degraded is the whole-batch failure outcome: every metric unknown, the cause carried
// in BatchError for the payload's error field. Well-formed, so the caller always has
// something to render.
func (aggregator Aggregator) degraded(batchError error, requestID string) GatheredMetrics {
	log.ErrorCause(batchError, "metrics request degraded", slog.String("requestId", requestID))

	stages := OrderedStages()
	metrics := GatheredMetrics{
		Stages:      stages,
		StageCounts: make([]PartialResult[int64], len(stages)),
		BatchError:  batchError,
	}
	metrics.Derived = DerivedMetrics{
		ConversionPcts: make([]PartialResult[float64], len(stages)),
		DropOffCounts:  make([]PartialResult[int64], len(stages)),
		DropOffPcts:    make([]PartialResult[float64], len(stages)),
	}
	return metrics
}

func (metrics *GatheredMetrics) deriveSecondaryMetrics() {
	stageCount := len(metrics.Stages)
	derived := DerivedMetrics{
		ConversionPcts: make([]PartialResult[float64], stageCount),
		DropOffCounts:  make([]PartialResult[int64], stageCount),
		DropOffPcts:    make([]PartialResult[float64], stageCount),
	}

	for i := 1; i < stageCount; i++ {
		previous, current := metrics.StageCounts[i-1], metrics.StageCounts[i]
		derived.ConversionPcts[i] = Rate(current, previous)
		derived.DropOffCounts[i] = DropOffCount(previous, current)
		derived.DropOffPcts[i] = DropOffPercentage(previous, derived.DropOffCounts[i])
	}

	if stageCount > 1 {
		derived.CompletionRatePct = Rate(
			metrics.StageCounts[stageCount-1], metrics.StageCounts[0],
		)
	}
	derived.LargestDropOff = LargestDropOff(metrics.Stages, derived.DropOffPcts)
	derived.Top3MerchantShare = Top3MerchantShare(metrics.Merchants)
	derived.FundingGap = FundingGap(metrics.SettledVolume, metrics.CollectedVolume)

	metrics.Derived = derived
}
