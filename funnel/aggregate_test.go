package funnel

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"loanmetrics/config"
	"loanmetrics/db"
)

var testMetricsConfig = config.Metrics{
	ExcludeTestRecords: true,
	QueryTimeout:       time.Second,
	BreakdownTimeout:   time.Second,
	RequestDeadline:    5 * time.Second,
}

func TestGatherMetrics(t *testing.T) {
	store := newFakeStore()
	aggregator := NewAggregator(store, testMetricsConfig)

	metrics := aggregator.GatherMetrics(context.Background(), DateRange{})
	require.NoError(t, metrics.BatchError)

	expectedCounts := []int64{1000, 800, 720, 650, 600}
	for i, expected := range expectedCounts {
		count, present := metrics.StageCounts[i].Get()
		require.True(t, present, "stage %v should be present", metrics.Stages[i])
		assert.Equal(t, expected, count)
	}

	completionRate, present := metrics.Derived.CompletionRatePct.Get()
	require.True(t, present)
	assert.Equal(t, 60.0, completionRate)

	largestDrop, present := metrics.Derived.LargestDropOff.Get()
	require.True(t, present)
	assert.Equal(t, StageSignedUp, largestDrop.FromStage)
	assert.Equal(t, StageKYC, largestDrop.ToStage)

	gap, present := metrics.Derived.FundingGap.Get()
	require.True(t, present)
	assert.True(t, gap.Equal(decimal.RequireFromString("250000.25")), "got gap %s", gap)

	share, present := metrics.Derived.Top3MerchantShare.Get()
	require.True(t, present)
	assert.Equal(t, int64(95), share)

	merchants, present := metrics.Merchants.Get()
	require.True(t, present)
	require.Len(t, merchants, 4)
	assert.Equal(t, "Acme Couches", merchants[0].Name)
	assert.Equal(t, int64(10), merchants[0].Count)

	revenue, present := metrics.MonthlyRevenue.Get()
	require.True(t, present)
	assert.Len(t, revenue, 3)

	assert.Equal(t, 1, store.session.releaseCount, "session must be released exactly once")
}

func TestGatherMetricsIsolatesSingleQueryFailure(t *testing.T) {
	store := newFakeStore()
	store.session.countErrs["stage_count_kyc"] = errors.New("permission denied")
	aggregator := NewAggregator(store, testMetricsConfig)

	metrics := aggregator.GatherMetrics(context.Background(), DateRange{})

	require.NoError(t, metrics.BatchError, "one failed query must not fail the batch")
	assert.False(t, metrics.StageCounts[1].IsPresent())
	for _, i := range []int{0, 2, 3, 4} {
		assert.True(t, metrics.StageCounts[i].IsPresent(), "sibling queries must be unaffected")
	}
	assert.True(t, metrics.SettledVolume.IsPresent())
	assert.True(t, metrics.Merchants.IsPresent())

	// Derivations touching the unknown count degrade; the rest do not.
	assert.False(t, metrics.Derived.ConversionPcts[1].IsPresent())
	assert.False(t, metrics.Derived.DropOffPcts[2].IsPresent())
	assert.True(t, metrics.Derived.DropOffPcts[3].IsPresent())
	assert.True(t, metrics.Derived.CompletionRatePct.IsPresent())
}

func TestGatherMetricsDegradedWhenStoreUnreachable(t *testing.T) {
	store := newFakeStore()
	store.acquireErr = errors.New("connection refused")
	aggregator := NewAggregator(store, testMetricsConfig)

	metrics := aggregator.GatherMetrics(context.Background(), DateRange{})

	require.Error(t, metrics.BatchError)
	for i := range metrics.Stages {
		assert.False(t, metrics.StageCounts[i].IsPresent())
	}
	assert.False(t, metrics.SettledVolume.IsPresent())
	assert.False(t, metrics.Merchants.IsPresent())

	payload := AssemblePayload(metrics, time.Now())
	assert.NotEmpty(t, payload.Error)
	assert.Nil(t, payload.SettledVolume)
	assert.Nil(t, payload.Top3MerchantSharePct)
	assert.Nil(t, payload.MonthlyRevenue)
	require.Len(t, payload.Stages, len(OrderedStages()))
	for _, stage := range payload.Stages {
		assert.Nil(t, stage.Count)
		assert.Nil(t, stage.ConversionPct)
	}
}

func TestGatherMetricsDegradedWhenDeadlineExpires(t *testing.T) {
	store := newFakeStore()
	store.session.delay = 100 * time.Millisecond

	slowConfig := testMetricsConfig
	slowConfig.RequestDeadline = 5 * time.Millisecond
	aggregator := NewAggregator(store, slowConfig)

	metrics := aggregator.GatherMetrics(context.Background(), DateRange{})

	require.Error(t, metrics.BatchError)
	payload := AssemblePayload(metrics, time.Now())
	assert.NotEmpty(t, payload.Error)
	assert.Equal(t, 1, store.session.releaseCount)
}

// Fake store/session, keyed by metric query ID.

type fakeStore struct {
	acquireErr error
	session    *fakeSession
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		session: &fakeSession{
			counts: map[string]int64{
				"stage_count_signed_up":          1000,
				"stage_count_kyc":                800,
				"stage_count_credit_check":       720,
				"stage_count_plan_creation":      650,
				"stage_count_initial_collection": 600,
			},
			scalars: map[string]decimal.Decimal{
				settledVolumeQueryID:   decimal.RequireFromString("1000000.50"),
				collectedVolumeQueryID: decimal.RequireFromString("750000.25"),
			},
			rows: map[string][]db.ResultRow{
				merchantBreakdownQueryID: {
					merchantResultRow("Acme Couches", 10, "1000"),
					merchantResultRow("Bed Bazaar", 6, "600"),
					merchantResultRow("Couch Direct", 4, "400"),
					merchantResultRow("Divan Depot", 1, "100"),
				},
				monthlyRevenueQueryID: {
					revenueResultRow(2025, time.January, "PayIn4", "120.50"),
					revenueResultRow(2025, time.January, "PayIn12", "310.00"),
					revenueResultRow(2025, time.February, "PayIn4", "95.25"),
				},
			},
			countErrs: map[string]error{},
		},
	}
}

func merchantResultRow(name string, count uint64, volume string) db.ResultRow {
	return db.ResultRow{
		merchantAlias:  name,
		db.ColumnCount: count,
		db.ColumnSum:   decimal.RequireFromString(volume),
	}
}

func revenueResultRow(year int, month time.Month, product string, amount string) db.ResultRow {
	return db.ResultRow{
		monthAlias:     time.Date(year, month, 1, 0, 0, 0, 0, time.UTC),
		productAlias:   product,
		db.ColumnCount: uint64(1),
		db.ColumnSum:   decimal.RequireFromString(amount),
	}
}

func (store *fakeStore) AcquireSession(ctx context.Context) (db.Session, error) {
	if store.acquireErr != nil {
		return nil, store.acquireErr
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	store.session.ctx = sessionCtx
	store.session.cancel = cancel
	return store.session, nil
}

func (store *fakeStore) Ping(ctx context.Context) error {
	return store.acquireErr
}

func (store *fakeStore) Close() error {
	return nil
}

type fakeSession struct {
	counts    map[string]int64
	scalars   map[string]decimal.Decimal
	rows      map[string][]db.ResultRow
	countErrs map[string]error
	delay     time.Duration

	ctx          context.Context
	cancel       context.CancelFunc
	releaseCount int
}

func (session *fakeSession) Count(ctx context.Context, query db.MetricQuery) (int64, error) {
	if err := session.wait(ctx); err != nil {
		return 0, err
	}
	if err := session.countErrs[query.ID]; err != nil {
		return 0, err
	}

	count, ok := session.counts[query.ID]
	if !ok {
		return 0, fmt.Errorf("unexpected count query '%s'", query.ID)
	}
	return count, nil
}

func (session *fakeSession) Scalar(
	ctx context.Context,
	query db.MetricQuery,
) (decimal.Decimal, error) {
	if err := session.wait(ctx); err != nil {
		return decimal.Decimal{}, err
	}

	scalar, ok := session.scalars[query.ID]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("unexpected scalar query '%s'", query.ID)
	}
	return scalar, nil
}

func (session *fakeSession) Rows(
	ctx context.Context,
	query db.MetricQuery,
) ([]db.ResultRow, error) {
	if err := session.wait(ctx); err != nil {
		return nil, err
	}

	rows, ok := session.rows[query.ID]
	if !ok {
		return nil, fmt.Errorf("unexpected rows query '%s'", query.ID)
	}
	return rows, nil
}

func (session *fakeSession) wait(ctx context.Context) error {
	if session.delay == 0 {
		return nil
	}

	select {
	case <-time.After(session.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (session *fakeSession) Context() context.Context {
	return session.ctx
}

func (session *fakeSession) Release() {
	session.releaseCount++
	session.cancel()
}
