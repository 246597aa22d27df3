package funnel

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRate(t *testing.T) {
	rate := Rate(Present[int64](80), Present[int64](100))
	value, present := rate.Get()
	require.True(t, present)
	assert.Equal(t, 80.0, value)
}

func TestRateWithZeroDenominator(t *testing.T) {
	rate := Rate(Present[int64](80), Present[int64](0))
	assert.False(t, rate.IsPresent(), "rate over zero journeys should be unknown, not 0 or Inf")
}

func TestRateWithUnknownInput(t *testing.T) {
	assert.False(t, Rate(Unknown[int64](), Present[int64](100)).IsPresent())
	assert.False(t, Rate(Present[int64](80), Unknown[int64]()).IsPresent())
}

func TestDropOffCountNeverNegative(t *testing.T) {
	// Inconsistent upstream data can report more journeys at a later stage.
	dropOff := DropOffCount(Present[int64](100), Present[int64](150))
	value, present := dropOff.Get()
	require.True(t, present)
	assert.Equal(t, int64(0), value)
}

func TestDropOffPercentageRounding(t *testing.T) {
	dropOff := DropOffPercentage(Present[int64](37), Present[int64](5))
	value, present := dropOff.Get()
	require.True(t, present)
	assert.Equal(t, 13.5, value)
}

func TestDropOffPercentageWithZeroPrevious(t *testing.T) {
	dropOff := DropOffPercentage(Present[int64](0), Present[int64](0))
	assert.False(t, dropOff.IsPresent())
}

func TestFunnelDropOffs(t *testing.T) {
	counts := []PartialResult[int64]{
		Present[int64](1000),
		Present[int64](800),
		Present[int64](720),
		Present[int64](650),
		Present[int64](600),
	}

	expectedPcts := []float64{20.0, 10.0, 9.7, 7.7}

	stages := OrderedStages()
	dropOffPcts := make([]PartialResult[float64], len(stages))
	for i := 1; i < len(counts); i++ {
		dropOff := DropOffCount(counts[i-1], counts[i])
		dropOffPcts[i] = DropOffPercentage(counts[i-1], dropOff)

		value, present := dropOffPcts[i].Get()
		require.True(t, present)
		assert.Equal(t, expectedPcts[i-1], value)
	}

	largest := LargestDropOff(stages, dropOffPcts)
	pair, present := largest.Get()
	require.True(t, present)
	assert.Equal(t, StageSignedUp, pair.FromStage)
	assert.Equal(t, StageKYC, pair.ToStage)
	assert.Equal(t, 20.0, pair.DropOffPct)
}

func TestLargestDropOffWithoutData(t *testing.T) {
	stages := OrderedStages()
	dropOffPcts := make([]PartialResult[float64], len(stages))
	dropOffPcts[1] = Present(0.0)

	largest := LargestDropOff(stages, dropOffPcts)
	assert.False(t, largest.IsPresent(), "all-zero or unknown drop-offs should give no pair")
}

func TestTop3MerchantShare(t *testing.T) {
	merchants := Present([]MerchantRow{
		{Name: "A", Count: 10, Volume: decimal.NewFromInt(1000)},
		{Name: "B", Count: 6, Volume: decimal.NewFromInt(600)},
		{Name: "C", Count: 4, Volume: decimal.NewFromInt(400)},
		{Name: "D", Count: 1, Volume: decimal.NewFromInt(100)},
	})

	share, present := Top3MerchantShare(merchants).Get()
	require.True(t, present)
	assert.Equal(t, int64(95), share)
}

func TestTop3MerchantShareBounds(t *testing.T) {
	single := Present([]MerchantRow{{Name: "A", Count: 1, Volume: decimal.NewFromInt(42)}})
	share, present := Top3MerchantShare(single).Get()
	require.True(t, present)
	assert.Equal(t, int64(100), share)

	zeroVolume := Present([]MerchantRow{{Name: "A", Count: 1, Volume: decimal.Zero}})
	assert.False(t, Top3MerchantShare(zeroVolume).IsPresent())

	assert.False(t, Top3MerchantShare(Unknown[[]MerchantRow]()).IsPresent())
}

func TestFundingGap(t *testing.T) {
	gap, present := FundingGap(
		Present(decimal.NewFromInt(1000)),
		Present(decimal.NewFromInt(750)),
	).Get()
	require.True(t, present)
	assert.True(t, gap.Equal(decimal.NewFromInt(250)))
}

func TestFundingGapClampedAtZero(t *testing.T) {
	gap, present := FundingGap(
		Present(decimal.NewFromInt(500)),
		Present(decimal.NewFromInt(750)),
	).Get()
	require.True(t, present)
	assert.True(t, gap.IsZero())
}

func TestFundingGapWithUnknownInput(t *testing.T) {
	assert.False(t, FundingGap(Unknown[decimal.Decimal](), Present(decimal.Zero)).IsPresent())
	assert.False(t, FundingGap(Present(decimal.Zero), Unknown[decimal.Decimal]()).IsPresent())
}
