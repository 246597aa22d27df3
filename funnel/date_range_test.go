package funnel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDateRangeUnbounded(t *testing.T) {
	dateRange, err := ParseDateRange("", "")
	require.NoError(t, err)
	assert.False(t, dateRange.IsBounded())

	from, to := dateRange.Bounds()
	assert.Nil(t, from)
	assert.Nil(t, to)
	assert.Equal(t, "all time", dateRange.String())
}

func TestParseDateRangeBounded(t *testing.T) {
	dateRange, err := ParseDateRange("2025-01-01", "2025-03-31")
	require.NoError(t, err)
	assert.True(t, dateRange.IsBounded())
	assert.Equal(t, "2025-01-01 to 2025-03-31", dateRange.String())
}

func TestParseDateRangeRequiresBothBounds(t *testing.T) {
	_, err := ParseDateRange("2025-01-01", "")
	assert.Error(t, err)

	_, err = ParseDateRange("", "2025-03-31")
	assert.Error(t, err)
}

func TestParseDateRangeRejectsMalformedDates(t *testing.T) {
	for _, params := range [][2]string{
		{"01/01/2025", "2025-03-31"},
		{"2025-01-01", "March 31st"},
		{"2025-13-01", "2025-13-31"},
		{"2025-01-01T00:00:00Z", "2025-03-31T00:00:00Z"},
	} {
		_, err := ParseDateRange(params[0], params[1])
		assert.Error(t, err, "expected error for from='%s' to='%s'", params[0], params[1])
	}
}

func TestParseDateRangeRejectsInvertedBounds(t *testing.T) {
	_, err := ParseDateRange("2025-03-31", "2025-01-01")
	assert.Error(t, err)
}

func TestDateRangeBoundsAreHalfOpen(t *testing.T) {
	dateRange, err := NewDateRange(
		time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, time.March, 31, 0, 0, 0, 0, time.UTC),
	)
	require.NoError(t, err)

	from, to := dateRange.Bounds()
	require.NotNil(t, from)
	require.NotNil(t, to)
	assert.Equal(t, time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC), *from)
	// Exclusive upper bound, so timestamps on the last day itself are included.
	assert.Equal(t, time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC), *to)
}

func TestSingleDayDateRange(t *testing.T) {
	day := time.Date(2025, time.June, 15, 0, 0, 0, 0, time.UTC)

	dateRange, err := NewDateRange(day, day)
	require.NoError(t, err)

	from, to := dateRange.Bounds()
	assert.Equal(t, day, *from)
	assert.Equal(t, day.AddDate(0, 0, 1), *to)
}
