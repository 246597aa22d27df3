package funnel

import (
	"errors"
	"fmt"
	"time"

	"hermannm.dev/wrap"
)

// DateRange bounds metrics to journeys/transactions between From and To, both inclusive
// calendar dates. The zero value is unbounded (all-time metrics).
//
// Bounds come in pairs: a range with only one bound is rejected at parse time, so every
// query builder can apply the same rule instead of guessing at intent.
type DateRange struct {
	From time.Time
	To   time.Time

	bounded bool
}

// NewDateRange creates a bounded date range. Fails if from is after to.
func NewDateRange(from time.Time, to time.Time) (DateRange, error) {
	if from.After(to) {
		return DateRange{}, fmt.Errorf(
			"invalid date range: 'from' (%s) is after 'to' (%s)",
			from.Format(time.DateOnly),
			to.Format(time.DateOnly),
		)
	}

	return DateRange{From: from, To: to, bounded: true}, nil
}

// ParseDateRange parses the from/to request parameters, expecting ISO dates
// (YYYY-MM-DD). Both empty gives an unbounded range; supplying just one bound is an
// error.
func ParseDateRange(fromParam string, toParam string) (DateRange, error) {
	if fromParam == "" && toParam == "" {
		return DateRange{}, nil
	}
	if fromParam == "" || toParam == "" {
		return DateRange{}, errors.New(
			"date range bounds must be given together: supply both 'from' and 'to', or neither",
		)
	}

	from, err := time.ParseInLocation(time.DateOnly, fromParam, time.UTC)
	if err != nil {
		return DateRange{}, wrap.Errorf(err, "invalid 'from' date '%s'", fromParam)
	}

	to, err := time.ParseInLocation(time.DateOnly, toParam, time.UTC)
	if err != nil {
		return DateRange{}, wrap.Errorf(err, "invalid 'to' date '%s'", toParam)
	}

	return NewDateRange(from, to)
}

func (dateRange DateRange) IsBounded() bool {
	return dateRange.bounded
}

// Bounds translates the inclusive calendar dates to a half-open timestamp interval
// [from, to+1day), for filtering timestamp columns. Nil bounds mean unbounded.
func (dateRange DateRange) Bounds() (from *time.Time, to *time.Time) {
	if !dateRange.bounded {
		return nil, nil
	}

	exclusiveTo := dateRange.To.AddDate(0, 0, 1)
	return &dateRange.From, &exclusiveTo
}

func (dateRange DateRange) String() string {
	if !dateRange.bounded {
		return "all time"
	}

	return fmt.Sprintf(
		"%s to %s",
		dateRange.From.Format(time.DateOnly),
		dateRange.To.Format(time.DateOnly),
	)
}
