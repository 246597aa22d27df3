package funnel

import (
	"math"

	"github.com/shopspring/decimal"
)

// Rate returns how many percent of the journeys at the denominator stage also reached
// the numerator stage, rounded to one decimal. Unknown when either input is unknown or
// the denominator is zero: a rate over nothing is no data, not 0% (and certainly not
// infinity).
func Rate(numerator PartialResult[int64], denominator PartialResult[int64]) PartialResult[float64] {
	denominatorCount, present := denominator.Get()
	if !present || denominatorCount <= 0 {
		return Unknown[float64]()
	}

	numeratorCount, present := numerator.Get()
	if !present {
		return Unknown[float64]()
	}

	return Present(roundToOneDecimal(100 * float64(numeratorCount) / float64(denominatorCount)))
}

// DropOffCount returns how many journeys were lost between two adjacent stages, clamped
// at zero to guard against inconsistent upstream counts.
func DropOffCount(previous PartialResult[int64], next PartialResult[int64]) PartialResult[int64] {
	previousCount, present := previous.Get()
	if !present {
		return Unknown[int64]()
	}

	nextCount, present := next.Get()
	if !present {
		return Unknown[int64]()
	}

	return Present(max(int64(0), previousCount-nextCount))
}

// DropOffPercentage returns the drop-off between two adjacent stages as a percentage of
// the previous stage's count, rounded to one decimal.
func DropOffPercentage(
	previous PartialResult[int64],
	dropOff PartialResult[int64],
) PartialResult[float64] {
	previousCount, present := previous.Get()
	if !present || previousCount <= 0 {
		return Unknown[float64]()
	}

	dropOffCount, present := dropOff.Get()
	if !present {
		return Unknown[float64]()
	}

	return Present(roundToOneDecimal(100 * float64(dropOffCount) / float64(previousCount)))
}

// DropOffPair identifies the transition between two adjacent funnel stages.
type DropOffPair struct {
	FromStage  Stage   `json:"fromStage"`
	ToStage    Stage   `json:"toStage"`
	DropOffPct float64 `json:"dropOffPct"`
}

// LargestDropOff finds the adjacent-stage transition losing the largest percentage of
// journeys. Unknown when every percentage is zero or unknown — then there is no
// drop-off to point at. Ties go to the earliest transition.
func LargestDropOff(
	stages []Stage,
	dropOffPcts []PartialResult[float64],
) PartialResult[DropOffPair] {
	largest := Unknown[DropOffPair]()

	for i, dropOffPct := range dropOffPcts {
		percentage, present := dropOffPct.Get()
		if !present || percentage <= 0 {
			continue
		}

		if current, hasLargest := largest.Get(); !hasLargest || percentage > current.DropOffPct {
			largest = Present(DropOffPair{
				FromStage:  stages[i-1],
				ToStage:    stages[i],
				DropOffPct: percentage,
			})
		}
	}

	return largest
}

// Top3MerchantShare returns the share of total volume attributable to the three largest
// merchants, as a whole percentage. Rows must already be ordered by volume descending.
// Unknown when the breakdown is unknown or total volume is zero.
func Top3MerchantShare(merchants PartialResult[[]MerchantRow]) PartialResult[int64] {
	rows, present := merchants.Get()
	if !present {
		return Unknown[int64]()
	}

	total := decimal.Zero
	top3 := decimal.Zero
	for i, row := range rows {
		total = total.Add(row.Volume)
		if i < 3 {
			top3 = top3.Add(row.Volume)
		}
	}

	if !total.IsPositive() {
		return Unknown[int64]()
	}

	return Present(top3.Mul(decimal.NewFromInt(100)).Div(total).Round(0).IntPart())
}

// FundingGap returns how much settled volume exceeds collected volume, clamped at zero
// (collections above settlements is a surplus, not a gap).
func FundingGap(
	settled PartialResult[decimal.Decimal],
	collected PartialResult[decimal.Decimal],
) PartialResult[decimal.Decimal] {
	settledVolume, present := settled.Get()
	if !present {
		return Unknown[decimal.Decimal]()
	}

	collectedVolume, present := collected.Get()
	if !present {
		return Unknown[decimal.Decimal]()
	}

	gap := settledVolume.Sub(collectedVolume)
	if gap.IsNegative() {
		gap = decimal.Zero
	}
	return Present(gap)
}

// Uniform one-decimal rounding rule for every percentage metric: scale to one decimal,
// round half away from zero, scale back. Keeps results stable regardless of
// floating-point representation order.
func roundToOneDecimal(value float64) float64 {
	return math.Round(value*10) / 10
}
