package funnel

import (
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MetricsPayload is the single response object the dashboard renders from. Every metric
// field is nullable: null means the metric could not be determined this request, which
// the presentation layer shows as "no data" — never a misleading zero.
type MetricsPayload struct {
	Stages            []StageMetrics `json:"stages"`
	CompletionRatePct *float64       `json:"completionRatePct"`
	LargestDropOff    *DropOffPair   `json:"largestDropOff"`

	SettledVolume   *decimal.Decimal `json:"settledVolume"`
	CollectedVolume *decimal.Decimal `json:"collectedVolume"`
	FundingGap      *decimal.Decimal `json:"fundingGap"`

	MerchantBreakdown    []MerchantRow `json:"merchantBreakdown"`
	Top3MerchantSharePct *int64        `json:"top3MerchantSharePct"`

	MonthlyRevenue *RevenuePivot `json:"monthlyRevenue"`

	RefreshedAt time.Time `json:"refreshedAt"`
	Error       string    `json:"error,omitempty"`
}

type StageMetrics struct {
	Stage         Stage    `json:"stage"`
	Count         *int64   `json:"count"`
	ConversionPct *float64 `json:"conversionPct"`
	DropOffCount  *int64   `json:"dropOffCount"`
	DropOffPct    *float64 `json:"dropOffPct"`
}

// RevenuePivot is collected revenue laid out as months × products, with totals per
// month, per product and overall.
type RevenuePivot struct {
	Products      []string          `json:"products"`
	Rows          []RevenuePivotRow `json:"rows"`
	ProductTotals []decimal.Decimal `json:"productTotals"`
	GrandTotal    decimal.Decimal   `json:"grandTotal"`
}

type RevenuePivotRow struct {
	Month string `json:"month"`
	// Aligned with RevenuePivot.Products.
	Revenue []decimal.Decimal `json:"revenue"`
	Total   decimal.Decimal   `json:"total"`
}

// AssemblePayload maps gathered metrics to the published payload shape. Total: any
// aggregation outcome gives a payload, with unknown metrics as explicit nulls.
func AssemblePayload(metrics GatheredMetrics, refreshedAt time.Time) MetricsPayload {
	payload := MetricsPayload{
		Stages:               make([]StageMetrics, len(metrics.Stages)),
		CompletionRatePct:    nullable(metrics.Derived.CompletionRatePct),
		LargestDropOff:       nullable(metrics.Derived.LargestDropOff),
		SettledVolume:        nullable(metrics.SettledVolume),
		CollectedVolume:      nullable(metrics.CollectedVolume),
		FundingGap:           nullable(metrics.Derived.FundingGap),
		Top3MerchantSharePct: nullable(metrics.Derived.Top3MerchantShare),
		RefreshedAt:          refreshedAt,
	}

	for i, stage := range metrics.Stages {
		payload.Stages[i] = StageMetrics{
			Stage:         stage,
			Count:         nullable(metrics.StageCounts[i]),
			ConversionPct: nullable(metrics.Derived.ConversionPcts[i]),
			DropOffCount:  nullable(metrics.Derived.DropOffCounts[i]),
			DropOffPct:    nullable(metrics.Derived.DropOffPcts[i]),
		}
	}

	if merchants, present := metrics.Merchants.Get(); present {
		payload.MerchantBreakdown = merchants
	}

	if entries, present := metrics.MonthlyRevenue.Get(); present {
		pivot := buildRevenuePivot(entries)
		payload.MonthlyRevenue = &pivot
	}

	if metrics.BatchError != nil {
		payload.Error = metrics.BatchError.Error()
	}

	return payload
}

func nullable[T any](result PartialResult[T]) *T {
	value, present := result.Get()
	if !present {
		return nil
	}
	return &value
}

const pivotMonthLayout = "2006-01"

// buildRevenuePivot shapes per-month-per-product revenue entries into the pivot table
// the dashboard shows, months and products both ascending.
func buildRevenuePivot(entries []RevenueEntry) RevenuePivot {
	var months []string
	var products []string
	cells := make(map[string]map[string]decimal.Decimal)

	for _, entry := range entries {
		month := entry.Month.Format(pivotMonthLayout)

		monthCells, seenMonth := cells[month]
		if !seenMonth {
			monthCells = make(map[string]decimal.Decimal)
			cells[month] = monthCells
			months = append(months, month)
		}
		if !slices.Contains(products, entry.Product) {
			products = append(products, entry.Product)
		}

		// Entries are unique per (month, product) from the store, but summing here
		// keeps the pivot correct even if a backend splits them.
		monthCells[entry.Product] = monthCells[entry.Product].Add(entry.Revenue)
	}

	slices.Sort(months)
	slices.SortFunc(products, strings.Compare)

	pivot := RevenuePivot{
		Products:      products,
		Rows:          make([]RevenuePivotRow, len(months)),
		ProductTotals: make([]decimal.Decimal, len(products)),
	}

	for i, month := range months {
		row := RevenuePivotRow{Month: month, Revenue: make([]decimal.Decimal, len(products))}
		for j, product := range products {
			value := cells[month][product]
			row.Revenue[j] = value
			row.Total = row.Total.Add(value)
			pivot.ProductTotals[j] = pivot.ProductTotals[j].Add(value)
		}
		pivot.GrandTotal = pivot.GrandTotal.Add(row.Total)
		pivot.Rows[i] = row
	}

	return pivot
}
