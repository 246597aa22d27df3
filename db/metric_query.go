package db

import (
	"time"

	"hermannm.dev/enumnames"
)

// MetricQuery is an immutable descriptor of one analytical query, built fresh for every
// request by the query catalog. It deliberately carries no SQL: each store backend
// renders the spec in its own dialect.
type MetricQuery struct {
	// Identifies the metric this query feeds, for logging.
	ID string

	Kind  MetricKind
	Table string

	// Field to count distinct values of, for MetricKindCount.
	DistinctField string

	// Field to sum, for MetricKindScalar and MetricKindRows.
	SumField string

	// Grouping for MetricKindRows, in output order.
	GroupBy []GroupField
	// Orders row results by the summed field, descending, when true.
	OrderBySumDesc bool
	// Caps the number of row results. Zero means no cap.
	Limit int

	Filters []Filter

	Tier TimeoutTier
}

// GroupField is one grouping column of a rows query. Results expose it under Alias.
type GroupField struct {
	Field string
	Alias string
	// Truncates a timestamp field to its calendar month before grouping.
	MonthBucket bool
}

type MetricKind uint8

const (
	// Non-negative integer result (first row, first column).
	MetricKindCount MetricKind = iota + 1
	// Decimal sum result (first row, first column).
	MetricKindScalar
	// Grouped row results.
	MetricKindRows
)

var metricKindNames = enumnames.NewMap(map[MetricKind]string{
	MetricKindCount:  "count",
	MetricKindScalar: "scalar",
	MetricKindRows:   "rows",
})

func (kind MetricKind) IsValid() bool {
	return metricKindNames.ContainsEnumValue(kind)
}

func (kind MetricKind) String() string {
	return metricKindNames.GetNameOrFallback(kind, "[INVALID METRIC KIND]")
}

func (kind MetricKind) MarshalJSON() ([]byte, error) {
	return metricKindNames.MarshalToNameJSON(kind)
}

func (kind *MetricKind) UnmarshalJSON(bytes []byte) error {
	return metricKindNames.UnmarshalFromNameJSON(bytes, kind)
}

// TimeoutTier selects which of the configured per-query budgets applies: the default
// budget for ordinary metrics, or a shorter one for queries known to be expensive and
// non-critical.
type TimeoutTier uint8

const (
	TierDefault TimeoutTier = iota + 1
	TierShort
)

var timeoutTierNames = enumnames.NewMap(map[TimeoutTier]string{
	TierDefault: "default",
	TierShort:   "short",
})

func (tier TimeoutTier) IsValid() bool {
	return timeoutTierNames.ContainsEnumValue(tier)
}

func (tier TimeoutTier) String() string {
	return timeoutTierNames.GetNameOrFallback(tier, "[INVALID TIMEOUT TIER]")
}

// Filter is one predicate of a metric query. Semantic rather than textual, so each
// backend can express it natively.
type Filter struct {
	Kind FilterKind

	// Field the predicate applies to (the stage's own timestamp column for date
	// ranges, the journey identifier for test-account exclusion).
	Field string

	// For FilterTermEquals.
	Value string

	// For FilterDateRange; nil bounds are unbounded. From is inclusive, To exclusive
	// (the catalog converts inclusive calendar dates to a half-open timestamp range).
	From *time.Time
	To   *time.Time

	// For FilterExcludeTestAccounts on stores with correlated lookups: the table and
	// field holding the designated test-account identifiers.
	LookupTable string
	LookupField string
}

type FilterKind uint8

const (
	FilterTermEquals FilterKind = iota + 1
	FilterDateRange
	// Excludes journeys belonging to designated test/internal accounts. ClickHouse
	// resolves this with a correlated lookup against the test-accounts table;
	// Elasticsearch documents carry a denormalized test flag instead.
	FilterExcludeTestAccounts
)

var filterKindNames = enumnames.NewMap(map[FilterKind]string{
	FilterTermEquals:          "Term equals",
	FilterDateRange:           "Date range",
	FilterExcludeTestAccounts: "Exclude test accounts",
})

func (kind FilterKind) IsValid() bool {
	return filterKindNames.ContainsEnumValue(kind)
}

func (kind FilterKind) String() string {
	return filterKindNames.GetNameOrFallback(kind, "[INVALID FILTER KIND]")
}
