package funnel

import (
	"loanmetrics/db"
)

// Warehouse tables and columns the metric queries run against.
const (
	funnelEventsTable = "funnel_events"
	journeyIDColumn   = "journey_id"
	stageColumn       = "stage"
	eventTimeColumn   = "event_time"

	loanPlansTable    = "loan_plans"
	merchantColumn    = "merchant_name"
	productColumn     = "product"
	principalColumn   = "principal"
	planCreatedColumn = "created_at"

	collectionsTable  = "collections"
	amountColumn      = "amount"
	collectedAtColumn = "collected_at"

	testAccountsTable = "test_accounts"
)

// Aliases the grouped query results expose their group columns under.
const (
	merchantAlias = "merchant"
	monthAlias    = "month"
	productAlias  = "product"
)

// Merchant breakdowns are capped to the top merchants by volume.
const MerchantBreakdownLimit = 50

// Metric query identifiers, used in logs.
const (
	settledVolumeQueryID     = "settled_volume"
	collectedVolumeQueryID   = "collected_volume"
	merchantBreakdownQueryID = "merchant_breakdown"
	monthlyRevenueQueryID    = "monthly_revenue"
)

// Catalog is the full set of queries needed for one metrics request: one distinct
// journey count per funnel stage, the two monetary sums, the merchant breakdown and the
// monthly revenue rows.
type Catalog struct {
	StageCounts       []StageCountQuery
	SettledVolume     db.MetricQuery
	CollectedVolume   db.MetricQuery
	MerchantBreakdown db.MetricQuery
	MonthlyRevenue    db.MetricQuery
}

type StageCountQuery struct {
	Stage Stage
	Query db.MetricQuery
}

// BuildCatalog produces the query catalog for the given date range and test-record
// exclusion flag. Pure: same inputs always give the same catalog, in the same order.
//
// Date bounds apply to each metric's own timestamp column: the stage's event time for
// funnel counts, plan creation for settled volume and the merchant breakdown, and
// collection time for collected volume and monthly revenue.
func BuildCatalog(dateRange DateRange, excludeTestRecords bool) Catalog {
	var catalog Catalog

	stages := OrderedStages()
	catalog.StageCounts = make([]StageCountQuery, 0, len(stages))
	for _, stage := range stages {
		catalog.StageCounts = append(catalog.StageCounts, StageCountQuery{
			Stage: stage,
			Query: db.MetricQuery{
				ID:            "stage_count_" + stageEventValues[stage],
				Kind:          db.MetricKindCount,
				Table:         funnelEventsTable,
				DistinctField: journeyIDColumn,
				Filters: withCommonFilters(
					[]db.Filter{{
						Kind:  db.FilterTermEquals,
						Field: stageColumn,
						Value: stageEventValues[stage],
					}},
					eventTimeColumn,
					dateRange,
					excludeTestRecords,
				),
				Tier: db.TierDefault,
			},
		})
	}

	catalog.SettledVolume = db.MetricQuery{
		ID:       settledVolumeQueryID,
		Kind:     db.MetricKindScalar,
		Table:    loanPlansTable,
		SumField: principalColumn,
		Filters:  withCommonFilters(nil, planCreatedColumn, dateRange, excludeTestRecords),
		Tier:     db.TierDefault,
	}

	catalog.CollectedVolume = db.MetricQuery{
		ID:       collectedVolumeQueryID,
		Kind:     db.MetricKindScalar,
		Table:    collectionsTable,
		SumField: amountColumn,
		Filters:  withCommonFilters(nil, collectedAtColumn, dateRange, excludeTestRecords),
		Tier:     db.TierDefault,
	}

	catalog.MerchantBreakdown = db.MetricQuery{
		ID:       merchantBreakdownQueryID,
		Kind:     db.MetricKindRows,
		Table:    loanPlansTable,
		SumField: principalColumn,
		GroupBy: []db.GroupField{
			{Field: merchantColumn, Alias: merchantAlias},
		},
		OrderBySumDesc: true,
		Limit:          MerchantBreakdownLimit,
		Filters:        withCommonFilters(nil, planCreatedColumn, dateRange, excludeTestRecords),
		Tier:           db.TierShort,
	}

	catalog.MonthlyRevenue = db.MetricQuery{
		ID:       monthlyRevenueQueryID,
		Kind:     db.MetricKindRows,
		Table:    collectionsTable,
		SumField: amountColumn,
		GroupBy: []db.GroupField{
			{Field: collectedAtColumn, Alias: monthAlias, MonthBucket: true},
			{Field: productColumn, Alias: productAlias},
		},
		Filters: withCommonFilters(nil, collectedAtColumn, dateRange, excludeTestRecords),
		Tier:    db.TierShort,
	}

	return catalog
}

// All returns every query of the catalog as one ordered collection.
func (catalog Catalog) All() []db.MetricQuery {
	queries := make([]db.MetricQuery, 0, len(catalog.StageCounts)+4)
	for _, stageCount := range catalog.StageCounts {
		queries = append(queries, stageCount.Query)
	}
	return append(
		queries,
		catalog.SettledVolume,
		catalog.CollectedVolume,
		catalog.MerchantBreakdown,
		catalog.MonthlyRevenue,
	)
}

func withCommonFilters(
	filters []db.Filter,
	timeColumn string,
	dateRange DateRange,
	excludeTestRecords bool,
) []db.Filter {
	if from, to := dateRange.Bounds(); from != nil || to != nil {
		filters = append(filters, db.Filter{
			Kind:  db.FilterDateRange,
			Field: timeColumn,
			From:  from,
			To:    to,
		})
	}

	if excludeTestRecords {
		filters = append(filters, db.Filter{
			Kind:        db.FilterExcludeTestAccounts,
			Field:       journeyIDColumn,
			LookupTable: testAccountsTable,
			LookupField: journeyIDColumn,
		})
	}

	return filters
}
