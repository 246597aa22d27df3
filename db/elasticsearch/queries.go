package elasticsearch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8/typedapi/core/count"
	"github.com/elastic/go-elasticsearch/v8/typedapi/core/search"
	"github.com/elastic/go-elasticsearch/v8/typedapi/some"
	"github.com/elastic/go-elasticsearch/v8/typedapi/types"
	"github.com/elastic/go-elasticsearch/v8/typedapi/types/enums/calendarinterval"
	"github.com/elastic/go-elasticsearch/v8/typedapi/types/enums/sortorder"
	"github.com/shopspring/decimal"
	"hermannm.dev/wrap"
	"loanmetrics/db"
)

// Field on plan/collection/funnel documents marking designated test/internal records.
const testRecordFlagField = "is_test"

// Format for date_histogram bucket keys, and its Go layout counterpart.
const (
	monthKeyFormat = "yyyy-MM"
	monthKeyLayout = "2006-01"
)

func (session *elasticSession) Count(
	ctx context.Context,
	query db.MetricQuery,
) (int64, error) {
	if query.Kind != db.MetricKindCount {
		return 0, fmt.Errorf("query '%s' has kind %v, expected count", query.ID, query.Kind)
	}

	// Funnel indices hold one document per journey per stage, so a filtered document
	// count is a distinct journey count.
	response, err := session.client.Count().
		Index(query.Table).
		Request(&count.Request{Query: filtersToQuery(query.Filters)}).
		Do(ctx)
	if err != nil {
		return 0, wrapElasticError(err, "count request failed against Elasticsearch")
	}

	return response.Count, nil
}

func (session *elasticSession) Scalar(
	ctx context.Context,
	query db.MetricQuery,
) (decimal.Decimal, error) {
	if query.Kind != db.MetricKindScalar {
		return decimal.Decimal{}, fmt.Errorf(
			"query '%s' has kind %v, expected scalar", query.ID, query.Kind,
		)
	}

	response, err := session.client.Search().
		Index(query.Table).
		Request(&search.Request{
			Size:  some.Int(0),
			Query: filtersToQuery(query.Filters),
			Aggregations: map[string]types.Aggregations{
				db.ColumnSum: {Sum: &types.SumAggregation{Field: some.String(query.SumField)}},
			},
		}).
		Do(ctx)
	if err != nil {
		return decimal.Decimal{}, wrapElasticError(
			err, "scalar request failed against Elasticsearch",
		)
	}

	return sumFromAggregates(response.Aggregations)
}

func (session *elasticSession) Rows(
	ctx context.Context,
	query db.MetricQuery,
) ([]db.ResultRow, error) {
	if query.Kind != db.MetricKindRows {
		return nil, fmt.Errorf("query '%s' has kind %v, expected rows", query.ID, query.Kind)
	}

	switch {
	case len(query.GroupBy) == 1 && !query.GroupBy[0].MonthBucket:
		return session.groupedRows(ctx, query)
	case len(query.GroupBy) == 2 && query.GroupBy[0].MonthBucket:
		return session.monthBucketedRows(ctx, query)
	default:
		return nil, fmt.Errorf("unsupported grouping in query '%s'", query.ID)
	}
}

// Single-field grouping, e.g. plan volume per merchant: a terms aggregation ordered by
// the summed field.
func (session *elasticSession) groupedRows(
	ctx context.Context,
	query db.MetricQuery,
) ([]db.ResultRow, error) {
	group := query.GroupBy[0]

	termsAggregation := types.Aggregations{
		Terms: &types.TermsAggregation{
			Field: some.String(group.Field),
			Size:  some.Int(query.Limit),
		},
		Aggregations: map[string]types.Aggregations{
			db.ColumnSum: {Sum: &types.SumAggregation{Field: some.String(query.SumField)}},
		},
	}
	if query.OrderBySumDesc {
		termsAggregation.Terms.Order = map[string]sortorder.SortOrder{
			db.ColumnSum: sortorder.Desc,
		}
	}

	response, err := session.client.Search().
		Index(query.Table).
		Request(&search.Request{
			Size:         some.Int(0),
			Query:        filtersToQuery(query.Filters),
			Aggregations: map[string]types.Aggregations{group.Alias: termsAggregation},
		}).
		Do(ctx)
	if err != nil {
		return nil, wrapElasticError(err, "rows request failed against Elasticsearch")
	}

	buckets, err := termsBuckets(response.Aggregations, group.Alias)
	if err != nil {
		return nil, err
	}

	results := make([]db.ResultRow, 0, len(buckets))
	for _, bucket := range buckets {
		key, ok := bucket.Key.(string)
		if !ok {
			return nil, fmt.Errorf("expected string bucket key, got '%v'", bucket.Key)
		}

		sum, err := sumFromAggregates(bucket.Aggregations)
		if err != nil {
			return nil, err
		}

		results = append(results, db.ResultRow{
			group.Alias:    key,
			db.ColumnCount: bucket.DocCount,
			db.ColumnSum:   sum,
		})
	}

	return results, nil
}

// Calendar-month grouping with a secondary terms grouping, e.g. revenue per month per
// product: a date_histogram with a nested terms aggregation.
func (session *elasticSession) monthBucketedRows(
	ctx context.Context,
	query db.MetricQuery,
) ([]db.ResultRow, error) {
	monthGroup, termGroup := query.GroupBy[0], query.GroupBy[1]

	response, err := session.client.Search().
		Index(query.Table).
		Request(&search.Request{
			Size:  some.Int(0),
			Query: filtersToQuery(query.Filters),
			Aggregations: map[string]types.Aggregations{
				monthGroup.Alias: {
					DateHistogram: &types.DateHistogramAggregation{
						Field:            some.String(monthGroup.Field),
						CalendarInterval: &calendarinterval.Month,
						Format:           some.String(monthKeyFormat),
					},
					Aggregations: map[string]types.Aggregations{
						termGroup.Alias: {
							Terms: &types.TermsAggregation{
								Field: some.String(termGroup.Field),
							},
							Aggregations: map[string]types.Aggregations{
								db.ColumnSum: {
									Sum: &types.SumAggregation{
										Field: some.String(query.SumField),
									},
								},
							},
						},
					},
				},
			},
		}).
		Do(ctx)
	if err != nil {
		return nil, wrapElasticError(err, "rows request failed against Elasticsearch")
	}

	aggregate, ok := response.Aggregations[monthGroup.Alias]
	if !ok {
		return nil, fmt.Errorf("missing '%s' aggregation in response", monthGroup.Alias)
	}
	histogram, ok := aggregate.(*types.DateHistogramAggregate)
	if !ok {
		return nil, fmt.Errorf(
			"expected date histogram aggregate for '%s', got %T", monthGroup.Alias, aggregate,
		)
	}
	monthBuckets, ok := histogram.Buckets.([]types.DateHistogramBucket)
	if !ok {
		return nil, errors.New("unexpected bucket format in date histogram aggregate")
	}

	var results []db.ResultRow
	for _, monthBucket := range monthBuckets {
		if monthBucket.KeyAsString == nil {
			return nil, errors.New("missing month key in date histogram bucket")
		}
		month, err := time.Parse(monthKeyLayout, *monthBucket.KeyAsString)
		if err != nil {
			return nil, wrap.Error(err, "failed to parse month key in date histogram bucket")
		}

		termBuckets, err := termsBuckets(monthBucket.Aggregations, termGroup.Alias)
		if err != nil {
			return nil, err
		}

		for _, bucket := range termBuckets {
			key, ok := bucket.Key.(string)
			if !ok {
				return nil, fmt.Errorf("expected string bucket key, got '%v'", bucket.Key)
			}

			sum, err := sumFromAggregates(bucket.Aggregations)
			if err != nil {
				return nil, err
			}

			results = append(results, db.ResultRow{
				monthGroup.Alias: month,
				termGroup.Alias:  key,
				db.ColumnCount:   bucket.DocCount,
				db.ColumnSum:     sum,
			})
		}
	}

	return results, nil
}

func filtersToQuery(filters []db.Filter) *types.Query {
	boolQuery := &types.BoolQuery{}

	for _, filter := range filters {
		switch filter.Kind {
		case db.FilterTermEquals:
			boolQuery.Filter = append(boolQuery.Filter, types.Query{
				Term: map[string]types.TermQuery{filter.Field: {Value: filter.Value}},
			})
		case db.FilterDateRange:
			rangeQuery := types.DateRangeQuery{}
			if filter.From != nil {
				rangeQuery.Gte = dateMath(*filter.From)
			}
			if filter.To != nil {
				rangeQuery.Lt = dateMath(*filter.To)
			}
			boolQuery.Filter = append(boolQuery.Filter, types.Query{
				Range: map[string]types.RangeQuery{filter.Field: rangeQuery},
			})
		case db.FilterExcludeTestAccounts:
			boolQuery.MustNot = append(boolQuery.MustNot, types.Query{
				Term: map[string]types.TermQuery{testRecordFlagField: {Value: true}},
			})
		}
	}

	return &types.Query{Bool: boolQuery}
}

func dateMath(t time.Time) *types.DateMath {
	value := types.DateMath(t.UTC().Format(time.RFC3339))
	return &value
}

func termsBuckets(
	aggregates map[string]types.Aggregate,
	name string,
) ([]types.StringTermsBucket, error) {
	aggregate, ok := aggregates[name]
	if !ok {
		return nil, fmt.Errorf("missing '%s' aggregation in response", name)
	}

	termsAggregate, ok := aggregate.(*types.StringTermsAggregate)
	if !ok {
		return nil, fmt.Errorf("expected terms aggregate for '%s', got %T", name, aggregate)
	}

	buckets, ok := termsAggregate.Buckets.([]types.StringTermsBucket)
	if !ok {
		return nil, errors.New("unexpected bucket format in terms aggregate")
	}

	return buckets, nil
}

func sumFromAggregates(aggregates map[string]types.Aggregate) (decimal.Decimal, error) {
	aggregate, ok := aggregates[db.ColumnSum]
	if !ok {
		return decimal.Decimal{}, errors.New("missing sum aggregation in response")
	}

	sumAggregate, ok := aggregate.(*types.SumAggregate)
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("expected sum aggregate, got %T", aggregate)
	}

	return decimal.NewFromFloat(float64(sumAggregate.Value)), nil
}
