package clickhouse

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/shopspring/decimal"
	"hermannm.dev/devlog/log"
	"hermannm.dev/wrap"
	"loanmetrics/db"
)

func (session *clickHouseSession) Count(
	ctx context.Context,
	query db.MetricQuery,
) (int64, error) {
	if query.Kind != db.MetricKindCount {
		return 0, fmt.Errorf("query '%s' has kind %v, expected count", query.ID, query.Kind)
	}

	queryString, args, err := buildMetricQueryString(query)
	if err != nil {
		return 0, wrap.Error(err, "failed to build count query")
	}

	log.Debug("generated clickhouse query", slog.String("query", queryString))

	var count uint64
	if err := session.conn.QueryRow(ctx, queryString, args...).Scan(&count); err != nil {
		return 0, wrap.Error(err, "count query failed against ClickHouse")
	}

	return int64(count), nil
}

func (session *clickHouseSession) Scalar(
	ctx context.Context,
	query db.MetricQuery,
) (decimal.Decimal, error) {
	if query.Kind != db.MetricKindScalar {
		return decimal.Decimal{}, fmt.Errorf(
			"query '%s' has kind %v, expected scalar", query.ID, query.Kind,
		)
	}

	queryString, args, err := buildMetricQueryString(query)
	if err != nil {
		return decimal.Decimal{}, wrap.Error(err, "failed to build scalar query")
	}

	log.Debug("generated clickhouse query", slog.String("query", queryString))

	// Monetary columns are Decimal in the warehouse, and summing an empty set yields a
	// legitimate zero, never an error.
	var sum decimal.Decimal
	if err := session.conn.QueryRow(ctx, queryString, args...).Scan(&sum); err != nil {
		return decimal.Decimal{}, wrap.Error(err, "scalar query failed against ClickHouse")
	}

	return sum, nil
}

func (session *clickHouseSession) Rows(
	ctx context.Context,
	query db.MetricQuery,
) ([]db.ResultRow, error) {
	if query.Kind != db.MetricKindRows {
		return nil, fmt.Errorf("query '%s' has kind %v, expected rows", query.ID, query.Kind)
	}

	queryString, args, err := buildMetricQueryString(query)
	if err != nil {
		return nil, wrap.Error(err, "failed to build rows query")
	}

	log.Debug("generated clickhouse query", slog.String("query", queryString))

	rows, err := session.conn.Query(ctx, queryString, args...)
	if err != nil {
		return nil, wrap.Error(err, "rows query failed against ClickHouse")
	}
	defer rows.Close()

	columnNames := rows.Columns()
	columnTypes := rows.ColumnTypes()

	var results []db.ResultRow
	for rows.Next() {
		scanTargets := make([]any, len(columnTypes))
		for i, columnType := range columnTypes {
			scanTargets[i] = reflect.New(columnType.ScanType()).Interface()
		}

		if err := rows.Scan(scanTargets...); err != nil {
			return nil, wrap.Error(err, "failed to scan result row")
		}

		// Result keys are normalized to lower case once here, so consumers never have
		// to try multiple casings of the same column name.
		result := make(db.ResultRow, len(columnNames))
		for i, name := range columnNames {
			result[strings.ToLower(name)] = reflect.ValueOf(scanTargets[i]).Elem().Interface()
		}
		results = append(results, result)
	}

	if err := rows.Err(); err != nil {
		return nil, wrap.Error(err, "failed to read query result rows")
	}

	return results, nil
}

func buildMetricQueryString(metricQuery db.MetricQuery) (string, []any, error) {
	if err := validateQueryIdentifiers(metricQuery); err != nil {
		return "", nil, wrap.Error(err, "invalid table/field name in query")
	}

	var query QueryBuilder
	query.WriteString("SELECT ")

	switch metricQuery.Kind {
	case db.MetricKindCount:
		query.WriteString("COUNT(DISTINCT ")
		query.WriteIdentifier(metricQuery.DistinctField)
		query.WriteString(") AS ")
		query.WriteIdentifier(db.ColumnCount)
	case db.MetricKindScalar:
		query.WriteString("SUM(")
		query.WriteIdentifier(metricQuery.SumField)
		query.WriteString(") AS ")
		query.WriteIdentifier(db.ColumnSum)
	case db.MetricKindRows:
		for _, group := range metricQuery.GroupBy {
			if group.MonthBucket {
				query.WriteString("toStartOfMonth(")
				query.WriteIdentifier(group.Field)
				query.WriteString(")")
			} else {
				query.WriteIdentifier(group.Field)
			}
			query.WriteString(" AS ")
			query.WriteIdentifier(group.Alias)
			query.WriteString(", ")
		}
		query.WriteString("COUNT(*) AS ")
		query.WriteIdentifier(db.ColumnCount)
		query.WriteString(", SUM(")
		query.WriteIdentifier(metricQuery.SumField)
		query.WriteString(") AS ")
		query.WriteIdentifier(db.ColumnSum)
	default:
		return "", nil, fmt.Errorf("unsupported metric query kind %v", metricQuery.Kind)
	}

	query.WriteString(" FROM ")
	query.WriteIdentifier(metricQuery.Table)

	args, err := writeFilters(&query, metricQuery.Filters)
	if err != nil {
		return "", nil, err
	}

	if metricQuery.Kind == db.MetricKindRows {
		query.WriteString(" GROUP BY ")
		for i, group := range metricQuery.GroupBy {
			if i > 0 {
				query.WriteString(", ")
			}
			query.WriteIdentifier(group.Alias)
		}

		if metricQuery.OrderBySumDesc {
			query.WriteString(" ORDER BY ")
			query.WriteIdentifier(db.ColumnSum)
			query.WriteString(" DESC")
		}

		if metricQuery.Limit > 0 {
			query.WriteString(" LIMIT ")
			query.WriteInt(metricQuery.Limit)
		}
	}

	return query.String(), args, nil
}

// Writes a WHERE clause with ?-placeholders for filter values, returning the arguments
// to bind, in placeholder order.
func writeFilters(query *QueryBuilder, filters []db.Filter) ([]any, error) {
	var args []any
	wroteFirst := false

	writeSeparator := func() {
		if wroteFirst {
			query.WriteString(" AND ")
		} else {
			query.WriteString(" WHERE ")
			wroteFirst = true
		}
	}

	for _, filter := range filters {
		switch filter.Kind {
		case db.FilterTermEquals:
			writeSeparator()
			query.WriteIdentifier(filter.Field)
			query.WriteString(" = ?")
			args = append(args, filter.Value)
		case db.FilterDateRange:
			if filter.From != nil {
				writeSeparator()
				query.WriteIdentifier(filter.Field)
				query.WriteString(" >= ?")
				args = append(args, *filter.From)
			}
			if filter.To != nil {
				writeSeparator()
				query.WriteIdentifier(filter.Field)
				query.WriteString(" < ?")
				args = append(args, *filter.To)
			}
		case db.FilterExcludeTestAccounts:
			writeSeparator()
			query.WriteIdentifier(filter.Field)
			query.WriteString(" NOT IN (SELECT ")
			query.WriteIdentifier(filter.LookupField)
			query.WriteString(" FROM ")
			query.WriteIdentifier(filter.LookupTable)
			query.WriteString(")")
		default:
			return nil, fmt.Errorf("unsupported filter kind %v", filter.Kind)
		}
	}

	return args, nil
}

func validateQueryIdentifiers(metricQuery db.MetricQuery) error {
	identifiers := []string{metricQuery.Table}
	if metricQuery.DistinctField != "" {
		identifiers = append(identifiers, metricQuery.DistinctField)
	}
	if metricQuery.SumField != "" {
		identifiers = append(identifiers, metricQuery.SumField)
	}
	for _, group := range metricQuery.GroupBy {
		identifiers = append(identifiers, group.Field, group.Alias)
	}
	for _, filter := range metricQuery.Filters {
		identifiers = append(identifiers, filter.Field)
		if filter.Kind == db.FilterExcludeTestAccounts {
			identifiers = append(identifiers, filter.LookupTable, filter.LookupField)
		}
	}

	return ValidateIdentifiers(identifiers...)
}
