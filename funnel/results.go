package funnel

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"hermannm.dev/wrap"
	"loanmetrics/db"
)

// MerchantRow is one merchant's slice of the loan book: how many plans were signed
// through them, and for how much volume.
type MerchantRow struct {
	Name   string          `json:"name"`
	Count  int64           `json:"count"`
	Volume decimal.Decimal `json:"volume"`
}

// RevenueEntry is collected revenue for one product in one calendar month.
type RevenueEntry struct {
	Month   time.Time
	Product string
	Revenue decimal.Decimal
}

func parseMerchantRows(rows []db.ResultRow) ([]MerchantRow, error) {
	merchants := make([]MerchantRow, 0, len(rows))

	for _, row := range rows {
		name, err := stringColumn(row, merchantAlias)
		if err != nil {
			return nil, wrap.Error(err, "failed to parse merchant breakdown row")
		}
		count, err := intColumn(row, db.ColumnCount)
		if err != nil {
			return nil, wrap.Error(err, "failed to parse merchant breakdown row")
		}
		volume, err := decimalColumn(row, db.ColumnSum)
		if err != nil {
			return nil, wrap.Error(err, "failed to parse merchant breakdown row")
		}

		merchants = append(merchants, MerchantRow{Name: name, Count: count, Volume: volume})
	}

	return merchants, nil
}

func parseRevenueEntries(rows []db.ResultRow) ([]RevenueEntry, error) {
	entries := make([]RevenueEntry, 0, len(rows))

	for _, row := range rows {
		month, err := timeColumn(row, monthAlias)
		if err != nil {
			return nil, wrap.Error(err, "failed to parse monthly revenue row")
		}
		product, err := stringColumn(row, productAlias)
		if err != nil {
			return nil, wrap.Error(err, "failed to parse monthly revenue row")
		}
		revenue, err := decimalColumn(row, db.ColumnSum)
		if err != nil {
			return nil, wrap.Error(err, "failed to parse monthly revenue row")
		}

		entries = append(entries, RevenueEntry{Month: month, Product: product, Revenue: revenue})
	}

	return entries, nil
}

func stringColumn(row db.ResultRow, column string) (string, error) {
	switch value := row[column].(type) {
	case string:
		return value, nil
	case nil:
		return "", fmt.Errorf("missing column '%s' in result row", column)
	default:
		return "", fmt.Errorf("expected string in column '%s', got '%v'", column, value)
	}
}

func intColumn(row db.ResultRow, column string) (int64, error) {
	switch value := row[column].(type) {
	case int64:
		return value, nil
	case uint64:
		return int64(value), nil
	case int32:
		return int64(value), nil
	case uint32:
		return int64(value), nil
	case int:
		return int64(value), nil
	case nil:
		return 0, fmt.Errorf("missing column '%s' in result row", column)
	default:
		return 0, fmt.Errorf("expected integer in column '%s', got '%v'", column, value)
	}
}

func decimalColumn(row db.ResultRow, column string) (decimal.Decimal, error) {
	switch value := row[column].(type) {
	case decimal.Decimal:
		return value, nil
	case float64:
		return decimal.NewFromFloat(value), nil
	case int64:
		return decimal.NewFromInt(value), nil
	case nil:
		return decimal.Decimal{}, fmt.Errorf("missing column '%s' in result row", column)
	default:
		return decimal.Decimal{}, fmt.Errorf(
			"expected decimal in column '%s', got '%v'", column, value,
		)
	}
}

func timeColumn(row db.ResultRow, column string) (time.Time, error) {
	switch value := row[column].(type) {
	case time.Time:
		return value, nil
	case nil:
		return time.Time{}, fmt.Errorf("missing column '%s' in result row", column)
	default:
		return time.Time{}, fmt.Errorf("expected timestamp in column '%s', got '%v'", column, value)
	}
}
