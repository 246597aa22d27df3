package db

import (
	"context"

	"github.com/shopspring/decimal"
)

// MetricsStore is the boundary to the remote analytical store. Implemented for
// ClickHouse and Elasticsearch; any engine with COUNT/SUM aggregation and a way to
// exclude designated test records can back it.
type MetricsStore interface {
	// AcquireSession opens one session for one logical metrics request. An error here
	// means the store is unreachable (network, auth, configuration) and is the only
	// error that degrades a whole request; everything after fan-out is contained
	// per-query.
	AcquireSession(ctx context.Context) (Session, error)

	// Ping checks store reachability without acquiring a session.
	Ping(ctx context.Context) error

	Close() error
}

// Session executes the queries of a single metrics request. It must be released exactly
// once, on every exit path; Release cancels any queries still in flight.
//
// A row count of zero is a legitimate result, never an error.
type Session interface {
	Count(ctx context.Context, query MetricQuery) (int64, error)
	Scalar(ctx context.Context, query MetricQuery) (decimal.Decimal, error)
	Rows(ctx context.Context, query MetricQuery) ([]ResultRow, error)

	// Context returns the session's scope; queries run under contexts derived from it,
	// so releasing the session cuts loose anything still in flight.
	Context() context.Context
	Release()
}

// ResultRow is one row of a grouped query result. Keys are normalized to lower case by
// the store implementations, so consumers never have to guess at column-name casing.
type ResultRow map[string]any

// Canonical aliases for aggregate result columns. Store implementations alias their
// SELECT expressions (or aggregation buckets) to these, while group columns use the
// aliases given in the query spec, so consumers read results the same way regardless of
// backend.
const (
	ColumnCount = "row_count"
	ColumnSum   = "sum_total"
)
