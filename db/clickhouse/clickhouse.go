package clickhouse

import (
	"context"
	"fmt"
	"sync"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"hermannm.dev/wrap"
	"loanmetrics/config"
	"loanmetrics/db"
)

// Implements db.MetricsStore for ClickHouse.
type ClickHouseStore struct {
	conn driver.Conn
}

func NewClickHouseStore(config config.Config) (ClickHouseStore, error) {
	// Options docs: https://clickhouse.com/docs/en/integrations/go#connection-settings
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{config.ClickHouse.Address},
		Auth: clickhouse.Auth{
			Database: config.ClickHouse.DatabaseName,
			Username: config.ClickHouse.Username,
			Password: config.ClickHouse.Password,
		},
		Debug: config.ClickHouse.Debug,
		Debugf: func(format string, v ...any) {
			fmt.Printf(format+"\n", v...)
		},
		Compression: &clickhouse.Compression{Method: clickhouse.CompressionLZ4},
	})
	if err != nil {
		return ClickHouseStore{}, wrap.Error(err, "failed to connect to ClickHouse")
	}

	return ClickHouseStore{conn: conn}, nil
}

func (store ClickHouseStore) Ping(ctx context.Context) error {
	if err := store.conn.Ping(ctx); err != nil {
		return wrap.Error(err, "failed to ping ClickHouse connection")
	}

	return nil
}

// AcquireSession verifies that ClickHouse is reachable before any query fans out, and
// scopes the returned session to the given request context.
func (store ClickHouseStore) AcquireSession(ctx context.Context) (db.Session, error) {
	if err := store.conn.Ping(ctx); err != nil {
		return nil, wrap.Error(err, "failed to acquire ClickHouse session")
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	return &clickHouseSession{conn: store.conn, ctx: sessionCtx, cancel: cancel}, nil
}

func (store ClickHouseStore) Close() error {
	return store.conn.Close()
}

type clickHouseSession struct {
	conn    driver.Conn
	ctx     context.Context
	cancel  context.CancelFunc
	release sync.Once
}

func (session *clickHouseSession) Context() context.Context {
	return session.ctx
}

func (session *clickHouseSession) Release() {
	// Queries still running after their caller gave up on them hold connections from
	// the driver's pool; canceling the session context releases them.
	session.release.Do(session.cancel)
}
