package elasticsearch

import (
	"context"
	"sync"

	"github.com/elastic/go-elasticsearch/v8"
	"hermannm.dev/wrap"
	"loanmetrics/config"
	"loanmetrics/db"
)

// Implements db.MetricsStore for Elasticsearch.
//
// Expects denormalized indices: one document per journey per funnel stage, and plan/
// collection documents carrying an 'is_test' flag (Elasticsearch has no correlated
// subqueries, so test-account exclusion cannot be a lookup like in ClickHouse).
type ElasticsearchStore struct {
	client *elasticsearch.TypedClient
}

func NewElasticsearchStore(config config.Config) (ElasticsearchStore, error) {
	client, err := elasticsearch.NewTypedClient(elasticsearch.Config{
		Addresses:         []string{config.Elasticsearch.Address},
		EnableDebugLogger: config.Elasticsearch.Debug,
	})
	if err != nil {
		return ElasticsearchStore{}, wrap.Error(err, "failed to connect to Elasticsearch")
	}

	return ElasticsearchStore{client: client}, nil
}

func (store ElasticsearchStore) Ping(ctx context.Context) error {
	if _, err := store.client.Info().Do(ctx); err != nil {
		return wrapElasticError(err, "failed to reach Elasticsearch")
	}

	return nil
}

func (store ElasticsearchStore) AcquireSession(ctx context.Context) (db.Session, error) {
	if _, err := store.client.Info().Do(ctx); err != nil {
		return nil, wrapElasticError(err, "failed to acquire Elasticsearch session")
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	return &elasticSession{client: store.client, ctx: sessionCtx, cancel: cancel}, nil
}

func (store ElasticsearchStore) Close() error {
	// The underlying HTTP client needs no explicit teardown.
	return nil
}

type elasticSession struct {
	client  *elasticsearch.TypedClient
	ctx     context.Context
	cancel  context.CancelFunc
	release sync.Once
}

func (session *elasticSession) Context() context.Context {
	return session.ctx
}

func (session *elasticSession) Release() {
	session.release.Do(session.cancel)
}
