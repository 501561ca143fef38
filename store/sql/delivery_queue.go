package sqlstore

import (
	"context"
	"fmt"

	"github.com/goliatone/go-job/queue"
	jobsql "github.com/goliatone/go-job/queue/adapters/postgres"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

const (
	DeliveryQueueTable       = "api_webhook_delivery_queue"
	DeliveryDeadLetterTable  = "api_webhook_delivery_dlq"
	DeliveryDispatchStatuses = "api_webhook_delivery_status"
)

// DeliveryQueue is the durable go-job queue for outbound webhook deliveries.
// It shares the account version database.
type DeliveryQueue struct {
	*jobsql.Adapter
	storage *jobsql.Storage
}

// NewDeliveryQueue creates the queue tables on db and returns the queue.
// The placeholder dialect follows the bun dialect of db.
func NewDeliveryQueue(ctx context.Context, db *bun.DB, opts ...jobsql.Option) (*DeliveryQueue, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: delivery queue requires a database")
	}
	storageOpts := []jobsql.Option{
		jobsql.WithTableName(DeliveryQueueTable),
		jobsql.WithDLQTableName(DeliveryDeadLetterTable),
		jobsql.WithStatusTableName(DeliveryDispatchStatuses),
	}
	switch db.Dialect().Name() {
	case dialect.PG:
		storageOpts = append(storageOpts, jobsql.WithDialect(jobsql.DialectPostgres))
	case dialect.SQLite:
		storageOpts = append(storageOpts, jobsql.WithDialect(jobsql.DialectSQLite))
	default:
		return nil, fmt.Errorf("sqlstore: delivery queue does not support dialect %s", db.Dialect().Name())
	}
	storage := jobsql.NewStorage(db.DB, append(storageOpts, opts...)...)
	if err := storage.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("sqlstore: migrate delivery queue: %w", err)
	}
	return &DeliveryQueue{Adapter: jobsql.NewAdapter(storage), storage: storage}, nil
}

// Status reports the dispatch state of an enqueued delivery.
func (q *DeliveryQueue) Status(ctx context.Context, dispatchID string) (queue.DispatchStatus, error) {
	if q == nil || q.storage == nil {
		return queue.DispatchStatus{}, fmt.Errorf("sqlstore: delivery queue is not configured")
	}
	return q.storage.GetDispatchStatus(ctx, dispatchID)
}

var (
	_ queue.Enqueuer = (*DeliveryQueue)(nil)
	_ queue.Dequeuer = (*DeliveryQueue)(nil)
)
