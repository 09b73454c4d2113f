// Package outbox relays committed outbox rows to the message broker.
package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/robertarktes/seatcheckout/internal/adapters/crdb"
	"github.com/robertarktes/seatcheckout/internal/observability"
)

const batchSize = 50

type Store interface {
	WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error
	ClaimOutbox(ctx context.Context, tx pgx.Tx, limit int) ([]crdb.OutboxRecord, error)
	MarkPublished(ctx context.Context, tx pgx.Tx, id uuid.UUID, publishedAt time.Time) error
	OldestPending(ctx context.Context) (time.Time, bool, error)
}

type Broker interface {
	Publish(ctx context.Context, key string, msg amqp.Publishing) error
}

type Publisher struct {
	store    Store
	broker   Broker
	logger   observability.Logger
	interval time.Duration
	now      func() time.Time
}

func NewPublisher(store Store, broker Broker, interval time.Duration, logger observability.Logger) *Publisher {
	return &Publisher{store: store, broker: broker, logger: logger, interval: interval, now: time.Now}
}

func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.Flush(ctx); err != nil {
				p.logger.Error("outbox flush failed: ", err)
			}
		}
	}
}

// Flush publishes one batch. Rows are marked in the same transaction that
// claimed them, so a failed publish leaves the row for the next pass.
func (p *Publisher) Flush(ctx context.Context) (int, error) {
	published := 0
	err := p.store.WithTx(ctx, func(tx pgx.Tx) error {
		records, err := p.store.ClaimOutbox(ctx, tx, batchSize)
		if err != nil {
			return err
		}
		for _, rec := range records {
			msg := amqp.Publishing{
				MessageId:    rec.DedupeKey,
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				Timestamp:    rec.CreatedAt,
				Type:         rec.EventType,
				Body:         rec.Payload,
			}
			if err := p.broker.Publish(ctx, rec.EventType, msg); err != nil {
				observability.RabbitPublishRetries.Inc()
				p.logger.WithField("outbox_id", rec.ID.String()).Warn("publish failed, will retry: ", err)
				break
			}
			if err := p.store.MarkPublished(ctx, tx, rec.ID, p.now()); err != nil {
				return err
			}
			published++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	oldest, ok, err := p.store.OldestPending(ctx)
	switch {
	case err != nil:
		p.logger.Warn("outbox lag unavailable: ", err)
	case ok:
		observability.OutboxLag.Set(p.now().Sub(oldest).Seconds())
	default:
		observability.OutboxLag.Set(0)
	}
	return published, nil
}
