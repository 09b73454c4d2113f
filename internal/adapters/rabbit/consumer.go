package rabbit

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/robertarktes/seatcheckout/internal/domain"
	"github.com/robertarktes/seatcheckout/internal/observability"
)

const (
	SeatStatusQueue      = "seatcheckout.seat-status"
	SeatStatusRoutingKey = "seat.status.changed"
)

// SeatStatusChanged is published by the booking backend whenever a seat
// moves between AVAILABLE, HELD and BOOKED.
type SeatStatusChanged struct {
	EventID int64             `json:"event_id"`
	SeatID  int64             `json:"seat_id"`
	Status  domain.SeatStatus `json:"status"`
}

func (m SeatStatusChanged) validate() error {
	switch m.Status {
	case domain.SeatAvailable, domain.SeatBooked, domain.SeatHeld:
	default:
		return errors.Wrapf(domain.ErrInvalidInput, "seat status %q", m.Status)
	}
	if m.EventID <= 0 || m.SeatID <= 0 {
		return errors.Wrap(domain.ErrInvalidInput, "missing event or seat id")
	}
	return nil
}

type SeatStatusHandler func(ctx context.Context, msg SeatStatusChanged) error

type Consumer struct {
	ch     *amqp.Channel
	queue  string
	logger observability.Logger
}

func NewConsumer(conn *amqp.Connection, logger observability.Logger) (*Consumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := ch.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil); err != nil {
		return nil, err
	}
	_, err = ch.QueueDeclare(SeatStatusQueue, true, false, false, false, nil)
	if err != nil {
		return nil, err
	}
	if err := ch.QueueBind(SeatStatusQueue, SeatStatusRoutingKey, Exchange, false, nil); err != nil {
		return nil, err
	}
	return &Consumer{ch: ch, queue: SeatStatusQueue, logger: logger}, nil
}

// Consume delivers seat status changes to handle until ctx is done or the
// channel closes. Malformed messages are dropped; handler errors requeue.
func (c *Consumer) Consume(ctx context.Context, handle SeatStatusHandler) error {
	deliveries, err := c.ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}
	log := c.logger.WithField("queue", c.queue)

	for {
		select {
		case <-ctx.Done():
			return c.ch.Close()
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("rabbit: delivery channel closed")
			}
			c.dispatch(ctx, d, handle, log)
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, d amqp.Delivery, handle SeatStatusHandler, log observability.Logger) {
	msg, err := DecodeSeatStatus(d.Body)
	if err != nil {
		log.Warn("dropping malformed seat status message: ", err)
		_ = d.Nack(false, false)
		return
	}
	if err := handle(ctx, msg); err != nil {
		log.Error("seat status handler failed: ", err)
		_ = d.Nack(false, !d.Redelivered)
		return
	}
	_ = d.Ack(false)
}

func DecodeSeatStatus(body []byte) (SeatStatusChanged, error) {
	var msg SeatStatusChanged
	if err := json.Unmarshal(body, &msg); err != nil {
		return msg, errors.Wrap(domain.ErrInvalidInput, err.Error())
	}
	return msg, msg.validate()
}
