package crdb

import (
	"context"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/robertarktes/seatcheckout/internal/domain"
	"github.com/robertarktes/seatcheckout/internal/observability"
)

const (
	SerializationFailureCode = "40001"
	UniqueViolationCode      = "23505"
)

const schema = `
CREATE TABLE IF NOT EXISTS booking_receipts (
	id UUID PRIMARY KEY,
	booking_id INT8 NOT NULL,
	surface TEXT NOT NULL,
	user_id TEXT NOT NULL,
	event_id INT8,
	venue_id INT8,
	seat_ids INT8[] NOT NULL DEFAULT '{}',
	quantity INT8 NOT NULL,
	points_used INT8 NOT NULL,
	total_amount NUMERIC NOT NULL,
	confirmed_at TIMESTAMPTZ NOT NULL,
	UNIQUE (surface, booking_id)
);
CREATE INDEX IF NOT EXISTS booking_receipts_user_idx ON booking_receipts (user_id, confirmed_at DESC);
CREATE TABLE IF NOT EXISTS outbox (
	id UUID PRIMARY KEY,
	aggregate_type TEXT NOT NULL,
	aggregate_id UUID NOT NULL,
	event_type TEXT NOT NULL,
	payload_json JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	published_at TIMESTAMPTZ,
	status TEXT NOT NULL DEFAULT 'NEW' CHECK (status IN ('NEW', 'PUBLISHED', 'FAILED')),
	dedupe_key TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS outbox_status_idx ON outbox (status, created_at);
`

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Migrate creates the receipt and outbox tables if they are missing.
func (r *Repository) Migrate(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, schema)
	return errors.Wrap(err, "migrate")
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *Repository) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	start := time.Now()
	defer func() { observability.DBTxDuration.Observe(time.Since(start).Seconds()) }()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, "SET TRANSACTION ISOLATION LEVEL SERIALIZABLE")
	if err != nil {
		return err
	}

	err = fn(tx)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == SerializationFailureCode {
			return domain.ErrSerializationFailure
		}
		return err
	}

	return tx.Commit(ctx)
}

func (r *Repository) InsertReceipt(ctx context.Context, tx pgx.Tx, receipt domain.Receipt) error {
	seatIDs := receipt.SeatIDs
	if seatIDs == nil {
		seatIDs = []int64{}
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO booking_receipts (id, booking_id, surface, user_id, event_id, venue_id, seat_ids, quantity, points_used, total_amount, confirmed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::NUMERIC, $11)
	`, receipt.ID, receipt.BookingID, receipt.Surface, receipt.UserID, receipt.EventID, receipt.VenueID,
		seatIDs, receipt.Quantity, receipt.PointsUsed, receipt.TotalAmount.String(), receipt.ConfirmedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == UniqueViolationCode {
			return errors.Wrapf(domain.ErrConflict, "receipt for %s booking %d", receipt.Surface, receipt.BookingID)
		}
		return err
	}
	return nil
}

// RecordBooking stores the receipt and its booking.confirmed outbox row in
// one transaction.
func (r *Repository) RecordBooking(ctx context.Context, receipt domain.Receipt) error {
	payload, err := BookingConfirmedPayload(receipt)
	if err != nil {
		return err
	}
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		if err := r.InsertReceipt(ctx, tx, receipt); err != nil {
			return err
		}
		return r.InsertOutbox(ctx, tx, OutboxRecord{
			ID:            uuid.New(),
			AggregateType: "booking",
			AggregateID:   receipt.ID,
			EventType:     EventBookingConfirmed,
			Payload:       payload,
			DedupeKey:     receipt.Surface + ":" + strconv.FormatInt(receipt.BookingID, 10),
		})
	})
}

func (r *Repository) ReceiptsByUser(ctx context.Context, userID string, limit int) ([]domain.Receipt, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, booking_id, surface, user_id, event_id, venue_id, seat_ids, quantity, points_used, total_amount::TEXT, confirmed_at
		FROM booking_receipts WHERE user_id = $1 ORDER BY confirmed_at DESC LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var receipts []domain.Receipt
	for rows.Next() {
		var rec domain.Receipt
		var total string
		if err := rows.Scan(&rec.ID, &rec.BookingID, &rec.Surface, &rec.UserID, &rec.EventID, &rec.VenueID,
			&rec.SeatIDs, &rec.Quantity, &rec.PointsUsed, &total, &rec.ConfirmedAt); err != nil {
			return nil, err
		}
		if rec.TotalAmount, err = decimal.NewFromString(total); err != nil {
			return nil, errors.Wrapf(err, "receipt %s total", rec.ID)
		}
		receipts = append(receipts, rec)
	}
	return receipts, rows.Err()
}
