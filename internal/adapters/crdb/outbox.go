package crdb

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/robertarktes/seatcheckout/internal/domain"
)

const EventBookingConfirmed = "booking.confirmed"

type OutboxRecord struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   uuid.UUID
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Status        string // NEW, PUBLISHED, FAILED
	DedupeKey     string
}

// BookingConfirmed is the body of a booking.confirmed event.
type BookingConfirmed struct {
	ReceiptID   uuid.UUID `json:"receipt_id"`
	BookingID   int64     `json:"booking_id"`
	Surface     string    `json:"surface"`
	UserID      string    `json:"user_id"`
	EventID     *int64    `json:"event_id,omitempty"`
	VenueID     *int64    `json:"venue_id,omitempty"`
	SeatIDs     []int64   `json:"seat_ids,omitempty"`
	Quantity    int       `json:"quantity"`
	PointsUsed  int64     `json:"points_used"`
	TotalAmount string    `json:"total_amount"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

func BookingConfirmedPayload(r domain.Receipt) ([]byte, error) {
	return json.Marshal(BookingConfirmed{
		ReceiptID:   r.ID,
		BookingID:   r.BookingID,
		Surface:     r.Surface,
		UserID:      r.UserID,
		EventID:     r.EventID,
		VenueID:     r.VenueID,
		SeatIDs:     r.SeatIDs,
		Quantity:    r.Quantity,
		PointsUsed:  r.PointsUsed,
		TotalAmount: r.TotalAmount.String(),
		ConfirmedAt: r.ConfirmedAt.UTC(),
	})
}

func (r *Repository) InsertOutbox(ctx context.Context, tx pgx.Tx, record OutboxRecord) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload_json, status, dedupe_key)
		VALUES ($1, $2, $3, $4, $5, 'NEW', $6)
	`, record.ID, record.AggregateType, record.AggregateID, record.EventType, record.Payload, record.DedupeKey)
	return err
}

// ClaimOutbox locks up to limit unpublished rows inside tx. Concurrent relays
// skip rows another relay already holds.
func (r *Repository) ClaimOutbox(ctx context.Context, tx pgx.Tx, limit int) ([]OutboxRecord, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload_json, created_at, published_at, status, dedupe_key
		FROM outbox WHERE status = 'NEW' ORDER BY created_at ASC LIMIT $1 FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []OutboxRecord
	for rows.Next() {
		var rec OutboxRecord
		err := rows.Scan(&rec.ID, &rec.AggregateType, &rec.AggregateID, &rec.EventType, &rec.Payload, &rec.CreatedAt, &rec.PublishedAt, &rec.Status, &rec.DedupeKey)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *Repository) MarkPublished(ctx context.Context, tx pgx.Tx, id uuid.UUID, publishedAt time.Time) error {
	_, err := tx.Exec(ctx, `
		UPDATE outbox SET status = 'PUBLISHED', published_at = $2 WHERE id = $1
	`, id, publishedAt)
	return err
}

// OldestPending is the creation time of the oldest unpublished row, if any.
func (r *Repository) OldestPending(ctx context.Context) (time.Time, bool, error) {
	var created *time.Time
	err := r.pool.QueryRow(ctx, `SELECT min(created_at) FROM outbox WHERE status = 'NEW'`).Scan(&created)
	if err != nil || created == nil {
		return time.Time{}, false, err
	}
	return *created, true, nil
}
