package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/robertarktes/seatcheckout/internal/domain"
	"github.com/robertarktes/seatcheckout/internal/observability"
)

const (
	ActionCommitted = "checkout.committed"
	ActionFailed    = "checkout.failed"
)

type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection("checkout_audit"),
		logger: logger,
	}
}

type AuditLog struct {
	ID        uuid.UUID `bson:"_id"`
	Action    string    `bson:"action"`
	UserID    string    `bson:"user_id"`
	Surface   string    `bson:"surface"`
	Timestamp time.Time `bson:"timestamp"`
	Data      bson.M    `bson:"data"`
}

func (a *AuditLogger) LogEvent(ctx context.Context, action, userID, surface string, data map[string]interface{}) error {
	log := AuditLog{
		ID:        uuid.New(),
		Action:    action,
		UserID:    userID,
		Surface:   surface,
		Timestamp: time.Now().UTC(),
		Data:      bson.M(data),
	}
	_, err := a.coll.InsertOne(ctx, log)
	if err != nil {
		a.logger.Error("failed to insert audit log: ", err)
		return err
	}
	return nil
}

func (a *AuditLogger) LogCommit(ctx context.Context, receipt domain.Receipt) error {
	data := map[string]interface{}{
		"receipt_id":   receipt.ID.String(),
		"booking_id":   receipt.BookingID,
		"seat_ids":     receipt.SeatIDs,
		"quantity":     receipt.Quantity,
		"points_used":  receipt.PointsUsed,
		"total_amount": receipt.TotalAmount.String(),
	}
	if receipt.EventID != nil {
		data["event_id"] = *receipt.EventID
	}
	if receipt.VenueID != nil {
		data["venue_id"] = *receipt.VenueID
	}
	return a.LogEvent(ctx, ActionCommitted, receipt.UserID, receipt.Surface, data)
}

// LogFailure records a rejected checkout with the message shown to the buyer.
func (a *AuditLogger) LogFailure(ctx context.Context, userID, surface string, cause error) error {
	return a.LogEvent(ctx, ActionFailed, userID, surface, map[string]interface{}{
		"error": cause.Error(),
	})
}

// Recent lists the newest audit entries for a user.
func (a *AuditLogger) Recent(ctx context.Context, userID string, limit int64) ([]AuditLog, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}).SetLimit(limit)
	cur, err := a.coll.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	var logs []AuditLog
	if err := cur.All(ctx, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}
