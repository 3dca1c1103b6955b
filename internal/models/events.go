package models

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	BookingEventsColName = "booking_events"
	OutboxColName        = "notification_outbox"

	bookingEventTTL = 180 * 24 * time.Hour
)

type BookingEventType string

const (
	EventBookingCreated   BookingEventType = "created"
	EventPaymentInitiated BookingEventType = "payment_initiated"
	EventPaymentVerified  BookingEventType = "payment_verified"
	EventCashConfirmed    BookingEventType = "cash_confirmed"
	EventBookingCancelled BookingEventType = "cancelled"
	EventStatusChanged    BookingEventType = "status_changed"
)

type BookingEvent struct {
	ID        primitive.ObjectID     `bson:"_id,omitempty" json:"id"`
	BookingID string                 `bson:"booking_id" json:"booking_id"`
	UserID    string                 `bson:"user_id,omitempty" json:"user_id,omitempty"`
	Type      BookingEventType       `bson:"type" json:"type"`
	From      string                 `bson:"from,omitempty" json:"from,omitempty"`
	To        string                 `bson:"to,omitempty" json:"to,omitempty"`
	Data      map[string]interface{} `bson:"data,omitempty" json:"data,omitempty"`
	CreatedAt time.Time              `bson:"created_at" json:"created_at"`
	ExpiresAt time.Time              `bson:"expires_at" json:"expires_at"` // TTL index field
}

type OutboxStatus string

const (
	OutboxPending OutboxStatus = "pending"
	OutboxSent    OutboxStatus = "sent"
	OutboxDead    OutboxStatus = "dead"
)

// OutboxEntry is a confirmation that could not be delivered inline.
type OutboxEntry struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	BookingID   string             `bson:"booking_id" json:"booking_id"`
	Kind        string             `bson:"kind" json:"kind"`
	Status      OutboxStatus       `bson:"status" json:"status"`
	Attempts    int                `bson:"attempts" json:"attempts"`
	LastError   string             `bson:"last_error,omitempty" json:"last_error,omitempty"`
	NextAttempt time.Time          `bson:"next_attempt" json:"next_attempt"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time          `bson:"updated_at" json:"updated_at"`
}

type EventLog interface {
	AppendBookingEvent(ctx context.Context, event *BookingEvent) error
}

type NotificationOutbox interface {
	EnqueueNotification(ctx context.Context, entry *OutboxEntry) error
	DueNotifications(ctx context.Context, now time.Time, limit int) ([]*OutboxEntry, error)
	MarkNotificationSent(ctx context.Context, id primitive.ObjectID) error
	MarkNotificationFailed(ctx context.Context, id primitive.ObjectID, attempts int, lastErr string, next time.Time, dead bool) error
}

// EnsureIndexes creates the TTL index on the event log and the lookup index
// the outbox job scans.
func (mdb *MongodbRepo) EnsureIndexes(ctx context.Context) error {
	events, err := mdb.GetCollection(ctx, BookingEventsColName)
	if err != nil {
		return fmt.Errorf("error getting collection: %v", err)
	}

	_, err = events.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().
				SetExpireAfterSeconds(0).
				SetName("expires_at_ttl"),
		},
		{
			Keys: bson.D{
				{Key: "booking_id", Value: 1},
				{Key: "created_at", Value: -1},
			},
			Options: options.Index().SetName("booking_created_at_idx"),
		},
	})
	if err != nil {
		return fmt.Errorf("error creating event indexes: %v", err)
	}

	outbox, err := mdb.GetCollection(ctx, OutboxColName)
	if err != nil {
		return fmt.Errorf("error getting collection: %v", err)
	}

	_, err = outbox.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "status", Value: 1},
				{Key: "next_attempt", Value: 1},
			},
			Options: options.Index().SetName("status_next_attempt_idx"),
		},
	})
	if err != nil {
		return fmt.Errorf("error creating outbox indexes: %v", err)
	}

	return nil
}

func (mdb *MongodbRepo) AppendBookingEvent(ctx context.Context, event *BookingEvent) error {
	col, err := mdb.GetCollection(ctx, BookingEventsColName)
	if err != nil {
		return fmt.Errorf("error getting collection: %v", err)
	}

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	event.ExpiresAt = event.CreatedAt.Add(bookingEventTTL)

	res, err := col.InsertOne(ctx, event)
	if err != nil {
		return fmt.Errorf("error inserting booking event: %v", err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		event.ID = oid
	}
	return nil
}

func (mdb *MongodbRepo) EnqueueNotification(ctx context.Context, entry *OutboxEntry) error {
	col, err := mdb.GetCollection(ctx, OutboxColName)
	if err != nil {
		return fmt.Errorf("error getting collection: %v", err)
	}

	now := time.Now().UTC()
	entry.Status = OutboxPending
	entry.CreatedAt = now
	entry.UpdatedAt = now
	if entry.NextAttempt.IsZero() {
		entry.NextAttempt = now
	}

	res, err := col.InsertOne(ctx, entry)
	if err != nil {
		return fmt.Errorf("error enqueuing notification: %v", err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		entry.ID = oid
	}
	return nil
}

func (mdb *MongodbRepo) DueNotifications(ctx context.Context, now time.Time, limit int) ([]*OutboxEntry, error) {
	col, err := mdb.GetCollection(ctx, OutboxColName)
	if err != nil {
		return nil, fmt.Errorf("error getting collection: %v", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "next_attempt", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := col.Find(ctx, bson.M{
		"status":       OutboxPending,
		"next_attempt": bson.M{"$lte": now},
	}, opts)
	if err != nil {
		return nil, fmt.Errorf("error finding due notifications: %v", err)
	}
	defer cursor.Close(ctx)

	var entries []*OutboxEntry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("error decoding due notifications: %v", err)
	}
	return entries, nil
}

func (mdb *MongodbRepo) MarkNotificationSent(ctx context.Context, id primitive.ObjectID) error {
	col, err := mdb.GetCollection(ctx, OutboxColName)
	if err != nil {
		return fmt.Errorf("error getting collection: %v", err)
	}

	_, err = col.UpdateByID(ctx, id, bson.M{"$set": bson.M{
		"status":     OutboxSent,
		"updated_at": time.Now().UTC(),
	}})
	if err != nil {
		return fmt.Errorf("error marking notification sent: %v", err)
	}
	return nil
}

func (mdb *MongodbRepo) MarkNotificationFailed(ctx context.Context, id primitive.ObjectID, attempts int, lastErr string, next time.Time, dead bool) error {
	col, err := mdb.GetCollection(ctx, OutboxColName)
	if err != nil {
		return fmt.Errorf("error getting collection: %v", err)
	}

	status := OutboxPending
	if dead {
		status = OutboxDead
	}

	_, err = col.UpdateByID(ctx, id, bson.M{"$set": bson.M{
		"status":       status,
		"attempts":     attempts,
		"last_error":   lastErr,
		"next_attempt": next,
		"updated_at":   time.Now().UTC(),
	}})
	if err != nil {
		return fmt.Errorf("error marking notification failed: %v", err)
	}
	return nil
}

var (
	_ EventLog           = (*MongodbRepo)(nil)
	_ NotificationOutbox = (*MongodbRepo)(nil)
)
