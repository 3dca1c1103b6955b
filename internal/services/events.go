package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/joshua-takyi/staybook/internal/models"
)

// eventRecorder appends lifecycle events best-effort. A nil log disables it.
type eventRecorder struct {
	log    models.EventLog
	logger *slog.Logger
}

func (er eventRecorder) record(ctx context.Context, booking *models.Booking, eventType models.BookingEventType, from, to string, data map[string]interface{}) {
	if er.log == nil || booking == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()

	event := &models.BookingEvent{
		BookingID: booking.ID.String(),
		UserID:    booking.UserID.String(),
		Type:      eventType,
		From:      from,
		To:        to,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}
	if err := er.log.AppendBookingEvent(ctx, event); err != nil {
		er.logger.Warn("Failed to record booking event",
			"booking_id", booking.ID,
			"type", eventType,
			"error", err,
		)
	}
}
