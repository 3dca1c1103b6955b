package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/joshua-takyi/staybook/internal/models"
	"github.com/joshua-takyi/staybook/internal/notify"
	"github.com/shopspring/decimal"
)

const (
	notificationBookingConfirmed = "booking_confirmed"

	maxNotificationAttempts = 5
	outboxBatchSize         = 50
)

type notificationStore interface {
	GetBookingByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	GetBookingGuest(ctx context.Context, bookingID uuid.UUID) (*models.BookingGuest, error)
	GetHotel(ctx context.Context, id uuid.UUID) (*models.Hotel, error)
	GetRoomType(ctx context.Context, id uuid.UUID) (*models.RoomType, error)
	GetProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error)
}

// NotificationDispatcher sends booking confirmations. Delivery is
// best-effort: failures are logged and parked in the outbox, never returned
// to the payment flow.
type NotificationDispatcher struct {
	store    notificationStore
	sender   notify.Sender
	outbox   models.NotificationOutbox
	taxRate  decimal.Decimal
	currency string
	timeout  time.Duration
	logger   *slog.Logger
	now      func() time.Time

	inflight sync.WaitGroup
}

func NewNotificationDispatcher(
	store notificationStore,
	sender notify.Sender,
	outbox models.NotificationOutbox,
	taxRate decimal.Decimal,
	currency string,
	logger *slog.Logger,
) *NotificationDispatcher {
	return &NotificationDispatcher{
		store:    store,
		sender:   sender,
		outbox:   outbox,
		taxRate:  taxRate,
		currency: currency,
		timeout:  15 * time.Second,
		logger:   logger,
		now:      time.Now,
	}
}

// BookingConfirmed sends the confirmation for a booking in the background
// and returns at once. A failed first attempt is parked in the outbox.
func (nd *NotificationDispatcher) BookingConfirmed(ctx context.Context, bookingID uuid.UUID) {
	ctx = context.WithoutCancel(ctx)
	nd.inflight.Add(1)
	go func() {
		defer nd.inflight.Done()

		sendCtx, cancel := context.WithTimeout(ctx, nd.timeout)
		defer cancel()

		if err := nd.deliver(sendCtx, bookingID); err != nil {
			nd.logger.Error("Failed to send booking confirmation",
				"booking_id", bookingID,
				"error", err,
			)
			nd.park(ctx, bookingID, err)
		}
	}()
}

// Wait blocks until every confirmation started by BookingConfirmed has been
// sent or parked.
func (nd *NotificationDispatcher) Wait() {
	nd.inflight.Wait()
}

func (nd *NotificationDispatcher) park(ctx context.Context, bookingID uuid.UUID, cause error) {
	if nd.outbox == nil {
		return
	}
	entry := &models.OutboxEntry{
		BookingID:   bookingID.String(),
		Kind:        notificationBookingConfirmed,
		Attempts:    1,
		LastError:   cause.Error(),
		NextAttempt: nd.now().UTC().Add(backoff(1)),
	}
	if err := nd.outbox.EnqueueNotification(ctx, entry); err != nil {
		nd.logger.Error("Failed to enqueue notification", "booking_id", bookingID, "error", err)
	}
}

// RetryDue re-sends parked confirmations whose retry time has come.
func (nd *NotificationDispatcher) RetryDue(ctx context.Context) (int, error) {
	if nd.outbox == nil {
		return 0, nil
	}

	entries, err := nd.outbox.DueNotifications(ctx, nd.now().UTC(), outboxBatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to load due notifications: %w", err)
	}

	sent := 0
	for _, entry := range entries {
		bookingID, err := uuid.Parse(entry.BookingID)
		if err != nil {
			nd.logger.Warn("Dropping outbox entry with bad booking id", "id", entry.ID.Hex(), "booking_id", entry.BookingID)
			if markErr := nd.outbox.MarkNotificationFailed(ctx, entry.ID, entry.Attempts, "invalid booking id", nd.now().UTC(), true); markErr != nil {
				nd.logger.Error("Failed to update outbox entry", "id", entry.ID.Hex(), "error", markErr)
			}
			continue
		}

		sendCtx, cancel := context.WithTimeout(ctx, nd.timeout)
		err = nd.deliver(sendCtx, bookingID)
		cancel()

		if err == nil {
			if markErr := nd.outbox.MarkNotificationSent(ctx, entry.ID); markErr != nil {
				nd.logger.Error("Failed to mark notification sent", "id", entry.ID.Hex(), "error", markErr)
			}
			sent++
			continue
		}

		attempts := entry.Attempts + 1
		dead := attempts >= maxNotificationAttempts
		next := nd.now().UTC().Add(backoff(attempts))
		if markErr := nd.outbox.MarkNotificationFailed(ctx, entry.ID, attempts, err.Error(), next, dead); markErr != nil {
			nd.logger.Error("Failed to update outbox entry", "id", entry.ID.Hex(), "error", markErr)
		}
		nd.logger.Warn("Notification retry failed",
			"booking_id", bookingID,
			"attempts", attempts,
			"dead", dead,
			"error", err,
		)
	}
	return sent, nil
}

// backoff doubles from one minute and caps at an hour.
func backoff(attempts int) time.Duration {
	d := time.Minute
	for i := 1; i < attempts && d < time.Hour; i++ {
		d *= 2
	}
	if d > time.Hour {
		d = time.Hour
	}
	return d
}

func (nd *NotificationDispatcher) deliver(ctx context.Context, bookingID uuid.UUID) error {
	booking, err := nd.store.GetBookingByID(ctx, bookingID)
	if err != nil {
		return fmt.Errorf("load booking: %w", err)
	}
	hotel, err := nd.store.GetHotel(ctx, booking.HotelID)
	if err != nil {
		return fmt.Errorf("load hotel: %w", err)
	}
	roomType, err := nd.store.GetRoomType(ctx, booking.RoomTypeID)
	if err != nil {
		return fmt.Errorf("load room type: %w", err)
	}

	name, email, err := nd.recipient(ctx, booking)
	if err != nil {
		return err
	}

	subtotal := booking.RoomRate.Mul(decimal.NewFromInt(int64(booking.NumNights)))
	msg, err := notify.BuildConfirmation(notify.Confirmation{
		GuestName:    name,
		GuestEmail:   email,
		Reference:    booking.BookingReference,
		HotelName:    hotel.Name,
		HotelAddress: hotel.Address,
		HotelPhone:   hotel.Phone,
		HotelEmail:   hotel.Email,
		RoomTypeName: roomType.Name,
		CheckIn:      booking.CheckInDate.Time,
		CheckOut:     booking.CheckOutDate.Time,
		Nights:       booking.NumNights,
		Guests:       booking.NumGuests,
		RoomRate:     booking.RoomRate,
		Subtotal:     subtotal,
		Taxes:        booking.Taxes,
		TaxRate:      nd.taxRate,
		Total:        booking.TotalAmount,
		Currency:     nd.currency,
	})
	if err != nil {
		return err
	}

	return nd.sender.Send(ctx, msg)
}

// recipient prefers the stay contact and falls back to the account profile.
func (nd *NotificationDispatcher) recipient(ctx context.Context, booking *models.Booking) (string, string, error) {
	guest, err := nd.store.GetBookingGuest(ctx, booking.ID)
	if err == nil && guest.Email != "" {
		return guest.FullName, guest.Email, nil
	}
	if err != nil && !errors.Is(err, models.ErrNoRows) {
		return "", "", fmt.Errorf("load booking guest: %w", err)
	}

	profile, err := nd.store.GetProfile(ctx, booking.UserID)
	if err != nil {
		return "", "", fmt.Errorf("load profile: %w", err)
	}
	if profile.Email == "" {
		return "", "", fmt.Errorf("no email address for booking %s", booking.ID)
	}
	return profile.FullName, profile.Email, nil
}
