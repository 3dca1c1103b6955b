package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joshua-takyi/staybook/internal/apperrors"
	"github.com/joshua-takyi/staybook/internal/helpers"
	"github.com/joshua-takyi/staybook/internal/lock"
	"github.com/joshua-takyi/staybook/internal/models"
	"github.com/joshua-takyi/staybook/internal/pricing"
)

type GuestInput struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
}

type CreateBookingInput struct {
	HotelID    uuid.UUID
	RoomTypeID uuid.UUID
	CheckIn    time.Time
	CheckOut   time.Time
	NumGuests  int
	Guest      *GuestInput
}

type BookingScope string

const (
	ScopeAll      BookingScope = "all"
	ScopeUpcoming BookingScope = "upcoming"
	ScopePast     BookingScope = "past"
)

type BookingService struct {
	store        models.BookingStore
	availability *AvailabilityService
	pricing      *pricing.Engine
	locker       lock.Locker
	events       eventRecorder
	logger       *slog.Logger
	now          func() time.Time
}

func NewBookingService(
	store models.BookingStore,
	availability *AvailabilityService,
	engine *pricing.Engine,
	locker lock.Locker,
	eventLog models.EventLog,
	logger *slog.Logger,
) *BookingService {
	return &BookingService{
		store:        store,
		availability: availability,
		pricing:      engine,
		locker:       locker,
		events:       eventRecorder{log: eventLog, logger: logger},
		logger:       logger,
		now:          time.Now,
	}
}

// CreateBooking reserves one room of a room type for [CheckIn, CheckOut).
// The availability check and the insert run under a per room type lock.
func (bs *BookingService) CreateBooking(ctx context.Context, userID uuid.UUID, in CreateBookingInput) (*models.Booking, error) {
	if userID == uuid.Nil {
		return nil, apperrors.ErrUnauthorized
	}
	if in.NumGuests < 1 {
		return nil, apperrors.Validation("num_guests must be at least 1")
	}
	checkIn, checkOut := pricing.TruncateDay(in.CheckIn), pricing.TruncateDay(in.CheckOut)
	if _, err := pricing.ComputeNights(checkIn, checkOut); err != nil {
		return nil, err
	}
	if checkIn.Before(pricing.TruncateDay(bs.now())) {
		return nil, apperrors.Validation("check-in date cannot be in the past")
	}

	var guest *models.BookingGuest
	if in.Guest != nil {
		guest = &models.BookingGuest{
			ID:       uuid.New(),
			FullName: strings.TrimSpace(in.Guest.FullName),
			Email:    strings.TrimSpace(in.Guest.Email),
			Phone:    strings.TrimSpace(in.Guest.Phone),
		}
		if err := models.Validate.Struct(guest); err != nil {
			return nil, apperrors.Validation("guest details are invalid: full_name, a valid email and phone are required")
		}
	}

	roomType, err := bs.store.GetRoomType(ctx, in.RoomTypeID)
	if err != nil {
		if errors.Is(err, models.ErrNoRows) {
			return nil, apperrors.ErrRoomTypeNotFound
		}
		return nil, apperrors.Internal(err)
	}
	if in.HotelID != uuid.Nil && roomType.HotelID != in.HotelID {
		return nil, apperrors.ErrRoomTypeNotFound
	}
	if in.NumGuests > roomType.MaxGuests {
		return nil, apperrors.Validation(fmt.Sprintf("this room type allows at most %d guests", roomType.MaxGuests))
	}

	release, err := bs.locker.Acquire(ctx, lock.RoomTypeKey(roomType.ID.String()))
	if err != nil {
		bs.logger.Warn("Could not acquire booking lock", "room_type_id", roomType.ID, "error", err)
		return nil, apperrors.WithMessage(apperrors.ErrRoomUnavailable, "this room type is being booked right now, please try again")
	}
	defer release()

	avail, err := bs.availability.availabilityFor(ctx, roomType, checkIn, checkOut)
	if err != nil {
		return nil, err
	}
	if avail == nil {
		return nil, apperrors.ErrRoomUnavailable
	}

	nights, totals, err := bs.pricing.Quote(avail.EffectivePricePerNight, checkIn, checkOut)
	if err != nil {
		return nil, err
	}

	now := bs.now().UTC()
	reference, err := helpers.NewBookingReference(now)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to generate booking reference: %w", err))
	}

	booking := &models.Booking{
		ID:               uuid.New(),
		BookingReference: reference,
		UserID:           userID,
		HotelID:          roomType.HotelID,
		RoomTypeID:       roomType.ID,
		CheckInDate:      models.NewDate(checkIn),
		CheckOutDate:     models.NewDate(checkOut),
		NumGuests:        in.NumGuests,
		NumNights:        nights,
		RoomRate:         avail.EffectivePricePerNight,
		Taxes:            totals.Taxes,
		TotalAmount:      totals.Total,
		Status:           models.BookingStatusPending,
		PaymentStatus:    models.PaymentStatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := booking.Validate(); err != nil {
		return nil, apperrors.Internal(err)
	}

	created, err := bs.store.CreateBooking(ctx, booking, guest)
	if err != nil {
		if created == nil {
			bs.logger.Error("Failed to create booking", "user_id", userID, "room_type_id", roomType.ID, "error", err)
			return nil, apperrors.Internal(err)
		}
		// the booking row exists, only the guest contact is missing
		bs.logger.Warn("Booking created without guest details", "booking_id", created.ID, "error", err)
	}

	bs.logger.Info("Booking created",
		"booking_id", created.ID,
		"reference", created.BookingReference,
		"user_id", userID,
		"nights", nights,
		"total", pricing.Display(created.TotalAmount),
	)
	bs.events.record(ctx, created, models.EventBookingCreated, "", string(models.BookingStatusPending), map[string]interface{}{
		"total_amount": pricing.Display(created.TotalAmount),
		"nights":       nights,
	})
	return created, nil
}

// OwnedBooking loads a booking the caller owns. A booking owned by someone
// else is reported exactly like a missing one.
func (bs *BookingService) OwnedBooking(ctx context.Context, userID, bookingID uuid.UUID) (*models.Booking, error) {
	booking, err := bs.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !booking.OwnedBy(userID) {
		bs.logger.Warn("Booking access denied", "booking_id", bookingID, "user_id", userID)
		return nil, apperrors.ErrBookingNotFound
	}
	return booking, nil
}

func (bs *BookingService) loadBooking(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error) {
	if bookingID == uuid.Nil {
		return nil, apperrors.ErrBookingNotFound
	}
	booking, err := bs.store.GetBookingByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, models.ErrNoRows) {
			return nil, apperrors.ErrBookingNotFound
		}
		return nil, apperrors.Internal(err)
	}
	return booking, nil
}

func (bs *BookingService) GetBooking(ctx context.Context, userID, bookingID uuid.UUID) (*models.BookingDetails, error) {
	booking, err := bs.OwnedBooking(ctx, userID, bookingID)
	if err != nil {
		return nil, err
	}
	return bs.details(ctx, booking)
}

func (bs *BookingService) details(ctx context.Context, booking *models.Booking) (*models.BookingDetails, error) {
	details := &models.BookingDetails{Booking: booking}

	payment, err := bs.store.GetPaymentByBooking(ctx, booking.ID)
	switch {
	case err == nil:
		details.Payment = payment
	case !errors.Is(err, models.ErrNoRows):
		return nil, apperrors.Internal(err)
	}

	guest, err := bs.store.GetBookingGuest(ctx, booking.ID)
	switch {
	case err == nil:
		details.Guest = guest
	case !errors.Is(err, models.ErrNoRows):
		return nil, apperrors.Internal(err)
	}

	return details, nil
}

// ListMyBookings returns the caller's bookings, newest first. Upcoming are
// live bookings that have not started; past are finished or cancelled.
func (bs *BookingService) ListMyBookings(ctx context.Context, userID uuid.UUID, scope BookingScope) ([]*models.Booking, error) {
	switch scope {
	case "", ScopeAll, ScopeUpcoming, ScopePast:
	default:
		return nil, apperrors.Validation("scope must be one of all, upcoming, past")
	}

	bookings, err := bs.store.ListBookingsByUser(ctx, userID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	today := pricing.TruncateDay(bs.now())
	out := make([]*models.Booking, 0, len(bookings))
	for _, b := range bookings {
		if !b.OwnedBy(userID) {
			continue
		}
		cancelled := b.Status == models.BookingStatusCancelled
		switch scope {
		case ScopeUpcoming:
			if cancelled || b.CheckInDate.Before(today) {
				continue
			}
		case ScopePast:
			if !cancelled && !b.CheckOutDate.Before(today) {
				continue
			}
		}
		out = append(out, b)
	}
	return out, nil
}

// TransitionStatus moves a booking along the status state machine.
func (bs *BookingService) TransitionStatus(ctx context.Context, bookingID uuid.UUID, next models.BookingStatus) (*models.Booking, error) {
	booking, err := bs.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !booking.Status.CanTransitionTo(next) {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidTransition,
			fmt.Sprintf("cannot change booking status from %s to %s", booking.Status, next))
	}

	ok, err := bs.store.UpdateBookingState(ctx, booking.ID, models.BookingStateChange{
		FromStatus: booking.Status,
		ToStatus:   next,
	})
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if !ok {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidTransition, "booking was modified concurrently, please retry")
	}

	from := booking.Status
	booking.Status = next
	booking.UpdatedAt = bs.now().UTC()
	bs.logger.Info("Booking status changed", "booking_id", booking.ID, "from", from, "to", next)
	bs.events.record(ctx, booking, models.EventStatusChanged, string(from), string(next), nil)
	return booking, nil
}

// TransitionPaymentStatus moves the booking's payment_status along the
// payment state machine without touching the booking status.
func (bs *BookingService) TransitionPaymentStatus(ctx context.Context, bookingID uuid.UUID, next models.PaymentStatus) (*models.Booking, error) {
	booking, err := bs.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !booking.PaymentStatus.CanTransitionTo(next) {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidTransition,
			fmt.Sprintf("cannot change payment status from %s to %s", booking.PaymentStatus, next))
	}

	ok, err := bs.store.UpdateBookingState(ctx, booking.ID, models.BookingStateChange{
		FromStatus:        booking.Status,
		ToStatus:          booking.Status,
		FromPaymentStatus: booking.PaymentStatus,
		ToPaymentStatus:   next,
	})
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if !ok {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidTransition, "booking was modified concurrently, please retry")
	}

	from := booking.PaymentStatus
	booking.PaymentStatus = next
	bs.events.record(ctx, booking, models.EventStatusChanged, "payment:"+string(from), "payment:"+string(next), nil)
	return booking, nil
}
