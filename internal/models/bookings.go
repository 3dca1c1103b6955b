package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCompleted BookingStatus = "completed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

func ParseBookingStatus(s string) (BookingStatus, error) {
	status := BookingStatus(strings.ToLower(strings.TrimSpace(s)))
	switch status {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusCompleted, BookingStatusCancelled:
		return status, nil
	}
	return "", fmt.Errorf("unknown booking status %q", s)
}

// Terminal reports whether no further transitions are possible.
func (s BookingStatus) Terminal() bool {
	switch s {
	case BookingStatusCompleted, BookingStatusCancelled:
		return true
	case BookingStatusPending, BookingStatusConfirmed:
		return false
	}
	return false
}

// CanTransitionTo applies the booking state machine:
//
//	pending   -> confirmed | cancelled
//	confirmed -> completed | cancelled
//	completed, cancelled are terminal
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	switch s {
	case BookingStatusPending:
		return next == BookingStatusConfirmed || next == BookingStatusCancelled
	case BookingStatusConfirmed:
		return next == BookingStatusCompleted || next == BookingStatusCancelled
	case BookingStatusCompleted, BookingStatusCancelled:
		return false
	}
	return false
}

// Occupying reports whether a booking in this status holds inventory.
func (s BookingStatus) Occupying() bool {
	return s == BookingStatusPending || s == BookingStatusConfirmed
}

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// ParsePaymentStatus accepts the legacy spellings written by older clients.
func ParsePaymentStatus(s string) (PaymentStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending":
		return PaymentStatusPending, nil
	case "completed", "paid", "success":
		return PaymentStatusCompleted, nil
	case "refunded":
		return PaymentStatusRefunded, nil
	case "failed":
		return PaymentStatusFailed, nil
	}
	return "", fmt.Errorf("unknown payment status %q", s)
}

func (s *PaymentStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == "" {
		*s = ""
		return nil
	}
	parsed, err := ParsePaymentStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// CanTransitionTo applies the payment state machine:
//
//	pending   -> completed | failed
//	completed -> refunded
//	refunded, failed are terminal
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	switch s {
	case PaymentStatusPending:
		return next == PaymentStatusCompleted || next == PaymentStatusFailed
	case PaymentStatusCompleted:
		return next == PaymentStatusRefunded
	case PaymentStatusRefunded, PaymentStatusFailed:
		return false
	}
	return false
}

type Booking struct {
	ID               uuid.UUID       `json:"id" gorm:"type:uuid;primaryKey"`
	BookingReference string          `json:"booking_reference" gorm:"uniqueIndex"`
	UserID           uuid.UUID       `json:"user_id" gorm:"type:uuid;index"`
	HotelID          uuid.UUID       `json:"hotel_id" gorm:"type:uuid"`
	RoomTypeID       uuid.UUID       `json:"room_type_id" gorm:"type:uuid;index"`
	RoomID           *uuid.UUID      `json:"room_id" gorm:"type:uuid"`
	CheckInDate      Date            `json:"check_in_date" gorm:"type:date"`
	CheckOutDate     Date            `json:"check_out_date" gorm:"type:date"`
	NumGuests        int             `json:"num_guests"`
	NumNights        int             `json:"num_nights"`
	RoomRate         decimal.Decimal `json:"room_rate" gorm:"type:numeric"`
	Taxes            decimal.Decimal `json:"taxes" gorm:"type:numeric"`
	TotalAmount      decimal.Decimal `json:"total_amount" gorm:"type:numeric"`
	Status           BookingStatus   `json:"status"`
	PaymentStatus    PaymentStatus   `json:"payment_status"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func (Booking) TableName() string { return BookingsTable }

// Validate checks the stored totals against the pricing invariant
// total = rate*nights + taxes.
func (b *Booking) Validate() error {
	if b.NumNights < 1 {
		return fmt.Errorf("invalid booking: num_nights must be at least 1")
	}
	if b.NumGuests < 1 {
		return fmt.Errorf("invalid booking: num_guests must be at least 1")
	}
	if !b.CheckOutDate.After(b.CheckInDate.Time) {
		return fmt.Errorf("invalid booking: check_out_date must be after check_in_date")
	}
	subtotal := b.RoomRate.Mul(decimal.NewFromInt(int64(b.NumNights)))
	if !subtotal.Add(b.Taxes).Equal(b.TotalAmount) {
		return fmt.Errorf("invalid booking: total_amount does not match room_rate*num_nights+taxes")
	}
	return nil
}

// OverlapsRange uses half-open intervals, so the check-out day is free.
func (b *Booking) OverlapsRange(checkIn, checkOut time.Time) bool {
	return b.CheckInDate.Before(checkOut) && b.CheckOutDate.After(checkIn)
}

// OwnedBy is the row-level ownership check.
func (b *Booking) OwnedBy(userID uuid.UUID) bool {
	return userID != uuid.Nil && b.UserID == userID
}

type BookingGuest struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	BookingID uuid.UUID `json:"booking_id" gorm:"type:uuid;index"`
	FullName  string    `json:"full_name" validate:"required,max=200"`
	Email     string    `json:"email" validate:"required,email"`
	Phone     string    `json:"phone" validate:"required,min=5,max=32"`
	CreatedAt time.Time `json:"created_at"`
}

func (BookingGuest) TableName() string { return BookingGuestsTable }

// BookingDetails is a booking with its payment and guest contact.
type BookingDetails struct {
	*Booking
	Payment *Payment      `json:"payment,omitempty"`
	Guest   *BookingGuest `json:"guest,omitempty"`
}

// BookingStateChange is a compare-and-set on a booking row. The update only
// applies when the row still has FromStatus (and FromPaymentStatus, if set).
type BookingStateChange struct {
	FromStatus        BookingStatus
	ToStatus          BookingStatus
	FromPaymentStatus PaymentStatus
	ToPaymentStatus   PaymentStatus
}

type BookingFilter struct {
	Status BookingStatus
	Offset int
	Limit  int
}
