package models

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/supabase-community/postgrest-go"
)

func (su *SupabaseRepo) CreateBooking(ctx context.Context, booking *Booking, guest *BookingGuest) (*Booking, error) {
	data, _, err := su.supabaseClient.From(BookingsTable).
		Insert(booking, false, "", "representation", "exact").
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to insert booking: %w", err)
	}

	var created []Booking
	if err := json.Unmarshal(data, &created); err != nil {
		return nil, fmt.Errorf("failed to unmarshal booking: %w", err)
	}
	if len(created) == 0 {
		return nil, fmt.Errorf("booking insert returned no rows")
	}

	if guest != nil {
		guest.BookingID = created[0].ID
		if _, _, err := su.supabaseClient.From(BookingGuestsTable).
			Insert(guest, false, "", "minimal", "").
			Execute(); err != nil {
			return &created[0], fmt.Errorf("failed to insert booking guest: %w", err)
		}
	}

	return &created[0], nil
}

func (su *SupabaseRepo) GetBookingByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	data, _, err := su.supabaseClient.From(BookingsTable).
		Select("*", "", false).
		Eq("id", id.String()).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}

	var bookings []Booking
	if err := json.Unmarshal(data, &bookings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal booking rows: %w", err)
	}
	if len(bookings) == 0 {
		return nil, ErrNoRows
	}
	return &bookings[0], nil
}

func (su *SupabaseRepo) GetBookingGuest(ctx context.Context, bookingID uuid.UUID) (*BookingGuest, error) {
	data, _, err := su.supabaseClient.From(BookingGuestsTable).
		Select("*", "", false).
		Eq("booking_id", bookingID.String()).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to get booking guest: %w", err)
	}

	var guests []BookingGuest
	if err := json.Unmarshal(data, &guests); err != nil {
		return nil, fmt.Errorf("failed to unmarshal booking guest rows: %w", err)
	}
	if len(guests) == 0 {
		return nil, ErrNoRows
	}
	return &guests[0], nil
}

func (su *SupabaseRepo) ListActiveBookings(ctx context.Context, roomTypeIDs []uuid.UUID, checkIn, checkOut time.Time) ([]*Booking, error) {
	if len(roomTypeIDs) == 0 {
		return []*Booking{}, nil
	}

	// existing.check_in < requested.check_out AND existing.check_out > requested.check_in
	data, _, err := su.supabaseClient.From(BookingsTable).
		Select("*", "", false).
		In("room_type_id", uuidStrings(roomTypeIDs)).
		In("status", []string{string(BookingStatusPending), string(BookingStatusConfirmed)}).
		Lt("check_in_date", checkOut.Format(DateLayout)).
		Gt("check_out_date", checkIn.Format(DateLayout)).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to list overlapping bookings: %w", err)
	}

	var bookings []*Booking
	if err := json.Unmarshal(data, &bookings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal booking rows: %w", err)
	}
	return bookings, nil
}

func (su *SupabaseRepo) ListBookingsByUser(ctx context.Context, userID uuid.UUID) ([]*Booking, error) {
	data, _, err := su.supabaseClient.From(BookingsTable).
		Select("*", "", false).
		Eq("user_id", userID.String()).
		Order("created_at", &postgrest.OrderOpts{Ascending: false}).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to list user bookings: %w", err)
	}

	var bookings []*Booking
	if err := json.Unmarshal(data, &bookings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal booking rows: %w", err)
	}
	return bookings, nil
}

func (su *SupabaseRepo) ListBookings(ctx context.Context, filter BookingFilter) ([]*Booking, int, error) {
	q := su.supabaseClient.From(BookingsTable).Select("*", "exact", false)
	if filter.Status != "" {
		q = q.Eq("status", string(filter.Status))
	}
	data, count, err := q.
		Order("created_at", &postgrest.OrderOpts{Ascending: false}).
		Range(filter.Offset, filter.Offset+filter.Limit-1, "").
		Execute()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list bookings: %w", err)
	}

	var bookings []*Booking
	if err := json.Unmarshal(data, &bookings); err != nil {
		return nil, 0, fmt.Errorf("failed to unmarshal booking rows: %w", err)
	}
	return bookings, int(count), nil
}

func (su *SupabaseRepo) UpdateBookingState(ctx context.Context, id uuid.UUID, change BookingStateChange) (bool, error) {
	updates := map[string]interface{}{
		"status":     change.ToStatus,
		"updated_at": time.Now().UTC(),
	}
	if change.ToPaymentStatus != "" {
		updates["payment_status"] = change.ToPaymentStatus
	}

	q := su.supabaseClient.From(BookingsTable).
		Update(updates, "representation", "exact").
		Eq("id", id.String()).
		Eq("status", string(change.FromStatus))
	if change.FromPaymentStatus != "" {
		q = q.Eq("payment_status", string(change.FromPaymentStatus))
	}

	data, _, err := q.Execute()
	if err != nil {
		return false, fmt.Errorf("failed to update booking state: %w", err)
	}

	var rows []map[string]interface{}
	if err := json.Unmarshal(data, &rows); err != nil {
		return false, fmt.Errorf("failed to unmarshal updated booking: %w", err)
	}
	return len(rows) > 0, nil
}

func (su *SupabaseRepo) CreatePayment(ctx context.Context, payment *Payment) (*Payment, error) {
	data, _, err := su.supabaseClient.From(PaymentsTable).
		Insert(payment, false, "", "representation", "exact").
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to insert payment: %w", err)
	}

	var created []Payment
	if err := json.Unmarshal(data, &created); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payment: %w", err)
	}
	if len(created) == 0 {
		return nil, fmt.Errorf("payment insert returned no rows")
	}
	return &created[0], nil
}

func (su *SupabaseRepo) GetPaymentByBooking(ctx context.Context, bookingID uuid.UUID) (*Payment, error) {
	data, _, err := su.supabaseClient.From(PaymentsTable).
		Select("*", "", false).
		Eq("booking_id", bookingID.String()).
		Order("created_at", &postgrest.OrderOpts{Ascending: false}).
		Limit(1, "").
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}

	var payments []Payment
	if err := json.Unmarshal(data, &payments); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payment rows: %w", err)
	}
	if len(payments) == 0 {
		return nil, ErrNoRows
	}
	return &payments[0], nil
}

func (su *SupabaseRepo) GetPaymentByTransactionID(ctx context.Context, transactionID string) (*Payment, error) {
	data, _, err := su.supabaseClient.From(PaymentsTable).
		Select("*", "", false).
		Eq("transaction_id", transactionID).
		Limit(1, "").
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to get payment by transaction: %w", err)
	}

	var payments []Payment
	if err := json.Unmarshal(data, &payments); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payment rows: %w", err)
	}
	if len(payments) == 0 {
		return nil, ErrNoRows
	}
	return &payments[0], nil
}

func (su *SupabaseRepo) UpdatePayment(ctx context.Context, id uuid.UUID, update PaymentUpdate) (bool, error) {
	data, _, err := su.supabaseClient.From(PaymentsTable).
		Update(update.columns(), "representation", "exact").
		Eq("id", id.String()).
		Eq("payment_status", string(update.FromStatus)).
		Execute()
	if err != nil {
		return false, fmt.Errorf("failed to update payment: %w", err)
	}

	var rows []map[string]interface{}
	if err := json.Unmarshal(data, &rows); err != nil {
		return false, fmt.Errorf("failed to unmarshal updated payment: %w", err)
	}
	return len(rows) > 0, nil
}

// columns lists the payment columns the update touches.
func (u PaymentUpdate) columns() map[string]interface{} {
	cols := map[string]interface{}{
		"payment_status": u.ToStatus,
	}
	if u.Method != "" {
		cols["payment_method"] = u.Method
	}
	if u.TransactionID != "" {
		cols["transaction_id"] = u.TransactionID
	}
	if u.PaymentDetails != nil {
		cols["payment_details"] = u.PaymentDetails
	}
	return cols
}
