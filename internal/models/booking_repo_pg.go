package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func firstOrNoRows(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNoRows
	}
	return err
}

func (pg *PostgresRepo) GetHotel(ctx context.Context, id uuid.UUID) (*Hotel, error) {
	var hotel Hotel
	if err := pg.db.WithContext(ctx).First(&hotel, "id = ?", id).Error; err != nil {
		return nil, firstOrNoRows(err)
	}
	return &hotel, nil
}

func (pg *PostgresRepo) GetRoomType(ctx context.Context, id uuid.UUID) (*RoomType, error) {
	var roomType RoomType
	if err := pg.db.WithContext(ctx).First(&roomType, "id = ?", id).Error; err != nil {
		return nil, firstOrNoRows(err)
	}
	return &roomType, nil
}

func (pg *PostgresRepo) ListRoomTypesForHotel(ctx context.Context, hotelID uuid.UUID, minGuests int) ([]*RoomType, error) {
	var roomTypes []*RoomType
	err := pg.db.WithContext(ctx).
		Where("hotel_id = ? AND max_guests >= ?", hotelID, minGuests).
		Find(&roomTypes).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list room types: %w", err)
	}
	return roomTypes, nil
}

func (pg *PostgresRepo) ListRoomsForRoomTypes(ctx context.Context, roomTypeIDs []uuid.UUID, status RoomStatus) ([]*Room, error) {
	rooms := []*Room{}
	if len(roomTypeIDs) == 0 {
		return rooms, nil
	}
	err := pg.db.WithContext(ctx).
		Where("room_type_id IN ? AND status = ?", roomTypeIDs, status).
		Find(&rooms).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	return rooms, nil
}

func (pg *PostgresRepo) ListRoomAvailability(ctx context.Context, roomIDs []uuid.UUID, from, to time.Time) ([]*RoomAvailability, error) {
	overrides := []*RoomAvailability{}
	if len(roomIDs) == 0 {
		return overrides, nil
	}
	err := pg.db.WithContext(ctx).
		Where("room_id IN ? AND date >= ? AND date < ?", roomIDs, from.Format(DateLayout), to.Format(DateLayout)).
		Find(&overrides).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list room availability: %w", err)
	}
	return overrides, nil
}

func (pg *PostgresRepo) GetProfile(ctx context.Context, id uuid.UUID) (*Profile, error) {
	var profile Profile
	if err := pg.db.WithContext(ctx).First(&profile, "id = ?", id).Error; err != nil {
		return nil, firstOrNoRows(err)
	}
	return &profile, nil
}

// CreateBooking writes the booking and its guest row in one transaction.
func (pg *PostgresRepo) CreateBooking(ctx context.Context, booking *Booking, guest *BookingGuest) (*Booking, error) {
	err := pg.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(booking).Error; err != nil {
			return fmt.Errorf("failed to insert booking: %w", err)
		}
		if guest != nil {
			guest.BookingID = booking.ID
			if err := tx.Create(guest).Error; err != nil {
				return fmt.Errorf("failed to insert booking guest: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return booking, nil
}

func (pg *PostgresRepo) GetBookingByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	var booking Booking
	if err := pg.db.WithContext(ctx).First(&booking, "id = ?", id).Error; err != nil {
		return nil, firstOrNoRows(err)
	}
	return &booking, nil
}

func (pg *PostgresRepo) GetBookingGuest(ctx context.Context, bookingID uuid.UUID) (*BookingGuest, error) {
	var guest BookingGuest
	if err := pg.db.WithContext(ctx).First(&guest, "booking_id = ?", bookingID).Error; err != nil {
		return nil, firstOrNoRows(err)
	}
	return &guest, nil
}

func (pg *PostgresRepo) ListActiveBookings(ctx context.Context, roomTypeIDs []uuid.UUID, checkIn, checkOut time.Time) ([]*Booking, error) {
	bookings := []*Booking{}
	if len(roomTypeIDs) == 0 {
		return bookings, nil
	}
	err := pg.db.WithContext(ctx).
		Where("room_type_id IN ?", roomTypeIDs).
		Where("status IN ?", []BookingStatus{BookingStatusPending, BookingStatusConfirmed}).
		Where("check_in_date < ? AND check_out_date > ?", checkOut.Format(DateLayout), checkIn.Format(DateLayout)).
		Find(&bookings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list overlapping bookings: %w", err)
	}
	return bookings, nil
}

func (pg *PostgresRepo) ListBookingsByUser(ctx context.Context, userID uuid.UUID) ([]*Booking, error) {
	var bookings []*Booking
	err := pg.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&bookings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list user bookings: %w", err)
	}
	return bookings, nil
}

func (pg *PostgresRepo) ListBookings(ctx context.Context, filter BookingFilter) ([]*Booking, int, error) {
	tx := pg.db.WithContext(ctx).Model(&Booking{})
	if filter.Status != "" {
		tx = tx.Where("status = ?", filter.Status)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count bookings: %w", err)
	}

	var bookings []*Booking
	err := tx.Order("created_at DESC").
		Offset(filter.Offset).
		Limit(filter.Limit).
		Find(&bookings).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list bookings: %w", err)
	}
	return bookings, int(total), nil
}

func (pg *PostgresRepo) UpdateBookingState(ctx context.Context, id uuid.UUID, change BookingStateChange) (bool, error) {
	updates := map[string]interface{}{
		"status":     change.ToStatus,
		"updated_at": time.Now().UTC(),
	}
	if change.ToPaymentStatus != "" {
		updates["payment_status"] = change.ToPaymentStatus
	}

	tx := pg.db.WithContext(ctx).Model(&Booking{}).
		Where("id = ? AND status = ?", id, change.FromStatus)
	if change.FromPaymentStatus != "" {
		tx = tx.Where("payment_status = ?", change.FromPaymentStatus)
	}

	res := tx.Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("failed to update booking state: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (pg *PostgresRepo) CountStats(ctx context.Context) (*DashboardStats, error) {
	stats := &DashboardStats{}
	db := pg.db.WithContext(ctx)
	if err := db.Model(&Hotel{}).Count(&stats.Hotels).Error; err != nil {
		return nil, fmt.Errorf("failed to count hotels: %w", err)
	}
	if err := db.Model(&RoomType{}).Count(&stats.RoomTypes).Error; err != nil {
		return nil, fmt.Errorf("failed to count room types: %w", err)
	}
	if err := db.Model(&Booking{}).Count(&stats.Bookings).Error; err != nil {
		return nil, fmt.Errorf("failed to count bookings: %w", err)
	}
	if err := db.Model(&Booking{}).Where("status = ?", BookingStatusPending).Count(&stats.PendingBookings).Error; err != nil {
		return nil, fmt.Errorf("failed to count pending bookings: %w", err)
	}
	return stats, nil
}

func (pg *PostgresRepo) CreatePayment(ctx context.Context, payment *Payment) (*Payment, error) {
	if err := pg.db.WithContext(ctx).Create(payment).Error; err != nil {
		return nil, fmt.Errorf("failed to insert payment: %w", err)
	}
	return payment, nil
}

func (pg *PostgresRepo) GetPaymentByBooking(ctx context.Context, bookingID uuid.UUID) (*Payment, error) {
	var payment Payment
	err := pg.db.WithContext(ctx).
		Where("booking_id = ?", bookingID).
		Order("created_at DESC").
		First(&payment).Error
	if err != nil {
		return nil, firstOrNoRows(err)
	}
	return &payment, nil
}

func (pg *PostgresRepo) GetPaymentByTransactionID(ctx context.Context, transactionID string) (*Payment, error) {
	var payment Payment
	err := pg.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		First(&payment).Error
	if err != nil {
		return nil, firstOrNoRows(err)
	}
	return &payment, nil
}

func (pg *PostgresRepo) UpdatePayment(ctx context.Context, id uuid.UUID, update PaymentUpdate) (bool, error) {
	cols := update.columns()
	if update.PaymentDetails != nil {
		cols["payment_details"] = datatypes.JSONMap(update.PaymentDetails)
	}

	res := pg.db.WithContext(ctx).Model(&Payment{}).
		Where("id = ? AND payment_status = ?", id, update.FromStatus).
		Updates(cols)
	if res.Error != nil {
		return false, fmt.Errorf("failed to update payment: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}
