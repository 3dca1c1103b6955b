package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/joshua-takyi/staybook/internal/apperrors"
	"github.com/joshua-takyi/staybook/internal/models"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type BookingPage struct {
	Bookings []*models.Booking
	Page     int
	Limit    int
	Total    int
}

// AdminService holds the staff operations. Callers must already have been
// checked for the admin role.
type AdminService struct {
	store    models.BookingStore
	bookings *BookingService
	payments *PaymentService
	logger   *slog.Logger
}

func NewAdminService(store models.BookingStore, bookings *BookingService, payments *PaymentService, logger *slog.Logger) *AdminService {
	return &AdminService{
		store:    store,
		bookings: bookings,
		payments: payments,
		logger:   logger,
	}
}

func (as *AdminService) ListBookings(ctx context.Context, status string, page, limit int) (*BookingPage, error) {
	filter := models.BookingFilter{}
	if status != "" {
		s, err := models.ParseBookingStatus(status)
		if err != nil {
			return nil, apperrors.Validation(err.Error())
		}
		filter.Status = s
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	filter.Limit = limit
	filter.Offset = (page - 1) * limit

	bookings, total, err := as.store.ListBookings(ctx, filter)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return &BookingPage{
		Bookings: bookings,
		Page:     page,
		Limit:    limit,
		Total:    total,
	}, nil
}

func (as *AdminService) GetBooking(ctx context.Context, bookingID uuid.UUID) (*models.BookingDetails, error) {
	booking, err := as.bookings.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	return as.bookings.details(ctx, booking)
}

// UpdateBookingStatus is the manual override. Confirmation with payment goes
// through ConfirmCashPayment or gateway verification, and guest refunds
// through cancellation, so staff may only move pending -> confirmed,
// pending -> cancelled and confirmed -> completed here.
func (as *AdminService) UpdateBookingStatus(ctx context.Context, adminID, bookingID uuid.UUID, status string) (*models.Booking, error) {
	next, err := models.ParseBookingStatus(status)
	if err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	current, err := as.bookings.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !adminTransitionAllowed(current.Status, next) {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidTransition,
			fmt.Sprintf("cannot change booking status from %s to %s", current.Status, next))
	}

	updated, err := as.bookings.TransitionStatus(ctx, bookingID, next)
	if err != nil {
		return nil, err
	}
	as.logger.Info("Booking status set by admin",
		"booking_id", bookingID,
		"admin_id", adminID,
		"from", current.Status,
		"to", next,
	)
	return updated, nil
}

func adminTransitionAllowed(from, to models.BookingStatus) bool {
	switch from {
	case models.BookingStatusPending:
		return to == models.BookingStatusConfirmed || to == models.BookingStatusCancelled
	case models.BookingStatusConfirmed:
		return to == models.BookingStatusCompleted
	}
	return false
}

func (as *AdminService) ConfirmCashPayment(ctx context.Context, adminID, bookingID uuid.UUID) (*VerifyResult, error) {
	result, err := as.payments.ConfirmCashPayment(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	as.logger.Info("Cash payment confirmed by admin", "booking_id", bookingID, "admin_id", adminID)
	return result, nil
}

func (as *AdminService) DashboardStats(ctx context.Context) (*models.DashboardStats, error) {
	stats, err := as.store.CountStats(ctx)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return stats, nil
}
