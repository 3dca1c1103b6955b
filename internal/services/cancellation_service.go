package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joshua-takyi/staybook/internal/apperrors"
	"github.com/joshua-takyi/staybook/internal/gateway"
	"github.com/joshua-takyi/staybook/internal/models"
	"github.com/joshua-takyi/staybook/internal/pricing"
	"github.com/shopspring/decimal"
)

const maxReasonLength = 500

type CancellationResult struct {
	BookingID         uuid.UUID            `json:"booking_id"`
	Status            models.BookingStatus `json:"status"`
	PaymentStatus     models.PaymentStatus `json:"payment_status"`
	RefundAmount      decimal.Decimal      `json:"refund_amount"`
	RefundPercentage  int                  `json:"refund_percentage"`
	RefundStatus      models.RefundStatus  `json:"refund_status"`
	RefundID          string               `json:"refund_id,omitempty"`
	HoursUntilCheckIn float64              `json:"hours_until_check_in"`
}

// RefundTier maps the notice given before check-in to a refund percentage:
// more than a day gets everything, less than a day gets half, none after
// check-in has passed.
func RefundTier(hoursUntilCheckIn float64) int {
	switch {
	case hoursUntilCheckIn > 24:
		return 100
	case hoursUntilCheckIn > 0:
		return 50
	default:
		return 0
	}
}

// RefundAmount is total * percentage, rounded to the currency's minor unit.
func RefundAmount(total decimal.Decimal, percentage int) decimal.Decimal {
	return total.Mul(decimal.NewFromInt(int64(percentage))).Div(decimal.NewFromInt(100)).Round(2)
}

// HoursUntilCheckIn measures from now to the start of the check-in day in UTC.
func HoursUntilCheckIn(checkIn, now time.Time) float64 {
	return pricing.TruncateDay(checkIn).Sub(now.UTC()).Hours()
}

type CancellationService struct {
	store    models.BookingStore
	gateway  gateway.PaymentGateway
	bookings *BookingService
	events   eventRecorder
	logger   *slog.Logger
	now      func() time.Time
}

func NewCancellationService(
	store models.BookingStore,
	gw gateway.PaymentGateway,
	bookings *BookingService,
	eventLog models.EventLog,
	logger *slog.Logger,
) *CancellationService {
	return &CancellationService{
		store:    store,
		gateway:  gw,
		bookings: bookings,
		events:   eventRecorder{log: eventLog, logger: logger},
		logger:   logger,
		now:      time.Now,
	}
}

// CancelBooking cancels a live booking owned by the caller. The cancellation
// itself never waits on the refund: a failed gateway refund is reported in
// the result with the booking still cancelled. An unpaid booking reports its
// tier and amount but keeps payment_status pending; only a paid booking moves
// to refunded.
func (cs *CancellationService) CancelBooking(ctx context.Context, userID, bookingID uuid.UUID, reason string) (*CancellationResult, error) {
	reason = strings.TrimSpace(reason)
	if len(reason) > maxReasonLength {
		return nil, apperrors.Validation("reason must be at most 500 characters")
	}

	booking, err := cs.bookings.OwnedBooking(ctx, userID, bookingID)
	if err != nil {
		return nil, err
	}
	switch booking.Status {
	case models.BookingStatusCancelled:
		return nil, apperrors.ErrAlreadyCancelled
	case models.BookingStatusCompleted:
		return nil, apperrors.ErrAlreadyCompleted
	}

	payment, err := cs.store.GetPaymentByBooking(ctx, booking.ID)
	if err != nil {
		if !errors.Is(err, models.ErrNoRows) {
			return nil, apperrors.Internal(err)
		}
		payment = nil
	}

	now := cs.now()
	hours := HoursUntilCheckIn(booking.CheckInDate.Time, now)
	percentage := RefundTier(hours)
	refund := RefundAmount(booking.TotalAmount, percentage)
	paid := booking.PaymentStatus == models.PaymentStatusCompleted

	change := models.BookingStateChange{
		FromStatus:        booking.Status,
		ToStatus:          models.BookingStatusCancelled,
		FromPaymentStatus: booking.PaymentStatus,
		ToPaymentStatus:   booking.PaymentStatus,
	}
	if refund.IsPositive() && paid {
		change.ToPaymentStatus = models.PaymentStatusRefunded
	}

	won, err := cs.store.UpdateBookingState(ctx, booking.ID, change)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if !won {
		current, err := cs.bookings.loadBooking(ctx, booking.ID)
		if err != nil {
			return nil, err
		}
		switch current.Status {
		case models.BookingStatusCancelled:
			return nil, apperrors.ErrAlreadyCancelled
		case models.BookingStatusCompleted:
			return nil, apperrors.ErrAlreadyCompleted
		}
		return nil, apperrors.WithMessage(apperrors.ErrInvalidTransition, "booking was modified concurrently, please retry")
	}

	from := booking.Status
	booking.Status = models.BookingStatusCancelled
	booking.PaymentStatus = change.ToPaymentStatus

	result := &CancellationResult{
		BookingID:         booking.ID,
		Status:            booking.Status,
		PaymentStatus:     booking.PaymentStatus,
		RefundAmount:      refund,
		RefundPercentage:  percentage,
		RefundStatus:      models.RefundNotApplicable,
		HoursUntilCheckIn: hours,
	}

	if refund.IsPositive() && paid && payment != nil {
		cs.refund(ctx, booking, payment, refund, reason, result)
	}

	cs.logger.Info("Booking cancelled",
		"booking_id", booking.ID,
		"user_id", userID,
		"hours_until_check_in", hours,
		"refund_percentage", percentage,
		"refund_amount", pricing.Display(refund),
		"refund_status", result.RefundStatus,
	)
	cs.events.record(ctx, booking, models.EventBookingCancelled, string(from), string(models.BookingStatusCancelled), map[string]interface{}{
		"reason":            reason,
		"refund_percentage": percentage,
		"refund_amount":     pricing.Display(refund),
		"refund_status":     string(result.RefundStatus),
		"refund_id":         result.RefundID,
	})
	return result, nil
}

// refund settles the money side of a paid cancellation and fills in the
// refund fields of result.
func (cs *CancellationService) refund(ctx context.Context, booking *models.Booking, payment *models.Payment, amount decimal.Decimal, reason string, result *CancellationResult) {
	details := map[string]interface{}{
		"refund_amount":     pricing.Display(amount),
		"refund_percentage": result.RefundPercentage,
	}

	if !payment.PaymentMethod.Online() {
		result.RefundStatus = models.RefundPendingManual
	} else {
		notes := map[string]string{
			"booking_reference": booking.BookingReference,
			"reason":            reason,
		}
		// the booking is already cancelled, so the refund outlives the request
		refundCtx := context.WithoutCancel(ctx)
		r, err := cs.gateway.Refund(refundCtx, payment.TransactionID, pricing.MinorUnits(amount), notes)
		if err != nil {
			cs.logger.Error("Gateway refund failed",
				"booking_id", booking.ID,
				"payment_id", payment.ID,
				"amount", pricing.Display(amount),
				"error", err,
			)
			result.RefundStatus = models.RefundFailed
		} else {
			result.RefundStatus = models.RefundInitiated
			result.RefundID = r.ID
			details["refund_id"] = r.ID
		}
	}
	details["refund_status"] = string(result.RefundStatus)

	ok, err := cs.store.UpdatePayment(ctx, payment.ID, models.PaymentUpdate{
		FromStatus:     models.PaymentStatusCompleted,
		ToStatus:       models.PaymentStatusRefunded,
		PaymentDetails: mergeDetails(payment.PaymentDetails, details),
	})
	if err != nil || !ok {
		cs.logger.Error("Failed to mark payment refunded",
			"booking_id", booking.ID,
			"payment_id", payment.ID,
			"updated", ok,
			"error", err,
		)
	}
}
