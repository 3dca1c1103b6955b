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
	"github.com/joshua-takyi/staybook/internal/helpers"
	"github.com/joshua-takyi/staybook/internal/models"
	"github.com/joshua-takyi/staybook/internal/pricing"
)

// Notifier is told about confirmed bookings. Implementations must not fail
// the caller.
type Notifier interface {
	BookingConfirmed(ctx context.Context, bookingID uuid.UUID)
}

type InitiatePaymentInput struct {
	Method  string
	Details map[string]interface{}
}

type PaymentIntent struct {
	BookingID      uuid.UUID            `json:"booking_id"`
	PaymentID      uuid.UUID            `json:"payment_id"`
	Method         models.PaymentMethod `json:"payment_method"`
	Status         models.PaymentStatus `json:"payment_status"`
	BookingStatus  models.BookingStatus `json:"booking_status"`
	TransactionID  string               `json:"transaction_id,omitempty"`
	GatewayOrderID string               `json:"razorpay_order_id,omitempty"`
	KeyID          string               `json:"key_id,omitempty"`
	Amount         int64                `json:"amount,omitempty"`
	Currency       string               `json:"currency,omitempty"`
	Message        string               `json:"message,omitempty"`
}

type VerifyPaymentInput struct {
	GatewayOrderID   string
	GatewayPaymentID string
	GatewaySignature string
}

type VerifyResult struct {
	BookingID       uuid.UUID            `json:"booking_id"`
	Status          models.BookingStatus `json:"status"`
	PaymentStatus   models.PaymentStatus `json:"payment_status"`
	AlreadyVerified bool                 `json:"already_verified"`
}

type PaymentService struct {
	store    models.BookingStore
	gateway  gateway.PaymentGateway
	bookings *BookingService
	notifier Notifier
	events   eventRecorder
	currency string
	logger   *slog.Logger
	now      func() time.Time
}

func NewPaymentService(
	store models.BookingStore,
	gw gateway.PaymentGateway,
	bookings *BookingService,
	notifier Notifier,
	eventLog models.EventLog,
	currency string,
	logger *slog.Logger,
) *PaymentService {
	return &PaymentService{
		store:    store,
		gateway:  gw,
		bookings: bookings,
		notifier: notifier,
		events:   eventRecorder{log: eventLog, logger: logger},
		currency: currency,
		logger:   logger,
		now:      time.Now,
	}
}

// legacy checkout clients post the already captured payment with the
// initiation request
func legacyCallback(details map[string]interface{}) (VerifyPaymentInput, bool) {
	get := func(key string) string {
		s, _ := details[key].(string)
		return strings.TrimSpace(s)
	}
	in := VerifyPaymentInput{
		GatewayOrderID:   get("razorpay_order_id"),
		GatewayPaymentID: get("razorpay_payment_id"),
		GatewaySignature: get("razorpay_signature"),
	}
	return in, in.GatewayPaymentID != "" || in.GatewaySignature != ""
}

// InitiatePayment records how a pending booking will be paid. Cash leaves
// the booking pending until staff confirm it; card and UPI open a gateway
// order the client completes.
func (ps *PaymentService) InitiatePayment(ctx context.Context, userID, bookingID uuid.UUID, in InitiatePaymentInput) (*PaymentIntent, error) {
	method, err := models.ParsePaymentMethod(in.Method)
	if err != nil {
		return nil, apperrors.Validation("payment_method must be one of upi, card, cash")
	}

	booking, err := ps.bookings.OwnedBooking(ctx, userID, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status != models.BookingStatusPending || booking.PaymentStatus != models.PaymentStatusPending {
		return nil, apperrors.WithMessage(apperrors.ErrBookingNotPending,
			"booking is "+string(booking.Status)+" and cannot take a new payment")
	}

	legacy, hasLegacy := legacyCallback(in.Details)
	if hasLegacy {
		if legacy.GatewayOrderID == "" || legacy.GatewayPaymentID == "" || legacy.GatewaySignature == "" {
			return nil, apperrors.Validation("a pre-verified payment needs razorpay_order_id, razorpay_payment_id and razorpay_signature")
		}
		if !method.Online() {
			return nil, apperrors.Validation("cash payments cannot carry gateway details")
		}
	}

	details, err := helpers.SanitizePaymentDetails(in.Details)
	if err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	existing, err := ps.store.GetPaymentByBooking(ctx, booking.ID)
	if err != nil && !errors.Is(err, models.ErrNoRows) {
		return nil, apperrors.Internal(err)
	}
	if existing != nil && existing.PaymentStatus != models.PaymentStatusPending {
		return nil, apperrors.WithMessage(apperrors.ErrBookingNotPending, "a payment for this booking is already "+string(existing.PaymentStatus))
	}

	intent := &PaymentIntent{
		BookingID:     booking.ID,
		Method:        method,
		Status:        models.PaymentStatusPending,
		BookingStatus: booking.Status,
	}

	switch {
	case method == models.PaymentMethodCash:
		intent.TransactionID = models.CashTransactionID(ps.now())
		intent.Message = "Booking reserved. Please pay at the hotel during check-in."

	case hasLegacy:
		if err := ps.checkLegacyPayment(ctx, booking, existing, legacy); err != nil {
			return nil, err
		}
		intent.TransactionID = legacy.GatewayOrderID
		intent.GatewayOrderID = legacy.GatewayOrderID

	default:
		amount := pricing.MinorUnits(booking.TotalAmount)
		orderID := openOrder(existing, booking)
		if orderID == "" {
			order, err := ps.gateway.CreateOrder(ctx, amount, ps.currency, booking.BookingReference)
			if err != nil {
				ps.logger.Error("Failed to create gateway order",
					"booking_id", booking.ID,
					"reference", booking.BookingReference,
					"error", err,
				)
				return nil, gatewayError(err)
			}
			orderID = order.ID
		}
		intent.TransactionID = orderID
		intent.GatewayOrderID = orderID
		intent.KeyID = ps.gateway.KeyID()
		intent.Amount = amount
		intent.Currency = ps.currency
	}

	paymentID, err := ps.savePendingPayment(ctx, booking, existing, method, intent.TransactionID, details)
	if err != nil {
		return nil, err
	}
	intent.PaymentID = paymentID

	ps.logger.Info("Payment initiated",
		"booking_id", booking.ID,
		"method", method,
		"transaction_id", intent.TransactionID,
	)
	ps.events.record(ctx, booking, models.EventPaymentInitiated, "", string(models.PaymentStatusPending), map[string]interface{}{
		"method":         string(method),
		"transaction_id": intent.TransactionID,
	})

	if hasLegacy {
		result, err := ps.VerifyPayment(ctx, userID, bookingID, legacy)
		if err != nil {
			return nil, err
		}
		intent.Status = result.PaymentStatus
		intent.BookingStatus = result.Status
	}
	return intent, nil
}

// openOrder returns the gateway order a pending online payment already holds
// for the booking's current total, so a retry can hand it out again.
func openOrder(existing *models.Payment, booking *models.Booking) string {
	if existing == nil || !existing.PaymentMethod.Online() || existing.TransactionID == "" {
		return ""
	}
	if !existing.Amount.Equal(booking.TotalAmount) {
		return ""
	}
	return existing.TransactionID
}

func gatewayError(err error) error {
	if _, ok := apperrors.As(err); ok {
		return err
	}
	return apperrors.Wrap(apperrors.ErrGatewayUnavailable, err)
}

// checkLegacyPayment accepts a client captured payment only if it is signed,
// not already recorded against another booking, and paid into an order opened
// for this booking's reference and total.
func (ps *PaymentService) checkLegacyPayment(ctx context.Context, booking *models.Booking, existing *models.Payment, legacy VerifyPaymentInput) error {
	if !ps.gateway.VerifySignature(legacy.GatewayOrderID, legacy.GatewayPaymentID, legacy.GatewaySignature) {
		ps.logger.Warn("Payment signature mismatch",
			"booking_id", booking.ID,
			"order_id", legacy.GatewayOrderID,
		)
		return apperrors.ErrSignatureMismatch
	}
	if err := ps.checkPaymentUnclaimed(ctx, booking, legacy.GatewayPaymentID); err != nil {
		return err
	}
	if existing != nil {
		if _, ok := boundOrder(existing, legacy.GatewayOrderID); ok {
			return nil
		}
	}

	order, err := ps.gateway.FetchOrder(ctx, legacy.GatewayOrderID)
	if err != nil {
		ps.logger.Error("Failed to fetch gateway order",
			"booking_id", booking.ID,
			"order_id", legacy.GatewayOrderID,
			"error", err,
		)
		return gatewayError(err)
	}
	if order.Receipt != booking.BookingReference || order.Amount != pricing.MinorUnits(booking.TotalAmount) {
		ps.logger.Warn("Gateway order does not belong to booking",
			"booking_id", booking.ID,
			"order_id", order.ID,
			"order_receipt", order.Receipt,
			"order_amount", order.Amount,
		)
		return apperrors.ErrSignatureMismatch
	}
	return nil
}

// checkPaymentUnclaimed rejects a gateway payment already recorded against
// another booking.
func (ps *PaymentService) checkPaymentUnclaimed(ctx context.Context, booking *models.Booking, gatewayPaymentID string) error {
	other, err := ps.store.GetPaymentByTransactionID(ctx, gatewayPaymentID)
	if errors.Is(err, models.ErrNoRows) {
		return nil
	}
	if err != nil {
		return apperrors.Internal(err)
	}
	if other.BookingID != booking.ID {
		ps.logger.Warn("Gateway payment already settles another booking",
			"booking_id", booking.ID,
			"other_booking_id", other.BookingID,
			"gateway_payment_id", gatewayPaymentID,
		)
		return apperrors.ErrSignatureMismatch
	}
	return nil
}

const previousOrdersKey = "previous_orders"

// previousOrders maps gateway orders a payment held before its current
// transaction id to the method each was opened for.
func previousOrders(details map[string]interface{}) map[string]interface{} {
	out := map[string]interface{}{}
	switch prev := details[previousOrdersKey].(type) {
	case map[string]interface{}:
		for id, method := range prev {
			out[id] = method
		}
	case map[string]string:
		for id, method := range prev {
			out[id] = method
		}
	}
	return out
}

// boundOrder reports whether orderID was opened for payment, with the
// method the order was opened for.
func boundOrder(payment *models.Payment, orderID string) (models.PaymentMethod, bool) {
	if payment.TransactionID == orderID {
		return payment.PaymentMethod, true
	}
	method, ok := previousOrders(payment.PaymentDetails)[orderID].(string)
	return models.PaymentMethod(method), ok
}

// savePendingPayment inserts the payment row, or rewrites a still pending
// one when the guest retries initiation. An order the row no longer points
// at stays payable.
func (ps *PaymentService) savePendingPayment(ctx context.Context, booking *models.Booking, existing *models.Payment, method models.PaymentMethod, txID string, details map[string]interface{}) (uuid.UUID, error) {
	if existing != nil {
		prev := previousOrders(existing.PaymentDetails)
		if existing.PaymentMethod.Online() && existing.TransactionID != "" && existing.TransactionID != txID {
			prev[existing.TransactionID] = string(existing.PaymentMethod)
		}
		delete(prev, txID)
		if len(prev) > 0 {
			details = mergeDetails(details, map[string]interface{}{previousOrdersKey: prev})
		}
		ok, err := ps.store.UpdatePayment(ctx, existing.ID, models.PaymentUpdate{
			FromStatus:     models.PaymentStatusPending,
			ToStatus:       models.PaymentStatusPending,
			Method:         method,
			TransactionID:  txID,
			PaymentDetails: details,
		})
		if err != nil {
			return uuid.Nil, apperrors.Internal(err)
		}
		if !ok {
			return uuid.Nil, apperrors.WithMessage(apperrors.ErrBookingNotPending, "payment was completed concurrently")
		}
		return existing.ID, nil
	}

	payment := &models.Payment{
		ID:             uuid.New(),
		BookingID:      booking.ID,
		Amount:         booking.TotalAmount,
		PaymentMethod:  method,
		PaymentStatus:  models.PaymentStatusPending,
		TransactionID:  txID,
		PaymentDetails: details,
		CreatedAt:      ps.now().UTC(),
	}
	created, err := ps.store.CreatePayment(ctx, payment)
	if err != nil {
		ps.logger.Error("Failed to record payment", "booking_id", booking.ID, "error", err)
		return uuid.Nil, apperrors.Internal(err)
	}
	return created.ID, nil
}

// VerifyPayment accepts a gateway callback only if its signature proves the
// payment belongs to the order opened for this booking. Replays of an
// accepted callback are a no-op.
func (ps *PaymentService) VerifyPayment(ctx context.Context, userID, bookingID uuid.UUID, in VerifyPaymentInput) (*VerifyResult, error) {
	in.GatewayOrderID = strings.TrimSpace(in.GatewayOrderID)
	in.GatewayPaymentID = strings.TrimSpace(in.GatewayPaymentID)
	in.GatewaySignature = strings.TrimSpace(in.GatewaySignature)
	if in.GatewayOrderID == "" || in.GatewayPaymentID == "" || in.GatewaySignature == "" {
		return nil, apperrors.Validation("razorpay_order_id, razorpay_payment_id and razorpay_signature are required")
	}

	booking, err := ps.bookings.OwnedBooking(ctx, userID, bookingID)
	if err != nil {
		return nil, err
	}

	if !ps.gateway.VerifySignature(in.GatewayOrderID, in.GatewayPaymentID, in.GatewaySignature) {
		ps.logger.Warn("Payment signature mismatch",
			"booking_id", booking.ID,
			"user_id", userID,
			"order_id", in.GatewayOrderID,
		)
		return nil, apperrors.ErrSignatureMismatch
	}
	if err := ps.checkPaymentUnclaimed(ctx, booking, in.GatewayPaymentID); err != nil {
		return nil, err
	}

	payment, err := ps.store.GetPaymentByBooking(ctx, booking.ID)
	if err != nil {
		if errors.Is(err, models.ErrNoRows) {
			return nil, apperrors.WithMessage(apperrors.ErrBookingNotPending, "no payment has been initiated for this booking")
		}
		return nil, apperrors.Internal(err)
	}

	if result, done, err := ps.settled(booking, payment, in); done {
		return result, err
	}

	method, bound := boundOrder(payment, in.GatewayOrderID)
	if !bound {
		ps.logger.Warn("Gateway order does not belong to booking",
			"booking_id", booking.ID,
			"expected_order", payment.TransactionID,
			"order_id", in.GatewayOrderID,
		)
		return nil, apperrors.ErrSignatureMismatch
	}

	// the booking row arbitrates between verify and cancel
	won, err := ps.store.UpdateBookingState(ctx, booking.ID, models.BookingStateChange{
		FromStatus:        models.BookingStatusPending,
		ToStatus:          models.BookingStatusConfirmed,
		FromPaymentStatus: models.PaymentStatusPending,
		ToPaymentStatus:   models.PaymentStatusCompleted,
	})
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if !won {
		current, err := ps.bookings.loadBooking(ctx, booking.ID)
		if err != nil {
			return nil, err
		}
		latest, err := ps.store.GetPaymentByBooking(ctx, booking.ID)
		if err != nil {
			return nil, apperrors.Internal(err)
		}
		if result, done, err := ps.settled(current, latest, in); done {
			return result, err
		}
		return nil, apperrors.WithMessage(apperrors.ErrBookingNotPending, "booking was modified concurrently, please retry")
	}

	ok, err := ps.store.UpdatePayment(ctx, payment.ID, models.PaymentUpdate{
		FromStatus:    models.PaymentStatusPending,
		ToStatus:      models.PaymentStatusCompleted,
		Method:        method,
		TransactionID: in.GatewayPaymentID,
		PaymentDetails: mergeDetails(payment.PaymentDetails, map[string]interface{}{
			"razorpay_order_id": in.GatewayOrderID,
		}),
	})
	if err != nil || !ok {
		// the booking is already confirmed; the payment row is reconciled by hand
		ps.logger.Error("Failed to mark payment completed",
			"booking_id", booking.ID,
			"payment_id", payment.ID,
			"gateway_payment_id", in.GatewayPaymentID,
			"updated", ok,
			"error", err,
		)
	}

	booking.Status = models.BookingStatusConfirmed
	booking.PaymentStatus = models.PaymentStatusCompleted
	ps.logger.Info("Payment verified",
		"booking_id", booking.ID,
		"gateway_payment_id", in.GatewayPaymentID,
	)
	ps.events.record(ctx, booking, models.EventPaymentVerified, string(models.BookingStatusPending), string(models.BookingStatusConfirmed), map[string]interface{}{
		"gateway_payment_id": in.GatewayPaymentID,
	})

	if ps.notifier != nil {
		ps.notifier.BookingConfirmed(ctx, booking.ID)
	}

	return &VerifyResult{
		BookingID:     booking.ID,
		Status:        booking.Status,
		PaymentStatus: booking.PaymentStatus,
	}, nil
}

// settled handles a booking that is no longer waiting for this payment.
// done is false when the booking is still pending.
func (ps *PaymentService) settled(booking *models.Booking, payment *models.Payment, in VerifyPaymentInput) (*VerifyResult, bool, error) {
	switch booking.Status {
	case models.BookingStatusPending:
		if booking.PaymentStatus == models.PaymentStatusPending {
			return nil, false, nil
		}
		return nil, true, apperrors.WithMessage(apperrors.ErrBookingNotPending, "payment is "+string(booking.PaymentStatus))
	case models.BookingStatusConfirmed:
		if booking.PaymentStatus == models.PaymentStatusCompleted && sameCallback(payment, in) {
			return &VerifyResult{
				BookingID:       booking.ID,
				Status:          booking.Status,
				PaymentStatus:   booking.PaymentStatus,
				AlreadyVerified: true,
			}, true, nil
		}
		return nil, true, apperrors.WithMessage(apperrors.ErrBookingNotPending, "booking is already confirmed")
	case models.BookingStatusCancelled:
		ps.logger.Warn("Verified payment for a cancelled booking, refund must be issued manually",
			"booking_id", booking.ID,
			"gateway_payment_id", in.GatewayPaymentID,
		)
		return nil, true, apperrors.ErrAlreadyCancelled
	case models.BookingStatusCompleted:
		return nil, true, apperrors.ErrAlreadyCompleted
	}
	return nil, true, apperrors.ErrBookingNotPending
}

// sameCallback reports whether payment was settled by the callback in. The
// row may still carry the order id while the winning verify finishes.
func sameCallback(payment *models.Payment, in VerifyPaymentInput) bool {
	switch payment.TransactionID {
	case in.GatewayPaymentID, in.GatewayOrderID:
		return true
	}
	orderID, _ := payment.PaymentDetails["razorpay_order_id"].(string)
	return orderID != "" && orderID == in.GatewayOrderID
}

// ConfirmCashPayment is the staff action that records cash received for a
// pending booking.
func (ps *PaymentService) ConfirmCashPayment(ctx context.Context, bookingID uuid.UUID) (*VerifyResult, error) {
	booking, err := ps.bookings.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status != models.BookingStatusPending || booking.PaymentStatus != models.PaymentStatusPending {
		return nil, apperrors.WithMessage(apperrors.ErrBookingNotPending, "booking is "+string(booking.Status))
	}

	payment, err := ps.store.GetPaymentByBooking(ctx, booking.ID)
	if err != nil && !errors.Is(err, models.ErrNoRows) {
		return nil, apperrors.Internal(err)
	}
	if payment == nil || payment.PaymentMethod != models.PaymentMethodCash || payment.PaymentStatus != models.PaymentStatusPending {
		return nil, apperrors.Validation("booking has no pending cash payment")
	}

	won, err := ps.store.UpdateBookingState(ctx, booking.ID, models.BookingStateChange{
		FromStatus:        models.BookingStatusPending,
		ToStatus:          models.BookingStatusConfirmed,
		FromPaymentStatus: models.PaymentStatusPending,
		ToPaymentStatus:   models.PaymentStatusCompleted,
	})
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if !won {
		return nil, apperrors.WithMessage(apperrors.ErrBookingNotPending, "booking was modified concurrently, please retry")
	}

	if ok, err := ps.store.UpdatePayment(ctx, payment.ID, models.PaymentUpdate{
		FromStatus: models.PaymentStatusPending,
		ToStatus:   models.PaymentStatusCompleted,
	}); err != nil || !ok {
		ps.logger.Error("Failed to mark cash payment completed", "booking_id", booking.ID, "payment_id", payment.ID, "error", err)
	}

	booking.Status = models.BookingStatusConfirmed
	booking.PaymentStatus = models.PaymentStatusCompleted
	ps.logger.Info("Cash payment confirmed", "booking_id", booking.ID)
	ps.events.record(ctx, booking, models.EventCashConfirmed, string(models.BookingStatusPending), string(models.BookingStatusConfirmed), nil)

	if ps.notifier != nil {
		ps.notifier.BookingConfirmed(ctx, booking.ID)
	}

	return &VerifyResult{
		BookingID:     booking.ID,
		Status:        booking.Status,
		PaymentStatus: booking.PaymentStatus,
	}, nil
}

func mergeDetails(base map[string]interface{}, extra map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
