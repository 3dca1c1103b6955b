package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/joshua-takyi/staybook/internal/apperrors"
	"github.com/joshua-takyi/staybook/internal/models"
	"github.com/joshua-takyi/staybook/internal/pricing"
)

func (f *fixture) initiateOnline(t *testing.T, b *models.Booking) *PaymentIntent {
	t.Helper()
	intent, err := f.payments.InitiatePayment(context.Background(), f.guest, b.ID, InitiatePaymentInput{
		Method:  "card",
		Details: map[string]interface{}{"card_number": "4111 1111 1111 1111", "cvv": "123"},
	})
	if err != nil {
		t.Fatalf("InitiatePayment: %v", err)
	}
	return intent
}

func (f *fixture) verify(b *models.Booking, orderID, paymentID, signature string) (*VerifyResult, error) {
	return f.payments.VerifyPayment(context.Background(), f.guest, b.ID, VerifyPaymentInput{
		GatewayOrderID:   orderID,
		GatewayPaymentID: paymentID,
		GatewaySignature: signature,
	})
}

func TestInitiateCashPaymentKeepsBookingPending(t *testing.T) {
	f := newFixture(t, 1)
	b := f.book(t, "2025-01-05", "2025-01-08")

	intent, err := f.payments.InitiatePayment(context.Background(), f.guest, b.ID, InitiatePaymentInput{Method: "cash"})
	if err != nil {
		t.Fatalf("InitiatePayment: %v", err)
	}
	if !strings.HasPrefix(intent.TransactionID, "CASH_") {
		t.Errorf("transaction id = %q, want a CASH_ marker", intent.TransactionID)
	}
	if intent.GatewayOrderID != "" || len(f.gateway.orders) != 0 {
		t.Errorf("cash must not open a gateway order")
	}

	stored := f.store.booking(t, b.ID)
	if stored.Status != models.BookingStatusPending || stored.PaymentStatus != models.PaymentStatusPending {
		t.Errorf("booking is %s/%s, want pending/pending", stored.Status, stored.PaymentStatus)
	}
	p := f.store.payment(t, b.ID)
	if p.PaymentMethod != models.PaymentMethodCash || p.PaymentStatus != models.PaymentStatusPending {
		t.Errorf("payment is %s/%s, want cash/pending", p.PaymentMethod, p.PaymentStatus)
	}
	if f.notifier.count(b.ID) != 0 {
		t.Errorf("cash reservation must not send a confirmation")
	}
}

func TestInitiateOnlinePaymentOpensOrder(t *testing.T) {
	f := newFixture(t, 1)
	b := f.book(t, "2025-01-05", "2025-01-08")

	intent := f.initiateOnline(t, b)

	if len(f.gateway.orders) != 1 {
		t.Fatalf("orders = %d, want 1", len(f.gateway.orders))
	}
	order := f.gateway.orders[0]
	if order.Amount != 672000 {
		t.Errorf("order amount = %d paise, want 672000", order.Amount)
	}
	if order.Receipt != b.BookingReference {
		t.Errorf("receipt = %q, want %q", order.Receipt, b.BookingReference)
	}
	if intent.GatewayOrderID != order.ID || intent.KeyID != "rzp_test_key" || intent.Currency != "INR" {
		t.Errorf("intent = %+v", intent)
	}

	p := f.store.payment(t, b.ID)
	if p.TransactionID != order.ID {
		t.Errorf("payment transaction id = %q, want order id %q", p.TransactionID, order.ID)
	}
	if p.PaymentDetails["card_last4"] != "1111" {
		t.Errorf("card_last4 = %v", p.PaymentDetails["card_last4"])
	}
	if _, ok := p.PaymentDetails["cvv"]; ok {
		t.Errorf("cvv must never be stored")
	}
	if _, ok := p.PaymentDetails["card_number"]; ok {
		t.Errorf("full card number must never be stored")
	}

	// retrying initiation reuses the pending payment row and its open order
	retry := f.initiateOnline(t, b)
	if len(f.store.payments) != 1 {
		t.Errorf("payments = %d after retry, want 1", len(f.store.payments))
	}
	if f.gateway.orderCount() != 1 || retry.GatewayOrderID != order.ID || retry.Amount != 672000 {
		t.Errorf("retry opened orders = %d intent = %+v, want the first order again", f.gateway.orderCount(), retry)
	}
	if got := f.store.payment(t, b.ID).TransactionID; got != order.ID {
		t.Errorf("retry moved transaction to %q, want %q", got, order.ID)
	}
}

func TestVerifyPaymentAfterRetriedInitiation(t *testing.T) {
	f := newFixture(t, 1)
	b := f.book(t, "2025-01-05", "2025-01-08")
	first := f.initiateOnline(t, b)

	// the guest opens checkout twice, then pays the first one
	if _, err := f.payments.InitiatePayment(context.Background(), f.guest, b.ID, InitiatePaymentInput{Method: "upi"}); err != nil {
		t.Fatalf("second InitiatePayment: %v", err)
	}
	res, err := f.verify(b, first.GatewayOrderID, "pay_first", f.gateway.sign(first.GatewayOrderID, "pay_first"))
	if err != nil {
		t.Fatalf("VerifyPayment on the first order: %v", err)
	}
	if res.Status != models.BookingStatusConfirmed || res.PaymentStatus != models.PaymentStatusCompleted {
		t.Errorf("result = %+v, want confirmed/completed", res)
	}
	if p := f.store.payment(t, b.ID); p.TransactionID != "pay_first" || p.PaymentMethod != models.PaymentMethodUPI {
		t.Errorf("payment = %s via %s, want pay_first via upi", p.TransactionID, p.PaymentMethod)
	}
}

func TestVerifyPaymentForOrderOpenedBeforeSwitchToCash(t *testing.T) {
	f := newFixture(t, 1)
	b := f.book(t, "2025-01-05", "2025-01-08")
	online := f.initiateOnline(t, b)

	if _, err := f.payments.InitiatePayment(context.Background(), f.guest, b.ID, InitiatePaymentInput{Method: "cash"}); err != nil {
		t.Fatalf("cash InitiatePayment: %v", err)
	}
	p := f.store.payment(t, b.ID)
	if !strings.HasPrefix(p.TransactionID, "CASH_") {
		t.Fatalf("transaction id = %q, want a CASH_ marker", p.TransactionID)
	}

	// the card checkout completed after all
	if _, err := f.verify(b, online.GatewayOrderID, "pay_card", f.gateway.sign(online.GatewayOrderID, "pay_card")); err != nil {
		t.Fatalf("VerifyPayment: %v", err)
	}
	p = f.store.payment(t, b.ID)
	if p.PaymentStatus != models.PaymentStatusCompleted || p.PaymentMethod != models.PaymentMethodCard || p.TransactionID != "pay_card" {
		t.Errorf("payment = %s/%s/%s, want completed/card/pay_card", p.PaymentStatus, p.PaymentMethod, p.TransactionID)
	}
}

func TestInitiatePaymentRejections(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	b := f.book(t, "2025-01-05", "2025-01-08")

	if _, err := f.payments.InitiatePayment(ctx, f.guest, b.ID, InitiatePaymentInput{Method: "bitcoin"}); apperrors.KindOf(err) != apperrors.KindValidation {
		t.Errorf("unknown method: got %v", err)
	}
	if _, err := f.payments.InitiatePayment(ctx, uuid.New(), b.ID, InitiatePaymentInput{Method: "upi"}); !errors.Is(err, apperrors.ErrBookingNotFound) {
		t.Errorf("stranger: got %v, want ErrBookingNotFound", err)
	}
	if _, err := f.payments.InitiatePayment(ctx, f.guest, b.ID, InitiatePaymentInput{
		Method:  "card",
		Details: map[string]interface{}{"card_number": "4111111111111112"},
	}); apperrors.KindOf(err) != apperrors.KindValidation {
		t.Errorf("bad card number: got %v", err)
	}

	confirmed := f.seedBooking("2025-01-10", "2025-01-11", 2000, models.BookingStatusConfirmed, models.PaymentStatusCompleted)
	if _, err := f.payments.InitiatePayment(ctx, f.guest, confirmed.ID, InitiatePaymentInput{Method: "upi"}); !errors.Is(err, apperrors.ErrBookingNotPending) {
		t.Errorf("confirmed booking: got %v, want ErrBookingNotPending", err)
	}
}

func TestInitiatePaymentGatewayFailureIsSafe(t *testing.T) {
	f := newFixture(t, 1)
	b := f.book(t, "2025-01-05", "2025-01-08")
	f.gateway.createErr = errors.New("razorpay: BAD_REQUEST_ERROR key rzp_live_secret rejected")

	_, err := f.payments.InitiatePayment(context.Background(), f.guest, b.ID, InitiatePaymentInput{Method: "upi"})
	if !errors.Is(err, apperrors.ErrGatewayUnavailable) {
		t.Fatalf("got %v, want ErrGatewayUnavailable", err)
	}
	if msg := apperrors.SafeMessage(err); strings.Contains(msg, "rzp_") || strings.Contains(msg, "BAD_REQUEST") {
		t.Errorf("safe message leaks provider details: %q", msg)
	}
	if len(f.store.payments) != 0 {
		t.Errorf("failed initiation stored a payment")
	}
}

func TestVerifyPaymentConfirmsOnce(t *testing.T) {
	f := newFixture(t, 1)
	b := f.book(t, "2025-01-05", "2025-01-08")
	intent := f.initiateOnline(t, b)
	sig := f.gateway.sign(intent.GatewayOrderID, "pay_123")

	res, err := f.verify(b, intent.GatewayOrderID, "pay_123", sig)
	if err != nil {
		t.Fatalf("VerifyPayment: %v", err)
	}
	if res.Status != models.BookingStatusConfirmed || res.AlreadyVerified {
		t.Errorf("first verify = %+v", res)
	}

	again, err := f.verify(b, intent.GatewayOrderID, "pay_123", sig)
	if err != nil {
		t.Fatalf("replayed VerifyPayment: %v", err)
	}
	if !again.AlreadyVerified || again.Status != models.BookingStatusConfirmed {
		t.Errorf("replay = %+v, want an already verified no-op", again)
	}

	if n := f.notifier.count(b.ID); n != 1 {
		t.Errorf("notifications = %d, want exactly 1", n)
	}
	stored := f.store.booking(t, b.ID)
	if stored.Status != models.BookingStatusConfirmed || stored.PaymentStatus != models.PaymentStatusCompleted {
		t.Errorf("booking is %s/%s, want confirmed/completed", stored.Status, stored.PaymentStatus)
	}
	p := f.store.payment(t, b.ID)
	if p.PaymentStatus != models.PaymentStatusCompleted || p.TransactionID != "pay_123" {
		t.Errorf("payment is %s with %q", p.PaymentStatus, p.TransactionID)
	}
	if p.PaymentDetails["razorpay_order_id"] != intent.GatewayOrderID {
		t.Errorf("order id not kept in payment details: %v", p.PaymentDetails)
	}
}

func TestVerifyPaymentConcurrentCallbacksNotifyOnce(t *testing.T) {
	f := newFixture(t, 1)
	b := f.book(t, "2025-01-05", "2025-01-08")
	intent := f.initiateOnline(t, b)
	sig := f.gateway.sign(intent.GatewayOrderID, "pay_race")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.verify(b, intent.GatewayOrderID, "pay_race", sig); err != nil {
				t.Errorf("VerifyPayment: %v", err)
			}
		}()
	}
	wg.Wait()

	if n := f.notifier.count(b.ID); n != 1 {
		t.Errorf("notifications = %d, want exactly 1", n)
	}
}

func TestVerifyPaymentRejectsEveryBitFlip(t *testing.T) {
	f := newFixture(t, 1)
	b := f.book(t, "2025-01-05", "2025-01-08")
	intent := f.initiateOnline(t, b)
	sig := f.gateway.sign(intent.GatewayOrderID, "pay_123")

	raw := []byte(sig)
	for i := range raw {
		for bit := 0; bit < 8; bit++ {
			mutated := make([]byte, len(raw))
			copy(mutated, raw)
			mutated[i] ^= 1 << bit

			_, err := f.verify(b, intent.GatewayOrderID, "pay_123", string(mutated))
			if !errors.Is(err, apperrors.ErrSignatureMismatch) {
				t.Fatalf("flip byte %d bit %d: got %v, want ErrSignatureMismatch", i, bit, err)
			}
		}
	}

	stored := f.store.booking(t, b.ID)
	if stored.Status != models.BookingStatusPending || stored.PaymentStatus != models.PaymentStatusPending {
		t.Errorf("booking is %s/%s after forged callbacks, want pending/pending", stored.Status, stored.PaymentStatus)
	}
	if f.notifier.count(b.ID) != 0 {
		t.Errorf("forged callbacks sent a notification")
	}
	if apperrors.HTTPStatus(apperrors.ErrSignatureMismatch) != 400 {
		t.Errorf("signature mismatch should be a client error")
	}
}

func TestVerifyPaymentRejectsForeignOrder(t *testing.T) {
	f := newFixture(t, 1)
	b := f.book(t, "2025-01-05", "2025-01-08")
	f.initiateOnline(t, b)

	// genuinely signed, but for an order opened for something else
	sig := f.gateway.sign("order_other", "pay_999")
	if _, err := f.verify(b, "order_other", "pay_999", sig); !errors.Is(err, apperrors.ErrSignatureMismatch) {
		t.Fatalf("got %v, want ErrSignatureMismatch", err)
	}
	if got := f.store.booking(t, b.ID).Status; got != models.BookingStatusPending {
		t.Errorf("status = %s, want pending", got)
	}
}

func TestVerifyPaymentValidation(t *testing.T) {
	f := newFixture(t, 1)
	b := f.book(t, "2025-01-05", "2025-01-08")
	intent := f.initiateOnline(t, b)

	if _, err := f.verify(b, intent.GatewayOrderID, "pay_1", ""); apperrors.KindOf(err) != apperrors.KindValidation {
		t.Errorf("missing signature: got %v", err)
	}
	sig := f.gateway.sign(intent.GatewayOrderID, "pay_1")
	_, err := f.payments.VerifyPayment(context.Background(), uuid.New(), b.ID, VerifyPaymentInput{
		GatewayOrderID: intent.GatewayOrderID, GatewayPaymentID: "pay_1", GatewaySignature: sig,
	})
	if !errors.Is(err, apperrors.ErrBookingNotFound) {
		t.Errorf("stranger: got %v, want ErrBookingNotFound", err)
	}
}

func TestVerifyPaymentAfterCancellation(t *testing.T) {
	f := newFixture(t, 1)
	b := f.book(t, "2025-01-05", "2025-01-08")
	intent := f.initiateOnline(t, b)

	if _, err := f.cancels.CancelBooking(context.Background(), f.guest, b.ID, "plans changed"); err != nil {
		t.Fatalf("CancelBooking: %v", err)
	}

	sig := f.gateway.sign(intent.GatewayOrderID, "pay_late")
	if _, err := f.verify(b, intent.GatewayOrderID, "pay_late", sig); !errors.Is(err, apperrors.ErrAlreadyCancelled) {
		t.Fatalf("got %v, want ErrAlreadyCancelled", err)
	}
	if got := f.store.booking(t, b.ID).Status; got != models.BookingStatusCancelled {
		t.Errorf("status = %s, want cancelled", got)
	}
	if f.notifier.count(b.ID) != 0 {
		t.Errorf("cancelled booking must not be confirmed by email")
	}
}

func TestInitiatePaymentWithCapturedLegacyPayment(t *testing.T) {
	f := newFixture(t, 1)
	b := f.book(t, "2025-01-05", "2025-01-08")
	f.gateway.openOrder("order_client", pricing.MinorUnits(b.TotalAmount), b.BookingReference)
	sig := f.gateway.sign("order_client", "pay_client")

	intent, err := f.payments.InitiatePayment(context.Background(), f.guest, b.ID, InitiatePaymentInput{
		Method: "upi",
		Details: map[string]interface{}{
			"upi_id":              "asha@okbank",
			"razorpay_order_id":   "order_client",
			"razorpay_payment_id": "pay_client",
			"razorpay_signature":  sig,
		},
	})
	if err != nil {
		t.Fatalf("InitiatePayment: %v", err)
	}
	if intent.Status != models.PaymentStatusCompleted || intent.BookingStatus != models.BookingStatusConfirmed {
		t.Errorf("intent = %+v, want a confirmed booking", intent)
	}
	if f.gateway.orderCount() != 1 {
		t.Errorf("a captured payment must not open a new order")
	}
	if f.notifier.count(b.ID) != 1 {
		t.Errorf("notifications = %d, want 1", f.notifier.count(b.ID))
	}

	other := f.seedBooking("2025-01-10", "2025-01-11", 2000, models.BookingStatusPending, models.PaymentStatusPending)
	_, err = f.payments.InitiatePayment(context.Background(), f.guest, other.ID, InitiatePaymentInput{
		Method: "upi",
		Details: map[string]interface{}{
			"razorpay_order_id":   "order_client",
			"razorpay_payment_id": "pay_client",
			"razorpay_signature":  "forged",
		},
	})
	if !errors.Is(err, apperrors.ErrSignatureMismatch) {
		t.Fatalf("forged legacy payment: got %v, want ErrSignatureMismatch", err)
	}
	if got := f.store.booking(t, other.ID).Status; got != models.BookingStatusPending {
		t.Errorf("status = %s, want pending", got)
	}
}

func TestCapturedPaymentCannotSettleAnotherBooking(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	cheap := f.seedBooking("2025-02-01", "2025-02-02", 2240, models.BookingStatusPending, models.PaymentStatusPending)
	pricey := f.seedBooking("2025-02-01", "2025-02-06", 22400, models.BookingStatusPending, models.PaymentStatusPending)

	cheapOrder := f.initiateOnline(t, cheap).GatewayOrderID
	if _, err := f.verify(cheap, cheapOrder, "pay_cheap", f.gateway.sign(cheapOrder, "pay_cheap")); err != nil {
		t.Fatalf("VerifyPayment(cheap): %v", err)
	}

	// an order opened for the pricey booking's reference at the cheap total
	f.gateway.openOrder("order_underpaid", pricing.MinorUnits(cheap.TotalAmount), pricey.BookingReference)

	legacy := func(orderID, paymentID string) map[string]interface{} {
		return map[string]interface{}{
			"razorpay_order_id":   orderID,
			"razorpay_payment_id": paymentID,
			"razorpay_signature":  f.gateway.sign(orderID, paymentID),
		}
	}
	tests := []struct {
		name    string
		details map[string]interface{}
	}{
		{name: "replayed payment of another booking", details: legacy(cheapOrder, "pay_cheap")},
		{name: "new payment into another booking's order", details: legacy(cheapOrder, "pay_fresh")},
		{name: "order for a smaller amount", details: legacy("order_underpaid", "pay_under")},
		{name: "order unknown to the gateway", details: legacy("order_made_up", "pay_made_up")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.payments.InitiatePayment(ctx, f.guest, pricey.ID, InitiatePaymentInput{Method: "upi", Details: tt.details})
			if err == nil {
				t.Fatal("captured payment accepted for the wrong booking")
			}
			if got := f.store.booking(t, pricey.ID); got.Status != models.BookingStatusPending || got.PaymentStatus != models.PaymentStatusPending {
				t.Errorf("pricey booking is %s/%s, want pending/pending", got.Status, got.PaymentStatus)
			}
		})
	}

	// the same replay through the verify endpoint, against the pricey booking's own order
	priceyOrder := f.initiateOnline(t, pricey).GatewayOrderID
	if _, err := f.verify(pricey, priceyOrder, "pay_cheap", f.gateway.sign(priceyOrder, "pay_cheap")); !errors.Is(err, apperrors.ErrSignatureMismatch) {
		t.Errorf("reused gateway payment: got %v, want ErrSignatureMismatch", err)
	}
	if got := f.store.booking(t, pricey.ID).Status; got != models.BookingStatusPending {
		t.Errorf("status = %s, want pending", got)
	}
	if f.notifier.count(pricey.ID) != 0 {
		t.Errorf("pricey booking was sent a confirmation")
	}
}

func TestConfirmCashPayment(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	b := f.book(t, "2025-01-05", "2025-01-08")
	if _, err := f.payments.InitiatePayment(ctx, f.guest, b.ID, InitiatePaymentInput{Method: "cash"}); err != nil {
		t.Fatal(err)
	}

	res, err := f.admin.ConfirmCashPayment(ctx, uuid.New(), b.ID)
	if err != nil {
		t.Fatalf("ConfirmCashPayment: %v", err)
	}
	if res.Status != models.BookingStatusConfirmed || res.PaymentStatus != models.PaymentStatusCompleted {
		t.Errorf("result = %+v", res)
	}
	if p := f.store.payment(t, b.ID); p.PaymentStatus != models.PaymentStatusCompleted {
		t.Errorf("payment status = %s, want completed", p.PaymentStatus)
	}
	if f.notifier.count(b.ID) != 1 {
		t.Errorf("notifications = %d, want 1", f.notifier.count(b.ID))
	}

	if _, err := f.admin.ConfirmCashPayment(ctx, uuid.New(), b.ID); !errors.Is(err, apperrors.ErrBookingNotPending) {
		t.Errorf("second confirmation: got %v, want ErrBookingNotPending", err)
	}

	online := f.seedBooking("2025-01-10", "2025-01-11", 2000, models.BookingStatusPending, models.PaymentStatusPending)
	f.seedPayment(online, models.PaymentMethodUPI, models.PaymentStatusPending, "order_x")
	if _, err := f.admin.ConfirmCashPayment(ctx, uuid.New(), online.ID); apperrors.KindOf(err) != apperrors.KindValidation {
		t.Errorf("online payment: got %v, want a validation error", err)
	}
}
