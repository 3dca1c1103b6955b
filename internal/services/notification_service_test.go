package services

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/joshua-takyi/staybook/internal/models"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func newDispatcher(f *fixture, sender *recordingSender, outbox *memOutbox) *NotificationDispatcher {
	nd := NewNotificationDispatcher(f.store, sender, outbox, decimal.RequireFromString("0.12"), "INR", discardLogger())
	nd.now = func() time.Time { return f.now }
	return nd
}

func TestBookingConfirmedSendsToGuestContact(t *testing.T) {
	f := newFixture(t, 1)
	b := f.book(t, "2025-01-05", "2025-01-08")
	sender := &recordingSender{}
	nd := newDispatcher(f, sender, &memOutbox{})

	nd.BookingConfirmed(context.Background(), b.ID)
	nd.Wait()

	if len(sender.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sender.sent))
	}
	msg := sender.sent[0]
	if msg.ToEmail != "asha@example.com" {
		t.Errorf("to = %q, want the guest contact", msg.ToEmail)
	}
	if !strings.Contains(msg.Subject, b.BookingReference) {
		t.Errorf("subject %q lacks the reference", msg.Subject)
	}
	if !strings.Contains(msg.HTML, "Sea View") || !strings.Contains(msg.HTML, "Deluxe") {
		t.Errorf("body lacks hotel or room type")
	}
}

func TestBookingConfirmedFallsBackToProfile(t *testing.T) {
	f := newFixture(t, 1)
	b := f.seedBooking("2025-01-05", "2025-01-06", 2000, models.BookingStatusConfirmed, models.PaymentStatusCompleted)
	sender := &recordingSender{}

	nd := newDispatcher(f, sender, &memOutbox{})
	nd.BookingConfirmed(context.Background(), b.ID)
	nd.Wait()

	if len(sender.sent) != 1 || sender.sent[0].ToEmail != "guest@example.com" {
		t.Fatalf("sent = %+v, want the profile email", sender.sent)
	}
}

func TestFailedConfirmationIsRetried(t *testing.T) {
	f := newFixture(t, 1)
	b := f.book(t, "2025-01-05", "2025-01-08")
	sender := &recordingSender{err: errors.New("mailjet: 503")}
	outbox := &memOutbox{}
	nd := newDispatcher(f, sender, outbox)

	nd.BookingConfirmed(context.Background(), b.ID)
	nd.Wait()

	if len(outbox.entries) != 1 {
		t.Fatalf("outbox entries = %d, want 1", len(outbox.entries))
	}
	entry := outbox.entries[0]
	if entry.BookingID != b.ID.String() || entry.Attempts != 1 {
		t.Errorf("entry = %+v", entry)
	}

	// not due yet
	if sent, err := nd.RetryDue(context.Background()); err != nil || sent != 0 {
		t.Fatalf("RetryDue before backoff = %d, %v", sent, err)
	}

	f.now = f.now.Add(2 * time.Minute)
	sender.err = nil
	sent, err := nd.RetryDue(context.Background())
	if err != nil {
		t.Fatalf("RetryDue: %v", err)
	}
	if sent != 1 || len(sender.sent) != 1 {
		t.Fatalf("sent = %d (%d messages), want 1", sent, len(sender.sent))
	}
	if outbox.entries[0].Status != models.OutboxSent {
		t.Errorf("entry status = %s, want sent", outbox.entries[0].Status)
	}
}

func TestConfirmationGivesUpAfterMaxAttempts(t *testing.T) {
	f := newFixture(t, 1)
	b := f.book(t, "2025-01-05", "2025-01-08")
	sender := &recordingSender{err: errors.New("mailjet: 503")}
	outbox := &memOutbox{}
	nd := newDispatcher(f, sender, outbox)

	nd.BookingConfirmed(context.Background(), b.ID)
	nd.Wait()
	for i := 0; i < maxNotificationAttempts; i++ {
		f.now = f.now.Add(2 * time.Hour)
		if _, err := nd.RetryDue(context.Background()); err != nil {
			t.Fatal(err)
		}
	}

	entry := outbox.entries[0]
	if entry.Status != models.OutboxDead {
		t.Errorf("entry status = %s, want dead", entry.Status)
	}
	if entry.Attempts != maxNotificationAttempts {
		t.Errorf("attempts = %d, want %d", entry.Attempts, maxNotificationAttempts)
	}
}

func TestBookingConfirmedDoesNotWaitForDelivery(t *testing.T) {
	f := newFixture(t, 1)
	b := f.book(t, "2025-01-05", "2025-01-08")
	sender := &recordingSender{block: make(chan struct{})}
	outbox := &memOutbox{}
	nd := newDispatcher(f, sender, outbox)

	ctx, cancel := context.WithCancel(context.Background())
	returned := make(chan struct{})
	go func() {
		nd.BookingConfirmed(ctx, b.ID)
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("BookingConfirmed blocked on a slow mail provider")
	}

	// the request that confirmed the booking ends before the mail goes out
	cancel()
	close(sender.block)
	nd.Wait()

	if len(sender.sent) != 1 || len(outbox.entries) != 0 {
		t.Errorf("sent = %d parked = %d, want the confirmation delivered", len(sender.sent), len(outbox.entries))
	}
}

func TestRetryDueLogsUnmarkableBadEntry(t *testing.T) {
	f := newFixture(t, 1)
	b := f.book(t, "2025-01-05", "2025-01-08")
	outbox := &memOutbox{markErr: errors.New("mongo: connection reset")}
	outbox.entries = []*models.OutboxEntry{
		{ID: primitive.NewObjectID(), BookingID: "not-a-uuid", Kind: notificationBookingConfirmed, Attempts: 1, Status: models.OutboxPending, NextAttempt: f.now},
		{ID: primitive.NewObjectID(), BookingID: b.ID.String(), Kind: notificationBookingConfirmed, Attempts: 1, Status: models.OutboxPending, NextAttempt: f.now},
	}
	sender := &recordingSender{}
	nd := newDispatcher(f, sender, outbox)
	var logs bytes.Buffer
	nd.logger = slog.New(slog.NewTextHandler(&logs, nil))

	sent, err := nd.RetryDue(context.Background())
	if err != nil {
		t.Fatalf("RetryDue: %v", err)
	}
	if sent != 1 {
		t.Errorf("sent = %d, want the valid entry delivered", sent)
	}
	if !strings.Contains(logs.String(), "Failed to update outbox entry") || !strings.Contains(logs.String(), "connection reset") {
		t.Errorf("outbox update failure was not logged:\n%s", logs.String())
	}
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{1, time.Minute},
		{2, 2 * time.Minute},
		{3, 4 * time.Minute},
		{7, time.Hour},
		{20, time.Hour},
	}
	for _, tt := range tests {
		if got := backoff(tt.attempts); got != tt.want {
			t.Errorf("backoff(%d) = %v, want %v", tt.attempts, got, tt.want)
		}
	}
}
