package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/joshua-takyi/staybook/internal/apperrors"
	"github.com/joshua-takyi/staybook/internal/gateway"
	"github.com/joshua-takyi/staybook/internal/lock"
	"github.com/joshua-takyi/staybook/internal/models"
	"github.com/joshua-takyi/staybook/internal/notify"
	"github.com/joshua-takyi/staybook/internal/pricing"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore is an in-memory BookingStore. Rows are copied in and out so the
// services cannot share state with it by accident.
type memStore struct {
	mu        sync.Mutex
	hotels    map[uuid.UUID]*models.Hotel
	roomTypes map[uuid.UUID]*models.RoomType
	rooms     []*models.Room
	overrides []*models.RoomAvailability
	bookings  map[uuid.UUID]*models.Booking
	guests    map[uuid.UUID]*models.BookingGuest
	payments  map[uuid.UUID]*models.Payment
	profiles  map[uuid.UUID]*models.Profile

	roomsErr error
}

func newMemStore() *memStore {
	return &memStore{
		hotels:    map[uuid.UUID]*models.Hotel{},
		roomTypes: map[uuid.UUID]*models.RoomType{},
		bookings:  map[uuid.UUID]*models.Booking{},
		guests:    map[uuid.UUID]*models.BookingGuest{},
		payments:  map[uuid.UUID]*models.Payment{},
		profiles:  map[uuid.UUID]*models.Profile{},
	}
}

func copyBooking(b *models.Booking) *models.Booking {
	c := *b
	return &c
}

func copyPayment(p *models.Payment) *models.Payment {
	c := *p
	if p.PaymentDetails != nil {
		c.PaymentDetails = map[string]interface{}{}
		for k, v := range p.PaymentDetails {
			c.PaymentDetails[k] = v
		}
	}
	return &c
}

func (m *memStore) GetHotel(ctx context.Context, id uuid.UUID) (*models.Hotel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hotels[id]
	if !ok {
		return nil, models.ErrNoRows
	}
	c := *h
	return &c, nil
}

func (m *memStore) GetRoomType(ctx context.Context, id uuid.UUID) (*models.RoomType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rt, ok := m.roomTypes[id]
	if !ok {
		return nil, models.ErrNoRows
	}
	c := *rt
	return &c, nil
}

func (m *memStore) ListRoomTypesForHotel(ctx context.Context, hotelID uuid.UUID, minGuests int) ([]*models.RoomType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.RoomType
	for _, rt := range m.roomTypes {
		if rt.HotelID == hotelID && rt.MaxGuests >= minGuests {
			c := *rt
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) ListRoomsForRoomTypes(ctx context.Context, roomTypeIDs []uuid.UUID, status models.RoomStatus) ([]*models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.roomsErr != nil {
		return nil, m.roomsErr
	}
	want := map[uuid.UUID]bool{}
	for _, id := range roomTypeIDs {
		want[id] = true
	}
	var out []*models.Room
	for _, r := range m.rooms {
		if want[r.RoomTypeID] && (status == "" || r.Status == status) {
			c := *r
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *memStore) ListRoomAvailability(ctx context.Context, roomIDs []uuid.UUID, from, to time.Time) ([]*models.RoomAvailability, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := map[uuid.UUID]bool{}
	for _, id := range roomIDs {
		want[id] = true
	}
	var out []*models.RoomAvailability
	for _, o := range m.overrides {
		if want[o.RoomID] && !o.Date.Before(from) && o.Date.Before(to) {
			c := *o
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *memStore) GetProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, models.ErrNoRows
	}
	c := *p
	return &c, nil
}

func (m *memStore) CreateBooking(ctx context.Context, booking *models.Booking, guest *models.BookingGuest) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookings[booking.ID] = copyBooking(booking)
	if guest != nil {
		g := *guest
		g.BookingID = booking.ID
		m.guests[booking.ID] = &g
	}
	return copyBooking(booking), nil
}

func (m *memStore) GetBookingByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, models.ErrNoRows
	}
	return copyBooking(b), nil
}

func (m *memStore) GetBookingGuest(ctx context.Context, bookingID uuid.UUID) (*models.BookingGuest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.guests[bookingID]
	if !ok {
		return nil, models.ErrNoRows
	}
	c := *g
	return &c, nil
}

func (m *memStore) ListActiveBookings(ctx context.Context, roomTypeIDs []uuid.UUID, checkIn, checkOut time.Time) ([]*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := map[uuid.UUID]bool{}
	for _, id := range roomTypeIDs {
		want[id] = true
	}
	var out []*models.Booking
	for _, b := range m.bookings {
		if want[b.RoomTypeID] && b.Status.Occupying() && b.OverlapsRange(checkIn, checkOut) {
			out = append(out, copyBooking(b))
		}
	}
	return out, nil
}

func (m *memStore) sortedBookings(keep func(*models.Booking) bool) []*models.Booking {
	var out []*models.Booking
	for _, b := range m.bookings {
		if keep(b) {
			out = append(out, copyBooking(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *memStore) ListBookingsByUser(ctx context.Context, userID uuid.UUID) ([]*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedBookings(func(b *models.Booking) bool { return b.UserID == userID }), nil
}

func (m *memStore) ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.sortedBookings(func(b *models.Booking) bool {
		return filter.Status == "" || b.Status == filter.Status
	})
	total := len(all)
	if filter.Offset >= total {
		return []*models.Booking{}, total, nil
	}
	end := filter.Offset + filter.Limit
	if filter.Limit <= 0 || end > total {
		end = total
	}
	return all[filter.Offset:end], total, nil
}

func (m *memStore) UpdateBookingState(ctx context.Context, id uuid.UUID, change models.BookingStateChange) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok || b.Status != change.FromStatus {
		return false, nil
	}
	if change.FromPaymentStatus != "" && b.PaymentStatus != change.FromPaymentStatus {
		return false, nil
	}
	b.Status = change.ToStatus
	if change.ToPaymentStatus != "" {
		b.PaymentStatus = change.ToPaymentStatus
	}
	b.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (m *memStore) CountStats(ctx context.Context) (*models.DashboardStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &models.DashboardStats{
		Hotels:    int64(len(m.hotels)),
		RoomTypes: int64(len(m.roomTypes)),
		Bookings:  int64(len(m.bookings)),
	}
	for _, b := range m.bookings {
		if b.Status == models.BookingStatusPending {
			stats.PendingBookings++
		}
	}
	return stats, nil
}

func (m *memStore) CreatePayment(ctx context.Context, payment *models.Payment) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments[payment.ID] = copyPayment(payment)
	return copyPayment(payment), nil
}

func (m *memStore) GetPaymentByBooking(ctx context.Context, bookingID uuid.UUID) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *models.Payment
	for _, p := range m.payments {
		if p.BookingID == bookingID && (latest == nil || p.CreatedAt.After(latest.CreatedAt)) {
			latest = p
		}
	}
	if latest == nil {
		return nil, models.ErrNoRows
	}
	return copyPayment(latest), nil
}

func (m *memStore) GetPaymentByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.TransactionID == transactionID {
			return copyPayment(p), nil
		}
	}
	return nil, models.ErrNoRows
}

func (m *memStore) UpdatePayment(ctx context.Context, id uuid.UUID, update models.PaymentUpdate) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok || p.PaymentStatus != update.FromStatus {
		return false, nil
	}
	p.PaymentStatus = update.ToStatus
	if update.Method != "" {
		p.PaymentMethod = update.Method
	}
	if update.TransactionID != "" {
		p.TransactionID = update.TransactionID
	}
	if update.PaymentDetails != nil {
		p.PaymentDetails = update.PaymentDetails
	}
	return true, nil
}

func (m *memStore) booking(t *testing.T, id uuid.UUID) *models.Booking {
	t.Helper()
	b, err := m.GetBookingByID(context.Background(), id)
	if err != nil {
		t.Fatalf("booking %s: %v", id, err)
	}
	return b
}

func (m *memStore) payment(t *testing.T, bookingID uuid.UUID) *models.Payment {
	t.Helper()
	p, err := m.GetPaymentByBooking(context.Background(), bookingID)
	if err != nil {
		t.Fatalf("payment for %s: %v", bookingID, err)
	}
	return p
}

var _ models.BookingStore = (*memStore)(nil)

type fakeGateway struct {
	mu        sync.Mutex
	secret    string
	orders    []*gateway.Order
	refunds   []*gateway.Refund
	createErr error
	refundErr error
}

func (g *fakeGateway) KeyID() string { return "rzp_test_key" }

func (g *fakeGateway) CreateOrder(ctx context.Context, amount int64, currency, receipt string) (*gateway.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	order := &gateway.Order{
		ID:       fmt.Sprintf("order_%d", len(g.orders)+1),
		Amount:   amount,
		Currency: currency,
		Receipt:  receipt,
		Status:   "created",
	}
	g.orders = append(g.orders, order)
	return order, nil
}

func (g *fakeGateway) FetchOrder(ctx context.Context, orderID string) (*gateway.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, o := range g.orders {
		if o.ID == orderID {
			c := *o
			return &c, nil
		}
	}
	return nil, apperrors.Wrap(apperrors.ErrGatewayUnavailable, fmt.Errorf("order %s not found", orderID))
}

// openOrder registers an order as if a checkout client had created it.
func (g *fakeGateway) openOrder(id string, amount int64, receipt string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.orders = append(g.orders, &gateway.Order{ID: id, Amount: amount, Currency: "INR", Receipt: receipt, Status: "paid"})
}

func (g *fakeGateway) orderCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.orders)
}

func (g *fakeGateway) Refund(ctx context.Context, paymentID string, amount int64, notes map[string]string) (*gateway.Refund, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.refundErr != nil {
		return nil, g.refundErr
	}
	refund := &gateway.Refund{
		ID:        fmt.Sprintf("rfnd_%d", len(g.refunds)+1),
		PaymentID: paymentID,
		Amount:    amount,
		Status:    "processed",
	}
	g.refunds = append(g.refunds, refund)
	return refund, nil
}

func (g *fakeGateway) VerifySignature(orderID, paymentID, signature string) bool {
	return gateway.VerifySignature(g.secret, orderID, paymentID, signature)
}

func (g *fakeGateway) sign(orderID, paymentID string) string {
	return gateway.Sign(g.secret, orderID, paymentID)
}

type countingNotifier struct {
	mu    sync.Mutex
	calls map[uuid.UUID]int
}

func (n *countingNotifier) BookingConfirmed(ctx context.Context, bookingID uuid.UUID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.calls == nil {
		n.calls = map[uuid.UUID]int{}
	}
	n.calls[bookingID]++
}

func (n *countingNotifier) count(bookingID uuid.UUID) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[bookingID]
}

type recordingSender struct {
	mu   sync.Mutex
	sent []notify.Message
	err  error

	// block, when set, holds every send until it is closed or ctx ends.
	block chan struct{}
}

func (s *recordingSender) Send(ctx context.Context, msg notify.Message) error {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

type memOutbox struct {
	mu      sync.Mutex
	entries []*models.OutboxEntry
	markErr error
}

func (o *memOutbox) EnqueueNotification(ctx context.Context, entry *models.OutboxEntry) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	entry.ID = primitive.NewObjectID()
	entry.Status = models.OutboxPending
	c := *entry
	o.entries = append(o.entries, &c)
	return nil
}

func (o *memOutbox) DueNotifications(ctx context.Context, now time.Time, limit int) ([]*models.OutboxEntry, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []*models.OutboxEntry
	for _, e := range o.entries {
		if e.Status == models.OutboxPending && !e.NextAttempt.After(now) && len(out) < limit {
			c := *e
			out = append(out, &c)
		}
	}
	return out, nil
}

func (o *memOutbox) find(id primitive.ObjectID) (*models.OutboxEntry, error) {
	for _, e := range o.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, errors.New("outbox entry not found")
}

func (o *memOutbox) MarkNotificationSent(ctx context.Context, id primitive.ObjectID) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, err := o.find(id)
	if err != nil {
		return err
	}
	e.Status = models.OutboxSent
	return nil
}

func (o *memOutbox) MarkNotificationFailed(ctx context.Context, id primitive.ObjectID, attempts int, lastErr string, next time.Time, dead bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.markErr != nil {
		return o.markErr
	}
	e, err := o.find(id)
	if err != nil {
		return err
	}
	e.Attempts = attempts
	e.LastError = lastErr
	e.NextAttempt = next
	if dead {
		e.Status = models.OutboxDead
	}
	return nil
}

type memEventLog struct {
	mu     sync.Mutex
	events []*models.BookingEvent
}

func (l *memEventLog) AppendBookingEvent(ctx context.Context, event *models.BookingEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	c := *event
	l.events = append(l.events, &c)
	return nil
}

func (l *memEventLog) types(bookingID uuid.UUID) []models.BookingEventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.BookingEventType
	for _, e := range l.events {
		if e.BookingID == bookingID.String() {
			out = append(out, e.Type)
		}
	}
	return out
}

// fixture wires every service over one hotel with a single room type.
type fixture struct {
	store        *memStore
	gateway      *fakeGateway
	notifier     *countingNotifier
	events       *memEventLog
	availability *AvailabilityService
	bookings     *BookingService
	payments     *PaymentService
	cancels      *CancellationService
	admin        *AdminService

	now      time.Time
	hotel    *models.Hotel
	roomType *models.RoomType
	rooms    []*models.Room
	guest    uuid.UUID
}

func day(s string) time.Time {
	t, err := pricing.ParseDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

func newFixture(t *testing.T, roomCount int) *fixture {
	t.Helper()

	store := newMemStore()
	hotel := &models.Hotel{ID: uuid.New(), Name: "Sea View", Address: "1 Beach Road", Phone: "+91 22 5555 0000"}
	roomType := &models.RoomType{
		ID:                uuid.New(),
		HotelID:           hotel.ID,
		Name:              "Deluxe",
		BasePricePerNight: decimal.NewFromInt(2000),
		MaxGuests:         2,
	}
	store.hotels[hotel.ID] = hotel
	store.roomTypes[roomType.ID] = roomType

	var rooms []*models.Room
	for i := 0; i < roomCount; i++ {
		r := &models.Room{
			ID:         uuid.New(),
			RoomTypeID: roomType.ID,
			RoomNumber: fmt.Sprintf("10%d", i+1),
			Status:     models.RoomStatusAvailable,
		}
		rooms = append(rooms, r)
		store.rooms = append(store.rooms, r)
	}

	guest := uuid.New()
	store.profiles[guest] = &models.Profile{ID: guest, Email: "guest@example.com", FullName: "Asha Rao", Role: models.RoleGuest}

	logger := discardLogger()
	gw := &fakeGateway{secret: "test_secret"}
	notifier := &countingNotifier{}
	events := &memEventLog{}
	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	availability := NewAvailabilityService(store, logger)
	bookings := NewBookingService(store, availability, pricing.NewEngine(decimal.RequireFromString("0.12")), lock.NewLocalLocker(time.Second), events, logger)
	bookings.now = clock
	payments := NewPaymentService(store, gw, bookings, notifier, events, "INR", logger)
	payments.now = clock
	cancels := NewCancellationService(store, gw, bookings, events, logger)
	cancels.now = clock
	admin := NewAdminService(store, bookings, payments, logger)

	return &fixture{
		store:        store,
		gateway:      gw,
		notifier:     notifier,
		events:       events,
		availability: availability,
		bookings:     bookings,
		payments:     payments,
		cancels:      cancels,
		admin:        admin,
		now:          now,
		hotel:        hotel,
		roomType:     roomType,
		rooms:        rooms,
		guest:        guest,
	}
}

func (f *fixture) setNow(now time.Time) {
	f.now = now
	clock := func() time.Time { return now }
	f.bookings.now = clock
	f.payments.now = clock
	f.cancels.now = clock
}

func (f *fixture) book(t *testing.T, checkIn, checkOut string) *models.Booking {
	t.Helper()
	b, err := f.bookings.CreateBooking(context.Background(), f.guest, CreateBookingInput{
		HotelID:    f.hotel.ID,
		RoomTypeID: f.roomType.ID,
		CheckIn:    day(checkIn),
		CheckOut:   day(checkOut),
		NumGuests:  2,
		Guest:      &GuestInput{FullName: "Asha Rao", Email: "asha@example.com", Phone: "+919800000000"},
	})
	if err != nil {
		t.Fatalf("CreateBooking(%s, %s): %v", checkIn, checkOut, err)
	}
	return b
}

// seedBooking stores a booking directly, bypassing availability.
func (f *fixture) seedBooking(checkIn, checkOut string, total int64, status models.BookingStatus, payment models.PaymentStatus) *models.Booking {
	in, out := day(checkIn), day(checkOut)
	nights, _ := pricing.ComputeNights(in, out)
	b := &models.Booking{
		ID:               uuid.New(),
		BookingReference: "BKSEED" + fmt.Sprint(len(f.store.bookings)),
		UserID:           f.guest,
		HotelID:          f.hotel.ID,
		RoomTypeID:       f.roomType.ID,
		CheckInDate:      models.NewDate(in),
		CheckOutDate:     models.NewDate(out),
		NumGuests:        1,
		NumNights:        nights,
		RoomRate:         decimal.NewFromInt(total).Div(decimal.NewFromInt(int64(nights))),
		Taxes:            decimal.Zero,
		TotalAmount:      decimal.NewFromInt(total),
		Status:           status,
		PaymentStatus:    payment,
		CreatedAt:        f.now,
		UpdatedAt:        f.now,
	}
	f.store.bookings[b.ID] = copyBooking(b)
	return b
}

func (f *fixture) seedPayment(booking *models.Booking, method models.PaymentMethod, status models.PaymentStatus, txID string) *models.Payment {
	p := &models.Payment{
		ID:            uuid.New(),
		BookingID:     booking.ID,
		Amount:        booking.TotalAmount,
		PaymentMethod: method,
		PaymentStatus: status,
		TransactionID: txID,
		CreatedAt:     f.now,
	}
	f.store.payments[p.ID] = copyPayment(p)
	return p
}
