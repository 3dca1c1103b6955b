package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/supabase-community/supabase-go"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

var Validate = validator.New()

const (
	HotelsTable           = "hotels"
	RoomTypesTable        = "room_types"
	RoomsTable            = "rooms"
	RoomAvailabilityTable = "room_availability"
	BookingsTable         = "bookings"
	BookingGuestsTable    = "booking_guests"
	PaymentsTable         = "payments"
	ProfileTable          = "profiles"
)

// ErrNoRows is returned by every store when a lookup matches nothing.
var ErrNoRows = errors.New("no rows found")

func init() {
	// money is serialized as a JSON number, not a quoted string
	decimal.MarshalJSONWithoutQuotes = true
}

type HotelRepo interface {
	GetHotel(ctx context.Context, id uuid.UUID) (*Hotel, error)
	GetRoomType(ctx context.Context, id uuid.UUID) (*RoomType, error)
	ListRoomTypesForHotel(ctx context.Context, hotelID uuid.UUID, minGuests int) ([]*RoomType, error)
	ListRoomsForRoomTypes(ctx context.Context, roomTypeIDs []uuid.UUID, status RoomStatus) ([]*Room, error)
	// ListRoomAvailability returns override rows whose date lies in [from, to).
	ListRoomAvailability(ctx context.Context, roomIDs []uuid.UUID, from, to time.Time) ([]*RoomAvailability, error)
}

type BookingRepo interface {
	CreateBooking(ctx context.Context, booking *Booking, guest *BookingGuest) (*Booking, error)
	GetBookingByID(ctx context.Context, id uuid.UUID) (*Booking, error)
	GetBookingGuest(ctx context.Context, bookingID uuid.UUID) (*BookingGuest, error)
	// ListActiveBookings returns pending and confirmed bookings of the room
	// types that overlap [checkIn, checkOut).
	ListActiveBookings(ctx context.Context, roomTypeIDs []uuid.UUID, checkIn, checkOut time.Time) ([]*Booking, error)
	ListBookingsByUser(ctx context.Context, userID uuid.UUID) ([]*Booking, error)
	ListBookings(ctx context.Context, filter BookingFilter) ([]*Booking, int, error)
	// UpdateBookingState reports false when the row no longer matches the
	// expected state.
	UpdateBookingState(ctx context.Context, id uuid.UUID, change BookingStateChange) (bool, error)
	CountStats(ctx context.Context) (*DashboardStats, error)
}

type PaymentRepo interface {
	CreatePayment(ctx context.Context, payment *Payment) (*Payment, error)
	GetPaymentByBooking(ctx context.Context, bookingID uuid.UUID) (*Payment, error)
	// GetPaymentByTransactionID finds the payment that recorded a gateway
	// payment id or order id.
	GetPaymentByTransactionID(ctx context.Context, transactionID string) (*Payment, error)
	UpdatePayment(ctx context.Context, id uuid.UUID, update PaymentUpdate) (bool, error)
}

type ProfileRepo interface {
	GetProfile(ctx context.Context, id uuid.UUID) (*Profile, error)
}

// BookingStore is the relational store behind the booking lifecycle.
type BookingStore interface {
	HotelRepo
	BookingRepo
	PaymentRepo
	ProfileRepo
}

// SupabaseRepo runs every query with the service role client. Ownership is
// enforced by the services, not by row level security.
type SupabaseRepo struct {
	supabaseClient *supabase.Client
}

func SupabaseNewRepo(supabaseClient *supabase.Client) *SupabaseRepo {
	return &SupabaseRepo{
		supabaseClient: supabaseClient,
	}
}

// PostgresRepo talks to the same schema directly through gorm.
type PostgresRepo struct {
	db *gorm.DB
}

func PostgresNewRepo(db *gorm.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

type MongodbRepo struct {
	mongodbClient *mongo.Client
	dbName        string
}

func MongodbNewRepo(mongodbClient *mongo.Client, dbName string) *MongodbRepo {
	return &MongodbRepo{
		mongodbClient: mongodbClient,
		dbName:        dbName,
	}
}

func (mdb *MongodbRepo) GetCollection(ctx context.Context, colName string) (*mongo.Collection, error) {
	if mdb.mongodbClient == nil {
		return nil, fmt.Errorf("mongodb client is not initialized")
	}
	return mdb.mongodbClient.Database(mdb.dbName).Collection(colName), nil
}

var (
	_ BookingStore = (*SupabaseRepo)(nil)
	_ BookingStore = (*PostgresRepo)(nil)
)
