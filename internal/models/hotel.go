package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type RoomStatus string

const (
	RoomStatusAvailable   RoomStatus = "available"
	RoomStatusOccupied    RoomStatus = "occupied"
	RoomStatusMaintenance RoomStatus = "maintenance"
	RoomStatusReserved    RoomStatus = "reserved"
)

func (s RoomStatus) Valid() bool {
	switch s {
	case RoomStatusAvailable, RoomStatusOccupied, RoomStatusMaintenance, RoomStatusReserved:
		return true
	}
	return false
}

// Bookable reports whether a room in this status may take new bookings.
func (s RoomStatus) Bookable() bool {
	return s == RoomStatusAvailable
}

type Hotel struct {
	ID          uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	Name        string         `json:"name" validate:"required"`
	Description string         `json:"description,omitempty"`
	Address     string         `json:"address,omitempty"`
	Phone       string         `json:"phone,omitempty"`
	Email       string         `json:"email,omitempty" validate:"omitempty,email"`
	Amenities   pq.StringArray `json:"amenities,omitempty" gorm:"type:text[]"`
	Images      pq.StringArray `json:"images,omitempty" gorm:"type:text[]"`
	CreatedAt   time.Time      `json:"created_at"`
}

func (Hotel) TableName() string { return HotelsTable }

type RoomType struct {
	ID                uuid.UUID       `json:"id" gorm:"type:uuid;primaryKey"`
	HotelID           uuid.UUID       `json:"hotel_id" gorm:"type:uuid" validate:"required"`
	Name              string          `json:"name" validate:"required"`
	Description       string          `json:"description,omitempty"`
	BasePricePerNight decimal.Decimal `json:"base_price_per_night" gorm:"type:numeric"`
	MaxGuests         int             `json:"max_guests" validate:"required,gt=0"`
	Amenities         pq.StringArray  `json:"amenities,omitempty" gorm:"type:text[]"`
	Images            pq.StringArray  `json:"images,omitempty" gorm:"type:text[]"`
	CreatedAt         time.Time       `json:"created_at"`
}

func (RoomType) TableName() string { return RoomTypesTable }

// Validate rejects room types that cannot be priced or booked.
func (rt *RoomType) Validate() error {
	if err := Validate.Struct(rt); err != nil {
		return fmt.Errorf("invalid room type: %w", err)
	}
	if rt.BasePricePerNight.IsNegative() {
		return fmt.Errorf("invalid room type: base_price_per_night must not be negative")
	}
	return nil
}

type Room struct {
	ID         uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	RoomTypeID uuid.UUID  `json:"room_type_id" gorm:"type:uuid"`
	RoomNumber string     `json:"room_number"`
	Floor      *int       `json:"floor,omitempty"`
	Status     RoomStatus `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
}

func (Room) TableName() string { return RoomsTable }

// RoomAvailability is a per-room, per-date override used for blackouts and
// special pricing.
type RoomAvailability struct {
	ID            uuid.UUID        `json:"id" gorm:"type:uuid;primaryKey"`
	RoomID        uuid.UUID        `json:"room_id" gorm:"type:uuid"`
	Date          Date             `json:"date" gorm:"type:date"`
	IsAvailable   bool             `json:"is_available"`
	PriceOverride *decimal.Decimal `json:"price_override,omitempty" gorm:"type:numeric"`
	Reason        string           `json:"reason,omitempty"`
}

func (RoomAvailability) TableName() string { return RoomAvailabilityTable }

type DashboardStats struct {
	Hotels          int64 `json:"hotels"`
	RoomTypes       int64 `json:"room_types"`
	Bookings        int64 `json:"bookings"`
	PendingBookings int64 `json:"pending_bookings"`
}
