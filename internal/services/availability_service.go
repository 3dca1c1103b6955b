package services

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/joshua-takyi/staybook/internal/apperrors"
	"github.com/joshua-takyi/staybook/internal/models"
	"github.com/joshua-takyi/staybook/internal/pricing"
	"github.com/shopspring/decimal"
)

type AvailabilityQuery struct {
	HotelID   uuid.UUID
	CheckIn   time.Time
	CheckOut  time.Time
	NumGuests int
}

type AvailableRoomType struct {
	RoomType               *models.RoomType `json:"room_type"`
	EffectivePricePerNight decimal.Decimal  `json:"effective_price_per_night"`
	AvailableRoomCount     int              `json:"available_rooms"`
}

type availabilityStore interface {
	models.HotelRepo
	ListActiveBookings(ctx context.Context, roomTypeIDs []uuid.UUID, checkIn, checkOut time.Time) ([]*models.Booking, error)
}

type AvailabilityService struct {
	store  availabilityStore
	logger *slog.Logger
}

func NewAvailabilityService(store availabilityStore, logger *slog.Logger) *AvailabilityService {
	return &AvailabilityService{
		store:  store,
		logger: logger,
	}
}

// FindAvailableRoomTypes lists the room types of a hotel that can host the
// party and still have a free room for every night of [CheckIn, CheckOut).
// No match is an empty list, not an error.
func (as *AvailabilityService) FindAvailableRoomTypes(ctx context.Context, q AvailabilityQuery) ([]AvailableRoomType, error) {
	if q.HotelID == uuid.Nil {
		return nil, apperrors.Validation("hotel_id is required")
	}
	if q.NumGuests < 1 {
		return nil, apperrors.Validation("num_guests must be at least 1")
	}
	checkIn, checkOut := pricing.TruncateDay(q.CheckIn), pricing.TruncateDay(q.CheckOut)
	if _, err := pricing.ComputeNights(checkIn, checkOut); err != nil {
		return nil, err
	}

	roomTypes, err := as.store.ListRoomTypesForHotel(ctx, q.HotelID, q.NumGuests)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrAvailabilityQueryFailed, err)
	}

	return as.resolve(ctx, roomTypes, checkIn, checkOut)
}

// availabilityFor resolves a single room type; nil means nothing is free.
func (as *AvailabilityService) availabilityFor(ctx context.Context, roomType *models.RoomType, checkIn, checkOut time.Time) (*AvailableRoomType, error) {
	results, err := as.resolve(ctx, []*models.RoomType{roomType}, checkIn, checkOut)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return &results[0], nil
}

func (as *AvailabilityService) resolve(ctx context.Context, roomTypes []*models.RoomType, checkIn, checkOut time.Time) ([]AvailableRoomType, error) {
	results := []AvailableRoomType{}
	if len(roomTypes) == 0 {
		return results, nil
	}

	typeIDs := make([]uuid.UUID, 0, len(roomTypes))
	for _, rt := range roomTypes {
		typeIDs = append(typeIDs, rt.ID)
	}

	rooms, err := as.store.ListRoomsForRoomTypes(ctx, typeIDs, models.RoomStatusAvailable)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrAvailabilityQueryFailed, err)
	}
	roomIDs := make([]uuid.UUID, 0, len(rooms))
	for _, r := range rooms {
		roomIDs = append(roomIDs, r.ID)
	}

	overrides, err := as.store.ListRoomAvailability(ctx, roomIDs, checkIn, checkOut)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrAvailabilityQueryFailed, err)
	}
	bookings, err := as.store.ListActiveBookings(ctx, typeIDs, checkIn, checkOut)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrAvailabilityQueryFailed, err)
	}

	blackedOut := map[uuid.UUID]bool{}
	overridesByRoom := map[uuid.UUID][]*models.RoomAvailability{}
	for _, o := range overrides {
		day := pricing.TruncateDay(o.Date.Time)
		if day.Before(checkIn) || !day.Before(checkOut) {
			continue
		}
		if !o.IsAvailable {
			blackedOut[o.RoomID] = true
			continue
		}
		overridesByRoom[o.RoomID] = append(overridesByRoom[o.RoomID], o)
	}

	bookedRooms := map[uuid.UUID]bool{}
	unassigned := map[uuid.UUID]int{}
	for _, b := range bookings {
		if !b.Status.Occupying() || !b.OverlapsRange(checkIn, checkOut) {
			continue
		}
		if b.RoomID != nil {
			bookedRooms[*b.RoomID] = true
			continue
		}
		unassigned[b.RoomTypeID]++
	}

	roomsByType := map[uuid.UUID][]*models.Room{}
	for _, r := range rooms {
		if !r.Status.Bookable() || blackedOut[r.ID] || bookedRooms[r.ID] {
			continue
		}
		roomsByType[r.RoomTypeID] = append(roomsByType[r.RoomTypeID], r)
	}

	for _, rt := range roomTypes {
		surviving := roomsByType[rt.ID]
		free := len(surviving) - unassigned[rt.ID]
		if free <= 0 {
			continue
		}

		price := rt.BasePricePerNight
		var lowest *decimal.Decimal
		for _, r := range surviving {
			for _, o := range overridesByRoom[r.ID] {
				if o.PriceOverride == nil || o.PriceOverride.IsNegative() {
					continue
				}
				if lowest == nil || o.PriceOverride.LessThan(*lowest) {
					p := *o.PriceOverride
					lowest = &p
				}
			}
		}
		if lowest != nil {
			price = *lowest
		}

		results = append(results, AvailableRoomType{
			RoomType:               rt,
			EffectivePricePerNight: price,
			AvailableRoomCount:     free,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].EffectivePricePerNight.LessThan(results[j].EffectivePricePerNight)
	})

	as.logger.Debug("Availability resolved",
		"room_types", len(roomTypes),
		"available", len(results),
		"check_in", pricing.FormatDay(checkIn),
		"check_out", pricing.FormatDay(checkOut),
	)
	return results, nil
}
