package models

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}

func (su *SupabaseRepo) GetHotel(ctx context.Context, id uuid.UUID) (*Hotel, error) {
	data, _, err := su.supabaseClient.From(HotelsTable).
		Select("*", "", false).
		Eq("id", id.String()).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to get hotel: %w", err)
	}

	var hotels []Hotel
	if err := json.Unmarshal(data, &hotels); err != nil {
		return nil, fmt.Errorf("failed to unmarshal hotel rows: %w", err)
	}
	if len(hotels) == 0 {
		return nil, ErrNoRows
	}
	return &hotels[0], nil
}

func (su *SupabaseRepo) GetRoomType(ctx context.Context, id uuid.UUID) (*RoomType, error) {
	data, _, err := su.supabaseClient.From(RoomTypesTable).
		Select("*", "", false).
		Eq("id", id.String()).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to get room type: %w", err)
	}

	var roomTypes []RoomType
	if err := json.Unmarshal(data, &roomTypes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal room type rows: %w", err)
	}
	if len(roomTypes) == 0 {
		return nil, ErrNoRows
	}
	return &roomTypes[0], nil
}

func (su *SupabaseRepo) ListRoomTypesForHotel(ctx context.Context, hotelID uuid.UUID, minGuests int) ([]*RoomType, error) {
	data, _, err := su.supabaseClient.From(RoomTypesTable).
		Select("*", "", false).
		Eq("hotel_id", hotelID.String()).
		Gte("max_guests", strconv.Itoa(minGuests)).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to list room types: %w", err)
	}

	var roomTypes []*RoomType
	if err := json.Unmarshal(data, &roomTypes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal room type rows: %w", err)
	}
	return roomTypes, nil
}

func (su *SupabaseRepo) ListRoomsForRoomTypes(ctx context.Context, roomTypeIDs []uuid.UUID, status RoomStatus) ([]*Room, error) {
	if len(roomTypeIDs) == 0 {
		return []*Room{}, nil
	}

	data, _, err := su.supabaseClient.From(RoomsTable).
		Select("*", "", false).
		In("room_type_id", uuidStrings(roomTypeIDs)).
		Eq("status", string(status)).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}

	var rooms []*Room
	if err := json.Unmarshal(data, &rooms); err != nil {
		return nil, fmt.Errorf("failed to unmarshal room rows: %w", err)
	}
	return rooms, nil
}

func (su *SupabaseRepo) ListRoomAvailability(ctx context.Context, roomIDs []uuid.UUID, from, to time.Time) ([]*RoomAvailability, error) {
	if len(roomIDs) == 0 {
		return []*RoomAvailability{}, nil
	}

	data, _, err := su.supabaseClient.From(RoomAvailabilityTable).
		Select("*", "", false).
		In("room_id", uuidStrings(roomIDs)).
		Gte("date", from.Format(DateLayout)).
		Lt("date", to.Format(DateLayout)).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to list room availability: %w", err)
	}

	var overrides []*RoomAvailability
	if err := json.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("failed to unmarshal room availability rows: %w", err)
	}
	return overrides, nil
}

func (su *SupabaseRepo) GetProfile(ctx context.Context, id uuid.UUID) (*Profile, error) {
	data, _, err := su.supabaseClient.From(ProfileTable).
		Select("id,email,full_name,phone,role,created_at", "", false).
		Eq("id", id.String()).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	var profiles []Profile
	if err := json.Unmarshal(data, &profiles); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile rows: %w", err)
	}
	if len(profiles) == 0 {
		return nil, ErrNoRows
	}
	return &profiles[0], nil
}

func (su *SupabaseRepo) CountStats(ctx context.Context) (*DashboardStats, error) {
	count := func(table string, filters map[string]string) (int64, error) {
		q := su.supabaseClient.From(table).Select("id", "exact", true)
		for col, val := range filters {
			q = q.Eq(col, val)
		}
		_, n, err := q.Execute()
		if err != nil {
			return 0, fmt.Errorf("failed to count %s: %w", table, err)
		}
		return n, nil
	}

	stats := &DashboardStats{}
	var err error
	if stats.Hotels, err = count(HotelsTable, nil); err != nil {
		return nil, err
	}
	if stats.RoomTypes, err = count(RoomTypesTable, nil); err != nil {
		return nil, err
	}
	if stats.Bookings, err = count(BookingsTable, nil); err != nil {
		return nil, err
	}
	if stats.PendingBookings, err = count(BookingsTable, map[string]string{"status": string(BookingStatusPending)}); err != nil {
		return nil, err
	}
	return stats, nil
}
