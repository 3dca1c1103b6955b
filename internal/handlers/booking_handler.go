package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joshua-takyi/staybook/internal/models"
	"github.com/joshua-takyi/staybook/internal/services"
)

type createBookingRequest struct {
	HotelID    string               `json:"hotel_id"`
	RoomTypeID string               `json:"room_type_id" binding:"required"`
	CheckIn    string               `json:"check_in" binding:"required"`
	CheckOut   string               `json:"check_out" binding:"required"`
	NumGuests  int                  `json:"num_guests"`
	Guest      *services.GuestInput `json:"guest"`
}

func CreateBooking(bs *services.BookingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := currentUser(c)
		if !ok {
			return
		}

		var req createBookingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "room_type_id, check_in and check_out are required")
			return
		}

		roomTypeID, err := uuid.Parse(strings.TrimSpace(req.RoomTypeID))
		if err != nil {
			badRequest(c, "room_type_id must be a valid UUID")
			return
		}
		var hotelID uuid.UUID
		if req.HotelID != "" {
			if hotelID, err = uuid.Parse(strings.TrimSpace(req.HotelID)); err != nil {
				badRequest(c, "hotel_id must be a valid UUID")
				return
			}
		}
		checkIn, checkOut, ok := parseStay(c, req.CheckIn, req.CheckOut)
		if !ok {
			return
		}

		booking, err := bs.CreateBooking(c.Request.Context(), claims.UserID, services.CreateBookingInput{
			HotelID:    hotelID,
			RoomTypeID: roomTypeID,
			CheckIn:    checkIn.Time,
			CheckOut:   checkOut.Time,
			NumGuests:  req.NumGuests,
			Guest:      req.Guest,
		})
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusCreated, models.SuccessResponse(booking, "booking created"))
	}
}

func ListMyBookings(bs *services.BookingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := currentUser(c)
		if !ok {
			return
		}

		scope := services.BookingScope(strings.ToLower(c.DefaultQuery("scope", string(services.ScopeAll))))
		bookings, err := bs.ListMyBookings(c.Request.Context(), claims.UserID, scope)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, models.SuccessResponse(bookings, ""))
	}
}

func GetBooking(bs *services.BookingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := currentUser(c)
		if !ok {
			return
		}
		bookingID, ok := uuidParam(c, "id")
		if !ok {
			return
		}

		details, err := bs.GetBooking(c.Request.Context(), claims.UserID, bookingID)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, models.SuccessResponse(details, ""))
	}
}

func CancelBooking(cs *services.CancellationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := currentUser(c)
		if !ok {
			return
		}
		bookingID, ok := uuidParam(c, "id")
		if !ok {
			return
		}

		var req struct {
			Reason string `json:"reason"`
		}
		// the body is optional
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				badRequest(c, "invalid request payload")
				return
			}
		}

		result, err := cs.CancelBooking(c.Request.Context(), claims.UserID, bookingID, req.Reason)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, models.SuccessResponse(result, "booking cancelled"))
	}
}
