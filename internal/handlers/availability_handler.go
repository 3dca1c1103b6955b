package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joshua-takyi/staybook/internal/models"
	"github.com/joshua-takyi/staybook/internal/services"
)

type availabilityRequest struct {
	HotelID   string `json:"hotel_id" binding:"required"`
	CheckIn   string `json:"check_in" binding:"required"`
	CheckOut  string `json:"check_out" binding:"required"`
	NumGuests int    `json:"num_guests" binding:"required,min=1"`
}

func FindAvailableRoomTypes(as *services.AvailabilityService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req availabilityRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "hotel_id, check_in, check_out and num_guests are required")
			return
		}

		hotelID, err := uuid.Parse(req.HotelID)
		if err != nil {
			badRequest(c, "hotel_id must be a valid UUID")
			return
		}
		checkIn, checkOut, ok := parseStay(c, req.CheckIn, req.CheckOut)
		if !ok {
			return
		}

		rooms, err := as.FindAvailableRoomTypes(c.Request.Context(), services.AvailabilityQuery{
			HotelID:   hotelID,
			CheckIn:   checkIn.Time,
			CheckOut:  checkOut.Time,
			NumGuests: req.NumGuests,
		})
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, models.SuccessResponse(rooms, "available room types"))
	}
}

func parseStay(c *gin.Context, rawIn, rawOut string) (models.Date, models.Date, bool) {
	checkIn, err := models.ParseDate(rawIn)
	if err != nil {
		badRequest(c, "check_in must be a date in YYYY-MM-DD format")
		return models.Date{}, models.Date{}, false
	}
	checkOut, err := models.ParseDate(rawOut)
	if err != nil {
		badRequest(c, "check_out must be a date in YYYY-MM-DD format")
		return models.Date{}, models.Date{}, false
	}
	return checkIn, checkOut, true
}
