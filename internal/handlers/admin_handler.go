package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/joshua-takyi/staybook/internal/models"
	"github.com/joshua-takyi/staybook/internal/services"
)

func AdminListBookings(as *services.AdminService) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
		if err != nil {
			badRequest(c, "page must be a number")
			return
		}
		limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
		if err != nil {
			badRequest(c, "limit must be a number")
			return
		}

		result, err := as.ListBookings(c.Request.Context(), c.Query("status"), page, limit)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, models.PaginatedResponse(result.Bookings, result.Page, result.Limit, result.Total))
	}
}

func AdminGetBooking(as *services.AdminService) gin.HandlerFunc {
	return func(c *gin.Context) {
		bookingID, ok := uuidParam(c, "id")
		if !ok {
			return
		}

		details, err := as.GetBooking(c.Request.Context(), bookingID)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, models.SuccessResponse(details, ""))
	}
}

func AdminUpdateBookingStatus(as *services.AdminService) gin.HandlerFunc {
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
			Status string `json:"status" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "status is required")
			return
		}

		booking, err := as.UpdateBookingStatus(c.Request.Context(), claims.UserID, bookingID, req.Status)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, models.SuccessResponse(booking, "booking status updated"))
	}
}

func AdminConfirmCashPayment(as *services.AdminService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := currentUser(c)
		if !ok {
			return
		}
		bookingID, ok := uuidParam(c, "id")
		if !ok {
			return
		}

		result, err := as.ConfirmCashPayment(c.Request.Context(), claims.UserID, bookingID)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, models.SuccessResponse(result, "cash payment confirmed"))
	}
}

func AdminDashboardStats(as *services.AdminService) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := as.DashboardStats(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(stats, ""))
	}
}
