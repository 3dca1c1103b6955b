package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/joshua-takyi/staybook/internal/models"
	"github.com/joshua-takyi/staybook/internal/services"
)

func InitiatePayment(ps *services.PaymentService) gin.HandlerFunc {
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
			PaymentMethod  string                 `json:"payment_method" binding:"required"`
			PaymentDetails map[string]interface{} `json:"payment_details"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "payment_method is required")
			return
		}

		intent, err := ps.InitiatePayment(c.Request.Context(), claims.UserID, bookingID, services.InitiatePaymentInput{
			Method:  req.PaymentMethod,
			Details: req.PaymentDetails,
		})
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, models.SuccessResponse(intent, intent.Message))
	}
}

func VerifyPayment(ps *services.PaymentService) gin.HandlerFunc {
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
			OrderID   string `json:"razorpay_order_id" binding:"required"`
			PaymentID string `json:"razorpay_payment_id" binding:"required"`
			Signature string `json:"razorpay_signature" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "razorpay_order_id, razorpay_payment_id and razorpay_signature are required")
			return
		}

		result, err := ps.VerifyPayment(c.Request.Context(), claims.UserID, bookingID, services.VerifyPaymentInput{
			GatewayOrderID:   req.OrderID,
			GatewayPaymentID: req.PaymentID,
			GatewaySignature: req.Signature,
		})
		if err != nil {
			respondError(c, err)
			return
		}

		message := "payment verified"
		if result.AlreadyVerified {
			message = "payment already verified"
		}
		c.JSON(http.StatusOK, models.SuccessResponse(result, message))
	}
}
