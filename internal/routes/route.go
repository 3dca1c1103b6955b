package routes

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joshua-takyi/staybook/internal/container"
	"github.com/joshua-takyi/staybook/internal/handlers"
	"github.com/joshua-takyi/staybook/internal/middleware"
)

// SetupRoutes configures all routes with the dependency container
func SetupRoutes(container *container.Container) *gin.Engine {
	if container.Config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{container.Config.FrontendURL},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
	}))

	// Add middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.StructuredLogger(container.Logger))
	r.Use(middleware.ErrorHandler(container.Logger))
	r.Use(gin.Recovery())

	// API version 1
	v1 := r.Group("/api/v1")
	{
		// Health check
		v1.GET("/health", func(c *gin.Context) {
			c.JSON(200, gin.H{
				"status":  "OK",
				"service": "staybook-api",
			})
		})

		// public routes
		v1.POST("/availability", handlers.FindAvailableRoomTypes(container.AvailabilityService))
		v1.POST("/logout", handlers.Logout(container.Config.IsProduction()))
	}

	protected := v1.Group("/")
	protected.Use(middleware.AuthMiddleware(container.UserService, container.Logger))

	protected.GET("/me", handlers.GetMe(container.UserService))

	bookingRoutes := protected.Group("/bookings")
	{
		bookingRoutes.POST("", handlers.CreateBooking(container.BookingService))
		bookingRoutes.GET("", handlers.ListMyBookings(container.BookingService))
		bookingRoutes.GET("/:id", handlers.GetBooking(container.BookingService))
		bookingRoutes.POST("/:id/payments", handlers.InitiatePayment(container.PaymentService))
		bookingRoutes.POST("/:id/payments/verify", handlers.VerifyPayment(container.PaymentService))
		bookingRoutes.POST("/:id/cancel", handlers.CancelBooking(container.CancellationService))
	}

	adminRoutes := protected.Group("/admin")
	adminRoutes.Use(middleware.AdminOnly())
	{
		adminRoutes.GET("/bookings", handlers.AdminListBookings(container.AdminService))
		adminRoutes.GET("/bookings/:id", handlers.AdminGetBooking(container.AdminService))
		adminRoutes.PATCH("/bookings/:id/status", handlers.AdminUpdateBookingStatus(container.AdminService))
		adminRoutes.POST("/bookings/:id/cash-confirm", handlers.AdminConfirmCashPayment(container.AdminService))
		adminRoutes.GET("/stats", handlers.AdminDashboardStats(container.AdminService))
	}

	return r
}
