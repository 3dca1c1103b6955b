package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/joshua-takyi/staybook/internal/apperrors"
	"github.com/joshua-takyi/staybook/internal/models"
	"github.com/joshua-takyi/staybook/internal/services"
)

// GetMe returns the caller identity and, when one exists, their profile row.
func GetMe(u *services.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := currentUser(c)
		if !ok {
			return
		}

		profile, err := u.GetProfile(c.Request.Context(), claims.UserID)
		if err != nil && apperrors.KindOf(err) != apperrors.KindNotFound {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, models.SuccessResponse(gin.H{
			"user_id":  claims.UserID,
			"email":    claims.Email,
			"fullname": claims.Fullname,
			"phone":    claims.Phone,
			"role":     claims.GetSafeRole(),
			"is_admin": claims.IsAdmin(),
			"profile":  profile,
		}, ""))
	}
}

// Logout clears the auth cookies the web client holds. The bearer token
// itself expires on the auth server's schedule.
func Logout(secure bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.SetCookie("access_token", "", -1, "/", "", secure, true)
		c.SetCookie("refresh_token", "", -1, "/", "", secure, true)

		c.JSON(http.StatusOK, models.SuccessResponse(nil, "Logged out successfully"))
	}
}
