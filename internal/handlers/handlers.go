package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joshua-takyi/staybook/internal/apperrors"
	"github.com/joshua-takyi/staybook/internal/helpers"
	"github.com/joshua-takyi/staybook/internal/middleware"
	"github.com/joshua-takyi/staybook/internal/models"
)

// respondError attaches err for the error middleware to log and writes the
// safe rendering of it.
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(apperrors.HTTPStatus(err), models.AppErrorResponse(err))
}

func badRequest(c *gin.Context, message string) {
	respondError(c, apperrors.Validation(message))
}

func currentUser(c *gin.Context) (*helpers.EnhancedClaims, bool) {
	claims, ok := middleware.CurrentUser(c)
	if !ok {
		respondError(c, apperrors.ErrUnauthorized)
		return nil, false
	}
	return claims, true
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	raw := strings.TrimSpace(c.Param(name))
	id, err := uuid.Parse(raw)
	if err != nil {
		badRequest(c, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}
