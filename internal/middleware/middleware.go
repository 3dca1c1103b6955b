package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joshua-takyi/staybook/internal/apperrors"
	"github.com/joshua-takyi/staybook/internal/helpers"
	"github.com/joshua-takyi/staybook/internal/models"
)

// UserKey is the gin context key holding *helpers.EnhancedClaims.
const UserKey = "user"

// Authenticator resolves a bearer credential into the caller identity.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*helpers.EnhancedClaims, error)
}

// RequestID middleware adds a unique request ID to each request
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// StructuredLogger provides structured logging middleware
func StructuredLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()
		if raw != "" {
			path = path + "?" + raw
		}
		requestID, _ := c.Get("request_id")

		attrs := []any{
			"request_id", requestID,
			"method", c.Request.Method,
			"path", path,
			"status", statusCode,
			"latency", latency,
			"client_ip", c.ClientIP(),
		}
		if claims, ok := CurrentUser(c); ok {
			attrs = append(attrs, "user_id", claims.UserID)
		}

		switch {
		case statusCode >= http.StatusInternalServerError:
			logger.Error("HTTP Request", attrs...)
		case statusCode >= http.StatusBadRequest:
			logger.Warn("HTTP Request", attrs...)
		default:
			logger.Info("HTTP Request", attrs...)
		}
	}
}

// ErrorHandler logs every error a handler attached to the context and
// renders one if the handler did not write a response itself. Causes are
// logged here and never sent to the client.
func ErrorHandler(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err
		requestID, _ := c.Get("request_id")
		status := apperrors.HTTPStatus(err)

		attrs := []any{
			"request_id", requestID,
			"error", err.Error(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
		}
		if status >= http.StatusInternalServerError {
			logger.Error("Request error", attrs...)
		} else {
			logger.Debug("Request rejected", attrs...)
		}

		if !c.Writer.Written() {
			res := models.AppErrorResponse(err)
			c.JSON(status, res)
		}
	}
}

// bearerToken prefers the Authorization header and falls back to the
// access_token cookie the web client sets.
func bearerToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		if scheme, token, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	token, err := c.Cookie("access_token")
	if err != nil {
		return ""
	}
	return token
}

func AuthMiddleware(auth Authenticator, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.AppErrorResponse(apperrors.ErrUnauthorized))
			return
		}

		claims, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			_ = c.Error(err)
			c.AbortWithStatusJSON(apperrors.HTTPStatus(err), models.AppErrorResponse(err))
			return
		}

		logger.Debug("Authenticated request", "user_id", claims.UserID, "role", claims.GetSafeRole())
		c.Set(UserKey, claims)
		c.Next()
	}
}

// AdminOnly must run after AuthMiddleware.
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := CurrentUser(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.AppErrorResponse(apperrors.ErrUnauthorized))
			return
		}
		if !claims.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, models.AppErrorResponse(apperrors.ErrForbidden))
			return
		}
		c.Next()
	}
}

func CurrentUser(c *gin.Context) (*helpers.EnhancedClaims, bool) {
	value, exists := c.Get(UserKey)
	if !exists {
		return nil, false
	}
	claims, ok := value.(*helpers.EnhancedClaims)
	if !ok || claims == nil {
		return nil, false
	}
	return claims, true
}
