package helpers

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// CustomClaims is the shape of a Supabase access token.
type CustomClaims struct {
	Role        string `json:"role"`
	Email       string `json:"email"`
	AppMetadata struct {
		Provider  string   `json:"provider"`
		Providers []string `json:"providers"`
		Roles     []string `json:"roles,omitempty"`
	} `json:"app_metadata"`
	UserMetadata map[string]interface{} `json:"user_metadata"`
	jwt.RegisteredClaims
}

// EnhancedClaims is the caller identity stored on the gin context. Role
// comes from the profiles table, never from the token.
type EnhancedClaims struct {
	*CustomClaims
	Role     string    `json:"role"`
	UserID   uuid.UUID `json:"id"`
	Email    string    `json:"email,omitempty"`
	Fullname string    `json:"fullname,omitempty"`
	Phone    string    `json:"phone,omitempty"`
}

func (ec *EnhancedClaims) IsAdmin() bool {
	return ec.Role == "admin"
}

func (ec *EnhancedClaims) HasRole(role string) bool {
	return ec.Role == role
}

func (ec *EnhancedClaims) IsOwner(userID uuid.UUID) bool {
	return ec.UserID != uuid.Nil && ec.UserID == userID
}

func (ec *EnhancedClaims) GetSafeRole() string {
	if ec.Role == "" {
		return "guest"
	}
	return ec.Role
}
