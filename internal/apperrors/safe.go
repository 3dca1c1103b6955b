package apperrors

import (
	"errors"
	"net/http"
	"strings"
)

const defaultSafeMessage = "An error occurred while processing your request. Please try again later."

// Postgres and PostgREST codes that can leak out of the store layer.
var storeCodeMessages = map[string]string{
	"23505":    "This record already exists. Please try again with different details.",
	"23503":    "The referenced record was not found. Please check your input.",
	"23502":    "Required information is missing. Please fill in all required fields.",
	"42501":    "You do not have permission to perform this action.",
	"42P01":    "The requested resource could not be found.",
	"PGRST116": "No data was found for your request.",
	"PGRST301": "You do not have permission to perform this action.",
}

// SafeMessage turns any error into a message that can be returned to a
// client. AppErrors keep their own message except for internal and gateway
// failures, whose causes never leave the server.
func SafeMessage(err error) string {
	if err == nil {
		return ""
	}
	if appErr, ok := As(err); ok {
		switch appErr.Kind {
		case KindInternal:
			if appErr.Code == CodeAvailabilityQueryFailed {
				return appErr.Message
			}
			return translateCause(appErr.Err)
		default:
			return appErr.Message
		}
	}
	return translateCause(err)
}

func translateCause(err error) string {
	if err == nil {
		return defaultSafeMessage
	}
	msg := err.Error()
	for code, safe := range storeCodeMessages {
		if strings.Contains(msg, code) {
			return safe
		}
	}
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "invalid") && strings.Contains(lower, "credentials"):
		return "Invalid email or password. Please try again."
	case strings.Contains(lower, "email") && strings.Contains(lower, "confirm"):
		return "Please verify your email address before logging in."
	case strings.Contains(lower, "already") && strings.Contains(lower, "exists"):
		return "An account with this email already exists."
	}
	return defaultSafeMessage
}

// HTTPStatus maps an error kind onto the response status code.
func HTTPStatus(err error) int {
	if errors.Is(err, ErrForbidden) {
		return http.StatusForbidden
	}
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindStateConflict:
		return http.StatusConflict
	case KindGateway:
		return http.StatusBadGateway
	case KindSecurity:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
