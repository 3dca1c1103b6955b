package apperrors

import (
	"errors"
	"fmt"
)

// Kind groups errors by how they are surfaced to callers.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindNotFound      Kind = "not_found"
	KindStateConflict Kind = "state_conflict"
	KindGateway       Kind = "gateway"
	KindSecurity      Kind = "security"
	KindUnauthorized  Kind = "unauthorized"
	KindInternal      Kind = "internal"
)

type Code string

const (
	CodeInvalidDateRange        Code = "INVALID_DATE_RANGE"
	CodeInvalidInput            Code = "INVALID_INPUT"
	CodeRoomTypeNotFound        Code = "ROOM_TYPE_NOT_FOUND"
	CodeNotFound                Code = "NOT_FOUND"
	CodeInvalidTransition       Code = "INVALID_TRANSITION"
	CodeBookingNotPending       Code = "BOOKING_NOT_PENDING"
	CodeAlreadyCancelled        Code = "ALREADY_CANCELLED"
	CodeAlreadyCompleted        Code = "ALREADY_COMPLETED"
	CodeRoomUnavailable         Code = "ROOM_UNAVAILABLE"
	CodeGatewayUnavailable      Code = "GATEWAY_UNAVAILABLE"
	CodeSignatureMismatch       Code = "SIGNATURE_MISMATCH"
	CodeAvailabilityQueryFailed Code = "AVAILABILITY_QUERY_FAILED"
	CodeUnauthorized            Code = "UNAUTHORIZED"
	CodeForbidden               Code = "FORBIDDEN"
	CodeStoreFailure            Code = "STORE_FAILURE"
)

// AppError carries a kind for HTTP mapping, a stable code and a message that
// is safe to show to the caller. Err holds the underlying cause for logs.
type AppError struct {
	Kind    Kind
	Code    Code
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches on code so that wrapped copies of a sentinel compare equal.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func New(kind Kind, code Code, message string, err error) *AppError {
	return &AppError{Kind: kind, Code: code, Message: message, Err: err}
}

// Wrap returns a copy of sentinel with err attached as the cause.
func Wrap(sentinel *AppError, err error) *AppError {
	return &AppError{Kind: sentinel.Kind, Code: sentinel.Code, Message: sentinel.Message, Err: err}
}

// WithMessage returns a copy of sentinel with a more specific safe message.
func WithMessage(sentinel *AppError, message string) *AppError {
	return &AppError{Kind: sentinel.Kind, Code: sentinel.Code, Message: message}
}

func Validation(message string) *AppError {
	return &AppError{Kind: KindValidation, Code: CodeInvalidInput, Message: message}
}

func Internal(err error) *AppError {
	return &AppError{Kind: KindInternal, Code: CodeStoreFailure, Message: "internal error", Err: err}
}

func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

func KindOf(err error) Kind {
	if appErr, ok := As(err); ok {
		return appErr.Kind
	}
	return KindInternal
}

var (
	ErrInvalidDateRange        = New(KindValidation, CodeInvalidDateRange, "check-out must be after check-in", nil)
	ErrRoomTypeNotFound        = New(KindNotFound, CodeRoomTypeNotFound, "room type not found", nil)
	ErrBookingNotFound         = New(KindNotFound, CodeNotFound, "booking not found", nil)
	ErrInvalidTransition       = New(KindStateConflict, CodeInvalidTransition, "status change not allowed", nil)
	ErrBookingNotPending       = New(KindStateConflict, CodeBookingNotPending, "booking is not awaiting payment", nil)
	ErrAlreadyCancelled        = New(KindStateConflict, CodeAlreadyCancelled, "booking is already cancelled", nil)
	ErrAlreadyCompleted        = New(KindStateConflict, CodeAlreadyCompleted, "cannot cancel a completed booking", nil)
	ErrRoomUnavailable         = New(KindStateConflict, CodeRoomUnavailable, "no rooms of this type are available for the selected dates", nil)
	ErrGatewayUnavailable      = New(KindGateway, CodeGatewayUnavailable, "payment could not be processed, please try again", nil)
	ErrSignatureMismatch       = New(KindSecurity, CodeSignatureMismatch, "payment verification failed", nil)
	ErrAvailabilityQueryFailed = New(KindInternal, CodeAvailabilityQueryFailed, "could not check availability, please try again", nil)
	ErrUnauthorized            = New(KindUnauthorized, CodeUnauthorized, "unauthorized", nil)
	ErrForbidden               = New(KindSecurity, CodeForbidden, "you do not have permission to perform this action", nil)
)
