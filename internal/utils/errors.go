package utils

import (
	"errors"
	"net/http"
)

type AppError struct {
	Code    string
	Message string
	Origin  error // Original error that caused this error, if any
}

func (appErr *AppError) Error() string {
	if appErr.Origin != nil {
		return appErr.Message + ": " + appErr.Origin.Error()
	}
	return appErr.Message
}

func (appErr *AppError) Unwrap() error {
	return appErr.Origin
}

// Standard error codes for the application
const (
	// Resource errors
	ErrNotFound     = "NOT_FOUND"
	ErrDuplicate    = "DUPLICATE"
	ErrInvalidInput = "INVALID_INPUT"

	// Authentication/Authorization errors
	ErrUnauthorized = "UNAUTHORIZED"
	ErrInvalidToken = "INVALID_TOKEN"

	// User-specific errors
	ErrUserNotFound       = "USER_NOT_FOUND"
	ErrInvalidCredentials = "INVALID_CREDENTIALS"

	// Message-specific errors
	ErrMessageNotFound = "MESSAGE_NOT_FOUND"

	// Actor communication errors
	ErrActorTimeout = "ACTOR_TIMEOUT"

	// Store I/O failures. Callers may retry.
	ErrDatabase = "database_error"
)

// Error creation helper functions
func NewAppError(code string, message string, originalErr error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Origin:  originalErr,
	}
}

func NewValidationError(message string) *AppError {
	return &AppError{
		Code:    ErrInvalidInput,
		Message: message,
	}
}

func NewUserNotFoundError(userId string) *AppError {
	return &AppError{
		Code:    ErrUserNotFound,
		Message: "User not found: " + userId,
	}
}

func NewMessageNotFoundError(messageId string) *AppError {
	return &AppError{
		Code:    ErrMessageNotFound,
		Message: "Message not found: " + messageId,
	}
}

func NewStoreError(message string, originalErr error) *AppError {
	return &AppError{
		Code:    ErrDatabase,
		Message: message,
		Origin:  originalErr,
	}
}

func NewUnauthorizedError(reason string) *AppError {
	return &AppError{
		Code:    ErrUnauthorized,
		Message: "Unauthorized: " + reason,
	}
}

func NewActorTimeoutError(actorName string, originalErr error) *AppError {
	return &AppError{
		Code:    ErrActorTimeout,
		Message: "Actor communication timeout: " + actorName,
		Origin:  originalErr,
	}
}

// AsAppError unwraps err into an AppError. Errors that are not AppErrors are
// reported as store failures so the caller always gets a tagged result.
func AsAppError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewStoreError("unexpected failure", err)
}

// Helper method to check if an error is of a specific type
func IsErrorCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// IsNotFound reports whether err is any of the not-found codes.
func IsNotFound(err error) bool {
	return IsErrorCode(err, ErrNotFound) ||
		IsErrorCode(err, ErrUserNotFound) ||
		IsErrorCode(err, ErrMessageNotFound)
}

// AppErrorToHTTPStatus converts an AppError code to an HTTP status code.
func AppErrorToHTTPStatus(errorCode string) int {
	switch errorCode {
	case ErrNotFound, ErrUserNotFound, ErrMessageNotFound:
		return http.StatusNotFound
	case ErrInvalidInput, ErrInvalidCredentials:
		return http.StatusBadRequest
	case ErrUnauthorized, ErrInvalidToken:
		return http.StatusUnauthorized
	case ErrDuplicate:
		return http.StatusConflict
	case ErrDatabase, ErrActorTimeout:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
