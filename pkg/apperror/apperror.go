package apperror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrPermission   = errors.New("permission denied")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
	ErrInternal     = errors.New("internal server error")
	ErrUnauthorized = errors.New("unauthorized")

	ErrRetriableStorage      = errors.New("retriable storage error")
	ErrPermanentStorage      = errors.New("permanent storage error")
	ErrTranscoderSubmit      = errors.New("transcoder submit error")
	ErrTranscoderJobVideo    = errors.New("transcoder job failed: video error")
	ErrTranscoderJobInternal = errors.New("transcoder job failed: internal error")
	ErrExternalHostTransient = errors.New("external host transient error")
	ErrExternalHostPermanent = errors.New("external host permanent error")
	ErrCoursewareAuth        = errors.New("courseware auth error")
	ErrCoursewareRequest     = errors.New("courseware request error")
	ErrDirectoryUnavailable  = errors.New("directory unavailable")
	ErrNotificationSend      = errors.New("notification send error")
	ErrFilenameParse         = errors.New("filename parse error")
)

type AppError struct {
	BaseError error
	Message   string
	Details   string
	Err       error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (Details: %s, Cause: %v)", e.BaseError.Error(), e.Message, e.Details, e.Err)
	}
	return fmt.Sprintf("%s: %s (Details: %s)", e.BaseError.Error(), e.Message, e.Details)
}

// Unwrap exposes both the taxonomy sentinel and the cause to errors.Is/As.
func (e *AppError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.BaseError, e.Err}
	}
	return []error{e.BaseError}
}

func NewAppError(base error, msg, details string, err error) *AppError {
	return &AppError{BaseError: base, Message: msg, Details: details, Err: err}
}

func NewNotFound(resource, identifier string) *AppError {
	msg := fmt.Sprintf("%s not found", resource)
	details := fmt.Sprintf("%s with identifier '%s' was not found", resource, identifier)
	return NewAppError(ErrNotFound, msg, details, nil)
}

func NewInvalidInput(details string, err error) *AppError {
	return NewAppError(ErrInvalidInput, "Invalid input provided", details, err)
}

func NewConflict(resource, field, value string) *AppError {
	msg := fmt.Sprintf("%s conflict", resource)
	details := fmt.Sprintf("%s with %s '%s' already exists", resource, field, value)
	return NewAppError(ErrConflict, msg, details, nil)
}

func NewInternal(details string, err error) *AppError {
	return NewAppError(ErrInternal, "An internal server error occurred", details, err)
}

func NewUnauthorized(details string, err error) *AppError {
	return NewAppError(ErrUnauthorized, "Invalid credentials", details, err)
}

func NewPermissionDenied(details string) *AppError {
	return NewAppError(ErrPermission, "Permission denied", details, nil)
}

func NewStorage(retriable bool, details string, err error) *AppError {
	if retriable {
		return NewAppError(ErrRetriableStorage, "Object store temporarily unavailable", details, err)
	}
	return NewAppError(ErrPermanentStorage, "Object store request rejected", details, err)
}

func NewTranscoderSubmit(details string, err error) *AppError {
	return NewAppError(ErrTranscoderSubmit, "Transcode job submission failed", details, err)
}

func NewExternalHost(transient bool, details string, err error) *AppError {
	if transient {
		return NewAppError(ErrExternalHostTransient, "External host temporarily unavailable", details, err)
	}
	return NewAppError(ErrExternalHostPermanent, "External host request rejected", details, err)
}

func NewCoursewareAuth(details string, err error) *AppError {
	return NewAppError(ErrCoursewareAuth, "Courseware credentials rejected", details, err)
}

func NewCoursewareRequest(details string, err error) *AppError {
	return NewAppError(ErrCoursewareRequest, "Courseware request failed", details, err)
}

func NewDirectoryUnavailable(details string, err error) *AppError {
	return NewAppError(ErrDirectoryUnavailable, "Directory service unavailable", details, err)
}

func NewNotificationSend(details string, err error) *AppError {
	return NewAppError(ErrNotificationSend, "Notification could not be sent", details, err)
}

func NewFilenameParse(filename string) *AppError {
	return NewAppError(ErrFilenameParse, "Unrecognized lecture capture filename", filename, nil)
}

// IsRetriable classifies errors for pkg/retry: only transient storage and
// external host failures are worth another attempt.
func IsRetriable(err error) bool {
	return errors.Is(err, ErrRetriableStorage) || errors.Is(err, ErrExternalHostTransient)
}

func ToHTTPStatus(err error) int {
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrFilenameParse) {
		return http.StatusBadRequest
	}
	if errors.Is(err, ErrUnauthorized) {
		return http.StatusUnauthorized
	}
	if errors.Is(err, ErrPermission) {
		return http.StatusForbidden
	}
	if errors.Is(err, ErrConflict) {
		return http.StatusConflict
	}
	if errors.Is(err, ErrDirectoryUnavailable) || errors.Is(err, ErrRetriableStorage) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (e *AppError) ToJSON() gin.H {
	return gin.H{
		"error":   e.BaseError.Error(),
		"message": e.Message,
	}
}
