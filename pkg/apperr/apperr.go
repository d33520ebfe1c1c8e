package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is an application error carrying the HTTP status it should map to.
type Error struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

func New(status int, format string, v ...interface{}) *Error {
	return &Error{Status: status, Message: fmt.Sprintf(format, v...)}
}

func Validation(format string, v ...interface{}) *Error {
	return New(http.StatusBadRequest, format, v...)
}

func Authentication(format string, v ...interface{}) *Error {
	return New(http.StatusUnauthorized, format, v...)
}

func Authorization(format string, v ...interface{}) *Error {
	return New(http.StatusForbidden, format, v...)
}

func NotFound(format string, v ...interface{}) *Error {
	return New(http.StatusNotFound, format, v...)
}

func Storage(format string, v ...interface{}) *Error {
	return New(http.StatusInternalServerError, format, v...)
}

// Status extracts the HTTP status for err, defaulting to 500 for
// anything that is not an *Error.
func Status(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}
