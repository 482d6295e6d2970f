package repositories

import (
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
)

// NotFound returns a 404 HTTP error with a descriptive message.
func NotFound(format string, args ...any) error {
	return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf(format, args...))
}

// Conflict returns a 409 HTTP error.
func Conflict(format string, args ...any) error {
	return httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf(format, args...))
}

// BadRequest returns a 400 HTTP error.
func BadRequest(format string, args ...any) error {
	return httperror.NewHTTPError(http.StatusBadRequest, fmt.Sprintf(format, args...))
}

// Internal returns a 500 HTTP error.
func Internal(message string) error {
	return httperror.NewHTTPError(http.StatusInternalServerError, message)
}

func IsNotFound(err error) bool {
	return hasStatus(err, http.StatusNotFound)
}

func IsConflict(err error) bool {
	return hasStatus(err, http.StatusConflict)
}

func IsBadRequest(err error) bool {
	return hasStatus(err, http.StatusBadRequest)
}

func hasStatus(err error, status int) bool {
	return err != nil && httperror.IsHTTPError(err) && httperror.GetStatusCode(err) == status
}
