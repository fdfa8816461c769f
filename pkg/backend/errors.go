package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
)

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend error: status %d: %s", e.Status, e.Message)
}

// Describe turns a client error into a message fit for the user.
func Describe(err error) string {
	if err == nil {
		return ""
	}

	var apiErr *APIError
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "The request timed out. Please try again."
	case errors.Is(err, context.Canceled):
		return "The request was cancelled."
	case errors.Is(err, syscall.ECONNREFUSED):
		return "Cannot reach the server. Check that the backend is running."
	case errors.As(err, &apiErr):
		switch {
		case apiErr.Status == 401 || apiErr.Status == 403:
			return "You are not authorized to do that. Please log in again."
		case apiErr.Status == 404:
			return "The requested resource was not found."
		case apiErr.Status >= 500:
			return fmt.Sprintf("The server failed to process the request (%d).", apiErr.Status)
		case apiErr.Message != "":
			return apiErr.Message
		default:
			return fmt.Sprintf("The request was rejected (%d).", apiErr.Status)
		}
	case errors.As(err, &netErr) && netErr.Timeout():
		return "The request timed out. Please try again."
	default:
		return "A network error occurred. Please try again."
	}
}

// Retryable reports whether a second attempt could succeed, and so whether
// the user should be offered a retry. Client errors (4xx) and cancellations
// are final.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500
	}
	return true
}
