package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

// MessageItemNotFound is returned by the backend when a cart line does not exist yet.
const MessageItemNotFound = "Item not found in cart"

// ErrNoCart is returned by GetCart when the backend has no cart for this session.
var ErrNoCart = errors.New("no cart yet")

// APIError is a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	Message    string
	Method     string
	Path       string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// Is lets errors.Is(err, ErrNoCart) match a 404 from GET /cart.
func (e *APIError) Is(target error) bool {
	return target == ErrNoCart && e.StatusCode == http.StatusNotFound && e.Method == http.MethodGet && e.Path == cartPath
}

func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsItemNotFound reports whether err is the backend's "Item not found in cart" answer.
func IsItemNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Message == MessageItemNotFound
}
