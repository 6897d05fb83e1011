package imagegen

import (
	"errors"
	"fmt"
)

var (
	ErrRateLimited         = errors.New("image api quota exceeded")
	ErrUnauthorized        = errors.New("image api authentication failed")
	ErrForbidden           = errors.New("image api key lacks permission")
	ErrBadRequest          = errors.New("image api rejected request")
	ErrUpstreamUnavailable = errors.New("image api unavailable")
	ErrTimeout             = errors.New("image generation timeout")
	ErrNoImageData         = errors.New("no image data in api response")
	ErrInvalidResponse     = errors.New("image api returned invalid response")
)

// APIError is a non-200 answer from the image API.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api request failed: %d", e.StatusCode)
	}
	return fmt.Sprintf("api request failed: %d - %s", e.StatusCode, e.Message)
}

// Unwrap maps the status code onto a sentinel so callers can use errors.Is.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case 400:
		return ErrBadRequest
	case 401:
		return ErrUnauthorized
	case 403:
		return ErrForbidden
	case 429:
		return ErrRateLimited
	case 500, 502, 503, 504:
		return ErrUpstreamUnavailable
	}
	return nil
}
