// Package apperror holds the error taxonomy shared by the directory, identity and
// transport layers.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrValidation          = errors.New("validation error")
)

func NotFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Invalid wraps the result of a Validate call, keeping the per-field errors reachable.
func Invalid(err error) error {
	return fmt.Errorf("%w: %w", ErrValidation, err)
}

// Upstream marks err as a failure of a backing service while keeping it unwrappable.
func Upstream(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUpstreamUnavailable, err)
}

// HTTPStatus maps an error from the service layer onto a response status.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Message is the caller-safe text for a failed request. Bad requests name the
// offending fields and nothing else.
func Message(err error) string {
	switch HTTPStatus(err) {
	case http.StatusNotFound:
		return "Resource not found"
	case http.StatusBadRequest:
		var fields validation.Errors
		if !errors.As(err, &fields) || len(fields) == 0 {
			return "Invalid request"
		}
		names := make([]string, 0, len(fields))
		for name := range fields {
			names = append(names, name)
		}
		sort.Strings(names)
		return "Invalid request: missing or invalid " + strings.Join(names, ", ")
	default:
		return "Internal server error"
	}
}
