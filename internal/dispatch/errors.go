package dispatch

import (
	"net/http"

	"Guardline/pkg/errors"
)

// Error codes. The first three digits are the HTTP status.
const (
	CodeInvalidServiceType  = 40001
	CodeValidation          = 40002
	CodeSubscriptionExpired = 40201
	CodeUnauthorizedPhone   = 40301
	CodeNotFound            = 40401
	CodeDuplicateRequest    = 40901
	CodeInvalidState        = 40902
	CodeLocationNotCovered  = 42201
	CodeRateLimited         = 42901
)

var codeKeys = map[int]string{
	CodeInvalidServiceType:  "invalid_service_type",
	CodeValidation:          "validation",
	CodeSubscriptionExpired: "subscription_expired",
	CodeUnauthorizedPhone:   "unauthorized_phone",
	CodeNotFound:            "not_found",
	CodeDuplicateRequest:    "duplicate_request",
	CodeInvalidState:        "invalid_state",
	CodeLocationNotCovered:  "location_not_covered",
	CodeRateLimited:         "rate_limited",
}

// Sentinels for errors.Is; the returned errors carry more specific messages.
var (
	ErrInvalidServiceType  = errors.WithCode(CodeInvalidServiceType, "invalid service type")
	ErrValidation          = errors.WithCode(CodeValidation, "validation failed")
	ErrSubscriptionExpired = errors.WithCode(CodeSubscriptionExpired, "subscription inactive or expired")
	ErrUnauthorizedPhone   = errors.WithCode(CodeUnauthorizedPhone, "phone number is not authorized for this group")
	ErrNotFound            = errors.WithCode(CodeNotFound, "not found")
	ErrDuplicateRequest    = errors.WithCode(CodeDuplicateRequest, "duplicate request")
	ErrInvalidState        = errors.WithCode(CodeInvalidState, "invalid state")
	ErrLocationNotCovered  = errors.WithCode(CodeLocationNotCovered, "location not covered")
	ErrRateLimited         = errors.WithCode(CodeRateLimited, "too many emergency requests, try again shortly")
)

func IsCode(err error, code int) bool {
	return err != nil && errors.GetCode(err) == code
}

// Key is the stable string form of the error's code, "internal" for
// uncoded errors.
func Key(err error) string {
	if k, ok := codeKeys[errors.GetCode(err)]; ok {
		return k
	}
	return "internal"
}

// HTTPStatus maps a dispatch error to its response status.
func HTTPStatus(err error) int {
	if _, ok := codeKeys[errors.GetCode(err)]; ok {
		return errors.GetCode(err) / 100
	}
	return http.StatusInternalServerError
}

func invalidState(format string, args ...any) error {
	return errors.WithCodef(CodeInvalidState, format, args...)
}

func validation(format string, args ...any) error {
	return errors.WithCodef(CodeValidation, format, args...)
}

func notFound(format string, args ...any) error {
	return errors.WithCodef(CodeNotFound, format, args...)
}
