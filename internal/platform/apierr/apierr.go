package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes, one per failure class. Handlers map these onto HTTP statuses
// and callers use them to decide whether a retry can help.
const (
	CodeUnauthenticated   = "unauthenticated"
	CodeInvalidPayload    = "invalid_payload"
	CodeUpstreamTransient = "upstream_transient"
	CodeUpstreamPermanent = "upstream_permanent"
	CodeStoreWrite        = "store_write_failed"
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

func Unauthenticated(err error) *Error {
	return New(http.StatusUnauthorized, CodeUnauthenticated, err)
}

func InvalidPayload(err error) *Error {
	return New(http.StatusBadRequest, CodeInvalidPayload, err)
}

func Transient(err error) *Error {
	return New(http.StatusServiceUnavailable, CodeUpstreamTransient, err)
}

func Permanent(err error) *Error {
	return New(http.StatusBadGateway, CodeUpstreamPermanent, err)
}

func StoreWrite(err error) *Error {
	return New(http.StatusInternalServerError, CodeStoreWrite, err)
}

// IsTransient reports whether err is classified as a temporary upstream
// failure worth retrying.
func IsTransient(err error) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Code == CodeUpstreamTransient
}

// StatusOf extracts the HTTP status carried by err, falling back to 500.
func StatusOf(err error) int {
	var ae *Error
	if errors.As(err, &ae) && ae.Status != 0 {
		return ae.Status
	}
	return http.StatusInternalServerError
}

// CodeOf extracts the classification code carried by err.
func CodeOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) && ae.Code != "" {
		return ae.Code
	}
	return "internal_error"
}
