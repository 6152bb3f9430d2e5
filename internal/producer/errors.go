package producer

import (
	"errors"
	"fmt"

	"github.com/bitskyai/producer-agent/internal/platform/apierr"
)

// ErrorKind is the classification taxonomy derived from an upstream HTTP
// status plus an optional vendor error code.
type ErrorKind string

const (
	KindConfigMissing  ErrorKind = "ConfigMissing"
	KindNotRegistered  ErrorKind = "NotRegistered"
	KindBadCredentials ErrorKind = "BadCredentials"
	KindAlreadyBound   ErrorKind = "AlreadyBound"
	KindSerialRequired ErrorKind = "SerialRequired"
	KindTypeMismatch   ErrorKind = "TypeMismatch"
	KindBadRequest     ErrorKind = "BadRequest"
	KindServerError    ErrorKind = "ServerError"
)

// Vendor codes used by the Metadata Service to disambiguate otherwise
// generic 4xx responses.
const (
	vendorCodeSerialRequired = "00144000002"
	vendorCodeTypeMismatch   = "00144000004"
)

// ClassifiedError is what Producer.ProducerError() surfaces: a stable
// Kind plus a human message, never a raw transport error.
type ClassifiedError struct {
	Kind    ErrorKind
	Status  int
	Message string
	Err     error
}

func (e *ClassifiedError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

// ConfigMissing is raised locally (never from an HTTP response) when the
// Config Resolver could not find a base URL or global id to operate with.
func ConfigMissing() *ClassifiedError {
	return &ClassifiedError{
		Kind:    KindConfigMissing,
		Status:  400,
		Message: "BITSKY_BASE_URL and GLOBAL_ID are required",
	}
}

// Classify maps a transport error into the named error taxonomy.
// globalID is the producer id that was being queried when err occurred;
// it's only used to word the NotRegistered message, not to key on.
// Non-API errors (network failures, decode errors) are wrapped as
// ServerError since the watcher/runner only need "this failed, retry
// later".
func Classify(err error, expectedType, globalID string) *ClassifiedError {
	if err == nil {
		return nil
	}

	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) {
		return &ClassifiedError{
			Kind:    KindServerError,
			Message: "internal server error",
			Err:     err,
		}
	}

	switch apiErr.Status {
	case 404:
		return &ClassifiedError{
			Kind:    KindNotRegistered,
			Status:  404,
			Message: "cannot find producer by " + globalID,
			Err:     err,
		}
	case 401:
		return &ClassifiedError{
			Kind:    KindBadCredentials,
			Status:  401,
			Message: "invalid security key",
			Err:     err,
		}
	case 403:
		return &ClassifiedError{
			Kind:    KindAlreadyBound,
			Status:  403,
			Message: "producer already connected by another instance",
			Err:     err,
		}
	}

	if apiErr.Status >= 400 && apiErr.Status < 500 {
		switch apiErr.Code {
		case vendorCodeSerialRequired:
			return &ClassifiedError{
				Kind:    KindSerialRequired,
				Status:  apiErr.Status,
				Message: "set PRODUCER_SERIAL_ID",
				Err:     err,
			}
		case vendorCodeTypeMismatch:
			return &ClassifiedError{
				Kind:    KindTypeMismatch,
				Status:  apiErr.Status,
				Message: fmt.Sprintf("type mismatch; expected %s", expectedType),
				Err:     err,
			}
		}
		return &ClassifiedError{
			Kind:    KindBadRequest,
			Status:  apiErr.Status,
			Message: "check GLOBAL_ID / SERIAL_ID / SECURITY_KEY",
			Err:     err,
		}
	}

	return &ClassifiedError{
		Kind:    KindServerError,
		Status:  apiErr.Status,
		Message: "internal server error",
		Err:     err,
	}
}
