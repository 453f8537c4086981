package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	ErrNotFound                 = errors.New("not_found")
	ErrInvalidState             = errors.New("invalid_state")
	ErrExpired                  = errors.New("expired")
	ErrDeadlineExceeded         = errors.New("payment_deadline_exceeded")
	ErrGateway                  = errors.New("gateway_error")
	ErrPersistenceInconsistency = errors.New("payment captured but booking not finalized")
	ErrValidation               = errors.New("validation error")
	ErrForbidden                = errors.New("forbidden")
	ErrConflict                 = errors.New("conflict")
)

// NotFoundError names the missing resource.
type NotFoundError struct {
	Resource string
	ID       int64
}

func (e *NotFoundError) Error() string {
	if e.ID > 0 {
		return fmt.Sprintf("%s %d not found", e.Resource, e.ID)
	}
	return e.Resource + " not found"
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func NotFound(resource string, id int64) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// InvalidStateError is returned when an operation does not apply to the current status.
type InvalidStateError struct {
	Resource string
	ID       int64
	Current  string
	Op       string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s %d cannot %s: current status is %s", e.Resource, e.ID, e.Op, e.Current)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

func InvalidState(resource string, id int64, current, op string) error {
	return &InvalidStateError{Resource: resource, ID: id, Current: current, Op: op}
}

type ExpiredError struct {
	Resource  string
	ID        int64
	ExpiredAt time.Time
}

func (e *ExpiredError) Error() string {
	return fmt.Sprintf("%s %d expired at %s", e.Resource, e.ID, e.ExpiredAt.UTC().Format(time.RFC3339))
}

func (e *ExpiredError) Unwrap() error { return ErrExpired }

type DeadlineExceededError struct {
	RequestID int64
	Deadline  time.Time
}

func (e *DeadlineExceededError) Error() string {
	return fmt.Sprintf("payment deadline for booking request %d passed at %s", e.RequestID, e.Deadline.UTC().Format(time.RFC3339))
}

func (e *DeadlineExceededError) Unwrap() error { return ErrDeadlineExceeded }

// GatewayError wraps a failure reported by the payment processor.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() []error { return []error{ErrGateway, e.Err} }

// PersistenceInconsistencyError means money moved at the gateway but the local
// write that should follow it failed. Support needs GatewayPaymentID to reconcile.
type PersistenceInconsistencyError struct {
	RequestID        int64
	GatewayPaymentID string
	Err              error
}

func (e *PersistenceInconsistencyError) Error() string {
	return fmt.Sprintf("%s: booking_request_id=%d gateway_payment_id=%s: %v",
		ErrPersistenceInconsistency.Error(), e.RequestID, e.GatewayPaymentID, e.Err)
}

func (e *PersistenceInconsistencyError) Unwrap() []error {
	return []error{ErrPersistenceInconsistency, e.Err}
}

func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// HTTPStatus maps an error to a status code and a machine readable code.
func HTTPStatus(err error) (int, string) {
	switch {
	case err == nil:
		return http.StatusOK, ""
	case errors.Is(err, ErrPersistenceInconsistency):
		return http.StatusInternalServerError, "PAYMENT_CAPTURED_BOOKING_NOT_FINALIZED"
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest, "VALIDATION_ERROR"
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN"
	case errors.Is(err, ErrInvalidState):
		return http.StatusConflict, "INVALID_STATE"
	case errors.Is(err, ErrConflict):
		return http.StatusConflict, "CONFLICT"
	case errors.Is(err, ErrDeadlineExceeded):
		return http.StatusGone, "PAYMENT_DEADLINE_EXCEEDED"
	case errors.Is(err, ErrExpired):
		return http.StatusGone, "EXPIRED"
	case errors.Is(err, ErrGateway):
		return http.StatusBadGateway, "GATEWAY_ERROR"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}
