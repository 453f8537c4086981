package booking

import (
	"errors"
	"fmt"

	"coachbook/internal/pkg/apperr"
)

var (
	ErrRequestNotFound = errors.New("booking request not found")
	ErrSessionNotFound = errors.New("session not found")

	ErrPaymentInProgress = fmt.Errorf("%w: a payment for this request is already in progress", apperr.ErrConflict)
	ErrSelfBooking       = fmt.Errorf("%w: coaches cannot book themselves", apperr.ErrValidation)
)
