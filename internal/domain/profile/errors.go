package profile

import "errors"

var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrCoachInactive   = errors.New("coach is not accepting bookings")
	ErrRateNotFound    = errors.New("coach rate not found")
)
