package credits

import "errors"

var (
	ErrWindowNotFound = errors.New("credit window not found")
	ErrNoActiveWindow = errors.New("no active credit window for current billing period")
	ErrInvalidAmount  = errors.New("credit amount must be positive")
	ErrInvalidWindow  = errors.New("invalid credit window")
)
