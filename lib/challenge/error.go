package challenge

import "errors"

var (
	// ErrInvalidID means the id names no outstanding challenge.
	ErrInvalidID = errors.New("challenge: unknown, expired or already used id")
)
