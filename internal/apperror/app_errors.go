package apperror

import "errors"

var (
	ErrCapabilityUnavailable = errors.New("wireless capability is not available")
	ErrDeviceNotFound        = errors.New("no peripheral advertising the game service was found")
	ErrUserCancelled         = errors.New("peripheral selection cancelled")
	ErrConnectionLost        = errors.New("device disconnected")
	ErrConnectInProgress     = errors.New("peripheral connection already in progress")

	ErrSuggesterUnavailable = errors.New("move suggester is unavailable")
	ErrMissingCredential    = errors.New("suggester credential is missing")
	ErrNoAvailableMoves     = errors.New("no available moves")

	ErrInvalidMove      = errors.New("invalid move")
	ErrWrongMode        = errors.New("operation is not available in the current mode")
	ErrUnknownMode      = errors.New("unknown game mode")
	ErrSnapshotNotFound = errors.New("snapshot not found")
)
