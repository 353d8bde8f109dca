// Package errs defines the tagged error set shared across the engine.
// Recommendation paths never fail a whole request for per-item errors;
// these sentinels cover the cases callers must branch on.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound covers unknown tmdb ids, room codes and users.
	ErrNotFound = errors.New("not found")

	// ErrConflict covers exhausted retries on unique resources
	// (e.g. room code generation).
	ErrConflict = errors.New("conflict")

	// ErrRoomFull rejects a join beyond max_participants.
	ErrRoomFull = errors.New("room is full")

	// ErrRoomAlreadyStarted rejects late joiners once voting began.
	ErrRoomAlreadyStarted = errors.New("room has already started")

	// ErrInvalidRoomAction covers room state-machine violations.
	ErrInvalidRoomAction = errors.New("invalid room action")

	// ErrNoProfile is returned by profile-based recommendations for users
	// without any rating history.
	ErrNoProfile = errors.New("no emotional profile")

	// ErrTransient marks metadata/cache/network hiccups. Callers treat it
	// as "skip this candidate".
	ErrTransient = errors.New("transient failure")
)

// Transientf wraps a formatted message with ErrTransient.
func Transientf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrTransient)...)
}

// InvalidRoomActionf wraps a formatted message with ErrInvalidRoomAction.
func InvalidRoomActionf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrInvalidRoomAction)...)
}

// IsTransient reports whether err is (or wraps) a transient failure.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
