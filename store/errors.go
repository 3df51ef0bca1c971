package store

import "errors"

// ErrNoEligibleDocument is returned by ClaimNextQueued when no document is
// pending or queued. It ends the worker's current drain cycle.
var ErrNoEligibleDocument = errors.New("no eligible document")

// ErrJobNotFound is returned when a processing job id is unknown.
var ErrJobNotFound = errors.New("processing job not found")
