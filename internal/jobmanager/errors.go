package jobmanager

import "errors"

var (
	// ErrShuttingDown is returned by Submit once Shutdown has begun.
	ErrShuttingDown = errors.New("manager is shutting down")

	// ErrEmptySubject is returned by Submit for a request without a subject.
	ErrEmptySubject = errors.New("subject cannot be empty")
)
