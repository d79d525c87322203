package core

import "errors"

var (
	// ErrSessionNotFound covers rooms that were never created and rooms
	// already in or past teardown.
	ErrSessionNotFound   = errors.New("session not found")
	ErrTransportNotFound = errors.New("transport not found")
	ErrProducerNotFound  = errors.New("producer not found")
	ErrNoActivePublisher = errors.New("no active publisher")
	ErrCannotConsume     = errors.New("cannot consume producer")

	// ErrResourceExists is the registry's fail-fast answer to a second
	// live resource of the same kind for one room.
	ErrResourceExists = errors.New("resource already registered")

	ErrAnalysisActive = errors.New("analysis already active")
	ErrNoCapacity     = errors.New("no analysis capacity")
	ErrPoolClosed     = errors.New("worker pool closed")
)
