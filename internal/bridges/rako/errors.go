package rako

import "errors"

// Domain errors for the Rako bridge package.
var (
	// ErrInvalidConfig is returned by NewHub when host, port, or client
	// name validation fails. It is raised before any network I/O.
	ErrInvalidConfig = errors.New("rako: invalid configuration")

	// ErrConnectionFailed is returned when the TCP connection to the hub
	// cannot be established or the subscription handshake fails.
	ErrConnectionFailed = errors.New("rako: connection to hub failed")

	// ErrCommandRejected is returned when the hub answers a SEND command
	// with an AERROR line.
	ErrCommandRejected = errors.New("rako: command rejected by hub")

	// ErrMalformedRow is returned when a query response row has fewer
	// fields than its entity schema requires.
	ErrMalformedRow = errors.New("rako: malformed response row")
)
