package controller

import "errors"

// Error taxonomy reported to the control surface. Device and protocol
// failures never leave the hardware half-powered: every flash and power
// bracket restores state on all exit paths.
var (
	// ErrInvalidInput rejects malformed arguments before any hardware action.
	ErrInvalidInput = errors.New("controller: invalid arguments")

	// ErrDeviceNotFound means no flash partition with the requested name
	// enumerated within the scan bound.
	ErrDeviceNotFound = errors.New("controller: flash device not found")

	// ErrEraseFailed wraps a flash erase failure.
	ErrEraseFailed = errors.New("controller: erase failed")

	// ErrWriteFailed wraps a flash write failure.
	ErrWriteFailed = errors.New("controller: write failed")

	// ErrTimeout means no acknowledgment arrived within the request budget.
	ErrTimeout = errors.New("controller: request timed out")

	// ErrTransmit means the transport rejected the outbound message; no
	// wait was performed.
	ErrTransmit = errors.New("controller: transmit failed")

	// ErrBusy means a request of the same kind is already outstanding.
	ErrBusy = errors.New("controller: request already outstanding")

	// ErrNoTransport means no UART transport has been attached yet.
	ErrNoTransport = errors.New("controller: no transport attached")

	// ErrNoMasterIntf means the bus interface toward the APBE is not yet
	// known, so downstream power requests cannot be addressed.
	ErrNoMasterIntf = errors.New("controller: master interface unknown")
)
