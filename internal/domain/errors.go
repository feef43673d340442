package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrUnauthorized        = errors.New("unauthorized token")
	ErrMalformedRequest    = errors.New("malformed request")
	ErrRangeNotSatisfiable = errors.New("range not satisfiable")

	// ErrNoDevice is returned by session transitions that require a bound
	// device when none has been selected yet.
	ErrNoDevice = errors.New("no device bound")

	// ErrUnsupportedAction is returned when the bound device lacks the
	// requested optional capability (pause/resume).
	ErrUnsupportedAction = errors.New("action not supported by device")

	// ErrDeviceCommand wraps failures reported by a device while executing
	// a playback command.
	ErrDeviceCommand = errors.New("device command failed")

	// ErrNotModified reports a control-surface edit that would not change
	// the rendered content. Callers treat it as a successful no-op.
	ErrNotModified = errors.New("message not modified")
)
