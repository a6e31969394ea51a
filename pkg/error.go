package pkg

import "errors"

// Transport and protocol errors.
var (
	// ErrTimeout indicates a transfer or poll timeout.
	ErrTimeout = errors.New("timeout")

	// ErrCancelled indicates a cancelled transfer.
	ErrCancelled = errors.New("transfer cancelled")

	// ErrProtocol indicates a malformed message on the wire.
	ErrProtocol = errors.New("protocol error")

	// ErrTagMismatch indicates a reply whose tag does not match the request.
	ErrTagMismatch = errors.New("tag mismatch")

	// ErrNoDevice indicates the instrument is not present.
	ErrNoDevice = errors.New("device not present")

	// ErrNotConfigured indicates a component is used before it is wired.
	ErrNotConfigured = errors.New("not configured")

	// ErrInvalidEndpoint indicates a missing or unusable bulk endpoint.
	ErrInvalidEndpoint = errors.New("invalid endpoint")

	// ErrInvalidRequest indicates an invalid or unsupported request.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrBufferTooSmall indicates the provided buffer is too small.
	ErrBufferTooSmall = errors.New("buffer too small")

	// ErrNotSupported indicates an unsupported operation or feature.
	ErrNotSupported = errors.New("not supported")

	// ErrBusy indicates the resource is busy.
	ErrBusy = errors.New("resource busy")

	// ErrClosed indicates the pipe or port has been closed.
	ErrClosed = errors.New("closed")

	// ErrAlreadyRunning indicates a loop is already running.
	ErrAlreadyRunning = errors.New("already running")

	// ErrInvalidParameter indicates an invalid parameter was provided.
	ErrInvalidParameter = errors.New("invalid parameter")
)
