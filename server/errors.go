package server

import "errors"

var (
	// ErrServerStopped indicates the server has been stopped and cannot serve again.
	ErrServerStopped = errors.New("server: server stopped")

	// ErrServerAlreadyStarted indicates an attempt to start an already running server.
	ErrServerAlreadyStarted = errors.New("server: server already started")

	// ErrShutdownTimeout indicates graceful shutdown did not finish in time and
	// remaining RPCs were cancelled.
	ErrShutdownTimeout = errors.New("server: shutdown timed out")
)
