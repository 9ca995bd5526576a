package eboard

import (
	"errors"
	"fmt"
)

var (
	// ErrReadTimeout is returned by a read whose per-call deadline expired without data.
	ErrReadTimeout = errors.New("read timed out")
	// ErrStreamEnded means a read returned no data: end of stream or an I/O error.
	ErrStreamEnded = errors.New("stream ended")
	// ErrNoAck means the trigger was never acknowledged.
	ErrNoAck = errors.New("trigger not acknowledged")
	// ErrInvalidConfig is wrapped by Config.Validate failures.
	ErrInvalidConfig = errors.New("invalid config")
)

// OpenError indicates that the channel could not be opened at all.
type OpenError struct {
	Link string
	Err  error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("serial: open (%s) failed: %v", e.Link, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

// ConfigError indicates that the channel opened but its attributes could not be applied.
type ConfigError struct {
	Link string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("serial: configuring (%s) failed: %v", e.Link, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }
