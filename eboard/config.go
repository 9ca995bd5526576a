package eboard

import (
	"fmt"
	"net/url"
	"time"
)

// Wire protocol of the Eboard MCU bootloader
const (
	ACK     byte = 0x06 // Acknowledge of the start command
	StartFW byte = 0x41 // Start application firmware, ASCII "A"
)

// Beacon is sent in a loop by the bootloader while it waits for StartFW
const Beacon = "Ready."

// Defaults for the Flashforge 5M Eboard
const (
	DefaultLink       = "/dev/ttyS1"
	DefaultBaud       = 115200
	DefaultAttempts   = 15
	DefaultReadSize   = 32
	DefaultBufferSize = 64
)

// MaxSerialReadTimeout is the longest deadline a tty can hold: VTIME counts
// tenths of a second in a single byte.
const MaxSerialReadTimeout = 25500 * time.Millisecond

// Config holds everything the Driver needs to know about the target link.
type Config struct {
	// Link is a serial device path or a socket://host:port connection string
	Link string

	Baud int

	// ReadyAttempts bounds the readiness-wait loop
	ReadyAttempts int

	// TriggerAttempts bounds the trigger/acknowledge loop
	TriggerAttempts int

	// ReadSize is the number of bytes requested per read call
	ReadSize int

	// BufferSize is the capacity of the receive buffer. ReadSize must leave
	// room for one spare byte.
	BufferSize int

	// ReadTimeout is the per-read deadline. Zero blocks until data arrives.
	// Serial links round it to 0.1s and can not tell a hangup from an
	// expired deadline, so with a timeout set a dead tty reads as silence.
	ReadTimeout time.Duration

	Trigger byte
	Ack     byte
	Beacon  string

	Policy Policy
}

// DefaultConfig returns the configuration for the Eboard MCU.
func DefaultConfig() Config {
	return Config{
		Link:            DefaultLink,
		Baud:            DefaultBaud,
		ReadyAttempts:   DefaultAttempts,
		TriggerAttempts: DefaultAttempts,
		ReadSize:        DefaultReadSize,
		BufferSize:      DefaultBufferSize,
		Trigger:         StartFW,
		Ack:             ACK,
		Beacon:          Beacon,
		Policy:          PolicyCompatible,
	}
}

// Validate checks the invariants the Driver relies on.
func (c Config) Validate() error {
	switch {
	case c.Link == "":
		return fmt.Errorf("%w: empty link", ErrInvalidConfig)
	case c.Baud <= 0:
		return fmt.Errorf("%w: baud %d", ErrInvalidConfig, c.Baud)
	case c.ReadyAttempts < 1 || c.TriggerAttempts < 1:
		return fmt.Errorf("%w: attempts must be positive (ready=%d, trigger=%d)", ErrInvalidConfig, c.ReadyAttempts, c.TriggerAttempts)
	case c.ReadSize < 1 || c.ReadSize > c.BufferSize-1:
		return fmt.Errorf("%w: read size %d does not fit buffer of %d", ErrInvalidConfig, c.ReadSize, c.BufferSize)
	case c.Beacon == "":
		return fmt.Errorf("%w: empty beacon", ErrInvalidConfig)
	case len(c.Beacon) > c.ReadSize:
		return fmt.Errorf("%w: beacon %q longer than a single read", ErrInvalidConfig, c.Beacon)
	case c.ReadTimeout < 0:
		return fmt.Errorf("%w: negative read timeout", ErrInvalidConfig)
	case c.ReadTimeout > MaxSerialReadTimeout && !IsSocketLink(c.Link):
		return fmt.Errorf("%w: read timeout %v exceeds %v on serial link %s", ErrInvalidConfig, c.ReadTimeout, MaxSerialReadTimeout, c.Link)
	case c.Policy != PolicyCompatible && c.Policy != PolicyStrict:
		return fmt.Errorf("%w: unknown policy %d", ErrInvalidConfig, c.Policy)
	}
	return nil
}

// IsSocketLink reports whether link names a tcp endpoint rather than a tty
func IsSocketLink(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	return u.Scheme == "socket" || u.Scheme == "tcp"
}
