package eboard

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Process exit codes
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitOpenFailed  = -1
	ExitUnconfirmed = 2
)

// Policy decides whether a handshake without confirmed ACK counts as success
type Policy byte

const (
	// PolicyCompatible treats readiness and ACK timeouts as success, like the stock boot tool
	PolicyCompatible Policy = iota
	// PolicyStrict requires a confirmed ACK
	PolicyStrict
)

func (p Policy) String() string {
	if p == PolicyStrict {
		return "strict"
	}
	return "compatible"
}

func (p Policy) exitCode(r Report) int {
	if p == PolicyStrict && r.Ack != Confirmed {
		return ExitUnconfirmed
	}
	return ExitOK
}

// Opener opens and configures the channel described by cfg
type Opener func(cfg Config, logger log.FieldLogger) (io.ReadWriteCloser, error)

// OpenDevice is the default Opener, using a serial Device or a tcp socket
func OpenDevice(cfg Config, logger log.FieldLogger) (io.ReadWriteCloser, error) {
	d := NewDevice(cfg.Baud, cfg.ReadTimeout)
	d.SetLogger(logger)
	if err := d.Connect(cfg.Link); err != nil {
		return nil, err
	}
	return d, nil
}

// Report describes how a handshake went
type Report struct {
	Link          string  `json:"link"`
	State         State   `json:"state"`
	Ready         Outcome `json:"ready"`
	ReadyAttempts int     `json:"ready_attempts"`
	Ack           Outcome `json:"ack"`
	AckAttempts   int     `json:"ack_attempts"`
	Writes        int     `json:"writes"`
	ExitCode      int     `json:"exit_code"`
	Error         string  `json:"error,omitempty"`
	Err           error   `json:"-"`
}

// Confirmed reports whether the MCU acknowledged the start command
func (r Report) Confirmed() bool {
	return r.State == Done && r.Ack == Confirmed
}

func (r *Report) fail(code int, err error) {
	r.State = Failed
	r.ExitCode = code
	r.Err = err
	if err != nil {
		r.Error = err.Error()
	}
}

// Option configures a Driver
type Option func(*Driver)

// WithLogger sets the logger for progress and diagnostic output
func WithLogger(l log.FieldLogger) Option {
	return func(d *Driver) {
		d.log = l
	}
}

// WithOpener replaces the channel factory, e.g. with a simulated device
func WithOpener(o Opener) Option {
	return func(d *Driver) {
		d.open = o
	}
}

// Driver runs the boot handshake: wait for the bootloader beacon, then send
// the start command until it is acknowledged.
type Driver struct {
	cfg  Config
	log  log.FieldLogger
	open Opener
}

// NewDriver validates cfg and returns a Driver for it
func NewDriver(cfg Config, opts ...Option) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d := &Driver{
		cfg:  cfg,
		log:  log.StandardLogger(),
		open: OpenDevice,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Config returns the Driver's configuration
func (d *Driver) Config() Config {
	return d.cfg
}

// Run performs one complete handshake. The channel is closed on every path
// that opened it.
func (d *Driver) Run(ctx context.Context) (rep Report) {
	rep.Link = d.cfg.Link
	rep.State = Closed

	ch, err := d.open(d.cfg, d.log)
	if err != nil {
		d.log.Error(err.Error())
		var ce *ConfigError
		if errors.As(err, &ce) {
			rep.fail(ExitFailure, err)
		} else {
			rep.fail(ExitOpenFailed, err)
		}
		return rep
	}
	rep.State = Configured
	defer func() {
		if err := ch.Close(); err != nil {
			d.log.Debugf("Closing %v: %v", d.cfg.Link, err)
		}
	}()

	buf := make([]byte, d.cfg.BufferSize)

	rep.State = AwaitingReady
	rep.Ready, rep.ReadyAttempts, err = d.waitReady(ctx, ch, buf)
	if err != nil {
		d.log.Warnf("Interrupted while waiting for MCU: %v", err)
		rep.fail(ExitFailure, err)
		return rep
	}

	rep.State = Triggering
	rep.Ack, rep.AckAttempts, rep.Writes, err = d.trigger(ctx, ch, buf)
	if err != nil {
		d.log.Error(err.Error())
		rep.fail(ExitFailure, err)
		return rep
	}

	rep.State = Done
	rep.ExitCode = d.cfg.Policy.exitCode(rep)
	if rep.Ack != Confirmed {
		d.log.Warnf("MCU did not acknowledge start command after %d attempts (policy %v)", rep.AckAttempts, d.cfg.Policy)
		if rep.ExitCode != ExitOK {
			rep.Err = ErrNoAck
			rep.Error = ErrNoAck.Error()
		}
	}
	return rep
}

type rx struct {
	n   int
	err error
}

// read fills buf with at most ReadSize bytes. Any read that yields no data
// and did not hit the per-read deadline ends the stream. A pending read is
// abandoned when ctx is done; closing the channel releases it.
func (d *Driver) read(ctx context.Context, ch io.Reader, buf []byte) (int, error) {
	c := make(chan rx, 1)
	go func() {
		n, err := ch.Read(buf[:d.cfg.ReadSize])
		c <- rx{n, err}
	}()

	var r rx
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case r = <-c:
	}

	if r.n > 0 {
		return r.n, nil
	}
	if errors.Is(r.err, ErrReadTimeout) {
		return 0, r.err
	}
	if r.err == nil {
		r.err = io.EOF
	}
	return 0, fmt.Errorf("%w: %v", ErrStreamEnded, r.err)
}

func (d *Driver) waitReady(ctx context.Context, ch io.Reader, buf []byte) (Outcome, int, error) {
	beacon := []byte(d.cfg.Beacon)

	d.log.Info("Waiting for MCU to become ready ...")
	for i := 1; i <= d.cfg.ReadyAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return NotRun, i - 1, err
		}
		n, err := d.read(ctx, ch, buf)
		if cerr := ctx.Err(); err != nil && cerr != nil {
			return NotRun, i, cerr
		}
		if errors.Is(err, ErrReadTimeout) {
			d.log.Debugf("No data within %v (attempt %d)", d.cfg.ReadTimeout, i)
			continue
		}
		if err != nil {
			d.log.Warnf("%v while waiting for '%s', trying to start anyway", err, d.cfg.Beacon)
			return StreamEnded, i, nil
		}

		d.log.Infof("Recv: %s", hexUpper(buf[:n]))
		if bytes.Contains(buf[:n], beacon) {
			d.log.Infof("Eboard MCU sent '%s'", d.cfg.Beacon)
			return Confirmed, i, nil
		}
	}
	d.log.Warnf("No '%s' within %d reads, trying to start anyway", d.cfg.Beacon, d.cfg.ReadyAttempts)
	return TimedOut, d.cfg.ReadyAttempts, nil
}

func (d *Driver) trigger(ctx context.Context, ch io.ReadWriter, buf []byte) (Outcome, int, int, error) {
	cmd := []byte{d.cfg.Trigger}
	writes := 0

	for i := 1; i <= d.cfg.TriggerAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return NotRun, i - 1, writes, err
		}
		if _, err := ch.Write(cmd); err != nil {
			return StreamEnded, i, writes, fmt.Errorf("sending start command: %w", err)
		}
		writes++
		d.log.Infof("Send: %02X", cmd[0])

		n, err := d.read(ctx, ch, buf)
		if cerr := ctx.Err(); err != nil && cerr != nil {
			return NotRun, i, writes, cerr
		}
		if errors.Is(err, ErrReadTimeout) {
			d.log.Debugf("No answer within %v (attempt %d)", d.cfg.ReadTimeout, i)
			continue
		}
		if err != nil {
			return StreamEnded, i, writes, err
		}

		d.log.Infof("Recv: %02X", buf[0])
		if n > 0 && buf[0] == d.cfg.Ack {
			d.log.Info("Application is starting.")
			return Confirmed, i, writes, nil
		}
	}
	return TimedOut, d.cfg.TriggerAttempts, writes, nil
}

// hexUpper renders b as two uppercase hex digits per byte without separator
func hexUpper(b []byte) string {
	return strings.ToUpper(hex.EncodeToString(b))
}
