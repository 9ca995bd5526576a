package eboard

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tarm/serial"
)

// Device is the basic ReadWriteCloser representation of the serial link to the Eboard MCU
type Device struct {
	conn         io.ReadWriteCloser
	rlock, wlock sync.Mutex
	mu           sync.Mutex // guards connected and done; never held across I/O

	link        string
	baud        int
	readTimeout time.Duration
	connected   bool
	done        chan struct{}

	logger log.FieldLogger
}

// NewDevice is the factory method to create a new Device
func NewDevice(baud int, readTimeout time.Duration) *Device {
	return &Device{
		baud:        baud,
		readTimeout: readTimeout,
		logger:      log.StandardLogger(),
	}
}

// Connect attaches to the MCU via serial device or a tcp socket (e.g. ser2net)
func (o *Device) Connect(link string) error {
	o.rlock.Lock()
	o.wlock.Lock()
	defer o.rlock.Unlock()
	defer o.wlock.Unlock()

	u, err := url.Parse(link)
	if err != nil {
		return &OpenError{Link: link, Err: err}
	}

	switch u.Scheme {
	case "socket", "tcp":
		conn, err := net.Dial("tcp", u.Host)
		if err != nil {
			return &OpenError{Link: link, Err: err}
		}
		if tc, ok := conn.(*net.TCPConn); ok {
			tc.SetKeepAlive(true)
			tc.SetKeepAlivePeriod(30 * time.Second)
		}
		o.conn = conn
	case "file", "":
		// tarm/serial applies raw mode and both speeds in one TCSETS and
		// closes the descriptor itself if that fails.
		port, err := serial.OpenPort(&serial.Config{
			Name:        u.Path,
			Baud:        o.baud,
			Size:        8,
			Parity:      serial.ParityNone,
			StopBits:    serial.Stop1,
			ReadTimeout: o.readTimeout,
		})
		if err != nil {
			return classifyOpenErr(link, err)
		}
		o.conn = port
	default:
		return &OpenError{Link: link, Err: fmt.Errorf("can not find a valid connection string in %q", link)}
	}

	o.mu.Lock()
	o.link = link
	o.connected = true
	o.done = make(chan struct{})
	o.mu.Unlock()
	return nil
}

// classifyOpenErr separates a failing open(2) from failing attribute ioctls.
func classifyOpenErr(link string, err error) error {
	var pe *os.PathError
	if errors.As(err, &pe) {
		return &OpenError{Link: link, Err: err}
	}
	return &ConfigError{Link: link, Err: err}
}

// Close closes Device, closing underlying connection via serial or network.
// It does not wait for a pending Read or Write; closing the connection is
// what unblocks them.
func (o *Device) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.done == nil {
		return io.ErrClosedPipe
	}
	select {
	case <-o.done:
		return io.ErrClosedPipe
	default:
	}
	err := o.conn.Close()
	close(o.done)
	o.connected = false
	o.logger.Debugf("Closed %v, err=%v", o.link, err)
	return err
}

func (o *Device) isConnected() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.connected
}

func (o *Device) Read(b []byte) (int, error) {
	o.rlock.Lock()
	defer o.rlock.Unlock()

	if !o.isConnected() {
		return 0, io.EOF
	}

	if tc, ok := o.conn.(net.Conn); ok && o.readTimeout > 0 {
		tc.SetReadDeadline(time.Now().Add(o.readTimeout))
	}

	n, err := o.conn.Read(b)
	o.logger.Debugf("Read b='%# x', n=%v, err=%v", b[0:n], n, err)
	if n > 0 {
		return n, nil
	}
	return 0, o.mapReadErr(err)
}

// mapReadErr turns an empty read into ErrReadTimeout when a deadline is set.
// With VMIN=0/VTIME>0 the tty reports an expired deadline as a zero-length
// read, which os.File surfaces as io.EOF.
func (o *Device) mapReadErr(err error) error {
	if o.readTimeout <= 0 {
		if err == nil {
			return io.EOF
		}
		return err
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ErrReadTimeout
	}
	if _, isNet := o.conn.(net.Conn); !isNet && (err == nil || err == io.EOF) {
		return ErrReadTimeout
	}
	if err == nil {
		return io.EOF
	}
	return err
}

func (o *Device) Write(b []byte) (int, error) {
	o.wlock.Lock()
	defer o.wlock.Unlock()
	if !o.isConnected() {
		return 0, io.EOF
	}
	n, err := o.conn.Write(b)
	o.logger.Debugf("Write b='%# x', n=%v, err=%v", b, n, err)
	return n, err
}

// Link returns the connection string Device was connected with
func (o *Device) Link() string {
	return o.link
}

// SetLogger replaces the logger used for raw traffic traces
func (o *Device) SetLogger(l log.FieldLogger) {
	o.logger = l
}
