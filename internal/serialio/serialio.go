// Package serialio is the host link: a serial port read by a background pump
// so the control loop can poll for bytes without blocking.
package serialio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tarm/serial"
)

var ErrTimeout = errors.New("serialio: read timeout")

const (
	DefaultBaud    = 9600
	DefaultTimeout = 5 * time.Second

	bufferSize = 4096
	idlePoll   = 20 * time.Millisecond
)

type Config struct {
	Device string
	Baud   int
	// Timeout bounds a blocking ReadByte.
	Timeout time.Duration
}

// Stream buffers inbound bytes and passes writes straight through.
type Stream struct {
	rw      io.ReadWriteCloser
	buf     chan byte
	timeout time.Duration
	log     zerolog.Logger

	done      chan struct{}
	closeOnce sync.Once
	wmu       sync.Mutex
}

// Open opens the serial device. The port read timeout is short so the pump
// notices shutdown; Config.Timeout applies to ReadByte.
func Open(cfg Config, logger zerolog.Logger) (*Stream, error) {
	if cfg.Baud <= 0 {
		cfg.Baud = DefaultBaud
	}
	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: 100 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("serialio: open %s: %w", cfg.Device, err)
	}
	logger.Info().Str("device", cfg.Device).Int("baud", cfg.Baud).Msg("serial link open")
	return NewStream(port, cfg.Timeout, logger), nil
}

func NewStream(rw io.ReadWriteCloser, timeout time.Duration, logger zerolog.Logger) *Stream {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Stream{
		rw:      rw,
		buf:     make(chan byte, bufferSize),
		timeout: timeout,
		log:     logger,
		done:    make(chan struct{}),
	}
}

// Run pumps inbound bytes until ctx is done, the stream is closed or the
// port fails. Bytes beyond the buffer are dropped.
func (s *Stream) Run(ctx context.Context) error {
	chunk := make([]byte, 256)
	dropped := 0
	for {
		n, err := s.rw.Read(chunk)
		for _, b := range chunk[:n] {
			select {
			case s.buf <- b:
			default:
				dropped++
			}
		}
		if dropped > 0 {
			s.log.Warn().Int("dropped", dropped).Msg("serial input overflow")
			dropped = 0
		}
		switch {
		case err == nil && n > 0:
			continue
		case err == nil || errors.Is(err, io.EOF):
			// port read timeout
		default:
			select {
			case <-s.done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			return fmt.Errorf("serialio: read: %w", err)
		}
		select {
		case <-s.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(idlePoll):
		}
	}
}

func (s *Stream) Buffered() int { return len(s.buf) }

// Inject queues bytes as if they arrived on the link. It reports how many
// fit in the buffer.
func (s *Stream) Inject(b []byte) int {
	for i, c := range b {
		select {
		case s.buf <- c:
		default:
			return i
		}
	}
	return len(b)
}

// ReadByte waits up to the configured timeout for the next byte.
func (s *Stream) ReadByte() (byte, error) {
	select {
	case b := <-s.buf:
		return b, nil
	default:
	}
	t := time.NewTimer(s.timeout)
	defer t.Stop()
	select {
	case b := <-s.buf:
		return b, nil
	case <-s.done:
		return 0, io.EOF
	case <-t.C:
		return 0, ErrTimeout
	}
}

func (s *Stream) Write(p []byte) (int, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.rw.Write(p)
}

type stdio struct{}

func (stdio) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdio) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
func (stdio) Close() error                { return nil }

// Stdio is a link over the process standard input and output, for running
// without a serial device.
func Stdio(timeout time.Duration, logger zerolog.Logger) *Stream {
	return NewStream(stdio{}, timeout, logger)
}

func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.rw.Close()
	})
	return err
}
