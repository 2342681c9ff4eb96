// Package frame implements length-prefixed message framing over a byte stream.
// Every frame is a 4-byte big-endian payload length followed by the payload.
package frame

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	headerSize = 4

	// DefaultMaxSize bounds a single payload unless WithMaxSize is given.
	DefaultMaxSize = 16 << 20
)

var (
	// ErrFrameTooLarge is returned when a payload exceeds the configured maximum size.
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")

	// ErrEmptyFrame is returned for zero-length payloads.
	ErrEmptyFrame = errors.New("empty frame")
)

type config struct {
	maxSize uint32
}

// Option configures a Reader or Writer.
type Option func(*config)

// WithMaxSize sets the largest accepted payload, in bytes.
func WithMaxSize(n uint32) Option {
	return func(c *config) {
		c.maxSize = n
	}
}

func newConfig(opts []Option) config {
	cfg := config{maxSize: DefaultMaxSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Reader decodes frames from an underlying stream.
type Reader struct {
	r   *bufio.Reader
	cfg config
}

// NewReader returns a Reader that buffers r.
func NewReader(r io.Reader, opts ...Option) *Reader {
	return &Reader{
		r:   bufio.NewReader(r),
		cfg: newConfig(opts),
	}
}

// ReadFrame blocks until a complete frame is available and returns its payload.
// A clean end of stream before any header byte yields io.EOF.
func (r *Reader) ReadFrame() ([]byte, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r.r, header[:]); err != nil {
		return nil, err
	}

	size := binary.BigEndian.Uint32(header[:])
	switch {
	case size == 0:
		return nil, ErrEmptyFrame
	case size > r.cfg.maxSize:
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, size, r.cfg.maxSize)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r.r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}

	return payload, nil
}

// Writer encodes frames onto an underlying stream. It is not safe for
// concurrent use; callers serialize writes.
type Writer struct {
	w   io.Writer
	cfg config
}

// NewWriter returns a Writer for w.
func NewWriter(w io.Writer, opts ...Option) *Writer {
	return &Writer{
		w:   w,
		cfg: newConfig(opts),
	}
}

// WriteFrame writes payload as a single frame.
func (w *Writer) WriteFrame(payload []byte) error {
	switch {
	case len(payload) == 0:
		return ErrEmptyFrame
	case uint64(len(payload)) > uint64(w.cfg.maxSize):
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(payload), w.cfg.maxSize)
	}

	buf := make([]byte, headerSize+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[headerSize:], payload)

	_, err := w.w.Write(buf)
	return err
}
