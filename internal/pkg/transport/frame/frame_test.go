package frame

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFrame(t *testing.T) {
	t.Run("prefixes payload with big-endian length", func(t *testing.T) {
		var buf bytes.Buffer

		err := NewWriter(&buf).WriteFrame([]byte("hi"))
		require.NoError(t, err)
		assert.Equal(t, []byte{0, 0, 0, 2, 'h', 'i'}, buf.Bytes())
	})

	t.Run("rejects empty payload", func(t *testing.T) {
		err := NewWriter(io.Discard).WriteFrame(nil)
		assert.ErrorIs(t, err, ErrEmptyFrame)
	})

	t.Run("rejects oversized payload", func(t *testing.T) {
		err := NewWriter(io.Discard, WithMaxSize(3)).WriteFrame([]byte("four"))
		assert.ErrorIs(t, err, ErrFrameTooLarge)
	})
}

func TestReadFrame(t *testing.T) {
	t.Run("reads consecutive frames", func(t *testing.T) {
		var buf bytes.Buffer
		w := NewWriter(&buf)
		require.NoError(t, w.WriteFrame([]byte(`{"type":"chain_request"}`)))
		require.NoError(t, w.WriteFrame([]byte("second")))

		r := NewReader(&buf)

		first, err := r.ReadFrame()
		require.NoError(t, err)
		assert.Equal(t, `{"type":"chain_request"}`, string(first))

		second, err := r.ReadFrame()
		require.NoError(t, err)
		assert.Equal(t, "second", string(second))

		_, err = r.ReadFrame()
		assert.ErrorIs(t, err, io.EOF)
	})

	t.Run("declared size above limit", func(t *testing.T) {
		r := NewReader(bytes.NewReader([]byte{0, 0, 1, 0}), WithMaxSize(16))

		_, err := r.ReadFrame()
		assert.ErrorIs(t, err, ErrFrameTooLarge)
	})

	t.Run("zero length header", func(t *testing.T) {
		r := NewReader(bytes.NewReader([]byte{0, 0, 0, 0}))

		_, err := r.ReadFrame()
		assert.ErrorIs(t, err, ErrEmptyFrame)
	})

	t.Run("truncated payload", func(t *testing.T) {
		r := NewReader(bytes.NewReader([]byte{0, 0, 0, 5, 'a', 'b'}))

		_, err := r.ReadFrame()
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})
}
