// Package stream implements the fixed-width primitives ODB-2 frames are built
// from: 16-bit markers, 32/64-bit integers, IEEE-754 reals and length-prefixed
// strings, all in the byte order declared by the enclosing frame.
//
// A Reader or Writer is bound to one endian.EndianEngine at construction. The
// engine is resolved once, when the frame prelude is parsed, and passed down to
// every codec; nothing in this package consults global state.
package stream

import (
	"fmt"
	"io"
	"math"

	"github.com/ecmwf/odc-go/endian"
	"github.com/ecmwf/odc-go/errs"
)

// maxStringLength bounds length-prefixed strings read from a stream. Anything
// larger indicates a corrupt or hostile length field, not real data.
const maxStringLength = 1 << 28

// Reader decodes fixed-width primitives from an io.Reader in a fixed byte
// order. It tracks the number of bytes consumed since construction so frame
// parsing can locate the data region without re-seeking.
//
// Reader is not safe for concurrent use.
type Reader struct {
	r      io.Reader
	engine endian.EndianEngine
	buf    [8]byte
	pos    int64
}

// NewReader creates a Reader over r using the given byte order engine.
func NewReader(r io.Reader, engine endian.EndianEngine) *Reader {
	return &Reader{r: r, engine: engine}
}

// Engine returns the byte order engine the reader was constructed with.
func (r *Reader) Engine() endian.EndianEngine {
	return r.engine
}

// Position returns the number of bytes consumed since construction.
func (r *Reader) Position() int64 {
	return r.pos
}

func (r *Reader) fill(n int) ([]byte, error) {
	b := r.buf[:n]
	if _, err := io.ReadFull(r.r, b); err != nil {
		return nil, err
	}
	r.pos += int64(n)

	return b, nil
}

// ReadBytes reads exactly n bytes into a freshly allocated slice.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(r.r, b); err != nil {
		return nil, err
	}
	r.pos += int64(n)

	return b, nil
}

// ReadUint8 reads a single byte.
func (r *Reader) ReadUint8() (uint8, error) {
	b, err := r.fill(1)
	if err != nil {
		return 0, err
	}

	return b[0], nil
}

// ReadUint16 reads an unsigned 16-bit value in the stream's byte order.
func (r *Reader) ReadUint16() (uint16, error) {
	b, err := r.fill(2)
	if err != nil {
		return 0, err
	}

	return r.engine.Uint16(b), nil
}

// ReadMarker reads a start-column marker: an unsigned 16-bit value in the
// stream's byte order. The value 65535 marks the start of a new frame header.
func (r *Reader) ReadMarker() (uint16, error) {
	return r.ReadUint16()
}

// ReadInt32 reads a signed 32-bit integer.
func (r *Reader) ReadInt32() (int32, error) {
	b, err := r.fill(4)
	if err != nil {
		return 0, err
	}

	return int32(r.engine.Uint32(b)), nil
}

// ReadInt64 reads a signed 64-bit integer.
func (r *Reader) ReadInt64() (int64, error) {
	b, err := r.fill(8)
	if err != nil {
		return 0, err
	}

	return int64(r.engine.Uint64(b)), nil
}

// ReadReal32 reads a 4-byte IEEE-754 float.
func (r *Reader) ReadReal32() (float32, error) {
	b, err := r.fill(4)
	if err != nil {
		return 0, err
	}

	return math.Float32frombits(r.engine.Uint32(b)), nil
}

// ReadReal64 reads an 8-byte IEEE-754 double.
func (r *Reader) ReadReal64() (float64, error) {
	b, err := r.fill(8)
	if err != nil {
		return 0, err
	}

	return math.Float64frombits(r.engine.Uint64(b)), nil
}

// ReadString reads an int32 length followed by that many raw bytes,
// interpreted as UTF-8. No NUL padding is applied at this layer.
func (r *Reader) ReadString() (string, error) {
	n, err := r.ReadInt32()
	if err != nil {
		return "", err
	}
	if n < 0 || n > maxStringLength {
		return "", fmt.Errorf("%w: string length %d", errs.ErrCorruptData, n)
	}
	if n == 0 {
		return "", nil
	}

	b, err := r.ReadBytes(int(n))
	if err != nil {
		return "", err
	}

	return string(b), nil
}

// Writer encodes fixed-width primitives to an io.Writer in a fixed byte
// order, tracking the number of bytes emitted.
//
// Writer is not safe for concurrent use.
type Writer struct {
	w      io.Writer
	engine endian.EndianEngine
	buf    [8]byte
	pos    int64
}

// NewWriter creates a Writer over w using the given byte order engine.
func NewWriter(w io.Writer, engine endian.EndianEngine) *Writer {
	return &Writer{w: w, engine: engine}
}

// Engine returns the byte order engine the writer was constructed with.
func (w *Writer) Engine() endian.EndianEngine {
	return w.engine
}

// Position returns the number of bytes written since construction.
func (w *Writer) Position() int64 {
	return w.pos
}

func (w *Writer) emit(b []byte) error {
	n, err := w.w.Write(b)
	w.pos += int64(n)
	if err == nil && n < len(b) {
		return io.ErrShortWrite
	}

	return err
}

// WriteBytes writes b verbatim.
func (w *Writer) WriteBytes(b []byte) error {
	return w.emit(b)
}

// WriteUint8 writes a single byte.
func (w *Writer) WriteUint8(v uint8) error {
	w.buf[0] = v
	return w.emit(w.buf[:1])
}

// WriteUint16 writes an unsigned 16-bit value in the stream's byte order.
func (w *Writer) WriteUint16(v uint16) error {
	w.engine.PutUint16(w.buf[:2], v)
	return w.emit(w.buf[:2])
}

// WriteMarker writes a start-column marker in the stream's byte order.
func (w *Writer) WriteMarker(v uint16) error {
	return w.WriteUint16(v)
}

// WriteInt32 writes a signed 32-bit integer.
func (w *Writer) WriteInt32(v int32) error {
	w.engine.PutUint32(w.buf[:4], uint32(v))
	return w.emit(w.buf[:4])
}

// WriteInt64 writes a signed 64-bit integer.
func (w *Writer) WriteInt64(v int64) error {
	w.engine.PutUint64(w.buf[:8], uint64(v))
	return w.emit(w.buf[:8])
}

// WriteReal32 writes a 4-byte IEEE-754 float.
func (w *Writer) WriteReal32(v float32) error {
	w.engine.PutUint32(w.buf[:4], math.Float32bits(v))
	return w.emit(w.buf[:4])
}

// WriteReal64 writes an 8-byte IEEE-754 double.
func (w *Writer) WriteReal64(v float64) error {
	w.engine.PutUint64(w.buf[:8], math.Float64bits(v))
	return w.emit(w.buf[:8])
}

// WriteString writes an int32 length followed by the raw bytes of s.
func (w *Writer) WriteString(s string) error {
	if err := w.WriteInt32(int32(len(s))); err != nil {
		return err
	}

	return w.emit([]byte(s))
}
