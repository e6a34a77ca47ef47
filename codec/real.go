package codec

import (
	"math"

	"github.com/ecmwf/odc-go/format"
	"github.com/ecmwf/odc-go/stream"
)

// RealConstantOrMissing encodes a float column holding a single distinct
// non-missing value plus missing entries: one byte per value, 0xFF for
// missing.
type RealConstantOrMissing struct {
	core
}

func (c *RealConstantOrMissing) Name() string   { return NameRealConstantOrMissing }
func (c *RealConstantOrMissing) ValueSize() int { return 1 }

func (c *RealConstantOrMissing) EncodeHeader(w *stream.Writer) error {
	return c.encodeHeader(w, NameRealConstantOrMissing)
}

func (c *RealConstantOrMissing) EncodeReal(w *stream.Writer, v float64) error {
	if isMissingReal(v) {
		return w.WriteUint8(0xFF)
	}

	return w.WriteUint8(0)
}

func (c *RealConstantOrMissing) DecodeReal(r *stream.Reader) (float64, error) {
	b, err := r.ReadUint8()
	if err != nil {
		return 0, err
	}
	if b == 0xFF {
		return math.NaN(), nil
	}

	return c.min, nil
}

// LongReal stores full 8-byte IEEE-754 doubles. Missing values are written
// as the codec's declared missing value; on decode both that value and NaN
// are accepted as missing, which covers legacy encoders that wrote 0.0.
type LongReal struct {
	core
}

func (c *LongReal) Name() string   { return NameLongReal }
func (c *LongReal) ValueSize() int { return 8 }

func (c *LongReal) EncodeHeader(w *stream.Writer) error {
	return c.encodeHeader(w, NameLongReal)
}

func (c *LongReal) EncodeReal(w *stream.Writer, v float64) error {
	if isMissingReal(v) {
		return w.WriteReal64(c.missingReal)
	}

	return w.WriteReal64(v)
}

func (c *LongReal) DecodeReal(r *stream.Reader) (float64, error) {
	v, err := r.ReadReal64()
	if err != nil {
		return 0, err
	}
	if c.hasMissing {
		if math.Float64bits(v) == math.Float64bits(c.missingReal) || isMissingReal(v) {
			return math.NaN(), nil
		}
	}

	return v, nil
}

// shortRealBase carries the shared 4-byte float behavior of the short_real
// and short_real2 codecs; each variant reserves a different bit pattern as
// its missing sentinel so that data containing one pattern can be stored
// with the other.
type shortRealBase struct {
	core
}

func (c *shortRealBase) ValueSize() int { return 4 }

func (c *shortRealBase) encodeReal(w *stream.Writer, v float64, sentinel float32) error {
	if isMissingReal(v) {
		return w.WriteReal32(sentinel)
	}

	return w.WriteReal32(float32(v))
}

func (c *shortRealBase) decodeReal(r *stream.Reader, sentinel float32) (float64, error) {
	v, err := r.ReadReal32()
	if err != nil {
		return 0, err
	}
	if math.Float32bits(v) == math.Float32bits(sentinel) {
		return math.NaN(), nil
	}

	return float64(v), nil
}

// ShortReal narrows values to 4-byte floats and reserves the bit pattern
// 00 00 80 00 (little-endian) for missing values. The selector picks it
// when the short_real2 sentinel occurs in the data.
type ShortReal struct {
	shortRealBase
}

func (c *ShortReal) Name() string { return NameShortReal }

func (c *ShortReal) EncodeHeader(w *stream.Writer) error {
	return c.encodeHeader(w, NameShortReal)
}

func (c *ShortReal) EncodeReal(w *stream.Writer, v float64) error {
	return c.encodeReal(w, v, format.MissingShortRealA)
}

func (c *ShortReal) DecodeReal(r *stream.Reader) (float64, error) {
	return c.decodeReal(r, format.MissingShortRealA)
}

// ShortReal2 narrows values to 4-byte floats and reserves the bit pattern
// FF FF 7F 7F (little-endian) for missing values. It is the default
// 4-byte codec.
type ShortReal2 struct {
	shortRealBase
}

func (c *ShortReal2) Name() string { return NameShortReal2 }

func (c *ShortReal2) EncodeHeader(w *stream.Writer) error {
	return c.encodeHeader(w, NameShortReal2)
}

func (c *ShortReal2) EncodeReal(w *stream.Writer, v float64) error {
	return c.encodeReal(w, v, format.MissingShortRealB)
}

func (c *ShortReal2) DecodeReal(r *stream.Reader) (float64, error) {
	return c.decodeReal(r, format.MissingShortRealB)
}

