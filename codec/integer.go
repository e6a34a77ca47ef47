package codec

import (
	"fmt"
	"math"

	"github.com/ecmwf/odc-go/errs"
	"github.com/ecmwf/odc-go/stream"
)

// Constant encodes a column whose every value equals min. No bytes are
// written per value; the constant travels in the header. It serves integer,
// bitfield and double columns alike, so it implements both family
// interfaces.
type Constant struct {
	core
}

func (c *Constant) Name() string   { return NameConstant }
func (c *Constant) ValueSize() int { return 0 }

func (c *Constant) EncodeHeader(w *stream.Writer) error {
	return c.encodeHeader(w, NameConstant)
}

func (c *Constant) EncodeInt(_ *stream.Writer, _ int64) error { return nil }

func (c *Constant) DecodeInt(_ *stream.Reader) (int64, error) {
	return int64(c.min), nil
}

func (c *Constant) EncodeReal(_ *stream.Writer, _ float64) error { return nil }

func (c *Constant) DecodeReal(_ *stream.Reader) (float64, error) {
	return c.min, nil
}

// ConstantOrMissing encodes an integer column holding a single distinct
// value plus missing entries: one byte per value, 0xFF for missing.
type ConstantOrMissing struct {
	core
}

func (c *ConstantOrMissing) Name() string   { return NameConstantOrMissing }
func (c *ConstantOrMissing) ValueSize() int { return 1 }

func (c *ConstantOrMissing) EncodeHeader(w *stream.Writer) error {
	return c.encodeHeader(w, NameConstantOrMissing)
}

func (c *ConstantOrMissing) EncodeInt(w *stream.Writer, v int64) error {
	if c.isMissingInt(v) {
		return w.WriteUint8(0xFF)
	}

	return w.WriteUint8(uint8(v - int64(c.min)))
}

func (c *ConstantOrMissing) DecodeInt(r *stream.Reader) (int64, error) {
	b, err := r.ReadUint8()
	if err != nil {
		return 0, err
	}
	if b == 0xFF {
		return c.MissingInt(), nil
	}

	return int64(c.min) + int64(b), nil
}

// Int8 packs values into one byte as an offset from min.
type Int8 struct {
	core
}

func (c *Int8) Name() string   { return NameInt8 }
func (c *Int8) ValueSize() int { return 1 }

func (c *Int8) EncodeHeader(w *stream.Writer) error {
	return c.encodeHeader(w, NameInt8)
}

func (c *Int8) EncodeInt(w *stream.Writer, v int64) error {
	return w.WriteUint8(uint8(v - int64(c.min)))
}

func (c *Int8) DecodeInt(r *stream.Reader) (int64, error) {
	b, err := r.ReadUint8()
	if err != nil {
		return 0, err
	}

	return int64(c.min) + int64(b), nil
}

// Int8Missing is Int8 with the byte 0xFF reserved for missing values, so
// the representable span shrinks to 0xFE.
type Int8Missing struct {
	core
}

func (c *Int8Missing) Name() string   { return NameInt8Missing }
func (c *Int8Missing) ValueSize() int { return 1 }

func (c *Int8Missing) EncodeHeader(w *stream.Writer) error {
	return c.encodeHeader(w, NameInt8Missing)
}

func (c *Int8Missing) EncodeInt(w *stream.Writer, v int64) error {
	if c.isMissingInt(v) {
		return w.WriteUint8(0xFF)
	}

	return w.WriteUint8(uint8(v - int64(c.min)))
}

func (c *Int8Missing) DecodeInt(r *stream.Reader) (int64, error) {
	b, err := r.ReadUint8()
	if err != nil {
		return 0, err
	}
	if b == 0xFF {
		return c.MissingInt(), nil
	}

	return int64(c.min) + int64(b), nil
}

// Int16 packs values into two bytes as an offset from min.
type Int16 struct {
	core
}

func (c *Int16) Name() string   { return NameInt16 }
func (c *Int16) ValueSize() int { return 2 }

func (c *Int16) EncodeHeader(w *stream.Writer) error {
	return c.encodeHeader(w, NameInt16)
}

func (c *Int16) EncodeInt(w *stream.Writer, v int64) error {
	return w.WriteUint16(uint16(v - int64(c.min)))
}

func (c *Int16) DecodeInt(r *stream.Reader) (int64, error) {
	u, err := r.ReadUint16()
	if err != nil {
		return 0, err
	}

	return int64(c.min) + int64(u), nil
}

// Int16Missing is Int16 with 0xFFFF reserved for missing values.
type Int16Missing struct {
	core
}

func (c *Int16Missing) Name() string   { return NameInt16Missing }
func (c *Int16Missing) ValueSize() int { return 2 }

func (c *Int16Missing) EncodeHeader(w *stream.Writer) error {
	return c.encodeHeader(w, NameInt16Missing)
}

func (c *Int16Missing) EncodeInt(w *stream.Writer, v int64) error {
	if c.isMissingInt(v) {
		return w.WriteUint16(0xFFFF)
	}

	return w.WriteUint16(uint16(v - int64(c.min)))
}

func (c *Int16Missing) DecodeInt(r *stream.Reader) (int64, error) {
	u, err := r.ReadUint16()
	if err != nil {
		return 0, err
	}
	if u == 0xFFFF {
		return c.MissingInt(), nil
	}

	return int64(c.min) + int64(u), nil
}

// Int32 stores raw signed 32-bit values without an offset. The sentinel
// 0x7FFFFFFF coincides with the integer missing value, so missing entries
// survive without a reserved escape byte. Values above 2^31-2 cannot be
// represented and are rejected at selection time.
type Int32 struct {
	core
}

func (c *Int32) Name() string   { return NameInt32 }
func (c *Int32) ValueSize() int { return 4 }

func (c *Int32) EncodeHeader(w *stream.Writer) error {
	return c.encodeHeader(w, NameInt32)
}

func (c *Int32) EncodeInt(w *stream.Writer, v int64) error {
	if c.isMissingInt(v) {
		return w.WriteInt32(math.MaxInt32)
	}
	if v < math.MinInt32 || v > math.MaxInt32 {
		return fmt.Errorf("%w: value %d in column %q", errs.ErrUnsupportedRange, v, c.columnName)
	}

	return w.WriteInt32(int32(v))
}

func (c *Int32) DecodeInt(r *stream.Reader) (int64, error) {
	v, err := r.ReadInt32()
	if err != nil {
		return 0, err
	}

	return int64(v), nil
}
