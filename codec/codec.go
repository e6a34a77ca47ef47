// Package codec implements the per-column compression codecs of the ODB-2
// format: constants, small-range integer packing, short and long reals,
// dictionary-coded strings and bitfields.
//
// Each on-disk codec variant is one type. A codec encodes or decodes exactly
// one value per call and carries the column metadata written alongside it in
// the frame header. Codecs are immutable after construction (by the selector
// at encode time, or by ReadCodec at decode time) and may be shared across
// goroutines.
package codec

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/ecmwf/odc-go/errs"
	"github.com/ecmwf/odc-go/format"
	"github.com/ecmwf/odc-go/stream"
)

// Wire names of the codec variants.
const (
	NameConstant              = "constant"
	NameConstantOrMissing     = "constant_or_missing"
	NameRealConstantOrMissing = "real_constant_or_missing"
	NameInt8                  = "int8"
	NameInt8Missing           = "int8_missing"
	NameInt16                 = "int16"
	NameInt16Missing          = "int16_missing"
	NameInt32                 = "int32"
	NameLongReal              = "long_real"
	NameShortReal             = "short_real"
	NameShortReal2            = "short_real2"
	NameConstantString        = "constant_string"
	NameLongConstantString    = "long_constant_string"
	NameInt8String            = "int8_string"
	NameInt16String           = "int16_string"
)

// Codec is the metadata surface common to every codec variant.
//
// The value-moving methods live on the family interfaces (IntegerCodec,
// RealCodec, StringCodec); callers type-switch once per column and then move
// values without boxing.
type Codec interface {
	// Name returns the codec's wire name, e.g. "int8_missing".
	Name() string

	// ColumnName returns the fully-qualified name of the bound column.
	ColumnName() string

	// Type returns the decoded data type of the column.
	Type() format.DataType

	// DataSize returns the decoded width in bytes: 8 for numeric and
	// bitfield columns, a positive multiple of 8 for strings.
	DataSize() int

	// HasMissing reports whether the source column contained missing values.
	HasMissing() bool

	// Min and Max bound all non-missing stored values. For constant string
	// codecs they carry the packed constant instead.
	Min() float64
	Max() float64

	// NumChanges returns the number of value transitions observed in the
	// source column. It is a selection-time statistic used to order columns
	// for the row-delta encoding and is zero for codecs read from a header.
	NumChanges() int

	// Bitfields returns the bitfield sub-schema for BITFIELD columns, with
	// offsets derived, and nil otherwise.
	Bitfields() []format.Bitfield

	// ValueSize returns the number of data-region bytes one value occupies.
	ValueSize() int

	// EncodeHeader writes the full on-disk codec header.
	EncodeHeader(w *stream.Writer) error
}

// IntegerCodec moves 64-bit integer values. Missing values are represented
// by the integer missing sentinel on both sides of the call.
type IntegerCodec interface {
	Codec
	EncodeInt(w *stream.Writer, v int64) error
	DecodeInt(r *stream.Reader) (int64, error)
	MissingInt() int64
}

// RealCodec moves 64-bit float values. Missing values are NaN on the public
// side; each codec maps them to its on-disk representation.
type RealCodec interface {
	Codec
	EncodeReal(w *stream.Writer, v float64) error
	DecodeReal(r *stream.Reader) (float64, error)
}

// StringCodec moves string values. The decoder trims trailing NUL padding.
type StringCodec interface {
	Codec
	EncodeString(w *stream.Writer, v string) error
	DecodeString(r *stream.Reader) (string, error)
}

// core carries the header fields shared by every codec variant.
type core struct {
	columnName  string
	dtype       format.DataType
	dataSize    int
	hasMissing  bool
	min         float64
	max         float64
	missingInt  uint32
	missingReal float64
	bitfields   []format.Bitfield
	numChanges  int
}

func (c *core) ColumnName() string           { return c.columnName }
func (c *core) Type() format.DataType        { return c.dtype }
func (c *core) DataSize() int                { return c.dataSize }
func (c *core) HasMissing() bool             { return c.hasMissing }
func (c *core) Min() float64                 { return c.min }
func (c *core) Max() float64                 { return c.max }
func (c *core) NumChanges() int              { return c.numChanges }
func (c *core) Bitfields() []format.Bitfield { return c.bitfields }

// MissingInt returns the value substituted for missing entries of an
// integer or bitfield column.
func (c *core) MissingInt() int64 {
	if c.missingInt != 0 {
		return int64(c.missingInt)
	}

	return format.MissingInteger
}

// isMissingInt reports whether v is the missing sentinel for this column.
func (c *core) isMissingInt(v int64) bool {
	return v == c.MissingInt()
}

// isMissingReal reports whether v represents a missing float value on the
// public surface: NaN, or the canonical missing double.
func isMissingReal(v float64) bool {
	return math.IsNaN(v) || v == format.MissingDouble
}

// encodeHeader writes the common header block followed by the bitfield
// sub-schema for BITFIELD columns. Variant-specific suffixes are written by
// the variant's EncodeHeader after this returns.
func (c *core) encodeHeader(w *stream.Writer, codecName string) error {
	if err := w.WriteString(c.columnName); err != nil {
		return err
	}
	if err := w.WriteInt32(int32(c.dtype)); err != nil {
		return err
	}
	if err := w.WriteInt32(int32(c.dataSize)); err != nil {
		return err
	}
	if err := w.WriteString(codecName); err != nil {
		return err
	}
	missing := uint8(0)
	if c.hasMissing {
		missing = 1
	}
	if err := w.WriteUint8(missing); err != nil {
		return err
	}
	if err := w.WriteReal64(c.min); err != nil {
		return err
	}
	if err := w.WriteReal64(c.max); err != nil {
		return err
	}
	if err := w.WriteInt32(int32(c.missingInt)); err != nil {
		return err
	}
	if err := w.WriteReal64(c.missingReal); err != nil {
		return err
	}

	if c.dtype == format.Bitfield {
		if err := w.WriteInt32(int32(len(c.bitfields))); err != nil {
			return err
		}
		for _, f := range c.bitfields {
			if err := w.WriteString(f.Name); err != nil {
				return err
			}
			if err := w.WriteInt32(int32(f.Size)); err != nil {
				return err
			}
		}
	}

	return nil
}

// readCore reads the common header block and bitfield sub-schema, returning
// the populated core and the codec's wire name.
func readCore(r *stream.Reader) (core, string, error) {
	var c core

	var err error
	if c.columnName, err = r.ReadString(); err != nil {
		return c, "", err
	}

	dtype, err := r.ReadInt32()
	if err != nil {
		return c, "", err
	}
	c.dtype = format.DataType(dtype)
	if !c.dtype.Valid() {
		return c, "", fmt.Errorf("%w: column %q has type code %d", errs.ErrCorruptData, c.columnName, dtype)
	}

	dataSize, err := r.ReadInt32()
	if err != nil {
		return c, "", err
	}
	c.dataSize = int(dataSize)
	if c.dataSize <= 0 || c.dataSize%8 != 0 {
		return c, "", fmt.Errorf("%w: column %q has data size %d", errs.ErrCorruptData, c.columnName, dataSize)
	}

	name, err := r.ReadString()
	if err != nil {
		return c, "", err
	}

	missing, err := r.ReadUint8()
	if err != nil {
		return c, "", err
	}
	c.hasMissing = missing != 0

	if c.min, err = r.ReadReal64(); err != nil {
		return c, "", err
	}
	if c.max, err = r.ReadReal64(); err != nil {
		return c, "", err
	}

	missingInt, err := r.ReadInt32()
	if err != nil {
		return c, "", err
	}
	c.missingInt = uint32(missingInt)

	if c.missingReal, err = r.ReadReal64(); err != nil {
		return c, "", err
	}

	if c.dtype == format.Bitfield {
		n, err := r.ReadInt32()
		if err != nil {
			return c, "", err
		}
		if n <= 0 || n > 64 {
			return c, "", fmt.Errorf("%w: column %q has %d bitfields", errs.ErrCorruptData, c.columnName, n)
		}
		fields := make([]format.Bitfield, n)
		for i := range fields {
			if fields[i].Name, err = r.ReadString(); err != nil {
				return c, "", err
			}
			size, err := r.ReadInt32()
			if err != nil {
				return c, "", err
			}
			fields[i].Size = int(size)
		}
		if format.BitfieldTotalBits(fields) > 64 {
			return c, "", fmt.Errorf("%w: column %q bitfields exceed 64 bits", errs.ErrCorruptData, c.columnName)
		}
		c.bitfields = format.DeriveOffsets(fields)
	}

	return c, name, nil
}

// readerFunc constructs one codec variant from its core header fields,
// consuming any variant-specific suffix from the stream.
type readerFunc func(r *stream.Reader, c core) (Codec, error)

var registry = map[string]readerFunc{
	NameConstant:              func(_ *stream.Reader, c core) (Codec, error) { return &Constant{core: c}, nil },
	NameConstantOrMissing:     func(_ *stream.Reader, c core) (Codec, error) { return &ConstantOrMissing{core: c}, nil },
	NameRealConstantOrMissing: func(_ *stream.Reader, c core) (Codec, error) { return &RealConstantOrMissing{core: c}, nil },
	NameInt8:                  func(_ *stream.Reader, c core) (Codec, error) { return &Int8{core: c}, nil },
	NameInt8Missing:           func(_ *stream.Reader, c core) (Codec, error) { return &Int8Missing{core: c}, nil },
	NameInt16:                 func(_ *stream.Reader, c core) (Codec, error) { return &Int16{core: c}, nil },
	NameInt16Missing:          func(_ *stream.Reader, c core) (Codec, error) { return &Int16Missing{core: c}, nil },
	NameInt32:                 func(_ *stream.Reader, c core) (Codec, error) { return &Int32{core: c}, nil },
	NameLongReal:              func(_ *stream.Reader, c core) (Codec, error) { return &LongReal{core: c}, nil },
	NameShortReal:             func(_ *stream.Reader, c core) (Codec, error) { return &ShortReal{shortRealBase{core: c}}, nil },
	NameShortReal2:            func(_ *stream.Reader, c core) (Codec, error) { return &ShortReal2{shortRealBase{core: c}}, nil },
	NameConstantString:        func(_ *stream.Reader, c core) (Codec, error) { return &ConstantString{core: c}, nil },
	NameLongConstantString:    readLongConstantString,
	NameInt8String:            readInt8String,
	NameInt16String:           readInt16String,
}

// ReadCodec parses one full codec header from the stream and returns the
// corresponding codec. It fails with errs.ErrUnknownCodec for names outside
// the registry.
func ReadCodec(r *stream.Reader) (Codec, error) {
	c, name, err := readCore(r)
	if err != nil {
		return nil, err
	}

	read, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (column %q)", errs.ErrUnknownCodec, name, c.columnName)
	}

	return read(r, c)
}

// packString8 packs up to 8 bytes of s, NUL padded, into the bit pattern of
// a float64 using the little-endian convention shared by all writers.
func packString8(s string) float64 {
	var b [8]byte
	copy(b[:], s)

	return math.Float64frombits(binary.LittleEndian.Uint64(b[:]))
}

// unpackString8 recovers the string packed by packString8, applying
// C-string semantics: the value ends at the first NUL byte. Data migrated
// from ODB-1 stores its "missing string" as the integer missing value cast
// through a double, whose byte pattern begins with NUL; such constants must
// decode to the empty string even though later bytes are non-zero.
func unpackString8(v float64) string {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))

	s := string(b[:])
	if i := strings.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}

	return s
}

// trimNULs removes trailing NUL padding from a decoded string value.
func trimNULs(s string) string {
	return strings.TrimRight(s, "\x00")
}
