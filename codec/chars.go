package codec

import (
	"fmt"

	"github.com/ecmwf/odc-go/errs"
	"github.com/ecmwf/odc-go/stream"
)

// ConstantString encodes a column holding a single distinct string of at
// most 8 bytes. No bytes are written per value: the constant is packed into
// the min/max header fields through the little-endian double convention.
type ConstantString struct {
	core
}

func (c *ConstantString) Name() string   { return NameConstantString }
func (c *ConstantString) ValueSize() int { return 0 }

func (c *ConstantString) EncodeHeader(w *stream.Writer) error {
	return c.encodeHeader(w, NameConstantString)
}

func (c *ConstantString) EncodeString(_ *stream.Writer, _ string) error { return nil }

func (c *ConstantString) DecodeString(_ *stream.Reader) (string, error) {
	return unpackString8(c.min), nil
}

// LongConstantString encodes a column holding a single distinct string of
// any length. The constant travels as a header suffix; no bytes are written
// per value. The selector only emits it when long-string writing is enabled
// through ODC_ENABLE_WRITING_LONG_STRING_CODEC.
type LongConstantString struct {
	core
	value string
}

func (c *LongConstantString) Name() string   { return NameLongConstantString }
func (c *LongConstantString) ValueSize() int { return 0 }

func (c *LongConstantString) EncodeHeader(w *stream.Writer) error {
	if err := c.encodeHeader(w, NameLongConstantString); err != nil {
		return err
	}

	return w.WriteString(c.value)
}

func (c *LongConstantString) EncodeString(_ *stream.Writer, _ string) error { return nil }

func (c *LongConstantString) DecodeString(_ *stream.Reader) (string, error) {
	return trimNULs(c.value), nil
}

func readLongConstantString(r *stream.Reader, c core) (Codec, error) {
	value, err := r.ReadString()
	if err != nil {
		return nil, err
	}

	return &LongConstantString{core: c, value: value}, nil
}

// dictionary holds the codec-local string table shared by Int8String and
// Int16String: the distinct values in first-occurrence order, plus the
// reverse index used at encode time.
type dictionary struct {
	values []string
	index  map[string]int
}

func newDictionary(values []string) dictionary {
	d := dictionary{values: values, index: make(map[string]int, len(values))}
	for i, v := range values {
		d.index[v] = i
	}

	return d
}

func (d *dictionary) encodeSuffix(w *stream.Writer) error {
	if err := w.WriteInt32(int32(len(d.values))); err != nil {
		return err
	}
	for _, v := range d.values {
		if err := w.WriteString(v); err != nil {
			return err
		}
	}

	return nil
}

func readDictionary(r *stream.Reader, limit int) (dictionary, error) {
	n, err := r.ReadInt32()
	if err != nil {
		return dictionary{}, err
	}
	if n < 0 || int(n) > limit {
		return dictionary{}, fmt.Errorf("%w: string dictionary of %d entries", errs.ErrCorruptData, n)
	}

	values := make([]string, n)
	for i := range values {
		if values[i], err = r.ReadString(); err != nil {
			return dictionary{}, err
		}
	}

	return newDictionary(values), nil
}

func (d *dictionary) lookup(columnName string, idx int) (string, error) {
	if idx >= len(d.values) {
		return "", fmt.Errorf("%w: dictionary index %d of %d in column %q",
			errs.ErrCorruptData, idx, len(d.values), columnName)
	}

	return trimNULs(d.values[idx]), nil
}

// Int8String dictionary-codes a column of at most 256 distinct strings,
// storing a one-byte index per value. The dictionary travels as a header
// suffix: a count followed by the strings in index order.
type Int8String struct {
	core
	dict dictionary
}

func (c *Int8String) Name() string   { return NameInt8String }
func (c *Int8String) ValueSize() int { return 1 }

func (c *Int8String) EncodeHeader(w *stream.Writer) error {
	if err := c.encodeHeader(w, NameInt8String); err != nil {
		return err
	}

	return c.dict.encodeSuffix(w)
}

func (c *Int8String) EncodeString(w *stream.Writer, v string) error {
	idx, ok := c.dict.index[v]
	if !ok {
		return fmt.Errorf("%w: value not in dictionary of column %q", errs.ErrCorruptData, c.columnName)
	}

	return w.WriteUint8(uint8(idx))
}

func (c *Int8String) DecodeString(r *stream.Reader) (string, error) {
	b, err := r.ReadUint8()
	if err != nil {
		return "", err
	}

	return c.dict.lookup(c.columnName, int(b))
}

func readInt8String(r *stream.Reader, c core) (Codec, error) {
	dict, err := readDictionary(r, 256)
	if err != nil {
		return nil, err
	}

	return &Int8String{core: c, dict: dict}, nil
}

// Int16String dictionary-codes a column of at most 65536 distinct strings,
// storing a two-byte index per value.
type Int16String struct {
	core
	dict dictionary
}

func (c *Int16String) Name() string   { return NameInt16String }
func (c *Int16String) ValueSize() int { return 2 }

func (c *Int16String) EncodeHeader(w *stream.Writer) error {
	if err := c.encodeHeader(w, NameInt16String); err != nil {
		return err
	}

	return c.dict.encodeSuffix(w)
}

func (c *Int16String) EncodeString(w *stream.Writer, v string) error {
	idx, ok := c.dict.index[v]
	if !ok {
		return fmt.Errorf("%w: value not in dictionary of column %q", errs.ErrCorruptData, c.columnName)
	}

	return w.WriteUint16(uint16(idx))
}

func (c *Int16String) DecodeString(r *stream.Reader) (string, error) {
	u, err := r.ReadUint16()
	if err != nil {
		return "", err
	}

	return c.dict.lookup(c.columnName, int(u))
}

func readInt16String(r *stream.Reader, c core) (Codec, error) {
	dict, err := readDictionary(r, 65536)
	if err != nil {
		return nil, err
	}

	return &Int16String{core: c, dict: dict}, nil
}
