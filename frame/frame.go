// Package frame implements the ODB-2 frame layer: header encoding and
// decoding with MD5 integrity, the row-delta data region, frame iteration
// with optional aggregation, and the encoder that turns columnar tables
// into frames.
package frame

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/ecmwf/odc-go/codec"
	"github.com/ecmwf/odc-go/endian"
	"github.com/ecmwf/odc-go/errs"
	"github.com/ecmwf/odc-go/format"
	"github.com/ecmwf/odc-go/internal/options"
	"github.com/ecmwf/odc-go/stream"
)

// Frame is one self-contained unit of an ODB-2 stream: a parsed header plus
// the location of its data region. The data region is not touched until
// Decode is called; codec objects are constructed lazily on first access and
// never mutated afterwards.
type Frame struct {
	src    io.ReadSeeker
	engine endian.EndianEngine

	dataStart int64
	dataSize  int64
	rows      int64
	flags     []float64
	props     map[string]string
	ncols     int

	// codecBytes holds the raw codec list region of header part 2; it is
	// parsed on first access and memoized in codecs.
	codecBytes []byte
	codecs     []codec.Codec
	columns    []ColumnInfo

	// trailing holds aggregation-compatible frames appended by the reader;
	// this frame decodes to the vertical concatenation of itself and them.
	trailing []*Frame
}

// readFrame parses header part 1 and part 2 at the current position of src.
// A zero-length read at the marker position reports io.EOF: the clean end of
// the stream.
func readFrame(src io.ReadSeeker) (*Frame, error) {
	base, err := src.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}

	// The 2-byte marker and 3-byte magic are endianness-free; a short read
	// here is a normal end of stream, not an error.
	prefix := make([]byte, 5)
	n, err := io.ReadFull(src, prefix)
	if err == io.EOF || (err == io.ErrUnexpectedEOF && n < len(prefix)) {
		return nil, io.EOF
	}
	if err != nil {
		return nil, err
	}
	if prefix[0] != 0xFF || prefix[1] != 0xFF || !bytes.Equal(prefix[2:], format.Magic[:]) {
		return nil, fmt.Errorf("%w: prefix % x", errs.ErrBadMagic, prefix)
	}

	// The endianness marker decides the byte order of everything that
	// follows in this frame.
	endianMarker := make([]byte, 4)
	if _, err := io.ReadFull(src, endianMarker); err != nil {
		return nil, fmt.Errorf("%w: truncated endianness marker", errs.ErrCorruptData)
	}
	engine := endian.GetBigEndianEngine()
	if endian.GetLittleEndianEngine().Uint32(endianMarker) == format.EndianMarker {
		engine = endian.GetLittleEndianEngine()
	}

	r := stream.NewReader(src, engine)

	major, err := r.ReadInt32()
	if err != nil {
		return nil, err
	}
	minor, err := r.ReadInt32()
	if err != nil {
		return nil, err
	}
	if major != format.VersionMajor || minor != format.VersionMinor {
		return nil, fmt.Errorf("%w: %d.%d", errs.ErrUnsupportedVersion, major, minor)
	}

	digest, err := r.ReadString()
	if err != nil {
		return nil, err
	}

	headerLength, err := r.ReadInt32()
	if err != nil {
		return nil, err
	}
	if headerLength <= 0 {
		return nil, fmt.Errorf("%w: header length %d", errs.ErrCorruptData, headerLength)
	}

	part2 := make([]byte, headerLength)
	if _, err := io.ReadFull(src, part2); err != nil {
		return nil, fmt.Errorf("%w: truncated header", errs.ErrCorruptData)
	}

	sum := md5.Sum(part2)
	if hex.EncodeToString(sum[:]) != digest {
		return nil, fmt.Errorf("%w: header digest %s", errs.ErrChecksumMismatch, digest)
	}

	f := &Frame{src: src, engine: engine}
	if err := f.parsePart2(part2); err != nil {
		return nil, err
	}

	dataStart := base + 9 + r.Position() + int64(headerLength)
	f.dataStart = dataStart

	return f, nil
}

// parsePart2 decodes the sizes, flags, properties and column count from the
// verified header bytes, retaining the trailing codec list for lazy parsing.
func (f *Frame) parsePart2(part2 []byte) error {
	br := bytes.NewReader(part2)
	r := stream.NewReader(br, f.engine)

	var err error
	if f.dataSize, err = r.ReadInt64(); err != nil {
		return err
	}
	if f.dataSize < 0 {
		return fmt.Errorf("%w: data size %d", errs.ErrCorruptData, f.dataSize)
	}

	prevOffset, err := r.ReadInt64()
	if err != nil {
		return err
	}
	if prevOffset != 0 {
		return fmt.Errorf("%w: previous frame offset %d", errs.ErrCorruptData, prevOffset)
	}

	if f.rows, err = r.ReadInt64(); err != nil {
		return err
	}
	if f.rows < 0 {
		return fmt.Errorf("%w: row count %d", errs.ErrCorruptData, f.rows)
	}

	flagCount, err := r.ReadInt32()
	if err != nil {
		return err
	}
	if flagCount < 0 {
		return fmt.Errorf("%w: flag count %d", errs.ErrCorruptData, flagCount)
	}
	f.flags = make([]float64, flagCount)
	for i := range f.flags {
		if f.flags[i], err = r.ReadReal64(); err != nil {
			return err
		}
	}

	propCount, err := r.ReadInt32()
	if err != nil {
		return err
	}
	if propCount < 0 {
		return fmt.Errorf("%w: property count %d", errs.ErrCorruptData, propCount)
	}
	f.props = make(map[string]string, propCount)
	for range propCount {
		key, err := r.ReadString()
		if err != nil {
			return err
		}
		value, err := r.ReadString()
		if err != nil {
			return err
		}
		if _, dup := f.props[key]; dup {
			return fmt.Errorf("%w: duplicate property %q", errs.ErrCorruptData, key)
		}
		f.props[key] = value
	}

	ncols, err := r.ReadInt32()
	if err != nil {
		return err
	}
	if ncols < 0 || ncols > 65535 {
		return fmt.Errorf("%w: column count %d", errs.ErrCorruptData, ncols)
	}
	f.ncols = int(ncols)

	f.codecBytes = part2[r.Position():]

	return nil
}

// Codecs returns the frame's codec list, parsing it from the retained header
// bytes on first call.
func (f *Frame) Codecs() ([]codec.Codec, error) {
	if f.codecs != nil {
		return f.codecs, nil
	}

	br := bytes.NewReader(f.codecBytes)
	r := stream.NewReader(br, f.engine)

	codecs := make([]codec.Codec, f.ncols)
	for i := range codecs {
		c, err := codec.ReadCodec(r)
		if err != nil {
			return nil, err
		}
		codecs[i] = c
	}
	if r.Position() != int64(len(f.codecBytes)) {
		return nil, fmt.Errorf("%w: %d stray bytes after codec list",
			errs.ErrCorruptData, int64(len(f.codecBytes))-r.Position())
	}

	f.codecs = codecs

	return codecs, nil
}

// Columns returns the column metadata of the frame.
func (f *Frame) Columns() ([]ColumnInfo, error) {
	if f.columns != nil {
		return f.columns, nil
	}

	codecs, err := f.Codecs()
	if err != nil {
		return nil, err
	}
	f.columns = columnsFromCodecs(codecs)

	return f.columns, nil
}

// NumRows returns the row count of the frame, including any frames
// aggregated onto it.
func (f *Frame) NumRows() int {
	rows := int(f.rows)
	for _, t := range f.trailing {
		rows += t.NumRows()
	}

	return rows
}

// NumColumns returns the number of columns.
func (f *Frame) NumColumns() int { return f.ncols }

// Properties returns the frame's key/value properties.
func (f *Frame) Properties() map[string]string { return f.props }

// Flags returns the frame's flag words.
func (f *Frame) Flags() []float64 { return f.flags }

// SchemaID returns the fingerprint of the frame's column set, used to group
// aggregation-compatible frames.
func (f *Frame) SchemaID() (uint64, error) {
	cols, err := f.Columns()
	if err != nil {
		return 0, err
	}

	return schemaID(cols), nil
}

// dataEnd returns the stream offset just past the frame's data region.
func (f *Frame) dataEnd() int64 { return f.dataStart + f.dataSize }

// Append aggregates other onto f, so that f decodes to the vertical
// concatenation of both. The frames must share a column set (same names and
// types); otherwise ErrMismatchedFrames is returned.
func (f *Frame) Append(other *Frame) error {
	own, err := f.SchemaID()
	if err != nil {
		return err
	}
	theirs, err := other.SchemaID()
	if err != nil {
		return err
	}
	if own != theirs {
		return fmt.Errorf("%w: %d columns vs %d", errs.ErrMismatchedFrames, f.ncols, other.ncols)
	}

	f.trailing = append(f.trailing, other)

	return nil
}

// decodeConfig carries per-decode options.
type decodeConfig struct {
	columns []string
	threads int
}

// DecodeOption configures a single Frame.Decode call.
type DecodeOption = options.Option[*decodeConfig]

// DecodeColumns restricts decoding output to the named columns. Names may be
// fully qualified, short, or bitfield sub-columns ("col.field").
func DecodeColumns(names ...string) DecodeOption {
	return options.NoError(func(c *decodeConfig) {
		c.columns = names
	})
}

// WithThreads decodes the frame's columns with up to n goroutines. The
// output is identical to the single-threaded reference for any n.
func WithThreads(n int) DecodeOption {
	return options.NoError(func(c *decodeConfig) {
		c.threads = n
	})
}

// Decode reconstructs the frame's rows into columnar arrays, including the
// rows of any frames aggregated onto it.
func (f *Frame) Decode(opts ...DecodeOption) (*Result, error) {
	cfg := &decodeConfig{threads: 1}
	if err := options.Apply(cfg, opts...); err != nil {
		return nil, err
	}

	result, err := f.decodeSingle(cfg)
	if err != nil {
		return nil, err
	}

	for _, t := range f.trailing {
		next, err := t.decodeSingle(cfg)
		if err != nil {
			return nil, err
		}
		for _, name := range result.names {
			result.arrays[name].appendArray(next.arrays[name])
		}
	}

	return result, nil
}

// decodeSingle decodes this frame only, ignoring aggregated trailers.
func (f *Frame) decodeSingle(cfg *decodeConfig) (*Result, error) {
	codecs, err := f.Codecs()
	if err != nil {
		return nil, err
	}
	cols, err := f.Columns()
	if err != nil {
		return nil, err
	}

	targets, err := resolveTargets(cols, cfg.columns)
	if err != nil {
		return nil, err
	}

	if _, err := f.src.Seek(f.dataStart, io.SeekStart); err != nil {
		return nil, err
	}
	data := make([]byte, f.dataSize)
	if _, err := io.ReadFull(f.src, data); err != nil {
		return nil, fmt.Errorf("%w: truncated data region", errs.ErrCorruptData)
	}

	arrays, err := decodeColumns(codecs, f.engine, data, int(f.rows), cfg.threads)
	if err != nil {
		return nil, err
	}

	result := &Result{arrays: make(map[string]*Array, len(targets))}
	for _, t := range targets {
		out := arrays[t.colIdx]
		if t.field != nil {
			out = extractBitfield(out, t.field)
		}
		if _, dup := result.arrays[t.outName]; !dup {
			result.names = append(result.names, t.outName)
		}
		result.arrays[t.outName] = out
	}

	return result, nil
}
