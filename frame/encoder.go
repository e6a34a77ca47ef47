package frame

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/ecmwf/odc-go/codec"
	"github.com/ecmwf/odc-go/endian"
	"github.com/ecmwf/odc-go/errs"
	"github.com/ecmwf/odc-go/format"
	"github.com/ecmwf/odc-go/internal/options"
	"github.com/ecmwf/odc-go/internal/pool"
	"github.com/ecmwf/odc-go/stream"
)

// DefaultRowsPerFrame is the row limit per encoded frame when no override
// is given.
const DefaultRowsPerFrame = 10000

// encoderConfig carries encoder construction options.
type encoderConfig struct {
	rowsPerFrame int
	bigEndian    bool
	properties   map[string]string
	types        map[string]format.DataType
	bitfields    map[string][]format.Bitfield
	columnOrder  []string
}

// EncoderOption configures an Encoder.
type EncoderOption = options.Option[*encoderConfig]

// WithRowsPerFrame splits input tables into frames of at most n rows.
func WithRowsPerFrame(n int) EncoderOption {
	return options.New(func(c *encoderConfig) error {
		if n <= 0 {
			return fmt.Errorf("rows per frame must be positive, got %d", n)
		}
		c.rowsPerFrame = n

		return nil
	})
}

// WithLittleEndian encodes frames in little-endian byte order. It is the
// default.
func WithLittleEndian() EncoderOption {
	return options.NoError(func(c *encoderConfig) {
		c.bigEndian = false
	})
}

// WithBigEndian encodes frames in big-endian byte order.
func WithBigEndian() EncoderOption {
	return options.NoError(func(c *encoderConfig) {
		c.bigEndian = true
	})
}

// WithProperties attaches key/value properties to every encoded frame.
// Properties are written sorted by key so encoded bytes are deterministic.
func WithProperties(props map[string]string) EncoderOption {
	return options.NoError(func(c *encoderConfig) {
		c.properties = props
	})
}

// WithColumnTypes overrides the inferred data type of the named columns.
func WithColumnTypes(types map[string]format.DataType) EncoderOption {
	return options.NoError(func(c *encoderConfig) {
		c.types = types
	})
}

// WithBitfields attaches bitfield sub-schemas to the named columns. Columns
// listed here must also carry a format.Bitfield type override.
func WithBitfields(fields map[string][]format.Bitfield) EncoderOption {
	return options.NoError(func(c *encoderConfig) {
		c.bitfields = fields
	})
}

// WithColumnOrder fixes the on-disk column order instead of sorting columns
// by their rate of change. The list must be a permutation of the table's
// column names.
func WithColumnOrder(order []string) EncoderOption {
	return options.NoError(func(c *encoderConfig) {
		c.columnOrder = order
	})
}

// Encoder writes tables to an output stream as one or more ODB-2 frames.
// Each frame is staged fully in memory and flushed in one piece, so a
// cancelled encode leaves the output truncated at a frame boundary.
//
// Encoder is not safe for concurrent use.
type Encoder struct {
	w      io.Writer
	cfg    encoderConfig
	engine endian.EndianEngine
}

// NewEncoder creates an Encoder writing to w.
func NewEncoder(w io.Writer, opts ...EncoderOption) (*Encoder, error) {
	cfg := encoderConfig{rowsPerFrame: DefaultRowsPerFrame}
	if err := options.Apply(&cfg, opts...); err != nil {
		return nil, err
	}

	engine := endian.GetLittleEndianEngine()
	if cfg.bigEndian {
		engine = endian.GetBigEndianEngine()
	}

	return &Encoder{w: w, cfg: cfg, engine: engine}, nil
}

// Encode writes t as a sequence of frames of at most rowsPerFrame rows.
// Codecs are selected per frame, but the column order chosen for the first
// frame is reused for the rest of the table.
func (e *Encoder) Encode(t *Table) error {
	if t.NumColumns() == 0 || t.NumRows() == 0 {
		return nil
	}

	order := e.cfg.columnOrder
	for start := 0; start < t.NumRows(); start += e.cfg.rowsPerFrame {
		end := min(start+e.cfg.rowsPerFrame, t.NumRows())

		next, err := e.encodeFrame(t.slice(start, end), order)
		if err != nil {
			return err
		}
		order = next
	}

	return nil
}

// encColumn binds one selected codec to its family interface and the
// normalized values it encodes.
type encColumn struct {
	sel *codec.Selected

	intCodec  codec.IntegerCodec
	realCodec codec.RealCodec
	strCodec  codec.StringCodec
}

func newEncColumn(sel *codec.Selected) (*encColumn, error) {
	c := &encColumn{sel: sel}
	switch sel.Codec.Type() {
	case format.Integer, format.Bitfield:
		c.intCodec = sel.Codec.(codec.IntegerCodec)
	case format.Real, format.Double:
		c.realCodec = sel.Codec.(codec.RealCodec)
	case format.String:
		c.strCodec = sel.Codec.(codec.StringCodec)
	default:
		return nil, fmt.Errorf("%w: column %q selected type %s",
			errs.ErrCorruptData, sel.Codec.ColumnName(), sel.Codec.Type())
	}

	return c, nil
}

// equalRows compares two row positions of the column, with missing values
// comparing equal to each other.
func (c *encColumn) equalRows(a, b int) bool {
	switch {
	case c.intCodec != nil:
		return c.sel.Ints[a] == c.sel.Ints[b]
	case c.realCodec != nil:
		return equalMissingAware(c.sel.Reals[a], c.sel.Reals[b])
	default:
		return c.sel.Strings[a] == c.sel.Strings[b]
	}
}

func (c *encColumn) encodeRow(w *stream.Writer, row int) error {
	switch {
	case c.intCodec != nil:
		return c.intCodec.EncodeInt(w, c.sel.Ints[row])
	case c.realCodec != nil:
		return c.realCodec.EncodeReal(w, c.sel.Reals[row])
	default:
		return c.strCodec.EncodeString(w, c.sel.Strings[row])
	}
}

func equalMissingAware(a, b float64) bool {
	aMissing := math.IsNaN(a) || a == format.MissingDouble
	bMissing := math.IsNaN(b) || b == format.MissingDouble
	if aMissing || bMissing {
		return aMissing && bMissing
	}

	return a == b
}

// encodeFrame selects codecs for one sub-table, orders its columns, and
// writes a complete frame. It returns the column order used so subsequent
// frames of the same table can reuse it.
func (e *Encoder) encodeFrame(t *Table, order []string) ([]string, error) {
	// Start-column markers are 16-bit; 65535 is reserved for the new-header
	// marker.
	if len(t.columns) > 65535 {
		return nil, fmt.Errorf("%w: %d columns", errs.ErrUnsupportedRange, len(t.columns))
	}

	selected := make([]*codec.Selected, len(t.columns))
	for i, col := range t.columns {
		src := codec.Source{
			Name:    col.name,
			Hint:    format.None,
			Ints:    col.ints,
			Reals:   col.reals,
			Strings: col.strings,
		}
		if hint, ok := e.cfg.types[col.name]; ok {
			src.Hint = hint
		}
		if fields, ok := e.cfg.bitfields[col.name]; ok {
			src.Bitfields = fields
		}

		sel, err := codec.Select(src)
		if err != nil {
			return nil, err
		}
		selected[i] = sel
	}

	// Slow-varying columns go first so the start-column marker usually
	// lands late in the row.
	if order == nil {
		sort.SliceStable(selected, func(a, b int) bool {
			return selected[a].Codec.NumChanges() < selected[b].Codec.NumChanges()
		})
		order = make([]string, len(selected))
		for i, sel := range selected {
			order[i] = sel.Codec.ColumnName()
		}
	} else {
		reordered, err := reorder(selected, order)
		if err != nil {
			return nil, err
		}
		selected = reordered
	}

	cols := make([]*encColumn, len(selected))
	for i, sel := range selected {
		c, err := newEncColumn(sel)
		if err != nil {
			return nil, err
		}
		cols[i] = c
	}

	dataBuf := pool.GetFrameBuffer()
	defer pool.PutFrameBuffer(dataBuf)
	if err := encodeRows(stream.NewWriter(dataBuf, e.engine), cols, t.NumRows()); err != nil {
		return nil, err
	}

	headerBuf := pool.GetFrameBuffer()
	defer pool.PutFrameBuffer(headerBuf)
	if err := e.encodeHeaderPart2(stream.NewWriter(headerBuf, e.engine), selected, t.NumRows(), dataBuf.Len()); err != nil {
		return nil, err
	}

	preludeBuf := pool.GetFrameBuffer()
	defer pool.PutFrameBuffer(preludeBuf)
	if err := e.encodeHeaderPart1(stream.NewWriter(preludeBuf, e.engine), headerBuf.Bytes()); err != nil {
		return nil, err
	}

	// Join the three regions so the frame reaches the output in one write.
	_, _ = preludeBuf.Write(headerBuf.Bytes())
	_, _ = preludeBuf.Write(dataBuf.Bytes())
	if _, err := preludeBuf.WriteTo(e.w); err != nil {
		return nil, err
	}

	return order, nil
}

// reorder arranges the selected codecs according to an explicit column
// order, which must be a permutation of the column names.
func reorder(selected []*codec.Selected, order []string) ([]*codec.Selected, error) {
	if len(order) != len(selected) {
		return nil, fmt.Errorf("%w: %d names for %d columns", errs.ErrInvalidColumnOrder, len(order), len(selected))
	}

	byName := make(map[string]*codec.Selected, len(selected))
	for _, sel := range selected {
		byName[sel.Codec.ColumnName()] = sel
	}

	out := make([]*codec.Selected, len(order))
	for i, name := range order {
		sel, ok := byName[name]
		if !ok || sel == nil {
			return nil, fmt.Errorf("%w: column %q", errs.ErrInvalidColumnOrder, name)
		}
		out[i] = sel
		byName[name] = nil
	}

	return out, nil
}

// encodeRows writes the row-delta stream: for each row, the index of the
// first column differing from the previous row, then every column from that
// index on. Identical consecutive rows re-emit the final column, mirroring
// the reference encoder.
func encodeRows(w *stream.Writer, cols []*encColumn, nrows int) error {
	ncols := len(cols)
	for row := range nrows {
		start := 0
		if row > 0 {
			start = ncols - 1
			for i := range cols {
				if !cols[i].equalRows(row, row-1) {
					start = i
					break
				}
			}
		}

		if err := w.WriteMarker(uint16(start)); err != nil {
			return err
		}
		for i := start; i < ncols; i++ {
			if err := cols[i].encodeRow(w, row); err != nil {
				return err
			}
		}
	}

	return nil
}

// encodeHeaderPart2 writes the sizes, flags, properties and codec headers.
func (e *Encoder) encodeHeaderPart2(w *stream.Writer, selected []*codec.Selected, nrows, dataLen int) error {
	if err := w.WriteInt64(int64(dataLen)); err != nil {
		return err
	}
	// The offset of the previous frame is never tracked.
	if err := w.WriteInt64(0); err != nil {
		return err
	}
	if err := w.WriteInt64(int64(nrows)); err != nil {
		return err
	}

	// No flag words.
	if err := w.WriteInt32(0); err != nil {
		return err
	}

	keys := make([]string, 0, len(e.cfg.properties))
	for key := range e.cfg.properties {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	if err := w.WriteInt32(int32(len(keys))); err != nil {
		return err
	}
	for _, key := range keys {
		if err := w.WriteString(key); err != nil {
			return err
		}
		if err := w.WriteString(e.cfg.properties[key]); err != nil {
			return err
		}
	}

	if err := w.WriteInt32(int32(len(selected))); err != nil {
		return err
	}
	for _, sel := range selected {
		if err := sel.Codec.EncodeHeader(w); err != nil {
			return err
		}
	}

	return nil
}

// encodeHeaderPart1 writes the fixed prelude with the MD5 of header part 2.
func (e *Encoder) encodeHeaderPart1(w *stream.Writer, part2 []byte) error {
	if err := w.WriteMarker(format.NewHeaderMarker); err != nil {
		return err
	}
	if err := w.WriteBytes(format.Magic[:]); err != nil {
		return err
	}
	if err := w.WriteInt32(int32(format.EndianMarker)); err != nil {
		return err
	}
	if err := w.WriteInt32(format.VersionMajor); err != nil {
		return err
	}
	if err := w.WriteInt32(format.VersionMinor); err != nil {
		return err
	}

	sum := md5.Sum(part2)
	if err := w.WriteString(hex.EncodeToString(sum[:])); err != nil {
		return err
	}

	return w.WriteInt32(int32(len(part2)))
}
