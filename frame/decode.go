package frame

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/ecmwf/odc-go/codec"
	"github.com/ecmwf/odc-go/endian"
	"github.com/ecmwf/odc-go/errs"
	"github.com/ecmwf/odc-go/format"
	"github.com/ecmwf/odc-go/stream"
)

// columnSink accumulates the decoded values of one column. It binds the
// codec's family interface once so the row loop moves values without
// per-value type switching.
type columnSink struct {
	intCodec  codec.IntegerCodec
	realCodec codec.RealCodec
	strCodec  codec.StringCodec

	array *Array
}

// newColumnSink binds a codec to a fresh output array with capacity for
// nrows values. The codec's family must match its declared column type.
func newColumnSink(c codec.Codec, nrows int) (*columnSink, error) {
	s := &columnSink{array: &Array{dtype: c.Type()}}
	switch c.Type() {
	case format.Integer, format.Bitfield:
		ic, ok := c.(codec.IntegerCodec)
		if !ok {
			return nil, fmt.Errorf("%w: codec %q cannot decode %s column %q",
				errs.ErrCorruptData, c.Name(), c.Type(), c.ColumnName())
		}
		s.intCodec = ic
		s.array.ints = make([]int64, 0, nrows)
	case format.Real, format.Double:
		rc, ok := c.(codec.RealCodec)
		if !ok {
			return nil, fmt.Errorf("%w: codec %q cannot decode %s column %q",
				errs.ErrCorruptData, c.Name(), c.Type(), c.ColumnName())
		}
		s.realCodec = rc
		s.array.reals = make([]float64, 0, nrows)
	case format.String:
		sc, ok := c.(codec.StringCodec)
		if !ok {
			return nil, fmt.Errorf("%w: codec %q cannot decode %s column %q",
				errs.ErrCorruptData, c.Name(), c.Type(), c.ColumnName())
		}
		s.strCodec = sc
		s.array.strs = make([]string, 0, nrows)
	default:
		return nil, fmt.Errorf("%w: column %q has type %s", errs.ErrCorruptData, c.ColumnName(), c.Type())
	}

	return s, nil
}

func (s *columnSink) decodeOne(r *stream.Reader) error {
	switch {
	case s.intCodec != nil:
		v, err := s.intCodec.DecodeInt(r)
		if err != nil {
			return err
		}
		s.array.ints = append(s.array.ints, v)
	case s.realCodec != nil:
		v, err := s.realCodec.DecodeReal(r)
		if err != nil {
			return err
		}
		s.array.reals = append(s.array.reals, v)
	default:
		v, err := s.strCodec.DecodeString(r)
		if err != nil {
			return err
		}
		s.array.strs = append(s.array.strs, v)
	}

	return nil
}

// appendMissing appends the column's typed missing value: the fill for
// legacy frames whose first row marker skips leading columns.
func (s *columnSink) appendMissing() {
	switch {
	case s.intCodec != nil:
		s.array.ints = append(s.array.ints, s.intCodec.MissingInt())
	case s.realCodec != nil:
		s.array.reals = append(s.array.reals, math.NaN())
	default:
		s.array.strs = append(s.array.strs, "")
	}
}

// carry duplicates the last value n times.
func (s *columnSink) carry(n int) {
	switch {
	case s.intCodec != nil:
		last := s.array.ints[len(s.array.ints)-1]
		for range n {
			s.array.ints = append(s.array.ints, last)
		}
	case s.realCodec != nil:
		last := s.array.reals[len(s.array.reals)-1]
		for range n {
			s.array.reals = append(s.array.reals, last)
		}
	default:
		last := s.array.strs[len(s.array.strs)-1]
		for range n {
			s.array.strs = append(s.array.strs, last)
		}
	}
}

// decodeColumns reconstructs every column of a frame's data region.
// With threads > 1 the marker stream is traversed once to compute per-row
// offsets, after which columns decode independently; the single-threaded
// path is the reference and both produce identical output.
func decodeColumns(codecs []codec.Codec, engine endian.EndianEngine, data []byte, nrows, threads int) ([]*Array, error) {
	sinks := make([]*columnSink, len(codecs))
	for i, c := range codecs {
		s, err := newColumnSink(c, nrows)
		if err != nil {
			return nil, err
		}
		sinks[i] = s
	}

	var err error
	if threads > 1 && nrows > 0 && len(codecs) > 1 {
		err = decodeParallel(codecs, sinks, engine, data, nrows, threads)
	} else {
		err = decodeSequential(sinks, engine, data, nrows, len(codecs))
	}
	if err != nil {
		return nil, err
	}

	arrays := make([]*Array, len(sinks))
	for i, s := range sinks {
		if s.array.Len() != nrows {
			return nil, fmt.Errorf("%w: column %q decoded %d of %d rows",
				errs.ErrCorruptData, codecs[i].ColumnName(), s.array.Len(), nrows)
		}
		arrays[i] = s.array
	}

	return arrays, nil
}

// decodeSequential is the reference row-delta decoder: one pass over the
// data region, reconstructing all columns row by row.
func decodeSequential(sinks []*columnSink, engine endian.EndianEngine, data []byte, nrows, ncols int) error {
	r := stream.NewReader(bytes.NewReader(data), engine)

	lastDecoded := make([]int, ncols)
	lastStartCol := -1

	for row := range nrows {
		marker, err := r.ReadMarker()
		if err != nil {
			return fmt.Errorf("%w: truncated row marker at row %d", errs.ErrCorruptData, row)
		}
		startCol := int(marker)
		if startCol > ncols {
			return fmt.Errorf("%w: start column %d of %d at row %d", errs.ErrCorruptData, startCol, ncols, row)
		}

		if lastStartCol < 0 {
			// Legacy frames encoded through a buffer pre-filled with missing
			// values can begin with a non-zero marker; the skipped columns
			// hold their typed missing value.
			for col := range startCol {
				sinks[col].appendMissing()
			}
		} else if lastStartCol > startCol {
			for col := startCol; col < lastStartCol; col++ {
				sinks[col].carry(row - lastDecoded[col] - 1)
			}
		}
		lastStartCol = startCol

		for col := startCol; col < ncols; col++ {
			if err := sinks[col].decodeOne(r); err != nil {
				return fmt.Errorf("row %d column %d: %w", row, col, err)
			}
			lastDecoded[col] = row
		}
	}

	if lastStartCol >= 0 {
		for col := range lastStartCol {
			sinks[col].carry(nrows - lastDecoded[col] - 1)
		}
	}

	if r.Position() != int64(len(data)) {
		return fmt.Errorf("%w: %d stray bytes after last row", errs.ErrCorruptData, int64(len(data))-r.Position())
	}

	return nil
}

// decodeParallel decodes each column independently after a single marker
// scan. Codec objects are immutable and shared; every goroutine owns its
// column's sink and its own reader over the shared data buffer.
func decodeParallel(codecs []codec.Codec, sinks []*columnSink, engine endian.EndianEngine, data []byte, nrows, threads int) error {
	ncols := len(codecs)

	// Exclusive prefix sum of per-value sizes: the offset of column c within
	// a row starting at column s is sizePrefix[c]-sizePrefix[s].
	sizePrefix := make([]int64, ncols+1)
	for i, c := range codecs {
		sizePrefix[i+1] = sizePrefix[i] + int64(c.ValueSize())
	}

	startCols := make([]int, nrows)
	rowStarts := make([]int64, nrows)

	offset := int64(0)
	for row := range nrows {
		if offset+2 > int64(len(data)) {
			return fmt.Errorf("%w: truncated row marker at row %d", errs.ErrCorruptData, row)
		}
		startCol := int(engine.Uint16(data[offset : offset+2]))
		if startCol > ncols {
			return fmt.Errorf("%w: start column %d of %d at row %d", errs.ErrCorruptData, startCol, ncols, row)
		}
		offset += 2

		startCols[row] = startCol
		rowStarts[row] = offset
		offset += sizePrefix[ncols] - sizePrefix[startCol]
		if offset > int64(len(data)) {
			return fmt.Errorf("%w: truncated row %d", errs.ErrCorruptData, row)
		}
	}
	if offset != int64(len(data)) {
		return fmt.Errorf("%w: %d stray bytes after last row", errs.ErrCorruptData, int64(len(data))-offset)
	}

	if threads > runtime.NumCPU() {
		threads = runtime.NumCPU()
	}

	var g errgroup.Group
	g.SetLimit(threads)

	for col := range ncols {
		g.Go(func() error {
			sink := sinks[col]
			br := bytes.NewReader(data)
			r := stream.NewReader(br, engine)

			lastDecoded := 0
			lastStartCol := -1
			for row := range nrows {
				startCol := startCols[row]

				if lastStartCol < 0 {
					if col < startCol {
						sink.appendMissing()
					}
				} else if lastStartCol > startCol && col >= startCol && col < lastStartCol {
					sink.carry(row - lastDecoded - 1)
				}
				lastStartCol = startCol

				if col < startCol {
					continue
				}
				if _, err := br.Seek(rowStarts[row]+sizePrefix[col]-sizePrefix[startCol], io.SeekStart); err != nil {
					return err
				}
				if err := sink.decodeOne(r); err != nil {
					return fmt.Errorf("row %d column %d: %w", row, col, err)
				}
				lastDecoded = row
			}

			if lastStartCol >= 0 && col < lastStartCol {
				sink.carry(nrows - lastDecoded - 1)
			}

			return nil
		})
	}

	return g.Wait()
}
