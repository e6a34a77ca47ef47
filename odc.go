// Package odc encodes and decodes ODB-2, the self-describing columnar
// binary format used for meteorological observation archives.
//
// A file is a concatenation of independent frames. Each frame holds a
// rectangular table of rows by columns, with a codec selected per column to
// compress the data: constants, small-range integer packing, short and long
// reals, dictionary-coded strings and bitfields. Between consecutive rows
// only the columns whose values changed are written, preceded by a 16-bit
// start-column marker.
//
// # Basic Usage
//
// Encoding a columnar table:
//
//	import "github.com/ecmwf/odc-go"
//
//	t := odc.NewTable()
//	t.AddInts("seqno@hdr", []int64{1, 2, 3})
//	t.AddReals("obsvalue@body", []float64{272.5, 271.9, 273.1})
//	t.AddStrings("expver", []string{"0001", "0001", "0001"})
//
//	var buf bytes.Buffer
//	err := odc.Encode(&buf, t)
//
// Decoding:
//
//	reader, _ := odc.NewReader(bytes.NewReader(buf.Bytes()))
//	for _, f := range reader.Frames() {
//	    result, _ := f.Decode()
//	    for _, name := range result.Names() {
//	        col, _ := result.Column(name)
//	        fmt.Println(name, col.Type(), col.Len())
//	    }
//	}
//
// # Package Structure
//
// This package provides convenient top-level wrappers around the frame
// package, which holds the Reader, Encoder, Frame and Table types. The
// codec package implements the per-column codecs and their selector, and
// the stream package the endianness-parameterized byte primitives.
package odc

import (
	"io"

	"github.com/ecmwf/odc-go/frame"
)

// NewTable creates an empty columnar table for encoding.
func NewTable() *frame.Table {
	return frame.NewTable()
}

// NewReader scans src for frames until end of stream.
//
// Available options:
//   - frame.WithAggregated(true|false)
//   - frame.WithMaxAggregated(n)
func NewReader(src io.ReadSeeker, opts ...frame.ReaderOption) (*frame.Reader, error) {
	return frame.NewReader(src, opts...)
}

// Encode writes t to w as a sequence of ODB-2 frames.
//
// Available options:
//   - frame.WithRowsPerFrame(n)
//   - frame.WithLittleEndian() / frame.WithBigEndian()
//   - frame.WithProperties(map)
//   - frame.WithColumnTypes(map)
//   - frame.WithBitfields(map)
//   - frame.WithColumnOrder(names)
func Encode(w io.Writer, t *frame.Table, opts ...frame.EncoderOption) error {
	enc, err := frame.NewEncoder(w, opts...)
	if err != nil {
		return err
	}

	return enc.Encode(t)
}
