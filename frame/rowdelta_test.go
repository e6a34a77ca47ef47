package frame

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ecmwf/odc-go/codec"
	"github.com/ecmwf/odc-go/endian"
	"github.com/ecmwf/odc-go/errs"
)

// TestRowDeltaMarkers checks the wire layout of the row-delta stream for a
// frame with one constant-string column and one varying integer column: the
// constant column sorts first, so every row after the first starts at
// column 1.
func TestRowDeltaMarkers(t *testing.T) {
	tbl := NewTable()
	require.NoError(t, tbl.AddStrings("tag", []string{"x", "x", "x", "x"}))
	require.NoError(t, tbl.AddInts("value", []int64{1, 2, 3, 4}))

	var buf bytes.Buffer
	enc, err := NewEncoder(&buf)
	require.NoError(t, err)
	require.NoError(t, enc.Encode(tbl))

	reader, err := NewReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	f := reader.Frames()[0]

	codecs, err := f.Codecs()
	require.NoError(t, err)
	require.Equal(t, codec.NameConstantString, codecs[0].Name())
	require.Equal(t, codec.NameInt8, codecs[1].Name())

	// Row 0 materializes both columns (the constant contributing no bytes);
	// each following row is marker 1 plus one int8 offset.
	data := buf.Bytes()[f.dataStart:f.dataEnd()]
	require.Equal(t, []byte{
		0x00, 0x00, 0x00,
		0x01, 0x00, 0x01,
		0x01, 0x00, 0x02,
		0x01, 0x00, 0x03,
	}, data)

	result, err := f.Decode()
	require.NoError(t, err)
	requireStrings(t, result, "tag", []string{"x", "x", "x", "x"})
	requireInts(t, result, "value", []int64{1, 2, 3, 4})
}

// TestRepeatedRows covers the encoder's handling of identical consecutive
// rows: the marker points at the final column, which is re-emitted, and the
// carry-forward fills every column on decode.
func TestRepeatedRows(t *testing.T) {
	tbl := NewTable()
	require.NoError(t, tbl.AddInts("a", []int64{5, 5, 5, 9}))
	require.NoError(t, tbl.AddInts("b", []int64{1, 1, 1, 1}))

	var buf bytes.Buffer
	enc, err := NewEncoder(&buf)
	require.NoError(t, err)
	require.NoError(t, enc.Encode(tbl))

	reader, err := NewReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	result, err := reader.Frames()[0].Decode()
	require.NoError(t, err)
	requireInts(t, result, "a", []int64{5, 5, 5, 9})
	requireInts(t, result, "b", []int64{1, 1, 1, 1})
}

// TestLegacyInitialMissing covers frames whose first row marker skips
// leading columns: those columns decode to their typed missing value.
func TestLegacyInitialMissing(t *testing.T) {
	selected := make([]*codec.Selected, 0, 5)
	for _, src := range []codec.Source{
		{Name: "stringval", Strings: []string{"", "testing"}},
		{Name: "intval", Ints: []int64{missing, 12345678}},
		{Name: "realval", Reals: []float64{nan(), 1234.56}},
		{Name: "doubleval", Reals: []float64{nan(), 9876.54}},
		{Name: "changing", Ints: []int64{1234, 5678}},
	} {
		sel, err := codec.Select(src)
		require.NoError(t, err)
		selected = append(selected, sel)
	}

	engine := endian.GetLittleEndianEngine()

	// Hand-encode the data region the way the old write-buffering encoder
	// did: row 0 starts at the last column because the preceding columns
	// held pre-initialized missing values.
	var data bytes.Buffer
	dw := newTestWriter(&data, engine)
	dw.writeMarker(4)
	require.NoError(t, mustInt(selected[4]).EncodeInt(dw.w, 1234))
	dw.writeMarker(0)
	require.NoError(t, mustString(selected[0]).EncodeString(dw.w, "testing"))
	require.NoError(t, mustInt(selected[1]).EncodeInt(dw.w, 12345678))
	require.NoError(t, mustReal(selected[2]).EncodeReal(dw.w, 1234.56))
	require.NoError(t, mustReal(selected[3]).EncodeReal(dw.w, 9876.54))
	require.NoError(t, mustInt(selected[4]).EncodeInt(dw.w, 5678))

	encoded := assembleFrame(t, selected, 2, data.Bytes())

	reader, err := NewReader(bytes.NewReader(encoded))
	require.NoError(t, err)
	require.Len(t, reader.Frames(), 1)

	result, err := reader.Frames()[0].Decode()
	require.NoError(t, err)
	require.Equal(t, 2, result.NumRows())

	requireStrings(t, result, "stringval", []string{"", "testing"})
	requireInts(t, result, "intval", []int64{missing, 12345678})
	requireInts(t, result, "changing", []int64{1234, 5678})

	realval, _ := result.Column("realval")
	require.True(t, isNaN(realval.Reals()[0]))
	require.Equal(t, 1234.56, realval.Reals()[1])

	doubleval, _ := result.Column("doubleval")
	require.True(t, isNaN(doubleval.Reals()[0]))
	require.Equal(t, 9876.54, doubleval.Reals()[1])
}

func TestMarkerBeyondColumnsIsCorrupt(t *testing.T) {
	sel, err := codec.Select(codec.Source{Name: "a", Ints: []int64{1, 200}})
	require.NoError(t, err)

	engine := endian.GetLittleEndianEngine()

	var data bytes.Buffer
	dw := newTestWriter(&data, engine)
	dw.writeMarker(9)

	encoded := assembleFrame(t, []*codec.Selected{sel}, 1, data.Bytes())

	reader, err := NewReader(bytes.NewReader(encoded))
	require.NoError(t, err)

	_, err = reader.Frames()[0].Decode()
	require.ErrorIs(t, err, errs.ErrCorruptData)
}

func TestTruncatedDataRegionIsCorrupt(t *testing.T) {
	sel, err := codec.Select(codec.Source{Name: "a", Ints: []int64{1, 200}})
	require.NoError(t, err)

	engine := endian.GetLittleEndianEngine()

	// Declare two rows but provide only the first.
	var data bytes.Buffer
	dw := newTestWriter(&data, engine)
	dw.writeMarker(0)
	require.NoError(t, mustInt(sel).EncodeInt(dw.w, 1))

	encoded := assembleFrame(t, []*codec.Selected{sel}, 2, data.Bytes())

	reader, err := NewReader(bytes.NewReader(encoded))
	require.NoError(t, err)

	_, err = reader.Frames()[0].Decode()
	require.ErrorIs(t, err, errs.ErrCorruptData)
}
