package frame

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ecmwf/odc-go/errs"
	"github.com/ecmwf/odc-go/format"
)

const missing = format.MissingInteger

// sampleBitfields is the sub-schema shared by the sample bitfield columns.
var sampleBitfields = []format.Bitfield{
	{Name: "bf1", Size: 1},
	{Name: "bfextended", Size: 2},
	{Name: "bf3", Size: 1},
}

// sampleTable builds the reference table exercising every codec family.
func sampleTable(t *testing.T) *Table {
	t.Helper()

	tbl := NewTable()
	require.NoError(t, tbl.AddInts("col1", []int64{1, 2, 3, 4, 5, 6, 7}))
	require.NoError(t, tbl.AddInts("col2", []int64{0, 0, 0, 0, 0, 0, 0}))
	require.NoError(t, tbl.AddInts("col3", []int64{73, 73, 73, 73, 73, 73, 73}))
	require.NoError(t, tbl.AddReals("col4", []float64{1.432, 1.432, 1.432, 1.432, 1.432, 1.432, 1.432}))
	require.NoError(t, tbl.AddInts("col5", []int64{-17, -7, -7, missing, 1, 4, 4}))
	require.NoError(t, tbl.AddStrings("col6", []string{"aoeu", "aoeu", "aaaaaaaooooooo", "None", "boo", "squiggle", "a"}))
	require.NoError(t, tbl.AddStrings("col7", []string{"abcd", "abcd", "abcd", "abcd", "abcd", "abcd", "abcd"}))
	require.NoError(t, tbl.AddReals("col8", []float64{2.345, 2.345, 2.345, 2.345, 2.345, 2.345, 2.345}))
	require.NoError(t, tbl.AddReals("col9", []float64{999.99, 888.88, 777.77, 666.66, 555.55, 444.44, 333.33}))
	require.NoError(t, tbl.AddReals("col10", []float64{999.99, 888.88, 777.77, 666.66, 555.55, 444.44, 333.33}))
	require.NoError(t, tbl.AddInts("col11", []int64{1, missing, 3, 4, 5, missing, 7}))
	require.NoError(t, tbl.AddInts("col12", []int64{-512, missing, 3, 7623, -22000, missing, 7}))
	require.NoError(t, tbl.AddInts("col13", []int64{-1234567, 8765432, missing, 22, 22222222, -81222323, missing}))
	require.NoError(t, tbl.AddInts("col14", []int64{0b0000, 0b1001, 0b0110, 0b0101, 0b1010, 0b1111, 0b0000}))
	require.NoError(t, tbl.AddInts("col15", []int64{0b0000, 0b1001, missing, 0b0101, 0b1010, 0b1111, 0b0000}))
	require.NoError(t, tbl.AddInts("constant_bitfield", []int64{0b1100, 0b1100, 0b1100, 0b1100, 0b1100, 0b1100, 0b1100}))

	return tbl
}

func sampleOptions() []EncoderOption {
	return []EncoderOption{
		WithRowsPerFrame(4),
		WithColumnTypes(map[string]format.DataType{
			"col8":              format.Real,
			"col10":             format.Real,
			"col14":             format.Bitfield,
			"col15":             format.Bitfield,
			"constant_bitfield": format.Bitfield,
		}),
		WithBitfields(map[string][]format.Bitfield{
			"col14":             sampleBitfields,
			"col15":             sampleBitfields,
			"constant_bitfield": sampleBitfields,
		}),
		WithProperties(map[string]string{
			"property1": "this is a string ....",
			"property2": ".......and another .......",
		}),
	}
}

func encodeSample(t *testing.T, opts ...EncoderOption) []byte {
	t.Helper()

	var buf bytes.Buffer
	enc, err := NewEncoder(&buf, append(sampleOptions(), opts...)...)
	require.NoError(t, err)
	require.NoError(t, enc.Encode(sampleTable(t)))

	return buf.Bytes()
}

func requireInts(t *testing.T, result *Result, name string, want []int64) {
	t.Helper()

	col, ok := result.Column(name)
	require.True(t, ok, "column %q missing from result", name)
	require.Equal(t, want, col.Ints(), "column %q", name)
}

func requireReals(t *testing.T, result *Result, name string, want []float64) {
	t.Helper()

	col, ok := result.Column(name)
	require.True(t, ok, "column %q missing from result", name)
	require.Equal(t, want, col.Reals(), "column %q", name)
}

func requireRealsInDelta(t *testing.T, result *Result, name string, want []float64, delta float64) {
	t.Helper()

	col, ok := result.Column(name)
	require.True(t, ok, "column %q missing from result", name)
	require.Len(t, col.Reals(), len(want))
	for i, w := range want {
		require.InDelta(t, w, col.Reals()[i], delta, "column %q row %d", name, i)
	}
}

func requireStrings(t *testing.T, result *Result, name string, want []string) {
	t.Helper()

	col, ok := result.Column(name)
	require.True(t, ok, "column %q missing from result", name)
	require.Equal(t, want, col.Strings(), "column %q", name)
}

func TestEncodeDecodeSample(t *testing.T) {
	encoded := encodeSample(t)

	reader, err := NewReader(bytes.NewReader(encoded), WithAggregated(true))
	require.NoError(t, err)
	require.Len(t, reader.Frames(), 1, "4+3 rows should aggregate into one logical frame")

	f := reader.Frames()[0]
	require.Equal(t, 7, f.NumRows())
	require.Equal(t, 16, f.NumColumns())

	result, err := f.Decode()
	require.NoError(t, err)
	require.Equal(t, 7, result.NumRows())
	require.Len(t, result.Names(), 16)

	requireInts(t, result, "col1", []int64{1, 2, 3, 4, 5, 6, 7})
	requireInts(t, result, "col2", []int64{0, 0, 0, 0, 0, 0, 0})
	requireInts(t, result, "col3", []int64{73, 73, 73, 73, 73, 73, 73})
	requireReals(t, result, "col4", []float64{1.432, 1.432, 1.432, 1.432, 1.432, 1.432, 1.432})
	requireInts(t, result, "col5", []int64{-17, -7, -7, missing, 1, 4, 4})
	requireStrings(t, result, "col6", []string{"aoeu", "aoeu", "aaaaaaaooooooo", "None", "boo", "squiggle", "a"})
	requireStrings(t, result, "col7", []string{"abcd", "abcd", "abcd", "abcd", "abcd", "abcd", "abcd"})
	requireReals(t, result, "col8", []float64{2.345, 2.345, 2.345, 2.345, 2.345, 2.345, 2.345})
	requireReals(t, result, "col9", []float64{999.99, 888.88, 777.77, 666.66, 555.55, 444.44, 333.33})
	requireRealsInDelta(t, result, "col10", []float64{999.99, 888.88, 777.77, 666.66, 555.55, 444.44, 333.33}, 0.01)
	requireInts(t, result, "col11", []int64{1, missing, 3, 4, 5, missing, 7})
	requireInts(t, result, "col12", []int64{-512, missing, 3, 7623, -22000, missing, 7})
	requireInts(t, result, "col13", []int64{-1234567, 8765432, missing, 22, 22222222, -81222323, missing})
	requireInts(t, result, "col14", []int64{0b0000, 0b1001, 0b0110, 0b0101, 0b1010, 0b1111, 0b0000})
	requireInts(t, result, "col15", []int64{0b0000, 0b1001, missing, 0b0101, 0b1010, 0b1111, 0b0000})
	requireInts(t, result, "constant_bitfield", []int64{0b1100, 0b1100, 0b1100, 0b1100, 0b1100, 0b1100, 0b1100})
}

func TestFrameSplitWithoutAggregation(t *testing.T) {
	encoded := encodeSample(t)

	reader, err := NewReader(bytes.NewReader(encoded))
	require.NoError(t, err)
	require.Len(t, reader.Frames(), 2)
	require.Equal(t, 4, reader.Frames()[0].NumRows())
	require.Equal(t, 3, reader.Frames()[1].NumRows())

	first, err := reader.Frames()[0].Decode()
	require.NoError(t, err)
	requireInts(t, first, "col1", []int64{1, 2, 3, 4})

	second, err := reader.Frames()[1].Decode()
	require.NoError(t, err)
	requireInts(t, second, "col1", []int64{5, 6, 7})
}

func TestPropertiesRoundTrip(t *testing.T) {
	encoded := encodeSample(t)

	reader, err := NewReader(bytes.NewReader(encoded))
	require.NoError(t, err)

	for _, f := range reader.Frames() {
		require.Equal(t, map[string]string{
			"property1": "this is a string ....",
			"property2": ".......and another .......",
		}, f.Properties())
		require.Empty(t, f.Flags())
	}
}

func TestBitfieldMetadata(t *testing.T) {
	encoded := encodeSample(t)

	reader, err := NewReader(bytes.NewReader(encoded))
	require.NoError(t, err)

	for _, f := range reader.Frames() {
		cols, err := f.Columns()
		require.NoError(t, err)

		byName := make(map[string]ColumnInfo, len(cols))
		for _, c := range cols {
			byName[c.Name] = c
		}

		for _, name := range []string{"col14", "col15"} {
			col, ok := byName[name]
			require.True(t, ok)
			require.Equal(t, format.Bitfield, col.Type)
			require.Len(t, col.Bitfields, 3)
			require.Equal(t, format.Bitfield{Name: "bf1", Size: 1, Offset: 0}, col.Bitfields[0])
			require.Equal(t, format.Bitfield{Name: "bfextended", Size: 2, Offset: 1}, col.Bitfields[1])
			require.Equal(t, format.Bitfield{Name: "bf3", Size: 1, Offset: 3}, col.Bitfields[2])
		}
	}
}

func TestBitfieldSubColumnDecode(t *testing.T) {
	encoded := encodeSample(t)

	reader, err := NewReader(bytes.NewReader(encoded), WithAggregated(true))
	require.NoError(t, err)
	f := reader.Frames()[0]

	result, err := f.Decode(DecodeColumns("col14.bf3", "col14.bfextended", "col14.bf1"))
	require.NoError(t, err)
	require.Equal(t, []string{"col14.bf3", "col14.bfextended", "col14.bf1"}, result.Names())

	requireInts(t, result, "col14.bf1", []int64{0, 1, 0, 1, 0, 1, 0})
	requireInts(t, result, "col14.bfextended", []int64{0, 0, 3, 2, 1, 3, 0})
	requireInts(t, result, "col14.bf3", []int64{0, 1, 0, 0, 1, 1, 0})

	// Missing parent values stay missing in the sub-columns.
	result, err = f.Decode(DecodeColumns("col15.bf3", "col15", "col15.bf1"))
	require.NoError(t, err)
	requireInts(t, result, "col15.bf1", []int64{0, 1, missing, 1, 0, 1, 0})
	requireInts(t, result, "col15", []int64{0b0000, 0b1001, missing, 0b0101, 0b1010, 0b1111, 0b0000})
	requireInts(t, result, "col15.bf3", []int64{0, 1, missing, 0, 1, 1, 0})
}

func TestColumnSubsetDecode(t *testing.T) {
	encoded := encodeSample(t)

	reader, err := NewReader(bytes.NewReader(encoded), WithAggregated(true))
	require.NoError(t, err)

	result, err := reader.Frames()[0].Decode(DecodeColumns("col6", "col7"))
	require.NoError(t, err)
	require.Equal(t, []string{"col6", "col7"}, result.Names())
	requireStrings(t, result, "col6", []string{"aoeu", "aoeu", "aaaaaaaooooooo", "None", "boo", "squiggle", "a"})
	requireStrings(t, result, "col7", []string{"abcd", "abcd", "abcd", "abcd", "abcd", "abcd", "abcd"})
}

func TestBigEndianRoundTrip(t *testing.T) {
	encoded := encodeSample(t, WithBigEndian())

	reader, err := NewReader(bytes.NewReader(encoded), WithAggregated(true))
	require.NoError(t, err)
	require.Len(t, reader.Frames(), 1)

	result, err := reader.Frames()[0].Decode()
	require.NoError(t, err)

	requireInts(t, result, "col1", []int64{1, 2, 3, 4, 5, 6, 7})
	requireInts(t, result, "col13", []int64{-1234567, 8765432, missing, 22, 22222222, -81222323, missing})
	requireReals(t, result, "col9", []float64{999.99, 888.88, 777.77, 666.66, 555.55, 444.44, 333.33})
	requireStrings(t, result, "col6", []string{"aoeu", "aoeu", "aaaaaaaooooooo", "None", "boo", "squiggle", "a"})
}

func TestParallelDecodeMatchesSequential(t *testing.T) {
	encoded := encodeSample(t)

	reader, err := NewReader(bytes.NewReader(encoded), WithAggregated(true))
	require.NoError(t, err)
	f := reader.Frames()[0]

	sequential, err := f.Decode()
	require.NoError(t, err)

	parallel, err := f.Decode(WithThreads(4))
	require.NoError(t, err)

	require.Equal(t, sequential.Names(), parallel.Names())
	for _, name := range sequential.Names() {
		a, _ := sequential.Column(name)
		b, _ := parallel.Column(name)
		require.Equal(t, a.Type(), b.Type())
		require.Equal(t, a.Ints(), b.Ints(), "column %q", name)
		require.Equal(t, a.Strings(), b.Strings(), "column %q", name)
		require.Len(t, b.Reals(), len(a.Reals()))
		for i := range a.Reals() {
			require.Equal(t, a.Reals()[i], b.Reals()[i], "column %q row %d", name, i)
		}
	}
}

func TestDeterministicEncoding(t *testing.T) {
	first := encodeSample(t)
	second := encodeSample(t)
	require.Equal(t, first, second, "two encodes of the same table must be byte-identical")
}

func TestColumnOrderOverride(t *testing.T) {
	tbl := NewTable()
	require.NoError(t, tbl.AddInts("a", []int64{1, 2, 3}))
	require.NoError(t, tbl.AddInts("b", []int64{7, 7, 7}))

	var buf bytes.Buffer
	enc, err := NewEncoder(&buf, WithColumnOrder([]string{"a", "b"}))
	require.NoError(t, err)
	require.NoError(t, enc.Encode(tbl))

	reader, err := NewReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	cols, err := reader.Frames()[0].Columns()
	require.NoError(t, err)
	require.Equal(t, "a", cols[0].Name)
	require.Equal(t, "b", cols[1].Name)
}

func TestInvalidColumnOrder(t *testing.T) {
	tbl := NewTable()
	require.NoError(t, tbl.AddInts("a", []int64{1, 2, 3}))
	require.NoError(t, tbl.AddInts("b", []int64{7, 7, 7}))

	var buf bytes.Buffer
	enc, err := NewEncoder(&buf, WithColumnOrder([]string{"a", "nope"}))
	require.NoError(t, err)
	require.ErrorIs(t, enc.Encode(tbl), errs.ErrInvalidColumnOrder)
}
