package codec

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ecmwf/odc-go/endian"
	"github.com/ecmwf/odc-go/errs"
	"github.com/ecmwf/odc-go/format"
	"github.com/ecmwf/odc-go/stream"
)

// headerBytes serializes a codec header little-endian.
func headerBytes(t *testing.T, c Codec) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := stream.NewWriter(&buf, endian.GetLittleEndianEngine())
	require.NoError(t, c.EncodeHeader(w))

	return buf.Bytes()
}

func TestHeaderRoundTrip(t *testing.T) {
	sources := map[string]Source{
		"constant":            {Name: "c@t", Ints: []int64{7, 7, 7}},
		"constant_or_missing": {Name: "c@t", Ints: []int64{7, missing, 7}},
		"int8":                {Name: "c@t", Ints: []int64{1, 100, 7}},
		"int8_missing":        {Name: "c@t", Ints: []int64{1, missing, 7}},
		"int16":               {Name: "c@t", Ints: []int64{1, 30000, 7}},
		"int16_missing":       {Name: "c@t", Ints: []int64{1, missing, 30000}},
		"int32":               {Name: "c@t", Ints: []int64{-1000000, 2000000, 7}},
		"long_real":           {Name: "c@t", Reals: []float64{1.25, 2.5, math.NaN()}},
		"short_real2":         {Name: "c@t", Hint: format.Real, Reals: []float64{1.25, 2.5, 3.75}},
		"constant_string":     {Name: "c@t", Strings: []string{"ab", "ab"}},
		"int8_string":         {Name: "c@t", Strings: []string{"ab", "cd", "ab"}},
		"bitfield": {
			Name:      "c@t",
			Hint:      format.Bitfield,
			Bitfields: []format.Bitfield{{Name: "f1", Size: 2}, {Name: "f2", Size: 3}},
			Ints:      []int64{1, 2, 3},
		},
	}

	for name, src := range sources {
		t.Run(name, func(t *testing.T) {
			sel, err := Select(src)
			require.NoError(t, err)

			encoded := headerBytes(t, sel.Codec)

			r := stream.NewReader(bytes.NewReader(encoded), endian.GetLittleEndianEngine())
			decoded, err := ReadCodec(r)
			require.NoError(t, err)

			require.Equal(t, sel.Codec.Name(), decoded.Name())
			require.Equal(t, sel.Codec.ColumnName(), decoded.ColumnName())
			require.Equal(t, sel.Codec.Type(), decoded.Type())
			require.Equal(t, sel.Codec.DataSize(), decoded.DataSize())
			require.Equal(t, sel.Codec.HasMissing(), decoded.HasMissing())
			require.Equal(t, sel.Codec.Min(), decoded.Min())
			require.Equal(t, sel.Codec.Max(), decoded.Max())
			require.Equal(t, sel.Codec.Bitfields(), decoded.Bitfields())

			// The re-encoded header must be byte-identical.
			require.Equal(t, encoded, headerBytes(t, decoded))
		})
	}
}

func TestHeaderRoundTripBigEndian(t *testing.T) {
	sel, err := Select(Source{Name: "c@t", Ints: []int64{1, missing, 7}})
	require.NoError(t, err)

	var buf bytes.Buffer
	w := stream.NewWriter(&buf, endian.GetBigEndianEngine())
	require.NoError(t, sel.Codec.EncodeHeader(w))

	r := stream.NewReader(bytes.NewReader(buf.Bytes()), endian.GetBigEndianEngine())
	decoded, err := ReadCodec(r)
	require.NoError(t, err)
	require.Equal(t, NameInt8Missing, decoded.Name())
	require.Equal(t, 1.0, decoded.Min())
	require.Equal(t, 7.0, decoded.Max())
}

func TestDeterministicSelection(t *testing.T) {
	src := Source{Name: "c@t", Ints: []int64{-17, -7, -7, missing, 1, 4, 4}}

	first, err := Select(src)
	require.NoError(t, err)
	second, err := Select(src)
	require.NoError(t, err)

	require.Equal(t, first.Codec.Name(), second.Codec.Name())
	require.Equal(t, headerBytes(t, first.Codec), headerBytes(t, second.Codec))
	require.Equal(t, first.Codec.NumChanges(), second.Codec.NumChanges())
	require.Equal(t, 4, first.Codec.NumChanges())
}

func TestUnknownCodec(t *testing.T) {
	var buf bytes.Buffer
	w := stream.NewWriter(&buf, endian.GetLittleEndianEngine())
	require.NoError(t, w.WriteString("col@t"))
	require.NoError(t, w.WriteInt32(int32(format.Integer)))
	require.NoError(t, w.WriteInt32(8))
	require.NoError(t, w.WriteString("bogus"))
	require.NoError(t, w.WriteUint8(0))
	require.NoError(t, w.WriteReal64(0))
	require.NoError(t, w.WriteReal64(0))
	require.NoError(t, w.WriteInt32(0))
	require.NoError(t, w.WriteReal64(0))

	r := stream.NewReader(bytes.NewReader(buf.Bytes()), endian.GetLittleEndianEngine())
	_, err := ReadCodec(r)
	require.ErrorIs(t, err, errs.ErrUnknownCodec)
}

func TestValueSizes(t *testing.T) {
	cases := map[string]struct {
		src  Source
		size int
	}{
		"constant":     {Source{Name: "c", Ints: []int64{7, 7}}, 0},
		"int8":         {Source{Name: "c", Ints: []int64{1, 100}}, 1},
		"int16":        {Source{Name: "c", Ints: []int64{1, 30000}}, 2},
		"int32":        {Source{Name: "c", Ints: []int64{1, 3000000}}, 4},
		"long_real":    {Source{Name: "c", Reals: []float64{1.25, 2.5}}, 8},
		"short_real2":  {Source{Name: "c", Hint: format.Real, Reals: []float64{1.25, 2.5}}, 4},
		"const_string": {Source{Name: "c", Strings: []string{"ab", "ab"}}, 0},
		"int8_string":  {Source{Name: "c", Strings: []string{"ab", "cd"}}, 1},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			sel, err := Select(tc.src)
			require.NoError(t, err)
			require.Equal(t, tc.size, sel.Codec.ValueSize())
		})
	}
}

func TestNumChangesMissingAware(t *testing.T) {
	// Two consecutive missing entries do not count as a change.
	sel, err := Select(Source{Name: "c", Reals: []float64{1.5, math.NaN(), math.NaN(), 1.5, 1.5}})
	require.NoError(t, err)
	require.Equal(t, 2, sel.Codec.NumChanges())
}
