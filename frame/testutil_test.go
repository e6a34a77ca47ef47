package frame

import (
	"bytes"
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ecmwf/odc-go/codec"
	"github.com/ecmwf/odc-go/endian"
	"github.com/ecmwf/odc-go/stream"
)

func nan() float64 { return math.NaN() }

func isNaN(v float64) bool { return math.IsNaN(v) }

func mustInt(sel *codec.Selected) codec.IntegerCodec { return sel.Codec.(codec.IntegerCodec) }

func mustReal(sel *codec.Selected) codec.RealCodec { return sel.Codec.(codec.RealCodec) }

func mustString(sel *codec.Selected) codec.StringCodec { return sel.Codec.(codec.StringCodec) }

// testWriter wraps a stream.Writer for hand-encoding data regions in tests.
type testWriter struct {
	w *stream.Writer
}

func newTestWriter(buf io.Writer, engine endian.EndianEngine) *testWriter {
	return &testWriter{w: stream.NewWriter(buf, engine)}
}

func (tw *testWriter) writeMarker(v uint16) {
	_ = tw.w.WriteMarker(v)
}

// assembleFrame builds complete little-endian frame bytes from selected
// codecs and a hand-encoded data region.
func assembleFrame(t *testing.T, selected []*codec.Selected, nrows int, data []byte) []byte {
	t.Helper()

	enc, err := NewEncoder(io.Discard)
	require.NoError(t, err)

	var part2 bytes.Buffer
	require.NoError(t, enc.encodeHeaderPart2(stream.NewWriter(&part2, enc.engine), selected, nrows, len(data)))

	var part1 bytes.Buffer
	require.NoError(t, enc.encodeHeaderPart1(stream.NewWriter(&part1, enc.engine), part2.Bytes()))

	out := make([]byte, 0, part1.Len()+part2.Len()+len(data))
	out = append(out, part1.Bytes()...)
	out = append(out, part2.Bytes()...)
	out = append(out, data...)

	return out
}
