package codec

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/ecmwf/odc-go/errs"
	"github.com/ecmwf/odc-go/format"
)

// LongStringCodecEnv enables selection of the long_constant_string codec
// when set to a truthy value.
const LongStringCodecEnv = "ODC_ENABLE_WRITING_LONG_STRING_CODEC"

// Source is one column of input values presented to the selector. Exactly
// one of Ints, Reals or Strings must be set. Hint optionally overrides the
// inferred data type; Bitfields must accompany a Bitfield hint.
type Source struct {
	Name      string
	Hint      format.DataType
	Bitfields []format.Bitfield
	Ints      []int64
	Reals     []float64
	Strings   []string
}

// Selected binds the chosen codec to the normalized values it will encode.
// Float input that was inferred (or hinted) to be integer arrives in Ints
// with NaN mapped to the integer missing value, and vice versa.
type Selected struct {
	Codec   Codec
	Ints    []int64
	Reals   []float64
	Strings []string
}

// Select picks the most efficient codec for the source column. Selection is
// deterministic: the same values and hint always yield the same codec class
// and the same encoded header bytes.
func Select(src Source) (*Selected, error) {
	if len(src.Bitfields) > 0 && src.Hint != format.Bitfield {
		return nil, fmt.Errorf("%w: column %q has bitfields but type %s",
			errs.ErrInvalidBitfield, src.Name, src.Hint)
	}

	switch {
	case src.Strings != nil:
		if src.Hint != format.None && src.Hint != format.String {
			return nil, fmt.Errorf("%w: cannot encode string column %q as %s",
				errs.ErrUnsupportedRange, src.Name, src.Hint)
		}

		return selectString(src.Name, src.Strings)

	case src.Ints != nil:
		switch src.Hint {
		case format.None, format.Integer:
			return selectInteger(src.Name, format.Integer, nil, src.Ints)
		case format.Bitfield:
			if err := validateBitfields(src.Name, src.Bitfields); err != nil {
				return nil, err
			}

			return selectInteger(src.Name, format.Bitfield, src.Bitfields, src.Ints)
		case format.Real, format.Double:
			return selectReal(src.Name, src.Hint, intsToReals(src.Ints))
		default:
			return nil, fmt.Errorf("%w: cannot encode integer column %q as %s",
				errs.ErrUnsupportedRange, src.Name, src.Hint)
		}

	case src.Reals != nil:
		switch src.Hint {
		case format.Integer:
			return selectInteger(src.Name, format.Integer, nil, realsToInts(src.Reals))
		case format.Bitfield:
			if err := validateBitfields(src.Name, src.Bitfields); err != nil {
				return nil, err
			}

			return selectInteger(src.Name, format.Bitfield, src.Bitfields, realsToInts(src.Reals))
		case format.Real, format.Double:
			return selectReal(src.Name, src.Hint, src.Reals)
		case format.None:
			// Float columns whose values are all integral (missing allowed)
			// are stored as integers when no explicit type is given.
			if allIntegral(src.Reals) {
				return selectInteger(src.Name, format.Integer, nil, realsToInts(src.Reals))
			}

			return selectReal(src.Name, format.Double, src.Reals)
		default:
			return nil, fmt.Errorf("%w: cannot encode float column %q as %s",
				errs.ErrUnsupportedRange, src.Name, src.Hint)
		}

	default:
		return nil, fmt.Errorf("%w: column %q has no values", errs.ErrCorruptData, src.Name)
	}
}

func validateBitfields(name string, fields []format.Bitfield) error {
	if len(fields) == 0 {
		return fmt.Errorf("%w: bitfield column %q has no fields", errs.ErrInvalidBitfield, name)
	}
	for _, f := range fields {
		if f.Name == "" || f.Size <= 0 {
			return fmt.Errorf("%w: column %q field %q size %d", errs.ErrInvalidBitfield, name, f.Name, f.Size)
		}
	}
	if format.BitfieldTotalBits(fields) > 64 {
		return fmt.Errorf("%w: column %q exceeds 64 bits", errs.ErrInvalidBitfield, name)
	}

	return nil
}

func selectInteger(name string, dtype format.DataType, fields []format.Bitfield, values []int64) (*Selected, error) {
	hasMissing := false
	seen := false
	var minVal, maxVal int64

	numChanges := 0
	for i, v := range values {
		if i > 0 && v != values[i-1] {
			numChanges++
		}
		if v == format.MissingInteger {
			hasMissing = true
			continue
		}
		if !seen || v < minVal {
			minVal = v
		}
		if !seen || v > maxVal {
			maxVal = v
		}
		seen = true
	}
	if !seen {
		// A column of nothing but missing values is stored as a constant
		// whose every entry takes the missing escape.
		minVal, maxVal = format.MissingInteger, format.MissingInteger
	}

	c := core{
		columnName: name,
		dtype:      dtype,
		dataSize:   8,
		hasMissing: hasMissing,
		min:        float64(minVal),
		max:        float64(maxVal),
		missingInt: uint32(format.MissingInteger),
		numChanges: numChanges,
	}
	if dtype == format.Bitfield {
		c.bitfields = format.DeriveOffsets(fields)
	}

	span := uint64(maxVal) - uint64(minVal)

	var chosen Codec
	switch {
	case !hasMissing && minVal == maxVal:
		chosen = &Constant{core: c}
	case hasMissing && minVal == maxVal:
		chosen = &ConstantOrMissing{core: c}
	case !hasMissing && span <= 0xFF:
		chosen = &Int8{core: c}
	case hasMissing && span <= 0xFE:
		chosen = &Int8Missing{core: c}
	case !hasMissing && span <= 0xFFFF:
		chosen = &Int16{core: c}
	case hasMissing && span <= 0xFFFE:
		chosen = &Int16Missing{core: c}
	case minVal >= math.MinInt32 && maxVal <= math.MaxInt32-1:
		chosen = &Int32{core: c}
	default:
		return nil, fmt.Errorf("%w: column %q spans [%d, %d]", errs.ErrUnsupportedRange, name, minVal, maxVal)
	}

	return &Selected{Codec: chosen, Ints: values}, nil
}

func selectReal(name string, dtype format.DataType, values []float64) (*Selected, error) {
	hasMissing := false
	seen := false
	constant := true
	var minVal, maxVal, first float64

	numChanges := 0
	for i, v := range values {
		if i > 0 && !equalReal(v, values[i-1]) {
			numChanges++
		}
		if isMissingReal(v) {
			hasMissing = true
			continue
		}
		if !seen {
			first = v
			minVal, maxVal = v, v
			seen = true
			continue
		}
		if v != first {
			constant = false
		}
		if v < minVal {
			minVal = v
		}
		if v > maxVal {
			maxVal = v
		}
	}
	if !seen {
		minVal, maxVal = format.MissingDouble, format.MissingDouble
	}

	c := core{
		columnName:  name,
		dtype:       dtype,
		dataSize:    8,
		hasMissing:  hasMissing,
		min:         minVal,
		max:         maxVal,
		missingReal: format.MissingDouble,
		numChanges:  numChanges,
	}

	var chosen Codec
	switch {
	case constant && !hasMissing && seen:
		chosen = &Constant{core: c}
	case constant || !seen:
		chosen = &RealConstantOrMissing{core: c}
	case dtype == format.Real:
		chosen = selectShortReal(c, values)
	default:
		chosen = &LongReal{core: c}
	}

	return &Selected{Codec: chosen, Reals: values}, nil
}

// selectShortReal picks the 4-byte codec whose missing sentinel does not
// occur in the data. When both sentinel patterns occur there is no safe
// escape left and the column falls back to full 8-byte reals.
func selectShortReal(c core, values []float64) Codec {
	hasA, hasB := false, false
	for _, v := range values {
		if isMissingReal(v) {
			continue
		}
		f := float32(v)
		switch math.Float32bits(f) {
		case math.Float32bits(format.MissingShortRealA):
			hasA = true
		case math.Float32bits(format.MissingShortRealB):
			hasB = true
		}
	}

	switch {
	case hasB && hasA:
		return &LongReal{core: c}
	case hasB:
		return &ShortReal{shortRealBase{core: c}}
	default:
		return &ShortReal2{shortRealBase{core: c}}
	}
}

func selectString(name string, values []string) (*Selected, error) {
	distinct := make([]string, 0, 16)
	index := make(map[string]struct{}, 16)
	maxLen := 0

	numChanges := 0
	for i, v := range values {
		if i > 0 && v != values[i-1] {
			numChanges++
		}
		if len(v) > maxLen {
			maxLen = len(v)
		}
		if _, ok := index[v]; !ok {
			index[v] = struct{}{}
			distinct = append(distinct, v)
		}
	}

	dataSize := 8
	if maxLen > 8 {
		dataSize = (maxLen + 7) / 8 * 8
	}

	c := core{
		columnName: name,
		dtype:      format.String,
		dataSize:   dataSize,
		numChanges: numChanges,
	}

	var chosen Codec
	switch {
	case len(distinct) == 1 && maxLen <= 8:
		c.min = packString8(distinct[0])
		c.max = c.min
		chosen = &ConstantString{core: c}
	case len(distinct) == 1 && longStringsEnabled():
		chosen = &LongConstantString{core: c, value: distinct[0]}
	case len(distinct) <= 256:
		chosen = &Int8String{core: c, dict: newDictionary(distinct)}
	case len(distinct) <= 65536:
		chosen = &Int16String{core: c, dict: newDictionary(distinct)}
	default:
		return nil, fmt.Errorf("%w: column %q has %d distinct strings", errs.ErrUnsupportedRange, name, len(distinct))
	}

	return &Selected{Codec: chosen, Strings: values}, nil
}

func longStringsEnabled() bool {
	switch strings.ToLower(os.Getenv(LongStringCodecEnv)) {
	case "", "0", "false", "no", "off":
		return false
	default:
		return true
	}
}

func equalReal(a, b float64) bool {
	if isMissingReal(a) || isMissingReal(b) {
		return isMissingReal(a) && isMissingReal(b)
	}

	return a == b
}

func allIntegral(values []float64) bool {
	seen := false
	for _, v := range values {
		if isMissingReal(v) {
			continue
		}
		if v != math.Trunc(v) || math.Abs(v) >= 1<<62 {
			return false
		}
		seen = true
	}

	return seen
}

func intsToReals(values []int64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		if v == format.MissingInteger {
			out[i] = math.NaN()
			continue
		}
		out[i] = float64(v)
	}

	return out
}

func realsToInts(values []float64) []int64 {
	out := make([]int64, len(values))
	for i, v := range values {
		if isMissingReal(v) {
			out[i] = format.MissingInteger
			continue
		}
		out[i] = int64(v)
	}

	return out
}
