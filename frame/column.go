package frame

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ecmwf/odc-go/codec"
	"github.com/ecmwf/odc-go/errs"
	"github.com/ecmwf/odc-go/format"
	"github.com/ecmwf/odc-go/internal/hash"
)

// ColumnInfo describes one column of a frame as recorded in its header.
type ColumnInfo struct {
	Name      string
	Index     int
	Type      format.DataType
	DataSize  int
	Bitfields []format.Bitfield
}

// ShortName returns the column name without its @table qualifier.
func (c ColumnInfo) ShortName() string {
	name, _, _ := strings.Cut(c.Name, "@")
	return name
}

func (c ColumnInfo) String() string {
	if c.Type != format.Bitfield {
		return fmt.Sprintf("%s:%s", c.Name, c.Type)
	}

	parts := make([]string, len(c.Bitfields))
	for i, b := range c.Bitfields {
		parts[i] = fmt.Sprintf("%s:%d", b.Name, b.Size)
	}

	return fmt.Sprintf("%s:%s(%s)", c.Name, c.Type, strings.Join(parts, ","))
}

// columnsFromCodecs derives the public column metadata from a frame's codec
// list.
func columnsFromCodecs(codecs []codec.Codec) []ColumnInfo {
	cols := make([]ColumnInfo, len(codecs))
	for i, c := range codecs {
		cols[i] = ColumnInfo{
			Name:      c.ColumnName(),
			Index:     i,
			Type:      c.Type(),
			DataSize:  c.DataSize(),
			Bitfields: c.Bitfields(),
		}
	}

	return cols
}

// schemaID fingerprints an ordered column set by name and type. Frames with
// equal fingerprints are aggregation-compatible: the string data size and
// bitfield details may differ between the frames of one group.
func schemaID(cols []ColumnInfo) uint64 {
	parts := make([]string, 0, len(cols))
	for _, c := range cols {
		parts = append(parts, c.Name+":"+strconv.Itoa(int(c.Type)))
	}

	return hash.SchemaID(parts)
}

// Array holds one decoded column. Exactly one of the typed accessors
// returns data, according to Type:
//
//   - INTEGER and BITFIELD columns decode to Ints, with missing entries
//     holding format.MissingInteger.
//   - REAL and DOUBLE columns decode to Reals, with missing entries
//     holding NaN.
//   - STRING columns decode to Strings, with missing entries empty.
type Array struct {
	dtype format.DataType
	ints  []int64
	reals []float64
	strs  []string
}

// Type returns the decoded data type of the column.
func (a *Array) Type() format.DataType { return a.dtype }

// Len returns the number of rows.
func (a *Array) Len() int {
	switch a.dtype {
	case format.Integer, format.Bitfield:
		return len(a.ints)
	case format.Real, format.Double:
		return len(a.reals)
	case format.String:
		return len(a.strs)
	default:
		return 0
	}
}

// Ints returns the decoded values of an integer or bitfield column.
func (a *Array) Ints() []int64 { return a.ints }

// Reals returns the decoded values of a real or double column.
func (a *Array) Reals() []float64 { return a.reals }

// Strings returns the decoded values of a string column.
func (a *Array) Strings() []string { return a.strs }

// appendArray concatenates src onto dst in place. Both must decode the same
// column of aggregation-compatible frames.
func (a *Array) appendArray(src *Array) {
	a.ints = append(a.ints, src.ints...)
	a.reals = append(a.reals, src.reals...)
	a.strs = append(a.strs, src.strs...)
}

// Result is the decoded output of a frame: an ordered mapping from requested
// column name to its Array.
type Result struct {
	names  []string
	arrays map[string]*Array
}

// Names returns the column names in output order.
func (r *Result) Names() []string { return r.names }

// Column returns the decoded array for the given output name.
func (r *Result) Column(name string) (*Array, bool) {
	a, ok := r.arrays[name]
	return a, ok
}

// NumRows returns the row count shared by all output columns.
func (r *Result) NumRows() int {
	if len(r.names) == 0 {
		return 0
	}

	return r.arrays[r.names[0]].Len()
}

// target is one resolved output column: a frame column, optionally narrowed
// to a single named bitfield.
type target struct {
	outName string
	colIdx  int
	field   *format.Bitfield
}

// resolveTargets maps requested column names onto frame columns. Names may
// be fully qualified ("name@table"), short ("name"), or address a bitfield
// sub-column ("col.field", "col.field@table"). A nil request selects every
// column in file order.
func resolveTargets(cols []ColumnInfo, requested []string) ([]target, error) {
	if requested == nil {
		targets := make([]target, len(cols))
		for i, c := range cols {
			targets[i] = target{outName: c.Name, colIdx: i}
		}

		return targets, nil
	}

	full := make(map[string]int, len(cols))
	short := make(map[string][]int, len(cols))
	for i, c := range cols {
		full[c.Name] = i
		short[c.ShortName()] = append(short[c.ShortName()], i)
	}

	resolveColumn := func(name string) (int, bool, error) {
		if idx, ok := full[name]; ok {
			return idx, true, nil
		}
		if idxs, ok := short[name]; ok {
			if len(idxs) > 1 {
				return 0, false, fmt.Errorf("%w: %q", errs.ErrAmbiguousColumn, name)
			}

			return idxs[0], true, nil
		}

		return 0, false, nil
	}

	targets := make([]target, 0, len(requested))
	for _, name := range requested {
		idx, ok, err := resolveColumn(name)
		if err != nil {
			return nil, err
		}
		if ok {
			targets = append(targets, target{outName: name, colIdx: idx})
			continue
		}

		// Try the bitfield sub-column form: the base column is everything
		// before the last dot, keeping any @table qualifier attached.
		stem, table, qualified := strings.Cut(name, "@")
		base, fieldName, hasDot := cutLast(stem, '.')
		if hasDot {
			if qualified {
				base = base + "@" + table
			}
			idx, ok, err = resolveColumn(base)
			if err != nil {
				return nil, err
			}
			if ok {
				matched := false
				for i := range cols[idx].Bitfields {
					f := cols[idx].Bitfields[i]
					if f.Name == fieldName {
						targets = append(targets, target{outName: name, colIdx: idx, field: &f})
						matched = true
						break
					}
				}
				if matched {
					continue
				}
			}
		}

		return nil, fmt.Errorf("%w: %q", errs.ErrUnknownColumn, name)
	}

	return targets, nil
}

// cutLast splits s around the last occurrence of sep.
func cutLast(s string, sep byte) (before, after string, found bool) {
	if i := strings.LastIndexByte(s, sep); i >= 0 {
		return s[:i], s[i+1:], true
	}

	return s, "", false
}

// extractBitfield synthesizes a sub-column from a decoded bitfield column by
// shift and mask. Missing parent entries stay missing.
func extractBitfield(parent *Array, f *format.Bitfield) *Array {
	mask := int64(1)<<f.Size - 1
	out := make([]int64, len(parent.ints))
	for i, v := range parent.ints {
		if v == format.MissingInteger {
			out[i] = format.MissingInteger
			continue
		}
		out[i] = (v >> f.Offset) & mask
	}

	return &Array{dtype: format.Bitfield, ints: out}
}
