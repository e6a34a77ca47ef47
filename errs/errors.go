// Package errs defines the sentinel errors shared across the odc-go packages.
//
// Call sites wrap these with fmt.Errorf("%w: ...") to attach context; callers
// match with errors.Is.
package errs

import "errors"

var (
	// ErrBadMagic indicates a frame prefix that is not the new-header marker
	// followed by the "ODA" magic.
	ErrBadMagic = errors.New("bad frame magic")

	// ErrUnsupportedVersion indicates header version fields that do not match
	// a known major/minor pair.
	ErrUnsupportedVersion = errors.New("unsupported format version")

	// ErrChecksumMismatch indicates that the MD5 of header part 2 differs
	// from the digest recorded in header part 1.
	ErrChecksumMismatch = errors.New("header checksum mismatch")

	// ErrUnknownCodec indicates a codec name missing from the registry.
	ErrUnknownCodec = errors.New("unknown codec")

	// ErrUnsupportedRange indicates column values the codec family cannot
	// represent, e.g. 64-bit integers outside the signed 32-bit window.
	ErrUnsupportedRange = errors.New("unsupported value range")

	// ErrAmbiguousColumn indicates a short column name shared by more than
	// one fully-qualified column.
	ErrAmbiguousColumn = errors.New("ambiguous column name")

	// ErrUnknownColumn indicates a column lookup that matched nothing.
	ErrUnknownColumn = errors.New("unknown column")

	// ErrMismatchedFrames indicates aggregation across incompatible column
	// sets.
	ErrMismatchedFrames = errors.New("mismatched frames")

	// ErrCorruptData indicates structurally invalid frame contents, e.g. a
	// start-column marker beyond the column count.
	ErrCorruptData = errors.New("corrupt data")

	// ErrDuplicateColumn indicates two input columns with the same name.
	ErrDuplicateColumn = errors.New("duplicate column")

	// ErrColumnLengthMismatch indicates input columns of differing lengths.
	ErrColumnLengthMismatch = errors.New("column length mismatch")

	// ErrInvalidColumnOrder indicates an explicit column order that is not a
	// permutation of the input column names.
	ErrInvalidColumnOrder = errors.New("invalid column order")

	// ErrInvalidBitfield indicates a bitfield schema that is empty, exceeds
	// 64 bits in total, or is attached to a non-bitfield column.
	ErrInvalidBitfield = errors.New("invalid bitfield definition")
)
