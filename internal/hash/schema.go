// Package hash provides the 64-bit identifiers used to compare frame
// schemas cheaply during aggregation.
package hash

import "github.com/cespare/xxhash/v2"

// SchemaID hashes an ordered sequence of column descriptor strings into one
// 64-bit schema identifier using xxHash64. A NUL byte separates the parts so
// that concatenation ambiguities cannot collide.
func SchemaID(parts []string) uint64 {
	d := xxhash.New()
	for _, p := range parts {
		_, _ = d.WriteString(p)
		_, _ = d.Write([]byte{0})
	}

	return d.Sum64()
}
