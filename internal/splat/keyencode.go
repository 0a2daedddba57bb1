package splat

import "math"

// EncodeDepthKey converts an IEEE-754 depth to an unsigned 32-bit integer
// whose natural ascending order matches ascending depth (spec.md §4.C):
// flip only the sign bit for non-negative values, flip all bits for
// negative values. This is the standard float-to-sortable-uint monotonic
// mapping; it preserves correct relative order of negatives, zero,
// positives, and sorts NaN to an extreme (harmless, since a NaN depth
// splat contributes nothing once it lands at the tail of the sort).
// Negative zero is encoded exactly like positive zero.
func EncodeDepthKey(depth float32) uint32 {
	bits := math.Float32bits(depth)
	if bits == 0x8000_0000 {
		bits = 0
	}
	if bits&0x8000_0000 != 0 {
		// Negative (sign bit set): flip every bit so larger magnitude
		// negatives sort before smaller magnitude ones, and all negatives
		// sort before non-negatives.
		return ^bits
	}
	// Non-negative: flip only the sign bit so it sorts after negatives.
	return bits ^ 0x8000_0000
}

// DecodeDepthKey inverts EncodeDepthKey, for tests and diagnostics.
func DecodeDepthKey(key uint32) float32 {
	if key&0x8000_0000 != 0 {
		return math.Float32frombits(key ^ 0x8000_0000)
	}
	return math.Float32frombits(^key)
}

// PaddingSentinel is written to both the key and payload arrays for padding
// slots beyond N, up to the sorter's block-size-padded length (spec.md §3):
// it sorts to the end in either array without renumbering real splats.
const PaddingSentinel uint32 = 0xFFFFFFFF
