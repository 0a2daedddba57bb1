package reference

import "github.com/ath92/splat-renderer/internal/splat"

// ScatterBlockSize mirrors spec.md §4.D's histogram block
// (workgroup x rows-per-thread, typical 256 x 15 = 3840 keys/block). The
// CPU oracle only needs the padded length to be a multiple of some block
// size to exercise the same "padding must be a multiple of the scatter
// block size" invariant the GPU sorter relies on; it does not need to
// replicate the GPU's per-block histogram parallelism to produce the same
// sorted result, since LSD radix sort's correctness does not depend on
// block size.
const ScatterBlockSize = 256 * 15

// PadLength rounds n up to a multiple of ScatterBlockSize.
func PadLength(n int) int {
	if n == 0 {
		return 0
	}
	rem := n % ScatterBlockSize
	if rem == 0 {
		return n
	}
	return n + (ScatterBlockSize - rem)
}

// BuildKeyPayload builds the padded (keys, payload) arrays consumed by the
// sorter (spec.md §3/§4.C): real splats occupy [0,N), padding slots up to
// the block-size-padded length carry splat.PaddingSentinel in both arrays.
func BuildKeyPayload(depths []float32) (keys, payload []uint32) {
	n := len(depths)
	padded := PadLength(n)
	keys = make([]uint32, padded)
	payload = make([]uint32, padded)
	for i, d := range depths {
		keys[i] = splat.EncodeDepthKey(d)
		payload[i] = uint32(i)
	}
	for i := n; i < padded; i++ {
		keys[i] = splat.PaddingSentinel
		payload[i] = splat.PaddingSentinel
	}
	return keys, payload
}

// RadixSortStable performs a 4-pass 8-bit LSD radix sort over 32-bit keys,
// carrying a parallel 32-bit payload (spec.md §4.D). It is stable: splats
// with identical depths keep their original relative order. The GPU
// sorter ping-pongs between two (keys, payload) buffer pairs by pass
// parity; this reference allocates one destination pair and swaps it with
// the source pair after every pass to mirror that ping-pong exactly (so a bug
// in the ping-pong bookkeeping would be caught by comparing against a
// parity-free stdlib stable sort in tests).
func RadixSortStable(keys, payload []uint32) (sortedKeys, sortedPayload []uint32) {
	n := len(keys)
	srcKeys := append([]uint32(nil), keys...)
	srcPayload := append([]uint32(nil), payload...)
	dstKeys := make([]uint32, n)
	dstPayload := make([]uint32, n)

	const radixBits = 8
	const radixSize = 1 << radixBits
	const passes = 32 / radixBits

	for pass := 0; pass < passes; pass++ {
		shift := uint(pass * radixBits)

		var hist [radixSize]int
		for _, k := range srcKeys {
			digit := (k >> shift) & (radixSize - 1)
			hist[digit]++
		}

		// Exclusive prefix sum over the 256-bucket histogram gives each
		// digit its global base offset (spec.md §4.D phase 3).
		var base [radixSize]int
		sum := 0
		for d := 0; d < radixSize; d++ {
			base[d] = sum
			sum += hist[d]
		}

		// Scatter (phase 4): stable because we walk src in increasing
		// index order and each digit's write cursor only advances.
		cursor := base
		for i := 0; i < n; i++ {
			k := srcKeys[i]
			digit := (k >> shift) & (radixSize - 1)
			pos := cursor[digit]
			cursor[digit]++
			dstKeys[pos] = k
			dstPayload[pos] = srcPayload[i]
		}

		srcKeys, dstKeys = dstKeys, srcKeys
		srcPayload, dstPayload = dstPayload, srcPayload
	}

	// After 4 (even) passes the ping-pong parity returns to "src holds the
	// final result" (spec.md §4.D: "After 4 passes the ping-pong parity
	// returns to the original buffers").
	return srcKeys, srcPayload
}

// SortedIndices runs BuildKeyPayload + RadixSortStable and returns the
// first N payload entries: the permutation of [0,N) that visits splats in
// ascending depth (far-to-near) order (spec.md §3 "Sorted indices").
func SortedIndices(depths []float32) []uint32 {
	n := len(depths)
	keys, payload := BuildKeyPayload(depths)
	_, sortedPayload := RadixSortStable(keys, payload)
	return sortedPayload[:n]
}
