package reference

// ExclusiveScan computes the exclusive prefix sum of counts (spec.md §4.F):
// out[i] = sum(counts[0:i]), out[len(counts)] would be the grand total but
// is returned separately as `total` so callers get it without an extra
// read. The GPU implementation (shaders/scan.wgsl) is the same sequential
// loop run by a single GPU thread.
func ExclusiveScan(counts []uint32) (offsets []uint32, total uint32) {
	offsets = make([]uint32, len(counts))
	var running uint32
	for i, c := range counts {
		offsets[i] = running
		running += c
	}
	return offsets, running
}
