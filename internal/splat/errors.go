package splat

import "errors"

// Error taxonomy (spec.md §7). Per-frame anomalies are logged and the
// frame is skipped or cleared; they are never panics.
var (
	// ErrAllocationExceeded is returned when the scan's total exceeds the
	// preallocated tile_indices capacity and the caller asked for a fixed
	// (non-growing) buffer.
	ErrAllocationExceeded = errors.New("splat: tile_indices total exceeds preallocated capacity")

	// ErrPathologicalOverlap indicates total is unreasonably large relative
	// to the splat count, suggesting mis-projected bounds or NaN centres
	// upstream. The frame should be skipped, not rendered.
	ErrPathologicalOverlap = errors.New("splat: tile overlap total implausibly large, skipping frame")

	// ErrDeviceLost propagates a GPU device-loss condition to the host
	// harness; the rasterisation core does not attempt recovery itself.
	ErrDeviceLost = errors.New("splat: GPU device lost")

	// ErrNotInitialized is returned when a GPU-backed stage is used before
	// its resources (pipelines, buffers) have been created.
	ErrNotInitialized = errors.New("splat: GPU stage not initialized")
)

// PathologicalOverlapFactor is the multiplier against the splat count N
// beyond which a scan total is treated as a bug upstream rather than a
// legitimately dense scene (spec.md §7: "> N * 50").
const PathologicalOverlapFactor = 50
