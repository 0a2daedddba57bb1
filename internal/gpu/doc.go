//go:build !nogpu

// Package gpu provides the GPU-resident point-splat rasterisation core.
//
// It leverages WebGPU for hardware-accelerated compute via the gogpu/wgpu
// Pure Go WebGPU implementation (zero CGO), which supports Vulkan, Metal,
// and DX12 backends depending on the platform.
//
// # Architecture Overview
//
// The gpu package implements a vello-style tile-binning compute pipeline
// over oriented point splats, entirely GPU-resident within a frame:
//
//	Splats -> Project -> DepthEncode -> RadixSort -> TileCount -> Scan -> TileFill -> Rasterise -> Present
//
// Key components:
//
//   - Backend: device/instance/queue bootstrap
//   - FrameBuffers: all per-frame GPU storage and uniform buffers, sized to
//     the current viewport and splat count
//   - Renderer: orchestrates the fixed dispatch order for one frame inside
//     a single command encoder and submission, then reads back the scan
//     total (for the overlap guards) and the Output framebuffer
//   - SplatDispatcher: one compiled WGSL compute pipeline and bind group
//     layout per SplatStage
//
// # Pipeline Stages
//
//  1. Project: world-space splat -> screen-space AABB, centre, radius, depth
//  2. DepthEncode: IEEE-754 depth -> monotonic uint32 sort key
//  3. RadixSort: 4-pass 8-bit LSD stable sort, ping-ponging two buffer pairs
//  4. TileCount: atomic per-tile overlap counting
//  5. Scan: work-efficient exclusive prefix sum over tile counts
//  6. TileFill: atomic-append of splat indices into per-tile segments
//  7. Rasterise: in-segment depth sort, then per-pixel Gaussian-weighted
//     alpha compositing with Lambertian lighting and early termination
//  8. Present: copies the packed RGBA8 Output buffer into a caller-owned
//     texture (see internal/present); not part of this package's dispatch
//     order since it needs no compute or storage-buffer resources of its
//     own
//
// # Usage
//
// Create and initialize the backend directly:
//
//	b := gpu.NewBackend()
//	if err := b.Init(); err != nil {
//	    log.Fatal(err)
//	}
//	defer b.Close()
//
// Render one frame:
//
//	r := gpu.NewRenderer(b, gpu.RendererConfig{Width: 1920, Height: 1080})
//	pixels, err := r.RenderFrame(ctx, splats, cam)
//	if err != nil {
//	    log.Printf("render error: %v", err)
//	}
//
// # Requirements
//
//   - Go 1.25+
//   - gogpu/wgpu module (github.com/gogpu/wgpu)
//   - A GPU that supports Vulkan, Metal, or DX12 (for actual GPU execution)
//
// # Thread Safety
//
// Backend and Renderer are safe for concurrent use from multiple
// goroutines. Internal synchronization is handled via mutexes.
//
// # Error Handling
//
// The sentinel errors RenderFrame returns are defined in
// github.com/ath92/splat-renderer/internal/splat: ErrAllocationExceeded,
// ErrPathologicalOverlap, ErrNotInitialized. Other GPU failures are
// returned as wrapped errors; this package does not return ErrDeviceLost.
//
// # Benchmarking
//
// Run benchmarks to compare GPU vs CPU-reference performance:
//
//	go test -bench=. ./internal/gpu/...
//
// # Related Packages
//
//   - github.com/ath92/splat-renderer/internal/splat: shared data model
//   - github.com/ath92/splat-renderer/internal/splat/reference: CPU oracle
//   - github.com/ath92/splat-renderer/internal/present: optional windowed
//     presentation of RenderFrame's output
//   - github.com/gogpu/wgpu: Pure Go WebGPU implementation
//
// # References
//
//   - W3C WebGPU Specification: https://www.w3.org/TR/webgpu/
//   - gogpu Organization: https://github.com/gogpu
package gpu
