//go:build !nogpu

// splat_stages.go defines the GPU dispatch orchestration for the point-
// splat compute pipeline (spec.md §4): shader compilation, buffer
// allocation, and the fixed B->C->D->E->F->G->H dispatch order (stage I,
// Present, is handled by internal/present).
//
// Grounded on internal/gpu/vello_compute.go's VelloComputeDispatcher: same
// shape (stage enum, per-stage bind group layout table, Init/Dispatch/
// Close lifecycle, stageDispatch{stage,elements} dispatch list, a single
// command encoder per frame, fence-based submitAndWait), generalized from
// the vello 9-stage 2-D tile pipeline to this 7-stage point-splat one.

package gpu

import (
	_ "embed"
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

//go:embed shaders/project.wgsl
var shaderSplatProject string

//go:embed shaders/depthkey.wgsl
var shaderSplatDepthKey string

//go:embed shaders/radixsort.wgsl
var shaderSplatRadixSort string

//go:embed shaders/tilebin.wgsl
var shaderSplatTileCount string

//go:embed shaders/scan.wgsl
var shaderSplatScan string

//go:embed shaders/tilefill.wgsl
var shaderSplatTileFill string

//go:embed shaders/raster.wgsl
var shaderSplatRaster string

const (
	// splatWGSize is the 1-D workgroup size used by the per-splat/per-key
	// stages (project, depth-encode, radix sort, tile count, tile fill).
	splatWGSize = 256

	// splatRasterWGX, splatRasterWGY are the 2-D workgroup dimensions for
	// the tile rasteriser: one 8x8 workgroup per tile, each thread shading
	// every 8th pixel of the tile in x and y (spec.md §4.H: "2-D dispatch
	// of 8x8 workgroups").
	splatRasterWGX = 8
	splatRasterWGY = 8

	// splatFenceTimeout bounds how long the host waits for one frame's
	// GPU work to complete.
	splatFenceTimeout = 5 * time.Second
)

// SplatStage identifies one compute pass in the pipeline (spec.md §4.B-§4.H).
type SplatStage int

const (
	// StageProject computes each splat's screen AABB, centre, radius, and
	// depth (spec.md §4.B).
	StageProject SplatStage = iota

	// StageDepthEncode converts each splat's depth to a monotonic uint32
	// sort key (spec.md §4.C).
	StageDepthEncode

	// StageRadixSort is dispatched four times (once per 8-bit pass),
	// ping-ponging the keys/payload buffer pairs (spec.md §4.D).
	StageRadixSort

	// StageTileCount atomically counts, per tile, how many splats overlap
	// it (spec.md §4.E).
	StageTileCount

	// StageScan computes the exclusive prefix sum of tile counts
	// (spec.md §4.F).
	StageScan

	// StageTileFill atomically appends splat indices into each tile's
	// segment of tile_indices (spec.md §4.G); the per-segment depth sort
	// runs at the start of StageRasterize.
	StageTileFill

	// StageRasterize sorts each tile's segment by depth in place, then
	// walks the sorted segment and composites
	// Gaussian-weighted alpha splats into the output storage image
	// (spec.md §4.H).
	StageRasterize

	// StagePresent copies the output storage buffer to a caller-owned
	// texture (spec.md §4.I); handled entirely by internal/present, not a
	// compute or render pipeline this dispatcher owns.
	StagePresent

	// stageCount is the total number of stages, including StagePresent,
	// which has no shader.
	stageCount
)

// String returns the human-readable name of the compute stage.
func (s SplatStage) String() string {
	switch s {
	case StageProject:
		return "project"
	case StageDepthEncode:
		return "depthkey"
	case StageRadixSort:
		return "radixsort"
	case StageTileCount:
		return "tilecount"
	case StageScan:
		return "scan"
	case StageTileFill:
		return "tilefill"
	case StageRasterize:
		return "rasterize"
	case StagePresent:
		return "present"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// stageBindGroupLayoutEntries returns the bind group layout entries for a
// stage; these match the @group(0) @binding(N) annotations in the
// corresponding WGSL shader exactly. Every stage binds the Config uniform
// at binding 0.
func stageBindGroupLayoutEntries(stage SplatStage) []gputypes.BindGroupLayoutEntry {
	configUniform := gputypes.BindGroupLayoutEntry{
		Binding:    0,
		Visibility: gputypes.ShaderStageCompute,
		Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
	}
	storageRO := func(binding uint32) gputypes.BindGroupLayoutEntry {
		return gputypes.BindGroupLayoutEntry{
			Binding:    binding,
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage},
		}
	}
	storageRW := func(binding uint32) gputypes.BindGroupLayoutEntry {
		return gputypes.BindGroupLayoutEntry{
			Binding:    binding,
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage},
		}
	}
	switch stage {
	case StageProject:
		// @binding(1) storage(read) splats
		// @binding(2) storage(read_write) projected
		return []gputypes.BindGroupLayoutEntry{configUniform, storageRO(1), storageRW(2)}

	case StageDepthEncode:
		// @binding(1) storage(read) projected
		// @binding(2)/(3) storage(read_write) keys/payload (pass-0 targets)
		return []gputypes.BindGroupLayoutEntry{configUniform, storageRO(1), storageRW(2), storageRW(3)}

	case StageRadixSort:
		// @binding(1)/(2) storage(read) src keys/payload
		// @binding(3)/(4) storage(read_write) dst keys/payload
		return []gputypes.BindGroupLayoutEntry{
			configUniform, storageRO(1), storageRO(2), storageRW(3), storageRW(4),
		}

	case StageTileCount:
		// @binding(1) storage(read) projected, @binding(2) storage(read) sorted payload
		// @binding(3) storage(read_write) counts
		return []gputypes.BindGroupLayoutEntry{configUniform, storageRO(1), storageRO(2), storageRW(3)}

	case StageScan:
		// @binding(1) storage(read) counts
		// @binding(2) storage(read_write) offsets, @binding(3) storage(read_write) total
		return []gputypes.BindGroupLayoutEntry{configUniform, storageRO(1), storageRW(2), storageRW(3)}

	case StageTileFill:
		// @binding(1) storage(read) projected, @binding(2) storage(read) sorted payload
		// @binding(3) storage(read) offsets, @binding(4) storage(read_write) fill_cursor
		// @binding(5) storage(read_write) tile_indices
		return []gputypes.BindGroupLayoutEntry{
			configUniform, storageRO(1), storageRO(2), storageRO(3), storageRW(4), storageRW(5),
		}

	case StageRasterize:
		// @binding(1) storage(read) splats, @binding(2) storage(read) projected
		// @binding(3) storage(read) offsets, @binding(4) storage(read) total
		// @binding(5) storage(read_write) tile_indices (sorted in place),
		// @binding(6) storage(read_write) output
		return []gputypes.BindGroupLayoutEntry{
			configUniform, storageRO(1), storageRO(2), storageRO(3), storageRO(4), storageRW(5), storageRW(6),
		}

	case StagePresent:
		// The presenter copies the Output buffer directly into a
		// caller-owned texture (internal/present); it has no compute
		// bind group layout of its own.
		return nil

	default:
		return nil
	}
}

// SplatDispatcher orchestrates the GPU compute pipeline for one viewport
// size. It manages shader compilation and the fixed dispatch sequence;
// FrameBuffers are allocated and owned separately per frame/resize.
type SplatDispatcher struct {
	mu sync.RWMutex

	device hal.Device
	queue  hal.Queue

	pipelines       [stageCount]hal.ComputePipeline
	pipelineLayouts [stageCount]hal.PipelineLayout
	bgLayouts       [stageCount]hal.BindGroupLayout
	shaderModules   [stageCount]hal.ShaderModule
	shaderSources   [stageCount]string

	initialized bool
	wgSize      uint32
}

// NewSplatDispatcher creates a dispatcher attached to the given HAL device
// and queue. It must be initialized with Init() before Dispatch() can be
// called.
func NewSplatDispatcher(device hal.Device, queue hal.Queue) *SplatDispatcher {
	d := &SplatDispatcher{device: device, queue: queue, wgSize: splatWGSize}
	d.shaderSources = [stageCount]string{
		StageProject:     shaderSplatProject,
		StageDepthEncode: shaderSplatDepthKey,
		StageRadixSort:   shaderSplatRadixSort,
		StageTileCount:   shaderSplatTileCount,
		StageScan:        shaderSplatScan,
		StageTileFill:    shaderSplatTileFill,
		StageRasterize:   shaderSplatRaster,
		// StagePresent has no compute shader source; it is a buffer-to-
		// texture copy performed by internal/present.
	}
	return d
}

// Init compiles all WGSL compute shaders and creates compute pipelines.
// Safe to call multiple times; subsequent calls are no-ops once
// initialized.
func (d *SplatDispatcher) Init() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.initialized {
		return nil
	}

	for i := SplatStage(0); i < stageCount; i++ {
		if i == StagePresent {
			continue
		}
		src := d.shaderSources[i]
		if src == "" {
			return fmt.Errorf("splat gpu: missing shader source for stage %s", i)
		}

		stageName := fmt.Sprintf("splat_%s", i)

		module, err := d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
			Label:  stageName,
			Source: hal.ShaderSource{WGSL: src},
		})
		if err != nil {
			d.destroyPartialInit(i)
			return fmt.Errorf("splat gpu: create shader module for %s: %w", i, err)
		}
		d.shaderModules[i] = module

		entries := stageBindGroupLayoutEntries(i)
		bgLayout, err := d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
			Label:   stageName + "_bgl",
			Entries: entries,
		})
		if err != nil {
			d.destroyPartialInit(i + 1)
			return fmt.Errorf("splat gpu: create bind group layout for %s: %w", i, err)
		}
		d.bgLayouts[i] = bgLayout

		pipelineLayout, err := d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
			Label:            stageName + "_pl",
			BindGroupLayouts: []hal.BindGroupLayout{bgLayout},
		})
		if err != nil {
			d.destroyPartialInit(i + 1)
			return fmt.Errorf("splat gpu: create pipeline layout for %s: %w", i, err)
		}
		d.pipelineLayouts[i] = pipelineLayout

		pipeline, err := d.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
			Label:  stageName,
			Layout: pipelineLayout,
			Compute: hal.ComputeState{
				Module:     module,
				EntryPoint: "main",
			},
		})
		if err != nil {
			d.destroyPartialInit(i + 1)
			return fmt.Errorf("splat gpu: create compute pipeline for %s: %w", i, err)
		}
		d.pipelines[i] = pipeline

		slogger().Debug("splat gpu: pipeline created", "stage", i.String(), "bindings", len(entries))
	}

	slogger().Info("splat gpu: all pipelines initialized", "stages", int(stageCount)-1)
	d.initialized = true
	return nil
}

func (d *SplatDispatcher) destroyPartialInit(upTo SplatStage) {
	for j := SplatStage(0); j < upTo; j++ {
		if d.pipelines[j] != nil {
			d.device.DestroyComputePipeline(d.pipelines[j])
			d.pipelines[j] = nil
		}
		if d.pipelineLayouts[j] != nil {
			d.device.DestroyPipelineLayout(d.pipelineLayouts[j])
			d.pipelineLayouts[j] = nil
		}
		if d.bgLayouts[j] != nil {
			d.device.DestroyBindGroupLayout(d.bgLayouts[j])
			d.bgLayouts[j] = nil
		}
		if d.shaderModules[j] != nil {
			d.device.DestroyShaderModule(d.shaderModules[j])
			d.shaderModules[j] = nil
		}
	}
}

// Close releases all GPU resources held by the dispatcher.
func (d *SplatDispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroyPartialInit(stageCount)
	d.initialized = false
}

// computeWorkgroupCount performs ceiling division by the stage's
// workgroup size, with two exceptions: StageRadixSort always runs as a
// single workgroup (its shader block-sorts the whole padded array using
// workgroup-shared histograms, trading per-pass parallelism breadth for
// a stable single-dispatch scatter), and StageRasterize is dispatched
// 2-D, one workgroup per tile (handled separately in
// encodeComputeStages).
func (d *SplatDispatcher) computeWorkgroupCount(stage SplatStage, elementCount uint32) uint32 {
	if elementCount == 0 {
		return 0
	}
	if stage == StageRadixSort {
		return 1
	}
	return (elementCount + d.wgSize - 1) / d.wgSize
}

// Per-record byte sizes; must match the WGSL struct layouts exactly.
const (
	splatRecordSize     = 12 * 4 // Splat: centre.xyz, radius, normal.xyz, pad, colour.rgb, opacity
	projectedRecordSize = 10 * 4 // ProjectedSplat: bounds_min, bounds_max, depth, radius, centre, index, tail pad to 8-byte alignment
	tileEntryRecordSize = 2 * 4  // TileEntry: splat_index (u32), depth (f32)
)

// splatBufSizes holds computed buffer byte sizes for a single frame.
type splatBufSizes struct {
	config      uint64
	splats      uint64
	projected   uint64
	sortSlot    uint64 // size of each of KeysA/KeysB/PayloadA/PayloadB
	counts      uint64
	offsets     uint64
	scanTotal   uint64
	tileIndices uint64
	fillCursor  uint64
	output      uint64
}

// padToWorkgroup rounds n up to the next multiple of wgSize, so every
// sort pass's workgroups operate on a full tile with no out-of-bounds
// reads; padding slots carry splat.PaddingSentinel keys/payload so they
// always sort to the tail.
func padToWorkgroup(n uint64, wgSize uint32) uint64 {
	w := uint64(wgSize)
	if n == 0 {
		return w
	}
	if rem := n % w; rem != 0 {
		n += w - rem
	}
	return n
}

func computeSplatBufferSizes(layout FrameLayout, tileIndicesCapacity uint64) splatBufSizes {
	numSplats := uint64(layout.NumSplats)
	numTiles := uint64(layout.Grid.TilesX) * uint64(layout.Grid.TilesY)
	padded := padToWorkgroup(numSplats, splatWGSize)

	if tileIndicesCapacity == 0 {
		// No capacity given: size for the worst case, every splat
		// covering every tile. The scan total is not used to resize
		// TileIndices.
		tileIndicesCapacity = numSplats * numTiles
		if tileIndicesCapacity == 0 {
			tileIndicesCapacity = 1
		}
	}

	return splatBufSizes{
		config:      FrameConfig{}.sizeInBytes(),
		splats:      numSplats * splatRecordSize,
		projected:   numSplats * projectedRecordSize,
		sortSlot:    padded * 4,
		counts:      numTiles * 4,
		offsets:     numTiles * 4,
		scanTotal:   4,
		tileIndices: tileIndicesCapacity * tileEntryRecordSize,
		fillCursor:  numTiles * 4,
		output:      uint64(layout.Grid.Width) * uint64(layout.Grid.Height) * 4,
	}
}

// createSplatBuffer creates a single GPU buffer with a minimum size
// guarantee, following vello_compute.go's createVelloBuffer pattern.
func (d *SplatDispatcher) createSplatBuffer(label string, size uint64, usage gputypes.BufferUsage) (hal.Buffer, error) {
	const minBufSize = 4
	if size < minBufSize {
		size = minBufSize
	}
	return d.device.CreateBuffer(&hal.BufferDescriptor{Label: label, Size: size, Usage: usage})
}

// AllocateBuffers creates GPU buffers sized for one frame's splat count
// and tile grid. tileIndicesCapacity may be 0 to request worst-case
// sizing (no readback needed yet); pass the value from
// conservativeTileIndicesCapacity, or the prior frame's scan total, to
// size it tightly.
func (d *SplatDispatcher) AllocateBuffers(layout FrameLayout, tileIndicesCapacity uint64) (*FrameBuffers, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.initialized {
		return nil, fmt.Errorf("splat gpu: dispatcher not initialized, call Init() first")
	}

	sz := computeSplatBufferSizes(layout, tileIndicesCapacity)
	bufs := &FrameBuffers{}

	storageZero := gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst
	storageCPU := gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst
	storageGPU := gputypes.BufferUsageStorage
	uniformCPU := gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst
	storageOut := gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc

	type bufSpec struct {
		target   *hal.Buffer
		label    string
		size     uint64
		usage    gputypes.BufferUsage
		zeroInit bool
	}

	specs := []bufSpec{
		{&bufs.Config, "splat_config", sz.config, uniformCPU, false},
		{&bufs.Splats, "splat_splats", sz.splats, storageCPU, false},
		{&bufs.Projected, "splat_projected", sz.projected, storageGPU, false},
		{&bufs.KeysA, "splat_keys_a", sz.sortSlot, storageGPU, false},
		{&bufs.KeysB, "splat_keys_b", sz.sortSlot, storageGPU, false},
		{&bufs.PayloadA, "splat_payload_a", sz.sortSlot, storageGPU, false},
		{&bufs.PayloadB, "splat_payload_b", sz.sortSlot, storageGPU, false},
		{&bufs.Counts, "splat_counts", sz.counts, storageZero, true},
		{&bufs.Offsets, "splat_offsets", sz.offsets, storageGPU, false},
		{&bufs.ScanTotal, "splat_scan_total", sz.scanTotal, storageZero | gputypes.BufferUsageCopySrc, true},
		{&bufs.TileIndices, "splat_tile_indices", sz.tileIndices, storageGPU, false},
		{&bufs.FillCursor, "splat_fill_cursor", sz.fillCursor, storageZero, true},
		{&bufs.Output, "splat_output", sz.output, storageOut, false},
	}

	for _, s := range specs {
		buf, err := d.createSplatBuffer(s.label, s.size, s.usage)
		if err != nil {
			d.DestroyBuffers(bufs)
			return nil, fmt.Errorf("splat gpu: create %s buffer: %w", s.label, err)
		}
		*s.target = buf
		if s.zeroInit && s.size > 0 {
			d.queue.WriteBuffer(buf, 0, make([]byte, s.size))
		}
	}

	stagingBuf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "splat_scan_total_staging",
		Size:  sz.scanTotal,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		d.DestroyBuffers(bufs)
		return nil, fmt.Errorf("splat gpu: create scan total staging buffer: %w", err)
	}
	bufs.scanTotalStaging = stagingBuf

	slogger().Debug("splat gpu: buffers allocated",
		"num_splats", layout.NumSplats,
		"tiles", fmt.Sprintf("%dx%d", layout.Grid.TilesX, layout.Grid.TilesY),
		"tile_indices_bytes", sz.tileIndices,
		"output_bytes", sz.output)

	return bufs, nil
}

// DestroyBuffers releases all GPU buffers in the given FrameBuffers.
// After this call, the buffers must not be used.
func (d *SplatDispatcher) DestroyBuffers(bufs *FrameBuffers) {
	if bufs == nil {
		return
	}
	destroy := func(b hal.Buffer) {
		if b != nil {
			d.device.DestroyBuffer(b)
		}
	}
	destroy(bufs.Config)
	destroy(bufs.Splats)
	destroy(bufs.Projected)
	destroy(bufs.KeysA)
	destroy(bufs.KeysB)
	destroy(bufs.PayloadA)
	destroy(bufs.PayloadB)
	destroy(bufs.Counts)
	destroy(bufs.Offsets)
	destroy(bufs.ScanTotal)
	destroy(bufs.TileIndices)
	destroy(bufs.FillCursor)
	destroy(bufs.Output)
	destroy(bufs.scanTotalStaging)
	*bufs = FrameBuffers{}
}

// stageBindGroupEntries maps each stage's bindings to the correct buffer
// in FrameBuffers, mirroring vello_compute.go's stageBindGroupEntries.
// RadixSort's src/dst pair depends on the current pass's parity, so the
// caller passes the already-resolved src/dst buffers for that dispatch.
func stageBindGroupEntries(stage SplatStage, bufs *FrameBuffers, srcKeys, srcPayload, dstKeys, dstPayload hal.Buffer) []gputypes.BindGroupEntry {
	entry := func(binding uint32, buf hal.Buffer) gputypes.BindGroupEntry {
		return gputypes.BindGroupEntry{
			Binding:  binding,
			Resource: gputypes.BufferBinding{Buffer: buf.NativeHandle(), Offset: 0, Size: 0},
		}
	}

	switch stage {
	case StageProject:
		return []gputypes.BindGroupEntry{entry(0, bufs.Config), entry(1, bufs.Splats), entry(2, bufs.Projected)}

	case StageDepthEncode:
		return []gputypes.BindGroupEntry{
			entry(0, bufs.Config), entry(1, bufs.Projected), entry(2, bufs.KeysA), entry(3, bufs.PayloadA),
		}

	case StageRadixSort:
		return []gputypes.BindGroupEntry{
			entry(0, bufs.Config), entry(1, srcKeys), entry(2, srcPayload), entry(3, dstKeys), entry(4, dstPayload),
		}

	case StageTileCount:
		return []gputypes.BindGroupEntry{
			entry(0, bufs.Config), entry(1, bufs.Projected), entry(2, srcPayload), entry(3, bufs.Counts),
		}

	case StageScan:
		return []gputypes.BindGroupEntry{
			entry(0, bufs.Config), entry(1, bufs.Counts), entry(2, bufs.Offsets), entry(3, bufs.ScanTotal),
		}

	case StageTileFill:
		return []gputypes.BindGroupEntry{
			entry(0, bufs.Config), entry(1, bufs.Projected), entry(2, srcPayload),
			entry(3, bufs.Offsets), entry(4, bufs.FillCursor), entry(5, bufs.TileIndices),
		}

	case StageRasterize:
		return []gputypes.BindGroupEntry{
			entry(0, bufs.Config), entry(1, bufs.Splats), entry(2, bufs.Projected),
			entry(3, bufs.Offsets), entry(4, bufs.ScanTotal), entry(5, bufs.TileIndices), entry(6, bufs.Output),
		}

	default:
		return nil
	}
}

// dispatchResources tracks per-frame GPU resources for cleanup.
type dispatchResources struct {
	device     hal.Device
	bindGroups []hal.BindGroup
	cmdBuf     hal.CommandBuffer
	fence      hal.Fence
}

func (r *dispatchResources) cleanup() {
	if r.fence != nil {
		r.device.DestroyFence(r.fence)
	}
	if r.cmdBuf != nil {
		r.device.FreeCommandBuffer(r.cmdBuf)
	}
	for _, g := range r.bindGroups {
		r.device.DestroyBindGroup(g)
	}
}

// stageDispatch pairs a stage with the element count its workgroup count
// should be derived from.
type stageDispatch struct {
	stage    SplatStage
	elements uint32
	// srcKeys/srcPayload/dstKeys/dstPayload are only populated for
	// StageRadixSort, one dispatch per 8-bit pass, ping-ponging parity.
	srcKeys, srcPayload, dstKeys, dstPayload hal.Buffer
	// copyBeforeBytes, when > 0, copies Offsets into FillCursor before
	// this stage's compute pass is recorded. Only set for StageTileFill,
	// which starts each tile's atomic append cursor at that tile's
	// exclusive prefix sum offset (spec.md §4.G).
	copyBeforeBytes uint64
}

// Dispatch runs the fixed B->C->D->E->F->G->H dispatch sequence for one
// frame (spec.md §5; Present, stage I, is a buffer-to-texture copy handled
// by internal/present, not part of this compute dispatch).
//
// RadixSort runs four passes (one per 8-bit digit of the depth key),
// ping-ponging KeysA/PayloadA and KeysB/PayloadB by pass parity so the
// final sorted result always lands in bufs.KeysA/bufs.PayloadA (an even
// number of passes).
func (d *SplatDispatcher) Dispatch(bufs *FrameBuffers, cfg FrameConfig) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.initialized {
		return fmt.Errorf("splat gpu: dispatcher not initialized, call Init() first")
	}
	if bufs == nil {
		return fmt.Errorf("splat gpu: buffers must not be nil")
	}

	d.queue.WriteBuffer(bufs.Config, 0, cfg.toBytes())

	numTiles := cfg.TilesX * cfg.TilesY

	stages := make([]stageDispatch, 0, 9)
	stages = append(stages,
		stageDispatch{stage: StageProject, elements: cfg.NumSplats},
		stageDispatch{stage: StageDepthEncode, elements: cfg.NumSplats},
	)

	// Four LSD radix passes, ping-ponging A<->B.
	srcKeys, srcPayload, dstKeys, dstPayload := bufs.KeysA, bufs.PayloadA, bufs.KeysB, bufs.PayloadB
	for pass := uint32(0); pass < 4; pass++ {
		cfg.RadixPass = pass
		d.queue.WriteBuffer(bufs.Config, 0, cfg.toBytes())
		stages = append(stages, stageDispatch{
			stage: StageRadixSort, elements: cfg.PaddedLen,
			srcKeys: srcKeys, srcPayload: srcPayload, dstKeys: dstKeys, dstPayload: dstPayload,
		})
		srcKeys, dstKeys = dstKeys, srcKeys
		srcPayload, dstPayload = dstPayload, srcPayload
	}
	// After 4 (even) passes, the sorted result is back in KeysA/PayloadA.
	sortedPayload := bufs.PayloadA

	stages = append(stages,
		stageDispatch{stage: StageTileCount, elements: cfg.NumSplats, srcPayload: sortedPayload},
		stageDispatch{stage: StageScan, elements: numTiles},
		stageDispatch{
			stage: StageTileFill, elements: cfg.NumSplats, srcPayload: sortedPayload,
			copyBeforeBytes: uint64(numTiles) * 4,
		},
		stageDispatch{stage: StageRasterize, elements: numTiles},
	)

	res := &dispatchResources{device: d.device}
	defer res.cleanup()

	if err := d.encodeComputeStages(res, bufs, stages); err != nil {
		return err
	}
	return d.submitAndWait(res)
}

// encodeComputeStages records all compute passes into a single command
// buffer, mirroring vello_compute.go's encodeComputeStages.
func (d *SplatDispatcher) encodeComputeStages(res *dispatchResources, bufs *FrameBuffers, stages []stageDispatch) error {
	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "splat_compute"})
	if err != nil {
		return fmt.Errorf("splat gpu: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("splat_compute"); err != nil {
		return fmt.Errorf("splat gpu: begin encoding: %w", err)
	}

	for _, sd := range stages {
		if sd.copyBeforeBytes > 0 {
			encoder.CopyBufferToBuffer(bufs.Offsets, bufs.FillCursor, []hal.BufferCopy{
				{SrcOffset: 0, DstOffset: 0, Size: sd.copyBeforeBytes},
			})
		}

		var wgX, wgY uint32
		if sd.stage == StageRasterize {
			// One workgroup per tile, 8x8 threads each (spec.md §4.H).
			wgX, wgY = sd.elements, 1
			if wgX == 0 {
				continue
			}
		} else {
			wgX = d.computeWorkgroupCount(sd.stage, sd.elements)
			wgY = 1
			if wgX == 0 {
				continue
			}
		}

		bg, bgErr := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
			Label:   fmt.Sprintf("splat_%s_bg", sd.stage),
			Layout:  d.bgLayouts[sd.stage],
			Entries: stageBindGroupEntries(sd.stage, bufs, sd.srcKeys, sd.srcPayload, sd.dstKeys, sd.dstPayload),
		})
		if bgErr != nil {
			encoder.DiscardEncoding()
			return fmt.Errorf("splat gpu: create bind group for %s: %w", sd.stage, bgErr)
		}
		res.bindGroups = append(res.bindGroups, bg)

		pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: fmt.Sprintf("splat_%s", sd.stage)})
		pass.SetPipeline(d.pipelines[sd.stage])
		pass.SetBindGroup(0, bg, nil)
		pass.Dispatch(wgX, wgY, 1)
		pass.End()

		slogger().Debug("splat gpu: dispatched stage",
			"stage", sd.stage.String(), "elements", sd.elements, "workgroups_x", wgX)
	}

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("splat gpu: end encoding: %w", err)
	}
	res.cmdBuf = cmdBuf
	return nil
}

// submitAndWait submits the command buffer and blocks until GPU
// completion or splatFenceTimeout elapses.
func (d *SplatDispatcher) submitAndWait(res *dispatchResources) error {
	fence, err := d.device.CreateFence()
	if err != nil {
		return fmt.Errorf("splat gpu: create fence: %w", err)
	}
	res.fence = fence

	if err := d.queue.Submit([]hal.CommandBuffer{res.cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("splat gpu: submit: %w", err)
	}

	ok, err := d.device.Wait(fence, 1, splatFenceTimeout)
	if err != nil {
		return fmt.Errorf("splat gpu: wait for GPU: %w", err)
	}
	if !ok {
		return fmt.Errorf("splat gpu: GPU timed out after %s", splatFenceTimeout)
	}
	return nil
}
