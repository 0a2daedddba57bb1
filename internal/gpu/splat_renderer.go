//go:build !nogpu

// splat_renderer.go ties Backend and SplatDispatcher together into the
// single-call-per-frame API doc.go advertises: upload splats, dispatch the
// B->H compute stages, read back the scan total for the pathological-
// overlap guard (spec.md §7), and read back the composited framebuffer.
//
// Grounded on internal/gpu/sdf_gpu.go's encodeMultiPass/dispatchBatch for
// the readback shape (command encoder -> CopyBufferToBuffer into a
// MapRead staging buffer -> submit -> fence wait -> queue.ReadBuffer).

package gpu

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/ath92/splat-renderer/internal/splat"
)

// RendererConfig configures a Renderer's fixed viewport and rasterisation
// tunables.
type RendererConfig struct {
	Width, Height int
	Splat         splat.Config
}

// Renderer orchestrates Backend and SplatDispatcher to rasterise one frame
// of splats at a time (spec.md §4-§5). It owns the FrameBuffers for its
// configured viewport, reallocating them only when the splat count changes.
//
// Renderer is safe for concurrent use; RenderFrame serialises internally.
type Renderer struct {
	mu sync.Mutex

	backend    *Backend
	dispatcher *SplatDispatcher
	cfg        RendererConfig
	grid       splat.TileGrid

	bufs        *FrameBuffers
	layout      FrameLayout
	initialized bool
}

// NewRenderer creates a Renderer bound to an initialized Backend. The
// dispatcher's pipelines are compiled lazily on the first RenderFrame call.
func NewRenderer(b *Backend, cfg RendererConfig) *Renderer {
	if cfg.Splat == (splat.Config{}) {
		cfg.Splat = splat.DefaultConfig()
	}
	return &Renderer{
		backend: b,
		cfg:     cfg,
		grid:    splat.NewTileGrid(cfg.Width, cfg.Height, cfg.Splat.TileSize),
	}
}

// SetLogger installs l as the package-level logger for all internal/gpu
// diagnostics (pipeline creation, dispatch, backend lifecycle). Passing
// nil restores the default no-op logger. Host applications that want
// visibility into the rasterisation pipeline call this once before
// RenderFrame; nothing in this package logs anywhere else.
func (r *Renderer) SetLogger(l *slog.Logger) {
	setLogger(l)
}

// Close releases the dispatcher's pipelines and the current frame's
// buffers. The Renderer must not be used after Close returns.
func (r *Renderer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dispatcher != nil {
		if r.bufs != nil {
			r.dispatcher.DestroyBuffers(r.bufs)
			r.bufs = nil
		}
		r.dispatcher.Close()
		r.dispatcher = nil
	}
	r.initialized = false
}

func (r *Renderer) ensureInit() error {
	if r.initialized {
		return nil
	}
	if err := r.backend.checkInitialized(); err != nil {
		return err
	}
	r.dispatcher = NewSplatDispatcher(r.backend.Device(), r.backend.Queue())
	if err := r.dispatcher.Init(); err != nil {
		return fmt.Errorf("splat/gpu: renderer init: %w", err)
	}
	r.initialized = true
	return nil
}

func (r *Renderer) ensureBuffers(numSplats int) error {
	layout := FrameLayout{NumSplats: numSplats, Grid: r.grid}
	if r.bufs != nil && r.layout == layout {
		return nil
	}
	if r.bufs != nil {
		r.dispatcher.DestroyBuffers(r.bufs)
		r.bufs = nil
	}
	capacity := conservativeTileIndicesCapacity(numSplats, r.cfg.Splat)
	bufs, err := r.dispatcher.AllocateBuffers(layout, capacity)
	if err != nil {
		return fmt.Errorf("splat/gpu: allocate buffers: %w", err)
	}
	r.bufs = bufs
	r.layout = layout
	return nil
}

// buildConfig packs the frame's FrameConfig uniform from the renderer's
// viewport/tunables; ViewProj/CamPos are filled in by the caller.
func (r *Renderer) buildConfig(numSplats int) FrameConfig {
	padded := padToWorkgroup(uint64(numSplats), splatWGSize)
	return FrameConfig{
		NumSplats: uint32(numSplats),
		TileSize:  uint32(r.grid.TileSize),
		TilesX:    uint32(r.grid.TilesX),
		TilesY:    uint32(r.grid.TilesY),
		Width:     uint32(r.grid.Width),
		Height:    uint32(r.grid.Height),
		PaddedLen: uint32(padded),
		Sigma:     r.cfg.Splat.Sigma,
		AABBPad:   r.cfg.Splat.AABBPaddingFactor,
		AlphaCut:  r.cfg.Splat.EarlyAlphaCutoff,
		BgColorR:  r.cfg.Splat.BackgroundColour[0],
		BgColorG:  r.cfg.Splat.BackgroundColour[1],
		BgColorB:  r.cfg.Splat.BackgroundColour[2],
	}
}

// packSplats serialises splats into the Splats buffer's record layout
// (centre.xyz, radius, normal.xyz, pad, colour.rgb, opacity), matching
// shaders/project.wgsl's Splat struct field-for-field, including the pad
// word that places the vec3 colour at its 16-byte-aligned offset 32.
func packSplats(splats []splat.Splat) []byte {
	data := make([]byte, 0, len(splats)*splatRecordSize)
	var word [4]byte
	put := func(v float32) {
		binary.LittleEndian.PutUint32(word[:], math.Float32bits(v))
		data = append(data, word[:]...)
	}
	for _, s := range splats {
		put(s.Centre[0])
		put(s.Centre[1])
		put(s.Centre[2])
		put(s.Radius)
		put(s.Normal[0])
		put(s.Normal[1])
		put(s.Normal[2])
		put(0)
		put(s.Colour[0])
		put(s.Colour[1])
		put(s.Colour[2])
		put(s.Opacity)
	}
	return data
}

// RenderFrame rasterises splats from cam's point of view and returns the
// packed RGBA8 framebuffer (row-major, Width*Height*4 bytes).
//
// If the scan's tile-overlap total exceeds splat.PathologicalOverlapFactor
// times the splat count, the frame is anomalous (spec.md §7): RenderFrame
// logs a warning, returns splat.ErrPathologicalOverlap and the caller
// should keep showing its previous frame rather than display a corrupt one.
// If splat.Config.ConservativeTileCapacityFactor is set and the total
// exceeds the capacity it gives, RenderFrame likewise logs a warning and
// returns splat.ErrAllocationExceeded.
func (r *Renderer) RenderFrame(ctx context.Context, splats []splat.Splat, cam splat.Camera) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := r.ensureInit(); err != nil {
		return nil, err
	}
	if err := r.ensureBuffers(len(splats)); err != nil {
		return nil, err
	}

	cfg := r.buildConfig(len(splats))
	cfg.ViewProj = cam.ViewProj
	cfg.CamPos = cam.Position

	if len(splats) > 0 {
		r.backend.Queue().WriteBuffer(r.bufs.Splats, 0, packSplats(splats))
	}

	if err := r.dispatcher.Dispatch(r.bufs, cfg); err != nil {
		return nil, fmt.Errorf("splat/gpu: dispatch: %w", err)
	}

	total, err := r.readScanTotal()
	if err != nil {
		return nil, err
	}
	numTiles := r.grid.NumTiles()
	if len(splats) > 0 && uint64(total) > uint64(len(splats))*splat.PathologicalOverlapFactor {
		slogger().Warn("splat gpu: pathological tile overlap, skipping frame",
			"splat_count", len(splats), "tile_count", numTiles, "total", total)
		return nil, splat.ErrPathologicalOverlap
	}
	if capacity := conservativeTileIndicesCapacity(len(splats), r.cfg.Splat); capacity > 0 && uint64(total) > capacity {
		slogger().Warn("splat gpu: tile_indices capacity exceeded, skipping frame",
			"splat_count", len(splats), "tile_count", numTiles, "total", total, "capacity", capacity)
		return nil, splat.ErrAllocationExceeded
	}

	return r.readOutput()
}

// readScanTotal copies the 4-byte scan-total buffer into its pre-allocated
// MapRead staging buffer and reads it back. This happens after the frame's
// single compute submission has completed, so the total only gates whether
// the output is read back; it does not size any buffer of the same frame.
func (r *Renderer) readScanTotal() (uint32, error) {
	data, err := r.readBufferViaStaging(r.bufs.ScanTotal, r.bufs.scanTotalStaging, 4, "splat_scan_total_readback")
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(data), nil
}

// readOutput copies the Output buffer to the host via a dedicated staging
// buffer. Unlike the scan total, this is the pipeline's final framebuffer
// readback, performed once after every compute stage has completed.
func (r *Renderer) readOutput() ([]byte, error) {
	device := r.backend.Device()
	size := uint64(r.grid.Width) * uint64(r.grid.Height) * 4

	staging, err := device.CreateBuffer(&hal.BufferDescriptor{
		Label: "splat_output_staging",
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("splat/gpu: create output staging buffer: %w", err)
	}
	defer device.DestroyBuffer(staging)

	return r.readBufferViaStaging(r.bufs.Output, staging, size, "splat_output_readback")
}

// readBufferViaStaging copies size bytes from src into staging, submits and
// waits on a fence, then reads staging back to the host.
func (r *Renderer) readBufferViaStaging(src, staging hal.Buffer, size uint64, label string) ([]byte, error) {
	device := r.backend.Device()
	queue := r.backend.Queue()

	encoder, err := device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, fmt.Errorf("splat/gpu: create readback encoder: %w", err)
	}
	if err := encoder.BeginEncoding(label); err != nil {
		return nil, fmt.Errorf("splat/gpu: begin readback encoding: %w", err)
	}
	encoder.CopyBufferToBuffer(src, staging, []hal.BufferCopy{{SrcOffset: 0, DstOffset: 0, Size: size}})
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("splat/gpu: end readback encoding: %w", err)
	}
	defer device.FreeCommandBuffer(cmdBuf)

	fence, err := device.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("splat/gpu: create readback fence: %w", err)
	}
	defer device.DestroyFence(fence)

	if err := queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return nil, fmt.Errorf("splat/gpu: submit readback: %w", err)
	}
	ok, err := device.Wait(fence, 1, splatFenceTimeout)
	if err != nil {
		return nil, fmt.Errorf("splat/gpu: wait for readback: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("splat/gpu: readback timed out after %s", splatFenceTimeout)
	}

	out := make([]byte, size)
	if err := queue.ReadBuffer(staging, 0, out); err != nil {
		return nil, fmt.Errorf("splat/gpu: read %s: %w", label, err)
	}
	return out, nil
}
