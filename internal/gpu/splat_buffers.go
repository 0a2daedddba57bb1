//go:build !nogpu

package gpu

import (
	"encoding/binary"
	"math"

	"github.com/gogpu/wgpu/hal"

	"github.com/ath92/splat-renderer/internal/splat"
)

// FrameConfig mirrors the uniform Config struct every splat compute shader
// binds at group(0) binding(0): viewport/tile-grid geometry, splat count,
// and the tunables from spec.md §6. Field order matches the WGSL struct
// layout exactly: 14 consecutive u32/f32 words, 8 bytes of padding so the
// mat4x4 view_proj starts at its 16-byte-aligned offset 64, then view_proj
// at 64 and the vec3 cam_pos at 128, padded to a 144-byte struct.
type FrameConfig struct {
	NumSplats  uint32
	TileSize   uint32
	TilesX     uint32
	TilesY     uint32
	Width      uint32
	Height     uint32
	PaddedLen  uint32 // BuildKeyPayload's block-padded sort length
	RadixPass  uint32 // current LSD radix pass (0..3), set per dispatch
	Sigma      float32
	AABBPad    float32
	AlphaCut   float32
	BgColorR   float32
	BgColorG   float32
	BgColorB   float32
	_          [2]float32 // pad so ViewProj starts at offset 64, matching mat4x4<f32> alignment in WGSL
	ViewProj   [16]float32
	CamPos     [3]float32
	_          float32 // pad CamPos to a 16-byte boundary, matching vec3<f32> in WGSL
}

func (c FrameConfig) sizeInBytes() uint64 { return 4*8 + 4*6 + 4*2 + 4*16 + 4*4 }

func (c FrameConfig) toBytes() []byte {
	buf := make([]byte, c.sizeInBytes())
	le := binary.LittleEndian
	o := 0
	putU32 := func(v uint32) { le.PutUint32(buf[o:o+4], v); o += 4 }
	putF32 := func(v float32) { le.PutUint32(buf[o:o+4], math.Float32bits(v)); o += 4 }

	putU32(c.NumSplats)
	putU32(c.TileSize)
	putU32(c.TilesX)
	putU32(c.TilesY)
	putU32(c.Width)
	putU32(c.Height)
	putU32(c.PaddedLen)
	putU32(c.RadixPass)
	putF32(c.Sigma)
	putF32(c.AABBPad)
	putF32(c.AlphaCut)
	putF32(c.BgColorR)
	putF32(c.BgColorG)
	putF32(c.BgColorB)
	putF32(0)
	putF32(0)
	for _, v := range c.ViewProj {
		putF32(v)
	}
	for _, v := range c.CamPos {
		putF32(v)
	}
	putF32(0)
	return buf
}

// FrameBuffers holds every GPU buffer live for one frame of the splat
// pipeline (spec.md §4). Buffers are allocated once per frame (sized to
// the current viewport and splat count) and reused across stages.
type FrameBuffers struct {
	// Config is the uniform buffer holding FrameConfig. Bound at
	// group(0) binding(0) in every stage.
	Config hal.Buffer

	// Splats holds one splat.Splat-equivalent record per input splat:
	// (centre.xyz, radius, normal.xyz, pad, colour.rgb, opacity), 12 f32
	// words matching the WGSL Splat struct's vec3 alignment (spec.md §6).
	// Read-only after upload.
	Splats hal.Buffer

	// Projected holds one ProjectedSplat-equivalent record per splat,
	// written by Project, read by every later stage.
	Projected hal.Buffer

	// KeysA/KeysB and PayloadA/PayloadB are the sorter's ping-pong buffer
	// pairs (spec.md §4.D, §5 "Ping-pong"). DepthEncode writes KeysA/
	// PayloadA; RadixSort alternates the active pair by pass parity.
	KeysA, KeysB       hal.Buffer
	PayloadA, PayloadB hal.Buffer

	// Counts holds one atomic counter per tile, written by TileCount.
	Counts hal.Buffer

	// Offsets holds the exclusive prefix sum of Counts, written by Scan.
	Offsets hal.Buffer

	// ScanTotal is a 1-element buffer holding the scan's grand total; the
	// single host readback point named in spec.md §5.
	ScanTotal hal.Buffer

	// TileIndices is the flat segmented array of splat indices, written
	// by TileFill and sorted per segment, in place, at the start of
	// Rasterise (spec.md §4.G).
	TileIndices hal.Buffer

	// FillCursor holds one atomic append cursor per tile, used only during
	// TileFill and reset to Offsets at the start of each frame.
	FillCursor hal.Buffer

	// Output is the packed RGBA8 framebuffer (width*height*4 bytes)
	// written by Rasterise, copied out for the host readback or handed to
	// internal/present for a swap-chain blit (spec.md §4.I).
	Output hal.Buffer

	// scanTotalStaging is the MapRead staging buffer ScanTotal is copied
	// into for the frame's one host readback.
	scanTotalStaging hal.Buffer
}

// FrameLayout captures the sizes the buffer allocator needs: the splat
// count and the viewport's tile grid.
type FrameLayout struct {
	NumSplats int
	Grid      splat.TileGrid
}

// conservativeTileIndicesCapacity sizes TileIndices without a readback
// when cfg.ConservativeTileCapacityFactor > 0 (spec.md §6).
func conservativeTileIndicesCapacity(numSplats int, cfg splat.Config) uint64 {
	if cfg.ConservativeTileCapacityFactor <= 0 {
		return 0
	}
	return uint64(float32(numSplats) * cfg.ConservativeTileCapacityFactor)
}
