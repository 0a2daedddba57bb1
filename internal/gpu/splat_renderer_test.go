//go:build !nogpu

package gpu

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/ath92/splat-renderer/internal/splat"
)

// TestPackSplats verifies the GPU record layout matches shaders/
// project.wgsl's Splat struct field order exactly.
func TestPackSplats(t *testing.T) {
	splats := []splat.Splat{
		{
			Centre:  [3]float32{1, 2, 3},
			Radius:  0.5,
			Normal:  [3]float32{0, 0, 1},
			Colour:  [3]float32{0.1, 0.2, 0.3},
			Opacity: 0.8,
		},
	}

	data := packSplats(splats)
	if len(data) != splatRecordSize {
		t.Fatalf("len(data) = %d, want %d", len(data), splatRecordSize)
	}

	f32At := func(off int) float32 {
		return math.Float32frombits(binary.LittleEndian.Uint32(data[off : off+4]))
	}

	want := []float32{1, 2, 3, 0.5, 0, 0, 1, 0, 0.1, 0.2, 0.3, 0.8}
	for i, w := range want {
		if got := f32At(i * 4); got != w {
			t.Errorf("field %d = %v, want %v", i, got, w)
		}
	}
}

// TestPackSplatsEmpty verifies an empty slice serialises to zero bytes.
func TestPackSplatsEmpty(t *testing.T) {
	if data := packSplats(nil); len(data) != 0 {
		t.Errorf("packSplats(nil) length = %d, want 0", len(data))
	}
}

// TestNewRendererDefaultsConfig verifies a zero-value RendererConfig.Splat
// is replaced by splat.DefaultConfig(), and the tile grid is derived from
// the requested viewport.
func TestNewRendererDefaultsConfig(t *testing.T) {
	b := NewBackend()
	r := NewRenderer(b, RendererConfig{Width: 64, Height: 32})

	if r.cfg.Splat != splat.DefaultConfig() {
		t.Errorf("Splat config = %+v, want defaults", r.cfg.Splat)
	}
	wantGrid := splat.NewTileGrid(64, 32, splat.DefaultTileSize)
	if r.grid != wantGrid {
		t.Errorf("grid = %+v, want %+v", r.grid, wantGrid)
	}
}

// TestRenderFrameNotInitialized verifies RenderFrame surfaces
// splat.ErrNotInitialized when the backing Backend was never Init'd.
func TestRenderFrameNotInitialized(t *testing.T) {
	b := NewBackend()
	r := NewRenderer(b, RendererConfig{Width: 32, Height: 32})

	_, err := r.RenderFrame(context.Background(), nil, splat.Camera{})
	if !errors.Is(err, splat.ErrNotInitialized) {
		t.Errorf("RenderFrame() on an uninitialized backend = %v, want %v", err, splat.ErrNotInitialized)
	}
}

// TestRenderFrameCanceledContext verifies RenderFrame respects context
// cancellation before touching the GPU.
func TestRenderFrameCanceledContext(t *testing.T) {
	b := NewBackend()
	r := NewRenderer(b, RendererConfig{Width: 32, Height: 32})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := r.RenderFrame(ctx, nil, splat.Camera{}); err != ctx.Err() {
		t.Errorf("RenderFrame() with canceled context = %v, want %v", err, ctx.Err())
	}
}

// TestBuildConfigUsesRendererTunables verifies buildConfig copies the
// renderer's Config/TileGrid fields into the FrameConfig uniform.
func TestBuildConfigUsesRendererTunables(t *testing.T) {
	cfg := splat.DefaultConfig()
	cfg.Sigma = 0.25
	b := NewBackend()
	r := NewRenderer(b, RendererConfig{Width: 32, Height: 16, Splat: cfg})

	fc := r.buildConfig(10)
	if fc.Sigma != 0.25 {
		t.Errorf("Sigma = %v, want 0.25", fc.Sigma)
	}
	if fc.TileSize != uint32(cfg.TileSize) {
		t.Errorf("TileSize = %d, want %d", fc.TileSize, cfg.TileSize)
	}
	if fc.NumSplats != 10 {
		t.Errorf("NumSplats = %d, want 10", fc.NumSplats)
	}
	if fc.PaddedLen != uint32(padToWorkgroup(10, splatWGSize)) {
		t.Errorf("PaddedLen = %d, want %d", fc.PaddedLen, padToWorkgroup(10, splatWGSize))
	}
}
