//go:build !nogpu

package gpu

import (
	"testing"

	"github.com/ath92/splat-renderer/internal/splat"
)

// TestSplatStageString verifies every stage has a non-empty, distinct name.
func TestSplatStageString(t *testing.T) {
	seen := map[string]SplatStage{}
	for s := StageProject; s < stageCount; s++ {
		name := s.String()
		if name == "" {
			t.Errorf("stage %d has empty String()", int(s))
		}
		if other, ok := seen[name]; ok {
			t.Errorf("stages %d and %d share the name %q", int(other), int(s), name)
		}
		seen[name] = s
	}
	if got := SplatStage(999).String(); got == "" {
		t.Error("String() on an out-of-range stage should not be empty")
	}
}

// TestStageBindGroupLayoutEntries checks binding 0 is always the config
// uniform, bindings are contiguous, and StagePresent has no compute layout.
func TestStageBindGroupLayoutEntries(t *testing.T) {
	wantLen := map[SplatStage]int{
		StageProject:     3,
		StageDepthEncode: 4,
		StageRadixSort:   5,
		StageTileCount:   4,
		StageScan:        4,
		StageTileFill:    6,
		StageRasterize:   7,
	}

	for stage, want := range wantLen {
		entries := stageBindGroupLayoutEntries(stage)
		if len(entries) != want {
			t.Errorf("%s: len(entries) = %d, want %d", stage, len(entries), want)
		}
		if entries[0].Binding != 0 {
			t.Errorf("%s: binding 0 missing (config uniform)", stage)
		}
		for i, e := range entries {
			if int(e.Binding) != i {
				t.Errorf("%s: entry %d has binding %d, want %d", stage, i, e.Binding, i)
			}
		}
	}

	if entries := stageBindGroupLayoutEntries(StagePresent); entries != nil {
		t.Errorf("StagePresent should have no compute bind group layout, got %d entries", len(entries))
	}
}

// TestComputeWorkgroupCount verifies ceiling division and the RadixSort
// single-workgroup special case.
func TestComputeWorkgroupCount(t *testing.T) {
	d := &SplatDispatcher{wgSize: splatWGSize}

	cases := []struct {
		stage    SplatStage
		elements uint32
		want     uint32
	}{
		{StageProject, 0, 0},
		{StageProject, 1, 1},
		{StageProject, 256, 1},
		{StageProject, 257, 2},
		{StageTileCount, 1000, 4},
		{StageRadixSort, 0, 0},
		{StageRadixSort, 1, 1},
		{StageRadixSort, 100000, 1},
	}
	for _, c := range cases {
		if got := d.computeWorkgroupCount(c.stage, c.elements); got != c.want {
			t.Errorf("computeWorkgroupCount(%s, %d) = %d, want %d", c.stage, c.elements, got, c.want)
		}
	}
}

// TestPadToWorkgroup checks rounding behaviour, including the n==0 case
// (still rounds up to one full workgroup so ping-pong buffers are never
// zero-sized).
func TestPadToWorkgroup(t *testing.T) {
	cases := []struct {
		n, wg, want uint64
	}{
		{0, 256, 256},
		{1, 256, 256},
		{256, 256, 256},
		{257, 256, 512},
		{1000, 256, 1024},
	}
	for _, c := range cases {
		if got := padToWorkgroup(c.n, uint32(c.wg)); got != c.want {
			t.Errorf("padToWorkgroup(%d, %d) = %d, want %d", c.n, c.wg, got, c.want)
		}
	}
}

// TestComputeSplatBufferSizes verifies per-record byte sizes and the
// worst-case TileIndices sizing fallback when no readback value is known.
func TestComputeSplatBufferSizes(t *testing.T) {
	layout := FrameLayout{
		NumSplats: 100,
		Grid:      splat.NewTileGrid(160, 160, 16), // 10x10 tiles
	}

	sz := computeSplatBufferSizes(layout, 0)

	if sz.splats != 100*splatRecordSize {
		t.Errorf("splats size = %d, want %d", sz.splats, 100*splatRecordSize)
	}
	if sz.projected != 100*projectedRecordSize {
		t.Errorf("projected size = %d, want %d", sz.projected, 100*projectedRecordSize)
	}
	wantTiles := uint64(100)
	if sz.counts != wantTiles*4 {
		t.Errorf("counts size = %d, want %d", sz.counts, wantTiles*4)
	}
	if sz.scanTotal != 4 {
		t.Errorf("scanTotal size = %d, want 4", sz.scanTotal)
	}
	// Worst case: every splat overlaps every tile.
	wantTileIndices := uint64(100) * wantTiles * tileEntryRecordSize
	if sz.tileIndices != wantTileIndices {
		t.Errorf("tileIndices (worst case) = %d, want %d", sz.tileIndices, wantTileIndices)
	}

	// With an explicit capacity, that value is used directly instead of
	// the worst-case fallback.
	sz2 := computeSplatBufferSizes(layout, 500)
	if sz2.tileIndices != 500*tileEntryRecordSize {
		t.Errorf("tileIndices (explicit capacity) = %d, want %d", sz2.tileIndices, 500*tileEntryRecordSize)
	}
}

// TestComputeSplatBufferSizesEmptyScene verifies a zero-splat frame never
// sizes TileIndices to zero (which would break buffer creation).
func TestComputeSplatBufferSizesEmptyScene(t *testing.T) {
	layout := FrameLayout{NumSplats: 0, Grid: splat.NewTileGrid(64, 64, 16)}
	sz := computeSplatBufferSizes(layout, 0)
	if sz.tileIndices == 0 {
		t.Error("tileIndices size should never be zero, even for an empty scene")
	}
	if sz.splats != 0 {
		t.Errorf("splats size = %d, want 0 for an empty scene", sz.splats)
	}
}

// TestSplatDispatcherNotInitialized verifies AllocateBuffers/Dispatch
// refuse to run before Init().
func TestSplatDispatcherNotInitialized(t *testing.T) {
	d := NewSplatDispatcher(nil, nil)

	layout := FrameLayout{NumSplats: 10, Grid: splat.NewTileGrid(64, 64, 16)}
	if _, err := d.AllocateBuffers(layout, 0); err == nil {
		t.Error("AllocateBuffers() before Init() should error")
	}
	if err := d.Dispatch(&FrameBuffers{}, FrameConfig{}); err == nil {
		t.Error("Dispatch() before Init() should error")
	}
}

// TestSplatDispatcherCloseIdempotent verifies Close is safe to call
// multiple times, including before Init().
func TestSplatDispatcherCloseIdempotent(t *testing.T) {
	d := NewSplatDispatcher(nil, nil)
	d.Close()
	d.Close()
}
