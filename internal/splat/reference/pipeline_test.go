package reference

import (
	"math"
	"testing"

	"github.com/ath92/splat-renderer/internal/splat"
)

func identityCamera(width, height float32, eyeZ float32) splat.Camera {
	const near, far = 0.1, 100.0
	fovY := math.Pi / 3
	aspect := width / height
	f := float32(1 / math.Tan(fovY/2))

	proj := [16]float32{
		f / aspect, 0, 0, 0,
		0, f, 0, 0,
		0, 0, (far + near) / (near - far), -1,
		0, 0, (2 * far * near) / (near - far), 0,
	}
	// View: translate so the camera sits at (0,0,eyeZ) looking down -z.
	view := [16]float32{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, -eyeZ, 1,
	}
	viewProj := mul4(proj, view)

	return splat.Camera{
		ViewProj: viewProj,
		Position: [3]float32{0, 0, eyeZ},
		Viewport: [2]float32{width, height},
	}
}

// mul4 multiplies two column-major 4x4 matrices, a*b.
func mul4(a, b [16]float32) [16]float32 {
	var out [16]float32
	for col := 0; col < 4; col++ {
		for row := 0; row < 4; row++ {
			var sum float32
			for k := 0; k < 4; k++ {
				sum += a[k*4+row] * b[col*4+k]
			}
			out[col*4+row] = sum
		}
	}
	return out
}

// TestS1_SingleSphereOriginCentred checks spec.md §8 S1.
func TestS1_SingleSphereOriginCentred(t *testing.T) {
	cfg := splat.DefaultConfig()
	cam := identityCamera(256, 256, 3)
	grid := splat.NewTileGrid(256, 256, cfg.TileSize)

	splats := []splat.Splat{{
		Centre:  [3]float32{0, 0, 0},
		Radius:  0.1,
		Normal:  [3]float32{0, 0, 1},
		Colour:  [3]float32{1, 1, 1},
		Opacity: 1,
	}}

	frame := Render(splats, cam, grid, cfg)

	p := frame.Projected[0]
	cx, cy := p.Centre[0], p.Centre[1]
	const tol = 1.0
	if math.Abs(float64(cx-128)) > tol || math.Abs(float64(cy-128)) > tol {
		t.Fatalf("centre = (%v,%v), want ~(128,128)", cx, cy)
	}

	centrePixel := frame.Image[128][128]
	nDotL := dot3(splats[0].Normal, LightDirection)
	litScale := 0.85 + 0.15*nDotL
	want := litScale
	const colTol = 0.05
	if math.Abs(float64(centrePixel.R-want)) > colTol {
		t.Errorf("centre pixel R = %v, want ~%v", centrePixel.R, want)
	}

	farCorner := frame.Image[0][0]
	if farCorner != (Pixel{0, 0, 0}) {
		t.Errorf("far corner = %+v, want background", farCorner)
	}
}

// TestS2_TwoOccludingSplats checks spec.md §8 S2's back-to-front "over" law.
func TestS2_TwoOccludingSplats(t *testing.T) {
	cfg := splat.DefaultConfig()
	cfg.Sigma = 1000 // flatten the Gaussian so g ~= 1 near centre
	cam := identityCamera(64, 64, 3)
	grid := splat.NewTileGrid(64, 64, cfg.TileSize)

	splats := []splat.Splat{
		{Centre: [3]float32{0, 0, 0.5}, Radius: 0.3, Normal: [3]float32{0, 0, 1}, Colour: [3]float32{1, 0, 0}, Opacity: 0.5},
		{Centre: [3]float32{0, 0, 0}, Radius: 0.3, Normal: [3]float32{0, 0, 1}, Colour: [3]float32{0, 1, 0}, Opacity: 1},
	}

	frame := Render(splats, cam, grid, cfg)
	centre := frame.Image[32][32]

	const tol = 0.1
	if math.Abs(float64(centre.R-0.5)) > tol {
		t.Errorf("red = %v, want ~0.5", centre.R)
	}
	if math.Abs(float64(centre.G-0.5)) > tol {
		t.Errorf("green = %v, want ~0.5", centre.G)
	}
}

// TestS3_EmptyScene checks spec.md §8 S3.
func TestS3_EmptyScene(t *testing.T) {
	cfg := splat.DefaultConfig()
	cam := identityCamera(32, 32, 3)
	grid := splat.NewTileGrid(32, 32, cfg.TileSize)

	frame := Render(nil, cam, grid, cfg)
	for y := range frame.Image {
		for x := range frame.Image[y] {
			if frame.Image[y][x] != (Pixel{0, 0, 0}) {
				t.Fatalf("pixel (%d,%d) = %+v, want background", x, y, frame.Image[y][x])
			}
		}
	}
}

// TestS4_OffScreenSplat checks spec.md §8 S4.
func TestS4_OffScreenSplat(t *testing.T) {
	cfg := splat.DefaultConfig()
	cam := identityCamera(64, 64, 3)
	grid := splat.NewTileGrid(64, 64, cfg.TileSize)

	splats := []splat.Splat{{
		Centre: [3]float32{50, 50, 0}, Radius: 0.1,
		Normal: [3]float32{0, 0, 1}, Colour: [3]float32{1, 1, 1}, Opacity: 1,
	}}

	frame := Render(splats, cam, grid, cfg)
	for y := range frame.Image {
		for x := range frame.Image[y] {
			if frame.Image[y][x] != (Pixel{0, 0, 0}) {
				t.Fatalf("pixel (%d,%d) = %+v, want background", x, y, frame.Image[y][x])
			}
		}
	}
	for t2 := range frame.Counts {
		if frame.Counts[t2] != 0 {
			t.Fatalf("tile %d count = %d, want 0", t2, frame.Counts[t2])
		}
	}
}

// TestS5_TileBoundary checks spec.md §8 S5: a splat whose AABB straddles
// four tiles appears in exactly four segments, seam-free.
func TestS5_TileBoundary(t *testing.T) {
	grid := splat.NewTileGrid(64, 64, 16)

	p := splat.ProjectedSplat{
		BoundsMin:     [2]float32{12, 12},
		BoundsMax:     [2]float32{20, 20},
		Centre:        [2]float32{16, 16},
		ScreenRadius:  4,
		Depth:         -1,
		OriginalIndex: 0,
	}
	projected := []splat.ProjectedSplat{p}

	counts := CountTiles(projected, grid)
	var touched int
	for _, c := range counts {
		if c > 0 {
			touched++
			if c != 1 {
				t.Errorf("tile count = %d, want 1", c)
			}
		}
	}
	if touched != 4 {
		t.Fatalf("touched %d tiles, want 4", touched)
	}

	offsets, total := ExclusiveScan(counts)
	if total != 4 {
		t.Fatalf("total = %d, want 4", total)
	}
	tileIndices := FillTiles(projected, []uint32{0}, grid, offsets, total)
	for t2 := 0; t2 < grid.NumTiles(); t2++ {
		seg := TileSegment(tileIndices, offsets, total, grid.NumTiles(), t2)
		for _, e := range seg {
			if e.SplatIndex != 0 {
				t.Errorf("tile %d segment has unexpected splat %d", t2, e.SplatIndex)
			}
		}
	}
}

// TestS6_BehindCamera checks spec.md §8 S6.
func TestS6_BehindCamera(t *testing.T) {
	cfg := splat.DefaultConfig()
	cam := identityCamera(32, 32, 3)
	grid := splat.NewTileGrid(32, 32, cfg.TileSize)

	splats := []splat.Splat{{
		Centre: [3]float32{0, 0, 10}, Radius: 0.1, // behind eye at z=3, looking -z
		Normal: [3]float32{0, 0, 1}, Colour: [3]float32{1, 1, 1}, Opacity: 1,
	}}

	frame := Render(splats, cam, grid, cfg)
	if !frame.Projected[0].Offscreen() {
		t.Fatalf("behind-camera splat should project to an empty AABB")
	}
	for y := range frame.Image {
		for x := range frame.Image[y] {
			if frame.Image[y][x] != (Pixel{0, 0, 0}) {
				t.Fatalf("pixel (%d,%d) = %+v, want background", x, y, frame.Image[y][x])
			}
		}
	}
}

// TestCompositingLaw_FullOpacityAtCentre checks spec.md §8 property 7.
func TestCompositingLaw_FullOpacityAtCentre(t *testing.T) {
	cfg := splat.DefaultConfig()
	grid := splat.NewTileGrid(16, 16, 16)

	s := splat.Splat{Centre: [3]float32{0, 0, 0}, Radius: 1, Normal: [3]float32{0, 0, 1}, Colour: [3]float32{0.2, 0.4, 0.6}, Opacity: 1}
	splats := []splat.Splat{s}
	projected := []splat.ProjectedSplat{{
		BoundsMin: [2]float32{0, 0}, BoundsMax: [2]float32{16, 16},
		Centre: [2]float32{8.5, 8.5}, ScreenRadius: 8, Depth: -1, OriginalIndex: 0, // pixel (8,8) is sampled at its centre (8.5,8.5)
	}}
	segment := []TileEntry{{SplatIndex: 0, Depth: -1}}

	image := blankImage(grid, cfg)
	RasterizeTile(0, 0, 16, 16, segment, splats, projected, cfg, image)

	centre := image[8][8]
	nDotL := dot3(s.Normal, LightDirection)
	litScale := 0.85 + 0.15*nDotL
	want := Pixel{s.Colour[0] * litScale, s.Colour[1] * litScale, s.Colour[2] * litScale}
	const tol = 1e-4
	if math.Abs(float64(centre.R-want.R)) > tol || math.Abs(float64(centre.G-want.G)) > tol || math.Abs(float64(centre.B-want.B)) > tol {
		t.Errorf("centre = %+v, want %+v", centre, want)
	}
}

// TestPathologicalOverlap_SkipsFrame checks spec.md §7: a scan total more
// than PathologicalOverlapFactor times the splat count clears the frame to
// background instead of filling and rasterising tiles.
func TestPathologicalOverlap_SkipsFrame(t *testing.T) {
	cfg := splat.DefaultConfig()
	grid := splat.NewTileGrid(160, 160, 16) // 100 tiles

	splats := []splat.Splat{{Centre: [3]float32{0, 0, 0}, Radius: 1, Normal: [3]float32{0, 0, 1}, Colour: [3]float32{1, 1, 1}, Opacity: 1}}
	projected := []splat.ProjectedSplat{{
		BoundsMin: [2]float32{0, 0}, BoundsMax: [2]float32{160, 160},
		Centre: [2]float32{80, 80}, ScreenRadius: 80, Depth: -1, OriginalIndex: 0,
	}}
	counts := CountTiles(projected, grid)
	offsets, total := ExclusiveScan(counts)
	if total <= uint32(len(splats))*splat.PathologicalOverlapFactor {
		t.Fatalf("test total %d does not exceed the guard threshold", total)
	}

	frame := renderFromProjected(splats, projected, grid, cfg)
	for y := range frame.Image {
		for x := range frame.Image[y] {
			if frame.Image[y][x] != (Pixel{0, 0, 0}) {
				t.Fatalf("pixel (%d,%d) = %+v, want background", x, y, frame.Image[y][x])
			}
		}
	}
	if frame.Total != total {
		t.Fatalf("frame.Total = %d, want %d", frame.Total, total)
	}
	_ = offsets
}

// renderFromProjected runs the fill/guard/rasterise tail of Render from an
// already-projected set, so tests can exercise the guard without depending
// on a particular camera's projection arithmetic to produce extreme AABBs.
func renderFromProjected(splats []splat.Splat, projected []splat.ProjectedSplat, grid splat.TileGrid, cfg splat.Config) Frame {
	depths := make([]float32, len(projected))
	for i, p := range projected {
		depths[i] = p.Depth
	}
	sortedIndices := SortedIndices(depths)
	counts := CountTiles(projected, grid)
	offsets, total := ExclusiveScan(counts)

	image := blankImage(grid, cfg)
	if uint64(total) > uint64(len(splats))*uint64(splat.PathologicalOverlapFactor) {
		return Frame{Projected: projected, SortedIndices: sortedIndices, Counts: counts, Offsets: offsets, Total: total, Image: image}
	}

	tileIndices := FillTiles(projected, sortedIndices, grid, offsets, total)
	for ty := 0; ty < grid.TilesY; ty++ {
		for tx := 0; tx < grid.TilesX; tx++ {
			t := grid.TileIndex(tx, ty)
			segment := TileSegment(tileIndices, offsets, total, grid.NumTiles(), t)
			x0, y0, x1, y1 := grid.TileRect(tx, ty)
			RasterizeTile(int(x0), int(y0), int(x1), int(y1), segment, splats, projected, cfg, image)
		}
	}
	return Frame{Projected: projected, SortedIndices: sortedIndices, Counts: counts, Offsets: offsets, Total: total, TileIndices: tileIndices, Image: image}
}
