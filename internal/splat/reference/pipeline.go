package reference

import "github.com/ath92/splat-renderer/internal/splat"

// Frame is the complete intermediate state of one rendered frame, exposed
// so tests can inspect any stage's output (spec.md §8's per-stage
// properties) as well as the final image.
type Frame struct {
	Projected     []splat.ProjectedSplat
	SortedIndices []uint32
	Counts        []uint32
	Offsets       []uint32
	Total         uint32
	TileIndices   []TileEntry
	Image         [][]Pixel // Image[y][x]
}

// Render runs the full pipeline (spec.md §4.B-§4.H) for one frame, purely
// on the CPU: project, encode+sort depth, count tiles, scan, fill+sort
// tiles, rasterise. It is the test-oracle entry point used both directly
// in property tests and as the ground truth the GPU renderer's output is
// diffed against.
func Render(splats []splat.Splat, cam splat.Camera, grid splat.TileGrid, cfg splat.Config) Frame {
	n := len(splats)

	projected := make([]splat.ProjectedSplat, n)
	depths := make([]float32, n)
	for i, s := range splats {
		p := Project(s, cam, uint32(i), cfg)
		projected[i] = p
		depths[i] = p.Depth
	}

	sortedIndices := SortedIndices(depths)

	counts := CountTiles(projected, grid)
	offsets, total := ExclusiveScan(counts)

	if n > 0 && uint64(total) > uint64(n)*uint64(splat.PathologicalOverlapFactor) {
		// spec.md §7: treat an implausible scan total as a bug upstream and
		// skip rendering the frame rather than risk unbounded memory use.
		return Frame{
			Projected:     projected,
			SortedIndices: sortedIndices,
			Counts:        counts,
			Offsets:       offsets,
			Total:         total,
			Image:         blankImage(grid, cfg),
		}
	}

	tileIndices := FillTiles(projected, sortedIndices, grid, offsets, total)

	image := blankImage(grid, cfg)
	for ty := 0; ty < grid.TilesY; ty++ {
		for tx := 0; tx < grid.TilesX; tx++ {
			t := grid.TileIndex(tx, ty)
			segment := TileSegment(tileIndices, offsets, total, grid.NumTiles(), t)
			x0, y0, x1, y1 := grid.TileRect(tx, ty)
			RasterizeTile(int(x0), int(y0), int(x1), int(y1), segment, splats, projected, cfg, image)
		}
	}

	return Frame{
		Projected:     projected,
		SortedIndices: sortedIndices,
		Counts:        counts,
		Offsets:       offsets,
		Total:         total,
		TileIndices:   tileIndices,
		Image:         image,
	}
}

func blankImage(grid splat.TileGrid, cfg splat.Config) [][]Pixel {
	bg := Pixel{R: cfg.BackgroundColour[0], G: cfg.BackgroundColour[1], B: cfg.BackgroundColour[2]}
	img := make([][]Pixel, grid.Height)
	for y := range img {
		row := make([]Pixel, grid.Width)
		for x := range row {
			row[x] = bg
		}
		img[y] = row
	}
	return img
}
