package reference

import (
	"sort"

	"github.com/ath92/splat-renderer/internal/splat"
)

// CountTiles implements spec.md §4.E: for each projected splat, walk its
// covered tile range and atomically increment each tile's counter. Returns
// one count per tile in grid.NumTiles() order. Offscreen/empty splats
// (splat.ProjectedSplat.Offscreen) touch no tile.
func CountTiles(projected []splat.ProjectedSplat, grid splat.TileGrid) []uint32 {
	counts := make([]uint32, grid.NumTiles())
	for _, p := range projected {
		if p.Offscreen() {
			continue
		}
		minTx, maxTx, minTy, maxTy, ok := grid.TileRange(p.BoundsMin, p.BoundsMax)
		if !ok {
			continue
		}
		for ty := minTy; ty <= maxTy; ty++ {
			for tx := minTx; tx <= maxTx; tx++ {
				counts[grid.TileIndex(tx, ty)]++
			}
		}
	}
	return counts
}

// TileEntry is one (splat index, depth) pair filed into a tile's segment.
type TileEntry struct {
	SplatIndex uint32
	Depth      float32
}

// FillTiles implements spec.md §4.G: for each splat (visited in the
// pipeline's sorted, far-to-near order, matching sortedIndices), walk its
// tile range again and atomically append its index into each covered
// tile's segment of tile_indices, using offsets (from ExclusiveScan) as
// each tile's base and a per-tile running cursor for the atomic-add
// position. After filling, each tile's segment is independently stable-
// sorted by depth ascending (option (c): in-segment sort), so within-tile
// compositing order does not depend on the fill-time race order.
func FillTiles(
	projected []splat.ProjectedSplat,
	sortedIndices []uint32,
	grid splat.TileGrid,
	offsets []uint32,
	total uint32,
) []TileEntry {
	tileIndices := make([]TileEntry, total)
	cursor := append([]uint32(nil), offsets...)

	for _, splatIdx := range sortedIndices {
		p := projected[splatIdx]
		if p.Offscreen() {
			continue
		}
		minTx, maxTx, minTy, maxTy, ok := grid.TileRange(p.BoundsMin, p.BoundsMax)
		if !ok {
			continue
		}
		for ty := minTy; ty <= maxTy; ty++ {
			for tx := minTx; tx <= maxTx; tx++ {
				ti := grid.TileIndex(tx, ty)
				pos := cursor[ti]
				cursor[ti]++
				tileIndices[pos] = TileEntry{SplatIndex: p.OriginalIndex, Depth: p.Depth}
			}
		}
	}

	for t := 0; t < grid.NumTiles(); t++ {
		start := offsets[t]
		var end uint32
		if t+1 < grid.NumTiles() {
			end = offsets[t+1]
		} else {
			end = total
		}
		seg := tileIndices[start:end]
		sort.SliceStable(seg, func(i, j int) bool { return seg[i].Depth < seg[j].Depth })
	}

	return tileIndices
}

// TileSegment returns the [start,end) slice of tileIndices belonging to
// tile t, per spec.md §3's offsets[t]..offsets[t+1] (or total for the last
// tile) convention.
func TileSegment(tileIndices []TileEntry, offsets []uint32, total uint32, numTiles, t int) []TileEntry {
	start := offsets[t]
	var end uint32
	if t+1 < numTiles {
		end = offsets[t+1]
	} else {
		end = total
	}
	return tileIndices[start:end]
}
