// Package reference is the CPU test-oracle implementation of the splat
// rasterisation pipeline (spec.md Design Notes §9: "the CPU variant
// becomes a test-oracle only"). It implements every stage — project,
// depth-key encode, radix sort, exclusive scan, tile count/fill, per-tile
// sort, tile rasterise — as pure, deterministic functions so spec.md §8's
// testable properties can be checked without a GPU adapter, and so the
// GPU path (internal/gpu) has a ground truth to diff against.
//
// Grounded on internal/gpu/tilecompute/coarse.go's tile-allocation-then-
// fill shape and examples/compute_pipeline/main.go's CPU-vs-GPU oracle
// pattern in the teacher repository.
package reference

import (
	"math"

	"github.com/ath92/splat-renderer/internal/splat"
)

// Project implements spec.md §4.B for a single splat.
func Project(s splat.Splat, cam splat.Camera, idx uint32, cfg splat.Config) splat.ProjectedSplat {
	cx, cy, cz, cw := applyViewProj(cam.ViewProj, s.Centre)
	_ = cz

	if cw <= 0 {
		// Behind the camera: empty AABB, tail-of-sort depth (spec.md §4.B, §8 S6).
		return splat.ProjectedSplat{
			BoundsMin:     [2]float32{1, 1},
			BoundsMax:     [2]float32{0, 0},
			Depth:         splat.BehindCameraDepth,
			OriginalIndex: idx,
		}
	}

	ndcX, ndcY := cx/cw, cy/cw
	width, height := cam.Viewport[0], cam.Viewport[1]
	centrePx := [2]float32{
		(ndcX*0.5 + 0.5) * width,
		(1 - (ndcY*0.5 + 0.5)) * height, // y-flip
	}

	screenRadius := estimateScreenRadius(s, cam, centrePx)

	pad := cfg.AABBPaddingFactor
	boundsMin := [2]float32{centrePx[0] - pad*screenRadius, centrePx[1] - pad*screenRadius}
	boundsMax := [2]float32{centrePx[0] + pad*screenRadius, centrePx[1] + pad*screenRadius}

	// Depth is negated camera-space distance: ascending order must visit
	// far-to-near (spec.md §3 "Sorted indices"), so the farthest splat
	// (largest distance) needs the smallest depth value.
	depth := -euclideanDistance(s.Centre, cam.Position)

	return splat.ProjectedSplat{
		BoundsMin:     boundsMin,
		BoundsMax:     boundsMax,
		Depth:         depth,
		ScreenRadius:  screenRadius,
		Centre:        centrePx,
		OriginalIndex: idx,
	}
}

// estimateScreenRadius projects the six axis-aligned world offsets
// centre ± radius*ê_{x,y,z} and returns the maximum pixel distance from
// the projected centre (spec.md §4.B).
func estimateScreenRadius(s splat.Splat, cam splat.Camera, centrePx [2]float32) float32 {
	width, height := cam.Viewport[0], cam.Viewport[1]
	var maxDist float32
	axes := [3][3]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	for _, axis := range axes {
		for _, sign := range [2]float32{1, -1} {
			probe := [3]float32{
				s.Centre[0] + sign*s.Radius*axis[0],
				s.Centre[1] + sign*s.Radius*axis[1],
				s.Centre[2] + sign*s.Radius*axis[2],
			}
			px, py, _, pw := applyViewProj(cam.ViewProj, probe)
			if pw <= 0 {
				continue
			}
			ndcX, ndcY := px/pw, py/pw
			screen := [2]float32{
				(ndcX*0.5 + 0.5) * width,
				(1 - (ndcY*0.5 + 0.5)) * height,
			}
			dist := distance2(screen, centrePx)
			if dist > maxDist {
				maxDist = dist
			}
		}
	}
	return maxDist
}

func distance2(a, b [2]float32) float32 {
	dx, dy := a[0]-b[0], a[1]-b[1]
	return float32(math.Sqrt(float64(dx*dx + dy*dy)))
}

func euclideanDistance(a, b [3]float32) float32 {
	dx, dy, dz := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	return float32(math.Sqrt(float64(dx*dx + dy*dy + dz*dz)))
}

// applyViewProj multiplies a column-major 4x4 view-projection matrix by a
// homogeneous world point (x, y, z, 1), returning clip-space (x, y, z, w).
func applyViewProj(m [16]float32, p [3]float32) (x, y, z, w float32) {
	x = m[0]*p[0] + m[4]*p[1] + m[8]*p[2] + m[12]
	y = m[1]*p[0] + m[5]*p[1] + m[9]*p[2] + m[13]
	z = m[2]*p[0] + m[6]*p[1] + m[10]*p[2] + m[14]
	w = m[3]*p[0] + m[7]*p[1] + m[11]*p[2] + m[15]
	return
}
