package reference

import (
	"math"

	"github.com/ath92/splat-renderer/internal/splat"
)

// LightDirection is the fixed diagonal unit light vector used for
// Lambertian shading (spec.md §4.H).
var LightDirection = normalize3([3]float32{1, 1, 1})

// Pixel is one RGBA8-equivalent output sample, components in [0,1] before
// the final uint8 pack.
type Pixel struct {
	R, G, B float32
}

// RasterizeTile implements spec.md §4.H for every pixel of one tile. The
// segment is sorted far-to-near; each pixel walks it from its near end,
// accumulating front-to-back, which gives the same colour as back-to-front
// "over" compositing onto the background while letting the walk stop once
// the accumulated alpha reaches cfg.EarlyAlphaCutoff. x0,y0,x1,y1
// are the tile's pixel rectangle (from splat.TileGrid.TileRect); splats
// gives the per-splat attributes (colour, opacity, normal) indexed by
// TileEntry.SplatIndex, and projected gives each splat's screen centre/
// radius indexed the same way.
func RasterizeTile(
	x0, y0, x1, y1 int,
	segment []TileEntry,
	splats []splat.Splat,
	projected []splat.ProjectedSplat,
	cfg splat.Config,
	out [][]Pixel, // out[y][x], full-image, written in place
) {
	for y := y0; y < y1; y++ {
		if y < 0 || y >= len(out) {
			continue
		}
		row := out[y]
		for x := x0; x < x1; x++ {
			if x < 0 || x >= len(row) {
				continue
			}
			row[x] = rasterizePixel(float32(x)+0.5, float32(y)+0.5, segment, splats, projected, cfg)
		}
	}
}

func rasterizePixel(
	px, py float32,
	segment []TileEntry,
	splats []splat.Splat,
	projected []splat.ProjectedSplat,
	cfg splat.Config,
) Pixel {
	var colour [3]float32
	var alpha float32

	for k := len(segment) - 1; k >= 0; k-- {
		entry := segment[k]
		if alpha >= cfg.EarlyAlphaCutoff {
			break
		}
		p := projected[entry.SplatIndex]
		if px < p.BoundsMin[0] || px > p.BoundsMax[0] || py < p.BoundsMin[1] || py > p.BoundsMax[1] {
			continue
		}
		if p.ScreenRadius <= 0 {
			continue
		}

		offx, offy := px-p.Centre[0], py-p.Centre[1]
		dist := float32(math.Sqrt(float64(offx*offx + offy*offy)))
		d := dist / p.ScreenRadius

		sigma := cfg.Sigma
		g := float32(math.Exp(float64(-0.5 * d * d / (sigma * sigma))))

		s := splats[entry.SplatIndex]
		nDotL := dot3(s.Normal, LightDirection)
		if nDotL < 0 {
			nDotL = 0
		}
		litScale := 0.85 + 0.15*nDotL
		litColour := [3]float32{s.Colour[0] * litScale, s.Colour[1] * litScale, s.Colour[2] * litScale}

		alphaS := g * s.Opacity
		w := alphaS * (1 - alpha)

		colour[0] += litColour[0] * w
		colour[1] += litColour[1] * w
		colour[2] += litColour[2] * w
		alpha += w
	}

	bg := cfg.BackgroundColour
	for c := range colour {
		colour[c] += bg[c] * (1 - alpha)
	}

	return Pixel{R: colour[0], G: colour[1], B: colour[2]}
}

func dot3(a, b [3]float32) float32 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

func normalize3(v [3]float32) [3]float32 {
	length := float32(math.Sqrt(float64(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])))
	if length == 0 {
		return v
	}
	return [3]float32{v[0] / length, v[1] / length, v[2] / length}
}
