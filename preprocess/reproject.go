package preprocess

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/paulmach/orb"
	"github.com/phanxgames/tundra"
)

// The reproject stage decides where the source raster lands on the
// terrain: which faces it touches, which tile rectangle it covers on each
// of them, and the warp from face coordinates back into the source's
// lon/lat space. The split stage then pulls pixels through the warp tile
// by tile, so faces never materialize as whole rasters.

// FaceCoverage is the tile rectangle a source covers on one face at the
// base LOD.
type FaceCoverage struct {
	Face      uint8
	LOD       uint32
	TileStart [2]int32
	TileEnd   [2]int32 // exclusive
	covered   func(c tundra.TileCoordinate) bool
}

// warp maps a face coordinate to the source's lon/lat (degrees). For
// planar terrains the source spans the single face, so the warp is a
// linear ramp over the source bound.
type warp func(c tundra.Coordinate) (lon, lat float64)

// newWarp builds the warp of a terrain shape over a source bound.
func newWarp(shape tundra.TerrainShape, bound orb.Bound) warp {
	if !shape.Spherical() {
		return func(c tundra.Coordinate) (float64, float64) {
			lon := bound.Min[0] + c.UV[0]*(bound.Max[0]-bound.Min[0])
			lat := bound.Max[1] - c.UV[1]*(bound.Max[1]-bound.Min[1])
			return lon, lat
		}
	}

	return func(c tundra.Coordinate) (float64, float64) {
		unit := c.LocalPosition(true)
		lat := mgl64.RadToDeg(math.Asin(clamp(unit[1], -1, 1)))
		lon := mgl64.RadToDeg(math.Atan2(unit[2], unit[0]))
		return lon, lat
	}
}

// Reproject computes the face coverage of a source at the base LOD.
func Reproject(shape tundra.TerrainShape, source *SourceDataset, baseLOD uint32) []FaceCoverage {
	bound := source.Bound()
	w := newWarp(shape, bound)

	var coverages []FaceCoverage
	for face := uint8(0); face < uint8(shape.FaceCount()); face++ {
		if coverage, ok := faceCoverage(shape, face, baseLOD, w, bound); ok {
			coverages = append(coverages, coverage)
		}
	}
	return coverages
}

// faceCoverage scans the tile grid of one face and collects the rectangle
// of tiles whose footprint intersects the source bound.
func faceCoverage(shape tundra.TerrainShape, face uint8, lod uint32, w warp, bound orb.Bound) (FaceCoverage, bool) {
	n := tundra.TileCount(lod)

	inBound := func(c tundra.TileCoordinate) bool {
		// Probe the corners and center of the tile footprint.
		probes := [5][2]float64{{0, 0}, {1, 0}, {0, 1}, {1, 1}, {0.5, 0.5}}
		for _, p := range probes {
			uv := mgl64.Vec2{
				(float64(c.X) + p[0]) / float64(n),
				(float64(c.Y) + p[1]) / float64(n),
			}
			lon, lat := w(tundra.Coordinate{Face: face, UV: uv})
			if bound.Contains(orb.Point{lon, lat}) {
				return true
			}
		}
		return false
	}

	coverage := FaceCoverage{
		Face:      face,
		LOD:       lod,
		TileStart: [2]int32{n, n},
		TileEnd:   [2]int32{0, 0},
		covered:   inBound,
	}

	found := false
	for y := int32(0); y < n; y++ {
		for x := int32(0); x < n; x++ {
			if !inBound(tundra.NewTileCoordinate(face, lod, x, y)) {
				continue
			}
			found = true
			coverage.TileStart[0] = min(coverage.TileStart[0], x)
			coverage.TileStart[1] = min(coverage.TileStart[1], y)
			coverage.TileEnd[0] = max(coverage.TileEnd[0], x+1)
			coverage.TileEnd[1] = max(coverage.TileEnd[1], y+1)
		}
	}

	return coverage, found
}

// Tiles lists the candidate tiles of a coverage rectangle.
func (c FaceCoverage) Tiles() []tundra.TileCoordinate {
	var tiles []tundra.TileCoordinate
	for y := c.TileStart[1]; y < c.TileEnd[1]; y++ {
		for x := c.TileStart[0]; x < c.TileEnd[0]; x++ {
			tile := tundra.NewTileCoordinate(c.Face, c.LOD, x, y)
			if c.covered == nil || c.covered(tile) {
				tiles = append(tiles, tile)
			}
		}
	}
	return tiles
}
