package preprocess

import (
	"sync"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/phanxgames/tundra"
)

// The split stage partitions the reprojected pixels into border-padded
// tiles. Every pixel of a tile, border included, is pulled through the
// warp and bilinearly sampled from the source, so borders hold the same
// values the neighbouring tile's interior will: the later stitch stage
// only has to reconcile borders across datasets and face seams.

// Split fills the tiles of one face coverage and stores the non-empty
// ones. Returns the coordinates that actually contained data.
func Split(store *tileStore, shape tundra.TerrainShape, source *SourceDataset, coverage FaceCoverage, pool *workerPool) []tundra.TileCoordinate {
	w := newWarp(shape, source.Bound())
	candidates := coverage.Tiles()

	results := make([]tundra.TileCoordinate, 0, len(candidates))
	var resultsMu sync.Mutex

	pool.each(len(candidates), func(i int) {
		tile := candidates[i]
		buffer := splitTile(store, shape, source, w, tile)
		if buffer == nil {
			return
		}

		store.put(tile, buffer)
		resultsMu.Lock()
		results = append(results, tile)
		resultsMu.Unlock()
	})

	return results
}

// splitTile samples one tile from the source. Empty (all-no-data) tiles
// return nil and are skipped.
func splitTile(store *tileStore, shape tundra.TerrainShape, source *SourceDataset, w warp, tile tundra.TileCoordinate) *tileBuffer {
	attachment := store.attachment
	size := int(attachment.TextureSize)
	border := int(attachment.BorderSize)
	center := float64(attachment.CenterSize())
	n := float64(tundra.TileCount(tile.LOD))

	buffer := newTileBuffer(size)
	hasData := false

	for py := 0; py < size; py++ {
		for px := 0; px < size; px++ {
			// Pixel center in face UV space; border pixels reach into the
			// neighbouring tile's interior.
			u := (float64(tile.X) + (float64(px-border)+0.5)/center) / n
			v := (float64(tile.Y) + (float64(py-border)+0.5)/center) / n
			if u < 0 || u > 1 || v < 0 || v > 1 {
				continue
			}

			lon, lat := w(tundra.Coordinate{Face: tile.Face, UV: mgl64.Vec2{u, v}})
			value, ok := source.SampleLonLat(lon, lat)
			if !ok {
				continue
			}

			buffer.set(px, py, value)
			// Border pixels alone do not make a tile worth keeping.
			if px >= border && px < size-border && py >= border && py < size-border {
				hasData = true
			}
		}
	}

	if !hasData {
		return nil
	}
	return buffer
}
