package preprocess

import (
	"math"

	"github.com/phanxgames/tundra"
)

// The fill stage closes no-data gaps with an inverse-distance-weighted
// average of the valid pixels within the fill radius. When mask writing is
// enabled, the validity observed before filling survives into the encoded
// pixels: the LSB is cleared everywhere and OR-ed with the original mask,
// so consumers can distinguish measured from interpolated data.

// Fill interpolates no-data pixels of the given tiles in place.
func Fill(store *tileStore, tiles []tundra.TileCoordinate, radius float64, createMask bool, pool *workerPool) {
	if radius <= 0 && !createMask {
		return
	}

	pool.each(len(tiles), func(i int) {
		buffer := store.get(tiles[i])
		if buffer == nil {
			return
		}
		if createMask {
			buffer.snapshotMask()
		}
		if radius > 0 {
			fillTile(buffer, radius)
		}
	})
}

func fillTile(buffer *tileBuffer, radius float64) {
	size := buffer.size
	r := int(math.Ceil(radius))

	// Fill into a copy of the validity map so already-filled pixels do
	// not feed later fills within the same pass.
	filled := make([]float64, 0, size)
	filledAt := make([]int, 0, size)

	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			if _, ok := buffer.at(x, y); ok {
				continue
			}

			var sum, weight float64
			for dy := -r; dy <= r; dy++ {
				for dx := -r; dx <= r; dx++ {
					if dx == 0 && dy == 0 {
						continue
					}
					nx, ny := x+dx, y+dy
					if nx < 0 || ny < 0 || nx >= size || ny >= size {
						continue
					}
					distSq := float64(dx*dx + dy*dy)
					if distSq > radius*radius {
						continue
					}
					v, ok := buffer.at(nx, ny)
					if !ok {
						continue
					}
					w := 1 / distSq
					sum += v * w
					weight += w
				}
			}

			if weight > 0 {
				filled = append(filled, sum/weight)
				filledAt = append(filledAt, y*size+x)
			}
		}
	}

	for i, index := range filledAt {
		buffer.values[index] = filled[i]
		buffer.valid[index] = true
	}
}
