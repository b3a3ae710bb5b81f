package preprocess

import (
	"sync"

	"github.com/phanxgames/tundra"
)

// The downsample stage builds the coarser pyramid levels: each parent's
// interior is the 2x2 box average of its children's interiors, no-data
// preserved. Levels run finest to coarsest so every parent sees finished
// children; tiles within one level are independent and run on the pool.

// Downsample fills every ancestor of the input tiles down to LOD 0 and
// returns all tiles, input plus generated.
func Downsample(store *tileStore, input []tundra.TileCoordinate, pool *workerPool) []tundra.TileCoordinate {
	levels := ancestorLevels(input)
	output := append([]tundra.TileCoordinate(nil), input...)

	for _, level := range levels {
		var mu sync.Mutex
		pool.each(len(level), func(i int) {
			parent := level[i]
			buffer := downsampleTile(store, parent)
			if buffer == nil {
				return
			}
			store.put(parent, buffer)
			mu.Lock()
			output = append(output, parent)
			mu.Unlock()
		})
	}

	return output
}

// ancestorLevels collects every ancestor of the input tiles, grouped by
// LOD from finest-1 down to 0.
func ancestorLevels(input []tundra.TileCoordinate) [][]tundra.TileCoordinate {
	ancestors := map[tundra.TileCoordinate]struct{}{}
	var maxLOD uint32

	for _, tile := range input {
		c := tile
		for c.LOD > 0 {
			c = c.Parent()
			if _, ok := ancestors[c]; ok {
				break
			}
			ancestors[c] = struct{}{}
			maxLOD = max(maxLOD, c.LOD)
		}
	}

	levels := make([][]tundra.TileCoordinate, 0, maxLOD+1)
	for lod := int64(maxLOD); lod >= 0; lod-- {
		var level []tundra.TileCoordinate
		for c := range ancestors {
			if c.LOD == uint32(lod) {
				level = append(level, c)
			}
		}
		if len(level) > 0 {
			levels = append(levels, level)
		}
	}
	return levels
}

// downsampleTile averages the four children of a parent tile into its
// interior. Children may be missing (empty regions); a parent with no
// children at all returns nil.
func downsampleTile(store *tileStore, parent tundra.TileCoordinate) *tileBuffer {
	attachment := store.attachment
	size := int(attachment.TextureSize)
	border := int(attachment.BorderSize)
	center := int(attachment.CenterSize())
	half := center / 2

	// A parent produced by an earlier source pass is extended in place.
	buffer := store.get(parent)
	if buffer == nil {
		buffer = newTileBuffer(size)
	}
	hasChild := false

	for _, child := range parent.Children() {
		childBuffer := store.get(child)
		if childBuffer == nil {
			continue
		}
		hasChild = true

		// The child's interior quadrant within the parent.
		offsetX := border + int(child.X%2)*half
		offsetY := border + int(child.Y%2)*half

		for y := 0; y < half; y++ {
			for x := 0; x < half; x++ {
				var sum float64
				var count int
				for dy := 0; dy < 2; dy++ {
					for dx := 0; dx < 2; dx++ {
						v, ok := childBuffer.at(border+2*x+dx, border+2*y+dy)
						if !ok {
							continue
						}
						sum += v
						count++
					}
				}
				if count == 0 {
					continue
				}
				buffer.set(offsetX+x, offsetY+y, sum/float64(count))
			}
		}
	}

	if !hasChild {
		return nil
	}
	return buffer
}
