package preprocess

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/phanxgames/tundra"
)

// The stitch stage rewrites every tile's border pixels with the values of
// the neighbouring tiles' interiors, crossing face seams where needed.
// Interiors are the single source of truth for their pixels, so after
// stitching, bilinear sampling across any tile boundary reads identical
// values on either side.

// Stitch reconciles the borders of the given tiles against the store.
func Stitch(store *tileStore, shape tundra.TerrainShape, tiles []tundra.TileCoordinate, pool *workerPool) {
	pool.each(len(tiles), func(i int) {
		stitchTile(store, shape, tiles[i])
	})
}

func stitchTile(store *tileStore, shape tundra.TerrainShape, tile tundra.TileCoordinate) {
	buffer := store.get(tile)
	if buffer == nil {
		return
	}

	attachment := store.attachment
	size := int(attachment.TextureSize)
	border := int(attachment.BorderSize)
	center := int(attachment.CenterSize())

	for py := 0; py < size; py++ {
		for px := 0; px < size; px++ {
			inBorder := px < border || py < border || px >= size-border || py >= size-border
			if !inBorder {
				continue
			}

			// Face-global pixel position of this border pixel.
			gx := int(tile.X)*center + px - border
			gy := int(tile.Y)*center + py - border

			value, ok := resolvePixel(store, shape, tile, gx, gy)
			if ok {
				buffer.set(px, py, value)
			} else {
				buffer.clear(px, py)
			}
		}
	}
}

// resolvePixel reads the interior pixel owning the face-global position
// (gx, gy), following the cube geometry when the position leaves the face.
func resolvePixel(store *tileStore, shape tundra.TerrainShape, tile tundra.TileCoordinate, gx, gy int) (float64, bool) {
	center := int(store.attachment.CenterSize())
	n := int(tundra.TileCount(tile.LOD))
	extent := center * n

	face := tile.Face
	if gx < 0 || gy < 0 || gx >= extent || gy >= extent {
		if !shape.Spherical() {
			// Planar terrains end at the face edge; border pixels
			// beyond it are cleared.
			return 0, false
		}

		// Route through world space: the extended face UV still projects
		// onto the sphere, and converting back picks the owning face.
		uv := mgl64.Vec2{
			(float64(gx) + 0.5) / float64(extent),
			(float64(gy) + 0.5) / float64(extent),
		}
		local := tundra.Coordinate{Face: face, UV: uv}.LocalPosition(true)
		owner := tundra.CoordinateFromLocalPosition(local, true)

		face = owner.Face
		gx = int(owner.UV[0] * float64(extent))
		gy = int(owner.UV[1] * float64(extent))
		gx = min(max(gx, 0), extent-1)
		gy = min(max(gy, 0), extent-1)
	}

	owner := tundra.NewTileCoordinate(face, tile.LOD, int32(gx/center), int32(gy/center))
	ownerBuffer := store.get(owner)
	if ownerBuffer == nil {
		return 0, false
	}

	border := int(store.attachment.BorderSize)
	return ownerBuffer.at(border+gx%center, border+gy%center)
}
