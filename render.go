package tundra

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/hajimehoshi/ebiten/v2"
)

// The render pass draws the prepass tile list with a material. Ebitengine
// has no vertex texture fetch, so the vertex stage of the pipeline
// (surface evaluation, height displacement, LOD morphing) runs on the CPU
// over the shared grid mesh, and the Kage fragment shader owns the pixel
// stage. Vertices carry (morph, blend, shade) in their color channels.

// gridMesh is the shared tessellation grid of one render tile: a
// (size+1)^2 vertex lattice in [0,1]^2.
type gridMesh struct {
	size      uint32
	positions []mgl32.Vec2
	indices   []uint16
}

// gridMeshCache reuses meshes per grid size.
// No lock: meshes are built on the main thread.
var gridMeshCache = map[uint32]*gridMesh{}

func sharedGridMesh(size uint32) *gridMesh {
	if mesh, ok := gridMeshCache[size]; ok {
		return mesh
	}
	mesh := newGridMesh(size)
	gridMeshCache[size] = mesh
	return mesh
}

func newGridMesh(size uint32) *gridMesh {
	side := size + 1
	mesh := &gridMesh{size: size}

	mesh.positions = make([]mgl32.Vec2, 0, side*side)
	for y := uint32(0); y <= size; y++ {
		for x := uint32(0); x <= size; x++ {
			mesh.positions = append(mesh.positions, mgl32.Vec2{
				float32(x) / float32(size),
				float32(y) / float32(size),
			})
		}
	}

	mesh.indices = make([]uint16, 0, size*size*6)
	for y := uint32(0); y < size; y++ {
		for x := uint32(0); x < size; x++ {
			i := uint16(y*side + x)
			mesh.indices = append(mesh.indices,
				i, i+1, i+uint16(side)+1,
				i, i+uint16(side)+1, i+uint16(side),
			)
		}
	}

	return mesh
}

// batchVertexLimit keeps each draw below the uint16 index range.
const batchVertexLimit = 60000

// RenderPass draws one view of a terrain.
type RenderPass struct {
	vertices []ebiten.Vertex
	indices  []uint16
}

// Draw renders the view's final tile list into dst with the material.
func (r *RenderPass) Draw(dst *ebiten.Image, terrain *Terrain, view *TerrainView, material Material) error {
	shader, err := Shaders().Get(material.Shader)
	if err != nil {
		return err
	}

	config, ok := terrain.Atlas.Attachment(material.Attachment)
	if !ok {
		return fmt.Errorf("tundra: material attachment %q not on terrain", material.Attachment)
	}
	atlasTexture := terrain.Atlas.Texture(material.Attachment)

	mesh := sharedGridMesh(view.Config.GridSize)
	uniform := view.Uniform()

	bounds := dst.Bounds()
	halfW := float32(bounds.Dx()) / 2
	halfH := float32(bounds.Dy()) / 2

	r.vertices = r.vertices[:0]
	r.indices = r.indices[:0]

	flush := func() {
		if len(r.indices) == 0 {
			return
		}
		options := &ebiten.DrawTrianglesShaderOptions{
			Images: [4]*ebiten.Image{atlasTexture},
		}
		options.Uniforms = map[string]any{
			"MinHeight": terrain.Config.MinHeight,
			"MaxHeight": terrain.Config.MaxHeight,
		}
		for name, value := range material.Uniforms {
			options.Uniforms[name] = value
		}
		dst.DrawTrianglesShader(r.vertices, r.indices, shader, options)
		r.vertices = r.vertices[:0]
		r.indices = r.indices[:0]
	}

	for _, tile := range view.Prepass().Tiles() {
		if len(r.vertices)+len(mesh.positions) > batchVertexLimit {
			flush()
		}
		r.appendTile(terrain, view, &uniform, config, mesh, tile, halfW, halfH)
	}
	flush()

	return nil
}

// appendTile evaluates the grid mesh over one render tile and appends the
// projected vertices.
func (r *RenderPass) appendTile(terrain *Terrain, view *TerrainView, uniform *ViewUniform, config AttachmentConfig, mesh *gridMesh, tile RenderTile, halfW, halfH float32) {
	base := uint16(len(r.vertices))
	coordinate := tile.Coordinate
	n := float32(TileCount(coordinate.LOD))
	approximation := view.Approximation(coordinate.Face)
	tree := view.Tree()

	// Resolve the attachment tile once per render tile; a render tile
	// never spans an attachment tile (it is at the same or a finer LOD).
	dataCoordinate := coordinate.AncestorAt(min(coordinate.LOD, terrain.Config.LODCount-1))
	entry := tree.Entry(dataCoordinate)

	var sliceX, sliceY float32
	entryN := float32(1)
	var entryOrigin mgl32.Vec2
	if entry.AtlasIndex != SentinelAtlasIndex {
		x, y := terrain.Atlas.SliceOrigin(config.Label, entry.AtlasIndex)
		sliceX, sliceY = float32(x), float32(y)
		entryN = float32(TileCount(entry.Coordinate.LOD))
		entryOrigin = mgl32.Vec2{float32(entry.Coordinate.X), float32(entry.Coordinate.Y)}
	}

	grid := float32(mesh.size)

	for _, position := range mesh.positions {
		// CDLOD-style morph: odd grid vertices slide onto the even grid
		// as the tile approaches its subdivision distance.
		morphed := position
		if tile.Morph > 0 {
			snappedX := float32(int(position[0]*grid/2)) * 2 / grid
			snappedY := float32(int(position[1]*grid/2)) * 2 / grid
			morphed = mgl32.Vec2{
				position[0] + (snappedX-position[0])*tile.Morph,
				position[1] + (snappedY-position[1])*tile.Morph,
			}
		}

		faceUV := mgl32.Vec2{
			(float32(coordinate.X) + morphed[0]) / n,
			(float32(coordinate.Y) + morphed[1]) / n,
		}

		surface := approximation.Evaluate(faceUV)
		// DV x DU points outward (up on planes, away from the planet
		// center on spheres).
		normal := approximation.DV.Cross(approximation.DU).Normalize()

		height := r.sampleHeight(terrain, tree, coordinate.Face, faceUV, tile.Blend)
		world := surface.Add(normal.Mul(height))

		clip := uniform.ViewProjection.Mul4x1(mgl32.Vec4{world[0], world[1], world[2], 1})
		w := clip[3]
		if w < 1e-4 {
			w = 1e-4
		}

		sx := clip[0]/w*halfW + halfW
		sy := -clip[1]/w*halfH + halfH

		// Source pixels inside the resolved atlas slice, border included.
		tileUV := mgl32.Vec2{
			faceUV[0]*entryN - entryOrigin[0],
			faceUV[1]*entryN - entryOrigin[1],
		}
		srcX := sliceX + float32(config.BorderSize) + tileUV[0]*float32(config.CenterSize())
		srcY := sliceY + float32(config.BorderSize) + tileUV[1]*float32(config.CenterSize())

		shade := 0.35 + 0.65*max32(normal[1], 0)

		r.vertices = append(r.vertices, ebiten.Vertex{
			DstX:   sx,
			DstY:   sy,
			SrcX:   srcX,
			SrcY:   srcY,
			ColorR: tile.Morph,
			ColorG: tile.Blend,
			ColorB: shade,
			ColorA: 1,
		})
	}

	for _, index := range mesh.indices {
		r.indices = append(r.indices, base+index)
	}
}

// sampleHeight blends the height of the fine and the parent LOD according
// to the tile's blend ratio, hiding the pop when data LODs switch.
func (r *RenderPass) sampleHeight(terrain *Terrain, tree *TileTree, face uint8, faceUV mgl32.Vec2, blend float32) float32 {
	coordinate := Coordinate{
		Face: face,
		UV:   mgl64.Vec2{float64(faceUV[0]), float64(faceUV[1])},
	}

	fine, ok := tree.LookupHeight(terrain.Atlas, coordinate,
		terrain.Config.MinHeight, terrain.Config.MaxHeight)
	if !ok {
		return 0
	}
	if blend <= 0 {
		return fine
	}

	// The coarser sample reuses the fallback chain one LOD up.
	coarse := fine
	if parentHeight, ok := tree.lookupHeightAt(terrain.Atlas, coordinate, tree.lodCount-2,
		terrain.Config.MinHeight, terrain.Config.MaxHeight); ok {
		coarse = parentHeight
	}

	return fine + (coarse-fine)*blend
}

func max32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

// AncestorAt returns the ancestor of c at the given coarser LOD (or c
// itself when lod equals c's LOD).
func (c TileCoordinate) AncestorAt(lod uint32) TileCoordinate {
	if lod >= c.LOD {
		return c
	}
	shift := c.LOD - lod
	return TileCoordinate{
		Face: c.Face,
		LOD:  lod,
		X:    c.X >> shift,
		Y:    c.Y >> shift,
	}
}
