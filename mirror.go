package tundra

// The GPU mirror is the extract phase of the frame: it reads the CPU
// atlas and tile-tree state and produces the compact buffers the render
// pass consumes. The attachment textures themselves are already
// GPU-resident and updated incrementally by TileAtlas.PollUploads.

// TileTreeEntryGPU is the packed wire form of a TileTreeEntry.
// The coordinate packs as face:3 | lod:5 | x:12 | y:12, enough for 4096
// tiles per axis at the finest supported LOD.
type TileTreeEntryGPU struct {
	AtlasIndex uint32
	Packed     uint32
}

// PackTileCoordinate packs a coordinate into its GPU form.
func PackTileCoordinate(c TileCoordinate) uint32 {
	return uint32(c.Face)<<29 | (c.LOD&0x1F)<<24 | uint32(c.X&0xFFF)<<12 | uint32(c.Y&0xFFF)
}

// UnpackTileCoordinate reverses PackTileCoordinate.
func UnpackTileCoordinate(packed uint32) TileCoordinate {
	return TileCoordinate{
		Face: uint8(packed >> 29),
		LOD:  (packed >> 24) & 0x1F,
		X:    int32(packed >> 12 & 0xFFF),
		Y:    int32(packed & 0xFFF),
	}
}

// GPUTileTree mirrors a tile tree into a flat entry buffer sized
// faceCount * lodCount * treeSize^2. The whole buffer re-uploads when the
// tree marked itself dirty; unchanged frames skip the copy.
type GPUTileTree struct {
	entries []TileTreeEntryGPU
	uploads int
}

// NewGPUTileTree sizes the mirror for a tree.
func NewGPUTileTree(tree *TileTree) *GPUTileTree {
	return &GPUTileTree{
		entries: make([]TileTreeEntryGPU, len(tree.entries)),
	}
}

// Extract copies the tree entries when dirty. Returns true if the buffer
// changed and must be re-consumed by the renderer.
func (g *GPUTileTree) Extract(tree *TileTree) bool {
	if !tree.Dirty() {
		return false
	}
	for i, entry := range tree.entries {
		g.entries[i] = TileTreeEntryGPU{
			AtlasIndex: entry.AtlasIndex,
			Packed:     PackTileCoordinate(entry.Coordinate),
		}
	}
	tree.ClearDirty()
	g.uploads++
	return true
}

// Entries exposes the packed buffer.
func (g *GPUTileTree) Entries() []TileTreeEntryGPU { return g.entries }

// Uploads returns how many extracts actually copied data.
func (g *GPUTileTree) Uploads() int { return g.uploads }

// Bytes serializes the entry buffer little-endian for storage-buffer style
// consumption.
func (g *GPUTileTree) Bytes() []byte {
	out := make([]byte, len(g.entries)*8)
	for i, e := range g.entries {
		putU32LE(out[i*8:], e.AtlasIndex)
		putU32LE(out[i*8+4:], e.Packed)
	}
	return out
}

// TerrainUniform is the GPU-facing snapshot of the terrain configuration.
type TerrainUniform struct {
	// FaceCount distinguishes planar (1) from cube-sphere (6) terrains.
	FaceCount uint32
	LODCount  uint32
	Scale     float32
	MinHeight float32
	MaxHeight float32

	// AttachmentScales and AttachmentOffsets map tile UVs into the
	// border-padded tile textures, indexed like Terrain.Atlas.Labels().
	AttachmentScales  [8]float32
	AttachmentOffsets [8]float32
}

// ExtractTerrainUniform builds the terrain uniform from the config.
func ExtractTerrainUniform(config *TerrainConfig) TerrainUniform {
	uniform := TerrainUniform{
		FaceCount: config.Shape.FaceCount(),
		LODCount:  config.LODCount,
		Scale:     float32(config.Shape.Scale()),
		MinHeight: config.MinHeight,
		MaxHeight: config.MaxHeight,
	}

	for i, attachment := range config.Attachments {
		if i >= len(uniform.AttachmentScales) {
			break
		}
		uniform.AttachmentScales[i] = attachment.Scale()
		uniform.AttachmentOffsets[i] = attachment.Offset()
	}

	return uniform
}

// GPUMirror bundles the per-frame extracted state of one (terrain, view)
// pair, ready for the render pass.
type GPUMirror struct {
	TileTree *GPUTileTree
	Terrain  TerrainUniform
	View     ViewUniform
}

// NewGPUMirror creates the mirror of one view.
func NewGPUMirror(tree *TileTree) *GPUMirror {
	return &GPUMirror{TileTree: NewGPUTileTree(tree)}
}

// Extract snapshots the CPU state. Runs after the tile tree adjusted to
// the atlas and before the prepass consumes the view uniform.
func (m *GPUMirror) Extract(config *TerrainConfig, view *TerrainView) {
	m.TileTree.Extract(view.Tree())
	m.Terrain = ExtractTerrainUniform(config)
	m.View = view.Uniform()
}
