package tundra

import (
	"errors"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// TileTreeEntry resolves one cell of the tile-tree window to the best
// resident tile covering it. A SentinelAtlasIndex tells the sampler to
// fall back to the parent LOD entry instead.
type TileTreeEntry struct {
	AtlasIndex AtlasIndex
	Coordinate TileCoordinate
}

// requestState tracks the lifecycle of one window cell's requested tile:
// Empty -> Requested (covering the atlas load) -> Resident, with Released
// folding back to Empty. All transitions are idempotent, and a cell may drop straight from
// Requested to Empty when the window moves before the loader starts.
type requestState uint8

const (
	cellEmpty requestState = iota
	cellRequested
	cellResident
)

// treeCell is the per-cell bookkeeping of the sliding window.
type treeCell struct {
	state      requestState
	coordinate TileCoordinate
	index      AtlasIndex
}

// TileTree is the per-(terrain, view) sparse index over the tile
// hierarchy. For each face it keeps a small window of cells around the
// viewer at every LOD, requests the tiles those cells want from the atlas,
// and resolves every cell to its best resident ancestor for sampling.
type TileTree struct {
	shape     TerrainShape
	lodCount  uint32
	treeSize  uint32
	faceCount uint32

	loadDistance float64

	// cells and entries are indexed [face][lod][cellY][cellX] flattened,
	// with cellX/cellY being tile coordinates modulo treeSize, so a
	// moving window only touches the cells that actually change.
	cells   []treeCell
	entries []TileTreeEntry

	viewerCoordinates []Coordinate
	heightUnderViewer float32
	minHeight         float32
	maxHeight         float32

	dirty bool
}

// NewTileTree creates the tile tree of one view over a terrain.
func NewTileTree(shape TerrainShape, lodCount, treeSize uint32, view *TerrainViewConfig) (*TileTree, error) {
	if lodCount == 0 {
		return nil, errors.New("tundra: tile tree needs at least one LOD")
	}
	if treeSize < 2 {
		return nil, errors.New("tundra: tile tree window must be at least 2 tiles wide")
	}

	faceCount := shape.FaceCount()
	cellCount := int(faceCount) * int(lodCount) * int(treeSize) * int(treeSize)

	tree := &TileTree{
		shape:             shape,
		lodCount:          lodCount,
		treeSize:          treeSize,
		faceCount:         faceCount,
		loadDistance:      float64(view.LoadDistance),
		cells:             make([]treeCell, cellCount),
		entries:           make([]TileTreeEntry, cellCount),
		viewerCoordinates: make([]Coordinate, faceCount),
		dirty:             true,
	}

	for i := range tree.cells {
		tree.cells[i].index = SentinelAtlasIndex
	}
	for i := range tree.entries {
		tree.entries[i].AtlasIndex = SentinelAtlasIndex
	}

	return tree, nil
}

// TreeSize returns the window width in tiles.
func (t *TileTree) TreeSize() uint32 { return t.treeSize }

// LODCount returns the number of levels the tree covers.
func (t *TileTree) LODCount() uint32 { return t.lodCount }

// Dirty reports whether the entries changed since the last mirror extract.
func (t *TileTree) Dirty() bool { return t.dirty }

// ClearDirty acknowledges a mirror extract.
func (t *TileTree) ClearDirty() { t.dirty = false }

// HeightUnderViewer returns the approximate terrain height below the
// viewer, updated by AdjustToAtlas.
func (t *TileTree) HeightUnderViewer() float32 { return t.heightUnderViewer }

func (t *TileTree) cellIndex(face uint8, lod uint32, x, y int32) int {
	m := int32(t.treeSize)
	cx := ((x % m) + m) % m
	cy := ((y % m) + m) % m
	return ((int(face)*int(t.lodCount)+int(lod))*int(t.treeSize)+int(cy))*int(t.treeSize) + int(cx)
}

// windowOrigin returns the first tile of the window at the given LOD,
// clamped so the window stays on the face.
func (t *TileTree) windowOrigin(viewerTile mgl64.Vec2, lod uint32) (int32, int32) {
	n := TileCount(lod)
	half := int32(t.treeSize) / 2

	clampOrigin := func(center float64) int32 {
		origin := int32(center) - half
		if origin < 0 {
			origin = 0
		}
		if limit := n - int32(t.treeSize); origin > limit {
			origin = limit
		}
		if limit := n - int32(t.treeSize); limit < 0 {
			origin = 0
		}
		return origin
	}

	return clampOrigin(viewerTile[0]), clampOrigin(viewerTile[1])
}

// ComputeRequests slides the windows to the viewer position and issues the
// atlas request/release deltas against the previous frame. A cell whose
// coordinate changes releases its previous tile before requesting the new
// one; on atlas exhaustion the cell stays empty until a later frame's
// request succeeds, and its entry resolves to the nearest resident
// ancestor. The previously held tile is not kept.
func (t *TileTree) ComputeRequests(atlas *TileAtlas, viewerLocal mgl64.Vec3) {
	unit := t.shape.PositionLocalToUnit(viewerLocal)
	base := CoordinateFromLocalPosition(unit, t.shape.Spherical())

	for face := uint8(0); face < uint8(t.faceCount); face++ {
		t.viewerCoordinates[face] = base.ProjectToFace(face, t.shape.Spherical())
		t.computeFaceRequests(atlas, face, viewerLocal)
	}
}

func (t *TileTree) computeFaceRequests(atlas *TileAtlas, face uint8, viewerLocal mgl64.Vec3) {
	viewer := t.viewerCoordinates[face]

	for lod := uint32(0); lod < t.lodCount; lod++ {
		viewerTile := viewer.TilePosition(lod)
		originX, originY := t.windowOrigin(viewerTile, lod)
		span := min(int32(t.treeSize), TileCount(lod))

		for dy := int32(0); dy < span; dy++ {
			for dx := int32(0); dx < span; dx++ {
				coordinate := TileCoordinate{
					Face: face,
					LOD:  lod,
					X:    originX + dx,
					Y:    originY + dy,
				}
				t.updateCell(atlas, coordinate, viewerLocal)
			}
		}
	}
}

// updateCell reconciles one window cell with its desired coordinate,
// requesting and releasing atlas slots as the window moves.
func (t *TileTree) updateCell(atlas *TileAtlas, desired TileCoordinate, viewerLocal mgl64.Vec3) {
	cell := &t.cells[t.cellIndex(desired.Face, desired.LOD, desired.X, desired.Y)]

	// LOD 0 is forced resident so the fallback chain always terminates.
	needed := desired.LOD == 0 || t.tileNeeded(desired, viewerLocal)

	switch {
	case cell.state == cellEmpty && needed:
		t.requestTile(atlas, cell, desired)
	case cell.state != cellEmpty && cell.coordinate != desired:
		atlas.Release(cell.index)
		cell.state = cellEmpty
		cell.index = SentinelAtlasIndex
		if needed {
			t.requestTile(atlas, cell, desired)
		}
	case cell.state != cellEmpty && !needed:
		atlas.Release(cell.index)
		cell.state = cellEmpty
		cell.index = SentinelAtlasIndex
	case cell.state != cellEmpty:
		atlas.Touch(cell.index)
	}
}

func (t *TileTree) requestTile(atlas *TileAtlas, cell *treeCell, coordinate TileCoordinate) {
	index, err := atlas.Request(coordinate)
	if err != nil {
		// Transient miss under atlas pressure; retry next frame.
		return
	}
	cell.state = cellRequested
	cell.coordinate = coordinate
	cell.index = index
}

// tileNeeded applies the load-distance test: a tile is needed when the
// viewer is within loadDistance tile sizes of its center.
func (t *TileTree) tileNeeded(coordinate TileCoordinate, viewerLocal mgl64.Vec3) bool {
	distance := t.tileDistance(coordinate, viewerLocal)
	return distance < t.loadDistance*t.tileSizeLocal(coordinate.LOD)
}

// tileDistance is the local-space distance from the viewer to the tile
// center on the reference surface.
func (t *TileTree) tileDistance(coordinate TileCoordinate, viewerLocal mgl64.Vec3) float64 {
	center := coordinate.Coordinate()
	unit := center.LocalPosition(t.shape.Spherical())
	local := t.shape.PositionUnitToLocal(unit, float64(t.heightUnderViewer))
	return local.Sub(viewerLocal).Len()
}

// tileSizeLocal is the local-space edge length of a tile at the given LOD.
func (t *TileTree) tileSizeLocal(lod uint32) float64 {
	return 2 * t.shape.Scale() / float64(TileCount(lod))
}

// AdjustToAtlas resolves every cell to its best resident tile, walking up
// the fallback chain toward LOD 0 for cells whose own tile is not resident
// yet. Runs after the atlas consumed this frame's requests and the
// loader's deliveries.
func (t *TileTree) AdjustToAtlas(atlas *TileAtlas) {
	for i := range t.cells {
		cell := &t.cells[i]
		if cell.state == cellRequested && atlas.IsResident(cell.index) {
			cell.state = cellResident
		}
	}

	for face := uint8(0); face < uint8(t.faceCount); face++ {
		viewer := t.viewerCoordinates[face]

		for lod := uint32(0); lod < t.lodCount; lod++ {
			viewerTile := viewer.TilePosition(lod)
			originX, originY := t.windowOrigin(viewerTile, lod)
			span := min(int32(t.treeSize), TileCount(lod))

			for dy := int32(0); dy < span; dy++ {
				for dx := int32(0); dx < span; dx++ {
					desired := TileCoordinate{
						Face: face,
						LOD:  lod,
						X:    originX + dx,
						Y:    originY + dy,
					}
					t.resolveEntry(atlas, desired)
				}
			}
		}
	}

	t.updateHeightUnderViewer(atlas)
}

// resolveEntry binds the best resident ancestor (or the tile itself) into
// the entry for the desired coordinate.
func (t *TileTree) resolveEntry(atlas *TileAtlas, desired TileCoordinate) {
	index := t.cellIndex(desired.Face, desired.LOD, desired.X, desired.Y)

	entry := TileTreeEntry{AtlasIndex: SentinelAtlasIndex, Coordinate: desired}

	coordinate := desired
	for {
		if atlasIndex, ok := atlas.Lookup(coordinate); ok && atlas.IsResident(atlasIndex) {
			entry = TileTreeEntry{AtlasIndex: atlasIndex, Coordinate: coordinate}
			break
		}
		if coordinate.LOD == 0 {
			break
		}
		coordinate = coordinate.Parent()
	}

	if t.entries[index] != entry {
		t.entries[index] = entry
		t.dirty = true
	}
}

// Entry returns the resolved entry covering the given tile coordinate.
// Coordinates outside the window fall back to coarser LODs until the
// window covers them; LOD 0 always does.
func (t *TileTree) Entry(coordinate TileCoordinate) TileTreeEntry {
	for {
		if t.inWindow(coordinate) {
			entry := t.entries[t.cellIndex(coordinate.Face, coordinate.LOD, coordinate.X, coordinate.Y)]
			if entry.AtlasIndex != SentinelAtlasIndex {
				return entry
			}
		}
		if coordinate.LOD == 0 {
			return TileTreeEntry{AtlasIndex: SentinelAtlasIndex, Coordinate: coordinate}
		}
		coordinate = coordinate.Parent()
	}
}

// inWindow reports whether the window at the coordinate's LOD currently
// covers it.
func (t *TileTree) inWindow(coordinate TileCoordinate) bool {
	viewer := t.viewerCoordinates[coordinate.Face]
	viewerTile := viewer.TilePosition(coordinate.LOD)
	originX, originY := t.windowOrigin(viewerTile, coordinate.LOD)
	span := min(int32(t.treeSize), TileCount(coordinate.LOD))

	return coordinate.X >= originX && coordinate.X < originX+span &&
		coordinate.Y >= originY && coordinate.Y < originY+span
}

// LookupHeight samples the height attachment at a face coordinate through
// the resolved entries. Returns false when no height tile is resident.
func (t *TileTree) LookupHeight(atlas *TileAtlas, coordinate Coordinate, minHeight, maxHeight float32) (float32, bool) {
	return t.lookupHeightAt(atlas, coordinate, t.lodCount-1, minHeight, maxHeight)
}

// lookupHeightAt samples the height attachment starting the fallback chain
// at the given LOD.
func (t *TileTree) lookupHeightAt(atlas *TileAtlas, coordinate Coordinate, lod uint32, minHeight, maxHeight float32) (float32, bool) {
	if lod >= t.lodCount {
		lod = t.lodCount - 1
	}
	entry := t.Entry(coordinate.TileCoordinate(lod))
	if entry.AtlasIndex == SentinelAtlasIndex {
		return 0, false
	}

	data := atlas.TileData(entry.AtlasIndex, AttachmentHeight)
	if data == nil {
		return 0, false
	}

	// Position within the resolved tile.
	n := float64(TileCount(entry.Coordinate.LOD))
	u := coordinate.UV[0]*n - float64(entry.Coordinate.X)
	v := coordinate.UV[1]*n - float64(entry.Coordinate.Y)

	return sampleHeight(data, u, v, minHeight, maxHeight), true
}

func (t *TileTree) updateHeightUnderViewer(atlas *TileAtlas) {
	// The viewer coordinate of any face projects to the face under the
	// viewer for the face the viewer is actually over; probing face by
	// face, the first resident sample wins.
	for face := uint8(0); face < uint8(t.faceCount); face++ {
		if height, ok := t.LookupHeight(atlas, t.viewerCoordinates[face], t.minHeight, t.maxHeight); ok {
			t.heightUnderViewer = height
			return
		}
	}
}

// SetHeightBounds provides the terrain height range used to decode height
// samples.
func (t *TileTree) SetHeightBounds(minHeight, maxHeight float32) {
	t.minHeight = minHeight
	t.maxHeight = maxHeight
}

// sampleHeight bilinearly samples the interior of a height tile at
// normalized tile coordinates and scales into the terrain height range.
func sampleHeight(data *AttachmentData, u, v float64, minHeight, maxHeight float32) float32 {
	config := data.Config
	center := float64(config.CenterSize())
	border := float64(config.BorderSize)

	x := border + u*center - 0.5
	y := border + v*center - 0.5

	size := int(config.TextureSize)
	x0 := int(x)
	y0 := int(y)
	fx := x - float64(x0)
	fy := y - float64(y0)

	clampIdx := func(i int) int { return min(max(i, 0), size-1) }

	sample := func(px, py int) float64 {
		px, py = clampIdx(px), clampIdx(py)
		return normalizedPixel(config.Format, data.MipLevel(0), (py*size + px))
	}

	h00 := sample(x0, y0)
	h10 := sample(x0+1, y0)
	h01 := sample(x0, y0+1)
	h11 := sample(x0+1, y0+1)

	h := h00*(1-fx)*(1-fy) + h10*fx*(1-fy) + h01*(1-fx)*fy + h11*fx*fy
	return minHeight + float32(h)*(maxHeight-minHeight)
}

// normalizedPixel reads pixel i of a buffer as a [0,1] scalar (first
// channel for multi-channel formats).
func normalizedPixel(format AttachmentFormat, pixels []byte, i int) float64 {
	switch format {
	case FormatR16:
		v := uint32(pixels[i*2]) | uint32(pixels[i*2+1])<<8
		return float64(v) / 0xFFFF
	case FormatRF32:
		return float64(math.Float32frombits(uint32FromBytes(pixels[i*4 : i*4+4])))
	case FormatRgba8:
		return float64(pixels[i*4]) / 0xFF
	case FormatRgbU8:
		return float64(pixels[i*3]) / 0xFF
	default:
		return 0
	}
}
