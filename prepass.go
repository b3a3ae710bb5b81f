package tundra

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Frustum is the six clip planes of a camera, pointing inward.
type Frustum struct {
	Planes [6]mgl64.Vec4
}

// FrustumFromMatrix extracts the frustum planes from a view-projection
// matrix (Gribb/Hartmann). Planes are normalized so distances are metric.
func FrustumFromMatrix(m mgl64.Mat4) Frustum {
	row := func(i int) mgl64.Vec4 {
		return mgl64.Vec4{m[i], m[i+4], m[i+8], m[i+12]}
	}

	r0 := row(0)
	r1 := row(1)
	r2 := row(2)
	r3 := row(3)

	planes := [6]mgl64.Vec4{
		r3.Add(r0), // left
		r3.Sub(r0), // right
		r3.Add(r1), // bottom
		r3.Sub(r1), // top
		r3.Add(r2), // near
		r3.Sub(r2), // far
	}

	var frustum Frustum
	for i, p := range planes {
		length := mgl64.Vec3{p[0], p[1], p[2]}.Len()
		if length > 0 {
			p = p.Mul(1 / length)
		}
		frustum.Planes[i] = p
	}
	return frustum
}

// ContainsSphere reports whether a bounding sphere intersects the frustum.
func (f Frustum) ContainsSphere(center mgl64.Vec3, radius float64) bool {
	for _, plane := range f.Planes {
		distance := plane[0]*center[0] + plane[1]*center[1] + plane[2]*center[2] + plane[3]
		if distance < -radius {
			return false
		}
	}
	return true
}

// RenderTile is one entry of the final draw list produced by the prepass.
type RenderTile struct {
	Coordinate TileCoordinate
	// Morph smooths the tessellation density transition within the LOD.
	Morph float32
	// Blend smooths the attachment data transition between LODs.
	Blend float32
}

// PrepassStats counts the outcome of one refinement run.
type PrepassStats struct {
	Culled  int
	Refined int
	Kept    int
}

// morphStartRatio positions the start of the morph and blend bands within
// their distance parameter. At 0.5 a tile exactly at its band end (ratio
// 1.0) coincides with the parent tile's band start (ratio 0.0), so
// neighbouring LODs agree at the boundary and no cracks open.
const morphStartRatio = 0.5

// Prepass iteratively refines a coarse per-face tile list into the final
// draw list at uniform screen-space density. The two ping-pong buffers and
// the indirect-style iteration mirror how the refinement would run as a
// GPU pass; emission order within one iteration carries no meaning.
type Prepass struct {
	shape  TerrainShape
	config *TerrainViewConfig

	ping  []TileCoordinate
	pong  []TileCoordinate
	final []RenderTile

	stats PrepassStats
}

// NewPrepass creates the refinement state of one view.
func NewPrepass(shape TerrainShape, config *TerrainViewConfig) *Prepass {
	return &Prepass{shape: shape, config: config}
}

// Stats returns the counters of the last Run.
func (p *Prepass) Stats() PrepassStats { return p.stats }

// Tiles returns the final tile list of the last Run. Valid until the next
// Run; the renderer consumes it immediately.
func (p *Prepass) Tiles() []RenderTile { return p.final }

// Run refines the terrain surface for the given viewer. minHeight and
// maxHeight bound the tile volumes used for culling.
func (p *Prepass) Run(viewerLocal mgl64.Vec3, frustum Frustum, heightUnderViewer, minHeight, maxHeight float32) []RenderTile {
	p.final = p.final[:0]
	p.stats = PrepassStats{}

	p.ping = p.ping[:0]
	for face := uint8(0); face < uint8(p.shape.FaceCount()); face++ {
		p.ping = append(p.ping, TileCoordinate{Face: face})
	}

	for i := uint32(0); i < p.config.RefinementCount && len(p.ping) > 0; i++ {
		p.pong = p.pong[:0]
		for _, tile := range p.ping {
			p.refineTile(tile, viewerLocal, frustum, heightUnderViewer, minHeight, maxHeight)
		}
		// Barrier between levels: the output buffer becomes next input.
		p.ping, p.pong = p.pong, p.ping
	}

	// Tiles still pending when the iteration budget runs out are kept
	// as-is rather than dropped.
	for _, tile := range p.ping {
		p.emit(tile, viewerLocal, heightUnderViewer)
	}

	return p.final
}

func (p *Prepass) refineTile(tile TileCoordinate, viewerLocal mgl64.Vec3, frustum Frustum, heightUnderViewer, minHeight, maxHeight float32) {
	center, radius := p.tileBounds(tile, minHeight, maxHeight)
	if !frustum.ContainsSphere(center, radius) {
		p.stats.Culled++
		return
	}
	if p.beyondHorizon(center, radius, viewerLocal) {
		p.stats.Culled++
		return
	}

	distance := center.Sub(viewerLocal).Len()
	size := p.tileSizeLocal(tile.LOD)

	// Strict greater-than: a tile exactly at the threshold stays at the
	// coarser LOD, so subpixel camera motion cannot flip it back and
	// forth.
	if float64(p.config.ViewDistance)*size > distance {
		p.stats.Refined++
		for _, child := range tile.Children() {
			p.pong = append(p.pong, child)
		}
		return
	}

	p.emit(tile, viewerLocal, heightUnderViewer)
}

func (p *Prepass) emit(tile TileCoordinate, viewerLocal mgl64.Vec3, heightUnderViewer float32) {
	distance := p.tileCenterLocal(tile, heightUnderViewer).Sub(viewerLocal).Len()

	p.final = append(p.final, RenderTile{
		Coordinate: tile,
		Morph:      bandRatio(distance, float64(p.config.MorphDistance)*p.tileSizeLocal(tile.LOD)),
		Blend:      bandRatio(distance, float64(p.config.BlendDistance)*p.tileSizeLocal(tile.LOD)),
	})
	p.stats.Kept++
}

// bandRatio maps a viewer distance into [0,1] across the band ending at
// end, starting at morphStartRatio*end. Monotonic in the distance.
func bandRatio(distance, end float64) float32 {
	start := morphStartRatio * end
	if end <= start {
		return 1
	}
	ratio := (distance - start) / (end - start)
	return float32(math.Min(math.Max(ratio, 0), 1))
}

// beyondHorizon culls tiles on the far side of a planetary terrain: a
// tile is invisible when every point of its bounding sphere lies past the
// horizon circle seen from the viewer. Frustum planes cannot catch these
// tiles because the planet itself occludes them.
func (p *Prepass) beyondHorizon(center mgl64.Vec3, radius float64, viewerLocal mgl64.Vec3) bool {
	if !p.shape.Spherical() {
		return false
	}

	scale := p.shape.Scale()
	viewerDistance := viewerLocal.Len()
	if viewerDistance <= scale {
		return false
	}

	horizon := math.Acos(scale / viewerDistance)
	angle := math.Acos(min(max(
		center.Normalize().Dot(viewerLocal.Mul(1/viewerDistance)), -1), 1))
	angularRadius := radius / scale

	return angle-angularRadius > horizon
}

// tileBounds approximates the bounding sphere of a tile from the shape and
// the terrain height range.
func (p *Prepass) tileBounds(tile TileCoordinate, minHeight, maxHeight float32) (mgl64.Vec3, float64) {
	midHeight := float64(minHeight+maxHeight) / 2
	center := p.tileCenterLocal(tile, float32(midHeight))

	size := p.tileSizeLocal(tile.LOD)
	// Diagonal half-extent plus the height spread. The cube-to-sphere
	// warp keeps tile sizes within a small factor of the nominal size, so
	// the extra diagonal slack covers the distortion.
	radius := size*math.Sqrt2 + float64(maxHeight-minHeight)/2
	return center, radius
}

func (p *Prepass) tileCenterLocal(tile TileCoordinate, height float32) mgl64.Vec3 {
	unit := tile.Coordinate().LocalPosition(p.shape.Spherical())
	return p.shape.PositionUnitToLocal(unit, float64(height))
}

func (p *Prepass) tileSizeLocal(lod uint32) float64 {
	return 2 * p.shape.Scale() / float64(TileCount(lod))
}
