package tundra

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"
)

// SurfaceApproximation is a second-order Taylor expansion of the face's
// UV-to-local-position map around the point below the viewer. The GPU
// evaluates it instead of the exact cube-to-sphere map: at planetary
// scale the exact map collapses under float32, while the expansion stays
// accurate because it is built in float64 and expressed relative to the
// viewer (the floating origin).
type SurfaceApproximation struct {
	// OriginUV is the expansion point on the face.
	OriginUV mgl32.Vec2
	// Position is the surface position at OriginUV relative to the
	// viewer.
	Position mgl32.Vec3
	// DU, DV are the first derivatives of the surface with respect to UV.
	DU, DV mgl32.Vec3
	// DUU, DUV, DVV are the second derivatives.
	DUU, DUV, DVV mgl32.Vec3
}

// approximationStep is the finite-difference step in UV space. Small
// enough for accuracy, large enough to stay clear of float64 cancellation
// at planetary magnitudes.
const approximationStep = 1e-5

// ApproximateSurface expands the surface map of one face around the
// viewer's footprint on that face. All arithmetic is double precision;
// only the final viewer-relative values drop to float32.
func ApproximateSurface(shape TerrainShape, face uint8, viewerLocal mgl64.Vec3) SurfaceApproximation {
	unit := shape.PositionLocalToUnit(viewerLocal)
	coordinate := CoordinateFromLocalPosition(unit, shape.Spherical()).
		ProjectToFace(face, shape.Spherical())

	surface := func(u, v float64) mgl64.Vec3 {
		c := Coordinate{Face: face, UV: mgl64.Vec2{u, v}}
		return shape.PositionUnitToLocal(c.LocalPosition(shape.Spherical()), 0)
	}

	u := coordinate.UV[0]
	v := coordinate.UV[1]
	h := approximationStep

	p := surface(u, v)
	pu0 := surface(u-h, v)
	pu1 := surface(u+h, v)
	pv0 := surface(u, v-h)
	pv1 := surface(u, v+h)
	puv := surface(u+h, v+h)

	du := pu1.Sub(pu0).Mul(1 / (2 * h))
	dv := pv1.Sub(pv0).Mul(1 / (2 * h))

	duu := pu1.Add(pu0).Sub(p.Mul(2)).Mul(1 / (h * h))
	dvv := pv1.Add(pv0).Sub(p.Mul(2)).Mul(1 / (h * h))
	duv := puv.Sub(pu1).Sub(pv1).Add(p).Mul(1 / (h * h))

	return SurfaceApproximation{
		OriginUV: mgl32.Vec2{float32(u), float32(v)},
		Position: vec3To32(p.Sub(viewerLocal)),
		DU:       vec3To32(du),
		DV:       vec3To32(dv),
		DUU:      vec3To32(duu),
		DUV:      vec3To32(duv),
		DVV:      vec3To32(dvv),
	}
}

// Evaluate returns the approximated viewer-relative surface position at
// the given face UV.
func (a *SurfaceApproximation) Evaluate(uv mgl32.Vec2) mgl32.Vec3 {
	du := uv[0] - a.OriginUV[0]
	dv := uv[1] - a.OriginUV[1]

	p := a.Position
	p = p.Add(a.DU.Mul(du)).Add(a.DV.Mul(dv))
	p = p.Add(a.DUU.Mul(0.5 * du * du))
	p = p.Add(a.DUV.Mul(du * dv))
	p = p.Add(a.DVV.Mul(0.5 * dv * dv))
	return p
}

func vec3To32(v mgl64.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{float32(v[0]), float32(v[1]), float32(v[2])}
}
