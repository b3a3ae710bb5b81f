package tundra

import (
	"github.com/go-gl/mathgl/mgl64"
)

// TerrainShape describes the reference surface of a terrain: a flat square
// plane, a sphere, or an oblate spheroid (for planetary terrains).
type TerrainShape interface {
	// FaceCount is 1 for planar terrains and 6 for cube-sphere terrains.
	FaceCount() uint32
	// Spherical reports whether the terrain wraps a sphere or spheroid.
	Spherical() bool
	// Scale is the characteristic radius of the terrain, used to scale
	// view distances.
	Scale() float64
	// LocalFromUnit is the diagonal matrix scaling unit space into local
	// terrain space.
	LocalFromUnit() mgl64.Mat3
	// PositionLocalToUnit normalizes a local position onto the unit
	// surface (unit sphere, or the plane's unit square).
	PositionLocalToUnit(localPosition mgl64.Vec3) mgl64.Vec3
	// PositionUnitToLocal places a unit-surface position into local space,
	// offset by height along the surface normal.
	PositionUnitToLocal(unitPosition mgl64.Vec3, height float64) mgl64.Vec3
}

// PlaneShape is a flat square terrain.
type PlaneShape struct {
	// SideLength is the extent of the terrain along both horizontal axes.
	SideLength float64
}

// SphereShape is a perfectly round planetary terrain.
type SphereShape struct {
	Radius float64
}

// SpheroidShape is an ellipsoid of revolution around the local Y axis.
type SpheroidShape struct {
	MajorAxis float64
	MinorAxis float64
}

// WGS84 is the standard Earth reference ellipsoid.
var WGS84 = SpheroidShape{
	MajorAxis: 6378137.0,
	MinorAxis: 6356752.314245,
}

func (s PlaneShape) FaceCount() uint32 { return 1 }
func (s PlaneShape) Spherical() bool   { return false }
func (s PlaneShape) Scale() float64    { return s.SideLength / 2 }

func (s PlaneShape) diagonal() mgl64.Vec3 {
	return mgl64.Vec3{s.SideLength / 2, 1, s.SideLength / 2}
}

func (s PlaneShape) LocalFromUnit() mgl64.Mat3 {
	return diagonalMat3(s.diagonal())
}

func (s PlaneShape) PositionLocalToUnit(localPosition mgl64.Vec3) mgl64.Vec3 {
	unit := s.LocalFromUnit().Inv().Mul3x1(localPosition)
	return mgl64.Vec3{unit[0], 0, unit[2]}
}

func (s PlaneShape) PositionUnitToLocal(unitPosition mgl64.Vec3, height float64) mgl64.Vec3 {
	return positionUnitToLocal(s, unitPosition, height)
}

func (s SphereShape) FaceCount() uint32 { return 6 }
func (s SphereShape) Spherical() bool   { return true }
func (s SphereShape) Scale() float64    { return s.Radius }

func (s SphereShape) LocalFromUnit() mgl64.Mat3 {
	return diagonalMat3(mgl64.Vec3{s.Radius, s.Radius, s.Radius})
}

func (s SphereShape) PositionLocalToUnit(localPosition mgl64.Vec3) mgl64.Vec3 {
	return s.LocalFromUnit().Inv().Mul3x1(localPosition).Normalize()
}

func (s SphereShape) PositionUnitToLocal(unitPosition mgl64.Vec3, height float64) mgl64.Vec3 {
	return positionUnitToLocal(s, unitPosition, height)
}

func (s SpheroidShape) FaceCount() uint32 { return 6 }
func (s SpheroidShape) Spherical() bool   { return true }

// Scale averages the two axes. Using the major axis would be more
// conservative for view-distance scaling.
func (s SpheroidShape) Scale() float64 {
	return (s.MajorAxis + s.MinorAxis) / 2
}

func (s SpheroidShape) LocalFromUnit() mgl64.Mat3 {
	return diagonalMat3(mgl64.Vec3{s.MajorAxis, s.MinorAxis, s.MajorAxis})
}

// PositionLocalToUnit first projects the position onto the spheroid
// surface, then normalizes the surface point through the inverse shape
// scaling. A plain normalize would pick the wrong surface point for
// positions off the spheroid.
func (s SpheroidShape) PositionLocalToUnit(localPosition mgl64.Vec3) mgl64.Vec3 {
	surface := projectPointSpheroid(s.MajorAxis, s.MinorAxis, localPosition)
	return s.LocalFromUnit().Inv().Mul3x1(surface).Normalize()
}

func (s SpheroidShape) PositionUnitToLocal(unitPosition mgl64.Vec3, height float64) mgl64.Vec3 {
	return positionUnitToLocal(s, unitPosition, height)
}

// positionUnitToLocal is the shared unit-to-local path: scale the unit
// position into local space and offset along the local surface normal.
func positionUnitToLocal(shape TerrainShape, unitPosition mgl64.Vec3, height float64) mgl64.Vec3 {
	localFromUnit := shape.LocalFromUnit()
	localPosition := localFromUnit.Mul3x1(unitPosition)

	normalSource := unitPosition
	if !shape.Spherical() {
		normalSource = mgl64.Vec3{0, 1, 0}
	}
	localNormal := localFromUnit.Mul3x1(normalSource).Normalize()

	return localPosition.Add(localNormal.Mul(height))
}

func diagonalMat3(d mgl64.Vec3) mgl64.Mat3 {
	return mgl64.Diag3(d)
}
