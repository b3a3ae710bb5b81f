package tundra

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"
)

func TestApproximateSurface_MatchesExactNearOrigin(t *testing.T) {
	radius := 6371000.0
	shape := SphereShape{Radius: radius}
	viewer := mgl64.Vec3{radius + 1000, 0, 0}

	approximation := ApproximateSurface(shape, 3, viewer)

	exact := func(u, v float64) mgl64.Vec3 {
		c := Coordinate{Face: 3, UV: mgl64.Vec2{u, v}}
		return shape.PositionUnitToLocal(c.LocalPosition(true), 0)
	}

	origin := mgl64.Vec2{float64(approximation.OriginUV[0]), float64(approximation.OriginUV[1])}

	// Within a few kilometers of the viewer the second-order expansion
	// must track the exact surface to sub-meter error.
	for _, offset := range [][2]float64{{0, 0}, {1e-4, 0}, {0, -1e-4}, {5e-5, 5e-5}, {-2e-4, 1e-4}} {
		u := origin[0] + offset[0]
		v := origin[1] + offset[1]

		got := approximation.Evaluate(mgl32.Vec2{float32(u), float32(v)})
		want := exact(u, v).Sub(viewer)

		delta := mgl64.Vec3{
			float64(got[0]) - want[0],
			float64(got[1]) - want[1],
			float64(got[2]) - want[2],
		}.Len()
		if delta > 1 {
			t.Errorf("offset %v: approximation off by %g m", offset, delta)
		}
	}
}

func TestApproximateSurface_OriginUnderViewer(t *testing.T) {
	radius := 1000.0
	shape := SphereShape{Radius: radius}
	viewer := mgl64.Vec3{0, 0, 3 * radius}

	// Face 1 (+Z) is under the viewer; the expansion origin must be its
	// center and the relative position points back at the planet.
	approximation := ApproximateSurface(shape, 1, viewer)

	if approximation.OriginUV[0] != 0.5 || approximation.OriginUV[1] != 0.5 {
		t.Errorf("origin uv = %v", approximation.OriginUV)
	}
	if approximation.Position[2] != float32(radius-3*radius) {
		t.Errorf("relative position = %v", approximation.Position)
	}
}

func TestApproximateSurface_PlanarIsExact(t *testing.T) {
	shape := PlaneShape{SideLength: 1000}
	viewer := mgl64.Vec3{100, 50, -100}

	approximation := ApproximateSurface(shape, 0, viewer)

	// A plane has no curvature: second derivatives vanish up to the
	// finite-difference noise floor.
	for _, d := range []mgl32.Vec3{approximation.DUU, approximation.DUV, approximation.DVV} {
		if d.Len() > 0.1 {
			t.Errorf("planar second derivative = %v", d)
		}
	}

	// First derivatives span the plane: x = sideLength/2*(2u-1), so
	// d(position.x)/du = sideLength.
	if delta := approximation.DU[0] - 1000; delta > 1 || delta < -1 {
		t.Errorf("du = %v", approximation.DU)
	}
}
