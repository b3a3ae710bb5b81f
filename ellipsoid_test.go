package tundra

import (
	"math"
	"math/rand"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

// spheroidSurfacePoint returns the WGS84 surface point at the given
// geodetic-ish parameter angles (good enough for sampling the surface).
func spheroidSurfacePoint(theta, phi float64) mgl64.Vec3 {
	return mgl64.Vec3{
		WGS84.MajorAxis * math.Cos(phi) * math.Cos(theta),
		WGS84.MinorAxis * math.Sin(phi),
		WGS84.MajorAxis * math.Cos(phi) * math.Sin(theta),
	}
}

func onSpheroid(p mgl64.Vec3) float64 {
	a := WGS84.MajorAxis
	b := WGS84.MinorAxis
	return (p[0]*p[0]+p[2]*p[2])/(a*a) + p[1]*p[1]/(b*b)
}

func TestProjectPointSpheroid_Idempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 2000; i++ {
		theta := rng.Float64() * 2 * math.Pi
		phi := (rng.Float64() - 0.5) * math.Pi
		p := spheroidSurfacePoint(theta, phi)

		projected := projectPointSpheroid(WGS84.MajorAxis, WGS84.MinorAxis, p)
		if delta := projected.Sub(p).Len(); delta > 1e-6 {
			t.Fatalf("projection moved surface point by %g m at theta=%g phi=%g", delta, theta, phi)
		}
	}
}

func TestProjectPointSpheroid_LandsOnSurface(t *testing.T) {
	rng := rand.New(rand.NewSource(8))

	for i := 0; i < 2000; i++ {
		p := mgl64.Vec3{
			rng.NormFloat64() * 1e7,
			rng.NormFloat64() * 1e7,
			rng.NormFloat64() * 1e7,
		}
		if p.Len() < 1e3 {
			continue
		}

		projected := projectPointSpheroid(WGS84.MajorAxis, WGS84.MinorAxis, p)
		if implicit := onSpheroid(projected); math.Abs(implicit-1) > 1e-9 {
			t.Fatalf("projection of %v off surface: %g", p, implicit)
		}
	}
}

func TestProjectPointSpheroid_Axis(t *testing.T) {
	// Points on the rotation axis project to the poles.
	p := projectPointSpheroid(WGS84.MajorAxis, WGS84.MinorAxis, mgl64.Vec3{0, 1e7, 0})
	if math.Abs(p[1]-WGS84.MinorAxis) > 1e-6 || math.Abs(p[0]) > WGS84.MajorAxis {
		t.Errorf("axis projection = %v", p)
	}

	// Points in the equatorial plane stay in it.
	q := projectPointSpheroid(WGS84.MajorAxis, WGS84.MinorAxis, mgl64.Vec3{1e7, 0, 1e7})
	if math.Abs(q[1]) > 1e-6 {
		t.Errorf("equatorial projection left the plane: %v", q)
	}
	if math.Abs(math.Hypot(q[0], q[2])-WGS84.MajorAxis) > 1e-6 {
		t.Errorf("equatorial projection radius = %g", math.Hypot(q[0], q[2]))
	}
}

func TestSpheroidShape_LocalToUnit(t *testing.T) {
	p := spheroidSurfacePoint(1.1, 0.6)
	unit := WGS84.PositionLocalToUnit(p)
	if math.Abs(unit.Len()-1) > 1e-12 {
		t.Errorf("unit position length = %g", unit.Len())
	}

	// Scaling back through the shape must land on the surface point.
	back := WGS84.LocalFromUnit().Mul3x1(unit)
	if delta := back.Sub(p).Len(); delta > 1e-5 {
		t.Errorf("unit roundtrip moved by %g m", delta)
	}
}
