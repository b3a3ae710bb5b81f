package tundra

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Point-on-spheroid projection, adapted from
// https://www.geometrictools.com/Documentation/DistancePointEllipseEllipsoid.pdf

// projectPointSpheroid returns the closest point on the spheroid surface to
// the given local position. The spheroid is an ellipsoid of revolution, so
// the 3D problem reduces to a 2D point-on-ellipse projection in the plane
// spanned by the rotation axis and the position.
func projectPointSpheroid(majorAxis, minorAxis float64, p mgl64.Vec3) mgl64.Vec3 {
	ellipse := mgl64.Vec2{majorAxis, minorAxis}
	axis := mgl64.Vec2{p[0], p[2]}
	axisLen := axis.Len()

	input := mgl64.Vec2{axisLen, p[1]}
	onEllipse := projectPointEllipse(ellipse, input)

	if axisLen == 0 {
		// On the rotation axis every horizontal direction is equally
		// close; pick +X.
		return mgl64.Vec3{onEllipse[0], onEllipse[1], 0}
	}

	axis = axis.Mul(onEllipse[0] / axisLen)
	return mgl64.Vec3{axis[0], onEllipse[1], axis[1]}
}

// projectPointEllipse returns the closest point on the ellipse with
// half-axes e to the 2D point p.
func projectPointEllipse(e, p mgl64.Vec2) mgl64.Vec2 {
	sign := mgl64.Vec2{math.Copysign(1, p[0]), math.Copysign(1, p[1])}
	p = mgl64.Vec2{math.Abs(p[0]), math.Abs(p[1])}

	var result mgl64.Vec2
	switch {
	case p[0] == 0:
		result = mgl64.Vec2{0, e[1]}
	case p[1] == 0:
		n := e[0] * p[0]
		d := e[0]*e[0] - e[1]*e[1]
		if n < d {
			f := n / d
			result = mgl64.Vec2{e[0] * f, e[1] * math.Sqrt(1-f*f)}
		} else {
			result = mgl64.Vec2{e[0], 0}
		}
	default:
		z := mgl64.Vec2{p[0] / e[0], p[1] / e[1]}
		g := z.LenSqr() - 1

		if g != 0 {
			r := mgl64.Vec2{(e[0] * e[0]) / (e[1] * e[1]), 1}
			root := findEllipseRoot(r, z, g)
			result = mgl64.Vec2{
				p[0] * r[0] / (root + r[0]),
				p[1] * r[1] / (root + r[1]),
			}
		} else {
			result = p
		}
	}

	return mgl64.Vec2{sign[0] * result[0], sign[1] * result[1]}
}

// findEllipseRoot bisects for the root of the characteristic function of
// the point-on-ellipse problem. Terminates once the bracket collapses to
// adjacent floats, which happens after at most ~1074 halvings.
func findEllipseRoot(r, z mgl64.Vec2, g float64) float64 {
	n := mgl64.Vec2{r[0] * z[0], r[1] * z[1]}

	s0 := z[1] - 1
	s1 := 0.0
	if g >= 0 {
		s1 = n.Len() - 1
	}

	for {
		s := (s0 + s1) / 2
		if s == s0 || s == s1 {
			return s
		}

		ratio := mgl64.Vec2{n[0] / (s + r[0]), n[1] / (s + r[1])}
		g := ratio.LenSqr() - 1

		switch {
		case g < 0:
			s1 = s
		case g > 0:
			s0 = s
		default:
			return s
		}
	}
}
