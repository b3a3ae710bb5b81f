package tundra

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Coordinate is a continuous position on one face of the terrain, with UV
// components in [0,1]. For spherical terrains the UV space is warped so
// that tiles cover comparable surface areas; see cubeToSphere.
type Coordinate struct {
	Face uint8
	UV   mgl64.Vec2
}

// cubeToSphere warps a raw cube coordinate in [-1,1] into the equalized
// face coordinate in [0,1]. The arctan warp counteracts the area distortion
// of the gnomonic projection near the face corners.
func cubeToSphere(uv mgl64.Vec2) mgl64.Vec2 {
	return mgl64.Vec2{
		math.Atan(uv[0])/(math.Pi/4)/2 + 0.5,
		math.Atan(uv[1])/(math.Pi/4)/2 + 0.5,
	}
}

// sphereToCube is the inverse of cubeToSphere: face coordinate in [0,1] to
// raw cube coordinate in [-1,1].
func sphereToCube(st mgl64.Vec2) mgl64.Vec2 {
	return mgl64.Vec2{
		math.Tan((st[0]*2 - 1) * (math.Pi / 4)),
		math.Tan((st[1]*2 - 1) * (math.Pi / 4)),
	}
}

// CoordinateFromLocalPosition computes the face coordinate of a unit-space
// position. For spherical terrains the position is projected onto the cube
// face with the dominant axis; planar terrains map the unit square directly.
func CoordinateFromLocalPosition(localPosition mgl64.Vec3, spherical bool) Coordinate {
	if !spherical {
		return Coordinate{
			Face: 0,
			UV: mgl64.Vec2{
				0.5*localPosition[0] + 0.5,
				0.5*localPosition[2] + 0.5,
			},
		}
	}

	normal := localPosition.Normalize()
	abs := mgl64.Vec3{math.Abs(normal[0]), math.Abs(normal[1]), math.Abs(normal[2])}

	var face uint8
	var uv mgl64.Vec2

	switch {
	case abs[0] > abs[1] && abs[0] > abs[2]:
		if normal[0] < 0 {
			face = 0
			uv = mgl64.Vec2{-normal[2] / normal[0], normal[1] / normal[0]}
		} else {
			face = 3
			uv = mgl64.Vec2{-normal[1] / normal[0], normal[2] / normal[0]}
		}
	case abs[2] > abs[1]:
		if normal[2] > 0 {
			face = 1
			uv = mgl64.Vec2{normal[0] / normal[2], -normal[1] / normal[2]}
		} else {
			face = 4
			uv = mgl64.Vec2{normal[1] / normal[2], -normal[0] / normal[2]}
		}
	default:
		if normal[1] > 0 {
			face = 2
			uv = mgl64.Vec2{normal[0] / normal[1], normal[2] / normal[1]}
		} else {
			face = 5
			uv = mgl64.Vec2{-normal[2] / normal[1], -normal[0] / normal[1]}
		}
	}

	return Coordinate{Face: face, UV: cubeToSphere(uv)}
}

// LocalPosition returns the unit-space position of the coordinate: a point
// on the unit sphere for spherical terrains, a point on the unit plane
// otherwise.
func (c Coordinate) LocalPosition(spherical bool) mgl64.Vec3 {
	if !spherical {
		return mgl64.Vec3{2*c.UV[0] - 1, 0, 2*c.UV[1] - 1}
	}

	uv := sphereToCube(c.UV)

	var position mgl64.Vec3
	switch c.Face {
	case 0:
		position = mgl64.Vec3{-1, -uv[1], uv[0]}
	case 1:
		position = mgl64.Vec3{uv[0], -uv[1], 1}
	case 2:
		position = mgl64.Vec3{uv[0], 1, uv[1]}
	case 3:
		position = mgl64.Vec3{1, -uv[0], uv[1]}
	case 4:
		position = mgl64.Vec3{uv[1], -uv[0], -1}
	default:
		position = mgl64.Vec3{uv[1], -1, uv[0]}
	}

	return position.Normalize()
}

// ProjectToFace snaps the coordinate to the closest location on the
// requested face. Coordinates already on that face are returned unchanged.
func (c Coordinate) ProjectToFace(face uint8, spherical bool) Coordinate {
	if !spherical || face == c.Face {
		return Coordinate{Face: face, UV: c.UV}
	}

	info := projectToFace(c.Face, face)

	pick := func(p faceProjection) float64 {
		switch p {
		case fixed0:
			return 0
		case fixed1:
			return 1
		case positiveU:
			return c.UV[0]
		default:
			return c.UV[1]
		}
	}

	return Coordinate{Face: face, UV: mgl64.Vec2{pick(info[0]), pick(info[1])}}
}

// TilePosition returns the continuous tile-space position of the coordinate
// at the given LOD, clamped onto the face.
func (c Coordinate) TilePosition(lod uint32) mgl64.Vec2 {
	n := float64(TileCount(lod))
	limit := n - 0.00001

	return mgl64.Vec2{
		min(max(c.UV[0]*n, 0), limit),
		min(max(c.UV[1]*n, 0), limit),
	}
}

// TileCoordinate returns the tile containing the coordinate at the given LOD.
func (c Coordinate) TileCoordinate(lod uint32) TileCoordinate {
	position := c.TilePosition(lod)
	return TileCoordinate{
		Face: c.Face,
		LOD:  lod,
		X:    int32(position[0]),
		Y:    int32(position[1]),
	}
}
