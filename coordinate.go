package tundra

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// TileCoordinate identifies a single tile of the sparse tile hierarchy.
// LOD 0 is the coarsest level with one tile per face; each finer LOD
// doubles the tile count along both axes.
type TileCoordinate struct {
	// Face is the cube face the tile is located on (0 for planar terrains).
	Face uint8
	// LOD is the level of detail of the tile.
	LOD uint32
	// X and Y are the position of the tile within its face, in tile sizes.
	X, Y int32
}

// InvalidTileCoordinate marks a neighbour lookup that left the terrain
// (planar terrains only; on the cube sphere every edge crossing resolves
// to a tile on an adjacent face).
var InvalidTileCoordinate = TileCoordinate{
	Face: 0xFF,
	LOD:  math.MaxUint32,
	X:    -1,
	Y:    -1,
}

// NewTileCoordinate creates a tile coordinate.
func NewTileCoordinate(face uint8, lod uint32, x, y int32) TileCoordinate {
	return TileCoordinate{Face: face, LOD: lod, X: x, Y: y}
}

// TileCount returns the number of tiles along one axis of a face at the
// given LOD.
func TileCount(lod uint32) int32 {
	return 1 << lod
}

// Valid reports whether the coordinate lies on its face.
func (c TileCoordinate) Valid() bool {
	n := TileCount(c.LOD)
	return c.Face < 6 && c.X >= 0 && c.Y >= 0 && c.X < n && c.Y < n
}

// Parent returns the coordinate of the tile covering c at the next coarser
// LOD. Calling Parent on an LOD 0 tile is invalid.
func (c TileCoordinate) Parent() TileCoordinate {
	return TileCoordinate{
		Face: c.Face,
		LOD:  c.LOD - 1,
		X:    c.X >> 1,
		Y:    c.Y >> 1,
	}
}

// Children returns the four tiles covering c at the next finer LOD.
func (c TileCoordinate) Children() [4]TileCoordinate {
	var children [4]TileCoordinate
	for i := int32(0); i < 4; i++ {
		children[i] = TileCoordinate{
			Face: c.Face,
			LOD:  c.LOD + 1,
			X:    c.X<<1 + i%2,
			Y:    c.Y<<1 + i/2,
		}
	}
	return children
}

// neighbourOffsets lists the four edge neighbours followed by the four
// corner neighbours.
var neighbourOffsets = [8][2]int32{
	{0, -1}, {1, 0}, {0, 1}, {-1, 0},
	{-1, -1}, {1, -1}, {1, 1}, {-1, 1},
}

// Neighbours returns the eight tiles surrounding c. Neighbours that cross a
// face edge are re-projected onto the adjacent face. On the cube sphere a
// corner offset has no tile of its own (only three faces meet at a cube
// corner) and resolves to the tile reached through the horizontal edge.
// Planar terrains report off-face neighbours as InvalidTileCoordinate.
func (c TileCoordinate) Neighbours(spherical bool) [8]TileCoordinate {
	var neighbours [8]TileCoordinate
	for i, offset := range neighbourOffsets {
		neighbours[i] = c.neighbourCoordinate(c.X+offset[0], c.Y+offset[1], spherical)
	}
	return neighbours
}

// neighbouringFaces maps a face and an edge index to the adjacent face.
// Edge indices: 0 = on-face, 1 = x<0, 2 = y<0, 3 = x>=n, 4 = y>=n.
var neighbouringFaces = [6][5]uint8{
	{0, 4, 2, 1, 5},
	{1, 0, 2, 3, 5},
	{2, 0, 4, 3, 1},
	{3, 2, 4, 5, 1},
	{4, 2, 0, 5, 3},
	{5, 4, 0, 1, 3},
}

func (c TileCoordinate) neighbourCoordinate(x, y int32, spherical bool) TileCoordinate {
	n := TileCount(c.LOD)

	if !spherical {
		if x < 0 || y < 0 || x >= n || y >= n {
			return InvalidTileCoordinate
		}
		return TileCoordinate{Face: c.Face, LOD: c.LOD, X: x, Y: y}
	}

	var edge int
	switch {
	case x < 0 && y < 0, x < 0 && y >= n, x >= n && y < 0, x >= n && y >= n:
		// Cube corner: resolve through the horizontal edge.
		edge = 1
		if x >= n {
			edge = 3
		}
	case x < 0:
		edge = 1
	case y < 0:
		edge = 2
	case x >= n:
		edge = 3
	case y >= n:
		edge = 4
	default:
		return TileCoordinate{Face: c.Face, LOD: c.LOD, X: x, Y: y}
	}

	x = min(max(x, 0), n-1)
	y = min(max(y, 0), n-1)

	face := neighbouringFaces[c.Face][edge]
	info := projectToFace(c.Face, face)

	pick := func(s faceProjection) int32 {
		switch s {
		case fixed0:
			return 0
		case fixed1:
			return n - 1
		case positiveU:
			return x
		default:
			return y
		}
	}

	return TileCoordinate{
		Face: face,
		LOD:  c.LOD,
		X:    pick(info[0]),
		Y:    pick(info[1]),
	}
}

// Coordinate returns the continuous face coordinate of the tile center.
func (c TileCoordinate) Coordinate() Coordinate {
	n := float64(TileCount(c.LOD))
	return Coordinate{
		Face: c.Face,
		UV: mgl64.Vec2{
			(float64(c.X) + 0.5) / n,
			(float64(c.Y) + 0.5) / n,
		},
	}
}

// Path returns the on-disk location of the tile below the given attachment
// directory.
func (c TileCoordinate) Path(dir, extension string) string {
	return fmt.Sprintf("%s/%s.%s", dir, c, extension)
}

// String formats the coordinate the way tile files are named on disk.
func (c TileCoordinate) String() string {
	return fmt.Sprintf("%d_%d_%d_%d", c.Face, c.LOD, c.X, c.Y)
}

// ParseTileCoordinate parses the on-disk tile name format produced by
// String, without the extension.
func ParseTileCoordinate(name string) (TileCoordinate, error) {
	var c TileCoordinate
	n, err := fmt.Sscanf(name, "%d_%d_%d_%d", &c.Face, &c.LOD, &c.X, &c.Y)
	if err != nil || n != 4 {
		return TileCoordinate{}, fmt.Errorf("tundra: invalid tile name %q", name)
	}
	return c, nil
}

// faceProjection describes how one axis of a face maps onto a neighbouring
// face: pinned to an edge, or following one of the source axes.
type faceProjection uint8

const (
	fixed0 faceProjection = iota
	fixed1
	positiveU
	positiveV
)

// evenProjections and oddProjections encode the cube-face adjacency. The
// mapping between two faces depends only on their index difference mod 6
// and the parity of the source face.
var evenProjections = [6][2]faceProjection{
	{positiveU, positiveV},
	{fixed0, positiveV},
	{fixed0, positiveU},
	{positiveU, positiveV}, // opposite face, never adjacent
	{positiveV, fixed0},
	{positiveU, fixed0},
}

var oddProjections = [6][2]faceProjection{
	{positiveU, positiveV},
	{positiveU, fixed1},
	{positiveV, fixed1},
	{positiveU, positiveV}, // opposite face, never adjacent
	{fixed1, positiveU},
	{fixed1, positiveV},
}

// projectToFace returns the axis mapping used to project coordinates from
// one face onto another.
func projectToFace(face, other uint8) [2]faceProjection {
	index := (6 + other - face) % 6
	if face%2 == 0 {
		return evenProjections[index]
	}
	return oddProjections[index]
}
