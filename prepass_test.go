package tundra

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func lookFrom(eye, target mgl64.Vec3) (mgl64.Mat4, Frustum) {
	view := mgl64.LookAtV(eye, target, mgl64.Vec3{0, 1, 0})
	projection := mgl64.Perspective(math.Pi/4, 16.0/9.0, 0.1, 1e9)
	vp := projection.Mul4(view)
	return vp, FrustumFromMatrix(vp)
}

func TestFrustum_SphereTests(t *testing.T) {
	_, frustum := lookFrom(mgl64.Vec3{0, 0, 10}, mgl64.Vec3{0, 0, 0})

	if !frustum.ContainsSphere(mgl64.Vec3{0, 0, 0}, 1) {
		t.Error("sphere at the look target culled")
	}
	if frustum.ContainsSphere(mgl64.Vec3{0, 0, 100}, 1) {
		t.Error("sphere behind the camera kept")
	}
	if frustum.ContainsSphere(mgl64.Vec3{1e6, 0, 0}, 1) {
		t.Error("sphere far off axis kept")
	}
	// A sphere whose center is outside but radius overlaps must be kept.
	if !frustum.ContainsSphere(mgl64.Vec3{0, 0, 11}, 5) {
		t.Error("overlapping sphere culled")
	}
}

func testPrepass(shape TerrainShape) (*Prepass, *TerrainViewConfig) {
	config := DefaultTerrainViewConfig()
	return NewPrepass(shape, &config), &config
}

func TestPrepass_PlanarViewerCentered(t *testing.T) {
	shape := PlaneShape{SideLength: 1000}
	prepass, _ := testPrepass(shape)

	eye := mgl64.Vec3{0, 10, 0}
	_, frustum := lookFrom(eye, mgl64.Vec3{100, 0, 100})

	tiles := prepass.Run(eye, frustum, 0, 0, 100)
	if len(tiles) == 0 {
		t.Fatal("empty final tile list")
	}

	stats := prepass.Stats()
	if stats.Refined == 0 {
		t.Error("viewer close to the surface triggered no refinement")
	}

	for _, tile := range tiles {
		if tile.Coordinate.Face != 0 {
			t.Fatalf("planar prepass produced face %d", tile.Coordinate.Face)
		}
		if tile.Morph < 0 || tile.Morph > 1 || tile.Blend < 0 || tile.Blend > 1 {
			t.Fatalf("ratios out of range: %+v", tile)
		}
	}
}

func TestPrepass_SphericalFarSideCulled(t *testing.T) {
	// Viewer at 3R on +X looking at the origin: the -X face (0) is behind
	// the planet and contributes nothing; the +X face (3) contributes.
	radius := 6371000.0
	shape := SphereShape{Radius: radius}
	prepass, _ := testPrepass(shape)

	eye := mgl64.Vec3{3 * radius, 0, 0}
	_, frustum := lookFrom(eye, mgl64.Vec3{0, 0, 0})

	tiles := prepass.Run(eye, frustum, 0, 0, 9000)
	if len(tiles) == 0 {
		t.Fatal("empty final tile list")
	}

	faces := map[uint8]int{}
	for _, tile := range tiles {
		faces[tile.Coordinate.Face]++
	}
	if faces[3] == 0 {
		t.Error("facing side (+X, face 3) contributed no tiles")
	}
	if faces[0] != 0 {
		t.Errorf("far side (-X, face 0) contributed %d tiles", faces[0])
	}
}

func TestPrepass_RefinementRespectsThreshold(t *testing.T) {
	shape := PlaneShape{SideLength: 1000}
	config := DefaultTerrainViewConfig()
	config.RefinementCount = 30
	prepass := NewPrepass(shape, &config)

	// Far viewer: everything stays coarse.
	farEye := mgl64.Vec3{0, 1e7, 0}
	_, farFrustum := lookFrom(farEye, mgl64.Vec3{0, 0, 0})
	farTiles := prepass.Run(farEye, farFrustum, 0, 0, 100)

	var farMax uint32
	for _, tile := range farTiles {
		farMax = max(farMax, tile.Coordinate.LOD)
	}

	// Near viewer: finer tiles appear.
	nearEye := mgl64.Vec3{0, 20, 0}
	_, nearFrustum := lookFrom(nearEye, mgl64.Vec3{100, 0, 100})
	nearTiles := prepass.Run(nearEye, nearFrustum, 0, 0, 100)

	var nearMax uint32
	for _, tile := range nearTiles {
		nearMax = max(nearMax, tile.Coordinate.LOD)
	}

	if nearMax <= farMax {
		t.Errorf("near view max lod %d not finer than far view %d", nearMax, farMax)
	}
}

func TestBandRatio_MorphBoundary(t *testing.T) {
	// A tile exactly at the band end evaluates 1.0...
	if got := bandRatio(100, 100); got != 1 {
		t.Errorf("ratio at band end = %g, want 1", got)
	}
	// ...and the parent tile (double the band) at the same distance
	// evaluates exactly 0.0, so neighbouring LODs agree at the boundary.
	if got := bandRatio(100, 200); got != 0 {
		t.Errorf("parent ratio at child band end = %g, want 0", got)
	}

	// Monotonic in the distance.
	prev := float32(-1)
	for d := 0.0; d <= 300; d += 10 {
		r := bandRatio(d, 200)
		if r < prev {
			t.Fatalf("bandRatio not monotonic at %g", d)
		}
		prev = r
	}
}

func TestBandRatio_Clamped(t *testing.T) {
	if bandRatio(0, 100) != 0 {
		t.Error("ratio below band start not clamped to 0")
	}
	if bandRatio(1e9, 100) != 1 {
		t.Error("ratio beyond band end not clamped to 1")
	}
}
