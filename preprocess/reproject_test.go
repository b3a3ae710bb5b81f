package preprocess

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/phanxgames/tundra"
)

func TestReproject_GlobalSourceCoversAllFaces(t *testing.T) {
	source := NewSourceDataset(64, 64, [6]float64{
		360.0 / 64, 0, 0, -180.0 / 64, -180, 90,
	}, math.NaN(), make([]float64, 64*64))

	coverages := Reproject(tundra.SphereShape{Radius: 1}, source, 2)
	if len(coverages) != 6 {
		t.Fatalf("global source covers %d faces, want 6", len(coverages))
	}

	for _, coverage := range coverages {
		tiles := coverage.Tiles()
		if len(tiles) != 16 {
			t.Errorf("face %d coverage = %d tiles, want 16", coverage.Face, len(tiles))
		}
	}
}

func TestReproject_RegionalSourceIsSparse(t *testing.T) {
	// A 10x10 degree region around (0E, 0N): only the faces containing
	// that patch of the equator are touched.
	source := NewSourceDataset(64, 64, [6]float64{
		10.0 / 64, 0, 0, -10.0 / 64, -5, 5,
	}, math.NaN(), make([]float64, 64*64))

	coverages := Reproject(tundra.SphereShape{Radius: 1}, source, 3)
	if len(coverages) == 0 {
		t.Fatal("regional source covers nothing")
	}
	if len(coverages) == 6 {
		t.Error("regional source claims the whole planet")
	}

	total := 0
	for _, coverage := range coverages {
		total += len(coverage.Tiles())
	}
	// At lod 3 a face has 64 tiles; a 10 degree patch is a few of them.
	if total == 0 || total > 32 {
		t.Errorf("regional coverage = %d tiles", total)
	}
}

func TestReproject_PlanarSingleFace(t *testing.T) {
	source := NewSourceDataset(32, 32, [6]float64{1, 0, 0, -1, 0, 32}, math.NaN(), make([]float64, 32*32))

	coverages := Reproject(tundra.PlaneShape{SideLength: 100}, source, 1)
	if len(coverages) != 1 {
		t.Fatalf("planar coverage = %d faces", len(coverages))
	}
	if coverages[0].Face != 0 || len(coverages[0].Tiles()) != 4 {
		t.Errorf("planar coverage = face %d, %d tiles",
			coverages[0].Face, len(coverages[0].Tiles()))
	}
}

func TestWarp_SphericalLonLat(t *testing.T) {
	source := NewSourceDataset(4, 4, [6]float64{90, 0, 0, -90, -180, 90}, math.NaN(), make([]float64, 16))
	w := newWarp(tundra.SphereShape{Radius: 1}, source.Bound())

	// Face 3 center is the +X axis: lon 0, lat 0.
	lon, lat := w(tundra.Coordinate{Face: 3, UV: mgl64.Vec2{0.5, 0.5}})
	if math.Abs(lon) > 1e-9 || math.Abs(lat) > 1e-9 {
		t.Errorf("face 3 center = (%g, %g), want (0, 0)", lon, lat)
	}

	// Face 2 center is the north pole.
	_, lat = w(tundra.Coordinate{Face: 2, UV: mgl64.Vec2{0.5, 0.5}})
	if math.Abs(lat-90) > 1e-9 {
		t.Errorf("face 2 center lat = %g, want 90", lat)
	}

	// Face 5 center is the south pole.
	_, lat = w(tundra.Coordinate{Face: 5, UV: mgl64.Vec2{0.5, 0.5}})
	if math.Abs(lat+90) > 1e-9 {
		t.Errorf("face 5 center lat = %g, want -90", lat)
	}
}
