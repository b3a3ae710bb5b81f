package tundra

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func planarTestTerrain(t *testing.T) *Terrain {
	t.Helper()
	terrain, err := NewTerrain(&TerrainConfig{
		Shape:     PlaneShape{SideLength: 1000},
		Path:      t.TempDir(),
		LODCount:  4,
		MinHeight: 0,
		MaxHeight: 100,
		Attachments: []AttachmentConfig{{
			Label:         AttachmentHeight,
			TextureSize:   516,
			BorderSize:    2,
			MipLevelCount: 1,
			Format:        FormatR16,
		}},
		AtlasSize: 128,
	})
	if err != nil {
		t.Fatalf("NewTerrain: %v", err)
	}
	t.Cleanup(terrain.Dispose)
	return terrain
}

func TestTerrainConfig_ValidationErrors(t *testing.T) {
	base := func() *TerrainConfig {
		return &TerrainConfig{
			Shape:     PlaneShape{SideLength: 1},
			LODCount:  4,
			MaxHeight: 1,
			Attachments: []AttachmentConfig{{
				Label:         AttachmentHeight,
				TextureSize:   8,
				BorderSize:    1,
				MipLevelCount: 1,
				Format:        FormatR16,
			}},
		}
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*TerrainConfig)
	}{
		{"no shape", func(c *TerrainConfig) { c.Shape = nil }},
		{"zero lods", func(c *TerrainConfig) { c.LODCount = 0 }},
		{"absurd lods", func(c *TerrainConfig) { c.LODCount = 40 }},
		{"inverted heights", func(c *TerrainConfig) { c.MinHeight = 2 }},
		{"no attachments", func(c *TerrainConfig) { c.Attachments = nil }},
		{"tile beyond lods", func(c *TerrainConfig) {
			c.Tiles = []TileCoordinate{NewTileCoordinate(0, 9, 0, 0)}
		}},
		{"tile off face", func(c *TerrainConfig) {
			c.Tiles = []TileCoordinate{NewTileCoordinate(0, 1, 5, 0)}
		}},
	}

	for _, tc := range cases {
		config := base()
		tc.mutate(config)
		if err := config.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestTerrain_PlanarSingleFrame(t *testing.T) {
	// Planar 1 km terrain, 4 LODs: with the viewer centered over the
	// terrain, one frame must produce a populated final tile list and no
	// atlas pressure.
	terrain := planarTestTerrain(t)
	view, err := NewTerrainView(terrain, DefaultTerrainViewConfig())
	if err != nil {
		t.Fatalf("NewTerrainView: %v", err)
	}

	viewer := NewViewer(mgl64.Vec3{0, 10, 0})
	viewer.Target = mgl64.Vec3{100, 0, 100}
	viewer.Update(view, 1.0/60, 16.0/9)

	terrain.Update()

	if got := len(view.Prepass().Tiles()); got == 0 {
		t.Fatal("empty final tile list after one frame")
	}
	if terrain.Atlas.Pressure() != 0 {
		t.Errorf("atlas pressure = %d, want 0", terrain.Atlas.Pressure())
	}

	// The dataset lists no tiles, so every requested tile resolved to
	// zero data synchronously and the root entry is resident.
	entry := view.Tree().Entry(NewTileCoordinate(0, 0, 0, 0))
	if entry.AtlasIndex == SentinelAtlasIndex {
		t.Error("root tile not resident after one frame")
	}

	mirror := terrain.Mirror(view)
	if mirror == nil || mirror.TileTree.Uploads() == 0 {
		t.Error("GPU mirror did not extract")
	}
}

func TestTerrain_SharedAtlasRefcounts(t *testing.T) {
	terrain := planarTestTerrain(t)

	a, err := NewTerrainView(terrain, DefaultTerrainViewConfig())
	if err != nil {
		t.Fatalf("view a: %v", err)
	}
	b, err := NewTerrainView(terrain, DefaultTerrainViewConfig())
	if err != nil {
		t.Fatalf("view b: %v", err)
	}

	pose := func(v *TerrainView, eye mgl64.Vec3) {
		viewer := NewViewer(eye)
		viewer.Update(v, 1.0/60, 1)
	}
	pose(a, mgl64.Vec3{-200, 10, 0})
	pose(b, mgl64.Vec3{-200, 10, 0})

	terrain.Update()

	// Both views reference the root tile; detaching one must keep it
	// alive for the other.
	root, ok := terrain.Atlas.Lookup(NewTileCoordinate(0, 0, 0, 0))
	if !ok {
		t.Fatal("root tile not in atlas")
	}
	if refs := terrain.Atlas.slots[root].refcount; refs < 2 {
		t.Fatalf("root refcount = %d, want >= 2", refs)
	}

	terrain.DetachView(b)
	if refs := terrain.Atlas.slots[root].refcount; refs == 0 {
		t.Error("detaching one view released the other view's tiles")
	}

	terrain.DetachView(a)
	if refs := terrain.Atlas.slots[root].refcount; refs != 0 {
		t.Errorf("root refcount = %d after detaching all views", refs)
	}
}

func TestTerrain_FrameAdvances(t *testing.T) {
	terrain := planarTestTerrain(t)
	before := terrain.Frame()
	terrain.Update()
	terrain.Update()
	if terrain.Frame() != before+2 {
		t.Errorf("frame = %d, want %d", terrain.Frame(), before+2)
	}
}

func TestViewer_FlyTo(t *testing.T) {
	terrain := planarTestTerrain(t)
	view, err := NewTerrainView(terrain, DefaultTerrainViewConfig())
	if err != nil {
		t.Fatalf("NewTerrainView: %v", err)
	}

	viewer := NewViewer(mgl64.Vec3{0, 100, 0})
	viewer.FlyTo(mgl64.Vec3{500, 100, 0}, 1.0, easeLinear)

	// Half the duration in: roughly halfway there.
	viewer.Update(view, 0.5, 1)
	if math.Abs(viewer.Position[0]-250) > 25 {
		t.Errorf("mid-flight x = %g, want ~250", viewer.Position[0])
	}

	// Past the end: exactly there, tween finished.
	viewer.Update(view, 1.0, 1)
	if math.Abs(viewer.Position[0]-500) > 1e-3 {
		t.Errorf("final x = %g, want 500", viewer.Position[0])
	}
	if viewer.fly != nil {
		t.Error("fly animation not cleared")
	}

	if view.CameraPosition != viewer.Position {
		t.Error("viewer did not write the camera pose into the view")
	}
}

func easeLinear(t, b, c, d float32) float32 {
	return c*t/d + b
}
