package tundra

import (
	"os"
	"path/filepath"
	"testing"
)

func testTerrainConfig(path string) *TerrainConfig {
	return &TerrainConfig{
		Shape:     SphereShape{Radius: 6371000},
		Path:      path,
		LODCount:  6,
		MinHeight: -12000,
		MaxHeight: 9000,
		Attachments: []AttachmentConfig{
			{
				Label:         AttachmentHeight,
				TextureSize:   516,
				BorderSize:    2,
				MipLevelCount: 1,
				Format:        FormatR16,
				Mask:          true,
			},
			{
				Label:         "albedo",
				TextureSize:   260,
				BorderSize:    2,
				MipLevelCount: 1,
				Format:        FormatRgbU8,
			},
		},
		Tiles: []TileCoordinate{
			NewTileCoordinate(0, 0, 0, 0),
			NewTileCoordinate(3, 2, 1, 3),
		},
	}
}

func TestTerrainConfig_RONRoundtrip(t *testing.T) {
	dir := t.TempDir()
	config := testTerrainConfig(dir)

	if err := SaveTerrainConfig(config); err != nil {
		t.Fatalf("SaveTerrainConfig: %v", err)
	}

	loaded, err := LoadTerrainConfig(dir)
	if err != nil {
		t.Fatalf("LoadTerrainConfig: %v", err)
	}

	shape, ok := loaded.Shape.(SphereShape)
	if !ok || shape.Radius != 6371000 {
		t.Errorf("shape = %#v", loaded.Shape)
	}
	if loaded.LODCount != 6 || loaded.MinHeight != -12000 || loaded.MaxHeight != 9000 {
		t.Errorf("scalar fields = %d %g %g", loaded.LODCount, loaded.MinHeight, loaded.MaxHeight)
	}
	if len(loaded.Attachments) != 2 {
		t.Fatalf("attachment count = %d", len(loaded.Attachments))
	}
	height := loaded.Attachments[0]
	if height.Label != AttachmentHeight || height.TextureSize != 516 ||
		height.BorderSize != 2 || height.Format != FormatR16 || !height.Mask {
		t.Errorf("height attachment = %+v", height)
	}
	if loaded.Attachments[1].Format != FormatRgbU8 {
		t.Errorf("albedo format = %v", loaded.Attachments[1].Format)
	}
	if len(loaded.Tiles) != 2 || loaded.Tiles[1] != NewTileCoordinate(3, 2, 1, 3) {
		t.Errorf("tiles = %v", loaded.Tiles)
	}
}

func TestTerrainConfig_AllShapesRoundtrip(t *testing.T) {
	shapes := []TerrainShape{
		PlaneShape{SideLength: 1000},
		SphereShape{Radius: 42},
		SpheroidShape{MajorAxis: WGS84.MajorAxis, MinorAxis: WGS84.MinorAxis},
	}

	for _, shape := range shapes {
		dir := t.TempDir()
		config := testTerrainConfig(dir)
		config.Shape = shape

		if err := SaveTerrainConfig(config); err != nil {
			t.Fatalf("save %T: %v", shape, err)
		}
		loaded, err := LoadTerrainConfig(dir)
		if err != nil {
			t.Fatalf("load %T: %v", shape, err)
		}
		if loaded.Shape != shape {
			t.Errorf("shape roundtrip: got %#v, want %#v", loaded.Shape, shape)
		}
	}
}

func TestParseTerrainConfig_Malformed(t *testing.T) {
	for _, input := range []string{
		"",
		"[1, 2, 3]",
		"(shape: Cube(side: 1.0), lod_count: 1)",
		"(shape: Sphere(radius: 1.0", // truncated
	} {
		if _, err := ParseTerrainConfig([]byte(input)); err == nil {
			t.Errorf("ParseTerrainConfig(%q) succeeded", input)
		}
	}
}

func TestParseTerrainConfig_IgnoresComments(t *testing.T) {
	input := `(
    // a comment
    shape: Plane(side_length: 100.0),
    path: "x",
    lod_count: 2, // trailing comment
    min_height: 0.0,
    max_height: 1.0,
    attachments: [],
    tiles: [],
)`
	config, err := ParseTerrainConfig([]byte(input))
	if err != nil {
		t.Fatalf("ParseTerrainConfig: %v", err)
	}
	if config.LODCount != 2 {
		t.Errorf("lod_count = %d", config.LODCount)
	}
}

func TestBinTile_Roundtrip(t *testing.T) {
	config := AttachmentConfig{
		Label:         AttachmentHeight,
		TextureSize:   8,
		BorderSize:    1,
		MipLevelCount: 2,
		Format:        FormatR16,
	}

	level0 := make([]byte, 8*8*2)
	for i := range level0 {
		level0[i] = byte(i * 7)
	}
	data, err := NewAttachmentData(config, level0)
	if err != nil {
		t.Fatalf("NewAttachmentData: %v", err)
	}
	data.GenerateMipmaps()

	encoded := EncodeBinTile(data)
	decoded, err := DecodeBinTile(config, encoded)
	if err != nil {
		t.Fatalf("DecodeBinTile: %v", err)
	}

	if len(decoded.Pixels) != len(data.Pixels) {
		t.Fatalf("payload size %d, want %d", len(decoded.Pixels), len(data.Pixels))
	}
	for i := range data.Pixels {
		if decoded.Pixels[i] != data.Pixels[i] {
			t.Fatalf("payload differs at byte %d", i)
		}
	}
}

func TestBinTile_HeaderIsLittleEndian(t *testing.T) {
	config := AttachmentConfig{
		Label:         AttachmentHeight,
		TextureSize:   8,
		BorderSize:    1,
		MipLevelCount: 1,
		Format:        FormatR16,
	}
	data := ZeroAttachmentData(config)
	encoded := EncodeBinTile(data)

	if encoded[0] != 8 || encoded[1] != 0 || encoded[2] != 0 || encoded[3] != 0 {
		t.Errorf("width bytes = % x, want little-endian 8", encoded[0:4])
	}
	if encoded[12] != 2 || encoded[13] != 1 {
		t.Errorf("pixel size / channels = %d %d, want 2 1", encoded[12], encoded[13])
	}
}

func TestBinTile_RejectsMismatch(t *testing.T) {
	config := AttachmentConfig{
		Label:         AttachmentHeight,
		TextureSize:   8,
		BorderSize:    1,
		MipLevelCount: 1,
		Format:        FormatR16,
	}
	other := config
	other.TextureSize = 16

	encoded := EncodeBinTile(ZeroAttachmentData(other))
	if _, err := DecodeBinTile(config, encoded); err == nil {
		t.Error("expected size mismatch error")
	}

	if _, err := DecodeBinTile(config, []byte{1, 2, 3}); err == nil {
		t.Error("expected truncation error")
	}
}

func TestSaveTerrainConfig_WritesConfigFile(t *testing.T) {
	dir := t.TempDir()
	if err := SaveTerrainConfig(testTerrainConfig(dir)); err != nil {
		t.Fatalf("SaveTerrainConfig: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, TerrainConfigFile)); err != nil {
		t.Errorf("config file missing: %v", err)
	}
}
