package tundra

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func loaderConfig() AttachmentConfig {
	return AttachmentConfig{
		Label:         AttachmentHeight,
		TextureSize:   8,
		BorderSize:    1,
		MipLevelCount: 2,
		Format:        FormatR16,
	}
}

func writeBinTile(t *testing.T, dir string, c TileCoordinate, value uint16) {
	t.Helper()
	config := loaderConfig()

	level0 := make([]byte, 8*8*2)
	for i := 0; i < 8*8; i++ {
		level0[i*2] = byte(value)
		level0[i*2+1] = byte(value >> 8)
	}
	data, err := NewAttachmentData(config, level0)
	if err != nil {
		t.Fatalf("NewAttachmentData: %v", err)
	}

	path := filepath.Join(dir, string(AttachmentHeight))
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(c.Path(path, "bin"), EncodeBinTile(data), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

// pumpLoader drives the loader until the slot is resident or the deadline
// expires.
func pumpLoader(t *testing.T, loader *AttachmentLoader, atlas *TileAtlas, index AtlasIndex) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !atlas.IsResident(index) {
		if time.Now().After(deadline) {
			t.Fatal("tile did not load in time")
		}
		loader.Update(atlas)
		time.Sleep(time.Millisecond)
	}
}

func TestAttachmentLoader_LoadsBinTile(t *testing.T) {
	dir := t.TempDir()
	coordinate := NewTileCoordinate(0, 1, 1, 0)
	writeBinTile(t, dir, coordinate, 0x1234)

	atlas, err := NewTileAtlas(4, []AttachmentConfig{loaderConfig()}, []TileCoordinate{coordinate})
	if err != nil {
		t.Fatalf("NewTileAtlas: %v", err)
	}
	loader := NewAttachmentLoader(dir, 2, 4)
	defer loader.Close()

	index, err := atlas.Request(coordinate)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if atlas.IsResident(index) {
		t.Fatal("tile resident before the loader ran")
	}

	pumpLoader(t, loader, atlas, index)

	data := atlas.TileData(index, AttachmentHeight)
	if data == nil {
		t.Fatal("no CPU data after load")
	}
	level0 := data.MipLevel(0)
	if level0[0] != 0x34 || level0[1] != 0x12 {
		t.Errorf("loaded pixel = %02x%02x", level0[1], level0[0])
	}

	// Mip level 1 was generated by the loader.
	mip := data.MipLevel(1)
	if mip[0] != 0x34 || mip[1] != 0x12 {
		t.Errorf("generated mip pixel = %02x%02x", mip[1], mip[0])
	}
}

func TestAttachmentLoader_MissingFileZeroes(t *testing.T) {
	dir := t.TempDir()
	coordinate := NewTileCoordinate(0, 1, 0, 0)

	// The coordinate is listed on disk but the file is absent: the loader
	// substitutes zero data instead of failing the frame loop.
	atlas, err := NewTileAtlas(4, []AttachmentConfig{loaderConfig()}, []TileCoordinate{coordinate})
	if err != nil {
		t.Fatalf("NewTileAtlas: %v", err)
	}
	loader := NewAttachmentLoader(dir, 1, 2)
	defer loader.Close()

	index, err := atlas.Request(coordinate)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	pumpLoader(t, loader, atlas, index)

	data := atlas.TileData(index, AttachmentHeight)
	for _, b := range data.MipLevel(0) {
		if b != 0 {
			t.Fatal("missing tile did not load as zero data")
		}
	}
}

func TestAttachmentLoader_CorruptFileFailsToZero(t *testing.T) {
	dir := t.TempDir()
	coordinate := NewTileCoordinate(0, 1, 0, 1)

	path := filepath.Join(dir, string(AttachmentHeight))
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(coordinate.Path(path, "bin"), []byte("not a tile"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	atlas, err := NewTileAtlas(4, []AttachmentConfig{loaderConfig()}, []TileCoordinate{coordinate})
	if err != nil {
		t.Fatalf("NewTileAtlas: %v", err)
	}
	loader := NewAttachmentLoader(dir, 1, 2)
	defer loader.Close()

	index, err := atlas.Request(coordinate)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}

	// Retries are bounded; the slot must still become resident (zeroed)
	// rather than wedging the tile tree.
	pumpLoader(t, loader, atlas, index)

	data := atlas.TileData(index, AttachmentHeight)
	for _, b := range data.MipLevel(0) {
		if b != 0 {
			t.Fatal("corrupt tile did not fall back to zero data")
		}
	}
}

func TestDecodeTile_UnknownExtension(t *testing.T) {
	if _, err := decodeTile(loaderConfig(), "height/0_0_0_0.xyz", []byte{1}); err == nil {
		t.Error("expected error for unknown extension")
	}
}

func TestExtensionOf(t *testing.T) {
	if got := extensionOf("a/b/c.tif"); got != "tif" {
		t.Errorf("extensionOf = %q", got)
	}
	if got := extensionOf("a.b/c"); got != "" {
		t.Errorf("extensionOf = %q, want empty", got)
	}
}
