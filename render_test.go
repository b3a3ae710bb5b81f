package tundra

import (
	"testing"
)

func TestGridMesh_Counts(t *testing.T) {
	mesh := newGridMesh(4)

	if got := len(mesh.positions); got != 25 {
		t.Errorf("vertex count = %d, want 25", got)
	}
	if got := len(mesh.indices); got != 4*4*6 {
		t.Errorf("index count = %d, want %d", got, 4*4*6)
	}

	// Corners span the unit square.
	first := mesh.positions[0]
	last := mesh.positions[len(mesh.positions)-1]
	if first[0] != 0 || first[1] != 0 || last[0] != 1 || last[1] != 1 {
		t.Errorf("grid corners = %v .. %v", first, last)
	}
}

func TestGridMesh_IndicesInRange(t *testing.T) {
	mesh := sharedGridMesh(16)
	limit := uint16(len(mesh.positions))
	for _, index := range mesh.indices {
		if index >= limit {
			t.Fatalf("index %d out of range %d", index, limit)
		}
	}

	// The cache returns the same mesh.
	if sharedGridMesh(16) != mesh {
		t.Error("grid mesh not cached")
	}
}

func TestSliceRect(t *testing.T) {
	// 4 slices per row: slice 5 sits at grid position (1, 1).
	r := sliceRect(5, 516, 4)
	if r.Min.X != 516 || r.Min.Y != 516 || r.Max.X != 2*516 || r.Max.Y != 2*516 {
		t.Errorf("sliceRect = %v", r)
	}

	if got := sliceGridWidth(512); got != 23 {
		t.Errorf("sliceGridWidth(512) = %d, want 23", got)
	}
}

func TestExpandToRGBA(t *testing.T) {
	r16 := expandToRGBA(FormatR16, []byte{0x34, 0x12})
	if len(r16) != 4 || r16[0] != 0x34 || r16[1] != 0x12 || r16[3] != 0xFF {
		t.Errorf("R16 expansion = % x", r16)
	}

	rgb := expandToRGBA(FormatRgbU8, []byte{1, 2, 3})
	if len(rgb) != 4 || rgb[0] != 1 || rgb[2] != 3 || rgb[3] != 0xFF {
		t.Errorf("RGB expansion = % x", rgb)
	}

	rgba := []byte{9, 8, 7, 6}
	if got := expandToRGBA(FormatRgba8, rgba); &got[0] != &rgba[0] {
		t.Error("RGBA expansion should pass through")
	}
}

func TestDefaultMaterial(t *testing.T) {
	material := DefaultMaterial()
	if material.Shader != "terrain" || material.Attachment != AttachmentHeight {
		t.Errorf("default material = %+v", material)
	}
}

func TestShaderRegistry_Registration(t *testing.T) {
	registry := Shaders()

	names := registry.Names()
	found := false
	for _, name := range names {
		if name == "terrain" {
			found = true
		}
	}
	if !found {
		t.Fatalf("built-in terrain shader missing from %v", names)
	}

	if _, err := registry.Get("no-such-shader"); err == nil {
		t.Error("expected error for unregistered shader")
	}
}
