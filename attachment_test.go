package tundra

import (
	"testing"
)

func validHeightConfig() AttachmentConfig {
	return AttachmentConfig{
		Label:         AttachmentHeight,
		TextureSize:   36,
		BorderSize:    2,
		MipLevelCount: 3,
		Format:        FormatR16,
	}
}

func TestAttachmentConfig_Validate(t *testing.T) {
	if err := validHeightConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*AttachmentConfig)
	}{
		{"missing label", func(c *AttachmentConfig) { c.Label = "" }},
		{"border eats texture", func(c *AttachmentConfig) { c.BorderSize = 18 }},
		{"zero mips", func(c *AttachmentConfig) { c.MipLevelCount = 0 }},
		{"mip divisibility", func(c *AttachmentConfig) { c.TextureSize = 38 }}, // center 34 not divisible by 4
		{"bad format", func(c *AttachmentConfig) { c.Format = AttachmentFormat(99) }},
	}

	for _, tc := range cases {
		config := validHeightConfig()
		tc.mutate(&config)
		if err := config.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestAttachmentConfig_Sizes(t *testing.T) {
	config := validHeightConfig()

	if got := config.CenterSize(); got != 32 {
		t.Errorf("CenterSize = %d, want 32", got)
	}
	if got := config.MipSize(1); got != 18 {
		t.Errorf("MipSize(1) = %d, want 18", got)
	}
	// 36*36 + 18*18 + 9*9 pixels, 2 bytes each.
	if got := config.DataSize(); got != (36*36+18*18+9*9)*2 {
		t.Errorf("DataSize = %d", got)
	}

	if config.Scale() != 32.0/36.0 || config.Offset() != 2.0/36.0 {
		t.Errorf("Scale/Offset = %g/%g", config.Scale(), config.Offset())
	}
}

func TestParseAttachmentFormat(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want AttachmentFormat
	}{
		{"ru16", FormatR16},
		{"rf32", FormatRF32},
		{"rgba8", FormatRgba8},
		{"rgb8", FormatRgbU8},
	} {
		got, err := ParseAttachmentFormat(tc.in)
		if err != nil || got != tc.want {
			t.Errorf("ParseAttachmentFormat(%q) = %v, %v", tc.in, got, err)
		}
		if back, err := ParseAttachmentFormat(got.String()); err != nil || back != tc.want {
			t.Errorf("format %v does not roundtrip through String", tc.want)
		}
	}

	if _, err := ParseAttachmentFormat("r64"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestAttachmentData_MipmapConstantStability(t *testing.T) {
	config := AttachmentConfig{
		Label:         AttachmentHeight,
		TextureSize:   16,
		BorderSize:    2,
		MipLevelCount: 3,
		Format:        FormatR16,
	}

	level0 := make([]byte, 16*16*2)
	for i := 0; i < 16*16; i++ {
		level0[i*2] = 0x34
		level0[i*2+1] = 0x12
	}

	data, err := NewAttachmentData(config, level0)
	if err != nil {
		t.Fatalf("NewAttachmentData: %v", err)
	}
	data.GenerateMipmaps()

	for level := uint32(1); level < 3; level++ {
		mip := data.MipLevel(level)
		for i := 0; i < len(mip); i += 2 {
			if mip[i] != 0x34 || mip[i+1] != 0x12 {
				t.Fatalf("mip %d pixel %d = %02x%02x, want constant 1234", level, i/2, mip[i+1], mip[i])
			}
		}
	}
}

func TestAttachmentData_MaskedMipmapSkipsNoData(t *testing.T) {
	config := AttachmentConfig{
		Label:         AttachmentHeight,
		TextureSize:   4,
		BorderSize:    1,
		MipLevelCount: 2,
		Format:        FormatR16,
		Mask:          true,
	}

	// Top-left 2x2 block: three valid pixels of 1001 (odd, LSB set) and
	// one no-data pixel of 0.
	level0 := make([]byte, 4*4*2)
	for _, i := range []int{0, 1, 4} {
		level0[i*2] = byte(1001)
		level0[i*2+1] = byte(1001 >> 8)
	}

	data, err := NewAttachmentData(config, level0)
	if err != nil {
		t.Fatalf("NewAttachmentData: %v", err)
	}
	data.GenerateMipmaps()

	mip := data.MipLevel(1)
	got := uint32(mip[0]) | uint32(mip[1])<<8
	if got != 1001 {
		t.Errorf("masked average = %d, want 1001 (no-data excluded)", got)
	}
	if got&1 != 1 {
		t.Error("averaged valid pixel lost its mask bit")
	}

	// Bottom-right block is all no-data and must stay no-data.
	last := len(mip) - 2
	if mip[last] != 0 || mip[last+1] != 0 {
		t.Errorf("all-no-data block produced %02x%02x", mip[last+1], mip[last])
	}
}

func TestZeroAttachmentData(t *testing.T) {
	data := ZeroAttachmentData(validHeightConfig())
	if len(data.Pixels) != validHeightConfig().DataSize() {
		t.Fatalf("zero data size = %d", len(data.Pixels))
	}
	for _, b := range data.MipLevel(2) {
		if b != 0 {
			t.Fatal("zero data is not zero")
		}
	}
}
