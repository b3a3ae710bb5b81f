package tundra

import (
	"fmt"
	"math"
)

// AttachmentLabel names a data layer of a terrain. The height layer is
// required; any number of custom layers (albedo, land cover, ...) may be
// added alongside it.
type AttachmentLabel string

// AttachmentHeight is the label of the height layer.
const AttachmentHeight AttachmentLabel = "height"

// AttachmentFormat is the pixel format of an attachment.
type AttachmentFormat uint8

const (
	// FormatR16 is a single unsigned 16 bit channel.
	FormatR16 AttachmentFormat = iota
	// FormatRF32 is a single 32 bit float channel.
	FormatRF32
	// FormatRgba8 is four unsigned 8 bit channels.
	FormatRgba8
	// FormatRgbU8 is three unsigned 8 bit channels. Stored as Rgba8 on the
	// GPU with an opaque alpha channel.
	FormatRgbU8
)

// ParseAttachmentFormat converts the CLI / config spelling of a format.
func ParseAttachmentFormat(s string) (AttachmentFormat, error) {
	switch s {
	case "ru16", "r16":
		return FormatR16, nil
	case "rf32":
		return FormatRF32, nil
	case "rgba8":
		return FormatRgba8, nil
	case "rgb8":
		return FormatRgbU8, nil
	default:
		return 0, fmt.Errorf("tundra: unknown attachment format %q", s)
	}
}

// String returns the config spelling of the format.
func (f AttachmentFormat) String() string {
	switch f {
	case FormatR16:
		return "ru16"
	case FormatRF32:
		return "rf32"
	case FormatRgba8:
		return "rgba8"
	case FormatRgbU8:
		return "rgb8"
	default:
		return "unknown"
	}
}

// PixelSize returns the storage size of one pixel in bytes.
func (f AttachmentFormat) PixelSize() uint32 {
	switch f {
	case FormatR16:
		return 2
	case FormatRF32:
		return 4
	case FormatRgba8:
		return 4
	case FormatRgbU8:
		return 3
	default:
		return 0
	}
}

// ChannelCount returns the number of channels per pixel.
func (f AttachmentFormat) ChannelCount() uint32 {
	switch f {
	case FormatR16, FormatRF32:
		return 1
	case FormatRgba8:
		return 4
	case FormatRgbU8:
		return 3
	default:
		return 0
	}
}

// AttachmentConfig fixes the tile layout of one attachment.
type AttachmentConfig struct {
	// Label identifies the attachment.
	Label AttachmentLabel
	// TextureSize is the edge length of a tile in pixels, borders included.
	TextureSize uint32
	// BorderSize is the width of the border duplicated from neighbouring
	// tiles. At least 1 whenever the renderer samples bilinearly across
	// tile seams.
	BorderSize uint32
	// MipLevelCount is the number of mip levels stored per tile.
	MipLevelCount uint32
	// Format is the pixel format of the attachment.
	Format AttachmentFormat
	// Mask marks attachments whose pixel low bit is a validity mask
	// written by the preprocessor (1 = valid, 0 = no-data).
	Mask bool
}

// CenterSize is the interior tile size without borders.
func (c AttachmentConfig) CenterSize() uint32 {
	return c.TextureSize - 2*c.BorderSize
}

// Scale is the fraction of the tile texture covered by the interior. Used
// by the shaders to map tile UVs into the padded texture.
func (c AttachmentConfig) Scale() float32 {
	return float32(c.CenterSize()) / float32(c.TextureSize)
}

// Offset is the UV offset of the interior within the padded texture.
func (c AttachmentConfig) Offset() float32 {
	return float32(c.BorderSize) / float32(c.TextureSize)
}

// Validate checks the numeric constraints between the layout fields.
func (c AttachmentConfig) Validate() error {
	if c.Label == "" {
		return fmt.Errorf("tundra: attachment without label")
	}
	if c.TextureSize == 0 || c.TextureSize <= 2*c.BorderSize {
		return fmt.Errorf("tundra: attachment %q: texture size %d does not fit border %d",
			c.Label, c.TextureSize, c.BorderSize)
	}
	if c.MipLevelCount == 0 {
		return fmt.Errorf("tundra: attachment %q: mip level count must be at least 1", c.Label)
	}
	if c.CenterSize()%(1<<(c.MipLevelCount-1)) != 0 {
		return fmt.Errorf("tundra: attachment %q: center size %d not divisible by 2^%d",
			c.Label, c.CenterSize(), c.MipLevelCount-1)
	}
	if c.Format.PixelSize() == 0 {
		return fmt.Errorf("tundra: attachment %q: unsupported format", c.Label)
	}
	return nil
}

// MipSize returns the edge length of the given mip level.
func (c AttachmentConfig) MipSize(level uint32) uint32 {
	return c.TextureSize >> level
}

// DataSize returns the total byte size of a tile including all mip levels.
func (c AttachmentConfig) DataSize() int {
	size := 0
	for level := uint32(0); level < c.MipLevelCount; level++ {
		mip := int(c.MipSize(level))
		size += mip * mip * int(c.Format.PixelSize())
	}
	return size
}

// AttachmentData is the decoded pixel payload of one tile, mip level 0
// first, finer-to-coarser. Owned by the atlas once delivered; never mutated
// after upload.
type AttachmentData struct {
	Config AttachmentConfig
	// Pixels holds all mip levels back to back.
	Pixels []byte
}

// NewAttachmentData wraps a level-0 pixel buffer and allocates room for the
// remaining mip levels.
func NewAttachmentData(config AttachmentConfig, level0 []byte) (*AttachmentData, error) {
	size := int(config.TextureSize) * int(config.TextureSize) * int(config.Format.PixelSize())
	if len(level0) != size {
		return nil, fmt.Errorf("tundra: attachment %q: level 0 has %d bytes, want %d",
			config.Label, len(level0), size)
	}

	pixels := make([]byte, config.DataSize())
	copy(pixels, level0)

	return &AttachmentData{Config: config, Pixels: pixels}, nil
}

// ZeroAttachmentData returns an all-zero tile. Substituted for missing
// files so the tile tree can treat the tile as resident.
func ZeroAttachmentData(config AttachmentConfig) *AttachmentData {
	return &AttachmentData{Config: config, Pixels: make([]byte, config.DataSize())}
}

// MipLevel returns the pixel bytes of the given mip level.
func (d *AttachmentData) MipLevel(level uint32) []byte {
	offset := 0
	for l := uint32(0); l < level; l++ {
		mip := int(d.Config.MipSize(l))
		offset += mip * mip * int(d.Config.Format.PixelSize())
	}
	mip := int(d.Config.MipSize(level))
	return d.Pixels[offset : offset+mip*mip*int(d.Config.Format.PixelSize())]
}

// GenerateMipmaps fills the mip levels above 0 with a 2x2 box filter. On
// masked attachments, pixels whose low bit marks them as no-data are
// excluded from the average so gaps do not bleed into coarser levels; a
// block of four no-data pixels stays no-data.
func (d *AttachmentData) GenerateMipmaps() {
	for level := uint32(1); level < d.Config.MipLevelCount; level++ {
		src := d.MipLevel(level - 1)
		dst := d.MipLevel(level)
		d.downsampleLevel(src, dst, d.Config.MipSize(level-1))
	}
}

func (d *AttachmentData) downsampleLevel(src, dst []byte, srcSize uint32) {
	dstSize := srcSize / 2

	for y := uint32(0); y < dstSize; y++ {
		for x := uint32(0); x < dstSize; x++ {
			d.samplePixelBox(src, dst, srcSize, dstSize, x, y)
		}
	}
}

// samplePixelBox averages the 2x2 source block at (2x, 2y) into the
// destination pixel at (x, y).
func (d *AttachmentData) samplePixelBox(src, dst []byte, srcSize, dstSize, x, y uint32) {
	format := d.Config.Format
	ps := format.PixelSize()
	dstOffset := (y*dstSize + x) * ps

	srcOffsets := [4]uint32{
		((2*y+0)*srcSize + 2*x + 0) * ps,
		((2*y+0)*srcSize + 2*x + 1) * ps,
		((2*y+1)*srcSize + 2*x + 0) * ps,
		((2*y+1)*srcSize + 2*x + 1) * ps,
	}

	switch format {
	case FormatR16:
		var sum, count uint32
		for _, o := range srcOffsets {
			v := uint32(src[o]) | uint32(src[o+1])<<8
			if d.Config.Mask && v&1 == 0 {
				continue
			}
			sum += v
			count++
		}
		var v uint16
		if count > 0 {
			v = uint16(sum / count)
			if d.Config.Mask {
				v |= 1
			}
		}
		dst[dstOffset] = byte(v)
		dst[dstOffset+1] = byte(v >> 8)
	case FormatRF32:
		var sum float64
		var count int
		for _, o := range srcOffsets {
			bits := uint32FromBytes(src[o : o+4])
			if d.Config.Mask && bits&1 == 0 {
				continue
			}
			sum += float64(math.Float32frombits(bits))
			count++
		}
		var bits uint32
		if count > 0 {
			bits = math.Float32bits(float32(sum / float64(count)))
			if d.Config.Mask {
				bits |= 1
			}
		}
		uint32ToBytes(bits, dst[dstOffset:dstOffset+4])
	case FormatRgba8, FormatRgbU8:
		channels := format.ChannelCount()
		for c := uint32(0); c < channels; c++ {
			var sum uint32
			for _, o := range srcOffsets {
				sum += uint32(src[o+c])
			}
			dst[dstOffset+c] = byte(sum / 4)
		}
	}
}

func uint32FromBytes(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func uint32ToBytes(v uint32, b []byte) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
