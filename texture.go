package tundra

import (
	"image"
	"math"
)

// sliceGridWidth returns the number of slices per row of an atlas
// texture. Slices pack into a near-square grid so even large atlases stay
// within GPU texture size limits.
func sliceGridWidth(capacity uint32) int {
	return int(math.Ceil(math.Sqrt(float64(capacity))))
}

// sliceRect returns the pixel rectangle of slice i within an atlas
// texture of perRow slices per row.
func sliceRect(index AtlasIndex, size, perRow int) image.Rectangle {
	x := (int(index) % perRow) * size
	y := (int(index) / perRow) * size
	return image.Rect(x, y, x+size, y+size)
}

// expandToRGBA converts a tile pixel buffer into the RGBA bytes Ebitengine
// textures store. Single-channel formats pack their raw bits into the
// color channels; the terrain shaders reassemble them.
//
//	R16:  value = R | G<<8
//	RF32: bits  = R | G<<8 | B<<16 | A<<24
func expandToRGBA(format AttachmentFormat, pixels []byte) []byte {
	switch format {
	case FormatRgba8:
		return pixels
	case FormatRgbU8:
		count := len(pixels) / 3
		out := make([]byte, count*4)
		for i := 0; i < count; i++ {
			out[i*4+0] = pixels[i*3+0]
			out[i*4+1] = pixels[i*3+1]
			out[i*4+2] = pixels[i*3+2]
			out[i*4+3] = 0xFF
		}
		return out
	case FormatR16:
		count := len(pixels) / 2
		out := make([]byte, count*4)
		for i := 0; i < count; i++ {
			out[i*4+0] = pixels[i*2+0]
			out[i*4+1] = pixels[i*2+1]
			out[i*4+3] = 0xFF
		}
		return out
	case FormatRF32:
		count := len(pixels) / 4
		out := make([]byte, count*4)
		for i := 0; i < count; i++ {
			out[i*4+0] = pixels[i*4+0]
			out[i*4+1] = pixels[i*4+1]
			out[i*4+2] = pixels[i*4+2]
			out[i*4+3] = pixels[i*4+3]
		}
		return out
	default:
		return pixels
	}
}
