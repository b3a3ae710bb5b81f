package preprocess

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/phanxgames/tundra"
)

// tileBuffer is one tile under construction: texture-size-squared pixel
// values plus per-pixel validity. Values stay float64 until the final
// encode so every stage works format-independently.
type tileBuffer struct {
	size   int
	values []float64
	valid  []bool
	// mask is the validity snapshot taken before no-data filling; nil
	// until mask writing is requested.
	mask []bool
}

// snapshotMask freezes the current validity as the original-data mask.
func (b *tileBuffer) snapshotMask() {
	b.mask = append([]bool(nil), b.valid...)
}

func newTileBuffer(size int) *tileBuffer {
	return &tileBuffer{
		size:   size,
		values: make([]float64, size*size),
		valid:  make([]bool, size*size),
	}
}

func (b *tileBuffer) at(x, y int) (float64, bool) {
	i := y*b.size + x
	return b.values[i], b.valid[i]
}

func (b *tileBuffer) set(x, y int, v float64) {
	i := y*b.size + x
	b.values[i] = v
	b.valid[i] = true
}

func (b *tileBuffer) clear(x, y int) {
	i := y*b.size + x
	b.values[i] = 0
	b.valid[i] = false
}

func (b *tileBuffer) hasData() bool {
	for _, v := range b.valid {
		if v {
			return true
		}
	}
	return false
}

// tileStore holds the tiles of one attachment in memory during
// preprocessing and writes them into the terrain directory on flush, so
// re-running a stage on identical input rewrites identical bytes. A new
// store starts empty: tiles already on disk are not read back, and an
// interrupted run starts over.
type tileStore struct {
	mu    sync.RWMutex
	tiles map[tundra.TileCoordinate]*tileBuffer

	path       string
	attachment tundra.AttachmentConfig
}

func newTileStore(terrainPath string, attachment tundra.AttachmentConfig) *tileStore {
	return &tileStore{
		tiles:      map[tundra.TileCoordinate]*tileBuffer{},
		path:       filepath.Join(terrainPath, string(attachment.Label)),
		attachment: attachment,
	}
}

func (s *tileStore) get(c tundra.TileCoordinate) *tileBuffer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tiles[c]
}

func (s *tileStore) put(c tundra.TileCoordinate, b *tileBuffer) {
	s.mu.Lock()
	s.tiles[c] = b
	s.mu.Unlock()
}

// coordinates returns every stored tile at the given LOD.
func (s *tileStore) coordinates(lod uint32) []tundra.TileCoordinate {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []tundra.TileCoordinate
	for c := range s.tiles {
		if c.LOD == lod {
			out = append(out, c)
		}
	}
	return out
}

func (s *tileStore) all() []tundra.TileCoordinate {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]tundra.TileCoordinate, 0, len(s.tiles))
	for c := range s.tiles {
		out = append(out, c)
	}
	return out
}

// flush encodes every stored tile into the terrain directory as .bin
// tiles, mip levels included.
func (s *tileStore) flush() error {
	if err := os.MkdirAll(s.path, 0o755); err != nil {
		return fmt.Errorf("preprocess: create attachment directory: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for coordinate, buffer := range s.tiles {
		data, err := s.encode(buffer)
		if err != nil {
			return err
		}
		path := coordinate.Path(s.path, "bin")
		if err := os.WriteFile(path, tundra.EncodeBinTile(data), 0o644); err != nil {
			return fmt.Errorf("preprocess: write %s: %w", path, err)
		}
	}
	return nil
}

// encode quantizes a tile buffer into the attachment's pixel format and
// generates its mip chain.
func (s *tileStore) encode(buffer *tileBuffer) (*tundra.AttachmentData, error) {
	format := s.attachment.Format
	size := int(s.attachment.TextureSize)
	level0 := make([]byte, size*size*int(format.PixelSize()))

	for i := 0; i < size*size; i++ {
		v := buffer.values[i]
		if !buffer.valid[i] {
			v = 0
		}

		// Mask writing: clear the LSB, then OR in the pre-fill validity.
		maskBit := uint32(0)
		if s.attachment.Mask && buffer.mask != nil && buffer.mask[i] {
			maskBit = 1
		}

		switch format {
		case tundra.FormatR16:
			q := uint16(clamp(v, 0, 65535))
			if s.attachment.Mask {
				q = q&^1 | uint16(maskBit)
			}
			level0[i*2] = byte(q)
			level0[i*2+1] = byte(q >> 8)
		case tundra.FormatRF32:
			bits := math.Float32bits(float32(v))
			if s.attachment.Mask {
				bits = bits&^1 | maskBit
			}
			level0[i*4] = byte(bits)
			level0[i*4+1] = byte(bits >> 8)
			level0[i*4+2] = byte(bits >> 16)
			level0[i*4+3] = byte(bits >> 24)
		case tundra.FormatRgba8:
			q := byte(clamp(v, 0, 255))
			level0[i*4] = q
			level0[i*4+1] = q
			level0[i*4+2] = q
			level0[i*4+3] = 0xFF
		case tundra.FormatRgbU8:
			q := byte(clamp(v, 0, 255))
			level0[i*3] = q
			level0[i*3+1] = q
			level0[i*3+2] = q
		}
	}

	data, err := tundra.NewAttachmentData(s.attachment, level0)
	if err != nil {
		return nil, err
	}
	data.GenerateMipmaps()
	return data, nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
