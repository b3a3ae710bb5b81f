package tundra

import (
	"errors"
	"fmt"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
)

// TerrainConfig describes one terrain dataset: its shape, the attachment
// layout, and which tiles exist on disk. Configs come from the
// preprocessor via config.tc.ron or are built in code for procedural
// terrains.
type TerrainConfig struct {
	Shape TerrainShape
	// Path is the terrain directory holding the attachment tiles.
	Path string
	// LODCount is the number of levels in the tile hierarchy; LOD 0 is
	// the coarsest with a single tile per face.
	LODCount uint32
	// MinHeight and MaxHeight bound the height attachment values in
	// local units.
	MinHeight float32
	MaxHeight float32

	Attachments []AttachmentConfig
	// Tiles lists the tiles that exist on disk; everything else resolves
	// to zero data without touching the loader.
	Tiles []TileCoordinate

	// AtlasSize is the slot capacity of the tile atlas. Defaults to 512.
	AtlasSize uint32
	// LoaderWorkers is the number of loader goroutines. Defaults to 4.
	LoaderWorkers int
}

// Validate checks the construction invariants. Configuration errors are
// fatal at construction and never deferred into the frame loop.
func (c *TerrainConfig) Validate() error {
	if c.Shape == nil {
		return errors.New("tundra: terrain config without shape")
	}
	if c.LODCount == 0 || c.LODCount > 24 {
		return fmt.Errorf("tundra: lod count %d out of range [1,24]", c.LODCount)
	}
	if c.MaxHeight < c.MinHeight {
		return fmt.Errorf("tundra: max height %g below min height %g", c.MaxHeight, c.MinHeight)
	}
	if len(c.Attachments) == 0 {
		return errors.New("tundra: terrain config without attachments")
	}
	for _, attachment := range c.Attachments {
		if err := attachment.Validate(); err != nil {
			return err
		}
	}
	for _, tile := range c.Tiles {
		if tile.LOD >= c.LODCount || !tile.Valid() {
			return fmt.Errorf("tundra: tile %s outside the terrain hierarchy", tile)
		}
	}
	return nil
}

// Terrain owns the shared streaming state of one terrain dataset: the
// tile atlas, the loader and the views bound to it.
type Terrain struct {
	Config *TerrainConfig
	Atlas  *TileAtlas
	Loader *AttachmentLoader

	views      []*TerrainView
	mirrors    map[*TerrainView]*GPUMirror
	renderPass RenderPass
	frame      uint64
}

// NewTerrain builds a terrain from a config value.
func NewTerrain(config *TerrainConfig) (*Terrain, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	atlasSize := config.AtlasSize
	if atlasSize == 0 {
		atlasSize = 512
	}
	workers := config.LoaderWorkers
	if workers == 0 {
		workers = 4
	}

	atlas, err := NewTileAtlas(atlasSize, config.Attachments, config.Tiles)
	if err != nil {
		return nil, err
	}

	return &Terrain{
		Config:  config,
		Atlas:   atlas,
		Loader:  NewAttachmentLoader(config.Path, workers, workers*4),
		mirrors: map[*TerrainView]*GPUMirror{},
	}, nil
}

// LoadTerrain builds a terrain from the config record in a terrain
// directory.
func LoadTerrain(path string) (*Terrain, error) {
	config, err := LoadTerrainConfig(path)
	if err != nil {
		return nil, err
	}
	return NewTerrain(config)
}

// Dispose stops the loader. Views bound to the terrain become inert.
func (t *Terrain) Dispose() {
	t.Loader.Close()
}

// Frame returns the current frame number.
func (t *Terrain) Frame() uint64 { return t.frame }

// Views returns the views bound to this terrain.
func (t *Terrain) Views() []*TerrainView { return t.views }

// Mirror returns the extracted GPU state of a view.
func (t *Terrain) Mirror(view *TerrainView) *GPUMirror { return t.mirrors[view] }

func (t *Terrain) attachView(view *TerrainView) {
	t.views = append(t.views, view)
	t.mirrors[view] = NewGPUMirror(view.Tree())
}

// DetachView releases every atlas slot the view holds and unbinds it.
func (t *Terrain) DetachView(view *TerrainView) {
	for i, v := range t.views {
		if v != view {
			continue
		}
		for c := range view.Tree().cells {
			cell := &view.Tree().cells[c]
			if cell.state != cellEmpty {
				t.Atlas.Release(cell.index)
				cell.state = cellEmpty
				cell.index = SentinelAtlasIndex
			}
		}
		t.views = append(t.views[:i], t.views[i+1:]...)
		delete(t.mirrors, view)
		return
	}
}

// Update runs one frame of the streaming pipeline. The stage order is a
// hard invariant: every stage writes state the next one reads.
//
//	tile-tree requests -> atlas/loader update -> tile-tree adjust ->
//	height + surface approximation -> GPU mirror extract -> prepass
//
// The draw itself happens in Draw, from Ebitengine's render callback.
func (t *Terrain) Update() {
	t.frame++
	t.Atlas.BeginFrame()

	var stats debugStats
	stamp := time.Now()
	stage := func(d *time.Duration) {
		if globalDebug {
			now := time.Now()
			*d = now.Sub(stamp)
			stamp = now
		}
	}

	for _, view := range t.views {
		view.update(t, stageComputeRequests)
	}
	stage(&stats.requestTime)

	t.Loader.Update(t.Atlas)
	stage(&stats.loaderTime)

	for _, view := range t.views {
		view.update(t, stageAdjustToAtlas)
	}
	stage(&stats.adjustTime)

	for _, view := range t.views {
		t.mirrors[view].Extract(t.Config, view)
	}
	stage(&stats.extractTime)

	for _, view := range t.views {
		view.Prepass().Run(
			view.CameraPosition,
			view.frustum,
			view.Tree().HeightUnderViewer(),
			t.Config.MinHeight,
			t.Config.MaxHeight,
		)
	}
	stage(&stats.prepassTime)

	stats.pressure = t.Atlas.Pressure()
	t.debugLog(stats)
}

// Draw uploads pending tiles and renders one view with the material.
func (t *Terrain) Draw(dst *ebiten.Image, view *TerrainView, material Material) error {
	t.Atlas.PollUploads()
	return t.renderPass.Draw(dst, t, view, material)
}
