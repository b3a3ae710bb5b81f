package preprocess

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/phanxgames/tundra"
)

// Config drives one preprocessing run: the sources to ingest, the terrain
// to produce and the attachment layout to produce it with.
type Config struct {
	SourcePaths []string
	TerrainPath string
	// TempPath, when set, receives tile files before they move into the
	// terrain directory, keeping half-written runs out of it.
	TempPath string

	// Overwrite allows replacing an existing terrain config.
	Overwrite bool
	// NoData overrides the source no-data value; NaN keeps the source's.
	NoData float64
	// FillRadius is the no-data fill search radius in pixels; 0 disables
	// filling.
	FillRadius float64
	// CreateMask writes the validity mask into the pixel LSBs.
	CreateMask bool

	Shape    tundra.TerrainShape
	LODCount uint32

	Attachment tundra.AttachmentConfig

	MinHeight float32
	MaxHeight float32

	// Concurrency bounds the worker pool; 0 uses RAYON_NUM_THREADS /
	// GDAL_NUM_THREADS or the CPU count.
	Concurrency int

	// Progress, when set, receives per-stage completion callbacks.
	Progress func(stage string, done, total int)
}

// Validate checks the run configuration.
func (c *Config) Validate() error {
	if len(c.SourcePaths) == 0 {
		return errors.New("preprocess: no source datasets")
	}
	if c.TerrainPath == "" {
		return errors.New("preprocess: no terrain path")
	}
	if c.Shape == nil {
		return errors.New("preprocess: no terrain shape")
	}
	if c.LODCount == 0 || c.LODCount > 24 {
		return fmt.Errorf("preprocess: lod count %d out of range [1,24]", c.LODCount)
	}
	return c.Attachment.Validate()
}

// Run executes the full pipeline: reproject, split, downsample, stitch,
// fill, then writes the tiles and the terrain config record.
func Run(config *Config) (*tundra.TerrainConfig, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	configPath := filepath.Join(config.TerrainPath, tundra.TerrainConfigFile)
	if _, err := os.Stat(configPath); err == nil && !config.Overwrite {
		return nil, fmt.Errorf("preprocess: %s exists (use overwrite)", configPath)
	}

	pool := newWorkerPool(config.Concurrency)
	store := newTileStore(config.TerrainPath, config.Attachment)
	baseLOD := config.LODCount - 1

	progress := config.Progress
	if progress == nil {
		progress = func(string, int, int) {}
	}

	// Reproject + split, one source at a time.
	var splitTiles []tundra.TileCoordinate
	for i, path := range config.SourcePaths {
		source, err := LoadSourceDataset(path, config.NoData)
		if err != nil {
			return nil, err
		}

		coverages := Reproject(config.Shape, source, baseLOD)
		if len(coverages) == 0 {
			return nil, fmt.Errorf("preprocess: source %s covers no terrain face", path)
		}

		for _, coverage := range coverages {
			splitTiles = append(splitTiles, Split(store, config.Shape, source, coverage, pool)...)
		}
		progress("split", i+1, len(config.SourcePaths))
	}
	if len(splitTiles) == 0 {
		return nil, errors.New("preprocess: sources produced no tiles")
	}

	// Downsample the coarser levels from the split output.
	allTiles := dedupe(Downsample(store, splitTiles, pool))
	progress("downsample", 1, 1)

	// Stitch per level so borders always read finished interiors.
	for lod := int64(baseLOD); lod >= 0; lod-- {
		level := store.coordinates(uint32(lod))
		Stitch(store, config.Shape, level, pool)
		progress("stitch", int(baseLOD)-int(lod)+1, int(baseLOD)+1)
	}

	// Fill gaps and optionally record the validity mask.
	Fill(store, allTiles, config.FillRadius, config.CreateMask, pool)
	progress("fill", 1, 1)

	if err := flushStore(store, config); err != nil {
		return nil, err
	}

	terrainConfig := &tundra.TerrainConfig{
		Shape:       config.Shape,
		Path:        config.TerrainPath,
		LODCount:    config.LODCount,
		MinHeight:   config.MinHeight,
		MaxHeight:   config.MaxHeight,
		Attachments: []tundra.AttachmentConfig{config.Attachment},
		Tiles:       sortTiles(allTiles),
	}
	if err := tundra.SaveTerrainConfig(terrainConfig); err != nil {
		return nil, err
	}

	progress("done", 1, 1)
	return terrainConfig, nil
}

// flushStore writes the tiles, staging through the temp path when one is
// configured.
func flushStore(store *tileStore, config *Config) error {
	if config.TempPath == "" {
		return store.flush()
	}

	finalPath := store.path
	store.path = filepath.Join(config.TempPath, string(config.Attachment.Label))
	if err := store.flush(); err != nil {
		store.path = finalPath
		return err
	}

	stagedPath := store.path
	store.path = finalPath

	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return err
	}
	if err := os.RemoveAll(finalPath); err != nil {
		return err
	}
	return os.Rename(stagedPath, finalPath)
}

func dedupe(tiles []tundra.TileCoordinate) []tundra.TileCoordinate {
	seen := make(map[tundra.TileCoordinate]struct{}, len(tiles))
	out := tiles[:0]
	for _, tile := range tiles {
		if _, ok := seen[tile]; ok {
			continue
		}
		seen[tile] = struct{}{}
		out = append(out, tile)
	}
	return out
}

func sortTiles(tiles []tundra.TileCoordinate) []tundra.TileCoordinate {
	sort.Slice(tiles, func(i, j int) bool {
		a, b := tiles[i], tiles[j]
		if a.Face != b.Face {
			return a.Face < b.Face
		}
		if a.LOD != b.LOD {
			return a.LOD < b.LOD
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.X < b.X
	})
	return tiles
}

// NoDataFromSource is the sentinel for "keep the source's no-data value".
func NoDataFromSource() float64 {
	return math.NaN()
}
