package tundra

import (
	"errors"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"
)

// TerrainViewConfig tunes the streaming and tessellation behavior of one
// view onto a terrain. Distances are measured in tile sizes of the LOD
// under consideration, so one config works across all levels.
type TerrainViewConfig struct {
	// TreeSize is the width of the tile-tree window at every LOD,
	// typically 8 or 16.
	TreeSize uint32
	// GridSize is the tessellation density of one render tile.
	GridSize uint32
	// RefinementCount bounds the prepass subdivision iterations.
	RefinementCount uint32
	// ViewDistance scales the projected-size threshold that triggers
	// tile subdivision in the prepass.
	ViewDistance float32
	// LoadDistance bounds which tiles the tile tree requests.
	LoadDistance float32
	// MorphDistance parameterizes the tessellation morph band.
	MorphDistance float32
	// BlendDistance parameterizes the LOD blend band.
	BlendDistance float32
}

// DefaultTerrainViewConfig returns the default view tuning.
func DefaultTerrainViewConfig() TerrainViewConfig {
	return TerrainViewConfig{
		TreeSize:        8,
		GridSize:        16,
		RefinementCount: 24,
		ViewDistance:    6,
		LoadDistance:    5,
		MorphDistance:   4,
		BlendDistance:   3,
	}
}

// Validate checks the config invariants.
func (c TerrainViewConfig) Validate() error {
	if c.TreeSize < 2 {
		return errors.New("tundra: view tree size must be at least 2")
	}
	if c.GridSize == 0 {
		return errors.New("tundra: view grid size must be positive")
	}
	if c.RefinementCount == 0 {
		return errors.New("tundra: view refinement count must be positive")
	}
	if c.ViewDistance <= 0 || c.LoadDistance <= 0 || c.MorphDistance <= 0 || c.BlendDistance <= 0 {
		return errors.New("tundra: view distances must be positive")
	}
	return nil
}

// TerrainView is the per-view state of a terrain: the camera pose fed in
// by the host, the tile tree streaming around it, and the per-face surface
// approximations handed to the GPU.
type TerrainView struct {
	Config TerrainViewConfig

	// CameraPosition is the viewer position in terrain-local space,
	// double precision: planetary scales exceed float32 near the surface.
	CameraPosition mgl64.Vec3
	// ViewProjection is the camera clip-from-local matrix.
	ViewProjection mgl64.Mat4

	tree           *TileTree
	frustum        Frustum
	approximations []SurfaceApproximation
	prepass        *Prepass
}

// NewTerrainView binds a view onto a terrain.
func NewTerrainView(terrain *Terrain, config TerrainViewConfig) (*TerrainView, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	tree, err := NewTileTree(terrain.Config.Shape, terrain.Config.LODCount, config.TreeSize, &config)
	if err != nil {
		return nil, err
	}
	tree.SetHeightBounds(terrain.Config.MinHeight, terrain.Config.MaxHeight)

	view := &TerrainView{
		Config:         config,
		tree:           tree,
		approximations: make([]SurfaceApproximation, terrain.Config.Shape.FaceCount()),
	}
	view.prepass = NewPrepass(terrain.Config.Shape, &view.Config)
	terrain.attachView(view)
	return view, nil
}

// Tree exposes the view's tile tree.
func (v *TerrainView) Tree() *TileTree { return v.tree }

// Prepass exposes the view's refinement state.
func (v *TerrainView) Prepass() *Prepass { return v.prepass }

// Approximation returns the surface approximation of a face for the
// current camera position.
func (v *TerrainView) Approximation(face uint8) *SurfaceApproximation {
	return &v.approximations[face]
}

// update runs the per-view stages of the frame in their required order:
// tile-tree requests, atlas adjustment, height approximation, surface
// approximation. Called from Terrain.Update once per stage: tile-tree
// requests before the loader runs, the other stages after it.
func (v *TerrainView) update(terrain *Terrain, stage viewStage) {
	switch stage {
	case stageComputeRequests:
		v.tree.ComputeRequests(terrain.Atlas, v.CameraPosition)
	case stageAdjustToAtlas:
		v.tree.AdjustToAtlas(terrain.Atlas)
		v.frustum = FrustumFromMatrix(v.ViewProjection)
		for face := range v.approximations {
			v.approximations[face] = ApproximateSurface(
				terrain.Config.Shape, uint8(face), v.CameraPosition,
			)
		}
	}
}

type viewStage uint8

const (
	stageComputeRequests viewStage = iota
	stageAdjustToAtlas
)

// ViewUniform is the GPU-facing snapshot of the view, single precision
// relative to the floating origin at the camera position.
type ViewUniform struct {
	// ViewProjection is relative to the floating origin: translation by
	// the camera position is folded in before the precision drop.
	ViewProjection mgl32.Mat4
	FrustumPlanes  [6]mgl32.Vec4

	TreeSize        uint32
	GridSize        uint32
	RefinementCount uint32

	ViewDistance  float32
	LoadDistance  float32
	MorphDistance float32
	BlendDistance float32

	HeightUnderViewer float32
}

// Uniform extracts the view uniform for the GPU mirror.
func (v *TerrainView) Uniform() ViewUniform {
	// Fold the floating-origin translation into the matrix in double
	// precision, then convert.
	origin := mgl64.Translate3D(v.CameraPosition[0], v.CameraPosition[1], v.CameraPosition[2])
	relative := v.ViewProjection.Mul4(origin)

	uniform := ViewUniform{
		ViewProjection:    mat4To32(relative),
		TreeSize:          v.Config.TreeSize,
		GridSize:          v.Config.GridSize,
		RefinementCount:   v.Config.RefinementCount,
		ViewDistance:      v.Config.ViewDistance,
		LoadDistance:      v.Config.LoadDistance,
		MorphDistance:     v.Config.MorphDistance,
		BlendDistance:     v.Config.BlendDistance,
		HeightUnderViewer: v.tree.HeightUnderViewer(),
	}

	for i, plane := range v.frustum.Planes {
		uniform.FrustumPlanes[i] = mgl32.Vec4{
			float32(plane[0]), float32(plane[1]), float32(plane[2]), float32(plane[3]),
		}
	}

	return uniform
}

func mat4To32(m mgl64.Mat4) mgl32.Mat4 {
	var out mgl32.Mat4
	for i := 0; i < 16; i++ {
		out[i] = float32(m[i])
	}
	return out
}
