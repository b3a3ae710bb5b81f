// Package tundra is a virtual-texture terrain streaming engine for
// [Ebitengine].
//
// Tundra renders arbitrarily large planar or planetary (cube-sphere /
// WGS84) terrains at interactive framerates by decoupling terrain size
// from on-screen cost: data tiles stream on demand into a fixed-size
// atlas, a per-view tile tree picks the right tile for every piece of
// surface, and a refinement prepass turns the visible surface into a draw
// list at uniform screen-space density.
//
// # Quick start
//
// Load a preprocessed terrain, bind a view, and drive both from an
// [ebiten.Game]:
//
//	terrain, err := tundra.LoadTerrain("assets/earth")
//	view, err := tundra.NewTerrainView(terrain, tundra.DefaultTerrainViewConfig())
//	viewer := tundra.NewViewer(mgl64.Vec3{0, 0, 3 * radius})
//
//	func (g *Game) Update() error {
//		g.viewer.Update(g.view, 1.0/60, 16.0/9)
//		g.terrain.Update()
//		return nil
//	}
//
//	func (g *Game) Draw(screen *ebiten.Image) {
//		g.terrain.Draw(screen, g.view, tundra.DefaultMaterial())
//	}
//
// Terrain datasets are produced offline by the btpp preprocessor (see
// cmd/btpp and the preprocess package), which reprojects georeferenced
// rasters onto the cube sphere and splits them into border-padded tile
// pyramids.
//
// # Pipeline
//
// Each frame flows camera pose -> tile-tree refinement -> atlas requests
// -> loader -> atlas uploads -> GPU mirror -> prepass -> draw. Only the
// loader and the preprocessor ever block; the frame loop polls.
//
// Materials are Kage shaders registered in the shader registry; the
// engine owns the vertex stage (surface evaluation, height displacement,
// LOD morphing) and samples attachments through the tile tree.
//
// [Ebitengine]: https://ebitengine.org
package tundra
