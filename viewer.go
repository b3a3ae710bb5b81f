package tundra

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"
)

// flyAnim holds the active fly-to tweens for the viewer position.
type flyAnim struct {
	tweens [3]*gween.Tween
	done   [3]bool
}

// Viewer is a simple terrain camera for hosts that do not bring their own
// controller: a position and look target in terrain-local space with
// animated fly-to, feeding a view's camera pose each frame.
type Viewer struct {
	// Position is the camera position in terrain-local space.
	Position mgl64.Vec3
	// Target is the look-at point.
	Target mgl64.Vec3
	// Up is the camera up direction.
	Up mgl64.Vec3

	// FOV is the vertical field of view in radians.
	FOV float64
	// Near and Far are the clip distances.
	Near, Far float64

	fly *flyAnim
}

// NewViewer creates a viewer looking at the terrain origin.
func NewViewer(position mgl64.Vec3) *Viewer {
	return &Viewer{
		Position: position,
		Up:       mgl64.Vec3{0, 1, 0},
		FOV:      math.Pi / 4,
		Near:     0.1,
		Far:      1e9,
	}
}

// FlyTo animates the viewer to the given position over duration seconds.
func (v *Viewer) FlyTo(position mgl64.Vec3, duration float32, easeFn ease.TweenFunc) {
	v.fly = &flyAnim{}
	for i := 0; i < 3; i++ {
		v.fly.tweens[i] = gween.New(float32(v.Position[i]), float32(position[i]), duration, easeFn)
	}
}

// Update advances the fly animation and writes the camera pose into the
// view. aspect is the destination width over height.
func (v *Viewer) Update(view *TerrainView, dt float32, aspect float64) {
	if v.fly != nil {
		allDone := true
		for i := 0; i < 3; i++ {
			if v.fly.done[i] {
				continue
			}
			value, done := v.fly.tweens[i].Update(dt)
			v.Position[i] = float64(value)
			v.fly.done[i] = done
			allDone = allDone && done
		}
		if allDone {
			v.fly = nil
		}
	}

	view.CameraPosition = v.Position
	view.ViewProjection = v.projection(aspect).Mul4(v.lookAt())
}

func (v *Viewer) lookAt() mgl64.Mat4 {
	return mgl64.LookAtV(v.Position, v.Target, v.Up)
}

func (v *Viewer) projection(aspect float64) mgl64.Mat4 {
	return mgl64.Perspective(v.FOV, aspect, v.Near, v.Far)
}
