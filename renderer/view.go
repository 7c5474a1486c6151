package renderer

import (
	"math"

	rl "github.com/gen2brain/raylib-go/raylib"
	"github.com/go-gl/mathgl/mgl64"

	"github.com/pthm-cable/pbd/camera"
)

// Vector3 converts a solver vector to raylib's float32 vector.
func Vector3(v mgl64.Vec3) rl.Vector3 {
	return rl.Vector3{X: float32(v[0]), Y: float32(v[1]), Z: float32(v[2])}
}

// Camera3D returns the raylib camera for an orbit camera. The world is Z-up.
func Camera3D(c *camera.Orbit) rl.Camera3D {
	return rl.Camera3D{
		Position:   Vector3(c.Position()),
		Target:     Vector3(c.Target),
		Up:         rl.Vector3{X: 0, Y: 0, Z: 1},
		Fovy:       float32(c.Fovy),
		Projection: rl.CameraPerspective,
	}
}

// UpdateCamera applies mouse input: right drag orbits, middle drag pans and
// the wheel zooms. Input over the HUD should be filtered by the caller.
func UpdateCamera(c *camera.Orbit) {
	delta := rl.GetMouseDelta()
	if rl.IsMouseButtonDown(rl.MouseButtonRight) {
		c.Rotate(-float64(delta.X)*c.LookSpeed, float64(delta.Y)*c.LookSpeed)
	}
	if rl.IsMouseButtonDown(rl.MouseButtonMiddle) {
		scale := c.Distance / 500
		c.Pan(-float64(delta.X)*scale, float64(delta.Y)*scale)
	}
	if wheel := rl.GetMouseWheelMove(); wheel != 0 {
		c.ZoomBy(math.Pow(c.ZoomStep, float64(wheel)))
	}
}

// DrawGround draws a grid in the XY plane at height z.
func DrawGround(z float32, slices int32, spacing float32) {
	rl.PushMatrix()
	rl.Translatef(0, 0, z)
	// DrawGrid lies in raylib's XZ plane.
	rl.Rotatef(90, 1, 0, 0)
	rl.DrawGrid(slices, spacing)
	rl.PopMatrix()
}
