// Package camera provides a 3D orbit camera for the viewer. It holds no
// window state; the renderer turns it into a raylib camera.
package camera

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Orbit circles a target point. World space is Z-up.
type Orbit struct {
	// Target is the point the camera looks at.
	Target mgl64.Vec3

	// Yaw is measured from +X about +Z, pitch from the XY plane. Degrees.
	Yaw, Pitch float64

	// Distance from target to eye.
	Distance float64

	// Zoom constraints
	MinDistance, MaxDistance float64

	Fovy float64

	// Mouse sensitivity in degrees per pixel and the wheel zoom step.
	LookSpeed float64
	ZoomStep  float64

	home struct {
		target     mgl64.Vec3
		yaw, pitch float64
		distance   float64
	}
}

// New creates a camera looking at target from distance, slightly above the
// XY plane.
func New(target mgl64.Vec3, distance float64) *Orbit {
	c := &Orbit{
		Target:      target,
		Yaw:         -90,
		Pitch:       20,
		Distance:    distance,
		MinDistance: distance / 20,
		MaxDistance: distance * 20,
		Fovy:        45,
		LookSpeed:   0.3,
		ZoomStep:    1.1,
	}
	c.home.target, c.home.yaw, c.home.pitch, c.home.distance = target, c.Yaw, c.Pitch, distance
	return c
}

// forward returns the unit vector from the eye toward the target.
func (c *Orbit) forward() mgl64.Vec3 {
	yaw := mgl64.DegToRad(c.Yaw)
	pitch := mgl64.DegToRad(c.Pitch)
	return mgl64.Vec3{
		-math.Cos(pitch) * math.Cos(yaw),
		-math.Cos(pitch) * math.Sin(yaw),
		-math.Sin(pitch),
	}
}

// Position returns the eye position.
func (c *Orbit) Position() mgl64.Vec3 {
	return c.Target.Sub(c.forward().Mul(c.Distance))
}

// Rotate changes yaw and pitch by the given degrees. Pitch stays within
// (-89, 89) so the up vector never flips.
func (c *Orbit) Rotate(dyaw, dpitch float64) {
	c.Yaw = math.Mod(c.Yaw+dyaw, 360)
	c.Pitch = mgl64.Clamp(c.Pitch+dpitch, -89, 89)
}

// SetDistance sets the eye distance, clamped to min/max.
func (c *Orbit) SetDistance(d float64) {
	c.Distance = mgl64.Clamp(d, c.MinDistance, c.MaxDistance)
}

// ZoomBy divides the distance by factor: factors above 1 move closer.
func (c *Orbit) ZoomBy(factor float64) {
	if factor <= 0 {
		return
	}
	c.SetDistance(c.Distance / factor)
}

// Pan moves the target in the view plane by the given delta in world units.
func (c *Orbit) Pan(right, up float64) {
	f := c.forward()
	r := f.Cross(mgl64.Vec3{0, 0, 1})
	if r.Len() < 1e-9 {
		r = mgl64.Vec3{1, 0, 0}
	}
	r = r.Normalize()
	u := r.Cross(f).Normalize()
	c.Target = c.Target.Add(r.Mul(right)).Add(u.Mul(up))
}

// Focus centres the camera on a sphere and backs off far enough to see it.
func (c *Orbit) Focus(center mgl64.Vec3, radius float64) {
	c.Target = center
	half := mgl64.DegToRad(c.Fovy / 2)
	c.SetDistance(radius / math.Sin(half))
}

// Reset returns the camera to where New put it.
func (c *Orbit) Reset() {
	c.Target = c.home.target
	c.Yaw, c.Pitch = c.home.yaw, c.home.pitch
	c.Distance = c.home.distance
}
