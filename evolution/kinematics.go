package evolution

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/pthm-cable/pbd/components"
	"github.com/pthm-cable/pbd/particles"
)

// KinematicUpdateFunc moves one kinematic particle for a step ending at
// localTime. It must leave P and Q equal to X and R.
type KinematicUpdateFunc func(store *particles.Store, h particles.Handle, dt, localTime float64)

// SetKinematicUpdate replaces the kinematic update. Nil restores
// InterpolateKinematics.
func (e *Evolution) SetKinematicUpdate(fn KinematicUpdateFunc) {
	if fn == nil {
		fn = e.InterpolateKinematics
	}
	e.kinematicUpdate = fn
}

// FrameStart returns the simulated time at which the current frame began.
func (e *Evolution) FrameStart() float64 { return e.frameStart }

// FrameDuration returns the length of the current frame.
func (e *Evolution) FrameDuration() float64 { return e.frameDt }

// Alpha returns how far localTime is through the current frame, in [0, 1].
func (e *Evolution) Alpha(localTime float64) float64 {
	if e.frameDt <= 0 {
		return 1
	}
	a := (localTime - e.frameStart) / e.frameDt
	return mgl64.Clamp(a, 0, 1)
}

// InterpolateKinematics moves a kinematic particle along its target from
// the previous to the next transform. Particles without an active target
// integrate their own velocity.
func (e *Evolution) InterpolateKinematics(store *particles.Store, h particles.Handle, dt, localTime float64) {
	p := store.Get(h)
	oldX, oldR := p.X, p.R

	target, ok := store.KinematicTarget(h)
	if ok && target.Active {
		alpha := e.Alpha(localTime)
		p.X = target.Prev.X.Add(target.Next.X.Sub(target.Prev.X).Mul(alpha))
		p.R = mgl64.QuatSlerp(target.Prev.R, components.EnforceShortestArc(target.Next.R, target.Prev.R), alpha).Normalize()
		if alpha >= 1 {
			target.Prev = target.Next
		}
		p.V = p.X.Sub(oldX).Mul(1 / dt)
		p.W = components.AngularVelocity(oldR, p.R, dt)
	} else {
		p.X = p.X.Add(p.V.Mul(dt))
		p.R = components.IntegrateRotation(p.R, p.W.Mul(dt))
	}
	p.P, p.Q = p.X, p.R
}

func (e *Evolution) updateKinematics(dt float64) int {
	handles := e.store.ActiveKinematicView().Handles()
	localTime := e.time + dt
	for _, h := range handles {
		e.kinematicUpdate(e.store, h, dt, localTime)
	}
	return len(handles)
}

// KinematicTransform returns the transform a kinematic particle will have at
// localTime, without moving it.
func (e *Evolution) KinematicTransform(h particles.Handle, localTime float64) components.Transform {
	target, ok := e.store.KinematicTarget(h)
	if !ok || !target.Active {
		return *e.store.Get(h).Transform
	}
	alpha := e.Alpha(localTime)
	return components.Transform{
		X: target.Prev.X.Add(target.Next.X.Sub(target.Prev.X).Mul(alpha)),
		R: mgl64.QuatSlerp(target.Prev.R, components.EnforceShortestArc(target.Next.R, target.Prev.R), alpha).Normalize(),
	}
}
