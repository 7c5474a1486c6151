package constraints

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/pthm-cable/pbd/components"
)

const (
	linearEpsilon = 1e-8
	weightEpsilon = 1e-12
)

// solveBody is the working copy of one body for the duration of a joint solve.
type solveBody struct {
	p    mgl64.Vec3
	q    mgl64.Quat
	v    mgl64.Vec3
	w    mgl64.Vec3
	invM float64
	invI mgl64.Vec3
}

func (b *solveBody) worldInvInertia() mgl64.Mat3 {
	r := b.q.Mat4().Mat3()
	return r.Mul3(mgl64.Diag3(b.invI)).Mul3(r.Transpose())
}

// jointSolve holds one joint's working state. Body 0 is the parent, whose
// joint frame is the space the limits are expressed in.
type jointSolve struct {
	settings *JointSolverSettings
	joint    *JointSettings
	frames   [2]components.Transform
	b        [2]solveBody
}

func (j *jointSolve) frameWorld(i int) (mgl64.Vec3, mgl64.Quat) {
	b := &j.b[i]
	return b.p.Add(b.q.Rotate(j.frames[i].X)), b.q.Mul(j.frames[i].R)
}

// relativeRotation returns the child frame rotation in parent frame space
// along with both world frame rotations.
func (j *jointSolve) relativeRotation() (r0, r1, r01 mgl64.Quat) {
	_, r0 = j.frameWorld(0)
	_, r1 = j.frameWorld(1)
	r01 = r0.Conjugate().Mul(r1)
	if r01.W < 0 {
		r01 = r01.Scale(-1)
	}
	return r0, r1, r01
}

// swingTwist decomposes q = swing * twist with twist about X.
func swingTwist(q mgl64.Quat) (swing, twist mgl64.Quat) {
	t := mgl64.Quat{W: q.W, V: mgl64.Vec3{q.V[0], 0, 0}}
	if t.Len() < 1e-9 {
		return q, mgl64.QuatIdent()
	}
	twist = t.Normalize()
	if twist.W < 0 {
		twist = twist.Scale(-1)
	}
	swing = q.Mul(twist.Conjugate())
	if swing.W < 0 {
		swing = swing.Scale(-1)
	}
	return swing, twist
}

func twistAngle(twist mgl64.Quat) float64 {
	return 2 * math.Atan2(twist.V[0], twist.W)
}

// limitError returns how far angle lies outside the allowed range for the
// motion type. Free axes never report an error.
func limitError(motion MotionType, angle, limit float64) float64 {
	switch motion {
	case MotionLocked:
		return angle
	case MotionLimited:
		if angle > limit {
			return angle - limit
		}
		if angle < -limit {
			return angle + limit
		}
	}
	return 0
}

// applyPositionCorrection moves the attachment points x0 (parent) and x1
// (child) toward each other to remove stiffness * err, err = x1 - x0.
func (j *jointSolve) applyPositionCorrection(x0, x1, err mgl64.Vec3, stiffness float64) {
	c := err.Len()
	if c < linearEpsilon || stiffness <= 0 {
		return
	}
	n := err.Mul(1 / c)
	b0, b1 := &j.b[0], &j.b[1]
	r0 := x0.Sub(b0.p)
	r1 := x1.Sub(b1.p)
	ii0 := b0.worldInvInertia()
	ii1 := b1.worldInvInertia()
	rn0 := r0.Cross(n)
	rn1 := r1.Cross(n)
	w := b0.invM + ii0.Mul3x1(rn0).Dot(rn0) + b1.invM + ii1.Mul3x1(rn1).Dot(rn1)
	if w < weightEpsilon {
		return
	}
	impulse := n.Mul(stiffness * c / w)

	b0.p = b0.p.Add(impulse.Mul(b0.invM))
	b0.q = components.IntegrateRotation(b0.q, ii0.Mul3x1(r0.Cross(impulse)))
	b1.p = b1.p.Sub(impulse.Mul(b1.invM))
	b1.q = components.IntegrateRotation(b1.q, ii1.Mul3x1(r1.Cross(impulse)).Mul(-1))
}

// applyAngularCorrection rotates the child by -stiffness*angle about the
// world axis relative to the parent, split by angular inverse inertia.
func (j *jointSolve) applyAngularCorrection(axis mgl64.Vec3, angle, stiffness float64) {
	if math.Abs(angle) <= j.settings.SwingTwistAngleTolerance || stiffness <= 0 {
		return
	}
	b0, b1 := &j.b[0], &j.b[1]
	ii0 := b0.worldInvInertia()
	ii1 := b1.worldInvInertia()
	w := ii0.Mul3x1(axis).Dot(axis) + ii1.Mul3x1(axis).Dot(axis)
	if w < weightEpsilon {
		return
	}
	lambda := stiffness * angle / w
	b0.q = components.IntegrateRotation(b0.q, ii0.Mul3x1(axis).Mul(lambda))
	b1.q = components.IntegrateRotation(b1.q, ii1.Mul3x1(axis).Mul(-lambda))
}

// linearError returns both world attachment points and the part of their
// separation that violates the linear motion settings.
func (j *jointSolve) linearError() (x0, x1, err mgl64.Vec3) {
	x0, r0 := j.frameWorld(0)
	x1, _ = j.frameWorld(1)
	local := r0.Conjugate().Rotate(x1.Sub(x0))

	var locked, limited mgl64.Vec3
	for k := 0; k < 3; k++ {
		switch j.joint.LinearMotion[k] {
		case MotionLocked:
			locked[k] = local[k]
		case MotionLimited:
			limited[k] = local[k]
		}
	}
	errLocal := locked
	if d := limited.Len(); d > j.joint.LinearLimit && d > linearEpsilon {
		errLocal = errLocal.Add(limited.Mul(1 - j.joint.LinearLimit/d))
	}
	return x0, x1, r0.Rotate(errLocal)
}

func (j *jointSolve) applyLinear(stiffness float64) {
	x0, x1, err := j.linearError()
	j.applyPositionCorrection(x0, x1, err, stiffness)
}

func (j *jointSolve) twistError() (mgl64.Vec3, float64) {
	_, r1, r01 := j.relativeRotation()
	_, twist := swingTwist(r01)
	angle := twistAngle(twist)
	return r1.Rotate(twistAxis), limitError(j.joint.AngularMotion[Twist], angle, j.joint.AngularLimits[Twist])
}

func (j *jointSolve) applyTwist(stiffness float64) {
	axis, err := j.twistError()
	j.applyAngularCorrection(axis, err, stiffness)
}

// ellipticalLimit returns the cone limit along a swing axis lying in the
// constraint YZ plane.
func ellipticalLimit(axis mgl64.Vec3, swing1Limit, swing2Limit float64) float64 {
	if swing1Limit <= 0 || swing2Limit <= 0 {
		return 0
	}
	ay := axis[1] / swing2Limit
	az := axis[2] / swing1Limit
	d := math.Sqrt(ay*ay + az*az)
	if d < 1e-12 {
		return math.Max(swing1Limit, swing2Limit)
	}
	return 1 / d
}

func (j *jointSolve) coneError() (mgl64.Vec3, float64) {
	r0, _, r01 := j.relativeRotation()
	swing, _ := swingTwist(r01)
	axis, angle := components.AxisAngle(swing)
	if angle == 0 {
		return mgl64.Vec3{}, 0
	}
	limit := ellipticalLimit(axis, j.joint.AngularLimits[Swing1], j.joint.AngularLimits[Swing2])
	if angle <= limit {
		return mgl64.Vec3{}, 0
	}
	return r0.Rotate(axis), angle - limit
}

func (j *jointSolve) applyCone(stiffness float64) {
	axis, err := j.coneError()
	j.applyAngularCorrection(axis, err, stiffness)
}

// swingError handles a single swing axis as an arc limit or lock.
func (j *jointSolve) swingError(index int) (mgl64.Vec3, float64) {
	r0, _, r01 := j.relativeRotation()
	swing, _ := swingTwist(r01)
	var angle float64
	var axis mgl64.Vec3
	if index == Swing1 {
		angle = 2 * math.Atan2(swing.V[2], swing.W)
		axis = swing1Axis
	} else {
		angle = 2 * math.Atan2(swing.V[1], swing.W)
		axis = swing2Axis
	}
	return r0.Rotate(axis), limitError(j.joint.AngularMotion[index], angle, j.joint.AngularLimits[index])
}

func (j *jointSolve) applySwing(index int, stiffness float64) {
	axis, err := j.swingError(index)
	j.applyAngularCorrection(axis, err, stiffness)
}

// applySLerpDrive pulls the full relative rotation toward the drive target.
func (j *jointSolve) applySLerpDrive(stiffness float64) {
	r0, _, r01 := j.relativeRotation()
	e := r01.Mul(j.joint.AngularDriveTarget.Conjugate())
	axis, angle := components.AxisAngle(e)
	j.applyAngularCorrection(r0.Rotate(axis), angle, stiffness)
}

func (j *jointSolve) applyTwistDrive(stiffness float64) {
	_, r1, r01 := j.relativeRotation()
	_, twist := swingTwist(r01)
	_, target := swingTwist(j.joint.AngularDriveTarget)
	angle := twistAngle(twist) - twistAngle(target)
	j.applyAngularCorrection(r1.Rotate(twistAxis), angle, stiffness)
}

func (j *jointSolve) applyConeDrive(stiffness float64) {
	r0, _, r01 := j.relativeRotation()
	swing, _ := swingTwist(r01)
	target, _ := swingTwist(j.joint.AngularDriveTarget)
	axis, angle := components.AxisAngle(swing.Mul(target.Conjugate()))
	j.applyAngularCorrection(r0.Rotate(axis), angle, stiffness)
}

// applyDrives runs the enabled angular drives. A drive is skipped when
// an axis it would move is locked.
func (j *jointSolve) applyDrives(stiffness float64) {
	js := j.joint
	twistLocked := js.AngularMotion[Twist] == MotionLocked
	swing1Locked := js.AngularMotion[Swing1] == MotionLocked
	swing2Locked := js.AngularMotion[Swing2] == MotionLocked
	if js.AngularSLerpDriveEnabled && !twistLocked && !swing1Locked && !swing2Locked {
		j.applySLerpDrive(stiffness)
	}
	if js.AngularTwistDriveEnabled && !twistLocked {
		j.applyTwistDrive(stiffness)
	}
	if js.AngularSwingDriveEnabled && !swing1Locked && !swing2Locked {
		j.applyConeDrive(stiffness)
	}
}

// solve runs the drives and limits in order: drives, twist, swing, linear.
func (j *jointSolve) solve(pairIterations int) {
	s, js := j.settings, j.joint
	linearStiffness := s.linearStiffness(js)
	twistStiffness := s.twistStiffness(js)
	swingStiffness := s.swingStiffness(js)
	driveStiffness := s.driveStiffness(js)

	twistMotion := js.AngularMotion[Twist]
	swing1Motion := js.AngularMotion[Swing1]
	swing2Motion := js.AngularMotion[Swing2]
	linearActive := js.LinearMotion[0] != MotionFree || js.LinearMotion[1] != MotionFree || js.LinearMotion[2] != MotionFree

	for it := 0; it < pairIterations; it++ {
		if s.EnableDrives {
			j.applyDrives(driveStiffness)
		}

		if s.EnableTwistLimits && twistMotion != MotionFree {
			j.applyTwist(twistStiffness)
		}

		if s.EnableSwingLimits {
			if swing1Motion == MotionLimited && swing2Motion == MotionLimited {
				j.applyCone(swingStiffness)
			} else {
				if swing1Motion != MotionFree {
					j.applySwing(Swing1, swingStiffness)
				}
				if swing2Motion != MotionFree {
					j.applySwing(Swing2, swingStiffness)
				}
			}
		}

		if linearActive {
			j.applyLinear(linearStiffness)
		}
	}
}

// project removes a fraction of the remaining error in one pass. Angular
// error is removed before linear error.
func (j *jointSolve) project(linearFactor, angularFactor float64) {
	s, js := j.settings, j.joint
	swing1Motion := js.AngularMotion[Swing1]
	swing2Motion := js.AngularMotion[Swing2]

	if angularFactor > 0 {
		if s.EnableTwistLimits && js.AngularMotion[Twist] != MotionFree {
			j.applyTwist(angularFactor)
		}
		if s.EnableSwingLimits {
			if swing1Motion == MotionLimited && swing2Motion == MotionLimited {
				j.applyCone(angularFactor)
			} else {
				if swing1Motion != MotionFree {
					j.applySwing(Swing1, angularFactor)
				}
				if swing2Motion != MotionFree {
					j.applySwing(Swing2, angularFactor)
				}
			}
		}
	}

	if linearFactor > 0 {
		if js.LinearMotion[0] != MotionFree || js.LinearMotion[1] != MotionFree || js.LinearMotion[2] != MotionFree {
			j.applyLinear(linearFactor)
		}
	}
}

// relativeVelocity returns the child attachment point's velocity relative
// to the parent's, and the child's angular velocity relative to the parent.
func (j *jointSolve) relativeVelocity() (linear, angular mgl64.Vec3) {
	x0, _ := j.frameWorld(0)
	x1, _ := j.frameWorld(1)
	b0, b1 := &j.b[0], &j.b[1]
	v0 := b0.v.Add(b0.w.Cross(x0.Sub(b0.p)))
	v1 := b1.v.Add(b1.w.Cross(x1.Sub(b1.p)))
	return v1.Sub(v0), b1.w.Sub(b0.w)
}

// applyVelocityImpulse removes stiffness of the relative point velocity
// along vc and moves both poses by the velocity change over dt.
func (j *jointSolve) applyVelocityImpulse(x0, x1, vc mgl64.Vec3, stiffness, dt float64) {
	c := vc.Len()
	if c < linearEpsilon || stiffness <= 0 {
		return
	}
	n := vc.Mul(1 / c)
	b0, b1 := &j.b[0], &j.b[1]
	r0 := x0.Sub(b0.p)
	r1 := x1.Sub(b1.p)
	ii0 := b0.worldInvInertia()
	ii1 := b1.worldInvInertia()
	rn0 := r0.Cross(n)
	rn1 := r1.Cross(n)
	w := b0.invM + ii0.Mul3x1(rn0).Dot(rn0) + b1.invM + ii1.Mul3x1(rn1).Dot(rn1)
	if w < weightEpsilon {
		return
	}
	impulse := n.Mul(stiffness * c / w)

	dv0, dw0 := impulse.Mul(b0.invM), ii0.Mul3x1(r0.Cross(impulse))
	dv1, dw1 := impulse.Mul(-b1.invM), ii1.Mul3x1(r1.Cross(impulse)).Mul(-1)
	j.addVelocity(0, dv0, dw0, dt)
	j.addVelocity(1, dv1, dw1, dt)
}

// applyAngularVelocityImpulse removes stiffness of the relative angular
// velocity about axis. With limitErr non-zero only motion deeper into the
// violation is removed.
func (j *jointSolve) applyAngularVelocityImpulse(axis mgl64.Vec3, locked bool, limitErr, stiffness, dt float64) {
	if stiffness <= 0 || axis.Len() < linearEpsilon {
		return
	}
	_, wRel := j.relativeVelocity()
	rate := wRel.Dot(axis)
	if !locked && (limitErr == 0 || rate*limitErr <= 0) {
		return
	}
	b0, b1 := &j.b[0], &j.b[1]
	ii0 := b0.worldInvInertia()
	ii1 := b1.worldInvInertia()
	w := ii0.Mul3x1(axis).Dot(axis) + ii1.Mul3x1(axis).Dot(axis)
	if w < weightEpsilon {
		return
	}
	lambda := stiffness * rate / w
	j.addVelocity(0, mgl64.Vec3{}, ii0.Mul3x1(axis).Mul(lambda), dt)
	j.addVelocity(1, mgl64.Vec3{}, ii1.Mul3x1(axis).Mul(-lambda), dt)
}

func (j *jointSolve) addVelocity(i int, dv, dw mgl64.Vec3, dt float64) {
	b := &j.b[i]
	b.v = b.v.Add(dv)
	b.w = b.w.Add(dw)
	b.p = b.p.Add(dv.Mul(dt))
	b.q = components.IntegrateRotation(b.q, dw.Mul(dt))
}

// linearVelocityError returns the part of the relative point velocity that
// the linear motion settings forbid.
func (j *jointSolve) linearVelocityError() (x0, x1, vc mgl64.Vec3) {
	x0, x1, err := j.linearError()
	_, r0 := j.frameWorld(0)
	vRel, _ := j.relativeVelocity()
	local := r0.Conjugate().Rotate(vRel)

	var locked mgl64.Vec3
	limited := false
	for k := 0; k < 3; k++ {
		switch j.joint.LinearMotion[k] {
		case MotionLocked:
			locked[k] = local[k]
		case MotionLimited:
			limited = true
		}
	}
	vc = r0.Rotate(locked)

	// A violated limit stops separating motion along the error.
	if d := err.Len(); limited && d > linearEpsilon {
		n := err.Mul(1 / d)
		if rate := vRel.Sub(vc).Dot(n); rate > 0 {
			vc = vc.Add(n.Mul(rate))
		}
	}
	return x0, x1, vc
}

// solveVelocity runs the velocity form of solve: drives still correct
// positions, limits remove relative velocity and integrate the change.
func (j *jointSolve) solveVelocity(dt float64, pairIterations int) {
	s, js := j.settings, j.joint
	linearStiffness := s.linearStiffness(js)
	twistStiffness := s.twistStiffness(js)
	swingStiffness := s.swingStiffness(js)
	driveStiffness := s.driveStiffness(js)

	twistMotion := js.AngularMotion[Twist]
	swing1Motion := js.AngularMotion[Swing1]
	swing2Motion := js.AngularMotion[Swing2]
	linearActive := js.LinearMotion[0] != MotionFree || js.LinearMotion[1] != MotionFree || js.LinearMotion[2] != MotionFree

	for it := 0; it < pairIterations; it++ {
		if s.EnableDrives {
			j.applyDrives(driveStiffness)
		}

		if s.EnableTwistLimits && twistMotion != MotionFree {
			axis, err := j.twistError()
			j.applyAngularVelocityImpulse(axis, twistMotion == MotionLocked, err, twistStiffness, dt)
		}

		if s.EnableSwingLimits {
			if swing1Motion == MotionLimited && swing2Motion == MotionLimited {
				axis, err := j.coneError()
				j.applyAngularVelocityImpulse(axis, false, err, swingStiffness, dt)
			} else {
				for _, index := range [2]int{Swing1, Swing2} {
					motion := js.AngularMotion[index]
					if motion == MotionFree {
						continue
					}
					axis, err := j.swingError(index)
					j.applyAngularVelocityImpulse(axis, motion == MotionLocked, err, swingStiffness, dt)
				}
			}
		}

		if linearActive {
			x0, x1, vc := j.linearVelocityError()
			j.applyVelocityImpulse(x0, x1, vc, linearStiffness, dt)
		}
	}
}

// errors reports the remaining linear and angular violation.
func (j *jointSolve) errors() (linear, angular float64) {
	_, _, lin := j.linearError()
	linear = lin.Len()

	js := j.joint
	var sq float64
	if js.AngularMotion[Twist] != MotionFree {
		_, e := j.twistError()
		sq += e * e
	}
	if js.AngularMotion[Swing1] == MotionLimited && js.AngularMotion[Swing2] == MotionLimited {
		_, e := j.coneError()
		sq += e * e
	} else {
		if js.AngularMotion[Swing1] != MotionFree {
			_, e := j.swingError(Swing1)
			sq += e * e
		}
		if js.AngularMotion[Swing2] != MotionFree {
			_, e := j.swingError(Swing2)
			sq += e * e
		}
	}
	return linear, math.Sqrt(sq)
}
