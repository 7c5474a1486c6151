package constraints

import (
	"github.com/pthm-cable/pbd/debugdraw"
	"github.com/pthm-cable/pbd/particles"
)

// DebugDrawer is implemented by rules that can report their constraints to
// a debug draw sink.
type DebugDrawer interface {
	DebugDraw(sink debugdraw.Sink)
}

// EdgeSource is implemented by rules whose constraints bind particles into
// islands for sleeping.
type EdgeSource interface {
	ConstraintPairs() [][2]particles.Handle
}

// DebugDraw draws each joint as a line between its two world frames.
func (r *JointRule) DebugDraw(sink debugdraw.Sink) {
	for i := range r.Joints.pairs {
		j, _ := r.Joints.load(i)
		a, _ := j.frameWorld(0)
		b, _ := j.frameWorld(1)
		linear, _ := j.errors()
		sink.DrawJoint(a, b, r.Joints.states[i].Level, linear)
	}
}

// ConstraintPairs returns every joint's particle pair.
func (r *JointRule) ConstraintPairs() [][2]particles.Handle {
	return append([][2]particles.Handle(nil), r.Joints.pairs...)
}

// DebugDraw draws each live spring between its two attachment points.
func (r *SpringRule) DebugDraw(sink debugdraw.Sink) {
	d := r.Springs
	for i, pair := range d.pairs {
		if len(d.springs[i]) == 0 {
			continue
		}
		p0, q0 := pose(d.store.Get(pair[0]))
		p1, q1 := pose(d.store.Get(pair[1]))
		for _, s := range d.springs[i] {
			sink.DrawSpring(p0.Add(q0.Rotate(s.Local[0])), p1.Add(q1.Rotate(s.Local[1])))
		}
	}
}

// ConstraintPairs returns the pairs that currently hold at least one spring.
func (r *SpringRule) ConstraintPairs() [][2]particles.Handle {
	var out [][2]particles.Handle
	for i, pair := range r.Springs.pairs {
		if len(r.Springs.springs[i]) > 0 {
			out = append(out, pair)
		}
	}
	return out
}
