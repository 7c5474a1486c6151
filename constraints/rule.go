package constraints

import "github.com/pthm-cable/pbd/particles"

// Rule connects a constraint container to the evolution. Rules run in
// ascending priority order.
type Rule interface {
	Priority() int
	UpdatePositionBasedState(dt float64)
	Apply(dt float64, it, numIts int)
	// ApplyPushOut reports whether another push-out iteration is needed.
	ApplyPushOut(dt float64, it, numIts int) bool
	// RemoveConstraints drops every constraint that references a particle
	// in the set.
	RemoveConstraints(set map[particles.Handle]struct{}) int
}

// JointRule drives a joint container over all of its joints.
type JointRule struct {
	Joints   *JointConstraints
	priority int
}

// NewJointRule wraps a joint container as a rule.
func NewJointRule(joints *JointConstraints, priority int) *JointRule {
	return &JointRule{Joints: joints, priority: priority}
}

func (r *JointRule) Priority() int { return r.priority }

// UpdatePositionBasedState is a no-op: joints have no per-step state.
func (r *JointRule) UpdatePositionBasedState(dt float64) {}

func (r *JointRule) Apply(dt float64, it, numIts int) {
	r.Joints.Apply(dt, r.Joints.handles, it, numIts)
}

func (r *JointRule) ApplyPushOut(dt float64, it, numIts int) bool {
	return r.Joints.ApplyPushOut(dt, r.Joints.handles, it, numIts)
}

func (r *JointRule) RemoveConstraints(set map[particles.Handle]struct{}) int {
	return r.Joints.RemoveConstraints(set)
}

// SpringRule drives a dynamic spring container. Springs are applied in the
// solve phase and the push-out phase for PushOutPairIterations passes.
type SpringRule struct {
	Springs               *DynamicSprings
	PushOutPairIterations int
	priority              int
}

// NewSpringRule wraps a spring container as a rule.
func NewSpringRule(springs *DynamicSprings, pushOutPairIterations, priority int) *SpringRule {
	return &SpringRule{Springs: springs, PushOutPairIterations: pushOutPairIterations, priority: priority}
}

func (r *SpringRule) Priority() int { return r.priority }

func (r *SpringRule) UpdatePositionBasedState(dt float64) {
	r.Springs.UpdatePositionBasedState(dt)
}

func (r *SpringRule) Apply(dt float64, it, numIts int) {
	r.Springs.Apply(dt)
}

func (r *SpringRule) ApplyPushOut(dt float64, it, numIts int) bool {
	if r.PushOutPairIterations <= 0 || r.Springs.SpringCount() == 0 {
		return false
	}
	for i := 0; i < r.PushOutPairIterations; i++ {
		r.Springs.Apply(dt)
	}
	return true
}

func (r *SpringRule) RemoveConstraints(set map[particles.Handle]struct{}) int {
	return r.Springs.RemoveConstraints(set)
}
