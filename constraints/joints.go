package constraints

import (
	"fmt"
	"sort"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/pthm-cable/pbd/components"
	"github.com/pthm-cable/pbd/particles"
)

// Pair indices. The second particle of a pair is the parent: the body whose
// joint frame the limits are expressed in.
const (
	parentIndex = 1
	childIndex  = 0
)

// JointHandle is a stable reference to a joint. Its index is rewired when
// another joint is swap-removed into its slot.
type JointHandle struct {
	index     int
	container *JointConstraints
}

// Index returns the joint's current slot, or -1 once removed.
func (h *JointHandle) Index() int { return h.index }

// Valid reports whether the handle still addresses a joint.
func (h *JointHandle) Valid() bool { return h != nil && h.index >= 0 }

// Level returns the joint's solve level.
func (h *JointHandle) Level() int {
	if !h.Valid() {
		return components.LevelNone
	}
	return h.container.states[h.index].Level
}

// Particles returns the two constrained particles.
func (h *JointHandle) Particles() [2]particles.Handle {
	return h.container.pairs[h.index]
}

// ApplyCallback is invoked with the sorted joint handles before or after a
// solve pass.
type ApplyCallback func(dt float64, handles []*JointHandle)

// JointConstraints stores joints between particle pairs along with their
// local frames, settings and level state.
type JointConstraints struct {
	store    *particles.Store
	settings JointSolverSettings

	pairs         [][2]particles.Handle
	frames        [][2]components.Transform
	jointSettings []JointSettings
	states        []JointState
	handles       []*JointHandle

	preApply  ApplyCallback
	postApply ApplyCallback
}

// NewJointConstraints creates an empty joint container over store.
func NewJointConstraints(store *particles.Store, settings JointSolverSettings) *JointConstraints {
	return &JointConstraints{store: store, settings: settings}
}

// Len returns the number of joints.
func (c *JointConstraints) Len() int { return len(c.pairs) }

// Settings returns the solver settings.
func (c *JointConstraints) Settings() JointSolverSettings { return c.settings }

// SetSettings replaces the solver settings.
func (c *JointConstraints) SetSettings(s JointSolverSettings) { c.settings = s }

// JointSettings returns the settings of joint i.
func (c *JointConstraints) JointSettings(i int) JointSettings { return c.jointSettings[i] }

// SetJointSettings replaces the settings of joint i.
func (c *JointConstraints) SetJointSettings(i int, s JointSettings) {
	s.Sanitize()
	c.jointSettings[i] = s
}

// SetPreApplyCallback installs a callback run before every Apply pass.
func (c *JointConstraints) SetPreApplyCallback(fn ApplyCallback) { c.preApply = fn }

// SetPostApplyCallback installs a callback run after every Apply pass.
func (c *JointConstraints) SetPostApplyCallback(fn ApplyCallback) { c.postApply = fn }

// Handle returns the handle of joint i.
func (c *JointConstraints) Handle(i int) *JointHandle { return c.handles[i] }

// Handles returns a snapshot of all joint handles in index order.
func (c *JointConstraints) Handles() []*JointHandle {
	return append([]*JointHandle(nil), c.handles...)
}

// ConstraintParticles returns the particle pair of joint i.
func (c *JointConstraints) ConstraintParticles(i int) [2]particles.Handle { return c.pairs[i] }

// ConstraintFrames returns the local frames of joint i.
func (c *JointConstraints) ConstraintFrames(i int) [2]components.Transform { return c.frames[i] }

// State returns the level state of joint i.
func (c *JointConstraints) State(i int) JointState { return c.states[i] }

// AddConstraint adds a joint with frames given in each particle's local space.
func (c *JointConstraints) AddConstraint(pair [2]particles.Handle, frames [2]components.Transform, settings JointSettings) (*JointHandle, error) {
	if pair[0] == pair[1] || !c.store.Valid(pair[0]) || !c.store.Valid(pair[1]) {
		return nil, fmt.Errorf("add joint %d-%d: %w", pair[0].ID(), pair[1].ID(), ErrInvalidPair)
	}
	settings.Sanitize()
	h := &JointHandle{index: len(c.pairs), container: c}
	c.pairs = append(c.pairs, pair)
	c.frames = append(c.frames, frames)
	c.jointSettings = append(c.jointSettings, settings)
	c.states = append(c.states, newJointState())
	c.handles = append(c.handles, h)
	return h, nil
}

// AddConstraintWorldFrame adds a joint whose frame is given in world space.
// The frame is converted into each particle's local space using the
// particles' current transforms.
func (c *JointConstraints) AddConstraintWorldFrame(pair [2]particles.Handle, world components.Transform, settings JointSettings) (*JointHandle, error) {
	if pair[0] == pair[1] || !c.store.Valid(pair[0]) || !c.store.Valid(pair[1]) {
		return nil, fmt.Errorf("add joint %d-%d: %w", pair[0].ID(), pair[1].ID(), ErrInvalidPair)
	}
	var frames [2]components.Transform
	for i, h := range pair {
		xf := *c.store.Get(h).Transform
		inv := xf.R.Conjugate()
		frames[i] = components.Transform{
			X: inv.Rotate(world.X.Sub(xf.X)),
			R: inv.Mul(world.R).Normalize(),
		}
	}
	return c.AddConstraint(pair, frames, settings)
}

// RemoveConstraint swap-removes joint i and rewires the moved joint's handle.
func (c *JointConstraints) RemoveConstraint(i int) error {
	if i < 0 || i >= len(c.pairs) {
		return fmt.Errorf("remove joint %d: %w", i, ErrStaleConstraint)
	}
	last := len(c.pairs) - 1
	c.handles[i].index = -1
	if i != last {
		c.pairs[i] = c.pairs[last]
		c.frames[i] = c.frames[last]
		c.jointSettings[i] = c.jointSettings[last]
		c.states[i] = c.states[last]
		c.handles[i] = c.handles[last]
		c.handles[i].index = i
	}
	c.pairs = c.pairs[:last]
	c.frames = c.frames[:last]
	c.jointSettings = c.jointSettings[:last]
	c.states = c.states[:last]
	c.handles[last] = nil
	c.handles = c.handles[:last]
	return nil
}

// Remove removes the joint addressed by h.
func (c *JointConstraints) Remove(h *JointHandle) error {
	if !h.Valid() || h.container != c {
		return ErrStaleConstraint
	}
	return c.RemoveConstraint(h.index)
}

// RemoveConstraints removes every joint that references a particle in set.
// It returns the number of joints removed.
func (c *JointConstraints) RemoveConstraints(set map[particles.Handle]struct{}) int {
	removed := 0
	for i := len(c.pairs) - 1; i >= 0; i-- {
		_, a := set[c.pairs[i][0]]
		_, b := set[c.pairs[i][1]]
		if a || b {
			_ = c.RemoveConstraint(i)
			removed++
		}
	}
	return removed
}

// SetParticleLevels records both particle levels of joint i. The joint
// level is the lower of the two.
func (c *JointConstraints) SetParticleLevels(i int, levels [2]int) {
	c.states[i].ParticleLevels = levels
	c.states[i].Level = min(levels[0], levels[1])
}

// ConstraintLevel returns the level of joint i.
func (c *JointConstraints) ConstraintLevel(i int) int { return c.states[i].Level }

func sortByLevel(handles []*JointHandle, descending bool) []*JointHandle {
	sorted := append([]*JointHandle(nil), handles...)
	sort.SliceStable(sorted, func(a, b int) bool {
		if descending {
			return sorted[a].Level() > sorted[b].Level()
		}
		return sorted[a].Level() < sorted[b].Level()
	})
	return sorted
}

// Apply runs one solve iteration over handles, leaf to root.
func (c *JointConstraints) Apply(dt float64, handles []*JointHandle, it, numIts int) {
	sorted := sortByLevel(handles, true)

	if c.preApply != nil {
		c.preApply(dt, sorted)
	}

	if c.settings.ApplyPairIterations > 0 {
		for _, h := range sorted {
			if c.settings.VelocitySolve {
				c.solveVelocity(h.index, dt, c.settings.ApplyPairIterations)
			} else {
				c.solvePosition(h.index, c.settings.ApplyPairIterations)
			}
		}
	}

	if c.settings.ProjectionPhase == ProjectionApply && it == numIts-1 {
		c.ApplyProjection(dt, handles)
	}

	if c.postApply != nil {
		c.postApply(dt, sorted)
	}
}

// ApplyPushOut runs one push-out iteration over handles, root to leaf. It
// reports whether another iteration may still change the result.
func (c *JointConstraints) ApplyPushOut(dt float64, handles []*JointHandle, it, numIts int) bool {
	if c.settings.ApplyPushOutPairIterations > 0 {
		for _, h := range sortByLevel(handles, false) {
			c.solvePosition(h.index, c.settings.ApplyPushOutPairIterations)
		}
	}

	if c.settings.ProjectionPhase == ProjectionApplyPushOut {
		projectionIt := 0
		if c.settings.ApplyPushOutPairIterations > 0 {
			projectionIt = numIts - 1
		}
		if it == projectionIt {
			c.ApplyProjection(dt, handles)
		}
	}
	return true
}

// ApplyProjection removes a fraction of each joint's remaining error, root
// to leaf, treating the body closer to the anchor as immovable.
func (c *JointConstraints) ApplyProjection(dt float64, handles []*JointHandle) {
	for _, h := range sortByLevel(handles, false) {
		c.projectPosition(h.index)
	}
}

// JointError returns the current linear and angular violation of joint i.
func (c *JointConstraints) JointError(i int) (linear, angular float64) {
	j, _ := c.load(i)
	return j.errors()
}

// load builds the working state of joint i with raw inverse masses.
func (c *JointConstraints) load(i int) (jointSolve, [2]particles.Particle) {
	pair := c.pairs[i]
	frames := c.frames[i]
	parent := c.store.Get(pair[parentIndex])
	child := c.store.Get(pair[childIndex])

	j := jointSolve{
		settings: &c.settings,
		joint:    &c.jointSettings[i],
		frames:   [2]components.Transform{frames[parentIndex], frames[childIndex]},
	}
	for k, p := range [2]particles.Particle{parent, child} {
		j.b[k] = solveBody{p: p.P, q: p.Q, v: p.V, w: p.W}
		if p.IsDynamic() {
			j.b[k].invM = p.InvM
			j.b[k].invI = p.InvI
		}
	}
	j.b[1].q = components.EnforceShortestArc(j.b[1].q, j.b[0].q)
	return j, [2]particles.Particle{parent, child}
}

// writeBack copies the working poses and velocities to the dynamic bodies.
func (c *JointConstraints) writeBack(j *jointSolve, bodies [2]particles.Particle) {
	for k, p := range bodies {
		if !p.IsDynamic() {
			continue
		}
		p.P = j.b[k].p
		p.Q = j.b[k].q
		p.V = j.b[k].v
		p.W = j.b[k].w
	}
}

func bodyMass(p particles.Particle) (float64, mgl64.Vec3) {
	if !p.IsDynamic() {
		return 0, mgl64.Vec3{}
	}
	return p.M, p.I
}

func (c *JointConstraints) solvePosition(i, pairIterations int) {
	j, bodies := c.loadConditioned(i)
	j.solve(pairIterations)
	c.writeBack(&j, bodies)
}

func (c *JointConstraints) solveVelocity(i int, dt float64, pairIterations int) {
	j, bodies := c.loadConditioned(i)
	j.solveVelocity(dt, pairIterations)
	c.writeBack(&j, bodies)
}

// loadConditioned builds the working state of joint i with inverse masses
// conditioned by level: the body nearer the root is made heavier.
func (c *JointConstraints) loadConditioned(i int) (jointSolve, [2]particles.Particle) {
	j, bodies := c.load(i)

	m0, i0 := bodyMass(bodies[0])
	m1, i1 := bodyMass(bodies[1])
	level0 := c.states[i].ParticleLevels[parentIndex]
	level1 := c.states[i].ParticleLevels[childIndex]
	s := c.settings
	switch {
	case level0 < level1:
		j.b[0].invM, j.b[0].invI, j.b[1].invM, j.b[1].invI =
			ConditionedInverseMass(m0, i0, m1, i1, s.MinParentMassRatio, s.MaxInertiaRatio)
	case level0 > level1:
		j.b[1].invM, j.b[1].invI, j.b[0].invM, j.b[0].invI =
			ConditionedInverseMass(m1, i1, m0, i0, s.MinParentMassRatio, s.MaxInertiaRatio)
	default:
		j.b[0].invM, j.b[0].invI, j.b[1].invM, j.b[1].invI =
			ConditionedInverseMass(m0, i0, m1, i1, 0, s.MaxInertiaRatio)
	}
	scale := c.jointSettings[i].ParentInvMassScale
	j.b[0].invM *= scale
	j.b[0].invI = j.b[0].invI.Mul(scale)
	return j, bodies
}

func (c *JointConstraints) projectPosition(i int) {
	js := &c.jointSettings[i]
	linear := c.settings.linearProjection(js)
	angular := c.settings.angularProjection(js)
	if linear == 0 && angular == 0 {
		return
	}

	j, bodies := c.load(i)
	level0 := c.states[i].ParticleLevels[parentIndex]
	level1 := c.states[i].ParticleLevels[childIndex]
	if level0 < level1 {
		j.b[0].invM, j.b[0].invI = 0, mgl64.Vec3{}
	} else if level1 < level0 {
		j.b[1].invM, j.b[1].invI = 0, mgl64.Vec3{}
	}

	j.project(linear, angular)
	c.writeBack(&j, bodies)
}
