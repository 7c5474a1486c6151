package constraints

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/pthm-cable/pbd/components"
	"github.com/pthm-cable/pbd/particles"
)

const springEpsilon = 1e-7

// Spring is one persistent contact point between a pair of particles.
type Spring struct {
	// Local holds the contact location in each particle's local frame.
	Local [2]mgl64.Vec3
	Rest  float64
}

// SpringEvent reports a spring created or destroyed during
// UpdatePositionBasedState.
type SpringEvent struct {
	Pair    [2]particles.Handle
	Created bool
}

// DynamicSprings manages contact springs between particle pairs. Springs are
// created when the pair comes within CreationThreshold and destroyed once
// their endpoints separate by more than twice that.
type DynamicSprings struct {
	store *particles.Store

	CreationThreshold float64
	MaxSprings        int
	Stiffness         float64

	pairs   [][2]particles.Handle
	springs [][]Spring

	onEvent func(SpringEvent)
}

// NewDynamicSprings creates an empty spring container.
func NewDynamicSprings(store *particles.Store, threshold float64, maxSprings int, stiffness float64) *DynamicSprings {
	return &DynamicSprings{
		store:             store,
		CreationThreshold: threshold,
		MaxSprings:        maxSprings,
		Stiffness:         stiffness,
	}
}

// SetEventHandler installs a callback for spring creation and destruction.
func (d *DynamicSprings) SetEventHandler(fn func(SpringEvent)) { d.onEvent = fn }

// AddPair registers a particle pair for spring management and returns its index.
func (d *DynamicSprings) AddPair(pair [2]particles.Handle) (int, error) {
	if pair[0] == pair[1] || !d.store.Valid(pair[0]) || !d.store.Valid(pair[1]) {
		return -1, fmt.Errorf("add spring pair %d-%d: %w", pair[0].ID(), pair[1].ID(), ErrInvalidPair)
	}
	d.pairs = append(d.pairs, pair)
	d.springs = append(d.springs, nil)
	return len(d.pairs) - 1, nil
}

// Len returns the number of registered pairs.
func (d *DynamicSprings) Len() int { return len(d.pairs) }

// Pair returns the particles of pair i.
func (d *DynamicSprings) Pair(i int) [2]particles.Handle { return d.pairs[i] }

// Springs returns the live springs of pair i.
func (d *DynamicSprings) Springs(i int) []Spring { return d.springs[i] }

// SpringCount returns the total number of live springs.
func (d *DynamicSprings) SpringCount() int {
	n := 0
	for _, s := range d.springs {
		n += len(s)
	}
	return n
}

// RemovePair swap-removes pair i.
func (d *DynamicSprings) RemovePair(i int) error {
	if i < 0 || i >= len(d.pairs) {
		return fmt.Errorf("remove spring pair %d: %w", i, ErrStaleConstraint)
	}
	last := len(d.pairs) - 1
	d.pairs[i] = d.pairs[last]
	d.springs[i] = d.springs[last]
	d.pairs = d.pairs[:last]
	d.springs[last] = nil
	d.springs = d.springs[:last]
	return nil
}

// RemoveConstraints removes every pair that references a particle in set.
func (d *DynamicSprings) RemoveConstraints(set map[particles.Handle]struct{}) int {
	removed := 0
	for i := len(d.pairs) - 1; i >= 0; i-- {
		_, a := set[d.pairs[i][0]]
		_, b := set[d.pairs[i][1]]
		if a || b {
			_ = d.RemovePair(i)
			removed++
		}
	}
	return removed
}

// pose returns the solver pose: predicted for rigid bodies, committed otherwise.
func pose(p particles.Particle) (mgl64.Vec3, mgl64.Quat) {
	if p.Kind == components.KindDynamic || p.Kind == components.KindClustered {
		return p.P, p.Q
	}
	return p.X, p.R
}

func (d *DynamicSprings) emit(pair [2]particles.Handle, created bool) {
	if d.onEvent != nil {
		d.onEvent(SpringEvent{Pair: pair, Created: created})
	}
}

// UpdatePositionBasedState deletes stretched springs and creates new ones
// for pairs that are close enough.
func (d *DynamicSprings) UpdatePositionBasedState(dt float64) {
	for i, pair := range d.pairs {
		p0 := d.store.Get(pair[0])
		p1 := d.store.Get(pair[1])
		if p0.Geometry == nil || p1.Geometry == nil {
			continue
		}
		x0, q0 := pose(p0)
		x1, q1 := pose(p1)

		springs := d.springs[i]
		for s := len(springs) - 1; s >= 0; s-- {
			w0 := q0.Rotate(springs[s].Local[0]).Add(x0)
			w1 := q1.Rotate(springs[s].Local[1]).Add(x1)
			if w1.Sub(w0).Len() > 2*d.CreationThreshold {
				last := len(springs) - 1
				springs[s] = springs[last]
				springs = springs[:last]
				d.emit(pair, false)
			}
		}
		d.springs[i] = springs

		if len(springs) >= d.MaxSprings {
			continue
		}

		t0 := components.Transform{X: x0, R: q0}
		t1 := components.Transform{X: x1, R: q1}
		g0, g1 := p0.Geometry, p1.Geometry
		if g0.HasBoundingBox() && g1.HasBoundingBox() {
			// Box of body 0 expressed in body 1's local space.
			inv1 := q1.Conjugate()
			box0 := g0.BoundingBox().Transformed(inv1.Mul(q0), inv1.Rotate(x0.Sub(x1))).Thicken(d.CreationThreshold)
			box1 := g1.BoundingBox().Thicken(d.CreationThreshold)
			if !box0.Intersects(box1) {
				continue
			}
		}

		mid := x0.Add(x1).Mul(0.5)
		phi0, n0 := g0.PhiWithNormal(t0.InverseTransformPoint(mid))
		phi1, n1 := g1.PhiWithNormal(t1.InverseTransformPoint(mid))
		if phi0+phi1 > d.CreationThreshold {
			continue
		}
		loc0 := mid.Sub(q0.Rotate(n0).Mul(phi0))
		loc1 := mid.Sub(q1.Rotate(n1).Mul(phi1))
		d.springs[i] = append(springs, Spring{
			Local: [2]mgl64.Vec3{t0.InverseTransformPoint(loc0), t1.InverseTransformPoint(loc1)},
			Rest:  loc0.Sub(loc1).Len(),
		})
		d.emit(pair, true)
	}
}

// Apply pulls every spring toward its rest length with a mass-weighted
// positional correction.
func (d *DynamicSprings) Apply(dt float64) {
	for i, pair := range d.pairs {
		if len(d.springs[i]) == 0 {
			continue
		}
		d.applyPair(pair, d.springs[i])
	}
}

func (d *DynamicSprings) applyPair(pair [2]particles.Handle, springs []Spring) {
	p0 := d.store.Get(pair[0])
	p1 := d.store.Get(pair[1])
	dyn0, dyn1 := p0.IsDynamic(), p1.IsDynamic()
	if !dyn0 && !dyn1 {
		return
	}

	var invM0, invM1 float64
	var ii0, ii1 mgl64.Mat3
	if dyn0 {
		invM0 = p0.InvM
		ii0 = p0.PredictedWorldInvInertia()
	}
	if dyn1 {
		invM1 = p1.InvM
		ii1 = p1.PredictedWorldInvInertia()
	}
	x0, q0 := pose(p0)
	x1, q1 := pose(p1)

	for _, s := range springs {
		w0 := q0.Rotate(s.Local[0]).Add(x0)
		w1 := q1.Rotate(s.Local[1]).Add(x1)
		diff := w1.Sub(w0)
		dist := diff.Len()
		if dist < springEpsilon || invM0+invM1 < springEpsilon {
			continue
		}
		dir := diff.Mul(1 / dist)
		delta := dir.Mul(d.Stiffness * (dist - s.Rest) / (invM0 + invM1))

		if dyn0 {
			r := w0.Sub(x0)
			x0 = x0.Add(delta.Mul(invM0))
			q0 = components.IntegrateRotation(q0, ii0.Mul3x1(r.Cross(delta)))
		}
		if dyn1 {
			r := w1.Sub(x1)
			x1 = x1.Sub(delta.Mul(invM1))
			q1 = components.IntegrateRotation(q1, ii1.Mul3x1(r.Cross(delta.Mul(-1))))
		}
	}

	if dyn0 {
		p0.P, p0.Q = x0, q0
	}
	if dyn1 {
		p1.P, p1.Q = x1, q1
	}
}
