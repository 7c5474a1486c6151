package particles

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/pthm-cable/pbd/components"
)

// Particle gives pointer access to one particle's components. Fields of the
// embedded components are promoted, so p.X, p.P, p.V, p.InvM all work.
type Particle struct {
	Handle Handle
	*components.Transform
	*components.Predicted
	*components.Velocity
	*components.Mass
	*components.Body
	*components.Collision
}

// IsDynamic reports whether the solver may move this particle.
func (p Particle) IsDynamic() bool {
	return (p.Kind == components.KindDynamic || p.Kind == components.KindClustered) &&
		p.State == components.StateDynamic && p.InvM > 0
}

// PredictedWorldInvInertia returns the world inverse inertia at the predicted rotation.
func (p Particle) PredictedWorldInvInertia() mgl64.Mat3 {
	return p.Mass.WorldInvInertia(p.Q)
}

// View is a read-only facade over an ordered list of pool arrays. It holds
// pointers to the arrays, so it always reflects the latest mutation.
type View struct {
	store   *Store
	sources []*[]Handle
}

func (s *Store) view(sources ...*[]Handle) View {
	return View{store: s, sources: sources}
}

// Len returns the number of particles in the view.
func (v View) Len() int {
	n := 0
	for _, src := range v.sources {
		n += len(*src)
	}
	return n
}

// Each visits every particle in the view in pool order. The callback must
// not create or destroy particles, or change pool membership.
func (v View) Each(fn func(p Particle)) {
	for _, src := range v.sources {
		for _, h := range *src {
			fn(v.store.Get(h))
		}
	}
}

// Handles returns a snapshot of the handles in the view.
func (v View) Handles() []Handle {
	out := make([]Handle, 0, v.Len())
	for _, src := range v.sources {
		out = append(out, (*src)...)
	}
	return out
}

// Contains reports whether h is in the view.
func (v View) Contains(h Handle) bool {
	for _, src := range v.sources {
		for _, o := range *src {
			if o == h {
				return true
			}
		}
	}
	return false
}

// NonDisabledView returns all particles that are not disabled.
func (s *Store) NonDisabledView() View { return s.nonDisabledView }

// NonDisabledDynamicView returns all dynamic particles that are not disabled.
func (s *Store) NonDisabledDynamicView() View { return s.nonDisabledDynamicView }

// ActiveView returns the awake, enabled dynamic particles.
func (s *Store) ActiveView() View { return s.activeView }

// AllView returns every particle.
func (s *Store) AllView() View { return s.allView }

// ActiveKinematicView returns enabled kinematic and dynamic-kinematic particles.
func (s *Store) ActiveKinematicView() View { return s.activeKinematicView }

// PoolView returns a view over a single pool.
func (s *Store) PoolView(pool Pool) View { return s.view(&s.pools[pool]) }

// ActiveClustered returns a snapshot of the awake clustered particles.
func (s *Store) ActiveClustered() []Handle {
	return append([]Handle(nil), s.activeClustered.items...)
}

// indexSet is an array plus a reverse index, kept in sync on every insert
// and remove. Removal swaps the last element into the hole.
type indexSet struct {
	items []Handle
	index map[Handle]int
}

func newIndexSet() indexSet {
	return indexSet{index: make(map[Handle]int)}
}

func (s *indexSet) insert(h Handle) {
	if _, ok := s.index[h]; ok {
		return
	}
	s.index[h] = len(s.items)
	s.items = append(s.items, h)
}

func (s *indexSet) remove(h Handle) {
	idx, ok := s.index[h]
	if !ok {
		return
	}
	last := len(s.items) - 1
	if idx != last {
		s.items[idx] = s.items[last]
		s.index[s.items[idx]] = idx
	}
	s.items = s.items[:last]
	delete(s.index, h)
}

func (s *indexSet) contains(h Handle) bool {
	_, ok := s.index[h]
	return ok
}
