// Package particles stores rigid-body particles in typed pools backed by an
// ECS world, and exposes eagerly maintained views over them.
package particles

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/pbd/components"
	"github.com/pthm-cable/pbd/geometry"
)

var (
	// ErrStaleHandle is returned when a handle no longer refers to a live particle.
	ErrStaleHandle = errors.New("stale particle handle")
	// ErrDisabled is returned when activating a disabled particle.
	ErrDisabled = errors.New("particle is disabled")
	// ErrUnknownKind is returned for a particle kind the store has no pool for.
	ErrUnknownKind = errors.New("unknown particle kind")
)

// Pool identifies one homogeneous handle array inside the store.
type Pool uint8

const (
	PoolStatic Pool = iota
	PoolStaticDisabled
	PoolKinematic
	PoolKinematicDisabled
	PoolDynamic
	PoolDynamicKinematic
	PoolDynamicDisabled
	PoolClustered
	numPools
)

var poolNames = [numPools]string{
	"static", "static_disabled", "kinematic", "kinematic_disabled",
	"dynamic", "dynamic_kinematic", "dynamic_disabled", "clustered",
}

func (p Pool) String() string {
	if p < numPools {
		return poolNames[p]
	}
	return "unknown"
}

// Handle is a stable reference to a particle. It wraps the ECS entity, whose
// generation counter makes handles of destroyed particles detectably stale.
type Handle struct {
	entity ecs.Entity
}

// ID returns the entity id behind the handle. Ids are reused after
// destruction; use Store.Valid to check liveness.
func (h Handle) ID() uint32 {
	return h.entity.ID()
}

// Entity returns the ECS entity behind the handle.
func (h Handle) Entity() ecs.Entity {
	return h.entity
}

// LogValue implements slog.LogValuer.
func (h Handle) LogValue() slog.Value {
	return slog.Uint64Value(uint64(h.entity.ID()))
}

// Params controls how new particles are created.
type Params struct {
	Disabled      bool
	StartSleeping bool
}

// Store owns all particles. It is not safe for concurrent use; the physics
// side is its only mutator.
type Store struct {
	world *ecs.World

	mapper *ecs.Map7[
		components.Transform,
		components.Predicted,
		components.Velocity,
		components.Mass,
		components.Body,
		components.Slot,
		components.Collision,
	]
	bodyMap   *ecs.Map1[components.Body]
	slotMap   *ecs.Map1[components.Slot]
	targetMap *ecs.Map[components.KinematicTarget]
	filter    *ecs.Filter2[components.Body, components.Slot]

	pools [numPools][]Handle

	active               indexSet
	activeClustered      indexSet
	nonDisabledClustered indexSet

	nonDisabledView        View
	nonDisabledDynamicView View
	activeView             View
	allView                View
	activeKinematicView    View
}

// NewStore creates an empty particle store.
func NewStore() *Store {
	world := ecs.NewWorld()

	s := &Store{
		world: world,
		mapper: ecs.NewMap7[
			components.Transform,
			components.Predicted,
			components.Velocity,
			components.Mass,
			components.Body,
			components.Slot,
			components.Collision,
		](world),
		bodyMap:              ecs.NewMap1[components.Body](world),
		slotMap:              ecs.NewMap1[components.Slot](world),
		targetMap:            ecs.NewMap[components.KinematicTarget](world),
		filter:               ecs.NewFilter2[components.Body, components.Slot](world),
		active:               newIndexSet(),
		activeClustered:      newIndexSet(),
		nonDisabledClustered: newIndexSet(),
	}
	s.buildViews()
	return s
}

// buildViews wires the view facades to the pool arrays. Views hold pointers
// to the arrays, so they never need rebuilding.
func (s *Store) buildViews() {
	s.nonDisabledView = s.view(&s.pools[PoolStatic], &s.pools[PoolKinematic], &s.pools[PoolDynamic],
		&s.pools[PoolDynamicKinematic], &s.nonDisabledClustered.items)
	s.nonDisabledDynamicView = s.view(&s.pools[PoolDynamic], &s.nonDisabledClustered.items)
	s.activeView = s.view(&s.active.items)
	s.allView = s.view(&s.pools[PoolStatic], &s.pools[PoolStaticDisabled], &s.pools[PoolKinematic],
		&s.pools[PoolKinematicDisabled], &s.pools[PoolDynamic], &s.pools[PoolDynamicDisabled],
		&s.pools[PoolDynamicKinematic], &s.pools[PoolClustered])
	s.activeKinematicView = s.view(&s.pools[PoolKinematic], &s.pools[PoolDynamicKinematic])
}

// CreateParticles allocates n particles of the given kind and returns their handles.
func (s *Store) CreateParticles(kind components.Kind, n int, params Params) ([]Handle, error) {
	switch kind {
	case components.KindStatic, components.KindKinematic, components.KindDynamic, components.KindClustered:
	default:
		return nil, fmt.Errorf("creating %d particles: %w", n, ErrUnknownKind)
	}

	handles := make([]Handle, 0, n)
	for i := 0; i < n; i++ {
		handles = append(handles, s.createOne(kind, params))
	}

	switch kind {
	case components.KindDynamic:
		if !params.StartSleeping && !params.Disabled {
			for _, h := range handles {
				s.active.insert(h)
			}
		}
	case components.KindClustered:
		for _, h := range handles {
			if !params.Disabled {
				s.nonDisabledClustered.insert(h)
				if !params.StartSleeping {
					s.active.insert(h)
					s.activeClustered.insert(h)
				}
			}
		}
	}

	return handles, nil
}

// CreateStaticParticles creates n static particles.
func (s *Store) CreateStaticParticles(n int, params Params) []Handle {
	h, _ := s.CreateParticles(components.KindStatic, n, params)
	return h
}

// CreateKinematicParticles creates n kinematic particles.
func (s *Store) CreateKinematicParticles(n int, params Params) []Handle {
	h, _ := s.CreateParticles(components.KindKinematic, n, params)
	return h
}

// CreateDynamicParticles creates n dynamic particles.
func (s *Store) CreateDynamicParticles(n int, params Params) []Handle {
	h, _ := s.CreateParticles(components.KindDynamic, n, params)
	return h
}

// CreateClusteredParticles creates n clustered particles.
func (s *Store) CreateClusteredParticles(n int, params Params) []Handle {
	h, _ := s.CreateParticles(components.KindClustered, n, params)
	return h
}

func (s *Store) createOne(kind components.Kind, params Params) Handle {
	xf := components.Identity()
	pred := components.Predicted{P: xf.X, Q: xf.R}
	vel := components.Velocity{}
	mass := components.InfiniteMass()
	body := components.Body{Kind: kind, Level: components.LevelNone}
	coll := components.Collision{}

	switch kind {
	case components.KindStatic:
		body.State = components.StateStatic
	case components.KindKinematic:
		body.State = components.StateKinematic
	default:
		mass = components.NewMass(1, mgl64.Vec3{1, 1, 1})
		body.State = components.StateDynamic
		if params.StartSleeping {
			body.State = components.StateSleeping
		}
	}

	slot := components.Slot{Disabled: params.Disabled}
	pool := poolFor(body, params.Disabled)
	slot.Pool = uint8(pool)
	slot.Index = int32(len(s.pools[pool]))

	e := s.mapper.NewEntity(&xf, &pred, &vel, &mass, &body, &slot, &coll)
	h := Handle{entity: e}
	s.pools[pool] = append(s.pools[pool], h)
	return h
}

// poolFor returns the pool a particle with the given body and disabled flag
// belongs to.
func poolFor(body components.Body, disabled bool) Pool {
	switch body.Kind {
	case components.KindStatic:
		if disabled {
			return PoolStaticDisabled
		}
		return PoolStatic
	case components.KindKinematic:
		if disabled {
			return PoolKinematicDisabled
		}
		return PoolKinematic
	case components.KindClustered:
		return PoolClustered
	}
	if disabled {
		return PoolDynamicDisabled
	}
	if body.State == components.StateKinematic {
		return PoolDynamicKinematic
	}
	return PoolDynamic
}

// Valid reports whether h refers to a live particle.
func (s *Store) Valid(h Handle) bool {
	return s.world.Alive(h.entity)
}

// DestroyParticle removes a particle from its pool and from every index.
// Constraints referencing the particle must be removed by the caller first.
func (s *Store) DestroyParticle(h Handle) error {
	if !s.Valid(h) {
		return fmt.Errorf("destroying particle %d: %w", h.ID(), ErrStaleHandle)
	}

	s.active.remove(h)
	s.activeClustered.remove(h)
	s.nonDisabledClustered.remove(h)
	s.removeFromPool(h)
	s.world.RemoveEntity(h.entity)
	return nil
}

// removeFromPool takes h out of its current pool. Most pools swap the last
// handle into the hole; the clustered pool keeps relative order.
func (s *Store) removeFromPool(h Handle) {
	slot := s.slotMap.Get(h.entity)
	pool := Pool(slot.Pool)
	idx := int(slot.Index)
	arr := s.pools[pool]

	if pool == PoolClustered {
		arr = slices.Delete(arr, idx, idx+1)
		for i := idx; i < len(arr); i++ {
			s.slotMap.Get(arr[i].entity).Index = int32(i)
		}
		s.pools[pool] = arr
		return
	}

	last := len(arr) - 1
	if idx != last {
		moved := arr[last]
		arr[idx] = moved
		s.slotMap.Get(moved.entity).Index = int32(idx)
	}
	s.pools[pool] = arr[:last]
}

// moveToPool relocates h's slot to the given pool, keeping its identity.
func (s *Store) moveToPool(h Handle, pool Pool) {
	slot := s.slotMap.Get(h.entity)
	if Pool(slot.Pool) == pool {
		return
	}
	s.removeFromPool(h)
	slot = s.slotMap.Get(h.entity)
	slot.Pool = uint8(pool)
	slot.Index = int32(len(s.pools[pool]))
	s.pools[pool] = append(s.pools[pool], h)
}

// DisableParticle moves the particle to its disabled pool. Dynamic particles
// also lose their velocity and leave the active set.
func (s *Store) DisableParticle(h Handle) error {
	if !s.Valid(h) {
		return fmt.Errorf("disabling particle %d: %w", h.ID(), ErrStaleHandle)
	}
	body := s.bodyMap.Get(h.entity)
	slot := s.slotMap.Get(h.entity)
	if slot.Disabled {
		return nil
	}
	slot.Disabled = true

	switch body.Kind {
	case components.KindDynamic, components.KindClustered:
		_, _, vel, _, _, _, _ := s.mapper.Get(h.entity)
		vel.V = mgl64.Vec3{}
		vel.W = mgl64.Vec3{}
		if body.Kind == components.KindClustered {
			s.nonDisabledClustered.remove(h)
			s.activeClustered.remove(h)
		} else {
			s.moveToPool(h, PoolDynamicDisabled)
		}
		s.active.remove(h)
	case components.KindKinematic:
		s.moveToPool(h, PoolKinematicDisabled)
	default:
		s.moveToPool(h, PoolStaticDisabled)
	}
	return nil
}

// EnableParticle moves the particle back to its enabled pool. Dynamic
// particles rejoin the active set unless they are sleeping.
func (s *Store) EnableParticle(h Handle) error {
	if !s.Valid(h) {
		return fmt.Errorf("enabling particle %d: %w", h.ID(), ErrStaleHandle)
	}
	body := s.bodyMap.Get(h.entity)
	slot := s.slotMap.Get(h.entity)
	if !slot.Disabled {
		return nil
	}
	slot.Disabled = false

	switch body.Kind {
	case components.KindDynamic, components.KindClustered:
		if body.Kind == components.KindClustered {
			s.nonDisabledClustered.insert(h)
			if body.State == components.StateDynamic {
				s.activeClustered.insert(h)
			}
		} else {
			s.moveToPool(h, poolFor(*body, false))
		}
		if body.State == components.StateDynamic {
			s.active.insert(h)
		}
	default:
		s.moveToPool(h, poolFor(*body, false))
	}
	return nil
}

// ActivateParticle wakes a dynamic particle, adding it to the active set.
// Disabled particles must be enabled first.
func (s *Store) ActivateParticle(h Handle) error {
	if !s.Valid(h) {
		return fmt.Errorf("activating particle %d: %w", h.ID(), ErrStaleHandle)
	}
	body := s.bodyMap.Get(h.entity)
	if body.Kind != components.KindDynamic && body.Kind != components.KindClustered {
		return nil
	}
	if s.slotMap.Get(h.entity).Disabled {
		return fmt.Errorf("activating particle %d: %w", h.ID(), ErrDisabled)
	}
	if body.State == components.StateKinematic {
		return nil
	}
	body.State = components.StateDynamic
	body.SleepCounter = 0
	if body.Kind == components.KindClustered {
		s.activeClustered.insert(h)
	}
	s.active.insert(h)
	return nil
}

// DeactivateParticle puts a dynamic particle to sleep, removing it from the
// active set without relocating it.
func (s *Store) DeactivateParticle(h Handle) error {
	if !s.Valid(h) {
		return fmt.Errorf("deactivating particle %d: %w", h.ID(), ErrStaleHandle)
	}
	body := s.bodyMap.Get(h.entity)
	if body.Kind != components.KindDynamic && body.Kind != components.KindClustered {
		return nil
	}
	if s.slotMap.Get(h.entity).Disabled {
		return fmt.Errorf("deactivating particle %d: %w", h.ID(), ErrDisabled)
	}
	if body.State == components.StateDynamic {
		body.State = components.StateSleeping
	}
	if body.Kind == components.KindClustered {
		s.activeClustered.remove(h)
	}
	s.active.remove(h)
	return nil
}

// SetObjectState switches a dynamic particle between dynamic, kinematic and
// sleeping. Kinematic dynamics move to the dynamic-kinematic pool and get
// infinite mass until they are made dynamic again.
func (s *Store) SetObjectState(h Handle, state components.ObjectState) error {
	if !s.Valid(h) {
		return fmt.Errorf("setting state of particle %d: %w", h.ID(), ErrStaleHandle)
	}
	_, _, vel, mass, body, slot, _ := s.mapper.Get(h.entity)
	if body.Kind != components.KindDynamic && body.Kind != components.KindClustered {
		return nil
	}
	if body.State == state {
		return nil
	}

	prev := body.State
	body.State = state
	switch state {
	case components.StateKinematic:
		mass.InvM = 0
		mass.InvI = mgl64.Vec3{}
	case components.StateDynamic, components.StateSleeping:
		if prev == components.StateKinematic {
			*mass = components.NewMass(mass.M, mass.I)
		}
	}
	if state == components.StateSleeping {
		vel.V = mgl64.Vec3{}
		vel.W = mgl64.Vec3{}
	}

	if !slot.Disabled {
		if body.Kind == components.KindDynamic {
			s.moveToPool(h, poolFor(*body, false))
		}
		if state == components.StateDynamic {
			s.active.insert(h)
			if body.Kind == components.KindClustered {
				s.activeClustered.insert(h)
			}
		} else {
			s.active.remove(h)
			s.activeClustered.remove(h)
		}
	}
	return nil
}

// Kind returns the particle's kind.
func (s *Store) Kind(h Handle) components.Kind {
	return s.bodyMap.Get(h.entity).Kind
}

// PoolOf returns the pool currently holding h.
func (s *Store) PoolOf(h Handle) Pool {
	return Pool(s.slotMap.Get(h.entity).Pool)
}

// IsDisabled reports whether the particle is disabled.
func (s *Store) IsDisabled(h Handle) bool {
	return s.slotMap.Get(h.entity).Disabled
}

// IsActive reports whether the particle is in the active set.
func (s *Store) IsActive(h Handle) bool {
	return s.active.contains(h)
}

// IsDynamic reports whether the particle currently moves under the solver:
// a non-disabled dynamic or clustered particle in the dynamic state.
func (s *Store) IsDynamic(h Handle) bool {
	body := s.bodyMap.Get(h.entity)
	if body.Kind != components.KindDynamic && body.Kind != components.KindClustered {
		return false
	}
	return body.State == components.StateDynamic && !s.slotMap.Get(h.entity).Disabled
}

// Len returns the number of particles in a pool.
func (s *Store) Len(pool Pool) int {
	return len(s.pools[pool])
}

// Count returns the number of live particles.
func (s *Store) Count() int {
	n := 0
	for i := range s.pools {
		n += len(s.pools[i])
	}
	return n
}

// Get returns pointer access to a particle's state. The pointers are valid
// until the next create or destroy call.
func (s *Store) Get(h Handle) Particle {
	xf, pred, vel, mass, body, _, coll := s.mapper.Get(h.entity)
	return Particle{
		Handle:    h,
		Transform: xf,
		Predicted: pred,
		Velocity:  vel,
		Mass:      mass,
		Body:      body,
		Collision: coll,
	}
}

// SetGeometry attaches a collision geometry to the particle.
func (s *Store) SetGeometry(h Handle, g geometry.Geometry) {
	_, _, _, _, _, _, coll := s.mapper.Get(h.entity)
	coll.Geometry = g
}

// SetMass sets mass and diagonal inertia. Non-dynamic particles keep infinite mass.
func (s *Store) SetMass(h Handle, m float64, inertia mgl64.Vec3) {
	_, _, _, mass, body, _, _ := s.mapper.Get(h.entity)
	if body.Kind != components.KindDynamic && body.Kind != components.KindClustered {
		return
	}
	*mass = components.NewMass(m, inertia)
	if body.State == components.StateKinematic {
		mass.InvM = 0
		mass.InvI = mgl64.Vec3{}
	}
}

// SetTransform teleports a particle, resetting its predicted pose.
func (s *Store) SetTransform(h Handle, xf components.Transform) {
	t, pred, _, _, _, _, _ := s.mapper.Get(h.entity)
	*t = xf
	pred.P = xf.X
	pred.Q = xf.R
}

// SetKinematicTarget sets the transform a kinematic particle should reach by
// the end of the next step. Must not be called while a step is running.
func (s *Store) SetKinematicTarget(h Handle, next components.Transform) {
	if s.targetMap.Has(h.entity) {
		target := s.targetMap.Get(h.entity)
		target.Prev = target.Next
		if !target.Active {
			target.Prev = *s.Get(h).Transform
		}
		target.Next = next
		target.Active = true
		return
	}
	s.targetMap.Add(h.entity, &components.KinematicTarget{
		Prev:   *s.Get(h).Transform,
		Next:   next,
		Active: true,
	})
}

// KinematicTarget returns the particle's kinematic target, if any.
func (s *Store) KinematicTarget(h Handle) (*components.KinematicTarget, bool) {
	if !s.targetMap.Has(h.entity) {
		return nil, false
	}
	return s.targetMap.Get(h.entity), true
}

// SetLevel stores the particle's graph level.
func (s *Store) SetLevel(h Handle, level int) {
	s.bodyMap.Get(h.entity).Level = int32(level)
}

// EachEntity visits every live particle by querying the ECS world directly,
// independent of the pool bookkeeping.
func (s *Store) EachEntity(fn func(h Handle, body components.Body, slot components.Slot)) {
	query := s.filter.Query()
	for query.Next() {
		body, slot := query.Get()
		fn(Handle{entity: query.Entity()}, *body, *slot)
	}
}
