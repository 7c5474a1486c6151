// Package simulation is an immediate-mode wrapper around an evolution: the
// caller creates actors and joints, configures collision filtering, and
// calls Simulate once per frame on the same goroutine.
package simulation

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/pthm-cable/pbd/broadphase"
	"github.com/pthm-cable/pbd/components"
	"github.com/pthm-cable/pbd/config"
	"github.com/pthm-cable/pbd/constraints"
	"github.com/pthm-cable/pbd/evolution"
	"github.com/pthm-cable/pbd/geometry"
	"github.com/pthm-cable/pbd/graph"
	"github.com/pthm-cable/pbd/particles"
)

var (
	// ErrIgnoredPair is returned when springs are requested for a pair whose
	// collisions are ignored.
	ErrIgnoredPair = errors.New("collisions between actors are ignored")
	// ErrNotKinematic is returned when a kinematic target is set on a body
	// the solver moves itself.
	ErrNotKinematic = errors.New("actor is not kinematic")
)

// Actor is a handle to one simulated body.
type Actor = particles.Handle

// IgnorePair names two actors that never collide with each other.
type IgnorePair struct {
	A, B Actor
}

func pairKey(a, b Actor) [2]Actor {
	if a.ID() > b.ID() {
		a, b = b, a
	}
	return [2]Actor{a, b}
}

// Settings configure a simulation.
type Settings struct {
	Evolution evolution.Settings
	Joints    constraints.JointSolverSettings

	MaxDeltaTime float64
	MaxSubSteps  int

	JointPriority int

	SpringThreshold             float64
	MaxSprings                  int
	SpringStiffness             float64
	SpringPushOutPairIterations int
	SpringPriority              int
}

// DefaultSettings returns the immediate simulation defaults.
func DefaultSettings() Settings {
	joints := constraints.DefaultJointSolverSettings()
	joints.ApplyPushOutPairIterations = 2
	joints.MinParentMassRatio = 0.5
	joints.MaxInertiaRatio = 5
	joints.ProjectionPhase = constraints.ProjectionApplyPushOut

	return Settings{
		Evolution:                   evolution.DefaultSettings(),
		Joints:                      joints,
		MaxDeltaTime:                0.03,
		MaxSubSteps:                 10,
		JointPriority:               0,
		SpringThreshold:             1,
		MaxSprings:                  1,
		SpringStiffness:             0.5,
		SpringPushOutPairIterations: 2,
		SpringPriority:              1,
	}
}

// SettingsFromConfig builds settings from a loaded configuration.
func SettingsFromConfig(cfg *config.Config) (Settings, error) {
	phase, ok := constraints.ParseProjectionPhase(cfg.Joints.ProjectionPhase)
	if !ok {
		return Settings{}, fmt.Errorf("joints: unknown projection phase %q", cfg.Joints.ProjectionPhase)
	}

	ev := cfg.Evolution
	jc := cfg.Joints
	cc := cfg.Collision
	return Settings{
		Evolution: evolution.Settings{
			Iterations:            ev.Iterations,
			PushOutIterations:     ev.PushOutIterations,
			Gravity:               mgl64.Vec3(cfg.Derived.Gravity),
			SleepLinearThreshold:  ev.SleepLinearThreshold,
			SleepAngularThreshold: ev.SleepAngularThreshold,
			SleepCounterThreshold: ev.SleepCounterThreshold,
		},
		Joints: constraints.JointSolverSettings{
			ApplyPairIterations:        jc.ApplyPairIterations,
			ApplyPushOutPairIterations: jc.ApplyPushOutPairIterations,
			SwingTwistAngleTolerance:   jc.SwingTwistAngleTolerance,
			MinParentMassRatio:         jc.MinParentMassRatio,
			MaxInertiaRatio:            jc.MaxInertiaRatio,
			VelocitySolve:              jc.VelocitySolve,
			EnableTwistLimits:          jc.EnableTwistLimits,
			EnableSwingLimits:          jc.EnableSwingLimits,
			EnableDrives:               jc.EnableDrives,
			ProjectionPhase:            phase,
			LinearProjection:           jc.LinearProjection,
			AngularProjection:          jc.AngularProjection,
			Stiffness:                  jc.Stiffness,
			DriveStiffness:             jc.DriveStiffness,
			SoftLinearStiffness:        jc.SoftLinearStiffness,
			SoftAngularStiffness:       jc.SoftAngularStiffness,
		},
		MaxDeltaTime:                ev.MaxDeltaTime,
		MaxSubSteps:                 ev.MaxSubSteps,
		JointPriority:               jc.Priority,
		SpringThreshold:             cc.CreationThreshold,
		MaxSprings:                  cc.MaxSprings,
		SpringStiffness:             cc.Stiffness,
		SpringPushOutPairIterations: cc.PushOutPairIterations,
		SpringPriority:              cc.Priority,
	}, nil
}

// Simulation owns a particle store, one joint container, one spring
// container and the evolution that steps them.
type Simulation struct {
	settings  Settings
	store     *particles.Store
	evolution *evolution.Evolution
	joints    *constraints.JointConstraints
	springs   *constraints.DynamicSprings

	ignorePairs  map[[2]Actor]struct{}
	ignoreActors map[Actor]struct{}

	// Set by structural changes; leveling reruns before the next step.
	dirty bool
}

// New creates an empty simulation.
func New(settings Settings) *Simulation {
	store := particles.NewStore()
	evo := evolution.New(store, settings.Evolution)
	joints := constraints.NewJointConstraints(store, settings.Joints)
	springs := constraints.NewDynamicSprings(store, settings.SpringThreshold, settings.MaxSprings, settings.SpringStiffness)
	springs.SetEventHandler(evo.SpringEventHandler())

	evo.AddRule(constraints.NewJointRule(joints, settings.JointPriority))
	evo.AddRule(constraints.NewSpringRule(springs, settings.SpringPushOutPairIterations, settings.SpringPriority))

	return &Simulation{
		settings:     settings,
		store:        store,
		evolution:    evo,
		joints:       joints,
		springs:      springs,
		ignorePairs:  make(map[[2]Actor]struct{}),
		ignoreActors: make(map[Actor]struct{}),
	}
}

// Store returns the particle store.
func (s *Simulation) Store() *particles.Store { return s.store }

// Evolution returns the evolution.
func (s *Simulation) Evolution() *evolution.Evolution { return s.evolution }

// Joints returns the joint container.
func (s *Simulation) Joints() *constraints.JointConstraints { return s.joints }

// Springs returns the spring container.
func (s *Simulation) Springs() *constraints.DynamicSprings { return s.springs }

// Settings returns the settings the simulation was created with, with the
// current joint solver settings.
func (s *Simulation) Settings() Settings {
	out := s.settings
	out.Joints = s.joints.Settings()
	out.Evolution = s.evolution.Settings()
	return out
}

// SetJointSolverSettings replaces the joint solver settings between frames.
func (s *Simulation) SetJointSolverSettings(js constraints.JointSolverSettings) {
	s.joints.SetSettings(js)
}

// SetIterations changes the evolution iteration counts between frames.
func (s *Simulation) SetIterations(iterations, pushOutIterations int) {
	es := s.evolution.Settings()
	es.Iterations = iterations
	es.PushOutIterations = pushOutIterations
	s.evolution.SetSettings(es)
}

// CreateActor adds a body of the given kind. Mass is ignored for static
// and kinematic bodies; inertia comes from the geometry.
func (s *Simulation) CreateActor(kind components.Kind, g geometry.Geometry, mass float64, xf components.Transform) (Actor, error) {
	handles, err := s.store.CreateParticles(kind, 1, particles.Params{})
	if err != nil {
		return Actor{}, fmt.Errorf("create actor: %w", err)
	}
	h := handles[0]
	s.store.SetTransform(h, xf)
	if g != nil {
		s.store.SetGeometry(h, g)
	}
	if kind == components.KindDynamic || kind == components.KindClustered {
		s.store.SetMass(h, mass, geometry.Inertia(g, mass))
	}
	s.dirty = true
	return h, nil
}

// DestroyActor removes an actor with its joints, springs and ignore entries.
func (s *Simulation) DestroyActor(a Actor) error {
	if !s.store.Valid(a) {
		return fmt.Errorf("destroy actor %d: %w", a.ID(), particles.ErrStaleHandle)
	}
	for key := range s.ignorePairs {
		if key[0] == a || key[1] == a {
			delete(s.ignorePairs, key)
		}
	}
	delete(s.ignoreActors, a)
	if err := s.evolution.DestroyParticles([]particles.Handle{a}); err != nil {
		return err
	}
	s.dirty = true
	return nil
}

// CreateJoint joins child to parent at a world-space frame.
func (s *Simulation) CreateJoint(parent, child Actor, world components.Transform, js constraints.JointSettings) (*constraints.JointHandle, error) {
	h, err := s.joints.AddConstraintWorldFrame([2]particles.Handle{child, parent}, world, js)
	if err != nil {
		return nil, err
	}
	s.dirty = true
	return h, nil
}

// CreateJointLocal joins child to parent with frames given in each body's
// local space.
func (s *Simulation) CreateJointLocal(parent, child Actor, parentFrame, childFrame components.Transform, js constraints.JointSettings) (*constraints.JointHandle, error) {
	h, err := s.joints.AddConstraint([2]particles.Handle{child, parent}, [2]components.Transform{childFrame, parentFrame}, js)
	if err != nil {
		return nil, err
	}
	s.dirty = true
	return h, nil
}

// DestroyJoint removes a joint.
func (s *Simulation) DestroyJoint(h *constraints.JointHandle) error {
	if err := s.joints.Remove(h); err != nil {
		return err
	}
	s.dirty = true
	return nil
}

// SetIgnoreCollisionPairTable replaces the set of actor pairs that never
// collide. Springs already registered for those pairs are dropped.
func (s *Simulation) SetIgnoreCollisionPairTable(pairs []IgnorePair) {
	s.ignorePairs = make(map[[2]Actor]struct{}, len(pairs))
	for _, p := range pairs {
		s.ignorePairs[pairKey(p.A, p.B)] = struct{}{}
	}
	s.pruneSpringPairs()
}

// SetIgnoreCollisionActors replaces the set of actors that collide with
// nothing. Their collision group becomes -1.
func (s *Simulation) SetIgnoreCollisionActors(actors []Actor) {
	for a := range s.ignoreActors {
		if s.store.Valid(a) {
			s.store.Get(a).Group = 0
		}
	}
	s.ignoreActors = make(map[Actor]struct{}, len(actors))
	for _, a := range actors {
		if !s.store.Valid(a) {
			continue
		}
		s.ignoreActors[a] = struct{}{}
		s.store.Get(a).Group = -1
	}
	s.pruneSpringPairs()
}

// IsIgnored reports whether collisions between a and b are ignored.
func (s *Simulation) IsIgnored(a, b Actor) bool {
	if _, ok := s.ignoreActors[a]; ok {
		return true
	}
	if _, ok := s.ignoreActors[b]; ok {
		return true
	}
	_, ok := s.ignorePairs[pairKey(a, b)]
	return ok
}

func (s *Simulation) pruneSpringPairs() {
	removed := 0
	for i := s.springs.Len() - 1; i >= 0; i-- {
		pair := s.springs.Pair(i)
		if s.IsIgnored(pair[0], pair[1]) {
			_ = s.springs.RemovePair(i)
			removed++
		}
	}
	if removed > 0 {
		slog.Debug("spring pairs pruned", "removed", removed)
	}
}

// AddSpringPair enables dynamic springs between a and b.
func (s *Simulation) AddSpringPair(a, b Actor) (int, error) {
	if s.IsIgnored(a, b) {
		return -1, fmt.Errorf("add spring pair %d-%d: %w", a.ID(), b.ID(), ErrIgnoredPair)
	}
	return s.springs.AddPair([2]particles.Handle{a, b})
}

// AddSpringPairsWithin enables dynamic springs between every two of the
// given actors whose origins lie within radius of each other. Ignored pairs
// are skipped. It returns the number of pairs added.
func (s *Simulation) AddSpringPairsWithin(actors []Actor, radius float64) (int, error) {
	grid := broadphase.NewGrid(radius)
	for _, a := range actors {
		if !s.store.Valid(a) {
			return 0, fmt.Errorf("add spring pairs %d: %w", a.ID(), particles.ErrStaleHandle)
		}
		grid.Insert(a, s.store.Get(a).X)
	}
	added := 0
	for _, pair := range grid.Pairs(radius) {
		if s.IsIgnored(pair[0], pair[1]) {
			continue
		}
		if _, err := s.springs.AddPair(pair); err != nil {
			return added, err
		}
		added++
	}
	slog.Debug("spring pairs added", "actors", len(actors), "pairs", added, "radius", radius)
	return added, nil
}

// SetKinematicTarget sets where a kinematic actor will be at the end of the
// next Simulate call.
func (s *Simulation) SetKinematicTarget(a Actor, xf components.Transform) error {
	if !s.store.Valid(a) {
		return fmt.Errorf("set kinematic target %d: %w", a.ID(), particles.ErrStaleHandle)
	}
	p := s.store.Get(a)
	if p.Kind != components.KindKinematic && p.State != components.StateKinematic {
		return fmt.Errorf("set kinematic target %d: %w", a.ID(), ErrNotKinematic)
	}
	s.store.SetKinematicTarget(a, xf)
	return nil
}

// ConditionConstraints levels every particle by its joint distance from the
// nearest body the solver cannot move, and stores the levels on the joints.
func (s *Simulation) ConditionConstraints() {
	handles := s.store.AllView().Handles()
	index := make(map[particles.Handle]int, len(handles))
	anchors := make([]bool, len(handles))
	for i, h := range handles {
		index[h] = i
		p := s.store.Get(h)
		anchors[i] = p.Kind == components.KindStatic || p.Kind == components.KindKinematic ||
			p.State == components.StateKinematic || p.InvM == 0
	}

	edges := make([]graph.Edge, s.joints.Len())
	for i := range edges {
		pair := s.joints.ConstraintParticles(i)
		edges[i] = graph.Edge{index[pair[0]], index[pair[1]]}
	}

	levels, _ := graph.Level(anchors, edges)
	for i, h := range handles {
		s.store.SetLevel(h, levels[i])
	}
	for i, e := range edges {
		s.joints.SetParticleLevels(i, [2]int{levels[e[0]], levels[e[1]]})
	}
	s.dirty = false
	slog.Debug("constraints conditioned", "particles", len(handles), "joints", len(edges))
}

// Simulate advances the simulation by dt under gravity, in sub-steps no
// longer than maxDt, and returns the number of sub-steps taken.
func (s *Simulation) Simulate(dt, maxDt float64, maxSubSteps int, gravity mgl64.Vec3) int {
	if s.dirty {
		s.ConditionConstraints()
	}
	s.evolution.SetGravity(gravity)
	return s.evolution.Advance(dt, maxDt, maxSubSteps)
}

// Step advances by dt using the configured gravity and sub-step limits.
func (s *Simulation) Step(dt float64) int {
	return s.Simulate(dt, s.settings.MaxDeltaTime, s.settings.MaxSubSteps, s.evolution.Settings().Gravity)
}

// Transform returns an actor's committed transform.
func (s *Simulation) Transform(a Actor) components.Transform {
	return *s.store.Get(a).Transform
}

// Velocity returns an actor's linear and angular velocity.
func (s *Simulation) Velocity(a Actor) (v, w mgl64.Vec3) {
	p := s.store.Get(a)
	return p.V, p.W
}

// SetVelocity sets an actor's linear and angular velocity. Disabled
// actors keep zero velocity and ignore the write.
func (s *Simulation) SetVelocity(a Actor, v, w mgl64.Vec3) {
	if s.store.IsDisabled(a) {
		slog.Debug("velocity write to disabled actor ignored", "actor", a.ID())
		return
	}
	p := s.store.Get(a)
	p.V, p.W = v, w
}

// SetObjectState switches a dynamic actor between the dynamic, kinematic
// and sleeping states. Moving into or out of the kinematic state changes
// which bodies anchor the joint levels, so levels are rebuilt before the
// next step.
func (s *Simulation) SetObjectState(a Actor, state components.ObjectState) error {
	if !s.store.Valid(a) {
		return fmt.Errorf("set object state %d: %w", a.ID(), particles.ErrStaleHandle)
	}
	prev := s.store.Get(a).State
	if err := s.store.SetObjectState(a, state); err != nil {
		return err
	}
	if (prev == components.StateKinematic) != (state == components.StateKinematic) && s.store.Get(a).State == state {
		s.dirty = true
	}
	return nil
}

// JointErrors returns the linear error of every joint.
func (s *Simulation) JointErrors() []float64 {
	out := make([]float64, s.joints.Len())
	for i := range out {
		out[i], _ = s.joints.JointError(i)
	}
	return out
}
