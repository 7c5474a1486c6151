// Package solver bridges a game goroutine and a physics goroutine.
//
// The game side registers proxies and writes through them; every write is
// turned into a command that the physics side drains in FIFO order at the
// start of its next frame. Results travel back through a double buffer that
// the game side pulls from.
package solver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/pthm-cable/pbd/components"
	"github.com/pthm-cable/pbd/constraints"
	"github.com/pthm-cable/pbd/evolution"
	"github.com/pthm-cable/pbd/particles"
	"github.com/pthm-cable/pbd/simulation"
	"github.com/pthm-cable/pbd/telemetry"
)

var (
	// ErrUnknownProxy is returned for a proxy that is not registered.
	ErrUnknownProxy = errors.New("unknown proxy")
	// ErrQueueClosed is returned for writes after Close.
	ErrQueueClosed = errors.New("command queue closed")
)

// Result is one body's state as of the end of a physics frame.
type Result struct {
	ID        uint64
	Handle    particles.Handle
	Transform components.Transform
	V, W      mgl64.Vec3
	State     components.ObjectState
	Level     int
}

type resultBuffer struct {
	results []Result
	events  []evolution.StepEvent
	time    float64
	frame   int64
}

// FrameInfo describes the frame a pull read from.
type FrameInfo struct {
	Time     float64
	Frame    int64
	SubSteps int
}

// Solver owns a simulation on the physics side and the proxies that mirror
// it on the game side.
type Solver struct {
	queue *CommandQueue

	// Game side.
	nextID     uint64
	pending    []Proxy // Proxies with unsent writes, in first-write order
	statics    map[uint64]*StaticProxy
	kinematics map[uint64]*KinematicProxy
	dynamics   map[uint64]*DynamicProxy
	events     []evolution.StepEvent
	pulled     FrameInfo

	// Physics side.
	sim      *simulation.Simulation
	handles  map[uint64]particles.Handle
	joints   map[uint64]*constraints.JointHandle
	drained  []Command
	frame    int64
	subSteps int
	perf     *telemetry.PerfCollector

	bufMu   sync.Mutex
	buffers [2]resultBuffer
	write   int
	lastSub int
}

// New creates a solver around a fresh simulation.
func New(settings simulation.Settings) *Solver {
	return &Solver{
		queue:      NewCommandQueue(),
		statics:    make(map[uint64]*StaticProxy),
		kinematics: make(map[uint64]*KinematicProxy),
		dynamics:   make(map[uint64]*DynamicProxy),
		sim:        simulation.New(settings),
		handles:    make(map[uint64]particles.Handle),
		joints:     make(map[uint64]*constraints.JointHandle),
	}
}

// Simulation returns the physics-side simulation. Only the goroutine that
// advances the solver may use it.
func (s *Solver) Simulation() *simulation.Simulation { return s.sim }

// Queue returns the command queue.
func (s *Solver) Queue() *CommandQueue { return s.queue }

// SetPerfCollector times frame phases: commands, simulate and buffer.
func (s *Solver) SetPerfCollector(p *telemetry.PerfCollector) { s.perf = p }

// RegisterObject creates a proxy immediately and defers creation of its
// particle to the physics side.
func (s *Solver) RegisterObject(kind components.Kind, state ObjectState) (Proxy, error) {
	s.nextID++
	base := proxyBase{id: s.nextID, state: state, registered: true}

	var p Proxy
	switch kind {
	case components.KindStatic:
		sp := &StaticProxy{proxyBase: base}
		s.statics[sp.id] = sp
		p = sp
	case components.KindKinematic:
		kp := &KinematicProxy{proxyBase: base}
		s.kinematics[kp.id] = kp
		p = kp
	case components.KindDynamic:
		dp := &DynamicProxy{proxyBase: base}
		s.dynamics[dp.id] = dp
		p = dp
	default:
		return nil, fmt.Errorf("register %v object: %w", kind, particles.ErrUnknownKind)
	}

	if err := s.queue.Enqueue(createParticle{id: base.id, kind: kind, state: state}); err != nil {
		s.forget(p)
		return nil, err
	}
	slog.Debug("object registered", "id", base.id, "kind", kind)
	return p, nil
}

func (s *Solver) forget(p Proxy) {
	switch p := p.(type) {
	case *StaticProxy:
		delete(s.statics, p.id)
	case *KinematicProxy:
		delete(s.kinematics, p.id)
	case *DynamicProxy:
		delete(s.dynamics, p.id)
	}
	p.base().registered = false
}

func (s *Solver) lookup(p Proxy) (*proxyBase, error) {
	if p == nil {
		return nil, ErrUnknownProxy
	}
	b := p.base()
	if !b.registered {
		return nil, fmt.Errorf("proxy %d: %w", b.id, ErrUnknownProxy)
	}
	return b, nil
}

// UnregisterObject detaches a proxy immediately and defers destruction of
// its particle. The proxy accepts no further writes.
func (s *Solver) UnregisterObject(p Proxy) error {
	b, err := s.lookup(p)
	if err != nil {
		return err
	}
	if err := s.flushPending(); err != nil {
		return err
	}
	s.forget(p)
	return s.queue.Enqueue(destroyParticle{id: b.id})
}

// markDirty queues p for the next flush. Each proxy appears once; its
// position is that of its first unsent write.
func (s *Solver) markDirty(p Proxy) {
	b := p.base()
	if b.queued {
		return
	}
	b.queued = true
	s.pending = append(s.pending, p)
}

// SetTransform teleports a body on the next push.
func (s *Solver) SetTransform(p Proxy, xf components.Transform) error {
	b, err := s.lookup(p)
	if err != nil {
		return err
	}
	b.state.Transform = xf
	b.dirtyTransform = true
	s.markDirty(p)
	return nil
}

// SetVelocity sets a dynamic body's velocity on the next push.
func (s *Solver) SetVelocity(p *DynamicProxy, v, w mgl64.Vec3) error {
	b, err := s.lookup(p)
	if err != nil {
		return err
	}
	b.state.V, b.state.W = v, w
	b.dirtyVelocity = true
	s.markDirty(p)
	return nil
}

// SetDisabled enables or disables a body on the next push.
func (s *Solver) SetDisabled(p Proxy, disabled bool) error {
	b, err := s.lookup(p)
	if err != nil {
		return err
	}
	b.state.Disabled = disabled
	b.dirtyDisabled = true
	s.markDirty(p)
	return nil
}

// SetKinematicTarget sets where a kinematic body will be at the end of the
// next physics frame.
func (s *Solver) SetKinematicTarget(p *KinematicProxy, xf components.Transform) error {
	if _, err := s.lookup(p); err != nil {
		return err
	}
	p.target = xf
	p.hasTarget = true
	s.markDirty(p)
	return nil
}

// AddJoint joins child to parent at a world frame. The returned id names
// the joint for RemoveJoint.
func (s *Solver) AddJoint(parent, child Proxy, world components.Transform, settings constraints.JointSettings) (uint64, error) {
	pb, err := s.lookup(parent)
	if err != nil {
		return 0, err
	}
	cb, err := s.lookup(child)
	if err != nil {
		return 0, err
	}
	// The joint captures its frames from the bodies' current poses.
	if err := s.flushPending(); err != nil {
		return 0, err
	}
	s.nextID++
	id := s.nextID
	if err := s.queue.Enqueue(addJoint{id: id, parent: pb.id, child: cb.id, world: world, settings: settings}); err != nil {
		return 0, err
	}
	return id, nil
}

// RemoveJoint removes a joint added with AddJoint.
func (s *Solver) RemoveJoint(id uint64) error {
	if err := s.flushPending(); err != nil {
		return err
	}
	return s.queue.Enqueue(removeJoint{id: id})
}

// PushPhysicsState sends every pending proxy write to the physics side.
// Writes reach the queue in the order the proxies were first written.
func (s *Solver) PushPhysicsState() error {
	return s.flushPending()
}

func (s *Solver) flushPending() error {
	for i, p := range s.pending {
		if err := s.push(p); err != nil {
			s.pending = append(s.pending[:0], s.pending[i:]...)
			return err
		}
	}
	clear(s.pending)
	s.pending = s.pending[:0]
	return nil
}

func (s *Solver) push(p Proxy) error {
	b := p.base()
	if !b.registered {
		b.queued = false
		return nil
	}
	if b.dirtyTransform {
		if err := s.queue.Enqueue(setTransform{id: b.id, xf: b.state.Transform}); err != nil {
			return err
		}
		b.dirtyTransform = false
	}
	if b.dirtyVelocity {
		if err := s.queue.Enqueue(setVelocity{id: b.id, v: b.state.V, w: b.state.W}); err != nil {
			return err
		}
		b.dirtyVelocity = false
	}
	if b.dirtyDisabled {
		if err := s.queue.Enqueue(setDisabled{id: b.id, disabled: b.state.Disabled}); err != nil {
			return err
		}
		b.dirtyDisabled = false
	}
	if kp, ok := p.(*KinematicProxy); ok && kp.hasTarget {
		if err := s.queue.Enqueue(setKinematicTarget{id: kp.id, xf: kp.target}); err != nil {
			return err
		}
		kp.hasTarget = false
	}
	b.queued = false
	return nil
}

// AdvanceSolverBy runs one physics frame: drain commands, simulate dt in
// sub-steps, buffer results and flip. It returns the number of sub-steps.
func (s *Solver) AdvanceSolverBy(dt float64) int {
	s.perf.StartStep()
	s.perf.StartPhase(telemetry.PhaseCommands)
	s.processCommands()

	s.perf.StartPhase(telemetry.PhaseSimulate)
	s.subSteps = s.sim.Step(dt)
	s.frame++

	s.perf.StartPhase(telemetry.PhaseBuffer)
	s.sim.Evolution().FlipEvents()
	s.BufferPhysicsResults()
	s.FlipBuffers()
	s.perf.EndStep()
	return s.subSteps
}

func (s *Solver) processCommands() {
	s.drained = s.queue.Drain(s.drained[:0])
	for _, cmd := range s.drained {
		if err := s.apply(cmd); err != nil {
			slog.Warn("command failed", "command", fmt.Sprintf("%T", cmd), "error", err)
		}
	}
	if n := len(s.drained); n > 0 {
		slog.Debug("commands drained", "count", n, "frame", s.frame)
	}
	clear(s.drained)
}

func (s *Solver) handle(id uint64) (particles.Handle, error) {
	h, ok := s.handles[id]
	if !ok {
		return particles.Handle{}, fmt.Errorf("object %d: %w", id, ErrUnknownProxy)
	}
	return h, nil
}

func (s *Solver) apply(cmd Command) error {
	store := s.sim.Store()
	switch c := cmd.(type) {
	case createParticle:
		a, err := s.sim.CreateActor(c.kind, c.state.Geometry, c.state.Mass, c.state.Transform)
		if err != nil {
			return err
		}
		s.handles[c.id] = a
		if c.state.Disabled {
			return store.DisableParticle(a)
		}
		s.sim.SetVelocity(a, c.state.V, c.state.W)
		if c.state.Sleeping {
			return store.DeactivateParticle(a)
		}
		return nil
	case destroyParticle:
		h, err := s.handle(c.id)
		if err != nil {
			return err
		}
		delete(s.handles, c.id)
		return s.sim.DestroyActor(h)
	case setTransform:
		h, err := s.handle(c.id)
		if err != nil {
			return err
		}
		store.SetTransform(h, c.xf)
		return nil
	case setVelocity:
		h, err := s.handle(c.id)
		if err != nil {
			return err
		}
		s.sim.SetVelocity(h, c.v, c.w)
		return nil
	case setDisabled:
		h, err := s.handle(c.id)
		if err != nil {
			return err
		}
		if c.disabled {
			return store.DisableParticle(h)
		}
		return store.EnableParticle(h)
	case setKinematicTarget:
		h, err := s.handle(c.id)
		if err != nil {
			return err
		}
		return s.sim.SetKinematicTarget(h, c.xf)
	case addJoint:
		parent, err := s.handle(c.parent)
		if err != nil {
			return err
		}
		child, err := s.handle(c.child)
		if err != nil {
			return err
		}
		jh, err := s.sim.CreateJoint(parent, child, c.world, c.settings)
		if err != nil {
			return err
		}
		s.joints[c.id] = jh
		return nil
	case removeJoint:
		jh, ok := s.joints[c.id]
		if !ok {
			return fmt.Errorf("joint %d: %w", c.id, constraints.ErrStaleConstraint)
		}
		delete(s.joints, c.id)
		if !jh.Valid() {
			return nil
		}
		return s.sim.DestroyJoint(jh)
	}
	return fmt.Errorf("unhandled command %T", cmd)
}

// BufferPhysicsResults copies the state of every moving body into the
// write buffer. Static bodies are skipped.
func (s *Solver) BufferPhysicsResults() {
	store := s.sim.Store()
	buf := &s.buffers[s.write]
	buf.results = buf.results[:0]
	for id, h := range s.handles {
		if !store.Valid(h) {
			continue
		}
		p := store.Get(h)
		if p.Kind == components.KindStatic {
			continue
		}
		buf.results = append(buf.results, Result{
			ID:        id,
			Handle:    h,
			Transform: *p.Transform,
			V:         p.V,
			W:         p.W,
			State:     p.State,
			Level:     int(p.Level),
		})
	}
	buf.events = append(buf.events[:0], s.sim.Evolution().Events()...)
	buf.time = s.sim.Evolution().Time()
	buf.frame = s.frame
}

// FlipBuffers publishes the write buffer to the game side.
func (s *Solver) FlipBuffers() {
	s.bufMu.Lock()
	s.write = 1 - s.write
	s.lastSub = s.subSteps
	s.bufMu.Unlock()
}

// PullFromPhysicsState copies the latest published results into the
// proxies. Pending game-side writes win over physics results. It returns
// the number of proxies updated.
func (s *Solver) PullFromPhysicsState() int {
	s.bufMu.Lock()
	defer s.bufMu.Unlock()

	buf := &s.buffers[1-s.write]
	if buf.frame == s.pulled.Frame {
		return 0
	}
	updated := 0
	for _, r := range buf.results {
		var b *proxyBase
		if p, ok := s.dynamics[r.ID]; ok {
			b = &p.proxyBase
		} else if p, ok := s.kinematics[r.ID]; ok {
			b = &p.proxyBase
		} else {
			continue
		}
		b.handle, b.hasHandle = r.Handle, true
		if !b.dirtyTransform {
			b.state.Transform = r.Transform
		}
		if !b.dirtyVelocity {
			b.state.V, b.state.W = r.V, r.W
		}
		b.state.Sleeping = r.State == components.StateSleeping
		updated++
	}
	s.events = append(s.events[:0], buf.events...)
	s.pulled = FrameInfo{Time: buf.time, Frame: buf.frame, SubSteps: s.lastSub}
	return updated
}

// Events returns the step events delivered by the last pull.
func (s *Solver) Events() []evolution.StepEvent { return s.events }

// Pulled describes the frame the last pull read from.
func (s *Solver) Pulled() FrameInfo { return s.pulled }

// Run advances the solver by dt every interval until ctx is cancelled or
// the queue is closed. A zero interval runs frames back to back.
func (s *Solver) Run(ctx context.Context, dt float64, interval time.Duration) error {
	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}
	slog.Info("solver running", "dt", dt, "interval", interval)
	for {
		if s.queue.Closed() {
			return nil
		}
		if tick != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		s.AdvanceSolverBy(dt)
	}
}

// Close stops accepting commands. A running Run returns after its current
// frame.
func (s *Solver) Close() {
	s.queue.Close()
}
