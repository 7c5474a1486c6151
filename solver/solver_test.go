package solver

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/pthm-cable/pbd/components"
	"github.com/pthm-cable/pbd/constraints"
	"github.com/pthm-cable/pbd/geometry"
	"github.com/pthm-cable/pbd/simulation"
)

func at(x, y, z float64) components.Transform {
	return components.Transform{X: mgl64.Vec3{x, y, z}, R: mgl64.QuatIdent()}
}

func body(xf components.Transform) ObjectState {
	return ObjectState{Transform: xf, Mass: 1, Geometry: geometry.NewSphere(1)}
}

func TestCommandQueueFIFO(t *testing.T) {
	q := NewCommandQueue()
	for i := uint64(1); i <= 3; i++ {
		if err := q.Enqueue(destroyParticle{id: i}); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	// Duplicates are kept.
	_ = q.Enqueue(destroyParticle{id: 3})

	got := q.Drain(nil)
	if len(got) != 4 {
		t.Fatalf("drained: got %d, want 4", len(got))
	}
	for i, want := range []uint64{1, 2, 3, 3} {
		if id := got[i].(destroyParticle).id; id != want {
			t.Errorf("command %d: got id %d, want %d", i, id, want)
		}
	}
	if q.Len() != 0 {
		t.Errorf("queue length after drain: got %d, want 0", q.Len())
	}

	q.Close()
	if err := q.Enqueue(destroyParticle{id: 9}); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("enqueue after close: got %v, want ErrQueueClosed", err)
	}
}

func TestCommandQueueConcurrentProducers(t *testing.T) {
	q := NewCommandQueue()
	const producers, each = 4, 250

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < each; i++ {
				_ = q.Enqueue(setDisabled{id: uint64(p)})
			}
		}(p)
	}

	var drained []Command
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for {
		drained = q.Drain(drained)
		select {
		case <-done:
			drained = q.Drain(drained)
			if len(drained) != producers*each {
				t.Errorf("drained: got %d, want %d", len(drained), producers*each)
			}
			return
		default:
		}
	}
}

func TestRegisterIsDeferred(t *testing.T) {
	s := New(simulation.DefaultSettings())
	p, err := s.RegisterObject(components.KindDynamic, body(at(0, 0, 0)))
	if err != nil {
		t.Fatalf("RegisterObject: %v", err)
	}
	if _, ok := p.(*DynamicProxy); !ok {
		t.Fatalf("proxy type: got %T, want *DynamicProxy", p)
	}
	if _, ok := p.Handle(); ok {
		t.Error("handle assigned before the physics side ran")
	}
	if got := s.Simulation().Store().Count(); got != 0 {
		t.Errorf("particles before advance: got %d, want 0", got)
	}

	s.AdvanceSolverBy(1.0 / 60)
	if got := s.Simulation().Store().Count(); got != 1 {
		t.Errorf("particles after advance: got %d, want 1", got)
	}
	if n := s.PullFromPhysicsState(); n != 1 {
		t.Errorf("pulled: got %d, want 1", n)
	}
	if _, ok := p.Handle(); !ok {
		t.Error("handle not assigned after pull")
	}
	if z := p.State().Transform.X.Z(); z >= 0 {
		t.Errorf("dynamic body did not fall: z %f", z)
	}
	if n := s.PullFromPhysicsState(); n != 0 {
		t.Errorf("second pull of the same frame: got %d, want 0", n)
	}
}

func TestUnregisterDetachesImmediately(t *testing.T) {
	s := New(simulation.DefaultSettings())
	p, _ := s.RegisterObject(components.KindStatic, body(at(0, 0, 0)))
	s.AdvanceSolverBy(1.0 / 60)

	if err := s.UnregisterObject(p); err != nil {
		t.Fatalf("UnregisterObject: %v", err)
	}
	if p.Registered() {
		t.Error("proxy still registered")
	}
	if err := s.SetTransform(p, at(1, 0, 0)); !errors.Is(err, ErrUnknownProxy) {
		t.Errorf("write after unregister: got %v, want ErrUnknownProxy", err)
	}
	if err := s.UnregisterObject(p); !errors.Is(err, ErrUnknownProxy) {
		t.Errorf("second unregister: got %v, want ErrUnknownProxy", err)
	}
	if got := s.Simulation().Store().Count(); got != 1 {
		t.Errorf("particle destroyed before the physics side ran: count %d", got)
	}

	s.AdvanceSolverBy(1.0 / 60)
	if got := s.Simulation().Store().Count(); got != 0 {
		t.Errorf("particles after advance: got %d, want 0", got)
	}
}

func TestRegisterThenUnregisterSameFrame(t *testing.T) {
	s := New(simulation.DefaultSettings())
	p, _ := s.RegisterObject(components.KindDynamic, body(at(0, 0, 0)))
	if err := s.UnregisterObject(p); err != nil {
		t.Fatalf("UnregisterObject: %v", err)
	}

	s.AdvanceSolverBy(1.0 / 60)
	if got := s.Simulation().Store().Count(); got != 0 {
		t.Errorf("particles: got %d, want 0", got)
	}
}

func TestPushAppliesWritesInOrder(t *testing.T) {
	s := New(simulation.DefaultSettings())
	p, _ := s.RegisterObject(components.KindDynamic, body(at(0, 0, 0)))
	dp := p.(*DynamicProxy)

	_ = s.SetTransform(dp, at(3, 0, 0))
	_ = s.SetVelocity(dp, mgl64.Vec3{0, 60, 0}, mgl64.Vec3{})
	if err := s.PushPhysicsState(); err != nil {
		t.Fatalf("PushPhysicsState: %v", err)
	}

	settings := s.Simulation().Evolution().Settings()
	settings.Gravity = mgl64.Vec3{}
	s.Simulation().Evolution().SetSettings(settings)

	s.AdvanceSolverBy(1.0 / 60)
	s.PullFromPhysicsState()

	x := p.State().Transform.X
	if math.Abs(x.X()-3) > 1e-9 || math.Abs(x.Y()-1) > 1e-9 {
		t.Errorf("position: got %v, want (3, 1, 0)", x)
	}
}

func TestPendingWriteWinsOverPull(t *testing.T) {
	s := New(simulation.DefaultSettings())
	p, _ := s.RegisterObject(components.KindDynamic, body(at(0, 0, 0)))
	s.AdvanceSolverBy(1.0 / 60)

	_ = s.SetTransform(p, at(7, 0, 0))
	s.PullFromPhysicsState()
	if x := p.State().Transform.X.X(); x != 7 {
		t.Errorf("pending transform overwritten: got %f, want 7", x)
	}
}

func TestKinematicTargetAndJoint(t *testing.T) {
	s := New(simulation.DefaultSettings())
	anchor, _ := s.RegisterObject(components.KindKinematic, body(at(0, 0, 0)))
	bob, _ := s.RegisterObject(components.KindDynamic, body(at(0, 0, -10)))
	if _, err := s.AddJoint(anchor, bob, at(0, 0, -10), constraints.LockedJointSettings()); err != nil {
		t.Fatalf("AddJoint: %v", err)
	}

	for i := 0; i < 30; i++ {
		_ = s.SetKinematicTarget(anchor.(*KinematicProxy), at(float64(i+1), 0, 0))
		if err := s.PushPhysicsState(); err != nil {
			t.Fatalf("PushPhysicsState: %v", err)
		}
		s.AdvanceSolverBy(1.0 / 60)
	}
	s.PullFromPhysicsState()

	if x := anchor.State().Transform.X.X(); math.Abs(x-30) > 1e-9 {
		t.Errorf("anchor x: got %f, want 30", x)
	}
	got := bob.State().Transform.X
	if d := got.Sub(mgl64.Vec3{30, 0, -10}).Len(); d > 0.5 {
		t.Errorf("bob off its joint by %f at %v", d, got)
	}
	if s.Simulation().Joints().Len() != 1 {
		t.Errorf("joints: got %d, want 1", s.Simulation().Joints().Len())
	}
}

func TestWriteBeforeJointKeepsOrder(t *testing.T) {
	s := New(simulation.DefaultSettings())
	anchor, _ := s.RegisterObject(components.KindKinematic, body(at(0, 0, 0)))
	bob, _ := s.RegisterObject(components.KindDynamic, body(at(5, 0, 0)))

	// The teleport is issued before the joint, so the joint must see it.
	if err := s.SetTransform(bob, at(0, 0, -10)); err != nil {
		t.Fatalf("SetTransform: %v", err)
	}
	if _, err := s.AddJoint(anchor, bob, at(0, 0, -10), constraints.LockedJointSettings()); err != nil {
		t.Fatalf("AddJoint: %v", err)
	}
	if err := s.PushPhysicsState(); err != nil {
		t.Fatalf("PushPhysicsState: %v", err)
	}
	s.processCommands()

	joints := s.Simulation().Joints()
	if joints.Len() != 1 {
		t.Fatalf("joints: got %d, want 1", joints.Len())
	}
	if lin, ang := joints.JointError(0); lin > 1e-9 || ang > 1e-9 {
		t.Errorf("joint error: got %f, %f, want 0, 0", lin, ang)
	}
}

func TestPushOrderFollowsFirstWrite(t *testing.T) {
	s := New(simulation.DefaultSettings())
	var proxies []Proxy
	for i := 0; i < 8; i++ {
		p, _ := s.RegisterObject(components.KindDynamic, body(at(float64(i), 0, 0)))
		proxies = append(proxies, p)
	}
	s.processCommands()

	order := []int{5, 2, 7, 0, 3}
	for _, i := range order {
		_ = s.SetTransform(proxies[i], at(float64(i), 1, 0))
	}
	// A second write does not move a proxy in the order.
	_ = s.SetDisabled(proxies[5], true)
	if err := s.PushPhysicsState(); err != nil {
		t.Fatalf("PushPhysicsState: %v", err)
	}

	cmds := s.Queue().Drain(nil)
	if len(cmds) != len(order)+1 {
		t.Fatalf("commands: got %d, want %d", len(cmds), len(order)+1)
	}
	wantIDs := []uint64{
		proxies[5].ID(), proxies[5].ID(), proxies[2].ID(),
		proxies[7].ID(), proxies[0].ID(), proxies[3].ID(),
	}
	for i, c := range cmds {
		var id uint64
		switch c := c.(type) {
		case setTransform:
			id = c.id
		case setDisabled:
			id = c.id
		default:
			t.Fatalf("command %d: unexpected %T", i, c)
		}
		if id != wantIDs[i] {
			t.Errorf("command %d: got id %d, want %d", i, id, wantIDs[i])
		}
	}
	if s.Queue().Len() != 0 || len(s.pending) != 0 {
		t.Errorf("pending after push: got %d queued, %d proxies", s.Queue().Len(), len(s.pending))
	}
}

func TestDisabledBodyIgnoresVelocity(t *testing.T) {
	s := New(simulation.DefaultSettings())
	state := body(at(0, 0, 0))
	state.V = mgl64.Vec3{1, 0, 0}
	state.Disabled = true
	p, _ := s.RegisterObject(components.KindDynamic, state)
	s.processCommands()

	h := s.handles[p.ID()]
	if v, _ := s.Simulation().Velocity(h); v.Len() != 0 {
		t.Errorf("created disabled with velocity %v, want zero", v)
	}

	_ = s.SetVelocity(p.(*DynamicProxy), mgl64.Vec3{2, 0, 0}, mgl64.Vec3{0, 1, 0})
	_ = s.PushPhysicsState()
	s.processCommands()
	if v, w := s.Simulation().Velocity(h); v.Len() != 0 || w.Len() != 0 {
		t.Errorf("disabled velocity after write: got %v %v, want zero", v, w)
	}
}

func TestRemoveJoint(t *testing.T) {
	s := New(simulation.DefaultSettings())
	a, _ := s.RegisterObject(components.KindKinematic, body(at(0, 0, 0)))
	b, _ := s.RegisterObject(components.KindDynamic, body(at(0, 0, -10)))
	id, _ := s.AddJoint(a, b, at(0, 0, -5), constraints.DefaultJointSettings())
	s.AdvanceSolverBy(1.0 / 60)

	if err := s.RemoveJoint(id); err != nil {
		t.Fatalf("RemoveJoint: %v", err)
	}
	s.AdvanceSolverBy(1.0 / 60)
	if got := s.Simulation().Joints().Len(); got != 0 {
		t.Errorf("joints: got %d, want 0", got)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	s := New(simulation.DefaultSettings())
	ctx, cancel := context.WithCancel(context.Background())

	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx, 1.0/60, time.Millisecond) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run: got %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunStopsOnClose(t *testing.T) {
	s := New(simulation.DefaultSettings())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(context.Background(), 1.0/60, 0) }()

	s.Close()
	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Run: got %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Close")
	}
}
