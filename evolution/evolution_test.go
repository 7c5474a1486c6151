package evolution

import (
	"fmt"
	"math"
	"slices"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/pthm-cable/pbd/components"
	"github.com/pthm-cable/pbd/constraints"
	"github.com/pthm-cable/pbd/debugdraw"
	"github.com/pthm-cable/pbd/geometry"
	"github.com/pthm-cable/pbd/particles"
	"github.com/pthm-cable/pbd/telemetry"
)

func at(x, y, z float64) components.Transform {
	return components.Transform{X: mgl64.Vec3{x, y, z}, R: mgl64.QuatIdent()}
}

func newBody(s *particles.Store, kind components.Kind, xf components.Transform) particles.Handle {
	h, err := s.CreateParticles(kind, 1, particles.Params{})
	if err != nil {
		panic(err)
	}
	s.SetTransform(h[0], xf)
	sphere := geometry.NewSphere(1)
	s.SetGeometry(h[0], sphere)
	s.SetMass(h[0], 1, geometry.Inertia(sphere, 1))
	return h[0]
}

// recordingRule logs every call it receives.
type recordingRule struct {
	name     string
	priority int
	pushOuts int
	log      *[]string
}

func (r *recordingRule) Priority() int { return r.priority }

func (r *recordingRule) UpdatePositionBasedState(dt float64) {
	*r.log = append(*r.log, r.name+".update")
}

func (r *recordingRule) Apply(dt float64, it, numIts int) {
	*r.log = append(*r.log, fmt.Sprintf("%s.apply%d", r.name, it))
}

func (r *recordingRule) ApplyPushOut(dt float64, it, numIts int) bool {
	*r.log = append(*r.log, fmt.Sprintf("%s.push%d", r.name, it))
	return it+1 < r.pushOuts
}

func (r *recordingRule) RemoveConstraints(set map[particles.Handle]struct{}) int { return 0 }

func TestFreeFall(t *testing.T) {
	s := particles.NewStore()
	h := newBody(s, components.KindDynamic, at(0, 0, 0))

	settings := DefaultSettings()
	settings.Gravity = mgl64.Vec3{0, 0, -10}
	e := New(s, settings)

	const dt = 0.01
	const n = 50
	for i := 0; i < n; i++ {
		e.AdvanceOneTimeStep(dt)
	}

	p := s.Get(h)
	wantV := -10 * dt * n
	wantZ := -10 * dt * dt * n * (n + 1) / 2
	if math.Abs(p.V.Z()-wantV) > 1e-9 {
		t.Errorf("velocity: got %f, want %f", p.V.Z(), wantV)
	}
	if math.Abs(p.X.Z()-wantZ) > 1e-9 {
		t.Errorf("position: got %f, want %f", p.X.Z(), wantZ)
	}
	if !p.P.ApproxEqualThreshold(p.X, 1e-12) {
		t.Errorf("predicted %v differs from committed %v after end of frame", p.P, p.X)
	}
	if got := e.Time(); math.Abs(got-dt*n) > 1e-9 {
		t.Errorf("time: got %f, want %f", got, dt*n)
	}
}

func TestNoForceStationary(t *testing.T) {
	s := particles.NewStore()
	a := newBody(s, components.KindDynamic, at(1, 2, 3))
	b := newBody(s, components.KindDynamic, at(-4, 0, 2))
	s.SetMass(b, 3, mgl64.Vec3{1, 2, 3})

	settings := DefaultSettings()
	settings.Gravity = mgl64.Vec3{}
	e := New(s, settings)

	for i := 0; i < 100; i++ {
		e.AdvanceOneTimeStep(1.0 / 60)
	}

	for _, tt := range []struct {
		h    particles.Handle
		want mgl64.Vec3
		mass float64
	}{
		{a, mgl64.Vec3{1, 2, 3}, 1},
		{b, mgl64.Vec3{-4, 0, 2}, 3},
	} {
		p := s.Get(tt.h)
		if !p.X.ApproxEqualThreshold(tt.want, 1e-12) {
			t.Errorf("position: got %v, want %v", p.X, tt.want)
		}
		if p.M != tt.mass {
			t.Errorf("mass: got %f, want %f", p.M, tt.mass)
		}
	}
	if ke := e.KineticEnergy(); ke != 0 {
		t.Errorf("kinetic energy: got %f, want 0", ke)
	}
}

func TestSpinningBodyKeepsAngularVelocity(t *testing.T) {
	s := particles.NewStore()
	h := newBody(s, components.KindDynamic, at(0, 0, 0))
	s.Get(h).W = mgl64.Vec3{0, 0, 2}

	settings := DefaultSettings()
	settings.Gravity = mgl64.Vec3{}
	e := New(s, settings)
	for i := 0; i < 10; i++ {
		e.AdvanceOneTimeStep(0.01)
	}

	p := s.Get(h)
	if math.Abs(p.W.Z()-2) > 2e-3 {
		t.Errorf("angular velocity: got %f, want 2", p.W.Z())
	}
	_, angle := components.AxisAngle(p.R)
	if math.Abs(angle-0.2) > 2e-3 {
		t.Errorf("rotation angle: got %f, want 0.2", angle)
	}
}

func TestAdvanceSubSteps(t *testing.T) {
	tests := []struct {
		name        string
		dt          float64
		maxDt       float64
		maxSubSteps int
		wantSteps   int
		wantTime    float64
	}{
		{"single step", 0.01, 0.02, 10, 1, 0.01},
		{"exact split", 0.04, 0.01, 10, 4, 0.04},
		{"remainder step", 0.025, 0.01, 10, 3, 0.025},
		{"capped", 0.1, 0.01, 3, 3, 0.03},
		{"unbounded", 0.1, 0, 0, 1, 0.1},
		{"non-positive", 0, 0.01, 10, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(particles.NewStore(), DefaultSettings())
			steps := e.Advance(tt.dt, tt.maxDt, tt.maxSubSteps)
			if steps != tt.wantSteps {
				t.Errorf("steps: got %d, want %d", steps, tt.wantSteps)
			}
			if math.Abs(e.Time()-tt.wantTime) > 1e-9 {
				t.Errorf("time: got %f, want %f", e.Time(), tt.wantTime)
			}
			if e.Steps() != int64(tt.wantSteps) {
				t.Errorf("step count: got %d, want %d", e.Steps(), tt.wantSteps)
			}
		})
	}
}

func TestKinematicInterpolation(t *testing.T) {
	s := particles.NewStore()
	h := newBody(s, components.KindKinematic, at(0, 0, 0))
	s.SetKinematicTarget(h, at(10, 0, 0))

	e := New(s, DefaultSettings())
	var xs []float64
	e.SetKinematicUpdate(func(store *particles.Store, h particles.Handle, dt, localTime float64) {
		e.InterpolateKinematics(store, h, dt, localTime)
		xs = append(xs, store.Get(h).X.X())
	})

	if steps := e.Advance(1, 0.25, 0); steps != 4 {
		t.Fatalf("steps: got %d, want 4", steps)
	}

	want := []float64{2.5, 5, 7.5, 10}
	if len(xs) != len(want) {
		t.Fatalf("updates: got %d, want %d", len(xs), len(want))
	}
	for i := range want {
		if math.Abs(xs[i]-want[i]) > 1e-9 {
			t.Errorf("x at sub-step %d: got %f, want %f", i, xs[i], want[i])
		}
	}

	p := s.Get(h)
	if !p.P.ApproxEqualThreshold(p.X, 1e-12) {
		t.Errorf("kinematic predicted %v differs from %v", p.P, p.X)
	}
	if math.Abs(p.V.X()-10) > 1e-9 {
		t.Errorf("kinematic velocity: got %f, want 10", p.V.X())
	}

	// Without a new target the body holds its position.
	e.Advance(1, 0.25, 0)
	if got := s.Get(h).X.X(); math.Abs(got-10) > 1e-9 {
		t.Errorf("held position: got %f, want 10", got)
	}
}

func TestRuleOrderAndPushOutEarlyOut(t *testing.T) {
	var log []string
	e := New(particles.NewStore(), Settings{Iterations: 2, PushOutIterations: 5})
	e.AddRule(&recordingRule{name: "b", priority: 1, pushOuts: 2, log: &log})
	e.AddRule(&recordingRule{name: "a", priority: 0, pushOuts: 1, log: &log})

	e.AdvanceOneTimeStep(0.01)

	want := []string{
		"a.update", "b.update",
		"a.apply0", "b.apply0", "a.apply1", "b.apply1",
		"a.push0", "b.push0", "a.push1", "b.push1",
	}
	if !slices.Equal(log, want) {
		t.Errorf("calls:\n got %v\nwant %v", log, want)
	}
	if got := e.LastStep().PushOutRun; got != 2 {
		t.Errorf("push-out iterations run: got %d, want 2", got)
	}
}

func jointedPair(t *testing.T) (*particles.Store, *Evolution, [2]particles.Handle) {
	t.Helper()
	s := particles.NewStore()
	a := newBody(s, components.KindDynamic, at(0, 0, 0))
	b := newBody(s, components.KindDynamic, at(2, 0, 0))

	joints := constraints.NewJointConstraints(s, constraints.DefaultJointSolverSettings())
	if _, err := joints.AddConstraintWorldFrame([2]particles.Handle{a, b}, at(1, 0, 0), constraints.DefaultJointSettings()); err != nil {
		t.Fatalf("AddConstraintWorldFrame: %v", err)
	}

	settings := DefaultSettings()
	settings.Gravity = mgl64.Vec3{}
	settings.SleepCounterThreshold = 3
	e := New(s, settings)
	e.AddRule(constraints.NewJointRule(joints, 0))
	return s, e, [2]particles.Handle{a, b}
}

func TestIslandSleepAndWake(t *testing.T) {
	s, e, pair := jointedPair(t)

	for i := 0; i < 2; i++ {
		e.AdvanceOneTimeStep(0.01)
		for _, h := range pair {
			if got := s.Get(h).State; got != components.StateDynamic {
				t.Fatalf("step %d: state got %v, want dynamic", i, got)
			}
		}
	}
	e.AdvanceOneTimeStep(0.01)
	for _, h := range pair {
		if got := s.Get(h).State; got != components.StateSleeping {
			t.Errorf("state after idling: got %v, want sleeping", got)
		}
		if s.IsActive(h) {
			t.Error("sleeping particle still active")
		}
	}
	e.FlipEvents()
	sleeps := 0
	for _, ev := range e.Events() {
		if ev.Kind == EventSleep {
			sleeps++
		}
	}
	if sleeps != 2 {
		t.Errorf("sleep events: got %d, want 2", sleeps)
	}

	if err := e.WakeParticle(pair[0]); err != nil {
		t.Fatalf("WakeParticle: %v", err)
	}
	s.Get(pair[0]).V = mgl64.Vec3{0, 5, 0}
	e.AdvanceOneTimeStep(0.01)
	if got := s.Get(pair[1]).State; got != components.StateDynamic {
		t.Errorf("island partner state: got %v, want dynamic", got)
	}
}

func TestSleepDisabled(t *testing.T) {
	s, e, pair := jointedPair(t)
	settings := e.Settings()
	settings.SleepCounterThreshold = 0
	e.SetSettings(settings)

	for i := 0; i < 20; i++ {
		e.AdvanceOneTimeStep(0.01)
	}
	if got := s.Get(pair[0]).State; got != components.StateDynamic {
		t.Errorf("state: got %v, want dynamic", got)
	}
}

func TestDestroyParticlesRemovesConstraints(t *testing.T) {
	s, e, pair := jointedPair(t)
	joints := e.Rules()[0].(*constraints.JointRule).Joints

	if err := e.DestroyParticles([]particles.Handle{pair[1]}); err != nil {
		t.Fatalf("DestroyParticles: %v", err)
	}
	if joints.Len() != 0 {
		t.Errorf("joints left: got %d, want 0", joints.Len())
	}
	if s.Valid(pair[1]) {
		t.Error("destroyed particle still valid")
	}
	e.AdvanceOneTimeStep(0.01)
}

func TestEventsDoubleBuffered(t *testing.T) {
	e := New(particles.NewStore(), DefaultSettings())
	e.RecordEvent(StepEvent{Kind: EventWake})
	if len(e.Events()) != 0 {
		t.Fatal("event readable before flip")
	}

	e.FlipEvents()
	if got := len(e.Events()); got != 1 {
		t.Fatalf("events after flip: got %d, want 1", got)
	}
	e.RecordEvent(StepEvent{Kind: EventSleep})
	if got := e.Events()[0].Kind; got != EventWake {
		t.Errorf("read buffer changed by write: got %v", got)
	}

	e.FlipEvents()
	if got := len(e.Events()); got != 1 || e.Events()[0].Kind != EventSleep {
		t.Errorf("second flip: got %v", e.Events())
	}
}

func TestDebugDrawAndPerf(t *testing.T) {
	_, e, _ := jointedPair(t)
	rec := &debugdraw.Recorder{}
	perf := telemetry.NewPerfCollector(8)
	e.SetDebugDrawSink(rec)
	e.SetPerfCollector(perf)

	e.AdvanceOneTimeStep(0.01)

	if rec.Frames != 1 {
		t.Errorf("frames: got %d, want 1", rec.Frames)
	}
	if len(rec.Particles) != 2 {
		t.Errorf("particles drawn: got %d, want 2", len(rec.Particles))
	}
	if len(rec.Joints) != 1 {
		t.Errorf("joints drawn: got %d, want 1", len(rec.Joints))
	}
	if _, ok := perf.Stats().PhaseAvg[telemetry.PhaseApply]; !ok {
		t.Error("apply phase not timed")
	}
}
