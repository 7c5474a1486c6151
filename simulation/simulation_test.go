package simulation

import (
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/pthm-cable/pbd/components"
	"github.com/pthm-cable/pbd/config"
	"github.com/pthm-cable/pbd/constraints"
	"github.com/pthm-cable/pbd/evolution"
	"github.com/pthm-cable/pbd/geometry"
)

func at(x, y, z float64) components.Transform {
	return components.Transform{X: mgl64.Vec3{x, y, z}, R: mgl64.QuatIdent()}
}

var gravity = mgl64.Vec3{0, 0, -980}

func mustActor(t *testing.T, s *Simulation, kind components.Kind, xf components.Transform) Actor {
	t.Helper()
	a, err := s.CreateActor(kind, geometry.NewSphere(1), 1, xf)
	if err != nil {
		t.Fatalf("CreateActor: %v", err)
	}
	return a
}

func TestHangingBodyHeldByJoint(t *testing.T) {
	s := New(DefaultSettings())
	p0 := mustActor(t, s, components.KindKinematic, at(0, 0, 0))
	p1 := mustActor(t, s, components.KindDynamic, at(0, 0, -10))

	if _, err := s.CreateJoint(p0, p1, at(0, 0, -10), constraints.LockedJointSettings()); err != nil {
		t.Fatalf("CreateJoint: %v", err)
	}

	const dt = 1.0 / 60
	for i := 0; i < 100; i++ {
		s.Simulate(dt, s.Settings().MaxDeltaTime, s.Settings().MaxSubSteps, gravity)
	}

	got := s.Transform(p1).X
	want := mgl64.Vec3{0, 0, -10}
	if d := got.Sub(want).Len(); d > 0.1 {
		t.Errorf("P1 drifted %f from %v, at %v", d, want, got)
	}
	if x := s.Transform(p0).X; x.Len() != 0 {
		t.Errorf("kinematic anchor moved to %v", x)
	}
}

func TestFreeBodyFalls(t *testing.T) {
	s := New(DefaultSettings())
	p := mustActor(t, s, components.KindDynamic, at(0, 0, 0))

	s.Simulate(0.1, 0.03, 10, gravity)

	if z := s.Transform(p).X.Z(); z >= -1 {
		t.Errorf("free body z: got %f, want clearly below 0", z)
	}
}

func chain(t *testing.T, s *Simulation, links int) (Actor, []Actor) {
	t.Helper()
	anchor := mustActor(t, s, components.KindKinematic, at(0, 0, 0))
	parent := anchor
	var bodies []Actor
	for i := 1; i <= links; i++ {
		child := mustActor(t, s, components.KindDynamic, at(0, 0, -10*float64(i)))
		world := at(0, 0, -10*float64(i)+5)
		if _, err := s.CreateJoint(parent, child, world, constraints.LockedJointSettings()); err != nil {
			t.Fatalf("CreateJoint %d: %v", i, err)
		}
		bodies = append(bodies, child)
		parent = child
	}
	return anchor, bodies
}

func TestConditionConstraintsLevelsChain(t *testing.T) {
	s := New(DefaultSettings())
	anchor, bodies := chain(t, s, 2)

	s.ConditionConstraints()

	store := s.Store()
	tests := []struct {
		name string
		a    Actor
		want int32
	}{
		{"anchor", anchor, 0},
		{"A", bodies[0], 1},
		{"B", bodies[1], 2},
	}
	for _, tt := range tests {
		if got := store.Get(tt.a).Level; got != tt.want {
			t.Errorf("%s level: got %d, want %d", tt.name, got, tt.want)
		}
	}
	for i, want := range []int{0, 1} {
		if got := s.Joints().ConstraintLevel(i); got != want {
			t.Errorf("joint %d level: got %d, want %d", i, got, want)
		}
	}
}

func TestSetObjectStateRelevels(t *testing.T) {
	s := New(DefaultSettings())
	_, bodies := chain(t, s, 2)
	s.Simulate(1.0/60, s.Settings().MaxDeltaTime, s.Settings().MaxSubSteps, mgl64.Vec3{})

	tests := []struct {
		name      string
		state     components.ObjectState
		wantLevel int32
		wantJoint int
	}{
		{"kinematic leaf anchors its joint", components.StateKinematic, 0, 0},
		{"dynamic again", components.StateDynamic, 2, 1},
	}
	for _, tt := range tests {
		if err := s.SetObjectState(bodies[1], tt.state); err != nil {
			t.Fatalf("%s: SetObjectState: %v", tt.name, err)
		}
		if !s.dirty {
			t.Errorf("%s: levels not marked for rebuild", tt.name)
		}
		s.Simulate(1.0/60, s.Settings().MaxDeltaTime, s.Settings().MaxSubSteps, mgl64.Vec3{})

		if got := s.Store().Get(bodies[1]).Level; got != tt.wantLevel {
			t.Errorf("%s: body level: got %d, want %d", tt.name, got, tt.wantLevel)
		}
		if got := s.Joints().ConstraintLevel(1); got != tt.wantJoint {
			t.Errorf("%s: joint level: got %d, want %d", tt.name, got, tt.wantJoint)
		}
	}

	// Sleeping keeps the anchors, so levels stay valid.
	if err := s.SetObjectState(bodies[0], components.StateSleeping); err != nil {
		t.Fatalf("SetObjectState: %v", err)
	}
	if s.dirty {
		t.Error("sleeping marked levels for rebuild")
	}
}

func TestSetVelocityIgnoredWhileDisabled(t *testing.T) {
	s := New(DefaultSettings())
	a := mustActor(t, s, components.KindDynamic, at(0, 0, 0))
	s.SetVelocity(a, mgl64.Vec3{1, 2, 3}, mgl64.Vec3{0, 0, 1})

	if err := s.Store().DisableParticle(a); err != nil {
		t.Fatalf("DisableParticle: %v", err)
	}
	s.SetVelocity(a, mgl64.Vec3{4, 5, 6}, mgl64.Vec3{1, 0, 0})
	if v, w := s.Velocity(a); v.Len() != 0 || w.Len() != 0 {
		t.Errorf("disabled velocity: got %v %v, want zero", v, w)
	}

	if err := s.Store().EnableParticle(a); err != nil {
		t.Fatalf("EnableParticle: %v", err)
	}
	s.SetVelocity(a, mgl64.Vec3{4, 5, 6}, mgl64.Vec3{})
	if v, _ := s.Velocity(a); v != (mgl64.Vec3{4, 5, 6}) {
		t.Errorf("enabled velocity: got %v, want [4 5 6]", v)
	}
}

func TestChainHoldsUnderGravity(t *testing.T) {
	s := New(DefaultSettings())
	_, bodies := chain(t, s, 4)

	for i := 0; i < 120; i++ {
		s.Step(1.0 / 60)
	}

	for i, e := range s.JointErrors() {
		if math.IsNaN(e) || e > 1 {
			t.Errorf("joint %d error: got %f, want < 1", i, e)
		}
	}
	last := s.Transform(bodies[len(bodies)-1]).X
	if d := last.Sub(mgl64.Vec3{0, 0, -40}).Len(); d > 2 {
		t.Errorf("chain end drifted %f to %v", d, last)
	}
}

func TestKinematicTargetDrivesChild(t *testing.T) {
	s := New(DefaultSettings())
	p0 := mustActor(t, s, components.KindKinematic, at(0, 0, 0))
	p1 := mustActor(t, s, components.KindDynamic, at(0, 0, -10))
	if _, err := s.CreateJoint(p0, p1, at(0, 0, -10), constraints.LockedJointSettings()); err != nil {
		t.Fatalf("CreateJoint: %v", err)
	}

	if err := s.SetKinematicTarget(p0, at(5, 0, 0)); err != nil {
		t.Fatalf("SetKinematicTarget: %v", err)
	}
	s.Simulate(1.0/60, 0.03, 10, mgl64.Vec3{})

	if x := s.Transform(p0).X.X(); math.Abs(x-5) > 1e-9 {
		t.Errorf("anchor x: got %f, want 5", x)
	}
	if x := s.Transform(p1).X.X(); math.Abs(x-5) > 0.1 {
		t.Errorf("child x: got %f, want 5", x)
	}

	if err := s.SetKinematicTarget(p1, at(0, 0, 0)); !errors.Is(err, ErrNotKinematic) {
		t.Errorf("dynamic target: got %v, want ErrNotKinematic", err)
	}
}

func TestIgnoreTables(t *testing.T) {
	s := New(DefaultSettings())
	a := mustActor(t, s, components.KindDynamic, at(0, 0, 0))
	b := mustActor(t, s, components.KindDynamic, at(2.5, 0, 0))
	c := mustActor(t, s, components.KindDynamic, at(5, 0, 0))

	s.SetIgnoreCollisionPairTable([]IgnorePair{{A: b, B: a}})
	if _, err := s.AddSpringPair(a, b); !errors.Is(err, ErrIgnoredPair) {
		t.Errorf("ignored pair: got %v, want ErrIgnoredPair", err)
	}
	if !s.IsIgnored(b, a) {
		t.Error("pair table is not symmetric")
	}
	if _, err := s.AddSpringPair(b, c); err != nil {
		t.Fatalf("AddSpringPair: %v", err)
	}

	s.SetIgnoreCollisionActors([]Actor{c})
	if got := s.Store().Get(c).Group; got != -1 {
		t.Errorf("ignored actor group: got %d, want -1", got)
	}
	if s.Springs().Len() != 0 {
		t.Errorf("spring pairs after ignoring c: got %d, want 0", s.Springs().Len())
	}

	s.SetIgnoreCollisionActors(nil)
	if got := s.Store().Get(c).Group; got != 0 {
		t.Errorf("restored group: got %d, want 0", got)
	}
	if s.IsIgnored(b, c) {
		t.Error("b-c still ignored after clearing actors")
	}
}

func TestSpringPairCreatesSpring(t *testing.T) {
	settings := DefaultSettings()
	s := New(settings)
	a := mustActor(t, s, components.KindDynamic, at(0, 0, 0))
	b := mustActor(t, s, components.KindDynamic, at(2.5, 0, 0))
	if _, err := s.AddSpringPair(a, b); err != nil {
		t.Fatalf("AddSpringPair: %v", err)
	}

	s.Simulate(1.0/60, 0.03, 10, mgl64.Vec3{})

	if got := s.Springs().SpringCount(); got != 1 {
		t.Fatalf("springs: got %d, want 1", got)
	}
	s.Evolution().FlipEvents()
	created := 0
	for _, ev := range s.Evolution().Events() {
		if ev.Kind == evolution.EventSpringCreated {
			created++
		}
	}
	if created != 1 {
		t.Errorf("spring created events: got %d, want 1", created)
	}
}

func TestAddSpringPairsWithin(t *testing.T) {
	s := New(DefaultSettings())
	var actors []Actor
	for i := 0; i < 4; i++ {
		actors = append(actors, mustActor(t, s, components.KindDynamic, at(0, 0, 3*float64(i))))
	}
	s.SetIgnoreCollisionPairTable([]IgnorePair{{A: actors[0], B: actors[1]}})

	added, err := s.AddSpringPairsWithin(actors, 3.5)
	if err != nil {
		t.Fatalf("AddSpringPairsWithin: %v", err)
	}
	// Neighbours 1-2 and 2-3; 0-1 is ignored.
	if added != 2 {
		t.Errorf("pairs added: got %d, want 2", added)
	}
	if got := s.Springs().Len(); got != 2 {
		t.Errorf("spring pairs: got %d, want 2", got)
	}
}

func TestDestroyActor(t *testing.T) {
	s := New(DefaultSettings())
	anchor, bodies := chain(t, s, 2)
	s.SetIgnoreCollisionPairTable([]IgnorePair{{A: anchor, B: bodies[0]}})

	if err := s.DestroyActor(bodies[0]); err != nil {
		t.Fatalf("DestroyActor: %v", err)
	}
	if got := s.Joints().Len(); got != 0 {
		t.Errorf("joints left: got %d, want 0", got)
	}
	if s.IsIgnored(anchor, bodies[0]) {
		t.Error("ignore entry survived destruction")
	}
	if err := s.DestroyActor(bodies[0]); err == nil {
		t.Error("second destroy should fail")
	}

	s.Step(1.0 / 60)
	if got := s.Store().Get(bodies[1]).Level; got != components.LevelNone {
		t.Errorf("orphan level: got %d, want %d", got, components.LevelNone)
	}
}

func TestSettingsFromConfig(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	settings, err := SettingsFromConfig(cfg)
	if err != nil {
		t.Fatalf("SettingsFromConfig: %v", err)
	}
	if settings.Joints.ProjectionPhase != constraints.ProjectionApplyPushOut {
		t.Errorf("projection phase: got %v, want apply_push_out", settings.Joints.ProjectionPhase)
	}
	if settings.MaxDeltaTime != 0.03 || settings.MaxSubSteps != 10 {
		t.Errorf("sub-stepping: got %f/%d, want 0.03/10", settings.MaxDeltaTime, settings.MaxSubSteps)
	}
	if settings.Evolution.Gravity != (mgl64.Vec3{0, 0, -980}) {
		t.Errorf("gravity: got %v", settings.Evolution.Gravity)
	}

	cfg.Joints.ProjectionPhase = "later"
	if _, err := SettingsFromConfig(cfg); err == nil {
		t.Error("expected error for unknown projection phase")
	}
}
