package main

import (
	"math"
	"testing"

	"github.com/pthm-cable/pbd/config"
	"github.com/pthm-cable/pbd/simulation"
	"github.com/pthm-cable/pbd/solver"
)

func rigConfig(t *testing.T) config.ScenarioConfig {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	sc := cfg.Scenario
	sc.Links = 3
	return sc
}

// frame runs one game frame and one physics frame on the test goroutine.
func frame(t *testing.T, s *solver.Solver, r *rig, time float64) {
	t.Helper()
	if err := r.sweep(s, time); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if err := s.PushPhysicsState(); err != nil {
		t.Fatalf("PushPhysicsState: %v", err)
	}
	s.AdvanceSolverBy(1.0 / 60)
	s.PullFromPhysicsState()
}

func TestRigHoldsLinks(t *testing.T) {
	cfg := rigConfig(t)
	cfg.AnchorMotion = 0
	s := solver.New(simulation.DefaultSettings())
	r, err := buildRig(s, cfg)
	if err != nil {
		t.Fatalf("buildRig: %v", err)
	}
	if got := s.Queue().Len(); got != 2*cfg.Links+1 {
		t.Errorf("queued commands: got %d, want %d", got, 2*cfg.Links+1)
	}

	for i := 0; i < 60; i++ {
		frame(t, s, r, float64(i+1)/60)
	}
	if got := r.maxStretch(); got > 1 {
		t.Errorf("max stretch: got %f, want < 1", got)
	}
	if got := r.sample(s.Pulled()).Frame; got != 60 {
		t.Errorf("sample frame: got %d, want 60", got)
	}
}

func TestRigSweepsAnchor(t *testing.T) {
	cfg := rigConfig(t)
	cfg.AnchorMotion = 10
	cfg.AnchorPeriod = 4
	s := solver.New(simulation.DefaultSettings())
	r, err := buildRig(s, cfg)
	if err != nil {
		t.Fatalf("buildRig: %v", err)
	}

	// A quarter period puts the anchor at the peak of its sweep.
	frame(t, s, r, 1)
	if x := r.sample(s.Pulled()).AnchorX; math.Abs(x-10) > 1e-9 {
		t.Errorf("anchor x: got %f, want 10", x)
	}
}

func TestBuildRigRejectsEmptyChain(t *testing.T) {
	cfg := rigConfig(t)
	cfg.Links = 0
	if _, err := buildRig(solver.New(simulation.DefaultSettings()), cfg); err == nil {
		t.Error("buildRig with no links: got nil error")
	}
}
