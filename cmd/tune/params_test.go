package main

import (
	"math"
	"testing"
	"time"

	"github.com/pthm-cable/pbd/config"
)

func TestNormalizeRoundTrip(t *testing.T) {
	pv := NewParamVector()
	raw := pv.DefaultVector()

	back := pv.Denormalize(pv.Normalize(raw))
	for i, spec := range pv.Specs {
		if math.Abs(back[i]-raw[i]) > 1e-12 {
			t.Errorf("%s: got %f, want %f", spec.Name, back[i], raw[i])
		}
	}
}

func TestClampBoundsAndRounds(t *testing.T) {
	pv := NewParamVector()
	v := make([]float64, pv.Dim())
	for i, spec := range pv.Specs {
		v[i] = spec.Max + 10
	}
	v[0] = 2.6 // iterations

	c := pv.Clamp(v)
	if c[0] != 3 {
		t.Errorf("iterations: got %f, want 3", c[0])
	}
	for i, spec := range pv.Specs[1:] {
		if c[i+1] != spec.Max {
			t.Errorf("%s: got %f, want %f", spec.Name, c[i+1], spec.Max)
		}
	}
}

func TestApplyExtractConfig(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	pv := NewParamVector()
	want := []float64{4, 3, 2, 1, 0.75, 8, 0.5, 0.25}

	pv.ApplyToConfig(cfg, want)
	got := pv.ExtractFromConfig(cfg)
	for i, spec := range pv.Specs {
		if got[i] != want[i] {
			t.Errorf("%s: got %f, want %f", spec.Name, got[i], want[i])
		}
	}
}

func TestScore(t *testing.T) {
	ok := RunResult{JointErrMean: 0.1, JointErrMax: 0.4}

	tests := []struct {
		name    string
		results []RunResult
		cost    float64
		want    float64
	}{
		{"empty", nil, 0, failedFitness},
		{"failed run", []RunResult{ok, {Failed: true}}, 0, failedFitness},
		{"nan", []RunResult{{JointErrMean: math.NaN()}}, 0, failedFitness},
		{"single", []RunResult{ok}, 0, 0.1 + 0.25*0.4},
		{"cost", []RunResult{ok}, 50, 0.1 + 0.25*0.4 + 0.002*50},
		{"stretch", []RunResult{{Stretch: 0.01}}, 0, 0.1},
	}
	for _, tt := range tests {
		got := Score(tt.results, tt.cost)
		if math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("%s: got %f, want %f", tt.name, got, tt.want)
		}
	}
}

func TestEvaluateHangingChain(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	cfg.Scenario.Links = 3
	pv := NewParamVector()
	fe := NewFitnessEvaluator(pv, 30, []string{"chain", "pendulum"}, cfg)

	fitness := fe.Evaluate(pv.ExtractFromConfig(cfg))
	if fitness >= failedFitness {
		t.Fatalf("evaluation failed: %v", fe.LastResults())
	}
	if n := len(fe.LastResults()); n != 2 {
		t.Errorf("results: got %d, want 2", n)
	}
}

func TestEvaluateUnknownScenarioFails(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	pv := NewParamVector()
	fe := NewFitnessEvaluator(pv, 5, []string{"nope"}, cfg)

	if got := fe.Evaluate(pv.DefaultVector()); got != failedFitness {
		t.Errorf("fitness: got %f, want %f", got, failedFitness)
	}
}

func TestProgressTracksBest(t *testing.T) {
	p := newProgress(3, nil)

	tests := []struct {
		fitness float64
		want    float64
	}{
		{0.5, 0.5},
		{0.7, 0.5},
		{0.2, 0.2},
	}
	for i, tt := range tests {
		v := []float64{float64(i), 0, 1, 0, 0.5, 5, 0, 0}
		if err := p.record(v, tt.fitness, 0); err != nil {
			t.Fatalf("record: %v", err)
		}
		if p.bestFitness != tt.want {
			t.Errorf("eval %d: best got %f, want %f", i+1, p.bestFitness, tt.want)
		}
	}
	if p.bestParams[0] != 2 {
		t.Errorf("best params: got iterations %f, want 2", p.bestParams[0])
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0m00s"},
		{90 * time.Second, "1m30s"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1h02m03s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v): got %q, want %q", tt.d, got, tt.want)
		}
	}
}
