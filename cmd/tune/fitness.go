package main

import (
	"log/slog"
	"math"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
	"gonum.org/v1/gonum/floats"

	"github.com/pthm-cable/pbd/config"
	"github.com/pthm-cable/pbd/scenario"
	"github.com/pthm-cable/pbd/simulation"
	"github.com/pthm-cable/pbd/telemetry"
)

// failedFitness is returned for runs that fail to build or blow up.
const failedFitness = 1e9

// Fitness weights.
const (
	weightJointMean = 1.0
	weightJointMax  = 0.25
	weightStretch   = 10.0
	weightCost      = 0.002
)

// RunResult summarises one scenario run.
type RunResult struct {
	Scenario     string
	JointErrMean float64
	JointErrMax  float64
	Stretch      float64
	Failed       bool
}

// FitnessEvaluator scores solver settings by running a fixed set of swept
// scenarios and measuring how well their joints hold.
type FitnessEvaluator struct {
	params    *ParamVector
	frames    int
	scenarios []config.ScenarioConfig
	base      *config.Config

	mu         sync.Mutex
	lastErr    float64
	lastResult []RunResult
}

// NewFitnessEvaluator creates an evaluator over base. Each scenario starts
// from the base scenario settings with its own name and an anchor sweep.
func NewFitnessEvaluator(params *ParamVector, frames int, names []string, base *config.Config) *FitnessEvaluator {
	scenarios := make([]config.ScenarioConfig, 0, len(names))
	for _, name := range names {
		sc := base.Scenario
		sc.Name = name
		if sc.AnchorMotion == 0 {
			sc.AnchorMotion = 2 * sc.LinkLength
		}
		if sc.AnchorPeriod <= 0 {
			sc.AnchorPeriod = 1.5
		}
		scenarios = append(scenarios, sc)
	}
	return &FitnessEvaluator{
		params:    params,
		frames:    frames,
		scenarios: scenarios,
		base:      base,
	}
}

// Evaluate runs every scenario with the given raw parameter values and
// returns the fitness (lower is better).
func (fe *FitnessEvaluator) Evaluate(raw []float64) float64 {
	cfg := *fe.base
	fe.params.ApplyToConfig(&cfg, raw)

	results := make([]RunResult, len(fe.scenarios))
	var wg sync.WaitGroup
	for i, sc := range fe.scenarios {
		wg.Add(1)
		go func(i int, sc config.ScenarioConfig) {
			defer wg.Done()
			results[i] = fe.runOne(&cfg, sc)
		}(i, sc)
	}
	wg.Wait()

	fitness := Score(results, fe.params.Cost(raw))

	fe.mu.Lock()
	fe.lastResult = results
	fe.lastErr = meanJointError(results)
	fe.mu.Unlock()
	return fitness
}

// LastJointError returns the mean joint error of the last evaluation.
func (fe *FitnessEvaluator) LastJointError() float64 {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastErr
}

// LastResults returns the per-scenario results of the last evaluation.
func (fe *FitnessEvaluator) LastResults() []RunResult {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastResult
}

func (fe *FitnessEvaluator) runOne(cfg *config.Config, sc config.ScenarioConfig) RunResult {
	res := RunResult{Scenario: sc.Name}

	settings, err := simulation.SettingsFromConfig(cfg)
	if err != nil {
		slog.Warn("invalid settings", "error", err)
		res.Failed = true
		return res
	}
	sim := simulation.New(settings)
	scene, err := scenario.Build(sim, sc)
	if err != nil {
		slog.Warn("scenario build failed", "scenario", sc.Name, "error", err)
		res.Failed = true
		return res
	}

	dt := cfg.Evolution.DT
	gravity := mgl64.Vec3(cfg.Derived.Gravity)
	rest := sc.LinkLength * float64(len(scene.Bodies))

	var means, maxes, stretches []float64
	for frame := 1; frame <= fe.frames; frame++ {
		if err := scene.Update(sim, float64(frame)*dt); err != nil {
			res.Failed = true
			return res
		}
		sim.Simulate(dt, cfg.Evolution.MaxDeltaTime, cfg.Evolution.MaxSubSteps, gravity)

		dist := telemetry.ComputeDistribution(sim.JointErrors())
		means = append(means, dist.Mean)
		maxes = append(maxes, dist.Max)
		if scene.HasAnchor && len(scene.Bodies) > 0 && rest > 0 {
			tip := sim.Transform(scene.Bodies[len(scene.Bodies)-1]).X
			root := sim.Transform(scene.Anchor).X
			stretches = append(stretches, math.Max(0, tip.Sub(root).Len()/rest-1))
		}
	}

	if len(means) > 0 {
		res.JointErrMean = floats.Sum(means) / float64(len(means))
		res.JointErrMax = floats.Max(maxes)
	}
	if len(stretches) > 0 {
		res.Stretch = floats.Sum(stretches) / float64(len(stretches))
	}
	return res
}

// Score combines run results and solver cost into one fitness value. Any
// failed or non-finite run yields failedFitness.
func Score(results []RunResult, cost float64) float64 {
	if len(results) == 0 {
		return failedFitness
	}
	var total float64
	for _, r := range results {
		if r.Failed {
			return failedFitness
		}
		total += weightJointMean*r.JointErrMean + weightJointMax*r.JointErrMax + weightStretch*r.Stretch
	}
	fitness := total/float64(len(results)) + weightCost*cost
	if math.IsNaN(fitness) || math.IsInf(fitness, 0) {
		return failedFitness
	}
	return fitness
}

func meanJointError(results []RunResult) float64 {
	if len(results) == 0 {
		return 0
	}
	var sum float64
	for _, r := range results {
		sum += r.JointErrMean
	}
	return sum / float64(len(results))
}
