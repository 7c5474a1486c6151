package main

import (
	"fmt"
	"time"

	"github.com/pthm-cable/pbd/telemetry"
)

// evalRecord is one row of tune_log.csv. Fields follow NewParamVector.
type evalRecord struct {
	Eval     int     `csv:"eval"`
	Fitness  float64 `csv:"fitness"`
	JointErr float64 `csv:"joint_err"`

	Iterations                 float64 `csv:"iterations"`
	PushOutIterations          float64 `csv:"push_out_iterations"`
	ApplyPairIterations        float64 `csv:"apply_pair_iterations"`
	ApplyPushOutPairIterations float64 `csv:"apply_push_out_pair_iterations"`
	MinParentMassRatio         float64 `csv:"min_parent_mass_ratio"`
	MaxInertiaRatio            float64 `csv:"max_inertia_ratio"`
	LinearProjection           float64 `csv:"linear_projection"`
	AngularProjection          float64 `csv:"angular_projection"`
}

func newEvalRecord(eval int, fitness, jointErr float64, v []float64) evalRecord {
	return evalRecord{
		Eval:                       eval,
		Fitness:                    fitness,
		JointErr:                   jointErr,
		Iterations:                 v[0],
		PushOutIterations:          v[1],
		ApplyPairIterations:        v[2],
		ApplyPushOutPairIterations: v[3],
		MinParentMassRatio:         v[4],
		MaxInertiaRatio:            v[5],
		LinearProjection:           v[6],
		AngularProjection:          v[7],
	}
}

// progress tracks evaluations, the best candidate so far and timing.
type progress struct {
	maxEvals int
	log      *telemetry.CSVLog[evalRecord]
	start    time.Time

	evals       int
	bestFitness float64
	bestParams  []float64
}

func newProgress(maxEvals int, log *telemetry.CSVLog[evalRecord]) *progress {
	return &progress{
		maxEvals:    maxEvals,
		log:         log,
		start:       time.Now(),
		bestFitness: failedFitness,
	}
}

// record logs one evaluation of the clamped parameter values.
func (p *progress) record(clamped []float64, fitness, jointErr float64) error {
	p.evals++
	if fitness < p.bestFitness || p.bestParams == nil {
		p.bestFitness = fitness
		p.bestParams = append(p.bestParams[:0], clamped...)
	}

	elapsed := time.Since(p.start)
	remaining := time.Duration(p.maxEvals-p.evals) * (elapsed / time.Duration(p.evals))
	fmt.Printf("Eval %d/%d: fitness=%.5f joint_err=%.5f (best=%.5f) | elapsed: %s, ETA: %s\n",
		p.evals, p.maxEvals, fitness, jointErr, p.bestFitness,
		formatDuration(elapsed), formatDuration(remaining))

	if p.log == nil {
		return nil
	}
	return p.log.Write(newEvalRecord(p.evals, fitness, jointErr, clamped))
}

// formatDuration formats a duration as 1h02m03s, or 2m03s below an hour.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}
