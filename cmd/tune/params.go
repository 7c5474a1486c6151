package main

import (
	"math"

	"github.com/pthm-cable/pbd/config"
)

// ParamSpec defines a single tunable parameter.
type ParamSpec struct {
	Name    string  // Human-readable name
	Path    string  // Config path for logging
	Min     float64 // Lower bound
	Max     float64 // Upper bound
	Default float64 // Default value
	Integer bool    // Rounded when applied
}

// ParamVector holds the set of all tunable parameters.
type ParamVector struct {
	Specs []ParamSpec
}

// NewParamVector creates the standard set of solver parameters.
func NewParamVector() *ParamVector {
	return &ParamVector{
		Specs: []ParamSpec{
			// Evolution
			{Name: "iterations", Path: "evolution.iterations", Min: 1, Max: 8, Default: 2, Integer: true},
			{Name: "push_out_iterations", Path: "evolution.push_out_iterations", Min: 0, Max: 10, Default: 10, Integer: true},
			// Joint solver
			{Name: "apply_pair_iterations", Path: "joints.apply_pair_iterations", Min: 1, Max: 4, Default: 1, Integer: true},
			{Name: "apply_push_out_pair_iterations", Path: "joints.apply_push_out_pair_iterations", Min: 0, Max: 4, Default: 2, Integer: true},
			{Name: "min_parent_mass_ratio", Path: "joints.min_parent_mass_ratio", Min: 0.1, Max: 1.0, Default: 0.5},
			{Name: "max_inertia_ratio", Path: "joints.max_inertia_ratio", Min: 1, Max: 20, Default: 5},
			{Name: "linear_projection", Path: "joints.linear_projection", Min: 0, Max: 1, Default: 0},
			{Name: "angular_projection", Path: "joints.angular_projection", Min: 0, Max: 1, Default: 0},
		},
	}
}

// Dim returns the number of parameters.
func (pv *ParamVector) Dim() int {
	return len(pv.Specs)
}

// DefaultVector returns the default parameter values as a slice.
func (pv *ParamVector) DefaultVector() []float64 {
	v := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		v[i] = spec.Default
	}
	return v
}

// Normalize converts raw parameter values to [0,1] range.
func (pv *ParamVector) Normalize(raw []float64) []float64 {
	normalized := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		normalized[i] = (raw[i] - spec.Min) / (spec.Max - spec.Min)
	}
	return normalized
}

// Denormalize converts [0,1] values back to raw parameter values.
func (pv *ParamVector) Denormalize(normalized []float64) []float64 {
	raw := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		raw[i] = spec.Min + normalized[i]*(spec.Max-spec.Min)
	}
	return raw
}

// Clamp ensures all values are within bounds and rounds integer parameters.
func (pv *ParamVector) Clamp(v []float64) []float64 {
	clamped := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		val := math.Max(spec.Min, math.Min(spec.Max, v[i]))
		if spec.Integer {
			val = math.Round(val)
		}
		clamped[i] = val
	}
	return clamped
}

// ApplyToConfig applies parameter values to a Config struct.
func (pv *ParamVector) ApplyToConfig(cfg *config.Config, values []float64) {
	clamped := pv.Clamp(values)

	// Order must match Specs order
	i := 0
	next := func() float64 { v := clamped[i]; i++; return v }

	cfg.Evolution.Iterations = int(next())
	cfg.Evolution.PushOutIterations = int(next())

	cfg.Joints.ApplyPairIterations = int(next())
	cfg.Joints.ApplyPushOutPairIterations = int(next())
	cfg.Joints.MinParentMassRatio = next()
	cfg.Joints.MaxInertiaRatio = next()
	cfg.Joints.LinearProjection = next()
	cfg.Joints.AngularProjection = next()
}

// ExtractFromConfig extracts current parameter values from a Config struct.
func (pv *ParamVector) ExtractFromConfig(cfg *config.Config) []float64 {
	return []float64{
		float64(cfg.Evolution.Iterations),
		float64(cfg.Evolution.PushOutIterations),
		float64(cfg.Joints.ApplyPairIterations),
		float64(cfg.Joints.ApplyPushOutPairIterations),
		cfg.Joints.MinParentMassRatio,
		cfg.Joints.MaxInertiaRatio,
		cfg.Joints.LinearProjection,
		cfg.Joints.AngularProjection,
	}
}

// Cost returns the relative solver work a parameter vector asks for.
func (pv *ParamVector) Cost(values []float64) float64 {
	c := pv.Clamp(values)
	return c[0]*c[2] + 0.25*c[1]*c[3]
}
