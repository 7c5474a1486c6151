package telemetry

import (
	"log/slog"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Sample is a point-in-time reading of the solver taken at the end of a
// stats window.
type Sample struct {
	Particles int
	Active    int
	Sleeping  int
	Joints    int
	Springs   int

	// Linear error of every joint, in world units.
	JointErrors []float64
	// Linear speed of every non-disabled dynamic particle.
	Speeds []float64

	KineticEnergy float64
}

// WindowStats holds aggregated statistics for one stats window.
type WindowStats struct {
	WindowStartStep int64   `csv:"-"`
	WindowEndStep   int64   `csv:"window_end"`
	SimTimeSec      float64 `csv:"sim_time"`

	Particles int `csv:"particles"`
	Active    int `csv:"active"`
	Sleeping  int `csv:"sleeping"`
	Joints    int `csv:"joints"`
	Springs   int `csv:"springs"`

	// Events during window
	SubSteps         int `csv:"sub_steps"`
	SpringsCreated   int `csv:"springs_created"`
	SpringsDestroyed int `csv:"springs_destroyed"`
	SleepEvents      int `csv:"sleep_events"`
	WakeEvents       int `csv:"wake_events"`

	JointErrMean float64 `csv:"joint_err_mean"`
	JointErrStd  float64 `csv:"joint_err_std"`
	JointErrP50  float64 `csv:"joint_err_p50"`
	JointErrP90  float64 `csv:"joint_err_p90"`
	JointErrMax  float64 `csv:"joint_err_max"`

	SpeedMean float64 `csv:"speed_mean"`
	SpeedMax  float64 `csv:"speed_max"`

	KineticEnergy float64 `csv:"kinetic_energy"`
}

// Distribution summarises a set of values.
type Distribution struct {
	Mean, Std     float64
	P10, P50, P90 float64
	Max           float64
}

// ComputeDistribution returns mean, population standard deviation,
// empirical quantiles and maximum. An empty input yields all zeros.
func ComputeDistribution(values []float64) Distribution {
	if len(values) == 0 {
		return Distribution{}
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	mean, std := stat.PopMeanStdDev(sorted, nil)
	return Distribution{
		Mean: mean,
		Std:  std,
		P10:  stat.Quantile(0.10, stat.Empirical, sorted, nil),
		P50:  stat.Quantile(0.50, stat.Empirical, sorted, nil),
		P90:  stat.Quantile(0.90, stat.Empirical, sorted, nil),
		Max:  floats.Max(sorted),
	}
}

// LogValue implements slog.LogValuer for structured logging.
func (s WindowStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("window_start", s.WindowStartStep),
		slog.Int64("window_end", s.WindowEndStep),
		slog.Float64("sim_time", s.SimTimeSec),
		slog.Int("particles", s.Particles),
		slog.Int("active", s.Active),
		slog.Int("sleeping", s.Sleeping),
		slog.Int("joints", s.Joints),
		slog.Int("springs", s.Springs),
		slog.Int("sub_steps", s.SubSteps),
		slog.Int("springs_created", s.SpringsCreated),
		slog.Int("springs_destroyed", s.SpringsDestroyed),
		slog.Int("sleep_events", s.SleepEvents),
		slog.Int("wake_events", s.WakeEvents),
		slog.Float64("joint_err_mean", s.JointErrMean),
		slog.Float64("joint_err_p90", s.JointErrP90),
		slog.Float64("joint_err_max", s.JointErrMax),
		slog.Float64("speed_max", s.SpeedMax),
		slog.Float64("kinetic_energy", s.KineticEnergy),
	)
}

// LogStats logs the window stats using slog.
func (s WindowStats) LogStats() {
	slog.Info("stats",
		"window_end", s.WindowEndStep,
		"sim_time", s.SimTimeSec,
		"active", s.Active,
		"sleeping", s.Sleeping,
		"joints", s.Joints,
		"springs", s.Springs,
		"sub_steps", s.SubSteps,
		"joint_err_mean", s.JointErrMean,
		"joint_err_max", s.JointErrMax,
		"kinetic_energy", s.KineticEnergy,
	)
}
