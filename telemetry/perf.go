package telemetry

import (
	"log/slog"
	"time"
)

// Phase names for one solver step.
const (
	PhaseCommands         = "commands"
	PhaseKinematics       = "kinematics"
	PhaseIntegrate        = "integrate"
	PhaseApply            = "apply"
	PhaseUpdateVelocities = "update_velocities"
	PhasePushOut          = "push_out"
	PhaseSleep            = "sleep"
	PhaseEndFrame         = "end_frame"
	PhaseBuffer           = "buffer"

	// Frame level: the solver times whole sub-step loops as one phase.
	PhaseSimulate = "simulate"
)

// Phases lists every solver phase in execution order.
var Phases = []string{
	PhaseCommands, PhaseKinematics, PhaseIntegrate, PhaseApply,
	PhaseUpdateVelocities, PhasePushOut, PhaseSleep, PhaseEndFrame,
	PhaseSimulate, PhaseBuffer,
}

// PerfSample holds timing data for a single step.
type PerfSample struct {
	StepDuration time.Duration
	Phases       map[string]time.Duration
}

// PerfCollector tracks step timings over a rolling window. A nil collector
// ignores every call, so solver code can time phases unconditionally.
type PerfCollector struct {
	windowSize    int
	samples       []PerfSample
	writeIndex    int
	sampleCount   int
	currentPhases map[string]time.Duration
	stepStart     time.Time
	phaseStart    time.Time
	lastPhase     string

	lastFrameTime time.Time
	frameDuration time.Duration
}

// NewPerfCollector creates a collector averaging over windowSize steps.
func NewPerfCollector(windowSize int) *PerfCollector {
	if windowSize < 1 {
		windowSize = 60
	}
	return &PerfCollector{
		windowSize:    windowSize,
		samples:       make([]PerfSample, windowSize),
		currentPhases: make(map[string]time.Duration),
	}
}

// StartStep begins timing a solver step.
func (p *PerfCollector) StartStep() {
	if p == nil {
		return
	}
	p.stepStart = time.Now()
	p.currentPhases = make(map[string]time.Duration)
	p.lastPhase = ""
}

// StartPhase closes the running phase, if any, and starts timing phase.
func (p *PerfCollector) StartPhase(phase string) {
	if p == nil {
		return
	}
	now := time.Now()
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}
	p.phaseStart = now
	p.lastPhase = phase
}

// EndStep closes the last phase and records the sample.
func (p *PerfCollector) EndStep() {
	if p == nil {
		return
	}
	now := time.Now()
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}

	p.samples[p.writeIndex] = PerfSample{
		StepDuration: now.Sub(p.stepStart),
		Phases:       p.currentPhases,
	}
	p.writeIndex = (p.writeIndex + 1) % p.windowSize
	if p.sampleCount < p.windowSize {
		p.sampleCount++
	}
}

// RecordFrame records frame timing for the viewer.
func (p *PerfCollector) RecordFrame() {
	if p == nil {
		return
	}
	now := time.Now()
	if !p.lastFrameTime.IsZero() {
		p.frameDuration = now.Sub(p.lastFrameTime)
	}
	p.lastFrameTime = now
}

// PerfStats holds aggregated step timings.
type PerfStats struct {
	AvgStepDuration time.Duration
	MinStepDuration time.Duration
	MaxStepDuration time.Duration

	// Average duration and share of step time per phase.
	PhaseAvg map[string]time.Duration
	PhasePct map[string]float64

	StepsPerSecond float64

	FrameDuration time.Duration
	FPS           float64
}

// Stats aggregates the current window.
func (p *PerfCollector) Stats() PerfStats {
	if p == nil {
		return PerfStats{PhaseAvg: map[string]time.Duration{}, PhasePct: map[string]float64{}}
	}

	var fps float64
	if p.frameDuration > 0 {
		fps = float64(time.Second) / float64(p.frameDuration)
	}

	if p.sampleCount == 0 {
		return PerfStats{
			PhaseAvg:      make(map[string]time.Duration),
			PhasePct:      make(map[string]float64),
			FrameDuration: p.frameDuration,
			FPS:           fps,
		}
	}

	var total, minStep, maxStep time.Duration
	phaseSum := make(map[string]time.Duration)
	for i := 0; i < p.sampleCount; i++ {
		s := p.samples[i]
		total += s.StepDuration
		if i == 0 || s.StepDuration < minStep {
			minStep = s.StepDuration
		}
		if s.StepDuration > maxStep {
			maxStep = s.StepDuration
		}
		for phase, dur := range s.Phases {
			phaseSum[phase] += dur
		}
	}

	avg := total / time.Duration(p.sampleCount)
	phaseAvg := make(map[string]time.Duration)
	phasePct := make(map[string]float64)
	for phase, sum := range phaseSum {
		phaseAvg[phase] = sum / time.Duration(p.sampleCount)
		if avg > 0 {
			phasePct[phase] = float64(phaseAvg[phase]) / float64(avg) * 100
		}
	}

	var perSec float64
	if avg > 0 {
		perSec = float64(time.Second) / float64(avg)
	}

	return PerfStats{
		AvgStepDuration: avg,
		MinStepDuration: minStep,
		MaxStepDuration: maxStep,
		PhaseAvg:        phaseAvg,
		PhasePct:        phasePct,
		StepsPerSecond:  perSec,
		FrameDuration:   p.frameDuration,
		FPS:             fps,
	}
}

// LogStats logs the stats at info level.
func (s PerfStats) LogStats() {
	attrs := []any{
		"avg_step_us", s.AvgStepDuration.Microseconds(),
		"max_step_us", s.MaxStepDuration.Microseconds(),
		"steps_per_sec", int(s.StepsPerSecond),
	}
	if s.FPS > 0 {
		attrs = append(attrs, "fps", int(s.FPS))
	}
	for _, phase := range Phases {
		if pct, ok := s.PhasePct[phase]; ok && pct > 0.1 {
			attrs = append(attrs, phase+"_pct", int(pct*10)/10.0)
		}
	}
	slog.Info("perf", attrs...)
}

// LogValue implements slog.LogValuer.
func (s PerfStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int64("avg_step_us", s.AvgStepDuration.Microseconds()),
		slog.Int64("min_step_us", s.MinStepDuration.Microseconds()),
		slog.Int64("max_step_us", s.MaxStepDuration.Microseconds()),
		slog.Float64("steps_per_sec", s.StepsPerSecond),
	}
	if s.FPS > 0 {
		attrs = append(attrs, slog.Float64("fps", s.FPS))
	}
	for _, phase := range Phases {
		if pct, ok := s.PhasePct[phase]; ok {
			attrs = append(attrs, slog.Float64(phase+"_pct", pct))
		}
	}
	return slog.GroupValue(attrs...)
}

// PerfStatsCSV is the flat CSV row for perf.csv.
type PerfStatsCSV struct {
	Step                int64   `csv:"step"`
	AvgStepUS           int64   `csv:"avg_step_us"`
	MinStepUS           int64   `csv:"min_step_us"`
	MaxStepUS           int64   `csv:"max_step_us"`
	StepsPerSec         float64 `csv:"steps_per_sec"`
	FPS                 float64 `csv:"fps"`
	CommandsPct         float64 `csv:"commands_pct"`
	KinematicsPct       float64 `csv:"kinematics_pct"`
	IntegratePct        float64 `csv:"integrate_pct"`
	ApplyPct            float64 `csv:"apply_pct"`
	UpdateVelocitiesPct float64 `csv:"update_velocities_pct"`
	PushOutPct          float64 `csv:"push_out_pct"`
	SleepPct            float64 `csv:"sleep_pct"`
	EndFramePct         float64 `csv:"end_frame_pct"`
	SimulatePct         float64 `csv:"simulate_pct"`
	BufferPct           float64 `csv:"buffer_pct"`
}

// ToCSV flattens the stats for the window ending at step.
func (s PerfStats) ToCSV(step int64) PerfStatsCSV {
	return PerfStatsCSV{
		Step:                step,
		AvgStepUS:           s.AvgStepDuration.Microseconds(),
		MinStepUS:           s.MinStepDuration.Microseconds(),
		MaxStepUS:           s.MaxStepDuration.Microseconds(),
		StepsPerSec:         s.StepsPerSecond,
		FPS:                 s.FPS,
		CommandsPct:         s.PhasePct[PhaseCommands],
		KinematicsPct:       s.PhasePct[PhaseKinematics],
		IntegratePct:        s.PhasePct[PhaseIntegrate],
		ApplyPct:            s.PhasePct[PhaseApply],
		UpdateVelocitiesPct: s.PhasePct[PhaseUpdateVelocities],
		PushOutPct:          s.PhasePct[PhasePushOut],
		SleepPct:            s.PhasePct[PhaseSleep],
		EndFramePct:         s.PhasePct[PhaseEndFrame],
		SimulatePct:         s.PhasePct[PhaseSimulate],
		BufferPct:           s.PhasePct[PhaseBuffer],
	}
}
