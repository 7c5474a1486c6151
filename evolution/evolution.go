// Package evolution advances particles and constraints through time.
//
// One step runs: kinematic targets, integration, rule state update, Apply
// iterations, velocity update, push-out iterations, island sleep and end of
// frame. Advance splits a frame into bounded sub-steps.
package evolution

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/pthm-cable/pbd/components"
	"github.com/pthm-cable/pbd/constraints"
	"github.com/pthm-cable/pbd/debugdraw"
	"github.com/pthm-cable/pbd/particles"
	"github.com/pthm-cable/pbd/telemetry"
)

const timeEpsilon = 1e-9

// Settings control one evolution. They are copied in and never shared.
type Settings struct {
	Iterations        int
	PushOutIterations int
	Gravity           mgl64.Vec3

	// Sleeping is disabled when SleepCounterThreshold is zero.
	SleepLinearThreshold  float64
	SleepAngularThreshold float64
	SleepCounterThreshold int
}

// DefaultSettings returns the settings used when none are configured.
func DefaultSettings() Settings {
	return Settings{
		Iterations:            2,
		PushOutIterations:     10,
		Gravity:               mgl64.Vec3{0, 0, -980},
		SleepLinearThreshold:  1,
		SleepAngularThreshold: 0.1,
	}
}

// StepInfo summarizes the last step.
type StepInfo struct {
	Dt               float64
	Time             float64
	Iterations       int
	PushOutRun       int
	ActiveParticles  int
	KinematicUpdated int
}

// LogValue implements slog.LogValuer.
func (s StepInfo) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Float64("dt", s.Dt),
		slog.Float64("time", s.Time),
		slog.Int("iterations", s.Iterations),
		slog.Int("push_out_run", s.PushOutRun),
		slog.Int("active", s.ActiveParticles),
	)
}

// Evolution owns the step loop over a particle store and a set of rules.
type Evolution struct {
	store    *particles.Store
	settings Settings
	rules    []constraints.Rule

	kinematicUpdate KinematicUpdateFunc
	sink            debugdraw.Sink
	perf            *telemetry.PerfCollector

	time       float64
	steps      int64
	frameStart float64
	frameDt    float64
	inFrame    bool
	last       StepInfo

	events      [2][]StepEvent
	writeEvents int
}

// New creates an evolution over store.
func New(store *particles.Store, settings Settings) *Evolution {
	e := &Evolution{
		store:    store,
		settings: settings,
		sink:     debugdraw.Nop{},
	}
	e.kinematicUpdate = e.InterpolateKinematics
	return e
}

// Store returns the particle store.
func (e *Evolution) Store() *particles.Store { return e.store }

// Settings returns the current settings.
func (e *Evolution) Settings() Settings { return e.settings }

// SetSettings replaces the settings. Must not be called during a step.
func (e *Evolution) SetSettings(s Settings) { e.settings = s }

// SetGravity sets the gravity acceleration.
func (e *Evolution) SetGravity(g mgl64.Vec3) { e.settings.Gravity = g }

// Time returns the simulated time.
func (e *Evolution) Time() float64 { return e.time }

// Steps returns the number of steps taken.
func (e *Evolution) Steps() int64 { return e.steps }

// LastStep returns a summary of the last step.
func (e *Evolution) LastStep() StepInfo { return e.last }

// SetPerfCollector installs a collector for phase timings. Nil disables timing.
func (e *Evolution) SetPerfCollector(p *telemetry.PerfCollector) { e.perf = p }

// SetDebugDrawSink installs a debug draw sink. Nil restores the no-op sink.
func (e *Evolution) SetDebugDrawSink(s debugdraw.Sink) {
	if s == nil {
		s = debugdraw.Nop{}
	}
	e.sink = s
}

// AddRule registers a constraint rule. Rules run in ascending priority;
// equal priorities keep registration order.
func (e *Evolution) AddRule(r constraints.Rule) {
	e.rules = append(e.rules, r)
	sort.SliceStable(e.rules, func(i, j int) bool {
		return e.rules[i].Priority() < e.rules[j].Priority()
	})
}

// Rules returns the registered rules in run order.
func (e *Evolution) Rules() []constraints.Rule {
	return append([]constraints.Rule(nil), e.rules...)
}

// DestroyParticles removes every constraint referencing the particles and
// then destroys them.
func (e *Evolution) DestroyParticles(handles []particles.Handle) error {
	set := make(map[particles.Handle]struct{}, len(handles))
	for _, h := range handles {
		set[h] = struct{}{}
	}
	for _, r := range e.rules {
		r.RemoveConstraints(set)
	}
	for _, h := range handles {
		if err := e.store.DestroyParticle(h); err != nil {
			return fmt.Errorf("destroy particle %d: %w", h.ID(), err)
		}
	}
	return nil
}

// Advance simulates dt seconds in sub-steps no longer than maxDt. At most
// maxSubSteps are taken; time beyond that is dropped. A non-positive maxDt
// or maxSubSteps removes that bound. It returns the number of sub-steps.
func (e *Evolution) Advance(dt, maxDt float64, maxSubSteps int) int {
	if dt <= 0 {
		return 0
	}
	e.frameStart = e.time
	e.frameDt = dt
	e.inFrame = true
	defer func() { e.inFrame = false }()

	remaining := dt
	steps := 0
	for remaining > timeEpsilon {
		if maxSubSteps > 0 && steps >= maxSubSteps {
			slog.Warn("dropping frame time", "remaining", remaining, "max_sub_steps", maxSubSteps)
			break
		}
		step := remaining
		if maxDt > 0 && step > maxDt {
			step = maxDt
		}
		e.AdvanceOneTimeStep(step)
		remaining -= step
		steps++
	}
	return steps
}

// AdvanceOneTimeStep runs a single step of length dt.
func (e *Evolution) AdvanceOneTimeStep(dt float64) {
	if dt <= 0 {
		return
	}
	if !e.inFrame {
		e.frameStart = e.time
		e.frameDt = dt
	}
	e.perf.StartStep()

	e.perf.StartPhase(telemetry.PhaseKinematics)
	kinematics := e.updateKinematics(dt)

	e.perf.StartPhase(telemetry.PhaseIntegrate)
	e.integrate(dt)
	for _, r := range e.rules {
		r.UpdatePositionBasedState(dt)
	}

	e.perf.StartPhase(telemetry.PhaseApply)
	for it := 0; it < e.settings.Iterations; it++ {
		for _, r := range e.rules {
			r.Apply(dt, it, e.settings.Iterations)
		}
	}

	e.perf.StartPhase(telemetry.PhaseUpdateVelocities)
	e.updateVelocities(dt)

	e.perf.StartPhase(telemetry.PhasePushOut)
	pushOutRun := 0
	needsAnother := true
	for it := 0; needsAnother && it < e.settings.PushOutIterations; it++ {
		needsAnother = false
		for _, r := range e.rules {
			if r.ApplyPushOut(dt, it, e.settings.PushOutIterations) {
				needsAnother = true
			}
		}
		pushOutRun++
	}

	e.perf.StartPhase(telemetry.PhaseSleep)
	e.time += dt
	e.updateSleep()

	e.perf.StartPhase(telemetry.PhaseEndFrame)
	e.endFrame()
	e.debugDraw()
	e.perf.EndStep()

	e.steps++
	e.last = StepInfo{
		Dt:               dt,
		Time:             e.time,
		Iterations:       e.settings.Iterations,
		PushOutRun:       pushOutRun,
		ActiveParticles:  e.store.ActiveView().Len(),
		KinematicUpdated: kinematics,
	}
	slog.Debug("step", "info", e.last)
}

// integrate predicts positions from velocities after applying gravity.
func (e *Evolution) integrate(dt float64) {
	g := e.settings.Gravity
	e.store.ActiveView().Each(func(p particles.Particle) {
		if !p.IsDynamic() {
			p.P, p.Q = p.X, p.R
			return
		}
		p.V = p.V.Add(g.Mul(dt))
		p.P = p.X.Add(p.V.Mul(dt))
		p.Q = components.IntegrateRotation(p.R, p.W.Mul(dt))
	})
}

// updateVelocities derives velocities from the corrected positions.
func (e *Evolution) updateVelocities(dt float64) {
	e.store.ActiveView().Each(func(p particles.Particle) {
		if !p.IsDynamic() {
			return
		}
		p.V = p.P.Sub(p.X).Mul(1 / dt)
		p.W = components.AngularVelocity(p.R, p.Q, dt)
	})
}

func (e *Evolution) endFrame() {
	e.store.ActiveView().Each(func(p particles.Particle) {
		p.X = p.P
		p.R = p.Q
	})
}

func (e *Evolution) debugDraw() {
	if _, ok := e.sink.(debugdraw.Nop); ok {
		return
	}
	e.sink.BeginFrame()
	e.store.NonDisabledView().Each(func(p particles.Particle) {
		e.sink.DrawParticle(debugdraw.ParticleInfo{
			ID:       p.Handle.ID(),
			Kind:     p.Kind,
			State:    p.State,
			Level:    int(p.Level),
			Pose:     *p.Transform,
			Geometry: p.Geometry,
		})
	})
	for _, r := range e.rules {
		if d, ok := r.(constraints.DebugDrawer); ok {
			d.DebugDraw(e.sink)
		}
	}
	e.sink.EndFrame()
}

// KineticEnergy returns the total kinetic energy of the active particles.
func (e *Evolution) KineticEnergy() float64 {
	var ke float64
	e.store.ActiveView().Each(func(p particles.Particle) {
		if p.InvM == 0 {
			return
		}
		ke += 0.5 * p.M * p.V.Dot(p.V)
		for k := 0; k < 3; k++ {
			ke += 0.5 * p.I[k] * p.W[k] * p.W[k]
		}
	})
	return ke
}
