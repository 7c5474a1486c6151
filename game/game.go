// Package game runs a scenario frame by frame, either headless or behind
// the raylib viewer, and feeds the telemetry outputs.
package game

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/pthm-cable/pbd/camera"
	"github.com/pthm-cable/pbd/config"
	"github.com/pthm-cable/pbd/debugdraw"
	"github.com/pthm-cable/pbd/evolution"
	"github.com/pthm-cable/pbd/particles"
	"github.com/pthm-cable/pbd/renderer"
	"github.com/pthm-cable/pbd/scenario"
	"github.com/pthm-cable/pbd/simulation"
	"github.com/pthm-cable/pbd/telemetry"
	"github.com/pthm-cable/pbd/ui"
)

// Options configure a run.
type Options struct {
	Scenario  string // Overrides scenario.name when set
	LogStats  bool
	OutputDir string
	Headless  bool

	// StatsCallback, if set, is called after each stats window.
	StatsCallback func(stats telemetry.WindowStats, perf telemetry.PerfStats)
}

// Game holds the simulation and everything observing it.
type Game struct {
	cfg         *config.Config
	opts        Options
	scenarioCfg config.ScenarioConfig

	sim   *simulation.Simulation
	scene *scenario.Scene

	collector *telemetry.Collector
	bookmarks *telemetry.BookmarkDetector
	perf      *telemetry.PerfCollector
	output    *telemetry.OutputManager

	step         int64
	lastSubSteps int
	lastStats    telemetry.WindowStats

	// Viewer state; nil when headless.
	paused, stepOnce bool
	stepsPerUpdate   int
	recorder         *debugdraw.Recorder
	debug            *renderer.DebugRenderer
	camera           *camera.Orbit
	hud              *ui.HUD
	controls         *ui.ControlsPanel
	overlays         *ui.OverlayRegistry
	screenWidth      int32
	screenHeight     int32
}

// NewGame builds the configured scenario.
func NewGame(cfg *config.Config, opts Options) (*Game, error) {
	g := &Game{
		cfg:            cfg,
		opts:           opts,
		scenarioCfg:    cfg.Scenario,
		collector:      telemetry.NewCollector(cfg.Telemetry.StatsWindow, cfg.Evolution.DT),
		bookmarks:      telemetry.NewBookmarkDetector(10),
		perf:           telemetry.NewPerfCollector(cfg.Telemetry.PerfWindow),
		stepsPerUpdate: 1,
	}
	if opts.Scenario != "" {
		g.scenarioCfg.Name = opts.Scenario
	}

	output, err := telemetry.NewOutputManager(opts.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("output: %w", err)
	}
	g.output = output
	if err := g.output.WriteConfig(cfg); err != nil {
		slog.Error("failed to write config", "error", err)
	}

	if !opts.Headless {
		g.recorder = &debugdraw.Recorder{}
		g.debug = renderer.NewDebugRenderer(renderer.DefaultOptions())
		g.hud = ui.NewHUD(360)
		g.overlays = ui.NewOverlayRegistry()
		g.screenWidth = int32(cfg.Screen.Width)
		g.screenHeight = int32(cfg.Screen.Height)
		g.controls = ui.NewControlsPanel(g.screenWidth-190, 10, 180)
	}

	if err := g.reset(); err != nil {
		g.output.Close()
		return nil, err
	}
	return g, nil
}

// reset discards the simulation and builds the scenario again.
func (g *Game) reset() error {
	settings, err := simulation.SettingsFromConfig(g.cfg)
	if err != nil {
		return err
	}
	sim := simulation.New(settings)
	sim.Evolution().SetPerfCollector(g.perf)
	if g.recorder != nil {
		sim.Evolution().SetDebugDrawSink(g.recorder)
	}

	scene, err := scenario.Build(sim, g.scenarioCfg)
	if err != nil {
		return err
	}
	g.sim, g.scene = sim, scene
	g.step = 0
	g.collector = telemetry.NewCollector(g.cfg.Telemetry.StatsWindow, g.cfg.Evolution.DT)

	if g.recorder != nil {
		center, radius := g.sceneBounds()
		g.camera = camera.New(center, 4*radius)
		g.camera.Focus(center, radius)
	}
	return nil
}

// sceneBounds returns a sphere around every enabled particle.
func (g *Game) sceneBounds() (mgl64.Vec3, float64) {
	var lo, hi mgl64.Vec3
	first := true
	g.sim.Store().NonDisabledView().Each(func(p particles.Particle) {
		if first {
			lo, hi = p.X, p.X
			first = false
			return
		}
		for k := 0; k < 3; k++ {
			lo[k] = math.Min(lo[k], p.X[k])
			hi[k] = math.Max(hi[k], p.X[k])
		}
	})
	center := lo.Add(hi).Mul(0.5)
	radius := hi.Sub(lo).Len()/2 + 10
	return center, radius
}

// Step advances the scenario by one configured frame.
func (g *Game) Step() {
	ev := g.cfg.Evolution
	frameEnd := g.sim.Evolution().Time() + ev.DT
	if err := g.scene.Update(g.sim, frameEnd); err != nil {
		slog.Warn("scenario update failed", "error", err)
	}

	n := g.sim.Simulate(ev.DT, ev.MaxDeltaTime, ev.MaxSubSteps, mgl64.Vec3(g.cfg.Derived.Gravity))
	g.collector.RecordSubSteps(n)
	g.lastSubSteps = n
	g.recordEvents()
	g.step++

	if every := g.cfg.Telemetry.PerfCSVEvery; g.output != nil && every > 0 && g.step%int64(every) == 0 {
		if err := g.output.WritePerf(g.perf.Stats(), g.step); err != nil {
			slog.Error("failed to write perf", "error", err)
		}
	}
	g.flushTelemetry()
}

// recordEvents moves the frame's events into the collector.
func (g *Game) recordEvents() {
	evo := g.sim.Evolution()
	evo.FlipEvents()
	for _, e := range evo.Events() {
		switch e.Kind {
		case evolution.EventSpringCreated:
			g.collector.RecordSpringCreated()
		case evolution.EventSpringDestroyed:
			g.collector.RecordSpringDestroyed()
		case evolution.EventSleep:
			g.collector.RecordSleep()
		case evolution.EventWake:
			g.collector.RecordWake()
		}
	}
}

// UpdateHeadless runs one frame without input or drawing.
func (g *Game) UpdateHeadless() {
	g.Step()
}

// Steps returns the number of frames run since the last reset.
func (g *Game) Steps() int64 {
	return g.step
}

// Simulation returns the running simulation.
func (g *Game) Simulation() *simulation.Simulation {
	return g.sim
}

// ScenarioName returns the name of the running scenario.
func (g *Game) ScenarioName() string {
	return g.scene.Name
}

// LastSubSteps returns the sub-steps the last frame took.
func (g *Game) LastSubSteps() int {
	return g.lastSubSteps
}

// Unload flushes and closes the output files.
func (g *Game) Unload() {
	if err := g.output.Close(); err != nil {
		slog.Error("failed to close output", "error", err)
	}
}
