package game

import (
	"log/slog"
	"math"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/pbd/particles"
	"github.com/pthm-cable/pbd/renderer"
	"github.com/pthm-cable/pbd/ui"
)

const controlsLegend = "Space: pause  N: step  R: reset  </>: speed  RMB: orbit  MMB: pan  Wheel: zoom  C: focus  Home: camera"

// Update handles input and runs the frames due this update.
func (g *Game) Update() {
	g.perf.RecordFrame()
	g.handleInput()

	if g.paused && !g.stepOnce {
		return
	}
	steps := g.stepsPerUpdate
	if g.stepOnce {
		steps = 1
		g.stepOnce = false
	}
	for i := 0; i < steps; i++ {
		g.Step()
	}
}

func (g *Game) resetOrLog() {
	if err := g.reset(); err != nil {
		slog.Error("reset failed", "error", err)
	}
}

// Draw renders the scene from the last recorded debug frame, then the 2D
// panels.
func (g *Game) Draw() {
	rl.BeginDrawing()
	rl.ClearBackground(rl.Color{R: 24, G: 26, B: 32, A: 255})

	g.overlays.ApplyTo(&g.debug.Options)

	rl.BeginMode3D(renderer.Camera3D(g.camera))
	if g.overlays.IsEnabled(ui.OverlayGrid) {
		renderer.DrawGround(float32(g.groundHeight()), 40, 10)
	}
	g.recorder.Replay(g.debug)
	rl.EndMode3D()

	g.drawPanels()
	rl.EndDrawing()
}

// groundHeight is the lowest particle height, so the grid sits under the
// scene.
func (g *Game) groundHeight() float64 {
	low := math.Inf(1)
	g.sim.Store().NonDisabledView().Each(func(p particles.Particle) {
		low = math.Min(low, p.X.Z())
	})
	if math.IsInf(low, 1) {
		return 0
	}
	return low
}

func (g *Game) drawPanels() {
	nParticles, nJoints, nSprings := g.debug.Counts()
	settings := g.sim.Evolution().Settings()

	actions := g.hud.Draw(ui.HUDData{
		Scenario:          g.scene.Name,
		Step:              g.step,
		SimTime:           g.sim.Evolution().Time(),
		SubSteps:          g.lastSubSteps,
		FPS:               rl.GetFPS(),
		Paused:            g.paused,
		Iterations:        settings.Iterations,
		PushOutIterations: settings.PushOutIterations,
		Particles:         nParticles,
		Joints:            nJoints,
		Springs:           nSprings,
	})
	g.applyActions(actions)

	g.controls.Draw(g.overlays)

	y := int32(200)
	if g.overlays.IsEnabled(ui.OverlayStats) {
		y += g.hud.DrawStats(0, y, g.lastStats) + 10
	}
	if g.overlays.IsEnabled(ui.OverlayPerf) {
		g.hud.DrawPerf(0, y, g.perf.Stats())
	}
	g.hud.DrawControls(g.screenHeight, controlsLegend)
}

func (g *Game) applyActions(a ui.HUDActions) {
	if a.TogglePause {
		g.paused = !g.paused
	}
	if a.StepOnce {
		g.stepOnce = true
	}
	if a.Reset {
		g.resetOrLog()
	}
	if a.IterationsChanged {
		g.sim.SetIterations(a.Iterations, a.PushOutIterations)
		slog.Info("iterations changed", "iterations", a.Iterations, "push_out_iterations", a.PushOutIterations)
	}
}
