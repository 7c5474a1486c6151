package ui

import (
	"fmt"
	"time"

	gui "github.com/gen2brain/raylib-go/raygui"
	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/pbd/telemetry"
)

// HUDData holds everything the HUD shows for one frame.
type HUDData struct {
	Scenario string
	Step     int64
	SimTime  float64
	SubSteps int
	FPS      int32
	Paused   bool

	Iterations        int
	PushOutIterations int

	Particles, Joints, Springs int
}

// HUDActions reports what the user asked for this frame.
type HUDActions struct {
	TogglePause bool
	StepOnce    bool
	Reset       bool

	// Set when a slider moved; Iterations and PushOutIterations then hold
	// the new counts.
	IterationsChanged bool
	Iterations        int
	PushOutIterations int
}

// HUD renders the heads-up display and its raygui controls.
type HUD struct {
	renderer *Renderer
	width    int32
}

// NewHUD creates a HUD for panels width pixels wide.
func NewHUD(width int32) *HUD {
	return &HUD{renderer: NewRenderer(), width: width}
}

// Bounds returns the rectangle the HUD controls cover.
func (h *HUD) Bounds() rl.Rectangle {
	return rl.Rectangle{X: 0, Y: 0, Width: float32(h.width), Height: 190}
}

// Draw renders the HUD and returns the user's actions.
func (h *HUD) Draw(data HUDData) HUDActions {
	r := h.renderer
	pad := r.Theme.Padding
	actions := HUDActions{Iterations: data.Iterations, PushOutIterations: data.PushOutIterations}

	r.DrawPanel(0, 0, h.width, 190)
	rl.DrawText(fmt.Sprintf("PBD: %s", data.Scenario), pad, pad, 20, rl.White)
	rl.DrawText(
		fmt.Sprintf("Step %d | t=%.2fs | sub-steps %d | FPS %d", data.Step, data.SimTime, data.SubSteps, data.FPS),
		pad, pad+24, 12, rl.LightGray,
	)
	rl.DrawText(
		fmt.Sprintf("Bodies %d | Joints %d | Springs %d", data.Particles, data.Joints, data.Springs),
		pad, pad+40, 12, rl.LightGray,
	)

	y := float32(pad + 60)
	pauseLabel := "Pause"
	if data.Paused {
		pauseLabel = "Resume"
	}
	x := float32(pad)
	if gui.Button(rl.Rectangle{X: x, Y: y, Width: 70, Height: 22}, pauseLabel) {
		actions.TogglePause = true
	}
	if gui.Button(rl.Rectangle{X: x + 76, Y: y, Width: 70, Height: 22}, "Step") {
		actions.StepOnce = true
	}
	if gui.Button(rl.Rectangle{X: x + 152, Y: y, Width: 70, Height: 22}, "Reset") {
		actions.Reset = true
	}
	if data.Paused {
		rl.DrawText("PAUSED", int32(x)+230, int32(y)+4, 14, rl.Yellow)
	}

	y += 34
	sliderW := float32(h.width) - 2*float32(pad) - 120
	rl.DrawText("Iterations", pad, int32(y)+4, 12, rl.LightGray)
	it := gui.SliderBar(
		rl.Rectangle{X: x + 90, Y: y, Width: sliderW, Height: 18},
		"", fmt.Sprintf("%d", data.Iterations),
		float32(data.Iterations), 1, 20,
	)
	y += 26
	rl.DrawText("Push-out", pad, int32(y)+4, 12, rl.LightGray)
	po := gui.SliderBar(
		rl.Rectangle{X: x + 90, Y: y, Width: sliderW, Height: 18},
		"", fmt.Sprintf("%d", data.PushOutIterations),
		float32(data.PushOutIterations), 0, 20,
	)
	if int(it+0.5) != data.Iterations || int(po+0.5) != data.PushOutIterations {
		actions.IterationsChanged = true
		actions.Iterations = int(it + 0.5)
		actions.PushOutIterations = int(po + 0.5)
	}
	return actions
}

// DrawControls renders the key legend at the bottom of the screen.
func (h *HUD) DrawControls(screenHeight int32, controls string) {
	rl.DrawText(controls, 10, screenHeight-25, 14, rl.Gray)
}

// StatsPanel is the descriptor for the window statistics panel.
var StatsPanel = PanelDescriptor{
	Title: "Window Stats",
	Width: 300,
	Sections: []SectionDescriptor{
		{
			Title: "Bodies",
			Fields: []FieldDescriptor{
				{Label: "Active", Widget: WidgetText, Format: "%.0f", Getter: statsField(func(s telemetry.WindowStats) float64 { return float64(s.Active) })},
				{Label: "Sleeping", Widget: WidgetText, Format: "%.0f", Getter: statsField(func(s telemetry.WindowStats) float64 { return float64(s.Sleeping) })},
				{Label: "Mean speed", Widget: WidgetText, Format: "%.2f", Getter: statsField(func(s telemetry.WindowStats) float64 { return s.SpeedMean })},
				{Label: "Kinetic energy", Widget: WidgetText, Format: "%.3g", Getter: statsField(func(s telemetry.WindowStats) float64 { return s.KineticEnergy })},
			},
		},
		{
			Title: "Joint error",
			Fields: []FieldDescriptor{
				{Label: "Mean", Widget: WidgetBar, Range: FieldRange{Max: 1}, Getter: statsField(func(s telemetry.WindowStats) float64 { return s.JointErrMean })},
				{Label: "P90", Widget: WidgetBar, Range: FieldRange{Max: 1}, Getter: statsField(func(s telemetry.WindowStats) float64 { return s.JointErrP90 })},
				{Label: "Max", Widget: WidgetBar, Range: FieldRange{Max: 1}, Getter: statsField(func(s telemetry.WindowStats) float64 { return s.JointErrMax })},
			},
		},
		{
			Title: "Springs",
			Fields: []FieldDescriptor{
				{Label: "Live", Widget: WidgetText, Format: "%.0f", Getter: statsField(func(s telemetry.WindowStats) float64 { return float64(s.Springs) })},
				{Label: "Created", Widget: WidgetText, Format: "%.0f", Getter: statsField(func(s telemetry.WindowStats) float64 { return float64(s.SpringsCreated) })},
				{Label: "Destroyed", Widget: WidgetText, Format: "%.0f", Getter: statsField(func(s telemetry.WindowStats) float64 { return float64(s.SpringsDestroyed) })},
			},
		},
	},
}

func statsField(f func(telemetry.WindowStats) float64) func(any) float64 {
	return func(data any) float64 {
		s, ok := data.(telemetry.WindowStats)
		if !ok {
			return 0
		}
		return f(s)
	}
}

// DrawStats draws the stats panel at (x, y).
func (h *HUD) DrawStats(x, y int32, stats telemetry.WindowStats) int32 {
	return h.renderer.DrawPanelDescriptor(x, y, StatsPanel, stats)
}

// DrawPerf renders solver phase timings at (x, y).
func (h *HUD) DrawPerf(x, y int32, stats telemetry.PerfStats) {
	r := h.renderer
	lines := int32(len(telemetry.Phases) + 3)
	r.DrawPanel(x, y, 300, lines*14+r.Theme.Padding*2)

	cx, cy := x+r.Theme.Padding, y+r.Theme.Padding
	rl.DrawText("Solver Performance", cx, cy, 14, rl.White)
	cy += 18
	rl.DrawText(
		fmt.Sprintf("step %s | %.0f steps/s", stats.AvgStepDuration.Round(time.Microsecond), stats.StepsPerSecond),
		cx, cy, 12, rl.Yellow,
	)
	cy += 16

	for _, phase := range telemetry.Phases {
		avg, ok := stats.PhaseAvg[phase]
		if !ok {
			continue
		}
		pct := stats.PhasePct[phase]
		color := rl.LightGray
		if pct > 40 {
			color = rl.Red
		} else if pct > 20 {
			color = rl.Orange
		}
		rl.DrawText(fmt.Sprintf("%-18s %8s %5.1f%%", phase, avg.Round(time.Microsecond), pct), cx, cy, 12, color)
		cy += 14
	}
}
