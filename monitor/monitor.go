// Package monitor is a terminal dashboard for headless runs. The solver
// loop publishes one Frame per stats window; the dashboard redraws on a
// ticker and cancels the run when the user quits.
package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/pthm-cable/pbd/telemetry"
)

// Frame is one dashboard update.
type Frame struct {
	Scenario string
	Step     int64
	SimTime  float64
	SubSteps int
	Stats    telemetry.WindowStats
	Perf     telemetry.PerfStats
}

// Monitor owns a tcell screen.
type Monitor struct {
	screen tcell.Screen
	frames chan Frame
	cancel context.CancelFunc

	latest   Frame
	received int
	width    int
	height   int
}

// New wraps an initialized screen. cancel is called when the user quits.
func New(screen tcell.Screen, cancel context.CancelFunc) *Monitor {
	w, h := screen.Size()
	return &Monitor{
		screen: screen,
		frames: make(chan Frame, 8),
		cancel: cancel,
		width:  w,
		height: h,
	}
}

// NewTerminal opens the controlling terminal.
func NewTerminal(cancel context.CancelFunc) (*Monitor, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, fmt.Errorf("monitor: %w", err)
	}
	if err := screen.Init(); err != nil {
		return nil, fmt.Errorf("monitor: %w", err)
	}
	return New(screen, cancel), nil
}

// Publish queues a frame for display. It never blocks; when the dashboard
// falls behind the oldest undrawn frame is replaced.
func (m *Monitor) Publish(f Frame) {
	select {
	case m.frames <- f:
		return
	default:
	}
	select {
	case <-m.frames:
	default:
	}
	select {
	case m.frames <- f:
	default:
	}
}

// Run processes input and redraws until ctx is done or the user presses
// q or Esc.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	done := make(chan struct{})
	defer close(done)
	events := make(chan tcell.Event, 16)
	go func() {
		for {
			ev := m.screen.PollEvent()
			if ev == nil {
				return
			}
			select {
			case events <- ev:
			case <-done:
				return
			}
		}
	}()

	m.draw()
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-m.frames:
			m.latest = f
			m.received++
		case ev := <-events:
			if !m.handleEvent(ev) {
				if m.cancel != nil {
					m.cancel()
				}
				return
			}
		case <-ticker.C:
			m.draw()
		}
	}
}

// Close restores the terminal.
func (m *Monitor) Close() {
	m.screen.Fini()
}

func (m *Monitor) handleEvent(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		if ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC {
			return false
		}
		if ev.Key() == tcell.KeyRune && (ev.Rune() == 'q' || ev.Rune() == 'Q') {
			return false
		}
	case *tcell.EventResize:
		m.width, m.height = m.screen.Size()
		m.screen.Sync()
	}
	return true
}

var (
	styleTitle  = tcell.StyleDefault.Foreground(tcell.ColorYellow).Bold(true)
	styleLabel  = tcell.StyleDefault.Foreground(tcell.ColorSilver)
	styleValue  = tcell.StyleDefault.Foreground(tcell.ColorWhite)
	styleWarn   = tcell.StyleDefault.Foreground(tcell.ColorOrange)
	styleHot    = tcell.StyleDefault.Foreground(tcell.ColorRed)
	styleBar    = tcell.StyleDefault.Foreground(tcell.ColorGreen)
	styleFooter = tcell.StyleDefault.Foreground(tcell.ColorGray)
)

func (m *Monitor) text(x, y int, style tcell.Style, s string) int {
	if y < 0 || y >= m.height {
		return x
	}
	for _, r := range s {
		if x >= m.width {
			break
		}
		m.screen.SetContent(x, y, r, nil, style)
		x++
	}
	return x
}

func (m *Monitor) row(y int, label, value string) {
	m.text(2, y, styleLabel, label)
	m.text(22, y, styleValue, value)
}

func (m *Monitor) draw() {
	m.screen.Clear()
	f := m.latest
	s := f.Stats

	m.text(0, 0, styleTitle, fmt.Sprintf("pbd monitor: %s", f.Scenario))
	if m.received == 0 {
		m.text(2, 2, styleLabel, "waiting for the first stats window...")
		m.footer()
		m.screen.Show()
		return
	}

	y := 2
	m.row(y, "step", fmt.Sprintf("%d", f.Step))
	m.row(y+1, "sim time", fmt.Sprintf("%.2fs", f.SimTime))
	m.row(y+2, "sub-steps", fmt.Sprintf("%d", f.SubSteps))
	m.row(y+3, "bodies", fmt.Sprintf("%d active, %d sleeping of %d", s.Active, s.Sleeping, s.Particles))
	m.row(y+4, "joints", fmt.Sprintf("%d", s.Joints))
	m.row(y+5, "springs", fmt.Sprintf("%d (+%d -%d)", s.Springs, s.SpringsCreated, s.SpringsDestroyed))
	m.row(y+6, "kinetic energy", fmt.Sprintf("%.4g", s.KineticEnergy))

	y += 8
	m.text(0, y, styleTitle, "joint error")
	m.row(y+1, "mean / std", fmt.Sprintf("%.4g / %.4g", s.JointErrMean, s.JointErrStd))
	m.row(y+2, "p50 / p90", fmt.Sprintf("%.4g / %.4g", s.JointErrP50, s.JointErrP90))
	m.row(y+3, "max", fmt.Sprintf("%.4g", s.JointErrMax))

	y += 5
	m.text(0, y, styleTitle, fmt.Sprintf("phases (%.0f steps/s)", f.Perf.StepsPerSecond))
	y++
	for _, phase := range telemetry.Phases {
		pct, ok := f.Perf.PhasePct[phase]
		if !ok {
			continue
		}
		m.phaseRow(y, phase, pct)
		y++
	}
	m.footer()
	m.screen.Show()
}

func (m *Monitor) phaseRow(y int, phase string, pct float64) {
	style := styleValue
	switch {
	case pct > 40:
		style = styleHot
	case pct > 20:
		style = styleWarn
	}
	m.text(2, y, styleLabel, phase)
	x := m.text(22, y, style, fmt.Sprintf("%5.1f%% ", pct))
	for i := 0; i < int(pct/4+0.5); i++ {
		x = m.text(x, y, styleBar, "█")
	}
}

func (m *Monitor) footer() {
	m.text(0, m.height-1, styleFooter, "q/Esc: stop run")
}
