package game

import (
	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/pbd/renderer"
)

// handleInput processes keyboard and mouse input.
func (g *Game) handleInput() {
	g.handleResize()

	if rl.IsKeyPressed(rl.KeyF11) {
		rl.ToggleFullscreen()
	}
	if rl.IsKeyPressed(rl.KeySpace) {
		g.paused = !g.paused
	}
	if rl.IsKeyPressed(rl.KeyN) {
		g.stepOnce = true
	}
	if rl.IsKeyPressed(rl.KeyR) {
		g.resetOrLog()
	}

	// Frames per update with < > keys (comma and period)
	if rl.IsKeyPressed(rl.KeyComma) && g.stepsPerUpdate > 1 {
		g.stepsPerUpdate--
	}
	if rl.IsKeyPressed(rl.KeyPeriod) && g.stepsPerUpdate < 10 {
		g.stepsPerUpdate++
	}

	g.overlays.HandleKeys()
	g.handleCameraInput()
}

// handleResize keeps the screen-anchored panels in place.
func (g *Game) handleResize() {
	if !rl.IsWindowResized() {
		return
	}
	g.screenWidth = int32(rl.GetScreenWidth())
	g.screenHeight = int32(rl.GetScreenHeight())
	g.controls.SetPosition(g.screenWidth-190, 10)
}

// handleCameraInput moves the orbit camera unless the mouse is over a panel.
func (g *Game) handleCameraInput() {
	mouse := rl.GetMousePosition()
	if rl.CheckCollisionPointRec(mouse, g.hud.Bounds()) ||
		rl.CheckCollisionPointRec(mouse, g.controls.Bounds(g.overlays)) {
		return
	}
	renderer.UpdateCamera(g.camera)

	if rl.IsKeyPressed(rl.KeyHome) {
		g.camera.Reset()
	}
	if rl.IsKeyPressed(rl.KeyC) {
		center, radius := g.sceneBounds()
		g.camera.Focus(center, radius)
	}
}
