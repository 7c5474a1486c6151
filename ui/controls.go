package ui

import (
	"fmt"

	gui "github.com/gen2brain/raylib-go/raygui"
	rl "github.com/gen2brain/raylib-go/raylib"
)

// ControlsPanel lists the overlays as raygui check boxes.
type ControlsPanel struct {
	renderer *Renderer
	x, y     int32
	width    int32
	visible  bool
}

// NewControlsPanel creates a new controls panel.
func NewControlsPanel(x, y, width int32) *ControlsPanel {
	return &ControlsPanel{
		renderer: NewRenderer(),
		x:        x,
		y:        y,
		width:    width,
		visible:  true,
	}
}

// SetPosition moves the panel.
func (c *ControlsPanel) SetPosition(x, y int32) {
	c.x, c.y = x, y
}

// Toggle switches panel visibility.
func (c *ControlsPanel) Toggle() bool {
	c.visible = !c.visible
	return c.visible
}

// Bounds returns the panel rectangle for the given registry, or an empty
// rectangle when hidden.
func (c *ControlsPanel) Bounds(overlays *OverlayRegistry) rl.Rectangle {
	if !c.visible {
		return rl.Rectangle{}
	}
	return rl.Rectangle{X: float32(c.x), Y: float32(c.y), Width: float32(c.width), Height: float32(c.height(overlays))}
}

func (c *ControlsPanel) height(overlays *OverlayRegistry) int32 {
	t := c.renderer.Theme
	items := 0
	for _, cat := range overlays.Categories() {
		items += len(overlays.ByCategory(cat)) + 1
	}
	return int32(items)*(t.LineHeight+2) + t.Padding*3 + t.LineHeight
}

// Draw renders the panel and applies clicks to the registry.
func (c *ControlsPanel) Draw(overlays *OverlayRegistry) {
	if !c.visible {
		return
	}
	r := c.renderer
	padding := r.Theme.Padding
	line := r.Theme.LineHeight + 2

	r.DrawPanel(c.x, c.y, c.width, c.height(overlays))
	y := c.y + padding
	rl.DrawText("Overlays", c.x+padding, y, 16, rl.White)
	y += r.Theme.LineHeight + 4

	for _, category := range overlays.Categories() {
		rl.DrawText(categoryLabel(category), c.x+padding, y, r.Theme.HeaderFontSize, r.Theme.SectionHeader)
		y += line
		for _, desc := range overlays.ByCategory(category) {
			box := rl.Rectangle{X: float32(c.x + padding), Y: float32(y), Width: 12, Height: 12}
			enabled := overlays.IsEnabled(desc.ID)
			if gui.CheckBox(box, desc.Name, enabled) != enabled {
				overlays.Toggle(desc.ID)
			}
			if desc.KeyLabel != "" {
				keyText := fmt.Sprintf("[%s]", desc.KeyLabel)
				keyWidth := rl.MeasureText(keyText, r.Theme.FontSize)
				rl.DrawText(keyText, c.x+c.width-padding-keyWidth, y, r.Theme.FontSize, rl.Gray)
			}
			y += line
		}
	}
}

func categoryLabel(cat string) string {
	switch cat {
	case "bodies":
		return "Bodies"
	case "constraints":
		return "Constraints"
	case "panels":
		return "Panels"
	default:
		return cat
	}
}
