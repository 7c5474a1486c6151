package ui

import (
	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/pbd/renderer"
)

// OverlayID uniquely identifies an overlay.
type OverlayID string

// Standard overlay IDs.
const (
	OverlayParticles   OverlayID = "particles"
	OverlayWireframe   OverlayID = "wireframe"
	OverlayLevelColors OverlayID = "level_colors"
	OverlayJoints      OverlayID = "joints"
	OverlaySprings     OverlayID = "springs"
	OverlayGrid        OverlayID = "grid"
	OverlayStats       OverlayID = "stats"
	OverlayPerf        OverlayID = "perf"
)

// OverlayDescriptor defines an overlay that can be toggled.
type OverlayDescriptor struct {
	ID       OverlayID
	Name     string
	Key      int32  // Keyboard key to toggle (0 = no key)
	KeyLabel string // Key label for display (e.g., "J")
	Category string // "bodies", "constraints" or "panels"
	Default  bool
}

// OverlayRegistry manages overlay state and metadata.
type OverlayRegistry struct {
	descriptors []OverlayDescriptor
	byID        map[OverlayID]OverlayDescriptor
	enabled     map[OverlayID]bool
}

// NewOverlayRegistry creates a registry with the default overlays.
func NewOverlayRegistry() *OverlayRegistry {
	reg := &OverlayRegistry{
		byID:    make(map[OverlayID]OverlayDescriptor),
		enabled: make(map[OverlayID]bool),
	}
	reg.registerDefaults()
	return reg
}

func (r *OverlayRegistry) registerDefaults() {
	r.Register(OverlayDescriptor{ID: OverlayParticles, Name: "Bodies", Key: rl.KeyB, KeyLabel: "B", Category: "bodies", Default: true})
	r.Register(OverlayDescriptor{ID: OverlayWireframe, Name: "Wireframe", Key: rl.KeyW, KeyLabel: "W", Category: "bodies"})
	r.Register(OverlayDescriptor{ID: OverlayLevelColors, Name: "Level Colors", Key: rl.KeyL, KeyLabel: "L", Category: "bodies"})
	r.Register(OverlayDescriptor{ID: OverlayJoints, Name: "Joints", Key: rl.KeyJ, KeyLabel: "J", Category: "constraints", Default: true})
	r.Register(OverlayDescriptor{ID: OverlaySprings, Name: "Springs", Key: rl.KeyK, KeyLabel: "K", Category: "constraints", Default: true})
	r.Register(OverlayDescriptor{ID: OverlayGrid, Name: "Ground Grid", Key: rl.KeyG, KeyLabel: "G", Category: "panels", Default: true})
	r.Register(OverlayDescriptor{ID: OverlayStats, Name: "Stats", Key: rl.KeyT, KeyLabel: "T", Category: "panels", Default: true})
	r.Register(OverlayDescriptor{ID: OverlayPerf, Name: "Perf", Key: rl.KeyF, KeyLabel: "F", Category: "panels"})
}

// Register adds an overlay to the registry.
func (r *OverlayRegistry) Register(desc OverlayDescriptor) {
	r.descriptors = append(r.descriptors, desc)
	r.byID[desc.ID] = desc
	r.enabled[desc.ID] = desc.Default
}

// Toggle switches an overlay on or off and returns the new state.
func (r *OverlayRegistry) Toggle(id OverlayID) bool {
	if _, ok := r.byID[id]; !ok {
		return false
	}
	r.enabled[id] = !r.enabled[id]
	return r.enabled[id]
}

// SetEnabled explicitly sets an overlay's state.
func (r *OverlayRegistry) SetEnabled(id OverlayID, enabled bool) {
	if _, ok := r.byID[id]; ok {
		r.enabled[id] = enabled
	}
}

// IsEnabled returns whether an overlay is active.
func (r *OverlayRegistry) IsEnabled(id OverlayID) bool {
	return r.enabled[id]
}

// ByCategory returns overlays filtered by category.
func (r *OverlayRegistry) ByCategory(category string) []OverlayDescriptor {
	var result []OverlayDescriptor
	for _, desc := range r.descriptors {
		if desc.Category == category {
			result = append(result, desc)
		}
	}
	return result
}

// Categories returns all unique categories in registration order.
func (r *OverlayRegistry) Categories() []string {
	seen := make(map[string]bool)
	var cats []string
	for _, desc := range r.descriptors {
		if !seen[desc.Category] {
			seen[desc.Category] = true
			cats = append(cats, desc.Category)
		}
	}
	return cats
}

// HandleKeys toggles every overlay whose key was pressed this frame.
func (r *OverlayRegistry) HandleKeys() {
	for _, desc := range r.descriptors {
		if desc.Key != 0 && rl.IsKeyPressed(desc.Key) {
			r.Toggle(desc.ID)
		}
	}
}

// ApplyTo copies the body and constraint layers into renderer options.
func (r *OverlayRegistry) ApplyTo(opts *renderer.Options) {
	opts.Particles = r.enabled[OverlayParticles]
	opts.Wireframe = r.enabled[OverlayWireframe]
	opts.ColorLevel = r.enabled[OverlayLevelColors]
	opts.Joints = r.enabled[OverlayJoints]
	opts.Springs = r.enabled[OverlaySprings]
}
