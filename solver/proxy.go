package solver

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/pthm-cable/pbd/components"
	"github.com/pthm-cable/pbd/geometry"
	"github.com/pthm-cable/pbd/particles"
)

// ObjectState is the game-side copy of a body's state.
type ObjectState struct {
	Transform components.Transform
	V, W      mgl64.Vec3
	Mass      float64
	Geometry  geometry.Geometry
	Disabled  bool
	Sleeping  bool
}

// Proxy is the game-side identity of a registered body. The set of proxy
// types is closed: *StaticProxy, *KinematicProxy and *DynamicProxy.
type Proxy interface {
	ID() uint64
	Kind() components.Kind
	State() ObjectState
	// Handle returns the physics handle once a pull has seen the body.
	Handle() (particles.Handle, bool)
	Registered() bool

	base() *proxyBase
}

type proxyBase struct {
	id         uint64
	state      ObjectState
	handle     particles.Handle
	hasHandle  bool
	registered bool

	// Set by game-side writes until the next push.
	dirtyTransform bool
	dirtyVelocity  bool
	dirtyDisabled  bool
	queued         bool // In Solver.pending
}

func (p *proxyBase) ID() uint64                       { return p.id }
func (p *proxyBase) State() ObjectState               { return p.state }
func (p *proxyBase) Handle() (particles.Handle, bool) { return p.handle, p.hasHandle }
func (p *proxyBase) Registered() bool                 { return p.registered }
func (p *proxyBase) base() *proxyBase                 { return p }

// StaticProxy is a body that never moves.
type StaticProxy struct{ proxyBase }

// KinematicProxy is a body moved along targets set by the game.
type KinematicProxy struct {
	proxyBase
	target    components.Transform
	hasTarget bool
}

// DynamicProxy is a body moved by the solver.
type DynamicProxy struct{ proxyBase }

func (*StaticProxy) Kind() components.Kind    { return components.KindStatic }
func (*KinematicProxy) Kind() components.Kind { return components.KindKinematic }
func (*DynamicProxy) Kind() components.Kind   { return components.KindDynamic }
