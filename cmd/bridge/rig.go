package main

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/pthm-cable/pbd/components"
	"github.com/pthm-cable/pbd/config"
	"github.com/pthm-cable/pbd/constraints"
	"github.com/pthm-cable/pbd/geometry"
	"github.com/pthm-cable/pbd/solver"
)

// rig is a chain hanging from a swept kinematic anchor, held entirely
// through solver proxies.
type rig struct {
	cfg    config.ScenarioConfig
	anchor *solver.KinematicProxy
	links  []*solver.DynamicProxy
}

func at(x, y, z float64) components.Transform {
	return components.Transform{X: mgl64.Vec3{x, y, z}, R: mgl64.QuatIdent()}
}

func buildRig(s *solver.Solver, cfg config.ScenarioConfig) (*rig, error) {
	if cfg.Links < 1 {
		return nil, fmt.Errorf("links must be positive, got %d", cfg.Links)
	}
	sphere := geometry.NewSphere(cfg.LinkRadius)
	p, err := s.RegisterObject(components.KindKinematic, solver.ObjectState{Transform: at(0, 0, 0), Geometry: sphere})
	if err != nil {
		return nil, fmt.Errorf("register anchor: %w", err)
	}
	r := &rig{cfg: cfg, anchor: p.(*solver.KinematicProxy)}

	js := constraints.DefaultJointSettings()
	if cfg.SwingLimit > 0 {
		js.AngularMotion = [3]constraints.MotionType{constraints.MotionLocked, constraints.MotionLimited, constraints.MotionLimited}
		js.AngularLimits[constraints.Swing1] = cfg.SwingLimit
		js.AngularLimits[constraints.Swing2] = cfg.SwingLimit
	}
	// Twist runs down the chain.
	twistDown := mgl64.QuatRotate(math.Pi/2, mgl64.Vec3{0, 1, 0})

	var parent solver.Proxy = r.anchor
	for i := 1; i <= cfg.Links; i++ {
		z := -cfg.LinkLength * float64(i)
		state := solver.ObjectState{Transform: at(0, 0, z), Mass: cfg.LinkMass, Geometry: sphere}
		child, err := s.RegisterObject(components.KindDynamic, state)
		if err != nil {
			return nil, fmt.Errorf("register link %d: %w", i, err)
		}
		frame := components.Transform{X: mgl64.Vec3{0, 0, z + cfg.LinkLength/2}, R: twistDown}
		if _, err := s.AddJoint(parent, child, frame, js); err != nil {
			return nil, fmt.Errorf("join link %d: %w", i, err)
		}
		r.links = append(r.links, child.(*solver.DynamicProxy))
		parent = child
	}
	return r, nil
}

// sweep moves the anchor target along X for time t.
func (r *rig) sweep(s *solver.Solver, t float64) error {
	x := 0.0
	if r.cfg.AnchorPeriod > 0 {
		x = r.cfg.AnchorMotion * math.Sin(2*math.Pi*t/r.cfg.AnchorPeriod)
	}
	return s.SetKinematicTarget(r.anchor, at(x, 0, 0))
}

func (r *rig) tip() mgl64.Vec3 {
	return r.links[len(r.links)-1].State().Transform.X
}

// maxStretch returns the largest deviation of a link spacing from the rest
// length, as seen by the game side.
func (r *rig) maxStretch() float64 {
	worst := 0.0
	prev := r.anchor.State().Transform.X
	for _, l := range r.links {
		x := l.State().Transform.X
		worst = math.Max(worst, math.Abs(x.Sub(prev).Len()-r.cfg.LinkLength))
		prev = x
	}
	return worst
}

type sampleRecord struct {
	Frame      int64   `csv:"frame"`
	Time       float64 `csv:"time"`
	SubSteps   int     `csv:"sub_steps"`
	AnchorX    float64 `csv:"anchor_x"`
	TipX       float64 `csv:"tip_x"`
	TipY       float64 `csv:"tip_y"`
	TipZ       float64 `csv:"tip_z"`
	MaxStretch float64 `csv:"max_stretch"`
}

func (r *rig) sample(info solver.FrameInfo) sampleRecord {
	tip := r.tip()
	return sampleRecord{
		Frame:      info.Frame,
		Time:       info.Time,
		SubSteps:   info.SubSteps,
		AnchorX:    r.anchor.State().Transform.X.X(),
		TipX:       tip.X(),
		TipY:       tip.Y(),
		TipZ:       tip.Z(),
		MaxStretch: r.maxStretch(),
	}
}
