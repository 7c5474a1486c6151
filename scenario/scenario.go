// Package scenario builds demo scenes into a simulation.
package scenario

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/pthm-cable/pbd/components"
	"github.com/pthm-cable/pbd/config"
	"github.com/pthm-cable/pbd/constraints"
	"github.com/pthm-cable/pbd/geometry"
	"github.com/pthm-cable/pbd/simulation"
)

// ErrUnknownScenario is returned by Build for a name it does not know.
var ErrUnknownScenario = errors.New("unknown scenario")

// Scene is a built scenario. The anchor, if any, is a kinematic actor
// driven by Update.
type Scene struct {
	Name      string
	Anchor    simulation.Actor
	HasAnchor bool
	Bodies    []simulation.Actor
	Joints    []*constraints.JointHandle
	Ground    simulation.Actor

	anchorRest   components.Transform
	anchorMotion float64
	anchorPeriod float64
}

type builder func(sim *simulation.Simulation, cfg config.ScenarioConfig) (*Scene, error)

var builders = map[string]builder{
	"chain":    buildChain,
	"pendulum": buildPendulum,
	"pile":     buildPile,
	"hanging":  buildHanging,
}

// Names lists the known scenarios in a fixed order.
func Names() []string {
	return []string{"chain", "pendulum", "pile", "hanging"}
}

// Build creates the named scenario in sim.
func Build(sim *simulation.Simulation, cfg config.ScenarioConfig) (*Scene, error) {
	b, ok := builders[cfg.Name]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownScenario, cfg.Name)
	}
	scene, err := b(sim, cfg)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", cfg.Name, err)
	}
	scene.Name = cfg.Name
	sim.ConditionConstraints()
	slog.Info("scenario built",
		"name", scene.Name,
		"bodies", len(scene.Bodies),
		"joints", len(scene.Joints),
	)
	return scene, nil
}

// Update moves the anchor along its sweep for the frame ending at t.
func (s *Scene) Update(sim *simulation.Simulation, t float64) error {
	if !s.HasAnchor || s.anchorMotion == 0 || s.anchorPeriod <= 0 {
		return nil
	}
	target := s.anchorRest
	offset := s.anchorMotion * math.Sin(2*math.Pi*t/s.anchorPeriod)
	target.X = target.X.Add(mgl64.Vec3{offset, 0, 0})
	return sim.SetKinematicTarget(s.Anchor, target)
}

func at(x, y, z float64) components.Transform {
	return components.Transform{X: mgl64.Vec3{x, y, z}, R: mgl64.QuatIdent()}
}

// chainFrame orients a joint so its twist axis runs down the chain.
func chainFrame(x mgl64.Vec3) components.Transform {
	return components.Transform{X: x, R: mgl64.QuatRotate(math.Pi/2, mgl64.Vec3{0, 1, 0})}
}

func swingJoint(limit float64) constraints.JointSettings {
	js := constraints.DefaultJointSettings()
	if limit > 0 {
		js.AngularMotion[constraints.Twist] = constraints.MotionLocked
		js.AngularMotion[constraints.Swing1] = constraints.MotionLimited
		js.AngularMotion[constraints.Swing2] = constraints.MotionLimited
		js.AngularLimits[constraints.Swing1] = limit
		js.AngularLimits[constraints.Swing2] = limit
	}
	return js
}

func buildChain(sim *simulation.Simulation, cfg config.ScenarioConfig) (*Scene, error) {
	if cfg.Links < 1 {
		return nil, fmt.Errorf("links must be positive, got %d", cfg.Links)
	}
	anchor, err := sim.CreateActor(components.KindKinematic, geometry.NewSphere(cfg.LinkRadius), 0, at(0, 0, 0))
	if err != nil {
		return nil, err
	}
	scene := &Scene{
		Anchor:       anchor,
		HasAnchor:    true,
		anchorRest:   at(0, 0, 0),
		anchorMotion: cfg.AnchorMotion,
		anchorPeriod: cfg.AnchorPeriod,
	}

	js := swingJoint(cfg.SwingLimit)
	var ignore []simulation.IgnorePair
	parent := anchor
	for i := 1; i <= cfg.Links; i++ {
		z := -cfg.LinkLength * float64(i)
		child, err := sim.CreateActor(components.KindDynamic, geometry.NewSphere(cfg.LinkRadius), cfg.LinkMass, at(0, 0, z))
		if err != nil {
			return nil, err
		}
		jh, err := sim.CreateJoint(parent, child, chainFrame(mgl64.Vec3{0, 0, z + cfg.LinkLength/2}), js)
		if err != nil {
			return nil, err
		}
		scene.Bodies = append(scene.Bodies, child)
		scene.Joints = append(scene.Joints, jh)
		if cfg.IgnoreNeighbor {
			ignore = append(ignore, simulation.IgnorePair{A: parent, B: child})
		}
		parent = child
	}
	sim.SetIgnoreCollisionPairTable(ignore)
	return scene, nil
}

func buildPendulum(sim *simulation.Simulation, cfg config.ScenarioConfig) (*Scene, error) {
	anchor, err := sim.CreateActor(components.KindKinematic, geometry.NewSphere(cfg.LinkRadius), 0, at(0, 0, 0))
	if err != nil {
		return nil, err
	}
	// The bob starts tilted past the swing limit, so the limit engages on
	// the first swing.
	theta := cfg.SwingLimit
	if theta <= 0 {
		theta = math.Pi / 4
	}
	theta *= 1.2
	tilt := mgl64.QuatRotate(theta, mgl64.Vec3{0, 1, 0})
	start := components.Transform{X: tilt.Rotate(mgl64.Vec3{0, 0, -cfg.LinkLength}), R: tilt}
	bob, err := sim.CreateActor(components.KindDynamic, geometry.NewSphere(cfg.LinkRadius), cfg.LinkMass, start)
	if err != nil {
		return nil, err
	}
	jh, err := sim.CreateJointLocal(anchor, bob, chainFrame(mgl64.Vec3{}), chainFrame(mgl64.Vec3{0, 0, cfg.LinkLength}), swingJoint(cfg.SwingLimit))
	if err != nil {
		return nil, err
	}
	sim.SetIgnoreCollisionPairTable([]simulation.IgnorePair{{A: anchor, B: bob}})
	return &Scene{
		Anchor:       anchor,
		HasAnchor:    true,
		Bodies:       []simulation.Actor{bob},
		Joints:       []*constraints.JointHandle{jh},
		anchorRest:   at(0, 0, 0),
		anchorMotion: cfg.AnchorMotion,
		anchorPeriod: cfg.AnchorPeriod,
	}, nil
}

// buildPile drops a column of spheres onto a static slab. Every sphere may
// spring against the ground and its nearby neighbours.
func buildPile(sim *simulation.Simulation, cfg config.ScenarioConfig) (*Scene, error) {
	if cfg.PileCount < 1 {
		return nil, fmt.Errorf("pile_count must be positive, got %d", cfg.PileCount)
	}
	r := cfg.PileRadius
	half := mgl64.Vec3{20 * r, 20 * r, r}
	ground, err := sim.CreateActor(components.KindStatic, geometry.NewBox(half), 0, at(0, 0, -r))
	if err != nil {
		return nil, err
	}
	scene := &Scene{Ground: ground}

	for i := 0; i < cfg.PileCount; i++ {
		// Alternate a small sideways offset so the column topples.
		dx := 0.1 * r * float64(i%2*2-1)
		z := r + float64(i)*2.05*r
		b, err := sim.CreateActor(components.KindDynamic, geometry.NewSphere(r), cfg.LinkMass, at(dx, 0, z))
		if err != nil {
			return nil, err
		}
		if _, err := sim.AddSpringPair(b, ground); err != nil {
			return nil, err
		}
		scene.Bodies = append(scene.Bodies, b)
	}
	// Spheres two places apart in the column can still meet once it topples.
	if _, err := sim.AddSpringPairsWithin(scene.Bodies, 4.5*r); err != nil {
		return nil, err
	}
	return scene, nil
}

// buildHanging is a single body held below a kinematic anchor by a locked
// joint at the body's own origin.
func buildHanging(sim *simulation.Simulation, cfg config.ScenarioConfig) (*Scene, error) {
	anchor, err := sim.CreateActor(components.KindKinematic, geometry.NewSphere(1), 0, at(0, 0, 0))
	if err != nil {
		return nil, err
	}
	body, err := sim.CreateActor(components.KindDynamic, geometry.NewSphere(1), 1, at(0, 0, -10))
	if err != nil {
		return nil, err
	}
	jh, err := sim.CreateJoint(anchor, body, at(0, 0, -10), constraints.LockedJointSettings())
	if err != nil {
		return nil, err
	}
	return &Scene{
		Anchor:     anchor,
		HasAnchor:  true,
		Bodies:     []simulation.Actor{body},
		Joints:     []*constraints.JointHandle{jh},
		anchorRest: at(0, 0, 0),
	}, nil
}
