package simulation

import (
	"github.com/pthm-cable/pbd/components"
	"github.com/pthm-cable/pbd/particles"
	"github.com/pthm-cable/pbd/telemetry"
)

// Sample reads the solver state for a stats window.
func (s *Simulation) Sample() telemetry.Sample {
	sample := telemetry.Sample{
		Particles:     s.store.Count(),
		Active:        s.store.ActiveView().Len(),
		Joints:        s.joints.Len(),
		Springs:       s.springs.SpringCount(),
		JointErrors:   s.JointErrors(),
		KineticEnergy: s.evolution.KineticEnergy(),
	}
	s.store.NonDisabledDynamicView().Each(func(p particles.Particle) {
		if p.State == components.StateSleeping {
			sample.Sleeping++
		}
		sample.Speeds = append(sample.Speeds, p.V.Len())
	})
	return sample
}

// Snapshot captures every particle and joint.
func (s *Simulation) Snapshot(scenario string, step int64) *telemetry.Snapshot {
	g := s.evolution.Settings().Gravity
	snap := &telemetry.Snapshot{
		Version:  telemetry.SnapshotVersion,
		Scenario: scenario,
		Step:     step,
		SimTime:  s.evolution.Time(),
		Gravity:  [3]float64{g.X(), g.Y(), g.Z()},
	}

	s.store.AllView().Each(func(p particles.Particle) {
		r := p.R
		snap.Particles = append(snap.Particles, telemetry.ParticleState{
			ID:       p.Handle.ID(),
			Kind:     p.Kind.String(),
			State:    p.State.String(),
			Disabled: s.store.IsDisabled(p.Handle),
			Level:    int(p.Level),
			Mass:     p.M,
			X:        [3]float64(p.X),
			R:        [4]float64{r.W, r.V.X(), r.V.Y(), r.V.Z()},
			V:        [3]float64(p.V),
			W:        [3]float64(p.W),
		})
	})

	for i := 0; i < s.joints.Len(); i++ {
		pair := s.joints.ConstraintParticles(i)
		lin, ang := s.joints.JointError(i)
		snap.Joints = append(snap.Joints, telemetry.JointState{
			Index:        i,
			Parent:       pair[1].ID(),
			Child:        pair[0].ID(),
			Level:        s.joints.ConstraintLevel(i),
			LinearError:  lin,
			AngularError: ang,
		})
	}
	return snap
}
