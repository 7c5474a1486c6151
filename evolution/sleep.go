package evolution

import (
	"log/slog"

	"github.com/pthm-cable/pbd/components"
	"github.com/pthm-cable/pbd/constraints"
	"github.com/pthm-cable/pbd/graph"
	"github.com/pthm-cable/pbd/particles"
)

// updateSleep counts idle steps per body and puts whole islands to sleep
// once every member has idled long enough. An island with any awake member
// wakes all of its sleeping members. Bodies joined to a moving kinematic
// are held awake.
func (e *Evolution) updateSleep() {
	threshold := e.settings.SleepCounterThreshold
	if threshold <= 0 {
		return
	}

	handles := e.store.NonDisabledView().Handles()
	index := make(map[particles.Handle]int, len(handles))
	bodies := make([]particles.Particle, len(handles))
	dynamic := make([]bool, len(handles))
	for i, h := range handles {
		index[h] = i
		p := e.store.Get(h)
		bodies[i] = p
		rigid := p.Kind == components.KindDynamic || p.Kind == components.KindClustered
		dynamic[i] = rigid && (p.State == components.StateDynamic || p.State == components.StateSleeping)
	}

	var edges []graph.Edge
	for _, r := range e.rules {
		src, ok := r.(constraints.EdgeSource)
		if !ok {
			continue
		}
		for _, pair := range src.ConstraintPairs() {
			a, okA := index[pair[0]]
			b, okB := index[pair[1]]
			if okA && okB {
				edges = append(edges, graph.Edge{a, b})
			}
		}
	}

	linSq := e.settings.SleepLinearThreshold * e.settings.SleepLinearThreshold
	angSq := e.settings.SleepAngularThreshold * e.settings.SleepAngularThreshold
	for i, p := range bodies {
		if !dynamic[i] || p.State != components.StateDynamic {
			continue
		}
		if p.V.Dot(p.V) > linSq || p.W.Dot(p.W) > angSq {
			p.SleepCounter = 0
		} else {
			p.SleepCounter++
		}
	}
	for _, edge := range edges {
		for k, other := range [2]int{edge[1], edge[0]} {
			anchor := bodies[edge[k]]
			if dynamic[edge[k]] || (anchor.V.Dot(anchor.V) <= linSq && anchor.W.Dot(anchor.W) <= angSq) {
				continue
			}
			if dynamic[other] {
				bodies[other].SleepCounter = 0
			}
		}
	}

	island, count := graph.Islands(dynamic, edges)
	members := make([][]int, count)
	for i, id := range island {
		if id >= 0 {
			members[id] = append(members[id], i)
		}
	}

	for _, group := range members {
		awake, asleep, ready := 0, 0, true
		for _, i := range group {
			if bodies[i].State == components.StateSleeping {
				asleep++
				continue
			}
			awake++
			if int(bodies[i].SleepCounter) < threshold {
				ready = false
			}
		}
		switch {
		case awake > 0 && ready:
			for _, i := range group {
				if bodies[i].State != components.StateDynamic {
					continue
				}
				e.sleepParticle(handles[i])
			}
		case awake > 0 && asleep > 0:
			for _, i := range group {
				if bodies[i].State != components.StateSleeping {
					continue
				}
				e.wakeParticle(handles[i])
			}
		}
	}
}

func (e *Evolution) sleepParticle(h particles.Handle) {
	p := e.store.Get(h)
	p.X, p.R = p.P, p.Q
	if err := e.store.SetObjectState(h, components.StateSleeping); err != nil {
		slog.Warn("sleep failed", "particle", h, "error", err)
		return
	}
	e.RecordEvent(StepEvent{Kind: EventSleep, A: h, Time: e.time})
}

func (e *Evolution) wakeParticle(h particles.Handle) {
	if err := e.store.ActivateParticle(h); err != nil {
		slog.Warn("wake failed", "particle", h, "error", err)
		return
	}
	p := e.store.Get(h)
	p.P, p.Q = p.X, p.R
	e.RecordEvent(StepEvent{Kind: EventWake, A: h, Time: e.time})
}

// WakeParticle wakes a sleeping particle. Its island wakes with it on the
// next step.
func (e *Evolution) WakeParticle(h particles.Handle) error {
	if !e.store.Valid(h) {
		return particles.ErrStaleHandle
	}
	if e.store.Get(h).State != components.StateSleeping {
		return nil
	}
	e.wakeParticle(h)
	return nil
}
