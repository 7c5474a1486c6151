package evolution

import (
	"github.com/pthm-cable/pbd/constraints"
	"github.com/pthm-cable/pbd/particles"
)

// EventKind identifies a step event.
type EventKind uint8

const (
	EventSpringCreated EventKind = iota
	EventSpringDestroyed
	EventSleep
	EventWake
)

func (k EventKind) String() string {
	switch k {
	case EventSpringCreated:
		return "spring_created"
	case EventSpringDestroyed:
		return "spring_destroyed"
	case EventSleep:
		return "sleep"
	case EventWake:
		return "wake"
	}
	return "unknown"
}

// StepEvent is something that happened during a step. B is zero for
// single-particle events.
type StepEvent struct {
	Kind EventKind
	A, B particles.Handle
	Time float64
}

// RecordEvent appends an event to the write buffer.
func (e *Evolution) RecordEvent(ev StepEvent) {
	e.events[e.writeEvents] = append(e.events[e.writeEvents], ev)
}

// SpringEventHandler returns a handler that records spring events.
func (e *Evolution) SpringEventHandler() func(constraints.SpringEvent) {
	return func(ev constraints.SpringEvent) {
		kind := EventSpringDestroyed
		if ev.Created {
			kind = EventSpringCreated
		}
		e.RecordEvent(StepEvent{Kind: kind, A: ev.Pair[0], B: ev.Pair[1], Time: e.time})
	}
}

// FlipEvents makes the events recorded since the last flip readable and
// clears the buffer that will be written next.
func (e *Evolution) FlipEvents() {
	e.writeEvents = 1 - e.writeEvents
	e.events[e.writeEvents] = e.events[e.writeEvents][:0]
}

// Events returns the events made readable by the last FlipEvents. The slice
// is reused after the next flip.
func (e *Evolution) Events() []StepEvent {
	return e.events[1-e.writeEvents]
}
