package solver

import (
	"sync"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/pthm-cable/pbd/components"
	"github.com/pthm-cable/pbd/constraints"
)

// Command is a unit of work sent from the game side to the physics side.
// The set of commands is closed.
type Command interface {
	command()
}

type createParticle struct {
	id    uint64
	kind  components.Kind
	state ObjectState
}

type destroyParticle struct {
	id uint64
}

type setTransform struct {
	id uint64
	xf components.Transform
}

type setVelocity struct {
	id   uint64
	v, w mgl64.Vec3
}

type setDisabled struct {
	id       uint64
	disabled bool
}

type setKinematicTarget struct {
	id uint64
	xf components.Transform
}

type addJoint struct {
	id            uint64
	parent, child uint64
	world         components.Transform
	settings      constraints.JointSettings
}

type removeJoint struct {
	id uint64
}

func (createParticle) command()     {}
func (destroyParticle) command()    {}
func (setTransform) command()       {}
func (setVelocity) command()        {}
func (setDisabled) command()        {}
func (setKinematicTarget) command() {}
func (addJoint) command()           {}
func (removeJoint) command()        {}

// CommandQueue is a FIFO safe for many producers and one consumer.
type CommandQueue struct {
	mu     sync.Mutex
	items  []Command
	closed bool
}

// NewCommandQueue creates an empty queue.
func NewCommandQueue() *CommandQueue {
	return &CommandQueue{}
}

// Enqueue appends a command. It never blocks on the consumer.
func (q *CommandQueue) Enqueue(c Command) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	q.items = append(q.items, c)
	return nil
}

// Drain moves every queued command into buf, in enqueue order, and
// returns it.
func (q *CommandQueue) Drain(buf []Command) []Command {
	q.mu.Lock()
	defer q.mu.Unlock()
	buf = append(buf, q.items...)
	clear(q.items)
	q.items = q.items[:0]
	return buf
}

// Len returns the number of queued commands.
func (q *CommandQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close rejects further commands. Queued commands can still be drained.
func (q *CommandQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}

// Closed reports whether Close was called.
func (q *CommandQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
