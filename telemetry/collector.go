// Package telemetry provides solver timing, window statistics, bookmarks
// and snapshots.
package telemetry

// Collector accumulates solver events within a window of steps and
// produces WindowStats.
type Collector struct {
	windowSteps int64
	dt          float64

	windowStart int64

	subSteps         int
	springsCreated   int
	springsDestroyed int
	sleeps           int
	wakes            int
}

// NewCollector creates a collector whose windows last windowDurationSec of
// simulated time at dt seconds per step.
func NewCollector(windowDurationSec, dt float64) *Collector {
	steps := int64(1)
	if dt > 0 {
		steps = int64(windowDurationSec/dt + 0.5)
	}
	if steps < 1 {
		steps = 1
	}
	return &Collector{windowSteps: steps, dt: dt}
}

// RecordSubSteps adds the sub-steps one frame took.
func (c *Collector) RecordSubSteps(n int) { c.subSteps += n }

// RecordSpringCreated counts a spring creation.
func (c *Collector) RecordSpringCreated() { c.springsCreated++ }

// RecordSpringDestroyed counts a spring removal.
func (c *Collector) RecordSpringDestroyed() { c.springsDestroyed++ }

// RecordSleep counts a particle falling asleep.
func (c *Collector) RecordSleep() { c.sleeps++ }

// RecordWake counts a particle waking up.
func (c *Collector) RecordWake() { c.wakes++ }

// ShouldFlush returns true if enough steps have passed to flush the window.
func (c *Collector) ShouldFlush(step int64) bool {
	return step-c.windowStart >= c.windowSteps
}

// Flush produces a WindowStats from the event counters and a sample taken
// at step, then resets the counters for the next window.
func (c *Collector) Flush(step int64, simTime float64, s Sample) WindowStats {
	errs := ComputeDistribution(s.JointErrors)
	speeds := ComputeDistribution(s.Speeds)

	stats := WindowStats{
		WindowStartStep: c.windowStart,
		WindowEndStep:   step,
		SimTimeSec:      simTime,

		Particles: s.Particles,
		Active:    s.Active,
		Sleeping:  s.Sleeping,
		Joints:    s.Joints,
		Springs:   s.Springs,

		SubSteps:         c.subSteps,
		SpringsCreated:   c.springsCreated,
		SpringsDestroyed: c.springsDestroyed,
		SleepEvents:      c.sleeps,
		WakeEvents:       c.wakes,

		JointErrMean: errs.Mean,
		JointErrStd:  errs.Std,
		JointErrP50:  errs.P50,
		JointErrP90:  errs.P90,
		JointErrMax:  errs.Max,

		SpeedMean: speeds.Mean,
		SpeedMax:  speeds.Max,

		KineticEnergy: s.KineticEnergy,
	}

	c.windowStart = step
	c.subSteps = 0
	c.springsCreated = 0
	c.springsDestroyed = 0
	c.sleeps = 0
	c.wakes = 0

	return stats
}

// WindowSteps returns the number of steps per window.
func (c *Collector) WindowSteps() int64 {
	return c.windowSteps
}
