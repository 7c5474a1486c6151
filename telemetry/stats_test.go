package telemetry

import (
	"math"
	"testing"
)

func TestComputeDistribution(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   Distribution
	}{
		{"empty", nil, Distribution{}},
		{"single", []float64{4}, Distribution{Mean: 4, P10: 4, P50: 4, P90: 4, Max: 4}},
		{
			"one to ten unsorted",
			[]float64{10, 3, 1, 7, 2, 9, 4, 8, 6, 5},
			Distribution{Mean: 5.5, Std: math.Sqrt(8.25), P10: 1, P50: 5, P90: 9, Max: 10},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeDistribution(tt.values)
			check := func(field string, got, want float64) {
				if math.Abs(got-want) > 1e-9 {
					t.Errorf("%s: got %f, want %f", field, got, want)
				}
			}
			check("mean", got.Mean, tt.want.Mean)
			check("std", got.Std, tt.want.Std)
			check("p10", got.P10, tt.want.P10)
			check("p50", got.P50, tt.want.P50)
			check("p90", got.P90, tt.want.P90)
			check("max", got.Max, tt.want.Max)
		})
	}
}

func TestComputeDistributionLeavesInputUnsorted(t *testing.T) {
	values := []float64{3, 1, 2}
	ComputeDistribution(values)
	if values[0] != 3 || values[1] != 1 || values[2] != 2 {
		t.Errorf("input reordered: %v", values)
	}
}

func TestCollectorWindow(t *testing.T) {
	c := NewCollector(1.0, 1.0/60)
	if c.WindowSteps() != 60 {
		t.Fatalf("window steps: got %d, want 60", c.WindowSteps())
	}
	if c.ShouldFlush(59) {
		t.Error("flush requested before the window ended")
	}
	if !c.ShouldFlush(60) {
		t.Error("flush not requested at the end of the window")
	}

	c.RecordSubSteps(2)
	c.RecordSubSteps(3)
	c.RecordSpringCreated()
	c.RecordSpringCreated()
	c.RecordSpringDestroyed()
	c.RecordSleep()
	c.RecordWake()

	stats := c.Flush(60, 1.0, Sample{
		Particles:     3,
		Active:        2,
		Sleeping:      1,
		Joints:        2,
		JointErrors:   []float64{0.1, 0.3},
		Speeds:        []float64{1, 3},
		KineticEnergy: 5,
	})
	if stats.WindowStartStep != 0 || stats.WindowEndStep != 60 {
		t.Errorf("window: got [%d, %d], want [0, 60]", stats.WindowStartStep, stats.WindowEndStep)
	}
	if stats.SubSteps != 5 || stats.SpringsCreated != 2 || stats.SpringsDestroyed != 1 {
		t.Errorf("counters: got sub_steps %d created %d destroyed %d, want 5, 2, 1",
			stats.SubSteps, stats.SpringsCreated, stats.SpringsDestroyed)
	}
	if stats.SleepEvents != 1 || stats.WakeEvents != 1 {
		t.Errorf("sleep/wake: got %d/%d, want 1/1", stats.SleepEvents, stats.WakeEvents)
	}
	if math.Abs(stats.JointErrMean-0.2) > 1e-9 || stats.JointErrMax != 0.3 {
		t.Errorf("joint error: got mean %f max %f, want 0.2 and 0.3", stats.JointErrMean, stats.JointErrMax)
	}
	if stats.SpeedMean != 2 || stats.SpeedMax != 3 {
		t.Errorf("speed: got mean %f max %f, want 2 and 3", stats.SpeedMean, stats.SpeedMax)
	}

	next := c.Flush(120, 2.0, Sample{})
	if next.WindowStartStep != 60 || next.SubSteps != 0 || next.SpringsCreated != 0 {
		t.Errorf("counters not reset: %+v", next)
	}
	if c.ShouldFlush(150) {
		t.Error("flush requested mid-window after reset")
	}
}
