package telemetry

import (
	"testing"
	"time"
)

func TestPerfCollector_BasicTiming(t *testing.T) {
	pc := NewPerfCollector(10)

	for i := 0; i < 5; i++ {
		pc.StartStep()
		pc.StartPhase(PhaseIntegrate)
		time.Sleep(100 * time.Microsecond)
		pc.StartPhase(PhaseApply)
		time.Sleep(200 * time.Microsecond)
		pc.EndStep()
	}

	stats := pc.Stats()
	if stats.AvgStepDuration <= 0 {
		t.Error("expected positive average step duration")
	}
	for _, phase := range []string{PhaseIntegrate, PhaseApply} {
		if got := stats.PhaseAvg[phase]; got <= 0 {
			t.Errorf("%s average: got %v, want > 0", phase, got)
		}
		if got := stats.PhasePct[phase]; got <= 0 {
			t.Errorf("%s share: got %v%%, want > 0", phase, got)
		}
	}
}

func TestPerfCollector_RollingWindow(t *testing.T) {
	pc := NewPerfCollector(5)

	for i := 0; i < 10; i++ {
		pc.StartStep()
		pc.StartPhase(PhasePushOut)
		pc.EndStep()
	}

	stats := pc.Stats()
	if stats.AvgStepDuration <= 0 {
		t.Error("expected positive average step duration after window filled")
	}
	if stats.StepsPerSecond <= 0 {
		t.Error("expected positive steps per second")
	}
}

func TestPerfCollector_EmptyStats(t *testing.T) {
	pc := NewPerfCollector(10)
	stats := pc.Stats()

	if stats.AvgStepDuration != 0 {
		t.Error("expected zero avg step duration for empty collector")
	}
	if stats.PhaseAvg == nil || stats.PhasePct == nil {
		t.Error("expected non-nil phase maps")
	}
}

func TestPerfCollector_NilSafe(t *testing.T) {
	var pc *PerfCollector
	pc.StartStep()
	pc.StartPhase(PhaseApply)
	pc.EndStep()
	pc.RecordFrame()

	if stats := pc.Stats(); stats.PhasePct == nil {
		t.Error("expected non-nil phase map from nil collector")
	}
}

func TestPerfStats_ToCSV(t *testing.T) {
	stats := PerfStats{
		AvgStepDuration: 250 * time.Microsecond,
		PhasePct:        map[string]float64{PhaseApply: 40, PhasePushOut: 35},
	}
	row := stats.ToCSV(120)
	if row.Step != 120 || row.AvgStepUS != 250 {
		t.Errorf("row: got step %d avg %d, want 120 and 250", row.Step, row.AvgStepUS)
	}
	if row.ApplyPct != 40 || row.PushOutPct != 35 {
		t.Errorf("phase pct: got apply %f push_out %f, want 40 and 35", row.ApplyPct, row.PushOutPct)
	}
}

func TestPerfCollector_FrameTiming(t *testing.T) {
	pc := NewPerfCollector(10)

	pc.RecordFrame()
	time.Sleep(16 * time.Millisecond)
	pc.RecordFrame()

	stats := pc.Stats()
	if stats.FrameDuration < 15*time.Millisecond {
		t.Errorf("expected frame duration >= 15ms, got %v", stats.FrameDuration)
	}
	if stats.FPS < 20 || stats.FPS > 80 {
		t.Errorf("expected FPS between 20-80 with 16ms frame time, got %v", stats.FPS)
	}
}
