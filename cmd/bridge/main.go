// Package main drives a swept chain through the threaded solver. Physics
// runs on its own goroutine; this one writes anchor targets through proxies
// and pulls results back each frame.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/pthm-cable/pbd/config"
	"github.com/pthm-cable/pbd/simulation"
	"github.com/pthm-cable/pbd/solver"
	"github.com/pthm-cable/pbd/telemetry"
)

func main() {
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	frames := flag.Int64("frames", 600, "Stop after N physics frames (0 = until interrupted)")
	realtime := flag.Bool("realtime", true, "Pace physics frames at the configured dt")
	outputDir := flag.String("output-dir", "", "Write a per-frame trajectory CSV here")
	logEvery := flag.Int64("log-every", 60, "Log the chain tip every N frames")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := config.Init(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg := config.Cfg()
	settings, err := simulation.SettingsFromConfig(cfg)
	if err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	s := solver.New(settings)
	perf := telemetry.NewPerfCollector(cfg.Telemetry.PerfWindow)
	s.SetPerfCollector(perf)

	r, err := buildRig(s, cfg.Scenario)
	if err != nil {
		log.Fatalf("failed to build chain: %v", err)
	}

	var samples *telemetry.CSVLog[sampleRecord]
	if *outputDir != "" {
		if err := os.MkdirAll(*outputDir, 0755); err != nil {
			log.Fatalf("failed to create output directory: %v", err)
		}
		samples, err = telemetry.OpenCSVLog[sampleRecord](*outputDir, "bridge.csv")
		if err != nil {
			log.Fatalf("failed to create trajectory log: %v", err)
		}
		defer samples.Close()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	dt := cfg.Evolution.DT
	interval := time.Duration(0)
	if *realtime {
		interval = time.Duration(dt * float64(time.Second))
	}
	// The game side polls faster than physics advances so no frame is missed.
	poll := time.NewTicker(max(interval/4, time.Millisecond))
	defer poll.Stop()

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, dt, interval) }()

	slog.Info("bridge running", "scenario", "chain", "links", cfg.Scenario.Links, "dt", dt, "frames", *frames)
	var lastFrame int64
	for running := true; running; {
		select {
		case <-ctx.Done():
			running = false
			continue
		case <-poll.C:
		}

		if s.PullFromPhysicsState() == 0 {
			continue
		}
		info := s.Pulled()
		if err := r.sweep(s, info.Time+dt); err != nil {
			slog.Error("anchor write failed", "error", err)
			break
		}
		if err := s.PushPhysicsState(); err != nil {
			slog.Error("push failed", "error", err)
			break
		}

		rec := r.sample(info)
		if samples != nil {
			if err := samples.Write(rec); err != nil {
				slog.Warn("trajectory write failed", "error", err)
			}
		}
		if *logEvery > 0 && info.Frame/(*logEvery) != lastFrame/(*logEvery) {
			slog.Info("chain", "frame", info.Frame, "time", info.Time, "anchor_x", rec.AnchorX,
				"tip", r.tip(), "max_stretch", rec.MaxStretch, "events", len(s.Events()))
		}
		lastFrame = info.Frame
		if *frames > 0 && info.Frame >= *frames {
			break
		}
	}

	s.Close()
	if err := <-done; err != nil && ctx.Err() == nil {
		slog.Error("solver stopped", "error", err)
	}
	// Perf is only read once the physics goroutine has returned.
	perf.Stats().LogStats()
	slog.Info("bridge stopped", "frame", s.Pulled().Frame)
}
