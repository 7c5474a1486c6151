package main

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/pbd/config"
	"github.com/pthm-cable/pbd/game"
	"github.com/pthm-cable/pbd/monitor"
	"github.com/pthm-cable/pbd/telemetry"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	headless := flag.Bool("headless", false, "Run without graphics")
	tui := flag.Bool("tui", false, "Show a terminal dashboard (implies -headless)")
	logStats := flag.Bool("log-stats", false, "Output stats via slog")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs, snapshots and config")
	scenarioName := flag.String("scenario", "", "Scenario to run (empty = use config)")
	maxSteps := flag.Int64("max-steps", 0, "Stop after N frames (0 = unlimited)")

	flag.Parse()

	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()

	// Set up slog (JSON to stdout for structured logging). The dashboard
	// owns the terminal, so its logs go to a file in the output directory.
	var logOut io.Writer = os.Stdout
	if *tui {
		*headless = true
		logOut = io.Discard
		if *outputDir != "" {
			if err := os.MkdirAll(*outputDir, 0755); err == nil {
				if f, err := os.Create(filepath.Join(*outputDir, "run.log")); err == nil {
					defer f.Close()
					logOut = f
				}
			}
		}
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(logOut, nil)))
	slog.Info("config loaded", "config", cfg)

	opts := game.Options{
		Scenario:  *scenarioName,
		LogStats:  *logStats || cfg.Telemetry.LogStats,
		OutputDir: *outputDir,
		Headless:  *headless,
	}

	if *headless {
		runHeadless(cfg, opts, *tui, *maxSteps)
		return
	}

	// Graphical mode
	rl.SetConfigFlags(rl.FlagWindowResizable | rl.FlagMsaa4xHint)
	rl.InitWindow(int32(cfg.Screen.Width), int32(cfg.Screen.Height), "PBD Solver")
	defer rl.CloseWindow()
	rl.SetTargetFPS(int32(cfg.Screen.TargetFPS))

	g, err := game.NewGame(cfg, opts)
	if err != nil {
		slog.Error("failed to start", "error", err)
		return
	}
	defer g.Unload()

	for !rl.WindowShouldClose() {
		g.Update()
		g.Draw()

		if *maxSteps > 0 && g.Steps() >= *maxSteps {
			break
		}
	}
}

func runHeadless(cfg *config.Config, opts game.Options, tui bool, maxSteps int64) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	var mon *monitor.Monitor
	if tui {
		var err error
		mon, err = monitor.NewTerminal(cancel)
		if err != nil {
			slog.Error("failed to open terminal", "error", err)
			os.Exit(1)
		}
		monDone := make(chan struct{})
		go func() {
			mon.Run(ctx)
			close(monDone)
		}()
		defer func() {
			cancel()
			<-monDone
			mon.Close()
		}()
	}

	var g *game.Game
	if mon != nil {
		opts.StatsCallback = func(stats telemetry.WindowStats, perf telemetry.PerfStats) {
			mon.Publish(monitor.Frame{
				Scenario: g.ScenarioName(),
				Step:     g.Steps(),
				SimTime:  stats.SimTimeSec,
				SubSteps: g.LastSubSteps(),
				Stats:    stats,
				Perf:     perf,
			})
		}
	}

	g, err := game.NewGame(cfg, opts)
	if err != nil {
		slog.Error("failed to start", "error", err)
		return
	}
	defer g.Unload()

	slog.Info("starting headless simulation",
		"scenario", g.ScenarioName(),
		"max_steps", maxSteps,
	)
	for ctx.Err() == nil {
		g.UpdateHeadless()

		if maxSteps > 0 && g.Steps() >= maxSteps {
			slog.Info("max steps reached", "step", g.Steps())
			return
		}
	}
	slog.Info("run stopped", "step", g.Steps())
}
