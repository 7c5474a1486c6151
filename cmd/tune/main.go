// Package main runs a CMA-ES search over joint solver settings, scoring each
// candidate by how well swept chains and pendulums hold their joints.
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gonum.org/v1/gonum/optimize"

	"github.com/pthm-cable/pbd/config"
	"github.com/pthm-cable/pbd/telemetry"
)

func main() {
	configPath := flag.String("config", "", "Base config YAML file (empty = use defaults)")
	frames := flag.Int("frames", 600, "Frames simulated per scenario run")
	scenarios := flag.String("scenarios", "chain,pendulum", "Comma-separated scenarios per evaluation")
	maxEvals := flag.Int("max-evals", 200, "Maximum number of evaluations")
	population := flag.Int("population", 0, "CMA-ES population size (0 = auto)")
	outputDir := flag.String("output", "", "Output directory for results")
	flag.Parse()

	if *outputDir == "" {
		log.Fatal("--output is required")
	}

	// Scenario builds log at info level.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatalf("failed to create output directory: %v", err)
	}
	if err := config.Init(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	baseCfg := config.Cfg()

	params := NewParamVector()
	evaluator := NewFitnessEvaluator(params, *frames, strings.Split(*scenarios, ","), baseCfg)

	evalLog, err := telemetry.OpenCSVLog[evalRecord](*outputDir, "tune_log.csv")
	if err != nil {
		log.Fatalf("failed to create log file: %v", err)
	}
	defer evalLog.Close()
	prog := newProgress(*maxEvals, evalLog)

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			raw := params.Denormalize(x)
			fitness := evaluator.Evaluate(raw)
			if err := prog.record(params.Clamp(raw), fitness, evaluator.LastJointError()); err != nil {
				slog.Warn("failed to write tune log", "error", err)
			}
			return fitness
		},
	}

	popSize := *population
	if popSize == 0 {
		popSize = 4 + 3*params.Dim()/2
	}
	method := &optimize.CmaEsChol{
		InitStepSize: 0.3,
		Population:   popSize,
	}
	// Evaluations stay sequential; each one already runs its scenarios in
	// parallel and the progress tracker is not locked.
	settings := &optimize.Settings{FuncEvaluations: *maxEvals}

	fmt.Printf("Starting CMA-ES tuning with %d parameters, population=%d, max_evals=%d\n",
		params.Dim(), popSize, *maxEvals)
	fmt.Printf("Scenarios per evaluation: %s, frames per run: %d\n", *scenarios, *frames)

	initX := params.Normalize(params.ExtractFromConfig(baseCfg))
	if _, err := optimize.Minimize(problem, initX, settings, method); err != nil {
		log.Printf("tuning ended: %v", err)
	}
	if prog.bestParams == nil {
		log.Fatal("no evaluation completed")
	}

	fmt.Printf("\nTuning complete after %d evaluations in %s\n", prog.evals, formatDuration(time.Since(prog.start)))
	fmt.Printf("Best fitness: %.6f\n", prog.bestFitness)
	fmt.Println("\nBest parameters:")
	for i, spec := range params.Specs {
		fmt.Printf("  %s: %.6f\n", spec.Path, prog.bestParams[i])
	}

	if err := writeBestConfig(*configPath, *outputDir, params, prog.bestParams); err != nil {
		log.Printf("failed to write best config: %v", err)
	}
}

// writeBestConfig reloads the base config, applies best and saves it as
// best_config.yaml in dir.
func writeBestConfig(configPath, dir string, params *ParamVector, best []float64) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	params.ApplyToConfig(cfg, best)

	path := filepath.Join(dir, "best_config.yaml")
	if err := cfg.WriteYAML(path); err != nil {
		return err
	}
	fmt.Printf("\nBest config saved to: %s\n", path)
	return nil
}
