// Package config provides configuration loading and access for the solver,
// the demo scenes and the viewer.
package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all configuration parameters.
type Config struct {
	Screen    ScreenConfig    `yaml:"screen"`
	Evolution EvolutionConfig `yaml:"evolution"`
	Joints    JointsConfig    `yaml:"joints"`
	Collision CollisionConfig `yaml:"collision"`
	Scenario  ScenarioConfig  `yaml:"scenario"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// ScreenConfig holds viewer window settings.
type ScreenConfig struct {
	Width     int `yaml:"width"`
	Height    int `yaml:"height"`
	TargetFPS int `yaml:"target_fps"`
}

// EvolutionConfig holds time stepping parameters.
type EvolutionConfig struct {
	DT                    float64   `yaml:"dt"`             // Frame length fed to Simulate
	MaxDeltaTime          float64   `yaml:"max_delta_time"` // Longest single sub-step
	MaxSubSteps           int       `yaml:"max_sub_steps"`
	Iterations            int       `yaml:"iterations"`
	PushOutIterations     int       `yaml:"push_out_iterations"`
	Gravity               []float64 `yaml:"gravity"`
	SleepLinearThreshold  float64   `yaml:"sleep_linear_threshold"`
	SleepAngularThreshold float64   `yaml:"sleep_angular_threshold"`
	SleepCounterThreshold int       `yaml:"sleep_counter_threshold"` // 0 disables sleeping
}

// JointsConfig holds the joint solver settings.
type JointsConfig struct {
	ApplyPairIterations        int     `yaml:"apply_pair_iterations"`
	ApplyPushOutPairIterations int     `yaml:"apply_push_out_pair_iterations"`
	SwingTwistAngleTolerance   float64 `yaml:"swing_twist_angle_tolerance"`
	MinParentMassRatio         float64 `yaml:"min_parent_mass_ratio"`
	MaxInertiaRatio            float64 `yaml:"max_inertia_ratio"`
	VelocitySolve              bool    `yaml:"velocity_solve"`
	EnableTwistLimits          bool    `yaml:"enable_twist_limits"`
	EnableSwingLimits          bool    `yaml:"enable_swing_limits"`
	EnableDrives               bool    `yaml:"enable_drives"`
	ProjectionPhase            string  `yaml:"projection_phase"` // none, apply, apply_push_out
	LinearProjection           float64 `yaml:"linear_projection"`
	AngularProjection          float64 `yaml:"angular_projection"`
	Stiffness                  float64 `yaml:"stiffness"` // 0 keeps per-joint stiffness
	DriveStiffness             float64 `yaml:"drive_stiffness"`
	SoftLinearStiffness        float64 `yaml:"soft_linear_stiffness"`
	SoftAngularStiffness       float64 `yaml:"soft_angular_stiffness"`
	Priority                   int     `yaml:"priority"`
}

// CollisionConfig holds dynamic spring parameters.
type CollisionConfig struct {
	CreationThreshold     float64 `yaml:"creation_threshold"`
	MaxSprings            int     `yaml:"max_springs"`
	Stiffness             float64 `yaml:"stiffness"`
	PushOutPairIterations int     `yaml:"push_out_pair_iterations"`
	Priority              int     `yaml:"priority"`
}

// ScenarioConfig selects and sizes the demo scene.
type ScenarioConfig struct {
	Name           string  `yaml:"name"` // chain, pendulum, pile, hanging
	Links          int     `yaml:"links"`
	LinkLength     float64 `yaml:"link_length"`
	LinkRadius     float64 `yaml:"link_radius"`
	LinkMass       float64 `yaml:"link_mass"`
	SwingLimit     float64 `yaml:"swing_limit"` // Radians
	PileCount      int     `yaml:"pile_count"`
	PileRadius     float64 `yaml:"pile_radius"`
	AnchorMotion   float64 `yaml:"anchor_motion"` // Amplitude of the kinematic anchor sweep
	AnchorPeriod   float64 `yaml:"anchor_period"`
	IgnoreNeighbor bool    `yaml:"ignore_neighbor"` // Ignore collisions between jointed links
}

// TelemetryConfig holds stats and perf window settings.
type TelemetryConfig struct {
	StatsWindow  float64 `yaml:"stats_window"` // Seconds of sim time per stats row
	PerfWindow   int     `yaml:"perf_window"`  // Steps averaged by the perf collector
	LogStats     bool    `yaml:"log_stats"`
	PerfCSVEvery int     `yaml:"perf_csv_every"` // Steps between perf.csv rows
}

// DerivedConfig holds values computed from the loaded config.
type DerivedConfig struct {
	ScreenW32  float32
	ScreenH32  float32
	Gravity    [3]float64
	StatsEvery int // Frames per stats window
}

// LogValue implements slog.LogValuer.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("scenario", c.Scenario.Name),
		slog.Float64("dt", c.Evolution.DT),
		slog.Float64("max_delta_time", c.Evolution.MaxDeltaTime),
		slog.Int("iterations", c.Evolution.Iterations),
		slog.Int("push_out_iterations", c.Evolution.PushOutIterations),
		slog.Int("pair_iterations", c.Joints.ApplyPairIterations),
		slog.String("projection_phase", c.Joints.ProjectionPhase),
	)
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Only overwrites fields present in the file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.computeDerived()
	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.Evolution.Gravity) != 3 {
		return fmt.Errorf("evolution.gravity: want 3 components, got %d", len(c.Evolution.Gravity))
	}
	if c.Evolution.DT <= 0 {
		return fmt.Errorf("evolution.dt must be positive, got %g", c.Evolution.DT)
	}
	if c.Evolution.Iterations < 0 || c.Evolution.PushOutIterations < 0 {
		return fmt.Errorf("evolution iterations must not be negative")
	}
	switch c.Joints.ProjectionPhase {
	case "none", "apply", "apply_push_out":
	default:
		return fmt.Errorf("joints.projection_phase: unknown phase %q", c.Joints.ProjectionPhase)
	}
	return nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	c.Derived.ScreenW32 = float32(c.Screen.Width)
	c.Derived.ScreenH32 = float32(c.Screen.Height)
	copy(c.Derived.Gravity[:], c.Evolution.Gravity)

	c.Derived.StatsEvery = int(c.Telemetry.StatsWindow/c.Evolution.DT + 0.5)
	if c.Derived.StatsEvery < 1 {
		c.Derived.StatsEvery = 1
	}
	if c.Telemetry.PerfWindow < 1 {
		c.Telemetry.PerfWindow = 60
	}
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
