package ballista

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/akmonengine/ballista/actor"
	"github.com/akmonengine/ballista/solver"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig reports a configuration that cannot build a world.
var ErrInvalidConfig = errors.New("invalid config")

const (
	BroadphaseNaive = "naive"
	BroadphaseSAP   = "sap"
	BroadphaseGrid  = "grid"

	SolverGS    = "gs"
	SolverSplit = "split"
)

type BroadphaseConfig struct {
	Kind             string `toml:"kind" yaml:"kind"`
	UseBoundingBoxes bool   `toml:"use_bounding_boxes" yaml:"use_bounding_boxes"`
	// SAP only
	AutoDetectAxis bool `toml:"auto_detect_axis" yaml:"auto_detect_axis"`
	Axis           int  `toml:"axis" yaml:"axis"`
	// Grid only
	GridMin  [3]float64 `toml:"grid_min" yaml:"grid_min"`
	GridMax  [3]float64 `toml:"grid_max" yaml:"grid_max"`
	GridBins [3]int     `toml:"grid_bins" yaml:"grid_bins"`
}

type SolverConfig struct {
	Kind       string  `toml:"kind" yaml:"kind"`
	Iterations int     `toml:"iterations" yaml:"iterations"`
	Tolerance  float64 `toml:"tolerance" yaml:"tolerance"`
	// Workers solves islands in parallel with the split solver
	Workers int `toml:"workers" yaml:"workers"`
}

type ContactMaterialConfig struct {
	Friction           float64 `toml:"friction" yaml:"friction"`
	Restitution        float64 `toml:"restitution" yaml:"restitution"`
	ContactStiffness   float64 `toml:"contact_stiffness" yaml:"contact_stiffness"`
	ContactRelaxation  float64 `toml:"contact_relaxation" yaml:"contact_relaxation"`
	FrictionStiffness  float64 `toml:"friction_stiffness" yaml:"friction_stiffness"`
	FrictionRelaxation float64 `toml:"friction_relaxation" yaml:"friction_relaxation"`
}

// Config holds everything needed to build a World.
type Config struct {
	Gravity           [3]float64            `toml:"gravity" yaml:"gravity"`
	Broadphase        BroadphaseConfig      `toml:"broadphase" yaml:"broadphase"`
	Solver            SolverConfig          `toml:"solver" yaml:"solver"`
	AllowSleep        bool                  `toml:"allow_sleep" yaml:"allow_sleep"`
	QuatNormalizeSkip int                   `toml:"quat_normalize_skip" yaml:"quat_normalize_skip"`
	QuatNormalizeFast bool                  `toml:"quat_normalize_fast" yaml:"quat_normalize_fast"`
	MaxSubSteps       int                   `toml:"max_sub_steps" yaml:"max_sub_steps"`
	Workers           int                   `toml:"workers" yaml:"workers"`
	FrictionReduction bool                  `toml:"friction_reduction" yaml:"friction_reduction"`
	ContactMaterial   ContactMaterialConfig `toml:"contact_material" yaml:"contact_material"`
	LogLevel          string                `toml:"log_level" yaml:"log_level"`
}

func DefaultConfig() Config {
	return Config{
		Gravity: [3]float64{0, 0, -9.82},
		Broadphase: BroadphaseConfig{
			Kind:     BroadphaseNaive,
			GridMin:  [3]float64{-100, -100, -100},
			GridMax:  [3]float64{100, 100, 100},
			GridBins: [3]int{10, 10, 10},
		},
		Solver: SolverConfig{
			Kind:       SolverGS,
			Iterations: 10,
			Tolerance:  1e-7,
			Workers:    1,
		},
		MaxSubSteps: 10,
		Workers:     1,
		ContactMaterial: ContactMaterialConfig{
			Friction:           0.3,
			Restitution:        0,
			ContactStiffness:   1e7,
			ContactRelaxation:  3,
			FrictionStiffness:  1e7,
			FrictionRelaxation: 3,
		},
		LogLevel: "info",
	}
}

// LoadConfig reads a .toml, .yaml or .yml file over the defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	cfg, err := DecodeConfig(bytes.NewReader(data), format)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// DecodeConfig decodes a toml or yaml document over the defaults. Unknown
// keys are rejected.
func DecodeConfig(r io.Reader, format string) (Config, error) {
	cfg := DefaultConfig()
	switch format {
	case "toml":
		dec := toml.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	case "yaml", "yml":
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	default:
		return Config{}, fmt.Errorf("%w: unknown format %q", ErrInvalidConfig, format)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	for _, g := range c.Gravity {
		if math.IsNaN(g) || math.IsInf(g, 0) {
			return fmt.Errorf("%w: gravity %v", ErrInvalidConfig, c.Gravity)
		}
	}
	switch c.Broadphase.Kind {
	case BroadphaseNaive, BroadphaseSAP, BroadphaseGrid:
	default:
		return fmt.Errorf("%w: broadphase %q", ErrInvalidConfig, c.Broadphase.Kind)
	}
	if c.Broadphase.Axis < 0 || c.Broadphase.Axis > 2 {
		return fmt.Errorf("%w: sap axis %d", ErrInvalidConfig, c.Broadphase.Axis)
	}
	switch c.Solver.Kind {
	case SolverGS, SolverSplit:
	default:
		return fmt.Errorf("%w: solver %q", ErrInvalidConfig, c.Solver.Kind)
	}
	if c.Solver.Iterations <= 0 {
		return fmt.Errorf("%w: solver iterations %d", ErrInvalidConfig, c.Solver.Iterations)
	}
	if c.Solver.Tolerance < 0 {
		return fmt.Errorf("%w: solver tolerance %v", ErrInvalidConfig, c.Solver.Tolerance)
	}
	if c.Solver.Workers < 0 || c.Workers < 0 {
		return fmt.Errorf("%w: negative worker count", ErrInvalidConfig)
	}
	if c.QuatNormalizeSkip < 0 {
		return fmt.Errorf("%w: quat normalize skip %d", ErrInvalidConfig, c.QuatNormalizeSkip)
	}
	if c.MaxSubSteps <= 0 {
		return fmt.Errorf("%w: max sub steps %d", ErrInvalidConfig, c.MaxSubSteps)
	}
	if _, err := c.contactMaterial(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if _, err := c.level(); err != nil {
		return err
	}
	return nil
}

func (c Config) level() (slog.Level, error) {
	var level slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("%w: log level: %w", ErrInvalidConfig, err)
	}
	return level, nil
}

func (c Config) contactMaterial() (*actor.ContactMaterial, error) {
	m := c.ContactMaterial
	cm, err := actor.NewContactMaterial(nil, nil, m.Friction, m.Restitution)
	if err != nil {
		return nil, err
	}
	cm.ContactEquationStiffness = m.ContactStiffness
	cm.ContactEquationRelaxation = m.ContactRelaxation
	cm.FrictionEquationStiffness = m.FrictionStiffness
	cm.FrictionEquationRelaxation = m.FrictionRelaxation
	if err := cm.Validate(); err != nil {
		return nil, err
	}
	return cm, nil
}

func (c Config) broadphase() (Broadphase, error) {
	bc := c.Broadphase
	switch bc.Kind {
	case BroadphaseSAP:
		sap := NewSAPBroadphase()
		sap.Axis = bc.Axis
		sap.AutoDetectAxis = bc.AutoDetectAxis
		sap.UseBoundingBoxes = bc.UseBoundingBoxes
		return sap, nil
	case BroadphaseGrid:
		grid, err := NewGridBroadphase(mgl64.Vec3(bc.GridMin), mgl64.Vec3(bc.GridMax), bc.GridBins[0], bc.GridBins[1], bc.GridBins[2])
		if err != nil {
			return nil, err
		}
		grid.UseBoundingBoxes = bc.UseBoundingBoxes
		return grid, nil
	}
	return &NaiveBroadphase{UseBoundingBoxes: bc.UseBoundingBoxes}, nil
}

func (c Config) solver() solver.Solver {
	gs := solver.NewGSSolver()
	gs.Iterations = c.Solver.Iterations
	gs.Tolerance = c.Solver.Tolerance
	if c.Solver.Kind == SolverSplit {
		split := solver.NewSplitSolver(gs)
		split.Workers = max(1, c.Solver.Workers)
		return split
	}
	return gs
}

// NewWorld builds a world from a validated configuration.
func NewWorld(cfg Config) (*World, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	bp, err := cfg.broadphase()
	if err != nil {
		return nil, err
	}
	cm, err := cfg.contactMaterial()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	level, err := cfg.level()
	if err != nil {
		return nil, err
	}

	w := newWorld()
	w.Gravity = mgl64.Vec3(cfg.Gravity)
	w.Broadphase = bp
	w.Solver = cfg.solver()
	w.AllowSleep = cfg.AllowSleep
	w.QuatNormalizeSkip = cfg.QuatNormalizeSkip
	w.QuatNormalizeFast = cfg.QuatNormalizeFast
	w.MaxSubSteps = cfg.MaxSubSteps
	w.Workers = max(DEFAULT_WORKERS, cfg.Workers)
	w.DefaultContactMaterial = cm
	w.Narrowphase.EnableFrictionReduction = cfg.FrictionReduction
	w.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	w.Logger.Info("world created",
		"broadphase", cfg.Broadphase.Kind,
		"solver", cfg.Solver.Kind,
		"iterations", cfg.Solver.Iterations,
		"gravity", w.Gravity)
	return w, nil
}
