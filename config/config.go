// Package config provides configuration loading and validation for grid-replanner.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"grid-replanner/planner"
)

// Sentinel validation errors.
var (
	ErrInvalidDirection = errors.New("invalid replanning direction")
	ErrInvalidIndex     = errors.New("invalid nearest-node index")
	ErrInvalidLogLevel  = errors.New("invalid log level")
	ErrInvalidLogFormat = errors.New("invalid log format")
	ErrInvalidPort      = errors.New("invalid server port")
)

// Bounds applied by Validate.
const (
	MinMapSize       = 100
	MaxMapSize       = 1000
	MinRRTIterations = 1000
	MaxRRTIterations = 8000

	stepSizeRatio          = 0.01
	thresholdRatio         = 0.005
	initialObstacleRatio   = 0.05
	dynamicObstacleRatio   = 0.005
	maxPort                = 65535
	defaultPort            = 8080
	defaultMapSize         = 400
	defaultInitialObs      = 20
	defaultDynamicObs      = 2
	defaultRRTIterations   = 2500
	defaultRRTStepSize     = planner.DefaultStepSize
	defaultReplanThreshold = 1
)

// Config holds all configuration for grid-replanner.
type Config struct {
	Map     MapConfig     `mapstructure:"map"`
	RRT     RRTConfig     `mapstructure:"rrt"`
	Replan  ReplanConfig  `mapstructure:"replan"`
	Run     RunConfig     `mapstructure:"run"`
	Server  ServerConfig  `mapstructure:"server"`
	Store   StoreConfig   `mapstructure:"store"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// MapConfig controls generated maps.
type MapConfig struct {
	Size             int     `mapstructure:"size"`
	Count            int     `mapstructure:"count"`
	InitialObstacles int     `mapstructure:"initial_obstacles"`
	DynamicObstacles int     `mapstructure:"dynamic_obstacles"`
	ObstacleDir      string  `mapstructure:"obstacle_dir"`
	SimplifyEpsilon  float64 `mapstructure:"simplify_epsilon"`
}

// RRTConfig controls the tree planner.
type RRTConfig struct {
	MaxIterations int    `mapstructure:"max_iterations"`
	StepSize      int    `mapstructure:"step_size"`
	Index         string `mapstructure:"index"`
}

// ReplanConfig controls the hybrid replanner.
type ReplanConfig struct {
	Threshold int    `mapstructure:"threshold"`
	Direction string `mapstructure:"direction"`
}

// RunConfig controls the batch run loop.
type RunConfig struct {
	Seed      int64  `mapstructure:"seed"`
	OutputDir string `mapstructure:"output_dir"`
	Render    bool   `mapstructure:"render"`
}

// ServerConfig holds server-specific configuration.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	MapFile      string        `mapstructure:"map_file"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// StoreConfig controls the run history database.
type StoreConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig holds logging-specific configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Addr is the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// FlagKeys maps command-line flag names to configuration keys. Flags present
// in the set passed to LoadConfig override file and environment values.
var FlagKeys = map[string]string{
	"map-size":          "map.size",
	"num-maps":          "map.count",
	"initial-obstacles": "map.initial_obstacles",
	"dynamic-obstacles": "map.dynamic_obstacles",
	"obstacle-dir":      "map.obstacle_dir",
	"rrt-iterations":    "rrt.max_iterations",
	"rrt-step":          "rrt.step_size",
	"rrt-index":         "rrt.index",
	"threshold":         "replan.threshold",
	"direction":         "replan.direction",
	"seed":              "run.seed",
	"output-dir":        "run.output_dir",
	"render":            "run.render",
	"host":              "server.host",
	"port":              "server.port",
	"map-file":          "server.map_file",
	"db":                "store.path",
	"store":             "store.enabled",
	"log-level":         "logging.level",
	"log-format":        "logging.format",
}

// LoadConfig loads configuration from file, environment variables and flags.
// Out-of-range numeric values are clamped, with a warning on logger.
func LoadConfig(configPath string, flags *pflag.FlagSet, logger *slog.Logger) (*Config, error) {
	viperCfg := viper.New()

	setDefaults(viperCfg)

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName("gridplan")
		viperCfg.SetConfigType("yaml")
		viperCfg.AddConfigPath(".")
		viperCfg.AddConfigPath("./config")
	}

	viperCfg.SetEnvPrefix("GRIDPLAN")
	viperCfg.AutomaticEnv()
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if flags != nil {
		for name, key := range FlagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := viperCfg.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFoundErr) {
			return nil, fmt.Errorf("failed to read config file: %w", readErr)
		}
	}

	var config Config
	if err := viperCfg.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&config, logger); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &config, nil
}

func setDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("map.size", defaultMapSize)
	viperCfg.SetDefault("map.count", 1)
	viperCfg.SetDefault("map.initial_obstacles", defaultInitialObs)
	viperCfg.SetDefault("map.dynamic_obstacles", defaultDynamicObs)
	viperCfg.SetDefault("map.obstacle_dir", "")
	viperCfg.SetDefault("map.simplify_epsilon", 0.5)

	viperCfg.SetDefault("rrt.max_iterations", defaultRRTIterations)
	viperCfg.SetDefault("rrt.step_size", defaultRRTStepSize)
	viperCfg.SetDefault("rrt.index", planner.IndexLinear)

	viperCfg.SetDefault("replan.threshold", defaultReplanThreshold)
	viperCfg.SetDefault("replan.direction", planner.GoalToStart.String())

	viperCfg.SetDefault("run.seed", 0)
	viperCfg.SetDefault("run.output_dir", "images")
	viperCfg.SetDefault("run.render", false)

	viperCfg.SetDefault("server.host", "0.0.0.0")
	viperCfg.SetDefault("server.port", defaultPort)
	viperCfg.SetDefault("server.map_file", "map.json")
	viperCfg.SetDefault("server.read_timeout", "30s")
	viperCfg.SetDefault("server.write_timeout", "60s")

	viperCfg.SetDefault("store.enabled", false)
	viperCfg.SetDefault("store.path", "gridplan.db")

	viperCfg.SetDefault("logging.level", "info")
	viperCfg.SetDefault("logging.format", "text")
}

// Validate clamps out-of-range values, logging a warning for each change, and
// rejects values that cannot be repaired.
func Validate(cfg *Config, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	clamp := func(name string, v *int, lo, hi int) {
		switch {
		case *v < lo:
			logger.Warn(name+" is too small, using minimum", "value", *v, "min", lo)
			*v = lo
		case *v > hi:
			logger.Warn(name+" is too large, using maximum", "value", *v, "max", hi)
			*v = hi
		}
	}

	clamp("map size", &cfg.Map.Size, MinMapSize, MaxMapSize)
	size := float64(cfg.Map.Size)
	clamp("number of maps", &cfg.Map.Count, 1, math.MaxInt)
	clamp("initial obstacles", &cfg.Map.InitialObstacles, 1, MaxInitialObstacles(cfg.Map.Size))
	clamp("dynamic obstacles", &cfg.Map.DynamicObstacles, 1, fraction(size, dynamicObstacleRatio))
	clamp("RRT max iterations", &cfg.RRT.MaxIterations, MinRRTIterations, MaxRRTIterations)
	clamp("RRT step size", &cfg.RRT.StepSize, 1, fraction(size, stepSizeRatio))
	clamp("replanning threshold", &cfg.Replan.Threshold, 1, fraction(size, thresholdRatio))

	if _, err := planner.ParseDirection(cfg.Replan.Direction); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidDirection, cfg.Replan.Direction)
	}
	if _, err := planner.IndexByName(cfg.RRT.Index); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidIndex, cfg.RRT.Index)
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > maxPort {
		return fmt.Errorf("%w: %d", ErrInvalidPort, cfg.Server.Port)
	}
	if _, err := ParseLevel(cfg.Logging.Level); err != nil {
		return err
	}
	switch cfg.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, cfg.Logging.Format)
	}
	return nil
}

// MaxInitialObstacles is the largest obstacle count allowed on a generated map of the given size.
func MaxInitialObstacles(size int) int {
	return fraction(float64(size), initialObstacleRatio)
}

// fraction is floor(size*ratio), at least 1.
func fraction(size, ratio float64) int {
	return max(int(math.Floor(size*ratio)), 1)
}
