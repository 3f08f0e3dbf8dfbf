package config

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Map:     MapConfig{Size: 400, Count: 1, InitialObstacles: 20, DynamicObstacles: 2},
		RRT:     RRTConfig{MaxIterations: 2500, StepSize: 4, Index: "linear"},
		Replan:  ReplanConfig{Threshold: 1, Direction: "goal-to-start"},
		Server:  ServerConfig{Port: 8080},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	cfg, err := LoadConfig("", nil, nil)

	require.NoError(t, err)
	assert.Equal(t, 400, cfg.Map.Size)
	assert.Equal(t, 1, cfg.Map.Count)
	assert.Equal(t, 20, cfg.Map.InitialObstacles)
	assert.Equal(t, 2, cfg.Map.DynamicObstacles)
	assert.Equal(t, 2500, cfg.RRT.MaxIterations)
	assert.Equal(t, 4, cfg.RRT.StepSize)
	assert.Equal(t, "linear", cfg.RRT.Index)
	assert.Equal(t, 1, cfg.Replan.Threshold)
	assert.Equal(t, "goal-to-start", cfg.Replan.Direction)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoadConfigFileEnvAndFlags(t *testing.T) {
	file := filepath.Join(t.TempDir(), "gridplan.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
map:
  size: 500
  count: 3
rrt:
  step_size: 2
  index: rtree
replan:
  direction: start-to-goal
`), 0o644))
	t.Setenv("GRIDPLAN_REPLAN_THRESHOLD", "2")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("num-maps", 1, "")
	flags.Int("rrt-iterations", 2500, "")
	require.NoError(t, flags.Parse([]string{"--rrt-iterations=4000"}))

	cfg, err := LoadConfig(file, flags, nil)

	require.NoError(t, err)
	assert.Equal(t, 500, cfg.Map.Size)
	// Unset flags do not override the file.
	assert.Equal(t, 3, cfg.Map.Count)
	assert.Equal(t, 4000, cfg.RRT.MaxIterations)
	assert.Equal(t, 2, cfg.RRT.StepSize)
	assert.Equal(t, "rtree", cfg.RRT.Index)
	assert.Equal(t, 2, cfg.Replan.Threshold)
	assert.Equal(t, "start-to-goal", cfg.Replan.Direction)
}

func TestLoadConfigBadFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "gridplan.yaml")
	require.NoError(t, os.WriteFile(file, []byte("map: [unclosed"), 0o644))

	_, err := LoadConfig(file, nil, nil)

	assert.Error(t, err)
}

func TestValidateClamps(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		check  func(*testing.T, *Config)
	}{
		{"map too small", func(c *Config) { c.Map.Size = 10 }, func(t *testing.T, c *Config) {
			assert.Equal(t, MinMapSize, c.Map.Size)
		}},
		{"map too large", func(c *Config) { c.Map.Size = 5000 }, func(t *testing.T, c *Config) {
			assert.Equal(t, MaxMapSize, c.Map.Size)
		}},
		{"iterations too small", func(c *Config) { c.RRT.MaxIterations = 5 }, func(t *testing.T, c *Config) {
			assert.Equal(t, MinRRTIterations, c.RRT.MaxIterations)
		}},
		{"iterations too large", func(c *Config) { c.RRT.MaxIterations = 9000 }, func(t *testing.T, c *Config) {
			assert.Equal(t, MaxRRTIterations, c.RRT.MaxIterations)
		}},
		{"step too large", func(c *Config) { c.RRT.StepSize = 50 }, func(t *testing.T, c *Config) {
			assert.Equal(t, 4, c.RRT.StepSize)
		}},
		{"step zero", func(c *Config) { c.RRT.StepSize = 0 }, func(t *testing.T, c *Config) {
			assert.Equal(t, 1, c.RRT.StepSize)
		}},
		{"threshold zero", func(c *Config) { c.Replan.Threshold = 0 }, func(t *testing.T, c *Config) {
			assert.Equal(t, 1, c.Replan.Threshold)
		}},
		{"threshold too large", func(c *Config) { c.Replan.Threshold = 10 }, func(t *testing.T, c *Config) {
			assert.Equal(t, 2, c.Replan.Threshold)
		}},
		{"initial obstacles", func(c *Config) { c.Map.InitialObstacles = 100 }, func(t *testing.T, c *Config) {
			assert.Equal(t, 20, c.Map.InitialObstacles)
		}},
		{"dynamic obstacles on a small map", func(c *Config) {
			c.Map.Size = 100
			c.RRT.StepSize = 1
			c.Map.InitialObstacles = 5
			c.Map.DynamicObstacles = 4
		}, func(t *testing.T, c *Config) {
			assert.Equal(t, 1, c.Map.DynamicObstacles)
		}},
		{"no maps", func(c *Config) { c.Map.Count = 0 }, func(t *testing.T, c *Config) {
			assert.Equal(t, 1, c.Map.Count)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))
			cfg := validConfig()
			tt.modify(&cfg)

			require.NoError(t, Validate(&cfg, logger))
			tt.check(t, &cfg)
			assert.Contains(t, buf.String(), "level=WARN")
		})
	}
}

func TestValidateAcceptsValidConfigSilently(t *testing.T) {
	var buf bytes.Buffer
	cfg := validConfig()

	require.NoError(t, Validate(&cfg, slog.New(slog.NewTextHandler(&buf, nil))))
	assert.Empty(t, buf.String())
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   error
	}{
		{"direction", func(c *Config) { c.Replan.Direction = "sideways" }, ErrInvalidDirection},
		{"index", func(c *Config) { c.RRT.Index = "kdtree" }, ErrInvalidIndex},
		{"port", func(c *Config) { c.Server.Port = 70000 }, ErrInvalidPort},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }, ErrInvalidLogLevel},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, ErrInvalidLogFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(&cfg)

			err := Validate(&cfg, nil)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(LoggingConfig{Level: "debug", Format: "json"}, &buf)
	require.NoError(t, err)

	logger.Debug("planning", "cells", 9)

	assert.True(t, strings.HasPrefix(buf.String(), "{"))
	assert.Contains(t, buf.String(), `"cells":9`)

	buf.Reset()
	logger, err = newLogger(LoggingConfig{Level: "warn"}, &buf)
	require.NoError(t, err)
	logger.Info("hidden")
	assert.Empty(t, buf.String())

	_, err = NewLogger(LoggingConfig{Format: "xml"})
	assert.True(t, errors.Is(err, ErrInvalidLogFormat))
}

func TestMaxInitialObstacles(t *testing.T) {
	tests := []struct {
		size int
		want int
	}{
		{size: 10, want: 1},
		{size: 100, want: 5},
		{size: 399, want: 19},
		{size: 1000, want: 50},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MaxInitialObstacles(tt.size), "size=%d", tt.size)
	}
}
